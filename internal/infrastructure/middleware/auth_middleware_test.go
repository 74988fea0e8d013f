package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roombot/internal/core/services"
	apperrors "roombot/pkg/errors"
)

func newAuthRouter(auth services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/read", AuthMiddleware(auth, services.ScopeRead), func(c *gin.Context) {
		claims, err := services.ClaimsFromContext(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, Subject(c)+"/"+claims.Scope)
	})
	router.GET("/admin", AuthMiddleware(auth, services.ScopeAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func request(router http.Handler, path, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	auth := services.NewAuthService("test-secret", time.Hour)
	router := newAuthRouter(auth)

	readToken, err := auth.GenerateToken("grafana", services.ScopeRead, 0)
	require.NoError(t, err)
	adminToken, err := auth.GenerateToken("ops", services.ScopeAdmin, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/read", "", http.StatusUnauthorized},
		{"wrong scheme", "/read", "Basic " + readToken, http.StatusUnauthorized},
		{"garbage token", "/read", "Bearer nope", http.StatusUnauthorized},
		{"read scope on read route", "/read", "Bearer " + readToken, http.StatusOK},
		{"read scope on admin route", "/admin", "Bearer " + readToken, http.StatusForbidden},
		{"admin scope on admin route", "/admin", "Bearer " + adminToken, http.StatusNoContent},
		{"admin scope implies read", "/read", "Bearer " + adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(router, tt.path, tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := request(router, "/read", "Bearer "+readToken)
	assert.Equal(t, "grafana/read", w.Body.String())
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("user"))
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := request(router, "/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeNotFound))

	w = request(router, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeInternal))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/panic", func(c *gin.Context) {
		panic("handler exploded")
	})

	w := request(router, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
