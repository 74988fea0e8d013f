package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roombot/internal/core/services"
	"roombot/internal/infrastructure/middleware"
	"roombot/pkg/config"
)

// NewRouter builds the gin engine with the dashboard's middleware stack.
// auth may be nil when the dashboard runs without tokens.
func NewRouter(cfg *config.Config, h *DashboardHandler, auth services.AuthService, logger *zap.SugaredLogger) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.TracingMiddleware(),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(logger),
	)

	var readAuth, adminAuth gin.HandlerFunc
	if cfg.Dashboard.RequireAuth && auth != nil {
		readAuth = middleware.AuthMiddleware(auth, services.ScopeRead)
	}
	if auth != nil {
		adminAuth = middleware.AuthMiddleware(auth, services.ScopeAdmin)
	} else {
		adminAuth = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin endpoints need dashboard.jwt_secret"})
		}
	}

	h.SetupRoutes(router, readAuth, adminAuth)
	return router
}

// NewServer wraps router in an http.Server with the configured timeouts.
func NewServer(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Dashboard.Address,
		Handler:      router,
		ReadTimeout:  cfg.Dashboard.ReadTimeout,
		WriteTimeout: cfg.Dashboard.WriteTimeout,
	}
}
