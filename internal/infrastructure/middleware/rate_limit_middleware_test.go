package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"roombot/pkg/config"
)

func newLimitedRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func get(router http.Handler, remote, forwarded string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	router.ServeHTTP(w, req)
	return w
}

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dashboard.RateLimit.Enabled = false
	router := newLimitedRouter(cfg)

	for i := 0; i < 3; i++ {
		if w := get(router, "10.0.0.1:1234", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dashboard.RateLimit.Enabled = true
	cfg.Dashboard.RateLimit.RequestsPerSecond = 0.5
	cfg.Dashboard.RateLimit.Burst = 1
	router := newLimitedRouter(cfg)

	if w := get(router, "10.0.0.1:1234", ""); w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for first request, got %d", w.Code)
	}

	w := get(router, "10.0.0.1:5678", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 for second request, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	if w := get(router, "10.0.0.2:1234", ""); w.Code != http.StatusOK {
		t.Fatalf("expected another IP to pass, got %d", w.Code)
	}
}

func TestHTTPRateLimitMiddleware_ForwardedFor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dashboard.RateLimit.RequestsPerSecond = 1
	cfg.Dashboard.RateLimit.Burst = 1
	router := newLimitedRouter(cfg)

	if w := get(router, "10.0.0.1:1", "203.0.113.7, 10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w := get(router, "10.0.0.1:2", "203.0.113.8"); w.Code != http.StatusOK {
		t.Fatalf("expected a different forwarded client to pass, got %d", w.Code)
	}
	if w := get(router, "10.0.0.9:3", "203.0.113.7"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the first forwarded client to be limited, got %d", w.Code)
	}
}
