package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"roombot/pkg/tracing"
)

// TracingMiddleware opens a server span per dashboard request. Only 5xx
// responses mark the span as failed; a 4xx is the caller's problem.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if sub := Subject(c); sub != "" {
			span.SetAttributes(attribute.String("dashboard.subject", sub))
		}
		if status >= http.StatusInternalServerError {
			for _, e := range c.Errors {
				tracing.RecordError(ctx, e.Err)
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
