package middleware

import (
	"context"
	"strings"

	"exforge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userHeader      = "X-User-Login"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	userContextKey      = "user_login"
)

// TraceContextMiddleware ensures trace and request ids are present in the request
// context and echoed in response headers. The acting user login is propagated
// when the upstream gateway sets it.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrNew(c, traceIDHeader)
		requestID := headerOrNew(c, requestIDHeader)

		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if login := strings.TrimSpace(c.GetHeader(userHeader)); login != "" {
			c.Set(userContextKey, login)
			ctx = context.WithValue(ctx, contextkey.UserID, login)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserLogin returns the login propagated by TraceContextMiddleware.
func UserLogin(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func headerOrNew(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if v == "" {
		v = uuid.NewString()
	}
	return v
}
