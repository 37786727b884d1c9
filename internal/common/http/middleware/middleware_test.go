package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exforge/internal/common/http/middleware"
	"exforge/internal/testutil"

	"github.com/gin-gonic/gin"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.UserLogin(c))
	})
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTraceContextEchoesIDsAndUser(t *testing.T) {
	r := newEngine()
	rec := get(r, map[string]string{"X-Trace-Id": "trace-1", "X-User-Login": "alice"})

	testutil.AssertEqual(t, rec.Header().Get("X-Trace-Id"), "trace-1")
	testutil.AssertTrue(t, rec.Header().Get("X-Request-Id") != "", "request id generated")
	testutil.AssertEqual(t, rec.Body.String(), "alice")
}

func TestRateLimitPerUser(t *testing.T) {
	c, server := testutil.NewRedisCache(t)
	limiter := middleware.NewRateLimiter(c, "test:rate")
	r := newEngine(middleware.RateLimit(limiter, "ping", middleware.RateLimitPolicy{Window: time.Minute, UserMax: 2}))

	alice := map[string]string{"X-User-Login": "alice"}
	testutil.AssertEqual(t, get(r, alice).Code, http.StatusOK)
	testutil.AssertEqual(t, get(r, alice).Code, http.StatusOK)
	testutil.AssertEqual(t, get(r, alice).Code, http.StatusTooManyRequests)
	testutil.AssertEqual(t, get(r, map[string]string{"X-User-Login": "bob"}).Code, http.StatusOK)

	server.FastForward(2 * time.Minute)
	testutil.AssertEqual(t, get(r, alice).Code, http.StatusOK)
}

func TestRateLimitDisabledWithoutWindow(t *testing.T) {
	r := newEngine(middleware.RateLimit(nil, "ping", middleware.RateLimitPolicy{UserMax: 1}))
	for i := 0; i < 3; i++ {
		testutil.AssertEqual(t, get(r, map[string]string{"X-User-Login": "alice"}).Code, http.StatusOK)
	}
}

func TestCORS(t *testing.T) {
	r := newEngine(middleware.CORS(middleware.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://lms.example.org"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	rec := get(r, map[string]string{"Origin": "https://lms.example.org"})
	testutil.AssertEqual(t, rec.Header().Get("Access-Control-Allow-Origin"), "https://lms.example.org")
	testutil.AssertEqual(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET,POST")

	rec = get(r, map[string]string{"Origin": "https://evil.example.org"})
	testutil.AssertEqual(t, rec.Header().Get("Access-Control-Allow-Origin"), "")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
}
