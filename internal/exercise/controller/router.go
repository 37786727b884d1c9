package controller

import (
	"net/http"

	commonmw "exforge/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

// RouterOptions carries the optional observability hooks of the router.
type RouterOptions struct {
	Observer       commonmw.HTTPObserver
	MetricsHandler http.Handler
	CORS           commonmw.CORSConfig
	// RateLimiter guards the provisioning endpoints with ProvisionLimit.
	RateLimiter    *commonmw.RateLimiter
	ProvisionLimit commonmw.RateLimitPolicy
}

// NewRouter mounts the exercise endpoints under /api/v1/exercises.
func NewRouter(h *ExerciseController, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(commonmw.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())
	router.Use(commonmw.CORS(opts.CORS))
	if opts.Observer != nil {
		router.Use(commonmw.Metrics(opts.Observer))
	}

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	api := router.Group("/api/v1/exercises")
	api.POST("", commonmw.RateLimit(opts.RateLimiter, "create", opts.ProvisionLimit), h.Create)
	api.POST("/:id/import", commonmw.RateLimit(opts.RateLimiter, "import", opts.ProvisionLimit), h.Import)
	api.PUT("/:id/timing", h.UpdateTiming)
	api.DELETE("/:id", h.Delete)
	api.POST("/:id/tasks:regenerate", h.RegenerateTasks)
	return router
}
