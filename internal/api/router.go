package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"lighting-control-backend/internal/mw"
)

// RouterConfig tunes the API middleware.
type RouterConfig struct {
	RateLimitPerSec float64
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router exposing the scheduling
// core's operations.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	cacheStore := cache.New(cfg.CacheTTL, 10*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/jobs", h.PostJob)
		api.DELETE("/jobs/:key", h.DeleteJob)
		api.GET("/jobs", h.GetJobs)

		api.POST("/reconcile", h.PostReconcile)

		api.GET("/connection", h.GetConnection)
		api.GET("/status", caching, h.GetStatus)
	}

	return r
}
