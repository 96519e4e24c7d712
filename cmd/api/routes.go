package main

import (
	"context"
	"net/http"
	"time"

	"dataroom/internal/config"
	"dataroom/internal/httpapi"
	"dataroom/internal/obs"
	"dataroom/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d *deps, metrics *obs.Metrics, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
				return
			}
		}
		if d.rdb != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.rdb.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "open_sessions": d.viewer.OpenCount()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("")
	api.Use(httpapi.RateLimit(cfg.Limit.RPS, cfg.Limit.Burst))
	d.handlers.Register(api, authMW, httpapi.RouteOptions{DevTokens: !cfg.IsProduction()})
}
