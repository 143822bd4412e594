package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"fleet-audit-backend/config"
	"fleet-audit-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(h.log.Named("http")))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Roll-ups are cheap to recompute but polled by every open dashboard.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/overview
		api.GET("/overview", caching, h.GetOverview)

		// GET /api/regions/{region}/subregions
		api.GET("/regions/:region/subregions", caching, h.GetSubregions)

		// GET /api/regions/{region}/facilities
		api.GET("/regions/:region/facilities", caching, h.GetRegionFacilities)

		// GET /api/facilities/{facility}/devices
		api.GET("/facilities/:facility/devices", caching, h.GetFacilityDevices)

		// GET /api/devices/{device_id}
		api.GET("/devices/:device_id", caching, h.GetDevice)

		// POST /api/reports
		api.POST("/reports", h.PostReport)
	}

	return r
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	if h.store == nil || h.store.DB() == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
