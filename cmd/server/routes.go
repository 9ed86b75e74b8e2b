// Package main provides the nutrition coach bot server entry point.
package main

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutrilog/nutri-linebot-go/internal/buildinfo"
	"github.com/nutrilog/nutri-linebot-go/internal/config"
	"github.com/nutrilog/nutri-linebot-go/internal/storage"
	"github.com/nutrilog/nutri-linebot-go/internal/webhook"
)

// setupRoutes configures all HTTP routes. webhookHandler may be nil
// when LINE credentials are absent; the endpoint then acknowledges
// with 200 and discards the payload so the platform does not retry,
// and /ready reports webhook:false for visibility.
func setupRoutes(router *gin.Engine, cfg *config.Config, webhookHandler *webhook.Handler, store *storage.Store, registry *prometheus.Registry) {
	rootHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "nutri-linebot",
			"version": buildinfo.Version,
		})
	}
	router.GET("/", rootHandler)
	router.HEAD("/", rootHandler)

	// Liveness probe: process is up. Never checks dependencies.
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness probe: dependencies reachable.
	readyHandler := func(c *gin.Context) {
		if err := store.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"database": "connected",
			"webhook":  webhookHandler != nil,
		})
	}
	router.GET("/ready", readyHandler)
	router.HEAD("/ready", readyHandler)

	// LINE webhook callback endpoint
	if webhookHandler != nil {
		router.POST("/webhook", webhookHandler.Handle)
	} else {
		var warnOnce sync.Once
		router.POST("/webhook", func(c *gin.Context) {
			warnOnce.Do(func() {
				slog.Warn("webhook received without messaging credentials, acknowledging and discarding")
			})
			c.Status(http.StatusOK)
		})
	}

	// Prometheus metrics endpoint, optionally behind basic auth
	metricsHandler := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if cfg.MetricsPassword != "" {
		authorized := router.Group("/", gin.BasicAuth(gin.Accounts{
			cfg.MetricsUsername: cfg.MetricsPassword,
		}))
		authorized.GET("/metrics", metricsHandler)
	} else {
		router.GET("/metrics", metricsHandler)
	}
}
