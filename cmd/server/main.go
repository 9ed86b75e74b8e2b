// Package main provides the nutrition coach bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nutrilog/nutri-linebot-go/internal/buildinfo"
	"github.com/nutrilog/nutri-linebot-go/internal/coach"
	"github.com/nutrilog/nutri-linebot-go/internal/config"
	"github.com/nutrilog/nutri-linebot-go/internal/dedup"
	"github.com/nutrilog/nutri-linebot-go/internal/llm"
	"github.com/nutrilog/nutri-linebot-go/internal/logger"
	"github.com/nutrilog/nutri-linebot-go/internal/metrics"
	"github.com/nutrilog/nutri-linebot-go/internal/ratelimit"
	"github.com/nutrilog/nutri-linebot-go/internal/sentry"
	"github.com/nutrilog/nutri-linebot-go/internal/storage"
	"github.com/nutrilog/nutri-linebot-go/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log.WithField("version", buildinfo.Version).Info("Starting nutrition coach server")

	// Error tracking (optional)
	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Failed to initialize Sentry, continuing without")
	}
	defer sentry.Flush(2 * time.Second)

	// Document store
	store, err := storage.New(context.Background(), cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer func() { _ = store.Close() }()
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)
	store.SetMetrics(m)

	// Generation client
	generator, err := llm.NewGenerator(context.Background(), llm.Config{
		Provider:     llm.Provider(cfg.LLMProvider),
		Model:        cfg.LLMModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		GeminiAPIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create generator")
	}

	// Conversation pipeline
	pipeline := coach.New(store, generator, log, cfg.HistoryDepth)
	pipeline.SetMetrics(m)

	// Webhook event dedup
	dedupCache := dedup.New(cfg.DedupTTL)
	dedupCache.SetReporter(m)
	defer dedupCache.Stop()

	// LINE messaging clients and webhook handler
	var webhookHandler *webhook.Handler
	if cfg.LineEnabled() {
		client, err := messaging_api.NewMessagingApiAPI(cfg.LineChannelToken)
		if err != nil {
			log.WithError(err).Fatal("Failed to create messaging API client")
		}
		blobClient, err := messaging_api.NewMessagingApiBlobAPI(cfg.LineChannelToken)
		if err != nil {
			log.WithError(err).Fatal("Failed to create blob API client")
		}

		sender := webhook.NewSender(client,
			ratelimit.NewPerSecond(cfg.LineRateRPS),
			m, log, config.ReplyTokenWindow)

		webhookHandler = webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			Client:        client,
			Processor:     pipeline,
			Deliverer:     sender,
			Dedup:         dedupCache,
			Images:        webhook.NewBlobFetcher(blobClient),
			Metrics:       m,
			Logger:        log,
		})
		log.Info("Webhook handler created")
	} else {
		log.Warn("LINE credentials not configured; webhook endpoint disabled")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))

	setupRoutes(router, cfg, webhookHandler, store, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then drain in-flight event
	// processing and pending writes.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	if webhookHandler != nil {
		if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Timed out waiting for event processing")
		}
	}
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Timed out waiting for pending writes")
	}

	if err := store.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}

	log.Info("Server stopped")
}
