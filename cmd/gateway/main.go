package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sainideep1234/self-healing-agent/internal/admin"
	"github.com/sainideep1234/self-healing-agent/internal/cache"
	"github.com/sainideep1234/self-healing-agent/internal/config"
	"github.com/sainideep1234/self-healing-agent/internal/events"
	"github.com/sainideep1234/self-healing-agent/internal/healer"
	"github.com/sainideep1234/self-healing-agent/internal/proxy"
	"github.com/sainideep1234/self-healing-agent/internal/reasoning"
	"github.com/sainideep1234/self-healing-agent/internal/schema"
	"github.com/sainideep1234/self-healing-agent/internal/server"
	"github.com/sainideep1234/self-healing-agent/internal/stream"
	"github.com/sainideep1234/self-healing-agent/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.Init("self-healing-gateway", "1.0.0", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	// Stores. Both are wrapped so a store failure degrades to a miss/no-op
	// instead of breaking the forwarding path.
	mappings := cache.NewDegrading(
		cache.NewMemory(time.Duration(cfg.Cache.TTLSeconds)*time.Second), logger)

	var eventLog events.Log
	if cfg.Events.DBPath == "" {
		eventLog = events.NewMemory()
	} else {
		sqliteLog, err := events.NewSQLite(cfg.Events.DBPath)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		eventLog = sqliteLog
	}
	defer eventLog.Close()
	bestEffortLog := events.NewBestEffort(eventLog, logger)

	thoughts := stream.NewBroadcaster(stream.Config{
		HistorySize:     cfg.Stream.HistorySize,
		ReplayCount:     cfg.Stream.ReplayCount,
		KeepaliveEvery:  time.Duration(cfg.Stream.KeepaliveSeconds) * time.Second,
		ApprovalTimeout: time.Duration(cfg.Stream.ApprovalTimeoutSeconds) * time.Second,
		Logger:          logger,
	})

	reasoner := reasoning.NewOpenAI(cfg.Reasoning.APIKey, logger,
		reasoning.WithBaseURL(cfg.Reasoning.BaseURL),
		reasoning.WithModel(cfg.Reasoning.Model),
	)

	engine := healer.New(healer.Config{
		ConfidenceThreshold: cfg.Healing.ConfidenceThreshold,
		ApprovalThreshold:   cfg.Healing.ApprovalThreshold,
		RequireApproval:     cfg.Healing.RequireApproval,
		MappingTTL:          time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	}, reasoner, mappings, bestEffortLog, thoughts, logger)

	registry := schema.DefaultRegistry()

	gateway := proxy.New(cfg.Upstream.URL, registry, mappings, bestEffortLog, engine, logger,
		proxy.WithAutoHeal(cfg.Healing.AutoHeal),
		proxy.WithHTTPClient(httpClient(cfg.Upstream.TimeoutSeconds)),
	)

	adminHandler := admin.New(registry, mappings, bestEffortLog, thoughts, engine, gateway, cfg, logger)

	srv := server.New(cfg.Server.Port, logger)
	// Admin endpoints are short JSON calls; the agent SSE stream stays
	// outside the timeout.
	srv.Router.Mount("/admin", server.TimeoutMiddleware(30*time.Second)(adminHandler.AdminRoutes()))
	srv.Router.Mount("/agent", adminHandler.AgentRoutes())
	srv.Router.Handle("/api/*", gateway)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway configured",
		slog.String("upstream", cfg.Upstream.URL),
		slog.Bool("auto_heal", cfg.Healing.AutoHeal),
		slog.String("reasoning_model", cfg.Reasoning.Model),
	)

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func httpClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
