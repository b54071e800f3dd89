// Package main is the entry point for the flowdag scheduler process. It
// holds no task registrations itself: it only campaigns for scheduler
// leadership and runs the auto-cleaner, leaving task execution to
// flowdag-worker processes.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"flowdag/internal/config"
	"flowdag/internal/coordinator/etcdcoord"
	"flowdag/internal/logger"
	"flowdag/internal/observability"
	"flowdag/pkg/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	baseLogger := logger.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.Init(ctx, "flowdag-scheduler", cfg.OTLPEndpoint)
	if err != nil {
		baseLogger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		baseLogger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		baseLogger.Info("scheduler metrics listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			baseLogger.Error("metrics server stopped", "error", err)
		}
	}()

	instruments, err := observability.NewInstruments(otel.Meter("flowdag"))
	if err != nil {
		baseLogger.Error("failed to create metric instruments", "error", err)
		os.Exit(1)
	}

	coord, err := etcdcoord.New(ctx, etcdcoord.Config{
		Endpoints:  cfg.CoordinatorEndpoints,
		SessionTTL: int(cfg.CoordinatorSessionTTL.Seconds()),
	})
	if err != nil {
		baseLogger.Error("failed to connect to coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	manager := workflow.New(coord, workflow.Config{
		BasePath:     cfg.BasePath,
		InstanceName: cfg.InstanceName,
		Logger:       baseLogger,
		Instruments:  instruments,
	})

	if err := manager.Start(ctx); err != nil {
		baseLogger.Error("failed to start manager", "error", err)
		os.Exit(1)
	}
	baseLogger.Info("scheduler started", "instance", cfg.InstanceName, slog.String("base_path", cfg.BasePath))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	baseLogger.Info("shutting down scheduler")
	manager.Close()
	cancel()
}
