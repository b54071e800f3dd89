// Package main is the entry point for the flowdag worker. It registers
// one TaskType backed by a pluggable runtime.Backend and runs a consumer
// pool for it, alongside the shared scheduler-leadership candidacy every
// flowdag process carries.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"flowdag/internal/config"
	"flowdag/internal/coordinator/etcdcoord"
	"flowdag/internal/logger"
	"flowdag/internal/model"
	"flowdag/internal/observability"
	"flowdag/internal/runtime"
	"flowdag/pkg/workflow"
)

func selectBackend() (runtime.Backend, error) {
	switch os.Getenv("FLOWDAG_RUNTIME_BACKEND") {
	case "exec":
		return runtime.NewExecBackend(), nil
	case "kubernetes":
		return runtime.NewKubernetesBackend(runtime.KubernetesConfig{
			Namespace:          os.Getenv("FLOWDAG_KUBERNETES_NAMESPACE"),
			ServiceAccount:     os.Getenv("FLOWDAG_KUBERNETES_SERVICE_ACCOUNT"),
			DefaultCPULimit:    os.Getenv("FLOWDAG_KUBERNETES_CPU_LIMIT"),
			DefaultMemoryLimit: os.Getenv("FLOWDAG_KUBERNETES_MEMORY_LIMIT"),
		})
	case "docker":
		fallthrough
	default:
		return runtime.NewDockerBackend()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	baseLogger := logger.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.Init(ctx, "flowdag-worker", cfg.OTLPEndpoint)
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
		baseLogger.Info("worker metrics listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			baseLogger.Error("metrics server stopped", "error", err)
		}
	}()

	instruments, err := observability.NewInstruments(otel.Meter("flowdag"))
	if err != nil {
		baseLogger.Error("failed to create metric instruments", "error", err)
		os.Exit(1)
	}

	backend, err := selectBackend()
	if err != nil {
		baseLogger.Error("failed to create runtime backend", "error", err)
		os.Exit(1)
	}
	taskExecutor := runtime.NewBackendTaskExecutor(backend)

	coord, err := etcdcoord.New(ctx, etcdcoord.Config{
		Endpoints:  cfg.CoordinatorEndpoints,
		SessionTTL: int(cfg.CoordinatorSessionTTL.Seconds()),
	})
	if err != nil {
		baseLogger.Error("failed to connect to coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	taskTypeName := os.Getenv("FLOWDAG_TASK_TYPE_NAME")
	if taskTypeName == "" {
		taskTypeName = "default"
	}
	taskType := model.TaskType{
		Name:       taskTypeName,
		Version:    os.Getenv("FLOWDAG_TASK_TYPE_VERSION"),
		Mode:       model.ModeStandard,
		Executable: true,
	}

	manager := workflow.New(coord, workflow.Config{
		BasePath:     cfg.BasePath,
		InstanceName: cfg.InstanceName,
		Logger:       baseLogger,
		Instruments:  instruments,
		Registrations: []workflow.Registration{
			{Type: taskType, Executor: taskExecutor, Concurrency: cfg.ConsumerConcurrency},
		},
	})

	if err := manager.Start(ctx); err != nil {
		baseLogger.Error("failed to start manager", "error", err)
		os.Exit(1)
	}
	baseLogger.Info("worker started", "instance", cfg.InstanceName, "task_type", taskTypeName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	baseLogger.Info("shutting down worker")
	manager.Close()
	cancel()
}
