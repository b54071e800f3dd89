package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresCoordinatorEndpoints(t *testing.T) {
	t.Setenv("FLOWDAG_COORDINATOR_ENDPOINTS", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when FLOWDAG_COORDINATOR_ENDPOINTS is missing")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("FLOWDAG_COORDINATOR_ENDPOINTS", "localhost:2379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.CoordinatorEndpoints) != 1 || cfg.CoordinatorEndpoints[0] != "localhost:2379" {
		t.Errorf("expected one endpoint localhost:2379, got %v", cfg.CoordinatorEndpoints)
	}
	if cfg.CoordinatorSessionTTL != 10*time.Second {
		t.Errorf("expected CoordinatorSessionTTL 10s, got %v", cfg.CoordinatorSessionTTL)
	}
	if cfg.BasePath != "/flowdag" {
		t.Errorf("expected BasePath /flowdag, got %s", cfg.BasePath)
	}
	if cfg.ConsumerConcurrency != 4 {
		t.Errorf("expected ConsumerConcurrency 4, got %d", cfg.ConsumerConcurrency)
	}
	if cfg.SchedulerPollInterval != 2*time.Second {
		t.Errorf("expected SchedulerPollInterval 2s, got %v", cfg.SchedulerPollInterval)
	}
	if cfg.AutoCleanerInterval != 10*time.Minute {
		t.Errorf("expected AutoCleanerInterval 10m, got %v", cfg.AutoCleanerInterval)
	}
	if cfg.AutoCleanerMinAge != 24*time.Hour {
		t.Errorf("expected AutoCleanerMinAge 24h, got %v", cfg.AutoCleanerMinAge)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("FLOWDAG_COORDINATOR_ENDPOINTS", "etcd-1:2379,etcd-2:2379")
	t.Setenv("FLOWDAG_COORDINATOR_SESSION_TTL", "30s")
	t.Setenv("FLOWDAG_BASE_PATH", "/custom")
	t.Setenv("FLOWDAG_INSTANCE_NAME", "worker-7")
	t.Setenv("FLOWDAG_CONSUMER_CONCURRENCY", "16")
	t.Setenv("FLOWDAG_SCHEDULER_POLL_INTERVAL", "500ms")
	t.Setenv("FLOWDAG_AUTO_CLEANER_INTERVAL", "1m")
	t.Setenv("FLOWDAG_AUTO_CLEANER_MIN_AGE", "1h")
	t.Setenv("FLOWDAG_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("FLOWDAG_METRICS_ADDR", ":9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.CoordinatorEndpoints) != 2 {
		t.Errorf("expected two endpoints, got %v", cfg.CoordinatorEndpoints)
	}
	if cfg.CoordinatorSessionTTL != 30*time.Second {
		t.Errorf("expected CoordinatorSessionTTL 30s, got %v", cfg.CoordinatorSessionTTL)
	}
	if cfg.BasePath != "/custom" {
		t.Errorf("expected BasePath /custom, got %s", cfg.BasePath)
	}
	if cfg.InstanceName != "worker-7" {
		t.Errorf("expected InstanceName worker-7, got %s", cfg.InstanceName)
	}
	if cfg.ConsumerConcurrency != 16 {
		t.Errorf("expected ConsumerConcurrency 16, got %d", cfg.ConsumerConcurrency)
	}
	if cfg.SchedulerPollInterval != 500*time.Millisecond {
		t.Errorf("expected SchedulerPollInterval 500ms, got %v", cfg.SchedulerPollInterval)
	}
	if cfg.AutoCleanerInterval != time.Minute {
		t.Errorf("expected AutoCleanerInterval 1m, got %v", cfg.AutoCleanerInterval)
	}
	if cfg.AutoCleanerMinAge != time.Hour {
		t.Errorf("expected AutoCleanerMinAge 1h, got %v", cfg.AutoCleanerMinAge)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("expected OTLPEndpoint collector:4317, got %s", cfg.OTLPEndpoint)
	}
	if cfg.MetricsAddr != ":9999" {
		t.Errorf("expected MetricsAddr :9999, got %s", cfg.MetricsAddr)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("FLOWDAG_COORDINATOR_ENDPOINTS", "localhost:2379")
	t.Setenv("FLOWDAG_SCHEDULER_POLL_INTERVAL", "not-a-duration")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_InvalidInt(t *testing.T) {
	t.Setenv("FLOWDAG_COORDINATOR_ENDPOINTS", "localhost:2379")
	t.Setenv("FLOWDAG_CONSUMER_CONCURRENCY", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid concurrency")
	}
}
