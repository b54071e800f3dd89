// Package config handles environment variable loading for coordinator
// endpoints, consumer pool sizes, and observability endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values shared by the scheduler and
// worker processes. flowctl does not use it; it reads its own flags.
type Config struct {
	// CoordinatorEndpoints are the etcd client endpoints.
	CoordinatorEndpoints []string

	// CoordinatorSessionTTL is the etcd lease TTL backing ephemeral
	// nodes and leader election.
	CoordinatorSessionTTL time.Duration

	// BasePath roots every coordinator key flowdag writes.
	BasePath string

	// InstanceName identifies this process in StartedTask records and
	// leader-election candidacy.
	InstanceName string

	// ConsumerConcurrency is the default per-task-type consumer count.
	ConsumerConcurrency int

	// SchedulerPollInterval is a wait between scheduler ticks for when no
	// coordinator watch fires sooner. It is loaded but not passed
	// to workflow.Manager by the scheduler or worker binaries; the
	// scheduler leader uses its built-in 2s default.
	SchedulerPollInterval time.Duration

	// AutoCleanerInterval is the auto-cleaner sweep period. It is loaded
	// but not passed to workflow.Manager by the scheduler or worker
	// binaries; the auto-cleaner uses its built-in 10m default.
	AutoCleanerInterval time.Duration

	// AutoCleanerMinAge is how long after completion a run becomes
	// eligible for deletion. It is loaded but not passed to
	// workflow.Manager by the scheduler or worker binaries; the
	// auto-cleaner uses its built-in 24h default.
	AutoCleanerMinAge time.Duration

	// OTLPEndpoint is the OTLP/gRPC collector address for traces. Empty
	// disables trace export.
	OTLPEndpoint string

	// MetricsAddr is the address the Prometheus exporter listens on.
	MetricsAddr string
}

// Load reads configuration from environment variables, applying the
// documented defaults for anything unset.
func Load() (*Config, error) {
	endpoints := os.Getenv("FLOWDAG_COORDINATOR_ENDPOINTS")
	if endpoints == "" {
		return nil, fmt.Errorf("FLOWDAG_COORDINATOR_ENDPOINTS is required")
	}

	sessionTTL, err := durationEnv("FLOWDAG_COORDINATOR_SESSION_TTL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	basePath := os.Getenv("FLOWDAG_BASE_PATH")
	if basePath == "" {
		basePath = "/flowdag"
	}

	instanceName := os.Getenv("FLOWDAG_INSTANCE_NAME")
	if instanceName == "" {
		host, _ := os.Hostname()
		instanceName = host
	}

	concurrency, err := intEnv("FLOWDAG_CONSUMER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	schedulerPoll, err := durationEnv("FLOWDAG_SCHEDULER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	cleanerInterval, err := durationEnv("FLOWDAG_AUTO_CLEANER_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cleanerMinAge, err := durationEnv("FLOWDAG_AUTO_CLEANER_MIN_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		CoordinatorEndpoints:  strings.Split(endpoints, ","),
		CoordinatorSessionTTL: sessionTTL,
		BasePath:              basePath,
		InstanceName:          instanceName,
		ConsumerConcurrency:   concurrency,
		SchedulerPollInterval: schedulerPoll,
		AutoCleanerInterval:   cleanerInterval,
		AutoCleanerMinAge:     cleanerMinAge,
		OTLPEndpoint:          os.Getenv("FLOWDAG_OTLP_ENDPOINT"),
		MetricsAddr:           envOr("FLOWDAG_METRICS_ADDR", ":9090"),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
