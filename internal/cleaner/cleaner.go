// Package cleaner periodically removes coordinator state for runs that
// finished long enough ago to no longer be queried.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowdag/internal/codec"
	"flowdag/internal/coordinator"
	"flowdag/internal/model"
)

// Predicate decides whether a completed run is eligible for deletion.
type Predicate func(run *model.RunnableTask) bool

// MinAge returns a Predicate that accepts runs whose CompletionTimeUtc
// is older than age.
func MinAge(age time.Duration) Predicate {
	return func(run *model.RunnableTask) bool {
		if run.CompletionTimeUtc == nil {
			return false
		}
		return time.Since(*run.CompletionTimeUtc) >= age
	}
}

// AutoCleaner sweeps the coordinator on an interval, deleting every node
// tree belonging to a run that Eligible accepts.
type AutoCleaner struct {
	coord    coordinator.Client
	basePath string
	eligible Predicate
	interval time.Duration
	logger   *slog.Logger
}

// Config configures an AutoCleaner.
type Config struct {
	BasePath string
	Eligible Predicate
	Interval time.Duration
	Logger   *slog.Logger
}

// New constructs an AutoCleaner. A nil Eligible defaults to MinAge(24h).
func New(coord coordinator.Client, cfg Config) *AutoCleaner {
	if cfg.BasePath == "" {
		cfg.BasePath = "/flowdag"
	}
	if cfg.Eligible == nil {
		cfg.Eligible = MinAge(24 * time.Hour)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AutoCleaner{
		coord:    coord,
		basePath: cfg.BasePath,
		eligible: cfg.Eligible,
		interval: cfg.Interval,
		logger:   cfg.Logger.With("component", "auto_cleaner"),
	}
}

// Run blocks, sweeping every interval, until ctx is cancelled. Run does
// not check scheduler leadership; workflow.Manager calls it in every
// started process. Concurrent sweeps are wasteful but not unsafe:
// deletes of already-deleted nodes are no-ops.
func (c *AutoCleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Sweep(ctx); err != nil {
			c.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep performs one pass, deleting every eligible run's state.
func (c *AutoCleaner) Sweep(ctx context.Context) error {
	runsPath := c.basePath + "/runs"
	nodes, err := c.coord.Children(ctx, runsPath)
	if err != nil {
		return fmt.Errorf("cleaner: list runs: %w", err)
	}

	removed := 0
	for _, node := range nodes {
		run, err := codec.DecodeRunnableTask(node.Value)
		if err != nil {
			c.logger.Error("decode run failed during sweep", "path", node.Path, "error", err)
			continue
		}
		if !c.eligible(run) {
			continue
		}
		if err := c.deleteRunState(ctx, run); err != nil {
			c.logger.Error("delete run state failed", "run", run.RunId, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("auto-cleaner removed runs", "count", removed)
	}
	return nil
}

func (c *AutoCleaner) deleteRunState(ctx context.Context, run *model.RunnableTask) error {
	for taskId := range run.Tasks {
		c.coord.Delete(ctx, fmt.Sprintf("%s/started/%s/%s", c.basePath, run.RunId, taskId))
		c.coord.Delete(ctx, fmt.Sprintf("%s/completed/%s/%s", c.basePath, run.RunId, taskId))
		c.coord.Delete(ctx, fmt.Sprintf("%s/queued/%s/%s", c.basePath, run.RunId, taskId))
	}
	return c.coord.Delete(ctx, fmt.Sprintf("%s/runs/%s", c.basePath, run.RunId))
}
