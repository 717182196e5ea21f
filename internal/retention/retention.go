// Package retention evicts idle optimistic sessions on a cron
// schedule, keeping long-running processes from accumulating state for
// clients that went away.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sylphx/lens/pkg/config"
	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/optimistic"
	"github.com/sylphx/lens/pkg/state"
)

// Start starts the retention scheduler if enabled. Returns a cancel
// func.
func Start(ctx context.Context, cfg config.RetentionConfig, mgr *optimistic.Manager) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	retentionPath := state.PathsVar.Retention
	if retentionPath != "" {
		if err := os.MkdirAll(retentionPath, 0o700); err != nil {
			logger.Error("retention_path_create_failed", "path", retentionPath, "error", err)
			return nil, err
		}
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	idle := cfg.IdlePeriod.Duration()
	if idle <= 0 {
		idle = 24 * time.Hour
	}

	logger.Info("retention_enabled", "cron", cronExpr, "idle_period", idle.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, idle, mgr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx, sleeps until it
// and runs one eviction pass.
func runScheduler(ctx context.Context, cronExpr string, idle time.Duration, mgr *optimistic.Manager) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			n := RunOnce(mgr, idle, time.Now())
			logger.Info("retention_run_complete", "evicted", n)
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce evicts every session idle longer than the period and returns
// how many were dropped.
func RunOnce(mgr *optimistic.Manager, idle time.Duration, now time.Time) int {
	cutoff := now.Add(-idle)
	evicted := 0
	for sessionID, touched := range mgr.Sessions() {
		if touched.Before(cutoff) {
			mgr.EvictSession(sessionID)
			evicted++
		}
	}
	return evicted
}
