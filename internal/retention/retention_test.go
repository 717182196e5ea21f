package retention

import (
	"context"
	"testing"
	"time"

	"github.com/sylphx/lens/pkg/config"
	"github.com/sylphx/lens/pkg/optimistic"
)

func TestRunOnceEvictsIdleSessions(t *testing.T) {
	mgr := optimistic.NewManager(optimistic.Options{})
	if _, err := mgr.Apply("stale", optimistic.Operation{Kind: optimistic.OpClearQueue}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := mgr.Apply("fresh", optimistic.Operation{Kind: optimistic.OpClearQueue}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Only sessions idle past the cutoff go away.
	n := RunOnce(mgr, time.Minute, time.Now())
	if n != 0 {
		t.Fatalf("evicted %d fresh sessions", n)
	}
	n = RunOnce(mgr, time.Nanosecond, time.Now().Add(time.Hour))
	if n != 2 {
		t.Fatalf("evicted = %d, want 2", n)
	}
	if got := len(mgr.Project("stale").PendingIDs); got != 0 {
		t.Fatalf("stale session still has state")
	}
}

func TestStartValidatesCron(t *testing.T) {
	mgr := optimistic.NewManager(optimistic.Options{})
	_, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "not a cron"}, mgr)
	if err == nil {
		t.Fatalf("invalid cron accepted")
	}

	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false}, mgr)
	if err != nil {
		t.Fatalf("disabled retention errored: %v", err)
	}
	cancel()

	cancel, err = Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "0 * * * *"}, mgr)
	if err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
	cancel()
}
