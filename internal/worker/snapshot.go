// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/valuation"
)

// SnapshotGenerator stores the valuation of a user's holdings for a date.
type SnapshotGenerator interface {
	Generate(ctx context.Context, userKey string, date time.Time) (valuation.Dashboard, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, userKey string, d valuation.Dashboard) error
}

// SnapshotWorker periodically snapshots the net worth of the tracked users.
type SnapshotWorker struct {
	generator SnapshotGenerator
	userKeys  []string
	interval  time.Duration
	hook      AfterSnapshotHook // optional
	now       func() time.Time
}

// NewSnapshotWorker creates a SnapshotWorker with an optional post-generation hook.
func NewSnapshotWorker(generator SnapshotGenerator, userKeys []string, interval time.Duration, hook AfterSnapshotHook) *SnapshotWorker {
	return &SnapshotWorker{
		generator: generator,
		userKeys:  userKeys,
		interval:  interval,
		hook:      hook,
		now:       time.Now,
	}
}

// RunOnce snapshots every tracked user for today. A failing user does not
// stop the others. Users with an empty ledger get a demo dashboard, which is
// neither counted nor exported. It returns the number of successful snapshots.
func (w *SnapshotWorker) RunOnce(ctx context.Context) int {
	date := domain.Day(w.now().UTC())
	ok := 0
	for _, key := range w.userKeys {
		if ctx.Err() != nil {
			break
		}
		d, err := w.generator.Generate(ctx, key, date)
		if err != nil {
			slog.Error("SnapshotWorker: generation failed", "user", shortKey(key), "error", err)
			continue
		}
		if d.Demo {
			slog.Debug("SnapshotWorker: empty ledger, demo dashboard not exported", "user", shortKey(key))
			continue
		}
		ok++
		w.runHook(ctx, key, d)
	}
	slog.Info("SnapshotWorker: round completed", "succeeded", ok, "users", len(w.userKeys))
	return ok
}

func (w *SnapshotWorker) runHook(ctx context.Context, userKey string, d valuation.Dashboard) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, userKey, d); err != nil {
		slog.Error("SnapshotWorker: export hook failed", "user", shortKey(userKey), "error", err)
	}
}

// Run starts the snapshot loop. It blocks until the context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	if len(w.userKeys) == 0 {
		slog.Info("SnapshotWorker: no tracked users, not starting")
		return
	}
	slog.Info("SnapshotWorker: starting", "users", len(w.userKeys), "interval", w.interval)

	// Generate immediately on startup
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// shortKey keeps user keys out of logs in full.
func shortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
