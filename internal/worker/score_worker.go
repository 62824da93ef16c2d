// Package worker recomputes plan scores in the background: on demand when a
// refresh message arrives, and on a periodic sweep as a backstop for lost
// messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gyebu/internal/amqp"
	"gyebu/internal/core"
	"gyebu/internal/export"
	"gyebu/internal/log"
	"gyebu/internal/storage"
)

// Scorer computes a plan's current progress.
type Scorer interface {
	Progress(ctx context.Context, planID int64, now time.Time) (core.Progress, error)
}

// SnapshotStore is the storage surface the worker needs.
type SnapshotStore interface {
	GetPlan(ctx context.Context, id int64) (storage.PlanRecord, error)
	ListPlanIDs(ctx context.Context) ([]int64, error)
	InsertScoreSnapshot(ctx context.Context, s storage.ScoreSnapshot) (int64, error)
}

// ScoreWorker turns refresh requests into persisted score snapshots and
// mirrors them to the export target when one is configured.
type ScoreWorker struct {
	store    SnapshotStore
	scorer   Scorer
	exporter export.SnapshotWriter
	now      func() time.Time
}

func NewScoreWorker(store SnapshotStore, scorer Scorer, exporter export.SnapshotWriter) *ScoreWorker {
	return &ScoreWorker{
		store:    store,
		scorer:   scorer,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleRefreshMessage processes a single score refresh request from AMQP.
func (w *ScoreWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.ScoreRefreshMessage) error {
	slog.InfoContext(ctx, "Processing score refresh",
		log.FieldPlanID, msg.PlanID,
		"requested_at", msg.Timestamp)

	return w.refreshPlan(ctx, msg.PlanID)
}

// SweepAll recomputes every plan's score. This is a backup mechanism in case
// AMQP messages are lost, and also picks up plans that simply crossed into a
// new period without any writes.
func (w *ScoreWorker) SweepAll(ctx context.Context) error {
	ids, err := w.store.ListPlanIDs(ctx)
	if err != nil {
		return fmt.Errorf("list plans for sweep: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping plan scores", "count", len(ids))

	errorCount := 0
	for _, id := range ids {
		if err := w.refreshPlan(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh plan during sweep",
				log.FieldPlanID, id, log.FieldError, err)
			errorCount++
		}
	}

	slog.InfoContext(ctx, "Sweep completed",
		"total", len(ids),
		"refreshed", len(ids)-errorCount,
		"errors", errorCount)

	return nil
}

// RunSweepLoop sweeps on the given interval until the context is cancelled.
// It sweeps once immediately so a restarted worker catches up right away.
func (w *ScoreWorker) RunSweepLoop(ctx context.Context, interval time.Duration) error {
	if err := w.SweepAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sweep failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SweepAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Sweep failed", log.FieldError, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *ScoreWorker) refreshPlan(ctx context.Context, planID int64) error {
	now := w.now()

	progress, err := w.scorer.Progress(ctx, planID, now)
	if err != nil {
		return fmt.Errorf("compute progress for plan %d: %w", planID, err)
	}

	snapshotID, err := w.store.InsertScoreSnapshot(ctx, storage.ScoreSnapshot{
		PlanID:      planID,
		Percent:     progress.Percent,
		SpentMinor:  progress.SpentMinor,
		SavedMinor:  progress.SavedMinor,
		WindowStart: progress.Window.StartUTC,
		WindowEnd:   progress.Window.EndUTC,
		ComputedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("persist snapshot for plan %d: %w", planID, err)
	}

	slog.InfoContext(ctx, "Score snapshot saved",
		log.FieldPlanID, planID,
		"snapshot_id", snapshotID,
		log.FieldPercent, progress.Percent,
		"spent_minor", progress.SpentMinor,
		"saved_minor", progress.SavedMinor)

	if w.exporter == nil {
		return nil
	}

	plan, err := w.store.GetPlan(ctx, planID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load plan for export", log.FieldPlanID, planID, log.FieldError, err)
		// The snapshot is already durable, export is best effort.
		return nil
	}

	row := export.ScoreRow{
		PlanID:      planID,
		PlanName:    plan.Name,
		Percent:     progress.Percent,
		SpentMinor:  progress.SpentMinor,
		SavedMinor:  progress.SavedMinor,
		Currency:    core.ParseCurrency(plan.Currency),
		WindowStart: progress.Window.StartUTC,
		WindowEnd:   progress.Window.EndUTC,
		ComputedAt:  now,
	}
	if err := w.exporter.AppendScore(ctx, row); err != nil {
		slog.ErrorContext(ctx, "Failed to export snapshot", log.FieldPlanID, planID, log.FieldError, err)
	}

	return nil
}
