package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"financas/internal/amqp"
	"financas/internal/api"
	"financas/internal/core"
	"financas/internal/sheets"
	"financas/internal/statemachine"
	"financas/internal/storage"
)

// Backend creates the rows of a series in one call and returns their ids in order.
type Backend interface {
	BulkCreate(ctx context.Context, rows []core.Transaction) ([]string, error)
}

// SubmitWorker moves outbox series to the backend.
type SubmitWorker struct {
	storage     *storage.SQLiteRepository
	backend     Backend
	mirror      sheets.RowWriter
	batchSize   int
	maxAttempts int
}

// NewSubmitWorker builds a worker. mirror may be nil.
func NewSubmitWorker(storage *storage.SQLiteRepository, backend Backend, mirror sheets.RowWriter, batchSize, maxAttempts int) *SubmitWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &SubmitWorker{
		storage:     storage,
		backend:     backend,
		mirror:      mirror,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// SubmitGroup submits one series. Series that are already synced, discarded,
// gone or being submitted elsewhere are skipped without error; a backend
// failure marks the series failed and is returned.
func (w *SubmitWorker) SubmitGroup(ctx context.Context, groupID string) error {
	rec, err := w.storage.GetSeries(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Series no longer in outbox, skipping", "group_id", groupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get series from storage: %w", err)
	}

	machine := statemachine.NewSeriesFSM(rec)
	if !machine.Can(statemachine.EventSubmit) {
		slog.InfoContext(ctx, "Series not submittable, skipping",
			"group_id", groupID,
			"series_status", rec.Status)
		return nil
	}
	if err := machine.Submit(ctx); err != nil {
		return err
	}

	version, err := w.storage.UpdateSeriesStatus(ctx, storage.StatusUpdate{
		GroupID:      groupID,
		Version:      rec.Version,
		Status:       machine.Current(),
		CountAttempt: true,
	})
	if errors.Is(err, storage.ErrVersionConflict) {
		slog.InfoContext(ctx, "Series changed concurrently, skipping", "group_id", groupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark series submitting: %w", err)
	}

	ids, submitErr := w.backend.BulkCreate(ctx, rec.Rows)
	if submitErr != nil {
		return w.recordFailure(ctx, machine, groupID, version, rec.Attempts+1, submitErr)
	}

	if err := machine.Succeed(ctx); err != nil {
		return err
	}
	if err := w.storage.MarkSeriesSynced(ctx, groupID, version, ids); err != nil {
		// The backend already has the rows; retrying would duplicate them.
		slog.ErrorContext(ctx, "Failed to mark series as synced",
			"group_id", groupID,
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "Successfully submitted series",
		"group_id", groupID,
		"installments", len(rec.Rows),
		"amount_cents", rec.Series().Total().Cents,
		"remote_ids", len(ids))

	w.mirrorRows(ctx, rec.Rows, ids)
	return nil
}

func (w *SubmitWorker) recordFailure(ctx context.Context, machine *statemachine.SeriesFSM, groupID string, version int64, attempts int, cause error) error {
	if err := machine.Fail(ctx); err != nil {
		return err
	}
	if _, err := w.storage.UpdateSeriesStatus(ctx, storage.StatusUpdate{
		GroupID:   groupID,
		Version:   version,
		Status:    machine.Current(),
		LastError: cause.Error(),
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to mark series as failed", "group_id", groupID, "error", err)
	}

	temporary := api.IsTemporary(cause)
	level := slog.LevelWarn
	if attempts >= w.maxAttempts || !temporary {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "Series submission failed",
		"group_id", groupID,
		"attempts", attempts,
		"max_attempts", w.maxAttempts,
		"temporary", temporary,
		"error", cause)

	return fmt.Errorf("submit series %s: %w", groupID, cause)
}

func (w *SubmitWorker) mirrorRows(ctx context.Context, rows []core.Transaction, ids []string) {
	if w.mirror == nil {
		return
	}
	out := make([]core.Transaction, len(rows))
	copy(out, rows)
	for i := range out {
		if i < len(ids) {
			out[i].ID = ids[i]
		}
	}
	ref, err := w.mirror.AppendRows(ctx, out)
	if err != nil {
		slog.WarnContext(ctx, "Failed to mirror series to spreadsheet", "error", err)
		return
	}
	slog.DebugContext(ctx, "Mirrored series to spreadsheet", "sheets_ref", ref)
}

// HandleSubmitMessage processes a single submit message from AMQP
func (w *SubmitWorker) HandleSubmitMessage(ctx context.Context, msg *amqp.SeriesMessage) error {
	slog.InfoContext(ctx, "Processing submit message",
		"group_id", msg.GroupID,
		"version", msg.Version)
	return w.SubmitGroup(ctx, msg.GroupID)
}

// HandleDiscardMessage purges a discarded series from the outbox.
func (w *SubmitWorker) HandleDiscardMessage(ctx context.Context, msg *amqp.SeriesMessage) error {
	slog.InfoContext(ctx, "Processing discard message", "group_id", msg.GroupID)

	rec, err := w.storage.GetSeries(ctx, msg.GroupID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get series from storage: %w", err)
	}

	if rec.Status != storage.StatusDiscarded {
		machine := statemachine.NewSeriesFSM(rec)
		if err := machine.Discard(ctx); err != nil {
			slog.WarnContext(ctx, "Refusing to purge series", "group_id", msg.GroupID, "error", err)
			return nil
		}
	}

	if err := w.storage.DeleteSeries(ctx, msg.GroupID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete series: %w", err)
	}
	return nil
}

// ProcessPending submits series that are still waiting. This is the backup
// path for lost AMQP messages and the only path when AMQP is disabled.
func (w *SubmitWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingSeries(ctx, w.batchSize, w.maxAttempts)
	if err != nil {
		return fmt.Errorf("get pending series: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending series", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.SubmitGroup(ctx, p.GroupID); err != nil {
			slog.ErrorContext(ctx, "Failed to submit pending series", "group_id", p.GroupID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck returns series left in submitting by a crashed worker to
// pending and then processes the pending queue.
func (w *SubmitWorker) StartupSyncCheck(ctx context.Context) error {
	stuck, err := w.storage.ListSeriesByStatus(ctx, storage.StatusSubmitting, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list submitting series: %w", err)
	}

	reset := 0
	for _, s := range stuck {
		rec, err := w.storage.GetSeries(ctx, s.GroupID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load stuck series", "group_id", s.GroupID, "error", err)
			continue
		}
		machine := statemachine.NewSeriesFSM(rec)
		if err := machine.Reset(ctx); err != nil {
			continue
		}
		if _, err := w.storage.UpdateSeriesStatus(ctx, storage.StatusUpdate{
			GroupID:   rec.GroupID,
			Version:   rec.Version,
			Status:    machine.Current(),
			LastError: "interrupted submission",
		}); err != nil {
			slog.ErrorContext(ctx, "Failed to reset stuck series", "group_id", s.GroupID, "error", err)
			continue
		}
		reset++
	}

	slog.InfoContext(ctx, "Startup sync check",
		"stuck", len(stuck),
		"reset", reset)

	return w.ProcessPending(ctx)
}
