package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"financas/internal/core"
	"financas/internal/installments"
	"financas/internal/statemachine"
	"financas/internal/storage"
)

var (
	// ErrSubmissionFailed means the series was saved locally but the backend
	// rejected or could not receive it. The series can be retried.
	ErrSubmissionFailed = errors.New("series submission failed")
	// ErrNotRetryable is returned when the series is in a state that cannot be submitted.
	ErrNotRetryable = errors.New("series cannot be retried")
	// ErrNotDiscardable is returned for series that were already synced.
	ErrNotDiscardable = errors.New("series cannot be discarded")
)

// Publisher queues outbox series for the worker.
type Publisher interface {
	PublishSeriesSubmit(ctx context.Context, groupID string, version int64) error
	PublishSeriesDiscard(ctx context.Context, groupID string, version int64) error
}

// Submitter sends a stored series to the backend synchronously.
type Submitter interface {
	SubmitGroup(ctx context.Context, groupID string) error
}

// Confirmation is the outcome of confirming a plan.
type Confirmation struct {
	Records []installments.Record
	Series  core.Series
	// Queued is true when the series was handed to the worker queue.
	Queued bool
}

// SeriesService orchestrates installment series across the outbox, AMQP and the backend.
type SeriesService struct {
	storage   *storage.SQLiteRepository
	publisher Publisher
	submitter Submitter
	onSynced  func(ctx context.Context, s core.Series)
}

// NewSeriesService wires the service. When publisher is nil the series is
// submitted inline through submitter.
func NewSeriesService(storage *storage.SQLiteRepository, publisher Publisher, submitter Submitter) *SeriesService {
	return &SeriesService{
		storage:   storage,
		publisher: publisher,
		submitter: submitter,
	}
}

// OnSynced registers a callback run after an inline submission succeeds.
func (s *SeriesService) OnSynced(fn func(ctx context.Context, series core.Series)) {
	s.onSynced = fn
}

// Preview generates the records without storing anything.
func (s *SeriesService) Preview(ctx context.Context, plan installments.Plan) ([]installments.Record, error) {
	records, err := installments.Generate(plan)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Installments previewed",
		"installments", len(records),
		"group_id", records[0].GroupID)
	return records, nil
}

// Confirm generates the series, stores it in the outbox and hands it over
// for submission. Storage errors abort; submission errors are wrapped in
// ErrSubmissionFailed and leave the series stored for a retry.
func (s *SeriesService) Confirm(ctx context.Context, plan installments.Plan) (Confirmation, error) {
	records, err := installments.Generate(plan)
	if err != nil {
		return Confirmation{}, err
	}
	for _, r := range installments.Rows(records) {
		if err := r.Validate(); err != nil {
			return Confirmation{}, fmt.Errorf("%w: %w", installments.ErrInvalidInput, err)
		}
	}

	series := core.Series{GroupID: records[0].GroupID, Rows: installments.Rows(records)}
	if err := s.storage.SaveSeries(ctx, series); err != nil {
		return Confirmation{}, fmt.Errorf("save series: %w", err)
	}

	result := Confirmation{Records: records, Series: series}
	queued, err := s.dispatch(ctx, series, 1)
	result.Queued = queued
	return result, err
}

// Retry resubmits a pending or failed series without regenerating it.
func (s *SeriesService) Retry(ctx context.Context, groupID string) (bool, error) {
	rec, err := s.storage.GetSeries(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("get series: %w", err)
	}
	if !statemachine.NewSeriesFSM(rec).Can(statemachine.EventSubmit) {
		return false, fmt.Errorf("%w: status %s", ErrNotRetryable, rec.Status)
	}

	slog.InfoContext(ctx, "Retrying series",
		"group_id", groupID,
		"attempts", rec.Attempts)
	return s.dispatch(ctx, rec.Series(), rec.Version)
}

// Discard drops a series that never reached the backend.
func (s *SeriesService) Discard(ctx context.Context, groupID string) error {
	rec, err := s.storage.GetSeries(ctx, groupID)
	if err != nil {
		return fmt.Errorf("get series: %w", err)
	}

	machine := statemachine.NewSeriesFSM(rec)
	if !machine.Can(statemachine.EventDiscard) {
		return fmt.Errorf("%w: status %s", ErrNotDiscardable, rec.Status)
	}
	if err := machine.Discard(ctx); err != nil {
		return err
	}
	version, err := s.storage.UpdateSeriesStatus(ctx, storage.StatusUpdate{
		GroupID: groupID,
		Version: rec.Version,
		Status:  machine.Current(),
	})
	if err != nil {
		return fmt.Errorf("discard series: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSeriesDiscard(ctx, groupID, version); err != nil {
			slog.ErrorContext(ctx, "Failed to publish discard message",
				"group_id", groupID, "error", err)
			// Discarded series stay hidden; the purge is best-effort.
		}
	}

	slog.InfoContext(ctx, "Series discarded", "group_id", groupID)
	return nil
}

// Recent lists the latest series in the outbox.
func (s *SeriesService) Recent(ctx context.Context, limit int) ([]storage.SeriesRecord, error) {
	return s.storage.ListRecentSeries(ctx, limit)
}

// StatusCounts returns how many outbox series are in each status.
func (s *SeriesService) StatusCounts(ctx context.Context) (map[string]int, error) {
	return s.storage.CountByStatus(ctx)
}

// dispatch publishes the series or, without AMQP or when publishing fails,
// submits it inline.
func (s *SeriesService) dispatch(ctx context.Context, series core.Series, version int64) (bool, error) {
	if s.publisher != nil {
		err := s.publisher.PublishSeriesSubmit(ctx, series.GroupID, version)
		if err == nil {
			return true, nil
		}
		slog.ErrorContext(ctx, "Failed to publish submit message",
			"group_id", series.GroupID, "error", err)
	}

	if s.submitter == nil {
		slog.WarnContext(ctx, "No submitter available, series left for the sweeper",
			"group_id", series.GroupID)
		return true, nil
	}

	if err := s.submitter.SubmitGroup(ctx, series.GroupID); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if s.onSynced != nil {
		s.onSynced(ctx, series)
	}
	return false, nil
}
