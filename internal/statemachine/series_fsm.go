// Package statemachine guards the submission lifecycle of an outbox series.
package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"financas/internal/storage"
)

// Event names.
const (
	EventSubmit  = "submit"
	EventSucceed = "succeed"
	EventFail    = "fail"
	EventDiscard = "discard"
	EventReset   = "reset"
)

// SeriesFSM wraps a stored series with its state machine
type SeriesFSM struct {
	series *storage.SeriesRecord
	fsm    *fsm.FSM
}

// NewSeriesFSM creates a state machine starting at the series' stored status.
func NewSeriesFSM(series *storage.SeriesRecord) *SeriesFSM {
	sfsm := &SeriesFSM{
		series: series,
	}

	sfsm.fsm = fsm.NewFSM(
		series.Status,
		fsm.Events{
			// pending/failed → submitting
			{Name: EventSubmit, Src: []string{storage.StatusPending, storage.StatusFailed}, Dst: storage.StatusSubmitting},

			// submitting → synced
			{Name: EventSucceed, Src: []string{storage.StatusSubmitting}, Dst: storage.StatusSynced},

			// submitting → failed
			{Name: EventFail, Src: []string{storage.StatusSubmitting}, Dst: storage.StatusFailed},

			// pending/failed → discarded
			{Name: EventDiscard, Src: []string{storage.StatusPending, storage.StatusFailed}, Dst: storage.StatusDiscarded},

			// submitting → pending, for series left behind by a crashed worker
			{Name: EventReset, Src: []string{storage.StatusSubmitting}, Dst: storage.StatusPending},
		},
		fsm.Callbacks{},
	)

	return sfsm
}

func (s *SeriesFSM) fire(ctx context.Context, event string) error {
	if err := s.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("series %s cannot %s from %s: %w", s.series.GroupID, event, s.series.Status, err)
	}
	s.series.Status = s.fsm.Current()
	return nil
}

// Submit moves a pending or failed series to submitting.
func (s *SeriesFSM) Submit(ctx context.Context) error { return s.fire(ctx, EventSubmit) }

// Succeed marks a submitting series as synced.
func (s *SeriesFSM) Succeed(ctx context.Context) error { return s.fire(ctx, EventSucceed) }

// Fail marks a submitting series as failed.
func (s *SeriesFSM) Fail(ctx context.Context) error { return s.fire(ctx, EventFail) }

// Discard drops a series that was never synced.
func (s *SeriesFSM) Discard(ctx context.Context) error { return s.fire(ctx, EventDiscard) }

// Reset returns a stuck submitting series to pending.
func (s *SeriesFSM) Reset(ctx context.Context) error { return s.fire(ctx, EventReset) }

// Current returns the current state
func (s *SeriesFSM) Current() string {
	return s.fsm.Current()
}

// Can checks if a transition is possible
func (s *SeriesFSM) Can(event string) bool {
	return s.fsm.Can(event)
}
