package services

import (
	"context"
	"fmt"
	"log/slog"

	"financas/internal/core"
	"financas/internal/recurrence"
)

// Ledger is the part of the backend that stores transactions.
type Ledger interface {
	ListTransactions(ctx context.Context, year, month int) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	DeleteGroup(ctx context.Context, groupID string) error
	MarkPaid(ctx context.Context, ids []string) error
	CreateRecurring(ctx context.Context, rt core.RecurringTemplate) (string, error)
	DeleteRecurring(ctx context.Context, id string) error
	ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error)
}

// Invalidator drops cached analytics for a month.
type Invalidator interface {
	Invalidate(year, month int)
}

// TransactionService writes single transactions and recurring templates and
// keeps the analytics cache consistent with them.
type TransactionService struct {
	ledger Ledger
	cache  Invalidator
}

func NewTransactionService(ledger Ledger, cache Invalidator) *TransactionService {
	return &TransactionService{ledger: ledger, cache: cache}
}

func (s *TransactionService) invalidate(dates ...core.Date) {
	if s.cache == nil {
		return
	}
	for _, d := range dates {
		if !d.IsZero() {
			s.cache.Invalidate(d.Year(), d.Month())
		}
	}
}

func (s *TransactionService) List(ctx context.Context, year, month int) ([]core.Transaction, error) {
	return s.ledger.ListTransactions(ctx, year, month)
}

// Create validates and stores a single transaction.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.ledger.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.invalidate(t.Date)
	return created, nil
}

// Delete removes a transaction; month is used for cache invalidation.
func (s *TransactionService) Delete(ctx context.Context, id string, month core.Date) error {
	if err := s.ledger.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.invalidate(month)
	return nil
}

// DeleteGroup removes every row of an installment series from the backend.
func (s *TransactionService) DeleteGroup(ctx context.Context, groupID string) error {
	if err := s.ledger.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	s.InvalidateAll()
	slog.InfoContext(ctx, "Installment group deleted", "group_id", groupID)
	return nil
}

// MarkPaid flags the given transactions as paid.
func (s *TransactionService) MarkPaid(ctx context.Context, ids []string, month core.Date) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ledger.MarkPaid(ctx, ids); err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	s.invalidate(month)
	return nil
}

// CreateRecurring validates and stores a recurring template.
func (s *TransactionService) CreateRecurring(ctx context.Context, rt core.RecurringTemplate) (string, error) {
	if err := rt.Validate(); err != nil {
		return "", err
	}
	id, err := s.ledger.CreateRecurring(ctx, rt)
	if err != nil {
		return "", fmt.Errorf("create recurring: %w", err)
	}
	s.InvalidateAll()
	slog.InfoContext(ctx, "Recurring template created",
		"id", id,
		"description", rt.Description,
		"frequency", rt.Every)
	return id, nil
}

// PreviewRecurring lists the next count occurrences of a template.
func (s *TransactionService) PreviewRecurring(rt core.RecurringTemplate, count int) (core.Series, error) {
	return recurrence.Expand(rt, count)
}

func (s *TransactionService) DeleteRecurring(ctx context.Context, id string) error {
	if err := s.ledger.DeleteRecurring(ctx, id); err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	s.InvalidateAll()
	return nil
}

func (s *TransactionService) PaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	return s.ledger.ListPaymentMethods(ctx)
}

// InvalidateAll drops every cached month, used when a write spans months.
func (s *TransactionService) InvalidateAll() {
	if all, ok := s.cache.(interface{ InvalidateAll() }); ok {
		all.InvalidateAll()
	}
}

// InvalidateSeries drops the months touched by a series.
func (s *TransactionService) InvalidateSeries(_ context.Context, series core.Series) {
	for _, r := range series.Rows {
		s.invalidate(r.Date, r.DueDate)
	}
}
