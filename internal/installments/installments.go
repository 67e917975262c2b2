// Package installments splits a purchase into a monthly series of
// equal-amount transactions with card-aware due dates.
package installments

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"financas/internal/core"
)

// ErrInvalidInput is returned when the plan cannot produce a series.
var ErrInvalidInput = errors.New("invalid installment input")

// Plan is the input of a single generation.
type Plan struct {
	PurchaseDate core.Date
	Total        core.Money
	Count        int

	// PaymentMethod is optional. A method without DueDay behaves like no method.
	PaymentMethod *core.PaymentMethod

	// ManualFirstDueDate holds the due-date form field. Zero when empty.
	ManualFirstDueDate core.Date

	// Template fields (kind, description, category...) are copied onto every record.
	Template core.Transaction

	// GroupID reuses the id of an earlier preview. Empty draws a new one.
	GroupID string
}

// Record is one installment of a generated series.
type Record struct {
	SequenceIndex     int
	TotalInstallments int
	InstallmentDate   core.Date
	DueDate           core.Date
	Amount            core.Money
	GroupID           string
	Template          core.Transaction
}

// Row turns the record into the transaction row sent to the backend.
func (r Record) Row() core.Transaction {
	row := r.Template
	row.ID = ""
	row.Date = r.InstallmentDate
	row.DueDate = r.DueDate
	row.Amount = r.Amount
	row.GroupID = r.GroupID
	row.Installment = r.SequenceIndex
	row.Installments = r.TotalInstallments
	return row
}

// Rows converts a generated series into backend rows.
func Rows(records []Record) []core.Transaction {
	rows := make([]core.Transaction, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return rows
}

// Generate builds the installment series for plan. Each call draws a new
// group id unless the plan carries one.
func Generate(plan Plan) ([]Record, error) {
	if plan.Count <= 0 {
		return nil, fmt.Errorf("%w: installment count must be positive, got %d", ErrInvalidInput, plan.Count)
	}
	groupID := plan.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	} else if _, err := uuid.Parse(groupID); err != nil {
		return nil, fmt.Errorf("%w: group id %q is not a UUID", ErrInvalidInput, groupID)
	}

	dueDate := dueDateRule(plan)
	amount := plan.Total.DivideEvenly(plan.Count)

	records := make([]Record, plan.Count)
	for i := 1; i <= plan.Count; i++ {
		records[i-1] = Record{
			SequenceIndex:     i,
			TotalInstallments: plan.Count,
			InstallmentDate:   plan.PurchaseDate.AddMonths(i - 1),
			DueDate:           dueDate(i),
			Amount:            amount,
			GroupID:           groupID,
			Template:          plan.Template,
		}
	}
	return records, nil
}

// AutomaticFirstDueDate returns the due date the card billing cycle assigns to
// the first installment, or false when the plan has no due day configured.
// Forms use it to prefill the due-date field.
func AutomaticFirstDueDate(plan Plan) (core.Date, bool) {
	if !plan.PaymentMethod.HasBillingCycle() {
		return core.Date{}, false
	}
	return cardDueDate(plan, 1), true
}

// dueDateRule picks the due-date strategy for the whole series.
func dueDateRule(plan Plan) func(i int) core.Date {
	auto, hasCycle := AutomaticFirstDueDate(plan)

	manual := plan.ManualFirstDueDate
	if !manual.IsEmpty() && (!hasCycle || !manual.ShiftWeekend().Equal(auto)) {
		return anchoredRule(manual)
	}
	if !hasCycle {
		return anchoredRule(plan.PurchaseDate)
	}
	return func(i int) core.Date { return cardDueDate(plan, i) }
}

// anchoredRule shifts the anchor off the weekend once and derives later
// months from the shifted anchor. Derived dates are shifted again so that no
// due date lands on a weekend.
func anchoredRule(anchor core.Date) func(i int) core.Date {
	first := anchor.ShiftWeekend()
	return func(i int) core.Date {
		if i == 1 {
			return first
		}
		return first.AddMonths(i - 1).ShiftWeekend()
	}
}

func cardDueDate(plan Plan, i int) core.Date {
	pm := plan.PaymentMethod
	year, month := plan.PurchaseDate.Year(), plan.PurchaseDate.Month()
	if pm.ClosingDay != nil && plan.PurchaseDate.Day() > *pm.ClosingDay {
		month++
	}
	return core.ClampDay(year, month+i-1, *pm.DueDay).ShiftWeekend()
}
