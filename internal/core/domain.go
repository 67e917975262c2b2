package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

const maxDescriptionLength = 200

type (
	// Kind distinguishes expenses from income.
	Kind string

	// Frequency is the repetition period of a recurring transaction.
	Frequency string

	Money struct {
		Cents int64
	}

	// PaymentMethod is a card or account the user pays with. DueDay and
	// ClosingDay are nil when the method has no billing cycle.
	PaymentMethod struct {
		ID         string
		Name       string
		DueDay     *int
		ClosingDay *int
	}

	// Transaction is a single expense or income row as the backend stores it.
	// Installment rows share GroupID and carry their position in
	// Installment/Installments; plain rows leave those zero.
	Transaction struct {
		ID              string
		Kind            Kind
		Date            Date
		DueDate         Date
		Description     string
		Amount          Money
		Category        string
		Subcategory     string
		PaymentMethodID string
		Paid            bool
		GroupID         string
		Installment     int
		Installments    int
	}

	// RecurringTemplate describes a transaction that repeats every period
	// from StartDate until EndDate (zero means open-ended).
	RecurringTemplate struct {
		ID              string
		Kind            Kind
		StartDate       Date
		EndDate         Date
		Every           Frequency
		Description     string
		Amount          Money
		Category        string
		Subcategory     string
		PaymentMethodID string
	}

	// Series is a group of rows generated by one user action.
	Series struct {
		GroupID string
		Rows    []Transaction
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrDescriptionLength = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	ErrEmptyCategory     = errors.New("empty category")
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrInvalidFrequency  = errors.New("invalid repetition type")
	ErrInvalidDay        = errors.New("invalid day")
)

func (k Kind) IsValid() bool {
	return k == Expense || k == Income
}

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// HasBillingCycle reports whether due dates follow the card's due day.
func (p *PaymentMethod) HasBillingCycle() bool {
	return p != nil && p.DueDay != nil
}

func (p PaymentMethod) Validate() error {
	for _, day := range []*int{p.DueDay, p.ClosingDay} {
		if day != nil && (*day < 1 || *day > 31) {
			return ErrInvalidDay
		}
	}
	return nil
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return ErrEmptyDescription
	}
	if len(desc) > maxDescriptionLength {
		return ErrDescriptionLength
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// IsInstallment reports whether the row belongs to an installment series.
func (t Transaction) IsInstallment() bool {
	return t.GroupID != "" && t.Installments > 1
}

func (rt RecurringTemplate) Validate() error {
	if !rt.Kind.IsValid() {
		return ErrInvalidKind
	}
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("%w: start date: %v", ErrInvalidDate, err)
	}

	if !rt.EndDate.IsZero() && rt.EndDate.Before(rt.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidDate)
	}

	if !rt.Every.IsValid() {
		return ErrInvalidFrequency
	}
	if err := validateDescription(rt.Description); err != nil {
		return err
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(rt.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Total sums the amounts of every row in the series.
func (s Series) Total() Money {
	var total Money
	for _, r := range s.Rows {
		total = total.Add(r.Amount)
	}
	return total
}
