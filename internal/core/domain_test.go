package core

import (
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Kind:        Expense,
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      Money{Cents: 100},
		Category:    "Casa",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Kind: Expense, Date: Date{}, Description: "a", Amount: Money{Cents: 1}, Category: "c"}, // zero date
		{Kind: Expense, Date: NewDate(2025, 1, 1), Description: "", Amount: Money{Cents: 1}, Category: "c"},
		{Kind: Expense, Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 0}, Category: "c"},
		{Kind: Expense, Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Category: " "},
		{Kind: "transfer", Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Category: "c"},
		{Kind: Income, Date: NewDate(2025, 1, 1), Description: strings.Repeat("x", 201), Amount: Money{Cents: 1}, Category: "c"},
	}
	for i, tr := range bads {
		if err := tr.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRecurringTemplateValidate(t *testing.T) {
	good := RecurringTemplate{
		Kind:        Expense,
		StartDate:   NewDate(2025, 1, 31),
		Every:       Monthly,
		Description: "Aluguel",
		Amount:      Money{Cents: 150000},
		Category:    "Casa",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	endBefore := good
	endBefore.EndDate = NewDate(2024, 12, 1)
	if err := endBefore.Validate(); err == nil {
		t.Fatalf("expected error for end date before start date")
	}

	badFreq := good
	badFreq.Every = "fortnightly"
	if err := badFreq.Validate(); err != ErrInvalidFrequency {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestPaymentMethodValidate(t *testing.T) {
	day := func(d int) *int { return &d }

	if err := (PaymentMethod{}).Validate(); err != nil {
		t.Fatalf("method without cycle should be valid, got %v", err)
	}
	if err := (PaymentMethod{DueDay: day(10), ClosingDay: day(3)}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (PaymentMethod{DueDay: day(32)}).Validate(); err != ErrInvalidDay {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
	if err := (PaymentMethod{DueDay: day(10), ClosingDay: day(0)}).Validate(); err != ErrInvalidDay {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}

	var none *PaymentMethod
	if none.HasBillingCycle() {
		t.Fatalf("nil method has no billing cycle")
	}
}

func TestSeriesTotal(t *testing.T) {
	s := Series{Rows: []Transaction{{Amount: Money{Cents: 3333}}, {Amount: Money{Cents: 3333}}, {Amount: Money{Cents: 3333}}}}
	if got := s.Total().Cents; got != 9999 {
		t.Fatalf("expected 9999, got %d", got)
	}
}
