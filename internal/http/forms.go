package http

import (
	"context"
	"errors"
	"fmt"

	"financas/internal/core"
	"financas/internal/installments"
)

const defaultRecurringPreview = 6

var (
	errUnknownPaymentMethod      = errors.New("unknown payment method")
	errPaymentMethodsUnavailable = errors.New("payment methods unavailable")
)

func parseKind(p *RequestBodyParser) core.Kind {
	if k := core.Kind(p.Get("kind")); k != "" {
		return k
	}
	return core.Expense
}

// paymentMethod resolves the card rules for a plan: explicit due_day and
// closing_day fields win, otherwise the method is looked up by id. A named
// method that cannot be resolved is an error, never a plan without card rules.
func (s *Server) paymentMethod(ctx context.Context, p *RequestBodyParser) (*core.PaymentMethod, error) {
	dueDay, err := p.OptionalDay("due_day")
	if err != nil {
		return nil, err
	}
	closingDay, err := p.OptionalDay("closing_day")
	if err != nil {
		return nil, err
	}
	if dueDay != nil || closingDay != nil {
		return &core.PaymentMethod{ID: p.Get("payment_method"), DueDay: dueDay, ClosingDay: closingDay}, nil
	}

	id := p.Get("payment_method")
	if id == "" || s.transactions == nil {
		return nil, nil
	}
	methods, err := s.transactions.PaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPaymentMethodsUnavailable, err)
	}
	for i := range methods {
		if methods[i].ID == id {
			return &methods[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errUnknownPaymentMethod, id)
}

// parsePlan reads the installment form (or its JSON twin) into a plan.
func (s *Server) parsePlan(ctx context.Context, p *RequestBodyParser) (installments.Plan, error) {
	purchase, err := p.Date("purchase_date")
	if err != nil {
		return installments.Plan{}, err
	}
	if purchase.IsZero() {
		return installments.Plan{}, fmt.Errorf("%w: purchase_date is required", core.ErrInvalidDate)
	}
	total, err := p.Money("amount")
	if err != nil {
		return installments.Plan{}, err
	}
	count, err := p.Int("installments", 1)
	if err != nil {
		return installments.Plan{}, fmt.Errorf("%w: %w", installments.ErrInvalidInput, err)
	}
	manual, err := p.Date("due_date")
	if err != nil {
		return installments.Plan{}, err
	}
	method, err := s.paymentMethod(ctx, p)
	if err != nil {
		return installments.Plan{}, err
	}

	return installments.Plan{
		PurchaseDate:       purchase,
		Total:              total,
		Count:              count,
		PaymentMethod:      method,
		ManualFirstDueDate: manual,
		Template: core.Transaction{
			Kind:            parseKind(p),
			Description:     p.Get("description"),
			Category:        p.Get("category"),
			Subcategory:     p.Get("subcategory"),
			PaymentMethodID: p.Get("payment_method"),
		},
		GroupID: p.Get("group_id"),
	}, nil
}

func parseTransaction(p *RequestBodyParser) (core.Transaction, error) {
	date, err := p.Date("date")
	if err != nil {
		return core.Transaction{}, err
	}
	due, err := p.Date("due_date")
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := p.Money("amount")
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Kind:            parseKind(p),
		Date:            date,
		DueDate:         due,
		Description:     p.Get("description"),
		Amount:          amount,
		Category:        p.Get("category"),
		Subcategory:     p.Get("subcategory"),
		PaymentMethodID: p.Get("payment_method"),
		Paid:            p.Get("paid") == "true" || p.Get("paid") == "on",
	}, nil
}

func parseRecurring(p *RequestBodyParser) (core.RecurringTemplate, error) {
	start, err := p.Date("start_date")
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	end, err := p.Date("end_date")
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	amount, err := p.Money("amount")
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	every := core.Frequency(p.Get("every"))
	if every == "" {
		every = core.Monthly
	}
	return core.RecurringTemplate{
		Kind:            parseKind(p),
		StartDate:       start,
		EndDate:         end,
		Every:           every,
		Description:     p.Get("description"),
		Amount:          amount,
		Category:        p.Get("category"),
		Subcategory:     p.Get("subcategory"),
		PaymentMethodID: p.Get("payment_method"),
	}, nil
}
