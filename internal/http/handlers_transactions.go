package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"financas/internal/core"
	applog "financas/internal/log"
)

const maxRecurringPreview = 36

type transactionsView struct {
	Year         int
	Month        int
	Transactions []core.Transaction
	Income       core.Money
	Expenses     core.Money
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query())
	ctx, cancel := backendContext(r)
	defer cancel()

	list, err := s.transactions.List(ctx, params.Year, params.Month)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}

	view := transactionsView{Year: params.Year, Month: params.Month, Transactions: list}
	for _, t := range list {
		if t.Kind == core.Income {
			view.Income = view.Income.Add(t.Amount)
		} else {
			view.Expenses = view.Expenses.Add(t.Amount)
		}
	}
	s.render(w, r, "transactions", view)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	t, err := parseTransaction(p)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	created, err := s.transactions.Create(ctx, t)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	applog.NewStructuredLogger(s.logger).LogTransactionCreated(ctx, applog.TransactionFields{
		ID:          created.ID,
		Kind:        string(created.Kind),
		Description: created.Description,
		AmountCents: created.Amount.Cents,
		Category:    created.Category,
	})

	msg := "Despesa registrada"
	if created.Kind == core.Income {
		msg = "Receita registrada"
	}
	NewHTMXResponse().
		TriggerTransactionsChanged(created.Date.Year(), created.Date.Month()).
		TriggerOverviewRefresh(created.Date.Year(), created.Date.Month()).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ids := p.GetAll("ids")
	if len(ids) == 0 {
		UnprocessableEntityError("Nenhuma transação selecionada").
			TriggerErrorNotification("Nenhuma transação selecionada").
			Write(w)
		return
	}
	year, err := p.Int("year", 0)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	month, err := p.Int("month", 0)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	var monthDate core.Date
	if year > 0 && month >= 1 && month <= 12 {
		monthDate = core.NewDate(year, month, 1)
	}

	ctx, cancel := backendContext(r)
	defer cancel()
	if err := s.transactions.MarkPaid(ctx, ids, monthDate); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}

	b := NewHTMXResponse().TriggerSuccessNotification("Pagamento registrado")
	if !monthDate.IsZero() {
		b.TriggerTransactionsChanged(year, month)
	}
	b.Write(w)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx, cancel := backendContext(r)
	defer cancel()

	if err := s.transactions.DeleteGroup(ctx, groupID); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}

	NewHTMXResponse().
		Trigger("transactions:changed", struct{}{}).
		TriggerSuccessNotification("Parcelas removidas").
		Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	rt, err := parseRecurring(p)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	if _, err := s.transactions.CreateRecurring(ctx, rt); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewHTMXResponse().
		TriggerRecurringChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Recorrência criada").
		Write(w)
}

type recurringPreviewView struct {
	Description string
	Every       core.Frequency
	Rows        []core.Transaction
	Total       core.Money
}

func (s *Server) handleRecurringPreview(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	rt, err := parseRecurring(p)
	if err == nil {
		err = rt.Validate()
	}
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}
	count, err := p.Int("count", defaultRecurringPreview)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}
	count = max(1, min(count, maxRecurringPreview))

	series, err := s.transactions.PreviewRecurring(rt, count)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}
	s.render(w, r, "recurring_preview", recurringPreviewView{
		Description: rt.Description,
		Every:       rt.Every,
		Rows:        series.Rows,
		Total:       series.Total(),
	})
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := backendContext(r)
	defer cancel()

	if err := s.transactions.DeleteRecurring(ctx, id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().
		TriggerRecurringChanged().
		TriggerSuccessNotification("Recorrência removida").
		Write(w)
}
