package http

import (
	"fmt"
	"net/http"
	"strconv"

	"financas/internal/core"
	"financas/internal/export"
	"financas/internal/installments"
	applog "financas/internal/log"
)

// installmentRow is one line of the preview table.
type installmentRow struct {
	Label           string
	InstallmentDate core.Date
	DueDate         core.Date
	Amount          core.Money
}

type installmentsView struct {
	GroupID     string
	Description string
	Count       int
	Rows        []installmentRow
	Total       core.Money
	// Fields echoes the submitted form so the preview can be confirmed or exported as-is.
	Fields map[string]string
}

var planFields = []string{"kind", "description", "amount", "installments", "purchase_date", "due_date",
	"payment_method", "due_day", "closing_day", "category", "subcategory"}

// newInstallmentsView builds the preview. The echoed fields carry the group id
// and the resolved card days, so confirming regenerates the same schedule
// without looking the payment method up again.
func newInstallmentsView(records []installments.Record, p *RequestBodyParser, method *core.PaymentMethod) installmentsView {
	view := installmentsView{
		GroupID:     records[0].GroupID,
		Description: records[0].Template.Description,
		Count:       len(records),
		Fields:      make(map[string]string, len(planFields)),
	}
	for _, rec := range records {
		view.Rows = append(view.Rows, installmentRow{
			Label:           strconv.Itoa(rec.SequenceIndex) + "/" + strconv.Itoa(rec.TotalInstallments),
			InstallmentDate: rec.InstallmentDate,
			DueDate:         rec.DueDate,
			Amount:          rec.Amount,
		})
		view.Total = view.Total.Add(rec.Amount)
	}
	for _, f := range planFields {
		if v := p.Get(f); v != "" {
			view.Fields[f] = v
		}
	}
	view.Fields["group_id"] = view.GroupID
	if method.HasBillingCycle() {
		view.Fields["due_day"] = strconv.Itoa(*method.DueDay)
		if method.ClosingDay != nil {
			view.Fields["closing_day"] = strconv.Itoa(*method.ClosingDay)
		}
	}
	return view
}

// handleInstallmentsPreview renders the generated schedule without storing it.
func (s *Server) handleInstallmentsPreview(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	plan, err := s.parsePlan(ctx, p)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}
	records, err := s.series.Preview(ctx, plan)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}

	s.render(w, r, "installments_preview", newInstallmentsView(records, p, plan.PaymentMethod))
}

// handleInstallmentsConfirm generates, stores and submits the series.
func (s *Server) handleInstallmentsConfirm(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	plan, err := s.parsePlan(ctx, p)
	if err != nil {
		s.fail(w, r, applog.OpConfirm, err)
		return
	}
	result, err := s.series.Confirm(ctx, plan)
	if err != nil {
		s.fail(w, r, applog.OpConfirm, err)
		if result.Series.GroupID != "" {
			s.logger.InfoContext(ctx, "Series kept in outbox for retry",
				applog.FieldGroupID, result.Series.GroupID)
		}
		return
	}

	applog.NewStructuredLogger(s.logger).LogSeriesConfirmed(ctx,
		result.Series.GroupID, len(result.Records), plan.Total.Cents, result.Queued)

	first := result.Records[0].InstallmentDate
	msg := fmt.Sprintf("%d parcelas registradas", len(result.Records))
	if result.Queued {
		msg = fmt.Sprintf("%d parcelas enviadas para processamento", len(result.Records))
	}
	view := newInstallmentsView(result.Records, p, plan.PaymentMethod)

	b := NewHTMXResponse().
		TriggerSeriesConfirmed(result.Series.GroupID, len(result.Records)).
		TriggerSeriesChanged().
		TriggerFormReset().
		TriggerSuccessNotification(msg)
	if !result.Queued {
		b.TriggerTransactionsChanged(first.Year(), first.Month())
	}
	b.Header("Content-Type", "text/html; charset=utf-8")
	s.renderWith(w, r, b, "installments_confirmed", view)
}

// handleInstallmentsExport regenerates the schedule and returns it as a file.
func (s *Server) handleInstallmentsExport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	plan, err := s.parsePlan(ctx, p)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}
	records, err := s.series.Preview(ctx, plan)
	if err != nil {
		s.fail(w, r, applog.OpPreview, err)
		return
	}

	var (
		data        []byte
		name        string
		contentType string
	)
	switch p.Get("format") {
	case "csv":
		data, name, err = export.InstallmentsCSV(records)
		contentType = "text/csv; charset=utf-8"
	default:
		data, name, err = export.InstallmentsXLSX(records)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		s.logger.WithComponent(applog.ComponentExport).ErrorContext(ctx, "Export failed",
			applog.FieldError, err)
		InternalServerError("Erro ao gerar arquivo").Write(w)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type apiInstallment struct {
	Sequence        int    `json:"sequence"`
	Total           int    `json:"total_installments"`
	InstallmentDate string `json:"installment_date"`
	DueDate         string `json:"due_date"`
	Amount          string `json:"amount"`
}

type apiPreview struct {
	GroupID      string           `json:"group_id"`
	Total        string           `json:"total"`
	Installments []apiInstallment `json:"installments"`
}

// handleAPIInstallmentsPreview is the JSON variant of the preview.
func (s *Server) handleAPIInstallmentsPreview(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil || !p.IsJSON() {
		writeError(w, http.StatusBadRequest, "body must be a JSON object", err)
		return
	}
	ctx, cancel := backendContext(r)
	defer cancel()

	plan, err := s.parsePlan(ctx, p)
	if err == nil {
		var records []installments.Record
		records, err = s.series.Preview(ctx, plan)
		if err == nil {
			writeJSON(w, http.StatusOK, toAPIPreview(records))
			return
		}
	}
	writeError(w, statusFor(err), userMessage(err), err)
}

func toAPIPreview(records []installments.Record) apiPreview {
	out := apiPreview{GroupID: records[0].GroupID, Installments: make([]apiInstallment, len(records))}
	var total core.Money
	for i, rec := range records {
		out.Installments[i] = apiInstallment{
			Sequence:        rec.SequenceIndex,
			Total:           rec.TotalInstallments,
			InstallmentDate: rec.InstallmentDate.String(),
			DueDate:         rec.DueDate.String(),
			Amount:          rec.Amount.String(),
		}
		total = total.Add(rec.Amount)
	}
	out.Total = total.String()
	return out
}
