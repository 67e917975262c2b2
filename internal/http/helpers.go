package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"financas/internal/api"
	"financas/internal/core"
	"financas/internal/installments"
	applog "financas/internal/log"
	"financas/internal/services"
	"financas/internal/storage"
	appweb "financas/web"
)

var monthNames = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}

var validationErrors = []error{
	installments.ErrInvalidInput,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionLength,
	core.ErrEmptyCategory,
	core.ErrInvalidKind,
	core.ErrInvalidFrequency,
	core.ErrInvalidDay,
	core.ErrInvalidDate,
	errFormField,
	errUnknownPaymentMethod,
}

// errFormField marks a form value that could not be parsed.
var errFormField = errors.New("invalid form field")

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"brl":       formatBRL,
		"date":      formatDate,
		"monthName": monthName,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// formatBRL formats money as Brazilian reais ("R$ 1.234,56").
func formatBRL(m core.Money) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	s := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + s
	}
	return s
}

// formatDate renders a date the way the forms show it (dd/mm/yyyy).
func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

func monthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthNames[month-1]
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// userMessage maps an error to the text shown in the notification.
func userMessage(err error) string {
	switch {
	case errors.Is(err, installments.ErrInvalidInput):
		return "Número de parcelas inválido"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Valor inválido"
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrDescriptionLength):
		return "Descrição inválida"
	case errors.Is(err, core.ErrEmptyCategory):
		return "Categoria obrigatória"
	case errors.Is(err, core.ErrInvalidDate):
		return "Data inválida"
	case errors.Is(err, core.ErrInvalidFrequency):
		return "Frequência inválida"
	case errors.Is(err, errFormField):
		return "Dados inválidos: " + err.Error()
	case errors.Is(err, api.ErrTokenExpired), errors.Is(err, api.ErrUnauthorized):
		return "Sessão expirada. Faça login novamente."
	case errors.Is(err, errUnknownPaymentMethod):
		return "Forma de pagamento desconhecida"
	case errors.Is(err, errPaymentMethodsUnavailable):
		return "Não foi possível carregar as formas de pagamento. Tente novamente."
	case errors.Is(err, storage.ErrDuplicate):
		return "Esta série já foi registrada"
	case errors.Is(err, storage.ErrNotFound):
		return "Série não encontrada"
	case errors.Is(err, services.ErrNotRetryable):
		return "Esta série não pode ser reenviada"
	case errors.Is(err, services.ErrNotDiscardable):
		return "Esta série já foi enviada"
	case errors.Is(err, services.ErrSubmissionFailed):
		return "Parcelas salvas, mas o envio falhou. Tente novamente."
	default:
		return "Erro ao comunicar com o servidor"
	}
}

// statusFor maps an error to the HTTP status of the error partial.
func statusFor(err error) int {
	switch {
	case isValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotRetryable), errors.Is(err, services.ErrNotDiscardable),
		errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, services.ErrSubmissionFailed), errors.Is(err, errPaymentMethodsUnavailable):
		return http.StatusBadGateway
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) || errors.Is(err, api.ErrTokenExpired) || errors.Is(err, api.ErrUnauthorized) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail logs err and writes the HTMX error partial with a notification.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	fields := applog.NewFields()
	fields[applog.FieldStatusCode] = status
	if status >= 500 {
		applog.NewStructuredLogger(s.logger).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, fields)
	} else {
		s.logger.WarnContext(r.Context(), "Request rejected", fields.WithOperation(op).WithError(err).ToSlice()...)
	}

	msg := userMessage(err)
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorBody{Error: message}
	if err != nil && status < 500 {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}
