package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"financas/internal/core"
)

// The backend is inconsistent about field names and types across endpoints.
// The flex* types accept every shape seen in practice; the normalize*
// functions collapse fallback chains into one core value.

// flexAmount accepts 12.5, "12.50", "12,50" and "1.234,56".
type flexAmount struct {
	Value decimal.Decimal
	Set   bool
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") && strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("amount %s: %w", b, err)
	}
	a.Value, a.Set = d, true
	return nil
}

func (a flexAmount) money() core.Money {
	return core.MoneyFromDecimal(a.Value.Abs())
}

// flexString accepts strings and numbers, used for ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// flexInt accepts 7 and "7". Anything unparsable leaves it unset.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if n, err := strconv.Atoi(string(s)); err == nil {
		f.Value, f.Set = n, true
	}
	return nil
}

// flexBool accepts true, 1, "1", "true" and "sim".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "true", "1", "sim", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// flexName accepts a plain string or an object like {"id": 3, "nome": "Casa"}.
type flexName string

func (f *flexName) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Nome      string `json:"nome"`
			Name      string `json:"name"`
			Descricao string `json:"descricao"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*f = flexName(strings.TrimSpace(firstNonEmpty(obj.Nome, obj.Name, obj.Descricao)))
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexName(s)
	return nil
}

// list decodes either a bare array or an envelope object holding the array.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	for _, k := range []string{"data", "dados", "items", "results", "transacoes", "categorias", "recorrencias", "formas_pagamento"} {
		if raw, ok := env[k]; ok {
			return l.UnmarshalJSON(raw)
		}
	}
	return fmt.Errorf("no list field in response object")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func parseDate(vals ...string) core.Date {
	for _, v := range vals {
		if d, err := core.ParseDate(v); err == nil && !d.IsEmpty() {
			return d
		}
	}
	return core.Date{}
}

type rawTransaction struct {
	ID               flexString `json:"id"`
	Tipo             string     `json:"tipo"`
	Valor            flexAmount `json:"valor"`
	Data             string     `json:"data"`
	Vencimento       string     `json:"vencimento"`
	DataVencimento   string     `json:"data_vencimento"`
	Descricao        string     `json:"descricao"`
	Categoria        flexName   `json:"categoria"`
	CategoriaNome    string     `json:"categoria_nome"`
	Nome             string     `json:"nome"`
	Subcategoria     flexName   `json:"subcategoria"`
	SubcategoriaNome string     `json:"subcategoria_nome"`
	FormaPagamentoID flexString `json:"forma_pagamento_id"`
	Pago             flexBool   `json:"pago"`
	GrupoID          flexString `json:"grupo_id"`
	ParcelaAtual     flexInt    `json:"parcela_atual"`
	TotalParcelas    flexInt    `json:"total_parcelas"`
}

// parseKind defaults to expense; without a tipo, a positive signed amount is income.
func parseKind(tipo string, amount decimal.Decimal) core.Kind {
	switch strings.ToLower(strings.TrimSpace(tipo)) {
	case "receita", "entrada", "income":
		return core.Income
	case "despesa", "saida", "saída", "expense":
		return core.Expense
	case "":
		if amount.IsPositive() {
			return core.Income
		}
	}
	return core.Expense
}

func normalizeTransaction(r rawTransaction) core.Transaction {
	return core.Transaction{
		ID:              string(r.ID),
		Kind:            parseKind(r.Tipo, r.Valor.Value),
		Date:            parseDate(r.Data),
		DueDate:         parseDate(r.Vencimento, r.DataVencimento, r.Data),
		Description:     strings.TrimSpace(r.Descricao),
		Amount:          r.Valor.money(),
		Category:        firstNonEmpty(string(r.Categoria), r.CategoriaNome, r.Nome),
		Subcategory:     firstNonEmpty(string(r.Subcategoria), r.SubcategoriaNome),
		PaymentMethodID: string(r.FormaPagamentoID),
		Paid:            bool(r.Pago),
		GroupID:         string(r.GrupoID),
		Installment:     r.ParcelaAtual.Value,
		Installments:    r.TotalParcelas.Value,
	}
}

type rawCategoryTotal struct {
	Categoria        flexName   `json:"categoria"`
	CategoriaNome    string     `json:"categoria_nome"`
	Subcategoria     flexName   `json:"subcategoria"`
	SubcategoriaNome string     `json:"subcategoria_nome"`
	Nome             string     `json:"nome"`
	Total            flexAmount `json:"total"`
	Valor            flexAmount `json:"valor"`
}

// normalizeCategoryTotal reads the category name from categoria,
// categoria_nome or nome, and the amount from total or valor.
func normalizeCategoryTotal(r rawCategoryTotal) core.CategoryTotal {
	amount := r.Total
	if !amount.Set {
		amount = r.Valor
	}
	return core.CategoryTotal{
		Name:   firstNonEmpty(string(r.Categoria), r.CategoriaNome, r.Nome),
		Amount: amount.money(),
	}
}

// normalizeSubcategoryTotal prefers the subcategory fields over the category ones.
func normalizeSubcategoryTotal(r rawCategoryTotal) core.CategoryTotal {
	ct := normalizeCategoryTotal(r)
	if sub := firstNonEmpty(string(r.Subcategoria), r.SubcategoriaNome); sub != "" {
		ct.Name = sub
	}
	return ct
}

type rawRecurrence struct {
	Descricao         string     `json:"descricao"`
	Categoria         flexName   `json:"categoria"`
	CategoriaNome     string     `json:"categoria_nome"`
	Nome              string     `json:"nome"`
	ValorMedio        flexAmount `json:"valor_medio"`
	Valor             flexAmount `json:"valor"`
	Frequencia        string     `json:"frequencia"`
	Ocorrencias       flexInt    `json:"ocorrencias"`
	Quantidade        flexInt    `json:"quantidade"`
	UltimaData        string     `json:"ultima_data"`
	UltimaOcorrencia  string     `json:"ultima_ocorrencia"`
	ProximaData       string     `json:"proxima_data"`
	ProximaOcorrencia string     `json:"proxima_ocorrencia"`
}

func parseFrequency(s string) core.Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diaria", "diária", "daily":
		return core.Daily
	case "semanal", "weekly":
		return core.Weekly
	case "anual", "yearly", "annual":
		return core.Yearly
	default:
		return core.Monthly
	}
}

func frequencyParam(f core.Frequency) string {
	switch f {
	case core.Daily:
		return "diaria"
	case core.Weekly:
		return "semanal"
	case core.Yearly:
		return "anual"
	default:
		return "mensal"
	}
}

func normalizeRecurrence(r rawRecurrence) core.DetectedRecurrence {
	amount := r.ValorMedio
	if !amount.Set {
		amount = r.Valor
	}
	occ := r.Ocorrencias
	if !occ.Set {
		occ = r.Quantidade
	}
	return core.DetectedRecurrence{
		Description:   strings.TrimSpace(r.Descricao),
		Category:      firstNonEmpty(string(r.Categoria), r.CategoriaNome, r.Nome),
		AverageAmount: amount.money(),
		Frequency:     parseFrequency(r.Frequencia),
		Occurrences:   occ.Value,
		LastDate:      parseDate(r.UltimaData, r.UltimaOcorrencia),
		NextDate:      parseDate(r.ProximaData, r.ProximaOcorrencia),
	}
}

type rawPaymentMethod struct {
	ID            flexString `json:"id"`
	Nome          string     `json:"nome"`
	Descricao     string     `json:"descricao"`
	DiaVencimento flexInt    `json:"dia_vencimento"`
	Vencimento    flexInt    `json:"vencimento"`
	DiaFechamento flexInt    `json:"dia_fechamento"`
	Fechamento    flexInt    `json:"fechamento"`
}

func dayOf(vals ...flexInt) *int {
	for _, v := range vals {
		if v.Set && v.Value >= 1 && v.Value <= 31 {
			d := v.Value
			return &d
		}
	}
	return nil
}

func normalizePaymentMethod(r rawPaymentMethod) core.PaymentMethod {
	return core.PaymentMethod{
		ID:         string(r.ID),
		Name:       firstNonEmpty(r.Nome, r.Descricao),
		DueDay:     dayOf(r.DiaVencimento, r.Vencimento),
		ClosingDay: dayOf(r.DiaFechamento, r.Fechamento),
	}
}

type rawSummary struct {
	Receitas      flexAmount `json:"receitas"`
	TotalReceitas flexAmount `json:"total_receitas"`
	Despesas      flexAmount `json:"despesas"`
	TotalDespesas flexAmount `json:"total_despesas"`
	Saldo         flexAmount `json:"saldo"`
}

func pick(vals ...flexAmount) flexAmount {
	for _, v := range vals {
		if v.Set {
			return v
		}
	}
	return flexAmount{}
}

func normalizeSummary(r rawSummary, year, month int) core.MonthSummary {
	income := pick(r.Receitas, r.TotalReceitas).money()
	expenses := pick(r.Despesas, r.TotalDespesas).money()
	balance := core.Money{Cents: income.Cents - expenses.Cents}
	if r.Saldo.Set {
		balance = core.MoneyFromDecimal(r.Saldo.Value)
	}
	return core.MonthSummary{Year: year, Month: month, Income: income, Expenses: expenses, Balance: balance}
}

type rawMonthTotal struct {
	Ano           flexInt    `json:"ano"`
	Mes           flexString `json:"mes"`
	Categoria     flexName   `json:"categoria"`
	CategoriaNome string     `json:"categoria_nome"`
	Total         flexAmount `json:"total"`
	Valor         flexAmount `json:"valor"`
}

// normalizeMonthTotal accepts {"ano": 2024, "mes": 3} and {"mes": "2024-03"}.
func normalizeMonthTotal(r rawMonthTotal) (core.MonthTotal, bool) {
	year, month := r.Ano.Value, 0
	if y, m, ok := strings.Cut(string(r.Mes), "-"); ok {
		year, _ = strconv.Atoi(y)
		month, _ = strconv.Atoi(m)
	} else {
		month, _ = strconv.Atoi(string(r.Mes))
	}
	if year <= 0 || month < 1 || month > 12 {
		return core.MonthTotal{}, false
	}
	return core.MonthTotal{
		Year:     year,
		Month:    month,
		Category: firstNonEmpty(string(r.Categoria), r.CategoriaNome),
		Amount:   pick(r.Total, r.Valor).money(),
	}, true
}

// transactionRequest is the outbound row shape, also used for bulk creation.
type transactionRequest struct {
	Tipo             string      `json:"tipo"`
	Valor            json.Number `json:"valor"`
	Data             string      `json:"data"`
	Vencimento       string      `json:"vencimento,omitempty"`
	Descricao        string      `json:"descricao"`
	Categoria        string      `json:"categoria"`
	Subcategoria     string      `json:"subcategoria,omitempty"`
	FormaPagamentoID string      `json:"forma_pagamento_id,omitempty"`
	Pago             bool        `json:"pago"`
	GrupoID          string      `json:"grupo_id,omitempty"`
	ParcelaAtual     int         `json:"parcela_atual,omitempty"`
	TotalParcelas    int         `json:"total_parcelas,omitempty"`
}

func kindParam(k core.Kind) string {
	if k == core.Income {
		return "receita"
	}
	return "despesa"
}

func toRequest(t core.Transaction) transactionRequest {
	return transactionRequest{
		Tipo:             kindParam(t.Kind),
		Valor:            json.Number(t.Amount.String()),
		Data:             t.Date.String(),
		Vencimento:       t.DueDate.String(),
		Descricao:        t.Description,
		Categoria:        t.Category,
		Subcategoria:     t.Subcategory,
		FormaPagamentoID: t.PaymentMethodID,
		Pago:             t.Paid,
		GrupoID:          t.GroupID,
		ParcelaAtual:     t.Installment,
		TotalParcelas:    t.Installments,
	}
}

type recurringRequest struct {
	Tipo             string      `json:"tipo"`
	Valor            json.Number `json:"valor"`
	Descricao        string      `json:"descricao"`
	Categoria        string      `json:"categoria"`
	Subcategoria     string      `json:"subcategoria,omitempty"`
	FormaPagamentoID string      `json:"forma_pagamento_id,omitempty"`
	DataInicio       string      `json:"data_inicio"`
	DataFim          string      `json:"data_fim,omitempty"`
	Frequencia       string      `json:"frequencia"`
}

func toRecurringRequest(rt core.RecurringTemplate) recurringRequest {
	return recurringRequest{
		Tipo:             kindParam(rt.Kind),
		Valor:            json.Number(rt.Amount.String()),
		Descricao:        rt.Description,
		Categoria:        rt.Category,
		Subcategoria:     rt.Subcategory,
		FormaPagamentoID: rt.PaymentMethodID,
		DataInicio:       rt.StartDate.String(),
		DataFim:          rt.EndDate.String(),
		Frequencia:       frequencyParam(rt.Every),
	}
}
