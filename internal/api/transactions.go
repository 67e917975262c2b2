package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"financas/internal/core"
)

func monthQuery(year, month int) url.Values {
	q := url.Values{}
	q.Set("ano", strconv.Itoa(year))
	q.Set("mes", strconv.Itoa(month))
	return q
}

// ListTransactions returns the transactions of one month.
func (c *Client) ListTransactions(ctx context.Context, year, month int) ([]core.Transaction, error) {
	var raw list[rawTransaction]
	if err := c.do(ctx, http.MethodGet, "/transacoes", monthQuery(year, month), nil, &raw); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, len(raw))
	for i, r := range raw {
		out[i] = normalizeTransaction(r)
	}
	return out, nil
}

// CreateTransaction stores a single row and returns it as the backend saw it.
func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var raw rawTransaction
	if err := c.do(ctx, http.MethodPost, "/transacoes", nil, toRequest(t), &raw); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	created := normalizeTransaction(raw)
	if created.ID == "" {
		return t, nil
	}
	return created, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/transacoes/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

type bulkRequest struct {
	Transacoes []transactionRequest `json:"transacoes"`
}

// BulkCreate posts an installment series as independent rows sharing a
// group id. It returns the ids assigned by the backend in row order; the
// slice is empty when the backend does not echo the created rows.
func (c *Client) BulkCreate(ctx context.Context, rows []core.Transaction) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	req := bulkRequest{Transacoes: make([]transactionRequest, len(rows))}
	for i, r := range rows {
		req.Transacoes[i] = toRequest(r)
	}

	var raw list[rawTransaction]
	if err := c.do(ctx, http.MethodPost, "/transacoes/lote", nil, req, &raw); err != nil {
		return nil, fmt.Errorf("bulk create %d rows: %w", len(rows), err)
	}
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		if r.ID != "" {
			ids = append(ids, string(r.ID))
		}
	}
	return ids, nil
}

// DeleteGroup removes every row sharing groupID.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	if err := c.do(ctx, http.MethodDelete, "/transacoes/grupo/"+url.PathEscape(groupID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete group %s: %w", groupID, err)
	}
	return nil
}

type markPaidRequest struct {
	IDs []string `json:"ids"`
}

// MarkPaid flags the given transactions as paid in one call.
func (c *Client) MarkPaid(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/transacoes/marcar-pagas", nil, markPaidRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("mark %d transactions paid: %w", len(ids), err)
	}
	return nil
}

// CreateRecurring registers a recurring transaction and returns its id.
func (c *Client) CreateRecurring(ctx context.Context, rt core.RecurringTemplate) (string, error) {
	var raw struct {
		ID flexString `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/recorrentes", nil, toRecurringRequest(rt), &raw); err != nil {
		return "", fmt.Errorf("create recurring: %w", err)
	}
	return string(raw.ID), nil
}

func (c *Client) DeleteRecurring(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/recorrentes/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete recurring %s: %w", id, err)
	}
	return nil
}

// ListPaymentMethods returns cards and accounts with their billing cycle.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	var raw list[rawPaymentMethod]
	if err := c.do(ctx, http.MethodGet, "/formas-pagamento", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	out := make([]core.PaymentMethod, len(raw))
	for i, r := range raw {
		out[i] = normalizePaymentMethod(r)
	}
	return out, nil
}
