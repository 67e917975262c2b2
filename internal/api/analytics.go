package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"financas/internal/core"
)

func (c *Client) MonthlySummary(ctx context.Context, year, month int) (core.MonthSummary, error) {
	var raw rawSummary
	if err := c.do(ctx, http.MethodGet, "/resumo-mensal", monthQuery(year, month), nil, &raw); err != nil {
		return core.MonthSummary{}, fmt.Errorf("monthly summary %d-%02d: %w", year, month, err)
	}
	return normalizeSummary(raw, year, month), nil
}

// CategoryBreakdown returns expense totals per category for one month.
func (c *Client) CategoryBreakdown(ctx context.Context, year, month int) ([]core.CategoryTotal, error) {
	var raw list[rawCategoryTotal]
	if err := c.do(ctx, http.MethodGet, "/analytics/categorias", monthQuery(year, month), nil, &raw); err != nil {
		return nil, fmt.Errorf("category breakdown %d-%02d: %w", year, month, err)
	}
	out := make([]core.CategoryTotal, len(raw))
	for i, r := range raw {
		out[i] = normalizeCategoryTotal(r)
	}
	return out, nil
}

// SubcategoryBreakdown returns totals per subcategory of one category.
func (c *Client) SubcategoryBreakdown(ctx context.Context, category string, year, month int) ([]core.CategoryTotal, error) {
	q := monthQuery(year, month)
	q.Set("categoria", category)

	var raw list[rawCategoryTotal]
	if err := c.do(ctx, http.MethodGet, "/analytics/subcategorias", q, nil, &raw); err != nil {
		return nil, fmt.Errorf("subcategory breakdown %q: %w", category, err)
	}
	out := make([]core.CategoryTotal, len(raw))
	for i, r := range raw {
		out[i] = normalizeSubcategoryTotal(r)
	}
	return out, nil
}

// RecurrenceReport lists the recurring payments detected by the backend.
func (c *Client) RecurrenceReport(ctx context.Context) ([]core.DetectedRecurrence, error) {
	var raw list[rawRecurrence]
	if err := c.do(ctx, http.MethodGet, "/analytics/recorrencias", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("recurrence report: %w", err)
	}
	out := make([]core.DetectedRecurrence, len(raw))
	for i, r := range raw {
		out[i] = normalizeRecurrence(r)
	}
	return out, nil
}

// MonthlyTotals returns expense totals per month and category for the last
// months months. Entries with an unreadable month are dropped.
func (c *Client) MonthlyTotals(ctx context.Context, months int) ([]core.MonthTotal, error) {
	q := url.Values{}
	q.Set("meses", strconv.Itoa(months))

	var raw list[rawMonthTotal]
	if err := c.do(ctx, http.MethodGet, "/analytics/tendencia-categorias", q, nil, &raw); err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	out := make([]core.MonthTotal, 0, len(raw))
	for _, r := range raw {
		if mt, ok := normalizeMonthTotal(r); ok {
			out = append(out, mt)
		}
	}
	return out, nil
}
