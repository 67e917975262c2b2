package http

import (
	"net/http"

	"financas/internal/analytics"
	"financas/internal/core"
	applog "financas/internal/log"
)

const categoriesTopN = 8

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query())
	ctx, cancel := backendContext(r)
	defer cancel()

	d, err := s.analytics.Dashboard(ctx, params.Year, params.Month)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	s.render(w, r, "dashboard", d)
}

func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query())
	ctx, cancel := backendContext(r)
	defer cancel()

	summary, err := s.analytics.MonthlySummary(ctx, params.Year, params.Month)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	prev := params.Date().AddMonths(-1)
	next := params.Date().AddMonths(1)
	s.render(w, r, "month_overview", struct {
		core.MonthSummary
		Prev core.Date
		Next core.Date
	}{summary, prev, next})
}

type categoriesView struct {
	Year     int
	Month    int
	Category string
	Slices   []analytics.Slice
}

// handleCategories renders the category distribution, or the subcategory
// distribution of one category when ?category= is set.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query())
	category := sanitizeInput(r.URL.Query().Get("category"))
	ctx, cancel := backendContext(r)
	defer cancel()

	var (
		totals []core.CategoryTotal
		err    error
	)
	if category != "" {
		totals, err = s.analytics.SubcategoryBreakdown(ctx, category, params.Year, params.Month)
	} else {
		totals, err = s.analytics.CategoryBreakdown(ctx, params.Year, params.Month)
	}
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	s.render(w, r, "categories", categoriesView{
		Year:     params.Year,
		Month:    params.Month,
		Category: category,
		Slices:   analytics.Distribution(totals, categoriesTopN),
	})
}

func (s *Server) handleRecurrences(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := backendContext(r)
	defer cancel()

	recs, err := s.analytics.RecurrenceReport(ctx)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	s.render(w, r, "recurrences", recs)
}
