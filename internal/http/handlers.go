package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"financas/internal/core"
	"financas/internal/storage"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for name, dep := range s.checks {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_us", "gauge", "Average response time in microseconds", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Suspicious requests rejected", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))

	counts, err := s.series.StatusCounts(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Outbox counts unavailable", "error", err)
		return
	}
	fmt.Fprint(w, "# HELP outbox_series Installment series in the local outbox by status\n# TYPE outbox_series gauge\n")
	for _, status := range []string{storage.StatusPending, storage.StatusSubmitting, storage.StatusSynced, storage.StatusFailed} {
		fmt.Fprintf(w, "outbox_series{status=%q} %d\n", status, counts[status])
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := backendContext(r)
	defer cancel()

	var cats, subs []string
	if s.taxonomy != nil {
		var err error
		cats, subs, err = s.taxonomy.List(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Taxonomy list error", "error", err)
		}
	}

	var methods []core.PaymentMethod
	if s.transactions != nil {
		var err error
		methods, err = s.transactions.PaymentMethods(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Payment methods list error", "error", err)
		}
	}

	today := core.DateOf(time.Now())
	data := struct {
		Today          string
		Year           int
		Month          int
		Categories     []string
		Subcategories  []string
		PaymentMethods []core.PaymentMethod
		Frequencies    []core.Frequency
	}{
		Today:          today.String(),
		Year:           today.Year(),
		Month:          today.Month(),
		Categories:     cats,
		Subcategories:  subs,
		PaymentMethods: methods,
		Frequencies:    []core.Frequency{core.Monthly, core.Weekly, core.Yearly, core.Daily},
	}

	s.render(w, r, "index.html", data)
}
