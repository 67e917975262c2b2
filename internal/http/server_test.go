package http

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"financas/internal/core"
	"financas/internal/services"
	"financas/internal/storage"
	"financas/internal/worker"
)

type fakeTax struct{ cats, subs []string }

func (f fakeTax) List(ctx context.Context) ([]string, []string, error) { return f.cats, f.subs, nil }

type fakeBackend struct {
	mu  sync.Mutex
	err error
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBackend) BulkCreate(_ context.Context, rows []core.Transaction) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = "remote-" + rows[i].GroupID
	}
	return ids, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	created   []core.Transaction
	paid      []string
	groups    []string
	methodErr error
}

func (f *fakeLedger) failPaymentMethods(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methodErr = err
}

func (f *fakeLedger) ListTransactions(_ context.Context, year, month int) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Transaction(nil), f.created...), nil
}

func (f *fakeLedger) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = "tx-1"
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeLedger) DeleteTransaction(context.Context, string) error { return nil }

func (f *fakeLedger) DeleteGroup(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, groupID)
	return nil
}

func (f *fakeLedger) MarkPaid(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, ids...)
	return nil
}

func (f *fakeLedger) CreateRecurring(context.Context, core.RecurringTemplate) (string, error) {
	return "rec-1", nil
}

func (f *fakeLedger) DeleteRecurring(context.Context, string) error { return nil }

func (f *fakeLedger) ListPaymentMethods(context.Context) ([]core.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.methodErr != nil {
		return nil, f.methodErr
	}
	due, closing := 15, 5
	return []core.PaymentMethod{{ID: "card", Name: "Cartão", DueDay: &due, ClosingDay: &closing}}, nil
}

type fakeAnalytics struct{}

func (fakeAnalytics) MonthlySummary(_ context.Context, year, month int) (core.MonthSummary, error) {
	return core.MonthSummary{Year: year, Month: month,
		Income: core.Money{Cents: 500000}, Expenses: core.Money{Cents: 123456}, Balance: core.Money{Cents: 376544}}, nil
}

func (fakeAnalytics) CategoryBreakdown(context.Context, int, int) ([]core.CategoryTotal, error) {
	return []core.CategoryTotal{{Name: "Casa", Amount: core.Money{Cents: 100000}}, {Name: "Lazer", Amount: core.Money{Cents: 23456}}}, nil
}

func (fakeAnalytics) SubcategoryBreakdown(_ context.Context, category string, _, _ int) ([]core.CategoryTotal, error) {
	return []core.CategoryTotal{{Name: category + "/Móveis", Amount: core.Money{Cents: 100000}}}, nil
}

func (fakeAnalytics) RecurrenceReport(context.Context) ([]core.DetectedRecurrence, error) {
	return nil, errors.New("report unavailable")
}

func (fakeAnalytics) MonthlyTotals(context.Context, int) ([]core.MonthTotal, error) {
	return []core.MonthTotal{{Year: 2024, Month: 3, Category: "Casa", Amount: core.Money{Cents: 100000}}}, nil
}

type testEnv struct {
	srv     *Server
	repo    *storage.SQLiteRepository
	backend *fakeBackend
	ledger  *fakeLedger
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	backend := &fakeBackend{}
	ledger := &fakeLedger{}
	analytics := services.NewAnalyticsService(fakeAnalytics{}, services.NewMemoryCaches(16, 0, nil))
	transactions := services.NewTransactionService(ledger, analytics)
	series := services.NewSeriesService(repo, nil, worker.NewSubmitWorker(repo, backend, nil, 100, 5))
	series.OnSynced(transactions.InvalidateSeries)

	opts.Checks = map[string]Pinger{"sqlite": repo}
	srv := NewServer(":0", Services{
		Series:       series,
		Transactions: transactions,
		Analytics:    analytics,
		Taxonomy:     fakeTax{cats: []string{"Casa"}, subs: []string{"Móveis"}},
	}, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, repo: repo, backend: backend, ledger: ledger}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

const planForm = "description=Sof%C3%A1&amount=300%2C00&installments=3&purchase_date=2024-03-10&category=Casa"

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Compra parcelada", `value="Casa"`, `value="card"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing security headers")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/static/app.css"} {
		rr := env.do(http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyReportsChecks(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(http.MethodGet, "/readyz", "")
	var got struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ready" || got.Checks["sqlite"] != "ok" || got.Checks["templates"] != "ok" {
		t.Errorf("unexpected readiness: %+v", got)
	}

	_ = env.repo.Close()
	rr = env.do(http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("closed repo: status=%d, want 503", rr.Code)
	}
}

func TestInstallmentsPreview(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(http.MethodPost, "/installments/preview", planForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"1/3", "3/3", "R$ 100,00", "R$ 300,00", "10/03/2024", `name="purchase_date"`} {
		if !strings.Contains(body, want) {
			t.Errorf("preview body missing %q", want)
		}
	}

	series, err := env.repo.ListRecentSeries(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 0 {
		t.Errorf("preview stored %d series", len(series))
	}
}

func TestInstallmentsPreviewValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"bad amount", "amount=abc&installments=2&purchase_date=2024-03-10"},
		{"zero installments", "amount=10&installments=0&purchase_date=2024-03-10"},
		{"missing purchase date", "amount=10&installments=2"},
		{"bad due day", "amount=10&installments=2&purchase_date=2024-03-10&due_day=32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/installments/preview", tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d, want 422", rr.Code)
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
				t.Error("missing error notification")
			}
		})
	}
}

func TestInstallmentsConfirmAndSeriesLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	rr := env.do(http.MethodPost, "/installments/confirm", planForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, want := range []string{"series:confirmed", "transactions:changed", "form:reset"} {
		if !strings.Contains(trigger, want) {
			t.Errorf("HX-Trigger missing %q: %s", want, trigger)
		}
	}

	recent, err := env.repo.ListRecentSeries(ctx, 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent series = %v, %v", recent, err)
	}
	if recent[0].Status != storage.StatusSynced {
		t.Errorf("status = %s, want synced", recent[0].Status)
	}

	// Synced series can neither be retried nor discarded.
	if rr := env.do(http.MethodPost, "/series/"+recent[0].GroupID+"/retry", ""); rr.Code != http.StatusConflict {
		t.Errorf("retry synced: status=%d, want 409", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/series/"+recent[0].GroupID, ""); rr.Code != http.StatusConflict {
		t.Errorf("discard synced: status=%d, want 409", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/series/unknown/retry", ""); rr.Code != http.StatusNotFound {
		t.Errorf("retry unknown: status=%d, want 404", rr.Code)
	}

	rr = env.do(http.MethodGet, "/series", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Sofá") {
		t.Errorf("series list status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestInstallmentsConfirmFailureKeepsSeries(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.setErr(errors.New("backend down"))

	rr := env.do(http.MethodPost, "/installments/confirm", planForm)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("confirm status=%d, want 502", rr.Code)
	}

	recent, err := env.repo.ListRecentSeries(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent series = %v, %v", recent, err)
	}
	groupID := recent[0].GroupID
	if recent[0].Status == storage.StatusSynced {
		t.Fatalf("failed series marked synced")
	}

	env.backend.setErr(nil)
	rr = env.do(http.MethodPost, "/series/"+groupID+"/retry", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("retry status=%d body=%s", rr.Code, rr.Body.String())
	}
	rec, err := env.repo.GetSeries(context.Background(), groupID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != storage.StatusSynced {
		t.Errorf("status after retry = %s, want synced", rec.Status)
	}
}

const cardPlanForm = planForm + "&payment_method=card"

var hiddenInput = regexp.MustCompile(`<input type="hidden" name="([^"]+)" value="([^"]*)">`)

// previewFields returns the hidden fields a preview echoes for confirmation.
func previewFields(t *testing.T, body string) url.Values {
	t.Helper()
	form := url.Values{}
	for _, m := range hiddenInput.FindAllStringSubmatch(body, -1) {
		form.Set(html.UnescapeString(m[1]), html.UnescapeString(m[2]))
	}
	if len(form) == 0 {
		t.Fatalf("preview has no hidden fields: %s", body)
	}
	return form
}

func TestInstallmentsPaymentMethodLookupErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.ledger.failPaymentMethods(errors.New("backend down"))

	for _, path := range []string{"/installments/preview", "/installments/confirm"} {
		rr := env.do(http.MethodPost, path, cardPlanForm)
		if rr.Code != http.StatusBadGateway {
			t.Errorf("%s with failing lookup: status=%d, want 502", path, rr.Code)
		}
	}
	recent, err := env.repo.ListRecentSeries(context.Background(), 10)
	if err != nil || len(recent) != 0 {
		t.Fatalf("no series should be stored without card rules: %v, %v", recent, err)
	}

	env.ledger.failPaymentMethods(nil)
	rr := env.do(http.MethodPost, "/installments/confirm", planForm+"&payment_method=unknown")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown payment method: status=%d, want 422", rr.Code)
	}
}

func TestInstallmentsConfirmMatchesPreview(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	rr := env.do(http.MethodPost, "/installments/preview", cardPlanForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status=%d body=%s", rr.Code, rr.Body.String())
	}
	fields := previewFields(t, rr.Body.String())
	groupID := fields.Get("group_id")
	if groupID == "" || fields.Get("due_day") != "15" || fields.Get("closing_day") != "5" {
		t.Fatalf("preview should echo group id and card days, got %v", fields)
	}

	// The echoed card days make the confirm independent of a second lookup.
	env.ledger.failPaymentMethods(errors.New("backend down"))
	rr = env.do(http.MethodPost, "/installments/confirm", fields.Encode())
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status=%d body=%s", rr.Code, rr.Body.String())
	}

	rec, err := env.repo.GetSeries(ctx, groupID)
	if err != nil {
		t.Fatalf("stored series should keep the preview group id: %v", err)
	}
	want := []string{"2024-04-15", "2024-05-15", "2024-06-17"}
	if len(rec.Rows) != len(want) {
		t.Fatalf("stored %d rows, want %d", len(rec.Rows), len(want))
	}
	for i, row := range rec.Rows {
		if row.DueDate.String() != want[i] {
			t.Errorf("row %d due=%s, want %s", i+1, row.DueDate, want[i])
		}
	}

	rr = env.do(http.MethodPost, "/installments/confirm", fields.Encode())
	if rr.Code != http.StatusConflict {
		t.Errorf("confirming the same preview twice: status=%d, want 409", rr.Code)
	}
}

func TestSeriesDiscard(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.backend.setErr(errors.New("backend down"))

	env.do(http.MethodPost, "/installments/confirm", planForm)
	recent, _ := env.repo.ListRecentSeries(context.Background(), 10)
	if len(recent) != 1 {
		t.Fatalf("expected one stored series, got %d", len(recent))
	}

	rr := env.do(http.MethodDelete, "/series/"+recent[0].GroupID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("discard status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "series:changed") {
		t.Error("missing series:changed trigger")
	}
}

func TestInstallmentsExport(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(http.MethodPost, "/installments/export", planForm+"&format=csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), ".csv") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}

	rr = env.do(http.MethodPost, "/installments/export", planForm)
	if rr.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "spreadsheetml") {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
}

func TestAPIPreviewAndCORS(t *testing.T) {
	env := newTestEnv(t, Options{AllowedOrigins: []string{"https://app.example"}})

	body := `{"description":"Sofá","amount":"300.00","installments":3,"purchase_date":"2024-03-10","category":"Casa"}`
	req := httptest.NewRequest(http.MethodPost, "/api/installments/preview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("api status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	var preview apiPreview
	if err := json.Unmarshal(rr.Body.Bytes(), &preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(preview.Installments) != 3 || preview.Total != "300.00" {
		t.Errorf("unexpected preview: %+v", preview)
	}
	if preview.Installments[0].InstallmentDate != "2024-03-10" || preview.Installments[1].InstallmentDate != "2024-04-10" {
		t.Errorf("unexpected dates: %+v", preview.Installments)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/installments/preview", strings.NewReader("amount=1"))
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("form body on JSON API: status=%d, want 400", rr.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/installments/preview", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin received CORS headers")
	}
}

func TestTransactionsAndRecurring(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(http.MethodPost, "/transactions",
		"description=Mercado&amount=50%2C00&date=2024-03-10&category=Casa&kind=expense")
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "transactions:changed") {
		t.Error("missing transactions:changed trigger")
	}

	rr = env.do(http.MethodGet, "/ui/transactions?year=2024&month=3", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Mercado") {
		t.Fatalf("transactions partial status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/transactions/mark-paid", "ids=tx-1&year=2024&month=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("mark-paid status=%d", rr.Code)
	}
	if len(env.ledger.paid) != 1 || env.ledger.paid[0] != "tx-1" {
		t.Errorf("paid ids = %v", env.ledger.paid)
	}
	if rr := env.do(http.MethodPost, "/transactions/mark-paid", "year=2024"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("mark-paid without ids: status=%d, want 422", rr.Code)
	}

	if rr := env.do(http.MethodDelete, "/groups/g-1", ""); rr.Code != http.StatusOK {
		t.Errorf("delete group status=%d", rr.Code)
	}

	recurring := "description=Aluguel&amount=1500&start_date=2024-01-31&every=monthly&category=Casa"
	rr = env.do(http.MethodPost, "/recurring/preview", recurring+"&count=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("recurring preview status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, want := range []string{"31/01/2024", "29/02/2024", "31/03/2024", "R$ 4.500,00"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("recurring preview missing %q", want)
		}
	}

	if rr := env.do(http.MethodPost, "/recurring", recurring); rr.Code != http.StatusOK {
		t.Errorf("create recurring status=%d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/recurring/rec-1", ""); rr.Code != http.StatusOK {
		t.Errorf("delete recurring status=%d", rr.Code)
	}
}

func TestDashboardPartials(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		path string
		want string
	}{
		{"/ui/dashboard?year=2024&month=3", "R$ 5.000,00"},
		{"/ui/month-overview?year=2024&month=3", "março"},
		{"/ui/categories?year=2024&month=3", "Lazer"},
		{"/ui/categories?year=2024&month=3&category=Casa", "Casa/Móveis"},
	}
	for _, tt := range tests {
		rr := env.do(http.MethodGet, tt.path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", tt.path, rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), tt.want) {
			t.Errorf("%s body missing %q", tt.path, tt.want)
		}
	}

	// The recurrence report is optional on the dashboard but required on its own partial.
	if rr := env.do(http.MethodGet, "/ui/recurrences", ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("recurrences status=%d, want 500", rr.Code)
	}
}

func TestRateLimitMutations(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := env.do(http.MethodPost, "/installments/preview", planForm); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := env.do(http.MethodPost, "/installments/preview", planForm)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Reads are never limited.
	if rr := env.do(http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz status=%d", rr.Code)
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{123456, "R$ 1.234,56"},
		{100000000, "R$ 1.000.000,00"},
		{-2550, "-R$ 25,50"},
	}
	for _, tt := range tests {
		if got := formatBRL(core.Money{Cents: tt.cents}); got != tt.want {
			t.Errorf("formatBRL(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
