package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"financas/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
	}{
		{
			name:      "both values provided",
			query:     url.Values{"year": {"2024"}, "month": {"12"}},
			wantYear:  2024,
			wantMonth: 12,
		},
		{
			name:      "only year",
			query:     url.Values{"year": {"2023"}},
			wantYear:  2023,
			wantMonth: 0, // will be current month
		},
		{
			name:      "only month",
			query:     url.Values{"month": {"5"}},
			wantYear:  0, // will be current year
			wantMonth: 5,
		},
		{
			name:      "out of range falls back",
			query:     url.Values{"year": {"20240"}, "month": {"13"}},
			wantYear:  time.Now().Year(),
			wantMonth: int(time.Now().Month()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseMonthParams(tt.query)

			if tt.wantYear != 0 && result.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", result.Year, tt.wantYear)
			}

			if tt.wantMonth != 0 && result.Month != tt.wantMonth {
				t.Errorf("Month = %d, want %d", result.Month, tt.wantMonth)
			}
		})
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_GetAll(t *testing.T) {
	t.Run("repeated form fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("ids=a&ids=+&ids=b"))
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		got := p.GetAll("ids")
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("GetAll('ids') = %v, want [a b]", got)
		}
	})

	t.Run("json array", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"ids": ["x", "", 7]}`))
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		got := p.GetAll("ids")
		if len(got) != 2 || got[0] != "x" || got[1] != "7" {
			t.Errorf("GetAll('ids') = %v, want [x 7]", got)
		}
	})
}

func TestRequestBodyParser_TypedFields(t *testing.T) {
	body := "installments=3&bad=x&due_day=10&closing_day=40&amount=1.234,56&purchase_date=2024-03-10"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if n, err := p.Int("installments", 1); err != nil || n != 3 {
		t.Errorf("Int('installments') = %d, %v; want 3", n, err)
	}
	if n, err := p.Int("missing", 1); err != nil || n != 1 {
		t.Errorf("Int('missing') = %d, %v; want default 1", n, err)
	}
	if _, err := p.Int("bad", 1); !errors.Is(err, errFormField) {
		t.Errorf("Int('bad') error = %v, want errFormField", err)
	}

	day, err := p.OptionalDay("due_day")
	if err != nil || day == nil || *day != 10 {
		t.Errorf("OptionalDay('due_day') = %v, %v; want 10", day, err)
	}
	if _, err := p.OptionalDay("closing_day"); !errors.Is(err, core.ErrInvalidDay) {
		t.Errorf("OptionalDay('closing_day') error = %v, want ErrInvalidDay", err)
	}
	if day, err := p.OptionalDay("missing"); err != nil || day != nil {
		t.Errorf("OptionalDay('missing') = %v, %v; want nil", day, err)
	}

	m, err := p.Money("amount")
	if err != nil || m.Cents != 123456 {
		t.Errorf("Money('amount') = %d, %v; want 123456", m.Cents, err)
	}
	if _, err := p.Money("missing"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("Money('missing') error = %v, want ErrInvalidAmount", err)
	}

	d, err := p.Date("purchase_date")
	if err != nil || !d.Equal(core.NewDate(2024, 3, 10)) {
		t.Errorf("Date('purchase_date') = %v, %v", d, err)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"broken"`))
	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Error("Parse() should fail on malformed JSON")
	}
}
