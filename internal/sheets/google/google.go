package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"financas/internal/core"
	ports "financas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName      = "Lançamentos"
	defaultTaxonomySheet  = "Categorias"
	valueInputUserEntered = "USER_ENTERED"
)

// Options configures the spreadsheet mirror.
type Options struct {
	SpreadsheetID string
	// SheetName is the base name of the transactions sheet; the row's year is prefixed.
	SheetName string
	// TaxonomySheet holds categories in column A and subcategories in column B.
	TaxonomySheet string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	taxonomySheet string
}

// Ensure interface conformance
var (
	_ ports.RowWriter      = (*Client)(nil)
	_ ports.TaxonomyReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	opts.SpreadsheetID = strings.TrimSpace(opts.SpreadsheetID)
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, opts), nil
}

func newClient(svc *gsheet.Service, opts Options) *Client {
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = defaultSheetName
	}
	taxonomy := strings.TrimSpace(opts.TaxonomySheet)
	if taxonomy == "" {
		taxonomy = defaultTaxonomySheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetBase:     base,
		taxonomySheet: taxonomy,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// AppendRows appends the rows to the yearly sheet of each row's date.
// A series crossing a year boundary is split across two sheets.
func (c *Client) AppendRows(ctx context.Context, rows []core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return "", nil
	}

	var refs []string
	for _, batch := range splitByYear(rows) {
		sheet := yearPrefixedName(c.sheetBase, batch.year)
		values := make([][]any, 0, len(batch.rows))
		for _, r := range batch.rows {
			values = append(values, rowValues(r))
		}

		rng := fmt.Sprintf("%s!A:J", sheet)
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
			ValueInputOption(valueInputUserEntered).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("append rows to sheet %s: %w", sheet, err)
		}
		if resp.Updates != nil {
			refs = append(refs, resp.Updates.UpdatedRange)
		}
	}
	return strings.Join(refs, ","), nil
}

func (c *Client) List(ctx context.Context) ([]string, []string, error) {
	if c.svc == nil {
		return nil, nil, errors.New("sheets service not initialized")
	}

	cats, err := c.readCol(ctx, c.taxonomySheet, "A2:A200")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read categories: %w", err)
	}
	subs, err := c.readCol(ctx, c.taxonomySheet, "B2:B200")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read subcategories: %w", err)
	}
	return cats, subs, nil
}

func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", sheetName, col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return columnValues(resp.Values), nil
}

type yearBatch struct {
	year int
	rows []core.Transaction
}

func splitByYear(rows []core.Transaction) []yearBatch {
	byYear := map[int][]core.Transaction{}
	for _, r := range rows {
		byYear[r.Date.Year()] = append(byYear[r.Date.Year()], r)
	}
	out := make([]yearBatch, 0, len(byYear))
	for y, rs := range byYear {
		out = append(out, yearBatch{year: y, rows: rs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].year < out[j].year })
	return out
}

// rowValues lays a transaction out as
// Date | Due date | Description | Amount | Category | Subcategory | Kind | Installment | Group | Paid.
func rowValues(t core.Transaction) []any {
	installment := ""
	if t.Installments > 0 {
		installment = fmt.Sprintf("%d/%d", t.Installment, t.Installments)
	}
	paid := "não"
	if t.Paid {
		paid = "sim"
	}
	return []any{
		t.Date.String(),
		t.DueDate.String(),
		t.Description,
		t.Amount.Reais(),
		t.Category,
		t.Subcategory,
		string(t.Kind),
		installment,
		t.GroupID,
		paid,
	}
}

// columnValues keeps the first cell of each row, skipping blanks, comments and duplicates.
func columnValues(values [][]any) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
