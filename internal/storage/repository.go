package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"financas/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no series has the requested group id.
	ErrNotFound = errors.New("series not found")
	// ErrVersionConflict is returned when the series changed since it was read.
	ErrVersionConflict = errors.New("series version conflict")
	// ErrDuplicate is returned when a series with the same group id is already stored.
	ErrDuplicate = errors.New("series already stored")
)

// Series statuses as stored in the outbox. The transitions between them are
// enforced by the statemachine package, not here.
const (
	StatusPending    = "pending"
	StatusSubmitting = "submitting"
	StatusSynced     = "synced"
	StatusFailed     = "failed"
	StatusDiscarded  = "discarded"
)

// SeriesRecord is a locally stored series with its submission bookkeeping.
// Row IDs hold the backend ids once the series is synced.
type SeriesRecord struct {
	GroupID   string
	Status    string
	Attempts  int
	LastError string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	SyncedAt  time.Time
	Rows      []core.Transaction
}

// Series returns the stored rows as a core series.
func (s SeriesRecord) Series() core.Series {
	return core.Series{GroupID: s.GroupID, Rows: s.Rows}
}

// PendingSeries represents the minimal data needed for submit queue messages
type PendingSeries struct {
	GroupID   string
	Version   int64
	Attempts  int
	CreatedAt time.Time
}

// StatusUpdate moves a series to a new status if its version still matches.
type StatusUpdate struct {
	GroupID   string
	Version   int64
	Status    string
	LastError string
	// CountAttempt increments the attempts counter.
	CountAttempt bool
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() int64 {
	return r.now().UTC().Unix()
}

// SaveSeries stores a freshly generated series as pending.
func (r *SQLiteRepository) SaveSeries(ctx context.Context, s core.Series) error {
	if s.GroupID == "" || len(s.Rows) == 0 {
		return errors.New("save series: empty series")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM series WHERE group_id = ?`, s.GroupID).Scan(&existing); err != nil {
		return fmt.Errorf("check series: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, s.GroupID)
	}

	first := s.Rows[0]
	now := r.stamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO series (group_id, kind, description, total_cents, installments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.GroupID, string(first.Kind), first.Description, s.Total().Cents, len(s.Rows), StatusPending, now, now,
	); err != nil {
		return fmt.Errorf("insert series: %w", err)
	}

	for i, row := range s.Rows {
		seq := row.Installment
		if seq == 0 {
			seq = i + 1
		}
		total := row.Installments
		if total == 0 {
			total = len(s.Rows)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO series_rows (group_id, sequence_index, total_installments, kind, description, category,
				subcategory, payment_method_id, installment_date, due_date, amount_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.GroupID, seq, total, string(row.Kind), row.Description, row.Category,
			row.Subcategory, row.PaymentMethodID, row.Date.String(), row.DueDate.String(), row.Amount.Cents,
		); err != nil {
			return fmt.Errorf("insert series row %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit series: %w", err)
	}

	slog.InfoContext(ctx, "Series saved to outbox",
		"group_id", s.GroupID,
		"installments", len(s.Rows),
		"amount_cents", first.Amount.Cents)
	return nil
}

const seriesColumns = `group_id, status, attempts, last_error, version, created_at, updated_at, COALESCE(synced_at, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(sc rowScanner) (SeriesRecord, error) {
	var rec SeriesRecord
	var created, updated, syncedAt int64
	if err := sc.Scan(&rec.GroupID, &rec.Status, &rec.Attempts, &rec.LastError, &rec.Version, &created, &updated, &syncedAt); err != nil {
		return SeriesRecord{}, err
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	if syncedAt > 0 {
		rec.SyncedAt = time.Unix(syncedAt, 0).UTC()
	}
	return rec, nil
}

func (r *SQLiteRepository) loadRows(ctx context.Context, groupID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence_index, total_installments, kind, description, category, subcategory,
			payment_method_id, installment_date, due_date, amount_cents, remote_id
		FROM series_rows WHERE group_id = ? ORDER BY sequence_index`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query series rows: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var kind, date, due string
		if err := rows.Scan(&t.Installment, &t.Installments, &kind, &t.Description, &t.Category, &t.Subcategory,
			&t.PaymentMethodID, &date, &due, &t.Amount.Cents, &t.ID); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		t.Kind = core.Kind(kind)
		t.GroupID = groupID
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("series row date: %w", err)
		}
		if t.DueDate, err = core.ParseDate(due); err != nil {
			return nil, fmt.Errorf("series row due date: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetSeries loads a series and its rows.
func (r *SQLiteRepository) GetSeries(ctx context.Context, groupID string) (*SeriesRecord, error) {
	rec, err := scanSeries(r.db.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE group_id = ?`, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get series %s: %w", groupID, err)
	}
	if rec.Rows, err = r.loadRows(ctx, groupID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecentSeries returns the most recently created series, newest first.
// Discarded series are left out.
func (r *SQLiteRepository) ListRecentSeries(ctx context.Context, limit int) ([]SeriesRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE status != ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		StatusDiscarded, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent series: %w", err)
	}

	var out []SeriesRecord
	for rows.Next() {
		rec, err := scanSeries(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan series: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].Rows, err = r.loadRows(ctx, out[i].GroupID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetPendingSeries returns series still waiting for submission: pending ones,
// and failed ones that have been attempted fewer than maxAttempts times.
// Oldest first.
func (r *SQLiteRepository) GetPendingSeries(ctx context.Context, limit, maxAttempts int) ([]PendingSeries, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, version, attempts, created_at FROM series
		WHERE status = ? OR (status = ? AND attempts < ?)
		ORDER BY created_at, rowid LIMIT ?`,
		StatusPending, StatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending series: %w", err)
	}
	defer rows.Close()

	var out []PendingSeries
	for rows.Next() {
		var (
			p       PendingSeries
			created int64
		)
		if err := rows.Scan(&p.GroupID, &p.Version, &p.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan pending series: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSeriesByStatus returns up to limit series in the given status, oldest first.
func (r *SQLiteRepository) ListSeriesByStatus(ctx context.Context, status string, limit int) ([]PendingSeries, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, version, attempts, created_at FROM series
		WHERE status = ?
		ORDER BY created_at, rowid LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s series: %w", status, err)
	}
	defer rows.Close()

	var out []PendingSeries
	for rows.Next() {
		var (
			p       PendingSeries
			created int64
		)
		if err := rows.Scan(&p.GroupID, &p.Version, &p.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateSeriesStatus applies u with optimistic locking on the version column.
// It returns the new version.
func (r *SQLiteRepository) UpdateSeriesStatus(ctx context.Context, u StatusUpdate) (int64, error) {
	attempt := 0
	if u.CountAttempt {
		attempt = 1
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE series SET status = ?, last_error = ?, attempts = attempts + ?, version = version + 1, updated_at = ?
		WHERE group_id = ? AND version = ?`,
		u.Status, truncate(u.LastError, 500), attempt, r.stamp(), u.GroupID, u.Version)
	if err != nil {
		return 0, fmt.Errorf("update series status: %w", err)
	}
	if err := r.expectOne(ctx, res, u.GroupID); err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Series status updated",
		"group_id", u.GroupID,
		"series_status", u.Status,
		"version", u.Version+1)
	return u.Version + 1, nil
}

// MarkSeriesSynced records the backend ids (in sequence order) and flags the
// series as synced. remoteIDs may be shorter than the row count.
func (r *SQLiteRepository) MarkSeriesSynced(ctx context.Context, groupID string, version int64, remoteIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := r.stamp()
	res, err := tx.ExecContext(ctx, `
		UPDATE series SET status = ?, last_error = '', version = version + 1, updated_at = ?, synced_at = ?
		WHERE group_id = ? AND version = ?`,
		StatusSynced, now, now, groupID, version)
	if err != nil {
		return fmt.Errorf("mark series synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return r.missingOrConflict(ctx, groupID)
	}

	for i, id := range remoteIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE series_rows SET remote_id = ? WHERE group_id = ? AND sequence_index = ?`,
			id, groupID, i+1); err != nil {
			return fmt.Errorf("store remote id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit synced series: %w", err)
	}

	slog.InfoContext(ctx, "Series marked as synced", "group_id", groupID, "remote_ids", len(remoteIDs))
	return nil
}

// DeleteSeries removes a series and its rows from the outbox.
func (r *SQLiteRepository) DeleteSeries(ctx context.Context, groupID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM series_rows WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("delete series rows: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM series WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("delete series: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Series deleted from outbox", "group_id", groupID)
	return nil
}

// CountByStatus returns how many series are in each status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM series GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count series: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) expectOne(ctx context.Context, res sql.Result, groupID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	return r.missingOrConflict(ctx, groupID)
}

func (r *SQLiteRepository) missingOrConflict(ctx context.Context, groupID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM series WHERE group_id = ?`, groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check series %s: %w", groupID, err)
	}
	return ErrVersionConflict
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
