package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/WongZhiYun/Lost-Found/models"
)

// DriverName is the SQLite driver to use
const DriverName = "sqlite"

// SQLiteStore reads the reports table of a SQLite database file, such as
// the one the web application writes.
type SQLiteStore struct {
	db     *sql.DB
	schema Schema
}

// NewSQLiteStore opens the database at path.
func NewSQLiteStore(path string, schema Schema) (*SQLiteStore, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and ":memory:" databases are per
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return &SQLiteStore{db: db, schema: schema}, nil
}

// NewSQLiteStoreFromDB wraps an open database handle.
func NewSQLiteStoreFromDB(db *sql.DB, schema Schema) *SQLiteStore {
	return &SQLiteStore{db: db, schema: schema}
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListApproved(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	query, args := s.schema.listApprovedQuery(sqliteDialect, filter)
	reports, err := s.list(ctx, query, args...)
	if err != nil || filter.Text == "" {
		return reports, err
	}
	// SQLite's LIKE folds ASCII only, so text is matched here.
	out := reports[:0]
	for _, r := range reports {
		if matchesText(r, filter.Text) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLiteStore) ListWithImages(ctx context.Context) ([]models.Report, error) {
	return s.list(ctx, s.schema.listWithImagesQuery(sqliteDialect))
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.Report, error) {
	r, err := scanSQLiteReport(s.db.QueryRowContext(ctx, s.schema.getQuery(sqliteDialect), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) UpdateFingerprint(ctx context.Context, id int64, fingerprint string) error {
	res, err := s.db.ExecContext(ctx, s.schema.updateFingerprintQuery(sqliteDialect), fingerprint, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return nil
}

// EnsureFingerprintColumn adds the fingerprint column when it is missing.
// SQLite has no ADD COLUMN IF NOT EXISTS, so the table info is checked first.
func (s *SQLiteStore) EnsureFingerprintColumn(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.schema.Table))
	if err != nil {
		return err
	}
	found := false
	columns := 0
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return err
		}
		columns++
		if strings.EqualFold(name, s.schema.FingerprintColumn) {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if columns == 0 {
		return fmt.Errorf("table %s: %w", s.schema.Table, ErrNotFound)
	}
	if found {
		return nil
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT",
		s.schema.Table, s.schema.FingerprintColumn))
	return err
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Report
	for rows.Next() {
		r, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReport(row rowScanner) (models.Report, error) {
	var (
		r       models.Report
		created sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.Location,
		&r.Category,
		&r.ImageRef,
		&r.Fingerprint,
		&r.Approved,
		&created,
	)
	if err != nil {
		return r, err
	}
	if created.Valid {
		r.CreatedAt = parseTimestamp(created.String)
	}
	return r, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp accepts the text forms SQLite drivers write. Unparseable
// values yield the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
