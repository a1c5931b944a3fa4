package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WongZhiYun/Lost-Found/models"
)

// pgxIface is the subset of *pgxpool.Pool the store uses.
type pgxIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

type PostgresStore struct {
	pool   pgxIface
	schema Schema
}

func NewPostgresStore(ctx context.Context, dbURL string, schema Schema) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

// NewPostgresStoreWithPool wraps an existing pool.
func NewPostgresStoreWithPool(pool pgxIface, schema Schema) *PostgresStore {
	return &PostgresStore{pool: pool, schema: schema}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListApproved(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	query, args := s.schema.listApprovedQuery(postgresDialect, filter)
	return s.list(ctx, query, args...)
}

func (s *PostgresStore) ListWithImages(ctx context.Context) ([]models.Report, error) {
	return s.list(ctx, s.schema.listWithImagesQuery(postgresDialect))
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Report, error) {
	r, err := scanPgReport(s.pool.QueryRow(ctx, s.schema.getQuery(postgresDialect), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) UpdateFingerprint(ctx context.Context, id int64, fingerprint string) error {
	tag, err := s.pool.Exec(ctx, s.schema.updateFingerprintQuery(postgresDialect), fingerprint, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return nil
}

// EnsureFingerprintColumn adds the fingerprint column when it is missing.
func (s *PostgresStore) EnsureFingerprintColumn(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT",
		s.schema.Table, s.schema.FingerprintColumn))
	return err
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.Report, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Report
	for rows.Next() {
		r, err := scanPgReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanPgReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&r.Location,
		&r.Category,
		&r.ImageRef,
		&r.Fingerprint,
		&r.Approved,
		&r.CreatedAt,
	)
	return r, err
}
