package storage

import (
	"context"
	"fmt"

	"github.com/WongZhiYun/Lost-Found/models"
)

// Store is implemented by every report store adapter.
type Store interface {
	ListApproved(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	ListWithImages(ctx context.Context) ([]models.Report, error)
	Get(ctx context.Context, id int64) (*models.Report, error)
	UpdateFingerprint(ctx context.Context, id int64, fingerprint string) error
	EnsureFingerprintColumn(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open connects to the store selected by driver: postgres, sqlite or memory.
func Open(ctx context.Context, driver, url, schemaName string) (Store, error) {
	schema, err := SchemaByName(schemaName)
	if err != nil {
		return nil, err
	}
	switch driver {
	case "postgres":
		s, err := NewPostgresStore(ctx, url, schema)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(url, schema)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory", "":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}
