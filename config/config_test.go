package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Address())
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "post", cfg.Database.Schema)
	assert.Equal(t, "local", cfg.Uploads.Backend)
	assert.Equal(t, "static/uploads", cfg.Uploads.Root)
	assert.Equal(t, 0.6, cfg.Search.DefaultAlpha)
	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.Equal(t, 20, cfg.Search.ImageTopN)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_FileValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
server:
  port: "9000"
  shutdown_timeout: 15s
database:
  url: sqlite:///instance/users.db
  schema: report
search:
  default_alpha: 0.4
  page_size: 25
  max_page_size: 10
cache:
  backend: redis
  ttl: 1h
  redis:
    address: redis:6379
    db: 2
`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "instance/users.db", cfg.Database.URL)
	assert.Equal(t, "report", cfg.Database.Schema)
	assert.Equal(t, 0.4, cfg.Search.DefaultAlpha)
	assert.Equal(t, 25, cfg.Search.MaxPageSize, "max page size never drops below the page size")
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, RedisConfig{Address: "redis:6379", DB: 2}, cfg.Cache.Redis)
}

func TestLoadFromFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgresql+psycopg://app:secret@db:5432/lostfound")
	t.Setenv("SEARCH_WORKERS", "3")
	t.Setenv("UPLOADS_BACKEND", "s3")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("CLOUDFLARE_BUCKET_NAME", "lost-found")
	t.Setenv("CLOUDFLARE_ACCESS_KEY_ID", "id")
	t.Setenv("CLOUDFLARE_SECRET_ACCESS_KEY", "secret")

	cfg, err := LoadFromFile(writeConfig(t, "server:\n  port: \"8000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://app:secret@db:5432/lostfound", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Search.Workers)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", cfg.Uploads.S3.Endpoint)
	assert.Equal(t, "lost-found", cfg.Uploads.S3.Bucket)
	assert.Equal(t, "auto", cfg.Uploads.S3.Region)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  string
	}{
		{"driver", "database:\n  driver: oracle\n", `unknown database.driver "oracle"`},
		{"postgres url", "database:\n  driver: postgres\n", "database.url is required"},
		{"schema", "database:\n  schema: items\n", `unknown database.schema "items"`},
		{"s3 bucket", "uploads:\n  backend: s3\n", "uploads.s3.bucket is required"},
		{"cache", "cache:\n  backend: memcached\n", `unknown cache.backend "memcached"`},
		{"alpha", "search:\n  default_alpha: 1.5\n", "search.default_alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNormalizeDatabaseURL(t *testing.T) {
	tests := []struct {
		raw    string
		driver string
		url    string
	}{
		{"", "memory", ""},
		{"postgresql+psycopg://u:p@h/db", "postgres", "postgres://u:p@h/db"},
		{"postgresql+psycopg2://u@h/db?sslmode=disable", "postgres", "postgres://u@h/db?sslmode=disable"},
		{"postgresql://u@h/db", "postgres", "postgres://u@h/db"},
		{"postgres://u@h/db", "postgres", "postgres://u@h/db"},
		{"host=localhost dbname=lf", "postgres", "host=localhost dbname=lf"},
		{"sqlite:///users.db", "sqlite", "users.db"},
		{"sqlite:////var/lib/lf/users.db", "sqlite", "/var/lib/lf/users.db"},
		{"sqlite://", "sqlite", ":memory:"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			driver, url := NormalizeDatabaseURL(tt.raw)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.url, url)
		})
	}
}
