package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads config.yaml from ./configs or the working directory, then
// applies environment overrides (server.port -> SERVER_PORT). A .env file
// in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Names used by existing deployments.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("uploads.root", "UPLOADS_ROOT", "UPLOAD_FOLDER")
	_ = v.BindEnv("uploads.s3.account_id", "UPLOADS_S3_ACCOUNT_ID", "CLOUDFLARE_ACCOUNT_ID")
	_ = v.BindEnv("uploads.s3.access_key_id", "UPLOADS_S3_ACCESS_KEY_ID", "CLOUDFLARE_ACCESS_KEY_ID")
	_ = v.BindEnv("uploads.s3.secret_access_key", "UPLOADS_S3_SECRET_ACCESS_KEY", "CLOUDFLARE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("uploads.s3.bucket", "UPLOADS_S3_BUCKET", "CLOUDFLARE_BUCKET_NAME")
	return v
}

// setDefaults registers every key so that environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.schema", "post")

	v.SetDefault("uploads.backend", "local")
	v.SetDefault("uploads.root", "static/uploads")
	v.SetDefault("uploads.public_url", "/static/uploads")
	v.SetDefault("uploads.s3.bucket", "")
	v.SetDefault("uploads.s3.endpoint", "")
	v.SetDefault("uploads.s3.account_id", "")
	v.SetDefault("uploads.s3.region", "auto")
	v.SetDefault("uploads.s3.access_key_id", "")
	v.SetDefault("uploads.s3.secret_access_key", "")
	v.SetDefault("uploads.s3.prefix", "")

	v.SetDefault("search.default_alpha", 0.6)
	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.max_page_size", 100)
	v.SetDefault("search.image_top_n", 20)
	v.SetDefault("search.workers", 0)
	v.SetDefault("search.parallel_threshold", 256)
	v.SetDefault("search.max_upload_bytes", 16<<20)

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func build(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	driver, url := NormalizeDatabaseURL(cfg.Database.URL)
	cfg.Database.URL = url
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = driver
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if cfg.Uploads.S3.Endpoint == "" && cfg.Uploads.S3.AccountID != "" {
		cfg.Uploads.S3.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.Uploads.S3.AccountID)
	}
	cfg.Uploads.PublicURL = strings.TrimRight(cfg.Uploads.PublicURL, "/")

	if cfg.Search.PageSize > cfg.Search.MaxPageSize {
		cfg.Search.MaxPageSize = cfg.Search.PageSize
	}
}

// NormalizeDatabaseURL accepts SQLAlchemy style URLs and returns the store
// driver together with a URL the driver understands. An empty URL selects
// the in-memory store.
func NormalizeDatabaseURL(raw string) (driver, url string) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "memory", ""
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			path = ":memory:"
		}
		return "sqlite", path
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		// key=value DSN
		return "postgres", raw
	}
	if base, _, ok := strings.Cut(scheme, "+"); ok {
		scheme = base
	}
	if scheme == "postgresql" {
		scheme = "postgres"
	}
	return "postgres", scheme + "://" + rest
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %s", cfg.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", cfg.Database.Driver)
	}

	switch strings.ToLower(cfg.Database.Schema) {
	case "post", "report":
	default:
		return fmt.Errorf("unknown database.schema %q", cfg.Database.Schema)
	}

	switch cfg.Uploads.Backend {
	case "local":
		if cfg.Uploads.Root == "" {
			return fmt.Errorf("uploads.root is required")
		}
	case "s3":
		if cfg.Uploads.S3.Bucket == "" {
			return fmt.Errorf("uploads.s3.bucket is required")
		}
		if cfg.Uploads.S3.AccessKeyID == "" || cfg.Uploads.S3.SecretAccessKey == "" {
			return fmt.Errorf("uploads.s3 credentials are required")
		}
	default:
		return fmt.Errorf("unknown uploads.backend %q", cfg.Uploads.Backend)
	}

	switch cfg.Cache.Backend {
	case "none", "lru":
	case "redis":
		if cfg.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", cfg.Cache.Backend)
	}

	if cfg.Search.DefaultAlpha < 0 || cfg.Search.DefaultAlpha > 1 {
		return fmt.Errorf("search.default_alpha must be within [0, 1]")
	}
	if cfg.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive")
	}
	if cfg.Search.MaxUploadBytes <= 0 {
		return fmt.Errorf("search.max_upload_bytes must be positive")
	}
	return nil
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}
