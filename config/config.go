package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the report store. Driver is one of postgres,
// sqlite or memory.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	// Schema names the table layout: post or report.
	Schema string `mapstructure:"schema"`
}

type UploadsConfig struct {
	Backend   string   `mapstructure:"backend"` // local or s3
	Root      string   `mapstructure:"root"`
	PublicURL string   `mapstructure:"public_url"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config points at an S3 compatible bucket. For Cloudflare R2 leave
// Endpoint empty and set AccountID.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	AccountID       string `mapstructure:"account_id"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
}

type SearchConfig struct {
	DefaultAlpha      float64 `mapstructure:"default_alpha"`
	PageSize          int     `mapstructure:"page_size"`
	MaxPageSize       int     `mapstructure:"max_page_size"`
	ImageTopN         int     `mapstructure:"image_top_n"`
	Workers           int     `mapstructure:"workers"`
	ParallelThreshold int     `mapstructure:"parallel_threshold"`
	MaxUploadBytes    int64   `mapstructure:"max_upload_bytes"`
}

// CacheConfig configures the query fingerprint cache. Backend is none, lru
// or redis.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
