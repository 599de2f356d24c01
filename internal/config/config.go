// Package config loads the STI API configuration.
//
// Sources are layered with koanf: built-in defaults, then an optional YAML
// file, then environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	S3       S3Config       `koanf:"s3"`
	STI      STIConfig      `koanf:"sti"`
	Cache    CacheConfig    `koanf:"cache"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// S3Config selects the bucket and how to reach it.
type S3Config struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"` // Custom endpoint (MinIO, localstack); path-style addressing when set.
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

// STIConfig holds the object naming constants.
type STIConfig struct {
	BasePrefix string `koanf:"base_prefix"`
	IndexName  string `koanf:"index_name"`
	RegionName string `koanf:"region_name"`
}

// CacheConfig tunes the metadata cache and the local file cache.
type CacheConfig struct {
	Dir               string        `koanf:"dir"`
	MetadataTTL       time.Duration `koanf:"metadata_ttl"`
	MetadataSize      int           `koanf:"metadata_size"`
	MinFileSize       int64         `koanf:"min_file_size"`
	LockTimeout       time.Duration `koanf:"lock_timeout"`
	LateDecodeRefetch int           `koanf:"late_decode_refetch"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.S3.Bucket) == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
	}
	if strings.TrimSpace(c.S3.Region) == "" {
		errs = append(errs, errors.New("AWS_REGION is required"))
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	}
	if strings.TrimSpace(c.STI.BasePrefix) == "" {
		errs = append(errs, errors.New("STI_BASE_PREFIX is required"))
	} else if !strings.HasSuffix(c.STI.BasePrefix, "/") {
		errs = append(errs, fmt.Errorf("STI_BASE_PREFIX must end with '/', got %q", c.STI.BasePrefix))
	}
	if strings.TrimSpace(c.STI.IndexName) == "" {
		errs = append(errs, errors.New("STI_INDEX_NAME is required"))
	}
	if strings.TrimSpace(c.STI.RegionName) == "" {
		errs = append(errs, errors.New("STI_REGION_NAME is required"))
	}
	if c.Cache.MetadataTTL <= 0 {
		errs = append(errs, errors.New("METADATA_CACHE_TTL must be positive"))
	}
	if c.Cache.MetadataSize <= 0 {
		errs = append(errs, errors.New("METADATA_CACHE_SIZE must be positive"))
	}
	if c.Cache.MinFileSize < 0 {
		errs = append(errs, errors.New("MIN_FILE_SIZE must not be negative"))
	}
	if c.Cache.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.Cache.LateDecodeRefetch < 0 {
		errs = append(errs, errors.New("LATE_DECODE_REFETCH must not be negative"))
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		errs = append(errs, errors.New("CACHE_DIR is required"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
