package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads; t.Setenv restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{ConfigPathEnvVar}
	for k := range envMappings {
		keys = append(keys, strings.ToUpper(k))
	}
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pangu-mvp-data", cfg.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Empty(t, cfg.S3.Endpoint)
	assert.Equal(t, "indices/sti/", cfg.STI.BasePrefix)
	assert.Equal(t, "sti", cfg.STI.IndexName)
	assert.Equal(t, "chile", cfg.STI.RegionName)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MetadataTTL)
	assert.Equal(t, 128, cfg.Cache.MetadataSize)
	assert.Equal(t, int64(100), cfg.Cache.MinFileSize)
	assert.Equal(t, 60*time.Second, cfg.Cache.LockTimeout)
	assert.Equal(t, 1, cfg.Cache.LateDecodeRefetch)
	assert.Equal(t, os.TempDir(), cfg.Cache.Dir)
	assert.Equal(t, []string{"*"}, cfg.Security.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.NoError(t, cfg.Validate())
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"S3_BUCKET_NAME", "s3.bucket"},
		{"AWS_REGION", "s3.region"},
		{"METADATA_CACHE_TTL", "cache.metadata_ttl"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransformFunc(tt.env), tt.env)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("S3_BUCKET_NAME", "other-bucket")
	t.Setenv("AWS_REGION", "sa-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("METADATA_CACHE_TTL", "30s")
	t.Setenv("LOCK_TIMEOUT", "2m")
	t.Setenv("MIN_FILE_SIZE", "512")
	t.Setenv("LATE_DECODE_REFETCH", "0")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "other-bucket", cfg.S3.Bucket)
	assert.Equal(t, "sa-east-1", cfg.S3.Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Cache.MetadataTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.LockTimeout)
	assert.Equal(t, int64(512), cfg.Cache.MinFileSize)
	assert.Equal(t, 0, cfg.Cache.LateDecodeRefetch)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset values keep their defaults.
	assert.Equal(t, "indices/sti/", cfg.STI.BasePrefix)
	assert.Equal(t, 128, cfg.Cache.MetadataSize)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
s3:
  bucket: file-bucket
sti:
  region_name: peru
cache:
  metadata_ttl: 1m
security:
  cors_origins:
    - https://maps.example
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STI_REGION_NAME", "chile-north")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-bucket", cfg.S3.Bucket)
	assert.Equal(t, time.Minute, cfg.Cache.MetadataTTL)
	assert.Equal(t, []string{"https://maps.example"}, cfg.Security.CORSOrigins)
	// Env wins over the file.
	assert.Equal(t, "chile-north", cfg.STI.RegionName)
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCK_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty bucket", func(c *Config) { c.S3.Bucket = " " }, "S3_BUCKET_NAME"},
		{"prefix without slash", func(c *Config) { c.STI.BasePrefix = "indices/sti" }, "STI_BASE_PREFIX"},
		{"empty index", func(c *Config) { c.STI.IndexName = "" }, "STI_INDEX_NAME"},
		{"zero ttl", func(c *Config) { c.Cache.MetadataTTL = 0 }, "METADATA_CACHE_TTL"},
		{"zero cache size", func(c *Config) { c.Cache.MetadataSize = 0 }, "METADATA_CACHE_SIZE"},
		{"negative min size", func(c *Config) { c.Cache.MinFileSize = -1 }, "MIN_FILE_SIZE"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "PORT"},
		{"half credentials", func(c *Config) { c.S3.AccessKeyID = "AKIA" }, "AWS_SECRET_ACCESS_KEY"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, ":8080", cfg.Addr())
}
