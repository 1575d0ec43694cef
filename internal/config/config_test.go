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
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 8*time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileWithDurationsAndDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"app": {"http_addr": ":9000", "shutdown_timeout": "2s"},
		"database": {"driver": "sqlite", "dsn": "file:test.db", "conn_max_lifetime": "30m"},
		"security": {"jwt_secret": "s3cret", "token_ttl": "1h"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, 10, cfg.Security.BcryptCost)
}

func TestLoad_RateLimitZeroDisables(t *testing.T) {
	path := writeConfig(t, `{"security": {"jwt_secret": "s", "rate_limit": 0, "rate_wait": "0s"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.Security.RateLimit)
	assert.Zero(t, cfg.Security.RateWait)
	assert.Equal(t, float64(10), cfg.Security.RateBurst)
}

func TestLoad_RateLimitDefaultsWhenAbsent(t *testing.T) {
	path := writeConfig(t, `{"security": {"jwt_secret": "s", "rate_burst": 4}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, float64(3), cfg.Security.RateLimit)
	assert.Equal(t, float64(4), cfg.Security.RateBurst)
	assert.Equal(t, 300*time.Millisecond, cfg.Security.RateWait)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `{"security": {"token_ttl": "soon"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_TTL", "15m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("PORT", "8080")
	t.Setenv("ADMIN_USERNAME", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.Security.TokenTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Empty(t, cfg.Admin.Username)
}

func TestLoad_MySQLDSNFromParts(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "tasks")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	parsed := parseMySQLDSN(cfg.Database.DSN)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "pw", parsed.Passwd)
	assert.Equal(t, "tasks", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestValidate(t *testing.T) {
	cfg := getDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Security.JWTSecret = " "
	assert.Error(t, cfg.Validate())

	cfg = getDefaultConfig()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = getDefaultConfig()
	cfg.Admin.Password = ""
	assert.Error(t, cfg.Validate())
}
