package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ARTENG_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.IdentityTimeout)
	assert.Equal(t, 3*time.Second, cfg.AuditWriteTimeout)
	assert.Equal(t, 365, cfg.AuditRetentionDays)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitAPIWindow)
	assert.Equal(t, 50, cfg.RateLimitAdminMax)
	assert.Equal(t, StoreSQLite, cfg.StoreKind())
	assert.Equal(t, "data/audit.db", cfg.SQLitePath())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARTENG_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/arteng")
	t.Setenv("IDENTITY_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("AUDIT_RETENTION_DAYS", "90")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreKind())
	assert.Equal(t, 750*time.Millisecond, cfg.IdentityTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
	assert.Equal(t, 90, cfg.AuditRetentionDays)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxyList())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arteng.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR: \":9090\"\nCORS_ORIGINS: https://admin.arteng.org\n"), 0o600))
	t.Setenv("ARTENG_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://admin.arteng.org"}, cfg.CORSOriginList())
}

func TestValidateRejectsRetentionBelowFloor(t *testing.T) {
	t.Setenv("ARTENG_CONFIG", "")
	t.Setenv("AUDIT_RETENTION_DAYS", "7")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_RETENTION_DAYS")
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := Config{
		AppEnv:             "production",
		DatabaseURL:        "memory",
		AuditRetentionDays: 90,
		IdentityTimeout:    time.Second,
		AuditWriteTimeout:  time.Second,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDENTITY_SECRET_KEY")
	assert.Contains(t, err.Error(), "in-memory audit store")

	cfg.DatabaseURL = "mysql://nope"
	cfg.AppEnv = "local"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DATABASE_URL")
}
