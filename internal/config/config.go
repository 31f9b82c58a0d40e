package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinRetentionDays mirrors the audit purge floor; a schedule below it would be
// rejected on every run.
const MinRetentionDays = 30

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Version  string `mapstructure:"VERSION"`
	Commit   string `mapstructure:"COMMIT"`

	// DatabaseURL selects the audit store: postgres://..., sqlite://<path> or memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	IdentityAPIURL            string        `mapstructure:"IDENTITY_API_URL"`
	IdentitySecretKey         string        `mapstructure:"IDENTITY_SECRET_KEY"`
	IdentityJWTPublicKey      string        `mapstructure:"IDENTITY_JWT_PUBLIC_KEY"`
	IdentityJWTSecret         string        `mapstructure:"IDENTITY_JWT_SECRET"`
	IdentityAuthorizedParties string        `mapstructure:"IDENTITY_AUTHORIZED_PARTIES"`
	IdentityTimeout           time.Duration `mapstructure:"IDENTITY_TIMEOUT"`

	AuditWriteTimeout      time.Duration `mapstructure:"AUDIT_WRITE_TIMEOUT"`
	AuditRetentionDays     int           `mapstructure:"AUDIT_RETENTION_DAYS"`
	AuditRetentionSchedule string        `mapstructure:"AUDIT_RETENTION_SCHEDULE"`

	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic string `mapstructure:"KAFKA_AUDIT_TOPIC"`

	RateLimitAPIMax      int           `mapstructure:"RATE_LIMIT_API_MAX"`
	RateLimitAPIWindow   time.Duration `mapstructure:"RATE_LIMIT_API_WINDOW"`
	RateLimitAdminMax    int           `mapstructure:"RATE_LIMIT_ADMIN_MAX"`
	RateLimitAdminWindow time.Duration `mapstructure:"RATE_LIMIT_ADMIN_WINDOW"`

	CORSOrigins  string `mapstructure:"CORS_ORIGINS"`
	MaxBodyBytes int64  `mapstructure:"MAX_BODY_BYTES"`
	// TrustedProxies lists CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

var defaults = map[string]any{
	"APP_ENV":                     "local",
	"HTTP_ADDR":                   ":8080",
	"LOG_LEVEL":                   "info",
	"VERSION":                     "dev",
	"COMMIT":                      "unknown",
	"DATABASE_URL":                "sqlite://data/audit.db",
	"REDIS_URL":                   "",
	"IDENTITY_API_URL":            "https://api.clerk.com",
	"IDENTITY_SECRET_KEY":         "",
	"IDENTITY_JWT_PUBLIC_KEY":     "",
	"IDENTITY_JWT_SECRET":         "",
	"IDENTITY_AUTHORIZED_PARTIES": "",
	"IDENTITY_TIMEOUT":            "5s",
	"AUDIT_WRITE_TIMEOUT":         "3s",
	"AUDIT_RETENTION_DAYS":        365,
	"AUDIT_RETENTION_SCHEDULE":    "30 3 * * *",
	"KAFKA_BROKERS":               "",
	"KAFKA_AUDIT_TOPIC":           "audit-logs",
	"RATE_LIMIT_API_MAX":          100,
	"RATE_LIMIT_API_WINDOW":       "15m",
	"RATE_LIMIT_ADMIN_MAX":        50,
	"RATE_LIMIT_ADMIN_WINDOW":     "5m",
	"CORS_ORIGINS":                "http://localhost:3000",
	"MAX_BODY_BYTES":              1 << 20,
	"TRUSTED_PROXIES":             "",
	"TRACING_ENABLED":             false,
	"TRACING_SAMPLE_RATIO":        1.0,
}

// Load reads configuration from defaults, an optional file named by
// ARTENG_CONFIG, and the environment (highest precedence).
func Load() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("ARTENG_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.AuditRetentionDays < MinRetentionDays {
		errs = append(errs, fmt.Errorf("AUDIT_RETENTION_DAYS must be >= %d, got %d", MinRetentionDays, c.AuditRetentionDays))
	}
	if c.IdentityTimeout <= 0 {
		errs = append(errs, errors.New("IDENTITY_TIMEOUT must be positive"))
	}
	if c.AuditWriteTimeout <= 0 {
		errs = append(errs, errors.New("AUDIT_WRITE_TIMEOUT must be positive"))
	}
	if c.IsProduction() {
		if c.IdentitySecretKey == "" {
			errs = append(errs, errors.New("IDENTITY_SECRET_KEY is required in production"))
		}
		if c.IdentityJWTPublicKey == "" && c.IdentityJWTSecret == "" {
			errs = append(errs, errors.New("IDENTITY_JWT_PUBLIC_KEY or IDENTITY_JWT_SECRET is required in production"))
		}
		if c.StoreKind() == StoreMemory {
			errs = append(errs, errors.New("in-memory audit store is not allowed in production"))
		}
	}
	if c.StoreKind() == StoreUnknown {
		errs = append(errs, fmt.Errorf("unsupported DATABASE_URL scheme: %q", c.DatabaseURL))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

type StoreKind int

const (
	StoreUnknown StoreKind = iota
	StorePostgres
	StoreSQLite
	StoreMemory
)

// StoreKind derives the audit backend from DatabaseURL.
func (c Config) StoreKind() StoreKind {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return StorePostgres
	case strings.HasPrefix(u, "sqlite://"):
		return StoreSQLite
	case u == "memory":
		return StoreMemory
	default:
		return StoreUnknown
	}
}

// SQLitePath returns the file path part of a sqlite:// URL.
func (c Config) SQLitePath() string {
	return strings.TrimPrefix(strings.TrimSpace(c.DatabaseURL), "sqlite://")
}

func (c Config) KafkaBrokerList() []string { return splitList(c.KafkaBrokers) }

func (c Config) CORSOriginList() []string { return splitList(c.CORSOrigins) }

func (c Config) TrustedProxyList() []string { return splitList(c.TrustedProxies) }

func (c Config) AuthorizedPartyList() []string { return splitList(c.IdentityAuthorizedParties) }

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
