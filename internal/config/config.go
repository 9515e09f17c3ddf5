package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	ScanCooldown  time.Duration
	ScanAutoClose bool

	RefundLockTTL      time.Duration
	LockRetryBackoff   time.Duration
	IdempotencyTTL     time.Duration
	TerminalSessionTTL time.Duration
	CatalogCacheTTL    time.Duration

	// DefaultTaxRate applies when a business has no stored settings and a
	// sale or order arrives with a zero tax percentage.
	DefaultTaxRate    decimal.Decimal
	LowStockThreshold int
	LowStockAlerts    bool

	// LowStockWebhookURL receives worker alerts; empty keeps them log-only.
	LowStockWebhookURL string
	OutboundTimeout    time.Duration

	RateLimitScanPerMin   int
	RateLimitWritesPerMin int
	BodyLimitBytes        int64
	WorkerConcurrency     int
	MigrationsAuto        bool
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return fromKoanf(vars{k})
}

func fromKoanf(v vars) (*Config, error) {
	cfg := &Config{
		AppEnv:                v.str("APP_ENV", "development"),
		Port:                  v.str("PORT", "8080"),
		DatabaseURL:           v.str("DATABASE_URL", ""),
		RedisURL:              v.str("REDIS_URL", ""),
		CORSAllowedOrigins:    v.list("CORS_ALLOWED_ORIGINS"),
		ScanCooldown:          v.dur("SCAN_COOLDOWN", 1500*time.Millisecond),
		ScanAutoClose:         v.flag("SCAN_AUTO_CLOSE", false),
		RefundLockTTL:         v.dur("REFUND_LOCK_TTL", 10*time.Second),
		LockRetryBackoff:      v.dur("LOCK_RETRY_BACKOFF", 50*time.Millisecond),
		IdempotencyTTL:        v.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		TerminalSessionTTL:    v.dur("TERMINAL_SESSION_TTL", 12*time.Hour),
		CatalogCacheTTL:       v.dur("CATALOG_CACHE_TTL", 30*time.Second),
		LowStockThreshold:     v.num("LOW_STOCK_THRESHOLD", 5),
		LowStockAlerts:        v.flag("LOW_STOCK_ALERTS", true),
		LowStockWebhookURL:    v.str("LOW_STOCK_WEBHOOK_URL", ""),
		OutboundTimeout:       v.dur("OUTBOUND_TIMEOUT", 5*time.Second),
		RateLimitScanPerMin:   v.num("RATE_LIMIT_SCAN_PER_MIN", 120),
		RateLimitWritesPerMin: v.num("RATE_LIMIT_WRITES_PER_MIN", 300),
		BodyLimitBytes:        int64(v.num("BODY_LIMIT_BYTES", 1<<20)),
		WorkerConcurrency:     v.num("WORKER_CONCURRENCY", 5),
		MigrationsAuto:        v.flag("MIGRATIONS_AUTO", false),
	}

	var errs []error
	rate, err := v.decimal("DEFAULT_TAX_RATE")
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("DEFAULT_TAX_RATE: %w", err))
	case rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)):
		errs = append(errs, errors.New("DEFAULT_TAX_RATE must be between 0 and 100"))
	}
	cfg.DefaultTaxRate = rate

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if cfg.ScanCooldown <= 0 {
		errs = append(errs, errors.New("SCAN_COOLDOWN must be positive"))
	}
	if cfg.LowStockThreshold < 0 {
		errs = append(errs, errors.New("LOW_STOCK_THRESHOLD must not be negative"))
	}
	if cfg.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr is the listen address derived from PORT, which may be given
// with or without the leading colon.
func (c *Config) HTTPAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

// vars reads typed values out of koanf. Unparseable values fall back to the
// default rather than failing startup; only DEFAULT_TAX_RATE is strict.
type vars struct{ k *koanf.Koanf }

func (v vars) str(key, fallback string) string {
	if s := strings.TrimSpace(v.k.String(key)); s != "" {
		return s
	}
	return fallback
}

func (v vars) list(key string) []string {
	var out []string
	for _, part := range strings.Split(v.k.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (v vars) dur(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.str(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func (v vars) num(key string, fallback int) int {
	n, err := strconv.Atoi(v.str(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func (v vars) flag(key string, fallback bool) bool {
	switch strings.ToLower(v.str(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (v vars) decimal(key string) (decimal.Decimal, error) {
	raw := v.str(key, "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
