package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	TerminalKey        string
	CatalogBaseURL     string
	CustomerBaseURL    string
	BillsBaseURL       string
	CORSAllowedOrigins []string
	TaxBps             int
	CatalogCacheTTL    time.Duration
	ReceiptTTL         time.Duration
	IdempotencyTTL     time.Duration
	UpstreamTimeout    time.Duration
	CouponRate         string
	MetricsNamespace   string
	MetricsBucketsCSV  string
	LogFormat          string
	LogLevel           string
	TracingEnabled     bool
	TracingEndpoint    string
	TracingExporter    string
	TracingSampling    float64
	TracingEnvironment string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		TerminalKey:        k.String("TERMINAL_KEY"),
		CatalogBaseURL:     k.String("CATALOG_BASE_URL"),
		CustomerBaseURL:    k.String("CUSTOMER_BASE_URL"),
		BillsBaseURL:       k.String("BILLS_BASE_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TaxBps:             parseInt(k.String("TAX_BPS"), 1800),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		ReceiptTTL:         parseDuration(k.String("RECEIPT_TTL"), "720h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		UpstreamTimeout:    parseDuration(k.String("UPSTREAM_TIMEOUT"), "5s"),
		CouponRate:         valueOrDefault(k.String("COUPON_RATE_LIMIT"), "30-M"),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "pos"),
		MetricsBucketsCSV:  k.String("METRICS_BUCKETS_MS"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		TracingEnabled:     parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:    k.String("TRACING_ENDPOINT"),
		TracingExporter:    valueOrDefault(k.String("TRACING_EXPORTER"), "otlp"),
		TracingSampling:    parseFloat(k.String("TRACING_SAMPLING_RATIO"), 1),
		TracingEnvironment: valueOrDefault(k.String("TRACING_ENVIRONMENT"), "development"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CatalogBaseURL == "" {
		return nil, errors.New("CATALOG_BASE_URL is required")
	}
	if cfg.CustomerBaseURL == "" {
		return nil, errors.New("CUSTOMER_BASE_URL is required")
	}
	if cfg.BillsBaseURL == "" {
		return nil, errors.New("BILLS_BASE_URL is required")
	}
	if cfg.TaxBps < 0 || cfg.TaxBps > 10_000 {
		return nil, errors.New("TAX_BPS must be between 0 and 10000")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of one Load.
func LoadForTests(vars map[string]string) (*Config, error) {
	original := make(map[string]*string, len(vars))
	for key, value := range vars {
		if existing, ok := os.LookupEnv(key); ok {
			v := existing
			original[key] = &v
		} else {
			original[key] = nil
		}
		if err := os.Setenv(key, value); err != nil {
			return nil, err
		}
	}
	defer func() {
		for key, value := range original {
			if value == nil {
				_ = os.Unsetenv(key)
			} else {
				_ = os.Setenv(key, *value)
			}
		}
	}()
	return Load()
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
