// Package config provides environment-driven configuration for bookvault.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Retry holds the default retry policy for transient database failures.
type Retry struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Config holds all application configuration values.
type Config struct {
	DatabaseURL    Secret
	Port           string
	ListenHost     string
	MetricsPort    string
	CORSOrigins    []string
	LogLevel       string
	DBMaxConns     int
	TxTimeout      time.Duration
	TxParallelism  int
	TxIsolation    string
	Retry          Retry
	BatchChunkSize int
	AuditQueueSize int
	OTelEnabled    bool
	OTelEndpoint   string
}

// fileConfig is the YAML overlay named by CONFIG_FILE. Keys match the
// environment variable names in lower case. Environment variables win.
type fileConfig map[string]string

// Load reads configuration from environment variables with sensible defaults.
// When CONFIG_FILE is set, the YAML file it names supplies values for any
// variable not present in the environment.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v, ok := file[strings.ToLower(key)]; ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		DatabaseURL:  Secret(get("DATABASE_URL", "")),
		Port:         get("PORT", "3030"),
		ListenHost:   get("LISTEN_HOST", "127.0.0.1"),
		MetricsPort:  get("METRICS_PORT", "9091"),
		LogLevel:     get("LOG_LEVEL", "info"),
		TxIsolation:  get("TX_ISOLATION", ""),
		OTelEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var errs []error
	intVar := func(key, fallback string, dst *int) {
		v, err := strconv.Atoi(get(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer", key))
			return
		}
		*dst = v
	}
	durationVar := func(key, fallback string, dst *time.Duration) {
		v, err := time.ParseDuration(get(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a duration such as 500ms or 30s", key))
			return
		}
		*dst = v
	}

	intVar("DB_MAX_CONNS", "21", &cfg.DBMaxConns)
	intVar("TX_PARALLELISM", "8", &cfg.TxParallelism)
	intVar("RETRY_MAX_ATTEMPTS", "3", &cfg.Retry.MaxAttempts)
	intVar("BATCH_CHUNK_SIZE", "100", &cfg.BatchChunkSize)
	intVar("AUDIT_QUEUE_SIZE", "1000", &cfg.AuditQueueSize)
	durationVar("TX_TIMEOUT", "30s", &cfg.TxTimeout)
	durationVar("RETRY_BASE_DELAY", "1s", &cfg.Retry.BaseDelay)
	durationVar("RETRY_MAX_DELAY", "10s", &cfg.Retry.MaxDelay)

	factor, err := strconv.ParseFloat(get("RETRY_BACKOFF_FACTOR", "2"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("RETRY_BACKOFF_FACTOR must be a number"))
	}
	cfg.Retry.BackoffFactor = factor

	otel, err := strconv.ParseBool(get("OTEL_ENABLED", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("OTEL_ENABLED must be true or false"))
	}
	cfg.OTelEnabled = otel

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errs[0])
	}

	origins := get("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	file := make(fileConfig, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			file[strings.ToLower(k)] = strings.Join(parts, ",")
		case nil:
		default:
			file[strings.ToLower(k)] = fmt.Sprint(val)
		}
	}

	return file, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}
