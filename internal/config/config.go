// Package config handles handler configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/orders"
	"redshift-orders/internal/waiter"
)

// PollConfig bounds how long a handler waits on one statement.
type PollConfig struct {
	MaxAttempts      int           // non-terminal describes before giving up (default 20)
	Interval         time.Duration // first delay between polls (default 1s)
	MaxInterval      time.Duration // delay cap; exponential when above Interval (default 5s)
	MaxWait          time.Duration // optional wall-clock budget per statement (default none)
	TransportRetries int           // resumes after retryable transport errors (default 2)
}

// Policy converts the settings into a waiter policy.
func (p PollConfig) Policy() waiter.Policy {
	return waiter.Policy{
		MaxAttempts: p.MaxAttempts,
		Interval:    p.Interval,
		MaxInterval: p.MaxInterval,
		MaxWait:     p.MaxWait,
	}
}

// Config holds the configuration shared by the Lambda handlers, the local
// server and the CLI.
type Config struct {
	Target   domain.Target
	Region   string // AWS region; empty uses the SDK default chain
	Endpoint string // Data API endpoint override (optional)

	Table        string // order table (default "public.kj_order")
	Role         string // role granted read access (default "role1")
	TablePattern string // LIKE pattern for listing tables (default "kj%")

	Poll PollConfig

	// Client-side rate limit on Data API calls; zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Per-client request limit of the local HTTP server; zero RPS disables it.
	HTTPRateLimitRPS   float64
	HTTPRateLimitBurst int

	LocalDBPath string // run against the SQLite emulator instead of the Data API
	ListenAddr  string // HTTP listen address (default ":8080")
	LogLevel    string // log level: debug, info, warn, error (default "info")
	Env         string // environment: "development" (default) or "production"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// IsLocal returns true when statements run on the SQLite emulator.
func (c *Config) IsLocal() bool {
	return c.LocalDBPath != ""
}

// Orders returns the identifiers used by the order operations.
func (c *Config) Orders() orders.Settings {
	return orders.Settings{Table: c.Table, Role: c.Role, TablePattern: c.TablePattern}
}

// Validate checks the loaded values. Everything it rejects is a
// *domain.ConfigurationError so handlers can report it before any remote call.
func (c *Config) Validate() error {
	if !c.IsLocal() {
		if err := c.Target.Validate(); err != nil {
			return err
		}
	}
	if err := c.Orders().Validate(); err != nil {
		return err
	}
	if err := c.Poll.Policy().Validate(); err != nil {
		return err
	}
	if c.Poll.TransportRetries < 0 {
		return domain.ErrConfiguration("transport_retries", "must not be negative, got %d", c.Poll.TransportRetries)
	}
	if c.RateLimitRPS < 0 {
		return domain.ErrConfiguration("data_api_rps", "must not be negative, got %g", c.RateLimitRPS)
	}
	if c.RateLimitBurst < 0 {
		return domain.ErrConfiguration("data_api_burst", "must not be negative, got %d", c.RateLimitBurst)
	}
	if c.HTTPRateLimitRPS < 0 {
		return domain.ErrConfiguration("http_rate_limit_rps", "must not be negative, got %g", c.HTTPRateLimitRPS)
	}
	if c.HTTPRateLimitBurst < 0 {
		return domain.ErrConfiguration("http_rate_limit_burst", "must not be negative, got %d", c.HTTPRateLimitBurst)
	}
	if c.IsProduction() && c.IsLocal() {
		return domain.ErrConfiguration("local_db_path", "the local engine is not allowed in production (ENV=production)")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables and validates it.
func LoadFromEnv() (*Config, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvUnvalidated loads configuration from environment variables with
// defaults applied but without validation, for callers that overlay further
// sources (flags, profiles) before validating.
func LoadFromEnvUnvalidated() (*Config, error) {
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	cfg := &Config{
		Target: domain.Target{
			Database:  os.Getenv("REDSHIFT_DATABASE"),
			Workgroup: os.Getenv("REDSHIFT_WORKGROUP"),
			SecretARN: os.Getenv("REDSHIFT_SECRET_ARN"),
		},
		Region:       os.Getenv("AWS_REGION"),
		Endpoint:     os.Getenv("DATA_API_ENDPOINT"),
		Table:        os.Getenv("DB_TABLE"),
		Role:         os.Getenv("DB_ROLE"),
		TablePattern: os.Getenv("TABLE_PATTERN"),
		LocalDBPath:  os.Getenv("LOCAL_DB_PATH"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		Poll: PollConfig{
			MaxAttempts:      waiter.DefaultMaxAttempts,
			Interval:         waiter.DefaultInterval,
			MaxInterval:      waiter.DefaultMaxInterval,
			TransportRetries: 2,
		},
		RateLimitBurst:     1,
		HTTPRateLimitRPS:   10,
		HTTPRateLimitBurst: 20,
	}

	var err error
	if cfg.Poll.MaxAttempts, err = intEnv("POLL_MAX_ATTEMPTS", cfg.Poll.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Poll.Interval, err = durationEnv("POLL_INTERVAL", cfg.Poll.Interval); err != nil {
		return nil, err
	}
	if cfg.Poll.MaxInterval, err = durationEnv("POLL_MAX_INTERVAL", cfg.Poll.MaxInterval); err != nil {
		return nil, err
	}
	if cfg.Poll.MaxWait, err = durationEnv("POLL_MAX_WAIT", 0); err != nil {
		return nil, err
	}
	if cfg.Poll.TransportRetries, err = intEnv("TRANSPORT_RETRIES", cfg.Poll.TransportRetries); err != nil {
		return nil, err
	}
	if v := os.Getenv("DATA_API_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, domain.ErrConfiguration("DATA_API_RPS", "not a number: %q", v)
		}
		cfg.RateLimitRPS = f
	}
	if cfg.RateLimitBurst, err = intEnv("DATA_API_BURST", cfg.RateLimitBurst); err != nil {
		return nil, err
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, domain.ErrConfiguration("HTTP_RATE_LIMIT_RPS", "not a number: %q", v)
		}
		cfg.HTTPRateLimitRPS = f
	}
	if cfg.HTTPRateLimitBurst, err = intEnv("HTTP_RATE_LIMIT_BURST", cfg.HTTPRateLimitBurst); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.Table == "" {
		cfg.Table = orders.DefaultTable
	}
	if cfg.Role == "" {
		cfg.Role = orders.DefaultRole
	}
	if cfg.TablePattern == "" {
		cfg.TablePattern = orders.DefaultTablePattern
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Poll.MaxInterval < cfg.Poll.Interval {
		cfg.Warnings = append(cfg.Warnings, "POLL_MAX_INTERVAL is below POLL_INTERVAL; polling with a constant delay")
	}
	if cfg.IsLocal() {
		cfg.Warnings = append(cfg.Warnings, "LOCAL_DB_PATH is set; statements run on the SQLite emulator, not the Data API")
	}

	return cfg, nil
}

func intEnv(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.ErrConfiguration(key, "not an integer: %q", v)
	}
	return n, nil
}

// durationEnv accepts Go durations ("1500ms") or plain seconds ("2").
func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, domain.ErrConfiguration(key, "not a duration: %q", v)
	}
	return d, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Variables already in the environment win.
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
