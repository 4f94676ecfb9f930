// Package config assembles the typed fieldsync configuration.
//
// Values are layered, later sources winning:
//  1. built-in defaults
//  2. config.toml (through a driven.ConfigStore)
//  3. .env.local, found by walking up from the working directory
//  4. FIELDSYNC_* environment variables (crm.base_url -> FIELDSYNC_CRM_BASE_URL)
//
// The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIELDSYNC_"

// Config is the complete runtime configuration.
type Config struct {
	CRM      CRMConfig     `key:"crm"`
	DataDir  string        `key:"data_dir" validate:"required"`
	SpoolDir string        `key:"spool_dir" validate:"required"`
	Log      LogConfig     `key:"log"`
	Metrics  MetricsConfig `key:"metrics"`
}

// CRMConfig configures the REST CRM client. An empty BaseURL selects the
// in-memory CRM for dry runs.
type CRMConfig struct {
	BaseURL         string        `key:"base_url" validate:"omitempty,url"`
	Token           string        `key:"token"`
	Timeout         time.Duration `key:"timeout" validate:"gt=0"`
	RatePerSecond   float64       `key:"rate_per_second" validate:"gte=0"`
	Burst           int           `key:"burst" validate:"gte=1"`
	BreakerFailures int           `key:"breaker_failures" validate:"gte=1"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `key:"level" validate:"oneof=debug info warn error"`
	Format string `key:"format" validate:"oneof=console json"`
}

// MetricsConfig configures the Prometheus endpoint. Empty disables it.
type MetricsConfig struct {
	Addr string `key:"addr" validate:"omitempty,hostname_port"`
}

// DryRun reports whether no CRM endpoint is configured.
func (c *Config) DryRun() bool {
	return c.CRM.BaseURL == ""
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dataDir := ".fieldsync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".fieldsync", "data")
	}
	return &Config{
		CRM: CRMConfig{
			Timeout:         15 * time.Second,
			RatePerSecond:   5,
			Burst:           5,
			BreakerFailures: 5,
		},
		DataDir: dataDir,
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// setting binds one dotted key to a Config field.
type setting struct {
	key   string
	apply func(c *Config, raw string) error
}

var settings = []setting{
	{"crm.base_url", func(c *Config, v string) error { c.CRM.BaseURL = v; return nil }},
	{"crm.token", func(c *Config, v string) error { c.CRM.Token = v; return nil }},
	{"crm.timeout", func(c *Config, v string) (err error) { c.CRM.Timeout, err = parseDuration(v); return err }},
	{"crm.rate_per_second", func(c *Config, v string) (err error) {
		c.CRM.RatePerSecond, err = strconv.ParseFloat(v, 64)
		return err
	}},
	{"crm.burst", func(c *Config, v string) (err error) { c.CRM.Burst, err = strconv.Atoi(v); return err }},
	{"crm.breaker_failures", func(c *Config, v string) (err error) {
		c.CRM.BreakerFailures, err = strconv.Atoi(v)
		return err
	}},
	{"data_dir", func(c *Config, v string) error { c.DataDir = v; return nil }},
	{"spool_dir", func(c *Config, v string) error { c.SpoolDir = v; return nil }},
	{"log.level", func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil }},
	{"log.format", func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil }},
	{"metrics.addr", func(c *Config, v string) error { c.Metrics.Addr = v; return nil }},
}

// Keys lists every recognised configuration key.
func Keys() []string {
	keys := make([]string, len(settings))
	for i, s := range settings {
		keys[i] = s.key
	}
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the configuration from defaults, store and environment.
// store may be nil.
func Load(store driven.ConfigStore) (*Config, error) {
	cfg := Default()

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var errs []error
	for _, s := range settings {
		raw, ok := lookup(store, s.key)
		if !ok {
			continue
		}
		if err := s.apply(cfg, strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.key, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: config: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}

	if cfg.SpoolDir == "" {
		cfg.SpoolDir = filepath.Join(cfg.DataDir, "spool")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookup returns the environment override for key, else the stored value.
func lookup(store driven.ConfigStore, key string) (string, bool) {
	env := EnvName(key)
	if v := getEnvOrFile(env, env+"_FILE"); v != "" {
		return v, true
	}
	if store == nil {
		return "", false
	}
	val, ok := store.Get(key)
	if !ok {
		return "", false
	}
	return domain.ToString(val), true
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("key")
		})
	})
	return validate
}

// Validate checks cfg and reports every offending key.
func Validate(cfg *Config) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: config: %v", domain.ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: config: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

// describe renders a field error against its dotted key.
func describe(fe validator.FieldError) string {
	// Namespace is "Config.crm.timeout"; drop the root.
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "url":
		return key + " must be a URL"
	case "hostname_port":
		return key + " must be host:port"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}

// parseDuration accepts Go durations ("20s") and bare seconds ("20").
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set.
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		home = filepath.Clean(home)
	}

	dir := filepath.Clean(cwd)
	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == home {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
