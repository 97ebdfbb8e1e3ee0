// Package config loads the change report configuration with Viper.
//
// Values come from, lowest precedence first: built-in defaults, an optional
// YAML file, WM_ prefixed environment variables (api.base_url becomes
// WM_API_BASE_URL) and command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "WM"

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config is the complete run configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Query  QueryConfig  `mapstructure:"query"`
	Window WindowConfig `mapstructure:"window"`
	Groups GroupsConfig `mapstructure:"groups"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

// APIConfig locates and authenticates against the monitoring API.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
}

type QueryConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	SourceType string        `mapstructure:"source_type"`
	PageDelay  time.Duration `mapstructure:"page_delay"`
}

// WindowConfig selects the capture-time range. From and To take RFC 3339
// timestamps or plain dates; when From is empty the window spans Days
// before To, and an empty To means now.
type WindowConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
	Days int    `mapstructure:"days"`
}

type GroupsConfig struct {
	Prefixes []string `mapstructure:"prefixes"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	Path      string        `mapstructure:"path"`
	Debounce  time.Duration `mapstructure:"debounce"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// New returns a Viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", "https://api.monitoring.envirodatagov.org")
	v.SetDefault("api.user_agent", "wm-change-report/1.0")
	v.SetDefault("api.username", "")
	v.SetDefault("api.password", "")
	v.SetDefault("api.timeout", "60s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_backoff", "1s")

	v.SetDefault("query.chunk_size", monitoring.DefaultChunkSize)
	v.SetDefault("query.source_type", "")
	v.SetDefault("query.page_delay", "0s")

	v.SetDefault("window.from", "")
	v.SetDefault("window.to", "")
	v.SetDefault("window.days", 7)

	v.SetDefault("groups.prefixes", []string{"site:"})

	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.path", "cache.json")
	v.SetDefault("cache.debounce", "5s")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_ttl", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and decodes and validates the result.
// An explicit path must exist; without one, change-report.yaml is looked up
// in the working directory and ~/.config/wm-change-report, and its absence
// is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("change-report")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wm-change-report")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and combinations.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.UserAgent == "" {
		errs = append(errs, errors.New("api.user_agent is required"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must be >= 0 (got %d)", c.Retry.MaxRetries))
	}
	if c.Query.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("query.chunk_size must be > 0 (got %d)", c.Query.ChunkSize))
	}
	if c.Query.PageDelay < 0 {
		errs = append(errs, errors.New("query.page_delay must not be negative"))
	}
	if c.Window.From == "" && c.Window.Days <= 0 {
		errs = append(errs, fmt.Errorf("window.days must be > 0 when window.from is unset (got %d)", c.Window.Days))
	}

	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the file backend"))
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q (got %q)", BackendFile, BackendRedis, c.Cache.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ReportWindow resolves the configured window relative to now.
func (c *Config) ReportWindow(now time.Time) (monitoring.Window, error) {
	end := now
	if c.Window.To != "" {
		t, err := parseTime(c.Window.To)
		if err != nil {
			return monitoring.Window{}, fmt.Errorf("window.to: %w", err)
		}
		end = t
	}

	w := monitoring.LastDays(end, c.Window.Days)
	if c.Window.From != "" {
		t, err := parseTime(c.Window.From)
		if err != nil {
			return monitoring.Window{}, fmt.Errorf("window.from: %w", err)
		}
		w.From = t
	}

	if err := w.Validate(); err != nil {
		return monitoring.Window{}, err
	}
	return w, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
