// Package config loads propsync settings from an optional YAML file with
// PROPSYNC_-prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/propmanage/propsync/internal/logging"
)

const (
	EnvPrefix         = "PROPSYNC_"
	maxConfigFileSize = 1024 * 1024
)

type Config struct {
	Client  ClientConfig   `koanf:"client"`
	Store   StoreConfig    `koanf:"store"`
	Watch   WatchConfig    `koanf:"watch"`
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
}

type ClientConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RateLimit  float64       `koanf:"rate_limit"`
	Burst      int           `koanf:"burst"`
	PageSize   int           `koanf:"page_size"`
	TokenFile  string        `koanf:"token_file"`
}

type StoreConfig struct {
	MaxAge          time.Duration `koanf:"max_age"`
	RefetchObserved bool          `koanf:"refetch_observed"`
}

type WatchConfig struct {
	Interval time.Duration `koanf:"interval"`
	Jitter   float64       `koanf:"jitter"`
	LiveFeed bool          `koanf:"live_feed"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	StateDSN        string        `koanf:"state_dsn"`
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	RefreshTTL      time.Duration `koanf:"refresh_ttl"`
	RateLimitMax    int           `koanf:"rate_limit_max"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Seed            bool          `koanf:"seed"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads path (when non-empty) and then applies environment overrides.
//
//	PROPSYNC_CLIENT_BASE_URL   -> client.base_url
//	PROPSYNC_SERVER_STATE_DSN  -> server.state_dsn
//	PROPSYNC_LOGGING_LEVEL     -> logging.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps PROPSYNC_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = "http://127.0.0.1:8080/api"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Client.MaxRetries == 0 {
		cfg.Client.MaxRetries = 3
	}
	if cfg.Client.PageSize == 0 {
		cfg.Client.PageSize = 20
	}

	if cfg.Watch.Interval == 0 {
		cfg.Watch.Interval = 30 * time.Second
	}
	if cfg.Watch.Jitter == 0 {
		cfg.Watch.Jitter = 0.2
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.StateDSN == "" {
		cfg.Server.StateDSN = "memory://"
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = time.Hour
	}
	if cfg.Server.RefreshTTL == 0 {
		cfg.Server.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Server.RateLimitMax == 0 {
		cfg.Server.RateLimitMax = 600
	}
	if cfg.Server.RateLimitWindow == 0 {
		cfg.Server.RateLimitWindow = time.Minute
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL))
	}
	if c.Client.Timeout < 0 {
		errs = append(errs, errors.New("client.timeout cannot be negative"))
	}
	if c.Client.PageSize < 1 || c.Client.PageSize > 100 {
		errs = append(errs, fmt.Errorf("client.page_size must be between 1 and 100, got %d", c.Client.PageSize))
	}
	if c.Client.RateLimit < 0 {
		errs = append(errs, errors.New("client.rate_limit cannot be negative"))
	}
	if c.Store.MaxAge < 0 {
		errs = append(errs, errors.New("store.max_age cannot be negative"))
	}
	if c.Watch.Interval < time.Second {
		errs = append(errs, fmt.Errorf("watch.interval must be at least 1s, got %s", c.Watch.Interval))
	}
	if c.Watch.Jitter < 0 || c.Watch.Jitter > 1 {
		errs = append(errs, fmt.Errorf("watch.jitter must be within [0,1], got %v", c.Watch.Jitter))
	}
	if c.Server.TokenTTL < 0 || c.Server.RefreshTTL < 0 {
		errs = append(errs, errors.New("server token lifetimes cannot be negative"))
	}
	if c.Server.RateLimitWindow < 0 || c.Server.RateLimitMax < 0 {
		errs = append(errs, errors.New("server rate limit cannot be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
