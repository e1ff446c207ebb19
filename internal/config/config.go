package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"dsgvo-downloader/common/config"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDatabaseURL local development database
	DefaultDatabaseURL = "postgres://postgres@localhost:5432/dsgvo"
	// DefaultDelayMS pause between two detail requests
	DefaultDelayMS = 500
	// MinDelayMS lower bound for the pause; smaller values are raised to it
	MinDelayMS = 500
	// MaxDelayMS upper bound for the pause (one hour)
	MaxDelayMS = 60 * 60 * 1000

	DefaultPortalURL   = "https://www.dsgvo-portal.de"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultUserAgent   = "dsgvo-downloader/1.0"
	DefaultEventStream = "dsgvo:incidents"
	DefaultMetricsJob  = "dsgvo-downloader"
)

// Config downloader configuration
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`

	Portal struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"portal"`

	Reconciler struct {
		// DelayMS pause between consecutive detail requests, in milliseconds
		DelayMS int `yaml:"delay_ms"`
		// EventStream Redis stream for harvest events; only used when Redis.Addr is set
		EventStream string `yaml:"event_stream"`
	} `yaml:"reconciler"`

	Metrics struct {
		// PushgatewayURL disabled when empty
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in defaults.
func Default() *Config {
	cfg := &Config{}

	cfg.Database.URL = DefaultDatabaseURL
	// one query or transaction at a time
	cfg.Database.MaxConns = 1
	cfg.Database.MaxIdle = 1

	cfg.Portal.BaseURL = DefaultPortalURL
	cfg.Portal.Timeout = DefaultHTTPTimeout
	cfg.Portal.UserAgent = DefaultUserAgent

	cfg.Reconciler.DelayMS = DefaultDelayMS
	cfg.Reconciler.EventStream = DefaultEventStream

	cfg.Metrics.Job = DefaultMetricsJob

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (optional), then environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Database.LoadFromEnv("DATABASE")
	c.Redis.LoadFromEnv("REDIS")

	c.Portal.BaseURL = getEnv("DSGVO_PORTAL_URL", c.Portal.BaseURL)
	c.Portal.UserAgent = getEnv("DSGVO_USER_AGENT", c.Portal.UserAgent)
	if v := os.Getenv("DSGVO_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Portal.Timeout = d
		}
	}

	if v := os.Getenv("DSGVO_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Reconciler.DelayMS = ms
		}
	}
	c.Reconciler.EventStream = getEnv("DSGVO_EVENT_STREAM", c.Reconciler.EventStream)

	c.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", c.Metrics.PushgatewayURL)
	c.Metrics.Job = getEnv("METRICS_JOB", c.Metrics.Job)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects unusable settings and normalizes the rest. Adjustments it made are
// returned as warnings so the caller can log them once a logger exists.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if c.Database.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid portal base url: %q", c.Portal.BaseURL)
	}

	if c.Reconciler.DelayMS > MaxDelayMS {
		return nil, fmt.Errorf("delay %dms exceeds the maximum of %dms", c.Reconciler.DelayMS, MaxDelayMS)
	}
	if c.Reconciler.DelayMS < MinDelayMS {
		warnings = append(warnings, fmt.Sprintf("delay has a minimum of %dms, raising %dms to %dms",
			MinDelayMS, c.Reconciler.DelayMS, MinDelayMS))
		c.Reconciler.DelayMS = MinDelayMS
	}

	if c.Portal.Timeout <= 0 {
		c.Portal.Timeout = DefaultHTTPTimeout
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 1
	}

	return warnings, nil
}

// Delay returns the configured pause between detail requests, capped at MaxDelayMS.
func (c *Config) Delay() time.Duration {
	ms := c.Reconciler.DelayMS
	if ms > MaxDelayMS {
		ms = MaxDelayMS
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
