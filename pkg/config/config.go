// Package config holds healthlink configuration: defaults from struct tags, an
// optional YAML file, and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level" default:"info"`
	BLE       BLEConfig       `yaml:"ble"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// BLEConfig configures discovery and the device session.
type BLEConfig struct {
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	StartCommandDelay time.Duration `yaml:"start_command_delay" default:"50ms"`
	ReadCommandDelay  time.Duration `yaml:"read_command_delay" default:"100ms"`
	SendStartCommands bool          `yaml:"send_start_commands" default:"true"`
	QueueSize         int           `yaml:"queue_size" default:"256"`
	// HistorySize is the number of measurements kept by monitor --history.
	HistorySize uint32 `yaml:"history_size" default:"512"`
}

// ProxyConfig configures the encrypted gateway.
type ProxyConfig struct {
	Listen          string        `yaml:"listen" default:":3000"`
	Upstream        string        `yaml:"upstream" default:"https://www.foracare.live"`
	ConnTimeout     time.Duration `yaml:"conn_timeout" default:"10s"`
	ResponseTimeout time.Duration `yaml:"response_timeout" default:"30s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures" default:"5"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval" default:"60s"`
}

// RateLimitConfig configures per-client rate limiting of proxy requests.
type RateLimitConfig struct {
	RequestsPerMin int      `yaml:"requests_per_min" default:"120"`
	BurstSize      int      `yaml:"burst_size" default:"20"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"ble.scan_timeout", c.BLE.ScanTimeout},
		{"ble.connect_timeout", c.BLE.ConnectTimeout},
		{"proxy.conn_timeout", c.Proxy.ConnTimeout},
		{"proxy.response_timeout", c.Proxy.ResponseTimeout},
		{"breaker.timeout", c.Breaker.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if c.BLE.StartCommandDelay < 0 || c.BLE.ReadCommandDelay < 0 {
		errs = append(errs, errors.New("ble command delays must not be negative"))
	}
	if c.BLE.QueueSize <= 0 {
		errs = append(errs, errors.New("ble.queue_size must be positive"))
	}

	if u, err := url.Parse(c.Proxy.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("proxy.upstream %q is not an absolute URL", c.Proxy.Upstream))
	}
	if c.Proxy.Listen == "" {
		errs = append(errs, errors.New("proxy.listen is required"))
	}
	if c.Proxy.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("proxy.max_body_bytes must be positive"))
	}

	if c.Breaker.MaxFailures == 0 {
		errs = append(errs, errors.New("breaker.max_failures must be positive"))
	}
	if c.RateLimit.RequestsPerMin <= 0 || c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("rate_limit values must be positive"))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
