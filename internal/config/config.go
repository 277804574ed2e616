// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// HTTPConfig tunes the plain-HTTP acquisition path.
type HTTPConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	MaxRedirects    int               `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxBodyBytes    int64             `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Proxy           string            `mapstructure:"proxy" yaml:"proxy"`
	// RateLimit is requests per second per host; RateBurst is the bucket size.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// BrowserConfig holds settings for the shared headless browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizeWait     time.Duration `mapstructure:"stabilize_wait" yaml:"stabilize_wait"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache      bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// MonitorConfig tunes observation behavior shared across rules.
type MonitorConfig struct {
	// DefaultRequireConsecutive applies to rules that leave their own
	// threshold unset.
	DefaultRequireConsecutive int `mapstructure:"default_require_consecutive" yaml:"default_require_consecutive"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagewatch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- HTTP --
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("http.ignore_tls_errors", false)
	v.SetDefault("http.rate_limit", 1.0)
	v.SetDefault("http.rate_burst", 3)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.stabilize_wait", "2s")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", true)

	// -- Monitor --
	v.SetDefault("monitor.default_require_consecutive", 2)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be a positive duration")
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("http.max_redirects must not be negative")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be a positive integer")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Monitor.DefaultRequireConsecutive < 0 {
		return fmt.Errorf("monitor.default_require_consecutive must not be negative")
	}
	return nil
}
