// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects which market the connector talks to. Fixed at construction.
type Mode string

const (
	ModeFutures Mode = "futures"
	ModeSpot    Mode = "spot"
)

// Network selects the production or test endpoints. Fixed at construction.
type Network string

const (
	NetworkProduction Network = "production"
	NetworkTestnet    Network = "testnet"
)

// Config represents the complete configuration structure
type Config struct {
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Trading     TradingConfig     `yaml:"trading"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ExchangeConfig contains exchange endpoint and credential settings
type ExchangeConfig struct {
	Mode      Mode    `yaml:"mode"`
	Network   Network `yaml:"network"`
	APIKey    string  `yaml:"api_key"`
	SecretKey Secret  `yaml:"secret_key"`
	BaseURL   string  `yaml:"base_url"`   // Optional override for the REST URL
	StreamURL string  `yaml:"stream_url"` // Optional override for the stream URL

	// RetryEnabled turns on the bounded retry/circuit-breaker pipeline for
	// REST calls. Off by default: the base contract is single-shot requests.
	RetryEnabled bool `yaml:"retry_enabled"`
	// RateLimit is the maximum REST requests per second (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit"`
}

// TradingConfig contains trading parameters
type TradingConfig struct {
	WatchSymbols   []string `yaml:"watch_symbols"`
	Channels       []string `yaml:"channels"`
	BalancePct     float64  `yaml:"balance_pct"`
	CandleInterval string   `yaml:"candle_interval"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TimingConfig contains timing-related settings, in seconds
type TimingConfig struct {
	WebsocketReconnectDelay int `yaml:"websocket_reconnect_delay"`
	WebsocketPingInterval   int `yaml:"websocket_ping_interval"`
	WebsocketPongWait       int `yaml:"websocket_pong_wait"`
	RestTimeout             int `yaml:"rest_timeout"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	SnapshotPoolSize   int `yaml:"snapshot_pool_size"`
	SnapshotPoolBuffer int `yaml:"snapshot_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Mode == "" {
		c.Exchange.Mode = ModeFutures
	}
	if c.Exchange.Network == "" {
		c.Exchange.Network = NetworkProduction
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Timing.WebsocketReconnectDelay == 0 {
		c.Timing.WebsocketReconnectDelay = 2
	}
	if c.Timing.WebsocketPingInterval == 0 {
		c.Timing.WebsocketPingInterval = 30
	}
	if c.Timing.WebsocketPongWait == 0 {
		c.Timing.WebsocketPongWait = 60
	}
	if c.Timing.RestTimeout == 0 {
		c.Timing.RestTimeout = 10
	}
	if len(c.Trading.Channels) == 0 {
		c.Trading.Channels = []string{"bookTicker", "aggTrade"}
	}
	if c.Trading.CandleInterval == "" {
		c.Trading.CandleInterval = "1h"
	}
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Exchange.Mode != ModeFutures && c.Exchange.Mode != ModeSpot {
		errs = append(errs, ValidationError{
			Field: "exchange.mode", Value: c.Exchange.Mode,
			Message: "must be one of: futures, spot",
		}.Error())
	}

	if c.Exchange.Network != NetworkProduction && c.Exchange.Network != NetworkTestnet {
		errs = append(errs, ValidationError{
			Field: "exchange.network", Value: c.Exchange.Network,
			Message: "must be one of: production, testnet",
		}.Error())
	}

	if c.Exchange.APIKey == "" {
		errs = append(errs, ValidationError{
			Field: "exchange.api_key", Message: "is required",
		}.Error())
	}

	if c.Exchange.SecretKey == "" {
		errs = append(errs, ValidationError{
			Field: "exchange.secret_key", Message: "is required",
		}.Error())
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{
			Field: "system.log_level", Value: c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}.Error())
	}

	if c.Trading.BalancePct < 0 || c.Trading.BalancePct > 100 {
		errs = append(errs, ValidationError{
			Field: "trading.balance_pct", Value: c.Trading.BalancePct,
			Message: "must be between 0 and 100",
		}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with environment values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
