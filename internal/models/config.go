package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig  `json:"server"`
	Store    StoreConfig   `json:"store"`
	Gateway  GatewayConfig `json:"gateway"`
	SendLog  SendLogConfig `json:"send_log"`
	Retry    RetryConfig   `json:"retry"`
	Tracing  TracingConfig `json:"tracing"`
	LogLevel string        `json:"log_level"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port            int    `json:"port"`
	ReadTimeoutSec  int    `json:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
	IdleTimeoutSec  int    `json:"idle_timeout_sec"`
	APIKey          string `json:"api_key"`
}

// StoreConfig selects the key-value backend holding mentions, queue and log
type StoreConfig struct {
	Driver string `json:"driver"` // "sqlite" or "memory"
	Path   string `json:"path"`
}

// GatewayConfig holds settings for the outbound dispatch gateway
type GatewayConfig struct {
	BaseURL            string `json:"base_url"`
	AuthToken          string `json:"auth_token"`
	TimeoutSec         int    `json:"timeout_sec"`
	BreakerMaxFailures uint32 `json:"breaker_max_failures"`
	BreakerResetSec    int    `json:"breaker_reset_sec"`
}

// SendLogConfig bounds the send log
type SendLogConfig struct {
	MaxEntries int `json:"max_entries"`
}

// RetryConfig holds retry settings used when opening the store at startup
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
