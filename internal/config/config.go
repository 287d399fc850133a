package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"allyboard/internal/constants"
	"allyboard/internal/models"
	"allyboard/internal/security"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingStorePath   = models.ConfigError{Message: "missing store path for sqlite driver"}
	ErrUnknownStoreDriver = models.ConfigError{Message: "store driver must be \"sqlite\" or \"memory\""}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = constants.DefaultStoreDriver
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return ErrMissingStorePath
		}
	case "memory":
	default:
		return ErrUnknownStoreDriver
	}

	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return models.ConfigError{Message: fmt.Sprintf("invalid gateway base URL: %q", c.Gateway.BaseURL)}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return models.ConfigError{Message: fmt.Sprintf("gateway base URL must use http or https, got %q", u.Scheme)}
		}
	}
	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = constants.DefaultGatewayTimeoutSec
	}
	if c.Gateway.BreakerResetSec <= 0 {
		c.Gateway.BreakerResetSec = constants.DefaultBreakerResetSec
	}

	if c.SendLog.MaxEntries == 0 {
		c.SendLog.MaxEntries = constants.DefaultSendLogMaxEntries
	}
	if c.SendLog.MaxEntries < 0 || c.SendLog.MaxEntries > constants.MaxSendLogEntries {
		return models.ConfigError{Message: fmt.Sprintf("send_log.max_entries must be between 1 and %d", constants.MaxSendLogEntries)}
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level: %q", c.LogLevel)}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing.sample_rate must be between 0 and 1"}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if u := os.Getenv("ALLYBOARD_GATEWAY_URL"); u != "" {
		c.Gateway.BaseURL = u
	}

	// SECURITY: gateway credentials should come from the environment
	if token := os.Getenv("ALLYBOARD_GATEWAY_TOKEN"); token != "" {
		c.Gateway.AuthToken = token
	}
	if key := os.Getenv("ALLYBOARD_API_KEY"); key != "" {
		c.Server.APIKey = key
	}

	if driver := os.Getenv("ALLYBOARD_STORE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if path := os.Getenv("ALLYBOARD_DB_PATH"); path != "" {
		c.Store.Path = path
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("ALLYBOARD_ENV") == "production"

	if isProduction {
		if c.Gateway.AuthToken == "" {
			return models.ConfigError{Message: "gateway auth token is required in production (set ALLYBOARD_GATEWAY_TOKEN environment variable)"}
		}
		if c.Store.Driver == "memory" {
			return models.ConfigError{Message: "memory store driver loses all data on restart and is not allowed in production"}
		}
		if strings.EqualFold(c.LogLevel, "debug") || strings.EqualFold(c.LogLevel, "trace") {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Gateway.BaseURL != "" && c.Gateway.AuthToken == "" {
			fmt.Fprintf(os.Stderr, "WARNING: gateway auth token not set. Set ALLYBOARD_GATEWAY_TOKEN environment variable for security.\n")
		}
		if c.Server.APIKey == "" {
			fmt.Fprintf(os.Stderr, "WARNING: HTTP API key not set. Set ALLYBOARD_API_KEY to require authentication.\n")
		}
	}

	return nil
}
