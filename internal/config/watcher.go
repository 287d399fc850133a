package config

import (
	"context"
	"os"
	"sync"
	"time"

	"allyboard/internal/constants"
	"allyboard/internal/models"

	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches for configuration file changes and reloads configuration
type ConfigWatcher struct {
	configPath   string
	logger       *logrus.Logger
	pollInterval time.Duration
	settleDelay  time.Duration
	mu           sync.RWMutex
	config       *models.Config
	callbacks    []func(*models.Config)
}

// WatcherOption configures a ConfigWatcher.
type WatcherOption func(*ConfigWatcher)

// WithPollInterval overrides how often the file is checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(cw *ConfigWatcher) {
		if d > 0 {
			cw.pollInterval = d
		}
	}
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, logger *logrus.Logger, opts ...WatcherOption) *ConfigWatcher {
	cw := &ConfigWatcher{
		configPath:   configPath,
		logger:       logger,
		pollInterval: time.Duration(constants.DefaultConfigPollInterval) * time.Second,
		settleDelay:  100 * time.Millisecond,
		callbacks:    make([]func(*models.Config), 0),
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw
}

// Start loads the configuration and polls the file until ctx is done.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithFields(logrus.Fields{
		"path":     cw.configPath,
		"interval": cw.pollInterval.String(),
	}).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}

			if stat.ModTime().After(lastModTime) {
				cw.logger.Debug("Configuration file changed")
				lastModTime = stat.ModTime()

				// Let the writer finish before reading
				time.Sleep(cw.settleDelay)
				cw.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges logs the settings that take effect without a restart,
// plus the ones that need one.
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.SendLog.MaxEntries != new.SendLog.MaxEntries {
		cw.logger.WithFields(logrus.Fields{
			"old": old.SendLog.MaxEntries,
			"new": new.SendLog.MaxEntries,
		}).Info("Send log capacity changed")
	}

	if old.Gateway.BaseURL != new.Gateway.BaseURL {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Gateway.BaseURL,
			"new": new.Gateway.BaseURL,
		}).Warn("Gateway URL changed; restart required to take effect")
	}

	if old.Store.Driver != new.Store.Driver || old.Store.Path != new.Store.Path {
		cw.logger.Warn("Store settings changed; restart required to take effect")
	}
}
