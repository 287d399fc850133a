// Package app wires the dispatcher services from a loaded configuration.
// Both the HTTP server and the operator CLI build their services here so
// they share one store and one set of rules.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"allyboard/internal/models"
	"allyboard/internal/retry"
	"allyboard/internal/service"
	"allyboard/internal/store"
	"allyboard/pkg/circuitbreaker"
	"allyboard/pkg/gateway"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// Services is the set of components behind every API and CLI operation.
type Services struct {
	Store    store.Store
	Mentions *service.MentionRegistry
	SendLog  *service.SendLog
	Queue    *service.SendQueue
	Direct   *service.DirectSender
	Breaker  *circuitbreaker.CircuitBreaker
}

// Close releases the store.
func (s *Services) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

type buildOptions struct {
	store  store.Store
	client gateway.Client
}

// Option overrides a dependency Build would otherwise create.
type Option func(*buildOptions)

// WithStore uses st instead of opening the configured backend.
func WithStore(st store.Store) Option {
	return func(o *buildOptions) { o.store = st }
}

// WithGatewayClient uses client instead of the HTTP gateway client.
func WithGatewayClient(client gateway.Client) Option {
	return func(o *buildOptions) { o.client = client }
}

// Build opens the store, retrying with backoff, and assembles the services.
func Build(ctx context.Context, cfg *models.Config, logger *logrus.Logger, opts ...Option) (*Services, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	st := o.store
	if st == nil {
		backoff := retry.NewBackoff(retry.ConfigFromModel(cfg.Retry)).WithLogger(logger)
		err := backoff.Retry(ctx, func(context.Context) error {
			var openErr error
			st, openErr = store.Open(cfg.Store)
			return openErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store after retries: %w", cfg.Store.Driver, err)
		}
		logger.WithFields(logrus.Fields{
			"driver": cfg.Store.Driver,
			"path":   cfg.Store.Path,
		}).Info("Store opened")
	}

	client := o.client
	if client == nil {
		if cfg.Gateway.BaseURL == "" {
			logger.Warn("Gateway base URL not configured; dispatches will fail until it is set")
		}
		httpClient := &http.Client{Timeout: time.Duration(cfg.Gateway.TimeoutSec) * time.Second}
		client = gateway.NewClientWithLogger(cfg.Gateway.BaseURL, cfg.Gateway.AuthToken, httpClient, logger)
	}

	var adapterOpts []service.AdapterOption
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Gateway.BreakerMaxFailures > 0 {
		breaker = circuitbreaker.New("gateway", cfg.Gateway.BreakerMaxFailures,
			time.Duration(cfg.Gateway.BreakerResetSec)*time.Second,
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithFailureFilter(service.IsGatewayOutage),
		)
		adapterOpts = append(adapterOpts, service.WithCircuitBreaker(breaker))
	}
	adapter := service.NewDispatchAdapter(client, logger, adapterOpts...)

	mentions := service.NewMentionRegistry(st, logger)
	sendLog := service.NewSendLog(st, cfg.SendLog.MaxEntries, logger)

	var queueOpts []service.QueueOption
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path != "" {
		queueOpts = append(queueOpts, service.WithProcessLock(flock.New(SendLockPath(cfg.Store.Path))))
	}

	return &Services{
		Store:    st,
		Mentions: mentions,
		SendLog:  sendLog,
		Queue:    service.NewSendQueue(st, mentions, adapter, sendLog, logger, queueOpts...),
		Direct:   service.NewDirectSender(mentions, adapter, sendLog, logger),
		Breaker:  breaker,
	}, nil
}

// SendLockPath is the lock file guarding dispatch for the store at dbPath.
func SendLockPath(dbPath string) string {
	return dbPath + ".send.lock"
}

// ApplyConfig pushes the settings that may change at runtime into s.
func (s *Services) ApplyConfig(cfg *models.Config, logger *logrus.Logger, verbose bool) {
	s.SendLog.SetMaxEntries(cfg.SendLog.MaxEntries)
	ApplyLogLevel(logger, cfg.LogLevel, verbose)
}

// ApplyLogLevel sets the logger level from config. Verbose forces debug.
func ApplyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}
