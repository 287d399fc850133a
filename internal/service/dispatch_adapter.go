package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"allyboard/internal/metrics"
	"allyboard/internal/models"
	"allyboard/internal/privacy"
	"allyboard/internal/tracing"
	"allyboard/pkg/circuitbreaker"
	"allyboard/pkg/gateway"
	"allyboard/pkg/gateway/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// Dispatcher sends one message and reports the outcome as a value.
type Dispatcher interface {
	Dispatch(ctx context.Context, channelID, text string, opts ...DispatchOption) models.DispatchResult
}

type dispatchOptions struct {
	mentionRoleIDs []string
	dryRun         bool
}

// DispatchOption adjusts a single gateway call.
type DispatchOption func(*dispatchOptions)

// WithMentionRoleIDs passes role IDs the gateway should allow to ping.
func WithMentionRoleIDs(ids []string) DispatchOption {
	return func(o *dispatchOptions) {
		o.mentionRoleIDs = ids
	}
}

// WithDryRun asks the gateway to validate without posting.
func WithDryRun(dryRun bool) DispatchOption {
	return func(o *dispatchOptions) {
		o.dryRun = dryRun
	}
}

// DispatchAdapter wraps the gateway client so callers never see an error
// value: every failure, including a panic, becomes OK=false.
type DispatchAdapter struct {
	client  gateway.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

// AdapterOption configures a DispatchAdapter.
type AdapterOption func(*DispatchAdapter)

// WithCircuitBreaker puts cb in front of the gateway.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) AdapterOption {
	return func(a *DispatchAdapter) {
		a.breaker = cb
	}
}

// NewDispatchAdapter creates an adapter over client.
func NewDispatchAdapter(client gateway.Client, logger *logrus.Logger, opts ...AdapterOption) *DispatchAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	a := &DispatchAdapter{client: client, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dispatch sends text to channelID. Once started the call is not cancelled
// by ctx; timeouts belong to the gateway client.
func (a *DispatchAdapter) Dispatch(ctx context.Context, channelID, text string, opts ...DispatchOption) models.DispatchResult {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracing.StartSpan(context.WithoutCancel(ctx), "gateway.dispatch",
		tracing.AttrChannelID.String(privacy.MaskID(channelID)),
		tracing.AttrDryRun.Bool(o.dryRun),
		tracing.AttrMentions.Int(len(o.mentionRoleIDs)),
	)
	defer span.End()

	start := time.Now()
	req := types.DispatchRequest{
		ChannelID:      channelID,
		Content:        text,
		MentionRoleIDs: o.mentionRoleIDs,
		DryRun:         o.dryRun,
	}

	var resp *types.DispatchResponse
	call := func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("gateway panic: %v", r)
			}
		}()
		resp, err = a.client.Dispatch(ctx, req)
		return err
	}

	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	outcome := "ok"
	result := models.DispatchResult{OK: true}
	switch {
	case circuitbreaker.IsCircuitBreakerError(err):
		outcome = "rejected"
		result = models.DispatchResult{Error: err.Error()}
	case err != nil:
		outcome = "failed"
		result = models.DispatchResult{Error: err.Error()}
	default:
		result.Data = resp.DataString()
		if result.Data == "" {
			result.Data = "ok"
		}
	}

	elapsed := time.Since(start)
	metrics.IncrementCounter(metrics.DispatchTotal, map[string]string{"result": outcome}, "Gateway dispatch attempts")
	metrics.RecordTimer(metrics.DispatchDuration, elapsed, nil, "Gateway dispatch latency")

	tracing.AddSpanAttributes(ctx, tracing.AttrResult.String(outcome))
	fields := logrus.Fields{
		LogFieldChannelID: privacy.MaskID(channelID),
		LogFieldDryRun:    o.dryRun,
		LogFieldDuration:  elapsed.Milliseconds(),
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		a.logger.WithFields(fields).WithError(err).Debug("Gateway dispatch failed")
	} else {
		tracing.SetSpanStatus(ctx, codes.Ok, "")
		a.logger.WithFields(fields).Debug("Gateway dispatch succeeded")
	}
	return result
}

// IsGatewayOutage reports whether err points at the gateway being unhealthy
// rather than at the request: transport errors, 5xx, 408 and 429. It is the
// circuit breaker's failure filter.
func IsGatewayOutage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout
	}
	return true
}
