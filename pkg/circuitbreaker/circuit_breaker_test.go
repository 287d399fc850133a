package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errGateway = errors.New("gateway down")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestBreaker(clock *fakeClock, maxFailures uint32, opts ...Option) *CircuitBreaker {
	opts = append([]Option{WithClock(clock.Now), WithLogger(quietLogger())}, opts...)
	return New("gateway", maxFailures, time.Minute, opts...)
}

func fail(context.Context) error    { return errGateway }
func succeed(context.Context) error { return nil }

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cb := New("gateway", 3, 30*time.Second)

	assert.Equal(t, "gateway", cb.name)
	assert.Equal(t, uint32(3), cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.timeout)
	assert.Equal(t, uint32(3), cb.halfOpenMaxCalls)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NotNil(t, cb.logger)
}

func TestExecute_TripsAfterMaxFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock, 2)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errGateway)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errGateway)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsCircuitBreakerError(err))
	assert.Contains(t, err.Error(), "circuit breaker 'gateway' is OPEN")
}

func TestExecute_SuccessResetsConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock, 2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock, 1, WithHalfOpenMaxCalls(2))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock, 1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errGateway)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecute_HalfOpenLimitsProbes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newTestBreaker(clock, 1, WithHalfOpenMaxCalls(1))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, succeed)
	assert.True(t, IsCircuitBreakerError(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_FailureFilter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	permanent := errors.New("unknown channel")
	cb := newTestBreaker(clock, 1, WithFailureFilter(func(err error) bool {
		return !errors.Is(err, permanent)
	}))
	ctx := context.Background()

	err := cb.Execute(ctx, func(context.Context) error { return permanent })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestGetStats(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	cb := newTestBreaker(clock, 5)
	ctx := context.Background()

	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	stats := cb.GetStats()
	assert.Equal(t, "gateway", stats.Name)
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, uint32(1), stats.Failures)
	assert.Equal(t, uint32(2), stats.Requests)
	assert.Equal(t, time.Unix(100, 0), stats.LastFailureTime)
}

func TestIsCircuitBreakerError(t *testing.T) {
	cbErr := &CircuitBreakerError{Name: "gateway", State: StateOpen}

	assert.True(t, IsCircuitBreakerError(cbErr))
	assert.True(t, IsCircuitBreakerError(fmt.Errorf("dispatch: %w", cbErr)))
	assert.False(t, IsCircuitBreakerError(errGateway))
	assert.False(t, IsCircuitBreakerError(nil))
}

func TestExecute_Concurrent(t *testing.T) {
	cb := New("gateway", 1000, time.Minute, WithLogger(quietLogger()))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(ctx, fail)
				return
			}
			_ = cb.Execute(ctx, succeed)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint32(50), cb.GetStats().Requests)
}
