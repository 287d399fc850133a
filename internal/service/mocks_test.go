package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"allyboard/internal/models"
	"allyboard/internal/store"
	"allyboard/pkg/gateway/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// Mock gateway client
type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) Dispatch(ctx context.Context, req types.DispatchRequest) (*types.DispatchResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*types.DispatchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// Mock dispatcher
type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, channelID, text string, opts ...DispatchOption) models.DispatchResult {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}
	args := m.Called(channelID, text, o.mentionRoleIDs)
	return args.Get(0).(models.DispatchResult)
}

// recordingDispatcher answers from a script and records call order and overlap.
type recordingDispatcher struct {
	mu       sync.Mutex
	calls    []string
	active   int
	overlap  bool
	delay    time.Duration
	failFor  map[string]string
	onCall   func(channelID string)
	lastOpts dispatchOptions
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, channelID, text string, opts ...DispatchOption) models.DispatchResult {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.calls = append(r.calls, channelID)
	r.lastOpts = o
	onCall := r.onCall
	r.mu.Unlock()

	if onCall != nil {
		onCall(channelID)
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.active--
	msg, fail := r.failFor[channelID]
	r.mu.Unlock()

	if fail {
		return models.DispatchResult{Error: msg}
	}
	return models.DispatchResult{OK: true, Data: "msg-" + channelID}
}

func (r *recordingDispatcher) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, f.err
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return f.err
}

func (f *failingStore) Close() error {
	return nil
}

// writeFailingStore reads from an in-memory store but rejects writes to one key.
type writeFailingStore struct {
	*store.MemoryStore
	key string
}

func (w *writeFailingStore) Set(ctx context.Context, key string, value []byte) error {
	if key == w.key {
		return errors.New("disk full")
	}
	return w.MemoryStore.Set(ctx, key, value)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDs yields prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
