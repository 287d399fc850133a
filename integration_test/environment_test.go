package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"allyboard/internal/app"
	"allyboard/internal/models"
	"allyboard/pkg/gateway/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const gatewayToken = "integration-token"

// TestEnvironment is a sqlite-backed allyboard wired to a mock gateway.
type TestEnvironment struct {
	t      *testing.T
	name   string
	dir    string
	logger *logrus.Logger

	gateway *httptest.Server

	mu        sync.Mutex
	requests  []types.DispatchRequest
	failures  int
	failCode  int
	badTokens int

	services *app.Services
}

// NewTestEnvironment creates an isolated environment and starts its mock gateway.
func NewTestEnvironment(t *testing.T, name string) *TestEnvironment {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &TestEnvironment{
		t:      t,
		name:   name,
		dir:    t.TempDir(),
		logger: logger,
	}
	env.setupGateway()
	return env
}

func (env *TestEnvironment) setupGateway() {
	mux := http.NewServeMux()
	mux.HandleFunc("/dispatch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+gatewayToken {
			env.mu.Lock()
			env.badTokens++
			env.mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(types.DispatchResponse{Error: "bad token"})
			return
		}

		var req types.DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(types.DispatchResponse{Error: err.Error()})
			return
		}

		env.mu.Lock()
		env.requests = append(env.requests, req)
		fail := env.failures > 0
		code := env.failCode
		if fail {
			env.failures--
		}
		n := len(env.requests)
		env.mu.Unlock()

		if fail {
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(types.DispatchResponse{Error: "gateway unavailable"})
			return
		}
		data, _ := json.Marshal(map[string]interface{}{"messageId": n, "channelId": req.ChannelID})
		_ = json.NewEncoder(w).Encode(types.DispatchResponse{OK: true, Data: data})
	})

	env.gateway = httptest.NewServer(mux)
	env.t.Cleanup(env.gateway.Close)
}

// Config returns a configuration pointing at the environment's database and gateway.
func (env *TestEnvironment) Config() *models.Config {
	return &models.Config{
		Store: models.StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(env.dir, env.name+".db"),
		},
		Gateway: models.GatewayConfig{
			BaseURL:            env.gateway.URL,
			AuthToken:          gatewayToken,
			TimeoutSec:         5,
			BreakerMaxFailures: 3,
			BreakerResetSec:    60,
		},
		SendLog: models.SendLogConfig{MaxEntries: 100},
		Retry:   models.RetryConfig{InitialBackoffMs: 10, MaxBackoffMs: 50, MaxAttempts: 2},
	}
}

// Start builds the services from cfg, or from Config when cfg is nil.
// Services are closed by Restart, Stop or test cleanup.
func (env *TestEnvironment) Start(cfg *models.Config) *app.Services {
	env.t.Helper()
	if cfg == nil {
		cfg = env.Config()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	services, err := app.Build(ctx, cfg, env.logger)
	require.NoError(env.t, err)
	env.services = services
	env.t.Cleanup(env.Stop)
	return services
}

// Restart closes the current services and reopens the same database.
func (env *TestEnvironment) Restart() *app.Services {
	env.t.Helper()
	env.Stop()
	return env.Start(nil)
}

// Stop closes the services; it is safe to call more than once.
func (env *TestEnvironment) Stop() {
	if env.services == nil {
		return
	}
	require.NoError(env.t, env.services.Close())
	env.services = nil
}

// Open builds a second instance on the same database, as another process would.
func (env *TestEnvironment) Open() *app.Services {
	env.t.Helper()
	services, err := app.Build(context.Background(), env.Config(), env.logger)
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = services.Close() })
	return services
}

// DatabasePath returns the sqlite file used by Config.
func (env *TestEnvironment) DatabasePath() string {
	return filepath.Join(env.dir, env.name+".db")
}

// SetGatewayFailures makes the next n dispatches fail with status code.
func (env *TestEnvironment) SetGatewayFailures(n, code int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.failures = n
	env.failCode = code
}

// GatewayRequests returns a copy of the dispatches the gateway accepted for processing.
func (env *TestEnvironment) GatewayRequests() []types.DispatchRequest {
	env.mu.Lock()
	defer env.mu.Unlock()
	out := make([]types.DispatchRequest, len(env.requests))
	copy(out, env.requests)
	return out
}

// RejectedAuth counts requests that carried the wrong token.
func (env *TestEnvironment) RejectedAuth() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.badTokens
}
