package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStoreError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewStoreError("write", "queue", cause)

	assert.Equal(t, ErrCodeStoreUnavailable, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, "queue", err.Context["key"])
	assert.ErrorIs(t, err, cause)
}

func TestNewInvalidStateError(t *testing.T) {
	err := NewInvalidStateError("queue item", "abc", "sent", "cancel")

	assert.Equal(t, ErrCodeInvalidState, err.Code)
	assert.Equal(t, "cannot cancel queue item in status sent", err.Message)
	assert.Equal(t, "Cannot cancel a sent queue item", err.UserMessage)
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("name", "", "empty"), http.StatusBadRequest},
		{"bad json", Wrap(errors.New("eof"), ErrCodeInvalidInput, "bad"), http.StatusBadRequest},
		{"config", NewConfigError("channelName", "missing channel id"), http.StatusBadRequest},
		{"not found", NewNotFoundError("queue item", "x"), http.StatusNotFound},
		{"invalid state", NewInvalidStateError("queue item", "x", "sent", "cancel"), http.StatusConflict},
		{"auth", NewAuthError("missing key"), http.StatusUnauthorized},
		{"send lock", New(ErrCodeTimeout, "busy"), http.StatusServiceUnavailable},
		{"store", NewStoreError("read", "queue", errors.New("x")), http.StatusServiceUnavailable},
		{"plain", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	err := New(ErrCodeInvalidConfig, "bad").
		WithContext("config_key", "gateway.base_url").
		WithContext("token", "hunter2").
		WithUserMessage("Configuration error")

	resp := ToHTTPResponse(err, "req_1")

	assert.Equal(t, "req_1", resp.RequestID)
	assert.Equal(t, ErrCodeInvalidConfig, resp.Error.Code)
	assert.Equal(t, "Configuration error", resp.Error.Message)
	assert.False(t, resp.Error.Retryable)
	ctx := resp.Error.Context.(map[string]interface{})
	assert.Equal(t, "gateway.base_url", ctx["config_key"])
	assert.NotContains(t, ctx, "token")

	resp = ToHTTPResponse(NewStoreError("read", "sendlog", errors.New("x")), "")
	assert.True(t, resp.Error.Retryable)
}

func TestToHTTPResponse_PlainError(t *testing.T) {
	resp := ToHTTPResponse(errors.New("secret detail"), "")

	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Equal(t, "An internal error occurred", resp.Error.Message)
	assert.Nil(t, resp.Error.Context)
}
