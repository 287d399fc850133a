package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func TestFields(t *testing.T) {
	fields := Fields(NewValidationError("channelName", "", "must not be empty"))
	assert.Equal(t, ErrCodeValidationFailed, fields["error_code"])
	assert.Equal(t, false, fields["retryable"])
	assert.Equal(t, "channelName", fields["field"])

	assert.Empty(t, Fields(errors.New("plain")))
	assert.Empty(t, Fields(nil))
}

func TestLog_Levels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{name: "caller mistake", err: NewNotFoundError("queue item", "abc"), level: "info"},
		{name: "forbidden transition", err: NewInvalidStateError("queue item", "abc", "sent", "send"), level: "info"},
		{name: "store outage", err: NewStoreError("write", "queue", errors.New("disk full")), level: "error"},
		{name: "plain error", err: errors.New("boom"), level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger()
			Log(logger, tt.err, "request failed")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "request failed", entry["msg"])
			assert.Equal(t, tt.err.Error(), entry["error"])
		})
	}
}

func TestLog_CarriesContext(t *testing.T) {
	logger, buf := newBufferedLogger()

	Log(logger.WithField("path", "/api/queue"), NewStoreError("write", "queue", errors.New("disk full")), "store write failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "STORE_UNAVAILABLE", entry["error_code"])
	assert.Equal(t, true, entry["retryable"])
	assert.Equal(t, "queue", entry["key"])
	assert.Equal(t, "write", entry["operation"])
	assert.Equal(t, "/api/queue", entry["path"])
}
