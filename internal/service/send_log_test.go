package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"allyboard/internal/constants"
	"allyboard/internal/models"
	"allyboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSendLog(t *testing.T, maxEntries int) (*SendLog, *store.MemoryStore, *fixedClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := newFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := NewSendLog(st, maxEntries, quietLogger(),
		WithSendLogClock(clock.Now),
		WithSendLogIDGenerator(sequentialIDs("log")),
	)
	return log, st, clock
}

func TestSendLog_AppendFillsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestSendLog(t, 10)

	stored, err := log.Append(ctx, models.SendLogEntry{Source: "direct", OK: true, Detail: "msg-1"})
	require.NoError(t, err)

	assert.Equal(t, "log-1", stored.ID)
	assert.Equal(t, clock.Now(), stored.Timestamp)
	assert.NotNil(t, stored.MentionRoleNames)
	assert.NotNil(t, stored.MentionRoleIDs)

	given := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kept, err := log.Append(ctx, models.SendLogEntry{ID: "mine", Timestamp: given})
	require.NoError(t, err)
	assert.Equal(t, "mine", kept.ID)
	assert.Equal(t, given, kept.Timestamp)
}

func TestSendLog_CapDropsOldest(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestSendLog(t, 3)

	for _, detail := range []string{"first", "second", "third", "fourth"} {
		_, err := log.Append(ctx, models.SendLogEntry{Source: "test", Detail: detail})
		require.NoError(t, err)
	}

	entries, err := log.List(ctx, models.LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "fourth", entries[0].Detail)
	assert.Equal(t, "third", entries[1].Detail)
	assert.Equal(t, "second", entries[2].Detail)
}

func TestSendLog_SetMaxEntries(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestSendLog(t, 10)

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, models.SendLogEntry{Source: "test"})
		require.NoError(t, err)
	}

	log.SetMaxEntries(2)
	assert.Equal(t, 2, log.MaxEntries())

	_, err := log.Append(ctx, models.SendLogEntry{Source: "test", Detail: "newest"})
	require.NoError(t, err)

	entries, err := log.List(ctx, models.LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "newest", entries[0].Detail)

	log.SetMaxEntries(0)
	assert.Equal(t, constants.DefaultSendLogMaxEntries, log.MaxEntries())
	log.SetMaxEntries(constants.MaxSendLogEntries + 1)
	assert.Equal(t, constants.MaxSendLogEntries, log.MaxEntries())
}

func TestSendLog_ListFilter(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestSendLog(t, 50)

	seed := []models.SendLogEntry{
		{Source: "queue:send", ChannelName: "war", ChannelID: "222", MessagePreview: "Rally at 20:00", OK: true, Detail: "msg-1"},
		{Source: "direct", ChannelName: "general", ChannelID: "444", MessagePreview: "Welcome", OK: false, Detail: "gateway error: status 503: unavailable"},
		{Source: "queue:send-due", ChannelName: "trade", ChannelID: "", MessagePreview: "Trade window", OK: false, Detail: "missing channel id"},
		{Source: "cli", ChannelName: "war", ChannelID: "222", MessagePreview: "Shield up", OK: true, Detail: "msg-2"},
	}
	for _, e := range seed {
		_, err := log.Append(ctx, e)
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		filter  models.LogFilter
		details []string
	}{
		{name: "all newest first", filter: models.LogFilter{}, details: []string{"msg-2", "missing channel id", "gateway error: status 503: unavailable", "msg-1"}},
		{name: "failures only", filter: models.LogFilter{FailuresOnly: true}, details: []string{"missing channel id", "gateway error: status 503: unavailable"}},
		{name: "query channel name", filter: models.LogFilter{Query: "WAR"}, details: []string{"msg-2", "msg-1"}},
		{name: "query source", filter: models.LogFilter{Query: "send-due"}, details: []string{"missing channel id"}},
		{name: "query preview", filter: models.LogFilter{Query: "rally"}, details: []string{"msg-1"}},
		{name: "query error text", filter: models.LogFilter{Query: "503"}, details: []string{"gateway error: status 503: unavailable"}},
		{name: "query channel id", filter: models.LogFilter{Query: "444"}, details: []string{"gateway error: status 503: unavailable"}},
		{name: "query and failures", filter: models.LogFilter{Query: "war", FailuresOnly: true}, details: []string{}},
		{name: "limit", filter: models.LogFilter{Limit: 1}, details: []string{"msg-2"}},
		{name: "no match", filter: models.LogFilter{Query: "nothing here"}, details: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := log.List(ctx, tt.filter)
			require.NoError(t, err)
			details := make([]string, 0, len(entries))
			for _, e := range entries {
				details = append(details, e.Detail)
			}
			assert.Equal(t, tt.details, details)
		})
	}
}

func TestSendLog_PreviewTruncated(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestSendLog(t, 10)

	long := strings.Repeat("ä", constants.MessagePreviewRunes+20)
	stored, err := log.Append(ctx, models.SendLogEntry{MessagePreview: long})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ä", constants.MessagePreviewRunes), stored.MessagePreview)
}

func TestSendLog_Clear(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestSendLog(t, 10)

	_, err := log.Append(ctx, models.SendLogEntry{Source: "test"})
	require.NoError(t, err)
	require.NoError(t, log.Clear(ctx))

	entries, err := log.List(ctx, models.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendLog_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	log, st, _ := newTestSendLog(t, 10)
	require.NoError(t, st.Set(ctx, constants.SendLogStoreKey, []byte(`{"version":7,"entries":[]}`)))

	entries, err := log.List(ctx, models.LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = log.Append(ctx, models.SendLogEntry{Source: "test"})
	require.NoError(t, err)
	entries, err = log.List(ctx, models.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSendLog_StoreErrors(t *testing.T) {
	ctx := context.Background()
	log := NewSendLog(&failingStore{err: errors.New("io")}, 10, quietLogger())

	_, err := log.List(ctx, models.LogFilter{})
	assert.Error(t, err)
	_, err = log.Append(ctx, models.SendLogEntry{})
	assert.Error(t, err)
	assert.Error(t, log.Clear(ctx))
}
