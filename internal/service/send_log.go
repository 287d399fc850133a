package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"allyboard/internal/constants"
	apperrors "allyboard/internal/errors"
	"allyboard/internal/metrics"
	"allyboard/internal/models"
	"allyboard/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type sendLogDocument struct {
	Version int                   `json:"version"`
	Entries []models.SendLogEntry `json:"entries"`
}

// SendLog is the capped, newest-first history of dispatch attempts.
type SendLog struct {
	store      store.Store
	logger     *logrus.Logger
	mu         sync.Mutex
	maxEntries int
	now        func() time.Time
	newID      func() string
}

// SendLogOption configures a SendLog.
type SendLogOption func(*SendLog)

// WithSendLogClock replaces time.Now for entry timestamps.
func WithSendLogClock(now func() time.Time) SendLogOption {
	return func(l *SendLog) {
		l.now = now
	}
}

// WithSendLogIDGenerator replaces the UUID generator for entry IDs.
func WithSendLogIDGenerator(fn func() string) SendLogOption {
	return func(l *SendLog) {
		l.newID = fn
	}
}

// NewSendLog creates a send log keeping at most maxEntries entries.
// A non-positive maxEntries selects the default.
func NewSendLog(st store.Store, maxEntries int, logger *logrus.Logger, opts ...SendLogOption) *SendLog {
	if logger == nil {
		logger = logrus.New()
	}
	l := &SendLog{
		store:      st,
		logger:     logger,
		maxEntries: clampMaxEntries(maxEntries),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxEntries returns the current cap.
func (l *SendLog) MaxEntries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxEntries
}

// SetMaxEntries changes the cap. Stored entries beyond it are dropped on the
// next Append.
func (l *SendLog) SetMaxEntries(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n = clampMaxEntries(n)
	if n != l.maxEntries {
		l.logger.WithFields(logrus.Fields{
			"old": l.maxEntries,
			"new": n,
		}).Info("Send log cap changed")
	}
	l.maxEntries = n
}

// Append records entry as the newest item, dropping the oldest entries past
// the cap. ID and timestamp are filled in when empty.
func (l *SendLog) Append(ctx context.Context, entry models.SendLogEntry) (models.SendLogEntry, error) {
	if entry.ID == "" {
		entry.ID = l.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	entry.MessagePreview = messagePreview(entry.MessagePreview)
	if entry.MentionRoleNames == nil {
		entry.MentionRoleNames = []string{}
	}
	if entry.MentionRoleIDs == nil {
		entry.MentionRoleIDs = []string{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load(ctx)
	if err != nil {
		return entry, err
	}

	entries := make([]models.SendLogEntry, 0, len(doc.Entries)+1)
	entries = append(entries, entry)
	entries = append(entries, doc.Entries...)
	if len(entries) > l.maxEntries {
		entries = entries[:l.maxEntries]
	}
	doc.Entries = entries

	if err := l.save(ctx, doc); err != nil {
		return entry, err
	}

	metrics.IncrementCounter(metrics.SendLogAppends, map[string]string{"ok": strconv.FormatBool(entry.OK)},
		"Send log entries appended")
	metrics.SetGauge(metrics.SendLogEntries, float64(len(doc.Entries)), nil, "Entries held in the send log")

	l.logger.WithFields(logrus.Fields{
		LogFieldEntryID: entry.ID,
		LogFieldSource:  entry.Source,
		LogFieldCount:   len(doc.Entries),
	}).Debug("Send log entry appended")
	return entry, nil
}

// List returns entries newest first, narrowed by filter.
func (l *SendLog) List(ctx context.Context, filter models.LogFilter) ([]models.SendLogEntry, error) {
	doc, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]models.SendLogEntry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if filter.FailuresOnly && e.OK {
			continue
		}
		if query != "" && !entryMatches(e, query) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Clear removes every entry.
func (l *SendLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.save(ctx, &sendLogDocument{Entries: []models.SendLogEntry{}}); err != nil {
		return err
	}
	metrics.SetGauge(metrics.SendLogEntries, 0, nil, "Entries held in the send log")
	l.logger.Info("Send log cleared")
	return nil
}

func (l *SendLog) load(ctx context.Context) (*sendLogDocument, error) {
	doc := &sendLogDocument{}
	_, err := store.LoadDocument(ctx, l.store, constants.SendLogStoreKey, constants.DocumentVersion, doc)
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return nil, apperrors.NewStoreError("read", constants.SendLogStoreKey, err)
		}
		l.logger.WithError(err).WithField(LogFieldStoreKey, constants.SendLogStoreKey).
			Warn("Send log unreadable, starting from an empty log")
		metrics.IncrementCounter(metrics.StoreFallbacks, map[string]string{"key": constants.SendLogStoreKey},
			"Documents replaced by defaults after a failed read")
		doc = &sendLogDocument{}
	}
	if doc.Entries == nil {
		doc.Entries = []models.SendLogEntry{}
	}
	return doc, nil
}

func (l *SendLog) save(ctx context.Context, doc *sendLogDocument) error {
	doc.Version = constants.DocumentVersion
	if err := store.SaveDocument(ctx, l.store, constants.SendLogStoreKey, doc); err != nil {
		return apperrors.NewStoreError("write", constants.SendLogStoreKey, err)
	}
	return nil
}

func entryMatches(e models.SendLogEntry, query string) bool {
	for _, field := range []string{e.Source, e.ChannelName, e.ChannelID, e.MessagePreview, e.Detail} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// messagePreview cuts text to the first MessagePreviewRunes runes.
func messagePreview(text string) string {
	if utf8.RuneCountInString(text) <= constants.MessagePreviewRunes {
		return text
	}
	return string([]rune(text)[:constants.MessagePreviewRunes])
}

func clampMaxEntries(n int) int {
	if n <= 0 {
		return constants.DefaultSendLogMaxEntries
	}
	if n > constants.MaxSendLogEntries {
		return constants.MaxSendLogEntries
	}
	return n
}
