package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"allyboard/internal/constants"
	apperrors "allyboard/internal/errors"
	"allyboard/internal/metrics"
	"allyboard/internal/models"
	"allyboard/internal/privacy"
	"allyboard/internal/resolver"
	"allyboard/internal/store"
	"allyboard/internal/tracing"
	"allyboard/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrItemNotFound is wrapped by every lookup of an unknown queue item.
	ErrItemNotFound = errors.New("queue item not found")
	// ErrInvalidTransition is wrapped when an item's status forbids the action.
	ErrInvalidTransition = errors.New("invalid queue transition")
)

// SendLogAppender records dispatch attempts.
type SendLogAppender interface {
	Append(ctx context.Context, entry models.SendLogEntry) (models.SendLogEntry, error)
}

// CreateRequest describes a message to resolve and queue.
type CreateRequest struct {
	ScheduledAt      time.Time    `json:"scheduledAtUtc"`
	Scope            models.Scope `json:"scope"`
	ChannelName      string       `json:"channelName"`
	MentionRoleNames []string     `json:"mentionRoleNames"`
	RawMessage       string       `json:"rawMessage"`
}

// ListFilter narrows a queue listing. A zero Status lists everything.
type ListFilter struct {
	Status models.SendStatus
}

type queueDocument struct {
	Version int                        `json:"version"`
	Items   []models.ScheduledSendItem `json:"items"`
}

const processLockRetry = 50 * time.Millisecond

// SendQueue is the persisted list of scheduled sends and its state machine:
// pending -> sent | cancelled | failed, and failed -> sent | failed | cancelled
// on manual retry or cancel.
type SendQueue struct {
	store      store.Store
	mentions   MentionLookup
	dispatcher Dispatcher
	sendLog    SendLogAppender
	logger     *logrus.Logger

	// mu guards read-modify-write of the queue document.
	mu sync.Mutex
	// sendMu serializes dispatch so a due run and a manual send never overlap.
	sendMu sync.Mutex
	// procLock extends that exclusion to other processes sharing the store.
	procLock ProcessLocker

	now   func() time.Time
	newID func() string
}

// QueueOption configures a SendQueue.
type QueueOption func(*SendQueue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) QueueOption {
	return func(q *SendQueue) {
		q.now = now
	}
}

// WithIDGenerator replaces the UUID generator for item IDs.
func WithIDGenerator(fn func() string) QueueOption {
	return func(q *SendQueue) {
		q.newID = fn
	}
}

// ProcessLocker is an inter-process lock such as *flock.Flock.
type ProcessLocker interface {
	TryLockContext(ctx context.Context, retryDelay time.Duration) (bool, error)
	Unlock() error
}

// WithProcessLock makes sends also hold l, so the server and the CLI never
// dispatch from the same store at once.
func WithProcessLock(l ProcessLocker) QueueOption {
	return func(q *SendQueue) {
		q.procLock = l
	}
}

// NewSendQueue creates a queue. Resolution reads mentions, sends go through
// dispatcher and every attempt is appended to sendLog.
func NewSendQueue(st store.Store, mentions MentionLookup, dispatcher Dispatcher, sendLog SendLogAppender, logger *logrus.Logger, opts ...QueueOption) *SendQueue {
	if logger == nil {
		logger = logrus.New()
	}
	q := &SendQueue{
		store:      st,
		mentions:   mentions,
		dispatcher: dispatcher,
		sendLog:    sendLog,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Preview resolves req against the current registry without queueing it.
func (q *SendQueue) Preview(ctx context.Context, req CreateRequest) (*models.Preview, error) {
	if err := validateSendRequest(req.Scope, req.ChannelName, req.MentionRoleNames, req.RawMessage); err != nil {
		return nil, err
	}
	return resolveSend(ctx, q.mentions, req.Scope, req.ChannelName, req.MentionRoleNames, req.RawMessage)
}

// Create resolves req and stores the result as a pending item. The resolved
// text, channel ID and role IDs are frozen here.
func (q *SendQueue) Create(ctx context.Context, req CreateRequest) (*models.ScheduledSendItem, error) {
	if req.ScheduledAt.IsZero() {
		return nil, apperrors.NewValidationError("scheduledAtUtc", "", "scheduled time is required")
	}
	preview, err := q.Preview(ctx, req)
	if err != nil {
		return nil, err
	}

	item := models.ScheduledSendItem{
		ID:               q.newID(),
		ScheduledAt:      req.ScheduledAt.UTC(),
		CreatedAt:        q.now().UTC(),
		Scope:            preview.Scope,
		ChannelName:      preview.ChannelName,
		ChannelID:        preview.ChannelID,
		MentionRoleNames: preview.MentionRoleNames,
		MentionRoleIDs:   preview.MentionRoleIDs,
		RawMessage:       preview.RawMessage,
		ResolvedMessage:  preview.ResolvedMessage,
		Status:           models.SendStatusPending,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	doc.Items = append(doc.Items, item)
	if err := q.save(ctx, doc); err != nil {
		return nil, err
	}

	recordTransition("", models.SendStatusPending)
	fields := logrus.Fields{
		LogFieldItemID:      item.ID,
		LogFieldChannel:     item.ChannelName,
		LogFieldChannelID:   privacy.MaskID(item.ChannelIDValue()),
		LogFieldScope:       item.Scope.String(),
		LogFieldScheduledAt: item.ScheduledAt.Format(time.RFC3339),
		LogFieldMentions:    len(item.MentionRoleIDs),
	}
	if len(preview.UnresolvedTokens) > 0 {
		fields[LogFieldUnresolved] = len(preview.UnresolvedTokens)
	}
	if item.ChannelID == nil {
		q.logger.WithFields(fields).Warn("Queued item has no channel ID, it will fail when sent")
	} else {
		q.logger.WithFields(fields).Info("Queued scheduled send")
	}
	return &item, nil
}

// List returns items ordered by scheduled time, then creation order.
func (q *SendQueue) List(ctx context.Context, filter ListFilter) ([]models.ScheduledSendItem, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("status", string(filter.Status), "unknown status")
	}

	doc, err := q.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ScheduledSendItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

// Get returns one item.
func (q *SendQueue) Get(ctx context.Context, id string) (*models.ScheduledSendItem, error) {
	if err := validation.ValidateItemID(id); err != nil {
		return nil, err
	}
	doc, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(doc.Items, id)
	if idx < 0 {
		return nil, itemNotFound(id)
	}
	item := doc.Items[idx]
	return &item, nil
}

// Cancel moves a pending or failed item to cancelled. Sent and cancelled
// items are left untouched and ErrInvalidTransition is returned.
func (q *SendQueue) Cancel(ctx context.Context, id string) (*models.ScheduledSendItem, error) {
	if err := validation.ValidateItemID(id); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(doc.Items, id)
	if idx < 0 {
		return nil, itemNotFound(id)
	}

	item := &doc.Items[idx]
	from := item.Status
	if !from.Sendable() {
		return nil, invalidTransition(id, from, "cancel")
	}

	result := constants.ResultCancelledByUser
	item.Status = models.SendStatusCancelled
	item.LastResult = &result
	if err := q.save(ctx, doc); err != nil {
		return nil, err
	}

	recordTransition(from, models.SendStatusCancelled)
	q.logger.WithFields(logrus.Fields{
		LogFieldItemID:     id,
		LogFieldStatusFrom: from,
	}).Info("Cancelled scheduled send")

	out := *item
	return &out, nil
}

// Delete removes an item whatever its status. No send log entry is written.
func (q *SendQueue) Delete(ctx context.Context, id string) error {
	if err := validation.ValidateItemID(id); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(doc.Items, id)
	if idx < 0 {
		return itemNotFound(id)
	}

	status := doc.Items[idx].Status
	doc.Items = append(doc.Items[:idx], doc.Items[idx+1:]...)
	if err := q.save(ctx, doc); err != nil {
		return err
	}

	q.logger.WithFields(logrus.Fields{
		LogFieldItemID: id,
		LogFieldStatus: status,
	}).Info("Deleted scheduled send")
	return nil
}

// FindDue returns the pending items scheduled at or before now, in the
// order given.
func FindDue(items []models.ScheduledSendItem, now time.Time) []models.ScheduledSendItem {
	var due []models.ScheduledSendItem
	for _, item := range items {
		if item.Status == models.SendStatusPending && !item.ScheduledAt.After(now) {
			due = append(due, item)
		}
	}
	return due
}

// SendOne dispatches a pending or failed item and records the attempt.
func (q *SendQueue) SendOne(ctx context.Context, id, source string) (*models.ScheduledSendItem, error) {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	unlock, err := q.lockProcess(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if source == "" {
		source = constants.SourceQueueSendOne
	}
	return q.sendOne(ctx, id, source)
}

// SendDueNow sends every due item one after another, waiting for each
// dispatch to finish before starting the next. It stops between items when
// ctx is done.
func (q *SendQueue) SendDueNow(ctx context.Context) (models.DispatchReport, error) {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	report := models.DispatchReport{ItemIDs: []string{}}

	unlock, err := q.lockProcess(ctx)
	if err != nil {
		return report, err
	}
	defer unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return report, err
	}
	due := FindDue(doc.Items, q.now())

	ctx, span := tracing.StartSpan(ctx, "queue.send_due", tracing.AttrDueCount.Int(len(due)))
	defer span.End()

	if len(due) == 0 {
		q.logger.Debug("No due items")
		return report, nil
	}
	q.logger.WithField(LogFieldCount, len(due)).Info("Starting due send run")

	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			q.logger.WithField(LogFieldCount, report.Attempted).Warn("Due send run interrupted")
			return report, err
		}

		item, err := q.sendOne(ctx, candidate.ID, constants.SourceQueueSendDue)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrInvalidTransition) {
				q.logger.WithError(err).WithField(LogFieldItemID, candidate.ID).
					Info("Skipping due item: changed since the run started")
				continue
			}
			tracing.RecordError(ctx, err)
			return report, err
		}

		report.Attempted++
		report.ItemIDs = append(report.ItemIDs, item.ID)
		if item.Status == models.SendStatusSent {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	q.logger.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"sent":      report.Sent,
		"failed":    report.Failed,
	}).Info("Completed due send run")
	return report, nil
}

func (q *SendQueue) lockProcess(ctx context.Context) (func(), error) {
	if q.procLock == nil {
		return func() {}, nil
	}
	locked, err := q.procLock.TryLockContext(ctx, processLockRetry)
	if err == nil && !locked {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTimeout, "waiting for the send lock held by another process").
			WithUserMessage("Another process is sending; try again shortly")
	}
	return func() {
		if err := q.procLock.Unlock(); err != nil {
			q.logger.WithError(err).Warn("Failed to release send lock")
		}
	}, nil
}

func (q *SendQueue) sendOne(ctx context.Context, id, source string) (*models.ScheduledSendItem, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.send_one",
		tracing.AttrItemID.String(id),
		tracing.AttrSource.String(source),
	)
	defer span.End()

	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := item.Status
	tracing.AddSpanAttributes(ctx, tracing.AttrStatusFrom.String(string(from)))
	if !from.Sendable() {
		return nil, invalidTransition(id, from, "send")
	}

	attemptAt := q.now().UTC()
	channelID := item.ChannelIDValue()

	var result models.DispatchResult
	if strings.TrimSpace(channelID) == "" {
		result = models.DispatchResult{Error: constants.ResultMissingChannelID}
		q.logger.WithFields(logrus.Fields{
			LogFieldItemID:  id,
			LogFieldChannel: item.ChannelName,
		}).Warn("Skipping dispatch: channel has no ID")
	} else {
		result = q.dispatcher.Dispatch(ctx, channelID, item.ResolvedMessage, WithMentionRoleIDs(item.MentionRoleIDs))
	}

	// The dispatch has happened; its outcome is recorded even if ctx is done.
	recordCtx := context.WithoutCancel(ctx)

	to := models.SendStatusFailed
	if result.OK {
		to = models.SendStatusSent
	}
	detail := result.Detail()
	item.Status = to
	item.LastAttemptAt = &attemptAt
	item.LastResult = &detail

	saveErr := q.applyAttempt(recordCtx, *item, from)
	recordTransition(from, to)

	entry := models.SendLogEntry{
		Timestamp:        attemptAt,
		Source:           source,
		ItemID:           item.ID,
		ChannelName:      item.ChannelName,
		ChannelID:        channelID,
		MentionRoleNames: item.MentionRoleNames,
		MentionRoleIDs:   item.MentionRoleIDs,
		MessagePreview:   item.ResolvedMessage,
		OK:               result.OK,
		Detail:           detail,
	}
	if _, err := q.sendLog.Append(recordCtx, entry); err != nil {
		q.logger.WithError(err).WithField(LogFieldItemID, id).Error("Failed to append send log entry")
	}
	LogDispatchOutcome(recordCtx, q.logger, entry, item.ResolvedMessage)

	if saveErr != nil {
		tracing.RecordError(ctx, saveErr)
		return item, saveErr
	}
	return item, nil
}

// applyAttempt writes the attempt outcome onto the freshest copy of the item.
// An item deleted while its dispatch was in flight stays deleted. An item
// cancelled meanwhile still takes the outcome, since the message went out.
func (q *SendQueue) applyAttempt(ctx context.Context, item models.ScheduledSendItem, from models.SendStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := q.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(doc.Items, item.ID)
	if idx < 0 {
		q.logger.WithField(LogFieldItemID, item.ID).Warn("Item deleted during dispatch, outcome not stored")
		return nil
	}

	stored := &doc.Items[idx]
	if stored.Status != from {
		q.logger.WithFields(logrus.Fields{
			LogFieldItemID:  item.ID,
			"stored_status": stored.Status,
			"outcome":       item.Status,
		}).Warn("Item changed during dispatch, attempt outcome replaces it")
	}
	stored.Status = item.Status
	stored.LastAttemptAt = item.LastAttemptAt
	stored.LastResult = item.LastResult
	return q.save(ctx, doc)
}

func (q *SendQueue) load(ctx context.Context) (*queueDocument, error) {
	doc := &queueDocument{}
	_, err := store.LoadDocument(ctx, q.store, constants.QueueStoreKey, constants.DocumentVersion, doc)
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return nil, apperrors.NewStoreError("read", constants.QueueStoreKey, err)
		}
		q.logger.WithError(err).WithField(LogFieldStoreKey, constants.QueueStoreKey).
			Warn("Send queue unreadable, starting from an empty queue")
		metrics.IncrementCounter(metrics.StoreFallbacks, map[string]string{"key": constants.QueueStoreKey},
			"Documents replaced by defaults after a failed read")
		doc = &queueDocument{}
	}
	if doc.Items == nil {
		doc.Items = []models.ScheduledSendItem{}
	}
	return doc, nil
}

func (q *SendQueue) save(ctx context.Context, doc *queueDocument) error {
	doc.Version = constants.DocumentVersion
	if err := store.SaveDocument(ctx, q.store, constants.QueueStoreKey, doc); err != nil {
		return apperrors.NewStoreError("write", constants.QueueStoreKey, err)
	}

	counts := map[models.SendStatus]int{}
	for _, item := range doc.Items {
		counts[item.Status]++
	}
	for _, status := range []models.SendStatus{
		models.SendStatusPending, models.SendStatusSent, models.SendStatusFailed, models.SendStatusCancelled,
	} {
		metrics.SetGauge(metrics.QueueItems, float64(counts[status]), map[string]string{"status": string(status)},
			"Queue items by status")
	}
	return nil
}

// resolveSend resolves a message against the registry as it is right now.
func resolveSend(ctx context.Context, mentions MentionLookup, scope models.Scope, channelName string, roleNames []string, raw string) (*models.Preview, error) {
	roles, err := mentions.Lookup(ctx, models.MentionKindRole, scope)
	if err != nil {
		return nil, err
	}
	channels, err := mentions.Lookup(ctx, models.MentionKindChannel, scope)
	if err != nil {
		return nil, err
	}

	resolved, tokens := resolver.Inspect(raw, roles, channels)
	preview := &models.Preview{
		Scope:            scope,
		ChannelName:      strings.TrimSpace(channelName),
		MentionRoleNames: dedupeNames(roleNames),
		MentionRoleIDs:   []string{},
		RawMessage:       raw,
		ResolvedMessage:  resolved,
		UnresolvedTokens: resolver.Unresolved(tokens),
	}

	if id := strings.TrimSpace(channels[resolver.NormalizeName(channelName)]); id != "" {
		preview.ChannelID = &id
	}
	for _, name := range preview.MentionRoleNames {
		if id := strings.TrimSpace(roles[resolver.NormalizeName(name)]); id != "" {
			preview.MentionRoleIDs = append(preview.MentionRoleIDs, id)
		} else {
			preview.UnmappedRoles = append(preview.UnmappedRoles, name)
		}
	}
	return preview, nil
}

// dedupeNames trims names and drops later case-insensitive duplicates.
func dedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := resolver.NormalizeName(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(name))
	}
	return out
}

func validateSendRequest(scope models.Scope, channelName string, roleNames []string, raw string) error {
	if err := validation.ValidateScopeKey(scope.Group); err != nil {
		return err
	}
	if strings.TrimSpace(channelName) == "" {
		return apperrors.NewValidationError("channelName", channelName, "channel name cannot be empty")
	}
	if err := validation.ValidateMentionName(channelName); err != nil {
		return err
	}
	for _, name := range roleNames {
		if err := validation.ValidateMentionName(name); err != nil {
			return err
		}
	}
	return validation.ValidateMessage(raw)
}

func indexOf(items []models.ScheduledSendItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func itemNotFound(id string) error {
	return apperrors.Wrap(ErrItemNotFound, apperrors.ErrCodeNotFound, "queue item not found").
		WithContext("identifier", id).
		WithUserMessage("Queue item not found")
}

func invalidTransition(id string, from models.SendStatus, action string) error {
	appErr := apperrors.NewInvalidStateError("queue item", id, string(from), action)
	appErr.Cause = ErrInvalidTransition
	return appErr
}

func recordTransition(from, to models.SendStatus) {
	if from == "" {
		from = "new"
	}
	metrics.IncrementCounter(metrics.QueueTransitions, map[string]string{
		"from": string(from),
		"to":   string(to),
	}, "Queue status transitions")
}
