package service

// Logging standards for allyboard
//
// Every log call uses the field names below so that log queries work across
// the queue, the dispatch adapter and the HTTP layer.

// Standard Field Names
const (
	// Dispatcher identifiers
	LogFieldItemID      = "item_id"
	LogFieldEntryID     = "entry_id"
	LogFieldChannel     = "channel"
	LogFieldChannelID   = "channel_id"
	LogFieldScope       = "scope"
	LogFieldKind        = "kind"
	LogFieldName        = "name"
	LogFieldSource      = "source"
	LogFieldStatus      = "status"
	LogFieldStatusFrom  = "status_from"
	LogFieldMentions    = "mention_count"
	LogFieldUnresolved  = "unresolved"
	LogFieldDryRun      = "dry_run"
	LogFieldStoreKey    = "store_key"
	LogFieldScheduledAt = "scheduled_at"
	LogFieldExternalID  = "external_id"

	// Service and operation fields
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Tracing
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"

	// Errors
	LogFieldDetail = "detail"
)

// Log Level Usage Guidelines
//
// DEBUG: resolved message text, raw gateway payloads, per-pass token detail.
//
// INFO: queue transitions (created, sent, cancelled, deleted), registry
// edits, configuration loaded, server start and stop.
//
// WARN: dispatch failures, missing channel IDs, corrupt stored documents
// replaced by defaults, circuit breaker rejections.
//
// ERROR: store reads or writes that failed and were returned to the caller.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"
//
// Example:
//
//	logger.WithFields(logrus.Fields{
//		LogFieldItemID:    item.ID,
//		LogFieldChannelID: privacy.MaskID(channelID),
//		LogFieldSource:    source,
//	}).Warn("Failed to dispatch scheduled item")
