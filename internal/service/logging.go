package service

import (
	"context"

	"allyboard/internal/models"
	"allyboard/internal/privacy"
	"allyboard/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so dispatch logs include message text and unmasked IDs
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry carrying the request and trace IDs
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{"verbose": IsVerboseLogging(ctx)}
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		fields[LogFieldRequestID] = requestID
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		fields[LogFieldTraceID] = traceID
	}
	return logger.WithFields(fields)
}

// LogDispatchOutcome logs one dispatch attempt with privacy controls.
// Failures are warnings; successes are info.
func LogDispatchOutcome(ctx context.Context, logger *logrus.Logger, entry models.SendLogEntry, text string) {
	fields := logrus.Fields{
		LogFieldSource:   entry.Source,
		LogFieldChannel:  entry.ChannelName,
		LogFieldMentions: len(entry.MentionRoleIDs),
	}
	if entry.ItemID != "" {
		fields[LogFieldItemID] = entry.ItemID
	}

	if IsVerboseLogging(ctx) {
		fields[LogFieldChannelID] = entry.ChannelID
		fields["content"] = text
		fields[LogFieldDetail] = entry.Detail
	} else {
		fields[LogFieldChannelID] = privacy.MaskID(entry.ChannelID)
		fields["content"] = SanitizeContent(text)
		if !entry.OK {
			fields[LogFieldDetail] = privacy.MaskMentions(entry.Detail)
		}
	}

	log := LogWithContext(ctx, logger).WithFields(fields)
	if entry.OK {
		log.Info("Message dispatched")
	} else {
		log.Warn("Failed to dispatch message")
	}
}
