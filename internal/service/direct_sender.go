package service

import (
	"context"
	"strings"

	"allyboard/internal/constants"
	apperrors "allyboard/internal/errors"
	"allyboard/internal/models"
	"allyboard/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DirectSendRequest is an immediate send that skips the queue.
type DirectSendRequest struct {
	Scope            models.Scope `json:"scope"`
	ChannelName      string       `json:"channelName"`
	MentionRoleNames []string     `json:"mentionRoleNames"`
	RawMessage       string       `json:"rawMessage"`
	Source           string       `json:"source"`
	DryRun           bool         `json:"dryRun"`
}

// DirectSendResult is what a direct send resolved and how the gateway answered.
type DirectSendResult struct {
	Preview models.Preview        `json:"preview"`
	Result  models.DispatchResult `json:"result"`
	Entry   models.SendLogEntry   `json:"entry"`
}

// DirectSender resolves against the live registry and dispatches at once.
type DirectSender struct {
	mentions   MentionLookup
	dispatcher Dispatcher
	sendLog    SendLogAppender
	logger     *logrus.Logger
}

// NewDirectSender creates a direct sender.
func NewDirectSender(mentions MentionLookup, dispatcher Dispatcher, sendLog SendLogAppender, logger *logrus.Logger) *DirectSender {
	if logger == nil {
		logger = logrus.New()
	}
	return &DirectSender{
		mentions:   mentions,
		dispatcher: dispatcher,
		sendLog:    sendLog,
		logger:     logger,
	}
}

// Send resolves and dispatches req, appending one send log entry. A channel
// without an ID is a configuration error: the entry is still written but the
// gateway is not called. Dry runs are tagged in the entry's source.
func (d *DirectSender) Send(ctx context.Context, req DirectSendRequest) (*DirectSendResult, error) {
	if err := validateSendRequest(req.Scope, req.ChannelName, req.MentionRoleNames, req.RawMessage); err != nil {
		return nil, err
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = constants.SourceDirect
	}
	if req.DryRun {
		source += ":dry-run"
	}

	ctx, span := tracing.StartSpan(ctx, "direct.send",
		tracing.AttrSource.String(source),
		tracing.AttrDryRun.Bool(req.DryRun),
	)
	defer span.End()

	preview, err := resolveSend(ctx, d.mentions, req.Scope, req.ChannelName, req.MentionRoleNames, req.RawMessage)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	channelID := ""
	if preview.ChannelID != nil {
		channelID = *preview.ChannelID
	}

	var result models.DispatchResult
	var sendErr error
	if channelID == "" {
		result = models.DispatchResult{Error: constants.ResultMissingChannelID}
		sendErr = apperrors.NewConfigError("channelName", constants.ResultMissingChannelID).
			WithContext("channel", preview.ChannelName).
			WithContext("scope", req.Scope.String()).
			WithUserMessage("Channel " + preview.ChannelName + " has no ID mapped")
		d.logger.WithFields(logrus.Fields{
			LogFieldChannel: preview.ChannelName,
			LogFieldScope:   req.Scope.String(),
			LogFieldSource:  source,
		}).Warn("Skipping dispatch: channel has no ID")
	} else {
		result = d.dispatcher.Dispatch(ctx, channelID, preview.ResolvedMessage,
			WithMentionRoleIDs(preview.MentionRoleIDs),
			WithDryRun(req.DryRun),
		)
	}

	entry := models.SendLogEntry{
		Source:           source,
		ChannelName:      preview.ChannelName,
		ChannelID:        channelID,
		MentionRoleNames: preview.MentionRoleNames,
		MentionRoleIDs:   preview.MentionRoleIDs,
		MessagePreview:   preview.ResolvedMessage,
		OK:               result.OK,
		Detail:           result.Detail(),
	}
	stored, err := d.sendLog.Append(context.WithoutCancel(ctx), entry)
	if err != nil {
		d.logger.WithError(err).WithField(LogFieldSource, source).Error("Failed to append send log entry")
	}
	LogDispatchOutcome(ctx, d.logger, stored, preview.ResolvedMessage)

	return &DirectSendResult{Preview: *preview, Result: result, Entry: stored}, sendErr
}
