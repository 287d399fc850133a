package models

import "time"

// SendStatus is the lifecycle state of a scheduled send.
type SendStatus string

const (
	SendStatusPending   SendStatus = "pending"
	SendStatusSent      SendStatus = "sent"
	SendStatusFailed    SendStatus = "failed"
	SendStatusCancelled SendStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s SendStatus) Valid() bool {
	switch s {
	case SendStatusPending, SendStatusSent, SendStatusFailed, SendStatusCancelled:
		return true
	}
	return false
}

// Sendable reports whether an item in this status may be dispatched (first attempt or retry).
func (s SendStatus) Sendable() bool {
	return s == SendStatusPending || s == SendStatusFailed
}

// ScheduledSendItem is a queued message. The resolved message, channel ID and
// role IDs are captured at creation and never re-resolved afterwards.
type ScheduledSendItem struct {
	ID               string     `json:"id"`
	ScheduledAt      time.Time  `json:"scheduledAtUtc"`
	CreatedAt        time.Time  `json:"createdAtUtc"`
	Scope            Scope      `json:"scope"`
	ChannelName      string     `json:"channelName"`
	ChannelID        *string    `json:"channelId"`
	MentionRoleNames []string   `json:"mentionRoleNames"`
	MentionRoleIDs   []string   `json:"mentionRoleIds"`
	RawMessage       string     `json:"rawMessage"`
	ResolvedMessage  string     `json:"resolvedMessage"`
	Status           SendStatus `json:"status"`
	LastAttemptAt    *time.Time `json:"lastAttemptUtc"`
	LastResult       *string    `json:"lastResult"`
}

// ChannelIDValue returns the snapshot channel ID or "" when unresolved.
func (i *ScheduledSendItem) ChannelIDValue() string {
	if i.ChannelID == nil {
		return ""
	}
	return *i.ChannelID
}

// Preview is the resolution of a template against the current registry state.
type Preview struct {
	Scope            Scope    `json:"scope"`
	ChannelName      string   `json:"channelName"`
	ChannelID        *string  `json:"channelId"`
	MentionRoleNames []string `json:"mentionRoleNames"`
	MentionRoleIDs   []string `json:"mentionRoleIds"`
	UnmappedRoles    []string `json:"unmappedRoles,omitempty"`
	RawMessage       string   `json:"rawMessage"`
	ResolvedMessage  string   `json:"resolvedMessage"`
	UnresolvedTokens []string `json:"unresolvedTokens,omitempty"`
}

// DispatchReport summarizes one "send all due" run.
type DispatchReport struct {
	Attempted int      `json:"attempted"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	ItemIDs   []string `json:"itemIds"`
}
