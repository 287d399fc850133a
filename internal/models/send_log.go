package models

import "time"

// SendLogEntry records one dispatch attempt. Entries are never edited.
type SendLogEntry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestampUtc"`
	Source           string    `json:"source"`
	ItemID           string    `json:"itemId,omitempty"`
	ChannelName      string    `json:"channelName"`
	ChannelID        string    `json:"channelId"`
	MentionRoleNames []string  `json:"mentionRoleNames"`
	MentionRoleIDs   []string  `json:"mentionRoleIds"`
	MessagePreview   string    `json:"messagePreview"`
	OK               bool      `json:"ok"`
	Detail           string    `json:"detail"`
}

// LogFilter narrows a send log listing.
type LogFilter struct {
	Query        string
	FailuresOnly bool
	Limit        int
}

// DispatchResult is the normalized outcome of a gateway call.
type DispatchResult struct {
	OK    bool   `json:"ok"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Detail returns the text stored as lastResult / log detail.
func (r DispatchResult) Detail() string {
	if r.OK {
		return r.Data
	}
	return r.Error
}
