package types

import (
	"encoding/json"
	"strings"
)

// DispatchRequest is the body of POST /dispatch.
type DispatchRequest struct {
	ChannelID      string   `json:"channelId"`
	Content        string   `json:"content"`
	MentionRoleIDs []string `json:"mentionRoleIds,omitempty"`
	DryRun         bool     `json:"dryRun,omitempty"`
}

// DispatchResponse is the gateway envelope. Data is whatever the gateway
// chose to return on success, typically a message ID.
type DispatchResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// DataString renders Data as text: JSON strings are unquoted, anything else
// is returned as compact JSON.
func (r *DispatchResponse) DataString() string {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Data, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Data))
}
