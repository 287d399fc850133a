package models

import "fmt"

// MentionKind distinguishes the two independent mention maps
type MentionKind string

const (
	MentionKindRole    MentionKind = "role"
	MentionKindChannel MentionKind = "channel"
)

// ParseMentionKind accepts "role"/"roles" and "channel"/"channels"
func ParseMentionKind(s string) (MentionKind, error) {
	switch s {
	case "role", "roles":
		return MentionKindRole, nil
	case "channel", "channels":
		return MentionKindChannel, nil
	default:
		return "", fmt.Errorf("unknown mention kind %q", s)
	}
}

// Scope selects the global namespace (empty Group) or one alliance/group override.
type Scope struct {
	Group string `json:"group,omitempty"`
}

// GlobalScope is the shared namespace every group inherits from.
var GlobalScope = Scope{}

func (s Scope) IsGlobal() bool {
	return s.Group == ""
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "group:" + s.Group
}

// NameMap maps a normalized name to an external platform ID.
// An empty ID means the name is known but its ID is not filled in yet.
type NameMap map[string]string

// MentionTable is one kind's global map plus per-scope overrides.
type MentionTable struct {
	Global NameMap            `json:"global"`
	Scoped map[string]NameMap `json:"scoped"`
}

// MentionMap is the full persisted registry document.
type MentionMap struct {
	Version  int          `json:"version"`
	Roles    MentionTable `json:"roles"`
	Channels MentionTable `json:"channels"`
}

// Table returns the table for the given kind.
func (m *MentionMap) Table(kind MentionKind) *MentionTable {
	if kind == MentionKindChannel {
		return &m.Channels
	}
	return &m.Roles
}
