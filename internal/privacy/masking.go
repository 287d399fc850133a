package privacy

import (
	"regexp"
	"strings"

	"allyboard/internal/constants"

	"github.com/sirupsen/logrus"
)

var mentionPattern = regexp.MustCompile(`<(@&|#)([^>\s]+)>`)

// MaskID hides all but the last few characters of a platform ID.
// Example: "123456789012345678" -> "**************5678"
func MaskID(id string) string {
	return maskString(id, constants.DefaultIDMaskVisible)
}

// MaskIDs masks every ID in ids. A nil slice stays nil.
func MaskIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = MaskID(id)
	}
	return out
}

// MaskMentions masks the IDs inside platform mention syntax so resolved
// messages can be logged.
// Example: "<@&123456> go to <#987654>" -> "<@&**3456> go to <#**7654>"
func MaskMentions(text string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := mentionPattern.FindStringSubmatch(m)
		return "<" + sub[1] + MaskID(sub[2]) + ">"
	})
}

// MaskToken hides a credential entirely.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	return "[REDACTED]"
}

// maskString masks s showing only the last keepLast runes.
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= keepLast {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keepLast) + string(runes[len(runes)-keepLast:])
}

// MaskSensitiveFields masks well-known ID and credential fields in a copy of
// fields.
func MaskSensitiveFields(fields logrus.Fields) logrus.Fields {
	if fields == nil {
		return nil
	}

	masked := make(logrus.Fields, len(fields))
	for k, v := range fields {
		switch k {
		case "channel_id", "channelId", "role_id", "roleId", "external_id", "externalId":
			if s, ok := v.(string); ok {
				masked[k] = MaskID(s)
				continue
			}
		case "mention_role_ids", "mentionRoleIds":
			if ids, ok := v.([]string); ok {
				masked[k] = MaskIDs(ids)
				continue
			}
		case "message", "resolved_message", "content":
			if s, ok := v.(string); ok {
				masked[k] = MaskMentions(s)
				continue
			}
		case "token", "auth_token", "api_key", "authorization", "secret":
			if s, ok := v.(string); ok {
				masked[k] = MaskToken(s)
				continue
			}
		}
		masked[k] = v
	}

	return masked
}
