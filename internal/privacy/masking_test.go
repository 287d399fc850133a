package privacy

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestMaskID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"snowflake", "123456789012345678", "**************5678"},
		{"short", "123", "***"},
		{"exactly visible", "1234", "****"},
		{"five", "12345", "*2345"},
		{"unicode", "ÄÖÜabcd", "***abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskID(tt.in))
		})
	}
}

func TestMaskIDs(t *testing.T) {
	assert.Nil(t, MaskIDs(nil))
	assert.Equal(t, []string{}, MaskIDs([]string{}))
	assert.Equal(t, []string{"**3456", "***"}, MaskIDs([]string{"123456", "abc"}))
}

func TestMaskMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@&123456> go to <#987654>", "<@&**3456> go to <#**7654>"},
		{"no mentions here", "no mentions here"},
		{"{{role:Ops}} stays", "{{role:Ops}} stays"},
		{"<#12>", "<#**>"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskMentions(tt.in))
		})
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "[REDACTED]", MaskToken("bearer-secret"))
}

func TestMaskSensitiveFields(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))

	in := logrus.Fields{
		"channel_id":       "123456789",
		"mention_role_ids": []string{"55556666"},
		"resolved_message": "<@&11112222> hi",
		"auth_token":       "tok",
		"item_id":          "abc",
		"count":            3,
		"channelId":        42,
	}

	out := MaskSensitiveFields(in)

	assert.Equal(t, "*****6789", out["channel_id"])
	assert.Equal(t, []string{"****6666"}, out["mention_role_ids"])
	assert.Equal(t, "<@&****2222> hi", out["resolved_message"])
	assert.Equal(t, "[REDACTED]", out["auth_token"])
	assert.Equal(t, "abc", out["item_id"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, 42, out["channelId"])
	assert.Equal(t, "123456789", in["channel_id"], "input must not be modified")
}
