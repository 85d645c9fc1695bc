package webhook

import (
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
)

func self(index, length int32) webhook.UserMentionee {
	return webhook.UserMentionee{Index: index, Length: length, IsSelf: true}
}

func other(index, length int32) webhook.UserMentionee {
	return webhook.UserMentionee{Index: index, Length: length, UserId: "U1234567890"}
}

func TestIsBotMentioned(t *testing.T) {
	tests := []struct {
		name       string
		mentionees []webhook.MentioneeInterface
		want       bool
	}{
		{"No mention", nil, false},
		{"Bot mentioned", []webhook.MentioneeInterface{self(0, 4)}, true},
		{"Other user only", []webhook.MentioneeInterface{other(0, 5)}, false},
		{"Other then bot", []webhook.MentioneeInterface{other(0, 5), self(6, 4)}, true},
		{"Mention all", []webhook.MentioneeInterface{webhook.AllMentionee{Index: 0, Length: 4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := webhook.TextMessageContent{Text: "@Bot hello"}
			if tt.mentionees != nil {
				msg.Mention = &webhook.Mention{Mentionees: tt.mentionees}
			}
			assert.Equal(t, tt.want, isBotMentioned(msg))
		})
	}
}

func TestRemoveBotMentions(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		mentionees []webhook.MentioneeInterface
		want       string
	}{
		{"Leading", "@Bot WP-2024-1234", []webhook.MentioneeInterface{self(0, 4)}, "WP-2024-1234"},
		{"Trailing", "status please @Bot", []webhook.MentioneeInterface{self(14, 4)}, "status please"},
		{"Middle", "check @Bot my status", []webhook.MentioneeInterface{self(6, 4)}, "check my status"},
		{"Keeps other users", "@Anna @Bot status", []webhook.MentioneeInterface{other(0, 5), self(6, 4)}, "@Anna status"},
		{"Twice", "@Bot status @Bot", []webhook.MentioneeInterface{self(0, 4), self(12, 4)}, "status"},
		{"Multibyte before mention", "Grüße @Bot", []webhook.MentioneeInterface{self(6, 4)}, "Grüße"},
		{"Out of range", "@Bot", []webhook.MentioneeInterface{self(2, 10)}, "@B"},
		{"Negative index", "@Bot hi", []webhook.MentioneeInterface{self(-1, 5)}, "hi"},
		{"No self mention", "@Anna  hi", []webhook.MentioneeInterface{other(0, 5)}, "@Anna  hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removeBotMentions(tt.text, &webhook.Mention{Mentionees: tt.mentionees})
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "hi", removeBotMentions("hi", nil))
}
