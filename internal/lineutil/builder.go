// Package lineutil builds LINE messages from chat replies.
package lineutil

import (
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// NewTextMessage creates a text message, truncated to the LINE limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	return &messaging_api.TextMessage{Text: TruncateRunes(text, MaxTextMessageLength)}
}

// NewMessageAction creates an action that sends text when tapped.
// Labels longer than the LINE limit are shortened; the sent text is not.
func NewMessageAction(label, text string) messaging_api.ActionInterface {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewQuickReply turns suggestions into message-action buttons. Empty
// input gives nil; more than 13 items are cut.
func NewQuickReply(suggestions []string) *messaging_api.QuickReply {
	if len(suggestions) == 0 {
		return nil
	}
	if len(suggestions) > MaxQuickReplyItemCount {
		suggestions = suggestions[:MaxQuickReplyItemCount]
	}
	items := make([]messaging_api.QuickReplyItem, len(suggestions))
	for i, s := range suggestions {
		items[i] = messaging_api.QuickReplyItem{Action: NewMessageAction(s, s)}
	}
	return &messaging_api.QuickReply{Items: items}
}

// NewReplyMessage is a text message carrying quick replies and an
// optional sender.
func NewReplyMessage(text string, suggestions []string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	msg.QuickReply = NewQuickReply(suggestions)
	msg.Sender = sender
	return msg
}

// TruncateRunes cuts text to at most maxRunes runes, ending with "..."
// when something was removed.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string([]rune(text)[:maxRunes])
	}
	return string([]rune(text)[:maxRunes-3]) + "..."
}
