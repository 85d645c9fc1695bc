package lineutil

import "github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

// NewSender returns the display identity for replies, or nil when name is
// empty so LINE shows the channel's own profile.
func NewSender(name, iconURL string) *messaging_api.Sender {
	if name == "" {
		return nil
	}
	return &messaging_api.Sender{
		Name:    TruncateRunes(name, 20),
		IconUrl: iconURL,
	}
}
