package lineutil

// LINE API limits, in runes.
// References: https://developers.line.biz/en/reference/messaging-api/
const (
	MaxTextMessageLength   = 5000
	MaxQuickReplyItemCount = 13
	MaxQuickReplyLabel     = 20
	MaxMessagesPerReply    = 5
)
