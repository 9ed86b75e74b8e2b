// Package lineutil provides utility functions for building LINE messages.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// MaxTextMessageLength is the LINE API limit for one text message, in
// characters. Reference: https://developers.line.biz/en/reference/messaging-api/
const MaxTextMessageLength = 5000

// NewTextMessage creates a text message, truncating to the API limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	if len([]rune(text)) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength)
	}

	return &messaging_api.TextMessage{
		Text: text,
	}
}

// TruncateRunes truncates text by rune count (not byte count) to properly
// handle UTF-8. Returns truncated string with "..." if exceeds maxRunes.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
