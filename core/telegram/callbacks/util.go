// Package callbacks parses Telebot callback data. Status buttons carry the
// 1-based status index as their payload; action buttons carry none.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// parseCallbackData parses Telebot's \f<unique>|<payload> encoding.
func parseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\\f")
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// CallbackPayload returns payload (after '|') parsed from Data.
func CallbackPayload(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	// cb.Unique may be empty in generic OnCallback, so parse Data directly
	_, payload := parseCallbackData(cb)
	return payload
}
