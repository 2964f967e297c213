// Package links extracts canonical Telegram post references from free text.
package links

import "regexp"

// postRe matches a t.me/telegram.me post reference: a channel or user handle,
// an optional numeric message id, and an optional trailing alphanumeric segment.
var postRe = regexp.MustCompile(`https?://(?:t\.me|telegram\.me)/(?:[a-zA-Z0-9_]+)(?:/[0-9]+)?(?:/[a-zA-Z0-9_]+)?`)

// Extract returns the first Telegram post link found in text.
// Only the first left-to-right match is used; additional links are ignored.
// The empty string means no link was found.
func Extract(text string) string {
	if text == "" {
		return ""
	}
	return postRe.FindString(text)
}
