package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		unique  string
		payload string
	}{
		{"status index", "\\fpost_status|2", "post_status", "2"},
		{"no payload", "\\fnew_link", "new_link", ""},
		{"empty payload", "\\fdelete_post|", "delete_post", ""},
		{"payload with pipe", "\\fk|a|b", "k", "a|b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unique, payload := parseCallbackData(&tele.Callback{Data: tc.data})
			if unique != tc.unique || payload != tc.payload {
				t.Fatalf("parse(%q) = %q, %q; want %q, %q",
					tc.data, unique, payload, tc.unique, tc.payload)
			}
		})
	}
}

func TestParseCallbackDataNil(t *testing.T) {
	unique, payload := parseCallbackData(nil)
	if unique != "" || payload != "" {
		t.Fatalf("parse(nil) = %q, %q; want empty", unique, payload)
	}
}
