package links

import "testing"

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare link", "https://t.me/news/55", "https://t.me/news/55"},
		{"embedded", "check this out https://t.me/news/55 cool post", "https://t.me/news/55"},
		{"telegram.me host", "see telegram.me? http://telegram.me/chan/12", "http://telegram.me/chan/12"},
		{"channel only", "https://t.me/somechannel", "https://t.me/somechannel"},
		{"thread segment", "https://t.me/chan/100/abc123", "https://t.me/chan/100/abc123"},
		{"first of two", "https://t.me/a/1 and https://t.me/b/2", "https://t.me/a/1"},
		{"no link", "just some words", ""},
		{"empty", "", ""},
		{"wrong host", "https://example.com/chan/5", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Extract(tc.in); got != tc.want {
				t.Fatalf("Extract(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	inputs := []string{
		"prefix https://t.me/chan/100 suffix",
		"https://t.me/news/55",
		"http://telegram.me/user",
	}
	for _, in := range inputs {
		first := Extract(in)
		if first == "" {
			t.Fatalf("expected a link in %q", in)
		}
		if again := Extract(first); again != first {
			t.Fatalf("Extract not idempotent: %q -> %q", first, again)
		}
		if wrapped := Extract("around " + first + " around"); wrapped != first {
			t.Fatalf("Extract of embedded result = %q, want %q", wrapped, first)
		}
	}
}
