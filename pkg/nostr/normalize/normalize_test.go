package normalize

import (
	"testing"
)

func TestURL(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"wss://x.com/y":     "wss://x.com/y",
		"wss://x.com/y/":    "wss://x.com/y",
		"http://x.com/y":    "ws://x.com/y",
		"https://x.com":     "wss://x.com",
		"wss://x.com/":      "wss://x.com",
		"x.com":             "wss://x.com",
		"x.com////":         "wss://x.com",
		"  Relay.Damus.IO ": "wss://relay.damus.io",
	}
	for in, want := range cases {
		if got := URL(in); got != want {
			t.Errorf("URL(%q) = %q, want %q", in, got, want)
		}
	}
	// idempotent
	if URL(URL("http://x.com/y")) != "ws://x.com/y" {
		t.Error("URL should be idempotent")
	}
}
