package normalize

import (
	"net/url"
	"strings"
)

// URL normalizes a relay url: a bare hostname gets the wss:// scheme
// (the overwhelmingly common case), http/https become ws/wss, and trailing
// path slashes are trimmed so the same relay always maps to the same key in
// the pool.
func URL(u string) string {
	if u == "" {
		return ""
	}
	u = strings.ToLower(strings.TrimSpace(u))
	if !strings.HasPrefix(u, "http://") &&
		!strings.HasPrefix(u, "https://") &&
		!strings.HasPrefix(u, "ws://") &&
		!strings.HasPrefix(u, "wss://") {
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}
