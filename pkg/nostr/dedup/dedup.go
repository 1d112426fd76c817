// Package dedup tracks seen event ids for the lifetime of one aggregation
// session. It is deliberately per-session, a shared seen-set would let one
// caller's history suppress another caller's legitimately first-seen event.
package dedup

import (
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/puzpuzpuz/xsync/v2"
)

// T is a set of seen event identifiers. Safe for concurrent use.
type T struct {
	seen *xsync.MapOf[string, bool]
}

func New() *T {
	return &T{seen: xsync.NewMapOf[bool]()}
}

// Add records the event's id and reports whether it was new. First occurrence
// wins; duplicates, even ones with differing payloads from misbehaving
// relays, are simply not new.
func (d *T) Add(ev *event.T) (isNew bool) {
	if ev == nil {
		return false
	}
	_, dup := d.seen.LoadOrStore(ev.ID.String(), true)
	return !dup
}

// Seen reports whether an id was already added, without adding it.
func (d *T) Seen(id string) bool {
	_, ok := d.seen.Load(id)
	return ok
}

// Size is the count of distinct ids added so far.
func (d *T) Size() int {
	return d.seen.Size()
}
