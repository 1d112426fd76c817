// Package rescache memoizes aggregation results for a short window so
// screens that re-request the same logical query within seconds of each
// other don't re-run whole relay sweeps. It is purely a latency/load
// optimization: absence of the cache changes freshness, never correctness.
package rescache

import (
	"fmt"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/aggregator"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/strategy"
	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v2"
)

// DefaultTTL is the expiry the app's callers converged on.
const DefaultTTL = 5 * time.Minute

type entry struct {
	result  *aggregator.Result
	expires time.Time
}

// T is a TTL result cache. Racing writers are last-write-wins, which the
// callers accept: both writes hold fresh data.
type T struct {
	entries *xsync.MapOf[string, entry]
	clock   clock.Clock
	ttl     time.Duration
}

func New(ttl time.Duration) *T {
	return NewWithClock(ttl, clock.New())
}

// NewWithClock injects the clock, so expiry is testable without sleeping.
func NewWithClock(ttl time.Duration, clk clock.Clock) *T {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &T{
		entries: xsync.NewMapOf[entry](),
		clock:   clk,
		ttl:     ttl,
	}
}

// Key derives the cache key from the full logical request, not from the
// individual filter steps a planner would expand it into.
func Key(rq strategy.Request) string {
	f := &filter.T{
		Kinds:   rq.Kinds,
		Authors: rq.Authors,
		Tags:    rq.Tags,
	}
	return fmt.Sprintf("%s|target=%d", f.Fingerprint(), rq.TargetCount)
}

// Get returns a copy of the cached result, so a hit that the caller then
// appends to or re-sorts can't corrupt what later hits see.
func (c *T) Get(key string) (r *aggregator.Result, ok bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expires) {
		c.entries.Delete(key)
		return nil, false
	}
	return e.result.Clone(), true
}

func (c *T) Put(key string, r *aggregator.Result) {
	c.PutTTL(key, r, c.ttl)
}

// PutTTL stores with an explicit expiry for callers that know better than
// the default.
func (c *T) PutTTL(key string, r *aggregator.Result, ttl time.Duration) {
	c.entries.Store(key, entry{result: r, expires: c.clock.Now().Add(ttl)})
}

// Invalidate removes one key, e.g. right after a mutation that must be
// visible on the next read.
func (c *T) Invalidate(key string) {
	c.entries.Delete(key)
}

// Purge sweeps every expired entry out. Get already drops expired entries
// lazily, so this only matters for keeping memory tight in long-lived
// processes.
func (c *T) Purge() {
	now := c.clock.Now()
	c.entries.Range(func(key string, e entry) bool {
		if now.After(e.expires) {
			c.entries.Delete(key)
		}
		return true
	})
}

// Size is the number of live entries, expired ones included until swept.
func (c *T) Size() int {
	return c.entries.Size()
}
