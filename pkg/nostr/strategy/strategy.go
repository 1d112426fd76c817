// Package strategy decomposes a logical discovery request into an ordered
// list of concrete filters. One big query against many relays is unreliable,
// relays silently truncate large result sets and some drop older data from
// wide time windows, so the plan layers narrow-then-wide and
// recent-then-historical steps: time buckets newest first, then unbounded
// fallbacks with escalating limits to catch what clock skew and indexing
// gaps hid from the buckets, then optional unrestricted steps as a last
// resort whose results the session re-validates locally.
package strategy

import (
	"fmt"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tag"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
)

// Request is the logical discovery query before planning: what the caller
// actually wants, independent of how many filters it takes to get it.
type Request struct {
	Kinds   kinds.T
	Authors tag.T
	Tags    filter.TagMap

	// TargetCount stops the plan early once this many unique events are
	// collected. Zero means "everything available", the whole plan runs.
	TargetCount int
}

// Step is one concrete filter attempt with its own deadline and a label for
// diagnostics.
type Step struct {
	Filter  *filter.T
	Label   string
	Timeout time.Duration
}

// Unrestricted steps return events outside the caller's true predicate and
// must be post-filtered before acceptance.
func (s Step) Unrestricted() bool {
	return s.Filter.Unrestricted()
}

// Policy holds the tunable knobs. Bucket widths and limit escalations were
// never consistent across the callers this engine replaces, so they are
// configuration, not contract.
type Policy struct {
	// BucketEdges are the lookback boundaries of the time buckets, newest
	// first. Edges {7d, 14d} produce buckets now-7d..now, now-14d..now-7d,
	// and a final open bucket for everything older than the last edge.
	BucketEdges []time.Duration

	// BucketLimit is the per-bucket result cap. Moderate on purpose, a
	// bucket that hits the cap is truncated by the relay anyway and the
	// fallback steps recover the remainder.
	BucketLimit int

	// BucketTimeout is each bucketed step's deadline.
	BucketTimeout time.Duration

	// FallbackLimits are the escalating limits of the unbounded steps. Some
	// relays interpret limit as "most recent N", so repeating with a larger
	// limit recovers events the buckets missed.
	FallbackLimits []int

	// FallbackTimeout is each fallback step's deadline.
	FallbackTimeout time.Duration

	// Unrestricted appends a final kinds-only step. Only useful against
	// relays that ignore author or tag filter fields entirely, and only safe
	// because sessions post-filter these results.
	Unrestricted      bool
	UnrestrictedLimit int
}

const day = 24 * time.Hour

// DefaultPolicy is the tuning the fitness app's discovery screens settled
// on.
func DefaultPolicy() Policy {
	return Policy{
		BucketEdges:       []time.Duration{7 * day, 14 * day, 30 * day, 90 * day, 365 * day},
		BucketLimit:       100,
		BucketTimeout:     6 * time.Second,
		FallbackLimits:    []int{100, 200, 500},
		FallbackTimeout:   8 * time.Second,
		Unrestricted:      false,
		UnrestrictedLimit: 500,
	}
}

// Plan produces the ordered step list for a request. now is a parameter so
// plans are reproducible in tests.
func Plan(rq Request, pol Policy, now timestamp.T) (steps []Step) {
	base := &filter.T{
		Kinds:   rq.Kinds.Clone(),
		Authors: rq.Authors.Clone(),
		Tags:    rq.Tags.Clone(),
	}

	// time-bucketed steps, most recent first
	until := now
	for i, edge := range pol.BucketEdges {
		f := base.Clone()
		f.Since = timestamp.T(now.I64() - int64(edge/time.Second)).Ptr()
		f.Until = until.Ptr()
		f.Limit = pol.BucketLimit
		var from time.Duration
		if i > 0 {
			from = pol.BucketEdges[i-1]
		}
		steps = append(steps, Step{
			Filter: f,
			Label: fmt.Sprintf("bucket:%d-%dd", int(from/day),
				int(edge/day)),
			Timeout: pol.BucketTimeout,
		})
		// nudge by one second, since is inclusive so adjacent buckets would
		// otherwise both claim an exact-boundary event
		until = timestamp.T(now.I64() - int64(edge/time.Second) - 1)
	}
	if len(pol.BucketEdges) > 0 {
		// the open-ended historical bucket
		last := pol.BucketEdges[len(pol.BucketEdges)-1]
		f := base.Clone()
		f.Until = until.Ptr()
		f.Limit = pol.BucketLimit
		steps = append(steps, Step{
			Filter:  f,
			Label:   fmt.Sprintf("bucket:%dd-", int(last/day)),
			Timeout: pol.BucketTimeout,
		})
	}

	// unbounded fallbacks with escalating limits
	for _, limit := range pol.FallbackLimits {
		f := base.Clone()
		f.Limit = limit
		steps = append(steps, Step{
			Filter:  f,
			Label:   fmt.Sprintf("fallback:limit=%d", limit),
			Timeout: pol.FallbackTimeout,
		})
	}

	// last-resort diagnostic step, kinds only. Pointless when the request
	// was already unrestricted, the fallbacks covered it.
	if pol.Unrestricted && !base.Unrestricted() {
		f := &filter.T{
			Kinds: rq.Kinds.Clone(),
			Limit: pol.UnrestrictedLimit,
		}
		steps = append(steps, Step{
			Filter:  f,
			Label:   fmt.Sprintf("unrestricted:limit=%d", pol.UnrestrictedLimit),
			Timeout: pol.FallbackTimeout,
		})
	}
	return
}
