// Package discover is the call surface the application consumes. It owns the
// process-wide relay pool and an optional result cache, and turns the app's
// plain request shape into a planned, deduplicated aggregation run.
package discover

import (
	"os"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/aggregator"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/pool"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/rescache"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/strategy"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tag"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

// Request is the only shape callers need to know. Kinds is required,
// everything else optional; zero TargetCount means exhaustive.
type Request struct {
	Kinds       []int
	Authors     []string
	TagFilters  map[string][]string
	TargetCount int
	Endpoints   []string
}

func (rq Request) logical() strategy.Request {
	var tm filter.TagMap
	if len(rq.TagFilters) > 0 {
		tm = make(filter.TagMap, len(rq.TagFilters))
		for k, v := range rq.TagFilters {
			tm[k] = tag.T(v)
		}
	}
	return strategy.Request{
		Kinds:       kinds.FromIntSlice(rq.Kinds),
		Authors:     tag.T(rq.Authors),
		Tags:        tm,
		TargetCount: rq.TargetCount,
	}
}

// System bundles the pool, the planning policy and the optional cache. One
// System per process is the intended shape, sessions are cheap and made per
// call.
type System struct {
	Pool   *pool.T
	policy strategy.Policy
	cache  *rescache.T
}

type Option func(*System)

// WithCache enables result memoization with the given TTL. ttl <= 0 uses
// the default.
func WithCache(ttl time.Duration) Option {
	return func(s *System) { s.cache = rescache.New(ttl) }
}

func WithPolicy(pol strategy.Policy) Option {
	return func(s *System) { s.policy = pol }
}

func New(c context.T, opts ...Option) *System {
	s := &System{
		Pool:   pool.New(c),
		policy: strategy.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover runs one aggregation for the request, serving from cache when a
// fresh entry exists. Cache keys cover the logical query only, not the
// endpoint list, two screens asking the same question of different relay
// sets share an answer.
func (s *System) Discover(c context.T, rq Request) (r *aggregator.Result, err error) {
	logical := rq.logical()
	var key string
	if s.cache != nil {
		key = rescache.Key(logical)
		var ok bool
		if r, ok = s.cache.Get(key); ok {
			log.D.F("cache hit for %s", key)
			return r, nil
		}
	}
	sess := aggregator.New(s.Pool, rq.Endpoints, logical, s.policy)
	if r, err = sess.Run(c); err != nil {
		return r, err
	}
	if s.cache != nil {
		s.cache.Put(key, r)
	}
	return r, nil
}

// Invalidate drops any cached answer for the request, e.g. after the app
// publishes an event it expects the next Discover to include.
func (s *System) Invalidate(rq Request) {
	if s.cache != nil {
		s.cache.Invalidate(rescache.Key(rq.logical()))
	}
}

// Stream opens a live deduplicated subscription for the request across its
// endpoints. No planning, no cache: the single filter is the logical query
// itself. The channel closes when the context is canceled.
func (s *System) Stream(c context.T, rq Request) chan pool.IncomingEvent {
	logical := rq.logical()
	f := &filter.T{
		Kinds:   logical.Kinds,
		Authors: logical.Authors,
		Tags:    logical.Tags,
		Limit:   rq.TargetCount,
	}
	return s.Pool.SubMany(c, rq.Endpoints, filters.T{f})
}

// Close tears down the pool. The System is unusable afterwards.
func (s *System) Close() {
	s.Pool.Close()
}
