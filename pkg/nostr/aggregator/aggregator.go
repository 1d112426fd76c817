// Package aggregator drives one discovery run to completion: plan the step
// list, execute each step against the pool, dedup and validate what comes
// back, stop when the target is met or the plan is exhausted. Partial results
// are valid results, the session never errors just because fewer events than
// hoped were found.
package aggregator

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/dedup"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/pool"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/strategy"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

// ErrNoEndpoints is the one hard failure a session can start with: no relay
// to even try.
var ErrNoEndpoints = errors.New("no relay endpoints provided")

// ErrCancelled reports cancellation before any result was produced.
// Cancellation after events were collected returns the partial result
// instead.
var ErrCancelled = errors.New("session cancelled before producing a result")

// State of a session. Transitions are strictly forward.
type State int32

const (
	Idle State = iota
	Planning
	Executing
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// StepReport is the diagnostic record of one executed plan step.
type StepReport struct {
	Label string `json:"label"`

	// Received counts the step's distinct deliveries before session-level
	// dedup, Unique what the step actually added to the result.
	Received int   `json:"events_received"`
	Unique   int   `json:"unique_added"`
	Elapsed  int64 `json:"elapsed_ms"`
}

// Result is what every caller gets, possibly empty, never nil on a run that
// started.
type Result struct {
	Events []*event.T `json:"events"`

	// StepsExecuted is append-only over the session's lifetime.
	StepsExecuted []StepReport `json:"steps_executed"`

	// RelayStats counts deliveries per relay url across all steps, before
	// dedup, so a relay that echoed an already-seen event still shows up as
	// having carried it.
	RelayStats map[string]int `json:"relay_stats"`
}

// Clone makes a shallow copy with fresh slices and map, so a caller can
// append or re-sort without mutating a result somebody else also holds.
// The events themselves are shared, they are immutable once accepted.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := &Result{
		Events:        append([]*event.T(nil), r.Events...),
		StepsExecuted: append([]StepReport(nil), r.StepsExecuted...),
		RelayStats:    make(map[string]int, len(r.RelayStats)),
	}
	for nm, n := range r.RelayStats {
		cp.RelayStats[nm] = n
	}
	return cp
}

// Session is one discovery run. Sessions are single-use: construct, Run
// once, read the result.
type Session struct {
	pool      *pool.T
	endpoints []string
	request   strategy.Request
	policy    strategy.Policy

	state     atomic.Int32
	cancelled atomic.Bool

	seen *dedup.T
}

func New(p *pool.T, endpoints []string, rq strategy.Request,
	pol strategy.Policy) *Session {

	return &Session{
		pool:      p,
		endpoints: endpoints,
		request:   rq,
		policy:    pol,
		seen:      dedup.New(),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Cancel stops the session at the next step boundary. A step already in
// flight runs to its own deadline, the pool does not expose mid-flight
// cancellation; callers needing a hard stop cancel the run context too.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Run executes the session. The returned Result is always usable, down
// relays and empty steps are absorbed, only an empty endpoint list or
// cancellation before the first collected event surface as errors.
func (s *Session) Run(c context.T) (r *Result, err error) {
	r = &Result{RelayStats: make(map[string]int)}
	if len(s.endpoints) == 0 {
		s.state.Store(int32(Completed))
		return r, ErrNoEndpoints
	}

	s.state.Store(int32(Planning))
	steps := strategy.Plan(s.request, s.policy, timestamp.Now())

	// the caller's true predicate, time window excluded: what an event must
	// satisfy no matter which step carried it
	predicate := &filter.T{
		Kinds:   s.request.Kinds,
		Authors: s.request.Authors,
		Tags:    s.request.Tags,
	}

	s.state.Store(int32(Executing))
	for _, step := range steps {
		if s.cancelled.Load() || c.Err() != nil {
			s.state.Store(int32(Cancelled))
			if len(r.Events) == 0 {
				return r, ErrCancelled
			}
			return r, nil
		}

		started := time.Now()
		evs, recv := s.pool.Query(c, s.endpoints, step.Filter, step.Timeout)

		report := StepReport{Label: step.Label, Received: len(evs)}
		// unrestricted and tag-only steps can carry events outside the
		// caller's logical query, relays ignore filter fields they don't
		// support; re-validate locally before acceptance
		validate := step.Unrestricted() || len(s.request.Authors) == 0
		for _, ev := range evs {
			if validate && !predicate.Matches(ev) {
				continue
			}
			if s.seen.Add(ev) {
				r.Events = append(r.Events, ev)
				report.Unique++
			}
		}
		for nm, n := range recv {
			r.RelayStats[nm] += n
		}
		report.Elapsed = time.Since(started).Milliseconds()
		r.StepsExecuted = append(r.StepsExecuted, report)
		log.D.F("step %s: received %d unique %d total %d", step.Label,
			report.Received, report.Unique, len(r.Events))

		if s.request.TargetCount > 0 &&
			len(r.Events) >= s.request.TargetCount {
			break
		}
	}
	// plan exhausted or target met, either way this is success
	s.state.Store(int32(Completed))
	return r, nil
}
