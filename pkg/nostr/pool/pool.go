// Package pool owns the process-wide set of relay connections and implements
// the fan-out/fan-in query primitive the aggregation layer is built on.
// Links are created on first use, keyed by normalized URL, shared between
// concurrently running sessions, and kept alive until the pool closes.
package pool

import (
	"os"
	"sync"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/normalize"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/relay"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const maxLocks = 50

// striped locks so two goroutines can't race to dial the same relay, without
// one big mutex serializing dials to different relays
var namedMutexPool = make([]sync.Mutex, maxLocks)

func namedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % maxLocks
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

type T struct {
	Relays  *xsync.MapOf[string, *relay.T]
	Context context.T
	cancel  context.F
}

// IncomingEvent pairs an event with the relay that delivered it.
type IncomingEvent struct {
	Event *event.T
	Relay *relay.T
}

func New(c context.T) (p *T) {
	c, cancel := context.Cancel(c)
	p = &T{
		Relays:  xsync.NewMapOf[*relay.T](),
		Context: c,
		cancel:  cancel,
	}
	return
}

// EnsureRelay returns the pool's link for a url, dialing it on first use.
// Dial failures are returned to the caller, which treats the relay as
// contributing zero, they are never retried here.
func (p *T) EnsureRelay(url string) (rl *relay.T, err error) {
	nm := normalize.URL(url)
	defer namedLock(nm)()
	var ok bool
	rl, ok = p.Relays.Load(nm)
	if ok && rl.IsConnected() {
		// already connected, unlock and return
		return rl, nil
	}
	// the link's lifetime is the pool's; the timeout context bounds the
	// dial only, cancelling it after a successful handshake must not kill
	// the connection
	rl = relay.New(p.Context, nm)
	c, cancel := context.Timeout(p.Context, time.Second*15)
	defer cancel()
	if err = rl.Connect(c); err != nil {
		return nil, err
	}
	p.Relays.Store(nm, rl)
	return
}

// Query broadcasts one filter to every given relay in parallel, merges the
// streams, and returns the distinct-by-id events received before the
// deadline elapses. The end-of-stored-events marker is deliberately ignored,
// events observed after it are still collected; only the deadline ends a
// query. recv counts every delivery per relay before deduplication, for
// diagnostics.
//
// Query returns within the deadline (plus scheduling slack) even when every
// relay is unreachable or silent.
func (p *T) Query(c context.T, urls []string, f *filter.T,
	deadline time.Duration) (evs []*event.T, recv map[string]int) {

	c, cancel := context.Timeout(c, deadline)
	defer cancel()

	seen := xsync.NewMapOf[bool]()
	counters := xsync.NewMapOf[*xsync.Counter]()
	events := make(chan *event.T)

	var wg sync.WaitGroup
	wg.Add(len(urls))
	for _, url := range urls {
		go func(nm string) {
			defer wg.Done()
			rl, err := p.EnsureRelay(nm)
			if err != nil {
				log.D.F("relay %s contributes zero: %v", nm, err)
				return
			}
			sub, err := rl.Subscribe(c, filters.T{f})
			if err != nil {
				log.D.F("error subscribing to %s with %v: %v", rl, f, err)
				return
			}
			defer sub.Unsub()
			counter, _ := counters.LoadOrCompute(nm,
				func() *xsync.Counter { return xsync.NewCounter() })
			for {
				select {
				case <-c.Done():
					return
				case evt, more := <-sub.Events:
					if !more {
						return
					}
					counter.Inc()
					if _, dup := seen.LoadOrStore(evt.ID.String(),
						true); dup {
						continue
					}
					select {
					case events <- evt:
					case <-c.Done():
						return
					}
				}
			}
		}(normalize.URL(url))
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	for {
		select {
		case evt, more := <-events:
			if !more {
				return evs, p.snapshotCounters(counters)
			}
			evs = append(evs, evt)
		case <-c.Done():
			// a worker stuck in a dial past the deadline must not delay the
			// result, whatever was merged so far is the answer
			return evs, p.snapshotCounters(counters)
		}
	}
}

func (p *T) snapshotCounters(
	counters *xsync.MapOf[string, *xsync.Counter]) (recv map[string]int) {

	recv = make(map[string]int)
	counters.Range(func(nm string, counter *xsync.Counter) bool {
		recv[nm] = int(counter.Value())
		return true
	})
	return
}

// SubMany opens a live subscription with the given filters to multiple
// relays, deduplicating across them. The stream only ends when the context
// is canceled.
func (p *T) SubMany(c context.T, urls []string, f filters.T,
) chan IncomingEvent {

	events := make(chan IncomingEvent)
	seen := xsync.NewMapOf[bool]()
	pending := xsync.NewCounter()
	pending.Add(int64(len(urls)))
	for _, url := range urls {
		go func(nm string) {
			defer func() {
				pending.Dec()
				if pending.Value() == 0 {
					close(events)
				}
			}()
			rl, err := p.EnsureRelay(nm)
			if err != nil {
				return
			}
			sub, err := rl.Subscribe(c, f)
			if err != nil {
				return
			}
			defer sub.Unsub()
			for {
				select {
				case <-c.Done():
					return
				case evt, more := <-sub.Events:
					if !more {
						return
					}
					if _, dup := seen.LoadOrStore(evt.ID.String(),
						true); dup {
						continue
					}
					select {
					case events <- IncomingEvent{Event: evt, Relay: rl}:
					case <-c.Done():
						return
					}
				}
			}
		}(normalize.URL(url))
	}
	return events
}

// Close tears down every link in the pool. Call on process shutdown, links
// are otherwise kept for the process lifetime.
func (p *T) Close() {
	p.cancel()
	p.Relays.Range(func(nm string, rl *relay.T) bool {
		chk.D(rl.Close())
		p.Relays.Delete(nm)
		return true
	})
}
