package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/envelopes"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/subscriptionid"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Link is the part of a relay connection a subscription needs: queued writes,
// liveness, and removal from the link's registry when the subscription ends.
type Link interface {
	URL() string
	Write(msg []byte) chan error
	IsConnected() bool
	Delete(id string)
}

// T is one REQ on one relay link. Events stream on Events until Unsub or the
// context ends. EndOfStoredEvents closing is advisory only: relays have been
// observed delivering stored events after the marker, so consumers keep
// draining Events until their own deadline.
type T struct {
	Label   string
	Counter int

	Relay   Link
	Filters filters.T

	// the Events channel emits all EVENTs that come in for the Subscription,
	// it is closed when the subscription ends
	Events chan *event.T
	mu     sync.Mutex

	// EndOfStoredEvents is closed when an EOSE arrives for this subscription
	EndOfStoredEvents chan struct{}

	// ClosedReason emits the reason when a CLOSED message is received
	ClosedReason chan string

	// Context will be .Done() when the subscription ends
	Context context.T
	Cancel  context.F

	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool

	// events received before the EOSE must be dispatched before the
	// EndOfStoredEvents channel closes
	storedwg sync.WaitGroup
}

// GetID returns the wire subscription ID, a concatenation of the label and a
// serial number.
func (sub *T) GetID() string {
	return subscriptionid.New(sub.Label, sub.Counter).String()
}

// Start blocks until the subscription context ends and then tears down. Run
// it in its own goroutine.
func (sub *T) Start() {
	<-sub.Context.Done()
	sub.Unsub()
	// locked so there is no window where Events is closed while a dispatch
	// still holds it
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

func (sub *T) DispatchEvent(evt *event.T) {
	added := false
	if !sub.eosed.Load() {
		sub.storedwg.Add(1)
		added = true
	}
	go func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.live.Load() {
			select {
			case sub.Events <- evt:
			case <-sub.Context.Done():
			}
		}
		if added {
			sub.storedwg.Done()
		}
	}()
}

func (sub *T) DispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		go func() {
			sub.storedwg.Wait()
			close(sub.EndOfStoredEvents)
		}()
	}
}

func (sub *T) DispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		go func() {
			sub.ClosedReason <- reason
		}()
	}
}

// Unsub ends the subscription, sending CLOSE to the relay. Best effort: an
// in-flight frame the relay already sent is silently dropped, never an error.
func (sub *T) Unsub() {
	sub.Cancel()
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Relay.Delete(sub.GetID())
}

// Close just sends a CLOSE message. You probably want Unsub instead.
func (sub *T) Close() {
	if sub.Relay.IsConnected() {
		id := sub.GetID()
		closeb, _ := json.Marshal(&envelopes.Close{
			SubscriptionID: subscriptionid.T(id),
		})
		log.T.F("{%s} sending %s", sub.Relay.URL(), closeb)
		<-sub.Relay.Write(closeb)
	}
}

// Fire sends the REQ command to the relay.
func (sub *T) Fire() error {
	id := sub.GetID()
	reqb, err := json.Marshal(&envelopes.Req{
		SubscriptionID: subscriptionid.T(id),
		Filters:        sub.Filters,
	})
	if chk.E(err) {
		return err
	}
	log.T.F("{%s} sending %s", sub.Relay.URL(), reqb)
	sub.live.Store(true)
	if err = <-sub.Relay.Write(reqb); err != nil {
		sub.Cancel()
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}
