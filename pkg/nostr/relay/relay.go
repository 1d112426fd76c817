// Package relay implements the client side of one relay connection: the
// transport, a serialized write queue, the inbound frame dispatch loop, and
// subscription management. One T can carry many concurrent subscriptions,
// which is what lets multiple aggregation sessions share a pool.
package relay

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/connection"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/envelopes"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filters"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/normalize"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/subscription"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/subscriptionid"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

var subscriptionIDCounter atomic.Int32

// T is a connection to one relay.
type T struct {
	closeMutex sync.Mutex
	url        string

	// RequestHeader is sent with the handshake, e.g. for an origin header.
	RequestHeader http.Header

	Connection    *connection.C
	Subscriptions *xsync.MapOf[string, *subscription.T]

	// ConnectionError holds the error that ended the read loop, if any.
	ConnectionError error

	// ConnectionContext will be canceled when the connection closes.
	ConnectionContext       context.T
	ConnectionContextCancel context.F

	notices    chan string
	writeQueue chan writeRequest

	// AssumeValid skips the content-hash check on events from this relay.
	AssumeValid bool
}

func (r *T) URL() string { return r.url }

func (r *T) Delete(key string) { r.Subscriptions.Delete(key) }

type writeRequest struct {
	msg    []byte
	answer chan error
}

// When instantiating relay connections, some options may be passed.

// Option is the type of the argument passed for that.
type Option interface {
	IsRelayOption()
}

// WithNoticeHandler just takes notices and is expected to do something with
// them. When not given, notices are logged.
type WithNoticeHandler func(notice string)

func (_ WithNoticeHandler) IsRelayOption() {}

var _ Option = (WithNoticeHandler)(nil)

// New returns a new relay. The relay connection will be closed when the
// context is canceled.
func New(c context.T, url string, opts ...Option) *T {
	ctx, cancel := context.Cancel(c)
	r := &T{
		url:                     normalize.URL(url),
		ConnectionContext:       ctx,
		ConnectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[*subscription.T](),
		writeQueue:              make(chan writeRequest),
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithNoticeHandler:
			r.notices = make(chan string)
			go func() {
				// the channel is never closed, teardown is signalled by the
				// connection context so a concurrent dispatch can't send on
				// a closed channel
				for {
					select {
					case n := <-r.notices:
						o(n)
					case <-r.ConnectionContext.Done():
						return
					}
				}
			}()
		}
	}
	return r
}

// Connect returns a relay object connected to url. Once successfully
// connected, cancelling ctx has no effect. To close the connection, call
// r.Close().
func Connect(c context.T, url string, opts ...Option) (*T, error) {
	r := New(c, url, opts...)
	err := r.Connect(c)
	return r, err
}

// String just returns the relay URL.
func (r *T) String() string { return r.url }

// Context retrieves the context that is associated with this relay
// connection.
func (r *T) Context() context.T { return r.ConnectionContext }

// IsConnected returns true if the connection to this relay seems to be
// active.
func (r *T) IsConnected() bool { return r.ConnectionContext.Err() == nil }

// Connect tries to establish a websocket connection to r.URL. If the context
// expires before the connection is complete, an error is returned. Once
// successfully connected, context expiration has no effect: call r.Close to
// close the connection.
//
// Connect is idempotent on an already live connection and never retries by
// itself, retry policy belongs to the caller.
func (r *T) Connect(c context.T) (err error) {
	if r.ConnectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf("relay must be initialized with a call to New()")
	}
	if r.url == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL())
	}
	if r.Connection != nil && r.IsConnected() {
		return nil
	}
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		c, cancel = context.Timeout(c, 7*time.Second)
		defer cancel()
	}
	var conn *connection.C
	conn, err = connection.New(c, r.url, r.RequestHeader)
	if err != nil {
		return &ConnectError{URL: r.url, Kind: classifyDialError(c, err),
			Err: err}
	}
	r.Connection = conn

	// ping every 29 seconds to keep intermediaries from reaping the socket
	ticker := time.NewTicker(29 * time.Second)
	go func() {
		<-r.ConnectionContext.Done()
		ticker.Stop()
		r.Subscriptions.Range(func(_ string, sub *subscription.T) bool {
			go sub.Unsub()
			return true
		})
	}()

	// all writes are queued through here so there is no mutex spaghetti
	go func() {
		var err error
		for {
			select {
			case <-ticker.C:
				if err = r.Connection.Ping(); err != nil {
					log.D.F("{%s} error writing ping: %v; closing websocket",
						r.URL(), err)
					chk.D(r.Close())
					return
				}
			case wr := <-r.writeQueue:
				if wr.msg == nil {
					return
				}
				if err = r.Connection.WriteMessage(wr.msg); err != nil {
					wr.answer <- err
				}
				close(wr.answer)
			case <-r.ConnectionContext.Done():
				return
			}
		}
	}()

	go r.MessageReadLoop(conn)
	return nil
}

// MessageReadLoop reads frames off the wire and routes them to the
// subscription they answer. Malformed frames and events that fail local
// validation are dropped and logged, never surfaced as errors.
func (r *T) MessageReadLoop(conn *connection.C) {
	buf := new(bytes.Buffer)
	var err error
	for {
		buf.Reset()
		if err = conn.ReadMessage(r.ConnectionContext, buf); err != nil {
			r.ConnectionError = err
			chk.D(r.Close())
			break
		}
		message := buf.Bytes()
		var env interface{}
		if env, err = envelopes.Process(message); err != nil {
			log.D.F("{%s} malformed frame dropped: %v", r.URL(), err)
			continue
		}
		if env == nil {
			continue
		}
		switch env := env.(type) {
		case *envelopes.Notice:
			if r.notices != nil {
				select {
				case r.notices <- env.Text:
				case <-r.ConnectionContext.Done():
				}
			} else {
				log.D.F("NOTICE from %s: '%s'", r.URL(), env.Text)
			}
		case *envelopes.Event:
			if env.SubscriptionID == "" {
				continue
			}
			s, ok := r.Subscriptions.Load(env.SubscriptionID.String())
			if !ok {
				log.T.F("{%s} no subscription with id '%s'",
					r.URL(), env.SubscriptionID)
				continue
			}
			// relays are untrusted: drop events outside the subscribed
			// filter, and events whose id doesn't hash from their content
			if !s.Filters.Match(env.Event) {
				log.D.F("{%s} filter does not match: %v ~ %v",
					r.URL(), s.Filters, env.Event)
				continue
			}
			if !r.AssumeValid && !env.Event.CheckID() {
				log.D.F("{%s} event id does not match content on %s",
					r.URL(), env.Event.ID)
				continue
			}
			s.DispatchEvent(env.Event)
		case *envelopes.Eose:
			if s, ok := r.Subscriptions.Load(env.SubscriptionID.String()); ok {
				s.DispatchEose()
			}
		case *envelopes.Closed:
			if s, ok := r.Subscriptions.Load(env.SubscriptionID.String()); ok {
				s.DispatchClosed(env.Reason)
			}
		}
	}
}

// Write queues a message to be sent to the relay.
func (r *T) Write(msg []byte) (ch chan error) {
	ch = make(chan error, 1)
	timeout := time.After(time.Second * 5)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.ConnectionContext.Done():
		ch <- fmt.Errorf("connection closed")
	case <-timeout:
		ch <- fmt.Errorf("write timed out")
	}
	return
}

// Subscribe sends a REQ command to the relay. Events are returned through the
// channel sub.Events. The subscription is closed when context ctx is
// cancelled.
//
// Remember to cancel subscriptions, either by calling `.Unsub()` on them or
// ensuring their context will be canceled at some point. Failure to do that
// will result in a huge number of halted goroutines being created.
func (r *T) Subscribe(c context.T, f filters.T) (*subscription.T, error) {
	sub := r.PrepareSubscription(c, f)
	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", f,
			r.URL(), err)
	}
	return sub, nil
}

// PrepareSubscription creates a subscription, but doesn't fire it.
func (r *T) PrepareSubscription(c context.T, f filters.T) *subscription.T {
	if r.Connection == nil {
		panic(fmt.Errorf(
			"must call .Connect() first before calling .Subscribe()"))
	}
	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.Cancel(c)
	sub := &subscription.T{
		Relay:             r,
		Context:           ctx,
		Cancel:            cancel,
		Label:             subscriptionid.NewLabel(),
		Counter:           int(current),
		Events:            make(chan *event.T),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		Filters:           f,
	}
	r.Subscriptions.Store(sub.GetID(), sub)

	// handles unsub and closing the events channel on context end
	go sub.Start()
	return sub
}

// QuerySync subscribes with a single filter and collects events until the
// context deadline. It deliberately does NOT return at the EOSE marker, which
// relays have been observed to send before they are actually done.
func (r *T) QuerySync(c context.T, f *filter.T) ([]*event.T, error) {
	sub, err := r.Subscribe(c, filters.T{f})
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		c, cancel = context.Timeout(c, 7*time.Second)
		defer cancel()
	}
	var events []*event.T
	for {
		select {
		case evt := <-sub.Events:
			if evt == nil {
				return events, nil
			}
			events = append(events, evt)
		case <-c.Done():
			return events, nil
		}
	}
}

func (r *T) Close() error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()
	if r.ConnectionContextCancel == nil {
		return fmt.Errorf("relay not connected")
	}
	r.ConnectionContextCancel()
	r.ConnectionContextCancel = nil
	if r.Connection == nil {
		return nil
	}
	return r.Connection.Close()
}
