// Package interrupt centralizes SIGINT handling: callers register cleanup
// handlers, the listener runs them LIFO on the first interrupt or on a
// programmatic shutdown request, then signals completion.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/qu"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

var (
	requested atomic.Bool

	// ShutdownRequestChan triggers the same teardown as Ctrl+C.
	ShutdownRequestChan = qu.T()

	// HandlersDone is closed after all handlers have run.
	HandlersDone = qu.T()

	mx       sync.Mutex
	handlers []func()
	listener sync.Once

	ch = make(chan os.Signal, 1)
)

func listen() {
	signal.Notify(ch, os.Interrupt)
	go func() {
		select {
		case sig := <-ch:
			log.D.Ln("received interrupt signal", sig)
		case <-ShutdownRequestChan.Wait():
			log.D.Ln("received shutdown request")
		}
		requested.Store(true)
		invokeCallbacks()
	}()
}

func invokeCallbacks() {
	mx.Lock()
	defer mx.Unlock()
	// LIFO, later registrations depend on earlier ones still being up
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
	HandlersDone.Q()
}

// AddHandler registers a cleanup to run when an interrupt is received. The
// first registration starts the signal listener.
func AddHandler(handler func()) {
	listener.Do(listen)
	mx.Lock()
	defer mx.Unlock()
	handlers = append(handlers, handler)
}

// Request initiates teardown as if an interrupt had been received.
func Request() {
	ShutdownRequestChan.Q()
}

// Requested returns true once teardown has started.
func Requested() bool {
	return requested.Load()
}
