// Package qu provides a typed empty-struct channel for trigger and quit
// signalling, with close-once semantics so shutdown paths can't panic on a
// double signal.
package qu

import (
	"sync"
)

// C is your basic empty struct signalling channel.
type C chan struct{}

var (
	mx     sync.Mutex
	closed = make(map[C]bool)
)

// T creates an unbuffered chan struct{} for quit signalling (breaker
// switch).
func T() C {
	return make(C)
}

// Ts creates a buffered chan struct{} for trigger signalling (momentary
// switch).
func Ts(n int) C {
	return make(C, n)
}

// Signal sends a momentary trigger without closing the channel.
func (c C) Signal() {
	mx.Lock()
	defer mx.Unlock()
	if closed[c] {
		return
	}
	select {
	case c <- struct{}{}:
	default:
	}
}

// Q closes the channel, exactly once no matter how many callers race on it.
func (c C) Q() {
	mx.Lock()
	defer mx.Unlock()
	if closed[c] {
		return
	}
	closed[c] = true
	close(c)
}

// Wait returns the receive side, for use in select statements.
func (c C) Wait() <-chan struct{} {
	return c
}

// IsClosed returns true if the channel was Q'd already.
func (c C) IsClosed() bool {
	mx.Lock()
	defer mx.Unlock()
	return closed[c]
}
