package relay

import (
	"errors"
	"fmt"
	"net"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
)

// ConnectErrorKind classifies why a dial failed. Sessions never act on the
// distinction, a dead relay contributes zero either way, but diagnostics and
// operators care.
type ConnectErrorKind int

const (
	// Unreachable covers DNS failures and refused or unroutable connections.
	Unreachable ConnectErrorKind = iota
	// HandshakeFailed means TCP came up but the websocket upgrade didn't.
	HandshakeFailed
	// Timeout is the dial exceeding its context deadline.
	Timeout
)

func (k ConnectErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case HandshakeFailed:
		return "handshake failed"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// ConnectError is a dial failure for one relay. It is never fatal to a
// session.
type ConnectError struct {
	URL  string
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func classifyDialError(c context.T, err error) ConnectErrorKind {
	if c.Err() != nil {
		return Timeout
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return Timeout
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return Unreachable
	}
	return HandshakeFailed
}
