package context

import (
	"context"
)

// Shortened context types and constructors. Every blocking call site in this
// module takes a context.T so the shorter names cut a lot of visual noise.
type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg          = context.Background
	Cancel      = context.WithCancel
	Timeout     = context.WithTimeout
	Deadline    = context.WithDeadline
	TODO        = context.TODO
	Value       = context.WithValue
	CancelCause = context.WithCancelCause
	Canceled    = context.Canceled
)
