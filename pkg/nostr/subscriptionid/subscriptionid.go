package subscriptionid

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/frand"
)

// T is the id a subscription is referred to by in REQ/EVENT/EOSE/CLOSE
// envelopes. Relays cap these at 64 characters.
type T string

func (si T) String() string { return string(si) }

// IsValid enforces the protocol length limit and non-emptiness.
func (si T) IsValid() bool { return len(si) > 0 && len(si) <= 64 }

// NewLabel produces a short random label so concurrently running sessions
// sharing one relay link can never collide on subscription ids.
func NewLabel() string {
	return hex.EncodeToString(frand.Bytes(4))
}

// New composes a subscription id from a label and a per-link serial.
func New(label string, counter int) T {
	return T(fmt.Sprintf("%s:%d", label, counter))
}
