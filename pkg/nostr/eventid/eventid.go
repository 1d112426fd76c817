package eventid

import (
	"encoding/hex"
	"fmt"
)

// T is the SHA256 hash in hexadecimal of the canonical form of an event.
// Identity of an event is this value alone; two events with the same T are
// the same event no matter what the rest of their fields say.
type T string

func (ei T) String() string {
	return string(ei)
}

func (ei T) Bytes() (b []byte) {
	b, _ = hex.DecodeString(string(ei))
	return
}

// New inspects a string and ensures it is a valid, 64 character long
// hexadecimal string, returns the string coerced to the type.
func New(s string) (ei T, err error) {
	ei = T(s)
	if err = ei.Validate(); err != nil {
		// clear the result since it failed.
		ei = ei[:0]
		return
	}
	return
}

// Validate checks the T string is valid hex and 64 characters long.
func (ei T) Validate() (err error) {
	if _, err = hex.DecodeString(string(ei)); err != nil {
		return
	}
	if len(ei) != 64 {
		return fmt.Errorf("event ID invalid length: got %d expect 64", len(ei))
	}
	return
}
