package timestamp

import (
	"fmt"
	"time"
)

// T is a convenience type for UNIX 64 bit timestamps of 1 second precision.
type T int64

// Tp is a synonym that makes it possible to use this value with the extra
// feature of the property of set/unset by the Ptr function which takes the
// address.
type Tp T

// Now returns the current UNIX timestamp of the current second.
func Now() T { return T(time.Now().Unix()) }

// I64 returns the timestamp as int64.
func (t T) I64() int64 { return int64(t) }

// Int returns the timestamp as an int.
func (t T) Int() int { return int(t) }

// Time converts a timestamp.T value into a standard time.Time.
func (t T) Time() time.Time { return time.Unix(int64(t), 0) }

// FromTime returns a T from a time.Time.
func FromTime(t time.Time) T { return T(t.Unix()) }

// FromUnix converts from a standard int64 unix timestamp.
func FromUnix(t int64) T { return T(t) }

// Ptr returns the pointer so values can register as nil and omitted.
func (t T) Ptr() *Tp {
	tp := Tp(t)
	return &tp
}

func (tp *Tp) T() T {
	if tp == nil {
		return 0
	}
	return T(*tp)
}

func (tp *Tp) String() string {
	return fmt.Sprint(tp.T())
}

func (tp *Tp) Clone() (tc *Tp) {
	if tp == nil {
		return
	}
	cp := *tp
	return &cp
}
