// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"math"
	"time"

	"github.com/probechain/pscript/value"
)

// Date is the heap form of a Date value: a single float64 millisecond
// timestamp since the epoch, NaN for Invalid Date.
type Date struct {
	*Object
	Millis float64
}

// NewDate creates a Date holding millis (may be math.NaN()).
func NewDate(proto *Object, millis float64) *Date {
	return &Date{Object: NewInstanceOf(proto, value.Date), Millis: millis}
}

// NewDateNow creates a Date set to t, converted to epoch milliseconds.
func NewDateNow(proto *Object, t time.Time) *Date {
	return NewDate(proto, float64(t.UnixNano())/1e6)
}

// ValueKind satisfies value.Ref.
func (d *Date) ValueKind() value.Tag { return value.Date }

// IsValid reports whether the stored timestamp is finite.
func (d *Date) IsValid() bool { return !math.IsNaN(d.Millis) && !math.IsInf(d.Millis, 0) }

// Time returns the Date as a time.Time in UTC. Behavior is undefined
// (matches JS producing "Invalid Date" downstream) when !IsValid().
func (d *Date) Time() time.Time {
	return time.Unix(0, int64(d.Millis*1e6)).UTC()
}

// SetTime overwrites the stored timestamp from a time.Time.
func (d *Date) SetTime(t time.Time) {
	d.Millis = float64(t.UnixNano()) / 1e6
}
