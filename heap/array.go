// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import "github.com/probechain/pscript/value"

// Array is a contiguous start-pointer + length + capacity array (§3),
// with a spare region before the live window for cheap unshift. While
// FlagFastArray is set, PROPERTY_GET/SET on an integer index in
// propquery hit Get/Set directly, bypassing the property table; once a
// non-index property is set or a sparse hole is written, the caller
// clears FlagFastArray and property access falls back through the
// general (*Object).OwnTable path (§4.2 contract).
type Array struct {
	*Object
	backing []value.Value
	offset  int // index into backing where the live window starts (spare = offset)
	length  int
}

// NewArray creates a fast array of the given initial length, all slots
// holding undefined.
func NewArray(proto *Object, length int) *Array {
	a := &Array{
		Object:  NewInstanceOf(proto, value.Array),
		backing: make([]value.Value, length),
		length:  length,
	}
	a.flags |= FlagFastArray
	for i := range a.backing {
		a.backing[i] = value.Undef()
	}
	return a
}

// ValueKind overrides Object's to report value.Array.
func (a *Array) ValueKind() value.Tag { return value.Array }

// Len returns the current length (§3 invariant: writing index i>=L sets
// length to i+1; writing i<L preserves length).
func (a *Array) Len() int { return a.length }

// IsFast reports whether indexed access may bypass the property table.
func (a *Array) IsFast() bool { return a.flags&FlagFastArray != 0 }

// FallBack clears fast-array status; subsequent indexed access must go
// through the general property-query path.
func (a *Array) FallBack() { a.flags &^= FlagFastArray }

// Get returns element i, or undefined if out of range (§8: reading
// s[i] where i >= length returns undefined, not a throw — the same rule
// applies to arrays read through the fast path).
func (a *Array) Get(i int) value.Value {
	if i < 0 || i >= a.length {
		return value.Undef()
	}
	return a.backing[a.offset+i]
}

// Set writes element i. Writing within the current length preserves it;
// writing at or beyond the current length grows the array to i+1,
// zero-filling (undefined) any newly exposed slots.
func (a *Array) Set(i int, v value.Value) {
	if i < 0 {
		return
	}
	if i >= a.length {
		a.growTo(i + 1)
	}
	a.backing[a.offset+i] = v
}

// SetLength implements Array.length = n: truncates (dropping elements) or
// zero-pads to grow, per the fast-array invariant.
func (a *Array) SetLength(n int) {
	if n < 0 {
		n = 0
	}
	if n <= a.length {
		a.length = n
		return
	}
	a.growTo(n)
}

func (a *Array) growTo(n int) {
	needed := a.offset + n
	if needed > len(a.backing) {
		grown := make([]value.Value, needed, needed*2+1)
		copy(grown, a.backing)
		for i := len(a.backing); i < len(grown); i++ {
			grown[i] = value.Undef()
		}
		a.backing = grown
	}
	for i := a.offset + a.length; i < a.offset+n; i++ {
		a.backing[i] = value.Undef()
	}
	a.length = n
}

// Push appends v, growing the length by one.
func (a *Array) Push(v value.Value) int {
	a.Set(a.length, v)
	return a.length
}

// Pop removes and returns the last element, or undefined if the array is
// empty (§8: [].pop() returns undefined and leaves length == 0).
func (a *Array) Pop() value.Value {
	if a.length == 0 {
		return value.Undef()
	}
	v := a.backing[a.offset+a.length-1]
	a.length--
	return v
}

// Unshift prepends v using the spare region when available, falling back
// to a full reslice otherwise.
func (a *Array) Unshift(v value.Value) int {
	if a.offset > 0 {
		a.offset--
		a.backing[a.offset] = v
		a.length++
		return a.length
	}
	grown := make([]value.Value, a.length+1, (a.length+1)*2+1)
	grown[0] = v
	copy(grown[1:], a.backing[a.offset:a.offset+a.length])
	a.backing = grown
	a.offset = 0
	a.length++
	return a.length
}

// Shift removes and returns the first element by advancing offset into
// the spare region (O(1), no reslice).
func (a *Array) Shift() value.Value {
	if a.length == 0 {
		return value.Undef()
	}
	v := a.backing[a.offset]
	a.offset++
	a.length--
	return v
}
