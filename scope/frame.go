// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package scope

import "github.com/probechain/pscript/value"

// CatchRecord is one entry of a frame's catch chain (§4.5 exception
// unwinding): the PC to resume at when an exception reaches this handler,
// and the finally-routing state it must restore.
type CatchRecord struct {
	HandlerPC uint32
	FinallyPC uint32 // 0 when there is no associated finally block
	StackBase int    // operand-stack depth to restore before resuming
}

// Frame is a call activation record (§4.4): a flat bank of slots for
// locals, arguments, and call temporaries, plus bookkeeping. Frames chain
// through Prev to form the VM's call stack; Slots is addressed by
// scope.Local indices and Args by scope.Arguments indices.
//
// Slots is never reallocated after Pool.Get returns, so &f.Slots[i] stays
// valid for the frame's lifetime; this is what lets Closure capture a
// live pointer into an enclosing frame's slot (see Frame.Capture) and
// have Go's garbage collector — not the arena — keep the backing array
// alive for exactly as long as some inner function still references it.
type Frame struct {
	Prev        *Frame
	Slots       []value.Value
	Args        []value.Value
	Closure     []*value.Value
	This        value.Value
	NewTarget   value.Value
	ResumePC    uint32
	Catches     []CatchRecord
	Exception   value.Value
	// ReturnDst is the slot index in Prev that this frame's return value
	// (or implicit undefined) is written to once it returns (§4.5
	// FUNCTION_CALL step "Scripted: continue dispatch at the callee's
	// first instruction" — the inverse write-back on return).
	ReturnDst Index
	// IsCtor marks a frame invoked via `new`: a non-object explicit
	// return is replaced with This (§4.5 RETURN/STOP).
	IsCtor bool
	pooled bool
}

// Capture returns a pointer into this frame's local slot i, suitable for
// storing into a nested function's closure vector (§9: closures hold
// references to outer slots, not copies).
func (f *Frame) Capture(i uint32) *value.Value {
	return &f.Slots[i]
}

// Get reads the slot addressed by idx, resolving through the closure
// vector when idx names a Closure-kind index.
func (f *Frame) Get(idx Index) value.Value {
	switch idx.Kind() {
	case Local:
		return f.Slots[idx.Offset()]
	case Arguments:
		off := idx.Offset()
		if int(off) >= len(f.Args) {
			return value.Undef()
		}
		return f.Args[off]
	case Closure:
		return *f.Closure[idx.Offset()]
	default:
		return value.Undef()
	}
}

// Set writes the slot addressed by idx. Writes to Global/Constants scopes
// are not valid Frame operations; callers route those through the heap's
// global object / the code block's constant pool instead.
func (f *Frame) Set(idx Index, v value.Value) {
	switch idx.Kind() {
	case Local:
		f.Slots[idx.Offset()] = v
	case Closure:
		*f.Closure[idx.Offset()] = v
	}
}

// Pool is a freelist of pre-sized Frame structs (§3/§4.4 spare stack),
// amortizing the allocation cost of deep, short-lived call chains. A
// Frame handed out with slotCount larger than any pooled frame's
// capacity falls back to a fresh allocation; Put recycles that backing
// array too (its capacity equals its length), so later Gets can reuse it.
type Pool struct {
	free [][]value.Value
}

// NewPool creates an empty frame pool.
func NewPool() *Pool { return &Pool{} }

// Get returns a Frame with localCount local slots and argCount argument
// slots, reusing a pooled backing array when one is large enough.
func (p *Pool) Get(localCount, argCount int) *Frame {
	f := &Frame{Args: make([]value.Value, argCount)}
	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= localCount {
			backing := p.free[i]
			p.free = append(p.free[:i], p.free[i+1:]...)
			f.Slots = backing[:localCount]
			f.pooled = true
			for j := range f.Slots {
				f.Slots[j] = value.Undef()
			}
			return f
		}
	}
	f.Slots = make([]value.Value, localCount)
	for j := range f.Slots {
		f.Slots[j] = value.Undef()
	}
	return f
}

// Put returns a frame's backing slots to the pool once the frame is
// popped and no closure retains a pointer into it. Callers only call Put
// when the generator proved (via its capture analysis) that no nested
// function escaped with a Capture() pointer into this frame; otherwise
// the frame is simply dropped and Go's GC reclaims it once the last
// closure releases its pointer.
func (p *Pool) Put(f *Frame) {
	if f.pooled || cap(f.Slots) == len(f.Slots) {
		p.free = append(p.free, f.Slots[:0])
	}
}
