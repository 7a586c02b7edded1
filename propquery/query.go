// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package propquery implements the prototype-chain property query of
// §4.3: given (object, key, mode) it walks object -> __proto__ -> ...,
// consulting each object's own table then its shared (prototype-pool)
// table, and classifies the result into one of the six outcomes the
// PROPERTY_* opcodes branch on.
package propquery

import (
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// Mode names the operation the caller is performing (§4.3).
type Mode uint8

const (
	Get Mode = iota
	Set
	Delete
	In
)

// Outcome is one of the six classifications of §4.3.
type Outcome uint8

const (
	Found Outcome = iota
	Declined
	PrimitiveValue
	StringValue
	ArrayValue
	ExternalValue
)

// Result is the classification Query returns; callers (Get/Set/Delete/In
// below, or the interpreter's PROPERTY_* handlers directly) branch on
// Outcome.
type Result struct {
	Outcome    Outcome
	Descriptor proptable.Descriptor
	Holder     Holder
	Own        bool
	Shared     bool
	Index      int // valid for StringValue/ArrayValue
	External   *heap.External
}

// maxChainDepth caps prototype-chain walks; exceeding it returns
// ErrChainTooDeep (which the interpreter raises as a RangeError) rather
// than looping forever on a cycle that slipped past SetProto's
// single-link check (§4.3 Cycle safety).
const maxChainDepth = 2000

// ErrChainTooDeep is returned when a walk exceeds maxChainDepth.
var ErrChainTooDeep = chainDepthError{}

type chainDepthError struct{}

func (chainDepthError) Error() string { return "propquery: prototype chain exceeds maximum depth" }

// Context supplies the well-known prototypes used to resolve property
// access on primitive receivers (a bare string/number/boolean/symbol
// still exposes its wrapper's prototype methods, e.g. "x".length).
type Context struct {
	StringProto  *heap.Object
	NumberProto  *heap.Object
	BooleanProto *heap.Object
	SymbolProto  *heap.Object
}

// Query classifies (base, key, mode) per §4.3.
func Query(ctx Context, base value.Value, key value.PropertyKey, mode Mode) (Result, error) {
	if base.Tag() == value.String && !key.IsSymbol() {
		if idx, ok := intIndex(key.Str); ok {
			return Result{Outcome: StringValue, Index: idx}, nil
		}
		return walk(ctx.StringProto, key, mode, maxChainDepth)
	}

	if !base.IsObjectKind() {
		switch base.Tag() {
		case value.Number:
			return walk(ctx.NumberProto, key, mode, maxChainDepth)
		case value.Bool:
			return walk(ctx.BooleanProto, key, mode, maxChainDepth)
		case value.Symbol:
			return walk(ctx.SymbolProto, key, mode, maxChainDepth)
		default:
			// undefined/null: property access is a TypeError at the
			// caller (interp), which never reaches Query for these.
			return Result{Outcome: PrimitiveValue}, nil
		}
	}

	ref := base.Ref()
	if ext, ok := ref.(*heap.External); ok {
		return Result{Outcome: ExternalValue, External: ext}, nil
	}
	if arr, ok := ref.(*heap.Array); ok && arr.IsFast() && !key.IsSymbol() {
		if idx, ok := intIndex(key.Str); ok {
			return Result{Outcome: ArrayValue, Index: idx}, nil
		}
		return walkObject(arr.Object, key, mode, maxChainDepth)
	}
	obj, ok := ref.(Holder)
	if !ok {
		return Result{Outcome: Declined}, nil
	}
	return walkObjectish(obj, key, mode, maxChainDepth)
}

func walk(start *heap.Object, key value.PropertyKey, mode Mode, depth int) (Result, error) {
	if start == nil {
		return Result{Outcome: Declined}, nil
	}
	return walkObject(start, key, mode, depth)
}

func walkObject(start *heap.Object, key value.PropertyKey, mode Mode, depth int) (Result, error) {
	return walkObjectish(start, key, mode, depth)
}

// Holder is satisfied by *heap.Object and every type that embeds it
// (Array, Function, RegExp, Date, ...), letting Query report the exact
// object a property was found on without forcing every caller down to
// the common *heap.Object base.
type Holder interface {
	Proto() *heap.Object
	OwnTable() *proptable.Table
	MutableOwn() *proptable.Table
}

func walkObjectish(start Holder, key value.PropertyKey, mode Mode, depth int) (Result, error) {
	own := true
	var cur Holder = start
	for i := 0; i < depth; i++ {
		if cur == nil {
			return Result{Outcome: Declined}, nil
		}
		table := cur.OwnTable()
		if d, ok := table.Find(key); ok {
			if d.Kind == proptable.KindWhiteout {
				if mode == In {
					return Result{Outcome: Declined}, nil
				}
				// A whiteout only shadows the prototype chain; treat as
				// absent for get/set/delete purposes beyond this point.
				return Result{Outcome: Declined, Holder: cur, Own: own}, nil
			}
			return Result{
				Outcome:    Found,
				Descriptor: d,
				Holder:     cur,
				Own:        own,
				Shared:     table.Shared() && !own,
			}, nil
		}
		own = false
		proto := cur.Proto()
		if proto == nil {
			return Result{Outcome: Declined}, nil
		}
		cur = proto
	}
	return Result{}, ErrChainTooDeep
}

// intIndex reports whether s is a canonical non-negative integer index
// string (no leading zeros except "0" itself, no sign), the form fast
// arrays and strings bypass the property table for.
func intIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if s == "0" {
		return 0, true
	}
	if s[0] == '0' {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<31 {
			return 0, false
		}
	}
	return n, true
}
