// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// Flags holds the per-object bit-flags of §3: shared, extensible,
// error-data, fast-array.
type Flags uint8

const (
	FlagShared    Flags = 1 << iota // this object's table is a prototype-pool COW source
	FlagExtensible
	FlagErrorData
	FlagFastArray
)

// Object is the common shape backing every object-kinded value (§3): a
// per-instance property table, a __proto__ pointer, a kind tag that
// distinguishes plain object / array / function / etc., and bit-flags.
//
// The "shared" property-table mechanism (§9 Design Notes) is modeled by
// letting Object.own alias the *proptable.Table of the object it was
// shaped from (its prototype, or a template object) until the first
// mutation: MutableOwn clones a shared table into a private one, matching
// "the first mutation clones its table into the per-instance table."
type Object struct {
	proto *Object
	own   *proptable.Table
	kind  value.Tag
	flags Flags
}

// NewObject creates a plain object with its own empty property table,
// extensible, prototype proto (nil for the root of a chain).
func NewObject(proto *Object) *Object {
	return &Object{
		proto: proto,
		own:   proptable.New(),
		kind:  value.Object,
		flags: FlagExtensible,
	}
}

// NewPrototypeObject creates an object intended to be shared as a
// prototype: its table is marked shared so that instances created against
// it can initially alias the table without copying (§9 copy-on-write).
func NewPrototypeObject(proto *Object) *Object {
	o := NewObject(proto)
	o.own.MarkShared()
	return o
}

// NewInstanceOf creates a new, empty-table instance whose __proto__ is
// proto. Per the source's COW scheme an instance does not alias the
// prototype's table (that would conflate "properties inherited via chain
// walk" with "properties aliased for COW"); instead COW applies when an
// object is explicitly built by cloning a shaped template — see
// CloneShape. Most call sites just want NewInstanceOf.
func NewInstanceOf(proto *Object, kind value.Tag) *Object {
	return &Object{proto: proto, own: proptable.New(), kind: kind, flags: FlagExtensible}
}

// CloneShape creates a new object that starts out aliasing template's
// property table (shared, so template must already be marked shared via
// NewPrototypeObject or a prior CloneShape). The first write to the new
// object clones the table privately.
func CloneShape(template *Object) *Object {
	if !template.own.Shared() {
		template.own.MarkShared()
	}
	return &Object{proto: template.proto, own: template.own, kind: template.kind, flags: template.flags}
}

// ValueKind satisfies value.Ref. Plain Object always reports value.Object;
// Array/Function/etc. embed *Object and override via their own ValueKind.
func (o *Object) ValueKind() value.Tag { return o.kind }

// Proto returns the object's __proto__, or nil at the root.
func (o *Object) Proto() *Object { return o.proto }

// SetProto rewrites __proto__. The caller (propquery / the generator's
// PROTO_INIT lowering) is responsible for the single-link acyclicity check
// described in §4.3; SetProto itself only refuses a direct self-reference.
func (o *Object) SetProto(p *Object) error {
	if p == o {
		return errCycle
	}
	o.proto = p
	return nil
}

// Extensible reports the extensible flag (§3).
func (o *Object) Extensible() bool { return o.flags&FlagExtensible != 0 }

// SetExtensible clears or sets the extensible flag (Object.preventExtensions).
func (o *Object) SetExtensible(b bool) {
	if b {
		o.flags |= FlagExtensible
	} else {
		o.flags &^= FlagExtensible
	}
}

// IsErrorData reports whether this object backs a constructed Error value.
func (o *Object) IsErrorData() bool { return o.flags&FlagErrorData != 0 }

// MarkErrorData flags the object as Error-shaped (message/stack/name).
func (o *Object) MarkErrorData() { o.flags |= FlagErrorData }

// OwnTable returns the table for read access. Callers must not mutate the
// returned table directly if Shared() is true — use MutableOwn.
func (o *Object) OwnTable() *proptable.Table { return o.own }

// MutableOwn returns a table safe to mutate, cloning a shared table into a
// private one on first write (§3, §9 copy-on-write).
func (o *Object) MutableOwn() *proptable.Table {
	if o.own.Shared() {
		o.own = o.own.Clone()
	}
	return o.own
}

var errCycle = protoCycleError{}

type protoCycleError struct{}

func (protoCycleError) Error() string { return "heap: __proto__ assignment would create a cycle" }
