// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import "github.com/probechain/pscript/value"

// Boxed is the heap form of a boxed primitive (new Number(1), new
// String("x"), new Boolean(false)): an ordinary object carrying one
// extra internal slot holding the wrapped primitive.
type Boxed struct {
	*Object
	Primitive value.Value
}

// NewBoxed wraps prim in an object whose __proto__ is proto.
func NewBoxed(proto *Object, prim value.Value) *Boxed {
	return &Boxed{Object: NewInstanceOf(proto, value.ObjectValue), Primitive: prim}
}

// ValueKind satisfies value.Ref.
func (b *Boxed) ValueKind() value.Tag { return value.ObjectValue }
