// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package proptable implements the ordered hash mapping of property key to
// descriptor used by every heap object (§4.2). A Table is shared by
// instances of the same shape until the first write clones it
// (copy-on-write, §3 Object / §9 Design Notes), which is driven by the
// heap package via Clone; proptable itself just tracks the shared bit.
package proptable

import "github.com/probechain/pscript/value"

// Kind discriminates a property descriptor's storage (§3).
type Kind uint8

const (
	KindData Kind = iota
	KindAccessor
	KindHandler
	KindWhiteout
)

// HandlerFunc backs a handler descriptor (§3): get is invoked with
// setVal == nil, set is invoked with setVal != nil.
type HandlerFunc func(this value.Value, setVal *value.Value) (value.Value, error)

// Descriptor is a single property's metadata (§3).
type Descriptor struct {
	Kind    Kind
	Key     value.PropertyKey
	Value   value.Value // KindData
	Get     value.Value // KindAccessor; Undef if absent
	Set     value.Value // KindAccessor; Undef if absent
	Handler HandlerFunc // KindHandler

	Writable     bool
	Enumerable   bool
	Configurable bool
}

// Table is the ordered hash map of property key -> descriptor (§4.2).
// Insertion order is preserved and exposed by Iterate; a Table flagged
// shared is a prototype-pool table that readers may consult directly but
// must never mutate in place.
type Table struct {
	order []value.PropertyKey
	slot  map[value.PropertyKey]int // key -> index into order/descs
	descs map[value.PropertyKey]Descriptor
	shared bool
}

// New creates an empty, unshared property table.
func New() *Table {
	return &Table{
		slot:  make(map[value.PropertyKey]int),
		descs: make(map[value.PropertyKey]Descriptor),
	}
}

// Shared reports whether this table is a prototype-pool table that must be
// cloned before any mutation.
func (t *Table) Shared() bool { return t.shared }

// MarkShared flags the table as a prototype-pool table. Called once, when
// an object is established as a prototype whose table will be read by many
// instances.
func (t *Table) MarkShared() { t.shared = true }

// Find returns the descriptor for key and whether it is present. It does
// not walk the prototype chain — that is propquery's job (§4.3).
func (t *Table) Find(key value.PropertyKey) (Descriptor, bool) {
	i, ok := t.slot[key]
	if !ok {
		return Descriptor{}, false
	}
	return t.descs[t.order[i]], true
}

// Insert adds a new descriptor, appending it to insertion order. Insert
// panics if the key already exists; callers that may be updating an
// existing property must use Replace.
func (t *Table) Insert(d Descriptor) {
	if _, ok := t.slot[d.Key]; ok {
		panic("proptable: Insert called with an existing key; use Replace")
	}
	t.slot[d.Key] = len(t.order)
	t.order = append(t.order, d.Key)
	t.descs[d.Key] = d
}

// Replace overwrites an existing descriptor in place, preserving its
// position in insertion order. If the key is absent, Replace behaves like
// Insert.
func (t *Table) Replace(d Descriptor) {
	if _, ok := t.slot[d.Key]; !ok {
		t.Insert(d)
		return
	}
	t.descs[d.Key] = d
}

// Delete removes key, reports whether it was present. The slot index map
// of later keys is not recomputed eagerly: Iterate walks t.order and skips
// tombstoned entries, keeping Delete O(1).
func (t *Table) Delete(key value.PropertyKey) bool {
	i, ok := t.slot[key]
	if !ok {
		return false
	}
	delete(t.slot, key)
	delete(t.descs, key)
	t.order[i] = value.PropertyKey{} // tombstone; Iterate skips zero keys only if absent from descs
	return true
}

// Iterate returns descriptors in insertion order. When enumerableOnly is
// true, non-enumerable and whiteout descriptors are skipped; otherwise
// whiteouts are still skipped (they are not real properties) but
// non-enumerable data/accessor/handler descriptors are included.
func (t *Table) Iterate(enumerableOnly bool) []Descriptor {
	out := make([]Descriptor, 0, len(t.descs))
	for _, k := range t.order {
		d, ok := t.descs[k]
		if !ok {
			continue // deleted
		}
		if d.Kind == KindWhiteout {
			continue
		}
		if enumerableOnly && !d.Enumerable {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Len reports the number of live (non-deleted) entries, whiteouts
// included.
func (t *Table) Len() int { return len(t.descs) }

// Clone returns a fresh, unshared, independent copy of t. Used by heap's
// copy-on-write path: the first write to an instance whose own table
// aliases a shared prototype-pool table clones it here before mutating.
func (t *Table) Clone() *Table {
	c := New()
	c.order = append([]value.PropertyKey(nil), t.order...)
	for k, d := range t.descs {
		c.descs[k] = d
	}
	for k, i := range t.slot {
		c.slot[k] = i
	}
	return c
}
