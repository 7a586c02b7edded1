// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

// Heap aggregates the per-VM allocator and registries: the arena, the
// string/symbol intern tables, the well-known prototype objects, and the
// external-type registry. One Heap backs exactly one VM instance; VMs
// share no mutable state (§5 Scheduling model).
type Heap struct {
	Arena    *Arena
	Strings  *StringTable
	Symbols  *SymbolTable
	Externals *ExternalRegistry

	ObjectProto   *Object
	FunctionProto *Object
	ArrayProto    *Object
	StringProto   *Object
	NumberProto   *Object
	BooleanProto  *Object
	RegExpProto   *Object
	DateProto     *Object
	ErrorProto    *Object
	PromiseProto  *Object
	SymbolProto   *Object
	ArrayBufferProto *Object
	TypedArrayProto  *Object
	DataViewProto    *Object

	Global *Object
}

// Config sizes a Heap's allocator-backed resources.
type Config struct {
	ArenaBytes   uint64
	StringIntern int
}

// DefaultConfig returns conservative sizing suitable for a short-lived
// request-scoped VM (§1 "predictable memory use").
func DefaultConfig() Config {
	return Config{ArenaBytes: DefaultArenaBytes, StringIntern: 4096}
}

// New builds a Heap with the root prototype chain wired the way the
// source bootstraps Object.prototype as the sole object with a nil
// __proto__, every other built-in prototype chaining up to it.
func New(cfg Config) *Heap {
	if cfg.ArenaBytes <= 0 {
		cfg.ArenaBytes = DefaultArenaBytes
	}
	if cfg.StringIntern <= 0 {
		cfg.StringIntern = 4096
	}
	h := &Heap{
		Arena:     NewArena(cfg.ArenaBytes),
		Strings:   NewStringTable(cfg.StringIntern),
		Symbols:   NewSymbolTable(),
		Externals: NewExternalRegistry(),
	}
	h.ObjectProto = NewPrototypeObject(nil)
	h.FunctionProto = NewPrototypeObject(h.ObjectProto)
	h.ArrayProto = NewPrototypeObject(h.ObjectProto)
	h.StringProto = NewPrototypeObject(h.ObjectProto)
	h.NumberProto = NewPrototypeObject(h.ObjectProto)
	h.BooleanProto = NewPrototypeObject(h.ObjectProto)
	h.RegExpProto = NewPrototypeObject(h.ObjectProto)
	h.DateProto = NewPrototypeObject(h.ObjectProto)
	h.ErrorProto = NewPrototypeObject(h.ObjectProto)
	h.PromiseProto = NewPrototypeObject(h.ObjectProto)
	h.SymbolProto = NewPrototypeObject(h.ObjectProto)
	h.ArrayBufferProto = NewPrototypeObject(h.ObjectProto)
	h.TypedArrayProto = NewPrototypeObject(h.ObjectProto)
	h.DataViewProto = NewPrototypeObject(h.ObjectProto)
	h.Global = NewObject(h.ObjectProto)
	installRegExpMethods(h)
	return h
}
