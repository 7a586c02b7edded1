// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"github.com/google/uuid"

	"github.com/probechain/pscript/value"
)

// Symbol is an interned identity with an optional description (§3).
// Equality is by pointer identity (two Values referencing the same
// *Symbol are ===); Symbol.for(key) registry lookups are handled by
// SymbolTable.For, everything else (Symbol(desc)) mints a fresh identity
// via SymbolTable.New.
type Symbol struct {
	id          uuid.UUID
	description string
	hasDesc     bool
}

// ValueKind satisfies value.Ref.
func (s *Symbol) ValueKind() value.Tag { return value.Symbol }

// Description returns the symbol's optional description.
func (s *Symbol) Description() (string, bool) { return s.description, s.hasDesc }

// ID returns a stable identifier useful for debug/disassembly output.
func (s *Symbol) ID() uuid.UUID { return s.id }

// SymbolTable backs Symbol.for/Symbol.keyFor: the global symbol registry
// (§4.1 mentions symbol identity comparisons; the registry itself is an
// external-collaborator-visible built-in, implemented here at the heap
// level since it is pure bookkeeping, no script-callback required).
type SymbolTable struct {
	registry map[string]*Symbol
}

// NewSymbolTable creates an empty global symbol registry.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{registry: make(map[string]*Symbol)}
}

// New mints a fresh, non-registered symbol with the given description.
func (t *SymbolTable) New(description string, hasDesc bool) *Symbol {
	return &Symbol{id: uuid.New(), description: description, hasDesc: hasDesc}
}

// For returns the registered symbol for key, creating one on first use
// (Symbol.for semantics: repeated calls with the same key return the same
// identity).
func (t *SymbolTable) For(key string) *Symbol {
	if s, ok := t.registry[key]; ok {
		return s
	}
	s := &Symbol{id: uuid.New(), description: key, hasDesc: true}
	t.registry[key] = s
	return s
}

// KeyFor returns the registry key for a symbol previously returned by For,
// or ok=false if sym was not minted through the registry.
func (t *SymbolTable) KeyFor(sym *Symbol) (key string, ok bool) {
	for k, s := range t.registry {
		if s == sym {
			return k, true
		}
	}
	return "", false
}
