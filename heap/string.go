// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"unicode/utf16"

	lru "github.com/hashicorp/golang-lru"

	"github.com/probechain/pscript/buffer"
	"github.com/probechain/pscript/value"
)

// LongStr is the heap form of a string (§3): used once byte length exceeds
// the inline 14-byte capacity of value.Value. It is immutable after
// creation and carries a retain counter the way the source bumps a
// reference count on copy instead of deep-copying bytes.
type LongStr struct {
	bytes   string
	chars   int // cached Unicode codepoint count
	retain  int32
}

// ValueKind satisfies value.Ref.
func (s *LongStr) ValueKind() value.Tag { return value.String }

// StringContent satisfies value.LongString.
func (s *LongStr) StringContent() string { return s.bytes }

// CodepointCount satisfies value.LongString.
func (s *LongStr) CodepointCount() int { return s.chars }

// Retain bumps the reference counter; called whenever a Value carrying
// this LongStr is copied into a new slot (§3 Lifecycle).
func (s *LongStr) Retain() { s.retain++ }

// Release decrements the reference counter. The string itself is not
// freed (no per-value GC, §3): Release exists so diagnostics/tests can
// assert balanced retain/release pairs.
func (s *LongStr) Release() { s.retain-- }

// UTF16Units returns the UTF-16 code units of a string Value, computed on
// demand via buffer.ToUTF16 (golang.org/x/text/encoding/unicode) rather
// than stored redundantly alongside the UTF-8 bytes. charCodeAt/
// codePointAt/String.length are all defined against this view (§3 String
// invariant: a string exposes both byte length and Unicode codepoint
// length).
func UTF16Units(s string) []uint16 {
	b, err := buffer.ToUTF16(s)
	if err != nil {
		// malformed UTF-8 input: fall back to stdlib's lossy rune-wise
		// encoder rather than dropping the string's length entirely.
		return utf16.Encode([]rune(s))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return units
}

// StringTable interns long strings by content, the way the source retains
// and shares identical string allocations. Backed by an LRU so pathological
// workloads that mint many unique long strings cannot grow the intern
// table without bound.
type StringTable struct {
	cache *lru.Cache
}

// NewStringTable creates an intern table holding up to capacity distinct
// long strings.
func NewStringTable(capacity int) *StringTable {
	c, err := lru.New(capacity)
	if err != nil {
		panic(err) // capacity <= 0, a programmer error at VM construction
	}
	return &StringTable{cache: c}
}

// Intern returns the canonical *LongStr for bytes, allocating one on first
// use. Strings under the inline 14-byte capacity should use
// value.ShortString instead; Intern is for the long-form heap path.
func (t *StringTable) Intern(s string) *LongStr {
	if v, ok := t.cache.Get(s); ok {
		ls := v.(*LongStr)
		ls.Retain()
		return ls
	}
	ls := &LongStr{bytes: s, chars: countRunes(s)}
	ls.Retain()
	t.cache.Add(s, ls)
	return ls
}

func countRunes(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// NewString builds a value.Value for s, choosing the inline short form
// when it fits and interning a LongStr otherwise.
func (t *StringTable) NewString(s string) value.Value {
	if v, ok := value.ShortString(s); ok {
		return v
	}
	ls := t.Intern(s)
	return value.FromRef(value.String, ls, len(s) > 0)
}
