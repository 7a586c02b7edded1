// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package value implements the tagged value representation shared by every
// other engine package: type predicates and the primitive-conversion
// algebra (to_primitive, to_number, to_string, strict/loose equality).
//
// Value is the leaf of the dependency graph: it never imports heap,
// proptable, propquery or interp. Anything object-kinded is held behind the
// Ref interface, and any coercion that may call back into user script
// (valueOf/toString/[Symbol.toPrimitive]) goes through the Runtime
// interface, which heap/propquery/interp implement. This mirrors the
// source engine's split between a POD value header and the interpreter
// that walks it, without forcing Go's interface-based object model into a
// single 16-byte struct.
package value

import "math"

// Tag discriminates the kind of a Value. Order matches spec order; object-
// kinded tags are grouped at the end so IsObjectKind is a single range
// check.
type Tag uint8

const (
	Undefined Tag = iota
	Null
	Bool
	Number
	Symbol
	String
	Data     // opaque tagged payload used for internal iterator state
	External // host-owned object exposed through a registered prototype

	firstObjectKind
	Object = firstObjectKind
	Array
	Function
	Regexp
	Date
	ArrayBuffer
	TypedArray
	DataView
	Promise
	ObjectValue // boxed primitive (new Number(1), new String("x"), ...)
	lastObjectKind
)

func (t Tag) String() string {
	switch t {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case Symbol:
		return "symbol"
	case String:
		return "string"
	case Data:
		return "data"
	case External:
		return "external"
	case Object:
		return "object"
	case Array:
		return "array"
	case Function:
		return "function"
	case Regexp:
		return "regexp"
	case Date:
		return "date"
	case ArrayBuffer:
		return "arraybuffer"
	case TypedArray:
		return "typedarray"
	case DataView:
		return "dataview"
	case Promise:
		return "promise"
	case ObjectValue:
		return "object"
	default:
		return "unknown"
	}
}

// shortStringCap is the inline capacity of a Value's short-string form (§3
// String invariant: length <= 14 bytes lives in the Value itself).
const shortStringCap = 14

// Ref is implemented by every heap-resident payload a Value can carry: the
// long form of a string, an interned symbol, a host external, and every
// object-kinded value. value never type-switches on concrete Ref
// implementations; heap, propquery and interp do, via type assertions
// against the interfaces they define downstream.
type Ref interface {
	// ValueKind reports the Tag the owning Value was constructed with. It
	// lets generic code (e.g. equality, GC-free arena bookkeeping) sanity
	// check a Ref against the Value.tag it is stored in without an import
	// cycle back to heap.
	ValueKind() Tag
}

// Value is the engine's tagged value. Copying a Value copies the tag and
// payload only: for long strings and every heap-resident Ref, the payload
// is a pointer-shaped interface so copies share the referent, matching the
// source's "strings bump a retain counter; objects share" lifecycle rule.
type Value struct {
	tag    Tag
	truthy bool // ToBoolean(value), cached at construction time

	num float64 // Number payload

	shortLen   uint8 // byte length of the inline string; 0 when ref != nil
	shortChars uint8 // cached Unicode codepoint count for the inline string
	short      [shortStringCap]byte

	ref Ref // long string / symbol / external / object-kinded payload
}

// Tag reports the value's discriminant.
func (v Value) Tag() Tag { return v.tag }

// Ref returns the heap payload for non-inline values, or nil for
// undefined/null/boolean/number and short inline strings.
func (v Value) Ref() Ref { return v.ref }

// IsObjectKind reports whether the value is one of the object-kinded
// variants (object, array, function, regexp, date, array buffer, typed
// array, data view, promise, boxed primitive).
func (v Value) IsObjectKind() bool {
	return v.tag > firstObjectKind-1 && v.tag < lastObjectKind
}

// IsNullish reports whether the value is undefined or null.
func (v Value) IsNullish() bool { return v.tag == Undefined || v.tag == Null }

// Undef is the canonical undefined value.
func Undef() Value { return Value{tag: Undefined, truthy: false} }

// Null1 is the canonical null value (named to avoid shadowing the Null tag).
func Null1() Value { return Value{tag: Null, truthy: false} }

// Bool1 wraps a boolean.
func Bool1(b bool) Value { return Value{tag: Bool, truthy: b, num: b2f(b)} }

// Number1 wraps a float64. The truthiness cache follows ToBoolean: false
// for NaN and +/-0, true otherwise.
func Number1(f float64) Value {
	truthy := f != 0 && !math.IsNaN(f)
	return Value{tag: Number, truthy: truthy, num: f}
}

// ShortString attempts to build an inline string Value. ok is false when s
// is longer than the inline capacity in bytes; the caller (heap) must then
// allocate a long-form string and wrap it with FromRef.
func ShortString(s string) (v Value, ok bool) {
	if len(s) > shortStringCap {
		return Value{}, false
	}
	var val Value
	val.tag = String
	val.truthy = len(s) > 0
	val.shortLen = uint8(len(s))
	copy(val.short[:], s)
	val.shortChars = uint8(countCodepoints(s))
	return val, true
}

// FromRef wraps a heap-resident payload (long string, symbol, external, or
// any object-kinded value) in a Value. truthy is supplied by the caller
// because only heap knows the precise ToBoolean rule for its own kinds
// (e.g. a long string's truthiness depends on its length).
func FromRef(tag Tag, ref Ref, truthy bool) Value {
	return Value{tag: tag, ref: ref, truthy: truthy}
}

// LongString is implemented by heap's long-form string Ref so the value
// package can read string content without importing heap (§3 String: a
// heap form with pointer, byte size, character count, retain counter).
type LongString interface {
	Ref
	StringContent() string
	CodepointCount() int
}

// StringContent returns the full string content regardless of short/long
// representation. ok is false if v is not a string-tagged Value.
func StringContent(v Value) (string, bool) {
	if v.tag != String {
		return "", false
	}
	if v.ref == nil {
		return string(v.short[:v.shortLen]), true
	}
	ls, ok := v.ref.(LongString)
	if !ok {
		return "", false
	}
	return ls.StringContent(), true
}

// CodepointLen returns the Unicode codepoint count of a string Value.
func CodepointLen(v Value) (int, bool) {
	if v.tag != String {
		return 0, false
	}
	if v.ref == nil {
		return int(v.shortChars), true
	}
	ls, ok := v.ref.(LongString)
	if !ok {
		return 0, false
	}
	return ls.CodepointCount(), true
}

// AsFloat64 returns the Number payload. Callers must check Tag() == Number.
func (v Value) AsFloat64() float64 { return v.num }

// AsBool returns the Bool payload. Callers must check Tag() == Bool.
func (v Value) AsBool() bool { return v.num != 0 }

// ShortStringBytes returns the inline bytes and true when v is a short
// string; ok is false for long-form strings (use Ref() and a heap type
// assertion instead).
func (v Value) ShortStringBytes() (s []byte, ok bool) {
	if v.tag != String || v.ref != nil {
		return nil, false
	}
	return v.short[:v.shortLen], true
}

// ShortStringLen returns the cached byte and codepoint length of an inline
// string. ok is false for long-form strings.
func (v Value) ShortStringLen() (bytes, chars int, ok bool) {
	if v.tag != String || v.ref != nil {
		return 0, 0, false
	}
	return int(v.shortLen), int(v.shortChars), true
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func countCodepoints(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
