// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package value

import (
	"math"
	"strconv"
	"strings"
)

// Hint selects the preferred primitive kind for to_primitive (§4.1).
type Hint uint8

const (
	HintDefault Hint = iota
	HintNumber
	HintString
)

func (h Hint) name() string {
	switch h {
	case HintString:
		return "string"
	case HintNumber:
		return "number"
	default:
		return "default"
	}
}

// SymbolToPrimitiveKey is the reserved property key consulted first by
// ToPrimitive, matching the fixed [Symbol.toPrimitive] dispatch order.
const SymbolToPrimitiveKey = "@@toPrimitive"

// Runtime is the capability ToPrimitive (and the coercions built on it)
// needs from the rest of the engine: looking up and invoking a method
// value. heap/propquery/interp implement it; value never imports them,
// keeping Value the leaf of the dependency graph (§2).
type Runtime interface {
	// Method returns an own-or-inherited callable property, walking the
	// prototype chain (§4.3 property query, mode=get). ok is false if the
	// property is absent or not callable.
	Method(v Value, name string) (fn Value, ok bool)
	// Call invokes a method value with the given receiver and arguments.
	Call(method Value, this Value, args []Value) (Value, error)
	// NewTypeError constructs a catchable TypeError (§7) to be thrown by
	// the caller.
	NewTypeError(format string, args ...interface{}) error
}

// ToPrimitive implements §4.1: for object-kinded values, dispatch first to
// [Symbol.toPrimitive], then to (valueOf, toString) for hint
// default/number or (toString, valueOf) for hint string. Fails with a
// TypeError when no method yields a primitive. Non-object values are
// returned unchanged (to_primitive(v, h) == v for all primitive v, §8).
func ToPrimitive(rt Runtime, v Value, hint Hint) (Value, error) {
	if !v.IsObjectKind() {
		return v, nil
	}
	if fn, ok := rt.Method(v, SymbolToPrimitiveKey); ok {
		res, err := rt.Call(fn, v, []Value{mustShort(hint.name())})
		if err != nil {
			return Value{}, err
		}
		if res.IsObjectKind() {
			return Value{}, rt.NewTypeError("Cannot convert object to primitive value")
		}
		return res, nil
	}
	order := [2]string{"valueOf", "toString"}
	if hint == HintString {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		fn, ok := rt.Method(v, name)
		if !ok {
			continue
		}
		res, err := rt.Call(fn, v, nil)
		if err != nil {
			return Value{}, err
		}
		if !res.IsObjectKind() {
			return res, nil
		}
	}
	return Value{}, rt.NewTypeError("Cannot convert object to primitive value")
}

func mustShort(s string) Value {
	v, ok := ShortString(s)
	if !ok {
		panic("value: hint name exceeds inline string capacity")
	}
	return v
}

// ToNumber implements §4.1 to_number. Symbols fail with a TypeError;
// objects are first reduced via ToPrimitive(hint=number).
func ToNumber(rt Runtime, v Value) (float64, error) {
	switch v.Tag() {
	case Number:
		return v.AsFloat64(), nil
	case Bool:
		if v.AsBool() {
			return 1, nil
		}
		return 0, nil
	case Undefined:
		return math.NaN(), nil
	case Null:
		return 0, nil
	case Symbol:
		return 0, rt.NewTypeError("Cannot convert a Symbol value to a number")
	case String:
		s, _ := StringContent(v)
		return stringToNumber(s), nil
	default:
		prim, err := ToPrimitive(rt, v, HintNumber)
		if err != nil {
			return 0, err
		}
		return ToNumber(rt, prim)
	}
}

// stringToNumber implements ECMAScript StringToNumber for the ASCII
// numeric-literal subset: optional sign, decimal digits, a fractional
// part, exponent, 0x/0o/0b radix prefixes, "Infinity", and the empty
// string (which converts to +0). Anything else yields NaN.
func stringToNumber(s string) float64 {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0
	}
	switch {
	case strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X"):
		n, err := strconv.ParseUint(t[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	case strings.HasPrefix(t, "0o") || strings.HasPrefix(t, "0O"):
		n, err := strconv.ParseUint(t[2:], 8, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	case strings.HasPrefix(t, "0b") || strings.HasPrefix(t, "0B"):
		n, err := strconv.ParseUint(t[2:], 2, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	case t == "Infinity" || t == "+Infinity":
		return math.Inf(1)
	case t == "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToInteger implements §4.1 to_integer: NaN becomes 0, infinities are
// preserved, finite numbers truncate toward zero.
func ToInteger(rt Runtime, v Value) (float64, error) {
	n, err := ToNumber(rt, v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) {
		return 0, nil
	}
	if math.IsInf(n, 0) {
		return n, nil
	}
	return math.Trunc(n), nil
}

// ToLength implements §4.1 to_length: clamps to_integer into [0, 2^53-1].
func ToLength(rt Runtime, v Value) (float64, error) {
	n, err := ToInteger(rt, v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}
	const maxLength = 1<<53 - 1
	if n > maxLength {
		return maxLength, nil
	}
	return n, nil
}

// ToIndex implements §4.1 to_index: like to_integer but rejects negative
// results with a RangeError, built by rt's RangeError method when rt has
// one; a Runtime without that method yields its NewTypeError instead.
func ToIndex(rt Runtime, v Value) (int64, error) {
	n, err := ToInteger(rt, v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		if re, ok := rt.(interface {
			RangeError(format string, args ...interface{}) error
		}); ok {
			return 0, re.RangeError("index must be non-negative")
		}
		return 0, rt.NewTypeError("index must be non-negative")
	}
	return int64(n), nil
}

// ToInt32 / ToUint32 implement the §8 boundary rule: NaN -> 0, +/-Infinity
// -> 0, otherwise wrap into the target width.
func ToInt32(rt Runtime, v Value) (int32, error) {
	n, err := ToNumber(rt, v)
	if err != nil {
		return 0, err
	}
	return numberToInt32(n), nil
}

func ToUint32(rt Runtime, v Value) (uint32, error) {
	n, err := ToNumber(rt, v)
	if err != nil {
		return 0, err
	}
	return uint32(numberToInt32(n)), nil
}

func numberToInt32(n float64) int32 {
	if math.IsNaN(n) || math.IsInf(n, 0) || n == 0 {
		return 0
	}
	n = math.Trunc(n)
	m := math.Mod(n, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	if m >= 2147483648 {
		m -= 4294967296
	}
	return int32(m)
}

// ToBoolean implements §4.1 to_boolean: the truthiness cache invariant
// (§3) makes this a field read.
func ToBoolean(v Value) bool { return v.truthy }

// ToStringValue implements §4.1 to_string. Symbols fail with a TypeError
// except via the caller's explicit String(sym) path, which must call
// SymbolDescription (heap-level) directly rather than ToStringValue.
func ToStringValue(rt Runtime, v Value) (string, error) {
	switch v.Tag() {
	case String:
		s, _ := StringContent(v)
		return s, nil
	case Number:
		return formatNumber(v.AsFloat64()), nil
	case Bool:
		if v.AsBool() {
			return "true", nil
		}
		return "false", nil
	case Undefined:
		return "undefined", nil
	case Null:
		return "null", nil
	case Symbol:
		return "", rt.NewTypeError("Cannot convert a Symbol value to a string")
	default:
		prim, err := ToPrimitive(rt, v, HintString)
		if err != nil {
			return "", err
		}
		return ToStringValue(rt, prim)
	}
}

// formatNumber implements the §8 boundary case (-0).toString() == "0" and
// otherwise defers to Go's shortest round-trippable formatting, which
// agrees with ECMAScript Number::toString for the finite, non-exponent
// range this engine targets.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// PropertyKey identifies a property slot: either an interned string or a
// symbol's identity (§4.1 to_key keeps symbols as symbols rather than
// stringifying them, since computed property keys may be symbols).
type PropertyKey struct {
	Str string
	Sym Ref // non-nil for a symbol key; Str is ignored when set
}

// IsSymbol reports whether the key is a symbol identity rather than a
// string.
func (k PropertyKey) IsSymbol() bool { return k.Sym != nil }

// ToKey implements §4.1 to_key: symbols keep their identity; everything
// else is converted with to_string.
func ToKey(rt Runtime, v Value) (PropertyKey, error) {
	if v.Tag() == Symbol {
		return PropertyKey{Sym: v.Ref()}, nil
	}
	s, err := ToStringValue(rt, v)
	if err != nil {
		return PropertyKey{}, err
	}
	return PropertyKey{Str: s}, nil
}
