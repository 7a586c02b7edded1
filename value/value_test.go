// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortStringRoundTrip(t *testing.T) {
	v, ok := ShortString("hello")
	require.True(t, ok)
	s, ok := StringContent(v)
	require.True(t, ok)
	require.Equal(t, "hello", s)
	n, ok := CodepointLen(v)
	require.True(t, ok)
	require.Equal(t, 5, n)
}

func TestShortStringRejectsOverLongInput(t *testing.T) {
	_, ok := ShortString("this string is definitely longer than fourteen bytes")
	require.False(t, ok)
}

func TestNumber1TruthinessMatchesSpec(t *testing.T) {
	require.False(t, ToBoolean(Number1(0)))
	require.False(t, ToBoolean(Number1(math.NaN())))
	require.True(t, ToBoolean(Number1(1)))
	require.True(t, ToBoolean(Number1(-1)))
}

func TestIsObjectKind(t *testing.T) {
	require.True(t, FromRef(Object, nil, true).IsObjectKind())
	require.True(t, FromRef(Promise, nil, true).IsObjectKind())
	require.False(t, Number1(1).IsObjectKind())
	require.False(t, Undef().IsObjectKind())
}

func TestIsNullish(t *testing.T) {
	require.True(t, Undef().IsNullish())
	require.True(t, Null1().IsNullish())
	require.False(t, Bool1(false).IsNullish())
}

type fakeRuntime struct {
	methods map[string]Value
	call    func(fn, this Value, args []Value) (Value, error)
}

func (r *fakeRuntime) Method(v Value, name string) (Value, bool) {
	fn, ok := r.methods[name]
	return fn, ok
}

func (r *fakeRuntime) Call(fn, this Value, args []Value) (Value, error) {
	return r.call(fn, this, args)
}

func (r *fakeRuntime) NewTypeError(format string, args ...interface{}) error {
	return &typeError{}
}

type typeError struct{}

func (*typeError) Error() string { return "TypeError" }

func TestToNumberPrimitives(t *testing.T) {
	rt := &fakeRuntime{}
	n, err := ToNumber(rt, Bool1(true))
	require.NoError(t, err)
	require.Equal(t, float64(1), n)

	n, err = ToNumber(rt, Null1())
	require.NoError(t, err)
	require.Equal(t, float64(0), n)

	n, err = ToNumber(rt, Undef())
	require.NoError(t, err)
	require.True(t, math.IsNaN(n))

	s, _ := ShortString("  42  ")
	n, err = ToNumber(rt, s)
	require.NoError(t, err)
	require.Equal(t, float64(42), n)

	hex, _ := ShortString("0xFF")
	n, err = ToNumber(rt, hex)
	require.NoError(t, err)
	require.Equal(t, float64(255), n)
}

func TestToNumberSymbolErrors(t *testing.T) {
	rt := &fakeRuntime{}
	sym := FromRef(Symbol, nil, true)
	_, err := ToNumber(rt, sym)
	require.Error(t, err)
}

func TestToPrimitiveCallsValueOf(t *testing.T) {
	valueOfFn := FromRef(Function, nil, true)
	rt := &fakeRuntime{
		methods: map[string]Value{"valueOf": valueOfFn},
		call: func(fn, this Value, args []Value) (Value, error) {
			return Number1(7), nil
		},
	}
	obj := FromRef(Object, nil, true)
	prim, err := ToPrimitive(rt, obj, HintNumber)
	require.NoError(t, err)
	require.Equal(t, float64(7), prim.AsFloat64())
}

func TestToPrimitivePassthroughForNonObjects(t *testing.T) {
	rt := &fakeRuntime{}
	v, err := ToPrimitive(rt, Number1(3), HintDefault)
	require.NoError(t, err)
	require.Equal(t, float64(3), v.AsFloat64())
}

func TestToIndexRejectsNegative(t *testing.T) {
	rt := &fakeRuntime{}
	_, err := ToIndex(rt, Number1(-1))
	require.Error(t, err)
}

func TestToInt32WrapsOverflow(t *testing.T) {
	rt := &fakeRuntime{}
	n, err := ToInt32(rt, Number1(4294967296+5))
	require.NoError(t, err)
	require.Equal(t, int32(5), n)
}

func TestToStringValueFormatsNumbers(t *testing.T) {
	rt := &fakeRuntime{}
	s, err := ToStringValue(rt, Number1(0))
	require.NoError(t, err)
	require.Equal(t, "0", s)

	s, err = ToStringValue(rt, Number1(math.Inf(1)))
	require.NoError(t, err)
	require.Equal(t, "Infinity", s)

	s, err = ToStringValue(rt, Bool1(true))
	require.NoError(t, err)
	require.Equal(t, "true", s)
}

func TestToKeyKeepsSymbolIdentity(t *testing.T) {
	rt := &fakeRuntime{}
	sym := FromRef(Symbol, nil, true)
	k, err := ToKey(rt, sym)
	require.NoError(t, err)
	require.True(t, k.IsSymbol())
}

func TestStrictEqualNumberAndString(t *testing.T) {
	require.True(t, StrictEqual(Number1(1), Number1(1)))
	require.False(t, StrictEqual(Number1(math.NaN()), Number1(math.NaN())))
	require.True(t, StrictEqual(Number1(0), Number1(math.Copysign(0, -1))))

	a, _ := ShortString("x")
	b, _ := ShortString("x")
	require.True(t, StrictEqual(a, b))

	require.False(t, StrictEqual(Number1(1), Bool1(true)))
}

func TestLooseEqualNullUndefined(t *testing.T) {
	rt := &fakeRuntime{}
	eq, err := LooseEqual(rt, Undef(), Null1())
	require.NoError(t, err)
	require.True(t, eq)
}

func TestLooseEqualNumberString(t *testing.T) {
	rt := &fakeRuntime{}
	s, _ := ShortString("1")
	eq, err := LooseEqual(rt, Number1(1), s)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestLooseEqualBoolCoercesToNumber(t *testing.T) {
	rt := &fakeRuntime{}
	eq, err := LooseEqual(rt, Bool1(true), Number1(1))
	require.NoError(t, err)
	require.True(t, eq)
}
