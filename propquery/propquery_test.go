// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package propquery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// fakeCaller invokes a native function's Go body directly, enough to
// exercise Get/Set's accessor and handler dispatch without a full
// interpreter.
type fakeCaller struct{}

func (fakeCaller) CallFunction(fn value.Value, this value.Value, args []value.Value) (value.Value, error) {
	f := fn.Ref().(*heap.Function)
	return f.Native(this, args)
}

func strKey(s string) value.PropertyKey { return value.PropertyKey{Str: s} }

func TestGetOwnDataProperty(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("x"), Value: value.Number1(1), Enumerable: true,
	})
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Object, obj, true), strKey("x"))
	require.NoError(t, err)
	require.Equal(t, float64(1), v.AsFloat64())
}

func TestGetInheritedProperty(t *testing.T) {
	proto := heap.NewObject(nil)
	proto.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("y"), Value: value.Number1(2), Enumerable: true,
	})
	obj := heap.NewObject(proto)

	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Object, obj, true), strKey("y"))
	require.NoError(t, err)
	require.Equal(t, float64(2), v.AsFloat64())
}

func TestGetMissingPropertyReturnsUndefined(t *testing.T) {
	obj := heap.NewObject(nil)
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Object, obj, true), strKey("missing"))
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v.Tag())
}

func TestGetAccessorCallsGetter(t *testing.T) {
	obj := heap.NewObject(nil)
	getter := heap.NewNativeFunction(nil, "get x", nil, func(this value.Value, _ []value.Value) (value.Value, error) {
		return value.Number1(42), nil
	})
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindAccessor, Key: strKey("x"),
		Get: value.FromRef(value.Function, getter, true), Configurable: true,
	})
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Object, obj, true), strKey("x"))
	require.NoError(t, err)
	require.Equal(t, float64(42), v.AsFloat64())
}

func TestGetHandlerInvokedWithNilSetVal(t *testing.T) {
	obj := heap.NewObject(nil)
	var sawSetVal *value.Value = &value.Value{}
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindHandler, Key: strKey("h"),
		Handler: func(this value.Value, setVal *value.Value) (value.Value, error) {
			sawSetVal = setVal
			return value.Number1(7), nil
		},
	})
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Object, obj, true), strKey("h"))
	require.NoError(t, err)
	require.Equal(t, float64(7), v.AsFloat64())
	require.Nil(t, sawSetVal)
}

func TestSetOwnDataProperty(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("x"), Value: value.Number1(1), Writable: true,
	})
	err := Set(fakeCaller{}, Context{}, value.FromRef(value.Object, obj, true), strKey("x"), value.Number1(9))
	require.NoError(t, err)
	d, ok := obj.OwnTable().Find(strKey("x"))
	require.True(t, ok)
	require.Equal(t, float64(9), d.Value.AsFloat64())
}

func TestSetNonWritableIsIgnored(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("x"), Value: value.Number1(1), Writable: false,
	})
	err := Set(fakeCaller{}, Context{}, value.FromRef(value.Object, obj, true), strKey("x"), value.Number1(9))
	require.NoError(t, err)
	d, ok := obj.OwnTable().Find(strKey("x"))
	require.True(t, ok)
	require.Equal(t, float64(1), d.Value.AsFloat64())
}

func TestSetDeclinedInsertsNewOwnProperty(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.SetExtensible(true)
	err := Set(fakeCaller{}, Context{}, value.FromRef(value.Object, obj, true), strKey("z"), value.Number1(5))
	require.NoError(t, err)
	d, ok := obj.OwnTable().Find(strKey("z"))
	require.True(t, ok)
	require.Equal(t, float64(5), d.Value.AsFloat64())
}

func TestSetOnNonExtensibleDeclinedIsNoop(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.SetExtensible(false)
	err := Set(fakeCaller{}, Context{}, value.FromRef(value.Object, obj, true), strKey("z"), value.Number1(5))
	require.NoError(t, err)
	_, ok := obj.OwnTable().Find(strKey("z"))
	require.False(t, ok)
}

func TestDeleteConfigurableOwnProperty(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("x"), Value: value.Number1(1), Configurable: true,
	})
	ok, err := Delete(Context{}, value.FromRef(value.Object, obj, true), strKey("x"))
	require.NoError(t, err)
	require.True(t, ok)
	_, found := obj.OwnTable().Find(strKey("x"))
	require.False(t, found)
}

func TestDeleteNonConfigurableFails(t *testing.T) {
	obj := heap.NewObject(nil)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: strKey("x"), Value: value.Number1(1), Configurable: false,
	})
	ok, err := Delete(Context{}, value.FromRef(value.Object, obj, true), strKey("x"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInFindsInheritedProperty(t *testing.T) {
	proto := heap.NewObject(nil)
	proto.MutableOwn().Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("y"), Value: value.Number1(1)})
	obj := heap.NewObject(proto)
	ok, err := In(Context{}, value.FromRef(value.Object, obj, true), strKey("y"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInMissingReportsFalse(t *testing.T) {
	obj := heap.NewObject(nil)
	ok, err := In(Context{}, value.FromRef(value.Object, obj, true), strKey("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFastArrayIndexBypassesPropertyTable(t *testing.T) {
	arr := heap.NewArray(nil, 3)
	arr.Set(1, value.Number1(99))
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.FromRef(value.Array, arr, true), strKey("1"))
	require.NoError(t, err)
	require.Equal(t, float64(99), v.AsFloat64())
}

func TestStringIndexUsesCharAtAccessor(t *testing.T) {
	called := false
	acc := Accessors{StringCharAt: func(base value.Value, index int) value.Value {
		called = true
		require.Equal(t, 2, index)
		return value.Number1(float64('c'))
	}}
	s := value.FromRef(value.String, nil, true)
	s, _ = value.ShortString("abcdef")
	v, err := Get(fakeCaller{}, Context{}, acc, s, strKey("2"))
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, float64('c'), v.AsFloat64())
}

func TestDeclinedOnPlainValueFallsThroughToUndefined(t *testing.T) {
	v, err := Get(fakeCaller{}, Context{}, Accessors{}, value.Undef(), strKey("x"))
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v.Tag())
}

// TestCyclicPrototypeChainIsBounded builds a two-object proto cycle
// (A.proto=B, B.proto=A) — SetProto only refuses a direct self-cycle, so
// a longer cycle can still be constructed the way a buggy host addon
// might — and checks Query gives up with ErrChainTooDeep rather than
// looping forever (§4.3 Cycle safety).
func TestCyclicPrototypeChainIsBounded(t *testing.T) {
	a := heap.NewObject(nil)
	b := heap.NewObject(a)
	require.NoError(t, a.SetProto(b))

	_, err := Query(Context{}, value.FromRef(value.Object, a, true), strKey("nope"), Get)
	require.ErrorIs(t, err, ErrChainTooDeep)
}
