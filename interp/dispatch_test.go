// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

func newTestVM() *VM {
	return New(Config{Heap: heap.DefaultConfig()})
}

// run0 wraps proto in a zero-argument scripted function and calls it
// through the same CallFunction entry point a host embedder uses.
func run0(t *testing.T, vm *VM, proto *bytecode.FuncProto) (value.Value, error) {
	t.Helper()
	fn := heap.NewScriptedFunction(vm.Heap.FunctionProto, proto, nil)
	return vm.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), nil)
}

// local/constIdx build scope.Index values the way the generator would.
func local(i uint32) scope.Index    { return scope.Make(scope.Local, i) }
func constIdx(i uint32) scope.Index { return scope.Make(scope.Constants, i) }

func TestDispatchAddAndReturn(t *testing.T) {
	vm := newTestVM()
	proto := &bytecode.FuncProto{
		NumLocals: 1,
		Constants: []value.Value{value.Number1(2), value.Number1(3)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpAdd, Dst: local(0), A: constIdx(0), B: constIdx(1)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	require.Equal(t, float64(5), v.AsFloat64())
}

func TestDispatchGlobalGetAndPropertySet(t *testing.T) {
	vm := newTestVM()
	vm.Heap.Global.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "g"},
		Value: value.Number1(9), Writable: true, Enumerable: true, Configurable: true,
	})
	proto := &bytecode.FuncProto{
		NumLocals: 1,
		Constants: []value.Value{mustShortString("g")},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpGlobalGet, Dst: local(0), Imm: 0},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	require.Equal(t, float64(9), v.AsFloat64())
}

func TestDispatchFunctionCallNative(t *testing.T) {
	vm := newTestVM()
	native := heap.NewNativeFunction(vm.Heap.FunctionProto, "double", nil, func(_ value.Value, args []value.Value) (value.Value, error) {
		return value.Number1(args[0].AsFloat64() * 2), nil
	})
	proto := &bytecode.FuncProto{
		NumLocals: 2,
		Constants: []value.Value{
			value.FromRef(value.Function, native, true),
			value.Number1(21),
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpFunctionFrame, A: constIdx(0), B: scope.Invalid},
			{Op: bytecode.OpPutArg, A: constIdx(1)},
			{Op: bytecode.OpFunctionCall, Dst: local(0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	require.Equal(t, float64(42), v.AsFloat64())
}

func TestDispatchScriptedCallee(t *testing.T) {
	vm := newTestVM()
	callee := &bytecode.FuncProto{
		NumLocals: 1,
		NumArgs:   1,
		Code: []bytecode.Instruction{
			{Op: bytecode.OpAdd, Dst: local(0), A: scope.Make(scope.Arguments, 0), B: scope.Make(scope.Arguments, 0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	calleeFn := heap.NewScriptedFunction(vm.Heap.FunctionProto, callee, nil)
	proto := &bytecode.FuncProto{
		NumLocals: 2,
		Constants: []value.Value{
			value.FromRef(value.Function, calleeFn, true),
			value.Number1(10),
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpFunctionFrame, A: constIdx(0), B: scope.Invalid},
			{Op: bytecode.OpPutArg, A: constIdx(1)},
			{Op: bytecode.OpFunctionCall, Dst: local(0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	require.Equal(t, float64(20), v.AsFloat64())
}

func TestDispatchThrowAndCatch(t *testing.T) {
	vm := newTestVM()
	proto := &bytecode.FuncProto{
		NumLocals: 1,
		Constants: []value.Value{mustShortString("boom")},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpTryStart, Imm: 3},
			{Op: bytecode.OpThrow, A: constIdx(0)},
			{Op: bytecode.OpTryEnd},
			{Op: bytecode.OpCatch, Dst: local(0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	content, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, "boom", content)
}

func TestDispatchUncaughtThrowReturnsError(t *testing.T) {
	vm := newTestVM()
	proto := &bytecode.FuncProto{
		NumLocals: 1,
		Constants: []value.Value{mustShortString("unhandled")},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpThrow, A: constIdx(0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	_, err := run0(t, vm, proto)
	require.Error(t, err)
}

func TestDispatchForIn(t *testing.T) {
	vm := newTestVM()
	obj := heap.NewObject(vm.Heap.ObjectProto)
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "a"},
		Value: value.Number1(1), Enumerable: true,
	})
	obj.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "b"},
		Value: value.Number1(2), Enumerable: true,
	})
	proto := &bytecode.FuncProto{
		NumLocals: 2,
		Constants: []value.Value{value.FromRef(value.Object, obj, true)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpPropertyForeach, Dst: local(0), A: constIdx(0)},
			{Op: bytecode.OpPropertyNext, Dst: local(1), A: local(0), Imm: 3},
			{Op: bytecode.OpJump, Imm: 1},
			{Op: bytecode.OpReturn, A: local(1)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	content, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, "b", content)
}

func TestDispatchInstanceOf(t *testing.T) {
	vm := newTestVM()
	ctorProto := heap.NewObject(vm.Heap.ObjectProto)
	ctor := heap.NewNativeFunction(vm.Heap.FunctionProto, "C", nil, func(_ value.Value, _ []value.Value) (value.Value, error) {
		return value.Undef(), nil
	})
	ctor.Flags |= heap.FuncCtor
	ctor.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "prototype"},
		Value: value.FromRef(value.Object, ctorProto, true), Writable: true,
	})
	inst := heap.NewInstanceOf(ctorProto, value.Object)

	proto := &bytecode.FuncProto{
		NumLocals: 1,
		Constants: []value.Value{
			value.FromRef(value.Object, inst, true),
			value.FromRef(value.Function, ctor, true),
		},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpInstanceOf, Dst: local(0), A: constIdx(0), B: constIdx(1)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	v, err := run0(t, vm, proto)
	require.NoError(t, err)
	require.True(t, value.ToBoolean(v))
}

// TestErrorStackTraceReportsRealFrameInfo drives a TypeError from
// calling a non-function value (execFrameSetup's own "value is not a
// function" path) through two nested scripted calls, and checks the
// resulting Error's .stack names each function and the Line/Col codegen
// recorded on the throwing instruction, rather than the placeholder
// "<script>" line every frame used to render identically.
func TestErrorStackTraceReportsRealFrameInfo(t *testing.T) {
	vm := newTestVM()

	callee := &bytecode.FuncProto{
		Name:      "callee",
		Source:    "<test>",
		NumLocals: 1,
		Constants: []value.Value{value.Number1(0)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpFunctionFrame, A: constIdx(0), B: scope.Invalid, Line: 7, Col: 3},
			{Op: bytecode.OpFunctionCall, Dst: local(0)},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	calleeFn := heap.NewScriptedFunction(vm.Heap.FunctionProto, callee, nil)

	caller := &bytecode.FuncProto{
		Name:      "caller",
		Source:    "<test>",
		NumLocals: 1,
		Constants: []value.Value{value.FromRef(value.Function, calleeFn, true)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpFunctionFrame, A: constIdx(0), B: scope.Invalid},
			{Op: bytecode.OpFunctionCall, Dst: local(0), Line: 2, Col: 1},
			{Op: bytecode.OpReturn, A: local(0)},
		},
	}
	_, err := run0(t, vm, caller)
	require.Error(t, err)

	tv, ok := err.(*thrownValue)
	require.True(t, ok)
	stackDesc, ok := tv.v.Ref().(*heap.Object).OwnTable().Find(value.PropertyKey{Str: "stack"})
	require.True(t, ok)
	stack, _ := value.StringContent(stackDesc.Value)

	require.Contains(t, stack, "at callee (<test>:7:3)")
	require.Contains(t, stack, "at caller (<test>:2:1)")
}

func mustShortString(s string) value.Value {
	v, ok := value.ShortString(s)
	if !ok {
		panic("test string exceeds inline capacity")
	}
	return v
}
