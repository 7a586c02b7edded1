// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/value"
)

// FuncFlags holds per-instance function bit-flags (§3 Function: flags
// {native, ctor, async}).
type FuncFlags uint8

const (
	FuncNative FuncFlags = 1 << iota
	FuncCtor
	FuncAsync
	FuncArrow
	FuncBound
)

// NativeFunc is a host- or built-in-implemented function body. It
// receives the already this-bound receiver and coerced arguments and
// returns either a result value or an error; returning ErrAgain signals
// the call should park (§4.5 FUNCTION_CALL, native path, "AGAIN").
type NativeFunc func(this value.Value, args []value.Value) (value.Value, error)

// ErrAgain is the sentinel error a NativeFunc returns to request that
// the interpreter treat this call as suspended pending a host callback
// (setTimeout shims, fs promise calls, §5 Suspension points).
var ErrAgain = agoError{}

type agoError struct{}

func (agoError) Error() string { return "again" }

// Function is the heap form of a callable value (§3): lambda (immutable
// compiled code, via *bytecode.FuncProto) + closure (captured scope
// slots) + bound (optional this/args override) + flags.
type Function struct {
	*Object
	Proto    *bytecode.FuncProto // nil for native functions
	Native   NativeFunc
	Closure  []*value.Value
	BoundThis value.Value
	BoundArgs []value.Value
	HasBoundThis bool
	Flags    FuncFlags
	ArgTypes []ArgCoercion // native coercion vector, §4.5 FUNCTION_CALL native path
	// BoundTarget is the function bind() wrapped, carried so `new` on a
	// bound function can still resolve the *original* callee's
	// `.prototype` (§4.5 *_FRAME: "the bound target applies").
	BoundTarget *Function
}

// ArgCoercion names how a native function's declared parameter coerces
// an actual argument before invocation (§4.5: STRING_ARG, INTEGER_ARG).
type ArgCoercion uint8

const (
	ArgAny ArgCoercion = iota
	ArgString
	ArgInteger
	ArgNumber
	ArgBoolean
)

// NewScriptedFunction builds a Function around compiled code and a
// captured closure vector.
func NewScriptedFunction(proto *Object, fp *bytecode.FuncProto, closure []*value.Value) *Function {
	f := &Function{
		Object:  NewInstanceOf(proto, value.Function),
		Proto:   fp,
		Closure: closure,
	}
	if fp.IsAsync {
		f.Flags |= FuncAsync
	}
	if fp.IsArrow {
		f.Flags |= FuncArrow
	}
	return f
}

// NewNativeFunction builds a Function around a Go-implemented body. name
// is stored as the function's display name via a FuncProto carrying no
// code, so Native and Proto-based name lookup share one path.
func NewNativeFunction(proto *Object, name string, argTypes []ArgCoercion, fn NativeFunc) *Function {
	return &Function{
		Object:   NewInstanceOf(proto, value.Function),
		Native:   fn,
		ArgTypes: argTypes,
		Proto:    &bytecode.FuncProto{Name: name, NumArgs: len(argTypes)},
		Flags:    FuncNative,
	}
}

// ValueKind satisfies value.Ref.
func (f *Function) ValueKind() value.Tag { return value.Function }

// IsNative reports whether calls dispatch to Native rather than Proto.Code.
func (f *Function) IsNative() bool { return f.Flags&FuncNative != 0 }

// IsConstructor reports whether `new f(...)` is permitted; arrow
// functions are refused (§4.5 *_FRAME step 1).
func (f *Function) IsConstructor() bool {
	if f.Flags&FuncArrow != 0 {
		return false
	}
	return true
}

// Bind returns a new Function wrapping f with this/args fixed, per
// Function.prototype.bind (§4.5 *_FRAME "bound function" case: "the
// bound target applies").
func (f *Function) Bind(this value.Value, args []value.Value) *Function {
	target := f
	if f.BoundTarget != nil {
		target = f.BoundTarget
	}
	bound := &Function{
		Object:       NewInstanceOf(f.Proto0(), value.Function),
		Proto:        f.Proto,
		Native:       f.Native,
		Closure:      f.Closure,
		ArgTypes:     f.ArgTypes,
		BoundThis:    this,
		HasBoundThis: true,
		BoundArgs:    append([]value.Value(nil), args...),
		Flags:        f.Flags | FuncBound,
		BoundTarget:  target,
	}
	return bound
}

// Proto0 exposes the underlying Object's __proto__; named to avoid a
// field/method collision with the embedded *bytecode.FuncProto field.
func (f *Function) Proto0() *Object { return f.Object.Proto() }

// ParamCount reports the declared parameter arity for Function.length.
func (f *Function) ParamCount() int {
	if f.Proto != nil {
		return f.Proto.NumArgs
	}
	return len(f.ArgTypes)
}

// Name returns the function's display name (§4.5 SET_FUNCTION_NAME may
// rewrite this after creation for anonymous function expressions).
func (f *Function) Name() string {
	if f.Proto != nil {
		return f.Proto.Name
	}
	return ""
}
