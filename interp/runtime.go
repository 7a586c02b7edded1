// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"fmt"

	"github.com/go-stack/stack"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/propquery"
	"github.com/probechain/pscript/value"
)

// Method implements value.Runtime: looks up an own-or-inherited callable
// property via propquery (mode=get).
func (vm *VM) Method(v value.Value, name string) (value.Value, bool) {
	s, ok := value.ShortString(name)
	if !ok {
		panic("interp: built-in method name exceeds inline capacity")
	}
	key := value.PropertyKey{Str: mustStr(s)}
	res, err := vm.propGet(v, key)
	if err != nil || res.Tag() != value.Function {
		return value.Value{}, false
	}
	return res, true
}

func mustStr(s value.Value) string {
	str, _ := value.StringContent(s)
	return str
}

func (vm *VM) propGet(base value.Value, key value.PropertyKey) (value.Value, error) {
	return propquery.Get(vm, vm.propCtx, propquery.Accessors{StringCharAt: vm.stringCharAt}, base, key)
}

func (vm *VM) stringCharAt(base value.Value, index int) value.Value {
	s, _ := value.StringContent(base)
	units := heap.UTF16Units(s)
	if index < 0 || index >= len(units) {
		return value.Undef()
	}
	v, ok := value.ShortString(string(rune(units[index])))
	if !ok {
		return vm.Heap.Strings.NewString(string(rune(units[index])))
	}
	return v
}

// Call implements value.Runtime: invokes method as a function with the
// given receiver and arguments.
func (vm *VM) Call(method value.Value, this value.Value, args []value.Value) (value.Value, error) {
	return vm.CallFunction(method, this, args)
}

// CallFunction implements propquery.Caller: the re-entrant call path for
// accessor/handler invocations (§4.3 "Accessor invocations may re-enter
// the interpreter"). The dispatch loop's own *_FRAME/FUNCTION_CALL
// handling pushes frames directly and does not route through it.
func (vm *VM) CallFunction(fn value.Value, this value.Value, args []value.Value) (value.Value, error) {
	if fn.Tag() != value.Function {
		return value.Value{}, vm.NewTypeError("value is not a function")
	}
	f := fn.Ref().(*heap.Function)
	if f.HasBoundThis {
		this = f.BoundThis
		args = append(append([]value.Value(nil), f.BoundArgs...), args...)
	}
	if f.IsNative() {
		return vm.callNative(f, this, args)
	}
	if f.Flags&heap.FuncAsync != 0 {
		return vm.callAsync(f, this, args), nil
	}
	return vm.callScripted(f, this, args, false)
}

func (vm *VM) callNative(f *heap.Function, this value.Value, args []value.Value) (value.Value, error) {
	coerced := make([]value.Value, len(args))
	copy(coerced, args)
	for i, kind := range f.ArgTypes {
		if i >= len(coerced) {
			break
		}
		switch kind {
		case heap.ArgString:
			s, err := value.ToStringValue(vm, coerced[i])
			if err != nil {
				return value.Value{}, err
			}
			coerced[i] = vm.Heap.Strings.NewString(s)
		case heap.ArgInteger:
			n, err := value.ToInt32(vm, coerced[i])
			if err != nil {
				return value.Value{}, err
			}
			coerced[i] = value.Number1(float64(n))
		case heap.ArgNumber:
			n, err := value.ToNumber(vm, coerced[i])
			if err != nil {
				return value.Value{}, err
			}
			coerced[i] = value.Number1(n)
		case heap.ArgBoolean:
			coerced[i] = value.Bool1(value.ToBoolean(coerced[i]))
		}
	}
	res, err := f.Native(this, coerced)
	if err == heap.ErrAgain {
		return value.Undef(), errAgain
	}
	return res, err
}

// NewTypeError implements value.Runtime. The Go call stack captured into
// ScriptError.Stack is separate from the script-level .stack property,
// which is built from the frame chain at throw time (§4.6 Error reporting).
func (vm *VM) NewTypeError(format string, args ...interface{}) error {
	return vm.newScriptError("TypeError", fmt.Sprintf(format, args...))
}

// RangeError constructs a catchable RangeError. value.ToIndex uses it,
// when its runtime provides this method, for negative indices.
func (vm *VM) RangeError(format string, args ...interface{}) error {
	return vm.newScriptError("RangeError", fmt.Sprintf(format, args...))
}

func (vm *VM) newScriptError(kind, message string) error {
	return &ScriptError{
		Kind:    kind,
		Message: message,
		Stack:   stack.Trace().TrimRuntime(),
	}
}

// ScriptError is a Go-level wrapper around a thrown script value,
// carrying the Go call stack at construction time for embedder-side
// diagnostics (distinct from the script-level .stack string attached to
// the Error object itself).
type ScriptError struct {
	Kind    string
	Message string
	Stack   stack.CallStack
}

func (e *ScriptError) Error() string { return e.Kind + ": " + e.Message }

var errAgain = &ScriptError{Kind: "internal", Message: "again"}
