// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"fmt"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

// newErrorValue builds a script-visible Error object: message/name/stack
// own data properties, __proto__ = Heap.ErrorProto, flagged as
// error-data so `instanceof Error`-style checks and
// try/catch/finally's implicit error construction can recognize it.
func (vm *VM) newErrorValue(kind, message string) value.Value {
	obj := heap.NewInstanceOf(vm.Heap.ErrorProto, value.Object)
	obj.MarkErrorData()
	table := obj.MutableOwn()
	nameVal := vm.Heap.Strings.NewString(kind)
	msgVal := vm.Heap.Strings.NewString(message)
	stackVal := vm.Heap.Strings.NewString(kind + ": " + message + "\n" + vm.errorStackTrace())
	table.Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("name"), Value: nameVal, Writable: true, Configurable: true})
	table.Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("message"), Value: msgVal, Writable: true, Configurable: true})
	table.Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("stack"), Value: stackVal, Writable: true, Configurable: true})
	return value.FromRef(value.Object, obj, true)
}

func strKey(s string) value.PropertyKey { return value.PropertyKey{Str: s} }

// errorStackTrace walks the frame chain (vm.top's Prev links, paired with
// vm.funcs indexed the same way, §4.4 pushCall), indexing each frame's
// ResumePC back into its FuncProto's line table to render a real
// function-name/file/line/column trace (§4.6 Error reporting:
// error_stack_attach).
func (vm *VM) errorStackTrace() string {
	var out []byte
	for i, f := len(vm.funcs)-1, vm.top; f != nil; i, f = i-1, f.Prev {
		out = append(out, frameStackLine(vm.funcs[i], f)...)
	}
	return string(out)
}

// frameStackLine renders one "    at name (source:line:col)" entry.
// f.ResumePC already points one past the instruction that was executing
// when this frame threw or called out (dispatch increments it before
// running the instruction body, §4.4), so ResumePC-1 is the instruction
// whose Line/Col codegen recorded.
func frameStackLine(fn *heap.Function, f *scope.Frame) string {
	name := fn.Proto.Name
	if name == "" {
		name = "<anonymous>"
	}
	if len(fn.Proto.Code) == 0 {
		return fmt.Sprintf("    at %s (native)\n", name)
	}
	idx := int(f.ResumePC) - 1
	if idx < 0 || idx >= len(fn.Proto.Code) {
		idx = len(fn.Proto.Code) - 1
	}
	ins := fn.Proto.Code[idx]
	return fmt.Sprintf("    at %s (%s:%d:%d)\n", name, fn.Proto.Source, ins.Line, ins.Col)
}

// throwNew raises a built-in error kind with message, entering the
// unwinder immediately (mirrors THROW, §4.5 Exception unwinding).
func (vm *VM) throwNew(kind, message string) {
	vm.exception = vm.newErrorValue(kind, message)
	vm.hasException = true
}

// throwValue raises an already-constructed value (user `throw expr;`).
func (vm *VM) throwValue(v value.Value) {
	vm.exception = v
	vm.hasException = true
}

// unwindTo implements §4.5 Exception unwinding, bounded to frames at
// depth >= boundary: walk the current frame's catch chain; if empty,
// pop the frame and continue to the caller. Frames below boundary are
// never touched, so a catch living in an enclosing re-entrant call (a
// native callee that invoked back into script) is left untouched for
// that call's own run() to discover fresh once this one returns.
//
// Returns SignalNone if a handler was found within our own frames and
// dispatch should resume at its HandlerPC; SignalError otherwise (either
// the exception reached past the outermost frame, or it escaped past
// boundary into frames this call does not own — the caller distinguishes
// the two by vm.top == nil).
func (vm *VM) unwindTo(boundary int) Signal {
	for vm.depth >= boundary && vm.top != nil {
		if len(vm.top.Catches) > 0 {
			rec := vm.top.Catches[len(vm.top.Catches)-1]
			vm.top.Catches = vm.top.Catches[:len(vm.top.Catches)-1]
			vm.top.ResumePC = rec.HandlerPC
			vm.hasException = false
			return SignalNone
		}
		vm.popCall()
	}
	return SignalError
}
