// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/propquery"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

// AsyncContext is the heap-allocated snapshot AWAIT takes of a suspended
// frame (§4.5 Await step 2): the frame and the function it is running,
// detached from the shared frame stack while parked, the slot the
// resumed value is written to, and the promise being awaited.
type AsyncContext struct {
	Frame   *scope.Frame
	Fn      *heap.Function
	DestIdx scope.Index
	Inner   *heap.Promise
}

// VM is one engine instance: the heap, the call-frame stack, the
// exception slot, and the cooperative-cancellation budget. VMs share no
// mutable state (§5 Scheduling model); every script-visible object
// belongs to exactly one VM's Heap.
type VM struct {
	Heap  *heap.Heap
	pool  *scope.Pool
	top   *scope.Frame
	funcs []*heap.Function
	depth int

	exception    value.Value
	hasException bool

	microtasks []func()

	pendingRejections map[*heap.Promise]struct{}

	budget *rate.Limiter
	shield bool // host option: shielded catches survive cancellation throws

	propCtx propquery.Context

	// pendingArgs accumulates PUT_ARG writes between a *_FRAME and the
	// following FUNCTION_CALL (§4.5 Call protocol steps 1-2).
	pendingArgs []value.Value
	pendingCallee value.Value
	pendingThis   value.Value
	pendingCtor   bool

	// pendingAsync carries the snapshot execAwait just took from the
	// SignalAgain return up to whichever driveAsync call is waiting to
	// consume it; the two are always adjacent on the Go call stack with
	// no intervening dispatch (§5 Scheduling: single-threaded VM).
	pendingAsync *AsyncContext

	// ModuleLoader resolves an import specifier to its namespace object,
	// wired by the host at module-registration time (§3 Module record).
	// Nil until the host configures one.
	ModuleLoader func(specifier string) (value.Value, error)
}

// Config configures cooperative cancellation and heap sizing.
type Config struct {
	Heap heap.Config
	// InstructionBudget, when > 0, is the rate (instructions per second,
	// burst 1) of a limiter consulted before each instruction; a denied
	// instruction synthesizes a cooperative-cancellation RangeError
	// (§4.5 Cancellation).
	InstructionBudget rate.Limit
	ShieldCatches     bool
}

// New creates a VM with its own heap and prototype graph.
func New(cfg Config) *VM {
	h := heap.New(cfg.Heap)
	vm := &VM{
		Heap:              h,
		pool:              scope.NewPool(),
		pendingRejections: make(map[*heap.Promise]struct{}),
		shield:            cfg.ShieldCatches,
		propCtx: propquery.Context{
			StringProto:  h.StringProto,
			NumberProto:  h.NumberProto,
			BooleanProto: h.BooleanProto,
			SymbolProto:  h.SymbolProto,
		},
	}
	if cfg.InstructionBudget > 0 {
		vm.budget = rate.NewLimiter(cfg.InstructionBudget, 1)
	}
	return vm
}

// PendingRejections reports promises that settled as rejected with no
// attached rejection handler, for the host's unhandled-rejection
// tracker (§11).
func (vm *VM) PendingRejections() []*heap.Promise {
	out := make([]*heap.Promise, 0, len(vm.pendingRejections))
	for p := range vm.pendingRejections {
		if p.Handled() {
			delete(vm.pendingRejections, p)
			continue
		}
		out = append(out, p)
	}
	return out
}

// DrainMicrotasks runs queued promise reactions to completion, the way
// the host event loop drains microtasks between macro-events (§5
// Ordering).
func (vm *VM) DrainMicrotasks() {
	for len(vm.microtasks) > 0 {
		task := vm.microtasks[0]
		vm.microtasks = vm.microtasks[1:]
		task()
	}
}

func (vm *VM) queueMicrotask(fn func()) {
	vm.microtasks = append(vm.microtasks, fn)
}

// pushCall installs fr as the new top frame, running as fn. The funcs
// stack mirrors the Prev-linked frame stack one-for-one so the dispatch
// loop can always resolve the active FuncProto without scope needing to
// import bytecode (§4.4 Frame: "frames form a singly-linked stack").
func (vm *VM) pushCall(fn *heap.Function, fr *scope.Frame) {
	fr.Prev = vm.top
	vm.top = fr
	vm.funcs = append(vm.funcs, fn)
	vm.depth++
}

// popCall restores the previous top frame and function, returning the
// frame that was popped.
func (vm *VM) popCall() *scope.Frame {
	f := vm.top
	vm.top = f.Prev
	vm.funcs = vm.funcs[:len(vm.funcs)-1]
	vm.depth--
	return f
}

// activeFunc returns the FuncProto backing the current top frame.
func (vm *VM) activeFunc() *heap.Function {
	return vm.funcs[len(vm.funcs)-1]
}

// checkBudget enforces the cooperative-cancellation hook at dispatch-loop
// top (§4.5 Cancellation): a denied reservation synthesizes a RangeError
// throw instead of blocking.
func (vm *VM) checkBudget() bool {
	if vm.budget == nil {
		return true
	}
	return vm.budget.Allow()
}

// cancel synthesizes the RangeError throw a denied budget reservation
// produces, then drains scripted frames without running shielded
// catches (shielding is a host option, §4.5 Cancellation).
func (vm *VM) cancel() Signal {
	vm.throwNew("RangeError", "script execution budget exceeded")
	for vm.top != nil {
		if vm.shield && len(vm.top.Catches) > 0 {
			return vm.unwindTo(0)
		}
		vm.popCall()
	}
	return SignalError
}

// Cancellable reports whether ctx is still live (false once its Done
// channel is closed). The dispatch loop does not call it.
func (vm *VM) Cancellable(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}
