// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package host implements the external interfaces of §6: the embedding
// API (vm_create/compile/start/invoke/bind), host-type registration
// (vm_external_prototype/create), the module loader and
// rejection-tracker hooks, and the example addons (fs, Buffer) that
// exercise that surface. Everything here is "external collaborator"
// territory per §1 — the core (value/heap/interp/codegen) never imports
// this package.
package host

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/codegen"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/interp"
	"github.com/probechain/pscript/module"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// Frontend parses source text into a Program. Lexing/parsing is an
// external collaborator per §1 ("only the interfaces between it and the
// core are specified"); vm_compile delegates to whatever front end the
// embedder supplies instead of this package shipping its own.
type Frontend func(source, name string, asModule bool) (*ast.Program, error)

// Ops is the host-operation vtable of §6 vm_create (`ops`): timer
// registration a native setTimeout-style shim calls into, kept opaque
// to the engine itself.
type Ops struct {
	SetTimer   func(delayMS float64, fn func()) (timerID int64)
	ClearTimer func(timerID int64)
}

// Options mirrors spec.md §6 vm_create(options).
type Options struct {
	Sandbox        bool // disables the module loader and filesystem externals
	Unsafe         bool // permits eval/Function (unimplemented opcode paths stay disabled either way)
	Quiet          bool
	Disassemble    bool
	MaxStackSize   uint64 // bytes; 0 uses heap.DefaultConfig
	Module         bool   // treat the entry source as a module rather than a script
	Argv           []string
	External       interface{} // opaque pointer threaded through every host callback
	Ops            Ops
	InstructionBudget rate.Limit // 0 disables cooperative cancellation

	Frontend Frontend
	Resolve  module.Resolver // only consulted when !Sandbox
	Logger   *slog.Logger
}

// VM is one embeddable engine instance: the interpreter, its module
// registry (nil when sandboxed), and the bookkeeping vm_external_*
// needs to hand out stable proto_id handles.
type VM struct {
	ID      uuid.UUID
	Inner   *interp.VM
	opts    Options
	log     *slog.Logger
	externs *externalRegistry
	ctx     context.Context
	cancel  context.CancelFunc

	bufferProtoID uuid.UUID

	rejectionTracker func(p *heap.Promise, handled bool)
}

// Create implements vm_create: builds a VM, wires cooperative
// cancellation, and (unless Sandbox) installs a module registry and the
// bundled fs addon.
func Create(opts Options) (*VM, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := interp.Config{
		Heap:              heap.DefaultConfig(),
		InstructionBudget: opts.InstructionBudget,
	}
	if opts.MaxStackSize > 0 {
		cfg.Heap.ArenaBytes = opts.MaxStackSize
	}

	id := uuid.New()
	vm := &VM{
		ID:      id,
		Inner:   interp.New(cfg),
		opts:    opts,
		log:     opts.Logger.With("vm", id.String()),
		externs: newExternalRegistry(),
	}
	vm.ctx, vm.cancel = context.WithCancel(context.Background())

	if err := bindGlobals(vm, opts.Argv); err != nil {
		return nil, errors.Wrap(err, "host: binding built-in globals")
	}

	if !opts.Sandbox {
		if opts.Resolve != nil {
			module.New(vm.Inner, opts.Resolve)
		}
		if err := registerFS(vm); err != nil {
			return nil, errors.Wrap(err, "host: registering fs addon")
		}
	}
	if err := registerBuffer(vm); err != nil {
		return nil, errors.Wrap(err, "host: registering Buffer")
	}

	vm.log.Debug("vm created", "sandbox", opts.Sandbox, "unsafe", opts.Unsafe, "module", opts.Module)
	return vm, nil
}

// Code is the result of vm_compile: a root FuncProto ready for Start,
// plus (when Options.Disassemble was set) its disassembly text for the
// CLI's -d flag.
type Code struct {
	Proto        *bytecode.FuncProto
	Disassembly  string
}

// Compile implements vm_compile(source) -> code. name is used for stack
// traces and disassembly headers.
func (vm *VM) Compile(source, name string) (*Code, error) {
	if vm.opts.Frontend == nil {
		return nil, errors.New("host: vm_compile requires Options.Frontend (parsing is an external collaborator, §1)")
	}
	prog, err := vm.opts.Frontend(source, name, vm.opts.Module)
	if err != nil {
		return nil, errors.Wrapf(err, "host: parsing %s", name)
	}
	proto, err := codegen.New(vm.Inner.Heap).Compile(prog, name)
	if err != nil {
		return nil, errors.Wrapf(err, "host: compiling %s", name)
	}
	code := &Code{Proto: proto}
	if vm.opts.Disassemble {
		code.Disassembly = codegen.Disassemble(proto)
	}
	return code, nil
}

// Start implements vm_start(code) -> value: runs the compiled program's
// top-level code as a zero-argument call against the global object.
func (vm *VM) Start(code *Code) (value.Value, error) {
	fn := heap.NewScriptedFunction(vm.Inner.Heap.FunctionProto, code.Proto, nil)
	v, err := vm.Inner.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), nil)
	if err != nil {
		vm.log.Debug("script threw", "err", err)
		return value.Value{}, err
	}
	vm.Inner.DrainMicrotasks()
	vm.reportRejections()
	return v, nil
}

// Invoke implements vm_invoke(fn, args) -> value: a host-initiated
// re-entry into the interpreter (§4.3 "accessor invocations may
// re-enter the interpreter" generalizes to any host call).
func (vm *VM) Invoke(fn value.Value, args []value.Value) (value.Value, error) {
	v, err := vm.Inner.CallFunction(fn, value.Undef(), args)
	if err != nil {
		return value.Value{}, err
	}
	vm.Inner.DrainMicrotasks()
	vm.reportRejections()
	return v, nil
}

// Bind implements vm_bind(name, value): inject a global.
func (vm *VM) Bind(name string, v value.Value) error {
	vm.Inner.Heap.Global.MutableOwn().Replace(proptable.Descriptor{
		Kind:         proptable.KindData,
		Key:          value.PropertyKey{Str: name},
		Value:        v,
		Writable:     true,
		Enumerable:   true,
		Configurable: true,
	})
	return nil
}

// SetRejectionTracker implements vm_set_rejection_tracker(fn): after each
// VM entry point fn is called with handled=false for every rejected
// promise that still has no rejection handler, so a promise left
// unhandled is reported again at later entry points. fn is never called
// with handled=true.
func (vm *VM) SetRejectionTracker(fn func(p *heap.Promise, handled bool)) {
	vm.rejectionTracker = fn
}

// reportRejections reports PendingRejections through the tracker after
// every VM entry point (§11 "makes the list and drain point concrete").
func (vm *VM) reportRejections() {
	if vm.rejectionTracker == nil {
		return
	}
	for _, p := range vm.Inner.PendingRejections() {
		vm.rejectionTracker(p, false)
	}
}

// Cancel cancels the VM's cancellation context: its Done channel closes
// and interp.VM.Cancellable reports false for it. The interpreter's
// dispatch loop does not consult this context, so running script is not
// stopped by Cancel.
func (vm *VM) Cancel() { vm.cancel() }

// Context returns the VM's cancellation context, suitable for
// interp.VM.Cancellable.
func (vm *VM) Context() context.Context { return vm.ctx }

func bindGlobals(vm *VM, argv []string) error {
	arr := heap.NewArray(vm.Inner.Heap.ArrayProto, len(argv))
	for i, a := range argv {
		s := vm.Inner.Heap.Strings.NewString(a)
		arr.Set(i, s)
	}
	process := heap.NewObject(vm.Inner.Heap.ObjectProto)
	process.MutableOwn().Insert(proptable.Descriptor{
		Kind:         proptable.KindData,
		Key:          value.PropertyKey{Str: "argv"},
		Value:        value.FromRef(value.Array, arr, true),
		Writable:     true,
		Enumerable:   true,
		Configurable: true,
	})
	return vm.Bind("process", value.FromRef(value.Object, process, true))
}
