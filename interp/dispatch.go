// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"fmt"

	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/propquery"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

// callScripted pushes a frame for f and runs the dispatch loop until
// that frame (and everything it calls, scripted or native) returns, then
// returns its retval. This is the re-entrant call path accessor/handler
// invocations and top-level Invoke use alike (§4.3 "Accessor invocations
// may re-enter the interpreter").
func (vm *VM) callScripted(f *heap.Function, this value.Value, args []value.Value, asCtor bool) (value.Value, error) {
	fp := f.Proto
	fr := vm.pool.Get(fp.NumLocals, fp.NumArgs)
	fr.Args = make([]value.Value, len(args))
	copy(fr.Args, args)
	fr.This = this
	fr.Closure = f.Closure
	fr.IsCtor = asCtor
	boundary := vm.depth + 1
	vm.pushCall(f, fr)

	sig, rv, err := vm.run(boundary)
	if err != nil {
		return value.Value{}, err
	}
	switch sig {
	case SignalReturn:
		return rv, nil
	case SignalError:
		return value.Value{}, vm.exceptionAsError()
	case SignalAgain:
		// A non-async function hit AWAIT; the generator never emits this,
		// so treat it the way a native callee requesting AGAIN would.
		return value.Undef(), heap.ErrAgain
	}
	return rv, nil
}

func (vm *VM) exceptionAsError() error {
	v := vm.exception
	vm.hasException = false
	vm.exception = value.Value{}
	return &thrownValue{v: v}
}

// thrownValue wraps a script-level thrown Value as a Go error so it can
// cross CallFunction's Go-level return boundary; the caller (another
// CallFunction re-entry, or the top-level Invoke) re-installs it as
// vm.exception via raiseGo when propagating further.
type thrownValue struct{ v value.Value }

func (t *thrownValue) Error() string {
	if s, ok := value.StringContent(t.v); ok {
		return s
	}
	return "uncaught exception"
}

// run dispatches instructions against vm.top until vm.depth drops below
// untilDepth (the frame this call pushed, and everything it calls
// without Go-level recursion, has returned) or a terminal condition is
// hit. Scripted-to-scripted calls never recurse at the Go level: execCall
// pushes the callee's frame and returns SignalNone, and this loop simply
// re-reads vm.top/vm.funcs on its next iteration and keeps dispatching
// (§4.5 FUNCTION_CALL: "continue dispatch at the callee's first
// instruction").
func (vm *VM) run(untilDepth int) (Signal, value.Value, error) {
	for {
		if vm.depth < untilDepth {
			return SignalReturn, value.Undef(), nil
		}
		if vm.hasException {
			s := vm.unwindTo(untilDepth)
			if s == SignalNone {
				continue
			}
			return SignalError, value.Value{}, nil
		}
		if !vm.checkBudget() {
			if vm.cancel() == SignalError {
				return SignalError, value.Value{}, nil
			}
			continue
		}

		frame := vm.top
		fn := vm.activeFunc()
		code := fn.Proto.Code
		if int(frame.ResumePC) >= len(code) {
			if sig, rv, done := vm.returnFromFrame(value.Undef(), untilDepth); done {
				return sig, rv, nil
			}
			continue
		}
		ins := code[frame.ResumePC]
		frame.ResumePC++

		sig, rv, err := vm.exec(fn, frame, ins)
		if err != nil {
			return SignalError, value.Value{}, err
		}
		switch sig {
		case SignalReturn:
			if sig2, rv2, done := vm.returnFromFrame(rv, untilDepth); done {
				return sig2, rv2, nil
			}
		case SignalAgain:
			return SignalAgain, rv, nil
		}
	}
}

// returnFromFrame implements the write-back half of §4.5 RETURN/STOP:
// pop the returning frame, replace a non-object constructor return with
// This, and either hand the value back to the Go caller (done==true, the
// frame being popped was this run() invocation's own boundary) or write
// it into the new top frame's ReturnDst and keep dispatching there.
func (vm *VM) returnFromFrame(rv value.Value, untilDepth int) (sig Signal, retval value.Value, done bool) {
	frame := vm.top
	if frame.IsCtor && !rv.IsObjectKind() {
		rv = frame.This
	}
	vm.popCall()
	if vm.depth < untilDepth {
		return SignalReturn, rv, true
	}
	vm.top.Set(frame.ReturnDst, rv)
	return SignalNone, value.Value{}, false
}

// callAsync implements invoking an async function (§4.5/§5 Await): its
// own return promise is created and handed back to the caller
// immediately; the body runs synchronously up to its first AWAIT,
// explicit return, or throw.
func (vm *VM) callAsync(f *heap.Function, this value.Value, args []value.Value) value.Value {
	fp := f.Proto
	fr := vm.pool.Get(fp.NumLocals, fp.NumArgs)
	fr.Args = make([]value.Value, len(args))
	copy(fr.Args, args)
	fr.This = this
	fr.Closure = f.Closure
	boundary := vm.depth + 1
	vm.pushCall(f, fr)

	retProm := heap.NewPromise(vm.Heap.PromiseProto)
	vm.driveAsync(boundary, retProm)
	return value.FromRef(value.Promise, retProm, true)
}

// driveAsync runs the pushed async frame until it settles or parks on an
// AWAIT, registering a continuation in the latter case (§4.5 Await steps
// 3-4: "Return to the caller with an AGAIN signal; the host event loop
// will resume via the thunk").
func (vm *VM) driveAsync(boundary int, retProm *heap.Promise) {
	sig, rv, err := vm.run(boundary)
	switch {
	case err != nil:
		vm.settlePromise(retProm, vm.newErrorValue("Error", err.Error()), true)
	case sig == SignalReturn:
		vm.settlePromise(retProm, rv, false)
	case sig == SignalError:
		reason := vm.exception
		vm.hasException = false
		vm.exception = value.Value{}
		vm.settlePromise(retProm, reason, true)
	case sig == SignalAgain:
		ctx := vm.pendingAsync
		vm.pendingAsync = nil
		onFulfilled := heap.NewNativeFunction(vm.Heap.FunctionProto, "", nil, func(_ value.Value, args []value.Value) (value.Value, error) {
			vm.pushCall(ctx.Fn, ctx.Frame)
			vm.top.Set(ctx.DestIdx, firstArgOrUndef(args))
			vm.driveAsync(vm.depth, retProm)
			return value.Undef(), nil
		})
		onRejected := heap.NewNativeFunction(vm.Heap.FunctionProto, "", nil, func(_ value.Value, args []value.Value) (value.Value, error) {
			vm.pushCall(ctx.Fn, ctx.Frame)
			vm.throwValue(firstArgOrUndef(args))
			vm.driveAsync(vm.depth, retProm)
			return value.Undef(), nil
		})
		vm.promiseThen(ctx.Inner, onFulfilled, onRejected)
	}
}

func firstArgOrUndef(args []value.Value) value.Value {
	if len(args) > 0 {
		return args[0]
	}
	return value.Undef()
}

// promiseOf wraps v in an already-settled promise unless it is already
// one (§4.5 Await step 1: "wrap in Promise.resolve").
func (vm *VM) promiseOf(v value.Value) *heap.Promise {
	if v.Tag() == value.Promise {
		return v.Ref().(*heap.Promise)
	}
	p := heap.NewPromise(vm.Heap.PromiseProto)
	vm.settlePromise(p, v, false)
	return p
}

// settlePromise resolves or rejects p and schedules every reaction that
// was already waiting as a microtask (§5 Ordering: reactions run on the
// host's microtask queue, never synchronously).
func (vm *VM) settlePromise(p *heap.Promise, v value.Value, rejected bool) {
	var fired []heap.Reaction
	if rejected {
		fired = p.Reject(v)
		if len(fired) == 0 && !p.Handled() {
			vm.pendingRejections[p] = struct{}{}
		}
	} else {
		fired = p.Resolve(v)
	}
	for _, r := range fired {
		vm.fireReaction(r, p.State, p.Value)
	}
}

func (vm *VM) fireReaction(r heap.Reaction, state heap.PromiseState, v value.Value) {
	vm.queueMicrotask(func() {
		var fn *heap.Function
		if state == heap.Fulfilled {
			fn = r.OnFulfilled
		} else {
			fn = r.OnRejected
		}
		if fn == nil {
			return
		}
		vm.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), []value.Value{v})
	})
}

// promiseThen registers onFulfilled/onRejected against p, queuing
// immediately as a microtask if p already settled (Promise.Then only
// stores pending reactions; settled promises fire through here instead).
func (vm *VM) promiseThen(p *heap.Promise, onFulfilled, onRejected *heap.Function) {
	p.Then(onFulfilled, onRejected, nil)
	if p.State != heap.Pending {
		vm.fireReaction(heap.Reaction{OnFulfilled: onFulfilled, OnRejected: onRejected}, p.State, p.Value)
	}
}

// exec dispatches one instruction. Most opcodes return (SignalNone,
// Undef, nil) and mutate frame/vm state directly.
func (vm *VM) exec(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	switch ins.Op {

	// ---- Move & load ---------------------------------------------------
	case bytecode.OpMove:
		frame.Set(ins.Dst, vm.read(fp, frame, ins.A))
	case bytecode.OpLet:
		frame.Set(ins.Dst, value.Undef())
	case bytecode.OpLetUpdate:
		frame.Set(ins.Dst, vm.read(fp, frame, ins.A))
	case bytecode.OpInitializationTest:
		// No-op: slots carry no temporal-dead-zone state, so nothing is
		// checked and no ReferenceError is raised. The generator emits
		// neither this nor NOT_INITIALIZED.
	case bytecode.OpNotInitialized:
	case bytecode.OpGlobalGet:
		key := value.PropertyKey{Str: constString(fp, ins.Imm)}
		v, err := vm.propGet(value.FromRef(value.Object, vm.Heap.Global, true), key)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, v)
	case bytecode.OpArguments:
		arr := heap.NewArray(vm.Heap.ArrayProto, len(frame.Args))
		for i, a := range frame.Args {
			arr.Set(i, a)
		}
		frame.Set(ins.Dst, value.FromRef(value.Array, arr, true))
	case bytecode.OpLoadThis:
		frame.Set(ins.Dst, frame.This)

	// ---- Arithmetic ------------------------------------------------------
	case bytecode.OpAdd:
		return vm.execAdd(fp, frame, ins)
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
		bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr:
		return vm.execNumericBinary(fp, frame, ins)
	case bytecode.OpNeg:
		n, err := value.ToNumber(vm, vm.read(fp, frame, ins.A))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Number1(-n))
	case bytecode.OpPlus:
		n, err := value.ToNumber(vm, vm.read(fp, frame, ins.A))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Number1(n))
	case bytecode.OpBitNot:
		n, err := value.ToInt32(vm, vm.read(fp, frame, ins.A))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Number1(float64(^n)))

	// ---- Comparison -------------------------------------------------------
	case bytecode.OpLt, bytecode.OpGt, bytecode.OpLe, bytecode.OpGe:
		return vm.execRelational(fp, frame, ins)
	case bytecode.OpEq:
		eq, err := value.LooseEqual(vm, vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(eq))
	case bytecode.OpNe:
		eq, err := value.LooseEqual(vm, vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(!eq))
	case bytecode.OpStrictEq:
		frame.Set(ins.Dst, value.Bool1(value.StrictEqual(vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B))))
	case bytecode.OpStrictNe:
		frame.Set(ins.Dst, value.Bool1(!value.StrictEqual(vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B))))

	// ---- Logical / test ----------------------------------------------------
	case bytecode.OpTestIfTrue:
		frame.Set(ins.Dst, value.Bool1(value.ToBoolean(vm.read(fp, frame, ins.A))))
	case bytecode.OpTestIfFalse:
		frame.Set(ins.Dst, value.Bool1(!value.ToBoolean(vm.read(fp, frame, ins.A))))
	case bytecode.OpCoalesce:
		a := vm.read(fp, frame, ins.A)
		if !a.IsNullish() {
			frame.Set(ins.Dst, a)
		} else {
			frame.Set(ins.Dst, vm.read(fp, frame, ins.B))
		}
	case bytecode.OpJump:
		frame.ResumePC = uint32(ins.Imm)
	case bytecode.OpIfTrueJump:
		if value.ToBoolean(vm.read(fp, frame, ins.A)) {
			frame.ResumePC = uint32(ins.Imm)
		}
	case bytecode.OpIfFalseJump:
		if !value.ToBoolean(vm.read(fp, frame, ins.A)) {
			frame.ResumePC = uint32(ins.Imm)
		}
	case bytecode.OpIfEqualJump:
		if value.StrictEqual(vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B)) {
			frame.ResumePC = uint32(ins.Imm)
		}

	// ---- Property ----------------------------------------------------------
	case bytecode.OpPropertyGet:
		return vm.execPropertyGet(fp, frame, ins)
	case bytecode.OpPropertySet:
		return vm.execPropertySet(fp, frame, ins)
	case bytecode.OpPropertyInit:
		obj := vm.read(fp, frame, ins.Dst)
		key, err := vm.toKey(fp, frame, ins.A)
		if err != nil {
			return vm.raiseGo(err)
		}
		o, ok := obj.Ref().(interface{ MutableOwn() *proptable.Table })
		if ok {
			o.MutableOwn().Replace(proptable.Descriptor{Kind: proptable.KindData, Key: key, Value: vm.read(fp, frame, ins.B), Writable: true, Configurable: true})
		}
	case bytecode.OpPropertyAccessor:
		obj := vm.read(fp, frame, ins.Dst)
		key, err := vm.toKey(fp, frame, ins.A)
		if err != nil {
			return vm.raiseGo(err)
		}
		o, ok := obj.Ref().(interface{ MutableOwn() *proptable.Table })
		if !ok {
			break
		}
		acc := vm.read(fp, frame, ins.B)
		existing, found := o.MutableOwn().Find(key)
		d := proptable.Descriptor{Kind: proptable.KindAccessor, Key: key, Configurable: true, Enumerable: true}
		if found && existing.Kind == proptable.KindAccessor {
			d.Get, d.Set = existing.Get, existing.Set
		}
		if ins.Imm&1 != 0 {
			d.Set = acc
		} else {
			d.Get = acc
		}
		o.MutableOwn().Replace(d)
	case bytecode.OpPropertyDelete:
		key, err := vm.toKey(fp, frame, ins.B)
		if err != nil {
			return vm.raiseGo(err)
		}
		ok, err := vm.propDelete(vm.read(fp, frame, ins.A), key)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(ok))
	case bytecode.OpPropertyIn:
		key, err := vm.toKey(fp, frame, ins.A)
		if err != nil {
			return vm.raiseGo(err)
		}
		ok, err := vm.propIn(vm.read(fp, frame, ins.B), key)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(ok))
	case bytecode.OpPropertyForeach:
		return vm.execPropertyForeach(fp, frame, ins)
	case bytecode.OpPropertyNext:
		return vm.execPropertyNext(fp, frame, ins)
	case bytecode.OpProtoInit:
		base := vm.read(fp, frame, ins.A)
		proto := vm.read(fp, frame, ins.B)
		if o, ok := base.Ref().(*heap.Object); ok {
			var p *heap.Object
			if proto.IsObjectKind() {
				p, _ = proto.Ref().(*heap.Object)
			}
			if err := o.SetProto(p); err != nil {
				return vm.raiseGo(vm.NewTypeError("%s", err.Error()))
			}
		}
	case bytecode.OpToPropertyKey, bytecode.OpToPropertyKeyChk:
		key, err := value.ToKey(vm, vm.read(fp, frame, ins.A))
		if err != nil {
			return vm.raiseGo(err)
		}
		if key.IsSymbol() {
			frame.Set(ins.Dst, value.FromRef(value.Symbol, key.Sym, true))
		} else {
			frame.Set(ins.Dst, vm.Heap.Strings.NewString(key.Str))
		}

	// ---- Object creation -----------------------------------------------------
	case bytecode.OpObject:
		obj := heap.NewObject(vm.Heap.ObjectProto)
		frame.Set(ins.Dst, value.FromRef(value.Object, obj, true))
	case bytecode.OpArray:
		arr := heap.NewArray(vm.Heap.ArrayProto, 0)
		frame.Set(ins.Dst, value.FromRef(value.Array, arr, true))
	case bytecode.OpFunction:
		return vm.execMakeFunction(fp, frame, ins)
	case bytecode.OpRegexp:
		// pattern/flags constant indices are carried via A/B as constant
		// pool offsets into fp.Proto.Constants (both interned strings).
		pattern := constString(fp, int32(ins.A.Offset()))
		re, err := heap.NewRegExp(vm.Heap.RegExpProto, pattern, heap.RegExpFlags{Global: ins.Imm&1 != 0, IgnoreCase: ins.Imm&2 != 0})
		if err != nil {
			return vm.raiseGo(vm.newSyntaxErrorf("Invalid regular expression: %s", err))
		}
		frame.Set(ins.Dst, value.FromRef(value.Regexp, re, true))
	case bytecode.OpTemplateLiteral:
		arr := vm.read(fp, frame, ins.A).Ref().(*heap.Array)
		var sb []byte
		for i := 0; i < arr.Len(); i++ {
			s, err := value.ToStringValue(vm, arr.Get(i))
			if err != nil {
				return vm.raiseGo(err)
			}
			sb = append(sb, s...)
		}
		frame.Set(ins.Dst, vm.Heap.Strings.NewString(string(sb)))

	// ---- Exceptions -------------------------------------------------------
	case bytecode.OpTryStart:
		frame.Catches = append(frame.Catches, scope.CatchRecord{HandlerPC: uint32(ins.Imm), StackBase: len(frame.Catches)})
	case bytecode.OpTryEnd:
		if len(frame.Catches) > 0 {
			frame.Catches = frame.Catches[:len(frame.Catches)-1]
		}
	case bytecode.OpTryBreak, bytecode.OpTryContinue, bytecode.OpTryReturn:
		// Bookkeeping no-ops marking a finally-routing exit: the generator
		// inlines each enclosing finally body after the marker, and the
		// jump or return it emits after those bodies is what actually
		// moves control.
	case bytecode.OpFinally:
		// No-op; the generator does not emit it. A pending exception is
		// re-raised by an explicit THROW the generator emits after the
		// inlined finally body.
	case bytecode.OpThrow:
		vm.throwValue(vm.read(fp, frame, ins.A))
	case bytecode.OpCatch:
		frame.Set(ins.Dst, vm.exception)
		vm.hasException = false
		vm.exception = value.Value{}
	case bytecode.OpError:
		vm.throwValue(vm.read(fp, frame, ins.A))

	// ---- Calls --------------------------------------------------------------
	case bytecode.OpFunctionFrame, bytecode.OpMethodFrame:
		return vm.execFrameSetup(fp, frame, ins)
	case bytecode.OpFunctionCopy:
		src := vm.read(fp, frame, ins.A)
		if srcFn, ok := src.Ref().(*heap.Function); ok {
			copyFn := &heap.Function{
				Object:       heap.NewInstanceOf(srcFn.Proto0(), value.Function),
				Proto:        srcFn.Proto,
				Native:       srcFn.Native,
				Closure:      srcFn.Closure,
				ArgTypes:     srcFn.ArgTypes,
				BoundThis:    srcFn.BoundThis,
				BoundArgs:    srcFn.BoundArgs,
				HasBoundThis: srcFn.HasBoundThis,
				Flags:        srcFn.Flags,
				BoundTarget:  srcFn.BoundTarget,
			}
			frame.Set(ins.Dst, value.FromRef(value.Function, copyFn, true))
		} else {
			frame.Set(ins.Dst, src)
		}
	case bytecode.OpPutArg:
		vm.pendingArgs = append(vm.pendingArgs, vm.read(fp, frame, ins.A))
	case bytecode.OpFunctionCall:
		return vm.execCall(fp, frame, ins)
	case bytecode.OpReturn:
		return SignalReturn, vm.read(fp, frame, ins.A), nil
	case bytecode.OpStop:
		return SignalReturn, value.Undef(), nil
	case bytecode.OpSetFunctionName:
		fnv := vm.read(fp, frame, ins.Dst)
		if fn, ok := fnv.Ref().(*heap.Function); ok && fn.Proto != nil && fn.Proto.Name == "" {
			name := constString(fp, ins.Imm)
			named := *fn.Proto
			named.Name = name
			fn.Proto = &named
		}

	// ---- Modules & async ------------------------------------------------------
	case bytecode.OpAwait:
		return vm.execAwait(fp, frame, ins)
	case bytecode.OpImport:
		return vm.execImport(fp, frame, ins)

	// ---- Other ----------------------------------------------------------------
	case bytecode.OpTypeof:
		frame.Set(ins.Dst, vm.Heap.Strings.NewString(vm.typeofValue(vm.read(fp, frame, ins.A))))
	case bytecode.OpVoid:
		_ = vm.read(fp, frame, ins.A)
		frame.Set(ins.Dst, value.Undef())
	case bytecode.OpDelete:
		key, err := vm.toKey(fp, frame, ins.B)
		if err != nil {
			return vm.raiseGo(err)
		}
		ok, err := vm.propDelete(vm.read(fp, frame, ins.A), key)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(ok))
	case bytecode.OpInstanceOf:
		ok, err := vm.instanceOf(vm.read(fp, frame, ins.A), vm.read(fp, frame, ins.B))
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Bool1(ok))
	case bytecode.OpDebugger:
		// No-op: no debugger is attached in this embedding.
	default:
		return SignalError, value.Value{}, ErrInvalidOpcode
	}
	return SignalNone, value.Value{}, nil
}

// execMakeFunction instantiates the nested FuncProto named by ins.Imm
// into a fresh heap.Function, wiring its closure vector per the child's
// CaptureDescriptor list (§4.6 Closures) and, for non-arrow functions, a
// fresh .prototype object so `new` has somewhere to anchor instances.
func (vm *VM) execMakeFunction(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	child := fp.Proto.Functions[ins.Imm]
	closure := make([]*value.Value, len(child.Captures))
	for _, cd := range child.Captures {
		var ptr *value.Value
		switch cd.OuterKind {
		case scope.Local:
			ptr = frame.Capture(cd.OuterSlot)
		case scope.Closure:
			ptr = frame.Closure[cd.OuterSlot]
		default:
			v := frame.Get(scope.Make(cd.OuterKind, cd.OuterSlot))
			ptr = &v
		}
		closure[cd.ClosureSlot] = ptr
	}
	newFn := heap.NewScriptedFunction(vm.Heap.FunctionProto, child, closure)
	if !child.IsArrow {
		protoObj := heap.NewObject(vm.Heap.ObjectProto)
		protoObj.MutableOwn().Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("constructor"), Value: value.FromRef(value.Function, newFn, true), Writable: true, Configurable: true})
		newFn.MutableOwn().Insert(proptable.Descriptor{Kind: proptable.KindData, Key: strKey("prototype"), Value: value.FromRef(value.Object, protoObj, true), Writable: true})
	}
	frame.Set(ins.Dst, value.FromRef(value.Function, newFn, true))
	return SignalNone, value.Value{}, nil
}

// execFrameSetup implements §4.5 *_FRAME step 1: resolve the callee
// (directly, or via property lookup for a method call), validate it is
// callable, and for a constructor call allocate the new instance ahead
// of FUNCTION_CALL.
func (vm *VM) execFrameSetup(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	isCtor := ins.Imm&1 != 0
	var callee, this value.Value
	if ins.Op == bytecode.OpMethodFrame {
		this = vm.read(fp, frame, ins.A)
		key, err := vm.toKey(fp, frame, ins.B)
		if err != nil {
			return vm.raiseGo(err)
		}
		v, err := vm.propGet(this, key)
		if err != nil {
			return vm.raiseGo(err)
		}
		callee = v
	} else {
		callee = vm.read(fp, frame, ins.A)
		if ins.B != scope.Invalid {
			this = vm.read(fp, frame, ins.B)
		} else {
			this = value.Undef()
		}
	}
	if callee.Tag() != value.Function {
		return vm.raiseGo(vm.NewTypeError("value is not a function"))
	}
	calleeFn := callee.Ref().(*heap.Function)
	if isCtor {
		if !calleeFn.IsConstructor() {
			return vm.raiseGo(vm.NewTypeError("%s is not a constructor", calleeFn.Name()))
		}
		target := calleeFn
		if calleeFn.BoundTarget != nil {
			target = calleeFn.BoundTarget
		}
		protoVal, err := vm.propGet(value.FromRef(value.Function, target, true), strKey("prototype"))
		if err != nil {
			return vm.raiseGo(err)
		}
		instProto := vm.Heap.ObjectProto
		if protoVal.IsObjectKind() {
			if p, ok := protoVal.Ref().(*heap.Object); ok {
				instProto = p
			}
		}
		this = value.FromRef(value.Object, heap.NewInstanceOf(instProto, value.Object), true)
	}
	vm.pendingCallee = callee
	vm.pendingThis = this
	vm.pendingCtor = isCtor
	vm.pendingArgs = vm.pendingArgs[:0]
	return SignalNone, value.Value{}, nil
}

// execCall implements §4.5 FUNCTION_CALL: native callees run to
// completion synchronously in Go; scripted callees push a frame and let
// run()'s own loop continue dispatch with no Go-level recursion.
func (vm *VM) execCall(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	callee, ok := vm.pendingCallee.Ref().(*heap.Function)
	if !ok {
		return vm.raiseGo(vm.NewTypeError("value is not a function"))
	}
	this := vm.pendingThis
	isCtor := vm.pendingCtor
	args := append([]value.Value(nil), vm.pendingArgs...)
	vm.pendingArgs = vm.pendingArgs[:0]

	if callee.HasBoundThis {
		args = append(append([]value.Value(nil), callee.BoundArgs...), args...)
		if !isCtor {
			this = callee.BoundThis
		}
	}

	if callee.IsNative() {
		rv, err := vm.callNative(callee, this, args)
		if err != nil {
			return vm.raiseGo(err)
		}
		if isCtor && !rv.IsObjectKind() {
			rv = this
		}
		frame.Set(ins.Dst, rv)
		return SignalNone, value.Value{}, nil
	}

	if callee.Flags&heap.FuncAsync != 0 {
		frame.Set(ins.Dst, vm.callAsync(callee, this, args))
		return SignalNone, value.Value{}, nil
	}

	calleeFp := callee.Proto
	fr := vm.pool.Get(calleeFp.NumLocals, calleeFp.NumArgs)
	fr.Args = make([]value.Value, len(args))
	copy(fr.Args, args)
	fr.This = this
	fr.Closure = callee.Closure
	fr.IsCtor = isCtor
	fr.ReturnDst = ins.Dst
	vm.pushCall(callee, fr)
	return SignalNone, value.Value{}, nil
}

// execAwait implements §4.5 Await/§5 Suspension: wrap the awaited value
// in a promise, detach the current frame from the shared frame stack
// (the heap-allocated "async context" the source reconstructs from), and
// signal AGAIN so driveAsync can register the resume thunk. Detaching
// rather than leaving the frame linked in place is what lets two
// unrelated async calls park and resume in any order.
func (vm *VM) execAwait(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	v := vm.read(fp, frame, ins.A)
	inner := vm.promiseOf(v)
	vm.popCall()
	vm.pendingAsync = &AsyncContext{Frame: frame, Fn: fp, DestIdx: ins.Dst, Inner: inner}
	return SignalAgain, value.Value{}, nil
}

// execImport implements the OpImport opcode (§3 Module record): look up
// or lazily evaluate the named module and load its namespace object into
// Dst. The module registry itself lives in package module; the VM only
// needs a loader hook, wired by the host at vm_set_module_loader time.
func (vm *VM) execImport(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	name := constString(fp, ins.Imm)
	if vm.ModuleLoader == nil {
		return vm.raiseGo(vm.NewTypeError("no module loader configured for import %q", name))
	}
	ns, err := vm.ModuleLoader(name)
	if err != nil {
		return vm.raiseGo(err)
	}
	frame.Set(ins.Dst, ns)
	return SignalNone, value.Value{}, nil
}

// execPropertyForeach begins a for-in enumeration (§4.5 Property):
// snapshot own+inherited enumerable string keys of A, in insertion
// order with duplicates removed, into an iterator object stashed in Dst.
func (vm *VM) execPropertyForeach(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	base := vm.read(fp, frame, ins.A)
	it := &forInIterator{}
	seen := make(map[string]bool)
	obj, ok := base.Ref().(propEnumerable)
	for ok {
		for _, d := range obj.OwnTable().Iterate(true) {
			if d.Key.IsSymbol() {
				continue
			}
			if seen[d.Key.Str] {
				continue
			}
			seen[d.Key.Str] = true
			it.keys = append(it.keys, d.Key.Str)
		}
		obj, ok = obj.Proto().(propEnumerable)
	}
	frame.Set(ins.Dst, value.FromRef(value.Data, it, true))
	return SignalNone, value.Value{}, nil
}

// propEnumerable is satisfied by *heap.Object and everything embedding
// it; Proto returning a concrete *heap.Object upcast to this interface
// lets execPropertyForeach walk the chain without depending on
// propquery.Holder (a different package's assembly of the same shape).
type propEnumerable interface {
	OwnTable() *proptable.Table
	Proto() *heap.Object
}

// forInIterator is the opaque Data-tagged payload OpPropertyForeach
// produces and OpPropertyNext consumes.
type forInIterator struct {
	keys []string
	pos  int
}

func (it *forInIterator) ValueKind() value.Tag { return value.Data }

// execPropertyNext advances a for-in iterator, branching to Imm when
// exhausted (§4.5 Property: "OpPropertyNext advances ... branching to
// Imm when" the chain is exhausted).
func (vm *VM) execPropertyNext(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	itv := vm.read(fp, frame, ins.A)
	it, ok := itv.Ref().(*forInIterator)
	if !ok || it.pos >= len(it.keys) {
		frame.ResumePC = uint32(ins.Imm)
		return SignalNone, value.Value{}, nil
	}
	key := it.keys[it.pos]
	it.pos++
	frame.Set(ins.Dst, vm.Heap.Strings.NewString(key))
	return SignalNone, value.Value{}, nil
}

func (vm *VM) read(fp *heap.Function, frame *scope.Frame, idx scope.Index) value.Value {
	if idx.Kind() == scope.Constants {
		return fp.Proto.Constants[idx.Offset()]
	}
	return frame.Get(idx)
}

func (vm *VM) toKey(fp *heap.Function, frame *scope.Frame, idx scope.Index) (value.PropertyKey, error) {
	return value.ToKey(vm, vm.read(fp, frame, idx))
}

// raiseGo converts a Go error from a coercion helper into the VM's
// throw state, matching native callees "surfacing as ERROR with
// vm.exception set" (§4.5 Exception unwinding).
func (vm *VM) raiseGo(err error) (Signal, value.Value, error) {
	if se, ok := err.(*ScriptError); ok {
		vm.throwNew(se.Kind, se.Message)
		return SignalNone, value.Value{}, nil
	}
	if tv, ok := err.(*thrownValue); ok {
		vm.throwValue(tv.v)
		return SignalNone, value.Value{}, nil
	}
	if err == propquery.ErrChainTooDeep {
		vm.throwNew("RangeError", err.Error())
		return SignalNone, value.Value{}, nil
	}
	return SignalError, value.Value{}, err
}

func (vm *VM) newSyntaxErrorf(format string, args ...interface{}) error {
	return vm.newScriptError("SyntaxError", fmt.Sprintf(format, args...))
}

func (vm *VM) typeofValue(v value.Value) string {
	switch v.Tag() {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "object"
	case value.Bool:
		return "boolean"
	case value.Number:
		return "number"
	case value.String:
		return "string"
	case value.Symbol:
		return "symbol"
	case value.Function:
		return "function"
	default:
		return "object"
	}
}

func (vm *VM) instanceOf(v, ctor value.Value) (bool, error) {
	if ctor.Tag() != value.Function {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	if !v.IsObjectKind() {
		return false, nil
	}
	protoVal, err := vm.propGet(ctor, value.PropertyKey{Str: "prototype"})
	if err != nil {
		return false, err
	}
	if !protoVal.IsObjectKind() {
		return false, nil
	}
	target, _ := protoVal.Ref().(*heap.Object)
	obj, ok := v.Ref().(interface{ Proto() *heap.Object })
	if !ok {
		return false, nil
	}
	for p := obj.Proto(); p != nil; p = p.Proto() {
		if p == target {
			return true, nil
		}
	}
	return false, nil
}
