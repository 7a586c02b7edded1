// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"math"

	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

func constString(fp *heap.Function, idx int32) string {
	s, _ := value.StringContent(fp.Proto.Constants[idx])
	return s
}

// execAdd implements §4.5 Arithmetic `+`: ToNumeric on both operands,
// except the string-concatenation overload triggered when either
// operand is a string after primitive coercion with hint=default.
func (vm *VM) execAdd(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	a := vm.read(fp, frame, ins.A)
	b := vm.read(fp, frame, ins.B)
	pa, err := value.ToPrimitive(vm, a, value.HintDefault)
	if err != nil {
		return vm.raiseGo(err)
	}
	pb, err := value.ToPrimitive(vm, b, value.HintDefault)
	if err != nil {
		return vm.raiseGo(err)
	}
	if pa.Tag() == value.String || pb.Tag() == value.String {
		sa, err := value.ToStringValue(vm, pa)
		if err != nil {
			return vm.raiseGo(err)
		}
		sb, err := value.ToStringValue(vm, pb)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, vm.Heap.Strings.NewString(sa+sb))
		return SignalNone, value.Value{}, nil
	}
	na, err := value.ToNumber(vm, pa)
	if err != nil {
		return vm.raiseGo(err)
	}
	nb, err := value.ToNumber(vm, pb)
	if err != nil {
		return vm.raiseGo(err)
	}
	frame.Set(ins.Dst, value.Number1(na+nb))
	return SignalNone, value.Value{}, nil
}

func (vm *VM) execNumericBinary(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	a := vm.read(fp, frame, ins.A)
	b := vm.read(fp, frame, ins.B)
	switch ins.Op {
	case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr:
		ia, err := value.ToInt32(vm, a)
		if err != nil {
			return vm.raiseGo(err)
		}
		ib, err := value.ToInt32(vm, b)
		if err != nil {
			return vm.raiseGo(err)
		}
		var r int32
		switch ins.Op {
		case bytecode.OpBitAnd:
			r = ia & ib
		case bytecode.OpBitOr:
			r = ia | ib
		case bytecode.OpBitXor:
			r = ia ^ ib
		case bytecode.OpShl:
			r = ia << (uint32(ib) & 31)
		case bytecode.OpShr:
			r = ia >> (uint32(ib) & 31)
		}
		frame.Set(ins.Dst, value.Number1(float64(r)))
		return SignalNone, value.Value{}, nil
	case bytecode.OpUShr:
		ua, err := value.ToUint32(vm, a)
		if err != nil {
			return vm.raiseGo(err)
		}
		ib, err := value.ToInt32(vm, b)
		if err != nil {
			return vm.raiseGo(err)
		}
		frame.Set(ins.Dst, value.Number1(float64(ua>>(uint32(ib)&31))))
		return SignalNone, value.Value{}, nil
	}
	na, err := value.ToNumber(vm, a)
	if err != nil {
		return vm.raiseGo(err)
	}
	nb, err := value.ToNumber(vm, b)
	if err != nil {
		return vm.raiseGo(err)
	}
	var r float64
	switch ins.Op {
	case bytecode.OpSub:
		r = na - nb
	case bytecode.OpMul:
		r = na * nb
	case bytecode.OpDiv:
		r = na / nb
	case bytecode.OpMod:
		r = math.Mod(na, nb)
	case bytecode.OpPow:
		r = math.Pow(na, nb)
	}
	frame.Set(ins.Dst, value.Number1(r))
	return SignalNone, value.Value{}, nil
}

// execRelational implements §4.5 Comparison: relational compares coerce
// to primitive with hint=number; strings compare lexicographically by
// byte rather than numeric conversion.
func (vm *VM) execRelational(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	a := vm.read(fp, frame, ins.A)
	b := vm.read(fp, frame, ins.B)
	pa, err := value.ToPrimitive(vm, a, value.HintNumber)
	if err != nil {
		return vm.raiseGo(err)
	}
	pb, err := value.ToPrimitive(vm, b, value.HintNumber)
	if err != nil {
		return vm.raiseGo(err)
	}
	var result bool
	if pa.Tag() == value.String && pb.Tag() == value.String {
		sa, _ := value.StringContent(pa)
		sb, _ := value.StringContent(pb)
		switch ins.Op {
		case bytecode.OpLt:
			result = sa < sb
		case bytecode.OpGt:
			result = sa > sb
		case bytecode.OpLe:
			result = sa <= sb
		case bytecode.OpGe:
			result = sa >= sb
		}
	} else {
		na, err := value.ToNumber(vm, pa)
		if err != nil {
			return vm.raiseGo(err)
		}
		nb, err := value.ToNumber(vm, pb)
		if err != nil {
			return vm.raiseGo(err)
		}
		switch ins.Op {
		case bytecode.OpLt:
			result = na < nb
		case bytecode.OpGt:
			result = na > nb
		case bytecode.OpLe:
			result = na <= nb
		case bytecode.OpGe:
			result = na >= nb
		}
	}
	frame.Set(ins.Dst, value.Bool1(result))
	return SignalNone, value.Value{}, nil
}

func (vm *VM) execPropertyGet(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	key, err := vm.toKey(fp, frame, ins.B)
	if err != nil {
		return vm.raiseGo(err)
	}
	v, err := vm.propGet(vm.read(fp, frame, ins.A), key)
	if err != nil {
		return vm.raiseGo(err)
	}
	frame.Set(ins.Dst, v)
	return SignalNone, value.Value{}, nil
}

func (vm *VM) execPropertySet(fp *heap.Function, frame *scope.Frame, ins bytecode.Instruction) (Signal, value.Value, error) {
	key, err := vm.toKey(fp, frame, ins.A)
	if err != nil {
		return vm.raiseGo(err)
	}
	if err := vm.propSet(vm.read(fp, frame, ins.Dst), key, vm.read(fp, frame, ins.B)); err != nil {
		return vm.raiseGo(err)
	}
	return SignalNone, value.Value{}, nil
}

