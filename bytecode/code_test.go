// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

func TestBlockEmitAndPatch(t *testing.T) {
	b := NewBlock()
	at := b.Emit(Instruction{Op: OpJump})
	require.Equal(t, 0, at)
	require.Equal(t, 1, b.Len())

	b.Patch(at, 5)
	require.Equal(t, int32(5), b.code[at].Imm)
}

func TestBlockConstantDedupesByKey(t *testing.T) {
	b := NewBlock()
	i1 := b.Constant("str:a", value.Number1(1))
	i2 := b.Constant("str:a", value.Number1(1))
	i3 := b.Constant("str:b", value.Number1(2))
	require.Equal(t, i1, i2)
	require.NotEqual(t, i1, i3)
}

func TestBlockFunctionAssignsSequentialIndices(t *testing.T) {
	b := NewBlock()
	i1 := b.Function(&FuncProto{Name: "a"})
	i2 := b.Function(&FuncProto{Name: "b"})
	require.Equal(t, 0, i1)
	require.Equal(t, 1, i2)
}

func TestFreezeProducesFuncProto(t *testing.T) {
	b := NewBlock()
	b.Emit(Instruction{Op: OpReturn, A: scope.Make(scope.Local, 0)})
	proto := b.Freeze("f", 1, 0, []string{"x"}, nil, "<test>")
	require.Equal(t, "f", proto.Name)
	require.Len(t, proto.Code, 1)
	require.Equal(t, 1, proto.NumLocals)
	require.Equal(t, []string{"x"}, proto.ParamNames)
	require.Equal(t, "<test>", proto.Source)
}

func TestFuncProtoStringRendersDisassembly(t *testing.T) {
	proto := &FuncProto{
		Name:      "add",
		NumLocals: 1,
		Code: []Instruction{
			{Op: OpAdd, Dst: scope.Make(scope.Local, 0), A: scope.Make(scope.Constants, 0), B: scope.Make(scope.Constants, 1)},
			{Op: OpReturn, A: scope.Make(scope.Local, 0)},
		},
	}
	out := proto.String()
	require.Contains(t, out, "function add")
	require.Contains(t, out, "ADD")
}

func TestFuncProtoStringUsesAnonymousPlaceholder(t *testing.T) {
	proto := &FuncProto{Code: []Instruction{{Op: OpStop}}}
	require.Contains(t, proto.String(), "<anonymous>")
}
