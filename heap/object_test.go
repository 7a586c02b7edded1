// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

func TestNewObjectIsExtensibleWithEmptyTable(t *testing.T) {
	o := NewObject(nil)
	require.True(t, o.Extensible())
	require.Nil(t, o.Proto())
	require.Equal(t, 0, o.OwnTable().Len())
}

func TestSetProtoRejectsDirectSelfCycle(t *testing.T) {
	o := NewObject(nil)
	err := o.SetProto(o)
	require.Error(t, err)
}

func TestSetProtoAllowsIndirectCycle(t *testing.T) {
	a := NewObject(nil)
	b := NewObject(a)
	require.NoError(t, a.SetProto(b))
	require.Equal(t, b, a.Proto())
	require.Equal(t, a, b.Proto())
}

func TestSetExtensible(t *testing.T) {
	o := NewObject(nil)
	o.SetExtensible(false)
	require.False(t, o.Extensible())
	o.SetExtensible(true)
	require.True(t, o.Extensible())
}

func TestMarkErrorData(t *testing.T) {
	o := NewObject(nil)
	require.False(t, o.IsErrorData())
	o.MarkErrorData()
	require.True(t, o.IsErrorData())
}

func TestCloneShapeAliasesUntilFirstWrite(t *testing.T) {
	template := NewPrototypeObject(nil)
	template.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "x"}, Value: value.Number1(1),
	})

	inst := CloneShape(template)
	require.True(t, inst.OwnTable().Shared())

	d, ok := inst.OwnTable().Find(value.PropertyKey{Str: "x"})
	require.True(t, ok)
	require.Equal(t, float64(1), d.Value.AsFloat64())

	inst.MutableOwn().Replace(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "x"}, Value: value.Number1(2),
	})
	require.False(t, inst.OwnTable().Shared())

	templateVal, _ := template.OwnTable().Find(value.PropertyKey{Str: "x"})
	require.Equal(t, float64(1), templateVal.Value.AsFloat64())
}

func TestMutableOwnClonesSharedTableOnlyOnce(t *testing.T) {
	template := NewPrototypeObject(nil)
	inst := CloneShape(template)

	first := inst.MutableOwn()
	second := inst.MutableOwn()
	require.Same(t, first, second)
}
