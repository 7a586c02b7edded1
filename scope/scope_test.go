// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/value"
)

func TestMakeRoundTripsKindAndOffset(t *testing.T) {
	idx := Make(Closure, 17)
	require.Equal(t, Closure, idx.Kind())
	require.Equal(t, uint32(17), idx.Offset())
}

func TestInvalidIsDistinctFromAnyRealIndex(t *testing.T) {
	require.NotEqual(t, Invalid, Make(Local, 0))
	require.NotEqual(t, Invalid, Make(Constants, 0))
}

func TestKindStringNames(t *testing.T) {
	require.Equal(t, "local", Local.String())
	require.Equal(t, "arguments", Arguments.String())
	require.Equal(t, "closure", Closure.String())
	require.Equal(t, "global", Global.String())
	require.Equal(t, "constants", Constants.String())
}

func TestFrameGetSetLocal(t *testing.T) {
	f := &Frame{Slots: make([]value.Value, 2)}
	f.Set(Make(Local, 1), value.Number1(9))
	require.Equal(t, float64(9), f.Get(Make(Local, 1)).AsFloat64())
}

func TestFrameGetArgumentsOutOfRangeIsUndefined(t *testing.T) {
	f := &Frame{Args: []value.Value{value.Number1(1)}}
	require.Equal(t, value.Undefined, f.Get(Make(Arguments, 5)).Tag())
	require.Equal(t, float64(1), f.Get(Make(Arguments, 0)).AsFloat64())
}

func TestFrameCaptureSharesBackingSlot(t *testing.T) {
	f := &Frame{Slots: make([]value.Value, 1)}
	ptr := f.Capture(0)
	f.Set(Make(Local, 0), value.Number1(5))
	require.Equal(t, float64(5), ptr.AsFloat64())
}

func TestFrameSetClosureWritesThroughPointer(t *testing.T) {
	v := value.Number1(1)
	f := &Frame{Closure: []*value.Value{&v}}
	f.Set(Make(Closure, 0), value.Number1(2))
	require.Equal(t, float64(2), v.AsFloat64())
	require.Equal(t, float64(2), f.Get(Make(Closure, 0)).AsFloat64())
}

func TestPoolReusesBackingArray(t *testing.T) {
	p := NewPool()
	f1 := p.Get(4, 2)
	f1.Slots[0] = value.Number1(1)
	backing := f1.Slots
	p.Put(f1)

	f2 := p.Get(4, 1)
	require.Equal(t, value.Undefined, f2.Slots[0].Tag())
	require.Equal(t, cap(backing), cap(f2.Slots))
}

func TestPoolGetZeroFillsFreshFrame(t *testing.T) {
	p := NewPool()
	f := p.Get(3, 0)
	for _, v := range f.Slots {
		require.Equal(t, value.Undefined, v.Tag())
	}
}
