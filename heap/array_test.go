// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/value"
)

func TestNewArrayZeroFillsToUndefined(t *testing.T) {
	a := NewArray(nil, 3)
	require.Equal(t, 3, a.Len())
	require.True(t, a.IsFast())
	for i := 0; i < 3; i++ {
		require.Equal(t, value.Undefined, a.Get(i).Tag())
	}
}

func TestArrayGetOutOfRangeReturnsUndefined(t *testing.T) {
	a := NewArray(nil, 2)
	require.Equal(t, value.Undefined, a.Get(5).Tag())
	require.Equal(t, value.Undefined, a.Get(-1).Tag())
}

func TestArraySetGrowsLengthAndZeroFillsGap(t *testing.T) {
	a := NewArray(nil, 1)
	a.Set(3, value.Number1(9))
	require.Equal(t, 4, a.Len())
	require.Equal(t, float64(9), a.Get(3).AsFloat64())
	require.Equal(t, value.Undefined, a.Get(1).Tag())
	require.Equal(t, value.Undefined, a.Get(2).Tag())
}

func TestArraySetWithinLengthPreservesLength(t *testing.T) {
	a := NewArray(nil, 3)
	a.Set(1, value.Number1(5))
	require.Equal(t, 3, a.Len())
	require.Equal(t, float64(5), a.Get(1).AsFloat64())
}

func TestSetLengthTruncatesAndGrows(t *testing.T) {
	a := NewArray(nil, 5)
	a.Set(4, value.Number1(1))
	a.SetLength(2)
	require.Equal(t, 2, a.Len())
	a.SetLength(4)
	require.Equal(t, 4, a.Len())
	require.Equal(t, value.Undefined, a.Get(3).Tag())
}

func TestPushAndPop(t *testing.T) {
	a := NewArray(nil, 0)
	n := a.Push(value.Number1(1))
	require.Equal(t, 1, n)
	a.Push(value.Number1(2))
	require.Equal(t, 2, a.Len())

	v := a.Pop()
	require.Equal(t, float64(2), v.AsFloat64())
	require.Equal(t, 1, a.Len())
}

func TestPopOnEmptyArrayReturnsUndefined(t *testing.T) {
	a := NewArray(nil, 0)
	require.Equal(t, value.Undefined, a.Pop().Tag())
	require.Equal(t, 0, a.Len())
}

func TestUnshiftAndShift(t *testing.T) {
	a := NewArray(nil, 0)
	a.Push(value.Number1(1))
	a.Push(value.Number1(2))
	a.Unshift(value.Number1(0))
	require.Equal(t, 3, a.Len())
	require.Equal(t, float64(0), a.Get(0).AsFloat64())
	require.Equal(t, float64(1), a.Get(1).AsFloat64())

	v := a.Shift()
	require.Equal(t, float64(0), v.AsFloat64())
	require.Equal(t, 2, a.Len())
	require.Equal(t, float64(1), a.Get(0).AsFloat64())
}

func TestFallBackClearsFastFlag(t *testing.T) {
	a := NewArray(nil, 1)
	require.True(t, a.IsFast())
	a.FallBack()
	require.False(t, a.IsFast())
}
