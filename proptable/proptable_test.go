// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package proptable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/value"
)

func key(s string) value.PropertyKey { return value.PropertyKey{Str: s} }

func TestInsertAndFind(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("a"), Value: value.Number1(1)})
	d, ok := tbl.Find(key("a"))
	require.True(t, ok)
	require.Equal(t, float64(1), d.Value.AsFloat64())

	_, ok = tbl.Find(key("missing"))
	require.False(t, ok)
}

func TestInsertPanicsOnDuplicateKey(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("a")})
	require.Panics(t, func() {
		tbl.Insert(Descriptor{Kind: KindData, Key: key("a")})
	})
}

func TestReplacePreservesOrderButUpdatesValue(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("a"), Value: value.Number1(1), Enumerable: true})
	tbl.Insert(Descriptor{Kind: KindData, Key: key("b"), Value: value.Number1(2), Enumerable: true})
	tbl.Replace(Descriptor{Kind: KindData, Key: key("a"), Value: value.Number1(9), Enumerable: true})

	got := tbl.Iterate(true)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Key.Str)
	require.Equal(t, float64(9), got[0].Value.AsFloat64())
	require.Equal(t, "b", got[1].Key.Str)
}

func TestReplaceOnAbsentKeyInserts(t *testing.T) {
	tbl := New()
	tbl.Replace(Descriptor{Kind: KindData, Key: key("z"), Value: value.Number1(1)})
	d, ok := tbl.Find(key("z"))
	require.True(t, ok)
	require.Equal(t, float64(1), d.Value.AsFloat64())
}

func TestDeleteRemovesEntryAndIsIdempotent(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("a")})
	require.True(t, tbl.Delete(key("a")))
	require.False(t, tbl.Delete(key("a")))
	_, ok := tbl.Find(key("a"))
	require.False(t, ok)
	require.Equal(t, 0, tbl.Len())
}

func TestIterateSkipsWhiteoutsAndNonEnumerable(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("visible"), Enumerable: true})
	tbl.Insert(Descriptor{Kind: KindData, Key: key("hidden"), Enumerable: false})
	tbl.Insert(Descriptor{Kind: KindWhiteout, Key: key("shadowed")})

	enumOnly := tbl.Iterate(true)
	require.Len(t, enumOnly, 1)
	require.Equal(t, "visible", enumOnly[0].Key.Str)

	all := tbl.Iterate(false)
	require.Len(t, all, 2)
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := New()
	tbl.Insert(Descriptor{Kind: KindData, Key: key("a"), Value: value.Number1(1), Enumerable: true})

	clone := tbl.Clone()
	clone.Replace(Descriptor{Kind: KindData, Key: key("a"), Value: value.Number1(2), Enumerable: true})

	orig, _ := tbl.Find(key("a"))
	require.Equal(t, float64(1), orig.Value.AsFloat64())
	cloned, _ := clone.Find(key("a"))
	require.Equal(t, float64(2), cloned.Value.AsFloat64())
	require.False(t, clone.Shared())
}

func TestMarkSharedAndShared(t *testing.T) {
	tbl := New()
	require.False(t, tbl.Shared())
	tbl.MarkShared()
	require.True(t, tbl.Shared())
}
