// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/value"
)

func TestNewStringUsesShortFormWhenItFits(t *testing.T) {
	st := NewStringTable(8)
	v := st.NewString("short")
	require.Nil(t, v.Ref())
	s, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, "short", s)
}

func TestNewStringInternsLongForm(t *testing.T) {
	st := NewStringTable(8)
	long := strings.Repeat("x", 20)
	v := st.NewString(long)
	require.NotNil(t, v.Ref())
	s, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, long, s)
}

func TestInternReturnsSameInstanceForEqualContent(t *testing.T) {
	st := NewStringTable(8)
	long := strings.Repeat("y", 20)
	a := st.Intern(long)
	b := st.Intern(long)
	require.Same(t, a, b)
}

func TestUTF16UnitsCountsSurrogatePairs(t *testing.T) {
	units := UTF16Units("a\U0001F600")
	require.Len(t, units, 3)
}
