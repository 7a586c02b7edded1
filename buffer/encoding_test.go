// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	data := []byte("hello, \x00\x01\xffworld")
	for _, enc := range []Encoding{UTF8, Hex, Base64, Base64URL} {
		if enc == UTF8 {
			continue // utf8 is a plain string conversion; only the codec encodings are exercised here
		}
		s, err := Encode(data, enc)
		require.NoError(t, err)
		back, err := Decode(s, enc)
		require.NoError(t, err)
		require.Equal(t, data, back, "round trip through %s", enc)
	}
}

func TestParseEncodingDefault(t *testing.T) {
	enc, err := ParseEncoding("")
	require.NoError(t, err)
	require.Equal(t, UTF8, enc)
}

func TestParseEncodingUnknown(t *testing.T) {
	_, err := ParseEncoding("latin1")
	require.Error(t, err)
}

func TestUTF16RoundTrip(t *testing.T) {
	s := "héllo 世界"
	b, err := ToUTF16(s)
	require.NoError(t, err)
	back, err := FromUTF16(b)
	require.NoError(t, err)
	require.Equal(t, s, back)
}

func TestBase64URLHasNoPadding(t *testing.T) {
	s, err := Encode([]byte("a"), Base64URL)
	require.NoError(t, err)
	require.NotContains(t, s, "=")
}
