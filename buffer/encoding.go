// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package buffer implements the Buffer encode/decode surface supplemented
// from the njs/QuickJS original (`njs_buffer.c`, SPEC_FULL.md §11): the
// utf8/hex/base64/base64url round trip that §8's testable properties
// require, plus the UTF-8 ⟷ UTF-16 code-unit transcoding JS string
// semantics (`charCodeAt`, `codePointAt`, `.length`) are built on.
package buffer

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Encoding names one of Buffer's supported text encodings.
type Encoding string

const (
	UTF8      Encoding = "utf8"
	Hex       Encoding = "hex"
	Base64    Encoding = "base64"
	Base64URL Encoding = "base64url"
)

// ParseEncoding normalizes a user-supplied encoding name, defaulting to
// utf8 the way Buffer.prototype.toString(encoding) does for an omitted
// argument.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case "", UTF8:
		return UTF8, nil
	case Hex:
		return Hex, nil
	case Base64:
		return Base64, nil
	case Base64URL:
		return Base64URL, nil
	}
	return "", fmt.Errorf("buffer: unknown encoding %q", name)
}

// Encode renders data as text in the given encoding (Buffer.prototype.
// toString / Buffer.prototype.toJSON's underlying string view).
func Encode(data []byte, enc Encoding) (string, error) {
	switch enc {
	case UTF8:
		return string(data), nil
	case Hex:
		return hex.EncodeToString(data), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(data), nil
	case Base64URL:
		return base64.RawURLEncoding.EncodeToString(data), nil
	}
	return "", fmt.Errorf("buffer: unknown encoding %q", enc)
}

// Decode parses text in the given encoding back to bytes (Buffer.from(s,
// encoding)). The round trip Decode(Encode(b, e), e) == b, e in
// {utf8,hex,base64,base64url} is the law exercised by §8's round-trip
// tests.
func Decode(s string, enc Encoding) ([]byte, error) {
	switch enc {
	case UTF8:
		return []byte(s), nil
	case Hex:
		return hex.DecodeString(s)
	case Base64:
		return base64.StdEncoding.DecodeString(s)
	case Base64URL:
		return base64.RawURLEncoding.DecodeString(s)
	}
	return nil, fmt.Errorf("buffer: unknown encoding %q", enc)
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ToUTF16 renders s (a Go UTF-8 string) as little-endian UTF-16 code
// units, the representation `heap` String's charCodeAt/codePointAt/
// .length view is defined against (§10: JS strings are conceptually
// UTF-16).
func ToUTF16(s string) ([]byte, error) {
	return utf16LE.NewEncoder().Bytes([]byte(s))
}

// FromUTF16 is ToUTF16's inverse.
func FromUTF16(b []byte) (string, error) {
	out, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
