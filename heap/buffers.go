// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"encoding/binary"
	"math"

	"github.com/probechain/pscript/value"
)

// ArrayBuffer is a fixed-size, detachable byte region (§1 "arrays
// including typed arrays and array buffers"). Bytes live in ordinary Go
// memory rather than the Arena: buffers are typically short-lived
// working storage sized by the script, and giving each one its own slice
// lets Go's GC reclaim it the moment every TypedArray/DataView view
// drops it, without arena fragmentation bookkeeping.
type ArrayBuffer struct {
	*Object
	bytes    []byte
	detached bool
}

// NewArrayBuffer allocates a zero-filled buffer of the given byte length.
func NewArrayBuffer(proto *Object, length int) *ArrayBuffer {
	return &ArrayBuffer{Object: NewInstanceOf(proto, value.ArrayBuffer), bytes: make([]byte, length)}
}

// ValueKind satisfies value.Ref.
func (b *ArrayBuffer) ValueKind() value.Tag { return value.ArrayBuffer }

// Len reports the buffer's byte length (0 once detached).
func (b *ArrayBuffer) Len() int {
	if b.detached {
		return 0
	}
	return len(b.bytes)
}

// Detach severs every view's backing storage (ArrayBuffer.prototype.transfer
// / postMessage semantics). Afterwards a typed-array read yields
// undefined, a typed-array write is dropped, and a DataView access
// reports ok=false; no TypeError is raised here.
func (b *ArrayBuffer) Detach() { b.detached = true; b.bytes = nil }

// Detached reports whether Detach has been called.
func (b *ArrayBuffer) Detached() bool { return b.detached }

// Slice returns the live backing bytes, or nil when detached.
func (b *ArrayBuffer) Slice() []byte {
	if b.detached {
		return nil
	}
	return b.bytes
}

// ElementKind names a typed array's element format.
type ElementKind uint8

const (
	Int8Kind ElementKind = iota
	Uint8Kind
	Uint8ClampedKind
	Int16Kind
	Uint16Kind
	Int32Kind
	Uint32Kind
	Float32Kind
	Float64Kind
)

// ElementSize returns the byte width of one element of kind k.
func ElementSize(k ElementKind) int {
	switch k {
	case Int8Kind, Uint8Kind, Uint8ClampedKind:
		return 1
	case Int16Kind, Uint16Kind:
		return 2
	case Int32Kind, Uint32Kind, Float32Kind:
		return 4
	case Float64Kind:
		return 8
	default:
		return 1
	}
}

// TypedArray is a fixed-arity, fixed-element-kind view over an
// ArrayBuffer (§1 typed arrays).
type TypedArray struct {
	*Object
	Buffer     *ArrayBuffer
	ByteOffset int
	Length     int // element count
	Kind       ElementKind
}

// NewTypedArray creates a view of length elements of kind k starting at
// byteOffset within buf. The caller is responsible for bounds-checking
// byteOffset+length*ElementSize(k) <= buf.Len() before calling (mirrors
// the generator's ARRAY-with-ctor-flag contract: bounds are validated at
// the call site that knows the source AST node for error reporting).
func NewTypedArray(proto *Object, buf *ArrayBuffer, byteOffset, length int, kind ElementKind) *TypedArray {
	return &TypedArray{
		Object:     NewInstanceOf(proto, value.TypedArray),
		Buffer:     buf,
		ByteOffset: byteOffset,
		Length:     length,
		Kind:       kind,
	}
}

// ValueKind satisfies value.Ref.
func (t *TypedArray) ValueKind() value.Tag { return value.TypedArray }

// Get reads element i as a Number value, or undefined if out of range or
// the backing buffer has been detached.
func (t *TypedArray) Get(i int) value.Value {
	if t.Buffer.Detached() || i < 0 || i >= t.Length {
		return value.Undef()
	}
	off := t.ByteOffset + i*ElementSize(t.Kind)
	bs := t.Buffer.Slice()
	switch t.Kind {
	case Int8Kind:
		return value.Number1(float64(int8(bs[off])))
	case Uint8Kind, Uint8ClampedKind:
		return value.Number1(float64(bs[off]))
	case Int16Kind:
		return value.Number1(float64(int16(binary.LittleEndian.Uint16(bs[off:]))))
	case Uint16Kind:
		return value.Number1(float64(binary.LittleEndian.Uint16(bs[off:])))
	case Int32Kind:
		return value.Number1(float64(int32(binary.LittleEndian.Uint32(bs[off:]))))
	case Uint32Kind:
		return value.Number1(float64(binary.LittleEndian.Uint32(bs[off:])))
	case Float32Kind:
		return value.Number1(float64(math.Float32frombits(binary.LittleEndian.Uint32(bs[off:]))))
	case Float64Kind:
		return value.Number1(math.Float64frombits(binary.LittleEndian.Uint64(bs[off:])))
	default:
		return value.Undef()
	}
}

// Set writes element i from a Number value, clamping/truncating per the
// element kind's coercion (Uint8Clamped saturates instead of wrapping).
// Writes past the end or against a detached buffer are silently ignored,
// matching the [[Set]] internal method for integer-indexed exotic
// objects with an out-of-range index.
func (t *TypedArray) Set(i int, n float64) {
	if t.Buffer.Detached() || i < 0 || i >= t.Length {
		return
	}
	off := t.ByteOffset + i*ElementSize(t.Kind)
	bs := t.Buffer.Slice()
	switch t.Kind {
	case Int8Kind:
		bs[off] = byte(toInt32Trunc(n))
	case Uint8Kind:
		bs[off] = byte(toInt32Trunc(n))
	case Uint8ClampedKind:
		bs[off] = clampUint8(n)
	case Int16Kind, Uint16Kind:
		binary.LittleEndian.PutUint16(bs[off:], uint16(toInt32Trunc(n)))
	case Int32Kind, Uint32Kind:
		binary.LittleEndian.PutUint32(bs[off:], uint32(toInt32Trunc(n)))
	case Float32Kind:
		binary.LittleEndian.PutUint32(bs[off:], math.Float32bits(float32(n)))
	case Float64Kind:
		binary.LittleEndian.PutUint64(bs[off:], math.Float64bits(n))
	}
}

func toInt32Trunc(n float64) int32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int32(int64(n))
}

func clampUint8(n float64) byte {
	if math.IsNaN(n) || n <= 0 {
		return 0
	}
	if n >= 255 {
		return 255
	}
	return byte(math.Round(n))
}

// DataView is an explicit-endianness byte-level view over an
// ArrayBuffer (§1 "typed arrays and array buffers").
type DataView struct {
	*Object
	Buffer     *ArrayBuffer
	ByteOffset int
	ByteLength int
}

// NewDataView creates a view of byteLength bytes starting at byteOffset.
func NewDataView(proto *Object, buf *ArrayBuffer, byteOffset, byteLength int) *DataView {
	return &DataView{Object: NewInstanceOf(proto, value.DataView), Buffer: buf, ByteOffset: byteOffset, ByteLength: byteLength}
}

// ValueKind satisfies value.Ref.
func (d *DataView) ValueKind() value.Tag { return value.DataView }

func (d *DataView) order(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// GetUint8 reads one byte at offset, returning ok=false on an
// out-of-range or detached read.
func (d *DataView) GetUint8(offset int) (byte, bool) {
	if d.Buffer.Detached() || offset < 0 || offset >= d.ByteLength {
		return 0, false
	}
	return d.Buffer.Slice()[d.ByteOffset+offset], true
}

// GetUint32 reads four bytes at offset in the requested byte order.
func (d *DataView) GetUint32(offset int, littleEndian bool) (uint32, bool) {
	if d.Buffer.Detached() || offset < 0 || offset+4 > d.ByteLength {
		return 0, false
	}
	return d.order(littleEndian).Uint32(d.Buffer.Slice()[d.ByteOffset+offset:]), true
}

// SetUint32 writes four bytes at offset in the requested byte order.
func (d *DataView) SetUint32(offset int, v uint32, littleEndian bool) bool {
	if d.Buffer.Detached() || offset < 0 || offset+4 > d.ByteLength {
		return false
	}
	d.order(littleEndian).PutUint32(d.Buffer.Slice()[d.ByteOffset+offset:], v)
	return true
}
