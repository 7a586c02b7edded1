// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package heap implements the per-VM arena-backed allocator and every
// heap-resident value kind (§3 Heap row): strings, objects, arrays, array
// buffers, typed arrays, regexps, dates, functions, promises, symbols and
// externals. Nothing in this package is garbage collected: everything
// lives until the owning VM is torn down (§3 Lifecycle), matching the
// source engine's no-per-value-GC design.
package heap

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
)

// DefaultArenaBytes is the default byte budget for a VM's arena (4 MiB),
// grounded on the source's Memory default limit and reused verbatim.
const DefaultArenaBytes = 4 * 1024 * 1024

const minAllocSize uint64 = 8

// ErrOutOfMemory is returned when an allocation would exceed the arena's
// byte budget — the engine's MemoryError (§7).
var ErrOutOfMemory = fmt.Errorf("heap: out of memory")

// ErrInvalidAddress is returned when a read/write targets an address
// outside any live allocation.
var ErrInvalidAddress = fmt.Errorf("heap: invalid memory address")

// ErrDoubleFree is returned when Free targets an address that was not
// returned by Alloc, or was already freed.
var ErrDoubleFree = fmt.Errorf("heap: double free")

type allocation struct {
	base uint64
	size uint64
}

func (a allocation) end() uint64 { return a.base + a.size }

// Arena is the per-VM byte-addressable memory pool backing ArrayBuffer
// storage and the oversized-frame fallback (§3 Lifecycle, §4.4). It keeps
// a flat byte slice as the backing store (grown lazily) plus a bounds
// table of live allocations, and additionally mirrors recently-touched
// regions into a fastcache.Cache so that repeated small reads/writes
// (typed-array element access in a hot loop) avoid reslicing the backing
// array on every call — the arena is the allocator of record, the cache
// is purely an acceleration layer invalidated on Free.
type Arena struct {
	data    []byte
	allocs  map[uint64]allocation
	limit   uint64
	used    uint64
	nextPtr uint64

	hot *fastcache.Cache // caches small reads keyed by "base:size"
}

// NewArena creates an Arena with the given byte limit. A limit of 0 uses
// DefaultArenaBytes.
func NewArena(limit uint64) *Arena {
	if limit == 0 {
		limit = DefaultArenaBytes
	}
	return &Arena{
		data:   make([]byte, 0, 4096),
		allocs: make(map[uint64]allocation),
		limit:  limit,
		hot:    fastcache.New(64 * 1024),
	}
}

// Alloc reserves size bytes and returns the base address.
func (a *Arena) Alloc(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("heap: Alloc called with zero size")
	}
	aligned := roundUp(size, minAllocSize)
	if a.used+aligned > a.limit {
		return 0, ErrOutOfMemory
	}
	base := a.nextPtr
	end := base + aligned
	if uint64(len(a.data)) < end {
		newCap := max64(end, uint64(cap(a.data))*2)
		if newCap > a.limit*2 {
			newCap = a.limit * 2
		}
		grown := make([]byte, end, newCap)
		copy(grown, a.data)
		a.data = grown
	}
	for i := base; i < end; i++ {
		a.data[i] = 0
	}
	a.allocs[base] = allocation{base: base, size: aligned}
	a.used += aligned
	a.nextPtr = end
	return base, nil
}

// Free releases the allocation at base.
func (a *Arena) Free(base uint64) error {
	al, ok := a.allocs[base]
	if !ok {
		return ErrDoubleFree
	}
	for i := al.base; i < al.end(); i++ {
		a.data[i] = 0xCC
	}
	a.used -= al.size
	delete(a.allocs, base)
	a.hot.Reset()
	return nil
}

// ReadSlice returns the size bytes at addr, served from the hot cache when
// a prior read of the same region is still live there. The returned slice
// is a copy the caller may retain freely (unlike a slice into the backing
// array, which a subsequent Alloc could reallocate out from under it).
func (a *Arena) ReadSlice(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if err := a.checkAccess(addr, size); err != nil {
		return nil, err
	}
	key := cacheKey(addr, size)
	if cached, ok := a.hot.HasGet(nil, key); ok {
		return cached, nil
	}
	out := make([]byte, size)
	copy(out, a.data[addr:addr+size])
	a.hot.Set(key, out)
	return out, nil
}

// WriteSlice copies data into the arena at addr.
func (a *Arena) WriteSlice(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := a.checkAccess(addr, uint64(len(data))); err != nil {
		return err
	}
	copy(a.data[addr:], data)
	a.hot.Del(cacheKey(addr, uint64(len(data))))
	return nil
}

// Used reports the number of currently-allocated bytes.
func (a *Arena) Used() uint64 { return a.used }

// Limit reports the configured byte budget.
func (a *Arena) Limit() uint64 { return a.limit }

func (a *Arena) checkAccess(addr, size uint64) error {
	for _, al := range a.allocs {
		if addr >= al.base && addr+size <= al.end() {
			return nil
		}
	}
	return fmt.Errorf("%w: addr=0x%x size=%d", ErrInvalidAddress, addr, size)
}

func cacheKey(addr, size uint64) []byte {
	return []byte(fmt.Sprintf("%d:%d", addr, size))
}

func roundUp(n, align uint64) uint64 { return (n + align - 1) &^ (align - 1) }

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
