// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package interp implements the dispatch loop of §4.5: a switch over a
// one-byte opcode, call protocol (native and scripted), exception
// unwinding via per-frame catch chains, finally routing, and the
// await/AGAIN suspension protocol.
package interp

import "github.com/pkg/errors"

// ErrHalted names a VM that already returned from its top frame; no
// dispatch path in this package returns it.
var ErrHalted = errors.New("interp: vm already halted")

// ErrInvalidOpcode is returned when the fetched opcode is out of range,
// a defect in the generator rather than a user-triggerable fault.
var ErrInvalidOpcode = errors.New("interp: invalid opcode")

// ErrStackUnderflow names a catch-chain / frame stack underflow; no
// dispatch path in this package returns it.
var ErrStackUnderflow = errors.New("interp: frame stack underflow")

// Signal distinguishes why run/exec returned control to the host (§5
// Suspension points).
type Signal uint8

const (
	// SignalNone: exec executed one instruction and dispatch should
	// continue.
	SignalNone Signal = iota
	// SignalAgain: the top frame suspended on AWAIT or a native callee
	// requesting AGAIN; the host must resume it later via the
	// registered thunk.
	SignalAgain
	// SignalReturn: the top frame returned (STOP/RETURN with no caller).
	SignalReturn
	// SignalError: an uncaught exception propagated past the top frame;
	// vm.exception holds the thrown value.
	SignalError
)
