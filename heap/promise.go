// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import "github.com/probechain/pscript/value"

// PromiseState names the three states of §4.5 Await/§5 Suspension.
type PromiseState uint8

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

// Reaction is one then/catch callback pair registered against a Promise,
// queued as a microtask once the promise settles.
type Reaction struct {
	OnFulfilled *Function
	OnRejected  *Function
	Result      *Promise // the promise returned by .then, settled by the reaction
}

// Promise is the heap form of a promise value. Settling fires every
// queued Reaction as a microtask (host event loop drains microtasks to
// completion between macro-events, §5 Ordering) rather than synchronously,
// matching the await desugaring's "AGAIN ... resume via the thunk"
// protocol.
type Promise struct {
	*Object
	State     PromiseState
	Value     value.Value // fulfillment value or rejection reason
	reactions []Reaction
	handled   bool // set when the first rejection handler is attached, §11 unhandled-rejection tracking
}

// NewPromise creates a pending promise.
func NewPromise(proto *Object) *Promise {
	return &Promise{Object: NewInstanceOf(proto, value.Promise), State: Pending}
}

// ValueKind satisfies value.Ref.
func (p *Promise) ValueKind() value.Tag { return value.Promise }

// Resolve settles the promise as fulfilled with v, unless already
// settled (a promise settles at most once). Resolving with a thenable
// value is the caller's responsibility to detect before calling Resolve
// (the interpreter's AWAIT path always wraps via Promise.resolve first).
func (p *Promise) Resolve(v value.Value) []Reaction {
	if p.State != Pending {
		return nil
	}
	p.State = Fulfilled
	p.Value = v
	fired := p.reactions
	p.reactions = nil
	return fired
}

// Reject settles the promise as rejected with reason.
func (p *Promise) Reject(reason value.Value) []Reaction {
	if p.State != Pending {
		return nil
	}
	p.State = Rejected
	p.Value = reason
	fired := p.reactions
	p.reactions = nil
	return fired
}

// Then records a reaction on a pending promise. On a promise that has
// already settled it stores nothing and returns nothing; the caller
// queues the reaction as a microtask itself, so .then always completes
// asynchronously.
func (p *Promise) Then(onFulfilled, onRejected *Function, result *Promise) {
	if onRejected != nil {
		p.handled = true
	}
	r := Reaction{OnFulfilled: onFulfilled, OnRejected: onRejected, Result: result}
	if p.State == Pending {
		p.reactions = append(p.reactions, r)
		return
	}
	// Settled already: nothing is recorded here; interp's promiseThen
	// queues the reaction on the VM's microtask queue itself.
}

// Handled reports whether a rejection handler was ever attached, used by
// the unhandled-rejection tracker (§11) to decide whether a settle-as-
// rejected promise with no reactions should be reported.
func (p *Promise) Handled() bool { return p.handled }
