// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package codegen lowers an ast.Program (§1: "front end ... only their
// interfaces are specified" — parsing itself is an external collaborator's
// job) to the bytecode the interpreter dispatches (§4.6 Generator): scope
// index allocation, lvalue handling, closure-capture emission, try-block
// patching, and per-instruction (line, column) tracking for stack traces.
package codegen

import (
	"fmt"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

// Compiler lowers parsed programs into bytecode.FuncProto trees, interning
// string and regex constants into a single heap's arena. A Compiler is
// reusable across multiple Compile calls against the same heap, but (like
// the VM itself) is not safe for concurrent use (§5 Scheduling model).
type Compiler struct {
	heap *heap.Heap
}

// New creates a Compiler that interns constant-pool strings/regexes into h.
func New(h *heap.Heap) *Compiler {
	return &Compiler{heap: h}
}

// Compile lowers a top-level script or module to its FuncProto. source
// names the originating file/module for stack traces (§4.6 Error
// reporting); it is carried through unchanged to every nested FuncProto.
func (c *Compiler) Compile(prog *ast.Program, source string) (*bytecode.FuncProto, error) {
	fs := newFuncScope(c, nil, source)
	hoist(fs, prog.Body)
	if err := fs.lowerStmts(prog.Body); err != nil {
		return nil, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpStop}, prog.Pos())
	return fs.finish("", nil), nil
}

// Disassemble renders proto (and every nested function it owns) as a
// listing in the teacher's table style, wired to the CLI's -d flag (§11).
func Disassemble(proto *bytecode.FuncProto) string {
	var out string
	var walk func(p *bytecode.FuncProto, depth int)
	walk = func(p *bytecode.FuncProto, depth int) {
		out += p.String()
		for _, child := range p.Functions {
			walk(child, depth+1)
		}
	}
	walk(proto, 0)
	return out
}

// genError is a compile-time failure: a construct codegen refuses to
// lower, tagged with the source position that triggered it.
type genError struct {
	pos ast.Position
	msg string
}

func (e *genError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Col, e.msg)
}

func errf(pos ast.Position, format string, args ...interface{}) error {
	return &genError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// loopCtx tracks one enclosing iteration or switch statement's break/
// continue patch sites, and how many of the enclosing try/finally blocks
// (funcScope.finallyStack) must run their finally body before the jump
// actually leaves the construct (§4.6 Finally routing).
type loopCtx struct {
	label           string
	isSwitch        bool // switch bodies accept break but never continue
	breakPatches    []int
	continuePatches []int
	finallyDepth    int
}

// funcScope is the per-function compilation record: its instruction
// buffer, scope-index allocation counters for {local, closure} (arguments
// and constants are allocated structurally, not via a counter), and the
// closure-capture list threaded back to the parent scope on demand (§4.6
// Index allocation, Closures).
type funcScope struct {
	c      *Compiler
	parent *funcScope
	block  *bytecode.Block
	source string

	locals    map[string]uint32
	nextLocal uint32
	freeTemps []uint32

	closureSlots map[string]uint32
	nextClosure  uint32
	captures     []bytecode.CaptureDescriptor

	paramCount int
	isArrow    bool

	loops        []*loopCtx
	finallyStack []*ast.BlockStmt
}

func newFuncScope(c *Compiler, parent *funcScope, source string) *funcScope {
	return &funcScope{
		c:            c,
		parent:       parent,
		block:        bytecode.NewBlock(),
		source:       source,
		locals:       make(map[string]uint32),
		closureSlots: make(map[string]uint32),
	}
}

// declareLocal allocates a fresh named local slot, used for every var/let/
// const binding and every function parameter (parameters are copied out of
// the Arguments scope into a local at function entry, see lowerParams, so
// that reassigning a parameter works the same as reassigning any other
// local — Frame.Set has no Arguments case).
func (fs *funcScope) declareLocal(name string) scope.Index {
	off := fs.nextLocal
	fs.nextLocal++
	fs.locals[name] = off
	return scope.Make(scope.Local, off)
}

// temp allocates an unnamed scratch local, reusing a released slot from
// the free-list when one is available (§4.6 "free-list of temporaries").
func (fs *funcScope) temp() scope.Index {
	if n := len(fs.freeTemps); n > 0 {
		off := fs.freeTemps[n-1]
		fs.freeTemps = fs.freeTemps[:n-1]
		return scope.Make(scope.Local, off)
	}
	off := fs.nextLocal
	fs.nextLocal++
	return scope.Make(scope.Local, off)
}

// release returns a temporary's slot to the free-list. Only ever call this
// on indices returned by temp(), never on a declared binding's slot.
func (fs *funcScope) release(idx scope.Index) {
	if idx.Kind() == scope.Local {
		fs.freeTemps = append(fs.freeTemps, idx.Offset())
	}
}

func (fs *funcScope) emit(ins bytecode.Instruction, pos ast.Position) int {
	ins.Line = int32(pos.Line)
	ins.Col = int32(pos.Col)
	return fs.block.Emit(ins)
}

// resolve looks up name as a local or already-captured closure slot in fs,
// recursing into the parent scope and threading a new CaptureDescriptor
// back through every intervening scope on first capture (§4.6 Closures:
// "a capture descriptor list of (outer-slot, closure-slot) pairs").
func (fs *funcScope) resolve(name string) (scope.Index, bool) {
	if off, ok := fs.locals[name]; ok {
		return scope.Make(scope.Local, off), true
	}
	if off, ok := fs.closureSlots[name]; ok {
		return scope.Make(scope.Closure, off), true
	}
	if fs.parent == nil {
		return scope.Index(0), false
	}
	outer, ok := fs.parent.resolve(name)
	if !ok {
		return scope.Index(0), false
	}
	slot := fs.nextClosure
	fs.nextClosure++
	fs.closureSlots[name] = slot
	fs.captures = append(fs.captures, bytecode.CaptureDescriptor{
		OuterSlot:   outer.Offset(),
		ClosureSlot: slot,
		OuterKind:   outer.Kind(),
	})
	return scope.Make(scope.Closure, slot), true
}

// root returns the outermost enclosing function scope, the landing spot
// for sloppy-mode implicit global bindings (an assignment to a name that
// was never declared anywhere): this engine has no OpGlobalSet, so such a
// binding is hoisted to the top-level script's own locals rather than
// written through the host's Global object, the same way a var declared at
// top level already would be.
func (fs *funcScope) root() *funcScope {
	r := fs
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// resolveForWrite is resolve, but auto-declares an undeclared name at the
// root scope before resolving again (so the write lands on a real local,
// possibly captured back down through intervening closures).
func (fs *funcScope) resolveForWrite(name string) scope.Index {
	if idx, ok := fs.resolve(name); ok {
		return idx
	}
	fs.root().declareLocal(name)
	idx, _ := fs.resolve(name)
	return idx
}

// constant interns v under key (structural dedup, §4.6 Index allocation)
// and returns the Constants-kind scope.Index for it.
func (fs *funcScope) constant(key interface{}, v value.Value) scope.Index {
	return scope.Make(scope.Constants, uint32(fs.block.Constant(key, v)))
}

func (fs *funcScope) stringConstant(s string) scope.Index {
	return fs.constant("str:"+s, fs.c.heap.Strings.NewString(s))
}

func (fs *funcScope) numberConstant(n float64) scope.Index {
	return fs.constant(n, value.Number1(n))
}

// finish freezes the accumulated instruction buffer into a FuncProto.
func (fs *funcScope) finish(name string, paramNames []string) *bytecode.FuncProto {
	return fs.block.Freeze(name, int(fs.nextLocal), fs.paramCount, paramNames, fs.captures, fs.source)
}
