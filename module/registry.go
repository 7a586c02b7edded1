// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package module implements the module record and registry of §3/§10:
// resolving an import specifier to a namespace object, compiling and
// evaluating its body exactly once even under a re-entrant import that
// occurs while the module's own first evaluation is still in flight
// (an import cycle), and caching the result for subsequent imports.
package module

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/codegen"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/interp"
	"github.com/probechain/pscript/value"
)

// Source is a resolved module: its parsed body and a stable name used
// for stack traces and re-evaluation diagnostics. Parsing itself is an
// external collaborator's job (§1) — the registry only ever receives an
// already-parsed Program.
type Source struct {
	Program *ast.Program
	Name    string
}

// Resolver fetches and parses the module named by specifier. A host
// typically backs this with a filesystem or bundle lookup plus whatever
// front end it supplies.
type Resolver func(specifier string) (*Source, error)

// Registry is installed as a VM's ModuleLoader (interp.VM.ModuleLoader)
// and backs every IMPORT instruction the dispatch loop executes.
type Registry struct {
	vm      *interp.VM
	resolve Resolver
	group   singleflight.Group

	cache   map[string]value.Value
	pending map[string]bool
}

// New creates a Registry over vm, resolving specifiers with resolve, and
// wires it as vm's module loader.
func New(vm *interp.VM, resolve Resolver) *Registry {
	r := &Registry{
		vm:      vm,
		resolve: resolve,
		cache:   make(map[string]value.Value),
		pending: make(map[string]bool),
	}
	vm.ModuleLoader = r.Load
	return r
}

// Load resolves specifier to its namespace object, compiling and
// evaluating the module body on first use only (§3 Module record:
// "a module's evaluator function runs exactly once").
func (r *Registry) Load(specifier string) (value.Value, error) {
	if ns, ok := r.cache[specifier]; ok {
		return ns, nil
	}
	if r.pending[specifier] {
		// A cyclic import: the module currently being evaluated imports
		// (directly or transitively) itself. Per §3, the importer
		// observes the in-progress namespace rather than re-entering
		// the module body a second time; since exports are produced as
		// a single object only once the body finishes, the partial view
		// available mid-cycle is undefined (matching spec.md's own
		// Open Question on cyclic imports) — here it is simply
		// undefined rather than a partially built record.
		return value.Undef(), nil
	}
	out, err, _ := r.group.Do(specifier, func() (interface{}, error) {
		return r.evaluate(specifier)
	})
	if err != nil {
		return value.Value{}, err
	}
	return out.(value.Value), nil
}

func (r *Registry) evaluate(specifier string) (value.Value, error) {
	src, err := r.resolve(specifier)
	if err != nil {
		return value.Value{}, fmt.Errorf("module %q: %w", specifier, err)
	}

	prog := appendNamespaceReturn(src.Program)
	proto, err := codegen.New(r.vm.Heap).Compile(prog, src.Name)
	if err != nil {
		return value.Value{}, fmt.Errorf("module %q: %w", specifier, err)
	}

	r.pending[specifier] = true
	defer delete(r.pending, specifier)

	fn := heap.NewScriptedFunction(r.vm.Heap.FunctionProto, proto, nil)
	ns, err := r.vm.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), nil)
	if err != nil {
		return value.Value{}, err
	}
	r.cache[specifier] = ns
	return ns, nil
}

// appendNamespaceReturn rewrites a module's top-level statement list so
// its last statement returns an object literal of every exported
// binding — a static, compile-time desugaring of ESM export bindings
// into a single namespace value, since the bytecode format itself has
// no export-table instruction (§3 Module record). The original
// Program's Body slice is left untouched; a new one is built for the
// synthesized return.
func appendNamespaceReturn(prog *ast.Program) *ast.Program {
	props := collectExports(prog.Body)
	body := make([]ast.Statement, len(prog.Body), len(prog.Body)+1)
	copy(body, prog.Body)
	body = append(body, &ast.ReturnStmt{
		Position: prog.Position,
		Arg:      &ast.ObjectLiteral{Position: prog.Position, Props: props},
	})
	return &ast.Program{Position: prog.Position, Body: body, IsModule: prog.IsModule}
}

func collectExports(body []ast.Statement) []ast.ObjectProp {
	var props []ast.ObjectProp
	addProp := func(name string, val ast.Expression, pos ast.Position) {
		props = append(props, ast.ObjectProp{
			Position: pos,
			Kind:     ast.PropData,
			Key:      &ast.Ident{Position: pos, Name: name},
			Value:    val,
		})
	}
	for _, stmt := range body {
		exp, ok := stmt.(*ast.ExportStmt)
		if !ok {
			continue
		}
		pos := exp.Position
		if exp.Default != nil {
			addProp("default", exp.Default, pos)
		}
		for exported, local := range exp.Named {
			addProp(exported, &ast.Ident{Position: pos, Name: local}, pos)
		}
		switch d := exp.Decl.(type) {
		case *ast.FuncDeclStmt:
			addProp(d.Fn.Name, &ast.Ident{Position: pos, Name: d.Fn.Name}, pos)
		case *ast.VarDeclStmt:
			for _, decl := range d.Decls {
				if id, ok := decl.Name.(*ast.IdentPattern); ok {
					addProp(id.Name, &ast.Ident{Position: pos, Name: id.Name}, pos)
				}
			}
		}
	}
	return props
}
