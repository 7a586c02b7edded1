// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package module

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/interp"
	"github.com/probechain/pscript/value"
)

// constExportProgram builds `export const <name> = <n>;` by hand — the
// registry only ever receives an already-parsed Program (§1), so tests
// construct one directly rather than going through a front end.
func constExportProgram(name string, n float64) *ast.Program {
	return &ast.Program{
		IsModule: true,
		Body: []ast.Statement{
			&ast.ExportStmt{
				Decl: &ast.VarDeclStmt{
					Kind: ast.KindConst,
					Decls: []ast.VarDeclarator{{
						Name: &ast.IdentPattern{Name: name},
						Init: &ast.Literal{Kind: ast.LitNumber, Number: n},
					}},
				},
			},
		},
	}
}

func newVM() *interp.VM {
	return interp.New(interp.Config{Heap: heap.DefaultConfig()})
}

func TestLoadCachesAfterFirstEvaluation(t *testing.T) {
	vm := newVM()
	var evalCount int32
	r := New(vm, func(specifier string) (*Source, error) {
		atomic.AddInt32(&evalCount, 1)
		return &Source{Program: constExportProgram("x", 7), Name: specifier}, nil
	})

	ns1, err := r.Load("a")
	require.NoError(t, err)
	ns2, err := r.Load("a")
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&evalCount))
	require.Equal(t, value.Object, ns1.Tag())
	require.Equal(t, ns1, ns2)
}

func TestLoadExportsNamespaceValue(t *testing.T) {
	vm := newVM()
	r := New(vm, func(specifier string) (*Source, error) {
		return &Source{Program: constExportProgram("answer", 42), Name: specifier}, nil
	})

	ns, err := r.Load("mod")
	require.NoError(t, err)

	d, ok := heapObjectOf(t, ns).OwnTable().Find(value.PropertyKey{Str: "answer"})
	require.True(t, ok)
	require.Equal(t, float64(42), d.Value.AsFloat64())
}

func TestLoadPropagatesResolverError(t *testing.T) {
	vm := newVM()
	r := New(vm, func(specifier string) (*Source, error) {
		return nil, fmt.Errorf("not found: %s", specifier)
	})

	_, err := r.Load("missing")
	require.Error(t, err)
}

func TestLoadDedupsConcurrentRequests(t *testing.T) {
	vm := newVM()
	var evalCount int32
	start := make(chan struct{})
	r := New(vm, func(specifier string) (*Source, error) {
		<-start
		atomic.AddInt32(&evalCount, 1)
		return &Source{Program: constExportProgram("v", 1), Name: specifier}, nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Load("shared")
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&evalCount))
}

func TestCyclicImportObservesUndefined(t *testing.T) {
	vm := newVM()
	r := New(vm, func(specifier string) (*Source, error) {
		return &Source{Program: constExportProgram("v", 1), Name: specifier}, nil
	})

	// Simulate Load("a") being re-entered while "a"'s own evaluation
	// (triggered by a script importing itself transitively) is still in
	// flight, the way the dispatch loop's IMPORT instruction would via
	// vm.ModuleLoader.
	r.pending["a"] = true

	v, err := r.Load("a")
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v.Tag())
}

func heapObjectOf(t *testing.T, v value.Value) *heap.Object {
	t.Helper()
	obj, ok := v.Ref().(*heap.Object)
	require.True(t, ok)
	return obj
}
