// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/codegen"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/value"
)

// AST-builder helpers mirroring codegen_test.go's (package codegen, so not
// importable from here): this repo has no bundled front end, so every
// differential case below hand-builds the tree the other half compares
// against goja's parse of the equivalent source text.
func num(n float64) *ast.Literal           { return &ast.Literal{Kind: ast.LitNumber, Number: n} }
func str(s string) *ast.Literal            { return &ast.Literal{Kind: ast.LitString, Str: s} }
func ret(e ast.Expression) *ast.ReturnStmt { return &ast.ReturnStmt{Arg: e} }
func program(stmts ...ast.Statement) *ast.Program {
	return &ast.Program{Body: stmts}
}

// TestDifferentialAgainstGoja is the §9 differential oracle: for each case
// below, the JS source and the hand-built AST it corresponds to (this repo
// has no bundled front end, §1) are required to evaluate to the same
// to_string representation under goja, a real independent JS engine, and
// under this VM. A mismatch here means this engine's semantics diverged
// from ECMAScript rather than merely from the teacher.
func TestDifferentialAgainstGoja(t *testing.T) {
	cases := []struct {
		name string
		js   string
		prog *ast.Program
	}{
		{
			name: "arithmetic",
			js:   "6 * 7 + 1",
			prog: program(ret(&ast.BinaryExpr{
				Op:   "+",
				Left: &ast.BinaryExpr{Op: "*", Left: num(6), Right: num(7)},
				Right: num(1),
			})),
		},
		{
			name: "string concat",
			js:   `"foo" + "bar"`,
			prog: program(ret(&ast.BinaryExpr{Op: "+", Left: str("foo"), Right: str("bar")})),
		},
		{
			name: "loose equal number and string",
			js:   `1 == "1"`,
			prog: program(ret(&ast.BinaryExpr{Op: "==", Left: num(1), Right: str("1")})),
		},
		{
			name: "negative zero to string",
			js:   "-0",
			prog: program(ret(&ast.UnaryExpr{Op: "-", X: num(0)})),
		},
		{
			name: "ternary with falsy coercion",
			js:   `0 ? "yes" : "no"`,
			prog: program(ret(&ast.ConditionalExpr{Test: num(0), Then: str("yes"), Else: str("no")})),
		},
		{
			name: "division by zero is Infinity",
			js:   "1 / 0",
			prog: program(ret(&ast.BinaryExpr{Op: "/", Left: num(1), Right: num(0)})),
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gojaVM := goja.New()
			gojaResult, err := gojaVM.RunString(c.js)
			require.NoError(t, err)
			want := gojaResult.ToString().String()

			vm := newTestVM()
			proto, err := codegen.New(vm.Heap).Compile(c.prog, "<goja-diff>")
			require.NoError(t, err)
			fn := heap.NewScriptedFunction(vm.Heap.FunctionProto, proto, nil)
			got, err := vm.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), nil)
			require.NoError(t, err)
			gotStr, err := value.ToStringValue(vm, got)
			require.NoError(t, err)

			require.Equal(t, want, gotStr)
		})
	}
}
