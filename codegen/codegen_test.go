// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/interp"
	"github.com/probechain/pscript/value"
)

// runProgram compiles prog and executes it as a zero-argument top-level
// script, returning the value of its top-level return statement
// (undefined when there is none), the way host.Start exercises
// vm_compile output (§1).
func runProgram(t *testing.T, prog *ast.Program) (value.Value, error) {
	t.Helper()
	vm := interp.New(interp.Config{Heap: heap.DefaultConfig()})
	proto, err := New(vm.Heap).Compile(prog, "<test>")
	require.NoError(t, err)
	fn := heap.NewScriptedFunction(vm.Heap.FunctionProto, proto, nil)
	return vm.CallFunction(value.FromRef(value.Function, fn, true), value.Undef(), nil)
}

func num(n float64) *ast.Literal { return &ast.Literal{Kind: ast.LitNumber, Number: n} }
func str(s string) *ast.Literal  { return &ast.Literal{Kind: ast.LitString, Str: s} }
func ident(name string) *ast.Ident {
	return &ast.Ident{Name: name}
}

func ret(e ast.Expression) *ast.ReturnStmt { return &ast.ReturnStmt{Arg: e} }

func program(stmts ...ast.Statement) *ast.Program {
	return &ast.Program{Body: stmts}
}

func TestCompileArithmeticReturn(t *testing.T) {
	prog := program(ret(&ast.BinaryExpr{Op: "+", Left: num(2), Right: &ast.BinaryExpr{Op: "*", Left: num(3), Right: num(4)}}))
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(14), v.AsFloat64())
}

func TestCompileVarDeclAndAssignment(t *testing.T) {
	// let x = 1; x = x + 41; return x;
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{
			Name: &ast.IdentPattern{Name: "x"}, Init: num(1),
		}}},
		&ast.ExprStmt{X: &ast.AssignExpr{
			Op:     "=",
			Target: ident("x"),
			Value:  &ast.BinaryExpr{Op: "+", Left: ident("x"), Right: num(41)},
		}},
		ret(ident("x")),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(42), v.AsFloat64())
}

func TestCompileIfElse(t *testing.T) {
	// if (false) return 1; else return 2;
	prog := program(&ast.IfStmt{
		Test: &ast.Literal{Kind: ast.LitBool, Bool: false},
		Then: ret(num(1)),
		Else: ret(num(2)),
	})
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(2), v.AsFloat64())
}

func TestCompileWhileLoop(t *testing.T) {
	// let i = 0; let sum = 0; while (i < 5) { sum = sum + i; i = i + 1; } return sum;
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{Name: &ast.IdentPattern{Name: "i"}, Init: num(0)}}},
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{Name: &ast.IdentPattern{Name: "sum"}, Init: num(0)}}},
		&ast.WhileStmt{
			Test: &ast.BinaryExpr{Op: "<", Left: ident("i"), Right: num(5)},
			Body: &ast.BlockStmt{Body: []ast.Statement{
				&ast.ExprStmt{X: &ast.AssignExpr{Op: "=", Target: ident("sum"), Value: &ast.BinaryExpr{Op: "+", Left: ident("sum"), Right: ident("i")}}},
				&ast.ExprStmt{X: &ast.AssignExpr{Op: "=", Target: ident("i"), Value: &ast.BinaryExpr{Op: "+", Left: ident("i"), Right: num(1)}}},
			}},
		},
		ret(ident("sum")),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(10), v.AsFloat64())
}

func TestCompileForLoopWithBreak(t *testing.T) {
	// let i = 0; for (;;) { if (i === 3) break; i = i + 1; } return i;
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{Name: &ast.IdentPattern{Name: "i"}, Init: num(0)}}},
		&ast.ForStmt{Body: &ast.BlockStmt{Body: []ast.Statement{
			&ast.IfStmt{
				Test: &ast.BinaryExpr{Op: "===", Left: ident("i"), Right: num(3)},
				Then: &ast.BreakStmt{},
			},
			&ast.ExprStmt{X: &ast.AssignExpr{Op: "=", Target: ident("i"), Value: &ast.BinaryExpr{Op: "+", Left: ident("i"), Right: num(1)}}},
		}}},
		ret(ident("i")),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(3), v.AsFloat64())
}

func TestCompileFunctionDeclCallAndClosureCapture(t *testing.T) {
	// function makeAdder(n) { return function(x) { return x + n; }; }
	// let add5 = makeAdder(5); return add5(37);
	inner := &ast.FuncLiteral{
		Params: []ast.Param{{Target: &ast.IdentPattern{Name: "x"}}},
		Body:   &ast.BlockStmt{Body: []ast.Statement{ret(&ast.BinaryExpr{Op: "+", Left: ident("x"), Right: ident("n")})}},
	}
	makeAdder := &ast.FuncDeclStmt{Fn: &ast.FuncLiteral{
		Name:   "makeAdder",
		Params: []ast.Param{{Target: &ast.IdentPattern{Name: "n"}}},
		Body:   &ast.BlockStmt{Body: []ast.Statement{ret(inner)}},
	}}
	prog := program(
		makeAdder,
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{
			Name: &ast.IdentPattern{Name: "add5"},
			Init: &ast.CallExpr{Callee: ident("makeAdder"), Args: []ast.Expression{num(5)}},
		}}},
		ret(&ast.CallExpr{Callee: ident("add5"), Args: []ast.Expression{num(37)}}),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(42), v.AsFloat64())
}

func TestCompileObjectAndMemberAccess(t *testing.T) {
	// let o = { a: 10, b: 20 }; return o.a + o["b"];
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{
			Name: &ast.IdentPattern{Name: "o"},
			Init: &ast.ObjectLiteral{Props: []ast.ObjectProp{
				{Kind: ast.PropData, Key: str("a"), Value: num(10)},
				{Kind: ast.PropData, Key: str("b"), Value: num(20)},
			}},
		}}},
		ret(&ast.BinaryExpr{
			Op:   "+",
			Left: &ast.MemberExpr{Obj: ident("o"), Prop: str("a"), Computed: false},
			Right: &ast.MemberExpr{Obj: ident("o"), Prop: str("b"), Computed: true},
		}),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(30), v.AsFloat64())
}

func TestCompileArrayLiteralAndIndex(t *testing.T) {
	// let a = [1, 2, 3]; return a[1];
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{
			Name: &ast.IdentPattern{Name: "a"},
			Init: &ast.ArrayLiteral{Elements: []ast.Expression{num(1), num(2), num(3)}},
		}}},
		ret(&ast.MemberExpr{Obj: ident("a"), Prop: num(1), Computed: true}),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.Equal(t, float64(2), v.AsFloat64())
}

func TestCompileTryCatchReturnsHandlerValue(t *testing.T) {
	// try { throw "boom"; } catch (e) { return e; }
	prog := program(&ast.TryStmt{
		Block: &ast.BlockStmt{Body: []ast.Statement{&ast.ThrowStmt{Arg: str("boom")}}},
		Handler: &ast.CatchClause{
			Param: &ast.IdentPattern{Name: "e"},
			Body:  &ast.BlockStmt{Body: []ast.Statement{ret(ident("e"))}},
		},
	})
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	content, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, "boom", content)
}

func TestCompileTryFinallyRunsOnNormalExit(t *testing.T) {
	// let ran = false; try { } finally { ran = true; } return ran;
	prog := program(
		&ast.VarDeclStmt{Kind: ast.KindLet, Decls: []ast.VarDeclarator{{
			Name: &ast.IdentPattern{Name: "ran"}, Init: &ast.Literal{Kind: ast.LitBool, Bool: false},
		}}},
		&ast.TryStmt{
			Block:   &ast.BlockStmt{},
			Finally: &ast.BlockStmt{Body: []ast.Statement{&ast.ExprStmt{X: &ast.AssignExpr{Op: "=", Target: ident("ran"), Value: &ast.Literal{Kind: ast.LitBool, Bool: true}}}}},
		},
		ret(ident("ran")),
	)
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	require.True(t, value.ToBoolean(v))
}

func TestCompileSwitchStatement(t *testing.T) {
	// switch (2) { case 1: return "one"; case 2: return "two"; default: return "other"; }
	prog := program(&ast.SwitchStmt{
		Disc: num(2),
		Cases: []ast.SwitchCase{
			{Test: num(1), Body: []ast.Statement{ret(str("one"))}},
			{Test: num(2), Body: []ast.Statement{ret(str("two"))}},
			{Test: nil, Body: []ast.Statement{ret(str("other"))}},
		},
	})
	v, err := runProgram(t, prog)
	require.NoError(t, err)
	content, ok := value.StringContent(v)
	require.True(t, ok)
	require.Equal(t, "two", content)
}

func TestCompileBreakOutsideLoopErrors(t *testing.T) {
	_, err := New(heap.New(heap.DefaultConfig())).Compile(program(&ast.BreakStmt{}), "<test>")
	require.Error(t, err)
}
