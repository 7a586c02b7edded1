// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package codegen

import (
	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/scope"
	"github.com/probechain/pscript/value"
)

// lowerExpr lowers an expression, leaving its value in the returned index
// (either a fresh temporary or, for a bare identifier read, the binding's
// own slot — callers must not mutate through a returned index unless they
// know it is a temporary they allocated).
func (fs *funcScope) lowerExpr(e ast.Expression) (scope.Index, error) {
	switch x := e.(type) {
	case *ast.Literal:
		return fs.lowerLiteral(x)
	case *ast.Ident:
		return fs.lowerIdent(x)
	case *ast.ThisExpr:
		idx, ok := fs.resolve("this")
		if !ok {
			return fs.constant("undefined", value.Undef()), nil
		}
		return idx, nil
	case *ast.BinaryExpr:
		return fs.lowerBinary(x)
	case *ast.LogicalExpr:
		return fs.lowerLogical(x)
	case *ast.UnaryExpr:
		return fs.lowerUnary(x)
	case *ast.UpdateExpr:
		return fs.lowerUpdate(x)
	case *ast.AssignExpr:
		return fs.lowerAssign(x)
	case *ast.ConditionalExpr:
		return fs.lowerConditional(x)
	case *ast.SequenceExpr:
		var last scope.Index
		for i, sub := range x.Exprs {
			v, err := fs.lowerExpr(sub)
			if err != nil {
				return 0, err
			}
			if i > 0 {
				fs.release(last)
			}
			last = v
		}
		return last, nil
	case *ast.MemberExpr:
		return fs.lowerMember(x)
	case *ast.CallExpr:
		return fs.lowerCall(x)
	case *ast.NewExpr:
		return fs.lowerNew(x)
	case *ast.ArrayLiteral:
		return fs.lowerArrayLiteral(x)
	case *ast.ObjectLiteral:
		return fs.lowerObjectLiteral(x)
	case *ast.TemplateLiteral:
		return fs.lowerTemplate(x)
	case *ast.FuncLiteral:
		return fs.lowerFuncLiteral(x)
	case *ast.AwaitExpr:
		v, err := fs.lowerExpr(x.X)
		if err != nil {
			return 0, err
		}
		result := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpAwait, Dst: result, A: v}, x.Position)
		fs.release(v)
		return result, nil
	case *ast.PatternExpr:
		return 0, errf(x.Position, "codegen: a bare pattern is not a value expression")
	default:
		return 0, errf(e.Pos(), "codegen: unsupported expression %T", e)
	}
}

func (fs *funcScope) lowerLiteral(l *ast.Literal) (scope.Index, error) {
	switch l.Kind {
	case ast.LitUndefined:
		return fs.constant("undefined", value.Undef()), nil
	case ast.LitNull:
		return fs.constant("null", value.Null1()), nil
	case ast.LitBool:
		return fs.constant(l.Bool, value.Bool1(l.Bool)), nil
	case ast.LitNumber:
		return fs.numberConstant(l.Number), nil
	case ast.LitString:
		return fs.stringConstant(l.Str), nil
	case ast.LitRegexp:
		dst := fs.temp()
		pattern := fs.stringConstant(l.RegexPattern)
		var imm int32
		for _, c := range l.RegexFlags {
			switch c {
			case 'g':
				imm |= 1
			case 'i':
				imm |= 2
			}
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpRegexp, Dst: dst, A: pattern, Imm: imm}, l.Position)
		return dst, nil
	}
	return 0, errf(l.Position, "codegen: unknown literal kind")
}

func (fs *funcScope) lowerIdent(id *ast.Ident) (scope.Index, error) {
	if idx, ok := fs.resolve(id.Name); ok {
		return idx, nil
	}
	dst := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpGlobalGet, Dst: dst, Imm: int32(fs.stringConstant(id.Name).Offset())}, id.Position)
	return dst, nil
}

var binaryOps = map[string]bytecode.Opcode{
	"+": bytecode.OpAdd, "-": bytecode.OpSub, "*": bytecode.OpMul, "/": bytecode.OpDiv,
	"%": bytecode.OpMod, "**": bytecode.OpPow,
	"&": bytecode.OpBitAnd, "|": bytecode.OpBitOr, "^": bytecode.OpBitXor,
	"<<": bytecode.OpShl, ">>": bytecode.OpShr, ">>>": bytecode.OpUShr,
	"<": bytecode.OpLt, ">": bytecode.OpGt, "<=": bytecode.OpLe, ">=": bytecode.OpGe,
	"==": bytecode.OpEq, "!=": bytecode.OpNe, "===": bytecode.OpStrictEq, "!==": bytecode.OpStrictNe,
}

func (fs *funcScope) emitBinaryOp(op string, dst, a, b scope.Index, pos ast.Position) error {
	oc, ok := binaryOps[op]
	if !ok {
		return errf(pos, "codegen: unsupported operator %q", op)
	}
	fs.emit(bytecode.Instruction{Op: oc, Dst: dst, A: a, B: b}, pos)
	return nil
}

func (fs *funcScope) lowerBinary(e *ast.BinaryExpr) (scope.Index, error) {
	if e.Op == "in" || e.Op == "instanceof" {
		left, err := fs.lowerExpr(e.Left)
		if err != nil {
			return 0, err
		}
		right, err := fs.lowerExpr(e.Right)
		if err != nil {
			return 0, err
		}
		result := fs.temp()
		if e.Op == "in" {
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyIn, Dst: result, A: left, B: right}, e.Position)
		} else {
			fs.emit(bytecode.Instruction{Op: bytecode.OpInstanceOf, Dst: result, A: left, B: right}, e.Position)
		}
		fs.release(right)
		fs.release(left)
		return result, nil
	}
	left, err := fs.lowerExpr(e.Left)
	if err != nil {
		return 0, err
	}
	right, err := fs.lowerExpr(e.Right)
	if err != nil {
		return 0, err
	}
	result := fs.temp()
	if err := fs.emitBinaryOp(e.Op, result, left, right, e.Position); err != nil {
		return 0, err
	}
	fs.release(right)
	fs.release(left)
	return result, nil
}

func (fs *funcScope) lowerLogical(e *ast.LogicalExpr) (scope.Index, error) {
	left, err := fs.lowerExpr(e.Left)
	if err != nil {
		return 0, err
	}
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: left}, e.Position)
	fs.release(left)

	if e.Op == "??" {
		undefC := fs.constant("undefined", value.Undef())
		nullC := fs.constant("null", value.Null1())
		isU := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isU, A: result, B: undefC}, e.Position)
		jmpU := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isU}, e.Position)
		fs.release(isU)
		isN := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isN, A: result, B: nullC}, e.Position)
		jmpN := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isN}, e.Position)
		fs.release(isN)
		skip := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, e.Position)
		evalAt := int32(fs.block.Len())
		fs.block.Patch(jmpU, evalAt)
		fs.block.Patch(jmpN, evalAt)
		right, err := fs.lowerExpr(e.Right)
		if err != nil {
			return 0, err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: right}, e.Position)
		fs.release(right)
		fs.block.Patch(skip, int32(fs.block.Len()))
		return result, nil
	}

	var jmp int
	if e.Op == "&&" {
		jmp = fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: result}, e.Position)
	} else {
		jmp = fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: result}, e.Position)
	}
	right, err := fs.lowerExpr(e.Right)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: right}, e.Position)
	fs.release(right)
	fs.block.Patch(jmp, int32(fs.block.Len()))
	return result, nil
}

func (fs *funcScope) lowerUnary(e *ast.UnaryExpr) (scope.Index, error) {
	switch e.Op {
	case "delete":
		mem, ok := e.X.(*ast.MemberExpr)
		if !ok {
			return fs.constant(true, value.Bool1(true)), nil
		}
		objIdx, err := fs.lowerExpr(mem.Obj)
		if err != nil {
			return 0, err
		}
		keyIdx, err := fs.memberKey(mem)
		if err != nil {
			return 0, err
		}
		result := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpDelete, Dst: result, A: objIdx, B: keyIdx}, e.Position)
		fs.release(keyIdx)
		fs.release(objIdx)
		return result, nil
	}
	v, err := fs.lowerExpr(e.X)
	if err != nil {
		return 0, err
	}
	result := fs.temp()
	switch e.Op {
	case "-":
		fs.emit(bytecode.Instruction{Op: bytecode.OpNeg, Dst: result, A: v}, e.Position)
	case "+":
		fs.emit(bytecode.Instruction{Op: bytecode.OpPlus, Dst: result, A: v}, e.Position)
	case "!":
		fs.emit(bytecode.Instruction{Op: bytecode.OpTestIfFalse, Dst: result, A: v}, e.Position)
	case "~":
		fs.emit(bytecode.Instruction{Op: bytecode.OpBitNot, Dst: result, A: v}, e.Position)
	case "typeof":
		fs.emit(bytecode.Instruction{Op: bytecode.OpTypeof, Dst: result, A: v}, e.Position)
	case "void":
		fs.emit(bytecode.Instruction{Op: bytecode.OpVoid, Dst: result, A: v}, e.Position)
	default:
		return 0, errf(e.Position, "codegen: unsupported unary operator %q", e.Op)
	}
	fs.release(v)
	return result, nil
}

// lowerUpdate implements `++`/`--`: the operand is coerced with unary `+`
// first (PLUS performs ToNumber) so a string or boolean operand updates
// numerically rather than tripping ADD's string-concatenation overload,
// and so the returned old-value for postfix use is already the coerced
// number (matching source semantics).
func (fs *funcScope) lowerUpdate(e *ast.UpdateExpr) (scope.Index, error) {
	op := bytecode.OpAdd
	if e.Op == "--" {
		op = bytecode.OpSub
	}
	one := fs.numberConstant(1)

	switch t := e.X.(type) {
	case *ast.Ident:
		cur := fs.resolveForWrite(t.Name)
		old := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPlus, Dst: old, A: cur}, e.Position)
		result := fs.temp()
		fs.emit(bytecode.Instruction{Op: op, Dst: result, A: old, B: one}, e.Position)
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: cur, A: result}, e.Position)
		if e.Prefix {
			fs.release(old)
			return result, nil
		}
		fs.release(result)
		return old, nil
	case *ast.MemberExpr:
		objIdx, err := fs.lowerExpr(t.Obj)
		if err != nil {
			return 0, err
		}
		keyIdx, err := fs.memberKey(t)
		if err != nil {
			return 0, err
		}
		raw := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: raw, A: objIdx, B: keyIdx}, e.Position)
		old := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPlus, Dst: old, A: raw}, e.Position)
		fs.release(raw)
		result := fs.temp()
		fs.emit(bytecode.Instruction{Op: op, Dst: result, A: old, B: one}, e.Position)
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: objIdx, A: keyIdx, B: result}, e.Position)
		fs.release(keyIdx)
		fs.release(objIdx)
		if e.Prefix {
			fs.release(old)
			return result, nil
		}
		fs.release(result)
		return old, nil
	}
	return 0, errf(e.Position, "codegen: invalid update target %T", e.X)
}

// memberKey lowers a MemberExpr's property operand to a key index, using a
// constant for a non-computed (dotted) access.
func (fs *funcScope) memberKey(e *ast.MemberExpr) (scope.Index, error) {
	if !e.Computed {
		return fs.stringConstant(identName(e.Prop)), nil
	}
	return fs.lowerExpr(e.Prop)
}

func identName(e ast.Expression) string {
	switch k := e.(type) {
	case *ast.Ident:
		return k.Name
	case *ast.Literal:
		return k.Str
	}
	return ""
}

// lowerMember implements member access, including the `?.` short-circuit
// (§1 Non-goals: full iterator/optional-chaining edge cases aside, this
// guards exactly the immediate access — a longer `a?.b.c` chain relies on
// `a?.b` itself evaluating to undefined and a further unguarded `.c`
// access on it throwing, the same way plain `undefined.c` would).
func (fs *funcScope) lowerMember(e *ast.MemberExpr) (scope.Index, error) {
	objIdx, err := fs.lowerExpr(e.Obj)
	if err != nil {
		return 0, err
	}
	result := fs.temp()
	if !e.Optional {
		keyIdx, err := fs.memberKey(e)
		if err != nil {
			return 0, err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: result, A: objIdx, B: keyIdx}, e.Position)
		fs.release(keyIdx)
		fs.release(objIdx)
		return result, nil
	}

	undefC := fs.constant("undefined", value.Undef())
	nullC := fs.constant("null", value.Null1())
	isU := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isU, A: objIdx, B: undefC}, e.Position)
	jmpU := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isU}, e.Position)
	fs.release(isU)
	isN := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isN, A: objIdx, B: nullC}, e.Position)
	jmpN := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isN}, e.Position)
	fs.release(isN)

	keyIdx, err := fs.memberKey(e)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: result, A: objIdx, B: keyIdx}, e.Position)
	fs.release(keyIdx)
	done := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, e.Position)
	undefAt := int32(fs.block.Len())
	fs.block.Patch(jmpU, undefAt)
	fs.block.Patch(jmpN, undefAt)
	fs.emit(bytecode.Instruction{Op: bytecode.OpLet, Dst: result}, e.Position)
	fs.block.Patch(done, int32(fs.block.Len()))
	fs.release(objIdx)
	return result, nil
}

func (fs *funcScope) lowerArgs(args []ast.Expression) error {
	for _, a := range args {
		if sp, ok := a.(*ast.SpreadExpr); ok {
			arr, err := fs.lowerExpr(sp.X)
			if err != nil {
				return err
			}
			fs.emitSpreadPutArgs(arr, sp.Position)
			fs.release(arr)
			continue
		}
		v, err := fs.lowerExpr(a)
		if err != nil {
			return err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpPutArg, A: v}, a.Pos())
		fs.release(v)
	}
	return nil
}

// emitSpreadPutArgs copies arr[0:length) into individual PUT_ARG writes,
// the counted-loop approach also used by buildRestArray: this engine has
// no generic iterator protocol, only array/string indexing (§1 Non-goals).
func (fs *funcScope) emitSpreadPutArgs(arr scope.Index, pos ast.Position) {
	lengthKey := fs.stringConstant("length")
	length := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: length, A: arr, B: lengthKey}, pos)
	i := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: i, A: fs.numberConstant(0)}, pos)
	testAt := fs.block.Len()
	cond := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpLt, Dst: cond, A: i, B: length}, pos)
	exit := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: cond}, pos)
	fs.release(cond)
	elem := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: elem, A: arr, B: i}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpPutArg, A: elem}, pos)
	fs.release(elem)
	fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: i, A: i, B: fs.numberConstant(1)}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, pos)
	fs.block.Patch(exit, int32(fs.block.Len()))
	fs.release(i)
	fs.release(length)
}

// buildRestArray copies src[fromIndex:length) into a freshly allocated
// array, used for both rest parameters and array-pattern rest elements
// (§4.6 Lvalue protocol: destructuring desugars to property reads).
func (fs *funcScope) buildRestArray(src scope.Index, fromIndex int, pos ast.Position) scope.Index {
	lengthKey := fs.stringConstant("length")
	length := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: length, A: src, B: lengthKey}, pos)
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpArray, Dst: result}, pos)
	i := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: i, A: fs.numberConstant(float64(fromIndex))}, pos)
	out := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: out, A: fs.numberConstant(0)}, pos)
	testAt := fs.block.Len()
	cond := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpLt, Dst: cond, A: i, B: length}, pos)
	exit := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: cond}, pos)
	fs.release(cond)
	elem := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: elem, A: src, B: i}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: result, A: out, B: elem}, pos)
	fs.release(elem)
	fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: i, A: i, B: fs.numberConstant(1)}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: out, A: out, B: fs.numberConstant(1)}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, pos)
	fs.block.Patch(exit, int32(fs.block.Len()))
	fs.release(i)
	fs.release(out)
	fs.release(length)
	return result
}

// lowerCall implements FUNCTION_FRAME/METHOD_FRAME + PUT_ARG* +
// FUNCTION_CALL (§4.5 Call protocol).
func (fs *funcScope) lowerCall(e *ast.CallExpr) (scope.Index, error) {
	var op bytecode.Opcode
	var a, b scope.Index
	if mem, ok := e.Callee.(*ast.MemberExpr); ok {
		op = bytecode.OpMethodFrame
		objIdx, err := fs.lowerExpr(mem.Obj)
		if err != nil {
			return 0, err
		}
		keyIdx, err := fs.memberKey(mem)
		if err != nil {
			return 0, err
		}
		a, b = objIdx, keyIdx
	} else {
		op = bytecode.OpFunctionFrame
		calleeIdx, err := fs.lowerExpr(e.Callee)
		if err != nil {
			return 0, err
		}
		a, b = calleeIdx, scope.Invalid
	}
	fs.emit(bytecode.Instruction{Op: op, A: a, B: b}, e.Position)
	if err := fs.lowerArgs(e.Args); err != nil {
		return 0, err
	}
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpFunctionCall, Dst: result}, e.Position)
	if b != scope.Invalid {
		fs.release(b)
	}
	fs.release(a)
	return result, nil
}

func (fs *funcScope) lowerNew(e *ast.NewExpr) (scope.Index, error) {
	calleeIdx, err := fs.lowerExpr(e.Callee)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpFunctionFrame, A: calleeIdx, B: scope.Invalid, Imm: 1}, e.Position)
	if err := fs.lowerArgs(e.Args); err != nil {
		return 0, err
	}
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpFunctionCall, Dst: result}, e.Position)
	fs.release(calleeIdx)
	return result, nil
}

func (fs *funcScope) lowerConditional(e *ast.ConditionalExpr) (scope.Index, error) {
	test, err := fs.lowerExpr(e.Test)
	if err != nil {
		return 0, err
	}
	jmpElse := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: test}, e.Position)
	fs.release(test)
	result := fs.temp()
	thenV, err := fs.lowerExpr(e.Then)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: thenV}, e.Position)
	fs.release(thenV)
	jmpEnd := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, e.Position)
	fs.block.Patch(jmpElse, int32(fs.block.Len()))
	elseV, err := fs.lowerExpr(e.Else)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: elseV}, e.Position)
	fs.release(elseV)
	fs.block.Patch(jmpEnd, int32(fs.block.Len()))
	return result, nil
}

func (fs *funcScope) lowerArrayLiteral(e *ast.ArrayLiteral) (scope.Index, error) {
	arr := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpArray, Dst: arr}, e.Position)
	idx := 0
	for _, el := range e.Elements {
		if el == nil {
			idx++
			continue
		}
		if sp, ok := el.(*ast.SpreadExpr); ok {
			src, err := fs.lowerExpr(sp.X)
			if err != nil {
				return 0, err
			}
			tail := fs.buildRestArray(src, 0, sp.Position)
			fs.release(src)
			// append tail's elements onto arr starting at idx.
			lengthKey := fs.stringConstant("length")
			tailLen := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: tailLen, A: tail, B: lengthKey}, sp.Position)
			j := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: j, A: fs.numberConstant(0)}, sp.Position)
			out := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: out, A: fs.numberConstant(float64(idx))}, sp.Position)
			testAt := fs.block.Len()
			cond := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpLt, Dst: cond, A: j, B: tailLen}, sp.Position)
			exit := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: cond}, sp.Position)
			fs.release(cond)
			elem := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: elem, A: tail, B: j}, sp.Position)
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: arr, A: out, B: elem}, sp.Position)
			fs.release(elem)
			fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: j, A: j, B: fs.numberConstant(1)}, sp.Position)
			fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: out, A: out, B: fs.numberConstant(1)}, sp.Position)
			fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, sp.Position)
			fs.block.Patch(exit, int32(fs.block.Len()))
			fs.release(j)
			fs.release(tailLen)
			fs.release(tail)
			idx = -1 // further positional indices are no longer statically known
			continue
		}
		v, err := fs.lowerExpr(el)
		if err != nil {
			return 0, err
		}
		if idx >= 0 {
			key := fs.numberConstant(float64(idx))
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: arr, A: key, B: v}, el.Pos())
			idx++
		} else {
			// a preceding spread of unknown length already makes further
			// positional placement unsound without tracking a running
			// length at codegen time; push via the live PROPERTY_GET
			// "length" instead.
			lengthKey := fs.stringConstant("length")
			cur := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: cur, A: arr, B: lengthKey}, el.Pos())
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: arr, A: cur, B: v}, el.Pos())
			fs.release(cur)
		}
		fs.release(v)
	}
	return arr, nil
}

func (fs *funcScope) lowerObjectLiteral(e *ast.ObjectLiteral) (scope.Index, error) {
	obj := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpObject, Dst: obj}, e.Position)
	for _, prop := range e.Props {
		if prop.Kind == ast.PropSpread {
			src, err := fs.lowerExpr(prop.Key)
			if err != nil {
				return 0, err
			}
			fs.emitObjectSpread(obj, src, prop.Position)
			fs.release(src)
			continue
		}
		var keyIdx scope.Index
		var err error
		if prop.Computed {
			keyIdx, err = fs.lowerExpr(prop.Key)
			if err != nil {
				return 0, err
			}
		} else {
			keyIdx = fs.stringConstant(identName(prop.Key))
		}
		val, err := fs.lowerExpr(prop.Value)
		if err != nil {
			return 0, err
		}
		switch prop.Kind {
		case ast.PropGetter:
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyAccessor, Dst: obj, A: keyIdx, B: val, Imm: 0}, prop.Position)
		case ast.PropSetter:
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyAccessor, Dst: obj, A: keyIdx, B: val, Imm: 1}, prop.Position)
		default:
			fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyInit, Dst: obj, A: keyIdx, B: val}, prop.Position)
		}
		fs.release(val)
		fs.release(keyIdx)
	}
	return obj, nil
}

func (fs *funcScope) emitObjectSpread(obj, src scope.Index, pos ast.Position) {
	iter := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyForeach, Dst: iter, A: src}, pos)
	testAt := fs.block.Len()
	key := fs.temp()
	exit := fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyNext, Dst: key, A: iter}, pos)
	val := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: val, A: src, B: key}, pos)
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyInit, Dst: obj, A: key, B: val}, pos)
	fs.release(val)
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, pos)
	fs.block.Patch(exit, int32(fs.block.Len()))
	fs.release(key)
	fs.release(iter)
}

func (fs *funcScope) lowerTemplate(e *ast.TemplateLiteral) (scope.Index, error) {
	parts := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpArray, Dst: parts}, e.Position)
	for i, p := range e.Parts {
		var v scope.Index
		if p.Expr != nil {
			val, err := fs.lowerExpr(p.Expr)
			if err != nil {
				return 0, err
			}
			v = val
		} else {
			v = fs.stringConstant(p.Text)
		}
		key := fs.numberConstant(float64(i))
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: parts, A: key, B: v}, e.Position)
		if p.Expr != nil {
			fs.release(v)
		}
	}
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpTemplateLiteral, Dst: result, A: parts}, e.Position)
	fs.release(parts)
	return result, nil
}

// ---------------------------------------------------------------------------
// Assignment / lvalue lowering (§4.6 Lvalue protocol)
// ---------------------------------------------------------------------------

func compoundBinOp(op string) string {
	return op[:len(op)-1] // "+=" -> "+"
}

func (fs *funcScope) lowerAssign(e *ast.AssignExpr) (scope.Index, error) {
	if e.Op == "=" {
		if pe, ok := e.Target.(*ast.PatternExpr); ok {
			v, err := fs.lowerExpr(e.Value)
			if err != nil {
				return 0, err
			}
			if err := fs.assignPattern(pe.Pattern, v); err != nil {
				return 0, err
			}
			return v, nil
		}
		v, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		if id, ok := e.Target.(*ast.Ident); ok {
			fs.maybeNameAnonymous(v, e.Value, id.Name)
		}
		if err := fs.assignExprTarget(e.Target, v); err != nil {
			return 0, err
		}
		return v, nil
	}

	switch e.Op {
	case "&&=", "||=", "??=":
		return fs.lowerLogicalAssign(e)
	}

	op := compoundBinOp(e.Op)
	switch t := e.Target.(type) {
	case *ast.Ident:
		cur := fs.resolveForWrite(t.Name)
		rhs, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		result := fs.temp()
		if err := fs.emitBinaryOp(op, result, cur, rhs, e.Position); err != nil {
			return 0, err
		}
		fs.release(rhs)
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: cur, A: result}, e.Position)
		return result, nil
	case *ast.MemberExpr:
		objIdx, err := fs.lowerExpr(t.Obj)
		if err != nil {
			return 0, err
		}
		keyIdx, err := fs.memberKey(t)
		if err != nil {
			return 0, err
		}
		cur := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: cur, A: objIdx, B: keyIdx}, e.Position)
		// rhs is evaluated only after obj/key are captured into temporaries,
		// matching the `obj[key] op= rhs` evaluation-order rule (§4.6).
		rhs, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		result := fs.temp()
		if err := fs.emitBinaryOp(op, result, cur, rhs, e.Position); err != nil {
			return 0, err
		}
		fs.release(rhs)
		fs.release(cur)
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: objIdx, A: keyIdx, B: result}, e.Position)
		fs.release(keyIdx)
		fs.release(objIdx)
		return result, nil
	}
	return 0, errf(e.Position, "codegen: invalid compound assignment target %T", e.Target)
}

// lowerLogicalAssign implements &&=/||=/??=, supported only against a
// simple identifier target: unlike arithmetic compounds, these may skip
// the write (and the right-hand evaluation) entirely, which only a plain
// conditional jump around the whole assignment can express.
func (fs *funcScope) lowerLogicalAssign(e *ast.AssignExpr) (scope.Index, error) {
	id, ok := e.Target.(*ast.Ident)
	if !ok {
		return 0, errf(e.Position, "codegen: %s target must be a plain identifier", e.Op)
	}
	cur := fs.resolveForWrite(id.Name)
	switch e.Op {
	case "&&=":
		jmp := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: cur}, e.Position)
		rhs, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: cur, A: rhs}, e.Position)
		fs.release(rhs)
		fs.block.Patch(jmp, int32(fs.block.Len()))
	case "||=":
		jmp := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: cur}, e.Position)
		rhs, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: cur, A: rhs}, e.Position)
		fs.release(rhs)
		fs.block.Patch(jmp, int32(fs.block.Len()))
	case "??=":
		undefC := fs.constant("undefined", value.Undef())
		nullC := fs.constant("null", value.Null1())
		isU := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isU, A: cur, B: undefC}, e.Position)
		jmpU := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isU}, e.Position)
		fs.release(isU)
		isN := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isN, A: cur, B: nullC}, e.Position)
		jmpN := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: isN}, e.Position)
		fs.release(isN)
		skip := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, e.Position)
		at := int32(fs.block.Len())
		fs.block.Patch(jmpU, at)
		fs.block.Patch(jmpN, at)
		rhs, err := fs.lowerExpr(e.Value)
		if err != nil {
			return 0, err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: cur, A: rhs}, e.Position)
		fs.release(rhs)
		fs.block.Patch(skip, int32(fs.block.Len()))
	}
	return cur, nil
}

func (fs *funcScope) assignExprTarget(target ast.Expression, src scope.Index) error {
	switch t := target.(type) {
	case *ast.Ident:
		dst := fs.resolveForWrite(t.Name)
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: dst, A: src}, t.Position)
		return nil
	case *ast.MemberExpr:
		objIdx, err := fs.lowerExpr(t.Obj)
		if err != nil {
			return err
		}
		keyIdx, err := fs.memberKey(t)
		if err != nil {
			return err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertySet, Dst: objIdx, A: keyIdx, B: src}, t.Position)
		fs.release(keyIdx)
		fs.release(objIdx)
		return nil
	case *ast.PatternExpr:
		return fs.assignPattern(t.Pattern, src)
	}
	return errf(target.Pos(), "codegen: invalid assignment target %T", target)
}

// applyPatternDefault yields src unless it is undefined, in which case def
// is evaluated and used instead (parameter/destructuring defaults, §4.6).
func (fs *funcScope) applyPatternDefault(src scope.Index, def ast.Expression, pos ast.Position) (scope.Index, error) {
	if def == nil {
		return src, nil
	}
	result := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: src}, pos)
	undefC := fs.constant("undefined", value.Undef())
	isUndef := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: isUndef, A: result, B: undefC}, pos)
	skip := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: isUndef}, pos)
	fs.release(isUndef)
	dv, err := fs.lowerExpr(def)
	if err != nil {
		return 0, err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: result, A: dv}, pos)
	fs.release(dv)
	fs.block.Patch(skip, int32(fs.block.Len()))
	return result, nil
}

// assignPattern declares (as needed) and writes every binding a pattern
// introduces from src, desugaring array/object destructuring into
// PROPERTY_GET reads (§4.6 Lvalue protocol).
func (fs *funcScope) assignPattern(pat ast.Pattern, src scope.Index) error {
	switch p := pat.(type) {
	case *ast.IdentPattern:
		idx, ok := fs.locals[p.Name]
		var dst scope.Index
		if ok {
			dst = scope.Make(scope.Local, idx)
		} else {
			dst = fs.declareLocal(p.Name)
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: dst, A: src}, p.Position)
		return nil
	case *ast.AssignPattern:
		actual, err := fs.applyPatternDefault(src, p.Default, p.Position)
		if err != nil {
			return err
		}
		return fs.assignPattern(p.Target, actual)
	case *ast.ArrayPattern:
		return fs.assignArrayPattern(p, src)
	case *ast.ObjectPattern:
		return fs.assignObjectPattern(p, src)
	case *ast.RestElement:
		return fs.assignPattern(p.Target, src)
	}
	return errf(pat.Pos(), "codegen: unsupported pattern %T", pat)
}

func (fs *funcScope) assignArrayPattern(p *ast.ArrayPattern, src scope.Index) error {
	for i, el := range p.Elements {
		if el == nil {
			continue
		}
		if rest, ok := el.(*ast.RestElement); ok {
			restArr := fs.buildRestArray(src, i, p.Position)
			if err := fs.assignPattern(rest.Target, restArr); err != nil {
				return err
			}
			fs.release(restArr)
			continue
		}
		key := fs.numberConstant(float64(i))
		elem := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: elem, A: src, B: key}, p.Position)
		if err := fs.assignPattern(el, elem); err != nil {
			return err
		}
		fs.release(elem)
	}
	return nil
}

func (fs *funcScope) assignObjectPattern(p *ast.ObjectPattern, src scope.Index) error {
	var used []string
	for _, prop := range p.Props {
		var keyIdx scope.Index
		var err error
		if prop.Computed {
			keyIdx, err = fs.lowerExpr(prop.Key)
			if err != nil {
				return err
			}
		} else {
			name := identName(prop.Key)
			used = append(used, name)
			keyIdx = fs.stringConstant(name)
		}
		val := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: val, A: src, B: keyIdx}, prop.Position)
		target := prop.Value
		if prop.Default != nil {
			def, err := fs.applyPatternDefault(val, prop.Default, prop.Position)
			if err != nil {
				return err
			}
			val = def
		}
		if err := fs.assignPattern(target, val); err != nil {
			return err
		}
		fs.release(val)
	}
	if p.Rest == nil {
		return nil
	}
	restObj := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpObject, Dst: restObj}, p.Position)
	iter := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyForeach, Dst: iter, A: src}, p.Position)
	testAt := fs.block.Len()
	key := fs.temp()
	exit := fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyNext, Dst: key, A: iter}, p.Position)
	var skips []int
	for _, name := range used {
		nameC := fs.stringConstant(name)
		eq := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: eq, A: key, B: nameC}, p.Position)
		skips = append(skips, fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: eq}, p.Position))
		fs.release(eq)
	}
	val := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: val, A: src, B: key}, p.Position)
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyInit, Dst: restObj, A: key, B: val}, p.Position)
	fs.release(val)
	cont := int32(fs.block.Len())
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, p.Position)
	for _, at := range skips {
		fs.block.Patch(at, cont)
	}
	fs.release(key)
	fs.block.Patch(exit, int32(fs.block.Len()))
	fs.release(iter)
	if err := fs.assignPattern(p.Rest, restObj); err != nil {
		return err
	}
	fs.release(restObj)
	return nil
}

// maybeNameAnonymous assigns an anonymous function/arrow expression's
// display name from the binding it is being stored into (`const f =
// function(){}`), matching SET_FUNCTION_NAME's documented purpose (§4.5).
func (fs *funcScope) maybeNameAnonymous(v scope.Index, init ast.Expression, name string) {
	fn, ok := init.(*ast.FuncLiteral)
	if !ok || fn.Name != "" {
		return
	}
	nameC := fs.stringConstant(name)
	fs.emit(bytecode.Instruction{Op: bytecode.OpSetFunctionName, Dst: v, Imm: int32(nameC.Offset())}, fn.Position)
}

// ---------------------------------------------------------------------------
// Function literals (§4.6 Closures)
// ---------------------------------------------------------------------------

func primaryName(p ast.Pattern) string {
	if id, ok := p.(*ast.IdentPattern); ok {
		return id.Name
	}
	return ""
}

// lowerParams copies each declared parameter out of the Arguments scope
// into a named local (Frame.Set has no Arguments case, so a reassignable
// binding needs a local slot regardless), applying defaults and
// destructuring in the process, and materializes a trailing rest
// parameter from the full arguments array.
func (fs *funcScope) lowerParams(params []ast.Param) ([]string, error) {
	var names []string
	argIndex := 0
	for _, p := range params {
		pos := p.Target.Pos()
		if p.Rest {
			argsArr := fs.temp()
			fs.emit(bytecode.Instruction{Op: bytecode.OpArguments, Dst: argsArr}, pos)
			restArr := fs.buildRestArray(argsArr, argIndex, pos)
			fs.release(argsArr)
			if err := fs.assignPattern(p.Target, restArr); err != nil {
				return nil, err
			}
			fs.release(restArr)
			continue
		}
		argIdx := scope.Make(scope.Arguments, uint32(argIndex))
		argIndex++
		raw := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: raw, A: argIdx}, pos)
		val := raw
		if p.Default != nil {
			dv, err := fs.applyPatternDefault(raw, p.Default, pos)
			if err != nil {
				return nil, err
			}
			val = dv
		}
		name := primaryName(p.Target)
		names = append(names, name)
		if err := fs.assignPattern(p.Target, val); err != nil {
			return nil, err
		}
		fs.release(raw)
	}
	fs.paramCount = argIndex
	return names, nil
}

// lowerFuncLiteral compiles fn into a nested FuncProto registered on fs's
// block, emitting FUNCTION to instantiate it at the point of occurrence
// (§4.6 Closures).
func (fs *funcScope) lowerFuncLiteral(fn *ast.FuncLiteral) (scope.Index, error) {
	child := newFuncScope(fs.c, fs, fs.source)
	child.isArrow = fn.IsArrow
	if !fn.IsArrow {
		thisLocal := child.declareLocal("this")
		child.emit(bytecode.Instruction{Op: bytecode.OpLoadThis, Dst: thisLocal}, fn.Position)
	}
	paramNames, err := child.lowerParams(fn.Params)
	if err != nil {
		return 0, err
	}
	if fn.Body != nil {
		hoist(child, fn.Body.Body)
		if err := child.lowerStmts(fn.Body.Body); err != nil {
			return 0, err
		}
		child.emit(bytecode.Instruction{Op: bytecode.OpStop}, fn.Position)
	} else if fn.ExprBody != nil {
		v, err := child.lowerExpr(fn.ExprBody)
		if err != nil {
			return 0, err
		}
		child.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: v}, fn.Position)
	} else {
		child.emit(bytecode.Instruction{Op: bytecode.OpStop}, fn.Position)
	}

	childProto := child.finish(fn.Name, paramNames)
	childProto.IsArrow = fn.IsArrow
	childProto.IsAsync = fn.IsAsync
	idx := fs.block.Function(childProto)
	dst := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpFunction, Dst: dst, Imm: int32(idx)}, fn.Position)
	return dst, nil
}
