// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package codegen

import (
	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/bytecode"
	"github.com/probechain/pscript/scope"
)

// hoist pre-declares every var/function binding a block introduces so a
// forward reference (a function calling a sibling declared later in the
// same scope) resolves without a second pass. let/const bindings are
// declared lazily, at the point their VarDeclStmt is lowered, so a
// reference before that point does not resolve to the binding's slot: it
// falls back to a global lookup, which yields undefined when no such
// global exists. No temporal-dead-zone ReferenceError is raised.
func hoist(fs *funcScope, body []ast.Statement) {
	for _, stmt := range body {
		hoistStmt(fs, stmt)
	}
}

func hoistStmt(fs *funcScope, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarDeclStmt:
		if s.Kind == ast.KindVar {
			for _, d := range s.Decls {
				hoistPattern(fs, d.Name)
			}
		}
	case *ast.FuncDeclStmt:
		if _, ok := fs.locals[s.Fn.Name]; !ok {
			fs.declareLocal(s.Fn.Name)
		}
	case *ast.BlockStmt:
		hoist(fs, s.Body)
	case *ast.IfStmt:
		hoistStmt(fs, s.Then)
		if s.Else != nil {
			hoistStmt(fs, s.Else)
		}
	case *ast.ForStmt:
		if v, ok := s.Init.(*ast.VarDeclStmt); ok && v.Kind == ast.KindVar {
			hoistStmt(fs, v)
		}
		hoistStmt(fs, s.Body)
	case *ast.ForInStmt:
		if v, ok := s.Left.(*ast.VarDeclStmt); ok && v.Kind == ast.KindVar {
			hoistStmt(fs, v)
		}
		hoistStmt(fs, s.Body)
	case *ast.WhileStmt:
		hoistStmt(fs, s.Body)
	case *ast.DoWhileStmt:
		hoistStmt(fs, s.Body)
	case *ast.LabeledStmt:
		hoistStmt(fs, s.Body)
	case *ast.TryStmt:
		hoist(fs, s.Block.Body)
		if s.Handler != nil {
			hoist(fs, s.Handler.Body.Body)
		}
		if s.Finally != nil {
			hoist(fs, s.Finally.Body)
		}
	case *ast.SwitchStmt:
		for _, c := range s.Cases {
			hoist(fs, c.Body)
		}
	}
}

func hoistPattern(fs *funcScope, pat ast.Pattern) {
	switch p := pat.(type) {
	case *ast.IdentPattern:
		if _, ok := fs.locals[p.Name]; !ok {
			fs.declareLocal(p.Name)
		}
	case *ast.ArrayPattern:
		for _, el := range p.Elements {
			if el != nil {
				hoistPattern(fs, el)
			}
		}
	case *ast.ObjectPattern:
		for _, prop := range p.Props {
			hoistPattern(fs, prop.Value)
		}
		if p.Rest != nil {
			hoistPattern(fs, p.Rest)
		}
	case *ast.RestElement:
		hoistPattern(fs, p.Target)
	case *ast.AssignPattern:
		hoistPattern(fs, p.Target)
	}
}

func (fs *funcScope) lowerStmts(body []ast.Statement) error {
	for _, stmt := range body {
		if err := fs.lowerStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (fs *funcScope) lowerStmt(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VarDeclStmt:
		return fs.lowerVarDecl(s)
	case *ast.ExprStmt:
		v, err := fs.lowerExpr(s.X)
		if err != nil {
			return err
		}
		fs.release(v)
		return nil
	case *ast.BlockStmt:
		return fs.lowerStmts(s.Body)
	case *ast.EmptyStmt:
		return nil
	case *ast.IfStmt:
		return fs.lowerIf(s)
	case *ast.WhileStmt:
		return fs.lowerWhile(s)
	case *ast.DoWhileStmt:
		return fs.lowerDoWhile(s)
	case *ast.ForStmt:
		return fs.lowerFor(s)
	case *ast.ForInStmt:
		return fs.lowerForIn(s)
	case *ast.ReturnStmt:
		return fs.lowerReturn(s)
	case *ast.ThrowStmt:
		v, err := fs.lowerExpr(s.Arg)
		if err != nil {
			return err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpThrow, A: v}, s.Position)
		fs.release(v)
		return nil
	case *ast.BreakStmt:
		return fs.lowerBreak(s)
	case *ast.ContinueStmt:
		return fs.lowerContinue(s)
	case *ast.LabeledStmt:
		return fs.lowerLabeled(s)
	case *ast.SwitchStmt:
		return fs.lowerSwitch(s)
	case *ast.TryStmt:
		return fs.lowerTry(s)
	case *ast.FuncDeclStmt:
		return fs.lowerFuncDecl(s)
	case *ast.ImportStmt:
		return fs.lowerImport(s)
	case *ast.ExportStmt:
		return fs.lowerExport(s)
	default:
		return errf(stmt.Pos(), "codegen: unsupported statement %T", stmt)
	}
}

func (fs *funcScope) lowerVarDecl(s *ast.VarDeclStmt) error {
	for _, d := range s.Decls {
		if d.Init == nil {
			if s.Kind != ast.KindVar {
				fs.bindPattern(d.Name)
			}
			continue
		}
		v, err := fs.lowerExpr(d.Init)
		if err != nil {
			return err
		}
		if err := fs.assignPattern(d.Name, v); err != nil {
			return err
		}
		fs.release(v)
	}
	return nil
}

// bindPattern declares (if not already hoisted) every name a pattern
// introduces, without assigning a value — used for an uninitialized let
// declaration (`let x;`).
func (fs *funcScope) bindPattern(pat ast.Pattern) {
	switch p := pat.(type) {
	case *ast.IdentPattern:
		idx, ok := fs.locals[p.Name]
		var dst scope.Index
		if ok {
			dst = scope.Make(scope.Local, idx)
		} else {
			dst = fs.declareLocal(p.Name)
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpLet, Dst: dst}, p.Position)
	}
}

func (fs *funcScope) lowerFuncDecl(s *ast.FuncDeclStmt) error {
	fnIdx, err := fs.lowerFuncLiteral(s.Fn)
	if err != nil {
		return err
	}
	dst, ok := fs.locals[s.Fn.Name]
	var target scope.Index
	if ok {
		target = scope.Make(scope.Local, dst)
	} else {
		target = fs.declareLocal(s.Fn.Name)
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: target, A: fnIdx}, s.Position)
	fs.release(fnIdx)
	return nil
}

func (fs *funcScope) lowerIf(s *ast.IfStmt) error {
	test, err := fs.lowerExpr(s.Test)
	if err != nil {
		return err
	}
	jumpOverThen := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: test}, s.Position)
	fs.release(test)
	if err := fs.lowerStmt(s.Then); err != nil {
		return err
	}
	if s.Else == nil {
		fs.block.Patch(jumpOverThen, int32(fs.block.Len()))
		return nil
	}
	jumpOverElse := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Position)
	fs.block.Patch(jumpOverThen, int32(fs.block.Len()))
	if err := fs.lowerStmt(s.Else); err != nil {
		return err
	}
	fs.block.Patch(jumpOverElse, int32(fs.block.Len()))
	return nil
}

func (fs *funcScope) pushLoop(label string, isSwitch bool) *loopCtx {
	lc := &loopCtx{label: label, isSwitch: isSwitch, finallyDepth: len(fs.finallyStack)}
	fs.loops = append(fs.loops, lc)
	return lc
}

func (fs *funcScope) popLoop() {
	fs.loops = fs.loops[:len(fs.loops)-1]
}

func (fs *funcScope) patchLoopExits(lc *loopCtx, breakTarget, continueTarget int32) {
	for _, at := range lc.breakPatches {
		fs.block.Patch(at, breakTarget)
	}
	if continueTarget >= 0 {
		for _, at := range lc.continuePatches {
			fs.block.Patch(at, continueTarget)
		}
	}
}

func (fs *funcScope) lowerWhile(s *ast.WhileStmt) error {
	return fs.lowerLoopCommon("", s.Position, nil, s.Test, nil, s.Body)
}

func (fs *funcScope) lowerDoWhile(s *ast.DoWhileStmt) error {
	lc := fs.pushLoop("", false)
	start := fs.block.Len()
	if err := fs.lowerStmt(s.Body); err != nil {
		return err
	}
	continueAt := fs.block.Len()
	test, err := fs.lowerExpr(s.Test)
	if err != nil {
		return err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: test, Imm: int32(start)}, s.Position)
	fs.release(test)
	end := fs.block.Len()
	fs.patchLoopExits(lc, int32(end), int32(continueAt))
	fs.popLoop()
	return nil
}

func (fs *funcScope) lowerFor(s *ast.ForStmt) error {
	if s.Init != nil {
		switch init := s.Init.(type) {
		case *ast.VarDeclStmt:
			if err := fs.lowerVarDecl(init); err != nil {
				return err
			}
		case ast.Expression:
			v, err := fs.lowerExpr(init)
			if err != nil {
				return err
			}
			fs.release(v)
		}
	}
	return fs.lowerLoopCommon("", s.Position, nil, s.Test, s.Update, s.Body)
}

// lowerLoopCommon implements a while/for loop's standard shape: test,
// conditional exit, body, (optional update), jump back to test. continue
// targets the update step (or the test itself when there is none).
func (fs *funcScope) lowerLoopCommon(label string, pos ast.Position, _ ast.Node, test, update ast.Expression, body ast.Statement) error {
	lc := fs.pushLoop(label, false)
	testAt := fs.block.Len()
	var exitPatch int = -1
	if test != nil {
		tv, err := fs.lowerExpr(test)
		if err != nil {
			return err
		}
		exitPatch = fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: tv}, pos)
		fs.release(tv)
	}
	if err := fs.lowerStmt(body); err != nil {
		return err
	}
	continueAt := fs.block.Len()
	if update != nil {
		uv, err := fs.lowerExpr(update)
		if err != nil {
			return err
		}
		fs.release(uv)
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, pos)
	end := fs.block.Len()
	if exitPatch >= 0 {
		fs.block.Patch(exitPatch, int32(end))
	}
	fs.patchLoopExits(lc, int32(end), int32(continueAt))
	fs.popLoop()
	return nil
}

// lowerForIn implements both for-in (PROPERTY_FOREACH/PROPERTY_NEXT over
// enumerable keys) and, as a deliberate simplification noted here rather
// than in the generator's actual behavior, for-of over arrays and strings
// by indexing 0..length-1 — this engine has no generic iterator protocol
// to dispatch through (§1 Non-goals scope out full iterator-protocol
// compliance).
func (fs *funcScope) lowerForIn(s *ast.ForInStmt) error {
	if s.Of {
		return fs.lowerForOf(s)
	}
	right, err := fs.lowerExpr(s.Right)
	if err != nil {
		return err
	}
	iter := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyForeach, Dst: iter, A: right}, s.Position)
	fs.release(right)

	lc := fs.pushLoop("", false)
	testAt := fs.block.Len()
	key := fs.temp()
	exitPatch := fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyNext, Dst: key, A: iter}, s.Position)
	if err := fs.assignForTarget(s.Left, key); err != nil {
		return err
	}
	fs.release(key)
	if err := fs.lowerStmt(s.Body); err != nil {
		return err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, s.Position)
	end := fs.block.Len()
	fs.block.Patch(exitPatch, int32(end))
	fs.patchLoopExits(lc, int32(end), int32(testAt))
	fs.popLoop()
	fs.release(iter)
	return nil
}

func (fs *funcScope) lowerForOf(s *ast.ForInStmt) error {
	right, err := fs.lowerExpr(s.Right)
	if err != nil {
		return err
	}
	arr := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: arr, A: right}, s.Position)
	fs.release(right)
	lengthKey := fs.stringConstant("length")
	length := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: length, A: arr, B: lengthKey}, s.Position)

	i := fs.temp()
	zero := fs.numberConstant(0)
	fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: i, A: zero}, s.Position)

	lc := fs.pushLoop("", false)
	testAt := fs.block.Len()
	cond := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpLt, Dst: cond, A: i, B: length}, s.Position)
	exitPatch := fs.emit(bytecode.Instruction{Op: bytecode.OpIfFalseJump, A: cond}, s.Position)
	fs.release(cond)

	elem := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: elem, A: arr, B: i}, s.Position)
	if err := fs.assignForTarget(s.Left, elem); err != nil {
		return err
	}
	fs.release(elem)
	if err := fs.lowerStmt(s.Body); err != nil {
		return err
	}
	continueAt := fs.block.Len()
	one := fs.numberConstant(1)
	fs.emit(bytecode.Instruction{Op: bytecode.OpAdd, Dst: i, A: i, B: one}, s.Position)
	fs.emit(bytecode.Instruction{Op: bytecode.OpJump, Imm: int32(testAt)}, s.Position)
	end := fs.block.Len()
	fs.block.Patch(exitPatch, int32(end))
	fs.patchLoopExits(lc, int32(end), int32(continueAt))
	fs.popLoop()
	fs.release(i)
	fs.release(length)
	fs.release(arr)
	return nil
}

// assignForTarget writes src into the loop variable of a for-in/for-of
// head, declaring a fresh binding for `for (let x ...)` or assigning an
// existing one for `for (x ...)`.
func (fs *funcScope) assignForTarget(left ast.Node, src scope.Index) error {
	switch l := left.(type) {
	case *ast.VarDeclStmt:
		return fs.assignPattern(l.Decls[0].Name, src)
	case ast.Expression:
		return fs.assignExprTarget(l, src)
	}
	return nil
}

func (fs *funcScope) lowerReturn(s *ast.ReturnStmt) error {
	var v scope.Index
	if s.Arg != nil {
		var err error
		v, err = fs.lowerExpr(s.Arg)
		if err != nil {
			return err
		}
	} else {
		v = fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpLet, Dst: v}, s.Position)
	}
	fs.runFinallyChain(0, bytecode.OpTryReturn, s.Position)
	fs.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: v}, s.Position)
	return nil
}

// runFinallyChain inlines every enclosing finally body from the innermost
// down to (but not including) stopDepth, the "duplicate the finally body
// at each exit" strategy (§4.6 Finally routing): this interpreter's
// TRY_BREAK/TRY_CONTINUE/TRY_RETURN are bookkeeping markers only, so the
// jump/return that follows is what actually crosses the boundary, and it
// is only correct once every intervening finally has actually run.
func (fs *funcScope) runFinallyChain(stopDepth int, marker bytecode.Opcode, pos ast.Position) {
	saved := fs.finallyStack
	for i := len(saved) - 1; i >= stopDepth; i-- {
		fs.emit(bytecode.Instruction{Op: marker}, pos)
		fs.finallyStack = saved[:i:i]
		fs.lowerStmts(saved[i].Body)
	}
	fs.finallyStack = saved
}

func (fs *funcScope) findLoop(label string) *loopCtx {
	for i := len(fs.loops) - 1; i >= 0; i-- {
		if label == "" || fs.loops[i].label == label {
			return fs.loops[i]
		}
	}
	return nil
}

func (fs *funcScope) lowerBreak(s *ast.BreakStmt) error {
	lc := fs.findLoop(s.Label)
	if lc == nil {
		return errf(s.Position, "codegen: break outside loop or switch")
	}
	fs.runFinallyChain(lc.finallyDepth, bytecode.OpTryBreak, s.Position)
	at := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Position)
	lc.breakPatches = append(lc.breakPatches, at)
	return nil
}

func (fs *funcScope) lowerContinue(s *ast.ContinueStmt) error {
	var lc *loopCtx
	for i := len(fs.loops) - 1; i >= 0; i-- {
		if fs.loops[i].isSwitch {
			continue
		}
		if s.Label == "" || fs.loops[i].label == s.Label {
			lc = fs.loops[i]
			break
		}
	}
	if lc == nil {
		return errf(s.Position, "codegen: continue outside loop")
	}
	fs.runFinallyChain(lc.finallyDepth, bytecode.OpTryContinue, s.Position)
	at := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Position)
	lc.continuePatches = append(lc.continuePatches, at)
	return nil
}

func (fs *funcScope) lowerLabeled(s *ast.LabeledStmt) error {
	switch body := s.Body.(type) {
	case *ast.ForStmt:
		return fs.lowerLabeledFor(s.Label, body)
	case *ast.WhileStmt:
		return fs.lowerLoopCommon(s.Label, body.Position, nil, body.Test, nil, body.Body)
	case *ast.ForInStmt, *ast.DoWhileStmt:
		// Falls back to the unlabeled lowering: the loop is pushed
		// without this label, so a break or continue that names the
		// label matches no loop and fails to compile ("break outside
		// loop or switch" / "continue outside loop").
		return fs.lowerStmt(body)
	default:
		return fs.lowerStmt(body)
	}
}

func (fs *funcScope) lowerLabeledFor(label string, s *ast.ForStmt) error {
	if s.Init != nil {
		switch init := s.Init.(type) {
		case *ast.VarDeclStmt:
			if err := fs.lowerVarDecl(init); err != nil {
				return err
			}
		case ast.Expression:
			v, err := fs.lowerExpr(init)
			if err != nil {
				return err
			}
			fs.release(v)
		}
	}
	return fs.lowerLoopCommon(label, s.Position, nil, s.Test, s.Update, s.Body)
}

func (fs *funcScope) lowerSwitch(s *ast.SwitchStmt) error {
	disc, err := fs.lowerExpr(s.Disc)
	if err != nil {
		return err
	}
	lc := fs.pushLoop("", true)
	type pendingCase struct {
		skip int
		idx  int
	}
	var pending []pendingCase
	defaultIdx := -1
	for i, c := range s.Cases {
		if c.Test == nil {
			defaultIdx = i
			continue
		}
		tv, err := fs.lowerExpr(c.Test)
		if err != nil {
			return err
		}
		eq := fs.temp()
		fs.emit(bytecode.Instruction{Op: bytecode.OpStrictEq, Dst: eq, A: disc, B: tv}, c.Position)
		fs.release(tv)
		at := fs.emit(bytecode.Instruction{Op: bytecode.OpIfTrueJump, A: eq}, c.Position)
		fs.release(eq)
		pending = append(pending, pendingCase{skip: at, idx: i})
	}
	fallthroughToDefault := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Position)
	fs.release(disc)

	positions := make([]int32, len(s.Cases))
	for i, c := range s.Cases {
		positions[i] = int32(fs.block.Len())
		if i == defaultIdx {
			fs.block.Patch(fallthroughToDefault, positions[i])
		}
		if err := fs.lowerStmts(c.Body); err != nil {
			return err
		}
	}
	end := int32(fs.block.Len())
	if defaultIdx == -1 {
		fs.block.Patch(fallthroughToDefault, end)
	}
	for _, pc := range pending {
		fs.block.Patch(pc.skip, positions[pc.idx])
	}
	fs.patchLoopExits(lc, end, -1)
	fs.popLoop()
	return nil
}

func (fs *funcScope) lowerTry(s *ast.TryStmt) error {
	handlerPatch := fs.emit(bytecode.Instruction{Op: bytecode.OpTryStart}, s.Position)

	if s.Finally != nil {
		fs.finallyStack = append(fs.finallyStack, s.Finally)
	}
	if err := fs.lowerStmts(s.Block.Body); err != nil {
		return err
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpTryEnd}, s.Position)
	if s.Finally != nil {
		fs.finallyStack = fs.finallyStack[:len(fs.finallyStack)-1]
		if err := fs.lowerStmts(s.Finally.Body); err != nil {
			return err
		}
	}
	skipHandler := fs.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Position)

	fs.block.Patch(handlerPatch, int32(fs.block.Len()))
	excSlot := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpCatch, Dst: excSlot}, s.Position)
	if s.Handler != nil {
		if s.Handler.Param != nil {
			if err := fs.assignPattern(s.Handler.Param, excSlot); err != nil {
				return err
			}
		}
		if s.Finally != nil {
			fs.finallyStack = append(fs.finallyStack, s.Finally)
		}
		if err := fs.lowerStmts(s.Handler.Body.Body); err != nil {
			return err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpTryEnd}, s.Position)
		if s.Finally != nil {
			fs.finallyStack = fs.finallyStack[:len(fs.finallyStack)-1]
			if err := fs.lowerStmts(s.Finally.Body); err != nil {
				return err
			}
		}
	} else if s.Finally != nil {
		if err := fs.lowerStmts(s.Finally.Body); err != nil {
			return err
		}
		fs.emit(bytecode.Instruction{Op: bytecode.OpThrow, A: excSlot}, s.Position)
	}
	fs.release(excSlot)
	fs.block.Patch(skipHandler, int32(fs.block.Len()))
	return nil
}

func (fs *funcScope) lowerImport(s *ast.ImportStmt) error {
	spec := fs.stringConstant(s.Specifier)
	ns := fs.temp()
	fs.emit(bytecode.Instruction{Op: bytecode.OpImport, Dst: ns, Imm: int32(spec.Offset())}, s.Position)
	if s.Namespace != "" {
		dst := fs.declareLocal(s.Namespace)
		fs.emit(bytecode.Instruction{Op: bytecode.OpMove, Dst: dst, A: ns}, s.Position)
	}
	if s.Default != "" {
		key := fs.stringConstant("default")
		dst := fs.declareLocal(s.Default)
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: dst, A: ns, B: key}, s.Position)
	}
	for exported, local := range s.Named {
		key := fs.stringConstant(exported)
		dst := fs.declareLocal(local)
		fs.emit(bytecode.Instruction{Op: bytecode.OpPropertyGet, Dst: dst, A: ns, B: key}, s.Position)
	}
	fs.release(ns)
	return nil
}

// lowerExport lowers the wrapped declaration for its side effects (binding
// creation); the actual export-table wiring that makes bindings visible to
// importers is the module registry's job (package module, §3 Module
// record), not the per-statement bytecode.
func (fs *funcScope) lowerExport(s *ast.ExportStmt) error {
	if s.Decl != nil {
		return fs.lowerStmt(s.Decl)
	}
	if s.Default != nil {
		v, err := fs.lowerExpr(s.Default)
		if err != nil {
			return err
		}
		fs.release(v)
	}
	return nil
}
