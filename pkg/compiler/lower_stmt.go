package compiler

import (
	"escargo/pkg/bytecode"
	"escargo/pkg/parser"
)

// lowerStatement is the statement half of the AST Lowering Visitor.
// Unlike lowerExpression it returns nothing: statements
// are emitted purely for effect.
func (c *Compiler) lowerStatement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.ExpressionStatement:
		c.lowerExpressionStatement(s)
	case *parser.LetStatement:
		c.lowerDeclaration(s.Name, s.Value, s.Token.Line)
	case *parser.VarStatement:
		c.lowerDeclaration(s.Name, s.Value, s.Token.Line)
	case *parser.ConstStatement:
		c.lowerDeclaration(s.Name, s.Value, s.Token.Line)
	case *parser.BlockStatement:
		c.pushScope()
		for _, inner := range s.Statements {
			c.lowerStatement(inner)
		}
		c.popScope()
	case *parser.IfStatement:
		c.lowerIf(s)
	case *parser.WhileStatement:
		c.lowerWhile(s, "")
	case *parser.DoWhileStatement:
		c.lowerDoWhile(s, "")
	case *parser.ForStatement:
		c.lowerFor(s, "")
	case *parser.ForOfStatement:
		c.lowerForOf(s, "")
	case *parser.ForInStatement:
		c.lowerForIn(s, "")
	case *parser.BreakStatement:
		c.lowerBreak(s)
	case *parser.ContinueStatement:
		c.lowerContinue(s)
	case *parser.ReturnStatement:
		c.lowerReturn(s)
	case *parser.ThrowStatement:
		v := c.lowerExpression(s.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpThrow, Operand1: v}, s.Token.Line)
		c.regs.FreeTemp(v)
	case *parser.TryStatement:
		c.lowerTry(s)
	case *parser.WithStatement:
		c.lowerWith(s)
	case *parser.SwitchStatement:
		c.lowerSwitch(s)
	case *parser.LabeledStatement:
		c.lowerLabeled(s)
	default:
		c.fail(0, "unsupported statement node %T", stmt)
	}
}

// lowerExpressionStatement special-cases a named function-literal
// expression statement as a function declaration, binding its name at
// the point where the statement appears. Declarations are not hoisted:
// a call that runs before the declaration statement does not see the
// binding.
func (c *Compiler) lowerExpressionStatement(s *parser.ExpressionStatement) {
	if fn, ok := s.Expression.(*parser.FunctionLiteral); ok && fn.Name != nil {
		c.lowerDeclaration(fn.Name, fn, fn.Token.Line)
		return
	}
	v := c.lowerExpression(s.Expression)
	c.regs.FreeTemp(v)
}

func (c *Compiler) lowerDeclaration(name *parser.Identifier, value parser.Expression, line int) {
	var valueReg uint32
	if value != nil {
		valueReg = c.lowerExpression(value)
	} else {
		valueReg = c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, Operand1: valueReg}, line)
	}
	if c.isGlobalScope && len(c.scopes) == 1 {
		idx := c.block.AddLiteral(name.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetGlobal, Operand1: valueReg, Operand2: idx}, line)
		c.regs.FreeTemp(valueReg)
		return
	}
	reg := c.declareLocal(name.Value)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: valueReg}, line)
	c.regs.FreeTemp(valueReg)
}

func (c *Compiler) lowerIf(s *parser.IfStatement) {
	cond := c.lowerExpression(s.Condition)
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cond}, s.Token.Line)
	c.regs.FreeTemp(cond)
	c.lowerStatement(s.Consequence)
	if s.Alternative != nil {
		jend := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Token.Line)
		c.block.PeekCode(jf).Target = len(c.block.Code)
		c.lowerStatement(s.Alternative)
		c.block.PeekCode(jend).Target = len(c.block.Code)
	} else {
		c.block.PeekCode(jf).Target = len(c.block.Code)
	}
}

// takeLabel returns the label (if any) a LabeledStatement bound to
// this loop, clearing it so it isn't misapplied to a nested loop that
// lowerStatement reaches later in the same body.
func (c *Compiler) takeLabel(explicit string) string {
	if explicit != "" {
		return explicit
	}
	label := c.pendingLabel
	c.pendingLabel = ""
	return label
}

func (c *Compiler) lowerWhile(s *parser.WhileStatement, label string) {
	label = c.takeLabel(label)
	top := len(c.block.Code)
	cond := c.lowerExpression(s.Condition)
	jexit := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cond}, s.Token.Line)
	c.regs.FreeTemp(cond)
	c.lowerStatement(s.Body)
	continuePos := len(c.block.Code)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, Target: top}, s.Token.Line)
	exitPos := len(c.block.Code)
	c.block.PeekCode(jexit).Target = exitPos
	c.fixup.consumeContinue(c.block, continuePos, c.fixup.complexDepth)
	c.fixup.consumeBreak(c.block, exitPos, c.fixup.complexDepth)
	if label != "" {
		c.fixup.consumeLabeledContinue(c.block, label, continuePos, c.fixup.complexDepth)
		c.fixup.consumeLabeledBreak(c.block, label, exitPos, c.fixup.complexDepth)
	}
}

func (c *Compiler) lowerDoWhile(s *parser.DoWhileStatement, label string) {
	label = c.takeLabel(label)
	top := len(c.block.Code)
	c.lowerStatement(s.Body)
	continuePos := len(c.block.Code)
	cond := c.lowerExpression(s.Condition)
	c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfTrue, Operand1: cond, Target: top}, s.Token.Line)
	c.regs.FreeTemp(cond)
	exitPos := len(c.block.Code)
	c.fixup.consumeContinue(c.block, continuePos, c.fixup.complexDepth)
	c.fixup.consumeBreak(c.block, exitPos, c.fixup.complexDepth)
	if label != "" {
		c.fixup.consumeLabeledContinue(c.block, label, continuePos, c.fixup.complexDepth)
		c.fixup.consumeLabeledBreak(c.block, label, exitPos, c.fixup.complexDepth)
	}
}

func (c *Compiler) lowerFor(s *parser.ForStatement, label string) {
	label = c.takeLabel(label)
	c.pushScope()
	if s.Initializer != nil {
		c.lowerStatement(s.Initializer)
	}
	top := len(c.block.Code)
	var jexit int
	hasCond := s.Condition != nil
	if hasCond {
		cond := c.lowerExpression(s.Condition)
		jexit = c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cond}, s.Token.Line)
		c.regs.FreeTemp(cond)
	}
	c.lowerStatement(s.Body)
	continuePos := len(c.block.Code)
	if s.Update != nil {
		u := c.lowerExpression(s.Update)
		c.regs.FreeTemp(u)
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, Target: top}, s.Token.Line)
	exitPos := len(c.block.Code)
	if hasCond {
		c.block.PeekCode(jexit).Target = exitPos
	}
	c.fixup.consumeContinue(c.block, continuePos, c.fixup.complexDepth)
	c.fixup.consumeBreak(c.block, exitPos, c.fixup.complexDepth)
	if label != "" {
		c.fixup.consumeLabeledContinue(c.block, label, continuePos, c.fixup.complexDepth)
		c.fixup.consumeLabeledBreak(c.block, label, exitPos, c.fixup.complexDepth)
	}
	c.popScope()
}

// lowerForOf lowers for-of as index-based array iteration rather than
// the full Symbol.iterator protocol: the iterator-protocol dispatch
// belongs to pkg/runtime/pkg/activation and is not yet built (see
// DESIGN.md). The loop is still bracketed as a complex case, matching
// how a real iterator's return() finalizer would need unwinding if a
// break crossed it.
func (c *Compiler) lowerForOf(s *parser.ForOfStatement, label string) {
	label = c.takeLabel(label)
	c.pushScope()
	iterable := c.lowerExpression(s.Iterable)
	idx := c.loadNumberLiteral(0, s.Token.Line)
	lengthKey := c.loadStringLiteral("length", s.Token.Line)
	length := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: length, Operand2: iterable, Operand3: lengthKey}, s.Token.Line)
	c.regs.FreeTemp(lengthKey)

	top := len(c.block.Code)
	cmp := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: cmp, Operand2: idx, Operand3: length, AuxInt: int(bytecode.BinLt)}, s.Token.Line)
	jexit := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cmp}, s.Token.Line)
	c.regs.FreeTemp(cmp)

	elem := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: elem, Operand2: iterable, Operand3: idx}, s.Token.Line)
	c.bindLoopVariable(s.Variable, elem)

	c.fixup.EnterComplexScope()
	c.emit(bytecode.Instruction{Op: bytecode.OpPushIterationScope}, s.Token.Line)
	c.lowerStatement(s.Body)
	c.emit(bytecode.Instruction{Op: bytecode.OpPopIterationScope}, s.Token.Line)
	c.fixup.ExitComplexScope()

	continuePos := len(c.block.Code)
	one := c.loadNumberLiteral(1, s.Token.Line)
	nextIdx := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: nextIdx, Operand2: idx, Operand3: one, AuxInt: int(bytecode.BinAdd)}, s.Token.Line)
	c.regs.FreeTemp(one)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: idx, Operand2: nextIdx}, s.Token.Line)
	c.regs.FreeTemp(nextIdx)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, Target: top}, s.Token.Line)
	exitPos := len(c.block.Code)
	c.block.PeekCode(jexit).Target = exitPos

	c.fixup.consumeContinue(c.block, continuePos, c.fixup.complexDepth)
	c.fixup.consumeBreak(c.block, exitPos, c.fixup.complexDepth)
	if label != "" {
		c.fixup.consumeLabeledContinue(c.block, label, continuePos, c.fixup.complexDepth)
		c.fixup.consumeLabeledBreak(c.block, label, exitPos, c.fixup.complexDepth)
	}
	c.regs.FreeTemp(iterable)
	c.regs.FreeTemp(idx)
	c.regs.FreeTemp(length)
	c.regs.FreeTemp(elem)
	c.popScope()
}

// lowerForIn enumerates own enumerable string keys via OpGetOwnKeys,
// then iterates them the same way lowerForOf iterates array elements.
func (c *Compiler) lowerForIn(s *parser.ForInStatement, label string) {
	label = c.takeLabel(label)
	c.pushScope()
	obj := c.lowerExpression(s.Object)
	keys := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpGetOwnKeys, Operand1: keys, Operand2: obj}, s.Token.Line)
	idx := c.loadNumberLiteral(0, s.Token.Line)
	lengthKey := c.loadStringLiteral("length", s.Token.Line)
	length := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: length, Operand2: keys, Operand3: lengthKey}, s.Token.Line)
	c.regs.FreeTemp(lengthKey)

	top := len(c.block.Code)
	cmp := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: cmp, Operand2: idx, Operand3: length, AuxInt: int(bytecode.BinLt)}, s.Token.Line)
	jexit := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cmp}, s.Token.Line)
	c.regs.FreeTemp(cmp)

	key := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: key, Operand2: keys, Operand3: idx}, s.Token.Line)
	c.bindLoopVariable(s.Variable, key)

	c.lowerStatement(s.Body)

	continuePos := len(c.block.Code)
	one := c.loadNumberLiteral(1, s.Token.Line)
	nextIdx := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: nextIdx, Operand2: idx, Operand3: one, AuxInt: int(bytecode.BinAdd)}, s.Token.Line)
	c.regs.FreeTemp(one)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: idx, Operand2: nextIdx}, s.Token.Line)
	c.regs.FreeTemp(nextIdx)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, Target: top}, s.Token.Line)
	exitPos := len(c.block.Code)
	c.block.PeekCode(jexit).Target = exitPos

	c.fixup.consumeContinue(c.block, continuePos, c.fixup.complexDepth)
	c.fixup.consumeBreak(c.block, exitPos, c.fixup.complexDepth)
	if label != "" {
		c.fixup.consumeLabeledContinue(c.block, label, continuePos, c.fixup.complexDepth)
		c.fixup.consumeLabeledBreak(c.block, label, exitPos, c.fixup.complexDepth)
	}
	c.regs.FreeTemp(obj)
	c.regs.FreeTemp(keys)
	c.regs.FreeTemp(idx)
	c.regs.FreeTemp(length)
	c.regs.FreeTemp(key)
	c.popScope()
}

// bindLoopVariable handles for-of/for-in's Variable, which the parser
// represents as a fresh *LetStatement/*ConstStatement (no Value — the
// loop supplies it) or an *ExpressionStatement wrapping a plain
// *Identifier for the no-declaration form (`for (x of xs)`).
func (c *Compiler) bindLoopVariable(variable parser.Statement, valueReg uint32) {
	switch v := variable.(type) {
	case *parser.LetStatement:
		reg := c.declareLocal(v.Name.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: valueReg}, v.Token.Line)
	case *parser.ConstStatement:
		reg := c.declareLocal(v.Name.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: valueReg}, v.Token.Line)
	case *parser.VarStatement:
		reg := c.declareLocal(v.Name.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: valueReg}, v.Token.Line)
	case *parser.ExpressionStatement:
		if ident, ok := v.Expression.(*parser.Identifier); ok {
			if reg, ok := c.resolve(ident.Value); ok {
				c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: valueReg}, v.Token.Line)
				return
			}
			idx := c.block.AddLiteral(ident.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpSetGlobal, Operand1: valueReg, Operand2: idx}, v.Token.Line)
			return
		}
		c.fail(0, "unsupported for-of/for-in binding target %T", v.Expression)
	default:
		c.fail(0, "unsupported for-of/for-in binding %T", variable)
	}
}

func (c *Compiler) lowerBreak(s *parser.BreakStatement) {
	off := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Token.Line)
	if s.Label != nil {
		c.fixup.pushLabeledBreak(s.Label.Value, off)
		return
	}
	c.fixup.pushBreak(off)
}

func (c *Compiler) lowerContinue(s *parser.ContinueStatement) {
	off := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Token.Line)
	if s.Label != nil {
		c.fixup.pushLabeledContinue(s.Label.Value, off)
		return
	}
	c.fixup.pushContinue(off)
}

func (c *Compiler) lowerReturn(s *parser.ReturnStatement) {
	var v uint32
	if s.ReturnValue != nil {
		v = c.lowerExpression(s.ReturnValue)
	} else {
		v = c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, Operand1: v}, s.Token.Line)
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpReturn, Operand1: v}, s.Token.Line)
	c.regs.FreeTemp(v)
}

// lowerTry emits PushTry/PopTry bracketing the protected region, with
// the catch and finally entry points patched onto the PushTry
// instruction itself (Target=catch entry, AuxInt=finally entry; -1
// when absent) rather than a separate out-of-band exception table,
// since this compiler targets a single minimal interpreter rather than
// a JIT needing that table's stability across recompilation (the
// "complex case" unwind machinery is still fully exercised via
// EnterComplexScope/ExitComplexScope).
func (c *Compiler) lowerTry(s *parser.TryStatement) {
	pushOff := c.emit(bytecode.Instruction{Op: bytecode.OpPushTry, Target: -1, AuxInt: -1}, s.Token.Line)
	c.fixup.EnterComplexScope()
	c.pushScope()
	for _, inner := range s.Body.Statements {
		c.lowerStatement(inner)
	}
	c.popScope()
	c.fixup.ExitComplexScope()
	c.emit(bytecode.Instruction{Op: bytecode.OpPopTry}, s.Token.Line)
	jover := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Token.Line)

	if s.CatchClause != nil {
		catchPos := len(c.block.Code)
		c.block.PeekCode(pushOff).Target = catchPos
		c.pushScope()
		excReg := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpBindCaughtException, Operand1: excReg}, s.CatchClause.Token.Line)
		if s.CatchClause.Parameter != nil {
			reg := c.declareLocal(s.CatchClause.Parameter.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: excReg}, s.CatchClause.Token.Line)
		}
		c.regs.FreeTemp(excReg)
		// With a finally present, entering the catch leaves a finally-only
		// try frame on the runtime scope stack (unwind.go); count it as a
		// complex scope and pop it when the catch body completes normally.
		if s.FinallyBlock != nil {
			c.fixup.EnterComplexScope()
		}
		for _, inner := range s.CatchClause.Body.Statements {
			c.lowerStatement(inner)
		}
		if s.FinallyBlock != nil {
			c.fixup.ExitComplexScope()
			c.emit(bytecode.Instruction{Op: bytecode.OpPopTry}, s.CatchClause.Token.Line)
		}
		c.popScope()
	}
	c.block.PeekCode(jover).Target = len(c.block.Code)

	if s.FinallyBlock != nil {
		finallyPos := len(c.block.Code)
		c.block.PeekCode(pushOff).AuxInt = finallyPos
		c.pushScope()
		for _, inner := range s.FinallyBlock.Statements {
			c.lowerStatement(inner)
		}
		c.popScope()
		c.emit(bytecode.Instruction{Op: bytecode.OpEndFinally}, s.Token.Line)
	}
}

// lowerWith binds Object as the lookup scope for Body's unqualified
// identifier references. Name resolution against the with-object is a
// pkg/activation concern at evaluation time, not a compile-time one:
// the compiler only brackets the scope so the interpreter knows which
// region has an active with-object on its scope chain.
func (c *Compiler) lowerWith(s *parser.WithStatement) {
	obj := c.lowerExpression(s.Object)
	c.emit(bytecode.Instruction{Op: bytecode.OpPushWith, Operand1: obj}, s.Token.Line)
	c.regs.FreeTemp(obj)
	c.fixup.EnterComplexScope()
	c.lowerStatement(s.Body)
	c.fixup.ExitComplexScope()
	c.emit(bytecode.Instruction{Op: bytecode.OpPopWith}, s.Token.Line)
}

func (c *Compiler) lowerLabeled(s *parser.LabeledStatement) {
	switch s.Body.(type) {
	case *parser.WhileStatement, *parser.DoWhileStatement, *parser.ForStatement, *parser.ForOfStatement, *parser.ForInStatement:
		c.pendingLabel = s.Label.Value
		c.lowerStatement(s.Body)
		return
	}
	// Non-loop body: only a labeled break can target it, consumed right
	// after the block finishes.
	c.lowerStatement(s.Body)
	end := len(c.block.Code)
	c.fixup.consumeLabeledBreak(c.block, s.Label.Value, end, c.fixup.complexDepth)
}

func (c *Compiler) lowerSwitch(s *parser.SwitchStatement) {
	discr := c.lowerExpression(s.Expression)
	var jumps []int
	defaultIdx := -1
	for i, kase := range s.Cases {
		if kase.Condition == nil {
			defaultIdx = i
			continue
		}
		test := c.lowerExpression(kase.Condition)
		cmp := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: cmp, Operand2: discr, Operand3: test, AuxInt: int(bytecode.BinStrictEq)}, s.Token.Line)
		c.regs.FreeTemp(test)
		jumps = append(jumps, c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfTrue, Operand1: cmp}, s.Token.Line))
		c.regs.FreeTemp(cmp)
	}
	fallback := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, s.Token.Line)
	c.regs.FreeTemp(discr)

	c.pushScope()
	ji := 0
	bodyStarts := make([]int, len(s.Cases))
	for i, kase := range s.Cases {
		bodyStarts[i] = len(c.block.Code)
		if kase.Condition != nil {
			c.block.PeekCode(jumps[ji]).Target = bodyStarts[i]
			ji++
		}
		for _, inner := range kase.Body.Statements {
			c.lowerStatement(inner)
		}
	}
	c.popScope()

	end := len(c.block.Code)
	if defaultIdx >= 0 {
		c.block.PeekCode(fallback).Target = bodyStarts[defaultIdx]
	} else {
		c.block.PeekCode(fallback).Target = end
	}
	c.fixup.consumeBreak(c.block, end, c.fixup.complexDepth)
}
