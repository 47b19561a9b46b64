package compiler

import (
	"escargo/pkg/bytecode"
	"escargo/pkg/parser"
)

// lowerExpression is the expression half of the AST Lowering Visitor.
// It returns a register holding the expression's value;
// for a local binding this is the binding's own stack-identifier
// register (never freed), for anything else a fresh temporary the
// caller is responsible for freeing via regs.FreeTemp once consumed.
func (c *Compiler) lowerExpression(expr parser.Expression) uint32 {
	switch e := expr.(type) {
	case *parser.NumberLiteral:
		return c.loadNumberLiteral(e.Value, e.Token.Line)

	case *parser.StringLiteral:
		return c.loadStringLiteral(e.Value, e.Token.Line)

	case *parser.BooleanLiteral:
		dest := c.regs.AllocTemp()
		op := bytecode.OpLoadFalse
		if e.Value {
			op = bytecode.OpLoadTrue
		}
		c.emit(bytecode.Instruction{Op: op, Operand1: dest}, e.Token.Line)
		return dest

	case *parser.NullLiteral:
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadNull, Operand1: dest}, e.Token.Line)
		return dest

	case *parser.UndefinedLiteral:
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, Operand1: dest}, e.Token.Line)
		return dest

	case *parser.ThisExpression:
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadThis, Operand1: dest}, e.Token.Line)
		return dest

	case *parser.RegexLiteral:
		idx := c.block.AddLiteral(bytecode.RegexLiteral{Pattern: e.Pattern, Flags: e.Flags})
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadLiteral, Operand1: dest, Operand2: idx}, e.Token.Line)
		return dest

	case *parser.TemplateLiteral:
		return c.lowerTemplateLiteral(e)

	case *parser.Identifier:
		if reg, ok := c.resolve(e.Value); ok {
			return reg
		}
		return c.loadGlobal(e.Value, e.Token.Line)

	case *parser.AssignmentExpression:
		return c.lowerAssignment(e)

	case *parser.UpdateExpression:
		return c.lowerUpdate(e)

	case *parser.PrefixExpression:
		return c.lowerPrefix(e)

	case *parser.InfixExpression:
		return c.lowerInfix(e)

	case *parser.TernaryExpression:
		return c.lowerTernary(e)

	case *parser.CallExpression:
		return c.lowerCall(e)

	case *parser.NewExpression:
		return c.lowerNew(e)

	case *parser.ArrayLiteral:
		return c.lowerArrayLiteral(e)

	case *parser.ObjectLiteral:
		return c.lowerObjectLiteral(e)

	case *parser.IndexExpression:
		objReg := c.lowerExpression(e.Left)
		keyReg := c.lowerExpression(e.Index)
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: dest, Operand2: objReg, Operand3: keyReg}, e.Token.Line)
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		return dest

	case *parser.MemberExpression:
		objReg := c.lowerExpression(e.Object)
		keyReg := c.memberKeyRegister(e)
		dest := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: dest, Operand2: objReg, Operand3: keyReg}, e.Token.Line)
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		return dest

	case *parser.FunctionLiteral:
		return c.lowerFunctionExpression(e)

	default:
		c.fail(0, "unsupported expression node %T", expr)
		panic("unreachable")
	}
}

func (c *Compiler) loadNumberLiteral(n float64, line int) uint32 {
	dest := c.regs.AllocTemp()
	idx := c.block.AddNumeralLiteral(n, bytecode.RegularRegisterLimit, bytecode.VariableLimit)
	c.emit(bytecode.Instruction{Op: bytecode.OpLoadLiteral, Operand1: dest, Operand2: idx}, line)
	return dest
}

func (c *Compiler) loadStringLiteral(s string, line int) uint32 {
	dest := c.regs.AllocTemp()
	idx := c.block.AddLiteral(s)
	c.emit(bytecode.Instruction{Op: bytecode.OpLoadLiteral, Operand1: dest, Operand2: idx}, line)
	return dest
}

func (c *Compiler) loadGlobal(name string, line int) uint32 {
	dest := c.regs.AllocTemp()
	idx := c.block.AddLiteral(name)
	c.emit(bytecode.Instruction{Op: bytecode.OpGetGlobal, Operand1: dest, Operand2: idx}, line)
	return dest
}

// memberKeyRegister loads a MemberExpression's (always-identifier,
// dot-access) property name as a string-literal register so
// OpGetObject/OpSetObject never need a separate "static key" operand
// shape from IndexExpression's dynamic one.
func (c *Compiler) memberKeyRegister(e *parser.MemberExpression) uint32 {
	ident, ok := e.Property.(*parser.Identifier)
	if !ok {
		return c.lowerExpression(e.Property)
	}
	return c.loadStringLiteral(ident.Value, e.Token.Line)
}

func (c *Compiler) lowerTemplateLiteral(tl *parser.TemplateLiteral) uint32 {
	acc := c.loadStringLiteral("", tl.Token.Line)
	for i, part := range tl.Parts {
		var partReg uint32
		owned := true
		if i%2 == 0 {
			s, _ := part.(interface{ String() string })
			text := ""
			if s != nil {
				text = s.String()
			}
			partReg = c.loadStringLiteral(text, tl.Token.Line)
		} else {
			expr, _ := part.(parser.Expression)
			partReg = c.lowerExpression(expr)
		}
		next := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: next, Operand2: acc, Operand3: partReg, AuxInt: int(bytecode.BinAdd)}, tl.Token.Line)
		if owned {
			c.regs.FreeTemp(partReg)
		}
		c.regs.FreeTemp(acc)
		acc = next
	}
	return acc
}

var infixOps = map[string]bytecode.BinaryOp{
	"+": bytecode.BinAdd, "-": bytecode.BinSub, "*": bytecode.BinMul,
	"/": bytecode.BinDiv, "%": bytecode.BinMod,
	"==": bytecode.BinEq, "===": bytecode.BinStrictEq,
	"!=": bytecode.BinNeq, "!==": bytecode.BinStrictNeq,
	"<": bytecode.BinLt, "<=": bytecode.BinLte,
	">": bytecode.BinGt, ">=": bytecode.BinGte,
	"instanceof": bytecode.BinInstanceOf, "in": bytecode.BinIn,
}

var prefixOps = map[string]bytecode.UnaryOp{
	"-": bytecode.UnaryNeg, "!": bytecode.UnaryNot,
	"typeof": bytecode.UnaryTypeof, "void": bytecode.UnaryVoid,
	"~": bytecode.UnaryBitNot,
}

func (c *Compiler) lowerPrefix(e *parser.PrefixExpression) uint32 {
	op, ok := prefixOps[e.Operator]
	if !ok {
		c.fail(e.Token.StartPos, "unsupported prefix operator %q", e.Operator)
	}
	right := c.lowerExpression(e.Right)
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpUnary, Operand1: dest, Operand2: right, AuxInt: int(op)}, e.Token.Line)
	c.regs.FreeTemp(right)
	return dest
}

// lowerInfix handles arithmetic/comparison directly, and short-circuits
// &&, || and ?? with jumps rather than always-evaluate-both-sides
// (InfixExpression's scope includes logical operators).
func (c *Compiler) lowerInfix(e *parser.InfixExpression) uint32 {
	switch e.Operator {
	case "&&":
		return c.lowerShortCircuit(e, true)
	case "||":
		return c.lowerShortCircuit(e, false)
	case "??":
		return c.lowerNullish(e)
	}
	op, ok := infixOps[e.Operator]
	if !ok {
		c.fail(e.Token.StartPos, "unsupported infix operator %q", e.Operator)
	}
	left := c.lowerExpression(e.Left)
	right := c.lowerExpression(e.Right)
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpBinary, Operand1: dest, Operand2: left, Operand3: right, AuxInt: int(op)}, e.Token.Line)
	c.regs.FreeTemp(left)
	c.regs.FreeTemp(right)
	return dest
}

// lowerShortCircuit implements && (wantTrue=true: skip right when left
// is falsey) and || (wantTrue=false: skip right when left is truthy),
// both evaluating into the same result register.
func (c *Compiler) lowerShortCircuit(e *parser.InfixExpression, wantTrue bool) uint32 {
	result := c.regs.AllocTemp()
	left := c.lowerExpression(e.Left)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: left}, e.Token.Line)
	c.regs.FreeTemp(left)
	skipOp := bytecode.OpJumpIfFalse
	if !wantTrue {
		skipOp = bytecode.OpJumpIfTrue
	}
	skip := c.emit(bytecode.Instruction{Op: skipOp, Operand1: result}, e.Token.Line)
	right := c.lowerExpression(e.Right)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: right}, e.Token.Line)
	c.regs.FreeTemp(right)
	c.block.PeekCode(skip).Target = len(c.block.Code)
	return result
}

func (c *Compiler) lowerNullish(e *parser.InfixExpression) uint32 {
	result := c.regs.AllocTemp()
	left := c.lowerExpression(e.Left)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: left}, e.Token.Line)
	c.regs.FreeTemp(left)
	isNullish := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpUnary, Operand1: isNullish, Operand2: result, AuxInt: int(bytecode.UnaryNullishCheck)}, e.Token.Line)
	skip := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: isNullish}, e.Token.Line)
	c.regs.FreeTemp(isNullish)
	right := c.lowerExpression(e.Right)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: right}, e.Token.Line)
	c.regs.FreeTemp(right)
	c.block.PeekCode(skip).Target = len(c.block.Code)
	return result
}

func (c *Compiler) lowerTernary(e *parser.TernaryExpression) uint32 {
	cond := c.lowerExpression(e.Condition)
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, Operand1: cond}, e.Token.Line)
	c.regs.FreeTemp(cond)
	result := c.regs.AllocTemp()
	cons := c.lowerExpression(e.Consequence)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: cons}, e.Token.Line)
	c.regs.FreeTemp(cons)
	jend := c.emit(bytecode.Instruction{Op: bytecode.OpJump}, e.Token.Line)
	c.block.PeekCode(jf).Target = len(c.block.Code)
	alt := c.lowerExpression(e.Alternative)
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: alt}, e.Token.Line)
	c.regs.FreeTemp(alt)
	c.block.PeekCode(jend).Target = len(c.block.Code)
	return result
}

func (c *Compiler) lowerUpdate(e *parser.UpdateExpression) uint32 {
	op := bytecode.UnaryIncrement
	if e.Operator == "--" {
		op = bytecode.UnaryDecrement
	}
	switch target := e.Argument.(type) {
	case *parser.Identifier:
		if reg, ok := c.resolve(target.Value); ok {
			return c.applyUpdate(reg, op, e.Prefix, e.Token.Line, func(v uint32) { c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: v}, e.Token.Line) })
		}
		cur := c.loadGlobal(target.Value, e.Token.Line)
		result := c.applyUpdate(cur, op, e.Prefix, e.Token.Line, func(v uint32) {
			idx := c.block.AddLiteral(target.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpSetGlobal, Operand1: v, Operand2: idx}, e.Token.Line)
		})
		c.regs.FreeTemp(cur)
		return result
	case *parser.MemberExpression:
		objReg := c.lowerExpression(target.Object)
		keyReg := c.memberKeyRegister(target)
		cur := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: cur, Operand2: objReg, Operand3: keyReg}, e.Token.Line)
		result := c.applyUpdate(cur, op, e.Prefix, e.Token.Line, func(v uint32) {
			c.emit(bytecode.Instruction{Op: bytecode.OpSetObject, Operand1: objReg, Operand2: keyReg, Operand3: v}, e.Token.Line)
		})
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		c.regs.FreeTemp(cur)
		return result
	case *parser.IndexExpression:
		objReg := c.lowerExpression(target.Left)
		keyReg := c.lowerExpression(target.Index)
		cur := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: cur, Operand2: objReg, Operand3: keyReg}, e.Token.Line)
		result := c.applyUpdate(cur, op, e.Prefix, e.Token.Line, func(v uint32) {
			c.emit(bytecode.Instruction{Op: bytecode.OpSetObject, Operand1: objReg, Operand2: keyReg, Operand3: v}, e.Token.Line)
		})
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		c.regs.FreeTemp(cur)
		return result
	default:
		c.fail(e.Token.StartPos, "invalid update target %T", e.Argument)
		panic("unreachable")
	}
}

// applyUpdate computes cur +/- 1 into a fresh register, stores it via
// store, and returns the pre- or post-update value per e.Prefix.
func (c *Compiler) applyUpdate(cur uint32, op bytecode.UnaryOp, prefix bool, line int, store func(uint32)) uint32 {
	updated := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpUnary, Operand1: updated, Operand2: cur, AuxInt: int(op)}, line)
	store(updated)
	if prefix {
		result := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: updated}, line)
		c.regs.FreeTemp(updated)
		return result
	}
	result := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: result, Operand2: cur}, line)
	c.regs.FreeTemp(updated)
	return result
}

func (c *Compiler) lowerAssignment(e *parser.AssignmentExpression) uint32 {
	if e.Operator != "=" {
		base := e.Operator[:len(e.Operator)-1]
		rewritten := &parser.InfixExpression{Token: e.Token, Left: e.Left, Operator: base, Right: e.Value}
		return c.lowerAssignment(&parser.AssignmentExpression{Token: e.Token, Operator: "=", Left: e.Left, Value: rewritten})
	}
	switch target := e.Left.(type) {
	case *parser.Identifier:
		value := c.lowerExpression(e.Value)
		if reg, ok := c.resolve(target.Value); ok {
			c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: reg, Operand2: value}, e.Token.Line)
			c.regs.FreeTemp(value)
			return reg
		}
		idx := c.block.AddLiteral(target.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetGlobal, Operand1: value, Operand2: idx}, e.Token.Line)
		return value
	case *parser.MemberExpression:
		objReg := c.lowerExpression(target.Object)
		keyReg := c.memberKeyRegister(target)
		value := c.lowerExpression(e.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetObject, Operand1: objReg, Operand2: keyReg, Operand3: value}, e.Token.Line)
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		return value
	case *parser.IndexExpression:
		objReg := c.lowerExpression(target.Left)
		keyReg := c.lowerExpression(target.Index)
		value := c.lowerExpression(e.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetObject, Operand1: objReg, Operand2: keyReg, Operand3: value}, e.Token.Line)
		c.regs.FreeTemp(objReg)
		c.regs.FreeTemp(keyReg)
		return value
	default:
		c.fail(e.Token.StartPos, "invalid assignment target %T", e.Left)
		panic("unreachable")
	}
}

func (c *Compiler) lowerCall(e *parser.CallExpression) uint32 {
	var thisReg, calleeReg uint32
	switch callee := e.Function.(type) {
	case *parser.MemberExpression:
		thisReg = c.lowerExpression(callee.Object)
		keyReg := c.memberKeyRegister(callee)
		calleeReg = c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: calleeReg, Operand2: thisReg, Operand3: keyReg}, e.Token.Line)
		c.regs.FreeTemp(keyReg)
	case *parser.IndexExpression:
		thisReg = c.lowerExpression(callee.Left)
		keyReg := c.lowerExpression(callee.Index)
		calleeReg = c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpGetObject, Operand1: calleeReg, Operand2: thisReg, Operand3: keyReg}, e.Token.Line)
		c.regs.FreeTemp(keyReg)
	default:
		thisReg = c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, Operand1: thisReg}, e.Token.Line)
		calleeReg = c.lowerExpression(e.Function)
	}

	argStart := c.lowerArgumentsContiguous(e.Arguments, e.Token.Line)
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpCall, Operand1: dest, Operand2: calleeReg, Operand3: thisReg, Operand4: argStart, Operand5: uint32(len(e.Arguments))}, e.Token.Line)
	c.regs.FreeTemp(thisReg)
	c.regs.FreeTemp(calleeReg)
	for i := 0; i < len(e.Arguments); i++ {
		c.regs.FreeTemp(argStart + uint32(i))
	}
	return dest
}

func (c *Compiler) lowerNew(e *parser.NewExpression) uint32 {
	ctorReg := c.lowerExpression(e.Constructor)
	argStart := c.lowerArgumentsContiguous(e.Arguments, e.Token.Line)
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpNew, Operand1: dest, Operand2: ctorReg, Operand3: argStart, Operand4: uint32(len(e.Arguments))}, e.Token.Line)
	c.regs.FreeTemp(ctorReg)
	for i := 0; i < len(e.Arguments); i++ {
		c.regs.FreeTemp(argStart + uint32(i))
	}
	return dest
}

// lowerArgumentsContiguous evaluates each argument expression directly
// into a contiguous temp range (OpCall's argv must be
// addressable as a single base+count pair), rather than evaluating
// into arbitrary temps and copying — avoiding a redundant Move per
// argument. Spread arguments are not supported (see DESIGN.md).
func (c *Compiler) lowerArgumentsContiguous(args []parser.Expression, line int) uint32 {
	start := c.regs.AllocTempRange(len(args))
	for i, arg := range args {
		if _, isSpread := arg.(*parser.SpreadElement); isSpread {
			c.fail(line, "spread arguments are not supported")
		}
		v := c.lowerExpression(arg)
		c.emit(bytecode.Instruction{Op: bytecode.OpMove, Operand1: start + uint32(i), Operand2: v}, line)
		c.regs.FreeTemp(v)
	}
	return start
}

func (c *Compiler) lowerArrayLiteral(e *parser.ArrayLiteral) uint32 {
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, Operand1: dest}, e.Token.Line)
	for _, el := range e.Elements {
		if _, isSpread := el.(*parser.SpreadElement); isSpread {
			c.fail(e.Token.StartPos, "spread elements in array literals are not supported")
		}
		v := c.lowerExpression(el)
		c.emit(bytecode.Instruction{Op: bytecode.OpArrayPush, Operand1: dest, Operand2: v}, e.Token.Line)
		c.regs.FreeTemp(v)
	}
	return dest
}

func (c *Compiler) lowerObjectLiteral(e *parser.ObjectLiteral) uint32 {
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpNewObject, Operand1: dest}, e.Token.Line)
	for _, prop := range e.Properties {
		if _, isSpread := prop.Key.(*parser.SpreadElement); isSpread {
			c.fail(e.Token.StartPos, "spread properties in object literals are not supported")
		}
		var keyReg uint32
		switch k := prop.Key.(type) {
		case *parser.Identifier:
			keyReg = c.loadStringLiteral(k.Value, e.Token.Line)
		case *parser.StringLiteral:
			keyReg = c.loadStringLiteral(k.Value, e.Token.Line)
		default:
			keyReg = c.lowerExpression(prop.Key)
		}
		valueReg := c.lowerExpression(prop.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpDefineOwnProperty, Operand1: dest, Operand2: keyReg, Operand3: valueReg}, e.Token.Line)
		c.regs.FreeTemp(keyReg)
		c.regs.FreeTemp(valueReg)
	}
	return dest
}

// lowerFunctionExpression compiles a nested FunctionLiteral into its
// own CodeBlock (a lazy-compile target) and emits it
// as a literal-pool closure template; pkg/activation instantiates a
// fresh closure object from it on each evaluation.
func (c *Compiler) lowerFunctionExpression(fn *parser.FunctionLiteral) uint32 {
	child := CompileFunction(fn)
	idx := c.block.AddLiteral(&CompiledClosure{CodeBlock: child, AST: fn})
	dest := c.regs.AllocTemp()
	c.emit(bytecode.Instruction{Op: bytecode.OpLoadLiteral, Operand1: dest, Operand2: idx, AuxStr: "closure"}, fn.Token.Line)
	return dest
}
