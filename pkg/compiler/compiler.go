package compiler

import (
	"fmt"

	"escargo/pkg/bytecode"
	"escargo/pkg/errors"
	"escargo/pkg/parser"
)

// scope is one lexical nesting level's name-to-register bindings,
// used for function parameters and local let/const/var declarations.
// Top-level (Program) bindings instead become properties of the
// global object (OpGetGlobal/OpSetGlobal), matching ECMAScript
// top-level var/function-declaration semantics.
type scope struct {
	vars map[string]uint32
}

// Compiler lowers one CodeBlock's AST (a Program or a function body)
// into a bytecode.Block via the AST Lowering Visitor,
// using the register allocator (regalloc.go) and the Label & Jump
// Fixup Table (fixup.go). One Compiler is created per CodeBlock; a
// FunctionLiteral's body is lowered by a fresh Compiler with no link to
// the enclosing one, so the enclosing function's locals are not visible
// inside it and any name it does not bind itself resolves to the global
// object (full closure capture is out of scope; see DESIGN.md).
type Compiler struct {
	block         *bytecode.Block
	regs          *RegisterAllocator
	fixup         *fixupTable
	scopes        []*scope
	isGlobalScope bool
	pendingLabel  string // set by lowerLabeled, consumed by the next loop it wraps
}

func newCompiler(isGlobal bool) *Compiler {
	return &Compiler{
		block:         bytecode.NewBlock(),
		regs:          NewRegisterAllocator(),
		fixup:         newFixupTable(),
		scopes:        []*scope{{vars: make(map[string]uint32)}},
		isGlobalScope: isGlobal,
	}
}

func (c *Compiler) pushScope()       { c.scopes = append(c.scopes, &scope{vars: make(map[string]uint32)}) }
func (c *Compiler) popScope()        { c.scopes = c.scopes[:len(c.scopes)-1] }
func (c *Compiler) top() *scope      { return c.scopes[len(c.scopes)-1] }

// declareLocal allocates a stack-identifier register for name in the
// current scope and returns it. Redeclaration in the same scope
// rebinds to a fresh register (shadowing, not mutation).
func (c *Compiler) declareLocal(name string) uint32 {
	reg := c.regs.AllocStackIdentifier()
	c.top().vars[name] = reg
	return reg
}

// resolve looks up name from the innermost scope outward; ok is false
// if it's not locally bound, in which case the caller falls back to
// the global object (OpGetGlobal/OpSetGlobal).
func (c *Compiler) resolve(name string) (reg uint32, ok bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if r, found := c.scopes[i].vars[name]; found {
			return r, true
		}
	}
	return 0, false
}

// fail aborts generation of the current CodeBlock by panicking with a
// ByteCodeGenerateError; recoverGenerateError catches it and replaces
// the block under construction with a single ThrowStaticError
// instruction.
func (c *Compiler) fail(loc int, format string, args ...interface{}) {
	panic(&errors.ByteCodeGenerateError{
		Position: errors.Position{StartPos: loc, EndPos: loc},
		Msg:      fmt.Sprintf(format, args...),
	})
}

// CompileResult is the output of CompileProgram: the CodeBlock holding
// the finished, rewritten block. It carries no diagnostics, since every
// generation failure is converted to a ThrowStaticError block per the
// error-handling rule.
type CompileResult struct {
	CodeBlock *bytecode.CodeBlock
}

// CompileProgram lowers a top-level Program into a CodeBlock whose
// declarations bind to the global object. This is the package's main
// entry point, implementing the AST Lowering Visitor together
// with the Register Rewriter run as a post-pass. When the program's
// last statement is an expression statement, its value is returned as
// the program's result; otherwise the program returns undefined.
func CompileProgram(prog *parser.Program) *CompileResult {
	c := newCompiler(true)
	cb := &bytecode.CodeBlock{Name: "<global>"}

	func() {
		defer c.recoverGenerateError(cb)
		for i, stmt := range prog.Statements {
			if es, ok := stmt.(*parser.ExpressionStatement); ok && i == len(prog.Statements)-1 {
				if fn, isFn := es.Expression.(*parser.FunctionLiteral); !isFn || fn.Name == nil {
					v := c.lowerExpression(es.Expression)
					c.emit(bytecode.Instruction{Op: bytecode.OpReturn, Operand1: v}, 0)
					c.regs.FreeTemp(v)
					continue
				}
			}
			c.lowerStatement(stmt)
		}
		c.emitReturnUndefinedIfNeeded()
	}()

	c.finalize(cb)
	return &CompileResult{CodeBlock: cb}
}

// CompileFunction lowers a single function body into its own
// CodeBlock, used both by CompileProgram's nested FunctionLiteral
// handling and directly by pkg/activation's lazy-compile step.
func CompileFunction(fn *parser.FunctionLiteral) *bytecode.CodeBlock {
	c := newCompiler(false)
	cb := &bytecode.CodeBlock{
		Name:                          functionName(fn),
		CanAllocateEnvironmentOnStack: true, // see DESIGN.md: capture analysis is out of scope
		FunctionNameSaveInfo:          bytecode.FunctionNameSaveInfo{Kind: bytecode.FunctionNameNotAllocated},
	}

	for _, p := range fn.Parameters {
		name := ""
		if p.Name != nil {
			name = p.Name.Value
		}
		reg := c.declareLocal(name)
		cb.Parameters = append(cb.Parameters, bytecode.ParameterDescriptor{Name: name, Index: int(reg - bytecode.RegularRegisterLimit)})
	}

	if fn.Name != nil {
		selfReg := c.declareLocal(fn.Name.Value)
		cb.FunctionNameSaveInfo = bytecode.FunctionNameSaveInfo{Kind: bytecode.FunctionNameOnStack, Index: int(selfReg - bytecode.RegularRegisterLimit)}
	}

	func() {
		defer c.recoverGenerateError(cb)
		if fn.Body != nil {
			for _, stmt := range fn.Body.Statements {
				c.lowerStatement(stmt)
			}
		}
		c.emitReturnUndefinedIfNeeded()
	}()

	c.finalize(cb)
	return cb
}

// CompiledClosure pairs a CodeBlock with the FunctionLiteral it was
// compiled from, the literal-pool payload a closure-producing
// OpLoadLiteral carries (AuxStr "closure"). Keeping the source AST
// alongside the compiled Block lets pkg/activation's code-cache trim
// evict CodeBlock.Block to reclaim memory and
// recompile lazily on the closure's next call, mirroring
// FunctionObject.cpp's generateByteCodeBlock "trim now, regenerate
// later" two-step.
type CompiledClosure struct {
	CodeBlock *bytecode.CodeBlock
	AST       *parser.FunctionLiteral
}

// EnsureCompiled recompiles AST into a fresh CodeBlock if a prior trim
// pass evicted cc.CodeBlock.Block, and returns the now-live CodeBlock.
func (cc *CompiledClosure) EnsureCompiled() *bytecode.CodeBlock {
	if cc.CodeBlock.Block == nil {
		cc.CodeBlock = CompileFunction(cc.AST)
	}
	return cc.CodeBlock
}

func functionName(fn *parser.FunctionLiteral) string {
	if fn.Name != nil {
		return fn.Name.Value
	}
	return ""
}

// recoverGenerateError implements the error-handling rule: a
// thrown ByteCodeGenerateError during visiting aborts generation; the
// block is replaced with a single ThrowStaticErrorOperation(SyntaxError,
// message). Any other panic is a fatal invariant violation and is
// re-raised.
func (c *Compiler) recoverGenerateError(cb *bytecode.CodeBlock) {
	r := recover()
	if r == nil {
		return
	}
	genErr, ok := r.(*errors.ByteCodeGenerateError)
	if !ok {
		panic(r)
	}
	c.block = bytecode.NewBlock()
	c.block.PushCode(bytecode.Instruction{Op: bytecode.OpThrowStaticError, AuxStr: genErr.Msg}, genErr.StartPos)
}

func (c *Compiler) emitReturnUndefinedIfNeeded() {
	if n := len(c.block.Code); n == 0 || (c.block.Code[n-1].Op != bytecode.OpReturn && c.block.Code[n-1].Op != bytecode.OpThrowStaticError) {
		undef := c.regs.AllocTemp()
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, Operand1: undef}, 0)
		c.emit(bytecode.Instruction{Op: bytecode.OpReturn, Operand1: undef}, 0)
		c.regs.FreeTemp(undef)
	}
}

func (c *Compiler) finalize(cb *bytecode.CodeBlock) {
	c.block.RequiredRegisterFileSize = c.regs.RequiredRegisterFileSize()
	c.block.IdentifiersOnStackCount = c.regs.IdentifiersOnStackCount()
	c.block.IsOnGlobal = c.isGlobalScope
	bytecode.RewriteBlock(c.block)
	c.block.MaybeDumpToStderr(cb.Name)
	cb.Block = c.block
}

func (c *Compiler) emit(instr bytecode.Instruction, loc int) int {
	return c.block.PushCode(instr, loc)
}
