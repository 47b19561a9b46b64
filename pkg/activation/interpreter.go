package activation

import (
	"fmt"
	"os"

	"escargo/pkg/bytecode"
	"escargo/pkg/compiler"
	"escargo/pkg/runtime"
)

// debugActivation gates a human-readable per-instruction trace,
// matching the host's package-level debug-flag convention
// (pkg/vm's debugVM/debugCalls/debugExceptions) rather than a logging
// library.
const debugActivation = false

// maxCallDepth bounds ExecutionContext nesting; exceeding it throws the
// engine's stand-in for a host stack-overflow RangeError rather than
// letting a runaway recursive script crash the Go process.
const maxCallDepth = 2000

// Interpreter owns the runtime this CodeBlock/Closure graph executes
// against, plus the bookkeeping the Activation & Call Protocol needs
// across calls: the active ExecutionContext chain (for the code-cache
// trim walk) and the call-depth counter.
type Interpreter struct {
	Runtime *runtime.Runtime

	top   *ExecutionContext
	depth int

	// compiled is every CodeBlock this interpreter has executed,
	// consulted by the code-cache trim pass (cache_trim.go) to find
	// eviction candidates outside the live Outer chain.
	compiled []*bytecode.CodeBlock
}

func NewInterpreter(rt *runtime.Runtime) *Interpreter {
	return &Interpreter{Runtime: rt}
}

// Run executes a top-level CompiledClosure (compiler.CompileProgram's
// result, wrapped with no source AST since a global CodeBlock is never
// lazily recompiled) as the program's entry activation, with no
// receiver and no arguments — cmd/paserati's driver entry point.
func Run(ip *Interpreter, cc *compiler.CompiledClosure) (runtime.Value, error) {
	return ip.call(cc, runtime.Undefined, nil, false)
}

// Closure adapts a compiler.CompiledClosure into a runtime.Callable,
// the bridge OpLoadLiteral's "closure" literal-pool entries are turned
// into at evaluation time (pkg/compiler/lower_expr.go's
// lowerFunctionExpression).
type Closure struct {
	cc     *compiler.CompiledClosure
	interp *Interpreter
}

func NewClosure(cc *compiler.CompiledClosure, interp *Interpreter) *Closure {
	return &Closure{cc: cc, interp: interp}
}

func (cl *Closure) IsConstructor() bool { return true }

func (cl *Closure) Call(this runtime.Value, args []runtime.Value) (runtime.Value, error) {
	return cl.interp.call(cl.cc, this, args, false)
}

func typeError(format string, args ...interface{}) error {
	return &runtime.ThrownError{Value: runtime.String("TypeError: " + fmt.Sprintf(format, args...))}
}

func rangeError(msg string) error {
	return &runtime.ThrownError{Value: runtime.String("RangeError: " + msg)}
}

// call implements the Activation & Call Protocol, grounded
// on FunctionObject.cpp's call(): stack-overflow guard, lazy
// recompilation of a trimmed CodeBlock, register-file allocation,
// receiver coercion, parameter binding, a function-name self-binding,
// ExecutionContext linkage, and running the instruction stream to
// completion or to an uncaught throw.
func (ip *Interpreter) call(cc *compiler.CompiledClosure, this runtime.Value, args []runtime.Value, isNew bool) (runtime.Value, error) {
	if ip.depth >= maxCallDepth {
		return runtime.Undefined, rangeError("Maximum call stack size exceeded")
	}

	cb := cc.EnsureCompiled() // recompile if the cache trim evicted this CodeBlock
	ip.registerCompiled(cb)

	size := cb.Block.RequiredRegisterFileSize + cb.Block.IdentifiersOnStackCount
	if !isNew && this.IsNullish() {
		this = runtime.ObjectValue(ip.Runtime.Global) // sloppy-mode receiver substitution
	}

	ctx := newExecutionContext(ip.top, ip, cb, size, this)

	// Parameters and the function-name self-binding are declared via
	// RegisterAllocator.AllocStackIdentifier, which returns a virtual
	// region-2 register offset by RegularRegisterLimit; CodeBlock stores
	// that offset directly (ParameterDescriptor.Index,
	// FunctionNameSaveInfo.Index are 0-based within region 2). The
	// Register Rewriter collapses region 2 into the physical file
	// starting at RequiredRegisterFileSize, so the slot's final physical
	// index is that base plus the stored offset.
	stackBase := cb.Block.RequiredRegisterFileSize
	for i, p := range cb.Parameters {
		var v runtime.Value = runtime.Undefined
		if i < len(args) {
			v = args[i]
		}
		ctx.registers[stackBase+p.Index] = v
	}

	if cb.FunctionNameSaveInfo.IsAllocated() {
		selfValue := runtime.ObjectValue(runtime.NewFunction(cb.Name, cl2callable(cc, ip)))
		switch cb.FunctionNameSaveInfo.Kind {
		case bytecode.FunctionNameOnStack, bytecode.FunctionNameOnHeapIndexed:
			ctx.registers[stackBase+cb.FunctionNameSaveInfo.Index] = selfValue
		case bytecode.FunctionNameNonIndexedBinding:
			// no indexed slot to bind into; the closure remains reachable
			// via its own captured name only through the outer scope,
			// which this minimal interpreter does not thread through.
		}
	}

	ip.top = ctx
	ip.depth++
	defer func() {
		ip.depth--
		ip.top = ctx.Outer
	}()

	ip.TrimCodeCacheIfNeeded(ctx)
	return Interpret(ctx, 0)
}

// Interpret is the Activation & Call Protocol's external entry point:
// run ctx's CodeBlock starting at startOffset. call()
// always starts at offset 0; a generator resume (not yet implemented)
// would reenter here at a saved offset instead.
func Interpret(ctx *ExecutionContext, startOffset int) (runtime.Value, error) {
	ctx.pc = startOffset
	return ctx.Interp.run(ctx)
}

// cl2callable avoids re-wrapping the same CompiledClosure in a fresh
// Closure per self-binding reference by routing back through
// NewClosure; kept as a tiny named helper so call() reads as the
// 11-step protocol rather than an inline closure literal.
func cl2callable(cc *compiler.CompiledClosure, ip *Interpreter) runtime.Callable {
	return NewClosure(cc, ip)
}

func (ip *Interpreter) registerCompiled(cb *bytecode.CodeBlock) {
	for _, existing := range ip.compiled {
		if existing == cb {
			return
		}
	}
	ip.compiled = append(ip.compiled, cb)
}

// run is the bytecode loop: it executes ctx.CodeBlock.Block.Code
// starting at ctx.pc until an OpReturn produces a value or an
// exception unwinds past every ExecutionContext this call pushed.
func (ip *Interpreter) run(ctx *ExecutionContext) (runtime.Value, error) {
	block := ctx.CodeBlock.Block
	code := block.Code

	for {
		if ctx.pc >= len(code) {
			return runtime.Undefined, nil
		}
		instr := code[ctx.pc]
		if debugActivation {
			fmt.Fprintf(os.Stderr, "pc=%d %s\n", ctx.pc, instr.Op)
		}

		switch instr.Op {
		case bytecode.OpLoadUndefined:
			ctx.registers[instr.Operand1] = runtime.Undefined
		case bytecode.OpLoadNull:
			ctx.registers[instr.Operand1] = runtime.Null
		case bytecode.OpLoadTrue:
			ctx.registers[instr.Operand1] = runtime.True
		case bytecode.OpLoadFalse:
			ctx.registers[instr.Operand1] = runtime.False
		case bytecode.OpLoadThis:
			ctx.registers[instr.Operand1] = ctx.this
		case bytecode.OpMove:
			ctx.registers[instr.Operand1] = ctx.registers[instr.Operand2]
		case bytecode.OpLoadLiteral:
			ctx.registers[instr.Operand1] = ip.loadLiteral(block, instr)

		case bytecode.OpGetGlobal:
			name := block.LiteralData[instr.Operand2].(string)
			ctx.registers[instr.Operand1] = ip.getGlobal(ctx, name)
		case bytecode.OpSetGlobal:
			name := block.LiteralData[instr.Operand2].(string)
			ip.setGlobal(ctx, name, ctx.registers[instr.Operand1])

		case bytecode.OpGetObject:
			ctx.registers[instr.Operand1] = ip.getProperty(ctx.registers[instr.Operand2], ctx.registers[instr.Operand3])
		case bytecode.OpSetObject:
			ip.setProperty(ctx.registers[instr.Operand1], ctx.registers[instr.Operand2], ctx.registers[instr.Operand3])
		case bytecode.OpDefineOwnProperty:
			obj := ctx.registers[instr.Operand1]
			key := ctx.registers[instr.Operand2].ToString()
			obj.AsObject().DefineOwnProperty(key, runtime.Property{Value: ctx.registers[instr.Operand3], Writable: true, Enumerable: true, Configurable: true})

		case bytecode.OpNewObject:
			ctx.registers[instr.Operand1] = runtime.ObjectValue(runtime.NewObject(nil))
		case bytecode.OpNewArray:
			ctx.registers[instr.Operand1] = runtime.ObjectValue(runtime.NewArray())
		case bytecode.OpArrayPush:
			arr := ctx.registers[instr.Operand1].AsObject()
			arr.DefineOwnProperty(itoaIndex(arr.Length()), runtime.Property{Value: ctx.registers[instr.Operand2]})

		case bytecode.OpBinary:
			ctx.registers[instr.Operand1] = evalBinary(bytecode.BinaryOp(instr.AuxInt), ctx.registers[instr.Operand2], ctx.registers[instr.Operand3])
		case bytecode.OpUnary:
			v, err := ip.evalUnary(ctx, bytecode.UnaryOp(instr.AuxInt), instr.Operand2)
			if err != nil {
				if !ip.propagateOrHandle(ctx, err) {
					return runtime.Undefined, err
				}
				continue
			}
			ctx.registers[instr.Operand1] = v

		case bytecode.OpJump:
			ctx.pc = instr.Target
			continue
		case bytecode.OpJumpIfTrue:
			if ctx.registers[instr.Operand1].IsTruthy() {
				ctx.pc = instr.Target
				continue
			}
		case bytecode.OpJumpIfFalse:
			if !ctx.registers[instr.Operand1].IsTruthy() {
				ctx.pc = instr.Target
				continue
			}
		case bytecode.OpJumpComplexCase:
			rec := block.ControlFlowRecords[instr.AuxInt]
			ip.beginUnwindJump(ctx, rec.RecordedUnwindCount-rec.OuterLimitCount, rec.TargetPosition)
			continue

		case bytecode.OpCall:
			v, err := ip.execCall(ctx, instr)
			if err != nil {
				if !ip.propagateOrHandle(ctx, err) {
					return runtime.Undefined, err
				}
				continue
			}
			ctx.registers[instr.Operand1] = v
		case bytecode.OpNew:
			v, err := ip.execNew(ctx, instr)
			if err != nil {
				if !ip.propagateOrHandle(ctx, err) {
					return runtime.Undefined, err
				}
				continue
			}
			ctx.registers[instr.Operand1] = v

		case bytecode.OpReturn:
			return ctx.registers[instr.Operand1], nil

		case bytecode.OpThrow:
			if !ip.propagateOrHandle(ctx, &runtime.ThrownError{Value: ctx.registers[instr.Operand1]}) {
				return runtime.Undefined, &runtime.ThrownError{Value: ctx.registers[instr.Operand1]}
			}
			continue

		case bytecode.OpThrowStaticError:
			err := &runtime.ThrownError{Value: runtime.String("SyntaxError: " + instr.AuxStr)}
			return runtime.Undefined, err

		case bytecode.OpPushTry:
			ctx.pushScope(scopeFrame{kind: scopeTry, catchTarget: instr.Target, finallyTarget: instr.AuxInt})
		case bytecode.OpPopTry:
			ctx.popScope()
		case bytecode.OpEndFinally:
			if !ip.endFinally(ctx) {
				// a pending exception ran out of handlers in this call
				return runtime.Undefined, &runtime.ThrownError{Value: ctx.currentException}
			}
			continue

		case bytecode.OpPushWith:
			ctx.pushScope(scopeFrame{kind: scopeWith, withObject: ctx.registers[instr.Operand1].AsObject()})
		case bytecode.OpPopWith:
			ctx.popScope()
		case bytecode.OpPushIterationScope:
			ctx.pushScope(scopeFrame{kind: scopeIteration})
		case bytecode.OpPopIterationScope:
			ctx.popScope()

		case bytecode.OpBindCaughtException:
			ctx.registers[instr.Operand1] = ctx.currentException

		case bytecode.OpGetOwnKeys:
			obj := ctx.registers[instr.Operand2].AsObject()
			keys := runtime.NewArray()
			for _, k := range obj.OwnKeys() {
				keys.DefineOwnProperty(itoaIndex(keys.Length()), runtime.Property{Value: runtime.String(k)})
			}
			ctx.registers[instr.Operand1] = runtime.ObjectValue(keys)

		case bytecode.OpBindingCalleeIntoRegister, bytecode.OpCreateArguments:
			// emitted by no current lowering path; the interpreter binds
			// self-reference and arguments directly in call() instead.

		default:
			panic(fmt.Sprintf("activation: unhandled opcode %s", instr.Op))
		}

		ctx.pc++
	}
}

func itoaIndex(i int) string { return fmt.Sprintf("%d", i) }

// loadLiteral resolves OpLoadLiteral's Operand2 the same way the
// Register Rewriter leaves it: unrewritten, so its magnitude tells
// which virtual region it came from (region 3 vs the plain
// literal pool — see bytecode.AddNumeralLiteral/AddLiteral).
func (ip *Interpreter) loadLiteral(block *bytecode.Block, instr bytecode.Instruction) runtime.Value {
	const numeralBase = bytecode.RegularRegisterLimit + bytecode.VariableLimit
	if instr.Operand2 >= numeralBase {
		return runtime.Number(block.NumeralLiteralData[instr.Operand2-numeralBase])
	}
	lit := block.LiteralData[instr.Operand2]
	switch v := lit.(type) {
	case string:
		return runtime.String(v)
	case *compiler.CompiledClosure:
		return runtime.ObjectValue(runtime.NewFunction(v.CodeBlock.Name, NewClosure(v, ip)))
	case bytecode.RegexLiteral:
		return compileRegexLiteral(v)
	default:
		panic(fmt.Sprintf("activation: unrecognized literal-pool payload %T", lit))
	}
}
