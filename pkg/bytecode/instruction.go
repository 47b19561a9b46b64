// Package bytecode implements the Bytecode Block and the Register
// Rewriter post-pass: the append-only instruction buffer the AST
// Lowering Visitor (pkg/compiler) emits into, and the pass that turns
// its three virtual register regions into one physical register file.
package bytecode

import "fmt"

// Opcode tags a variable-width instruction record. The set here covers
// exactly the node families the Lowering Visitor emits (pkg/compiler's
// lower_*.go); it is not a faithful reproduction of the host's full
// opcode set (full opcode semantics remain out of scope).
type Opcode uint8

const (
	OpLoadUndefined Opcode = iota
	OpLoadNull
	OpLoadTrue
	OpLoadFalse
	OpLoadLiteral // loads numeraLiteralData[Operand2] or literalData[Operand2] into Operand1
	OpLoadThis
	OpMove // Operand1 = Operand2

	OpGetGlobal // Operand1 = globals[literal string Operand2]
	OpSetGlobal // globals[literal string Operand2] = Operand1

	OpGetRegister // reserved; never emitted, owns no rewritten operands, and not dispatched by the interpreter

	OpGetObject    // Operand1 = Operand2[Operand3]   (property/index read)
	OpSetObject    // Operand1[Operand2] = Operand3   (property/index write)
	OpDefineOwnProperty

	OpNewObject
	OpNewArray
	OpArrayPush // appends Operand2 to array Operand1

	OpBinary // Operand1 = Operand2 <op> Operand3, op in AuxInt (BinaryOp)
	OpUnary  // Operand1 = <op> Operand2, op in AuxInt (UnaryOp)

	OpJump           // unconditional; Target is an index into Block.Code
	OpJumpIfTrue     // pops no value; reads Operand1
	OpJumpIfFalse
	OpJumpComplexCase // carries an index into the block's ControlFlowRecords

	OpCall      // Operand1 = call(Operand2 /*callee*/, Operand3 /*this*/, argStart Operand4, argCount Operand5)
	OpNew       // Operand1 = new Operand2(argStart Operand3, argCount Operand4)
	OpReturn    // returns Operand1
	OpThrow     // throws Operand1

	OpPushTry  // pushes a try scope; Target=catch entry, AuxInt=finally entry (-1 when absent)
	OpPopTry
	OpEndFinally // marks the end of a finally block; resumes a pending jump/rethrow, or no-ops on normal fallthrough
	OpPushWith // pushes Operand1 as a with-object
	OpPopWith
	OpPushIterationScope // no-op scope marker kept in lockstep with EnterComplexScope/ExitComplexScope for for-of
	OpPopIterationScope

	OpBindingCalleeIntoRegister // functionNameSaveInfo self-binding, Operand1 = slot
	OpCreateArguments           // Operand1 = arguments object

	OpGetOwnKeys        // Operand1 = array of own enumerable string keys of Operand2, for-in lowering
	OpBindCaughtException // Operand1 = the exception currently being unwound, bound into a catch parameter

	OpThrowStaticError // the ByteCodeGenerateError fallback terminal instruction
)

func (op Opcode) String() string {
	names := [...]string{
		"LoadUndefined", "LoadNull", "LoadTrue", "LoadFalse", "LoadLiteral", "LoadThis", "Move",
		"GetGlobal", "SetGlobal", "GetRegister",
		"GetObject", "SetObject", "DefineOwnProperty",
		"NewObject", "NewArray", "ArrayPush",
		"Binary", "Unary",
		"Jump", "JumpIfTrue", "JumpIfFalse", "JumpComplexCase",
		"Call", "New", "Return", "Throw",
		"PushTry", "PopTry", "EndFinally", "PushWith", "PopWith", "PushIterationScope", "PopIterationScope",
		"BindingCalleeIntoRegister", "CreateArguments",
		"GetOwnKeys", "BindCaughtException",
		"ThrowStaticError",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// NoRegister is the sentinel "no register" operand: the sentinel
// UINT_MAX means 'no register' and is never rewritten.
const NoRegister = ^uint32(0)

// BinaryOp / UnaryOp enumerate the operators OpBinary/OpUnary carry.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinEq
	BinStrictEq
	BinNeq
	BinStrictNeq
	BinLt
	BinLte
	BinGt
	BinGte
	BinAnd // logical &&
	BinOr  // logical ||
	BinNullish
	BinInstanceOf
	BinIn
)

type UnaryOp uint8

const (
	UnaryNeg UnaryOp = iota
	UnaryNot
	UnaryTypeof
	UnaryVoid
	UnaryBitNot
	UnaryIncrement
	UnaryDecrement
	UnaryNullishCheck // true iff the operand is null or undefined
)

// Instruction is a fixed-shape record regardless of opcode: unused
// operand fields are simply ignored, matching how the rewriter only
// touches the operand fields a given opcode owns (see rewrite.go's
// operandsOwningRegisters table) rather than reproducing the source's
// variable-width encoding byte-for-byte.
type Instruction struct {
	Op       Opcode
	Operand1 uint32 // usually destination register
	Operand2 uint32
	Operand3 uint32
	Operand4 uint32
	Operand5 uint32
	Target   int // jump target: an index into Block.Code, left unchanged by RewriteBlock
	AuxInt   int // BinaryOp/UnaryOp tag, or ControlFlowRecord index for JumpComplexCase
	AuxStr   string
	LOC      int // originating source byte offset, for stack traces
}
