package bytecode

import (
	"fmt"
	"os"
)

// ControlFlowRecord directs the unwinder for a complex-case jump: a
// break/continue whose control-flow transfer crosses a try/finally,
// with, or for-of scope.
type ControlFlowRecordReason uint8

const (
	NeedsJump ControlFlowRecordReason = iota
)

type ControlFlowRecord struct {
	Reason              ControlFlowRecordReason
	TargetPosition       int
	RecordedUnwindCount  int
	OuterLimitCount      int
}

// Block is the Bytecode Block: an append-only code buffer with a
// literal pool, a source-location table, a structure-cache side table
// for object-shape-dependent instructions, and the GetObject inline-
// cache seeding list. It is created once per CodeBlock, mutated only
// during emission and the register-rewrite pass, and immutable
// thereafter.
type Block struct {
	Code []Instruction

	NumeralLiteralData []float64 // numeric-literal constants, copied out after emission
	LiteralData        []interface{} // strings, regex patterns, and other GC-visible literals

	StructureCache []StructureCacheEntry // object-shape side table for GetObject/SetObject sites
	GetObjectPositions []int             // code offsets of GetObject-family instructions, for IC seeding

	ControlFlowRecords []ControlFlowRecord // complex-case jump targets, see JumpComplexCase

	RequiredRegisterFileSize int // physical register count needed for temporaries (stackBase)
	IdentifiersOnStackCount  int // stackVariableSize: count of stack-allocated identifier slots

	IsEvalMode      bool
	IsOnGlobal      bool
	ShouldClearStack bool

	rewritten bool
}

// RegexLiteral is the literal-pool payload for a /pattern/flags node;
// pkg/activation compiles it with github.com/dlclark/regexp2 each time
// the OpLoadLiteral that carries it is evaluated.
type RegexLiteral struct {
	Pattern string
	Flags   string
}

// StructureCacheEntry is a placeholder inline-cache slot keyed by
// object shape; full shape/IC machinery is out of scope, but the slot
// exists so GetObject-family instructions have somewhere to seed one.
type StructureCacheEntry struct {
	PropertyName string
}

func NewBlock() *Block {
	return &Block{}
}

// PushCode appends an instruction, recording its LOC, and returns the
// offset it was appended at (for later patching via PeekCode).
func (b *Block) PushCode(instr Instruction, loc int) int {
	instr.LOC = loc
	off := len(b.Code)
	b.Code = append(b.Code, instr)
	if instr.Op == OpGetObject {
		b.GetObjectPositions = append(b.GetObjectPositions, off)
		b.StructureCache = append(b.StructureCache, StructureCacheEntry{})
	}
	return off
}

// PeekCode returns a pointer to the instruction at offset for in-place
// editing (used by jump-target resolution and JumpComplexCase
// morphing).
func (b *Block) PeekCode(offset int) *Instruction {
	return &b.Code[offset]
}

// LastCodePosition returns the offset of the most recently emitted
// instruction of opcode op, or -1 if none.
func (b *Block) LastCodePosition(op Opcode) int {
	for i := len(b.Code) - 1; i >= 0; i-- {
		if b.Code[i].Op == op {
			return i
		}
	}
	return -1
}

// AddNumeralLiteral interns a numeric literal into the virtual
// literal-constant register region (region 3) and returns its
// virtual register index.
func (b *Block) AddNumeralLiteral(n float64, regularLimit, variableLimit uint32) uint32 {
	idx := len(b.NumeralLiteralData)
	b.NumeralLiteralData = append(b.NumeralLiteralData, n)
	return regularLimit + variableLimit + uint32(idx)
}

// AddLiteral interns an arbitrary GC-visible literal (string, regex,
// etc) and returns its pool index (stored in Instruction.Operand2 for
// OpLoadLiteral, not a register — literal pool slots are looked up by
// index, not rewritten by the register rewriter).
func (b *Block) AddLiteral(v interface{}) uint32 {
	idx := len(b.LiteralData)
	b.LiteralData = append(b.LiteralData, v)
	return uint32(idx)
}

// AddControlFlowRecord allocates a ControlFlowRecord and returns its
// index, used when morphing a Jump into JumpComplexCase.
func (b *Block) AddControlFlowRecord(r ControlFlowRecord) int {
	b.ControlFlowRecords = append(b.ControlFlowRecords, r)
	return len(b.ControlFlowRecords) - 1
}

// MaybeDumpToStderr renders a human-readable dump of the block, gated by the
// ESCARGO_DUMP_BYTECODE env var the way the original gates its debug
// dump behind DUMP_BYTECODE.
func (b *Block) MaybeDumpToStderr(name string) {
	if os.Getenv("ESCARGO_DUMP_BYTECODE") == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "=== bytecode: %s ===\n", name)
	for i, instr := range b.Code {
		fmt.Fprintf(os.Stderr, "%4d: %-24s r%d r%d r%d r%d r%d target=%d loc=%d\n",
			i, instr.Op, instr.Operand1, instr.Operand2, instr.Operand3, instr.Operand4, instr.Operand5, instr.Target, instr.LOC)
	}
}

// CodeBlock is the static descriptor of a function or script,
// referenced throughout emission and activation but mutated only by
// the compiler.
type CodeBlock struct {
	Name       string
	Parameters []ParameterDescriptor
	Identifiers []IdentifierInfo
	Children   []*CodeBlock

	Block *Block // nil until lazily compiled

	IsStrict                    bool
	CanUseIndexedVariableStorage bool
	CanAllocateEnvironmentOnStack bool
	UsesArgumentsObject          bool
	NeedsComplexParameterCopy    bool
	IsGenerator                  bool

	FunctionNameSaveInfo FunctionNameSaveInfo

	Native NativeFn // non-nil for a built-in "native fast path" CodeBlock
}

// NativeFn is the signature native CodeBlocks' embedded callback must
// satisfy; defined here (rather than importing pkg/runtime) to avoid a
// cycle — pkg/activation binds the concrete runtime.Value-typed
// adapter.
type NativeFn func(this interface{}, args []interface{}) (interface{}, error)

type ParameterDescriptor struct {
	Name  string
	Index int // target register/slot index, per needsComplexParameterCopy semantics
}

type IdentifierInfo struct {
	Name                             string
	NeedToAllocateOnStack            bool
	IndexForIndexedStorage           int
	IsParameterName                  bool
	IsExplicitlyDeclaredOrParameterName bool
}

// FunctionNameSaveInfoKind selects where a function's self-binding
// (for named function expressions referencing their own name) lives.
type FunctionNameSaveInfoKind uint8

const (
	FunctionNameNotAllocated FunctionNameSaveInfoKind = iota
	FunctionNameOnStack
	FunctionNameOnHeapIndexed
	FunctionNameNonIndexedBinding
)

type FunctionNameSaveInfo struct {
	Kind  FunctionNameSaveInfoKind
	Index int // stack slot or heap index, meaningless for NonIndexedBinding
}

func (s FunctionNameSaveInfo) IsAllocated() bool { return s.Kind != FunctionNameNotAllocated }
func (s FunctionNameSaveInfo) IsAllocatedOnStack() bool { return s.Kind == FunctionNameOnStack }

// TotalCodeSize estimates the live bytecode size in bytes (instruction
// count times instructionSizeEstimate), for the code-cache trim threshold.
func (cb *CodeBlock) TotalCodeSize() int {
	if cb.Block == nil {
		return 0
	}
	return len(cb.Block.Code) * int(instructionSizeEstimate)
}

const instructionSizeEstimate = 32 // bytes; approximates the host's variable-width encoding
