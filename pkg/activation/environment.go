// Package activation implements the Activation & Call Protocol
// and a minimal interpreter executing a compiled CodeBlock's
// bytecode.Block against pkg/runtime's Value/Object model. It is the
// component FunctionObject.cpp's call() describes: given a CodeBlock,
// a receiver, and an argument list, set up an environment record and
// run the instruction stream to completion or to a thrown exception.
package activation

import (
	"escargo/pkg/bytecode"
	"escargo/pkg/runtime"
)

// scopeKind tags one entry on a frame's runtime scope stack. The stack
// mirrors the compiler's fixupTable.complexDepth one-for-one: every
// scope the compiler counts as "complex" (try, with, for-of) pushes
// exactly one scopeFrame here, so a JumpComplexCase's RecordedUnwindCount
// can be walked directly as a pop count (see DESIGN.md).
type scopeKind uint8

const (
	scopeTry scopeKind = iota
	scopeWith
	scopeIteration
)

// scopeFrame is one entry on the runtime scope stack. catchTarget and
// finallyTarget are only meaningful for scopeTry (-1 meaning absent);
// withObject is only meaningful for scopeWith.
type scopeFrame struct {
	kind          scopeKind
	catchTarget   int
	finallyTarget int
	withObject    *runtime.Object
}

// resumeKind tags a pending action OpEndFinally must carry out once the
// finally block it was redirected into finishes running.
type resumeKind uint8

const (
	resumeJump resumeKind = iota
	resumeThrow
)

// finallyResume is pushed whenever control is redirected into a finally
// block ahead of schedule (a break/continue/throw crossing the try),
// and popped by OpEndFinally to resume whatever was interrupted.
type finallyResume struct {
	kind      resumeKind
	target    int // resumeJump: where to continue after finally
	remaining int // resumeJump: further scopeFrames still to unwind
	errVal    runtime.Value // resumeThrow: the exception to keep propagating
}

// ExecutionContext is one activation record: a physical register file
// sized to the CodeBlock's rewritten register count, a program
// counter, the receiver, this call's scope/finally-resume stacks, and
// a link to the caller's ExecutionContext (Outer). Environment records
// in the engine-core sense (FunctionEnvironmentRecordSimple, OnHeap,
// NotIndexed) collapse to this one struct here, since full closure
// capture is out of scope (see DESIGN.md) — every CodeBlock is
// CanAllocateEnvironmentOnStack and its registers never outlive the
// call. The Outer chain is exactly what the code-cache trim pass
// (cache_trim.go) walks to find which CodeBlocks are currently live.
type ExecutionContext struct {
	Outer     *ExecutionContext
	CodeBlock *bytecode.CodeBlock
	Interp    *Interpreter

	registers []runtime.Value
	pc        int
	this      runtime.Value

	scopes           []scopeFrame
	finallyResume    []finallyResume
	currentException runtime.Value
}

func newExecutionContext(outer *ExecutionContext, interp *Interpreter, cb *bytecode.CodeBlock, size int, this runtime.Value) *ExecutionContext {
	regs := make([]runtime.Value, size)
	for i := range regs {
		regs[i] = runtime.Undefined
	}
	return &ExecutionContext{Outer: outer, Interp: interp, CodeBlock: cb, registers: regs, this: this}
}

func (f *ExecutionContext) pushScope(s scopeFrame) { f.scopes = append(f.scopes, s) }

func (f *ExecutionContext) popScope() scopeFrame {
	n := len(f.scopes) - 1
	s := f.scopes[n]
	f.scopes = f.scopes[:n]
	return s
}
