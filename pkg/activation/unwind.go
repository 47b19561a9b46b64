package activation

import "escargo/pkg/runtime"

// propagateOrHandle is called wherever a Go error can surface mid-
// instruction (OpThrow, a failed OpCall/OpNew, a unary operator that
// somehow fails). A *runtime.ThrownError is handed to
// unwindForException to search this call's own try scopes; any other
// error (an internal invariant violation) is not catchable by script
// and is returned to the caller as-is, the same fatal/non-fatal split
// pkg/compiler's recoverGenerateError draws.
func (ip *Interpreter) propagateOrHandle(ctx *ExecutionContext, err error) bool {
	thrown, ok := err.(*runtime.ThrownError)
	if !ok {
		return false
	}
	return ip.unwindForException(ctx, thrown.Value)
}

// unwindForException walks ctx's scope stack searching for a try frame
// that can handle errVal: a catch target takes it directly; absent
// that, a finally target gets a chance to run first (recorded so
// OpEndFinally knows to keep propagating once it completes); with/
// iteration scopes are transparent to exceptions and are simply popped
// along the way ("propagation via ControlFlowRecord-consulting
// unwinding").
func (ip *Interpreter) unwindForException(ctx *ExecutionContext, errVal runtime.Value) bool {
	for len(ctx.scopes) > 0 {
		fr := ctx.popScope()
		if fr.kind != scopeTry {
			continue
		}
		if fr.catchTarget >= 0 {
			if fr.finallyTarget >= 0 {
				ctx.pushScope(scopeFrame{kind: scopeTry, catchTarget: -1, finallyTarget: fr.finallyTarget})
			}
			ctx.currentException = errVal
			ctx.pc = fr.catchTarget
			return true
		}
		if fr.finallyTarget >= 0 {
			ctx.finallyResume = append(ctx.finallyResume, finallyResume{kind: resumeThrow, errVal: errVal})
			ctx.currentException = errVal
			ctx.pc = fr.finallyTarget
			return true
		}
	}
	ctx.currentException = errVal
	return false
}

// beginUnwindJump implements a JumpComplexCase: pop `remaining` scope
// frames (the count the Fixup Table recorded as crossed by this break/
// continue), redirecting into the first try-frame's finally block it
// finds along the way and remembering how many scopes are still left
// to pop once that finally completes (OpEndFinally resumes the walk).
// with/iteration scopes and try frames with no finally are popped with
// no other effect — only a finally needs to actually run code here.
func (ip *Interpreter) beginUnwindJump(ctx *ExecutionContext, remaining int, target int) {
	for remaining > 0 {
		fr := ctx.popScope()
		remaining--
		if fr.kind == scopeTry && fr.finallyTarget >= 0 {
			ctx.finallyResume = append(ctx.finallyResume, finallyResume{kind: resumeJump, target: target, remaining: remaining})
			ctx.pc = fr.finallyTarget
			return
		}
	}
	ctx.pc = target
}

// endFinally implements OpEndFinally: a finally block entered via the
// normal fallthrough path (no break/continue/throw crossed it) has
// nothing queued and just falls through to the next instruction. A
// finally entered via beginUnwindJump or unwindForException instead
// resumes whatever was interrupted — continuing the original jump
// (possibly unwinding further scopes first) or re-raising the saved
// exception. Returns false iff a resumed throw ran out of handlers in
// this call, meaning the caller must propagate it as a Go error.
func (ip *Interpreter) endFinally(ctx *ExecutionContext) bool {
	if len(ctx.finallyResume) == 0 {
		ctx.pc++
		return true
	}
	n := len(ctx.finallyResume) - 1
	r := ctx.finallyResume[n]
	ctx.finallyResume = ctx.finallyResume[:n]

	switch r.kind {
	case resumeJump:
		ip.beginUnwindJump(ctx, r.remaining, r.target)
		return true
	case resumeThrow:
		return ip.unwindForException(ctx, r.errVal)
	default:
		ctx.pc++
		return true
	}
}
