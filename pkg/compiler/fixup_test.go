package compiler

import (
	"testing"

	"escargo/pkg/bytecode"
)

func TestFixupTableMorphsOnlyComplexCaseBreaks(t *testing.T) {
	b := bytecode.NewBlock()
	f := newFixupTable()

	plainOff := b.PushCode(bytecode.Instruction{Op: bytecode.OpJump}, 0)
	f.pushBreak(plainOff)

	f.EnterComplexScope()
	complexOff := b.PushCode(bytecode.Instruction{Op: bytecode.OpJump}, 0)
	f.pushBreak(complexOff)
	f.ExitComplexScope()

	f.consumeBreak(b, 42, 0)

	if b.PeekCode(plainOff).Op != bytecode.OpJump {
		t.Fatalf("plain break should remain a Jump, got %s", b.PeekCode(plainOff).Op)
	}
	if b.PeekCode(plainOff).Target != 42 {
		t.Fatalf("plain break target not patched: got %d", b.PeekCode(plainOff).Target)
	}

	if b.PeekCode(complexOff).Op != bytecode.OpJumpComplexCase {
		t.Fatalf("complex-case break should morph to JumpComplexCase, got %s", b.PeekCode(complexOff).Op)
	}
	rec := b.ControlFlowRecords[b.PeekCode(complexOff).AuxInt]
	if rec.TargetPosition != 42 {
		t.Fatalf("control-flow record target mismatch: got %d", rec.TargetPosition)
	}
	if rec.RecordedUnwindCount != 1 {
		t.Fatalf("expected RecordedUnwindCount 1 (one complex scope open at push time), got %d", rec.RecordedUnwindCount)
	}
}

func TestFixupTableLabeledBreakOnlyMatchesItsLabel(t *testing.T) {
	b := bytecode.NewBlock()
	f := newFixupTable()

	outerOff := b.PushCode(bytecode.Instruction{Op: bytecode.OpJump}, 0)
	innerOff := b.PushCode(bytecode.Instruction{Op: bytecode.OpJump}, 0)
	f.pushLabeledBreak("outer", outerOff)
	f.pushLabeledBreak("inner", innerOff)

	f.consumeLabeledBreak(b, "inner", 7, 0)

	if b.PeekCode(innerOff).Target != 7 {
		t.Fatalf("inner-labeled break not patched: got %d", b.PeekCode(innerOff).Target)
	}
	if b.PeekCode(outerOff).Target == 7 {
		t.Fatalf("outer-labeled break should not be patched by consuming \"inner\"")
	}
	if len(f.labeledBreaks["inner"]) != 0 {
		t.Fatalf("consumed label should be cleared")
	}
	if len(f.labeledBreaks["outer"]) != 1 {
		t.Fatalf("unconsumed label should remain pending")
	}
}

func TestHasUnconsumedBreaksOrContinues(t *testing.T) {
	b := bytecode.NewBlock()
	f := newFixupTable()
	if f.hasUnconsumedBreaksOrContinues() {
		t.Fatal("fresh fixup table should have nothing pending")
	}
	off := b.PushCode(bytecode.Instruction{Op: bytecode.OpJump}, 0)
	f.pushContinue(off)
	if !f.hasUnconsumedBreaksOrContinues() {
		t.Fatal("expected a pending continue to be reported")
	}
	f.consumeContinue(b, 3, 0)
	if f.hasUnconsumedBreaksOrContinues() {
		t.Fatal("expected consumeContinue to clear the pending continue")
	}
}
