package bytecode

import "testing"

func TestAssignStackIndexIfNeeded(t *testing.T) {
	stackBase := RegularRegisterLimit
	stackBaseWillBe := uint32(10)
	stackVariableSize := uint32(3)

	t.Run("sentinel untouched", func(t *testing.T) {
		if got := assignStackIndexIfNeeded(NoRegister, stackBase, stackBaseWillBe, stackVariableSize); got != NoRegister {
			t.Fatalf("expected sentinel to pass through, got %d", got)
		}
	})

	t.Run("regular temporary untouched", func(t *testing.T) {
		if got := assignStackIndexIfNeeded(5, stackBase, stackBaseWillBe, stackVariableSize); got != 5 {
			t.Fatalf("expected temporary register unchanged, got %d", got)
		}
	})

	t.Run("stack-identifier region rewritten", func(t *testing.T) {
		v := stackBase + 2
		got := assignStackIndexIfNeeded(v, stackBase, stackBaseWillBe, stackVariableSize)
		want := stackBaseWillBe + 2
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("literal-constant region rewritten", func(t *testing.T) {
		v := stackBase + VariableLimit + 4
		got := assignStackIndexIfNeeded(v, stackBase, stackBaseWillBe, stackVariableSize)
		want := stackBaseWillBe + stackVariableSize + 4
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})
}

func TestRewriteBlockProducesInBoundsRegisters(t *testing.T) {
	b := NewBlock()
	b.RequiredRegisterFileSize = 4
	b.IdentifiersOnStackCount = 2

	tempReg := uint32(1)
	stackReg := RegularRegisterLimit + 0
	litReg := b.AddNumeralLiteral(0, RegularRegisterLimit, VariableLimit)

	b.PushCode(Instruction{Op: OpMove, Operand1: tempReg, Operand2: stackReg}, 0)
	b.PushCode(Instruction{Op: OpReturn, Operand1: litReg}, 1)

	RewriteBlock(b)

	physicalSize := b.RequiredRegisterFileSize + b.IdentifiersOnStackCount + len(b.NumeralLiteralData)
	for i, instr := range b.Code {
		for _, field := range operandsOwningRegisters(instr.Op) {
			var v uint32
			switch field {
			case 1:
				v = instr.Operand1
			case 2:
				v = instr.Operand2
			}
			if v == NoRegister {
				continue
			}
			if int(v) >= physicalSize && v < RegularRegisterLimit {
				t.Fatalf("instr %d field %d: register %d out of bounds [0,%d)", i, field, v, physicalSize)
			}
		}
	}

	if b.Code[0].Operand2 != uint32(b.RequiredRegisterFileSize) {
		t.Fatalf("stack-region operand not rewritten to stackBaseWillBe: got %d want %d", b.Code[0].Operand2, b.RequiredRegisterFileSize)
	}
}

func TestRewriteBlockIsIdempotent(t *testing.T) {
	b := NewBlock()
	b.RequiredRegisterFileSize = 2
	b.PushCode(Instruction{Op: OpMove, Operand1: RegularRegisterLimit, Operand2: 0}, 0)
	RewriteBlock(b)
	first := b.Code[0].Operand1
	RewriteBlock(b)
	if b.Code[0].Operand1 != first {
		t.Fatalf("second RewriteBlock call mutated an already-rewritten block: %d -> %d", first, b.Code[0].Operand1)
	}
}
