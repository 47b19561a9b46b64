package bytecode

// Register region limits. REGULAR_REGISTER_LIMIT
// bounds the physical-temporary region; VARIABLE_LIMIT bounds how many
// stack-allocated identifiers a single CodeBlock may address before the
// virtual literal-constant region begins.
const (
	RegularRegisterLimit uint32 = 1 << 16
	VariableLimit        uint32 = 1 << 16
)

// assignStackIndexIfNeeded implements the region-collapse rewrite formula:
//
//	if registerIndex == NoRegister: unchanged
//	else if registerIndex >= stackBase:
//	    if registerIndex >= stackBase+VARIABLE_LIMIT:
//	        registerIndex = stackBaseWillBe + (registerIndex - (stackBase+VARIABLE_LIMIT)) + stackVariableSize
//	    else:
//	        registerIndex = stackBaseWillBe + (registerIndex - stackBase)
//
// grounded directly on ByteCodeGenerator.cpp's assignStackIndexIfNeeded.
func assignStackIndexIfNeeded(registerIndex, stackBase, stackBaseWillBe uint32, stackVariableSize uint32) uint32 {
	if registerIndex == NoRegister {
		return registerIndex
	}
	if registerIndex >= stackBase {
		if registerIndex >= stackBase+VariableLimit {
			return stackBaseWillBe + (registerIndex - (stackBase + VariableLimit)) + stackVariableSize
		}
		return stackBaseWillBe + (registerIndex - stackBase)
	}
	return registerIndex
}

// RewriteBlock is the Register Rewriter post-pass: it
// walks every instruction and rewrites each register operand from its
// virtual region into the unified physical register file, then
// records the resulting physical size. Call exactly once per Block,
// after the Lowering Visitor has finished emitting (and after the
// Fixup Table's consume* calls have resolved every jump).
//
// stackVariableSize is identifiersOnStackCount (the count of
// stack-allocated identifier slots the CodeBlock declared);
// stackBaseWillBe is block.RequiredRegisterFileSize, computed by the
// allocator during emission as the peak physical-temporary watermark.
func RewriteBlock(b *Block) {
	if b.rewritten {
		return
	}
	stackBase := RegularRegisterLimit
	stackBaseWillBe := uint32(b.RequiredRegisterFileSize)
	stackVariableSize := uint32(b.IdentifiersOnStackCount)

	rewrite := func(r uint32) uint32 {
		return assignStackIndexIfNeeded(r, stackBase, stackBaseWillBe, stackVariableSize)
	}

	for i := range b.Code {
		instr := &b.Code[i]
		for _, field := range operandsOwningRegisters(instr.Op) {
			switch field {
			case 1:
				instr.Operand1 = rewrite(instr.Operand1)
			case 2:
				instr.Operand2 = rewrite(instr.Operand2)
			case 3:
				instr.Operand3 = rewrite(instr.Operand3)
			case 4:
				instr.Operand4 = rewrite(instr.Operand4)
			case 5:
				instr.Operand5 = rewrite(instr.Operand5)
			}
		}
	}

	b.rewritten = true
}

// operandsOwningRegisters is the "one place the opcode list is
// defined" dispatch table (a single X-macro-style
// table, rather than a giant switch duplicated between the rewriter
// and the interpreter). Operand fields not listed here are left
// untouched by the rewriter because they hold literal-pool indices,
// binary/unary op tags, or jump-target offsets, not register indices.
func operandsOwningRegisters(op Opcode) []int {
	switch op {
	case OpLoadUndefined, OpLoadNull, OpLoadTrue, OpLoadFalse, OpLoadThis:
		return []int{1}
	case OpLoadLiteral:
		return []int{1} // Operand2 is a literal-pool index, not a register
	case OpMove:
		return []int{1, 2}
	case OpGetGlobal:
		return []int{1}
	case OpSetGlobal:
		return []int{1}
	case OpGetObject:
		return []int{1, 2, 3}
	case OpSetObject:
		return []int{1, 2, 3}
	case OpDefineOwnProperty:
		return []int{1, 2, 3}
	case OpNewObject, OpNewArray:
		return []int{1}
	case OpArrayPush:
		return []int{1, 2}
	case OpBinary:
		return []int{1, 2, 3}
	case OpUnary:
		return []int{1, 2}
	case OpJump:
		return nil
	case OpJumpIfTrue, OpJumpIfFalse:
		return []int{1}
	case OpJumpComplexCase:
		return []int{1}
	case OpCall:
		return []int{1, 2, 3, 4} // Operand5 is argCount, a plain count, not a register
	case OpNew:
		return []int{1, 2, 3} // Operand4 is argCount, a plain count, not a register
	case OpReturn, OpThrow:
		return []int{1}
	case OpPushWith:
		return []int{1}
	case OpBindingCalleeIntoRegister:
		return []int{1}
	case OpCreateArguments:
		return []int{1}
	case OpGetOwnKeys:
		return []int{1, 2}
	case OpBindCaughtException:
		return []int{1}
	default:
		return nil
	}
}
