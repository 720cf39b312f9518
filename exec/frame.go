package exec

import "github.com/kilnforge/wasmcore/wasm"

// Block-context kinds, tagging why a blockCtx was pushed.
const (
	blockKindBlock byte = iota
	blockKindLoop
	blockKindIf
	blockKindFunc
)

// blockCtx is an explicit label frame: the entry height and result arity of
// one open structured-control scope. spec.md's §9 Design Notes sanction
// this in place of a detachable unwind sub-stack ("both are equivalent");
// this is the alternative this interpreter takes, since it avoids the
// sticky doControlTransfer flag entirely and resolves branch targets
// directly off the live block stack instead of precomputed absolute labels.
type blockCtx struct {
	kind        byte
	startPC     int
	endPC       int
	entryHeight int
	arity       int
}

// Instruction is a resolved, ready-to-execute instruction: the decoder's
// wasm.Instruction plus the static bookkeeping Prepare computes once per
// function body. BLOCK/LOOP/IF carry endPC (their matching END) and arity
// (the scope's result count); IF additionally carries elseIdx. Every other
// opcode leaves EndPC and the arities at zero; ElseIdx is -1 on every
// instruction that has no matching ELSE.
//
// Branch targets (BR/BR_IF/BR_TABLE) are not stored here: their depth is
// resolved against the live block stack at runtime (see control.go), so the
// same instruction works regardless of which iteration of an enclosing loop
// it executes in.
type Instruction struct {
	Imm        interface{}
	Opcode     byte
	EndPC      int
	ElseIdx    int
	Arity      int
	ParamArity int
}

// StackFrame is one activation record: the resolved instruction stream, the
// program counter, typed locals, the instance this call runs against, and
// the open block stack.
type StackFrame struct {
	Instructions []Instruction
	Locals       []Value
	Instance     InstanceView
	FuncID       uint32
	PC           int
	ShouldReturn bool
	blocks       []blockCtx
	// baseHeight is the shared value stack's height at function entry
	// (after arguments were popped off the caller's stack and before the
	// callee pushed anything). RETURN truncates back to this height the
	// same way a BR to an enclosing block truncates to entryHeight, set by
	// invokeModuleFunc right before the frame starts running.
	baseHeight int
}

// NewStackFrame builds a frame for a module-defined function: locals start
// as args[0:len(args)] followed by one Default-valued cell per declared
// local type.
func NewStackFrame(instructions []Instruction, instance InstanceView, funcID uint32, args []Value, localTypes []wasm.ValType) *StackFrame {
	locals := make([]Value, 0, len(args)+len(localTypes))
	locals = append(locals, args...)
	for _, vt := range localTypes {
		locals = append(locals, Default(valueKind(vt)))
	}
	return &StackFrame{
		Instructions: instructions,
		Locals:       locals,
		Instance:     instance,
		FuncID:       funcID,
	}
}

// NewHostFrame builds a placeholder frame for an imported host function:
// empty instructions, so it only exists to keep the call stack observable
// for stack-trace purposes.
func NewHostFrame(instance InstanceView, funcID uint32) *StackFrame {
	return &StackFrame{Instance: instance, FuncID: funcID}
}

// Terminated reports whether the cursor has advanced past the last
// instruction.
func (f *StackFrame) Terminated() bool {
	return f.PC >= len(f.Instructions)
}

// Current returns the instruction at the cursor.
func (f *StackFrame) Current() Instruction {
	return f.Instructions[f.PC]
}

// Advance moves the cursor forward by one.
func (f *StackFrame) Advance() {
	f.PC++
}

// JumpTo sets the cursor to an absolute instruction index.
func (f *StackFrame) JumpTo(pc int) {
	f.PC = pc
}

// PushBlock opens a new structured-control scope.
func (f *StackFrame) PushBlock(kind byte, startPC, endPC, entryHeight, arity int) {
	f.blocks = append(f.blocks, blockCtx{
		kind:        kind,
		startPC:     startPC,
		endPC:       endPC,
		entryHeight: entryHeight,
		arity:       arity,
	})
}

// PopBlock closes and returns the innermost open scope.
func (f *StackFrame) PopBlock() blockCtx {
	n := len(f.blocks) - 1
	b := f.blocks[n]
	f.blocks = f.blocks[:n]
	return b
}

// TopBlock returns the innermost open scope without closing it.
func (f *StackFrame) TopBlock() *blockCtx {
	if len(f.blocks) == 0 {
		return nil
	}
	return &f.blocks[len(f.blocks)-1]
}

// BlockAt resolves a branch depth (0 = innermost) to the target scope.
func (f *StackFrame) BlockAt(depth int) blockCtx {
	return f.blocks[len(f.blocks)-1-depth]
}

// TruncateBlocks pops block contexts until len(blocks) == n, used when a
// branch exits through several nested scopes at once.
func (f *StackFrame) TruncateBlocks(n int) {
	f.blocks = f.blocks[:n]
}

// BlockDepth returns the number of currently open scopes.
func (f *StackFrame) BlockDepth() int {
	return len(f.blocks)
}

// valueKind maps a decoded wasm.ValType to the interpreter's Kind.
func valueKind(vt wasm.ValType) Kind {
	switch vt {
	case wasm.ValI32:
		return KindI32
	case wasm.ValI64:
		return KindI64
	case wasm.ValF32:
		return KindF32
	case wasm.ValF64:
		return KindF64
	case wasm.ValExtern:
		return KindExternRef
	default:
		return KindFuncRef
	}
}
