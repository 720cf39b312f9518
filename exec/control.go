package exec

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
)

// branch resolves a branch depth against the live block stack (depth 0 is
// the innermost open scope) and performs the control transfer: for a LOOP
// target this re-enters the loop body (truncating to its entry height and
// jumping to just past the LOOP opcode, without closing it); for a
// BLOCK/IF/function-level target it pops the scope's result values, drops
// everything back to the scope's entry height, pushes the results back,
// and closes every scope from the current one down through the target.
func (vm *Interpreter) branch(f *StackFrame, depth int) {
	idx := f.BlockDepth() - 1 - depth
	b := f.blocks[idx]

	if b.kind == blockKindLoop {
		vm.Stack.Truncate(b.entryHeight)
		f.blocks = f.blocks[:idx+1]
		f.JumpTo(b.startPC + 1)
		return
	}

	vals := make([]Value, b.arity)
	for i := b.arity - 1; i >= 0; i-- {
		vals[i] = vm.Stack.Pop()
	}
	vm.Stack.Truncate(b.entryHeight)
	for _, v := range vals {
		vm.Stack.Push(v)
	}
	f.blocks = f.blocks[:idx]
	f.JumpTo(b.endPC + 1)
}

// closeBlock performs the natural (non-branching) exit from the innermost
// open scope: pop its result values, realign the stack to its entry
// height, and push the results back. Used when END is reached by plain
// fallthrough rather than via a branch.
func (vm *Interpreter) closeBlock(f *StackFrame) {
	b := f.PopBlock()
	vals := make([]Value, b.arity)
	for i := b.arity - 1; i >= 0; i-- {
		vals[i] = vm.Stack.Pop()
	}
	vm.Stack.Truncate(b.entryHeight)
	for _, v := range vals {
		vm.Stack.Push(v)
	}
}

func execUnreachable(vm *Interpreter, f *StackFrame) error {
	return errors.Trap(errors.KindTrapUnreachable, "unreachable executed")
}

func execNop(vm *Interpreter, f *StackFrame) error {
	f.Advance()
	return nil
}

func execBlock(vm *Interpreter, f *StackFrame) error {
	inst := f.Current()
	entryHeight := vm.Stack.Size() - inst.ParamArity
	f.PushBlock(blockKindBlock, f.PC, inst.EndPC, entryHeight, inst.Arity)
	f.Advance()
	return nil
}

func execLoop(vm *Interpreter, f *StackFrame) error {
	inst := f.Current()
	entryHeight := vm.Stack.Size() - inst.ParamArity
	f.PushBlock(blockKindLoop, f.PC, inst.EndPC, entryHeight, inst.Arity)
	f.Advance()
	return nil
}

func execIf(vm *Interpreter, f *StackFrame) error {
	inst := f.Current()
	pred := vm.Stack.Pop()
	entryHeight := vm.Stack.Size() - inst.ParamArity
	f.PushBlock(blockKindIf, f.PC, inst.EndPC, entryHeight, inst.Arity)
	if pred.IsTruthy() {
		f.JumpTo(f.PC + 1)
		return nil
	}
	if inst.ElseIdx >= 0 {
		f.JumpTo(inst.ElseIdx + 1)
	} else {
		f.JumpTo(inst.EndPC)
	}
	return nil
}

func execElse(vm *Interpreter, f *StackFrame) error {
	vm.branch(f, 0)
	return nil
}

func execEnd(vm *Interpreter, f *StackFrame) error {
	if f.BlockDepth() > 0 {
		vm.closeBlock(f)
	}
	f.Advance()
	return nil
}

func execBr(vm *Interpreter, f *StackFrame) error {
	depth := int(f.Current().Imm.(wasm.BranchImm).LabelIdx)
	vm.branch(f, depth)
	return nil
}

func execBrIf(vm *Interpreter, f *StackFrame) error {
	depth := int(f.Current().Imm.(wasm.BranchImm).LabelIdx)
	pred := vm.Stack.Pop()
	if pred.IsTruthy() {
		vm.branch(f, depth)
	} else {
		f.Advance()
	}
	return nil
}

func execBrTable(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.BrTableImm)
	idx := vm.Stack.Pop().U32()
	depth := imm.Default
	if idx < uint32(len(imm.Labels)) {
		depth = imm.Labels[idx]
	}
	vm.branch(f, int(depth))
	return nil
}

// execReturn exits the current function: it obeys the same arity discipline
// as a BR to the function's own scope, since RETURN is a branch to the
// outermost (implicit) label. The function's declared result count survives
// on the stack; everything else is dropped back to the frame's entry height.
func execReturn(vm *Interpreter, f *StackFrame) error {
	ft := f.Instance.Type(f.Instance.FunctionType(f.FuncID))
	arity := len(ft.Results)
	vals := make([]Value, arity)
	for i := arity - 1; i >= 0; i-- {
		vals[i] = vm.Stack.Pop()
	}
	vm.Stack.Truncate(f.baseHeight)
	for _, v := range vals {
		vm.Stack.Push(v)
	}
	f.ShouldReturn = true
	return nil
}

func execDrop(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Pop()
	f.Advance()
	return nil
}

func execSelect(vm *Interpreter, f *StackFrame) error {
	pred := vm.Stack.Pop()
	b := vm.Stack.Pop()
	a := vm.Stack.Pop()
	if pred.IsTruthy() {
		vm.Stack.Push(a)
	} else {
		vm.Stack.Push(b)
	}
	f.Advance()
	return nil
}

func execRefNull(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.RefNullImm)
	if imm.HeapType == wasm.HeapTypeExtern {
		vm.Stack.Push(NullExternRef())
	} else {
		vm.Stack.Push(NullFuncRef())
	}
	f.Advance()
	return nil
}

func execRefIsNull(vm *Interpreter, f *StackFrame) error {
	v := vm.Stack.Pop()
	vm.Stack.Push(boolValue(v.IsNullRef()))
	f.Advance()
	return nil
}

func execRefFunc(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.RefFuncImm)
	vm.Stack.Push(FuncRef(imm.FuncIdx))
	f.Advance()
	return nil
}
