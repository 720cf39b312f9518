package exec

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
)

func execLocalGet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.LocalImm)
	vm.Stack.Push(f.Locals[imm.LocalIdx])
	f.Advance()
	return nil
}

func execLocalSet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.LocalImm)
	f.Locals[imm.LocalIdx] = vm.Stack.Pop()
	f.Advance()
	return nil
}

func execLocalTee(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.LocalImm)
	f.Locals[imm.LocalIdx] = vm.Stack.Peek()
	f.Advance()
	return nil
}

func execGlobalGet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.GlobalImm)
	vm.Stack.Push(f.Instance.ReadGlobal(imm.GlobalIdx))
	f.Advance()
	return nil
}

func execGlobalSet(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.GlobalImm)
	v := vm.Stack.Pop()
	if !f.Instance.WriteGlobal(imm.GlobalIdx, v) {
		return errors.InvalidData(errors.PhaseExec, nil, "write to immutable global")
	}
	f.Advance()
	return nil
}

func execI32Const(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Push(I32(f.Current().Imm.(wasm.I32Imm).Value))
	f.Advance()
	return nil
}

func execI64Const(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Push(I64(f.Current().Imm.(wasm.I64Imm).Value))
	f.Advance()
	return nil
}

func execF32Const(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Push(F32(f.Current().Imm.(wasm.F32Imm).Value))
	f.Advance()
	return nil
}

func execF64Const(vm *Interpreter, f *StackFrame) error {
	vm.Stack.Push(F64(f.Current().Imm.(wasm.F64Imm).Value))
	f.Advance()
	return nil
}
