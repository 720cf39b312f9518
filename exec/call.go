package exec

import (
	"fmt"

	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
)

// invoke is the shared callee-dispatch path for CALL and CALL_INDIRECT: it
// pops the declared parameter count off the shared value stack (reverse
// order, so they land in source order), validates each popped Value's type
// tag against the signature, and runs the callee to completion, leaving its
// results on the same shared stack.
func (vm *Interpreter) invoke(inst InstanceView, funcID uint32) error {
	typeID := inst.FunctionType(funcID)
	ft := inst.Type(typeID)

	args := make([]Value, len(ft.Params))
	for i := len(ft.Params) - 1; i >= 0; i-- {
		v := vm.Stack.Pop()
		if valueKind(ft.Params[i]) != v.Kind {
			return errors.InvalidData(errors.PhaseExec, nil,
				fmt.Sprintf("call argument %d: expected %s, got %s", i, ft.Params[i], v.Kind))
		}
		args[i] = v
	}

	if inst.IsImportedFunc(funcID) {
		return vm.invokeHost(inst, funcID, args)
	}
	return vm.invokeModuleFunc(inst, funcID, args)
}

func (vm *Interpreter) invokeHost(inst InstanceView, funcID uint32, args []Value) error {
	hostFn, ok := inst.HostFunc(funcID)
	if !ok {
		return errors.Trap(errors.KindTrapMissingImport, fmt.Sprintf("no host function bound for func %d", funcID))
	}
	vm.pushFrame(NewHostFrame(inst, funcID))
	results, err := hostFn(inst, args)
	vm.popFrame()
	if err != nil {
		return err
	}
	for _, v := range results {
		vm.Stack.Push(v)
	}
	return nil
}

func (vm *Interpreter) invokeModuleFunc(inst InstanceView, funcID uint32, args []Value) error {
	if vm.Limits.MaxCallDepth > 0 && len(vm.frames) >= vm.Limits.MaxCallDepth {
		return errors.InvalidData(errors.PhaseExec, nil, "call stack exhausted")
	}
	body := inst.FunctionBody(funcID)
	locals := inst.FunctionLocalTypes(funcID)
	frame := NewStackFrame(body, inst, funcID, args, locals)
	frame.baseHeight = vm.Stack.Size()
	vm.pushFrame(frame)
	err := vm.run(frame)
	vm.popFrame()
	return err
}

func execCall(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.CallImm)
	if err := vm.invoke(f.Instance, imm.FuncIdx); err != nil {
		return err
	}
	f.Advance()
	return nil
}

func execCallIndirect(vm *Interpreter, f *StackFrame) error {
	imm := f.Current().Imm.(wasm.CallIndirectImm)
	idx := vm.Stack.Pop().U32()

	table := f.Instance.Table(imm.TableIdx)
	ref, ok := table.Ref(idx)
	if !ok {
		return errors.Trap(errors.KindTrapOOBTable, "call_indirect: index out of bounds")
	}
	if ref.IsNullRef() {
		return errors.Trap(errors.KindTrapUninitElem, "call_indirect: uninitialized element")
	}

	funcID := ref.U32()
	expected := f.Instance.Type(imm.TypeIdx)
	actual := f.Instance.Type(f.Instance.FunctionType(funcID))
	if !actual.TypesMatch(expected) {
		return errors.Trap(errors.KindTrapIndirectMismatch, "call_indirect: type mismatch")
	}

	if err := vm.invoke(f.Instance, funcID); err != nil {
		return err
	}
	f.Advance()
	return nil
}
