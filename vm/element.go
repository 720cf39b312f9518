package vm

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/wasm"
)

// Element is one element segment's resolved contents: a dense list of
// refs, plus whether elem.drop has fired. It implements exec.Element.
type Element struct {
	refs    []exec.Value
	dropped bool
}

func (e *Element) Size() uint32 { return uint32(len(e.refs)) }

func (e *Element) Ref(i uint32) (exec.Value, bool) {
	if i >= uint32(len(e.refs)) {
		return exec.Value{}, false
	}
	return e.refs[i], true
}

func (e *Element) Dropped() bool { return e.dropped }

// Drop marks the segment consumed; further table.init against it traps.
func (e *Element) Drop() { e.dropped = true }

// computeConstantValue evaluates a constant expression (a global
// initializer or an element/data segment's offset expression): the single
// instruction before the terminating END. resolvedGlobals supplies values
// for GLOBAL_GET, which the const-expr grammar restricts to globals already
// instantiated before this one (imports, in declaration order).
func computeConstantValue(mod *wasm.Module, resolvedGlobals []exec.Value, expr []byte) (exec.Value, error) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return exec.Value{}, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "decode constant expression")
	}
	if len(instrs) == 0 {
		return exec.Value{}, errors.InvalidData(errors.PhaseLoad, nil, "empty constant expression")
	}

	switch instrs[0].Opcode {
	case wasm.OpI32Const:
		return exec.I32(instrs[0].Imm.(wasm.I32Imm).Value), nil
	case wasm.OpI64Const:
		return exec.I64(instrs[0].Imm.(wasm.I64Imm).Value), nil
	case wasm.OpF32Const:
		return exec.F32(instrs[0].Imm.(wasm.F32Imm).Value), nil
	case wasm.OpF64Const:
		return exec.F64(instrs[0].Imm.(wasm.F64Imm).Value), nil
	case wasm.OpGlobalGet:
		idx := instrs[0].Imm.(wasm.GlobalImm).GlobalIdx
		if int(idx) >= len(resolvedGlobals) {
			return exec.Value{}, errors.InvalidData(errors.PhaseLoad, nil, "global.get in constant expression references an unresolved global")
		}
		return resolvedGlobals[idx], nil
	case wasm.OpRefNull:
		ht := instrs[0].Imm.(wasm.RefNullImm).HeapType
		if ht == wasm.HeapTypeExtern {
			return exec.NullExternRef(), nil
		}
		return exec.NullFuncRef(), nil
	case wasm.OpRefFunc:
		return exec.FuncRef(instrs[0].Imm.(wasm.RefFuncImm).FuncIdx), nil
	default:
		return exec.Value{}, errors.Unsupported(errors.PhaseLoad, "constant expression opcode")
	}
}
