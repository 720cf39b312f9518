package exec

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
)

// Prepare decodes a function body's raw bytecode into a resolved
// instruction stream: BLOCK/LOOP/IF instructions get their matching END
// index, result arity, and (for IF) ELSE index filled in, in a single
// forward scan with a stack of open block indices. Everything else is a
// straight port of the decoder's wasm.Instruction.
//
// mod supplies the type table blocktype indices resolve against; it is not
// retained afterward.
func Prepare(mod *wasm.Module, body wasm.FuncBody) ([]Instruction, error) {
	decoded, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode function body")
	}

	out := make([]Instruction, len(decoded))
	for i, d := range decoded {
		out[i] = Instruction{Opcode: d.Opcode, Imm: d.Imm, ElseIdx: -1}
	}

	var open []int
	for i := range out {
		switch out[i].Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			bt := out[i].Imm.(wasm.BlockImm).Type
			out[i].Arity = blockResultArity(mod, bt)
			out[i].ParamArity = blockParamArity(mod, bt)
			open = append(open, i)
		case wasm.OpElse:
			if len(open) == 0 {
				return nil, errors.InvalidData(errors.PhaseDecode, nil, "else without matching if")
			}
			out[open[len(open)-1]].ElseIdx = i
		case wasm.OpEnd:
			if len(open) > 0 {
				top := open[len(open)-1]
				open = open[:len(open)-1]
				out[top].EndPC = i
			}
		}
	}
	if len(open) != 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, nil, "unbalanced block nesting")
	}
	return out, nil
}

// blockResultArity resolves a decoded blocktype to its result-value count:
// 0 for the epsilon type (0x40), 1 for a single inline value type, or the
// function type's result count for a type-index blocktype.
func blockResultArity(mod *wasm.Module, blockType int32) int {
	switch blockType {
	case wasm.BlockTypeVoid:
		return 0
	case wasm.BlockTypeI32, wasm.BlockTypeI64, wasm.BlockTypeF32, wasm.BlockTypeF64, wasm.BlockTypeV128:
		return 1
	default:
		if blockType < 0 {
			return 1
		}
		if int(blockType) < len(mod.Types) {
			return len(mod.Types[blockType].Results)
		}
		return 0
	}
}

// blockParamArity resolves a decoded blocktype to its parameter-value
// count, used to compute the stack height a block's scope actually owns
// (the type-index blocktype form of the multi-value proposal allows
// params; plain inline blocktypes never do).
func blockParamArity(mod *wasm.Module, blockType int32) int {
	if blockType < 0 {
		return 0
	}
	if int(blockType) < len(mod.Types) {
		return len(mod.Types[blockType].Params)
	}
	return 0
}
