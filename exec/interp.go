package exec

import (
	"fmt"

	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/wasm"
	"go.uber.org/zap"
)

// opHandler mutates the interpreter's shared state (value stack, the
// frame's locals/cursor/blocks, and via the frame's instance, memory/
// tables/globals) in response to one instruction.
type opHandler func(vm *Interpreter, f *StackFrame) error

// Limits bounds interpreter resource use. The zero value is usable but
// unbounded recursion will panic the host goroutine on stack exhaustion;
// embedders should set MaxCallDepth.
type Limits struct {
	MaxCallDepth int
}

// DefaultLimits returns the limits a CLI or test harness should start
// from.
func DefaultLimits() Limits {
	return Limits{MaxCallDepth: 2048}
}

// FrameInfo is a stack-trace entry captured at the point of a trap.
type FrameInfo struct {
	FuncID uint32
	PC     int
}

// Trap is raised when execution hits one of the taxonomy's trap kinds; it
// carries the call-stack snapshot from the moment the trap occurred, per
// spec.md's "the call stack is preserved... for a caller to read via
// getStackTrace".
type Trap struct {
	Err    *errors.Error
	Frames []FrameInfo
}

func (t *Trap) Error() string   { return t.Err.Error() }
func (t *Trap) Unwrap() error   { return t.Err }
func (t *Trap) StackTrace() []FrameInfo { return t.Frames }

// Interpreter is one logical execution thread: a shared value stack and
// the live call stack of activation frames. A fresh Interpreter is created
// per top-level Call; re-entrant host->guest calls recurse through a new
// Interpreter rather than sharing state, which keeps Go's own call stack
// the source of truth for recursion depth (spec.md §5: "recursion depth is
// bounded only by the host's own stack").
type Interpreter struct {
	Stack  *ValueStack
	Limits Limits
	frames []*StackFrame
}

func (vm *Interpreter) pushFrame(f *StackFrame) { vm.frames = append(vm.frames, f) }
func (vm *Interpreter) popFrame()                { vm.frames = vm.frames[:len(vm.frames)-1] }

func (vm *Interpreter) snapshot() []FrameInfo {
	out := make([]FrameInfo, len(vm.frames))
	for i, f := range vm.frames {
		out[i] = FrameInfo{FuncID: f.FuncID, PC: f.PC}
	}
	return out
}

// run drives one frame's instruction stream until it terminates or
// requests return. It never pops the frame; the caller (invokeModuleFunc
// or Call) owns that.
func (vm *Interpreter) run(f *StackFrame) error {
	for !f.Terminated() && !f.ShouldReturn {
		op := f.Current().Opcode
		h := opTable[op]
		if h == nil {
			return fmt.Errorf("exec: no handler for opcode 0x%02x", op)
		}
		if err := h(vm, f); err != nil {
			if trap, ok := err.(*Trap); ok {
				return trap
			}
			if e, ok := err.(*errors.Error); ok && isTrapKind(e.Kind) {
				trap := &Trap{Err: e, Frames: vm.snapshot()}
				Logger().Debug("trap", zap.String("kind", string(e.Kind)), zap.String("detail", e.Detail), zap.Uint32("func", f.FuncID), zap.Int("pc", f.PC))
				return trap
			}
			return err
		}
	}
	return nil
}

func isTrapKind(k errors.Kind) bool {
	switch k {
	case errors.KindTrapUnreachable, errors.KindTrapDivByZero, errors.KindTrapIntOverflow,
		errors.KindTrapInvalidConversion, errors.KindTrapOOBMemory, errors.KindTrapOOBTable,
		errors.KindTrapUninitElem, errors.KindTrapIndirectMismatch, errors.KindTrapUndefinedElement,
		errors.KindTrapMissingImport:
		return true
	default:
		return false
	}
}

// Call is the interpreter's public entry point: invoke funcID against
// inst with args, optionally popping and returning its results.
// popResults=false leaves results on the (discarded, call-local) stack,
// matching spec.md's "useful for nested indirect calls" note — nested
// calls made by opcode handlers never go through this entry point, they
// call vm.invoke directly and share the caller's stack, so this flag only
// matters to an embedder that wants to chain raw Call invocations.
func Call(inst InstanceView, funcID uint32, args []Value, popResults bool, limits Limits) ([]Value, error) {
	typeID := inst.FunctionType(funcID)
	ft := inst.Type(typeID)
	if len(args) != len(ft.Params) {
		return nil, errors.InvalidData(errors.PhaseExec, nil,
			fmt.Sprintf("call: expected %d arguments, got %d", len(ft.Params), len(args)))
	}
	for i, pt := range ft.Params {
		if valueKind(pt) != args[i].Kind {
			return nil, errors.InvalidData(errors.PhaseExec, nil,
				fmt.Sprintf("call argument %d: expected %s, got %s", i, pt, args[i].Kind))
		}
	}

	vm := &Interpreter{Stack: NewValueStack(), Limits: limits}

	var callErr error
	if inst.IsImportedFunc(funcID) {
		callErr = vm.invokeHost(inst, funcID, args)
	} else {
		callErr = vm.invokeModuleFunc(inst, funcID, args)
	}
	if callErr != nil {
		return nil, callErr
	}

	if popResults && len(ft.Results) > 0 {
		out := make([]Value, len(ft.Results))
		for i := len(ft.Results) - 1; i >= 0; i-- {
			out[i] = vm.Stack.Pop()
		}
		return out, nil
	}
	return nil, nil
}

// opTable is filled in init: its handlers reach run, which reads opTable,
// so a plain initializer would be an initialization cycle.
var opTable [256]opHandler

func init() { opTable = newOpTable() }

func unaryOp(f func(Value) Value) opHandler {
	return func(vm *Interpreter, fr *StackFrame) error {
		a := vm.Stack.Pop()
		vm.Stack.Push(f(a))
		fr.Advance()
		return nil
	}
}

func binaryOp(f func(a, b Value) Value) opHandler {
	return func(vm *Interpreter, fr *StackFrame) error {
		b := vm.Stack.Pop()
		a := vm.Stack.Pop()
		vm.Stack.Push(f(a, b))
		fr.Advance()
		return nil
	}
}

func unaryTrapOp(f func(Value) (Value, error)) opHandler {
	return func(vm *Interpreter, fr *StackFrame) error {
		a := vm.Stack.Pop()
		v, err := f(a)
		if err != nil {
			return err
		}
		vm.Stack.Push(v)
		fr.Advance()
		return nil
	}
}

func binaryTrapOp(f func(a, b Value) (Value, error)) opHandler {
	return func(vm *Interpreter, fr *StackFrame) error {
		b := vm.Stack.Pop()
		a := vm.Stack.Pop()
		v, err := f(a, b)
		if err != nil {
			return err
		}
		vm.Stack.Push(v)
		fr.Advance()
		return nil
	}
}

func execMiscPrefix(vm *Interpreter, f *StackFrame) error {
	switch f.Current().Imm.(wasm.MiscImm).SubOpcode {
	case wasm.MiscI32TruncSatF32S:
		return unaryOp(i32TruncSatF32S)(vm, f)
	case wasm.MiscI32TruncSatF32U:
		return unaryOp(i32TruncSatF32U)(vm, f)
	case wasm.MiscI32TruncSatF64S:
		return unaryOp(i32TruncSatF64S)(vm, f)
	case wasm.MiscI32TruncSatF64U:
		return unaryOp(i32TruncSatF64U)(vm, f)
	case wasm.MiscI64TruncSatF32S:
		return unaryOp(i64TruncSatF32S)(vm, f)
	case wasm.MiscI64TruncSatF32U:
		return unaryOp(i64TruncSatF32U)(vm, f)
	case wasm.MiscI64TruncSatF64S:
		return unaryOp(i64TruncSatF64S)(vm, f)
	case wasm.MiscI64TruncSatF64U:
		return unaryOp(i64TruncSatF64U)(vm, f)
	case wasm.MiscMemoryInit:
		return execMemoryInit(vm, f)
	case wasm.MiscDataDrop:
		return execDataDrop(vm, f)
	case wasm.MiscMemoryCopy:
		return execMemoryCopy(vm, f)
	case wasm.MiscMemoryFill:
		return execMemoryFill(vm, f)
	case wasm.MiscTableInit:
		return execTableInit(vm, f)
	case wasm.MiscElemDrop:
		return execElemDrop(vm, f)
	case wasm.MiscTableCopy:
		return execTableCopy(vm, f)
	case wasm.MiscTableGrow:
		return execTableGrow(vm, f)
	case wasm.MiscTableSize:
		return execTableSize(vm, f)
	case wasm.MiscTableFill:
		return execTableFill(vm, f)
	default:
		return fmt.Errorf("exec: unsupported 0xFC sub-opcode 0x%02x", f.Current().Imm.(wasm.MiscImm).SubOpcode)
	}
}

// newOpTable builds the fixed-size opcode dispatch array once. Unhandled
// entries stay nil; run() turns a nil lookup into a fatal error rather
// than a nil-pointer panic.
func newOpTable() [256]opHandler {
	var t [256]opHandler

	t[wasm.OpUnreachable] = execUnreachable
	t[wasm.OpNop] = execNop
	t[wasm.OpBlock] = execBlock
	t[wasm.OpLoop] = execLoop
	t[wasm.OpIf] = execIf
	t[wasm.OpElse] = execElse
	t[wasm.OpEnd] = execEnd
	t[wasm.OpBr] = execBr
	t[wasm.OpBrIf] = execBrIf
	t[wasm.OpBrTable] = execBrTable
	t[wasm.OpReturn] = execReturn
	t[wasm.OpCall] = execCall
	t[wasm.OpCallIndirect] = execCallIndirect

	t[wasm.OpDrop] = execDrop
	t[wasm.OpSelect] = execSelect
	t[wasm.OpSelectType] = execSelect

	t[wasm.OpLocalGet] = execLocalGet
	t[wasm.OpLocalSet] = execLocalSet
	t[wasm.OpLocalTee] = execLocalTee
	t[wasm.OpGlobalGet] = execGlobalGet
	t[wasm.OpGlobalSet] = execGlobalSet

	t[wasm.OpTableGet] = execTableGet
	t[wasm.OpTableSet] = execTableSet

	t[wasm.OpI32Load] = makeLoadHandler(4, false, false)
	t[wasm.OpI64Load] = makeLoadHandler(8, true, false)
	t[wasm.OpF32Load] = execF32Load
	t[wasm.OpF64Load] = execF64Load
	t[wasm.OpI32Load8S] = makeLoadHandler(1, false, true)
	t[wasm.OpI32Load8U] = makeLoadHandler(1, false, false)
	t[wasm.OpI32Load16S] = makeLoadHandler(2, false, true)
	t[wasm.OpI32Load16U] = makeLoadHandler(2, false, false)
	t[wasm.OpI64Load8S] = makeLoadHandler(1, true, true)
	t[wasm.OpI64Load8U] = makeLoadHandler(1, true, false)
	t[wasm.OpI64Load16S] = makeLoadHandler(2, true, true)
	t[wasm.OpI64Load16U] = makeLoadHandler(2, true, false)
	t[wasm.OpI64Load32S] = makeLoadHandler(4, true, true)
	t[wasm.OpI64Load32U] = makeLoadHandler(4, true, false)

	t[wasm.OpI32Store] = makeStoreHandler(4, false)
	t[wasm.OpI64Store] = makeStoreHandler(8, true)
	t[wasm.OpF32Store] = execF32Store
	t[wasm.OpF64Store] = execF64Store
	t[wasm.OpI32Store8] = makeStoreHandler(1, false)
	t[wasm.OpI32Store16] = makeStoreHandler(2, false)
	t[wasm.OpI64Store8] = makeStoreHandler(1, true)
	t[wasm.OpI64Store16] = makeStoreHandler(2, true)
	t[wasm.OpI64Store32] = makeStoreHandler(4, true)

	t[wasm.OpMemorySize] = execMemorySize
	t[wasm.OpMemoryGrow] = execMemoryGrow

	t[wasm.OpI32Const] = execI32Const
	t[wasm.OpI64Const] = execI64Const
	t[wasm.OpF32Const] = execF32Const
	t[wasm.OpF64Const] = execF64Const

	t[wasm.OpI32Eqz] = unaryOp(i32Eqz)
	t[wasm.OpI32Eq] = binaryOp(i32Eq)
	t[wasm.OpI32Ne] = binaryOp(i32Ne)
	t[wasm.OpI32LtS] = binaryOp(i32LtS)
	t[wasm.OpI32LtU] = binaryOp(i32LtU)
	t[wasm.OpI32GtS] = binaryOp(i32GtS)
	t[wasm.OpI32GtU] = binaryOp(i32GtU)
	t[wasm.OpI32LeS] = binaryOp(i32LeS)
	t[wasm.OpI32LeU] = binaryOp(i32LeU)
	t[wasm.OpI32GeS] = binaryOp(i32GeS)
	t[wasm.OpI32GeU] = binaryOp(i32GeU)

	t[wasm.OpI64Eqz] = unaryOp(i64Eqz)
	t[wasm.OpI64Eq] = binaryOp(i64Eq)
	t[wasm.OpI64Ne] = binaryOp(i64Ne)
	t[wasm.OpI64LtS] = binaryOp(i64LtS)
	t[wasm.OpI64LtU] = binaryOp(i64LtU)
	t[wasm.OpI64GtS] = binaryOp(i64GtS)
	t[wasm.OpI64GtU] = binaryOp(i64GtU)
	t[wasm.OpI64LeS] = binaryOp(i64LeS)
	t[wasm.OpI64LeU] = binaryOp(i64LeU)
	t[wasm.OpI64GeS] = binaryOp(i64GeS)
	t[wasm.OpI64GeU] = binaryOp(i64GeU)

	t[wasm.OpF32Eq] = binaryOp(f32Eq)
	t[wasm.OpF32Ne] = binaryOp(f32Ne)
	t[wasm.OpF32Lt] = binaryOp(f32Lt)
	t[wasm.OpF32Gt] = binaryOp(f32Gt)
	t[wasm.OpF32Le] = binaryOp(f32Le)
	t[wasm.OpF32Ge] = binaryOp(f32Ge)

	t[wasm.OpF64Eq] = binaryOp(f64Eq)
	t[wasm.OpF64Ne] = binaryOp(f64Ne)
	t[wasm.OpF64Lt] = binaryOp(f64Lt)
	t[wasm.OpF64Gt] = binaryOp(f64Gt)
	t[wasm.OpF64Le] = binaryOp(f64Le)
	t[wasm.OpF64Ge] = binaryOp(f64Ge)

	t[wasm.OpI32Clz] = unaryOp(i32Clz)
	t[wasm.OpI32Ctz] = unaryOp(i32Ctz)
	t[wasm.OpI32Popcnt] = unaryOp(i32Popcnt)
	t[wasm.OpI32Add] = binaryOp(i32Add)
	t[wasm.OpI32Sub] = binaryOp(i32Sub)
	t[wasm.OpI32Mul] = binaryOp(i32Mul)
	t[wasm.OpI32DivS] = binaryTrapOp(i32DivS)
	t[wasm.OpI32DivU] = binaryTrapOp(i32DivU)
	t[wasm.OpI32RemS] = binaryTrapOp(i32RemS)
	t[wasm.OpI32RemU] = binaryTrapOp(i32RemU)
	t[wasm.OpI32And] = binaryOp(i32And)
	t[wasm.OpI32Or] = binaryOp(i32Or)
	t[wasm.OpI32Xor] = binaryOp(i32Xor)
	t[wasm.OpI32Shl] = binaryOp(i32Shl)
	t[wasm.OpI32ShrS] = binaryOp(i32ShrS)
	t[wasm.OpI32ShrU] = binaryOp(i32ShrU)
	t[wasm.OpI32Rotl] = binaryOp(i32Rotl)
	t[wasm.OpI32Rotr] = binaryOp(i32Rotr)

	t[wasm.OpI64Clz] = unaryOp(i64Clz)
	t[wasm.OpI64Ctz] = unaryOp(i64Ctz)
	t[wasm.OpI64Popcnt] = unaryOp(i64Popcnt)
	t[wasm.OpI64Add] = binaryOp(i64Add)
	t[wasm.OpI64Sub] = binaryOp(i64Sub)
	t[wasm.OpI64Mul] = binaryOp(i64Mul)
	t[wasm.OpI64DivS] = binaryTrapOp(i64DivS)
	t[wasm.OpI64DivU] = binaryTrapOp(i64DivU)
	t[wasm.OpI64RemS] = binaryTrapOp(i64RemS)
	t[wasm.OpI64RemU] = binaryTrapOp(i64RemU)
	t[wasm.OpI64And] = binaryOp(i64And)
	t[wasm.OpI64Or] = binaryOp(i64Or)
	t[wasm.OpI64Xor] = binaryOp(i64Xor)
	t[wasm.OpI64Shl] = binaryOp(i64Shl)
	t[wasm.OpI64ShrS] = binaryOp(i64ShrS)
	t[wasm.OpI64ShrU] = binaryOp(i64ShrU)
	t[wasm.OpI64Rotl] = binaryOp(i64Rotl)
	t[wasm.OpI64Rotr] = binaryOp(i64Rotr)

	t[wasm.OpF32Abs] = unaryOp(f32Abs)
	t[wasm.OpF32Neg] = unaryOp(f32Neg)
	t[wasm.OpF32Ceil] = unaryOp(f32Ceil)
	t[wasm.OpF32Floor] = unaryOp(f32Floor)
	t[wasm.OpF32Trunc] = unaryOp(f32Trunc)
	t[wasm.OpF32Nearest] = unaryOp(f32Nearest)
	t[wasm.OpF32Sqrt] = unaryOp(f32Sqrt)
	t[wasm.OpF32Add] = binaryOp(f32Add)
	t[wasm.OpF32Sub] = binaryOp(f32Sub)
	t[wasm.OpF32Mul] = binaryOp(f32Mul)
	t[wasm.OpF32Div] = binaryOp(f32Div)
	t[wasm.OpF32Min] = binaryOp(f32Min)
	t[wasm.OpF32Max] = binaryOp(f32Max)
	t[wasm.OpF32Copysign] = binaryOp(f32Copysign)

	t[wasm.OpF64Abs] = unaryOp(f64Abs)
	t[wasm.OpF64Neg] = unaryOp(f64Neg)
	t[wasm.OpF64Ceil] = unaryOp(f64Ceil)
	t[wasm.OpF64Floor] = unaryOp(f64Floor)
	t[wasm.OpF64Trunc] = unaryOp(f64Trunc)
	t[wasm.OpF64Nearest] = unaryOp(f64Nearest)
	t[wasm.OpF64Sqrt] = unaryOp(f64Sqrt)
	t[wasm.OpF64Add] = binaryOp(f64Add)
	t[wasm.OpF64Sub] = binaryOp(f64Sub)
	t[wasm.OpF64Mul] = binaryOp(f64Mul)
	t[wasm.OpF64Div] = binaryOp(f64Div)
	t[wasm.OpF64Min] = binaryOp(f64Min)
	t[wasm.OpF64Max] = binaryOp(f64Max)
	t[wasm.OpF64Copysign] = binaryOp(f64Copysign)

	t[wasm.OpI32WrapI64] = unaryOp(i32WrapI64)
	t[wasm.OpI32TruncF32S] = unaryTrapOp(i32TruncF32S)
	t[wasm.OpI32TruncF32U] = unaryTrapOp(i32TruncF32U)
	t[wasm.OpI32TruncF64S] = unaryTrapOp(i32TruncF64S)
	t[wasm.OpI32TruncF64U] = unaryTrapOp(i32TruncF64U)
	t[wasm.OpI64ExtendI32S] = unaryOp(i64ExtendI32S)
	t[wasm.OpI64ExtendI32U] = unaryOp(i64ExtendI32U)
	t[wasm.OpI64TruncF32S] = unaryTrapOp(i64TruncF32S)
	t[wasm.OpI64TruncF32U] = unaryTrapOp(i64TruncF32U)
	t[wasm.OpI64TruncF64S] = unaryTrapOp(i64TruncF64S)
	t[wasm.OpI64TruncF64U] = unaryTrapOp(i64TruncF64U)
	t[wasm.OpF32ConvertI32S] = unaryOp(f32ConvertI32S)
	t[wasm.OpF32ConvertI32U] = unaryOp(f32ConvertI32U)
	t[wasm.OpF32ConvertI64S] = unaryOp(f32ConvertI64S)
	t[wasm.OpF32ConvertI64U] = unaryOp(f32ConvertI64U)
	t[wasm.OpF32DemoteF64] = unaryOp(f32DemoteF64)
	t[wasm.OpF64ConvertI32S] = unaryOp(f64ConvertI32S)
	t[wasm.OpF64ConvertI32U] = unaryOp(f64ConvertI32U)
	t[wasm.OpF64ConvertI64S] = unaryOp(f64ConvertI64S)
	t[wasm.OpF64ConvertI64U] = unaryOp(f64ConvertI64U)
	t[wasm.OpF64PromoteF32] = unaryOp(f64PromoteF32)
	t[wasm.OpI32ReinterpretF32] = unaryOp(i32ReinterpretF32)
	t[wasm.OpI64ReinterpretF64] = unaryOp(i64ReinterpretF64)
	t[wasm.OpF32ReinterpretI32] = unaryOp(f32ReinterpretI32)
	t[wasm.OpF64ReinterpretI64] = unaryOp(f64ReinterpretI64)

	t[wasm.OpI32Extend8S] = unaryOp(i32Extend8S)
	t[wasm.OpI32Extend16S] = unaryOp(i32Extend16S)
	t[wasm.OpI64Extend8S] = unaryOp(i64Extend8S)
	t[wasm.OpI64Extend16S] = unaryOp(i64Extend16S)
	t[wasm.OpI64Extend32S] = unaryOp(i64Extend32S)

	t[wasm.OpRefNull] = execRefNull
	t[wasm.OpRefIsNull] = execRefIsNull
	t[wasm.OpRefFunc] = execRefFunc

	t[wasm.OpPrefixMisc] = execMiscPrefix

	return t
}
