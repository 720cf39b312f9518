package vm

import (
	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/resource"
	"github.com/kilnforge/wasmcore/wasm"
)

// Imports collects the host-provided bindings a module's import section
// resolves against, keyed by the (module, name) pair the way the teacher's host
// registry keys by WIT namespace and function name — this core has no WIT,
// so the key is just the two-level import name the binary format already
// carries.
type Imports struct {
	funcs      map[string]exec.HostFunc
	funcTypes  map[string]exec.FunctionType
	memories   map[string]*Memory
	tables     map[string]*Table
	globals    map[string]*Global
	externRefs resource.Table
}

// NewImports returns an empty import set ready for AddFunc/AddMemory/
// AddTable/AddGlobal calls. It also allocates the externref handle table
// backing RegisterHost's reflection path for pointer/interface parameters.
func NewImports() *Imports {
	return &Imports{
		funcs:      map[string]exec.HostFunc{},
		funcTypes:  map[string]exec.FunctionType{},
		memories:   map[string]*Memory{},
		tables:     map[string]*Table{},
		globals:    map[string]*Global{},
		externRefs: resource.NewTable(),
	}
}

// ExternRefs exposes the externref handle table so a host module can box or
// unbox values manually when registering functions through AddFunc directly
// rather than via RegisterHost's reflection path.
func (im *Imports) ExternRefs() resource.Table { return im.externRefs }

func importKey(module, name string) string { return module + "\x00" + name }

// AddFunc registers a host function under module.name with the signature
// the importing module must declare to bind against it.
func (im *Imports) AddFunc(module, name string, sig exec.FunctionType, fn exec.HostFunc) {
	key := importKey(module, name)
	im.funcs[key] = fn
	im.funcTypes[key] = sig
}

// AddMemory registers an importable memory.
func (im *Imports) AddMemory(module, name string, mem *Memory) {
	im.memories[importKey(module, name)] = mem
}

// AddTable registers an importable table.
func (im *Imports) AddTable(module, name string, tbl *Table) {
	im.tables[importKey(module, name)] = tbl
}

// AddGlobal registers an importable global.
func (im *Imports) AddGlobal(module, name string, g *Global) {
	im.globals[importKey(module, name)] = g
}

// ModuleInstance ties a decoded wasm.Module's resolved state (function
// bodies, memory, tables, globals, element segments) into the single view
// the exec interpreter borrows from its host. It implements
// exec.InstanceView.
type ModuleInstance struct {
	mod *wasm.Module

	types       []exec.FunctionType
	funcTypeIdx []uint32
	bodies      [][]exec.Instruction // nil for imported functions
	localTypes  [][]wasm.ValType
	hostFuncs   map[uint32]exec.HostFunc

	memory   *Memory
	tables   []*Table
	globals  []*Global
	elements []*Element
}

// Instantiate resolves mod's imports against imports, allocates its memory,
// tables, globals and element segments, applies active element/data
// segments, and returns the instance ready for exec.Call. The start
// function, if declared, has not run yet; callers invoke it themselves
// (Module.Instantiate does this).
func Instantiate(mod *wasm.Module, imports *Imports) (*ModuleInstance, error) {
	if imports == nil {
		imports = NewImports()
	}

	inst := &ModuleInstance{mod: mod, hostFuncs: map[uint32]exec.HostFunc{}}

	inst.types = make([]exec.FunctionType, len(mod.Types))
	for i, t := range mod.Types {
		inst.types[i] = exec.FunctionType{Params: t.Params, Results: t.Results}
	}

	if err := inst.bindFunctions(mod, imports); err != nil {
		return nil, err
	}
	if err := inst.bindMemory(mod, imports); err != nil {
		return nil, err
	}
	if err := inst.bindTables(mod, imports); err != nil {
		return nil, err
	}
	if err := inst.bindGlobals(mod, imports); err != nil {
		return nil, err
	}
	if err := inst.bindElements(mod); err != nil {
		return nil, err
	}
	if err := inst.bindData(mod); err != nil {
		return nil, err
	}

	return inst, nil
}

func (inst *ModuleInstance) bindFunctions(mod *wasm.Module, imports *Imports) error {
	numImported := mod.NumImportedFuncs()
	total := numImported + len(mod.Funcs)
	inst.funcTypeIdx = make([]uint32, total)
	inst.bodies = make([][]exec.Instruction, total)
	inst.localTypes = make([][]wasm.ValType, total)

	funcIdx := uint32(0)
	for _, imp := range mod.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		key := importKey(imp.Module, imp.Name)
		fn, ok := imports.funcs[key]
		if !ok {
			return errors.Trap(errors.KindTrapMissingImport, "missing host import "+imp.Module+"."+imp.Name)
		}
		inst.funcTypeIdx[funcIdx] = imp.Desc.TypeIdx
		inst.hostFuncs[funcIdx] = fn
		funcIdx++
	}

	for i, typeIdx := range mod.Funcs {
		id := uint32(numImported + i)
		inst.funcTypeIdx[id] = typeIdx
		body := mod.Code[i]

		localTypes := make([]wasm.ValType, 0, len(body.Locals))
		for _, le := range body.Locals {
			for n := uint32(0); n < le.Count; n++ {
				localTypes = append(localTypes, le.ValType)
			}
		}
		inst.localTypes[id] = localTypes

		instrs, err := exec.Prepare(mod, body)
		if err != nil {
			return err
		}
		inst.bodies[id] = instrs
	}
	return nil
}

func (inst *ModuleInstance) bindMemory(mod *wasm.Module, imports *Imports) error {
	for _, imp := range mod.Imports {
		if imp.Desc.Kind != wasm.KindMemory {
			continue
		}
		mem, ok := imports.memories[importKey(imp.Module, imp.Name)]
		if !ok {
			return errors.Trap(errors.KindTrapMissingImport, "missing memory import "+imp.Module+"."+imp.Name)
		}
		inst.memory = mem
		return nil
	}
	if len(mod.Memories) == 0 {
		return nil
	}
	mt := mod.Memories[0]
	max := uint32(0)
	if mt.Limits.Max != nil {
		max = uint32(*mt.Limits.Max)
	}
	inst.memory = NewMemory(uint32(mt.Limits.Min), max)
	return nil
}

func (inst *ModuleInstance) bindTables(mod *wasm.Module, imports *Imports) error {
	for _, imp := range mod.Imports {
		if imp.Desc.Kind != wasm.KindTable {
			continue
		}
		tbl, ok := imports.tables[importKey(imp.Module, imp.Name)]
		if !ok {
			return errors.Trap(errors.KindTrapMissingImport, "missing table import "+imp.Module+"."+imp.Name)
		}
		inst.tables = append(inst.tables, tbl)
	}
	for _, tt := range mod.Tables {
		max := uint32(0)
		if tt.Limits.Max != nil {
			max = uint32(*tt.Limits.Max)
		}
		null := exec.NullFuncRef()
		if wasm.ValType(tt.ElemType) == wasm.ValExtern {
			null = exec.NullExternRef()
		}
		inst.tables = append(inst.tables, NewTable(uint32(tt.Limits.Min), max, null))
	}
	return nil
}

func (inst *ModuleInstance) bindGlobals(mod *wasm.Module, imports *Imports) error {
	for _, imp := range mod.Imports {
		if imp.Desc.Kind != wasm.KindGlobal {
			continue
		}
		g, ok := imports.globals[importKey(imp.Module, imp.Name)]
		if !ok {
			return errors.Trap(errors.KindTrapMissingImport, "missing global import "+imp.Module+"."+imp.Name)
		}
		inst.globals = append(inst.globals, g)
	}

	resolved := make([]exec.Value, 0, len(mod.Globals))
	for _, g := range inst.globals {
		resolved = append(resolved, g.Value)
	}
	for _, decl := range mod.Globals {
		v, err := computeConstantValue(mod, resolved, decl.Init)
		if err != nil {
			return err
		}
		inst.globals = append(inst.globals, &Global{Value: v, Mutable: decl.Type.Mutable})
		resolved = append(resolved, v)
	}
	return nil
}

func (inst *ModuleInstance) globalSnapshot() []exec.Value {
	vals := make([]exec.Value, len(inst.globals))
	for i, g := range inst.globals {
		vals[i] = g.Value
	}
	return vals
}

func (inst *ModuleInstance) bindElements(mod *wasm.Module) error {
	globalVals := inst.globalSnapshot()
	inst.elements = make([]*Element, len(mod.Elements))

	for i, el := range mod.Elements {
		var refs []exec.Value
		if el.Flags < 4 {
			// flags 0-3 carry a vec(funcidx)
			refs = make([]exec.Value, len(el.FuncIdxs))
			for j, fi := range el.FuncIdxs {
				refs[j] = exec.FuncRef(fi)
			}
		} else {
			// flags 4-7 carry a vec(expr)
			refs = make([]exec.Value, len(el.Exprs))
			for j, expr := range el.Exprs {
				v, err := computeConstantValue(mod, globalVals, expr)
				if err != nil {
					return err
				}
				refs[j] = v
			}
		}
		elem := &Element{refs: refs}
		inst.elements[i] = elem

		active := el.Flags == 0 || el.Flags == 2 || el.Flags == 4 || el.Flags == 6
		declarative := el.Flags == 3 || el.Flags == 7
		if declarative {
			elem.Drop()
			continue
		}
		if !active {
			continue
		}
		offset, err := computeConstantValue(mod, globalVals, el.Offset)
		if err != nil {
			return err
		}
		table := inst.tables[el.TableIdx]
		for j, v := range refs {
			table.SetRef(offset.U32()+uint32(j), v)
		}
		elem.Drop()
	}
	return nil
}

func (inst *ModuleInstance) bindData(mod *wasm.Module) error {
	if inst.memory == nil && len(mod.Data) > 0 {
		// A module with data segments but no declared memory only makes
		// sense if every segment is passive; still record them so
		// data.drop on a never-applied segment is a harmless no-op.
		inst.memory = NewMemory(0, 0)
	}
	if inst.memory == nil {
		return nil
	}

	globalVals := inst.globalSnapshot()
	segments := make([][]byte, len(mod.Data))
	for i, ds := range mod.Data {
		segments[i] = ds.Init
	}
	inst.memory.SetSegments(segments)

	for i, ds := range mod.Data {
		if ds.Flags != 0 && ds.Flags != 2 {
			continue // passive
		}
		offset, err := computeConstantValue(mod, globalVals, ds.Offset)
		if err != nil {
			return err
		}
		if !inst.memory.Write(offset.U32(), ds.Init) {
			return errors.Trap(errors.KindTrapOOBMemory, "active data segment write out of bounds")
		}
		inst.memory.DropSegment(i)
	}
	return nil
}

// ExportedFunc resolves an export name to a function index.
func (inst *ModuleInstance) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range inst.mod.Exports {
		if exp.Kind == wasm.KindFunc && exp.Name == name {
			return exp.Idx, true
		}
	}
	return 0, false
}

// --- exec.InstanceView ---

func (inst *ModuleInstance) FunctionType(funcID uint32) uint32 { return inst.funcTypeIdx[funcID] }
func (inst *ModuleInstance) Type(typeID uint32) exec.FunctionType { return inst.types[typeID] }
func (inst *ModuleInstance) FunctionBody(funcID uint32) []exec.Instruction {
	return inst.bodies[funcID]
}
func (inst *ModuleInstance) FunctionLocalTypes(funcID uint32) []wasm.ValType {
	return inst.localTypes[funcID]
}
func (inst *ModuleInstance) IsImportedFunc(funcID uint32) bool {
	_, ok := inst.hostFuncs[funcID]
	return ok
}
func (inst *ModuleInstance) HostFunc(funcID uint32) (exec.HostFunc, bool) {
	fn, ok := inst.hostFuncs[funcID]
	return fn, ok
}
func (inst *ModuleInstance) FunctionCount() uint32 { return uint32(len(inst.funcTypeIdx)) }

func (inst *ModuleInstance) Table(i uint32) exec.Table {
	if i >= uint32(len(inst.tables)) {
		return nil
	}
	return inst.tables[i]
}
func (inst *ModuleInstance) Memory() exec.Memory { return inst.memory }
func (inst *ModuleInstance) ReadGlobal(i uint32) exec.Value { return inst.globals[i].Value }
func (inst *ModuleInstance) WriteGlobal(i uint32, v exec.Value) bool {
	if i >= uint32(len(inst.globals)) || !inst.globals[i].Mutable {
		return false
	}
	inst.globals[i].Value = v
	return true
}

func (inst *ModuleInstance) Element(i uint32) exec.Element {
	if i >= uint32(len(inst.elements)) {
		return nil
	}
	return inst.elements[i]
}
func (inst *ModuleInstance) ElementCount() uint32 { return uint32(len(inst.elements)) }
func (inst *ModuleInstance) DropElement(i uint32) {
	if i < uint32(len(inst.elements)) {
		inst.elements[i].Drop()
	}
}
