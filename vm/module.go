package vm

import (
	"context"

	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/wasm"
	"github.com/kilnforge/wasmcore/wat"
	"go.uber.org/zap"
)

// Module is a parsed, validated WebAssembly module ready to be
// instantiated. It mirrors the teacher's runtime.Module naming and
// lifecycle (Compile, Instantiate) but is backed directly by this
// repository's exec interpreter rather than wazero: Compile only decodes
// and validates, it never JITs or AOT-compiles anything.
type Module struct {
	raw *wasm.Module
}

// Compile decodes and validates a WebAssembly binary module.
func Compile(binary []byte) (*Module, error) {
	m, err := wasm.ParseModuleValidate(binary)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	return &Module{raw: m}, nil
}

// CompileWAT compiles WebAssembly text format source, then decodes and
// validates the resulting binary exactly as Compile does.
func CompileWAT(source string) (*Module, error) {
	binary, err := wat.Compile(source)
	if err != nil {
		return nil, errors.Load("compile WAT module", err)
	}
	return Compile(binary)
}

// Exports lists the module's exported function names.
func (m *Module) Exports() []string {
	names := make([]string, 0, len(m.raw.Exports))
	for _, e := range m.raw.Exports {
		if e.Kind == wasm.KindFunc {
			names = append(names, e.Name)
		}
	}
	return names
}

// ExportedFuncType looks up the parameter/result signature of an exported
// function by name, for callers (e.g. an interactive CLI) that need to
// prompt for arguments before a module is instantiated.
func (m *Module) ExportedFuncType(name string) (exec.FunctionType, bool) {
	for _, e := range m.raw.Exports {
		if e.Kind != wasm.KindFunc || e.Name != name {
			continue
		}
		ft := m.raw.GetFuncType(e.Idx)
		if ft == nil {
			return exec.FunctionType{}, false
		}
		return exec.FunctionType{Params: ft.Params, Results: ft.Results}, true
	}
	return exec.FunctionType{}, false
}

// Instantiate resolves imports, allocates instance state, and — unless the
// module declares no start function — runs it, returning a ready-to-call
// Instance.
func (m *Module) Instantiate(ctx context.Context, imports *Imports, limits exec.Limits) (*Instance, error) {
	view, err := Instantiate(m.raw, imports)
	if err != nil {
		return nil, err
	}

	inst := &Instance{mod: m, view: view, limits: limits}

	if m.raw.Start != nil {
		Logger().Debug("running start function", zap.Uint32("func", *m.raw.Start))
		if _, err := exec.Call(view, *m.raw.Start, nil, false, limits); err != nil {
			return nil, err
		}
	}

	return inst, nil
}

// Instance is an instantiated module: live memory, tables, globals, and the
// resolved function bodies, ready to be called into. It mirrors the
// teacher's runtime.Instance naming and lifecycle (Call, Close), minus the
// WIT/async machinery that has no equivalent in the core execution model.
type Instance struct {
	mod    *Module
	view   *ModuleInstance
	limits exec.Limits
	closed bool
}

// Call invokes an exported function by name with the given arguments and
// returns its results in source order.
func (in *Instance) Call(ctx context.Context, name string, args ...exec.Value) ([]exec.Value, error) {
	if in.closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance is closed")
	}
	funcID, ok := in.view.ExportedFunc(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "exported function", name)
	}
	return exec.Call(in.view, funcID, args, true, in.limits)
}

// Memory exposes the instance's linear memory for host-side peeking/poking
// (e.g. reading a string a guest function returned by pointer+length).
func (in *Instance) Memory() *Memory { return in.view.memory }

// View returns the underlying exec.InstanceView, for callers that need to
// drive exec.Call directly (e.g. invoking a table-held funcref).
func (in *Instance) View() exec.InstanceView { return in.view }

// Close releases the instance. Linear memory and tables are ordinary Go
// slices, so there is nothing to release beyond making further Call
// attempts fail fast.
func (in *Instance) Close(ctx context.Context) error {
	in.closed = true
	return nil
}
