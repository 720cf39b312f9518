// Package runtime is the embedder-facing front door: load a module from
// WASM bytes or WAT source, instantiate it against a set of host imports,
// and call its exports. It is a thin convenience layer over vm —
// vm.Module/vm.Instance do the real work; this package exists so a host
// program never has to touch vm.Imports construction or exec.Limits
// defaults unless it wants to override them.
package runtime

import (
	"context"
	"os"

	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/vm"
)

// Module is a compiled, not-yet-instantiated module.
type Module struct {
	inner *vm.Module
}

// Instance is a running module instance.
type Instance struct {
	inner *vm.Instance
}

// LoadWASM compiles a module from a binary WebAssembly file on disk.
func LoadWASM(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read wasm file", err)
	}
	return CompileWASM(data)
}

// CompileWASM compiles a module from an in-memory binary WebAssembly image.
func CompileWASM(data []byte) (*Module, error) {
	m, err := vm.Compile(data)
	if err != nil {
		return nil, err
	}
	return &Module{inner: m}, nil
}

// LoadWAT compiles a module from a WebAssembly text format file on disk.
func LoadWAT(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read wat file", err)
	}
	return CompileWAT(string(data))
}

// CompileWAT compiles a module from WebAssembly text format source.
func CompileWAT(source string) (*Module, error) {
	m, err := vm.CompileWAT(source)
	if err != nil {
		return nil, err
	}
	return &Module{inner: m}, nil
}

// Exports lists the module's exported function names.
func (m *Module) Exports() []string { return m.inner.Exports() }

// ExportedFuncType looks up an exported function's parameter/result
// signature without instantiating the module.
func (m *Module) ExportedFuncType(name string) (exec.FunctionType, bool) {
	return m.inner.ExportedFuncType(name)
}

// Instantiate resolves imports and runs the module's start function (if
// any), applying DefaultLimits. Use InstantiateWithLimits to override call
// depth or other resource limits.
func (m *Module) Instantiate(ctx context.Context, imports *vm.Imports) (*Instance, error) {
	return m.InstantiateWithLimits(ctx, imports, exec.DefaultLimits())
}

// InstantiateWithLimits is Instantiate with caller-supplied exec.Limits.
func (m *Module) InstantiateWithLimits(ctx context.Context, imports *vm.Imports, limits exec.Limits) (*Instance, error) {
	inst, err := m.inner.Instantiate(ctx, imports, limits)
	if err != nil {
		return nil, err
	}
	return &Instance{inner: inst}, nil
}

// Call invokes an exported function by name.
func (in *Instance) Call(ctx context.Context, name string, args ...exec.Value) ([]exec.Value, error) {
	return in.inner.Call(ctx, name, args...)
}

// Memory returns the instance's linear memory, for hosts that need to
// read or write guest-owned buffers directly.
func (in *Instance) Memory() *vm.Memory { return in.inner.Memory() }

// View exposes the underlying exec.InstanceView, for callers that need to
// invoke a table-held funcref via exec.Call directly.
func (in *Instance) View() exec.InstanceView { return in.inner.View() }

// Close releases the instance.
func (in *Instance) Close(ctx context.Context) error { return in.inner.Close(ctx) }
