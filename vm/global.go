package vm

import "github.com/kilnforge/wasmcore/exec"

// Global is one module-level global variable: its current value and
// whether global.set may touch it. When Value.Kind is KindExternRef, Bits
// already carries a resource.Handle issued by an Imports' externref table
// (see Imports.ExternRefs) rather than a numeric payload — no separate
// handle field is needed since exec.Value's Bits slot is wide enough to
// hold one directly.
type Global struct {
	Value   exec.Value
	Mutable bool
}
