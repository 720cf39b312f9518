// Package exec is the execution core of the wasmcore virtual machine: a
// stack-based interpreter that drives a value stack, a call stack of
// activation frames, and side effects on an embedder-provided instance
// (memory, tables, globals).
//
// The package never decodes module bytes itself. It consumes an already
// decoded, already resolved instruction stream (see Prepare) and an
// InstanceView implementation supplied by the host — concretely the vm
// package, which builds both from a *wasm.Module.
//
// # Entry point
//
//	values, err := exec.Call(inst, funcID, args, true, exec.DefaultLimits())
//
// A non-nil error is either a *Trap (see errors.PhaseExec) carrying the
// frame stack captured at the moment of the trap, or a fatal runtime error
// for invariant violations that indicate a malformed module rather than a
// well-typed program hitting a dynamic failure.
package exec
