package vm

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/kilnforge/wasmcore/errors"
	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/resource"
	"github.com/kilnforge/wasmcore/wasm"
)

// externRefTypeID is the single resource type tag used for host-registered
// externref values. The reflection path has no equivalent of WIT's distinct
// resource types, so every boxed Go pointer/interface shares one type ID;
// callers that need type discrimination should type-assert after Get.
const externRefTypeID = 0

// HostModule is the interface for struct-based host modules: every
// exported method (besides ModuleName) is registered as a host function
// importable under the returned module name.
type HostModule interface {
	// ModuleName returns the import module name guest code binds against
	// (the first component of a two-level module.name import).
	ModuleName() string
}

// HostBinding pairs a raw exec.HostFunc with the signature guest imports
// must declare to bind against it, for host functions the automatic
// reflection path can't describe (e.g. ones that read/write guest memory
// directly via the InstanceView they're invoked with).
type HostBinding struct {
	Sig exec.FunctionType
	Fn  exec.HostFunc
}

// ExplicitRegistrar lets a host module provide exact import names and
// pre-built bindings when the automatic PascalCase-to-kebab-case method
// reflection doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]HostBinding
}

// RegisterHost binds every applicable method of h into imports under h's
// module name. Each handler must be a plain Go function: its parameter and
// result types are reflected into i32/i64/f32/f64 conversions automatically,
// and pointer or interface parameters and results are boxed as externref
// handles in the imports' ExternRefs table.
func RegisterHost(imports *Imports, h HostModule) error {
	mod := h.ModuleName()
	if mod == "" {
		return errors.InvalidInput(errors.PhaseHost, "host module name cannot be empty")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, binding := range er.Register() {
			imports.AddFunc(mod, name, binding.Sig, binding.Fn)
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "ModuleName" {
			continue
		}
		name := toKebabCase(method.Name)
		if err := bindOne(imports, mod, name, rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func bindOne(imports *Imports, mod, name string, handler any) error {
	sig, fn, err := reflectHostFunc(handler, imports.externRefs)
	if err != nil {
		return errors.Registration(errors.PhaseHost, mod, name, err)
	}
	imports.AddFunc(mod, name, sig, fn)
	return nil
}

// reflectHostFunc wraps a plain Go function into an exec.HostFunc, deriving
// its wasm signature from the function's parameter and result types.
// Numeric kinds convert directly to i32/i64/f32/f64; pointer and interface
// kinds are boxed as externref handles through refs, since a host function
// often wants to hand the guest an opaque reference to a Go-side value
// (an open file, a connection) rather than marshal it.
func reflectHostFunc(handler any, refs resource.Table) (exec.FunctionType, exec.HostFunc, error) {
	rv := reflect.ValueOf(handler)
	if rv.Kind() != reflect.Func {
		return exec.FunctionType{}, nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(reflect.TypeOf(handler).String()).
			Detail("host handler must be a function").
			Build()
	}
	rt := rv.Type()

	var sig exec.FunctionType
	for i := 0; i < rt.NumIn(); i++ {
		vt, err := goKindToValType(rt.In(i).Kind())
		if err != nil {
			return exec.FunctionType{}, nil, err
		}
		sig.Params = append(sig.Params, vt)
	}
	for i := 0; i < rt.NumOut(); i++ {
		vt, err := goKindToValType(rt.Out(i).Kind())
		if err != nil {
			return exec.FunctionType{}, nil, err
		}
		sig.Results = append(sig.Results, vt)
	}

	fn := func(_ exec.InstanceView, args []exec.Value) ([]exec.Value, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			in[i] = valueToGo(a, rt.In(i), refs)
		}
		out := rv.Call(in)
		results := make([]exec.Value, len(out))
		for i, o := range out {
			results[i] = goToValue(o, refs)
		}
		return results, nil
	}
	return sig, fn, nil
}

func goKindToValType(k reflect.Kind) (exec.ValueType, error) {
	switch k {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValI32, nil
	case reflect.Int64, reflect.Uint64, reflect.Int, reflect.Uint:
		return wasm.ValI64, nil
	case reflect.Float32:
		return wasm.ValF32, nil
	case reflect.Float64:
		return wasm.ValF64, nil
	case reflect.Ptr, reflect.Interface:
		return wasm.ValExtern, nil
	default:
		return 0, errors.Unsupported(errors.PhaseHost, "host function parameter/result kind "+k.String())
	}
}

func valueToGo(v exec.Value, t reflect.Type, refs resource.Table) reflect.Value {
	switch t.Kind() {
	case reflect.Int32:
		return reflect.ValueOf(v.I32())
	case reflect.Uint32:
		return reflect.ValueOf(v.U32())
	case reflect.Int64, reflect.Int:
		return reflect.ValueOf(v.I64()).Convert(t)
	case reflect.Uint64, reflect.Uint:
		return reflect.ValueOf(v.U64()).Convert(t)
	case reflect.Float32:
		return reflect.ValueOf(v.F32())
	case reflect.Float64:
		return reflect.ValueOf(v.F64())
	case reflect.Ptr, reflect.Interface:
		if v.IsNullRef() {
			return reflect.Zero(t)
		}
		boxed, ok := refs.Get(resource.Handle(v.U64()))
		if !ok {
			return reflect.Zero(t)
		}
		return reflect.ValueOf(boxed)
	default:
		return reflect.Zero(t)
	}
}

func goToValue(rv reflect.Value, refs resource.Table) exec.Value {
	switch rv.Kind() {
	case reflect.Int32:
		return exec.I32(int32(rv.Int()))
	case reflect.Uint32:
		return exec.I32(int32(uint32(rv.Uint())))
	case reflect.Int64, reflect.Int:
		return exec.I64(rv.Int())
	case reflect.Uint64, reflect.Uint:
		return exec.I64(int64(rv.Uint()))
	case reflect.Float32:
		return exec.F32(float32(rv.Float()))
	case reflect.Float64:
		return exec.F64(rv.Float())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return exec.NullExternRef()
		}
		handle := refs.Insert(externRefTypeID, rv.Interface())
		return exec.ExternRef(uint64(handle))
	default:
		return exec.I32(0)
	}
}

// toKebabCase converts PascalCase to kebab-case, treating runs of
// consecutive uppercase letters as a single acronym word: GetHTTPCode ->
// get-http-code.
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsUpper(r) {
			end := i + 1
			for end < len(runes) && unicode.IsUpper(runes[end]) {
				end++
			}
			if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
				end--
			}
			if i > 0 {
				b.WriteByte('-')
			}
			for j := i; j < end; j++ {
				b.WriteRune(unicode.ToLower(runes[j]))
			}
			i = end - 1
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
