// Command wasmrun loads a WebAssembly binary or text-format module, lists
// its exported functions, and calls one either directly from flags or
// through an interactive TUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kilnforge/wasmcore/exec"
	"github.com/kilnforge/wasmcore/runtime"
)

func main() {
	var (
		file        = flag.String("file", "", "Path to a .wasm or .wat module")
		funcName    = flag.String("func", "", "Function to call (optional)")
		argStr      = flag.String("args", "", "Comma-separated argument values")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmrun -file <module.wasm|.wat> [-func name] [-args v1,v2,...]")
		fmt.Fprintln(os.Stderr, "       wasmrun -file <module.wasm|.wat> -list")
		fmt.Fprintln(os.Stderr, "       wasmrun -file <module.wasm|.wat> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*file, *funcName, *argStr, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadModule(path string) (*runtime.Module, error) {
	if strings.HasSuffix(path, ".wat") {
		return runtime.LoadWAT(path)
	}
	return runtime.LoadWASM(path)
}

func run(path, funcName, argStr string, listOnly bool) error {
	ctx := context.Background()

	mod, err := loadModule(path)
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	exportedFuncs := mod.Exports()
	fmt.Printf("Module: %s\n", path)
	fmt.Printf("Exports: %d\n\n", len(exportedFuncs))
	for _, name := range exportedFuncs {
		sig, _ := mod.ExportedFuncType(name)
		fmt.Printf("  %s\n", formatSignature(name, sig))
	}

	if listOnly {
		return nil
	}

	if funcName == "" {
		for _, name := range []string{"_start", "run", "main"} {
			for _, f := range exportedFuncs {
				if f == name {
					funcName = name
					break
				}
			}
			if funcName != "" {
				break
			}
		}
		if funcName == "" && len(exportedFuncs) == 1 {
			funcName = exportedFuncs[0]
		}
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	sig, ok := mod.ExportedFuncType(funcName)
	if !ok {
		return fmt.Errorf("no such exported function: %s", funcName)
	}

	var rawArgs []string
	if argStr != "" {
		rawArgs = strings.Split(argStr, ",")
	}
	args, err := parseArgs(sig, rawArgs)
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	fmt.Printf("\nInstantiating module...\n")
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	fmt.Printf("Calling %s(%s)...\n", funcName, argStr)
	results, err := inst.Call(ctx, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	fmt.Printf("Result: %s\n", formatResults(results))
	return nil
}

// formatSignature renders a function's name and WebAssembly signature as
// "name(i32, i32) -> i32".
func formatSignature(name string, sig exec.FunctionType) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.String()
	}
	s := fmt.Sprintf("%s(%s)", name, strings.Join(params, ", "))
	if len(sig.Results) > 0 {
		results := make([]string, len(sig.Results))
		for i, r := range sig.Results {
			results[i] = r.String()
		}
		s += " -> " + strings.Join(results, ", ")
	}
	return s
}

func formatResults(results []exec.Value) string {
	parts := make([]string, len(results))
	for i, v := range results {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

func formatValue(v exec.Value) string {
	switch v.Kind {
	case exec.KindI32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case exec.KindI64:
		return strconv.FormatInt(v.I64(), 10)
	case exec.KindF32:
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case exec.KindF64:
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	case exec.KindFuncRef:
		return fmt.Sprintf("funcref(%#x)", v.Bits)
	case exec.KindExternRef:
		return fmt.Sprintf("externref(%#x)", v.Bits)
	default:
		return fmt.Sprintf("<%v>", v)
	}
}

// parseArgs converts a slice of raw decimal strings into exec.Values typed
// according to sig.Params, in order. It only supports the four numeric
// kinds: funcref/externref parameters have no meaningful text-console
// representation and are rejected.
func parseArgs(sig exec.FunctionType, raw []string) ([]exec.Value, error) {
	if len(raw) != len(sig.Params) {
		return nil, fmt.Errorf("expected %d argument(s), got %d", len(sig.Params), len(raw))
	}
	values := make([]exec.Value, len(raw))
	for i, s := range raw {
		v, err := parseArg(sig.Params[i], strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func parseArg(t exec.ValueType, s string) (exec.Value, error) {
	switch t.String() {
	case "i32":
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return exec.Value{}, err
		}
		return exec.I32(int32(n)), nil
	case "i64":
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return exec.Value{}, err
		}
		return exec.I64(n), nil
	case "f32":
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return exec.Value{}, err
		}
		return exec.F32(float32(f)), nil
	case "f64":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return exec.Value{}, err
		}
		return exec.F64(f), nil
	default:
		return exec.Value{}, fmt.Errorf("unsupported parameter type %s for command-line input", t.String())
	}
}
