package exec

import (
	"math"
	"math/bits"

	"github.com/kilnforge/wasmcore/errors"
)

// trapf builds an *errors.Error for a Kind under errors.PhaseExec; the
// Interpreter wraps it as a *Trap before returning it to the embedder.
func trapf(kind errors.Kind, detail string) *errors.Error {
	return errors.Trap(kind, detail)
}

const signMask32 = uint32(1) << 31
const signMask64 = uint64(1) << 63

// --- i32 ---

func i32Clz(a Value) Value  { return I32(int32(bits.LeadingZeros32(a.U32()))) }
func i32Ctz(a Value) Value  { return I32(int32(bits.TrailingZeros32(a.U32()))) }
func i32Popcnt(a Value) Value { return I32(int32(bits.OnesCount32(a.U32()))) }

func i32Add(a, b Value) Value { return I32(a.I32() + b.I32()) }
func i32Sub(a, b Value) Value { return I32(a.I32() - b.I32()) }
func i32Mul(a, b Value) Value { return I32(a.I32() * b.I32()) }

func i32DivS(a, b Value) (Value, error) {
	x, y := a.I32(), b.I32()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i32.div_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return Value{}, trapf(errors.KindTrapIntOverflow, "i32.div_s overflow")
	}
	return I32(x / y), nil
}

func i32DivU(a, b Value) (Value, error) {
	x, y := a.U32(), b.U32()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i32.div_u by zero")
	}
	return I32(int32(x / y)), nil
}

func i32RemS(a, b Value) (Value, error) {
	x, y := a.I32(), b.I32()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i32.rem_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return I32(0), nil
	}
	return I32(x % y), nil
}

func i32RemU(a, b Value) (Value, error) {
	x, y := a.U32(), b.U32()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i32.rem_u by zero")
	}
	return I32(int32(x % y)), nil
}

func i32And(a, b Value) Value { return I32(a.I32() & b.I32()) }
func i32Or(a, b Value) Value  { return I32(a.I32() | b.I32()) }
func i32Xor(a, b Value) Value { return I32(a.I32() ^ b.I32()) }
func i32Shl(a, b Value) Value { return I32(int32(a.U32() << (b.U32() & 31))) }
func i32ShrS(a, b Value) Value { return I32(a.I32() >> (b.U32() & 31)) }
func i32ShrU(a, b Value) Value { return I32(int32(a.U32() >> (b.U32() & 31))) }
func i32Rotl(a, b Value) Value { return I32(int32(bits.RotateLeft32(a.U32(), int(b.U32()&31)))) }
func i32Rotr(a, b Value) Value { return I32(int32(bits.RotateLeft32(a.U32(), -int(b.U32()&31)))) }

func i32Eqz(a Value) Value { return boolValue(a.I32() == 0) }
func i32Eq(a, b Value) Value  { return boolValue(a.I32() == b.I32()) }
func i32Ne(a, b Value) Value  { return boolValue(a.I32() != b.I32()) }
func i32LtS(a, b Value) Value { return boolValue(a.I32() < b.I32()) }
func i32LtU(a, b Value) Value { return boolValue(a.U32() < b.U32()) }
func i32GtS(a, b Value) Value { return boolValue(a.I32() > b.I32()) }
func i32GtU(a, b Value) Value { return boolValue(a.U32() > b.U32()) }
func i32LeS(a, b Value) Value { return boolValue(a.I32() <= b.I32()) }
func i32LeU(a, b Value) Value { return boolValue(a.U32() <= b.U32()) }
func i32GeS(a, b Value) Value { return boolValue(a.I32() >= b.I32()) }
func i32GeU(a, b Value) Value { return boolValue(a.U32() >= b.U32()) }

// --- i64 ---

func i64Clz(a Value) Value    { return I64(int64(bits.LeadingZeros64(a.U64()))) }
func i64Ctz(a Value) Value    { return I64(int64(bits.TrailingZeros64(a.U64()))) }
func i64Popcnt(a Value) Value { return I64(int64(bits.OnesCount64(a.U64()))) }

func i64Add(a, b Value) Value { return I64(a.I64() + b.I64()) }
func i64Sub(a, b Value) Value { return I64(a.I64() - b.I64()) }
func i64Mul(a, b Value) Value { return I64(a.I64() * b.I64()) }

func i64DivS(a, b Value) (Value, error) {
	x, y := a.I64(), b.I64()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i64.div_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return Value{}, trapf(errors.KindTrapIntOverflow, "i64.div_s overflow")
	}
	return I64(x / y), nil
}

func i64DivU(a, b Value) (Value, error) {
	x, y := a.U64(), b.U64()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i64.div_u by zero")
	}
	return I64(int64(x / y)), nil
}

func i64RemS(a, b Value) (Value, error) {
	x, y := a.I64(), b.I64()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i64.rem_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return I64(0), nil
	}
	return I64(x % y), nil
}

func i64RemU(a, b Value) (Value, error) {
	x, y := a.U64(), b.U64()
	if y == 0 {
		return Value{}, trapf(errors.KindTrapDivByZero, "i64.rem_u by zero")
	}
	return I64(int64(x % y)), nil
}

func i64And(a, b Value) Value  { return I64(a.I64() & b.I64()) }
func i64Or(a, b Value) Value   { return I64(a.I64() | b.I64()) }
func i64Xor(a, b Value) Value  { return I64(a.I64() ^ b.I64()) }
func i64Shl(a, b Value) Value  { return I64(int64(a.U64() << (b.U64() & 63))) }
func i64ShrS(a, b Value) Value { return I64(a.I64() >> (b.U64() & 63)) }
func i64ShrU(a, b Value) Value { return I64(int64(a.U64() >> (b.U64() & 63))) }
func i64Rotl(a, b Value) Value { return I64(int64(bits.RotateLeft64(a.U64(), int(b.U64()&63)))) }
func i64Rotr(a, b Value) Value { return I64(int64(bits.RotateLeft64(a.U64(), -int(b.U64()&63)))) }

func i64Eqz(a Value) Value    { return boolValue(a.I64() == 0) }
func i64Eq(a, b Value) Value  { return boolValue(a.I64() == b.I64()) }
func i64Ne(a, b Value) Value  { return boolValue(a.I64() != b.I64()) }
func i64LtS(a, b Value) Value { return boolValue(a.I64() < b.I64()) }
func i64LtU(a, b Value) Value { return boolValue(a.U64() < b.U64()) }
func i64GtS(a, b Value) Value { return boolValue(a.I64() > b.I64()) }
func i64GtU(a, b Value) Value { return boolValue(a.U64() > b.U64()) }
func i64LeS(a, b Value) Value { return boolValue(a.I64() <= b.I64()) }
func i64LeU(a, b Value) Value { return boolValue(a.U64() <= b.U64()) }
func i64GeS(a, b Value) Value { return boolValue(a.I64() >= b.I64()) }
func i64GeU(a, b Value) Value { return boolValue(a.U64() >= b.U64()) }

func boolValue(v bool) Value {
	if v {
		return TRUE
	}
	return FALSE
}

// --- f32 ---
//
// neg/copysign/abs work directly on the bit pattern: a library negation or
// math.Copysign/math.Signbit call could canonicalise a NaN payload, which
// spec.md's §4.1 / §9 explicitly forbid.

func f32Abs(a Value) Value { return F32Bits(a.U32() &^ signMask32) }
func f32Neg(a Value) Value { return F32Bits(a.U32() ^ signMask32) }

func f32Copysign(a, b Value) Value {
	return F32Bits((a.U32() &^ signMask32) | (b.U32() & signMask32))
}

func f32Ceil(a Value) Value    { return F32(float32(math.Ceil(float64(a.F32())))) }
func f32Floor(a Value) Value   { return F32(float32(math.Floor(float64(a.F32())))) }
func f32Trunc(a Value) Value   { return F32(float32(math.Trunc(float64(a.F32())))) }
func f32Nearest(a Value) Value { return F32(float32(math.RoundToEven(float64(a.F32())))) }
func f32Sqrt(a Value) Value    { return F32(float32(math.Sqrt(float64(a.F32())))) }

func f32Add(a, b Value) Value { return F32(a.F32() + b.F32()) }
func f32Sub(a, b Value) Value { return F32(a.F32() - b.F32()) }
func f32Mul(a, b Value) Value { return F32(a.F32() * b.F32()) }
func f32Div(a, b Value) Value { return F32(a.F32() / b.F32()) }

func f32Min(a, b Value) Value {
	x, y := a.F32(), b.F32()
	if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
		return F32(float32(math.NaN()))
	}
	if x == 0 && y == 0 {
		// minNum(+-0) prefers the negative-signed zero.
		if math.Signbit(float64(x)) {
			return a
		}
		return b
	}
	if x < y {
		return a
	}
	return b
}

func f32Max(a, b Value) Value {
	x, y := a.F32(), b.F32()
	if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
		return F32(float32(math.NaN()))
	}
	if x == 0 && y == 0 {
		if !math.Signbit(float64(x)) {
			return a
		}
		return b
	}
	if x > y {
		return a
	}
	return b
}

func f32Eq(a, b Value) Value { return boolValue(a.F32() == b.F32()) }
func f32Ne(a, b Value) Value { return boolValue(a.F32() != b.F32()) }
func f32Lt(a, b Value) Value { return boolValue(a.F32() < b.F32()) }
func f32Gt(a, b Value) Value { return boolValue(a.F32() > b.F32()) }
func f32Le(a, b Value) Value { return boolValue(a.F32() <= b.F32()) }
func f32Ge(a, b Value) Value { return boolValue(a.F32() >= b.F32()) }

// --- f64 ---

func f64Abs(a Value) Value { return F64Bits(a.U64() &^ signMask64) }
func f64Neg(a Value) Value { return F64Bits(a.U64() ^ signMask64) }

func f64Copysign(a, b Value) Value {
	return F64Bits((a.U64() &^ signMask64) | (b.U64() & signMask64))
}

func f64Ceil(a Value) Value    { return F64(math.Ceil(a.F64())) }
func f64Floor(a Value) Value   { return F64(math.Floor(a.F64())) }
func f64Trunc(a Value) Value   { return F64(math.Trunc(a.F64())) }
func f64Nearest(a Value) Value { return F64(math.RoundToEven(a.F64())) }
func f64Sqrt(a Value) Value    { return F64(math.Sqrt(a.F64())) }

func f64Add(a, b Value) Value { return F64(a.F64() + b.F64()) }
func f64Sub(a, b Value) Value { return F64(a.F64() - b.F64()) }
func f64Mul(a, b Value) Value { return F64(a.F64() * b.F64()) }
func f64Div(a, b Value) Value { return F64(a.F64() / b.F64()) }

func f64Min(a, b Value) Value {
	x, y := a.F64(), b.F64()
	if math.IsNaN(x) || math.IsNaN(y) {
		return F64(math.NaN())
	}
	if x == 0 && y == 0 {
		if math.Signbit(x) {
			return a
		}
		return b
	}
	if x < y {
		return a
	}
	return b
}

func f64Max(a, b Value) Value {
	x, y := a.F64(), b.F64()
	if math.IsNaN(x) || math.IsNaN(y) {
		return F64(math.NaN())
	}
	if x == 0 && y == 0 {
		if !math.Signbit(x) {
			return a
		}
		return b
	}
	if x > y {
		return a
	}
	return b
}

func f64Eq(a, b Value) Value { return boolValue(a.F64() == b.F64()) }
func f64Ne(a, b Value) Value { return boolValue(a.F64() != b.F64()) }
func f64Lt(a, b Value) Value { return boolValue(a.F64() < b.F64()) }
func f64Gt(a, b Value) Value { return boolValue(a.F64() > b.F64()) }
func f64Le(a, b Value) Value { return boolValue(a.F64() <= b.F64()) }
func f64Ge(a, b Value) Value { return boolValue(a.F64() >= b.F64()) }

// --- conversions ---

func i32WrapI64(a Value) Value { return I32(int32(a.I64())) }

func i32Extend8S(a Value) Value  { return I32(int32(int8(a.I32()))) }
func i32Extend16S(a Value) Value { return I32(int32(int16(a.I32()))) }
func i64Extend8S(a Value) Value  { return I64(int64(int8(a.I64()))) }
func i64Extend16S(a Value) Value { return I64(int64(int16(a.I64()))) }
func i64Extend32S(a Value) Value { return I64(int64(int32(a.I64()))) }

func i64ExtendI32S(a Value) Value { return I64(int64(a.I32())) }
func i64ExtendI32U(a Value) Value { return I64(int64(a.U32())) }

func f32DemoteF64(a Value) Value  { return F32(float32(a.F64())) }
func f64PromoteF32(a Value) Value { return F64(float64(a.F32())) }

func i32ReinterpretF32(a Value) Value { return I32(int32(a.U32())) }
func i64ReinterpretF64(a Value) Value { return I64(int64(a.U64())) }
func f32ReinterpretI32(a Value) Value { return F32Bits(a.U32()) }
func f64ReinterpretI64(a Value) Value { return F64Bits(a.U64()) }

func f32ConvertI32S(a Value) Value { return F32(float32(a.I32())) }
func f32ConvertI32U(a Value) Value { return F32(float32(a.U32())) }
func f32ConvertI64S(a Value) Value { return F32(float32(a.I64())) }
func f32ConvertI64U(a Value) Value { return F32(float32(convertU64F64(a.U64()))) }
func f64ConvertI32S(a Value) Value { return F64(float64(a.I32())) }
func f64ConvertI32U(a Value) Value { return F64(float64(a.U32())) }
func f64ConvertI64S(a Value) Value { return F64(float64(a.I64())) }
func f64ConvertI64U(a Value) Value { return F64(convertU64F64(a.U64())) }

// convertU64F64 converts an unsigned 64-bit integer to float64, preserving
// unsignedness for values with the high bit set (where a direct
// float64(int64(u)) cast would read as negative).
func convertU64F64(u uint64) float64 {
	if u>>63 == 0 {
		return float64(int64(u))
	}
	// Halve so the value fits a signed conversion, OR-ing the shifted-out
	// bit back in as a sticky bit so the halved value rounds the same way
	// the full value would; doubling the result is then exact.
	return float64(int64((u>>1)|(u&1))) * 2
}

// --- trapping truncations ---

func i32TruncF32S(a Value) (Value, error) { return truncSigned32(float64(a.F32()), "i32.trunc_f32_s") }
func i32TruncF32U(a Value) (Value, error) {
	return truncUnsigned32(float64(a.F32()), "i32.trunc_f32_u")
}
func i32TruncF64S(a Value) (Value, error) { return truncSigned32(a.F64(), "i32.trunc_f64_s") }
func i32TruncF64U(a Value) (Value, error) { return truncUnsigned32(a.F64(), "i32.trunc_f64_u") }
func i64TruncF32S(a Value) (Value, error) { return truncSigned64(float64(a.F32()), "i64.trunc_f32_s") }
func i64TruncF32U(a Value) (Value, error) {
	return truncUnsigned64(float64(a.F32()), "i64.trunc_f32_u")
}
func i64TruncF64S(a Value) (Value, error) { return truncSigned64(a.F64(), "i64.trunc_f64_s") }
func i64TruncF64U(a Value) (Value, error) { return truncUnsigned64(a.F64(), "i64.trunc_f64_u") }

func truncSigned32(f float64, op string) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, trapf(errors.KindTrapInvalidConversion, op+": NaN")
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return Value{}, trapf(errors.KindTrapIntOverflow, op+": out of range")
	}
	return I32(int32(t)), nil
}

func truncUnsigned32(f float64, op string) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, trapf(errors.KindTrapInvalidConversion, op+": NaN")
	}
	t := math.Trunc(f)
	if t < 0 || t > math.MaxUint32 {
		return Value{}, trapf(errors.KindTrapIntOverflow, op+": out of range")
	}
	return I32(int32(uint32(t))), nil
}

func truncSigned64(f float64, op string) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, trapf(errors.KindTrapInvalidConversion, op+": NaN")
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= 9223372036854775808.0 {
		return Value{}, trapf(errors.KindTrapIntOverflow, op+": out of range")
	}
	return I64(int64(t)), nil
}

func truncUnsigned64(f float64, op string) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, trapf(errors.KindTrapInvalidConversion, op+": NaN")
	}
	t := math.Trunc(f)
	if t < 0 || t >= 18446744073709551616.0 {
		return Value{}, trapf(errors.KindTrapIntOverflow, op+": out of range")
	}
	if t >= 9223372036854775808.0 {
		return I64(int64(uint64(t-9223372036854775808.0) + (uint64(1) << 63))), nil
	}
	return I64(int64(t)), nil
}

// --- saturating truncations (0xFC prefix, never trap) ---

func i32TruncSatF32S(a Value) Value { return I32(satSigned32(float64(a.F32()))) }
func i32TruncSatF32U(a Value) Value { return I32(int32(satUnsigned32(float64(a.F32())))) }
func i32TruncSatF64S(a Value) Value { return I32(satSigned32(a.F64())) }
func i32TruncSatF64U(a Value) Value { return I32(int32(satUnsigned32(a.F64()))) }
func i64TruncSatF32S(a Value) Value { return I64(satSigned64(float64(a.F32()))) }
func i64TruncSatF32U(a Value) Value { return I64(int64(satUnsigned64(float64(a.F32())))) }
func i64TruncSatF64S(a Value) Value { return I64(satSigned64(a.F64())) }
func i64TruncSatF64U(a Value) Value { return I64(int64(satUnsigned64(a.F64()))) }

func satSigned32(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt32 {
		return math.MinInt32
	}
	if t > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(t)
}

func satUnsigned32(f float64) uint32 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	if t > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(t)
}

func satSigned64(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt64 {
		return math.MinInt64
	}
	if t >= 9223372036854775808.0 {
		return math.MaxInt64
	}
	return int64(t)
}

func satUnsigned64(f float64) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	if t >= 18446744073709551616.0 {
		return math.MaxUint64
	}
	if t >= 9223372036854775808.0 {
		return uint64(t-9223372036854775808.0) + (uint64(1) << 63)
	}
	return uint64(t)
}
