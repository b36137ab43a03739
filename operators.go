package webbs

import "fmt"

// operatorEntry is the static mapping's value: spec.md §4.2's "Static
// mapping from source operator token + operand type signature to
// target opcode + result type."
type operatorEntry struct {
	Opcode     byte
	ResultType RunType
}

func binKey(op string, left, right RunType) string {
	return fmt.Sprintf("%s:%s,%s", op, left, right)
}

func unaryKey(op string, operand RunType) string {
	return fmt.Sprintf("%s:%s", op, operand)
}

// binaryOperatorTable dispatches on (token text, "leftType,rightType").
// Source types expose no separate unsigned scalar, so every integer
// comparison/division/shift below picks the signed opcode family — the
// *_u opcodes exist only as load/store sign-extension choices on
// pointers (ast.go's storageDescriptor), never as a binary-operator
// result (documented in DESIGN.md as a standard-library-free, spec-driven
// simplification, not a dropped dependency).
var binaryOperatorTable = func() map[string]operatorEntry {
	t := map[string]operatorEntry{}
	add := func(op string, left, right RunType, opcode byte, result RunType) {
		t[binKey(op, left, right)] = operatorEntry{Opcode: opcode, ResultType: result}
	}

	for _, ty := range []RunType{TI32, TI64} {
		add("+", ty, ty, pick(ty, opI32Add, opI64Add), ty)
		add("-", ty, ty, pick(ty, opI32Sub, opI64Sub), ty)
		add("*", ty, ty, pick(ty, opI32Mul, opI64Mul), ty)
		add("/", ty, ty, pick(ty, opI32DivS, opI64DivS), ty)
		add("%", ty, ty, pick(ty, opI32RemS, opI64RemS), ty)
		add("&", ty, ty, pick(ty, opI32And, opI64And), ty)
		add("|", ty, ty, pick(ty, opI32Or, opI64Or), ty)
		add("^", ty, ty, pick(ty, opI32Xor, opI64Xor), ty)
		add("<<", ty, ty, pick(ty, opI32Shl, opI64Shl), ty)
		add(">>", ty, ty, pick(ty, opI32ShrS, opI64ShrS), ty)
		add("==", ty, ty, pick(ty, opI32Eq, opI64Eq), TI32)
		add("!=", ty, ty, pick(ty, opI32Ne, opI64Ne), TI32)
		add("<", ty, ty, pick(ty, opI32LtS, opI64LtS), TI32)
		add("<=", ty, ty, pick(ty, opI32LeS, opI64LeS), TI32)
		add(">", ty, ty, pick(ty, opI32GtS, opI64GtS), TI32)
		add(">=", ty, ty, pick(ty, opI32GeS, opI64GeS), TI32)
	}

	for _, ty := range []RunType{TF32, TF64} {
		add("+", ty, ty, pick32(ty, opF32Add, opF64Add), ty)
		add("-", ty, ty, pick32(ty, opF32Sub, opF64Sub), ty)
		add("*", ty, ty, pick32(ty, opF32Mul, opF64Mul), ty)
		add("/", ty, ty, pick32(ty, opF32Div, opF64Div), ty)
		add("==", ty, ty, pick32(ty, opF32Eq, opF64Eq), TI32)
		add("!=", ty, ty, pick32(ty, opF32Ne, opF64Ne), TI32)
		add("<", ty, ty, pick32(ty, opF32Lt, opF64Lt), TI32)
		add("<=", ty, ty, pick32(ty, opF32Le, opF64Le), TI32)
		add(">", ty, ty, pick32(ty, opF32Gt, opF64Gt), TI32)
		add(">=", ty, ty, pick32(ty, opF32Ge, opF64Ge), TI32)
	}
	return t
}()

func pick(t RunType, i32, i64 byte) byte {
	if t == TI64 {
		return i64
	}
	return i32
}

func pick32(t RunType, f32, f64 byte) byte {
	if t == TF64 {
		return f64
	}
	return f32
}

// unaryOperatorTable dispatches on (keyword text, operand type), used
// for the unary math/conversion intrinsics and for allocate_pages
// (spec.md §4.5 "Unary operators / allocate_pages. Same, keyed by the
// child's run type").
//
// to_i32/to_i64/leading_zeros deliberately diverge from the source
// implementation's operator table per spec.md §9's two REDESIGN FLAGS:
// to_i32 on an f64 operand truncates via the 64-bit opcode (not a
// copy/pasted 32-bit one), to_i64 on an i32 operand extends via
// i64.extend_i32_s (not the nonexistent "i64.extend_s/i64"), and
// leading_zeros pairs with clz in both widths (not a float mnemonic).
var unaryOperatorTable = func() map[string]operatorEntry {
	t := map[string]operatorEntry{}
	add := func(op string, operand RunType, opcode byte, result RunType) {
		t[unaryKey(op, operand)] = operatorEntry{Opcode: opcode, ResultType: result}
	}

	for _, ty := range []RunType{TF32, TF64} {
		add("sqrt", ty, pick32(ty, opF32Sqrt, opF64Sqrt), ty)
		add("abs", ty, pick32(ty, opF32Abs, opF64Abs), ty)
		add("ceil", ty, pick32(ty, opF32Ceil, opF64Ceil), ty)
		add("floor", ty, pick32(ty, opF32Floor, opF64Floor), ty)
		add("trunc", ty, pick32(ty, opF32Trunc, opF64Trunc), ty)
		add("nearest", ty, pick32(ty, opF32Nearest, opF64Nearest), ty)
	}

	add("to_i32", TI64, opI32WrapI64, TI32)
	add("to_i32", TF32, opI32TruncF32S, TI32)
	add("to_i32", TF64, opI32TruncF64S, TI32) // REDESIGN FLAG: 64-bit truncate, not 32-bit

	add("to_i64", TI32, opI64ExtendI32S, TI64) // REDESIGN FLAG: extend_i32_s, not extend_s/i64
	add("to_i64", TF32, opI64TruncF32S, TI64)
	add("to_i64", TF64, opI64TruncF64S, TI64)

	add("to_f32", TI32, opF32ConvertI32S, TF32)
	add("to_f32", TI64, opF32ConvertI64S, TF32)
	add("to_f32", TF64, opF32DemoteF64, TF32)

	add("to_f64", TI32, opF64ConvertI32S, TF64)
	add("to_f64", TI64, opF64ConvertI64S, TF64)
	add("to_f64", TF32, opF64PromoteF32, TF64)

	add("leading_zeros", TI32, opI32Clz, TI32) // REDESIGN FLAG: clz, not a float mnemonic
	add("leading_zeros", TI64, opI64Clz, TI64)
	add("trailing_zeros", TI32, opI32Ctz, TI32)
	add("trailing_zeros", TI64, opI64Ctz, TI64)
	add("population_count", TI32, opI32Popcnt, TI32)
	add("population_count", TI64, opI64Popcnt, TI64)

	add("reinterpret", TI32, opF32ReinterpretI32, TF32)
	add("reinterpret", TI64, opF64ReinterpretI64, TF64)
	add("reinterpret", TF32, opI32ReinterpretF32, TI32)
	add("reinterpret", TF64, opI64ReinterpretF64, TI64)

	add("allocate_pages", TI32, opMemoryGrow, TI32)

	return t
}()

func lookupBinaryOperator(op string, left, right RunType) (operatorEntry, bool) {
	e, ok := binaryOperatorTable[binKey(op, left, right)]
	return e, ok
}

func lookupUnaryOperator(op string, operand RunType) (operatorEntry, bool) {
	e, ok := unaryOperatorTable[unaryKey(op, operand)]
	return e, ok
}

// unaryKeywordText maps a lexer keyword TokenKind back to the string the
// operator table is keyed by.
var unaryKeywordText = map[TokenKind]string{
	TkSqrt: "sqrt", TkAbsK: "abs", TkCeil: "ceil", TkFloor: "floor",
	TkTrunc: "trunc", TkNearest: "nearest", TkToI32: "to_i32", TkToI64: "to_i64",
	TkToF32: "to_f32", TkToF64: "to_f64", TkLeadingZeros: "leading_zeros",
	TkTrailingZeros: "trailing_zeros", TkPopulationCount: "population_count",
	TkReinterpret: "reinterpret",
}

var binaryOpText = map[TokenKind]string{
	TkPlus: "+", TkMinus: "-", TkStar: "*", TkSlash: "/", TkPercent: "%",
	TkAmp: "&", TkPipe: "|", TkCaret: "^", TkShl: "<<", TkShr: ">>",
	TkEq: "==", TkNotEq: "!=", TkLt: "<", TkLe: "<=", TkGt: ">", TkGe: ">=",
}
