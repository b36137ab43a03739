package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseResolveValidate(t *testing.T, src string) (*Node, error) {
	t.Helper()
	root, err := Parse(src)
	require.NoError(t, err)
	require.NoError(t, Resolve(root, root.Scope))
	return root, Validate(root, root.Scope)
}

func TestValidateInfersBinaryOpType(t *testing.T) {
	root, err := parseResolveValidate(t, "f: fn() i32 {\n  1 + 2\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	assert.Equal(t, TI32, body.Children[0].RunType)
}

func TestValidateIfElseBranchTypeMismatchFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() void {\n  if (1) { 1 } else { 1.0f64 }\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrInconsistentIfElseType, err.(*CompileError).Kind)
}

func TestValidateIfConditionNonNumericFails(t *testing.T) {
	_, err := parseResolveValidate(t, "noop: fn() void {\n}\nf: fn() void {\n  if (noop()) { }\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrBadCondition, err.(*CompileError).Kind)
}

func TestValidateNonI32ConditionFlagsCondNeedsEqz(t *testing.T) {
	root, err := parseResolveValidate(t, "f: fn() void {\n  if (1.0f64) { } else { }\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	ifNode := body.Children[0]
	assert.True(t, ifNode.Meta.CondNeedsEqz)
}

func TestValidateInfiniteLoopFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() void {\n  loop {\n    1\n  }\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrInfiniteLoop, err.(*CompileError).Kind)
}

func TestValidateLoopWithBreakIsNotInfinite(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() void {\n  loop {\n    break\n  }\n}\n")
	require.NoError(t, err)
}

func TestValidateInconsistentYieldTypesFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() void {\n  loop {\n    if (1) { yield 1 } else { yield 1.0f64 }\n  }\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrInconsistentYieldType, err.(*CompileError).Kind)
}

func TestValidateAssignToImmutableFails(t *testing.T) {
	_, err := parseResolveValidate(t, "foo: immutable i32 = 0\nf: fn() void {\n  foo = 1\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrAssignToImmutable, err.(*CompileError).Kind)
}

func TestValidateAssignTypeMismatchFails(t *testing.T) {
	_, err := parseResolveValidate(t, "foo: i32 = 0\nf: fn() void {\n  foo = 1.0f64\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrAssignTypeMismatch, err.(*CompileError).Kind)
}

func TestValidateAssignAllocatesTempLocal(t *testing.T) {
	root, err := parseResolveValidate(t, "foo: i32 = 0\nf: fn() void {\n  foo = 1\n}\n")
	require.NoError(t, err)
	body := root.Children[1].Children[0].Children[0]
	assign := body.Children[0]
	assert.NotNil(t, assign.Meta.TempLocal)
}

func TestValidateAndOrAcceptMatchingNonI32NumericOperands(t *testing.T) {
	root, err := parseResolveValidate(t, "f: fn(a: i64, b: i64) i64 {\n  a and b\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[2] // after params a, b
	n := body.Children[0]
	assert.Equal(t, TI64, n.RunType)
}

func TestValidateOrAllocatesTempLocalButAndDoesNot(t *testing.T) {
	root, err := parseResolveValidate(t, "f: fn(a: i32, b: i32) i32 {\n  a or b\n}\ng: fn(a: i32, b: i32) i32 {\n  a and b\n}\n")
	require.NoError(t, err)
	orBody := root.Children[0].Children[0].Children[2] // after params a, b
	andBody := root.Children[1].Children[0].Children[2]
	assert.NotNil(t, orBody.Children[0].Meta.TempLocal)
	assert.Nil(t, andBody.Children[0].Meta.TempLocal)
}

func TestValidateAndOrMismatchedOperandTypesFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn(a: i32, b: i64) i32 {\n  if (a and b) { 1 } else { 0 }\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrNonNumericBooleanOperand, err.(*CompileError).Kind)
}

// A void function's trailing statement need not itself be void: its
// value is simply dropped rather than checked against the declared
// (void) return type.
func TestValidateVoidFunctionDropsNonVoidTrailingStatement(t *testing.T) {
	root, err := parseResolveValidate(t, "g: i32 = 0\nf: fn() void {\n  g = g + 1\n}\n")
	require.NoError(t, err)
	body := root.Children[1].Children[0].Children[0]
	assign := body.Children[0]
	assert.True(t, assign.DropValue)
}

func TestValidateWrongArgumentCountFails(t *testing.T) {
	_, err := parseResolveValidate(t, "add: fn(a: i32, b: i32) i32 {\n  a + b\n}\nf: fn() i32 {\n  add(1)\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrWrongArgumentCount, err.(*CompileError).Kind)
}

func TestValidateReturnTypeMismatchFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() i32 {\n  return 1.0f64\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrReturnTypeMismatch, err.(*CompileError).Kind)
}

func TestValidateUnreachableCodeAfterEscapeFails(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() i32 {\n  return 1\n  2\n}\n")
	require.Error(t, err)
	assert.Equal(t, ErrUnreachableCode, err.(*CompileError).Kind)
}

func TestValidateBlockMarksNonLastStatementsDropValue(t *testing.T) {
	root, err := parseResolveValidate(t, "f: fn() i32 {\n  1\n  2\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	assert.True(t, body.Children[0].DropValue)
	assert.False(t, body.Children[1].DropValue)
}

func TestValidateMutableExportFails(t *testing.T) {
	_, err := parseResolveValidate(t, "foo: i32 = 0\nexport foo as \"foo\"\n")
	require.Error(t, err)
	assert.Equal(t, ErrMutableExport, err.(*CompileError).Kind)
}

func TestValidateNonExistentExportFails(t *testing.T) {
	_, err := parseResolveValidate(t, "export bar as \"bar\"\n")
	require.Error(t, err)
	assert.Equal(t, ErrNonExistentExport, err.(*CompileError).Kind)
}

func TestValidatePointerWithoutMemoryFails(t *testing.T) {
	_, err := parseResolveValidate(t, "p: ptr i32 = 0\n")
	require.Error(t, err)
	assert.Equal(t, ErrNoMemoryDefined, err.(*CompileError).Kind)
}

func TestValidateIntLiteralOutOfRangeFails(t *testing.T) {
	_, err := parseResolveValidate(t, "foo: i32 = 4294967296\n")
	require.Error(t, err)
	assert.Equal(t, ErrIntegerLiteralOutOfRange, err.(*CompileError).Kind)
}

func TestValidateNegatedLiteralAllowsSignedMinimum(t *testing.T) {
	_, err := parseResolveValidate(t, "f: fn() i32 {\n  -2147483648\n}\n")
	require.NoError(t, err)
}

// A loop body's trailing expression is not an implicit result (only
// yield produces one from a loop) — it must be dropped like any other
// non-last statement.
func TestValidateLoopBodyTrailingExpressionIsDropped(t *testing.T) {
	root, err := parseResolveValidate(t,
		"total: i32 = 0\n"+
			"i: i32 = 0\n"+
			"f: fn() void {\n"+
			"  loop {\n"+
			"    if (i == 5) { break }\n"+
			"    i = i + 1\n"+
			"  }\n"+
			"}\n")
	require.NoError(t, err)
	f := root.Children[2]
	loopBody := f.Children[0].Children[0].Children[0].Children[0]
	lastStmt := loopBody.Children[len(loopBody.Children)-1]
	assert.True(t, lastStmt.DropValue)
}
