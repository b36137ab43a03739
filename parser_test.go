package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFunctionDefinition(t *testing.T) {
	root, err := Parse("add: fn(a: i32, b: i32) i32 {\n  a + b\n}\n")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	def := root.Children[0]
	require.Equal(t, KDefinition, def.Kind)
	require.Equal(t, DefFunction, def.Meta.Def.Kind)
	assert.Equal(t, "add", def.Meta.Def.Name)
	assert.Equal(t, []RunType{TI32, TI32}, def.Meta.Def.ParamTypes)
	assert.Equal(t, TI32, def.Meta.Def.ReturnType)

	fn := def.Children[0]
	require.Equal(t, KFunctionLiteral, fn.Kind)
	require.Len(t, fn.Children, 3) // two params + body
	body := fn.Children[2]
	require.Equal(t, KBlock, body.Kind)
	require.Len(t, body.Children, 1)
	assert.Equal(t, KBinaryOp, body.Children[0].Kind)
	assert.Equal(t, "+", body.Children[0].text())
}

func TestParseGlobalVarDefinition(t *testing.T) {
	root, err := Parse("foo: i32 = 0\n")
	require.NoError(t, err)
	def := root.Children[0].Meta.Def
	assert.Equal(t, DefGlobal, def.Kind)
	assert.Equal(t, TI32, def.RunType)
	assert.True(t, def.Mutable)
}

func TestParseImmutableGlobal(t *testing.T) {
	root, err := Parse("foo: immutable i32 = 0\n")
	require.NoError(t, err)
	assert.False(t, root.Children[0].Meta.Def.Mutable)
}

func TestParsePointerDefinition(t *testing.T) {
	root, err := Parse("p: ptr i32 = 0\n")
	require.NoError(t, err)
	def := root.Children[0].Meta.Def
	require.NotNil(t, def.Storage)
	assert.Equal(t, TI32, def.Storage.ElemType)
	assert.Equal(t, 32, def.Storage.Bits)
}

func TestParseNarrowPointerStorage(t *testing.T) {
	root, err := Parse("p: ptr i32_s8 = 0\n")
	require.NoError(t, err)
	storage := root.Children[0].Meta.Def.Storage
	require.NotNil(t, storage)
	assert.Equal(t, 8, storage.Bits)
	assert.True(t, storage.Signed)
	assert.True(t, storage.Extended)
}

func TestParseExport(t *testing.T) {
	root, err := Parse("export foo as \"foo\"\n")
	require.NoError(t, err)
	n := root.Children[0]
	require.Equal(t, KExport, n.Kind)
	assert.Equal(t, "foo", n.Meta.ExportTarget)
	assert.Equal(t, "foo", n.Meta.ExportName)
}

func TestParseImportFunction(t *testing.T) {
	root, err := Parse("import log: fn(i32) void = \"env/log\"\n")
	require.NoError(t, err)
	def := root.Children[0].Meta.Def
	require.NotNil(t, def.ImportSource)
	assert.Equal(t, "env/log", *def.ImportSource)
}

func TestParseIfElse(t *testing.T) {
	root, err := Parse("f: fn() i32 {\n  if (1) { 1 } else { 2 }\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	ifNode := body.Children[0]
	require.Equal(t, KIf, ifNode.Kind)
	require.Len(t, ifNode.Children, 3)
}

func TestParseLoopBreak(t *testing.T) {
	root, err := Parse("f: fn() void {\n  loop {\n    break\n  }\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	loopNode := body.Children[0]
	require.Equal(t, KLoop, loopNode.Kind)
	loopBody := loopNode.Children[0]
	assert.Equal(t, KBreak, loopBody.Children[0].Kind)
}

func TestParseAssignmentIsRightAssociative(t *testing.T) {
	root, err := Parse("f: fn() void {\n  x = y = 1\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	assign := body.Children[0]
	require.Equal(t, KAssign, assign.Kind)
	inner := assign.Children[1]
	assert.Equal(t, KAssign, inner.Kind)
}

func TestParseBinaryPrecedence(t *testing.T) {
	root, err := Parse("f: fn() i32 {\n  1 + 2 * 3\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	top := body.Children[0]
	require.Equal(t, KBinaryOp, top.Kind)
	assert.Equal(t, "+", top.text())
	assert.Equal(t, KBinaryOp, top.Children[1].Kind)
	assert.Equal(t, "*", top.Children[1].text())
}

func TestParseCallWithArguments(t *testing.T) {
	root, err := Parse("f: fn() i32 {\n  add(1, 2)\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	call := body.Children[0]
	require.Equal(t, KCall, call.Kind)
	assert.Equal(t, "add", call.text())
	require.Len(t, call.Children, 2)
}

func TestParseMemAccess(t *testing.T) {
	root, err := Parse("f: fn() i32 {\n  p[0]\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	mem := body.Children[0]
	require.Equal(t, KMemAccess, mem.Kind)
	assert.Equal(t, "p", mem.text())
}

func TestParseUnaryNegateRestrictedToLiterals(t *testing.T) {
	root, err := Parse("f: fn() i32 {\n  -1\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	neg := body.Children[0]
	assert.Equal(t, KUnaryNegate, neg.Kind)
	assert.Equal(t, KIntLit, neg.Children[0].Kind)
}

func TestParseSuffixIncrement(t *testing.T) {
	root, err := Parse("f: fn() void {\n  x++\n}\n")
	require.NoError(t, err)
	body := root.Children[0].Children[0].Children[0]
	suf := body.Children[0]
	require.Equal(t, KSuffixOp, suf.Kind)
	assert.Equal(t, "++", suf.text())
}

func TestParseUnterminatedBlockIsAnError(t *testing.T) {
	_, err := Parse("f: fn() void {\n  1\n")
	require.Error(t, err)
	ce, ok := err.(*CompileError)
	require.True(t, ok)
	assert.Equal(t, ErrMisplacedTerminator, ce.Kind)
}
