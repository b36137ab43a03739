package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitFunctionBodyAddParams(t *testing.T) {
	_, global := parseResolveValidateT(t, "add: fn(a: i32, b: i32) i32 {\n  a + b\n}\n")
	def := global.Global.Functions[0]
	body, err := emitFunctionBody(def)
	require.NoError(t, err)

	// no local decl groups (params only): 0x00 locals, then
	// local.get 0, local.get 1, i32.add, end.
	assert.Equal(t, []byte{0x00, opLocalGet, 0x00, opLocalGet, 0x01, opI32Add, opEnd}, body)
}

func TestEmitFunctionBodyBreakUsesRelativeDepth(t *testing.T) {
	_, global := parseResolveValidateT(t, "f: fn() void {\n  loop {\n    break\n  }\n}\n")
	def := global.Global.Functions[0]
	body, err := emitFunctionBody(def)
	require.NoError(t, err)

	// block / loop / br 1 (out of both the loop and its wrapping block) / end / end / end
	assert.Contains(t, string(body), string([]byte{opBr, 0x01}))
}

func TestEmitFunctionBodyContinueBranchesToLoopTop(t *testing.T) {
	_, global := parseResolveValidateT(t,
		"f: fn() void {\n  loop {\n    if (1) { continue } else { break }\n  }\n}\n")
	def := global.Global.Functions[0]
	body, err := emitFunctionBody(def)
	require.NoError(t, err)
	// the continue sits inside block / loop / if, so it targets the
	// loop one level out: br 1 (br 0 is only the loop's own back-edge)
	assert.Contains(t, string(body), string([]byte{opBr, 0x01}))
}

func TestWriteLocalDeclsGroupsConsecutiveSameTypedLocals(t *testing.T) {
	e := newByteEncoder()
	a := &Definition{RunType: TI32}
	b := &Definition{RunType: TI32}
	c := &Definition{RunType: TF64}
	writeLocalDecls(e, []*Definition{a, b, c})

	out := e.Bytes()
	// two groups: (count=2, i32) then (count=1, f64)
	assert.Equal(t, []byte{0x02, 0x02, valI32, 0x01, valF64}, out)
}
