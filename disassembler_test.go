package webbs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassembleFunctionAddParams(t *testing.T) {
	_, global := parseResolveValidateT(t, "add: fn(a: i32, b: i32) i32 {\n  a + b\n}\n")
	def := global.Global.Functions[0]
	body, err := emitFunctionBody(def)
	require.NoError(t, err)

	listing := DisassembleFunction(body)
	assert.Contains(t, listing, "locals:")
	assert.Contains(t, listing, "local.get 0")
	assert.Contains(t, listing, "local.get 1")
	assert.Contains(t, listing, "i32.add")
}

func TestDisassembleModuleListsEveryFunctionByIndex(t *testing.T) {
	root, global := parseResolveValidateT(t,
		"add: fn(a: i32, b: i32) i32 {\n  a + b\n}\n"+
			"sub: fn(a: i32, b: i32) i32 {\n  a - b\n}\n")
	out, err := DisassembleModule(root, global)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "func[0] add:"))
	assert.True(t, strings.Contains(out, "func[1] sub:"))
}

func TestDisassembleFunctionMemAccessShowsAlignAndOffset(t *testing.T) {
	_, global := parseResolveValidateT(t,
		"memory = initial 1\n"+
			"p: ptr i32 = 0\n"+
			"poke: fn() i32 {\n  p[1] = 14\n  p[1]\n}\n")
	def := global.Global.Functions[0]
	body, err := emitFunctionBody(def)
	require.NoError(t, err)
	listing := DisassembleFunction(body)
	assert.Contains(t, listing, "i32.store align=2 offset=0")
	assert.Contains(t, listing, "i32.load align=2 offset=0")
}
