package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitModule(t *testing.T) {
	t.Run("header carries magic and version", func(t *testing.T) {
		module := compileOK(t, "f: fn() void {\n}\n")
		assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}, module[:8])
	})

	t.Run("exported function occupies index 0 with no imports", func(t *testing.T) {
		root, global := parseResolveValidateT(t, "f: fn() i32 {\n  1\n}\nexport f as \"f\"\n")
		module, err := EmitModule(root, global)
		require.NoError(t, err)
		assert.Equal(t, 0, global.Global.Functions[0].Index)
		assert.NotEmpty(t, module)
	})

	t.Run("imported function occupies a lower index than a defined one", func(t *testing.T) {
		root, global := parseResolveValidateT(t,
			"import log: fn(i32) void = \"env/log\"\n"+
				"f: fn() void {\n  log(1)\n}\n")
		_, err := EmitModule(root, global)
		require.NoError(t, err)
		assert.Equal(t, 0, global.Global.ImportedFunctions[0].Index)
		assert.Equal(t, 1, global.Global.Functions[0].Index)
	})
}

func TestEmitModuleStartSectionOnlyForNullaryVoidMain(t *testing.T) {
	module := compileOK(t, "main: fn() void {\n}\n")
	assert.Contains(t, string(module), string([]byte{secStart}))
}

func compileOK(t *testing.T, src string) []byte {
	t.Helper()
	module, err := Compile(src, nil)
	require.NoError(t, err)
	return module
}

func parseResolveValidateT(t *testing.T, src string) (*Node, *Scope) {
	t.Helper()
	root, err := Parse(src)
	require.NoError(t, err)
	require.NoError(t, Resolve(root, root.Scope))
	require.NoError(t, Validate(root, root.Scope))
	return root, root.Scope
}
