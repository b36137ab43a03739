package webbs_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	webbs "github.com/mx-scissortail/WebBS"
)

// runExported compiles source, instantiates the resulting module with
// wazero (grounded on cue-lang-cue's cue/wasm/wasm.go: NewRuntime,
// CompileModule, InstantiateModule), and calls the named export.
func runExported(t *testing.T, source, fn string, args ...uint64) []uint64 {
	t.Helper()
	module, err := webbs.Compile(source, nil)
	require.NoError(t, err)

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, module)
	require.NoError(t, err)

	inst, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	require.NoError(t, err)

	f := inst.ExportedFunction(fn)
	require.NotNil(t, f)
	results, err := f.Call(ctx, args...)
	require.NoError(t, err)
	return results
}

func TestCompileAddFunction(t *testing.T) {
	src := "add: fn(a: i32, b: i32) i32 {\n  a + b\n}\nexport add as \"add\"\n"
	results := runExported(t, src, "add", 3, 4)
	require.Equal(t, []uint64{7}, results)
}

func TestCompileGlobalRoundTrip(t *testing.T) {
	src := "foo: i32 = 41\nbump: fn() i32 {\n  foo = foo + 1\n  foo\n}\nexport bump as \"bump\"\n"
	results := runExported(t, src, "bump")
	require.Equal(t, []uint64{42}, results)
}

func TestCompilePointerWrite(t *testing.T) {
	src := "memory = initial 1\n" +
		"p: ptr i32 = 0\n" +
		"poke: fn() i32 {\n" +
		"  p[1] = 14\n" +
		"  p[1]\n" +
		"}\n" +
		"export poke as \"poke\"\n"
	results := runExported(t, src, "poke")
	require.Equal(t, []uint64{14}, results)
}

func TestCompileLoopAccumulatesViaGlobal(t *testing.T) {
	src := "total: i32 = 0\n" +
		"i: i32 = 0\n" +
		"run: fn() i32 {\n" +
		"  loop {\n" +
		"    if (i == 5) { break }\n" +
		"    total = total + i\n" +
		"    i = i + 1\n" +
		"  }\n" +
		"  total\n" +
		"}\n" +
		"export run as \"run\"\n"
	results := runExported(t, src, "run")
	require.Equal(t, []uint64{10}, results)
}

func TestCompileIfElseSelectsBranch(t *testing.T) {
	src := "pick: fn(c: i32) i32 {\n  if (c) { 1 } else { 0 }\n}\nexport pick as \"pick\"\n"
	require.Equal(t, []uint64{1}, runExported(t, src, "pick", 1))
	require.Equal(t, []uint64{0}, runExported(t, src, "pick", 0))
}

func TestCompileShortCircuitAnd(t *testing.T) {
	src := "both: fn(a: i32, b: i32) i32 {\n  a and b\n}\nexport both as \"both\"\n"
	require.Equal(t, []uint64{1}, runExported(t, src, "both", 1, 1))
	require.Equal(t, []uint64{0}, runExported(t, src, "both", 1, 0))
	require.Equal(t, []uint64{0}, runExported(t, src, "both", 0, 1))
}

// A void function's body can legally end in a non-void statement (the
// value is dropped rather than compared against the void return type);
// this exercises the fix through a real wazero instantiation, which
// would reject the module outright if a value were left dangling on
// the stack under a void signature.
func TestCompileVoidFunctionDropsTrailingAssignValue(t *testing.T) {
	src := "g: i32 = 0\n" +
		"inc: fn() void {\n" +
		"  g = g + 1\n" +
		"}\n" +
		"peek: fn() i32 {\n" +
		"  inc()\n" +
		"  inc()\n" +
		"  g\n" +
		"}\n" +
		"export peek as \"peek\"\n"
	results := runExported(t, src, "peek")
	require.Equal(t, []uint64{2}, results)
}

func TestCompileShortCircuitOrAcrossIntegerWidths(t *testing.T) {
	src := "bothI64: fn(a: i64, b: i64) i64 {\n  a or b\n}\nexport bothI64 as \"bothI64\"\n"
	require.Equal(t, []uint64{1}, runExported(t, src, "bothI64", 1, 0))
	require.Equal(t, []uint64{5}, runExported(t, src, "bothI64", 0, 5))
	require.Equal(t, []uint64{0}, runExported(t, src, "bothI64", 0, 0))
}

func TestCompileShortCircuitAndAcrossFloatTypes(t *testing.T) {
	src := "bothF64: fn(a: f64, b: f64) f64 {\n  a and b\n}\nexport bothF64 as \"bothF64\"\n"
	zero := math.Float64bits(0)
	nonzero := math.Float64bits(3.5)
	other := math.Float64bits(9.25)

	got := runExported(t, src, "bothF64", zero, other)
	require.Equal(t, zero, got[0])

	got = runExported(t, src, "bothF64", nonzero, other)
	require.Equal(t, other, got[0])
}

func TestCompileShortCircuitOrAcrossFloatTypes(t *testing.T) {
	src := "bothF64: fn(a: f64, b: f64) f64 {\n  a or b\n}\nexport bothF64 as \"bothF64\"\n"
	left := math.Float64bits(2.5)
	right := math.Float64bits(9.5)
	zero := math.Float64bits(0)

	got := runExported(t, src, "bothF64", left, right)
	require.Equal(t, left, got[0])

	got = runExported(t, src, "bothF64", zero, right)
	require.Equal(t, right, got[0])
}

func TestCompileImportedFunctionCall(t *testing.T) {
	src := "import double: fn(i32) i32 = \"env/double\"\n" +
		"useIt: fn(x: i32) i32 {\n" +
		"  double(x)\n" +
		"}\n" +
		"export useIt as \"useIt\"\n"

	module, err := webbs.Compile(src, nil)
	require.NoError(t, err)

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	_, err = rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x int32) int32 { return x * 2 }).
		Export("double").
		Instantiate(ctx)
	require.NoError(t, err)

	compiled, err := rt.CompileModule(ctx, module)
	require.NoError(t, err)
	inst, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	require.NoError(t, err)

	f := inst.ExportedFunction("useIt")
	results, err := f.Call(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, results)
}

func TestCompileAllocatePagesGrowsMemory(t *testing.T) {
	src := "memory = initial 1\n" +
		"grow: fn() i32 {\n" +
		"  allocate_pages 1\n" +
		"}\n" +
		"export grow as \"grow\"\n"
	results := runExported(t, src, "grow")
	require.Equal(t, []uint64{1}, results)
}

func TestCompileReturnsErrorOnUndefinedReference(t *testing.T) {
	_, err := webbs.Compile("f: fn() i32 {\n  nope\n}\n", nil)
	require.Error(t, err)
}
