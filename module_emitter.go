package webbs

import (
	"strconv"
	"strings"
)

// moduleMagic/moduleVersion are the fixed 8-byte header (spec.md §6).
var moduleMagic = [4]byte{0x00, 0x61, 0x73, 0x6D}
var moduleVersion = uint32(1)

const (
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secTable    byte = 4
	secMemory   byte = 5
	secGlobal   byte = 6
	secExport   byte = 7
	secStart    byte = 8
	secCode     byte = 10
)

// EmitModule assigns index spaces and serializes the whole module
// (spec.md §6's section list, in the mandated order), after Resolve
// and Validate have already run over root/global. Grounded on the
// teacher's split between computing a program's layout (vm_program.go)
// and a dedicated encoder (vm_encoder.go) — generalized here from one
// flat instruction stream to the target format's section structure.
func EmitModule(root *Node, global *Scope) ([]byte, error) {
	g := global.Global
	assignIndices(g)

	e := newByteEncoder()
	e.writeBytes(moduleMagic[:])
	e.writeU32LE(moduleVersion)

	emitTypeSection(e, g)
	if err := emitImportSection(e, g); err != nil {
		return nil, attachSpan(err, g.LineIndex)
	}
	emitFunctionSection(e, g)
	emitTableSection(e, g)
	emitMemorySection(e, g)
	if err := emitGlobalSection(e, g); err != nil {
		return nil, attachSpan(err, g.LineIndex)
	}
	emitExportSection(e, g)
	emitStartSection(e, g)

	code, err := emitCodeSection(g)
	if err != nil {
		return nil, attachSpan(err, g.LineIndex)
	}
	e.writeBytes(code)

	return e.Bytes(), nil
}

// assignIndices lays out the function and global index spaces
// import-space-first (spec.md §6 "imported entities occupy the low end
// of their index space"), and the single table/memory indices (both
// are singleton, index 0, imported or not).
func assignIndices(g *GlobalData) {
	idx := 0
	for _, d := range g.ImportedFunctions {
		d.Index = idx
		idx++
	}
	for _, d := range g.Functions {
		d.Index = idx
		idx++
	}

	idx = 0
	for _, d := range g.ImportedGlobals {
		d.Index = idx
		idx++
	}
	for _, d := range g.Variables {
		d.Index = idx
		idx++
	}

	if g.DefaultTable != nil {
		g.DefaultTable.Index = 0
	}
	if g.DefaultMemory != nil {
		g.DefaultMemory.Index = 0
	}
}

func emitTypeSection(e *byteEncoder, g *GlobalData) {
	if len(g.Signatures.list) == 0 {
		return
	}
	e.writeByte(secType)
	p := e.reserveSize()
	e.writeULEB128(uint64(len(g.Signatures.list)))
	for _, sig := range g.Signatures.list {
		e.writeByte(valFunc)
		e.writeULEB128(uint64(len(sig.Params)))
		for _, pt := range sig.Params {
			e.writeByte(valtypeOf(pt))
		}
		if sig.Return == TVoid {
			e.writeULEB128(0)
		} else {
			e.writeULEB128(1)
			e.writeByte(valtypeOf(sig.Return))
		}
	}
	e.patchSize(p)
}

// splitImportSource parses an import source string of the form
// "MODULE/FIELD" (spec.md §4.5 "Import sources must match
// \"MODULE/FIELD\"").
func splitImportSource(src string) (module, name string, ok bool) {
	i := strings.IndexByte(src, '/')
	if i < 0 {
		return "", "", false
	}
	return src[:i], src[i+1:], true
}

func emitImportSection(e *byteEncoder, g *GlobalData) error {
	total := len(g.ImportedFunctions) + len(g.ImportedGlobals)
	if g.DefaultMemory != nil && g.DefaultMemory.ImportSource != nil {
		total++
	}
	if g.DefaultTable != nil && g.DefaultTable.ImportSource != nil {
		total++
	}
	if total == 0 {
		return nil
	}
	e.writeByte(secImport)
	p := e.reserveSize()
	e.writeULEB128(uint64(total))

	for _, d := range g.ImportedFunctions {
		mod, name, ok := splitImportSource(*d.ImportSource)
		if !ok {
			return newErr(ErrBadImportSource, "import source for '"+d.Name+"' must be \"MODULE/FIELD\"")
		}
		e.writeName(mod)
		e.writeName(name)
		e.writeByte(extFunction)
		e.writeULEB128(uint64(d.SignatureIndex))
	}
	for _, d := range g.ImportedGlobals {
		mod, name, ok := splitImportSource(*d.ImportSource)
		if !ok {
			return newErr(ErrBadImportSource, "import source for '"+d.Name+"' must be \"MODULE/FIELD\"")
		}
		e.writeName(mod)
		e.writeName(name)
		e.writeByte(extGlobal)
		if d.Storage != nil {
			e.writeByte(valI32)
		} else {
			e.writeByte(valtypeOf(d.RunType))
		}
		e.writeByte(boolByte(d.Mutable))
	}
	if g.DefaultMemory != nil && g.DefaultMemory.ImportSource != nil {
		mod, name, ok := splitImportSource(*g.DefaultMemory.ImportSource)
		if !ok {
			return newErr(ErrBadImportSource, "memory import source must be \"MODULE/FIELD\"")
		}
		e.writeName(mod)
		e.writeName(name)
		e.writeByte(extMemory)
		writeLimits(e, g.DefaultMemory.MemInitial, g.DefaultMemory.MemMax, g.DefaultMemory.MemHasMax)
	}
	if g.DefaultTable != nil && g.DefaultTable.ImportSource != nil {
		mod, name, ok := splitImportSource(*g.DefaultTable.ImportSource)
		if !ok {
			return newErr(ErrBadImportSource, "table import source must be \"MODULE/FIELD\"")
		}
		e.writeName(mod)
		e.writeName(name)
		e.writeByte(extTable)
		e.writeByte(valAnyFunc)
		writeLimits(e, g.DefaultTable.MemInitial, g.DefaultTable.MemMax, g.DefaultTable.MemHasMax)
	}

	e.patchSize(p)
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeLimits(e *byteEncoder, initial, max int, hasMax bool) {
	if hasMax {
		e.writeByte(1)
		e.writeULEB128(uint64(initial))
		e.writeULEB128(uint64(max))
	} else {
		e.writeByte(0)
		e.writeULEB128(uint64(initial))
	}
}

func emitFunctionSection(e *byteEncoder, g *GlobalData) {
	if len(g.Functions) == 0 {
		return
	}
	e.writeByte(secFunction)
	p := e.reserveSize()
	e.writeULEB128(uint64(len(g.Functions)))
	for _, d := range g.Functions {
		e.writeULEB128(uint64(d.SignatureIndex))
	}
	e.patchSize(p)
}

func emitTableSection(e *byteEncoder, g *GlobalData) {
	if g.DefaultTable == nil || g.DefaultTable.ImportSource != nil {
		return
	}
	e.writeByte(secTable)
	p := e.reserveSize()
	e.writeULEB128(1)
	e.writeByte(valAnyFunc)
	writeLimits(e, g.DefaultTable.MemInitial, g.DefaultTable.MemMax, g.DefaultTable.MemHasMax)
	e.patchSize(p)
}

func emitMemorySection(e *byteEncoder, g *GlobalData) {
	if g.DefaultMemory == nil || g.DefaultMemory.ImportSource != nil {
		return
	}
	e.writeByte(secMemory)
	p := e.reserveSize()
	e.writeULEB128(1)
	writeLimits(e, g.DefaultMemory.MemInitial, g.DefaultMemory.MemMax, g.DefaultMemory.MemHasMax)
	e.patchSize(p)
}

func emitGlobalSection(e *byteEncoder, g *GlobalData) error {
	if len(g.Variables) == 0 {
		return nil
	}
	e.writeByte(secGlobal)
	p := e.reserveSize()
	e.writeULEB128(uint64(len(g.Variables)))
	for _, d := range g.Variables {
		valtype := valtypeOf(d.RunType)
		if d.Storage != nil || d.IsFnPtr {
			valtype = valI32
		}
		e.writeByte(valtype)
		e.writeByte(boolByte(d.Mutable))
		if err := emitConstExpr(e, d.Initializer, d); err != nil {
			return err
		}
		e.writeByte(opEnd)
	}
	e.patchSize(p)
	return nil
}

// emitConstExpr encodes a global's initializer expression, which by
// this point has been validated to be a bare literal, a reference to an
// imported immutable global (encoded as global.get), or (for fnptr
// globals) a reference to a function, encoded as that function's index
// in the function index space; no element section is emitted.
func emitConstExpr(e *byteEncoder, n *Node, def *Definition) error {
	if def.IsFnPtr {
		fnDef := n.Meta.Def
		e.writeByte(opI32Const)
		e.writeSLEB128(int64(fnDef.Index))
		return nil
	}
	switch n.Kind {
	case KReference:
		e.writeByte(opGlobalGet)
		e.writeULEB128(uint64(n.Meta.Def.Index))
	case KIntLit:
		v, _ := parseUintLiteral(n.text())
		if n.RunType == TI64 {
			e.writeByte(opI64Const)
			e.writeSLEB128(int64(v))
		} else {
			e.writeByte(opI32Const)
			e.writeSLEB128(int64(int32(v)))
		}
	case KFloatLit:
		f := parseFloatLiteral(n.text())
		if n.RunType == TF64 {
			e.writeByte(opF64Const)
			e.writeF64(f)
		} else {
			e.writeByte(opF32Const)
			e.writeF32(float32(f))
		}
	}
	return nil
}

// parseFloatLiteral strips the mandatory f32/f64 suffix (token.go's
// float pattern always includes one) before handing the digits to the
// standard parser.
func parseFloatLiteral(text string) float64 {
	digits := strings.TrimSuffix(strings.TrimSuffix(text, "f32"), "f64")
	v, _ := strconv.ParseFloat(digits, 64)
	return v
}

func emitExportSection(e *byteEncoder, g *GlobalData) {
	if len(g.Exports) == 0 {
		return
	}
	e.writeByte(secExport)
	p := e.reserveSize()
	e.writeULEB128(uint64(len(g.Exports)))
	for _, ex := range g.Exports {
		e.writeName(ex.Name)
		switch ex.Def.Kind {
		case DefFunction:
			e.writeByte(extFunction)
		case DefMemory:
			e.writeByte(extMemory)
		case DefTable:
			e.writeByte(extTable)
		default:
			e.writeByte(extGlobal)
		}
		e.writeULEB128(uint64(ex.Def.Index))
	}
	e.patchSize(p)
}

// emitStartSection implements spec.md §4.7 step 9: "If a nullary main
// returning void exists in the global scope, emit its index."
func emitStartSection(e *byteEncoder, g *GlobalData) {
	for _, d := range g.Functions {
		if d.Name == "main" && d.ReturnType == TVoid && len(d.ParamTypes) == 0 {
			e.writeByte(secStart)
			p := e.reserveSize()
			e.writeULEB128(uint64(d.Index))
			e.patchSize(p)
			return
		}
	}
}

func emitCodeSection(g *GlobalData) ([]byte, error) {
	if len(g.Functions) == 0 {
		return nil, nil
	}
	e := newByteEncoder()
	e.writeByte(secCode)
	p := e.reserveSize()
	e.writeULEB128(uint64(len(g.Functions)))
	for _, d := range g.Functions {
		body, err := emitFunctionBody(d)
		if err != nil {
			return nil, err
		}
		e.writeULEB128(uint64(len(body)))
		e.writeBytes(body)
	}
	e.patchSize(p)
	return e.Bytes(), nil
}
