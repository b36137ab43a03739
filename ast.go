package webbs

import "fmt"

// Node is the single, uniform AST node type spec.md §3 mandates: one
// struct for every grammar role, with `Kind` carrying the grammar tag
// (spec.md §9's "reify kinds as a tagged enum" design note — teacher's
// grammar_ast.go instead gives every PEG construct its own Go struct
// implementing a shared AstNode interface; that fits a fixed, small PEG
// grammar, but this language's child-count/parent-constraint rules are
// genuinely data, not code, so one struct plus the syntaxTable in
// kind.go is the more faithful translation of this spec).
type Node struct {
	Kind     NodeKind
	Token    *Token // nil for synthetic nodes (e.g. implicit blocks)
	Children []*Node
	Parent   *Node
	Scope    *Scope
	Complete bool

	RunType       RunType
	AlwaysEscapes bool
	DropValue     bool

	Meta NodeMeta
}

// NodeMeta is the validator/emitter's scratch space, spec.md §3's
// "meta — kind-specific attached data (definition pointer, operator
// selection, temp-local, jump target, literal value, etc.)". A single
// struct with per-purpose fields is used instead of an interface{}
// payload so the validator and emitter can access fields directly and
// the zero value is always a safe "not set yet".
type NodeMeta struct {
	Def *Definition // KDefinition/KDeclaration's own definition; KReference/KCall/KMemAccess's resolved referent

	Op *operatorEntry // selected opcode + result type for KBinaryOp/KUnaryOp/KUnaryNegate/KSuffixOp

	Value any // literal value: uint32, uint64, float32, float64 or string

	TempLocal *Definition // anonymous temp allocated by the validator (short-circuit `or`, tee-and-reload)

	LoopTarget     *Node // KBreak/KContinue/KYield: enclosing KLoop
	LoopBlockDepth int   // KLoop only: set to 1 by the validator; the body emitter tracks branch depths itself (loopFrame) and does not read it

	CondNeedsEqz bool // KIf: condition's run type isn't i32, needs an inserted compare-not-equal-zero

	ExportName   string // KExport
	ExportTarget string // KExport: name of the thing being exported
}

func newNode(kind NodeKind, tok *Token) *Node {
	return &Node{Kind: kind, Token: tok}
}

func (n *Node) addChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) text() string {
	if n.Token == nil {
		return ""
	}
	return n.Token.Text
}

func (n *Node) rangeOf() Range {
	if n.Token == nil {
		if len(n.Children) > 0 {
			return NewRange(n.Children[0].rangeOf().Start, n.Children[len(n.Children)-1].rangeOf().End)
		}
		return Range{}
	}
	return n.Token.Range()
}

// DefKind-qualified Definition, spec.md §3's uniform named-entity record.
type Definition struct {
	Kind   DefKind
	Name   string
	Scope  *Scope
	Index  int // assigned late, during emission (spec.md §3 invariant)

	RunType    RunType // for globals/ptr: the stack type; for functions: unused (see ReturnType)
	ReturnType RunType // for functions/fnptr
	ParamTypes []RunType
	Mutable    bool

	ImportSource *string
	ExportName   *string
	Initializer  *Node

	SignatureIndex int // functions and function-pointer types

	IsFnPtr bool
	Storage *storageDescriptor // non-nil for DefGlobal definitions created via `ptr`

	MemInitial, MemMax int
	MemHasMax          bool

	FuncNode *Node // KDefinition node that owns this (for function bodies)

	// IsLocal marks a Definition as occupying a function's local index
	// space (parameter or anonymous temp) rather than the module's
	// global index space — the two are disjoint in the target format.
	IsLocal bool
}

// storageDescriptor captures a pointer's element type and the narrower
// storage representation parsed from "i{32|64}[_{s|u}{8|16|32}]?"
// (spec.md §4.3 "Definition recording").
type storageDescriptor struct {
	ElemType RunType
	Bits     int // 8, 16, 32 or 64
	Signed   bool
	Extended bool // true when Bits < width of ElemType: needs sign/zero-extending load and truncating store
}

func (s *storageDescriptor) ByteSize() int { return s.Bits / 8 }

// Scope is the lexical container of spec.md §3. Non-root scopes are
// created with fresh definitions/references/children lists but share
// one *GlobalData pointer with their parent (spec.md §4.3 "Scope
// creation": "shallow-copy parent scope references to shared tables" —
// collapsing the several individually-shared slices spec.md lists into
// one shared struct is the natural Go idiom for "these fields alias the
// root's", see DESIGN.md).
type Scope struct {
	Parent      *Scope
	Names       map[string]*Definition
	Definitions []*Node
	References  []*Node
	Children    []*Scope
	IsGlobal    bool

	// Variables is non-nil only for function scopes: the function's
	// own locals (params first, then declared locals, then anonymous
	// temps), spec.md §4.7 item 10.
	Variables *[]*Definition

	Global *GlobalData
}

// GlobalData is the root scope's extra bookkeeping (spec.md §3):
// signatures, import/definition lists per entity kind, the singleton
// default memory/table, exports and return points.
type GlobalData struct {
	Signatures *signatureTable

	// LineIndex resolves any Token's byte Offset back to a line:column
	// Location, so a CompileError from any pipeline stage can render a
	// human-oriented Span instead of a bare byte offset.
	LineIndex *LineIndex

	ImportedFunctions []*Definition
	ImportedGlobals   []*Definition
	Functions         []*Definition // non-imported
	Variables         []*Definition // non-imported globals

	DefaultMemory *Definition
	DefaultTable  *Definition

	Exports []*Export

	ReturnPoints []*Node
}

type Export struct {
	Name string // export (field) name
	Def  *Definition
}

func newGlobalScope(li *LineIndex) *Scope {
	g := &GlobalData{Signatures: newSignatureTable(), LineIndex: li}
	return &Scope{Names: map[string]*Definition{}, IsGlobal: true, Global: g}
}

// newChildScope implements spec.md §4.3's scope-creation rule.
func (s *Scope) newChildScope(isFunction bool) *Scope {
	child := &Scope{
		Parent:   s,
		Names:    map[string]*Definition{},
		IsGlobal: false,
		Global:   s.Global,
	}
	s.Children = append(s.Children, child)
	if isFunction {
		vars := []*Definition{}
		child.Variables = &vars
	}
	return child
}

// lookup walks this scope and its ancestors. Used by the resolver
// (spec.md §4.4 step 2) — after resolution every node carries its own
// meta.Def, but lookup remains useful for the validator's own bookkeeping
// (e.g. finding an export's target by name).
func (s *Scope) lookup(name string) (*Definition, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if d, ok := cur.Names[name]; ok {
			return d, true
		}
	}
	return nil, false
}

func (s *Scope) enclosingFunctionScope() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Variables != nil {
			return cur
		}
	}
	return nil
}

type signature struct {
	Return RunType
	Params []RunType
}

func (s signature) key() string {
	k := s.Return.String() + "("
	for i, p := range s.Params {
		if i > 0 {
			k += ","
		}
		k += p.String()
	}
	return k + ")"
}

// signatureTable is the global scope's "deduplicated list of function
// signatures with a memoizing key-to-index map" (spec.md §3).
type signatureTable struct {
	list  []signature
	index map[string]int
}

func newSignatureTable() *signatureTable {
	return &signatureTable{index: map[string]int{}}
}

func (t *signatureTable) intern(sig signature) int {
	k := sig.key()
	if idx, ok := t.index[k]; ok {
		return idx
	}
	idx := len(t.list)
	t.list = append(t.list, sig)
	t.index[k] = idx
	return idx
}

// allocTemp interns one anonymous temp local per run type per function
// scope (spec.md §9 "Anonymous temps allocated late ... dedicated
// temp-allocator per function scope that interns by run_type"). The `#`
// prefix is illegal in source identifiers (lexer.go's identifier
// pattern excludes it), guaranteeing no collision with user locals.
func (s *Scope) allocTemp(t RunType) *Definition {
	fnScope := s.enclosingFunctionScope()
	name := fmt.Sprintf("#tmp.%s", t)
	if d, ok := fnScope.Names[name]; ok {
		return d
	}
	d := &Definition{Kind: DefGlobal, Name: name, RunType: t, Mutable: true, Scope: fnScope, IsLocal: true}
	fnScope.Names[name] = d
	*fnScope.Variables = append(*fnScope.Variables, d)
	return d
}
