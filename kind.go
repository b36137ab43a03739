package webbs

// NodeKind is the closed set of AST node tags (spec.md's "AST node
// kind" glossary entry). Grammar role and emission behavior are driven
// entirely off this tag plus the static syntaxTable below, mirroring
// the teacher's split between a kind-tagged node (grammar_ast.go) and a
// table-driven grammar description (grammar_syntactic.go) — except
// here the table, not a per-kind struct method set, carries the
// child/parent constraints spec.md §4.2 demands (operator precedence
// lives separately in binaryPrecedence below),
// per the "reify kinds as a tagged enum with a separate const lookup
// table" design note (spec.md §9).
type NodeKind int

const (
	KRoot NodeKind = iota
	KBlock

	KDefinition  // named global/function/ptr/fnptr/memory/table definition
	KDeclaration // name:Type with no initializer (function parameter)
	KFunctionLiteral
	KExport

	KIntLit
	KFloatLit
	KStringLit
	KReference
	KCall
	KMemAccess
	KAssign
	KBinaryOp
	KUnaryOp
	KUnaryNegate
	KSuffixOp
	KAllocatePages

	KIf
	KLoop
	KBreak
	KContinue
	KYield
	KReturn
)

// DefKind classifies what a KDefinition node actually defines, matching
// spec.md §3's Definition.kind ∈ {function, global, memory, table}; ptr
// and fnptr are tracked as sub-cases of global (they still occupy the
// global index space) via Definition.Storage / IsFnPtr.
type DefKind int

const (
	DefGlobal DefKind = iota
	DefFunction
	DefMemory
	DefTable
)

// Precedence tiers for parseBinary's climb (spec.md §4.2), lowest to
// highest. Assignment and unary/suffix/call forms aren't ordinary infix
// operators — they're parsed by their own dedicated methods — so they
// don't need a tier here.
const (
	precOr = iota
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precCompare
	precShift
	precAdditive
	precMultiplicative
)

// syntaxProps is the static, per-kind grammar description spec.md §4.2
// calls the "syntax table": child arity, terminator behavior for open
// nodes, scope/definition/reference flags, and the child/parent type
// constraints (CTC/PTC) spec.md §4.2 requires the table to carry.
// Infix precedence/associativity is a token-keyed concern, not a node
// one, and lives in binaryPrecedence below.
type syntaxProps struct {
	expectedChildren int // -1 == unbounded ("open" node)

	requiresTerminator TokenKind // 0 (TkEOF) means "none required"
	ignoresTerminator  TokenKind

	createsScope bool
	createsName  bool
	isReference  bool

	// childConstraints implements CTC(node): a child position restricted
	// to a fixed set of child kinds (e.g. an assignment's left child
	// must be a reference or memory access).
	childConstraints []childConstraint

	// parentKinds implements PTC(node): the set of kinds this node's
	// parent must be one of, when non-empty (e.g. a parameter
	// declaration only ever appears under a function literal).
	parentKinds []NodeKind
}

// childConstraint restricts the child kind at a fixed position of some
// parent kind, per spec.md §4.2's CTC(node) -> violation|null.
type childConstraint struct {
	index int
	kinds []NodeKind
}

func (c childConstraint) allows(k NodeKind) bool {
	for _, want := range c.kinds {
		if want == k {
			return true
		}
	}
	return false
}

var syntaxTable = map[NodeKind]syntaxProps{
	KRoot:  {expectedChildren: -1, createsScope: true},
	KBlock: {expectedChildren: -1, createsScope: true, requiresTerminator: TkRBrace, ignoresTerminator: TkNewline},

	KDefinition:      {expectedChildren: -1, createsName: true},
	KDeclaration:     {expectedChildren: 0, createsName: true, parentKinds: []NodeKind{KFunctionLiteral}},
	KFunctionLiteral: {expectedChildren: -1, createsScope: true, parentKinds: []NodeKind{KDefinition}},
	KExport:          {expectedChildren: 0, parentKinds: []NodeKind{KRoot}},

	KIntLit:    {expectedChildren: 0},
	KFloatLit:  {expectedChildren: 0},
	KStringLit: {expectedChildren: 0},
	KReference: {expectedChildren: 0, isReference: true},
	KCall:      {expectedChildren: -1, isReference: true},
	KMemAccess: {expectedChildren: 1, isReference: true},

	KAssign: {
		expectedChildren: 2,
		childConstraints: []childConstraint{{index: 0, kinds: []NodeKind{KReference, KMemAccess}}},
	},
	KBinaryOp: {expectedChildren: 2},
	KUnaryOp:  {expectedChildren: 1},
	KUnaryNegate: {
		expectedChildren: 1,
		childConstraints: []childConstraint{{index: 0, kinds: []NodeKind{KIntLit, KFloatLit}}},
	},
	KSuffixOp: {
		expectedChildren: 1,
		childConstraints: []childConstraint{{index: 0, kinds: []NodeKind{KReference}}},
	},
	KAllocatePages: {expectedChildren: 1},

	KIf:       {expectedChildren: -1},
	KLoop:     {expectedChildren: 1, createsScope: true},
	KBreak:    {expectedChildren: 0},
	KContinue: {expectedChildren: 0},
	KYield:    {expectedChildren: -1},
	KReturn:   {expectedChildren: -1},
}

func (k NodeKind) props() syntaxProps { return syntaxTable[k] }

// binaryPrecedence maps an infix operator token to its precedence tier
// (spec.md §4.2's precedence tiers); no associativity flag is stored.
// "else" and "assign" are handled structurally (not through this table)
// since they aren't ordinary binary operators.
var binaryPrecedence = map[TokenKind]int{
	TkOr:        precOr,
	TkAnd:       precAnd,
	TkPipe:      precBitOr,
	TkCaret:     precBitXor,
	TkAmp:       precBitAnd,
	TkEq:        precEquality,
	TkNotEq:     precEquality,
	TkLt:        precCompare,
	TkLe:        precCompare,
	TkGt:        precCompare,
	TkGe:        precCompare,
	TkShl:       precShift,
	TkShr:       precShift,
	TkPlus:      precAdditive,
	TkMinus:     precAdditive,
	TkStar:      precMultiplicative,
	TkSlash:     precMultiplicative,
	TkPercent:   precMultiplicative,
}

// RunType is the stack-effect type of a node, spec.md §3/glossary.
type RunType int

const (
	TVoid RunType = iota
	TI32
	TI64
	TF32
	TF64
)

func (t RunType) String() string {
	switch t {
	case TI32:
		return "i32"
	case TI64:
		return "i64"
	case TF32:
		return "f32"
	case TF64:
		return "f64"
	default:
		return "void"
	}
}

func (t RunType) IsNumeric() bool { return t != TVoid }
func (t RunType) IsInteger() bool { return t == TI32 || t == TI64 }
func (t RunType) IsFloat() bool   { return t == TF32 || t == TF64 }

func scalarTypeFromToken(k TokenKind) (RunType, bool) {
	switch k {
	case TkI32:
		return TI32, true
	case TkI64:
		return TI64, true
	case TkF32:
		return TF32, true
	case TkF64:
		return TF64, true
	case TkVoid:
		return TVoid, true
	}
	return TVoid, false
}
