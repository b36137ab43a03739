package webbs

import "strings"

// Parser is a Pratt/precedence-climbing parser over a flat Token slice
// (spec.md §4.3), grounded on the teacher's recursive-descent
// `GrammarParser` (grammar_parser.go): each grammar rule is its own
// method returning (*Node, error), and skip-kinds are dropped by the
// cursor advance helper rather than ever reaching a parse method.
//
// The mutable current-node/reparent loop spec.md §4.3 describes is
// collapsed here into the conventional recursive-descent form the
// design note in spec.md §9 itself invites ("prefer index-based nodes
// ... commit child linkage only at place()"): every parse method
// returns a *fully linked, already-placed* subtree, so there is no
// window where an in-progress node's parent pointer is provisional.
// Precedence still comes from kind.go's binaryPrecedence, so reparenting a token from a lower-precedence
// production into a higher one is expressed as normal recursive calls
// passing a minimum precedence down, not as node mutation after the
// fact — same outcome, no dangling parent edge ever observable.
type Parser struct {
	tokens []Token
	pos    int
	lines  *LineIndex

	root        *Node
	globalScope *Scope
}

func NewParser(src string) *Parser {
	return &Parser{tokens: filterSkip(Lex(src)), lines: NewLineIndex([]byte(src))}
}

func filterSkip(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == TkWhitespace || t.Kind == TkComment {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (p *Parser) peek() Token  { return p.tokens[p.pos] }
func (p *Parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}
func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) skipTerminators() {
	for p.peek().IsTerminator() {
		p.advance()
	}
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.peek().Kind != k {
		return Token{}, newErr(ErrMisplacedTerminator, "expected "+what, p.peek())
	}
	return p.advance(), nil
}

// expectStatementEnd consumes the statement terminators (spec.md §4.3
// "Terminator handling"), or succeeds silently if the current position
// is already at a token that ends the enclosing open node (RBrace/EOF),
// since a block's final statement needs none.
func (p *Parser) expectStatementEnd(closing TokenKind) error {
	tok := p.peek()
	if tok.Kind == closing || tok.Kind == TkEOF {
		return nil
	}
	if !tok.IsTerminator() {
		return newErr(ErrMisplacedTerminator, "unfinished expression", tok)
	}
	p.skipTerminators()
	return nil
}

// Parse runs the whole pipeline's parse stage (spec.md §1's secondary
// `parse(source_text) -> AST` entrypoint) without resolution/validation.
func Parse(src string) (*Node, error) {
	p := NewParser(src)
	root, err := p.ParseProgram()
	if err != nil {
		return nil, attachSpan(err, p.lines)
	}
	return root, nil
}

func (p *Parser) ParseProgram() (*Node, error) {
	p.globalScope = newGlobalScope(p.lines)
	root := newNode(KRoot, nil)
	root.Complete = true
	root.Scope = p.globalScope
	p.root = root

	p.skipTerminators()
	for p.peek().Kind != TkEOF {
		item, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		root.addChild(item)
		if err := checkParentConstraint(item); err != nil {
			return nil, err
		}
		p.skipTerminators()
	}
	return root, nil
}

func (p *Parser) parseTopLevel() (*Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TkImport:
		return p.parseImportDef()
	case TkExport:
		return p.parseExportDef()
	case TkMemory:
		return p.parseSizeDef(tok, DefMemory, false)
	case TkTable:
		return p.parseSizeDef(tok, DefTable, false)
	case TkIdent:
		return p.parseNamedDef()
	default:
		return nil, newErr(ErrMysteriousSymbol, "expected a top-level definition", tok)
	}
}

func (p *Parser) parseNamedDef() (*Node, error) {
	nameTok := p.advance() // TkIdent
	if _, err := p.expect(TkColon, "':'"); err != nil {
		return nil, err
	}
	switch p.peek().Kind {
	case TkFn:
		return p.parseFunctionDef(nameTok)
	case TkFnPtr:
		return p.parseFnPtrDef(nameTok)
	case TkPtr:
		return p.parsePtrDef(nameTok)
	case TkImmutable, TkI32, TkI64, TkF32, TkF64:
		return p.parseGlobalVarDef(nameTok)
	default:
		return nil, newErr(ErrMysteriousSymbol, "expected a type or 'fn'/'fnptr'/'ptr'", p.peek())
	}
}

func (p *Parser) parseGlobalVarDef(nameTok Token) (*Node, error) {
	immutable := false
	if p.peek().Kind == TkImmutable {
		p.advance()
		immutable = true
	}
	rt, ok := p.parseScalarType()
	if !ok {
		return nil, newErr(ErrMysteriousSymbol, "expected a scalar type", p.peek())
	}
	if _, err := p.expect(TkAssign, "'='"); err != nil {
		return nil, err
	}
	init, err := p.parseAssignExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectStatementEnd(KDefinition.props().requiresTerminator); err != nil {
		return nil, err
	}
	n := newNode(KDefinition, &nameTok)
	n.addChild(init)
	n.Meta.Def = &Definition{Kind: DefGlobal, Name: nameTok.Text, RunType: rt, Mutable: !immutable, Initializer: init}
	return finishNode(n)
}

func (p *Parser) parseFunctionDef(nameTok Token) (*Node, error) {
	p.advance() // 'fn'
	if _, err := p.expect(TkLParen, "'('"); err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkRParen, "')'"); err != nil {
		return nil, err
	}
	retType, ok := p.parseRetType()
	if !ok {
		return nil, newErr(ErrMysteriousSymbol, "expected a return type", p.peek())
	}
	fn := newNode(KFunctionLiteral, &nameTok)
	for _, d := range params {
		fn.addChild(d)
		if err := checkParentConstraint(d); err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.addChild(body)
	fn.Complete = true

	var paramTypes []RunType
	for _, d := range params {
		paramTypes = append(paramTypes, d.Meta.Def.RunType)
	}

	def := newNode(KDefinition, &nameTok)
	def.addChild(fn)
	if err := checkParentConstraint(fn); err != nil {
		return nil, err
	}
	def.Meta.Def = &Definition{
		Kind: DefFunction, Name: nameTok.Text,
		ReturnType: retType, ParamTypes: paramTypes, FuncNode: def,
	}
	return finishNode(def)
}

func (p *Parser) parseParamList() ([]*Node, error) {
	var out []*Node
	if p.peek().Kind == TkRParen {
		return out, nil
	}
	for {
		nameTok, err := p.expect(TkIdent, "a parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TkColon, "':'"); err != nil {
			return nil, err
		}
		rt, ok := p.parseScalarType()
		if !ok {
			return nil, newErr(ErrMysteriousSymbol, "expected a parameter type", p.peek())
		}
		d := newNode(KDeclaration, &nameTok)
		d.Meta.Def = &Definition{Kind: DefGlobal, Name: nameTok.Text, RunType: rt, Mutable: false}
		if _, err := finishNode(d); err != nil {
			return nil, err
		}
		out = append(out, d)
		if p.peek().Kind != TkComma {
			break
		}
		p.advance()
	}
	return out, nil
}

func (p *Parser) parseTypeList() ([]RunType, error) {
	var out []RunType
	if p.peek().Kind == TkRParen {
		return out, nil
	}
	for {
		rt, ok := p.parseScalarType()
		if !ok {
			return nil, newErr(ErrMysteriousSymbol, "expected a type", p.peek())
		}
		out = append(out, rt)
		if p.peek().Kind != TkComma {
			break
		}
		p.advance()
	}
	return out, nil
}

func (p *Parser) parseFnPtrDef(nameTok Token) (*Node, error) {
	p.advance() // 'fnptr'
	if _, err := p.expect(TkLParen, "'('"); err != nil {
		return nil, err
	}
	params, err := p.parseTypeList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkRParen, "')'"); err != nil {
		return nil, err
	}
	retType, ok := p.parseRetType()
	if !ok {
		return nil, newErr(ErrMysteriousSymbol, "expected a return type", p.peek())
	}
	if _, err := p.expect(TkAssign, "'='"); err != nil {
		return nil, err
	}
	init, err := p.parseAssignExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectStatementEnd(KDefinition.props().requiresTerminator); err != nil {
		return nil, err
	}
	n := newNode(KDefinition, &nameTok)
	n.addChild(init)
	n.Meta.Def = &Definition{
		Kind: DefGlobal, Name: nameTok.Text, RunType: TI32, Mutable: false,
		IsFnPtr: true, ReturnType: retType, ParamTypes: params, Initializer: init,
	}
	return finishNode(n)
}

func (p *Parser) parsePtrDef(nameTok Token) (*Node, error) {
	p.advance() // 'ptr'
	storage, err := p.parseStorageType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkAssign, "'='"); err != nil {
		return nil, err
	}
	init, err := p.parseAssignExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectStatementEnd(KDefinition.props().requiresTerminator); err != nil {
		return nil, err
	}
	n := newNode(KDefinition, &nameTok)
	n.addChild(init)
	n.Meta.Def = &Definition{Kind: DefGlobal, Name: nameTok.Text, RunType: TI32, Mutable: true, Storage: storage, Initializer: init}
	return finishNode(n)
}

func (p *Parser) parseSizeDef(kwTok Token, kind DefKind, imported bool) (*Node, error) {
	p.advance() // 'memory'/'table'
	var src string
	if imported {
		// caller already consumed 'import' and this keyword; read "= source initial N [max M]"
	}
	if !imported {
		if _, err := p.expect(TkAssign, "'='"); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.expect(TkAssign, "'='"); err != nil {
			return nil, err
		}
		s, err := p.expect(TkStringLit, "an import source string")
		if err != nil {
			return nil, err
		}
		src = unquote(s.Text)
	}
	if _, err := p.expect(TkInitial, "'initial'"); err != nil {
		return nil, err
	}
	initTok, err := p.expect(TkIntLit, "an integer literal")
	if err != nil {
		return nil, err
	}
	initial, ok := parseUintLiteral(initTok.Text)
	if !ok {
		return nil, newErr(ErrUnintelligibleSize, "initial size does not parse", initTok)
	}
	hasMax := false
	maxVal := 0
	if p.peek().Kind == TkMax {
		p.advance()
		maxTok, err := p.expect(TkIntLit, "an integer literal")
		if err != nil {
			return nil, err
		}
		m, ok := parseUintLiteral(maxTok.Text)
		if !ok {
			return nil, newErr(ErrUnintelligibleSize, "max size does not parse", maxTok)
		}
		hasMax = true
		maxVal = int(m)
	}
	if err := p.expectStatementEnd(KDefinition.props().requiresTerminator); err != nil {
		return nil, err
	}
	name := "memory"
	if kind == DefTable {
		name = "table"
	}
	n := newNode(KDefinition, &kwTok)
	def := &Definition{Kind: kind, Name: name, MemInitial: int(initial), MemMax: maxVal, MemHasMax: hasMax}
	if imported {
		def.ImportSource = &src
	}
	n.Meta.Def = def
	return finishNode(n)
}

func (p *Parser) parseImportDef() (*Node, error) {
	p.advance() // 'import'
	switch p.peek().Kind {
	case TkMemory:
		return p.parseSizeDef(p.peek(), DefMemory, true)
	case TkTable:
		return p.parseSizeDef(p.peek(), DefTable, true)
	}
	nameTok, err := p.expect(TkIdent, "an import name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkColon, "':'"); err != nil {
		return nil, err
	}

	var def *Definition
	switch p.peek().Kind {
	case TkFn:
		p.advance()
		if _, err := p.expect(TkLParen, "'('"); err != nil {
			return nil, err
		}
		params, err := p.parseTypeList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TkRParen, "')'"); err != nil {
			return nil, err
		}
		retType, ok := p.parseRetType()
		if !ok {
			return nil, newErr(ErrMysteriousSymbol, "expected a return type", p.peek())
		}
		def = &Definition{Kind: DefFunction, Name: nameTok.Text, ReturnType: retType, ParamTypes: params}
	case TkPtr:
		p.advance()
		storage, err := p.parseStorageType()
		if err != nil {
			return nil, err
		}
		def = &Definition{Kind: DefGlobal, Name: nameTok.Text, RunType: TI32, Mutable: true, Storage: storage}
	default:
		rt, ok := p.parseScalarType()
		if !ok {
			return nil, newErr(ErrMysteriousSymbol, "expected a type", p.peek())
		}
		def = &Definition{Kind: DefGlobal, Name: nameTok.Text, RunType: rt, Mutable: false}
	}

	if _, err := p.expect(TkAssign, "'='"); err != nil {
		return nil, err
	}
	srcTok, err := p.expect(TkStringLit, "an import source string")
	if err != nil {
		return nil, err
	}
	src := unquote(srcTok.Text)
	def.ImportSource = &src
	if err := p.expectStatementEnd(KDefinition.props().requiresTerminator); err != nil {
		return nil, err
	}
	n := newNode(KDefinition, &nameTok)
	n.Meta.Def = def
	return finishNode(n)
}

func (p *Parser) parseExportDef() (*Node, error) {
	p.advance() // 'export'
	tok := p.peek()
	var targetName string
	switch tok.Kind {
	case TkIdent:
		targetName = tok.Text
		p.advance()
	case TkMemory:
		targetName = "memory"
		p.advance()
	case TkTable:
		targetName = "table"
		p.advance()
	default:
		return nil, newErr(ErrMysteriousSymbol, "expected an export target", tok)
	}
	if _, err := p.expect(TkAs, "'as'"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TkStringLit, "an export name string")
	if err != nil {
		return nil, err
	}
	if err := p.expectStatementEnd(KExport.props().requiresTerminator); err != nil {
		return nil, err
	}
	n := newNode(KExport, &tok)
	n.Meta.ExportTarget = targetName
	n.Meta.ExportName = unquote(nameTok.Text)
	return finishNode(n)
}

func (p *Parser) parseScalarType() (RunType, bool) {
	tok := p.peek()
	rt, ok := scalarTypeFromToken(tok.Kind)
	if !ok || tok.Kind == TkVoid {
		return TVoid, false
	}
	p.advance()
	return rt, true
}

func (p *Parser) parseRetType() (RunType, bool) {
	tok := p.peek()
	if tok.Kind == TkVoid {
		p.advance()
		return TVoid, true
	}
	return p.parseScalarType()
}

func (p *Parser) parseStorageType() (*storageDescriptor, error) {
	tok := p.peek()
	switch tok.Kind {
	case TkI32:
		p.advance()
		return &storageDescriptor{ElemType: TI32, Bits: 32, Signed: true}, nil
	case TkI64:
		p.advance()
		return &storageDescriptor{ElemType: TI64, Bits: 64, Signed: true}, nil
	case TkIdent:
		if d, ok := decodeStorageType(tok.Text); ok {
			p.advance()
			return d, nil
		}
	}
	return nil, newErr(ErrMysteriousSymbol, "expected a pointer storage type", tok)
}

// decodeStorageType parses "i{32|64}[_{s|u}{8|16|32}]?" (spec.md §4.3).
func decodeStorageType(text string) (*storageDescriptor, bool) {
	var elem RunType
	rest := ""
	switch {
	case strings.HasPrefix(text, "i32"):
		elem, rest = TI32, text[3:]
	case strings.HasPrefix(text, "i64"):
		elem, rest = TI64, text[3:]
	default:
		return nil, false
	}
	if rest == "" {
		bits := 32
		if elem == TI64 {
			bits = 64
		}
		return &storageDescriptor{ElemType: elem, Bits: bits, Signed: true}, true
	}
	if len(rest) < 3 || rest[0] != '_' {
		return nil, false
	}
	signed := rest[1] == 's'
	if !signed && rest[1] != 'u' {
		return nil, false
	}
	bitsText := rest[2:]
	var bits int
	switch bitsText {
	case "8":
		bits = 8
	case "16":
		bits = 16
	case "32":
		bits = 32
	default:
		return nil, false
	}
	elemBits := 32
	if elem == TI64 {
		elemBits = 64
	}
	if bits >= elemBits {
		return nil, false
	}
	return &storageDescriptor{ElemType: elem, Bits: bits, Signed: signed, Extended: true}, true
}

// --- expressions ---

func (p *Parser) parseAssignExpr() (*Node, error) {
	left, err := p.parseBinary(precOr)
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == TkAssign {
		tok := p.advance()
		if !childKindAllowed(KAssign, 0, left.Kind) {
			return nil, newErr(ErrChildTypeConstraint, "assignment target must be a variable or a memory access", tok)
		}
		right, err := p.parseAssignExpr() // right-associative
		if err != nil {
			return nil, err
		}
		n := newNode(KAssign, &tok)
		n.addChild(left)
		n.addChild(right)
		return finishNode(n)
	}
	return left, nil
}

// parseBinary implements precedence climbing (spec.md §4.2/§4.3) over
// binaryPrecedence. `and`/`or` share this climb (they parse exactly like
// any other left-associative infix operator); the validator is what
// gives them short-circuit semantics instead of an operator-table
// lookup (spec.md §4.5).
func (p *Parser) parseBinary(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		opText, isOp := opTextOf(tok.Kind)
		if !isOp {
			break
		}
		prec := binaryPrecedence[tok.Kind]
		if prec < minPrec {
			break
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		n := newNode(KBinaryOp, &tok)
		n.addChild(left)
		n.addChild(right)
		_ = opText
		left, err = finishNode(n)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func opTextOf(k TokenKind) (string, bool) {
	if s, ok := binaryOpText[k]; ok {
		return s, true
	}
	if k == TkAnd {
		return "and", true
	}
	if k == TkOr {
		return "or", true
	}
	return "", false
}

func (p *Parser) parseUnary() (*Node, error) {
	tok := p.peek()
	switch {
	case tok.Kind == TkMinus:
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !childKindAllowed(KUnaryNegate, 0, child.Kind) {
			return nil, newErr(ErrChildTypeConstraint, "unary negate only accepts a numeric literal", tok)
		}
		n := newNode(KUnaryNegate, &tok)
		n.addChild(child)
		return finishNode(n)

	case unaryMathKinds[tok.Kind]:
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := newNode(KUnaryOp, &tok)
		n.addChild(child)
		return finishNode(n)

	case tok.Kind == TkAllocatePages:
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := newNode(KAllocatePages, &tok)
		n.addChild(child)
		return finishNode(n)
	}
	return p.parseSuffix()
}

func (p *Parser) parseSuffix() (*Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind == TkPlusPlus || tok.Kind == TkMinusMinus {
		if !childKindAllowed(KSuffixOp, 0, node.Kind) {
			return nil, newErr(ErrChildTypeConstraint, "suffix ++/-- only applies to a variable", tok)
		}
		p.advance()
		n := newNode(KSuffixOp, &tok)
		n.addChild(node)
		return finishNode(n)
	}
	return node, nil
}

func (p *Parser) parsePrimary() (*Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TkIntLit:
		p.advance()
		return finishNode(newNode(KIntLit, &tok))

	case TkFloatLit:
		p.advance()
		return finishNode(newNode(KFloatLit, &tok))

	case TkStringLit:
		p.advance()
		n := newNode(KStringLit, &tok)
		n.Meta.Value = unquote(tok.Text)
		return finishNode(n)

	case TkIdent:
		p.advance()
		return finishNode(newNode(KReference, &tok))

	case TkCallIdent:
		p.advance()
		if _, err := p.expect(TkLParen, "'('"); err != nil {
			return nil, err
		}
		n := newNode(KCall, &tok)
		if p.peek().Kind != TkRParen {
			for {
				arg, err := p.parseAssignExpr()
				if err != nil {
					return nil, err
				}
				n.addChild(arg)
				if p.peek().Kind != TkComma {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(TkRParen, "')'"); err != nil {
			return nil, err
		}
		n.Complete = true
		return n, nil

	case TkMemIdent:
		p.advance()
		if _, err := p.expect(TkLBracket, "'['"); err != nil {
			return nil, err
		}
		idx, err := p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TkRBracket, "']'"); err != nil {
			return nil, err
		}
		n := newNode(KMemAccess, &tok)
		n.addChild(idx)
		return finishNode(n)

	case TkLParen:
		p.advance()
		inner, err := p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TkRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case TkLBrace:
		return p.parseBlock()

	case TkIf:
		return p.parseIf()

	case TkLoop:
		return p.parseLoop()

	case TkBreak:
		p.advance()
		return finishNode(newNode(KBreak, &tok))

	case TkContinue:
		p.advance()
		return finishNode(newNode(KContinue, &tok))

	case TkYield:
		p.advance()
		n := newNode(KYield, &tok)
		if p.startsExpr(p.peek()) {
			val, err := p.parseAssignExpr()
			if err != nil {
				return nil, err
			}
			n.addChild(val)
		}
		n.Complete = true
		return n, nil

	case TkReturn:
		p.advance()
		n := newNode(KReturn, &tok)
		if p.startsExpr(p.peek()) {
			val, err := p.parseAssignExpr()
			if err != nil {
				return nil, err
			}
			n.addChild(val)
		}
		n.Complete = true
		return n, nil
	}
	return nil, newErr(ErrMysteriousSymbol, "unexpected token", tok)
}

func (p *Parser) startsExpr(tok Token) bool {
	switch tok.Kind {
	case TkNewline, TkSemicolon, TkRBrace, TkEOF, TkRParen, TkRBracket, TkComma:
		return false
	}
	return true
}

func (p *Parser) parseBlock() (*Node, error) {
	openTok, err := p.expect(TkLBrace, "'{'")
	if err != nil {
		return nil, err
	}
	n := newNode(KBlock, &openTok)
	p.skipTerminators()
	for p.peek().Kind != TkRBrace {
		if p.peek().Kind == TkEOF {
			return nil, newErr(ErrMisplacedTerminator, "unterminated block", p.peek())
		}
		stmt, err := p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
		n.addChild(stmt)
		if err := p.expectStatementEnd(KBlock.props().requiresTerminator); err != nil {
			return nil, err
		}
		p.skipTerminators()
	}
	p.advance() // '}'
	return finishNode(n)
}

func (p *Parser) parseIf() (*Node, error) {
	tok, err := p.expect(TkIf, "'if'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkLParen, "'('"); err != nil {
		return nil, err
	}
	cond, err := p.parseAssignExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TkRParen, "')'"); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := newNode(KIf, &tok)
	n.addChild(cond)
	n.addChild(thenBlock)
	if p.peek().Kind == TkElse {
		p.advance()
		var elseBranch *Node
		if p.peek().Kind == TkIf {
			elseBranch, err = p.parseIf()
		} else {
			elseBranch, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
		n.addChild(elseBranch)
	}
	n.Complete = true
	return n, nil
}

func (p *Parser) parseLoop() (*Node, error) {
	tok, err := p.expect(TkLoop, "'loop'")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := newNode(KLoop, &tok)
	n.addChild(body)
	return finishNode(n)
}

// --- literal helpers ---

func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	body := raw[1 : len(raw)-1]
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(body[i])
			}
			continue
		}
		sb.WriteByte(body[i])
	}
	return sb.String()
}

func parseUintLiteral(text string) (uint64, bool) {
	digits := strings.TrimSuffix(strings.TrimSuffix(text, "x32"), "x64")
	if digits == text {
		digits = text
	}
	var v uint64
	if len(digits) == 0 {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}
