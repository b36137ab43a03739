package webbs

// Validate is the pipeline's third stage (spec.md §4.5): a bottom-up
// walk that computes every node's run_type, selects operators from the
// static tables in operators.go, allocates anonymous temp locals for
// constructs that need one, performs escape analysis, and raises the
// remaining error kinds in the taxonomy that only become visible once
// types are known.
//
// Grounded on the teacher's grammar_compiler.go: a single struct
// walking the tree via per-kind dispatch, threading a small amount of
// ambient state (there: definitionLabels/openAddrs for backpatching;
// here: the enclosing function's declared return type, for return type
// checks, and whether the walk is inside a function body).
func Validate(root *Node, global *Scope) error {
	v := &validator{global: global}
	for _, c := range root.Children {
		if err := v.validateTopLevel(c); err != nil {
			return attachSpan(err, global.Global.LineIndex)
		}
	}
	return nil
}

type validator struct {
	global *Scope

	fnReturnType RunType
	inFunction   bool
}

func (v *validator) validateTopLevel(n *Node) error {
	switch n.Kind {
	case KDefinition:
		return v.validateDefinition(n)
	case KExport:
		return v.validateExport(n)
	}
	return nil
}

func (v *validator) validateExport(n *Node) error {
	target := n.Meta.ExportTarget
	var def *Definition
	switch target {
	case "memory":
		def = v.global.Global.DefaultMemory
	case "table":
		def = v.global.Global.DefaultTable
	default:
		d, ok := v.global.lookup(target)
		if !ok {
			return newNodeErr(ErrNonExistentExport, "export target '"+target+"' is not defined", n)
		}
		def = d
	}
	if def == nil {
		return newNodeErr(ErrNonExistentExport, "export target '"+target+"' is not defined", n)
	}
	if def.Kind == DefGlobal && def.Mutable && !def.IsFnPtr && def.Storage == nil {
		return newNodeErr(ErrMutableExport, "mutable globals cannot be exported", n)
	}
	v.global.Global.Exports = append(v.global.Global.Exports, &Export{Name: n.Meta.ExportName, Def: def})
	return nil
}

func (v *validator) validateDefinition(n *Node) error {
	def := n.Meta.Def
	switch def.Kind {
	case DefFunction:
		if def.ImportSource != nil {
			return nil // imported signature only, no body to validate
		}
		return v.validateFunctionBody(n, def)

	case DefMemory, DefTable:
		return nil

	case DefGlobal:
		if def.ImportSource != nil {
			return nil
		}
		if len(n.Children) == 0 {
			return nil
		}
		init := n.Children[0]
		if err := v.validateExpr(init, true); err != nil {
			return err
		}
		if def.IsFnPtr {
			if err := v.checkFnPtrInitializer(init, def, n); err != nil {
				return err
			}
			return nil
		}
		if def.Storage != nil {
			if init.RunType != TI32 {
				return newNodeErr(Err32BitAddressRequired, "pointer initializer must be an i32 address", init)
			}
			if v.global.Global.DefaultMemory == nil {
				return newNodeErr(ErrNoMemoryDefined, "a pointer definition requires a memory block", n)
			}
			return nil
		}
		if !isConstInitializer(init) {
			return newNodeErr(ErrBadInitializer, "global initializer must be a literal or an imported immutable global", init)
		}
		if init.RunType != def.RunType {
			return newNodeErr(ErrAssignTypeMismatch, "initializer type does not match declared type", init)
		}
		return nil
	}
	return nil
}

func (v *validator) checkFnPtrInitializer(init *Node, def *Definition, owner *Node) error {
	if init.Kind != KReference || init.Meta.Def == nil || init.Meta.Def.Kind != DefFunction {
		return newNodeErr(ErrBadInitializer, "fnptr initializer must name a function", init)
	}
	target := init.Meta.Def
	if target.ReturnType != def.ReturnType || !sameTypes(target.ParamTypes, def.ParamTypes) {
		return newNodeErr(ErrSignatureMismatch, "fnptr initializer signature does not match", init)
	}
	if v.global.Global.DefaultTable == nil {
		return newNodeErr(ErrNoTableDefined, "a fnptr definition requires a table", owner)
	}
	return nil
}

func sameTypes(a, b []RunType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isConstInitializer implements spec.md §4.5 "Initializer expressions
// (globals)": the right-hand side must be a numeric literal or a
// reference to an imported immutable global.
func isConstInitializer(n *Node) bool {
	if n.Kind == KIntLit || n.Kind == KFloatLit {
		return true
	}
	if n.Kind == KReference && n.Meta.Def != nil {
		d := n.Meta.Def
		return d.Kind == DefGlobal && d.ImportSource != nil && !d.Mutable
	}
	return false
}

func (v *validator) validateFunctionBody(defNode *Node, def *Definition) error {
	fn := defNode.Children[0] // KFunctionLiteral
	body := fn.Children[len(fn.Children)-1]

	prevType, prevIn := v.fnReturnType, v.inFunction
	v.fnReturnType, v.inFunction = def.ReturnType, true
	defer func() { v.fnReturnType, v.inFunction = prevType, prevIn }()

	// spec.md §4.5: the body is validated with value_required set to
	// whether the function actually returns something. A void function's
	// trailing statement is therefore dropped like any other statement
	// instead of being treated as an implicit return value, so e.g.
	// "f: fn() void { g = g + 1 }" compiles and the stray value is popped
	// rather than left dangling on the stack under a void signature.
	if err := v.validateExpr(body, def.ReturnType != TVoid); err != nil {
		return err
	}

	// value_required was false above for a void function, so body's
	// RunType (if non-void) reflects a dropped value rather than an
	// implicit return — nothing to compare against def.ReturnType.
	if def.ReturnType != TVoid && !body.AlwaysEscapes && body.RunType != def.ReturnType {
		return newNodeErr(ErrReturnTypeMismatch, "function body's implicit value does not match the declared return type", body)
	}
	return nil
}

// validateExpr computes n.RunType (and n.AlwaysEscapes/n.DropValue where
// applicable) bottom-up, matching spec.md §4.5's node-kind dispatch.
// valueRequired threads spec.md §4.5's value_required: false for a
// statement whose result is discarded, true everywhere a value is
// actually consumed. Only KBlock and KIf propagate it onward — every
// other kind either always needs its children's values (an operator's
// operands, a call's arguments, a return's expression) or never does
// (KLoop's body is always value_required=false; only its yields, which
// are always value-required, contribute a result).
func (v *validator) validateExpr(n *Node, valueRequired bool) error {
	switch n.Kind {
	case KIntLit:
		return v.validateIntLit(n)

	case KFloatLit:
		if hasSuffix(n.text(), "f64") {
			n.RunType = TF64
		} else {
			n.RunType = TF32
		}
		return nil

	case KStringLit:
		n.RunType = TI32 // lowers to the null address (i32.const 0)
		return nil

	case KReference:
		n.RunType = n.Meta.Def.RunType
		return nil

	case KUnaryNegate:
		child := n.Children[0]
		if err := v.validateExpr(child, true); err != nil {
			return err
		}
		n.RunType = child.RunType
		return nil

	case KUnaryOp:
		return v.validateUnaryOp(n)

	case KAllocatePages:
		child := n.Children[0]
		if err := v.validateExpr(child, true); err != nil {
			return err
		}
		if child.RunType != TI32 {
			return newNodeErr(ErrUndefinedOperator, "allocate_pages expects an i32 page count", child)
		}
		if v.global.Global.DefaultMemory == nil {
			return newNodeErr(ErrNoMemoryDefined, "allocate_pages requires a memory block", n)
		}
		entry, _ := lookupUnaryOperator("allocate_pages", TI32)
		n.Meta.Op = &entry
		n.RunType = TI32
		return nil

	case KBinaryOp:
		return v.validateBinaryOp(n)

	case KAssign:
		return v.validateAssign(n)

	case KSuffixOp:
		target := n.Children[0]
		if err := v.validateExpr(target, true); err != nil {
			return err
		}
		if !target.RunType.IsNumeric() {
			return newNodeErr(ErrUndefinedOperator, "++/-- requires a numeric variable", target)
		}
		if target.Meta.Def != nil && !target.Meta.Def.Mutable {
			return newNodeErr(ErrAssignToImmutable, "cannot increment/decrement an immutable variable", target)
		}
		opText := "+"
		if n.text() == "--" {
			opText = "-"
		}
		entry, ok := lookupBinaryOperator(opText, target.RunType, target.RunType)
		if !ok {
			return newNodeErr(ErrUndefinedOperator, "no ++/-- operator for this type", n)
		}
		n.Meta.Op = &entry
		n.Meta.TempLocal = n.Scope.allocTemp(target.RunType)
		n.RunType = target.RunType
		return nil

	case KCall:
		return v.validateCall(n)

	case KMemAccess:
		idx := n.Children[0]
		if err := v.validateExpr(idx, true); err != nil {
			return err
		}
		if idx.RunType != TI32 {
			return newNodeErr(Err32BitAddressRequired, "memory index must be i32", idx)
		}
		n.RunType = n.Meta.Def.Storage.ElemType
		return nil

	case KBlock:
		return v.validateBlock(n, valueRequired)

	case KIf:
		return v.validateIf(n, valueRequired)

	case KLoop:
		return v.validateLoop(n)

	case KBreak, KContinue:
		n.RunType = TVoid
		n.AlwaysEscapes = true
		return nil

	case KYield:
		return v.validateYield(n)

	case KReturn:
		return v.validateReturn(n)
	}
	return nil
}

// validateIntLit implements spec.md §4.5 "Literals": an i32 literal
// parses as unsigned decimal, except when its parent is a unary-negate
// node, in which case the accepted range extends down to the signed
// i32 minimum; an i64 literal (selected via the x64 width suffix) is
// rejected only when its decimal value overflows 64 unsigned bits.
func (v *validator) validateIntLit(n *Node) error {
	text := n.text()
	forced64 := hasSuffix(text, "x64")
	digits := trimWidthSuffix(text)

	value, overflowed := parseDecimalU64(digits)

	if !forced64 {
		n.RunType = TI32
		limit := uint64(1) << 32
		if n.Parent != nil && n.Parent.Kind == KUnaryNegate {
			limit = uint64(1)<<31 + 1
		}
		if overflowed || value >= limit {
			return newNodeErr(ErrIntegerLiteralOutOfRange, "integer literal out of range for i32", n)
		}
		n.Meta.Value = uint32(value)
		return nil
	}

	n.RunType = TI64
	if overflowed {
		return newNodeErr(ErrIntegerLiteralOutOfRange, "integer literal out of range for i64", n)
	}
	n.Meta.Value = value
	return nil
}

func trimWidthSuffix(text string) string {
	if hasSuffix(text, "x32") || hasSuffix(text, "x64") {
		return text[:len(text)-3]
	}
	return text
}

// parseDecimalU64 parses an unsigned decimal string, reporting overflow
// past 64 bits rather than wrapping silently.
func parseDecimalU64(digits string) (uint64, bool) {
	var v uint64
	for _, c := range digits {
		d := uint64(c - '0')
		next := v*10 + d
		if next < v {
			return 0, true
		}
		v = next
	}
	return v, false
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

func (v *validator) validateUnaryOp(n *Node) error {
	child := n.Children[0]
	if err := v.validateExpr(child, true); err != nil {
		return err
	}
	opName := unaryKeywordText[n.Token.Kind]
	entry, ok := lookupUnaryOperator(opName, child.RunType)
	if !ok {
		return newNodeErr(ErrUndefinedOperator, "'"+opName+"' is not defined for "+child.RunType.String(), n)
	}
	n.Meta.Op = &entry
	n.RunType = entry.ResultType
	return nil
}

// validateBinaryOp special-cases and/or for short-circuit lowering
// (spec.md §4.5: "and/or are not looked up in the operator table; left
// and right must have matching non-void numeric run types, and the
// result carries that same type" — the emitter tests the left operand
// against zero itself, §4.6, not through a lookup-table operator).
// Only "or" needs a temp local (§4.5: "or" tees the left operand so it
// can be reloaded on the short-circuit path; "and" never reuses left).
func (v *validator) validateBinaryOp(n *Node) error {
	left, right := n.Children[0], n.Children[1]
	if err := v.validateExpr(left, true); err != nil {
		return err
	}
	if err := v.validateExpr(right, true); err != nil {
		return err
	}

	opText := n.text()
	if opText == "and" || opText == "or" {
		if !left.RunType.IsNumeric() || right.RunType != left.RunType {
			return newNodeErr(ErrNonNumericBooleanOperand, "'"+opText+"' requires matching non-void numeric operands", n)
		}
		if opText == "or" {
			n.Meta.TempLocal = n.Scope.allocTemp(left.RunType)
		}
		n.RunType = left.RunType
		return nil
	}

	entry, ok := lookupBinaryOperator(opText, left.RunType, right.RunType)
	if !ok {
		if left.RunType != right.RunType {
			return newNodeErr(ErrInconsistentBooleanType, "operands to '"+opText+"' have different types", n)
		}
		return newNodeErr(ErrUndefinedOperator, "'"+opText+"' is not defined for "+left.RunType.String(), n)
	}
	n.Meta.Op = &entry
	n.RunType = entry.ResultType
	return nil
}

func (v *validator) validateAssign(n *Node) error {
	target, value := n.Children[0], n.Children[1]
	if err := v.validateExpr(target, true); err != nil {
		return err
	}
	if err := v.validateExpr(value, true); err != nil {
		return err
	}
	if target.Meta.Def != nil && !target.Meta.Def.Mutable {
		return newNodeErr(ErrAssignToImmutable, "cannot assign to an immutable variable", target)
	}
	if target.RunType != value.RunType {
		return newNodeErr(ErrAssignTypeMismatch, "assignment value type does not match the target", n)
	}
	if value.AlwaysEscapes {
		return newNodeErr(ErrUnreachableCode, "assignment right-hand side never produces a value", value)
	}
	n.RunType = target.RunType
	// A temp is only actually needed by the emitter when the assigned
	// value is itself consumed (n.DropValue left false by the caller,
	// e.g. a block's last statement, or a nested expression) and the
	// target is a memory location (locals get a free tee, globals are
	// re-read with global.get). Allocate
	// unconditionally here, matching spec.md §4.5's "if value_required,
	// allocate ... for a tee-and-reload pattern" — the emitter is what
	// decides per-target whether to actually spend it.
	n.Meta.TempLocal = n.Scope.allocTemp(target.RunType)
	return nil
}

func (v *validator) validateCall(n *Node) error {
	def := n.Meta.Def
	if len(n.Children) != len(def.ParamTypes) {
		return newNodeErr(ErrWrongArgumentCount, "wrong number of arguments", n)
	}
	for i, arg := range n.Children {
		if err := v.validateExpr(arg, true); err != nil {
			return err
		}
		if arg.RunType != def.ParamTypes[i] {
			return newNodeErr(ErrSignatureMismatch, "argument type does not match parameter type", arg)
		}
	}
	n.RunType = def.ReturnType
	return nil
}

// validateBlock implements spec.md §4.5's "Block and parenthesis" rule:
// every child but the last is validated with value_required=false and
// dropped if non-void; the last child inherits the block's own
// value_required and is dropped too when that turns out false. n.RunType
// always reports what the last statement actually computed (so an
// enclosing if/else can still compare branch types for consistency
// regardless of whether the result is used) — it is the caller's job,
// once value_required was false, to treat a non-void RunType as "drop
// it, don't require it to match anything" rather than as a type error.
func (v *validator) validateBlock(n *Node, valueRequired bool) error {
	escaped := false
	for i, c := range n.Children {
		if escaped {
			return newNodeErr(ErrUnreachableCode, "unreachable code after an escaping statement", c)
		}
		last := i == len(n.Children)-1
		if err := v.validateExpr(c, last && valueRequired); err != nil {
			return err
		}
		if !last || !valueRequired {
			c.DropValue = true
		}
		if c.AlwaysEscapes {
			escaped = true
		}
	}
	n.AlwaysEscapes = escaped
	if len(n.Children) == 0 {
		n.RunType = TVoid
		return nil
	}
	last := n.Children[len(n.Children)-1]
	n.RunType = last.RunType
	return nil
}

func (v *validator) validateIf(n *Node, valueRequired bool) error {
	cond := n.Children[0]
	if err := v.validateExpr(cond, true); err != nil {
		return err
	}
	if !cond.RunType.IsNumeric() {
		return newNodeErr(ErrBadCondition, "if condition must be numeric", cond)
	}
	if cond.RunType != TI32 {
		n.Meta.CondNeedsEqz = true
	}
	then := n.Children[1]
	if len(n.Children) == 2 {
		// spec.md "If (without else): body must not produce a value" —
		// the then-block is always validated as a discarded statement.
		if err := v.validateExpr(then, false); err != nil {
			return err
		}
		n.RunType = TVoid
		return nil
	}
	if err := v.validateExpr(then, valueRequired); err != nil {
		return err
	}
	els := n.Children[2]
	if err := v.validateExpr(els, valueRequired); err != nil {
		return err
	}
	if then.AlwaysEscapes && els.AlwaysEscapes {
		n.AlwaysEscapes = true
		n.RunType = then.RunType
		return nil
	}
	if then.AlwaysEscapes != els.AlwaysEscapes {
		// one branch escapes, the other doesn't: the if's type is
		// whichever branch falls through.
		if then.AlwaysEscapes {
			n.RunType = els.RunType
		} else {
			n.RunType = then.RunType
		}
		return nil
	}
	if then.RunType != els.RunType {
		return newNodeErr(ErrInconsistentIfElseType, "if/else branches produce different types", n)
	}
	n.RunType = then.RunType
	return nil
}

// validateLoop implements spec.md §4.5/§4.6's loop rules: yields inside
// the loop body must all agree on one run type (the loop's own
// RunType), and a loop whose body contains no break, no yield and no
// return (outside nested loops and function literals) is an infinite
// loop (ErrInfiniteLoop). Only presence is checked, not whether the
// escaping statement is reachable.
func (v *validator) validateLoop(n *Node) error {
	body := n.Children[0]

	// spec.md "Loop: validate body with value_required=false" — unlike a
	// function body, a loop body's trailing expression is never an
	// implicit result (only yield produces one); validateBlock drops it
	// like any other non-last statement.
	if err := v.validateExpr(body, false); err != nil {
		return err
	}

	hasBreak := containsKind(body, n, KBreak)
	hasReturn := containsReturn(body)

	yieldTypes := map[RunType]bool{}
	collectYieldTypes(body, n, yieldTypes)
	if len(yieldTypes) > 1 {
		return newNodeErr(ErrInconsistentYieldType, "yield expressions in this loop disagree on type", n)
	}

	if !hasBreak && len(yieldTypes) == 0 && !hasReturn {
		return newNodeErr(ErrInfiniteLoop, "loop has no reachable break, yield or return", n)
	}

	n.Meta.LoopBlockDepth = 1

	switch {
	case len(yieldTypes) == 1:
		for t := range yieldTypes {
			n.RunType = t
		}
	case hasReturn:
		n.AlwaysEscapes = true
		n.RunType = v.fnReturnType
	default:
		n.RunType = TVoid
	}
	return nil
}

// containsKind reports whether kind appears anywhere under body,
// without crossing into a nested loop or function literal other than
// owner itself (each such boundary owns its own escapes).
func containsKind(cur, owner *Node, kind NodeKind) bool {
	if (cur.Kind == KLoop || cur.Kind == KFunctionLiteral) && cur != owner {
		return false
	}
	if cur.Kind == kind {
		return true
	}
	for _, c := range cur.Children {
		if containsKind(c, owner, kind) {
			return true
		}
	}
	return false
}

// containsReturn reports whether a return appears anywhere under body;
// unlike break/yield/continue, a return is valid across nested loop
// boundaries (it still targets the enclosing function), so only a
// nested function literal stops the walk.
func containsReturn(cur *Node) bool {
	if cur.Kind == KFunctionLiteral {
		return false
	}
	if cur.Kind == KReturn {
		return true
	}
	for _, c := range cur.Children {
		if containsReturn(c) {
			return true
		}
	}
	return false
}

func collectYieldTypes(cur, owner *Node, out map[RunType]bool) {
	if cur.Kind == KLoop && cur != owner {
		return
	}
	if cur.Kind == KFunctionLiteral {
		return
	}
	if cur.Kind == KYield {
		if len(cur.Children) == 0 {
			out[TVoid] = true
		} else {
			out[cur.Children[0].RunType] = true
		}
	}
	for _, c := range cur.Children {
		collectYieldTypes(c, owner, out)
	}
}

func (v *validator) validateYield(n *Node) error {
	if len(n.Children) > 0 {
		if err := v.validateExpr(n.Children[0], true); err != nil {
			return err
		}
	}
	n.RunType = TVoid
	n.AlwaysEscapes = true
	return nil
}

func (v *validator) validateReturn(n *Node) error {
	if len(n.Children) > 0 {
		val := n.Children[0]
		if err := v.validateExpr(val, true); err != nil {
			return err
		}
		if val.RunType != v.fnReturnType {
			return newNodeErr(ErrReturnTypeMismatch, "returned value does not match the function's declared return type", n)
		}
	} else if v.fnReturnType != TVoid {
		return newNodeErr(ErrReturnTypeMismatch, "function declares a return type but this return has no value", n)
	}
	n.RunType = TVoid
	n.AlwaysEscapes = true
	v.global.Global.ReturnPoints = append(v.global.Global.ReturnPoints, n)
	return nil
}
