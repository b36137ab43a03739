package webbs

// bodyEmitter lowers one function's validated AST into bytecode
// (spec.md §4.8), tracking the running count of open structured
// constructs (block/loop/if) so break/continue/yield can compute a
// relative branch depth against the loop they target.
//
// Grounded on the teacher's grammar_compiler.go visitor, which threads
// its own small piece of ambient state (label/address bookkeeping)
// through a recursive Accept walk rather than returning it — the same
// shape here, generalized from "resolve a PEG rule call" to "resolve a
// branch target".
type bodyEmitter struct {
	enc   *byteEncoder
	depth int
	loops []loopFrame
}

type loopFrame struct {
	node       *Node
	blockLevel int // depth value while directly inside the outer `block`
	loopLevel  int // depth value while directly inside the inner `loop`
}

// emitFunctionBody implements spec.md §4.7 step 10: local declarations
// beyond parameters, body bytecode, terminal end opcode. The body-size
// prefix is not part of the returned bytes; emitCodeSection writes it.
func emitFunctionBody(d *Definition) ([]byte, error) {
	fn := d.FuncNode.Children[0] // KFunctionLiteral
	fnScope := fn.Scope
	vars := *fnScope.Variables
	for i, lv := range vars {
		lv.Index = i
	}

	e := newByteEncoder()
	writeLocalDecls(e, vars[len(d.ParamTypes):])

	be := &bodyEmitter{enc: e}
	body := fn.Children[len(fn.Children)-1] // KBlock
	if err := be.emitBlockChildren(body); err != nil {
		return nil, err
	}
	e.writeByte(opEnd)
	return e.Bytes(), nil
}

// writeLocalDecls groups consecutive same-typed locals into
// (count, valtype) pairs (spec.md §4.7 step 10: "count-then-type for
// each declared local beyond parameters").
func writeLocalDecls(e *byteEncoder, locals []*Definition) {
	type run struct {
		count int
		vt    byte
	}
	var runs []run
	for _, lv := range locals {
		vt := valtypeOf(lv.RunType)
		if len(runs) > 0 && runs[len(runs)-1].vt == vt {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, vt: vt})
		}
	}
	e.writeULEB128(uint64(len(runs)))
	for _, r := range runs {
		e.writeULEB128(uint64(r.count))
		e.writeByte(r.vt)
	}
}

// emitBlockChildren emits a KBlock's children directly into the
// current structured construct without introducing a wrapping `block`
// (spec.md §4.8 "Block/parenthesis ... If the parent is one of {if,
// else, function, loop} that already supplies an implicit block, emit
// the children directly"). Used for function bodies, if/else arms and
// loop bodies — every context a KBlock appears in in this grammar
// except as a bare nested expression, which goes through emitNode's
// wrapping path instead.
func (be *bodyEmitter) emitBlockChildren(block *Node) error {
	for _, c := range block.Children {
		if err := be.emitStmt(c); err != nil {
			return err
		}
	}
	return nil
}

// emitStmt emits one expression/statement node and, if the validator
// marked its value unused and it did not itself escape, drops it
// (spec.md §4.8 "Drop").
func (be *bodyEmitter) emitStmt(n *Node) error {
	if err := be.emitNode(n); err != nil {
		return err
	}
	if n.DropValue && !n.AlwaysEscapes && n.RunType != TVoid {
		be.enc.writeByte(opDrop)
	}
	return nil
}

func (be *bodyEmitter) emitNode(n *Node) error {
	switch n.Kind {
	case KIntLit:
		return be.emitIntLit(n)
	case KFloatLit:
		return be.emitFloatLit(n)
	case KStringLit:
		// This compiler emits no data section (module_emitter.go writes
		// sections 1-10 only); a string literal used as a
		// runtime value has no representable address, so it lowers to
		// the null address. String literals are only otherwise used as
		// import sources and export/rename names, which never reach
		// the body emitter.
		be.enc.writeByte(opI32Const)
		be.enc.writeSLEB128(0)
		return nil
	case KReference:
		return be.emitReferenceLoad(n.Meta.Def)
	case KUnaryNegate:
		return be.emitUnaryNegate(n)
	case KUnaryOp:
		if err := be.emitNode(n.Children[0]); err != nil {
			return err
		}
		be.enc.writeByte(n.Meta.Op.Opcode)
		return nil
	case KAllocatePages:
		if err := be.emitNode(n.Children[0]); err != nil {
			return err
		}
		be.enc.writeByte(opMemoryGrow)
		be.enc.writeULEB128(0) // memory index, always 0
		return nil
	case KBinaryOp:
		return be.emitBinaryOp(n)
	case KAssign:
		return be.emitAssign(n)
	case KSuffixOp:
		return be.emitSuffixOp(n)
	case KCall:
		return be.emitCall(n)
	case KMemAccess:
		return be.emitMemLoad(n)
	case KBlock:
		return be.emitWrappedBlock(n)
	case KIf:
		return be.emitIf(n)
	case KLoop:
		return be.emitLoop(n)
	case KBreak:
		return be.emitBreakOrYield(n)
	case KYield:
		if len(n.Children) > 0 {
			if err := be.emitNode(n.Children[0]); err != nil {
				return err
			}
		}
		return be.emitBreakOrYield(n)
	case KContinue:
		return be.emitContinue(n)
	case KReturn:
		return be.emitReturn(n)
	}
	return nil
}

func (be *bodyEmitter) emitIntLit(n *Node) error {
	be.enc.writeByte(typedConstOpcode(n.RunType))
	if n.RunType == TI64 {
		be.enc.writeSLEB128(int64(n.Meta.Value.(uint64)))
	} else {
		be.enc.writeSLEB128(int64(int32(n.Meta.Value.(uint32))))
	}
	return nil
}

func (be *bodyEmitter) emitFloatLit(n *Node) error {
	f := parseFloatLiteral(n.text())
	if n.RunType == TF64 {
		be.enc.writeByte(opF64Const)
		be.enc.writeF64(f)
	} else {
		be.enc.writeByte(opF32Const)
		be.enc.writeF32(float32(f))
	}
	return nil
}

func (be *bodyEmitter) emitReferenceLoad(def *Definition) error {
	if def.IsLocal {
		be.enc.writeByte(opLocalGet)
	} else {
		be.enc.writeByte(opGlobalGet)
	}
	be.enc.writeULEB128(uint64(def.Index))
	return nil
}

func (be *bodyEmitter) emitReferenceStore(def *Definition) {
	if def.IsLocal {
		be.enc.writeByte(opLocalSet)
	} else {
		be.enc.writeByte(opGlobalSet)
	}
	be.enc.writeULEB128(uint64(def.Index))
}

// emitUnaryNegate implements spec.md §4.8's "Unary negate. Currently
// only literals: emit a typed constant of the negated value" — the
// parser already restricts KUnaryNegate's single child to a literal.
func (be *bodyEmitter) emitUnaryNegate(n *Node) error {
	child := n.Children[0]
	switch child.RunType {
	case TI32:
		v := int32(child.Meta.Value.(uint32))
		be.enc.writeByte(opI32Const)
		be.enc.writeSLEB128(int64(-v))
	case TI64:
		v := int64(child.Meta.Value.(uint64))
		be.enc.writeByte(opI64Const)
		be.enc.writeSLEB128(-v)
	case TF32:
		f := parseFloatLiteral(child.text())
		be.enc.writeByte(opF32Const)
		be.enc.writeF32(float32(-f))
	case TF64:
		f := parseFloatLiteral(child.text())
		be.enc.writeByte(opF64Const)
		be.enc.writeF64(-f)
	}
	return nil
}

// emitBinaryOp special-cases and/or for short-circuit lowering
// (spec.md §4.8); every other binary operator is a plain
// emit-left-right-opcode sequence. and/or work over any of the four
// numeric run types (spec.md §4.5/§4.6): "and" branches on
// emitTruthTest's "is zero" result (zero left yields the typed zero),
// while "or" branches on the teed left operand itself, converted to an
// i32 "not zero" test for non-i32 types (nonzero left reloads the
// temp). The "and" false-path constant and the "or" temp local are
// both typed to n.RunType (the operands' shared run type).
func (be *bodyEmitter) emitBinaryOp(n *Node) error {
	left, right := n.Children[0], n.Children[1]
	opText := n.text()

	if opText == "and" {
		if err := be.emitNode(left); err != nil {
			return err
		}
		be.emitTruthTest(n.RunType)
		be.enc.writeByte(opIf)
		be.enc.writeByte(valtypeOf(n.RunType))
		be.depth++
		writeTypedZero(be.enc, n.RunType)
		be.enc.writeByte(opElse)
		if err := be.emitNode(right); err != nil {
			return err
		}
		be.enc.writeByte(opEnd)
		be.depth--
		return nil
	}

	if opText == "or" {
		if err := be.emitNode(left); err != nil {
			return err
		}
		be.enc.writeByte(opLocalTee)
		be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
		if n.RunType != TI32 {
			writeTypedZero(be.enc, n.RunType)
			entry, _ := lookupBinaryOperator("!=", n.RunType, n.RunType)
			be.enc.writeByte(entry.Opcode)
		}
		be.enc.writeByte(opIf)
		be.enc.writeByte(valtypeOf(n.RunType))
		be.depth++
		be.enc.writeByte(opLocalGet)
		be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
		be.enc.writeByte(opElse)
		if err := be.emitNode(right); err != nil {
			return err
		}
		be.enc.writeByte(opEnd)
		be.depth--
		return nil
	}

	if err := be.emitNode(left); err != nil {
		return err
	}
	if err := be.emitNode(right); err != nil {
		return err
	}
	be.enc.writeByte(n.Meta.Op.Opcode)
	return nil
}

// emitTruthTest consumes a value of run type t already on the stack and
// leaves an i32 "is zero" test: a direct eqz for integers, or a
// compare-equal against a zero constant of the same type for floats
// (spec.md §4.6's "test-equal-zero (for integers) or compare-equal to
// zero constant (for floats)"), used by "and" to branch on its left
// operand's truthiness regardless of its run type.
func (be *bodyEmitter) emitTruthTest(t RunType) {
	if t.IsInteger() {
		be.enc.writeByte(typedLocalEqzOpcode(t))
		return
	}
	writeTypedZero(be.enc, t)
	entry, _ := lookupBinaryOperator("==", t, t)
	be.enc.writeByte(entry.Opcode)
}

// emitAssign implements spec.md §4.8's "Assign to variable"/"Assign to
// memory" lowerings. It always leaves the assigned value on the stack
// (emitStmt drops it when the context doesn't need it) — a local
// target gets a free tee, a global target is stored and then re-read
// with global.get, and a memory target routes through the allocated
// temp (spec.md §4.5's tee-and-reload pattern) since a store has no
// native tee instruction.
func (be *bodyEmitter) emitAssign(n *Node) error {
	target, value := n.Children[0], n.Children[1]

	if target.Kind == KReference {
		def := target.Meta.Def
		if err := be.emitNode(value); err != nil {
			return err
		}
		if def.IsLocal {
			be.enc.writeByte(opLocalTee)
			be.enc.writeULEB128(uint64(def.Index))
			return nil
		}
		be.emitReferenceStore(def)
		return be.emitReferenceLoad(def)
	}

	// memory target
	storage, err := be.emitMemAddress(target)
	if err != nil {
		return err
	}
	if err := be.emitNode(value); err != nil {
		return err
	}
	be.enc.writeByte(opLocalTee)
	be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
	be.emitTypedStore(storage)
	be.enc.writeByte(opLocalGet)
	be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
	return nil
}

// emitSuffixOp implements spec.md §4.8's "Suffix increment/decrement":
// post-value semantics, via the node's allocated temp (always a
// function-scope local, so local.tee is always available regardless
// of whether the target itself is local or global). Always leaves the
// pre-increment value on the stack; emitStmt drops it when unused.
func (be *bodyEmitter) emitSuffixOp(n *Node) error {
	target := n.Children[0]
	def := target.Meta.Def

	if err := be.emitReferenceLoad(def); err != nil {
		return err
	}
	be.enc.writeByte(opLocalTee)
	be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
	writeTypedOne(be.enc, def.RunType)
	be.enc.writeByte(n.Meta.Op.Opcode)
	be.emitReferenceStore(def)
	be.enc.writeByte(opLocalGet)
	be.enc.writeULEB128(uint64(n.Meta.TempLocal.Index))
	return nil
}

func writeTypedOne(e *byteEncoder, t RunType) {
	switch t {
	case TI64:
		e.writeByte(opI64Const)
		e.writeSLEB128(1)
	case TF32:
		e.writeByte(opF32Const)
		e.writeF32(1)
	case TF64:
		e.writeByte(opF64Const)
		e.writeF64(1)
	default:
		e.writeByte(opI32Const)
		e.writeSLEB128(1)
	}
}

func (be *bodyEmitter) emitCall(n *Node) error {
	for _, arg := range n.Children {
		if err := be.emitNode(arg); err != nil {
			return err
		}
	}
	def := n.Meta.Def
	if def.Kind == DefFunction {
		be.enc.writeByte(opCall)
		be.enc.writeULEB128(uint64(def.Index))
		return nil
	}
	// indirect call through a function-pointer global
	if err := be.emitReferenceLoad(def); err != nil {
		return err
	}
	be.enc.writeByte(opCallIndirect)
	be.enc.writeULEB128(uint64(def.SignatureIndex))
	be.enc.writeULEB128(0) // table index, always 0
	return nil
}

// emitMemAddress emits the effective-address computation shared by
// loads and stores (spec.md §8 scenario 5): index; pointer variable;
// add; storage size constant; multiply.
func (be *bodyEmitter) emitMemAddress(n *Node) (*storageDescriptor, error) {
	idx := n.Children[0]
	if err := be.emitNode(idx); err != nil {
		return nil, err
	}
	def := n.Meta.Def
	if err := be.emitReferenceLoad(def); err != nil {
		return nil, err
	}
	be.enc.writeByte(opI32Add)
	be.enc.writeByte(opI32Const)
	be.enc.writeSLEB128(int64(def.Storage.ByteSize()))
	be.enc.writeByte(opI32Mul)
	return def.Storage, nil
}

func (be *bodyEmitter) emitMemLoad(n *Node) error {
	storage, err := be.emitMemAddress(n)
	if err != nil {
		return err
	}
	op, align := typedLoadOpcode(storage)
	be.enc.writeByte(op)
	be.enc.writeULEB128(uint64(align))
	be.enc.writeULEB128(0) // byte offset, always 0 (spec.md §8 scenario 5)
	return nil
}

func (be *bodyEmitter) emitTypedStore(storage *storageDescriptor) {
	op, align := typedStoreOpcode(storage)
	be.enc.writeByte(op)
	be.enc.writeULEB128(uint64(align))
	be.enc.writeULEB128(0)
}

// typedLoadOpcode/typedStoreOpcode pick the signedness-suffixed
// narrow-load variant only when storage.Bits is narrower than the
// element type's natural width (spec.md §4.8 "a typed load whose
// signedness suffix is present only when the storage size is narrower
// than the element type"). Alignment is log2(storage size in bytes)
// (spec.md §8 testable property 7).
func typedLoadOpcode(s *storageDescriptor) (byte, int) {
	align := log2(s.ByteSize())
	if !s.Extended {
		if s.ElemType == TI64 {
			return opI64Load, align
		}
		return opI32Load, align
	}
	if s.ElemType == TI64 {
		switch {
		case s.Bits == 8 && s.Signed:
			return opI64Load8S, align
		case s.Bits == 8:
			return opI64Load8U, align
		case s.Bits == 16 && s.Signed:
			return opI64Load16S, align
		case s.Bits == 16:
			return opI64Load16U, align
		case s.Signed:
			return opI64Load32S, align
		default:
			return opI64Load32U, align
		}
	}
	switch {
	case s.Bits == 8 && s.Signed:
		return opI32Load8S, align
	case s.Bits == 8:
		return opI32Load8U, align
	case s.Signed:
		return opI32Load16S, align
	default:
		return opI32Load16U, align
	}
}

func typedStoreOpcode(s *storageDescriptor) (byte, int) {
	align := log2(s.ByteSize())
	if !s.Extended {
		if s.ElemType == TI64 {
			return opI64Store, align
		}
		return opI32Store, align
	}
	if s.ElemType == TI64 {
		switch s.Bits {
		case 8:
			return opI64Store8, align
		case 16:
			return opI64Store16, align
		default:
			return opI64Store32, align
		}
	}
	if s.Bits == 8 {
		return opI32Store8, align
	}
	return opI32Store16, align
}

func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

// emitWrappedBlock lowers a KBlock encountered as a bare nested
// expression (not directly the body of if/else/function/loop), which
// needs its own `block ... end` (spec.md §4.8 "Otherwise wrap in a
// typed block … end"). A singleton block passes through without a
// wrapper, matching the same sentence's first clause.
func (be *bodyEmitter) emitWrappedBlock(n *Node) error {
	if len(n.Children) == 1 {
		return be.emitStmt(n.Children[0])
	}
	be.enc.writeByte(opBlock)
	be.enc.writeByte(valtypeOf(n.RunType))
	be.depth++
	if err := be.emitBlockChildren(n); err != nil {
		return err
	}
	be.enc.writeByte(opEnd)
	be.depth--
	return nil
}

func (be *bodyEmitter) emitIf(n *Node) error {
	cond := n.Children[0]
	if err := be.emitNode(cond); err != nil {
		return err
	}
	if n.Meta.CondNeedsEqz {
		writeTypedZero(be.enc, cond.RunType)
		entry, _ := lookupBinaryOperator("!=", cond.RunType, cond.RunType)
		be.enc.writeByte(entry.Opcode)
	}

	be.enc.writeByte(opIf)
	be.enc.writeByte(valtypeOf(n.RunType))
	be.depth++

	then := n.Children[1]
	if err := be.emitBlockChildren(then); err != nil {
		return err
	}

	if len(n.Children) > 2 {
		be.enc.writeByte(opElse)
		els := n.Children[2]
		if els.Kind == KIf {
			if err := be.emitIfBody(els); err != nil {
				return err
			}
		} else {
			if err := be.emitBlockChildren(els); err != nil {
				return err
			}
		}
	}

	be.enc.writeByte(opEnd)
	be.depth--
	return nil
}

// emitIfBody emits a chained "else if" as a complete nested
// `if ... end` inside the outer else-arm, by calling emitIf directly
// rather than going through emitNode's generic dispatch.
func (be *bodyEmitter) emitIfBody(n *Node) error {
	return be.emitIf(n)
}

func writeTypedZero(e *byteEncoder, t RunType) {
	switch t {
	case TI64:
		e.writeByte(opI64Const)
		e.writeSLEB128(0)
	case TF32:
		e.writeByte(opF32Const)
		e.writeF32(0)
	case TF64:
		e.writeByte(opF64Const)
		e.writeF64(0)
	default:
		e.writeByte(opI32Const)
		e.writeSLEB128(0)
	}
}

// emitLoop implements spec.md §4.8's loop lowering: an outer `block`
// (the break/yield target) wrapping an inner `loop` (the continue
// target), with an unconditional branch back to the loop header after
// the body.
func (be *bodyEmitter) emitLoop(n *Node) error {
	be.enc.writeByte(opBlock)
	be.enc.writeByte(valtypeOf(n.RunType))
	be.depth++
	blockLevel := be.depth

	be.enc.writeByte(opLoop)
	be.enc.writeByte(valtypeOf(n.RunType))
	be.depth++
	loopLevel := be.depth

	be.loops = append(be.loops, loopFrame{node: n, blockLevel: blockLevel, loopLevel: loopLevel})

	body := n.Children[0]
	if err := be.emitBlockChildren(body); err != nil {
		return err
	}

	be.loops = be.loops[:len(be.loops)-1]

	be.enc.writeByte(opBr)
	be.enc.writeULEB128(0)
	be.enc.writeByte(opEnd)
	be.depth--
	be.enc.writeByte(opEnd)
	be.depth--
	return nil
}

func (be *bodyEmitter) findLoopFrame(target *Node) loopFrame {
	for i := len(be.loops) - 1; i >= 0; i-- {
		if be.loops[i].node == target {
			return be.loops[i]
		}
	}
	return loopFrame{}
}

func (be *bodyEmitter) emitBreakOrYield(n *Node) error {
	f := be.findLoopFrame(n.Meta.LoopTarget)
	be.enc.writeByte(opBr)
	be.enc.writeULEB128(uint64(be.depth - f.blockLevel))
	return nil
}

func (be *bodyEmitter) emitContinue(n *Node) error {
	f := be.findLoopFrame(n.Meta.LoopTarget)
	be.enc.writeByte(opBr)
	be.enc.writeULEB128(uint64(be.depth - f.loopLevel))
	return nil
}

func (be *bodyEmitter) emitReturn(n *Node) error {
	if len(n.Children) > 0 {
		if err := be.emitNode(n.Children[0]); err != nil {
			return err
		}
	}
	be.enc.writeByte(opReturn)
	return nil
}
