package webbs

// Resolve implements spec.md §4.4's two-pass binding over the tree
// Parse produced: pass one inserts every named definition into its
// owning scope (failing on duplicates within that scope), pass two
// walks every reference and binds it to a definition found by walking
// outward through enclosing scopes, enforcing the referent-kind rules
// per node kind (spec.md §4.4 step 3).
//
// Grounded on the teacher's `grammar_compiler.go` visitor, which does
// its own two-pass walk (collect definitionLabels, then backpatch call
// sites) over the same AST rather than a single combined pass — the
// same shape here, generalized from labels-for-PEG-rules to
// definitions-for-named-entities.
func Resolve(root *Node, global *Scope) error {
	r := &resolver{global: global}
	if err := r.declarePass(root, global); err != nil {
		return attachSpan(err, global.Global.LineIndex)
	}
	if err := r.bindPass(root, nil); err != nil {
		return attachSpan(err, global.Global.LineIndex)
	}
	return nil
}

type resolver struct {
	global *Scope
}

// declarePass inserts KDefinition/KDeclaration nodes into the scope
// that directly encloses them, and recurses into scope-creating nodes
// using their own freshly-created *Scope (spec.md §4.4 step 1: "Scope
// assignment happens during this pass, not during parsing").
func (r *resolver) declarePass(n *Node, scope *Scope) error {
	n.Scope = scope

	if n.Kind.props().createsName {
		def := n.Meta.Def
		def.Scope = scope
		// memory and table are always named after their keyword; a second
		// one is reported as ErrDuplicateDefault below instead.
		if _, exists := scope.Names[def.Name]; exists && def.Kind != DefMemory && def.Kind != DefTable {
			return newNodeErr(ErrDuplicateDefinition, "'"+def.Name+"' is already defined in this scope", n)
		}
		scope.Names[def.Name] = def
		scope.Definitions = append(scope.Definitions, n)

		switch def.Kind {
		case DefFunction:
			if def.ImportSource != nil {
				scope.Global.ImportedFunctions = append(scope.Global.ImportedFunctions, def)
			} else {
				scope.Global.Functions = append(scope.Global.Functions, def)
			}
			def.SignatureIndex = scope.Global.Signatures.intern(signature{Return: def.ReturnType, Params: def.ParamTypes})
		case DefGlobal:
			if def.ImportSource != nil {
				scope.Global.ImportedGlobals = append(scope.Global.ImportedGlobals, def)
			} else if scope.IsGlobal {
				scope.Global.Variables = append(scope.Global.Variables, def)
			}
			if def.IsFnPtr {
				def.SignatureIndex = scope.Global.Signatures.intern(signature{Return: def.ReturnType, Params: def.ParamTypes})
			}
		case DefMemory:
			if scope.Global.DefaultMemory != nil {
				return newNodeErr(ErrDuplicateDefault, "a memory is already defined", n)
			}
			scope.Global.DefaultMemory = def
		case DefTable:
			if scope.Global.DefaultTable != nil {
				return newNodeErr(ErrDuplicateDefault, "a table is already defined", n)
			}
			scope.Global.DefaultTable = def
		}
	}

	childScope := scope
	// The root's scope is the global scope Resolve was given.
	if n.Kind.props().createsScope && n.Kind != KRoot {
		isFn := n.Kind == KFunctionLiteral
		childScope = scope.newChildScope(isFn)
		n.Scope = childScope
		if isFn {
			for _, c := range n.Children {
				if c.Kind == KDeclaration {
					d := c.Meta.Def
					d.Scope = childScope
					d.IsLocal = true
					if _, exists := childScope.Names[d.Name]; exists {
						return newNodeErr(ErrDuplicateDefinition, "duplicate parameter name '"+d.Name+"'", c)
					}
					childScope.Names[d.Name] = d
					*childScope.Variables = append(*childScope.Variables, d)
				}
			}
		}
	}

	for _, c := range n.Children {
		// KFunctionLiteral's own KDeclaration parameter children were
		// already declared directly into childScope above; avoid
		// re-declaring them as if they were ordinary statements.
		if n.Kind == KFunctionLiteral && c.Kind == KDeclaration {
			c.Scope = childScope
			continue
		}
		if err := r.declarePass(c, childScope); err != nil {
			return err
		}
	}
	return nil
}

// bindPass resolves every KReference/KCall/KMemAccess node to its
// Definition (spec.md §4.4 steps 2-3) and attaches loop-escape targets
// to KBreak/KContinue/KYield.
func (r *resolver) bindPass(n *Node, enclosingLoop *Node) error {
	if n.Kind.props().isReference {
		name := n.text()
		def, ok := n.Scope.lookup(name)
		if !ok {
			return newNodeErr(ErrUnresolvableReference, "'"+name+"' is not defined", n)
		}
		if err := checkReferentKind(n, def); err != nil {
			return err
		}
		n.Meta.Def = def
		n.Scope.References = append(n.Scope.References, n)
	}

	switch n.Kind {
	case KBreak, KContinue, KYield:
		if enclosingLoop == nil {
			return newNodeErr(ErrMisplacedEscape, "break/continue/yield outside of a loop", n)
		}
		n.Meta.LoopTarget = enclosingLoop
	}

	nextLoop := enclosingLoop
	if n.Kind == KLoop {
		nextLoop = n
	} else if n.Kind == KFunctionLiteral {
		nextLoop = nil // a loop does not reach across a function boundary
	}

	for _, c := range n.Children {
		if err := r.bindPass(c, nextLoop); err != nil {
			return err
		}
	}
	return nil
}

// checkReferentKind enforces spec.md §4.4 step 3's per-usage-site
// constraints: a KCall must name a function (or function-pointer
// global, for indirect calls), a KMemAccess must name a ptr global,
// and a plain KReference must name anything but a function (a global
// of any sort, including ptr and fnptr globals, or a local).
func checkReferentKind(n *Node, def *Definition) error {
	switch n.Kind {
	case KCall:
		if def.Kind == DefFunction || (def.Kind == DefGlobal && def.IsFnPtr) {
			return nil
		}
		return newNodeErr(ErrBadReferentKind, "'"+def.Name+"' is not callable", n)

	case KMemAccess:
		if def.Kind == DefGlobal && def.Storage != nil {
			return nil
		}
		return newNodeErr(ErrBadReferentKind, "'"+def.Name+"' is not a pointer", n)

	case KReference:
		if def.Kind == DefFunction {
			return newNodeErr(ErrBadReferentKind, "'"+def.Name+"' is a function; call it or take it as fnptr", n)
		}
		return nil
	}
	return nil
}
