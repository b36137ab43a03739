package webbs

import "fmt"

// CompileErrorKind enumerates the fixed taxonomy from spec.md §7. The
// compiler never recovers locally: the first error raised aborts the
// pipeline and is returned as the sole CompileError.
type CompileErrorKind int

const (
	ErrMysteriousSymbol CompileErrorKind = iota
	ErrMisplacedTerminator
	ErrChildTypeConstraint
	ErrParentTypeConstraint
	ErrUnresolvableReference
	ErrDuplicateDefinition
	ErrDuplicateDefault
	ErrBadReferentKind
	ErrAssignToImmutable
	ErrAssignTypeMismatch
	Err32BitAddressRequired
	ErrBadCondition
	ErrInconsistentIfElseType
	ErrInconsistentBooleanType
	ErrInconsistentYieldType
	ErrNonNumericBooleanOperand
	ErrUndefinedOperator
	ErrWrongArgumentCount
	ErrSignatureMismatch
	ErrReturnTypeMismatch
	ErrInfiniteLoop
	ErrMisplacedEscape
	ErrIntegerLiteralOutOfRange
	ErrBadInitializer
	ErrBadImportSource
	ErrUnintelligibleSize
	ErrNonExistentExport
	ErrMutableExport
	ErrUnreachableCode
	ErrBadFunctionPlacement
	ErrNoMemoryDefined
	ErrNoTableDefined
	ErrCodegenIntegerOutOfRange
)

var errorKindNames = map[CompileErrorKind]string{
	ErrMysteriousSymbol:         "MysteriousSymbol",
	ErrMisplacedTerminator:      "MisplacedTerminatorOrUnfinishedExpression",
	ErrChildTypeConstraint:      "ChildTypeConstraintViolation",
	ErrParentTypeConstraint:     "ParentTypeConstraintViolation",
	ErrUnresolvableReference:    "UnresolvableReference",
	ErrDuplicateDefinition:      "DuplicateDefinition",
	ErrDuplicateDefault:         "DuplicateDefaultMemoryOrTable",
	ErrBadReferentKind:          "BadReferentKind",
	ErrAssignToImmutable:        "AssignmentToImmutable",
	ErrAssignTypeMismatch:       "AssignmentTypeMismatch",
	Err32BitAddressRequired:     "32BitAddressRequired",
	ErrBadCondition:             "BadCondition",
	ErrInconsistentIfElseType:   "InconsistentTypeIfElse",
	ErrInconsistentBooleanType:  "InconsistentBooleanType",
	ErrInconsistentYieldType:    "InconsistentLoopYieldType",
	ErrNonNumericBooleanOperand: "NonNumericBooleanOperand",
	ErrUndefinedOperator:        "UndefinedOperator",
	ErrWrongArgumentCount:       "WrongArgumentCount",
	ErrSignatureMismatch:        "FunctionSignatureMismatch",
	ErrReturnTypeMismatch:       "ImplicitExplicitReturnTypeMismatch",
	ErrInfiniteLoop:             "InfiniteLoop",
	ErrMisplacedEscape:          "MisplacedBreakYieldContinue",
	ErrIntegerLiteralOutOfRange: "IntegerLiteralOutOfRange",
	ErrBadInitializer:           "BadInitializer",
	ErrBadImportSource:          "BadImportSource",
	ErrUnintelligibleSize:       "UnintelligibleSize",
	ErrNonExistentExport:        "NonExistentExport",
	ErrMutableExport:            "MutableExport",
	ErrUnreachableCode:          "UnreachableCode",
	ErrBadFunctionPlacement:     "BadPlacementForFunctionDefinition",
	ErrNoMemoryDefined:          "NoMemoryDefinedForPointer",
	ErrNoTableDefined:           "NoTableDefinedForFunctionPointer",
	ErrCodegenIntegerOutOfRange: "IntegerOutOfRangeInCodeGeneration",
}

func (k CompileErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return "UnknownCompileError"
}

// CompileError is the single structured failure value the pipeline ever
// returns (spec.md §7): an error kind from the fixed taxonomy above, a
// message, and references to every offending token/node so external
// tooling (explicitly out of this core's scope, spec.md §1) can format
// it for a human.
type CompileError struct {
	Kind   CompileErrorKind
	Msg    string
	Tokens []Token
	Nodes  []*Node

	// Span is the human-oriented line:column range of Tokens[0], filled
	// in by attachSpan once a *LineIndex is available. Zero until then.
	Span Span
}

func (e *CompileError) Error() string {
	if e.Span != (Span{}) {
		return fmt.Sprintf("%s: %s @ %s", e.Kind, e.Msg, e.Span)
	}
	if len(e.Tokens) > 0 {
		return fmt.Sprintf("%s: %s @ %d", e.Kind, e.Msg, e.Tokens[0].Offset)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// attachSpan fills in a *CompileError's Span from its first offending
// token, using lines to translate the byte offset to line:column. Every
// pipeline stage (Parse/Resolve/Validate/EmitModule) calls this on its
// way out so CompileError.Error() never has to fall back to a bare byte
// offset once a LineIndex exists for the source that produced it.
func attachSpan(err error, lines *LineIndex) error {
	ce, ok := err.(*CompileError)
	if !ok || lines == nil || len(ce.Tokens) == 0 {
		return err
	}
	ce.Span = lines.Span(ce.Tokens[0].Range())
	return ce
}

func newErr(kind CompileErrorKind, msg string, toks ...Token) *CompileError {
	return &CompileError{Kind: kind, Msg: msg, Tokens: toks}
}

func newNodeErr(kind CompileErrorKind, msg string, nodes ...*Node) *CompileError {
	var toks []Token
	for _, n := range nodes {
		if n != nil && n.Token != nil {
			toks = append(toks, *n.Token)
		}
	}
	return &CompileError{Kind: kind, Msg: msg, Tokens: toks, Nodes: nodes}
}
