package webbs

import (
	"fmt"

	"github.com/mx-scissortail/WebBS/ascii"
)

// astToken classifies a span of printed text for astPrinter's color
// theme, mirroring the teacher's AstFormatToken (grammar_ast_printer.go)
// generalized from grammar constructs to this language's node kinds.
type astToken int

const (
	tokNone astToken = iota
	tokSpan
	tokLiteral
	tokOperator
	tokOperand
)

// PrintAST renders a parsed/resolved tree as a box-drawing diagram,
// grounded on the teacher's ppAstNode/grammarPrinter pair
// (grammar_ast_printer.go) — generalized from a per-NodeType Visit
// method set to a single switch over this grammar's uniform Node.Kind,
// since this AST (ast.go) carries one node struct instead of the
// teacher's per-construct types.
func PrintAST(n *Node) string {
	theme := map[astToken]string{
		tokNone:     ascii.Reset,
		tokSpan:     ascii.Orange,
		tokLiteral:  ascii.Green,
		tokOperator: ascii.Purple,
		tokOperand:  ascii.Pink,
	}
	pp := newTreePrinter(func(input string, token astToken) string {
		return theme[token] + input + theme[tokNone]
	})
	ap := &astPrinter{pp}
	ap.printNode(n)
	return ap.output.String()
}

type astPrinter struct {
	*treePrinter[astToken]
}

func (ap *astPrinter) writeOperator(name string) {
	ap.write(ap.format(name, tokOperator))
}

func (ap *astPrinter) writeOperand(text string) {
	ap.write(" " + ap.format(text, tokOperand))
}

func (ap *astPrinter) writeLiteral(text string) {
	ap.write(" " + ap.format(escapeLiteral(text), tokLiteral))
}

func (ap *astPrinter) printChildren(children []*Node) {
	for i, c := range children {
		last := i == len(children)-1
		if last {
			ap.pwrite("└── ")
			ap.indent("    ")
		} else {
			ap.pwrite("├── ")
			ap.indent("│   ")
		}
		ap.printNode(c)
		ap.unindent()
		if !last {
			ap.write("\n")
		}
	}
}

func (ap *astPrinter) printNode(n *Node) {
	switch n.Kind {
	case KRoot:
		ap.writeOperator("Root")
	case KBlock:
		ap.writeOperator("Block")
	case KDefinition:
		ap.writeOperator("Definition")
		if n.Meta.Def != nil {
			ap.writeOperand(n.Meta.Def.Name)
		}
	case KDeclaration:
		ap.writeOperator("Declaration")
		if n.Meta.Def != nil {
			ap.writeOperand(n.Meta.Def.Name)
		}
	case KFunctionLiteral:
		ap.writeOperator("Function")
	case KExport:
		ap.writeOperator("Export")
		ap.writeOperand(n.Meta.ExportTarget)
	case KIntLit:
		ap.writeOperator("IntLit")
		ap.writeLiteral(n.text())
	case KFloatLit:
		ap.writeOperator("FloatLit")
		ap.writeLiteral(n.text())
	case KStringLit:
		ap.writeOperator("StringLit")
		ap.writeLiteral(n.text())
	case KReference:
		ap.writeOperator("Reference")
		ap.writeOperand(n.text())
	case KCall:
		ap.writeOperator("Call")
		ap.writeOperand(n.text())
	case KMemAccess:
		ap.writeOperator("MemAccess")
		ap.writeOperand(n.text())
	case KAssign:
		ap.writeOperator("Assign")
	case KBinaryOp:
		ap.writeOperator("BinaryOp")
		ap.writeOperand(n.text())
	case KUnaryOp:
		ap.writeOperator("UnaryOp")
		ap.writeOperand(n.text())
	case KUnaryNegate:
		ap.writeOperator("Negate")
	case KSuffixOp:
		ap.writeOperator("SuffixOp")
		ap.writeOperand(n.text())
	case KAllocatePages:
		ap.writeOperator("AllocatePages")
	case KIf:
		ap.writeOperator("If")
	case KLoop:
		ap.writeOperator("Loop")
	case KBreak:
		ap.writeOperator("Break")
	case KContinue:
		ap.writeOperator("Continue")
	case KYield:
		ap.writeOperator("Yield")
	case KReturn:
		ap.writeOperator("Return")
	default:
		ap.writeOperator(fmt.Sprintf("Kind(%d)", int(n.Kind)))
	}

	if n.RunType != TVoid || n.Kind == KIf || n.Kind == KLoop {
		ap.write(" " + ap.format(":"+n.RunType.String(), tokSpan))
	}

	if len(n.Children) == 0 {
		ap.write("\n")
		return
	}
	ap.write("\n")
	ap.printChildren(n.Children)
}
