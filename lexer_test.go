package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexBasicTokens(t *testing.T) {
	toks := Lex("a + 1")
	require.Len(t, toks, 6) // ident, ws, plus, ws, int, eof
	assert.Equal(t, []TokenKind{TkIdent, TkWhitespace, TkPlus, TkWhitespace, TkIntLit, TkEOF}, kinds(toks))
}

func TestLexKeywordReclassification(t *testing.T) {
	toks := Lex("loop")
	assert.Equal(t, TkLoop, toks[0].Kind)
}

func TestLexIdentifierBeginningWithKeywordIsNotSplit(t *testing.T) {
	toks := Lex("loopy")
	assert.Equal(t, TkIdent, toks[0].Kind)
	assert.Equal(t, "loopy", toks[0].Text)
}

func TestLexCallAndMemIdentReclassification(t *testing.T) {
	toks := Lex("foo(bar[1])")
	assert.Equal(t, TkCallIdent, toks[0].Kind)

	var barTok Token
	for _, tk := range toks {
		if tk.Text == "bar" {
			barTok = tk
		}
	}
	assert.Equal(t, TkMemIdent, barTok.Kind)
}

func TestLexIntAndFloatWidthSuffixes(t *testing.T) {
	toks := Lex("42x64 3.5f64")
	assert.Equal(t, TkIntLit, toks[0].Kind)
	assert.Equal(t, "42x64", toks[0].Text)
	assert.Equal(t, TkFloatLit, toks[2].Kind)
	assert.Equal(t, "3.5f64", toks[2].Text)
}

func TestLexStringLiteralWithEscapes(t *testing.T) {
	toks := Lex(`"a\"b"`)
	assert.Equal(t, TkStringLit, toks[0].Kind)
	assert.Equal(t, `"a\"b"`, toks[0].Text)
}

func TestLexBadTokenFallsThroughToCatchAll(t *testing.T) {
	toks := Lex("@")
	assert.Equal(t, TkBad, toks[0].Kind)
}

func TestLexTerminatorsAndComments(t *testing.T) {
	toks := Lex("a // comment\nb")
	require.True(t, len(toks) >= 5)
	var sawComment, sawNewline bool
	for _, tk := range toks {
		if tk.Kind == TkComment {
			sawComment = true
		}
		if tk.Kind == TkNewline {
			sawNewline = true
		}
	}
	assert.True(t, sawComment)
	assert.True(t, sawNewline)
}

func TestLexAlwaysTerminatesWithEOF(t *testing.T) {
	toks := Lex("x")
	assert.Equal(t, TkEOF, toks[len(toks)-1].Kind)
}
