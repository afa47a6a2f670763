package lyng

import (
	"strings"
	"testing"
)

func lex(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := NewLexer("<t>", src).Scan()
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	return toks
}

func lexErr(t *testing.T, src, sub string) {
	t.Helper()
	_, err := NewLexer("<t>", src).Scan()
	if err == nil {
		t.Fatalf("lex %q: expected error containing %q, got none", src, sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("lex %q: error %q does not contain %q", src, err.Error(), sub)
	}
}

func wantTypes(t *testing.T, src string, types ...TokenType) []Token {
	t.Helper()
	toks := lex(t, src)
	if len(toks) != len(types)+1 { // trailing EOF
		t.Fatalf("lex %q: got %d tokens, want %d", src, len(toks), len(types)+1)
	}
	for i, tt := range types {
		if toks[i].Type != tt {
			t.Fatalf("lex %q: token %d is %s, want %s", src, i, toks[i].Type, tt)
		}
	}
	if toks[len(toks)-1].Type != EOF {
		t.Fatalf("lex %q: missing EOF", src)
	}
	return toks
}

func TestLexOperators(t *testing.T) {
	wantTypes(t, "+ - * / % = == != < <= > >= && || !",
		PLUS, MINUS, STAR, SLASH, PERCENT, ASSIGN, EQ, NEQ,
		LT, LTE, GT, GTE, AND, OR, NOT)
	wantTypes(t, "+= -= *= /= %=", PLUSSET, MINUSSET, STARSET, SLASHSET, PERCENTSET)
	wantTypes(t, "?: ?. ? :: : -> =>", NULLCOAL, NULLDOT, QUESTION, DBLCOLON, COLON, ARROW, FATARROW)
}

func TestLexSpaceshipVsComparisons(t *testing.T) {
	wantTypes(t, "a <=> b", ID, SPACESHIP, ID)
	wantTypes(t, "a <= > b", ID, LTE, GT, ID)
}

func TestLexRangesVsFractions(t *testing.T) {
	// '..' only forms a range when the dot is not followed by a digit
	toks := wantTypes(t, "1..5", INT, RANGE, INT)
	if toks[0].Literal.(int64) != 1 || toks[2].Literal.(int64) != 5 {
		t.Fatalf("range bounds wrong: %v %v", toks[0].Literal, toks[2].Literal)
	}
	wantTypes(t, "1..<5", INT, RANGEX, INT)
	toks = wantTypes(t, "1.5", REAL)
	if toks[0].Literal.(float64) != 1.5 {
		t.Fatalf("got %v, want 1.5", toks[0].Literal)
	}
	// member access on an integer literal
	wantTypes(t, "1.hash()", INT, DOT, ID, LPAREN, RPAREN)
}

func TestLexNumbers(t *testing.T) {
	cases := []struct {
		src  string
		want any
	}{
		{"0", int64(0)},
		{"1_000_000", int64(1000000)},
		{"0xFF", int64(255)},
		{"0x_dead_beef", int64(0xdeadbeef)},
		{"3.25", 3.25},
		{"1e3", 1000.0},
		{"2.5e-2", 0.025},
		{"1_0.2_5", 10.25},
	}
	for _, c := range cases {
		toks := lex(t, c.src)
		if toks[0].Literal != c.want {
			t.Errorf("lex %q: got %v (%T), want %v (%T)",
				c.src, toks[0].Literal, toks[0].Literal, c.want, c.want)
		}
	}
	lexErr(t, "0x", "malformed hex literal")
	lexErr(t, "99999999999999999999", "out of range")
}

func TestLexExponentBacktrack(t *testing.T) {
	// 'e' not followed by digits is an identifier, not an exponent
	wantTypes(t, "2e", INT, ID)
}

func TestLexStrings(t *testing.T) {
	toks := lex(t, `"a\tb\nc\\\""`)
	if got := toks[0].Literal.(string); got != "a\tb\nc\\\"" {
		t.Fatalf("escapes wrong: %q", got)
	}
	toks = lex(t, `"Ж"`)
	if got := toks[0].Literal.(string); got != "Ж" {
		t.Fatalf("unicode escape wrong: %q", got)
	}
	lexErr(t, `"unterminated`, "not terminated")
	lexErr(t, "\"split\nline\"", "not terminated")
	lexErr(t, `"\q"`, "invalid escape")
	lexErr(t, `"\u12G4"`, "4 hex digits")
}

func TestLexCharLiterals(t *testing.T) {
	toks := lex(t, `'x'`)
	if toks[0].Type != CHAR || toks[0].Literal.(rune) != 'x' {
		t.Fatalf("got %v", toks[0])
	}
	toks = lex(t, `'\n'`)
	if toks[0].Literal.(rune) != '\n' {
		t.Fatalf("got %q", toks[0].Literal)
	}
	toks = lex(t, `'λ'`)
	if toks[0].Literal.(rune) != 'λ' {
		t.Fatalf("got %q", toks[0].Literal)
	}
	lexErr(t, `''`, "empty char literal")
	lexErr(t, `'ab'`, "not terminated")
}

func TestLexIdentifiersAndKeywords(t *testing.T) {
	toks := wantTypes(t, "val x = λx", KWVAL, ID, ASSIGN, ID)
	if toks[1].Literal.(string) != "x" || toks[3].Literal.(string) != "λx" {
		t.Fatalf("identifier literals wrong: %v", toks)
	}
	wantTypes(t, "class fn enum import in is by", KWCLASS, KWFN, KWENUM, KWIMPORT, KWIN, KWIS, KWBY)
	wantTypes(t, "override static private transient", KWOVERRIDE, KWSTATIC, KWPRIVATE, KWTRANSIENT)
}

func TestLexNewlineFlag(t *testing.T) {
	toks := lex(t, "a\nb c")
	if !toks[1].NLOK {
		t.Fatal("token after newline must carry NLOK")
	}
	if toks[2].NLOK {
		t.Fatal("token after space must not carry NLOK")
	}
	// a comment does not hide the newline
	toks = lex(t, "a // trailing\nb")
	if !toks[1].NLOK {
		t.Fatal("newline after line comment must survive")
	}
}

func TestLexComments(t *testing.T) {
	wantTypes(t, "1 // comment\n+ 2", INT, PLUS, INT)
	wantTypes(t, "1 /* inline */ + 2", INT, PLUS, INT)
	// block comments nest
	wantTypes(t, "1 /* outer /* inner */ still out */ + 2", INT, PLUS, INT)
	lexErr(t, "1 /* never closed", "comment")
}

func TestLexShebang(t *testing.T) {
	wantTypes(t, "#!/usr/bin/env lyng\n42", INT)
}

func TestLexPositions(t *testing.T) {
	toks := lex(t, "a\n  b")
	if toks[0].Pos.Line != 1 || toks[0].Pos.Col != 0 {
		t.Fatalf("a at %v", toks[0].Pos)
	}
	if toks[1].Pos.Line != 2 || toks[1].Pos.Col != 2 {
		t.Fatalf("b at %v", toks[1].Pos)
	}
}

func TestLexIllegalCharacter(t *testing.T) {
	_, err := NewLexer("<t>", "a $ b").Scan()
	if err == nil {
		t.Fatal("expected error for stray '$'")
	}
}

func TestLexEllipsis(t *testing.T) {
	wantTypes(t, "f(xs...)", ID, LPAREN, ID, ELLIPSIS, RPAREN)
}
