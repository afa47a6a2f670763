// lexer.go — single-pass scanner for Lyng source text.
//
// The lexer converts UTF-8 source into positioned tokens with no
// backtracking. It classifies identifiers (Unicode letter/digit/underscore
// runs), numeric literals (decimal with '_' separators and exponents, 0x hex),
// string and char literals with escapes, line (//) and block (/* */) comments,
// and the fixed operator/punctuation table including multi-character
// operators (.., ..<, ?., ?:, <=>, ->, =>, &&, ||, compound assignments).
//
// A leading shebang line (#!...) is skipped. Newlines are not tokens; instead
// each token records whether a newline preceded it (Token.NLOK), which the
// parser uses for statement separation. Malformed input produces a *LexError
// with the exact position; the caller aborts compilation of that unit.
package lyng

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer scans one Lyng source string into tokens.
type Lexer struct {
	file   string
	src    string
	start  int // start index of current token
	cur    int // current index
	line   int // 1-based
	col    int // 0-based column within line
	tokens []Token

	nlBefore bool // newline seen since the previous emitted token

	// precise token start position
	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a lexer for src; file names positions in diagnostics.
func NewLexer(file, src string) *Lexer {
	l := &Lexer{file: file, src: src, line: 1}
	l.skipShebang()
	return l
}

// LexError is a fatal lexical diagnostic with an exact source position.
type LexError struct {
	Pos Pos
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexical error at %s: %s", e.Pos, e.Msg)
}

func (l *Lexer) err(msg string) error {
	return &LexError{Pos: Pos{File: l.file, Line: l.line, Col: l.col}, Msg: msg}
}

func (l *Lexer) errAtStart(msg string) error {
	return &LexError{Pos: Pos{File: l.file, Line: l.tokStartLine, Col: l.tokStartCol}, Msg: msg}
}

// Scan tokenizes the entire source and returns tokens (EOF included).
func (l *Lexer) Scan() ([]Token, error) {
	for {
		tok, err := l.scanToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == EOF {
			return l.tokens, nil
		}
	}
}

// ----- low-level cursor -----

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	return l.src[l.cur], true
}

func (l *Lexer) peekN(n int) (byte, bool) {
	idx := l.cur + n
	if idx >= len(l.src) {
		return 0, false
	}
	return l.src[idx], true
}

func (l *Lexer) advance() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return ch, true
}

// advanceRune consumes one full UTF-8 rune.
func (l *Lexer) advanceRune() (rune, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	r, size := utf8.DecodeRuneInString(l.src[l.cur:])
	l.cur += size
	if r == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col += size
	}
	return r, true
}

func (l *Lexer) peekRune() (rune, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.cur:])
	return r, true
}

func (l *Lexer) match(b byte) bool {
	if c, ok := l.peek(); ok && c == b {
		l.advance()
		return true
	}
	return false
}

func (l *Lexer) addToken(tt TokenType, lit any) Token {
	tok := Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Pos:     Pos{File: l.file, Line: l.tokStartLine, Col: l.tokStartCol},
		NLOK:    l.nlBefore,
	}
	l.tokens = append(l.tokens, tok)
	l.start = l.cur
	l.nlBefore = false
	return tok
}

// ----- character classes -----

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ----- whitespace, comments, shebang -----

func (l *Lexer) skipShebang() {
	if strings.HasPrefix(l.src, "#!") {
		for {
			b, ok := l.peek()
			if !ok || b == '\n' {
				break
			}
			l.advance()
		}
		l.start = l.cur
	}
}

// skipTrivia eats whitespace and comments, recording newline crossings.
func (l *Lexer) skipTrivia() error {
	for !l.isAtEnd() {
		ch, _ := l.peek()
		switch ch {
		case ' ', '\r', '\t':
			l.advance()
		case '\n':
			l.nlBefore = true
			l.advance()
		case '/':
			if b, ok := l.peekN(1); ok && b == '/' {
				for {
					c, okc := l.peek()
					if !okc || c == '\n' {
						break
					}
					l.advance()
				}
			} else if b, ok := l.peekN(1); ok && b == '*' {
				if err := l.skipBlockComment(); err != nil {
					return err
				}
			} else {
				l.start = l.cur
				return nil
			}
		default:
			l.start = l.cur
			return nil
		}
	}
	l.start = l.cur
	return nil
}

// skipBlockComment consumes a nestable block comment.
func (l *Lexer) skipBlockComment() error {
	l.advance() // '/'
	l.advance() // '*'
	depth := 1
	for depth > 0 {
		if l.isAtEnd() {
			return l.err("block comment was not terminated")
		}
		ch, _ := l.advance()
		if ch == '/' {
			if b, ok := l.peek(); ok && b == '*' {
				l.advance()
				depth++
			}
		} else if ch == '*' {
			if b, ok := l.peek(); ok && b == '/' {
				l.advance()
				depth--
			}
		} else if ch == '\n' {
			l.nlBefore = true
		}
	}
	return nil
}

// ----- literal scanners -----

// scanEscape decodes one escape sequence after a consumed backslash.
func (l *Lexer) scanEscape() (rune, error) {
	esc, ok := l.advance()
	if !ok {
		return 0, l.err("unfinished escape sequence")
	}
	switch esc {
	case '"':
		return '"', nil
	case '\'':
		return '\'', nil
	case '\\':
		return '\\', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case '0':
		return 0, nil
	case 'u':
		var hex string
		for i := 0; i < 4; i++ {
			b, okh := l.peek()
			if !okh || !isHex(b) {
				return 0, l.err("unicode escape expects 4 hex digits")
			}
			hex += string(b)
			l.advance()
		}
		v, err := strconv.ParseInt(hex, 16, 32)
		if err != nil {
			return 0, l.err("invalid unicode escape")
		}
		return rune(v), nil
	default:
		return 0, l.err(fmt.Sprintf("invalid escape sequence: \\%c", esc))
	}
}

// scanString parses a double-quoted string literal; the opening quote is
// already consumed.
func (l *Lexer) scanString() (string, error) {
	var out []rune
	for {
		if l.isAtEnd() {
			return "", l.errAtStart("string was not terminated")
		}
		r, _ := l.advanceRune()
		switch r {
		case '"':
			return string(out), nil
		case '\n':
			return "", l.errAtStart("string was not terminated")
		case '\\':
			e, err := l.scanEscape()
			if err != nil {
				return "", err
			}
			out = append(out, e)
		default:
			out = append(out, r)
		}
	}
}

// scanChar parses a single-quoted char literal; the opening quote is consumed.
func (l *Lexer) scanChar() (rune, error) {
	r, ok := l.advanceRune()
	if !ok {
		return 0, l.errAtStart("char literal was not terminated")
	}
	if r == '\\' {
		var err error
		r, err = l.scanEscape()
		if err != nil {
			return 0, err
		}
	} else if r == '\'' {
		return 0, l.errAtStart("empty char literal")
	}
	if b, okc := l.peek(); !okc || b != '\'' {
		return 0, l.errAtStart("char literal was not terminated")
	}
	l.advance()
	return r, nil
}

// scanNumber parses an integer or real literal. Supports '_' digit
// separators, decimal exponents, and 0x hex integers. Starts from the first
// digit (not yet consumed).
func (l *Lexer) scanNumber() (TokenType, any, error) {
	// hex?
	if b, _ := l.peek(); b == '0' {
		if x, ok := l.peekN(1); ok && (x == 'x' || x == 'X') {
			l.advance()
			l.advance()
			saw := false
			for {
				h, okh := l.peek()
				if !okh || !(isHex(h) || h == '_') {
					break
				}
				l.advance()
				if h != '_' {
					saw = true
				}
			}
			if !saw {
				return ILLEGAL, nil, l.errAtStart("malformed hex literal")
			}
			lex := strings.ReplaceAll(l.src[l.start+2:l.cur], "_", "")
			v, convErr := strconv.ParseUint(lex, 16, 64)
			if convErr != nil {
				return ILLEGAL, nil, l.errAtStart("hex literal out of range")
			}
			return INT, int64(v), nil
		}
	}

	digits := func() bool {
		saw := false
		for {
			b, ok := l.peek()
			if !ok || !(isDigit(b) || b == '_') {
				break
			}
			l.advance()
			if b != '_' {
				saw = true
			}
		}
		return saw
	}

	digits()

	// fraction: only when '.' is followed by a digit, so ranges like 1..5
	// and member access like 1.hash() stay intact
	sawDot := false
	if b, ok := l.peek(); ok && b == '.' {
		if b2, ok2 := l.peekN(1); ok2 && isDigit(b2) {
			l.advance()
			sawDot = true
			digits()
		}
	}

	// exponent
	sawExp := false
	if b, ok := l.peek(); ok && (b == 'e' || b == 'E') {
		save, saveCol := l.cur, l.col
		l.advance()
		if b2, ok2 := l.peek(); ok2 && (b2 == '+' || b2 == '-') {
			l.advance()
		}
		if b3, ok3 := l.peek(); ok3 && isDigit(b3) {
			sawExp = true
			digits()
		} else {
			l.cur, l.col = save, saveCol
		}
	}

	lex := strings.ReplaceAll(l.src[l.start:l.cur], "_", "")
	if !sawDot && !sawExp {
		v, convErr := strconv.ParseInt(lex, 10, 64)
		if convErr != nil {
			return ILLEGAL, nil, l.errAtStart("integer literal out of range")
		}
		return INT, v, nil
	}
	vf, convErr := strconv.ParseFloat(lex, 64)
	if convErr != nil {
		return ILLEGAL, nil, l.errAtStart("malformed number literal")
	}
	return REAL, vf, nil
}

// scanIdentifier consumes the remaining identifier runes; the first rune was
// consumed by the caller.
func (l *Lexer) scanIdentifier() string {
	for {
		r, ok := l.peekRune()
		if !ok || !isIdentPart(r) {
			break
		}
		l.advanceRune()
	}
	return l.src[l.start:l.cur]
}

// ----- main scanner -----

func (l *Lexer) scanToken() (Token, error) {
	if err := l.skipTrivia(); err != nil {
		return Token{}, err
	}
	l.tokStartLine = l.line
	l.tokStartCol = l.col
	l.start = l.cur

	if l.isAtEnd() {
		return l.addToken(EOF, nil), nil
	}

	ch, _ := l.advance()

	switch ch {
	case '(':
		return l.addToken(LPAREN, nil), nil
	case ')':
		return l.addToken(RPAREN, nil), nil
	case '[':
		return l.addToken(LSQUARE, nil), nil
	case ']':
		return l.addToken(RSQUARE, nil), nil
	case '{':
		return l.addToken(LBRACE, nil), nil
	case '}':
		return l.addToken(RBRACE, nil), nil
	case ';':
		return l.addToken(SEMI, nil), nil
	case ',':
		return l.addToken(COMMA, nil), nil
	case '@':
		return l.addToken(AT, nil), nil
	case ':':
		if l.match(':') {
			return l.addToken(DBLCOLON, nil), nil
		}
		return l.addToken(COLON, nil), nil
	case '+':
		if l.match('=') {
			return l.addToken(PLUSSET, nil), nil
		}
		return l.addToken(PLUS, nil), nil
	case '-':
		if l.match('>') {
			return l.addToken(ARROW, nil), nil
		}
		if l.match('=') {
			return l.addToken(MINUSSET, nil), nil
		}
		return l.addToken(MINUS, nil), nil
	case '*':
		if l.match('=') {
			return l.addToken(STARSET, nil), nil
		}
		return l.addToken(STAR, nil), nil
	case '/':
		if l.match('=') {
			return l.addToken(SLASHSET, nil), nil
		}
		return l.addToken(SLASH, nil), nil
	case '%':
		if l.match('=') {
			return l.addToken(PERCENTSET, nil), nil
		}
		return l.addToken(PERCENT, nil), nil
	case '=':
		if l.match('=') {
			return l.addToken(EQ, nil), nil
		}
		if l.match('>') {
			return l.addToken(FATARROW, nil), nil
		}
		return l.addToken(ASSIGN, nil), nil
	case '!':
		if l.match('=') {
			return l.addToken(NEQ, nil), nil
		}
		return l.addToken(NOT, nil), nil
	case '<':
		if l.match('=') {
			if l.match('>') {
				return l.addToken(SPACESHIP, nil), nil
			}
			return l.addToken(LTE, nil), nil
		}
		return l.addToken(LT, nil), nil
	case '>':
		if l.match('=') {
			return l.addToken(GTE, nil), nil
		}
		return l.addToken(GT, nil), nil
	case '&':
		if l.match('&') {
			return l.addToken(AND, nil), nil
		}
		return Token{}, l.errAtStart("unexpected character: '&' (did you mean '&&'?)")
	case '|':
		if l.match('|') {
			return l.addToken(OR, nil), nil
		}
		return Token{}, l.errAtStart("unexpected character: '|' (did you mean '||'?)")
	case '?':
		if l.match('.') {
			return l.addToken(NULLDOT, nil), nil
		}
		if l.match(':') {
			return l.addToken(NULLCOAL, nil), nil
		}
		return l.addToken(QUESTION, nil), nil
	case '.':
		if l.match('.') {
			if l.match('.') {
				return l.addToken(ELLIPSIS, nil), nil
			}
			if l.match('<') {
				return l.addToken(RANGEX, nil), nil
			}
			return l.addToken(RANGE, nil), nil
		}
		return l.addToken(DOT, nil), nil
	case '"':
		s, err := l.scanString()
		if err != nil {
			return Token{}, err
		}
		return l.addToken(STRING, s), nil
	case '\'':
		r, err := l.scanChar()
		if err != nil {
			return Token{}, err
		}
		return l.addToken(CHAR, r), nil
	}

	if isDigit(ch) {
		l.cur = l.start // rewind; scanNumber restarts at the first digit
		l.col = l.tokStartCol
		tt, lit, err := l.scanNumber()
		if err != nil {
			return Token{}, err
		}
		return l.addToken(tt, lit), nil
	}

	// identifiers and keywords (Unicode-aware; rewind to decode full rune)
	l.cur = l.start
	l.col = l.tokStartCol
	if r, ok := l.peekRune(); ok && isIdentStart(r) {
		l.advanceRune()
		lex := l.scanIdentifier()
		if tt, isKw := keywords[lex]; isKw {
			return l.addToken(tt, nil), nil
		}
		return l.addToken(ID, lex), nil
	}

	r, _ := l.peekRune()
	return Token{}, l.err(fmt.Sprintf("unexpected character: %q", r))
}
