// token.go — lexical tokens for the Lyng language.
package lyng

import "fmt"

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	ILLEGAL

	// Punctuation
	LPAREN   // "("
	RPAREN   // ")"
	LSQUARE  // "["
	RSQUARE  // "]"
	LBRACE   // "{"
	RBRACE   // "}"
	COLON    // ":"
	DBLCOLON // "::"
	SEMI     // ";"
	COMMA    // ","
	DOT      // "."
	ELLIPSIS // "..."
	AT       // "@"

	// Operators
	PLUS       // "+"
	MINUS      // "-"
	STAR       // "*"
	SLASH      // "/"
	PERCENT    // "%"
	ASSIGN     // "="
	PLUSSET    // "+="
	MINUSSET   // "-="
	STARSET    // "*="
	SLASHSET   // "/="
	PERCENTSET // "%="
	EQ         // "=="
	NEQ        // "!="
	LT         // "<"
	LTE        // "<="
	GT         // ">"
	GTE        // ">="
	SPACESHIP  // "<=>"
	AND        // "&&"
	OR         // "||"
	NOT        // "!"
	RANGE      // ".."
	RANGEX     // "..<"
	NULLCOAL   // "?:"
	NULLDOT    // "?."
	QUESTION   // "?"
	ARROW      // "->"
	FATARROW   // "=>"

	// Literals & identifiers
	ID
	STRING
	CHAR
	INT
	REAL

	// Keywords
	KWVAL
	KWVAR
	KWFN
	KWCLASS
	KWENUM
	KWIF
	KWELSE
	KWWHEN
	KWFOR
	KWWHILE
	KWDO
	KWBREAK
	KWCONTINUE
	KWRETURN
	KWTRY
	KWCATCH
	KWFINALLY
	KWTHROW
	KWIMPORT
	KWIN
	KWIS
	KWBY
	KWOVERRIDE
	KWSTATIC
	KWPRIVATE
	KWTRANSIENT
	KWTRUE
	KWFALSE
	KWNULL
	KWVOID
)

// Pos is a source position used throughout compile and runtime diagnostics.
// Line is 1-based, Col is 0-based (rendered 1-based by the snippet printer).
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col+1)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col+1)
}

// Token is a lexical token with an optional parsed literal value.
// Tokens are immutable: produced once by the lexer, consumed by the parser.
type Token struct {
	Type    TokenType
	Lexeme  string // raw text slice
	Literal any    // parsed value for literals (int64, float64, string, rune)
	Pos     Pos
	NLOK    bool // a newline appeared between the previous token and this one
}

// keywords map
var keywords = map[string]TokenType{
	"val":       KWVAL,
	"var":       KWVAR,
	"fn":        KWFN,
	"class":     KWCLASS,
	"enum":      KWENUM,
	"if":        KWIF,
	"else":      KWELSE,
	"when":      KWWHEN,
	"for":       KWFOR,
	"while":     KWWHILE,
	"do":        KWDO,
	"break":     KWBREAK,
	"continue":  KWCONTINUE,
	"return":    KWRETURN,
	"try":       KWTRY,
	"catch":     KWCATCH,
	"finally":   KWFINALLY,
	"throw":     KWTHROW,
	"import":    KWIMPORT,
	"in":        KWIN,
	"is":        KWIS,
	"by":        KWBY,
	"override":  KWOVERRIDE,
	"static":    KWSTATIC,
	"private":   KWPRIVATE,
	"transient": KWTRANSIENT,
	"true":      KWTRUE,
	"false":     KWFALSE,
	"null":      KWNULL,
	"void":      KWVOID,
}

var tokenNames = map[TokenType]string{
	EOF:        "end of file",
	ILLEGAL:    "illegal token",
	LPAREN:     "'('",
	RPAREN:     "')'",
	LSQUARE:    "'['",
	RSQUARE:    "']'",
	LBRACE:     "'{'",
	RBRACE:     "'}'",
	COLON:      "':'",
	DBLCOLON:   "'::'",
	SEMI:       "';'",
	COMMA:      "','",
	DOT:        "'.'",
	ELLIPSIS:   "'...'",
	AT:         "'@'",
	PLUS:       "'+'",
	MINUS:      "'-'",
	STAR:       "'*'",
	SLASH:      "'/'",
	PERCENT:    "'%'",
	ASSIGN:     "'='",
	PLUSSET:    "'+='",
	MINUSSET:   "'-='",
	STARSET:    "'*='",
	SLASHSET:   "'/='",
	PERCENTSET: "'%='",
	EQ:         "'=='",
	NEQ:        "'!='",
	LT:         "'<'",
	LTE:        "'<='",
	GT:         "'>'",
	GTE:        "'>='",
	SPACESHIP:  "'<=>'",
	AND:        "'&&'",
	OR:         "'||'",
	NOT:        "'!'",
	RANGE:      "'..'",
	RANGEX:     "'..<'",
	NULLCOAL:   "'?:'",
	NULLDOT:    "'?.'",
	QUESTION:   "'?'",
	ARROW:      "'->'",
	FATARROW:   "'=>'",
	ID:         "identifier",
	STRING:     "string literal",
	CHAR:       "char literal",
	INT:        "integer literal",
	REAL:       "number literal",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	for k, v := range keywords {
		if v == t {
			return "'" + k + "'"
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}
