// errors.go — user-facing error wrapping and caret-snippet rendering.
//
// Turns lexer/parser/runtime diagnostics into readable snippets with a caret
// pointing at the offending column:
//
//	parse error in f.lyng at 3:12: expected ')'
//
//	   2 | val x = (1 + 2
//	   3 |              )
//	     |             ^
//	   4 | x
//
// The snippet shows up to one line of context before and after. This
// utility is independent of the interpreter and can be used anywhere lex,
// parse or execution errors need helpful context.
package lyng

import (
	"fmt"
	"strings"
)

// WrapErrorWithSource augments a *LexError, *ParseError or *ExecError with a
// caret-annotated snippet of src. Other errors are returned unchanged.
func WrapErrorWithSource(err error, src string) error {
	switch e := err.(type) {
	case *LexError:
		return fmt.Errorf("%s", snippet(src, "lexical error", e.Pos, e.Msg))
	case *ParseError:
		return fmt.Errorf("%s", snippet(src, "parse error", e.Pos, e.Msg))
	case *ExecError:
		return fmt.Errorf("%s", snippet(src, "execution error", e.Pos, e.Message()))
	default:
		return err
	}
}

// snippet builds the multi-line caret rendering. Line is 1-based, Col
// 0-based; both are clamped so damaged positions never break rendering.
func snippet(src, header string, pos Pos, msg string) string {
	lines := strings.Split(src, "\n")
	line, col := pos.Line, pos.Col+1
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	if pos.File != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, pos.File, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
