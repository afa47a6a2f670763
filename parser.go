// parser.go — recursive-descent parser for Lyng.
//
// The parser consumes the token stream from lexer.go and produces the
// executable statement tree (ast.go). Expressions use precedence climbing;
// statements are newline-aware: a statement ends at ';', at a newline
// boundary (Token.NLOK), or before '}' / EOF. A binary or postfix operator
// that starts a new line terminates the expression, so
//
//	b = b + a
//	b
//
// parses as two statements.
//
// Declarations retain parameter lists, default-value expressions and
// annotations (transient markers and the like). Declared type annotations
// after ':' are recorded as metadata only — Lyng is dynamically typed and
// nothing is enforced at compile time. On a syntax error compilation stops
// with a *ParseError tied to the offending position; partial trees are
// discarded. The lenient entry point for tooling lives in lenient.go.
package lyng

import (
	"fmt"
	"strings"
)

// IsIncomplete reports whether err is a syntax error caused by the source
// ending mid-construct, i.e. further input lines could still complete it.
// Interactive frontends use it to decide between a continuation prompt and
// reporting the error.
func IsIncomplete(err error) bool {
	pe, ok := err.(*ParseError)
	return ok && strings.Contains(pe.Msg, "end of file")
}

// ParseError is a fatal syntax diagnostic with an exact source position.
type ParseError struct {
	Pos Pos
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// Compile lexes and parses one source unit into an executable tree.
// The returned error is a *LexError or *ParseError carrying the exact
// position; no recovery is attempted.
func Compile(name, src string) (*Program, error) {
	toks, err := NewLexer(name, src).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, file: name}
	body, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Src: src, Body: body}, nil
}

// parser holds the cursor over the token stream. Syntax failures unwind via
// panic(*ParseError) and are recovered at the entry points.
type parser struct {
	toks []Token
	cur  int
	file string
}

func (p *parser) parseProgram() (body *BlockNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			body, err = nil, pe
		}
	}()
	stmts := p.statements(EOF)
	p.expect(EOF, "expected end of file")
	return &BlockNode{nodeBase: nodeBase{pos: p.posAt(0)}, Stmts: stmts, Scoped: false}, nil
}

// ----- cursor helpers -----

func (p *parser) peek() Token  { return p.toks[p.cur] }
func (p *parser) peekN(n int) Token {
	if p.cur+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.cur+n]
}
func (p *parser) prev() Token { return p.toks[p.cur-1] }

func (p *parser) posAt(idx int) Pos {
	if idx >= len(p.toks) {
		idx = len(p.toks) - 1
	}
	return p.toks[idx].Pos
}

func (p *parser) advance() Token {
	t := p.toks[p.cur]
	if t.Type != EOF {
		p.cur++
	}
	return t
}

func (p *parser) check(tt TokenType) bool { return p.peek().Type == tt }

func (p *parser) match(tts ...TokenType) bool {
	for _, tt := range tts {
		if p.check(tt) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *parser) expect(tt TokenType, msg string) Token {
	if p.check(tt) {
		return p.advance()
	}
	p.fail(p.peek().Pos, "%s (found %s)", msg, p.peek().Type)
	return Token{}
}

func (p *parser) fail(pos Pos, format string, args ...any) {
	panic(&ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// atStmtBoundary reports whether the current token may start a new statement
// (preceded by ';', a newline, '}' or EOF).
func (p *parser) atStmtBoundary() bool {
	t := p.peek()
	return t.Type == EOF || t.Type == RBRACE || t.Type == SEMI || t.NLOK
}

func (p *parser) endStatement() {
	if p.match(SEMI) {
		return
	}
	t := p.peek()
	if t.Type == EOF || t.Type == RBRACE || t.NLOK {
		return
	}
	p.fail(t.Pos, "expected newline or ';' before %s", t.Type)
}

// ----- statements -----

func (p *parser) statements(end TokenType) []Node {
	var out []Node
	for !p.check(end) && !p.check(EOF) {
		if p.match(SEMI) {
			continue
		}
		out = append(out, p.statement())
		if !p.check(end) {
			p.endStatement()
		}
	}
	return out
}

func (p *parser) statement() Node {
	switch p.peek().Type {
	case KWVAL, KWVAR:
		return p.varDecl(p.modifiers())
	case KWTRANSIENT, KWOVERRIDE, KWSTATIC, KWPRIVATE, AT:
		p.fail(p.peek().Pos, "modifier %s is only allowed inside a class body", p.peek().Type)
	case KWFN:
		// declaration only when a name follows; `fn (x) {...}` is a value
		if p.peekN(1).Type == ID {
			return p.fnDecl(true)
		}
	case KWCLASS:
		return p.classDecl()
	case KWENUM:
		return p.enumDecl()
	case KWIMPORT:
		return p.importStmt()
	}
	return p.expression()
}

// modifiers collects member/declaration modifiers, including '@name'
// annotation syntax (only '@transient' is meaningful; the rest are parsed
// and dropped).
type declMods struct {
	override, static, private, transient bool
}

func (p *parser) modifiers() declMods {
	var m declMods
	for {
		switch p.peek().Type {
		case KWOVERRIDE:
			p.advance()
			m.override = true
		case KWSTATIC:
			p.advance()
			m.static = true
		case KWPRIVATE:
			p.advance()
			m.private = true
		case KWTRANSIENT:
			p.advance()
			m.transient = true
		case AT:
			p.advance()
			name := p.expect(ID, "expected annotation name after '@'")
			if name.Literal.(string) == "transient" {
				m.transient = true
			}
		default:
			return m
		}
	}
}

func (p *parser) varDecl(mods declMods) Node {
	tok := p.advance() // val | var
	mutable := tok.Type == KWVAR
	name := p.expect(ID, "expected name after declaration keyword")
	typeAnn := p.optTypeAnn()

	n := &VarDeclNode{
		nodeBase: nodeBase{pos: tok.Pos},
		Name:     name.Literal.(string),
		Mutable:  mutable,
		TypeAnn:  typeAnn,
	}
	switch {
	case p.match(KWBY):
		n.Deleg = p.expression()
	case p.match(ASSIGN):
		n.Init = p.expression()
	default:
		if !mutable {
			p.fail(tok.Pos, "val declaration requires an initializer")
		}
	}
	_ = mods // statement-level modifiers are rejected earlier
	return n
}

// optTypeAnn consumes ': TypeName' and returns the recorded name.
func (p *parser) optTypeAnn() string {
	if !p.match(COLON) {
		return ""
	}
	name := p.expect(ID, "expected type name after ':'")
	ann := name.Literal.(string)
	// allow dotted type names (module.Type)
	for p.check(DOT) && p.peekN(1).Type == ID {
		p.advance()
		ann += "." + p.advance().Literal.(string)
	}
	if p.match(QUESTION) {
		ann += "?"
	}
	return ann
}

func (p *parser) fnDecl(named bool) Node {
	tok := p.expect(KWFN, "expected 'fn'")
	decl := &FnDecl{Where: tok.Pos}
	if named {
		decl.Name = p.expect(ID, "expected function name").Literal.(string)
	}
	p.expect(LPAREN, "expected '(' after function name")
	decl.Params = p.paramList(false)
	p.expect(RPAREN, "expected ')' after parameters")
	if tn := p.optTypeAnn(); tn != "" {
		_ = tn // declared return type is metadata only
	}
	decl.Body = p.fnBody()
	return &FnNode{nodeBase: nodeBase{pos: tok.Pos}, Decl: decl, Declare: named}
}

// fnBody is a block or '=' expression.
func (p *parser) fnBody() Node {
	if p.match(ASSIGN) {
		return p.expression()
	}
	p.expect(LBRACE, "expected '{' or '=' to start function body")
	return p.blockAfterLBrace(p.prev().Pos)
}

// paramList parses a parameter list. In constructor headers (ctor=true)
// parameters may declare fields with a val/var prefix.
func (p *parser) paramList(ctor bool) []Param {
	var out []Param
	sawVariadic := false
	for !p.check(RPAREN) {
		var prm Param
		if ctor {
			if p.match(KWVAL) {
				prm.Field = FieldVal
			} else if p.match(KWVAR) {
				prm.Field = FieldVar
			}
		}
		name := p.expect(ID, "expected parameter name")
		prm.Name = name.Literal.(string)
		if p.match(ELLIPSIS) {
			if sawVariadic {
				p.fail(name.Pos, "only one variadic parameter is allowed")
			}
			prm.Variadic = true
			sawVariadic = true
		}
		prm.TypeAnn = p.optTypeAnn()
		if p.match(ASSIGN) {
			prm.Default = p.expression()
		}
		out = append(out, prm)
		if !p.match(COMMA) {
			break
		}
	}
	return out
}

func (p *parser) classDecl() Node {
	tok := p.expect(KWCLASS, "expected 'class'")
	name := p.expect(ID, "expected class name")
	decl := &ClassDecl{Name: name.Literal.(string), Where: tok.Pos}

	if p.match(LPAREN) {
		decl.CtorParams = p.paramList(true)
		p.expect(RPAREN, "expected ')' after constructor parameters")
	}
	if p.match(COLON) {
		for {
			base := p.expect(ID, "expected base class name")
			decl.BaseNames = append(decl.BaseNames, base.Literal.(string))
			if !p.match(COMMA) {
				break
			}
		}
	}
	if p.match(LBRACE) {
		for !p.check(RBRACE) && !p.check(EOF) {
			if p.match(SEMI) {
				continue
			}
			decl.Members = append(decl.Members, p.memberDecl())
		}
		p.expect(RBRACE, "expected '}' to close class body")
	}
	return &ClassNode{nodeBase: nodeBase{pos: tok.Pos}, Decl: decl}
}

func (p *parser) memberDecl() MemberDecl {
	mods := p.modifiers()
	at := p.peek()
	switch at.Type {
	case KWFN:
		fnNode := p.fnDecl(true).(*FnNode)
		return MemberDecl{
			Kind: MemberMethod, Name: fnNode.Decl.Name, Fn: fnNode.Decl,
			Override: mods.override, Static: mods.static, Private: mods.private,
			Where: at.Pos,
		}
	case KWVAL, KWVAR:
		p.advance()
		mutable := at.Type == KWVAR
		name := p.expect(ID, "expected member name")
		md := MemberDecl{
			Name: name.Literal.(string), Mutable: mutable,
			Override: mods.override, Static: mods.static, Private: mods.private,
			Transient: mods.transient, Where: at.Pos,
		}
		switch {
		case p.match(KWBY):
			md.Kind = MemberDelegated
			md.Deleg = p.expression()
		case p.check(ID) && p.peek().Literal.(string) == "get" && !p.peek().NLOK:
			p.advance()
			md.Kind = MemberProperty
			md.Getter = p.accessorBody(nil)
			if p.check(ID) && p.peek().Literal.(string) == "set" {
				if !mutable {
					p.fail(p.peek().Pos, "val property cannot declare a setter")
				}
				p.advance()
				p.expect(LPAREN, "expected '(' after 'set'")
				prm := p.expect(ID, "expected setter parameter name")
				p.expect(RPAREN, "expected ')' after setter parameter")
				md.Setter = p.accessorBody([]Param{{Name: prm.Literal.(string)}})
			}
		default:
			md.Kind = MemberField
			p.optTypeAnn()
			if p.match(ASSIGN) {
				md.Init = p.expression()
			}
		}
		p.endStatement()
		return md
	}
	p.fail(at.Pos, "expected member declaration, found %s", at.Type)
	return MemberDecl{}
}

func (p *parser) accessorBody(params []Param) *FnDecl {
	pos := p.peek().Pos
	return &FnDecl{Params: params, Body: p.fnBody(), Where: pos}
}

func (p *parser) enumDecl() Node {
	tok := p.expect(KWENUM, "expected 'enum'")
	name := p.expect(ID, "expected enum name")
	p.expect(LBRACE, "expected '{' after enum name")
	var entries []string
	for !p.check(RBRACE) && !p.check(EOF) {
		e := p.expect(ID, "expected enum entry name")
		entries = append(entries, e.Literal.(string))
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RBRACE, "expected '}' to close enum body")
	return &EnumNode{nodeBase: nodeBase{pos: tok.Pos}, Name: name.Literal.(string), Entries: entries}
}

func (p *parser) importStmt() Node {
	tok := p.expect(KWIMPORT, "expected 'import'")
	name := p.expect(ID, "expected package name").Literal.(string)
	for p.check(DOT) && !p.peek().NLOK {
		p.advance()
		name += "." + p.expect(ID, "expected name after '.'").Literal.(string)
	}
	n := &ImportNode{nodeBase: nodeBase{pos: tok.Pos}, Module: name}
	if p.check(LBRACE) && !p.peek().NLOK {
		p.advance()
		for !p.check(RBRACE) && !p.check(EOF) {
			sym := p.expect(ID, "expected imported symbol name")
			n.Symbols = append(n.Symbols, sym.Literal.(string))
			if !p.match(COMMA) {
				break
			}
		}
		p.expect(RBRACE, "expected '}' to close import list")
	}
	return n
}

// ----- expressions -----

func (p *parser) expression() Node { return p.parseAssign() }

// opContinues gates binary/postfix continuation on newline boundaries:
// an operator that starts a new line ends the expression.
func (p *parser) opContinues(tts ...TokenType) bool {
	t := p.peek()
	if t.NLOK {
		return false
	}
	for _, tt := range tts {
		if t.Type == tt {
			return true
		}
	}
	return false
}

func (p *parser) parseAssign() Node {
	left := p.parseElvis()
	if p.opContinues(ASSIGN, PLUSSET, MINUSSET, STARSET, SLASHSET, PERCENTSET) {
		op := p.advance()
		switch left.(type) {
		case *IdentNode, *MemberNode, *IndexNode:
		default:
			p.fail(op.Pos, "invalid assignment target")
		}
		val := p.parseAssign()
		return &AssignNode{nodeBase: nodeBase{pos: op.Pos}, Target: left, Op: op.Type, Value: val}
	}
	return left
}

func (p *parser) parseElvis() Node {
	left := p.parseOr()
	for p.opContinues(NULLCOAL) {
		op := p.advance()
		right := p.parseOr()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: NULLCOAL, L: left, R: right}
	}
	return left
}

func (p *parser) parseOr() Node {
	left := p.parseAnd()
	for p.opContinues(OR) {
		op := p.advance()
		right := p.parseAnd()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: OR, L: left, R: right}
	}
	return left
}

func (p *parser) parseAnd() Node {
	left := p.parseEquality()
	for p.opContinues(AND) {
		op := p.advance()
		right := p.parseEquality()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: AND, L: left, R: right}
	}
	return left
}

func (p *parser) parseEquality() Node {
	left := p.parseComparison()
	for p.opContinues(EQ, NEQ) {
		op := p.advance()
		right := p.parseComparison()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, L: left, R: right}
	}
	return left
}

func (p *parser) parseComparison() Node {
	left := p.parseRange()
	for {
		switch {
		case p.opContinues(LT, LTE, GT, GTE, SPACESHIP, KWIN):
			op := p.advance()
			right := p.parseRange()
			left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, L: left, R: right}
		case p.opContinues(KWIS):
			op := p.advance()
			cls := p.expect(ID, "expected class name after 'is'")
			left = &IsNode{nodeBase: nodeBase{pos: op.Pos}, X: left, ClassName: cls.Literal.(string)}
		default:
			return left
		}
	}
}

func (p *parser) parseRange() Node {
	left := p.parseAdditive()
	if p.opContinues(RANGE, RANGEX) {
		op := p.advance()
		right := p.parseAdditive()
		return &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, L: left, R: right}
	}
	return left
}

func (p *parser) parseAdditive() Node {
	left := p.parseMultiplicative()
	for p.opContinues(PLUS, MINUS) {
		op := p.advance()
		right := p.parseMultiplicative()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, L: left, R: right}
	}
	return left
}

func (p *parser) parseMultiplicative() Node {
	left := p.parseUnary()
	for p.opContinues(STAR, SLASH, PERCENT) {
		op := p.advance()
		right := p.parseUnary()
		left = &BinNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, L: left, R: right}
	}
	return left
}

func (p *parser) parseUnary() Node {
	if p.check(MINUS) || p.check(NOT) {
		op := p.advance()
		x := p.parseUnary()
		return &UnNode{nodeBase: nodeBase{pos: op.Pos}, Op: op.Type, X: x}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Node {
	x := p.parsePrimary()
	for {
		t := p.peek()
		if t.NLOK {
			return x
		}
		switch t.Type {
		case LPAREN:
			p.advance()
			args := p.callArgs()
			p.expect(RPAREN, "expected ')' to close argument list")
			x = &CallNode{nodeBase: nodeBase{pos: t.Pos}, Callee: x, Args: args}
		case LSQUARE:
			p.advance()
			idx := p.expression()
			p.expect(RSQUARE, "expected ']' to close index")
			x = &IndexNode{nodeBase: nodeBase{pos: t.Pos}, Obj: x, Index: idx}
		case DOT, NULLDOT, DBLCOLON:
			p.advance()
			name := p.expect(ID, "expected member name")
			x = &MemberNode{
				nodeBase: nodeBase{pos: t.Pos},
				Obj:      x,
				Name:     name.Literal.(string),
				NullSafe: t.Type == NULLDOT,
				Static:   t.Type == DBLCOLON,
			}
		default:
			return x
		}
	}
}

func (p *parser) callArgs() []CallArg {
	var out []CallArg
	for !p.check(RPAREN) {
		var a CallArg
		// named argument: ID '=' not followed by '=' (ID = expr)
		if p.check(ID) && p.peekN(1).Type == ASSIGN {
			a.Name = p.advance().Literal.(string)
			p.advance() // '='
		}
		a.Value = p.expression()
		if p.match(ELLIPSIS) {
			a.Spread = true
		}
		out = append(out, a)
		if !p.match(COMMA) {
			break
		}
	}
	return out
}

func (p *parser) parsePrimary() Node {
	t := p.peek()
	switch t.Type {
	case INT:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: IntOf(t.Literal.(int64))}
	case REAL:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: RealOf(t.Literal.(float64))}
	case STRING:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: StrOf(t.Literal.(string))}
	case CHAR:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: CharOf(t.Literal.(rune))}
	case KWTRUE:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: BoolOf(true)}
	case KWFALSE:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: BoolOf(false)}
	case KWNULL:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: Null}
	case KWVOID:
		p.advance()
		return &LitNode{nodeBase: nodeBase{pos: t.Pos}, Val: Void}
	case ID:
		p.advance()
		return &IdentNode{nodeBase: nodeBase{pos: t.Pos}, Name: t.Literal.(string)}
	case LPAREN:
		p.advance()
		x := p.expression()
		p.expect(RPAREN, "expected ')'")
		return x
	case LSQUARE:
		return p.listLiteral()
	case LBRACE:
		if p.looksLikeMap() {
			return p.mapLiteral()
		}
		p.advance()
		return p.blockAfterLBrace(t.Pos)
	case KWIF:
		return p.ifExpr()
	case KWWHEN:
		return p.whenExpr()
	case KWWHILE:
		return p.whileExpr()
	case KWDO:
		return p.doWhileExpr()
	case KWFOR:
		return p.forExpr()
	case KWTRY:
		return p.tryExpr()
	case KWTHROW:
		p.advance()
		return &ThrowNode{nodeBase: nodeBase{pos: t.Pos}, X: p.expression()}
	case KWBREAK:
		p.advance()
		n := &BreakNode{nodeBase: nodeBase{pos: t.Pos}}
		if !p.atStmtBoundary() && p.startsExpression() {
			n.Val = p.expression()
		}
		return n
	case KWCONTINUE:
		p.advance()
		return &ContinueNode{nodeBase: nodeBase{pos: t.Pos}}
	case KWRETURN:
		p.advance()
		n := &ReturnNode{nodeBase: nodeBase{pos: t.Pos}}
		if !p.atStmtBoundary() && p.startsExpression() {
			n.Val = p.expression()
		}
		return n
	case KWFN:
		return p.fnDecl(false)
	}
	p.fail(t.Pos, "unexpected %s", t.Type)
	return nil
}

// startsExpression reports whether the current token can begin an
// expression; used for the optional operands of break/return.
func (p *parser) startsExpression() bool {
	switch p.peek().Type {
	case INT, REAL, STRING, CHAR, KWTRUE, KWFALSE, KWNULL, KWVOID, ID,
		LPAREN, LSQUARE, LBRACE, MINUS, NOT, KWIF, KWWHEN, KWFN, KWTRY,
		KWWHILE, KWDO, KWFOR, KWTHROW:
		return true
	default:
		return false
	}
}

func (p *parser) listLiteral() Node {
	t := p.expect(LSQUARE, "expected '['")
	n := &ListNode{nodeBase: nodeBase{pos: t.Pos}}
	for !p.check(RSQUARE) && !p.check(EOF) {
		e := p.expression()
		spread := p.match(ELLIPSIS)
		n.Elems = append(n.Elems, e)
		n.Spreads = append(n.Spreads, spread)
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RSQUARE, "expected ']' to close list literal")
	return n
}

// looksLikeMap disambiguates '{' between a block and a map literal:
// '{:}' is the empty map, and '{' (STRING|ID) ':' opens entries.
func (p *parser) looksLikeMap() bool {
	if p.peekN(1).Type == COLON {
		return true
	}
	if (p.peekN(1).Type == STRING || p.peekN(1).Type == ID) && p.peekN(2).Type == COLON {
		return true
	}
	return false
}

func (p *parser) mapLiteral() Node {
	t := p.expect(LBRACE, "expected '{'")
	n := &MapNode{nodeBase: nodeBase{pos: t.Pos}}
	if p.check(COLON) { // {:} empty map
		p.advance()
		p.expect(RBRACE, "expected '}' after '{:'")
		return n
	}
	for !p.check(RBRACE) && !p.check(EOF) {
		var key Node
		kt := p.peek()
		switch kt.Type {
		case STRING:
			p.advance()
			key = &LitNode{nodeBase: nodeBase{pos: kt.Pos}, Val: StrOf(kt.Literal.(string))}
		case ID:
			p.advance()
			key = &LitNode{nodeBase: nodeBase{pos: kt.Pos}, Val: StrOf(kt.Literal.(string))}
		default:
			p.fail(kt.Pos, "expected map key, found %s", kt.Type)
		}
		p.expect(COLON, "expected ':' after map key")
		val := p.expression()
		n.Entries = append(n.Entries, MapEntry{Key: key, Val: val})
		if !p.match(COMMA) {
			break
		}
	}
	p.expect(RBRACE, "expected '}' to close map literal")
	return n
}

func (p *parser) blockAfterLBrace(pos Pos) *BlockNode {
	stmts := p.statements(RBRACE)
	p.expect(RBRACE, "expected '}' to close block")
	return &BlockNode{nodeBase: nodeBase{pos: pos}, Stmts: stmts, Scoped: true}
}

// body parses a loop/branch body: a block or a single expression.
func (p *parser) body() Node {
	if p.check(LBRACE) && !p.looksLikeMap() {
		p.advance()
		return p.blockAfterLBrace(p.prev().Pos)
	}
	return p.expression()
}

func (p *parser) ifExpr() Node {
	t := p.expect(KWIF, "expected 'if'")
	p.expect(LPAREN, "expected '(' after 'if'")
	cond := p.expression()
	p.expect(RPAREN, "expected ')' after condition")
	then := p.body()
	n := &IfNode{nodeBase: nodeBase{pos: t.Pos}, Cond: cond, Then: then}
	if p.check(KWELSE) {
		p.advance()
		n.Else = p.body()
	}
	return n
}

func (p *parser) whenExpr() Node {
	t := p.expect(KWWHEN, "expected 'when'")
	p.expect(LPAREN, "expected '(' after 'when'")
	subj := p.expression()
	p.expect(RPAREN, "expected ')' after when subject")
	p.expect(LBRACE, "expected '{' to open when body")

	n := &WhenNode{nodeBase: nodeBase{pos: t.Pos}, Subject: subj}
	for !p.check(RBRACE) && !p.check(EOF) {
		if p.match(SEMI) {
			continue
		}
		var cl WhenClause
		if p.match(KWELSE) {
			cl.Else = true
		} else {
			for {
				switch {
				case p.match(KWIN):
					cl.In = append(cl.In, p.expression())
				case p.match(KWIS):
					cls := p.expect(ID, "expected class name after 'is'")
					cl.Is = append(cl.Is, cls.Literal.(string))
				default:
					cl.Exprs = append(cl.Exprs, p.expression())
				}
				if !p.match(COMMA) {
					break
				}
			}
		}
		p.expect(ARROW, "expected '->' in when clause")
		cl.Body = p.body()
		n.Clauses = append(n.Clauses, cl)
	}
	p.expect(RBRACE, "expected '}' to close when body")
	return n
}

func (p *parser) whileExpr() Node {
	t := p.expect(KWWHILE, "expected 'while'")
	p.expect(LPAREN, "expected '(' after 'while'")
	cond := p.expression()
	p.expect(RPAREN, "expected ')' after loop condition")
	body := p.body()
	n := &WhileNode{nodeBase: nodeBase{pos: t.Pos}, Cond: cond, Body: body}
	if p.check(KWELSE) {
		p.advance()
		n.Else = p.body()
	}
	return n
}

func (p *parser) doWhileExpr() Node {
	t := p.expect(KWDO, "expected 'do'")
	body := p.body()
	p.expect(KWWHILE, "expected 'while' after do body")
	p.expect(LPAREN, "expected '(' after 'while'")
	cond := p.expression()
	p.expect(RPAREN, "expected ')' after loop condition")
	n := &WhileNode{nodeBase: nodeBase{pos: t.Pos}, Cond: cond, Body: body, Post: true}
	if p.check(KWELSE) {
		p.advance()
		n.Else = p.body()
	}
	return n
}

func (p *parser) forExpr() Node {
	t := p.expect(KWFOR, "expected 'for'")
	p.expect(LPAREN, "expected '(' after 'for'")
	name := p.expect(ID, "expected loop variable name")
	p.expect(KWIN, "expected 'in' in for loop")
	iter := p.expression()
	p.expect(RPAREN, "expected ')' after loop header")
	body := p.body()
	n := &ForNode{
		nodeBase: nodeBase{pos: t.Pos},
		VarName:  name.Literal.(string),
		Iter:     iter,
		Body:     body,
	}
	if p.check(KWELSE) {
		p.advance()
		n.Else = p.body()
	}
	return n
}

func (p *parser) tryExpr() Node {
	t := p.expect(KWTRY, "expected 'try'")
	p.expect(LBRACE, "expected '{' after 'try'")
	body := p.blockAfterLBrace(p.prev().Pos)

	n := &TryNode{nodeBase: nodeBase{pos: t.Pos}, Body: body}
	for p.check(KWCATCH) {
		p.advance()
		var cl CatchClause
		p.expect(LPAREN, "expected '(' after 'catch'")
		v := p.expect(ID, "expected catch variable name")
		cl.VarName = v.Literal.(string)
		if p.match(COLON) {
			for {
				cls := p.expect(ID, "expected exception class name")
				cl.ClassNames = append(cl.ClassNames, cls.Literal.(string))
				if !p.match(COMMA) {
					break
				}
			}
		}
		p.expect(RPAREN, "expected ')' after catch clause")
		p.expect(LBRACE, "expected '{' to open catch body")
		cl.Body = p.blockAfterLBrace(p.prev().Pos)
		n.Catches = append(n.Catches, cl)
	}
	if p.check(KWFINALLY) {
		p.advance()
		p.expect(LBRACE, "expected '{' after 'finally'")
		n.Finally = p.blockAfterLBrace(p.prev().Pos)
	}
	if len(n.Catches) == 0 && n.Finally == nil {
		p.fail(t.Pos, "try requires at least one catch or a finally block")
	}
	return n
}
