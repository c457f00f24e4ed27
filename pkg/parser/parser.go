// Package parser builds a pkg/ast tree from a pkg/token stream using
// recursive descent for statements/declarations and precedence climbing
// (Pratt-style) for expressions.
//
// The grammar and precedence table are taken from the original
// implementation this spec was distilled from (_examples/original_source/
// nora3/parse.py): eat/peek primitives that raise on premature EOF naming
// the calling production, and an expr(minPrecedence) loop that special-cases
// right-associative assignment and the ternary's precedence-0 middle
// operand. Go has no cheap call-frame introspection, so each entry point
// passes its own name into eat/peek explicitly instead of inspecting the
// call stack.
package parser

import (
	"fmt"

	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/token"
)

// TokenTypeError reports that the next token's kind didn't match any of the
// kinds a production required.
type TokenTypeError struct {
	Got      token.Token
	Expected []token.Kind
}

func (e TokenTypeError) Error() string {
	return fmt.Sprintf("expected %v, got %s @ %d:%d", e.Expected, e.Got.Kind, e.Got.Line, e.Got.Col)
}

// ParserError reports a structural mistake that isn't a simple token-kind
// mismatch (malformed specifiers, a function declared in for-init, ...).
type ParserError struct {
	Msg       string
	Line, Col int
	HasPos    bool
}

func (e ParserError) Error() string {
	if e.HasPos {
		return fmt.Sprintf("%s @ %d:%d", e.Msg, e.Line, e.Col)
	}
	return e.Msg
}

// ParserEofError reports premature end of input, naming the production that
// hit it to aid debugging (mirrors the original's frame-introspection trick).
type ParserEofError struct{ Where string }

func (e ParserEofError) Error() string {
	return fmt.Sprintf("unexpected EOF found in %s", e.Where)
}

// Precedence table from spec §4.2.
var precedence = map[token.Kind]int{
	token.Star: 50, token.Slash: 50, token.Percent: 50,
	token.Plus: 45, token.Minus: 45,
	token.LessLess: 40, token.GreaterGr: 40,
	token.Less: 35, token.LessEq: 35, token.Greater: 35, token.GreaterEq: 35,
	token.EqEq: 30, token.NotEq: 30,
	token.Amp: 24,
	token.Caret: 22,
	token.Pipe: 20,
	token.AmpAmp: 10,
	token.PipePipe: 5,
	token.Question: 3,
	token.Assign: 1, token.PlusAssign: 1, token.MinusAssign: 1, token.StarAssign: 1,
	token.SlashAssign: 1, token.PercentAssign: 1, token.AmpAssign: 1, token.PipeAssign: 1,
	token.CaretAssign: 1, token.LessLessAssign: 1, token.GrtGrtAssign: 1,
}

var binaryOpFromKind = map[token.Kind]ast.BinaryOp{
	token.Plus: ast.Add, token.Minus: ast.Subtract, token.Star: ast.Multiply,
	token.Slash: ast.Divide, token.Percent: ast.Remainder,
	token.LessLess: ast.LeftShift, token.GreaterGr: ast.RightShift,
	token.Less: ast.LessThan, token.LessEq: ast.LessEqual,
	token.Greater: ast.GreaterThan, token.GreaterEq: ast.GreaterEqual,
	token.EqEq: ast.Equal, token.NotEq: ast.NotEqual,
	token.Amp: ast.BitwiseAnd, token.Caret: ast.BitwiseXor, token.Pipe: ast.BitwiseOr,
	token.AmpAmp: ast.LogicalAnd, token.PipePipe: ast.LogicalOr,
	token.Assign: ast.Assign,
	token.PlusAssign: ast.AddAssign, token.MinusAssign: ast.SubAssign,
	token.StarAssign: ast.MulAssign, token.SlashAssign: ast.DivAssign,
	token.PercentAssign: ast.RemAssign, token.AmpAssign: ast.AndAssign,
	token.PipeAssign: ast.OrAssign, token.CaretAssign: ast.XorAssign,
	token.LessLessAssign: ast.ShlAssign, token.GrtGrtAssign: ast.ShrAssign,
}

const rightAssocPrecedence = 1

var unaryOpFromKind = map[token.Kind]ast.UnaryOp{
	token.Tilde: ast.Complement, token.Minus: ast.Negate, token.Bang: ast.LogicalNot,
	token.PlusPlus: ast.PrefixInc, token.MinusMin: ast.PrefixDec,
}

// Parser consumes a fixed token slice and produces an ast.Program.
type Parser struct {
	tokens []token.Token
	idx    int
}

// New returns a Parser over tokens.
func New(tokens []token.Token) *Parser { return &Parser{tokens: tokens} }

// Parse is the parser's only exported entry point: tokens -> ast.Program.
func Parse(tokens []token.Token) (ast.Program, error) {
	return New(tokens).program()
}

func (p *Parser) eat(where string, kinds ...token.Kind) (token.Token, error) {
	if p.idx >= len(p.tokens) {
		return token.Token{}, ParserEofError{Where: where}
	}
	tok := p.tokens[p.idx]
	p.idx++
	if len(kinds) == 0 {
		return tok, nil
	}
	for _, k := range kinds {
		if tok.Kind == k {
			return tok, nil
		}
	}
	return token.Token{}, TokenTypeError{Got: tok, Expected: kinds}
}

func (p *Parser) peek(where string) (token.Token, error) {
	if p.idx >= len(p.tokens) {
		return token.Token{}, ParserEofError{Where: where}
	}
	return p.tokens[p.idx], nil
}

// peek2Is reports whether the token after the next one has kind k, returning
// false (not an error) past the end of input.
func (p *Parser) peek2Is(k token.Kind) bool {
	if p.idx+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.idx+1].Kind == k
}

// ----------------------------------------------------------------------------
// Expressions

func (p *Parser) functionArguments() ([]ast.Expr, error) {
	next, err := p.peek("functionArguments")
	if err != nil {
		return nil, err
	}
	if next.Kind == token.RParen {
		return nil, nil
	}

	first, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	args := []ast.Expr{first}
	for {
		next, err := p.peek("functionArguments")
		if err != nil {
			return nil, err
		}
		if next.Kind == token.RParen {
			return args, nil
		}
		if _, err := p.eat("functionArguments", token.Comma); err != nil {
			return nil, err
		}
		arg, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
}

func (p *Parser) factor() (ast.Expr, error) {
	tok, err := p.eat("factor")
	if err != nil {
		return nil, err
	}

	var result ast.Expr
	switch {
	case tok.Kind == token.IntLiteral:
		v, convErr := parseInt32(tok.Text)
		if convErr != nil {
			return nil, ParserError{Msg: convErr.Error(), Line: tok.Line, Col: tok.Col, HasPos: true}
		}
		result = ast.ConstantExpr{Value: v}

	case tok.Kind == token.Identifier:
		next, peekErr := p.peek("factor")
		if peekErr == nil && next.Kind == token.LParen {
			if _, err := p.eat("factor", token.LParen); err != nil {
				return nil, err
			}
			args, err := p.functionArguments()
			if err != nil {
				return nil, err
			}
			if _, err := p.eat("factor", token.RParen); err != nil {
				return nil, err
			}
			return ast.FuncCallExpr{Name: tok.Text, Args: args}, nil
		}
		result = ast.VariableExpr{Name: tok.Text}

	case isUnaryKind(tok.Kind):
		inner, err := p.factor()
		if err != nil {
			return nil, err
		}
		result = ast.UnaryExpr{Op: unaryOpFromKind[tok.Kind], Expr: inner}

	case tok.Kind == token.LParen:
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("factor", token.RParen); err != nil {
			return nil, err
		}
		result = inner

	default:
		return nil, ParserError{Msg: fmt.Sprintf("expected an expression, found %s", tok.Kind), Line: tok.Line, Col: tok.Col, HasPos: true}
	}

	// Postfix ++/-- attach after the factor completes.
	next, err := p.peek("factor")
	if err != nil {
		// EOF here just means no postfix operator follows; propagate result.
		return result, nil
	}
	switch next.Kind {
	case token.PlusPlus:
		_, _ = p.eat("factor", token.PlusPlus)
		return ast.UnaryExpr{Op: ast.PostfixInc, Expr: result}, nil
	case token.MinusMin:
		_, _ = p.eat("factor", token.MinusMin)
		return ast.UnaryExpr{Op: ast.PostfixDec, Expr: result}, nil
	default:
		return result, nil
	}
}

func isUnaryKind(k token.Kind) bool {
	_, ok := unaryOpFromKind[k]
	return ok
}

func (p *Parser) conditionalMiddle() (ast.Expr, error) {
	if _, err := p.eat("conditionalMiddle", token.Question); err != nil {
		return nil, err
	}
	middle, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.eat("conditionalMiddle", token.Colon); err != nil {
		return nil, err
	}
	return middle, nil
}

// expr implements precedence climbing per spec §4.2.
func (p *Parser) expr(minPrecedence int) (ast.Expr, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}

	for {
		next, err := p.peek("expr")
		if err != nil {
			// EOF just ends the expression.
			return left, nil
		}

		prec, isBinary := precedence[next.Kind]
		if !isBinary {
			break
		}
		if prec < minPrecedence {
			break
		}
		op := binaryOpFromKind[next.Kind] // empty for `?`, handled below

		switch {
		case op.IsAssign():
			if _, err := p.eat("expr"); err != nil {
				return nil, err
			}
			right, err := p.expr(prec) // right-associative
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: op, Left: left, Right: right}

		case next.Kind == token.Question:
			middle, err := p.conditionalMiddle()
			if err != nil {
				return nil, err
			}
			right, err := p.expr(prec + 1)
			if err != nil {
				return nil, err
			}
			left = ast.ConditionalExpr{Cond: left, Then: middle, Else: right}

		default:
			if _, err := p.eat("expr"); err != nil {
				return nil, err
			}
			right, err := p.expr(prec + 1)
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: op, Left: left, Right: right}
		}
	}

	return left, nil
}

// ----------------------------------------------------------------------------
// Declarations

func (p *Parser) typeAndStorageClass(specifiers []token.Kind, where string) (ast.Type, ast.StorageClass, error) {
	var types []token.Kind
	var storageClasses []token.Kind
	for _, s := range specifiers {
		if token.IsTypeSpecifier(s) {
			types = append(types, s)
		} else if token.IsStorageSpecifier(s) {
			storageClasses = append(storageClasses, s)
		}
	}

	if len(types) != 1 {
		return ast.Type{}, "", ParserError{Msg: fmt.Sprintf("invalid types: %v", types)}
	}
	if len(storageClasses) > 1 {
		return ast.Type{}, "", ParserError{Msg: fmt.Sprintf("invalid storage classes: %v", storageClasses)}
	}

	storage := ast.NoStorageClass
	if len(storageClasses) == 1 {
		if storageClasses[0] == token.KwStatic {
			storage = ast.Static
		} else {
			storage = ast.Extern
		}
	}
	return ast.IntType, storage, nil
}

func (p *Parser) varDecl(name string, typ ast.Type, storage ast.StorageClass) (ast.VarDecl, error) {
	tok, err := p.peek("varDecl")
	if err != nil {
		return ast.VarDecl{}, err
	}

	var initExpr ast.Expr
	switch tok.Kind {
	case token.Semi:
		// no initializer
	case token.Assign:
		if _, err := p.eat("varDecl", token.Assign); err != nil {
			return ast.VarDecl{}, err
		}
		initExpr, err = p.expr(0)
		if err != nil {
			return ast.VarDecl{}, err
		}
	default:
		return ast.VarDecl{}, TokenTypeError{Got: tok, Expected: []token.Kind{token.Semi, token.Assign}}
	}

	if _, err := p.eat("varDecl", token.Semi); err != nil {
		return ast.VarDecl{}, err
	}
	return ast.VarDecl{Name: name, Init: initExpr, Type: typ, Storage: storage}, nil
}

func (p *Parser) funcParams() ([]ast.Param, error) {
	next, err := p.peek("funcParams")
	if err != nil {
		return nil, err
	}
	if next.Kind == token.KwVoid {
		_, _ = p.eat("funcParams", token.KwVoid)
		return nil, nil
	}
	if next.Kind == token.RParen {
		return nil, nil
	}

	readOne := func() (ast.Param, error) {
		if _, err := p.eat("funcParams", token.KwInt); err != nil {
			return ast.Param{}, err
		}
		nameTok, err := p.eat("funcParams", token.Identifier)
		if err != nil {
			return ast.Param{}, err
		}
		return ast.Param{Name: nameTok.Text, Type: ast.IntType}, nil
	}

	first, err := readOne()
	if err != nil {
		return nil, err
	}
	params := []ast.Param{first}
	for {
		next, err := p.peek("funcParams")
		if err != nil {
			return nil, err
		}
		if next.Kind == token.RParen {
			return params, nil
		}
		if _, err := p.eat("funcParams", token.Comma); err != nil {
			return nil, err
		}
		param, err := readOne()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
}

func (p *Parser) funcDecl(name string, typ ast.Type, storage ast.StorageClass) (ast.FuncDecl, error) {
	if _, err := p.eat("funcDecl", token.LParen); err != nil {
		return ast.FuncDecl{}, err
	}
	params, err := p.funcParams()
	if err != nil {
		return ast.FuncDecl{}, err
	}
	if _, err := p.eat("funcDecl", token.RParen); err != nil {
		return ast.FuncDecl{}, err
	}

	next, err := p.peek("funcDecl")
	if err != nil {
		return ast.FuncDecl{}, err
	}
	if next.Kind == token.Semi {
		_, _ = p.eat("funcDecl", token.Semi)
		return ast.FuncDecl{Name: name, Params: params, Body: nil, Type: typ, Storage: storage}, nil
	}

	if _, err := p.eat("funcDecl", token.LBrace); err != nil {
		return ast.FuncDecl{}, err
	}
	var items []ast.BlockItem
	for {
		next, err := p.peek("funcDecl")
		if err != nil {
			return ast.FuncDecl{}, err
		}
		if next.Kind == token.RBrace {
			break
		}
		item, err := p.blockItem()
		if err != nil {
			return ast.FuncDecl{}, err
		}
		items = append(items, item)
	}
	if _, err := p.eat("funcDecl", token.RBrace); err != nil {
		return ast.FuncDecl{}, err
	}

	body := ast.Block{Items: items}
	return ast.FuncDecl{Name: name, Params: params, Body: &body, Type: typ, Storage: storage}, nil
}

func (p *Parser) declaration() (ast.Decl, error) {
	var specifiers []token.Kind
	var lastSpecifier token.Token
	for {
		next, err := p.peek("declaration")
		if err != nil {
			return nil, err
		}
		if !token.IsSpecifier(next.Kind) {
			break
		}
		tok, err := p.eat("declaration")
		if err != nil {
			return nil, err
		}
		specifiers = append(specifiers, tok.Kind)
		lastSpecifier = tok
	}

	typ, storage, err := p.typeAndStorageClass(specifiers, "declaration")
	if err != nil {
		if pe, ok := err.(ParserError); ok && !pe.HasPos {
			pe.HasPos = true
			pe.Line, pe.Col = lastSpecifier.Line, lastSpecifier.Col
			return nil, pe
		}
		return nil, err
	}

	nameTok, err := p.eat("declaration", token.Identifier)
	if err != nil {
		return nil, err
	}

	next, err := p.peek("declaration")
	if err != nil {
		return nil, err
	}
	if next.Kind == token.LParen {
		decl, err := p.funcDecl(nameTok.Text, typ, storage)
		return decl, err
	}
	decl, err := p.varDecl(nameTok.Text, typ, storage)
	return decl, err
}

// forInit accepts a declaration (never a function), an expression, or nothing.
func (p *Parser) forInit() (ast.ForInit, error) {
	tok, err := p.peek("forInit")
	if err != nil {
		return nil, err
	}
	if tok.Kind == token.Semi {
		_, _ = p.eat("forInit", token.Semi)
		return nil, nil
	}
	if tok.Kind == token.KwInt {
		decl, err := p.declaration()
		if err != nil {
			return nil, err
		}
		if fd, isFunc := decl.(ast.FuncDecl); isFunc {
			_ = fd
			return nil, ParserError{Msg: "cannot declare function in for loop init", Line: tok.Line, Col: tok.Col, HasPos: true}
		}
		vd := decl.(ast.VarDecl)
		return &vd, nil
	}
	expr, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.eat("forInit", token.Semi); err != nil {
		return nil, err
	}
	return expr, nil
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) stmt() (ast.Stmt, error) {
	tok, err := p.peek("stmt")
	if err != nil {
		return nil, err
	}

	switch tok.Kind {
	case token.KwReturn:
		_, _ = p.eat("stmt", token.KwReturn)
		expr, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		return ast.ReturnStmt{Expr: expr}, nil

	case token.KwIf:
		_, _ = p.eat("stmt", token.KwIf)
		if _, err := p.eat("stmt", token.LParen); err != nil {
			return nil, err
		}
		cond, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.RParen); err != nil {
			return nil, err
		}
		then, err := p.stmt()
		if err != nil {
			return nil, err
		}
		next, err := p.peek("stmt")
		var elseStmt ast.Stmt
		if err == nil && next.Kind == token.KwElse {
			_, _ = p.eat("stmt", token.KwElse)
			elseStmt, err = p.stmt()
			if err != nil {
				return nil, err
			}
		}
		return ast.IfStmt{Cond: cond, Then: then, Else: elseStmt}, nil

	case token.KwGoto:
		_, _ = p.eat("stmt", token.KwGoto)
		target, err := p.eat("stmt", token.Identifier)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		return ast.GotoStmt{Target: target.Text}, nil

	case token.Semi:
		_, _ = p.eat("stmt", token.Semi)
		return ast.NullStmt{}, nil

	case token.Identifier:
		if p.peek2Is(token.Colon) {
			name, _ := p.eat("stmt", token.Identifier)
			_, _ = p.eat("stmt", token.Colon)
			return ast.LabelStmt{Name: name.Text, Stmt: ast.NullStmt{}}, nil
		}

	case token.LBrace:
		_, _ = p.eat("stmt", token.LBrace)
		var items []ast.BlockItem
		for {
			next, err := p.peek("stmt")
			if err != nil {
				return nil, err
			}
			if next.Kind == token.RBrace {
				break
			}
			item, err := p.blockItem()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := p.eat("stmt", token.RBrace); err != nil {
			return nil, err
		}
		return ast.CompoundStmt{Block: ast.Block{Items: items}}, nil

	case token.KwBreak:
		_, _ = p.eat("stmt", token.KwBreak)
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		return ast.BreakStmt{}, nil

	case token.KwContinue:
		_, _ = p.eat("stmt", token.KwContinue)
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		return ast.ContinueStmt{}, nil

	case token.KwWhile:
		_, _ = p.eat("stmt", token.KwWhile)
		if _, err := p.eat("stmt", token.LParen); err != nil {
			return nil, err
		}
		cond, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.RParen); err != nil {
			return nil, err
		}
		body, err := p.stmt()
		if err != nil {
			return nil, err
		}
		return ast.WhileStmt{Cond: cond, Body: body}, nil

	case token.KwDo:
		_, _ = p.eat("stmt", token.KwDo)
		body, err := p.stmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.KwWhile); err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.LParen); err != nil {
			return nil, err
		}
		cond, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.RParen); err != nil {
			return nil, err
		}
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		return ast.DoWhileStmt{Body: body, Cond: cond}, nil

	case token.KwFor:
		_, _ = p.eat("stmt", token.KwFor)
		if _, err := p.eat("stmt", token.LParen); err != nil {
			return nil, err
		}
		init, err := p.forInit()
		if err != nil {
			return nil, err
		}
		next, err := p.peek("stmt")
		if err != nil {
			return nil, err
		}
		var cond ast.Expr
		if next.Kind != token.Semi {
			cond, err = p.expr(0)
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.eat("stmt", token.Semi); err != nil {
			return nil, err
		}
		next, err = p.peek("stmt")
		if err != nil {
			return nil, err
		}
		var post ast.Expr
		if next.Kind != token.RParen {
			post, err = p.expr(0)
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.eat("stmt", token.RParen); err != nil {
			return nil, err
		}
		body, err := p.stmt()
		if err != nil {
			return nil, err
		}
		return ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
	}

	expr, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.eat("stmt", token.Semi); err != nil {
		return nil, err
	}
	return ast.ExpressionStmt{Expr: expr}, nil
}

func (p *Parser) blockItem() (ast.BlockItem, error) {
	tok, err := p.peek("blockItem")
	if err != nil {
		return nil, err
	}
	if token.IsSpecifier(tok.Kind) {
		return p.declaration()
	}
	return p.stmt()
}

func (p *Parser) program() (ast.Program, error) {
	var decls []ast.Decl
	for p.idx < len(p.tokens) {
		decl, err := p.declaration()
		if err != nil {
			return ast.Program{}, err
		}
		decls = append(decls, decl)
	}
	return ast.Program{Decls: decls}, nil
}

func parseInt32(digits string) (int32, error) {
	var v int64
	for _, c := range digits {
		v = v*10 + int64(c-'0')
		if v > (1<<31 - 1) {
			return 0, fmt.Errorf("integer constant '%s' too large", digits)
		}
	}
	return int32(v), nil
}
