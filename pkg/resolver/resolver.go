// Package resolver runs the three post-parse passes over an ast.Program:
// identifier resolution, goto-label resolution, and loop labeling. Each pass
// produces a new tree rather than mutating in place, mirroring the three
// independent Resolver-protocol passes in the original implementation this
// spec was distilled from (_examples/original_source/nora3/asts.py:
// resolve_identifiers / resolve_goto_labels / resolve_loop_labels).
//
// The identifier map threaded through pass A plays the same role as the
// teacher's ScopeTable (pkg/jack/scopes.go): a stack of scopes searched
// innermost-first. C's lexical scoping lets that stack collapse to a single
// copy-on-push map instead of the teacher's four parallel Local/Field/
// Parameter/Static stacks, because a C block only ever shadows, never
// segregates by storage class the way Jack separates field/static/local.
package resolver

import (
	"fmt"
	"strings"

	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/names"
)

// ResolverError reports a semantic mistake caught by any of the three passes.
type ResolverError struct{ Msg string }

func (e ResolverError) Error() string { return e.Msg }

// mapEntry mirrors nora3/asts.py's MapEntry: the resolved name for a source
// identifier, whether it was declared in the current scope (vs. inherited
// from an enclosing one, which matters for re-declaration checks), and
// whether the declaration carries linkage (extern/file-scope).
type mapEntry struct {
	uniqueName      string
	fromCurrentScope bool
	hasLinkage      bool
}

type identifierMap map[string]mapEntry

// copyForNewScope mirrors copy_variable_map: every inherited entry has
// fromCurrentScope reset to false, so re-declaration checks in the new scope
// only fire against entries actually introduced there.
func copyForNewScope(m identifierMap) identifierMap {
	out := make(identifierMap, len(m))
	for k, v := range m {
		v.fromCurrentScope = false
		out[k] = v
	}
	return out
}

// Resolve runs all three passes in order and returns the fully resolved program.
func Resolve(prog ast.Program, ctx *names.Context) (ast.Program, error) {
	afterIdents, err := resolveIdentifiers(prog, ctx)
	if err != nil {
		return ast.Program{}, err
	}
	afterGotos, err := resolveGotoLabels(afterIdents)
	if err != nil {
		return ast.Program{}, err
	}
	afterLoops, err := resolveLoopLabels(afterGotos, ctx)
	if err != nil {
		return ast.Program{}, err
	}
	return afterLoops, nil
}

// ----------------------------------------------------------------------------
// Pass A — identifier resolution

func resolveIdentifiers(prog ast.Program, ctx *names.Context) (ast.Program, error) {
	fileScope := identifierMap{}
	var decls []ast.Decl
	for _, d := range prog.Decls {
		resolved, err := resolveIdentifiersFileScope(d, fileScope, ctx)
		if err != nil {
			return ast.Program{}, err
		}
		decls = append(decls, resolved)
	}
	return ast.Program{Decls: decls}, nil
}

func resolveIdentifiersFileScope(d ast.Decl, scope identifierMap, ctx *names.Context) (ast.Decl, error) {
	switch decl := d.(type) {
	case ast.VarDecl:
		scope[decl.Name] = mapEntry{uniqueName: decl.Name, fromCurrentScope: true, hasLinkage: true}
		if decl.Init != nil {
			resolved, err := resolveExpr(decl.Init, scope)
			if err != nil {
				return nil, err
			}
			decl.Init = resolved
		}
		return decl, nil

	case ast.FuncDecl:
		scope[decl.Name] = mapEntry{uniqueName: decl.Name, fromCurrentScope: true, hasLinkage: true}
		return resolveFuncDecl(decl, scope, ctx)

	default:
		return nil, ResolverError{Msg: fmt.Sprintf("unhandled top-level declaration %T", d)}
	}
}

func resolveFuncDecl(decl ast.FuncDecl, outer identifierMap, ctx *names.Context) (ast.FuncDecl, error) {
	inner := copyForNewScope(outer)

	var params []ast.Param
	for _, param := range decl.Params {
		if existing, ok := inner[param.Name]; ok && existing.fromCurrentScope {
			return ast.FuncDecl{}, ResolverError{Msg: fmt.Sprintf("duplicate parameter '%s'", param.Name)}
		}
		unique := ctx.Var(param.Name)
		inner[param.Name] = mapEntry{uniqueName: unique, fromCurrentScope: true}
		params = append(params, ast.Param{Name: unique, Type: param.Type})
	}
	decl.Params = params

	if decl.Body == nil {
		return decl, nil
	}

	body, err := resolveBlock(*decl.Body, inner, ctx)
	if err != nil {
		return ast.FuncDecl{}, err
	}
	decl.Body = &body
	return decl, nil
}

func resolveBlock(block ast.Block, scope identifierMap, ctx *names.Context) (ast.Block, error) {
	var items []ast.BlockItem
	for _, item := range block.Items {
		resolved, err := resolveBlockItem(item, scope, ctx)
		if err != nil {
			return ast.Block{}, err
		}
		items = append(items, resolved)
	}
	return ast.Block{Items: items}, nil
}

func resolveBlockItem(item ast.BlockItem, scope identifierMap, ctx *names.Context) (ast.BlockItem, error) {
	switch v := item.(type) {
	case ast.VarDecl:
		return resolveIdentifiersBlockScope(v, scope, ctx)
	case ast.FuncDecl:
		if v.Body != nil {
			return nil, ResolverError{Msg: "nested function definitions are not permitted"}
		}
		if v.Storage == ast.Static {
			return nil, ResolverError{Msg: fmt.Sprintf("static function '%s' declared inside a function", v.Name)}
		}
		scope[v.Name] = mapEntry{uniqueName: v.Name, fromCurrentScope: true, hasLinkage: true}
		return v, nil
	case ast.Stmt:
		return resolveStmt(v, scope, ctx)
	default:
		return nil, ResolverError{Msg: fmt.Sprintf("unhandled block item %T", item)}
	}
}

func resolveIdentifiersBlockScope(decl ast.VarDecl, scope identifierMap, ctx *names.Context) (ast.VarDecl, error) {
	if existing, ok := scope[decl.Name]; ok && existing.fromCurrentScope {
		if !(existing.hasLinkage && decl.Storage == ast.Extern) {
			return ast.VarDecl{}, ResolverError{Msg: fmt.Sprintf("variable '%s' redeclared in this scope", decl.Name)}
		}
	}

	if decl.Storage == ast.Extern {
		scope[decl.Name] = mapEntry{uniqueName: decl.Name, fromCurrentScope: true, hasLinkage: true}
		return decl, nil
	}

	unique := ctx.Var(decl.Name)
	scope[decl.Name] = mapEntry{uniqueName: unique, fromCurrentScope: true}
	decl.Name = unique
	if decl.Init != nil {
		resolved, err := resolveExpr(decl.Init, scope)
		if err != nil {
			return ast.VarDecl{}, err
		}
		decl.Init = resolved
	}
	return decl, nil
}

func resolveStmt(s ast.Stmt, scope identifierMap, ctx *names.Context) (ast.Stmt, error) {
	switch stmt := s.(type) {
	case ast.ReturnStmt:
		e, err := resolveExpr(stmt.Expr, scope)
		return ast.ReturnStmt{Expr: e}, err

	case ast.ExpressionStmt:
		e, err := resolveExpr(stmt.Expr, scope)
		return ast.ExpressionStmt{Expr: e}, err

	case ast.IfStmt:
		cond, err := resolveExpr(stmt.Cond, scope)
		if err != nil {
			return nil, err
		}
		then, err := resolveStmt(stmt.Then, scope, ctx)
		if err != nil {
			return nil, err
		}
		var elseStmt ast.Stmt
		if stmt.Else != nil {
			elseStmt, err = resolveStmt(stmt.Else, scope, ctx)
			if err != nil {
				return nil, err
			}
		}
		return ast.IfStmt{Cond: cond, Then: then, Else: elseStmt}, nil

	case ast.LabelStmt:
		inner, err := resolveStmt(stmt.Stmt, scope, ctx)
		if err != nil {
			return nil, err
		}
		return ast.LabelStmt{Name: stmt.Name, Stmt: inner}, nil

	case ast.GotoStmt:
		return stmt, nil

	case ast.CompoundStmt:
		block, err := resolveBlock(stmt.Block, copyForNewScope(scope), ctx)
		return ast.CompoundStmt{Block: block}, err

	case ast.BreakStmt, ast.ContinueStmt, ast.NullStmt:
		return stmt, nil

	case ast.WhileStmt:
		cond, err := resolveExpr(stmt.Cond, scope)
		if err != nil {
			return nil, err
		}
		body, err := resolveStmt(stmt.Body, scope, ctx)
		if err != nil {
			return nil, err
		}
		return ast.WhileStmt{Cond: cond, Body: body}, nil

	case ast.DoWhileStmt:
		body, err := resolveStmt(stmt.Body, scope, ctx)
		if err != nil {
			return nil, err
		}
		cond, err := resolveExpr(stmt.Cond, scope)
		if err != nil {
			return nil, err
		}
		return ast.DoWhileStmt{Body: body, Cond: cond}, nil

	case ast.ForStmt:
		loopScope := copyForNewScope(scope)
		var init ast.ForInit
		switch i := stmt.Init.(type) {
		case *ast.VarDecl:
			if i.Storage != ast.NoStorageClass {
				return nil, ResolverError{Msg: "for-loop initializer cannot carry a storage class"}
			}
			resolved, err := resolveIdentifiersBlockScope(*i, loopScope, ctx)
			if err != nil {
				return nil, err
			}
			init = &resolved
		case ast.Expr:
			resolved, err := resolveExpr(i, loopScope)
			if err != nil {
				return nil, err
			}
			init = resolved
		case nil:
			init = nil
		}

		var cond, post ast.Expr
		var err error
		if stmt.Cond != nil {
			cond, err = resolveExpr(stmt.Cond, loopScope)
			if err != nil {
				return nil, err
			}
		}
		if stmt.Post != nil {
			post, err = resolveExpr(stmt.Post, loopScope)
			if err != nil {
				return nil, err
			}
		}
		body, err := resolveStmt(stmt.Body, loopScope, ctx)
		if err != nil {
			return nil, err
		}
		return ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil

	default:
		return nil, ResolverError{Msg: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func resolveExpr(e ast.Expr, scope identifierMap) (ast.Expr, error) {
	switch expr := e.(type) {
	case ast.ConstantExpr:
		return expr, nil

	case ast.VariableExpr:
		entry, ok := scope[expr.Name]
		if !ok {
			return nil, ResolverError{Msg: fmt.Sprintf("undefined variable '%s'", expr.Name)}
		}
		return ast.VariableExpr{Name: entry.uniqueName}, nil

	case ast.UnaryExpr:
		inner, err := resolveExpr(expr.Expr, scope)
		if err != nil {
			return nil, err
		}
		if (expr.Op == ast.PrefixInc || expr.Op == ast.PrefixDec || expr.Op == ast.PostfixInc || expr.Op == ast.PostfixDec) && !isVariable(inner) {
			return nil, ResolverError{Msg: "invalid lvalue in increment/decrement"}
		}
		return ast.UnaryExpr{Op: expr.Op, Expr: inner}, nil

	case ast.BinaryExpr:
		left, err := resolveExpr(expr.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := resolveExpr(expr.Right, scope)
		if err != nil {
			return nil, err
		}
		if expr.Op.IsAssign() && !isVariable(left) {
			return nil, ResolverError{Msg: fmt.Sprintf("invalid lvalue: %s", exprClassName(left))}
		}
		return ast.BinaryExpr{Op: expr.Op, Left: left, Right: right}, nil

	case ast.ConditionalExpr:
		cond, err := resolveExpr(expr.Cond, scope)
		if err != nil {
			return nil, err
		}
		then, err := resolveExpr(expr.Then, scope)
		if err != nil {
			return nil, err
		}
		els, err := resolveExpr(expr.Else, scope)
		if err != nil {
			return nil, err
		}
		return ast.ConditionalExpr{Cond: cond, Then: then, Else: els}, nil

	case ast.FuncCallExpr:
		if _, ok := scope[expr.Name]; !ok {
			return nil, ResolverError{Msg: fmt.Sprintf("undefined function '%s'", expr.Name)}
		}
		var args []ast.Expr
		for _, a := range expr.Args {
			resolved, err := resolveExpr(a, scope)
			if err != nil {
				return nil, err
			}
			args = append(args, resolved)
		}
		return ast.FuncCallExpr{Name: expr.Name, Args: args}, nil

	default:
		return nil, ResolverError{Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}

func isVariable(e ast.Expr) bool {
	_, ok := e.(ast.VariableExpr)
	return ok
}

// exprClassName reports the C-AST node's class name the way the original
// implementation's `self.left.__class__.__name__` would (e.g. "Constant" for
// a ConstantExpr), for error messages that must match spec §8 verbatim.
func exprClassName(e ast.Expr) string {
	name := fmt.Sprintf("%T", e)
	name = strings.TrimPrefix(name, "ast.")
	return strings.TrimSuffix(name, "Expr")
}

// ----------------------------------------------------------------------------
// Pass B — goto label resolution

func resolveGotoLabels(prog ast.Program) (ast.Program, error) {
	var decls []ast.Decl
	for _, d := range prog.Decls {
		fd, ok := d.(ast.FuncDecl)
		if !ok || fd.Body == nil {
			decls = append(decls, d)
			continue
		}
		labels := map[string]bool{}
		body, err := resolveGotoLabelsBlock(*fd.Body, fd.Name, labels)
		if err != nil {
			return ast.Program{}, err
		}
		for label, defined := range labels {
			if !defined {
				return ast.Program{}, ResolverError{Msg: fmt.Sprintf("goto undefined label '%s' in function '%s'", label, fd.Name)}
			}
		}
		fd.Body = &body
		decls = append(decls, fd)
	}
	return ast.Program{Decls: decls}, nil
}

func mangleLabel(fn, name string) string { return fmt.Sprintf(".label.%s.%s", fn, name) }

func resolveGotoLabelsBlock(block ast.Block, fn string, labels map[string]bool) (ast.Block, error) {
	var items []ast.BlockItem
	for _, item := range block.Items {
		if stmt, ok := item.(ast.Stmt); ok {
			resolved, err := resolveGotoLabelsStmt(stmt, fn, labels)
			if err != nil {
				return ast.Block{}, err
			}
			items = append(items, resolved)
			continue
		}
		items = append(items, item)
	}
	return ast.Block{Items: items}, nil
}

func resolveGotoLabelsStmt(s ast.Stmt, fn string, labels map[string]bool) (ast.Stmt, error) {
	switch stmt := s.(type) {
	case ast.LabelStmt:
		mangled := mangleLabel(fn, stmt.Name)
		if defined, seen := labels[mangled]; seen && defined {
			return nil, ResolverError{Msg: fmt.Sprintf("label '%s' redefined in function '%s'", stmt.Name, fn)}
		}
		labels[mangled] = true
		inner, err := resolveGotoLabelsStmt(stmt.Stmt, fn, labels)
		if err != nil {
			return nil, err
		}
		return ast.LabelStmt{Name: mangled, Stmt: inner}, nil

	case ast.GotoStmt:
		mangled := mangleLabel(fn, stmt.Target)
		if _, seen := labels[mangled]; !seen {
			labels[mangled] = false
		}
		return ast.GotoStmt{Target: mangled}, nil

	case ast.IfStmt:
		then, err := resolveGotoLabelsStmt(stmt.Then, fn, labels)
		if err != nil {
			return nil, err
		}
		var elseStmt ast.Stmt
		if stmt.Else != nil {
			elseStmt, err = resolveGotoLabelsStmt(stmt.Else, fn, labels)
			if err != nil {
				return nil, err
			}
		}
		return ast.IfStmt{Cond: stmt.Cond, Then: then, Else: elseStmt}, nil

	case ast.CompoundStmt:
		block, err := resolveGotoLabelsBlock(stmt.Block, fn, labels)
		return ast.CompoundStmt{Block: block}, err

	case ast.WhileStmt:
		body, err := resolveGotoLabelsStmt(stmt.Body, fn, labels)
		return ast.WhileStmt{Cond: stmt.Cond, Body: body, Label: stmt.Label}, err

	case ast.DoWhileStmt:
		body, err := resolveGotoLabelsStmt(stmt.Body, fn, labels)
		return ast.DoWhileStmt{Body: body, Cond: stmt.Cond, Label: stmt.Label}, err

	case ast.ForStmt:
		body, err := resolveGotoLabelsStmt(stmt.Body, fn, labels)
		return ast.ForStmt{Init: stmt.Init, Cond: stmt.Cond, Post: stmt.Post, Body: body, Label: stmt.Label}, err

	default:
		return s, nil
	}
}

// ----------------------------------------------------------------------------
// Pass C — loop labeling

func resolveLoopLabels(prog ast.Program, ctx *names.Context) (ast.Program, error) {
	var decls []ast.Decl
	for _, d := range prog.Decls {
		fd, ok := d.(ast.FuncDecl)
		if !ok || fd.Body == nil {
			decls = append(decls, d)
			continue
		}
		body, err := resolveLoopLabelsBlock(*fd.Body, "", ctx)
		if err != nil {
			return ast.Program{}, err
		}
		fd.Body = &body
		decls = append(decls, fd)
	}
	return ast.Program{Decls: decls}, nil
}

func resolveLoopLabelsBlock(block ast.Block, current string, ctx *names.Context) (ast.Block, error) {
	var items []ast.BlockItem
	for _, item := range block.Items {
		if stmt, ok := item.(ast.Stmt); ok {
			resolved, err := resolveLoopLabelsStmt(stmt, current, ctx)
			if err != nil {
				return ast.Block{}, err
			}
			items = append(items, resolved)
			continue
		}
		items = append(items, item)
	}
	return ast.Block{Items: items}, nil
}

func resolveLoopLabelsStmt(s ast.Stmt, current string, ctx *names.Context) (ast.Stmt, error) {
	switch stmt := s.(type) {
	case ast.BreakStmt:
		if current == "" {
			return nil, ResolverError{Msg: "break outside of loop"}
		}
		return ast.BreakStmt{Label: current}, nil

	case ast.ContinueStmt:
		if current == "" {
			return nil, ResolverError{Msg: "continue outside of loop"}
		}
		return ast.ContinueStmt{Label: current}, nil

	case ast.WhileStmt:
		label := ctx.Label("while")
		body, err := resolveLoopLabelsStmt(stmt.Body, label, ctx)
		if err != nil {
			return nil, err
		}
		return ast.WhileStmt{Cond: stmt.Cond, Body: body, Label: label}, nil

	case ast.DoWhileStmt:
		label := ctx.Label("do_while")
		body, err := resolveLoopLabelsStmt(stmt.Body, label, ctx)
		if err != nil {
			return nil, err
		}
		return ast.DoWhileStmt{Body: body, Cond: stmt.Cond, Label: label}, nil

	case ast.ForStmt:
		label := ctx.Label("for")
		body, err := resolveLoopLabelsStmt(stmt.Body, label, ctx)
		if err != nil {
			return nil, err
		}
		return ast.ForStmt{Init: stmt.Init, Cond: stmt.Cond, Post: stmt.Post, Body: body, Label: label}, nil

	case ast.IfStmt:
		then, err := resolveLoopLabelsStmt(stmt.Then, current, ctx)
		if err != nil {
			return nil, err
		}
		var elseStmt ast.Stmt
		if stmt.Else != nil {
			elseStmt, err = resolveLoopLabelsStmt(stmt.Else, current, ctx)
			if err != nil {
				return nil, err
			}
		}
		return ast.IfStmt{Cond: stmt.Cond, Then: then, Else: elseStmt}, nil

	case ast.LabelStmt:
		inner, err := resolveLoopLabelsStmt(stmt.Stmt, current, ctx)
		return ast.LabelStmt{Name: stmt.Name, Stmt: inner}, err

	case ast.CompoundStmt:
		block, err := resolveLoopLabelsBlock(stmt.Block, current, ctx)
		return ast.CompoundStmt{Block: block}, err

	default:
		return s, nil
	}
}
