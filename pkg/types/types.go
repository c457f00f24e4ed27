// Package types implements the type checker (spec §4.4): it walks a resolved
// ast.Program, populates a SymbolTable, and enforces linkage/initializer
// rules. The symbol table's value types mirror the original implementation
// this spec was distilled from (_examples/original_source/nora3/
// builtin_types.py): InitialValue is a closed sum (Tentative / Initial(v) /
// NoInitializer), IdentifierAttrs is a closed sum (Func / Static / Local),
// both expressed here as tagged structs the way the teacher expresses AST
// node variants (pkg/jack/jack.go) rather than as an interface hierarchy.
package types

import (
	"fmt"

	"its-hmny.dev/minic/pkg/ast"
)

// TypeCheckerError reports a semantic mistake caught while type-checking.
type TypeCheckerError struct{ Msg string }

func (e TypeCheckerError) Error() string { return e.Msg }

// InitialValueKind tags the three shapes a file/static-scope variable's
// initializer can take.
type InitialValueKind int

const (
	Tentative InitialValueKind = iota
	Initial
	NoInitializer
)

// InitialValue carries the kind and, for Initial, the constant value.
type InitialValue struct {
	Kind  InitialValueKind
	Value int32 // meaningful only when Kind == Initial
}

func (v InitialValue) Equal(o InitialValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	return v.Kind != Initial || v.Value == o.Value
}

// Type distinguishes a function symbol from the sole scalar type, Int.
type Type int

const (
	IntSymbol Type = iota
	FuncSymbol
)

// FuncAttrs describes a function symbol: whether its body has been seen and
// whether it is externally visible.
type FuncAttrs struct {
	Defined bool
	Global  bool
	Arity   int
}

// StaticAttrs describes a file- or block-scope static-duration variable.
type StaticAttrs struct {
	Init   InitialValue
	Global bool
}

// LocalAttrs tags an automatic-duration variable; it carries no data.
type LocalAttrs struct{}

// Symbol is one symbol table entry. Exactly one of Func/Static is meaningful,
// selected by Type; a Local variable has Type == IntSymbol and neither set.
type Symbol struct {
	Type   Type
	Func   FuncAttrs
	Static StaticAttrs
	Local  bool // true iff this is a Local-attrs automatic variable
}

// SymbolTable maps a resolved (mangled) identifier to its Symbol.
type SymbolTable map[string]Symbol

// Check type-checks prog in place (the resolver has already renamed every
// identifier to a globally unique name, so no further scoping is needed) and
// returns the populated symbol table.
func Check(prog ast.Program) (SymbolTable, error) {
	table := SymbolTable{}
	for _, d := range prog.Decls {
		if err := checkFileScopeDecl(d, table); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func checkFileScopeDecl(d ast.Decl, table SymbolTable) error {
	switch decl := d.(type) {
	case ast.VarDecl:
		return checkFileScopeVar(decl, table)
	case ast.FuncDecl:
		return checkFuncDecl(decl, table, true)
	default:
		return TypeCheckerError{Msg: fmt.Sprintf("unhandled top-level declaration %T", d)}
	}
}

func constantValue(e ast.Expr) (int32, bool) {
	c, ok := e.(ast.ConstantExpr)
	if !ok {
		return 0, false
	}
	return c.Value, true
}

func checkFileScopeVar(decl ast.VarDecl, table SymbolTable) error {
	var initVal InitialValue
	switch {
	case decl.Init != nil:
		v, ok := constantValue(decl.Init)
		if !ok {
			return TypeCheckerError{Msg: fmt.Sprintf("file-scope initializer for '%s' must be a constant", decl.Name)}
		}
		initVal = InitialValue{Kind: Initial, Value: v}
	case decl.Storage == ast.Extern:
		initVal = InitialValue{Kind: NoInitializer}
	default:
		initVal = InitialValue{Kind: Tentative}
	}

	global := decl.Storage != ast.Static

	existing, exists := table[decl.Name]
	if !exists {
		table[decl.Name] = Symbol{Type: IntSymbol, Static: StaticAttrs{Init: initVal, Global: global}}
		return nil
	}

	if existing.Type != IntSymbol {
		return TypeCheckerError{Msg: fmt.Sprintf("'%s' redeclared as a different kind of symbol", decl.Name)}
	}

	if decl.Storage == ast.Extern {
		global = existing.Static.Global
	} else if global != existing.Static.Global {
		return TypeCheckerError{Msg: fmt.Sprintf("conflicting linkage for '%s'", decl.Name)}
	}

	merged, err := mergeInitialValues(existing.Static.Init, initVal, decl.Name)
	if err != nil {
		return err
	}
	table[decl.Name] = Symbol{Type: IntSymbol, Static: StaticAttrs{Init: merged, Global: global}}
	return nil
}

func mergeInitialValues(old, new InitialValue, name string) (InitialValue, error) {
	if old.Kind == Initial {
		if new.Kind == Initial {
			return InitialValue{}, TypeCheckerError{Msg: fmt.Sprintf("conflicting file-scope definitions for '%s'", name)}
		}
		return old, nil
	}
	if new.Kind != Initial && old.Kind == Tentative {
		return InitialValue{Kind: Tentative}, nil
	}
	return new, nil
}

func checkFuncDecl(decl ast.FuncDecl, table SymbolTable, fileScope bool) error {
	hasBody := decl.Body != nil
	global := decl.Storage != ast.Static

	existing, exists := table[decl.Name]
	if exists {
		if existing.Type != FuncSymbol {
			return TypeCheckerError{Msg: fmt.Sprintf("'%s' redeclared as a different kind of symbol", decl.Name)}
		}
		if existing.Func.Arity != len(decl.Params) {
			return TypeCheckerError{Msg: fmt.Sprintf("conflicting declarations of function '%s' (arity mismatch)", decl.Name)}
		}
		if existing.Func.Defined && hasBody {
			return TypeCheckerError{Msg: fmt.Sprintf("function '%s' redefined", decl.Name)}
		}
		if decl.Storage == ast.Static && existing.Func.Global {
			return TypeCheckerError{Msg: fmt.Sprintf("static declaration of '%s' follows non-static declaration", decl.Name)}
		}
		global = existing.Func.Global && global
	}

	table[decl.Name] = Symbol{Type: FuncSymbol, Func: FuncAttrs{
		Defined: (exists && existing.Func.Defined) || hasBody,
		Global:  global,
		Arity:   len(decl.Params),
	}}

	if !hasBody {
		return nil
	}

	for _, param := range decl.Params {
		table[param.Name] = Symbol{Type: IntSymbol, Local: true}
	}
	return checkBlock(*decl.Body, table)
}

func checkBlock(block ast.Block, table SymbolTable) error {
	for _, item := range block.Items {
		if err := checkBlockItem(item, table); err != nil {
			return err
		}
	}
	return nil
}

func checkBlockItem(item ast.BlockItem, table SymbolTable) error {
	switch v := item.(type) {
	case ast.VarDecl:
		return checkBlockScopeVar(v, table)
	case ast.FuncDecl:
		if v.Body != nil {
			return TypeCheckerError{Msg: fmt.Sprintf("nested function '%s' may not have a body", v.Name)}
		}
		return checkFuncDecl(v, table, false)
	case ast.Stmt:
		return checkStmt(v, table)
	default:
		return TypeCheckerError{Msg: fmt.Sprintf("unhandled block item %T", item)}
	}
}

func checkBlockScopeVar(decl ast.VarDecl, table SymbolTable) error {
	switch decl.Storage {
	case ast.Extern:
		if decl.Init != nil {
			return TypeCheckerError{Msg: fmt.Sprintf("'%s' declared 'extern' with an initializer", decl.Name)}
		}
		if existing, ok := table[decl.Name]; ok {
			if existing.Type != IntSymbol {
				return TypeCheckerError{Msg: fmt.Sprintf("'%s' redeclared as a different kind of symbol", decl.Name)}
			}
			return nil
		}
		table[decl.Name] = Symbol{Type: IntSymbol, Static: StaticAttrs{Init: InitialValue{Kind: NoInitializer}, Global: true}}
		return nil

	case ast.Static:
		initVal := InitialValue{Kind: Initial, Value: 0}
		if decl.Init != nil {
			v, ok := constantValue(decl.Init)
			if !ok {
				return TypeCheckerError{Msg: fmt.Sprintf("static initializer for '%s' must be a constant", decl.Name)}
			}
			initVal = InitialValue{Kind: Initial, Value: v}
		}
		table[decl.Name] = Symbol{Type: IntSymbol, Static: StaticAttrs{Init: initVal, Global: false}}
		return nil

	default:
		table[decl.Name] = Symbol{Type: IntSymbol, Local: true}
		if decl.Init != nil {
			return checkExpr(decl.Init, table)
		}
		return nil
	}
}

func checkStmt(s ast.Stmt, table SymbolTable) error {
	switch stmt := s.(type) {
	case ast.ReturnStmt:
		return checkExpr(stmt.Expr, table)
	case ast.ExpressionStmt:
		return checkExpr(stmt.Expr, table)
	case ast.IfStmt:
		if err := checkExpr(stmt.Cond, table); err != nil {
			return err
		}
		if err := checkStmt(stmt.Then, table); err != nil {
			return err
		}
		if stmt.Else != nil {
			return checkStmt(stmt.Else, table)
		}
		return nil
	case ast.LabelStmt:
		return checkStmt(stmt.Stmt, table)
	case ast.GotoStmt, ast.BreakStmt, ast.ContinueStmt, ast.NullStmt:
		return nil
	case ast.CompoundStmt:
		return checkBlock(stmt.Block, table)
	case ast.WhileStmt:
		if err := checkExpr(stmt.Cond, table); err != nil {
			return err
		}
		return checkStmt(stmt.Body, table)
	case ast.DoWhileStmt:
		if err := checkStmt(stmt.Body, table); err != nil {
			return err
		}
		return checkExpr(stmt.Cond, table)
	case ast.ForStmt:
		switch init := stmt.Init.(type) {
		case *ast.VarDecl:
			if init.Storage != ast.NoStorageClass {
				return TypeCheckerError{Msg: "for-loop initializer must be an automatic-duration declaration"}
			}
			if err := checkBlockScopeVar(*init, table); err != nil {
				return err
			}
		case ast.Expr:
			if err := checkExpr(init, table); err != nil {
				return err
			}
		}
		if stmt.Cond != nil {
			if err := checkExpr(stmt.Cond, table); err != nil {
				return err
			}
		}
		if stmt.Post != nil {
			if err := checkExpr(stmt.Post, table); err != nil {
				return err
			}
		}
		return checkStmt(stmt.Body, table)
	default:
		return TypeCheckerError{Msg: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func checkExpr(e ast.Expr, table SymbolTable) error {
	switch expr := e.(type) {
	case ast.ConstantExpr:
		return nil

	case ast.VariableExpr:
		sym, ok := table[expr.Name]
		if !ok {
			return TypeCheckerError{Msg: fmt.Sprintf("'%s' used before its type is known", expr.Name)}
		}
		if sym.Type != IntSymbol {
			return TypeCheckerError{Msg: fmt.Sprintf("function '%s' used as a variable", expr.Name)}
		}
		return nil

	case ast.UnaryExpr:
		return checkExpr(expr.Expr, table)

	case ast.BinaryExpr:
		if err := checkExpr(expr.Left, table); err != nil {
			return err
		}
		return checkExpr(expr.Right, table)

	case ast.ConditionalExpr:
		if err := checkExpr(expr.Cond, table); err != nil {
			return err
		}
		if err := checkExpr(expr.Then, table); err != nil {
			return err
		}
		return checkExpr(expr.Else, table)

	case ast.FuncCallExpr:
		sym, ok := table[expr.Name]
		if !ok {
			return TypeCheckerError{Msg: fmt.Sprintf("call to undeclared function '%s'", expr.Name)}
		}
		if sym.Type != FuncSymbol {
			return TypeCheckerError{Msg: fmt.Sprintf("variable '%s' used as a function", expr.Name)}
		}
		if sym.Func.Arity != len(expr.Args) {
			return TypeCheckerError{Msg: fmt.Sprintf("function '%s' called with %d arguments, expected %d (arity mismatch)", expr.Name, len(expr.Args), sym.Func.Arity)}
		}
		for _, a := range expr.Args {
			if err := checkExpr(a, table); err != nil {
				return err
			}
		}
		return nil

	default:
		return TypeCheckerError{Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}
