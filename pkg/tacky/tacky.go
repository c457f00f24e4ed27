// Package tacky lowers a resolved, type-checked ast.Program into three-
// address code: a flat sequence of instructions per function, with explicit
// labels and jumps standing in for structured control flow. The emit-a-value
// convention (each recursive expression handler returns the tacky.Value
// holding its result; statement handlers return only an error) mirrors the
// original implementation this spec
// was distilled from (_examples/original_source/nora3/tacky.py), and the
// per-node-kind dispatch style mirrors the teacher's Lowerer
// (pkg/jack/lowering.go: HandleClass/HandleSubroutine/HandleStatement).
package tacky

import (
	"fmt"

	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/names"
	"its-hmny.dev/minic/pkg/types"
)

// TackyGenerationError reports a lowering-time invariant violation; in a
// correctly resolved and type-checked program this should never fire.
type TackyGenerationError struct{ Msg string }

func (e TackyGenerationError) Error() string { return e.Msg }

// ----------------------------------------------------------------------------
// Values

type Value interface{ valueNode() }

type ConstantValue struct{ Value int32 }
type VariableValue struct{ Name string }

func (ConstantValue) valueNode() {}
func (VariableValue) valueNode() {}

// ----------------------------------------------------------------------------
// Instructions

type Instruction interface{ instrNode() }

type ReturnInstr struct{ Val Value }
type UnaryInstr struct {
	Op       ast.UnaryOp
	Src, Dst Value
}
type BinaryInstr struct {
	Op          ast.BinaryOp
	Left, Right Value
	Dst         Value
}
type CopyInstr struct{ Src, Dst Value }
type JumpInstr struct{ Target string }
type JumpIfZeroInstr struct {
	Cond   Value
	Target string
}
type JumpIfNotZeroInstr struct {
	Cond   Value
	Target string
}
type LabelInstr struct{ Name string }
type FuncCallInstr struct {
	Name string
	Args []Value
	Dst  Value
}

func (ReturnInstr) instrNode()         {}
func (UnaryInstr) instrNode()          {}
func (BinaryInstr) instrNode()         {}
func (CopyInstr) instrNode()           {}
func (JumpInstr) instrNode()           {}
func (JumpIfZeroInstr) instrNode()     {}
func (JumpIfNotZeroInstr) instrNode()  {}
func (LabelInstr) instrNode()          {}
func (FuncCallInstr) instrNode()       {}

// ----------------------------------------------------------------------------
// Top levels and Program

type TopLevel interface{ topLevelNode() }

type FuncDef struct {
	Name   string
	Global bool
	Params []string
	Body   []Instruction
}

type StaticVarDef struct {
	Name   string
	Global bool
	Init   int32
}

func (FuncDef) topLevelNode()      {}
func (StaticVarDef) topLevelNode() {}

type Program struct{ TopLevels []TopLevel }

// ----------------------------------------------------------------------------
// Lowerer

// Lowerer turns one resolved, type-checked Program into a tacky.Program. A
// single instance's counters (via names.Context) must be shared with the
// resolver pass that ran beforehand so mangled names never collide.
type Lowerer struct {
	ctx   *names.Context
	table types.SymbolTable
	body  []Instruction
}

// Lower runs the full AST -> TAC pass.
func Lower(prog ast.Program, table types.SymbolTable, ctx *names.Context) (Program, error) {
	l := &Lowerer{ctx: ctx, table: table}

	var tops []TopLevel
	for _, d := range prog.Decls {
		fd, ok := d.(ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		def, err := l.handleFuncDecl(fd)
		if err != nil {
			return Program{}, err
		}
		tops = append(tops, def)
	}

	tops = append(tops, staticVarTopLevels(table)...)
	return Program{TopLevels: tops}, nil
}

// staticVarTopLevels scans the symbol table for Static-attrs entries and
// emits one StaticVarDef per spec §4.5 ("skipping NoInitializer; Tentative
// emits 0"), in a deterministic order since map iteration order is not.
func staticVarTopLevels(table types.SymbolTable) []TopLevel {
	names := make([]string, 0, len(table))
	for name, sym := range table {
		if sym.Type == types.IntSymbol && !sym.Local {
			names = append(names, name)
		}
	}
	sortStrings(names)

	var tops []TopLevel
	for _, name := range names {
		sym := table[name]
		switch sym.Static.Init.Kind {
		case types.NoInitializer:
			continue
		case types.Tentative:
			tops = append(tops, StaticVarDef{Name: name, Global: sym.Static.Global, Init: 0})
		case types.Initial:
			tops = append(tops, StaticVarDef{Name: name, Global: sym.Static.Global, Init: sym.Static.Init.Value})
		}
	}
	return tops
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (l *Lowerer) handleFuncDecl(fd ast.FuncDecl) (FuncDef, error) {
	l.body = nil

	var params []string
	for _, p := range fd.Params {
		params = append(params, p.Name)
	}

	if err := l.handleBlock(*fd.Body); err != nil {
		return FuncDef{}, err
	}
	// Implicit `return 0` so codegen never falls off the end (spec §4.5).
	l.body = append(l.body, ReturnInstr{Val: ConstantValue{Value: 0}})

	global := true
	if sym, ok := l.table[fd.Name]; ok {
		global = sym.Func.Global
	}
	return FuncDef{Name: fd.Name, Global: global, Params: params, Body: l.body}, nil
}

func (l *Lowerer) emit(instr Instruction) { l.body = append(l.body, instr) }

func (l *Lowerer) handleBlock(block ast.Block) error {
	for _, item := range block.Items {
		switch v := item.(type) {
		case ast.VarDecl:
			if v.Storage != ast.NoStorageClass {
				continue // static/extern block-scope vars contribute no code here
			}
			if v.Init != nil {
				val, err := l.handleExpr(v.Init)
				if err != nil {
					return err
				}
				l.emit(CopyInstr{Src: val, Dst: VariableValue{Name: v.Name}})
			}
		case ast.FuncDecl:
			// A nested declaration-only prototype; nothing to lower.
		case ast.Stmt:
			if err := l.handleStmt(v); err != nil {
				return err
			}
		default:
			return TackyGenerationError{Msg: fmt.Sprintf("unhandled block item %T", item)}
		}
	}
	return nil
}

func (l *Lowerer) handleStmt(s ast.Stmt) error {
	switch stmt := s.(type) {
	case ast.ReturnStmt:
		val, err := l.handleExpr(stmt.Expr)
		if err != nil {
			return err
		}
		l.emit(ReturnInstr{Val: val})
		return nil

	case ast.ExpressionStmt:
		_, err := l.handleExpr(stmt.Expr)
		return err

	case ast.NullStmt:
		return nil

	case ast.IfStmt:
		cond, err := l.handleExpr(stmt.Cond)
		if err != nil {
			return err
		}
		if stmt.Else == nil {
			end := l.ctx.Label("if.end")
			l.emit(JumpIfZeroInstr{Cond: cond, Target: end})
			if err := l.handleStmt(stmt.Then); err != nil {
				return err
			}
			l.emit(LabelInstr{Name: end})
			return nil
		}
		elseLabel := l.ctx.Label("if.else")
		end := l.ctx.Label("if.end")
		l.emit(JumpIfZeroInstr{Cond: cond, Target: elseLabel})
		if err := l.handleStmt(stmt.Then); err != nil {
			return err
		}
		l.emit(JumpInstr{Target: end})
		l.emit(LabelInstr{Name: elseLabel})
		if err := l.handleStmt(stmt.Else); err != nil {
			return err
		}
		l.emit(LabelInstr{Name: end})
		return nil

	case ast.LabelStmt:
		l.emit(LabelInstr{Name: stmt.Name})
		return l.handleStmt(stmt.Stmt)

	case ast.GotoStmt:
		l.emit(JumpInstr{Target: stmt.Target})
		return nil

	case ast.CompoundStmt:
		return l.handleBlock(stmt.Block)

	case ast.BreakStmt:
		l.emit(JumpInstr{Target: "__break__" + stmt.Label})
		return nil

	case ast.ContinueStmt:
		l.emit(JumpInstr{Target: "__continue__" + stmt.Label})
		return nil

	case ast.WhileStmt:
		start := "while.start." + stmt.Label
		l.emit(LabelInstr{Name: start})
		cond, err := l.handleExpr(stmt.Cond)
		if err != nil {
			return err
		}
		l.emit(JumpIfZeroInstr{Cond: cond, Target: "__break__" + stmt.Label})
		if err := l.handleStmt(stmt.Body); err != nil {
			return err
		}
		l.emit(LabelInstr{Name: "__continue__" + stmt.Label})
		l.emit(JumpInstr{Target: start})
		l.emit(LabelInstr{Name: "__break__" + stmt.Label})
		return nil

	case ast.DoWhileStmt:
		start := "do_while.start." + stmt.Label
		l.emit(LabelInstr{Name: start})
		if err := l.handleStmt(stmt.Body); err != nil {
			return err
		}
		l.emit(LabelInstr{Name: "__continue__" + stmt.Label})
		cond, err := l.handleExpr(stmt.Cond)
		if err != nil {
			return err
		}
		l.emit(JumpIfNotZeroInstr{Cond: cond, Target: start})
		l.emit(LabelInstr{Name: "__break__" + stmt.Label})
		return nil

	case ast.ForStmt:
		switch init := stmt.Init.(type) {
		case *ast.VarDecl:
			if init.Init != nil {
				val, err := l.handleExpr(init.Init)
				if err != nil {
					return err
				}
				l.emit(CopyInstr{Src: val, Dst: VariableValue{Name: init.Name}})
			}
		case ast.Expr:
			if _, err := l.handleExpr(init); err != nil {
				return err
			}
		}

		start := "for.start." + stmt.Label
		l.emit(LabelInstr{Name: start})
		if stmt.Cond != nil {
			cond, err := l.handleExpr(stmt.Cond)
			if err != nil {
				return err
			}
			l.emit(JumpIfZeroInstr{Cond: cond, Target: "__break__" + stmt.Label})
		}
		if err := l.handleStmt(stmt.Body); err != nil {
			return err
		}
		l.emit(LabelInstr{Name: "__continue__" + stmt.Label})
		if stmt.Post != nil {
			if _, err := l.handleExpr(stmt.Post); err != nil {
				return err
			}
		}
		l.emit(JumpInstr{Target: start})
		l.emit(LabelInstr{Name: "__break__" + stmt.Label})
		return nil

	default:
		return TackyGenerationError{Msg: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func (l *Lowerer) handleExpr(e ast.Expr) (Value, error) {
	switch expr := e.(type) {
	case ast.ConstantExpr:
		return ConstantValue{Value: expr.Value}, nil

	case ast.VariableExpr:
		return VariableValue{Name: expr.Name}, nil

	case ast.UnaryExpr:
		return l.handleUnary(expr)

	case ast.BinaryExpr:
		return l.handleBinary(expr)

	case ast.ConditionalExpr:
		cond, err := l.handleExpr(expr.Cond)
		if err != nil {
			return nil, err
		}
		dst := VariableValue{Name: l.ctx.Temp()}
		elseLabel := l.ctx.Label("else")
		end := l.ctx.Label("end")
		l.emit(JumpIfZeroInstr{Cond: cond, Target: elseLabel})
		thenVal, err := l.handleExpr(expr.Then)
		if err != nil {
			return nil, err
		}
		l.emit(CopyInstr{Src: thenVal, Dst: dst})
		l.emit(JumpInstr{Target: end})
		l.emit(LabelInstr{Name: elseLabel})
		elseVal, err := l.handleExpr(expr.Else)
		if err != nil {
			return nil, err
		}
		l.emit(CopyInstr{Src: elseVal, Dst: dst})
		l.emit(LabelInstr{Name: end})
		return dst, nil

	case ast.FuncCallExpr:
		var args []Value
		for _, a := range expr.Args {
			val, err := l.handleExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, val)
		}
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(FuncCallInstr{Name: expr.Name, Args: args, Dst: dst})
		return dst, nil

	default:
		return nil, TackyGenerationError{Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}

func (l *Lowerer) handleUnary(expr ast.UnaryExpr) (Value, error) {
	switch expr.Op {
	case ast.PrefixInc, ast.PrefixDec:
		src := VariableValue{Name: expr.Expr.(ast.VariableExpr).Name}
		op := ast.Add
		if expr.Op == ast.PrefixDec {
			op = ast.Subtract
		}
		tmp := VariableValue{Name: l.ctx.Temp()}
		l.emit(BinaryInstr{Op: op, Left: src, Right: ConstantValue{Value: 1}, Dst: tmp})
		l.emit(CopyInstr{Src: tmp, Dst: src})
		return src, nil

	case ast.PostfixInc, ast.PostfixDec:
		src := VariableValue{Name: expr.Expr.(ast.VariableExpr).Name}
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(CopyInstr{Src: src, Dst: dst})
		op := ast.Add
		if expr.Op == ast.PostfixDec {
			op = ast.Subtract
		}
		tmp := VariableValue{Name: l.ctx.Temp()}
		l.emit(BinaryInstr{Op: op, Left: src, Right: ConstantValue{Value: 1}, Dst: tmp})
		l.emit(CopyInstr{Src: tmp, Dst: src})
		return dst, nil

	default:
		src, err := l.handleExpr(expr.Expr)
		if err != nil {
			return nil, err
		}
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(UnaryInstr{Op: expr.Op, Src: src, Dst: dst})
		return dst, nil
	}
}

func (l *Lowerer) handleBinary(expr ast.BinaryExpr) (Value, error) {
	switch expr.Op {
	case ast.LogicalAnd:
		left, err := l.handleExpr(expr.Left)
		if err != nil {
			return nil, err
		}
		falseLabel := l.ctx.Label("and.false")
		end := l.ctx.Label("and.end")
		l.emit(JumpIfZeroInstr{Cond: left, Target: falseLabel})
		right, err := l.handleExpr(expr.Right)
		if err != nil {
			return nil, err
		}
		l.emit(JumpIfZeroInstr{Cond: right, Target: falseLabel})
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(CopyInstr{Src: ConstantValue{Value: 1}, Dst: dst})
		l.emit(JumpInstr{Target: end})
		l.emit(LabelInstr{Name: falseLabel})
		l.emit(CopyInstr{Src: ConstantValue{Value: 0}, Dst: dst})
		l.emit(LabelInstr{Name: end})
		return dst, nil

	case ast.LogicalOr:
		left, err := l.handleExpr(expr.Left)
		if err != nil {
			return nil, err
		}
		trueLabel := l.ctx.Label("or.true")
		end := l.ctx.Label("or.end")
		l.emit(JumpIfNotZeroInstr{Cond: left, Target: trueLabel})
		right, err := l.handleExpr(expr.Right)
		if err != nil {
			return nil, err
		}
		l.emit(JumpIfNotZeroInstr{Cond: right, Target: trueLabel})
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(CopyInstr{Src: ConstantValue{Value: 0}, Dst: dst})
		l.emit(JumpInstr{Target: end})
		l.emit(LabelInstr{Name: trueLabel})
		l.emit(CopyInstr{Src: ConstantValue{Value: 1}, Dst: dst})
		l.emit(LabelInstr{Name: end})
		return dst, nil

	default:
		if compound, isCompound := expr.Op.CompoundOp(); isCompound {
			lhs := VariableValue{Name: expr.Left.(ast.VariableExpr).Name}
			right, err := l.handleExpr(expr.Right)
			if err != nil {
				return nil, err
			}
			tmp := VariableValue{Name: l.ctx.Temp()}
			l.emit(BinaryInstr{Op: compound, Left: lhs, Right: right, Dst: tmp})
			l.emit(CopyInstr{Src: tmp, Dst: lhs})
			return lhs, nil
		}

		if expr.Op == ast.Assign {
			lhs := VariableValue{Name: expr.Left.(ast.VariableExpr).Name}
			right, err := l.handleExpr(expr.Right)
			if err != nil {
				return nil, err
			}
			l.emit(CopyInstr{Src: right, Dst: lhs})
			return lhs, nil
		}

		left, err := l.handleExpr(expr.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.handleExpr(expr.Right)
		if err != nil {
			return nil, err
		}
		dst := VariableValue{Name: l.ctx.Temp()}
		l.emit(BinaryInstr{Op: expr.Op, Left: left, Right: right, Dst: dst})
		return dst, nil
	}
}
