package x86_test

import (
	"testing"

	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/tacky"
	"its-hmny.dev/minic/pkg/x86"
)

func TestLowerReturnMovesIntoEAXAndReturns(t *testing.T) {
	prog := tacky.Program{TopLevels: []tacky.TopLevel{
		tacky.FuncDef{Name: "main", Global: true, Body: []tacky.Instruction{
			tacky.ReturnInstr{Val: tacky.ConstantValue{Value: 7}},
		}},
	}}

	asm, err := x86.Lower(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := asm.TopLevels[0].(x86.Function)
	if len(fn.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2 (mov, ret)", len(fn.Instructions))
	}
	mov, ok := fn.Instructions[0].(x86.MovInstr)
	if !ok {
		t.Fatalf("got %T, want x86.MovInstr", fn.Instructions[0])
	}
	if mov.Src.(x86.Imm).Value != 7 {
		t.Errorf("got %+v, want Imm{7}", mov.Src)
	}
	if mov.Dst.(x86.Reg).Name != x86.AX {
		t.Errorf("got %+v, want AX", mov.Dst)
	}
	if _, ok := fn.Instructions[1].(x86.RetInstr); !ok {
		t.Fatalf("got %T, want x86.RetInstr", fn.Instructions[1])
	}
}

func TestLowerPrologueSplitsRegisterAndStackParams(t *testing.T) {
	params := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	prog := tacky.Program{TopLevels: []tacky.TopLevel{
		tacky.FuncDef{Name: "f", Global: true, Params: params, Body: []tacky.Instruction{
			tacky.ReturnInstr{Val: tacky.ConstantValue{Value: 0}},
		}},
	}}

	asm, err := x86.Lower(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := asm.TopLevels[0].(x86.Function)

	// First 6 params come from argument registers, the remaining 2 from the stack.
	for i := 0; i < 6; i++ {
		mov := fn.Instructions[i].(x86.MovInstr)
		if mov.Src.(x86.Reg).Name != x86.ArgRegisters[i] {
			t.Errorf("param %d: got src %+v, want register %s", i, mov.Src, x86.ArgRegisters[i])
		}
	}
	mov6 := fn.Instructions[6].(x86.MovInstr)
	if mov6.Src.(x86.Stack).Offset != 16 {
		t.Errorf("7th param: got %+v, want Stack{16}", mov6.Src)
	}
	mov7 := fn.Instructions[7].(x86.MovInstr)
	if mov7.Src.(x86.Stack).Offset != 24 {
		t.Errorf("8th param: got %+v, want Stack{24}", mov7.Src)
	}
}

func TestLowerDivideUsesCdqAndIdiv(t *testing.T) {
	prog := tacky.Program{TopLevels: []tacky.TopLevel{
		tacky.FuncDef{Name: "main", Global: true, Body: []tacky.Instruction{
			tacky.BinaryInstr{Op: ast.Divide, Left: tacky.ConstantValue{Value: 10}, Right: tacky.ConstantValue{Value: 2}, Dst: tacky.VariableValue{Name: "t"}},
			tacky.ReturnInstr{Val: tacky.VariableValue{Name: "t"}},
		}},
	}}
	asm, err := x86.Lower(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := asm.TopLevels[0].(x86.Function)

	var sawCdq, sawIdiv bool
	for _, inst := range fn.Instructions {
		switch inst.(type) {
		case x86.CdqInstr:
			sawCdq = true
		case x86.IdivInstr:
			sawIdiv = true
		}
	}
	if !sawCdq || !sawIdiv {
		t.Fatalf("expected Cdq and Idiv in divide lowering, got %+v", fn.Instructions)
	}
}

func TestLowerRelationalUsesCmpAndSetCC(t *testing.T) {
	prog := tacky.Program{TopLevels: []tacky.TopLevel{
		tacky.FuncDef{Name: "main", Global: true, Body: []tacky.Instruction{
			tacky.BinaryInstr{Op: ast.LessThan, Left: tacky.ConstantValue{Value: 1}, Right: tacky.ConstantValue{Value: 2}, Dst: tacky.VariableValue{Name: "t"}},
			tacky.ReturnInstr{Val: tacky.VariableValue{Name: "t"}},
		}},
	}}
	asm, err := x86.Lower(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := asm.TopLevels[0].(x86.Function)

	cmp, ok := fn.Instructions[0].(x86.CmpInstr)
	if !ok {
		t.Fatalf("got %T, want x86.CmpInstr", fn.Instructions[0])
	}
	// Cmp operand order is flipped: spec's "cmp right, left" reads as AT&T "cmpl right, left".
	if cmp.Left.(x86.Imm).Value != 2 || cmp.Right.(x86.Imm).Value != 1 {
		t.Errorf("got Left=%+v Right=%+v, want Left=Imm{2} Right=Imm{1}", cmp.Left, cmp.Right)
	}
	set, ok := fn.Instructions[2].(x86.SetCCInstr)
	if !ok || set.Cond != x86.CCLess {
		t.Fatalf("got %+v, want SetCCInstr{Cond: CCLess}", fn.Instructions[2])
	}
}

func TestLowerFuncCallOddStackArgsArePadded(t *testing.T) {
	args := make([]tacky.Value, 7) // 6 in registers, 1 on the stack -> odd, needs padding
	for i := range args {
		args[i] = tacky.ConstantValue{Value: int32(i)}
	}
	prog := tacky.Program{TopLevels: []tacky.TopLevel{
		tacky.FuncDef{Name: "main", Global: true, Body: []tacky.Instruction{
			tacky.FuncCallInstr{Name: "f", Args: args, Dst: tacky.VariableValue{Name: "t"}},
			tacky.ReturnInstr{Val: tacky.VariableValue{Name: "t"}},
		}},
	}}
	asm, err := x86.Lower(prog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := asm.TopLevels[0].(x86.Function)

	alloc, ok := fn.Instructions[0].(x86.AllocateStackInstr)
	if !ok || alloc.Size != 8 {
		t.Fatalf("got %+v, want AllocateStackInstr{8} padding for an odd stack-arg count", fn.Instructions[0])
	}

	var sawCall bool
	var dealloc x86.DeallocateStackInstr
	for _, inst := range fn.Instructions {
		if _, ok := inst.(x86.CallInstr); ok {
			sawCall = true
		}
		if d, ok := inst.(x86.DeallocateStackInstr); ok {
			dealloc = d
		}
	}
	if !sawCall {
		t.Fatalf("expected a CallInstr")
	}
	if dealloc.Size != 8+8 { // 1 stack arg (8 bytes) + 8 bytes padding
		t.Errorf("got deallocate size %d, want 16", dealloc.Size)
	}
}
