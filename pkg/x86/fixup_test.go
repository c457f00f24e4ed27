package x86_test

import (
	"testing"

	"its-hmny.dev/minic/pkg/types"
	"its-hmny.dev/minic/pkg/x86"
)

func TestReplacePseudoAssignsDistinctStackSlots(t *testing.T) {
	fn := x86.Function{Name: "f", Instructions: []x86.Instruction{
		x86.MovInstr{Src: x86.Imm{Value: 1}, Dst: x86.Pseudo{Name: "a"}},
		x86.MovInstr{Src: x86.Pseudo{Name: "a"}, Dst: x86.Pseudo{Name: "b"}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.ReplacePseudo(prog, types.SymbolTable{})

	out := prog.TopLevels[0].(x86.Function)
	firstDst := out.Instructions[0].(x86.MovInstr).Dst.(x86.Stack)
	secondSrc := out.Instructions[1].(x86.MovInstr).Src.(x86.Stack)
	secondDst := out.Instructions[1].(x86.MovInstr).Dst.(x86.Stack)

	if firstDst != secondSrc {
		t.Errorf("got %+v and %+v, want the same pseudo 'a' to resolve to the same slot", firstDst, secondSrc)
	}
	if secondSrc == secondDst {
		t.Errorf("pseudo 'a' and 'b' resolved to the same slot %+v", secondSrc)
	}
	if out.StackSize == 0 {
		t.Errorf("expected a non-zero StackSize after assigning two slots")
	}
}

func TestReplacePseudoUsesDataForStaticSymbols(t *testing.T) {
	table := types.SymbolTable{
		"counter": {Type: types.IntSymbol, Static: types.StaticAttrs{Init: types.InitialValue{Kind: types.Initial, Value: 0}}},
	}
	fn := x86.Function{Name: "f", Instructions: []x86.Instruction{
		x86.MovInstr{Src: x86.Imm{Value: 1}, Dst: x86.Pseudo{Name: "counter"}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.ReplacePseudo(prog, table)

	out := prog.TopLevels[0].(x86.Function)
	dst, ok := out.Instructions[0].(x86.MovInstr).Dst.(x86.Data)
	if !ok || dst.Name != "counter" {
		t.Fatalf("got %+v, want Data{counter}", out.Instructions[0].(x86.MovInstr).Dst)
	}
}

func TestRoundDownTo16(t *testing.T) {
	// Exercised indirectly through ReplacePseudo's StackSize; verify a handful
	// of slot counts land on the expected 16-byte-aligned frame size.
	cases := []struct {
		slots int
		want  int
	}{
		{1, -16}, // 4 bytes used -> rounds down to -16
		{4, -16}, // 16 bytes used -> stays -16
		{5, -32}, // 20 bytes used -> rounds down to -32
	}
	for _, c := range cases {
		var instrs []x86.Instruction
		for i := 0; i < c.slots; i++ {
			instrs = append(instrs, x86.MovInstr{Src: x86.Imm{Value: 0}, Dst: x86.Pseudo{Name: string(rune('a' + i))}})
		}
		prog := x86.Program{TopLevels: []x86.TopLevel{x86.Function{Name: "f", Instructions: instrs}}}
		x86.ReplacePseudo(prog, types.SymbolTable{})
		got := prog.TopLevels[0].(x86.Function).StackSize
		if got != c.want {
			t.Errorf("%d slots: got StackSize %d, want %d", c.slots, got, c.want)
		}
	}
}

func TestFixUpTwoMemoryOperandMovGoesThroughR10(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -16, Instructions: []x86.Instruction{
		x86.MovInstr{Src: x86.Stack{Offset: -4}, Dst: x86.Stack{Offset: -8}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	// Instructions[0] is the prepended AllocateStack; the rewrite follows.
	first := out.Instructions[1].(x86.MovInstr)
	second := out.Instructions[2].(x86.MovInstr)
	if first.Dst.(x86.Reg).Name != x86.R10 {
		t.Errorf("got %+v, want the first half to land in R10", first)
	}
	if second.Src.(x86.Reg).Name != x86.R10 {
		t.Errorf("got %+v, want the second half to read from R10", second)
	}
}

func TestFixUpImulMemoryDestGoesThroughR11(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -16, Instructions: []x86.Instruction{
		x86.BinaryInstr{Op: x86.OpMul, Src: x86.Imm{Value: 2}, Dst: x86.Stack{Offset: -4}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	if len(out.Instructions) != 4 { // alloc + mov-in, imul, mov-out
		t.Fatalf("got %d instructions, want 4: %+v", len(out.Instructions), out.Instructions)
	}
	mid := out.Instructions[2].(x86.BinaryInstr)
	if mid.Dst.(x86.Reg).Name != x86.R11 {
		t.Errorf("got %+v, want imul's dest rewritten to R11", mid)
	}
}

func TestFixUpShiftCountMustBeCL(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -16, Instructions: []x86.Instruction{
		x86.BinaryInstr{Op: x86.OpSal, Src: x86.Stack{Offset: -4}, Dst: x86.Stack{Offset: -8}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	movToCX := out.Instructions[1].(x86.MovInstr)
	if movToCX.Dst.(x86.Reg).Name != x86.CX {
		t.Fatalf("got %+v, want the shift count moved into CX first", movToCX)
	}
	shift := out.Instructions[2].(x86.BinaryInstr)
	if shift.Src.(x86.Reg).Name != x86.CX || shift.Src.(x86.Reg).Width != 1 {
		t.Errorf("got %+v, want the shift's Src to be CX at width 1 (CL)", shift.Src)
	}
}

func TestFixUpCmpRightOperandCannotBeImmediate(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -16, Instructions: []x86.Instruction{
		x86.CmpInstr{Left: x86.Stack{Offset: -4}, Right: x86.Imm{Value: 5}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	mov := out.Instructions[1].(x86.MovInstr)
	if mov.Dst.(x86.Reg).Name != x86.R11 {
		t.Fatalf("got %+v, want the immediate moved into R11 first", mov)
	}
	cmp := out.Instructions[2].(x86.CmpInstr)
	if cmp.Right.(x86.Reg).Name != x86.R11 {
		t.Errorf("got %+v, want Cmp's Right operand rewritten to R11", cmp)
	}
}

func TestFixUpIdivImmediateDivisorGoesThroughR10(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -16, Instructions: []x86.Instruction{
		x86.IdivInstr{Divisor: x86.Imm{Value: 3}},
	}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	mov := out.Instructions[1].(x86.MovInstr)
	idiv := out.Instructions[2].(x86.IdivInstr)
	if mov.Dst.(x86.Reg).Name != x86.R10 || idiv.Divisor.(x86.Reg).Name != x86.R10 {
		t.Fatalf("got mov=%+v idiv=%+v, want both to use R10", mov, idiv)
	}
}

func TestFixUpPrependsAllocateStack(t *testing.T) {
	fn := x86.Function{Name: "f", StackSize: -32, Instructions: []x86.Instruction{x86.RetInstr{}}}
	prog := x86.Program{TopLevels: []x86.TopLevel{fn}}
	x86.FixUp(prog)

	out := prog.TopLevels[0].(x86.Function)
	alloc, ok := out.Instructions[0].(x86.AllocateStackInstr)
	if !ok || alloc.Size != 32 {
		t.Fatalf("got %+v, want AllocateStackInstr{32}", out.Instructions[0])
	}
}
