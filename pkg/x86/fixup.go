package x86

import "its-hmny.dev/minic/pkg/types"

// ReplacePseudo walks every Function's instructions, replacing each Pseudo
// operand with Data (for names the symbol table marks Static) or a frame-
// relative Stack slot (assigned on first sight, 4 bytes at a time), per spec
// §4.7. It mutates prog in place and records each Function's resulting
// stack size, rounded down to a 16-byte boundary.
func ReplacePseudo(prog Program, table types.SymbolTable) {
	for i, top := range prog.TopLevels {
		fn, ok := top.(Function)
		if !ok {
			continue
		}
		replacePseudoInFunction(&fn, table)
		prog.TopLevels[i] = fn
	}
}

func replacePseudoInFunction(fn *Function, table types.SymbolTable) {
	offsets := map[string]int{}
	stackSize := 0

	resolve := func(op Operand) Operand {
		p, ok := op.(Pseudo)
		if !ok {
			return op
		}
		if sym, isStatic := table[p.Name]; isStatic && sym.Type == types.IntSymbol && !sym.Local {
			return Data{Name: p.Name}
		}
		if offset, seen := offsets[p.Name]; seen {
			return Stack{Offset: offset}
		}
		stackSize -= 4
		offsets[p.Name] = stackSize
		return Stack{Offset: stackSize}
	}

	for i, inst := range fn.Instructions {
		fn.Instructions[i] = replacePseudoInInstruction(inst, resolve)
	}

	fn.StackSize = roundDownTo16(stackSize)
}

func roundDownTo16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n - 16 - (n % 16)
}

func replacePseudoInInstruction(inst Instruction, resolve func(Operand) Operand) Instruction {
	switch in := inst.(type) {
	case MovInstr:
		return MovInstr{Src: resolve(in.Src), Dst: resolve(in.Dst)}
	case UnaryInstr:
		return UnaryInstr{Op: in.Op, Dst: resolve(in.Dst)}
	case BinaryInstr:
		return BinaryInstr{Op: in.Op, Src: resolve(in.Src), Dst: resolve(in.Dst)}
	case CmpInstr:
		return CmpInstr{Left: resolve(in.Left), Right: resolve(in.Right)}
	case IdivInstr:
		return IdivInstr{Divisor: resolve(in.Divisor)}
	case SetCCInstr:
		return SetCCInstr{Cond: in.Cond, Dst: resolve(in.Dst)}
	case PushInstr:
		return PushInstr{Src: resolve(in.Src)}
	default:
		return inst // Jmp/JmpCC/Label/Cdq/AllocateStack/DeallocateStack/Call/Ret carry no Pseudo operand
	}
}

func isMemory(op Operand) bool {
	switch op.(type) {
	case Stack, Data:
		return true
	default:
		return false
	}
}

func isImmediate(op Operand) bool {
	_, ok := op.(Imm)
	return ok
}

// FixUp rewrites every illegal x86 operand combination into a legal
// sequence (spec §4.7) and prepends each function with its AllocateStack.
func FixUp(prog Program) {
	for i, top := range prog.TopLevels {
		fn, ok := top.(Function)
		if !ok {
			continue
		}
		fn.Instructions = fixUpFunction(fn)
		prog.TopLevels[i] = fn
	}
}

func fixUpFunction(fn Function) []Instruction {
	out := []Instruction{AllocateStackInstr{Size: -fn.StackSize}}
	for _, inst := range fn.Instructions {
		out = append(out, fixUpInstruction(inst)...)
	}
	return out
}

func fixUpInstruction(inst Instruction) []Instruction {
	switch in := inst.(type) {
	case MovInstr:
		if isMemory(in.Src) && isMemory(in.Dst) {
			return []Instruction{
				MovInstr{Src: in.Src, Dst: Reg{Name: R10, Width: 4}},
				MovInstr{Src: Reg{Name: R10, Width: 4}, Dst: in.Dst},
			}
		}
		return []Instruction{in}

	case BinaryInstr:
		switch in.Op {
		case OpAdd, OpSub, OpAnd, OpOr, OpXor:
			if isMemory(in.Src) && isMemory(in.Dst) {
				return []Instruction{
					MovInstr{Src: in.Src, Dst: Reg{Name: R10, Width: 4}},
					BinaryInstr{Op: in.Op, Src: Reg{Name: R10, Width: 4}, Dst: in.Dst},
				}
			}
			return []Instruction{in}

		case OpMul:
			if isMemory(in.Dst) {
				return []Instruction{
					MovInstr{Src: in.Dst, Dst: Reg{Name: R11, Width: 4}},
					BinaryInstr{Op: OpMul, Src: in.Src, Dst: Reg{Name: R11, Width: 4}},
					MovInstr{Src: Reg{Name: R11, Width: 4}, Dst: in.Dst},
				}
			}
			return []Instruction{in}

		case OpSal, OpSar:
			if reg, isReg := in.Src.(Reg); isReg && reg.Name == CX {
				return []Instruction{in}
			}
			if isImmediate(in.Src) {
				return []Instruction{in}
			}
			return []Instruction{
				MovInstr{Src: in.Src, Dst: Reg{Name: CX, Width: 4}},
				BinaryInstr{Op: in.Op, Src: Reg{Name: CX, Width: 1}, Dst: in.Dst},
			}

		default:
			return []Instruction{in}
		}

	case CmpInstr:
		switch {
		case isMemory(in.Left) && isMemory(in.Right):
			return []Instruction{
				MovInstr{Src: in.Left, Dst: Reg{Name: R10, Width: 4}},
				CmpInstr{Left: Reg{Name: R10, Width: 4}, Right: in.Right},
			}
		case isImmediate(in.Right):
			return []Instruction{
				MovInstr{Src: in.Right, Dst: Reg{Name: R11, Width: 4}},
				CmpInstr{Left: in.Left, Right: Reg{Name: R11, Width: 4}},
			}
		default:
			return []Instruction{in}
		}

	case IdivInstr:
		if isImmediate(in.Divisor) {
			return []Instruction{
				MovInstr{Src: in.Divisor, Dst: Reg{Name: R10, Width: 4}},
				IdivInstr{Divisor: Reg{Name: R10, Width: 4}},
			}
		}
		return []Instruction{in}

	default:
		return []Instruction{in}
	}
}
