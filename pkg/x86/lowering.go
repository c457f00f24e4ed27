package x86

import (
	"fmt"

	"its-hmny.dev/minic/pkg/tacky"
)

// LoweringError reports a tacky.Value/Instruction combination the lowering
// table doesn't know how to translate; should never fire on well-formed TAC.
type LoweringError struct{ Msg string }

func (e LoweringError) Error() string { return e.Msg }

// Lower converts a tacky.Program into the assembly AST, per spec §4.6.
func Lower(prog tacky.Program) (Program, error) {
	var tops []TopLevel
	for _, top := range prog.TopLevels {
		switch t := top.(type) {
		case tacky.FuncDef:
			fn, err := lowerFunction(t)
			if err != nil {
				return Program{}, err
			}
			tops = append(tops, fn)
		case tacky.StaticVarDef:
			tops = append(tops, StaticVar{Name: t.Name, Global: t.Global, Init: t.Init})
		default:
			return Program{}, LoweringError{Msg: fmt.Sprintf("unhandled top level %T", top)}
		}
	}
	return Program{TopLevels: tops}, nil
}

func lowerValue(v tacky.Value) Operand {
	switch val := v.(type) {
	case tacky.ConstantValue:
		return Imm{Value: val.Value}
	case tacky.VariableValue:
		return Pseudo{Name: val.Name}
	default:
		return Imm{Value: 0}
	}
}

func lowerFunction(fn tacky.FuncDef) (Function, error) {
	var instrs []Instruction
	instrs = append(instrs, lowerPrologue(fn.Params)...)

	for _, inst := range fn.Body {
		lowered, err := lowerInstruction(inst)
		if err != nil {
			return Function{}, err
		}
		instrs = append(instrs, lowered...)
	}

	return Function{Name: fn.Name, Global: fn.Global, Instructions: instrs}, nil
}

// lowerPrologue moves the incoming arguments (first 6 in registers, the rest
// on the caller's stack) into the callee's pseudo-registers, per spec §4.6.
func lowerPrologue(params []string) []Instruction {
	var instrs []Instruction
	for i, name := range params {
		dst := Pseudo{Name: name}
		if i < len(ArgRegisters) {
			instrs = append(instrs, MovInstr{Src: Reg{Name: ArgRegisters[i], Width: 4}, Dst: dst})
			continue
		}
		stackIdx := i - len(ArgRegisters)
		instrs = append(instrs, MovInstr{Src: Stack{Offset: 16 + 8*stackIdx}, Dst: dst})
	}
	return instrs
}

func lowerInstruction(inst tacky.Instruction) ([]Instruction, error) {
	switch in := inst.(type) {
	case tacky.ReturnInstr:
		return []Instruction{
			MovInstr{Src: lowerValue(in.Val), Dst: Reg{Name: AX, Width: 4}},
			RetInstr{},
		}, nil

	case tacky.UnaryInstr:
		return lowerUnary(in)

	case tacky.BinaryInstr:
		return lowerBinary(in)

	case tacky.CopyInstr:
		return []Instruction{MovInstr{Src: lowerValue(in.Src), Dst: lowerValue(in.Dst)}}, nil

	case tacky.JumpInstr:
		return []Instruction{JmpInstr{Target: localLabel(in.Target)}}, nil

	case tacky.JumpIfZeroInstr:
		return []Instruction{
			CmpInstr{Left: Imm{Value: 0}, Right: lowerValue(in.Cond)},
			JmpCCInstr{Cond: CCEqual, Target: localLabel(in.Target)},
		}, nil

	case tacky.JumpIfNotZeroInstr:
		return []Instruction{
			CmpInstr{Left: Imm{Value: 0}, Right: lowerValue(in.Cond)},
			JmpCCInstr{Cond: CCNotEqual, Target: localLabel(in.Target)},
		}, nil

	case tacky.LabelInstr:
		return []Instruction{LabelInstr{Name: localLabel(in.Name)}}, nil

	case tacky.FuncCallInstr:
		return lowerFuncCall(in)

	default:
		return nil, LoweringError{Msg: fmt.Sprintf("unhandled tacky instruction %T", inst)}
	}
}

// localLabel prefixes a TAC label with ".L" so it is emitted as a local
// (non-exported) symbol, per spec §4.7 text emission rules.
func localLabel(name string) string { return ".L" + name }

func lowerUnary(in tacky.UnaryInstr) ([]Instruction, error) {
	src, dst := lowerValue(in.Src), lowerValue(in.Dst)
	switch in.Op {
	case "complement":
		return []Instruction{MovInstr{Src: src, Dst: dst}, UnaryInstr{Op: OpNot, Dst: dst}}, nil
	case "negate":
		return []Instruction{MovInstr{Src: src, Dst: dst}, UnaryInstr{Op: OpNeg, Dst: dst}}, nil
	case "logical_not":
		return []Instruction{
			CmpInstr{Left: Imm{Value: 0}, Right: src},
			MovInstr{Src: Imm{Value: 0}, Dst: dst},
			SetCCInstr{Cond: CCEqual, Dst: dst},
		}, nil
	default:
		return nil, LoweringError{Msg: fmt.Sprintf("unhandled unary op %q", in.Op)}
	}
}

func lowerBinary(in tacky.BinaryInstr) ([]Instruction, error) {
	left, right, dst := lowerValue(in.Left), lowerValue(in.Right), lowerValue(in.Dst)

	switch in.Op {
	case "divide":
		return []Instruction{
			MovInstr{Src: left, Dst: Reg{Name: AX, Width: 4}},
			CdqInstr{},
			IdivInstr{Divisor: right},
			MovInstr{Src: Reg{Name: AX, Width: 4}, Dst: dst},
		}, nil

	case "remainder":
		return []Instruction{
			MovInstr{Src: left, Dst: Reg{Name: AX, Width: 4}},
			CdqInstr{},
			IdivInstr{Divisor: right},
			MovInstr{Src: Reg{Name: DX, Width: 4}, Dst: dst},
		}, nil
	}

	if cc, isRelational := relationalCondCode[in.Op]; isRelational {
		return []Instruction{
			CmpInstr{Left: right, Right: left},
			MovInstr{Src: Imm{Value: 0}, Dst: dst},
			SetCCInstr{Cond: cc, Dst: dst},
		}, nil
	}

	if op, ok := compoundBinaryOp[in.Op]; ok {
		return []Instruction{
			MovInstr{Src: left, Dst: dst},
			BinaryInstr{Op: op, Src: right, Dst: dst},
		}, nil
	}

	return nil, LoweringError{Msg: fmt.Sprintf("unhandled binary op %q", in.Op)}
}

// lowerFuncCall implements the call sequence from spec §4.6: register args,
// right-to-left stack args with 16-byte alignment padding, the call itself,
// stack cleanup, and moving the return value out of %eax.
func lowerFuncCall(in tacky.FuncCallInstr) ([]Instruction, error) {
	var instrs []Instruction

	regArgs := in.Args
	var stackArgs []tacky.Value
	if len(in.Args) > len(ArgRegisters) {
		regArgs = in.Args[:len(ArgRegisters)]
		stackArgs = in.Args[len(ArgRegisters):]
	}

	padding := 0
	if len(stackArgs)%2 != 0 {
		padding = 8
		instrs = append(instrs, AllocateStackInstr{Size: padding})
	}

	for i, arg := range regArgs {
		instrs = append(instrs, MovInstr{Src: lowerValue(arg), Dst: Reg{Name: ArgRegisters[i], Width: 4}})
	}

	for i := len(stackArgs) - 1; i >= 0; i-- {
		operand := lowerValue(stackArgs[i])
		switch operand.(type) {
		case Imm, Reg:
			instrs = append(instrs, PushInstr{Src: operand})
		default:
			instrs = append(instrs,
				MovInstr{Src: operand, Dst: Reg{Name: AX, Width: 4}},
				PushInstr{Src: Reg{Name: AX, Width: 8}},
			)
		}
	}

	instrs = append(instrs, CallInstr{Name: in.Name})

	cleanup := 8*len(stackArgs) + padding
	if cleanup > 0 {
		instrs = append(instrs, DeallocateStackInstr{Size: cleanup})
	}

	instrs = append(instrs, MovInstr{Src: Reg{Name: AX, Width: 4}, Dst: lowerValue(in.Dst)})
	return instrs, nil
}
