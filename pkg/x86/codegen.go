package x86

import (
	"fmt"
	"strings"
)

// CodeGenError reports an operand the text emitter doesn't know how to
// render; should never fire once ReplacePseudo/FixUp have run.
type CodeGenError struct{ Msg string }

func (e CodeGenError) Error() string { return e.Msg }

// unaryMnemonic/binaryMnemonic map a UnaryOpKind/BinaryOpKind to its AT&T suffix-qualified
// mnemonic, mirroring the teacher's CompTable/DestTable/JumpTable lookup
// idiom (pkg/hack/codegen.go) rather than a type switch per instruction.
var unaryMnemonic = map[UnaryOpKind]string{OpNeg: "negl", OpNot: "notl"}

var binaryMnemonic = map[BinaryOpKind]string{
	OpAdd: "addl", OpSub: "subl", OpMul: "imull",
	OpAnd: "andl", OpOr: "orl", OpXor: "xorl",
	OpSal: "sall", OpSar: "sarl",
}

// CodeGenerator renders a fixed-up Program as AT&T-syntax assembly text.
type CodeGenerator struct {
	sb strings.Builder
}

// Generate produces the final assembly text for prog, per spec §4.7.
func Generate(prog Program) (string, error) {
	cg := &CodeGenerator{}
	for _, top := range prog.TopLevels {
		switch t := top.(type) {
		case Function:
			if err := cg.function(t); err != nil {
				return "", err
			}
		case StaticVar:
			cg.staticVar(t)
		default:
			return "", CodeGenError{Msg: fmt.Sprintf("unhandled top level %T", top)}
		}
	}
	cg.sb.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	return cg.sb.String(), nil
}

func (cg *CodeGenerator) function(fn Function) error {
	if fn.Global {
		fmt.Fprintf(&cg.sb, "\t.globl %s\n", fn.Name)
	}
	cg.sb.WriteString("\t.text\n")
	fmt.Fprintf(&cg.sb, "%s:\n", fn.Name)
	cg.sb.WriteString("\tpushq %rbp\n")
	cg.sb.WriteString("\tmovq %rsp, %rbp\n")

	for _, inst := range fn.Instructions {
		if err := cg.instruction(inst); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CodeGenerator) staticVar(sv StaticVar) {
	if sv.Global {
		fmt.Fprintf(&cg.sb, "\t.globl %s\n", sv.Name)
	}
	if sv.Init == 0 {
		cg.sb.WriteString("\t.bss\n")
		cg.sb.WriteString("\t.align 4\n")
		fmt.Fprintf(&cg.sb, "%s:\n", sv.Name)
		cg.sb.WriteString("\t.zero 4\n")
		return
	}
	cg.sb.WriteString("\t.data\n")
	cg.sb.WriteString("\t.align 4\n")
	fmt.Fprintf(&cg.sb, "%s:\n", sv.Name)
	fmt.Fprintf(&cg.sb, "\t.long %d\n", sv.Init)
}

func (cg *CodeGenerator) instruction(inst Instruction) error {
	switch in := inst.(type) {
	case MovInstr:
		fmt.Fprintf(&cg.sb, "\tmovl %s, %s\n", cg.operand(in.Src, 4), cg.operand(in.Dst, 4))

	case UnaryInstr:
		mnemonic, ok := unaryMnemonic[in.Op]
		if !ok {
			return CodeGenError{Msg: fmt.Sprintf("unknown unary op %q", in.Op)}
		}
		fmt.Fprintf(&cg.sb, "\t%s %s\n", mnemonic, cg.operand(in.Dst, 4))

	case BinaryInstr:
		mnemonic, ok := binaryMnemonic[in.Op]
		if !ok {
			return CodeGenError{Msg: fmt.Sprintf("unknown binary op %q", in.Op)}
		}
		width := 4
		if in.Op == OpSal || in.Op == OpSar {
			fmt.Fprintf(&cg.sb, "\t%s %s, %s\n", mnemonic, cg.operand(in.Src, 1), cg.operand(in.Dst, width))
		} else {
			fmt.Fprintf(&cg.sb, "\t%s %s, %s\n", mnemonic, cg.operand(in.Src, width), cg.operand(in.Dst, width))
		}

	case CmpInstr:
		fmt.Fprintf(&cg.sb, "\tcmpl %s, %s\n", cg.operand(in.Left, 4), cg.operand(in.Right, 4))

	case IdivInstr:
		fmt.Fprintf(&cg.sb, "\tidivl %s\n", cg.operand(in.Divisor, 4))

	case CdqInstr:
		cg.sb.WriteString("\tcdq\n")

	case JmpInstr:
		fmt.Fprintf(&cg.sb, "\tjmp %s\n", in.Target)

	case JmpCCInstr:
		fmt.Fprintf(&cg.sb, "\tj%s %s\n", in.Cond, in.Target)

	case SetCCInstr:
		fmt.Fprintf(&cg.sb, "\tset%s %s\n", in.Cond, cg.operand(in.Dst, 1))

	case LabelInstr:
		fmt.Fprintf(&cg.sb, "%s:\n", in.Name)

	case AllocateStackInstr:
		if in.Size != 0 {
			fmt.Fprintf(&cg.sb, "\tsubq $%d, %%rsp\n", in.Size)
		}

	case DeallocateStackInstr:
		if in.Size != 0 {
			fmt.Fprintf(&cg.sb, "\taddq $%d, %%rsp\n", in.Size)
		}

	case PushInstr:
		fmt.Fprintf(&cg.sb, "\tpushq %s\n", cg.operand(in.Src, 8))

	case CallInstr:
		fmt.Fprintf(&cg.sb, "\tcall %s\n", in.Name)

	case RetInstr:
		cg.sb.WriteString("\tmovq %rbp, %rsp\n")
		cg.sb.WriteString("\tpopq %rbp\n")
		cg.sb.WriteString("\tret\n")

	default:
		return CodeGenError{Msg: fmt.Sprintf("unhandled instruction %T", inst)}
	}
	return nil
}

// operand renders op at the given byte width, used only when the operand is
// a bare Register whose spelling depends on width (e.g. CL vs ECX).
func (cg *CodeGenerator) operand(op Operand, width int) string {
	switch o := op.(type) {
	case Imm:
		return fmt.Sprintf("$%d", o.Value)
	case Reg:
		w := o.Width
		if w == 0 {
			w = width
		}
		return spelling[o.Name][w]
	case Stack:
		return fmt.Sprintf("%d(%%rbp)", o.Offset)
	case Data:
		return fmt.Sprintf("%s(%%rip)", o.Name)
	case Pseudo:
		return fmt.Sprintf("Pseudo(%s)", o.Name) // unreachable post-ReplacePseudo
	default:
		return fmt.Sprintf("<unknown operand %T>", op)
	}
}
