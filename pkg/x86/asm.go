// Package x86 lowers tacky.Program into an x86-64 System V assembly AST and
// emits it as AT&T-syntax text. The pipeline is the same three-stage shape
// the original implementation this spec was distilled from uses
// (_examples/original_source/nora3/asm.py: Codegen / ReplacePseudo /
// FixInstructions protocols): TAC -> asm AST, Pseudo -> Stack/Data, then
// instruction fix-up for x86's operand-form restrictions.
//
// Lowering and fix-up dispatch on the instruction kind with a type switch;
// the choice of opcode, condition code and mnemonic within a kind is a plain
// map lookup (compoundBinaryOp, relationalCondCode, unaryMnemonic,
// binaryMnemonic), in the spirit of the teacher's pkg/hack/codegen.go
// CompTable/DestTable/JumpTable.
package x86

import "its-hmny.dev/minic/pkg/ast"

// ----------------------------------------------------------------------------
// Operands

type Operand interface{ operandNode() }

type Imm struct{ Value int32 }
type Register string

const (
	AX  Register = "ax"
	CX  Register = "cx"
	DX  Register = "dx"
	DI  Register = "di"
	SI  Register = "si"
	R8  Register = "r8"
	R9  Register = "r9"
	R10 Register = "r10"
	R11 Register = "r11"
)

// Reg is a register operand at a given operand width in bytes (4 or 8).
type Reg struct {
	Name  Register
	Width int
}

// spelling maps (Register, width) to its AT&T mnemonic.
var spelling = map[Register]map[int]string{
	AX:  {4: "%eax", 8: "%rax", 1: "%al"},
	CX:  {4: "%ecx", 8: "%rcx", 1: "%cl"},
	DX:  {4: "%edx", 8: "%rdx"},
	DI:  {4: "%edi", 8: "%rdi"},
	SI:  {4: "%esi", 8: "%rsi"},
	R8:  {4: "%r8d", 8: "%r8"},
	R9:  {4: "%r9d", 8: "%r9"},
	R10: {4: "%r10d", 8: "%r10"},
	R11: {4: "%r11d", 8: "%r11"},
}

// ArgRegisters lists the System V integer argument-passing registers in order.
var ArgRegisters = []Register{DI, SI, DX, CX, R8, R9}

// Pseudo is a not-yet-allocated TAC-derived name; ReplacePseudo removes every
// occurrence before fix-up runs.
type Pseudo struct{ Name string }

// Stack is a frame-relative operand: offset(%rbp). Negative for locals,
// positive for incoming stack arguments (7th parameter onward).
type Stack struct{ Offset int }

// Data is a reference to a file-scope/static variable by its symbol name.
type Data struct{ Name string }

func (Imm) operandNode()    {}
func (Reg) operandNode()    {}
func (Pseudo) operandNode() {}
func (Stack) operandNode()  {}
func (Data) operandNode()   {}

// ----------------------------------------------------------------------------
// Condition codes

type CondCode string

const (
	CCEqual        CondCode = "e"
	CCNotEqual     CondCode = "ne"
	CCLess         CondCode = "l"
	CCLessEqual    CondCode = "le"
	CCGreater      CondCode = "g"
	CCGreaterEqual CondCode = "ge"
)

// ----------------------------------------------------------------------------
// Instructions

type Instruction interface{ instrNode() }

type MovInstr struct{ Src, Dst Operand }
type UnaryInstr struct {
	Op  UnaryOpKind
	Dst Operand
}
type BinaryInstr struct {
	Op       BinaryOpKind
	Src, Dst Operand
}
type CmpInstr struct{ Left, Right Operand }
type IdivInstr struct{ Divisor Operand }
type CdqInstr struct{}
type JmpInstr struct{ Target string }
type JmpCCInstr struct {
	Cond   CondCode
	Target string
}
type SetCCInstr struct {
	Cond CondCode
	Dst  Operand
}
type LabelInstr struct{ Name string }
type AllocateStackInstr struct{ Size int }
type DeallocateStackInstr struct{ Size int }
type PushInstr struct{ Src Operand }
type CallInstr struct{ Name string }
type RetInstr struct{}

type UnaryOpKind string
type BinaryOpKind string

const (
	OpNeg UnaryOpKind = "neg"
	OpNot UnaryOpKind = "not"
)

const (
	OpAdd BinaryOpKind = "add"
	OpSub BinaryOpKind = "sub"
	OpMul BinaryOpKind = "imul" // dest may never be memory; see fixUp
	OpAnd BinaryOpKind = "and"
	OpOr  BinaryOpKind = "or"
	OpXor BinaryOpKind = "xor"
	OpSal BinaryOpKind = "sal"
	OpSar BinaryOpKind = "sar"
)

func (MovInstr) instrNode()              {}
func (UnaryInstr) instrNode()            {}
func (BinaryInstr) instrNode()           {}
func (CmpInstr) instrNode()              {}
func (IdivInstr) instrNode()             {}
func (CdqInstr) instrNode()              {}
func (JmpInstr) instrNode()              {}
func (JmpCCInstr) instrNode()            {}
func (SetCCInstr) instrNode()            {}
func (LabelInstr) instrNode()            {}
func (AllocateStackInstr) instrNode()    {}
func (DeallocateStackInstr) instrNode()  {}
func (PushInstr) instrNode()             {}
func (CallInstr) instrNode()             {}
func (RetInstr) instrNode()              {}

// ----------------------------------------------------------------------------
// Top levels and Program

type TopLevel interface{ topLevelNode() }

type Function struct {
	Name         string
	Global       bool
	Instructions []Instruction
	StackSize    int // set by ReplacePseudo, consumed when emitting AllocateStack
}

type StaticVar struct {
	Name   string
	Global bool
	Init   int32
}

func (Function) topLevelNode()  {}
func (StaticVar) topLevelNode() {}

type Program struct{ TopLevels []TopLevel }

// compoundBinaryOp maps an ast.BinaryOp to its BinaryOpKind, for the subset
// that lowers to a plain two-operand arithmetic/bitwise/shift instruction.
var compoundBinaryOp = map[ast.BinaryOp]BinaryOpKind{
	ast.Add: OpAdd, ast.Subtract: OpSub, ast.Multiply: OpMul,
	ast.BitwiseAnd: OpAnd, ast.BitwiseOr: OpOr, ast.BitwiseXor: OpXor,
	ast.LeftShift: OpSal, ast.RightShift: OpSar,
}

// relationalCondCode maps an ast.BinaryOp to the CondCode used after Cmp.
var relationalCondCode = map[ast.BinaryOp]CondCode{
	ast.Equal: CCEqual, ast.NotEqual: CCNotEqual,
	ast.LessThan: CCLess, ast.LessEqual: CCLessEqual,
	ast.GreaterThan: CCGreater, ast.GreaterEqual: CCGreaterEqual,
}
