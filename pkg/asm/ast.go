// Package asm defines the x86-64 assembly representation.
// This is the final output of the compiler: each instruction is one of a
// closed set of addressing templates, rendered per dialect by Printer.
package asm

import "github.com/LensPlaysGames/Intercept/pkg/mir"

// Label is a fully formed assembler label
type Label string

// Reg is a register at a concrete width in bits
type Reg struct {
	ID   RegisterID
	Size int
}

// Mem is a memory reference: Offset(Base), or Symbol(%rip) when Symbol is
// set.
type Mem struct {
	Base   RegisterID
	Offset int64
	Symbol string
}

// --- Instruction Interface ---

// Instruction is the interface for x86-64 instruction templates
type Instruction interface {
	implInstruction()
}

// ImmReg - immediate to register
type ImmReg struct {
	Op  mir.Opcode
	Imm int64
	Dst Reg
}

// ImmMem - immediate to memory; Size is the access width in bits
type ImmMem struct {
	Op   mir.Opcode
	Imm  int64
	Dst  Mem
	Size int
}

// RegReg - register to register
type RegReg struct {
	Op       mir.Opcode
	Src, Dst Reg
}

// RegMem - register to memory
type RegMem struct {
	Op  mir.Opcode
	Src Reg
	Dst Mem
}

// MemReg - memory to register (also lea)
type MemReg struct {
	Op  mir.Opcode
	Src Mem
	Dst Reg
}

// RegOp - single register operand (push, pop, neg, not, div, idiv)
type RegOp struct {
	Op  mir.Opcode
	Reg Reg
}

// Shift - shift a register by the count in %cl
type Shift struct {
	Op  mir.Opcode
	Reg Reg
}

// IndirectBranch - call or jmp through a register
type IndirectBranch struct {
	Op  mir.Opcode
	Reg Reg
}

// Direct - call or jmp to a symbol or label
type Direct struct {
	Op     mir.Opcode
	Target Label
}

// Jcc - conditional jump
type Jcc struct {
	Cond   Cond
	Target Label
}

// SetCC - set byte on condition
type SetCC struct {
	Cond Cond
	Dst  Reg
}

// Extend - sign or zero extending move
type Extend struct {
	Op       mir.Opcode
	Src, Dst Reg
}

// Bare - no operands (ret, cwd, cdq, cqo)
type Bare struct {
	Op mir.Opcode
}

// LabelDef defines a label
type LabelDef struct {
	Name Label
}

// --- Marker methods for Instruction interface ---

func (ImmReg) implInstruction()         {}
func (ImmMem) implInstruction()         {}
func (RegReg) implInstruction()         {}
func (RegMem) implInstruction()         {}
func (MemReg) implInstruction()         {}
func (RegOp) implInstruction()          {}
func (Shift) implInstruction()          {}
func (IndirectBranch) implInstruction() {}
func (Direct) implInstruction()         {}
func (Jcc) implInstruction()            {}
func (SetCC) implInstruction()          {}
func (Extend) implInstruction()         {}
func (Bare) implInstruction()           {}
func (LabelDef) implInstruction()       {}

// --- Function and Program ---

// Linkage controls the directive emitted before a function
type Linkage int

const (
	Local Linkage = iota
	Extern
	Global
)

// Function represents an assembly function. Extern functions have no code.
type Function struct {
	Name    string
	Linkage Linkage
	Code    []Instruction
}

// GlobVar represents a global variable
type GlobVar struct {
	Name string
	Size int64
	Init []byte // empty means zero-filled
}

// Program represents a complete assembly program
type Program struct {
	File      string
	Globals   []GlobVar
	Functions []Function
}

// NewFunction creates a new assembly function
func NewFunction(name string, linkage Linkage) *Function {
	return &Function{
		Name:    name,
		Linkage: linkage,
		Code:    make([]Instruction, 0),
	}
}

// Append adds an instruction to the function
func (f *Function) Append(inst ...Instruction) {
	f.Code = append(f.Code, inst...)
}

// AppendLabel adds a label definition
func (f *Function) AppendLabel(name Label) {
	f.Code = append(f.Code, LabelDef{Name: name})
}
