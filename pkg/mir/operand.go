package mir

import (
	"fmt"

	"github.com/LensPlaysGames/Intercept/pkg/ir"
)

// OperandKind discriminates the operand variants
type OperandKind int

const (
	KindRegister OperandKind = iota + 1
	KindImmediate
	KindName
	KindBlock
	KindFunction
	KindGlobal
	KindLocal
)

func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindImmediate:
		return "immediate"
	case KindName:
		return "name"
	case KindBlock:
		return "block"
	case KindFunction:
		return "function"
	case KindGlobal:
		return "global"
	case KindLocal:
		return "local"
	}
	return fmt.Sprintf("operand(%d)", int(k))
}

// Operand is a machine instruction operand. The set of implementations is
// closed; consumers switch over the concrete types below.
type Operand interface {
	Kind() OperandKind
	implOperand()
}

// Register is a machine register with an explicit width in bits. A width
// of 0 or 1 is legal here and normalized by instruction selection.
type Register struct {
	ID   uint32
	Size uint16
}

// Immediate is a signed 64-bit constant
type Immediate int64

// Name is a bare symbol, typically an external function
type Name string

// BlockRef refers to a block of the enclosing function. It does not own it.
type BlockRef struct {
	Block *Block
}

// FunctionRef refers to a function of the enclosing module
type FunctionRef struct {
	Function *Function
}

// GlobalRef refers to a module-level variable
type GlobalRef struct {
	Global *ir.GlobalVar
}

// Local is an index into the enclosing function's frame-object table
type Local int

func (Register) Kind() OperandKind    { return KindRegister }
func (Immediate) Kind() OperandKind   { return KindImmediate }
func (Name) Kind() OperandKind        { return KindName }
func (BlockRef) Kind() OperandKind    { return KindBlock }
func (FunctionRef) Kind() OperandKind { return KindFunction }
func (GlobalRef) Kind() OperandKind   { return KindGlobal }
func (Local) Kind() OperandKind       { return KindLocal }

func (Register) implOperand()    {}
func (Immediate) implOperand()   {}
func (Name) implOperand()        {}
func (BlockRef) implOperand()    {}
func (FunctionRef) implOperand() {}
func (GlobalRef) implOperand()   {}
func (Local) implOperand()       {}

// Reg builds a register operand
func Reg(id uint32, size uint16) Register {
	return Register{ID: id, Size: size}
}

// Imm builds an immediate operand
func Imm(v int64) Immediate {
	return Immediate(v)
}
