// Package mir defines the machine-level intermediate representation.
// MIR keeps the control-flow shape of the IR (functions, blocks,
// instructions) but carries machine operands and, after selection,
// architecture opcodes.
package mir

import (
	"fmt"

	"github.com/LensPlaysGames/Intercept/pkg/ir"
)

// Opcode is shared between the common range, one opcode per IR instruction
// kind, and architecture-private ranges starting at ArchStart.
type Opcode uint32

const (
	// NumCommon is the size of the common opcode range
	NumCommon Opcode = Opcode(ir.NumInstKinds)

	// ArchStart is the first architecture-private opcode
	ArchStart Opcode = 0x420
)

// CommonOpcode returns the common opcode for an IR instruction kind
func CommonOpcode(k ir.InstKind) Opcode {
	return Opcode(k)
}

// IsCommon reports whether the opcode is in the common range
func (op Opcode) IsCommon() bool {
	return op < NumCommon
}

// Kind returns the IR instruction kind of a common opcode
func (op Opcode) Kind() ir.InstKind {
	return ir.InstKind(op)
}

// CommonMnemonic returns the name of a common opcode, or "" if op is
// outside the common range.
func CommonMnemonic(op Opcode) string {
	if !op.IsCommon() {
		return ""
	}
	return op.Kind().String()
}

// inlineOperands is how many operands an instruction stores before
// spilling to a heap slice
const inlineOperands = 3

// ArchPayload is architecture-specific scratch data attached to an
// instruction. Implementations must return an independent copy.
type ArchPayload interface {
	CloneArch() ArchPayload
}

// Instruction is a single machine instruction
type Instruction struct {
	ID     uint32
	Opcode Opcode

	// Result register and its width in bits
	Reg     uint32
	RegSize uint16

	inline [inlineOperands]Operand
	count  int
	spill  []Operand

	Arch ArchPayload

	Block  *Block
	Origin *ir.Instruction // not owned

	// Lowered is set when a backend replaced this instruction. The
	// replacement lives in the same block; nothing is ever unlinked.
	Lowered *Instruction
}

// NewInstruction creates a detached instruction with no id
func NewInstruction(op Opcode) *Instruction {
	return &Instruction{Opcode: op}
}

// AddOperand appends an operand
func (i *Instruction) AddOperand(op Operand) {
	if i.spill != nil {
		i.spill = append(i.spill, op)
		return
	}
	if i.count < inlineOperands {
		i.inline[i.count] = op
		i.count++
		return
	}
	i.spill = make([]Operand, 0, 2*inlineOperands)
	i.spill = append(i.spill, i.inline[:]...)
	i.spill = append(i.spill, op)
	i.inline = [inlineOperands]Operand{}
	i.count = 0
}

// NumOperands returns the operand count
func (i *Instruction) NumOperands() int {
	if i.spill != nil {
		return len(i.spill)
	}
	return i.count
}

// Operands returns the operands in order. The slice aliases the
// instruction's storage and is invalidated by AddOperand.
func (i *Instruction) Operands() []Operand {
	if i.spill != nil {
		return i.spill
	}
	return i.inline[:i.count]
}

// Operand returns the operand at index. An index past the end is a
// programmer error and panics.
func (i *Instruction) Operand(index int) Operand {
	if index < 0 || index >= i.NumOperands() {
		panic(fmt.Sprintf("mir: operand index %d out of range for instruction with %d operands", index, i.NumOperands()))
	}
	return i.Operands()[index]
}

// SetOperand replaces the operand at index
func (i *Instruction) SetOperand(index int, op Operand) {
	if index < 0 || index >= i.NumOperands() {
		panic(fmt.Sprintf("mir: operand index %d out of range for instruction with %d operands", index, i.NumOperands()))
	}
	i.Operands()[index] = op
}

// ClearOperands drops every operand
func (i *Instruction) ClearOperands() {
	i.inline = [inlineOperands]Operand{}
	i.count = 0
	i.spill = nil
}

// Spilled reports whether the operands moved to heap storage
func (i *Instruction) Spilled() bool {
	return i.spill != nil
}

// Match reports whether the operand kinds are exactly kinds, in order
func (i *Instruction) Match(kinds ...OperandKind) bool {
	ops := i.Operands()
	if len(ops) != len(kinds) {
		return false
	}
	for n, op := range ops {
		if op.Kind() != kinds[n] {
			return false
		}
	}
	return true
}

// Signature returns the operand kinds in order
func (i *Instruction) Signature() []OperandKind {
	ops := i.Operands()
	kinds := make([]OperandKind, len(ops))
	for n, op := range ops {
		kinds[n] = op.Kind()
	}
	return kinds
}

// Resolve follows the Lowered chain to the final replacement
func (i *Instruction) Resolve() *Instruction {
	for i.Lowered != nil {
		i = i.Lowered
	}
	return i
}

// Block is a basic block of machine instructions
type Block struct {
	Name         string // may be empty; a label is synthesized at emission
	Instructions []*Instruction
	Function     *Function
	Origin       *ir.Block
}

// Append adds an instruction to the end of the block
func (b *Block) Append(inst *Instruction) *Instruction {
	inst.Block = b
	b.Instructions = append(b.Instructions, inst)
	return inst
}

// FrameObject is a stack slot addressed relative to the frame pointer
type FrameObject struct {
	Size   int64
	Offset int64 // negative once assigned
	Origin *ir.Instruction
}

// Function is a machine function
type Function struct {
	Name         string
	Linkage      ir.Linkage
	Blocks       []*Block
	FrameObjects []FrameObject
	Origin       *ir.Function

	instCount uint32
}

// NewFunction creates an empty machine function
func NewFunction(name string, linkage ir.Linkage) *Function {
	return &Function{Name: name, Linkage: linkage}
}

// NewBlock appends a new block
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: name, Function: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewInstruction creates an instruction with a fresh per-function id.
// The instruction is not placed in any block.
func (f *Function) NewInstruction(op Opcode) *Instruction {
	f.instCount++
	return &Instruction{ID: f.instCount, Opcode: op}
}

// CopyInstruction deep-copies inst, giving the copy a fresh id. The copy
// is detached from any block and is not a replacement of the original.
func (f *Function) CopyInstruction(inst *Instruction) *Instruction {
	c := f.NewInstruction(inst.Opcode)
	c.Reg = inst.Reg
	c.RegSize = inst.RegSize
	c.Origin = inst.Origin
	for _, op := range inst.Operands() {
		c.AddOperand(op)
	}
	if inst.Arch != nil {
		c.Arch = inst.Arch.CloneArch()
	}
	return c
}

// AddFrameObject records a stack slot and returns its index
func (f *Function) AddFrameObject(size int64, origin *ir.Instruction) Local {
	f.FrameObjects = append(f.FrameObjects, FrameObject{Size: size, Origin: origin})
	return Local(len(f.FrameObjects) - 1)
}

// AssignFrameOffsets lays out frame objects in declaration order. Each
// object's offset is the negated running sum of sizes up to and including
// itself.
func (f *Function) AssignFrameOffsets() {
	var offset int64
	for i := range f.FrameObjects {
		offset -= f.FrameObjects[i].Size
		f.FrameObjects[i].Offset = offset
	}
}

// FrameSize returns the total bytes of all frame objects
func (f *Function) FrameSize() int64 {
	var size int64
	for _, fo := range f.FrameObjects {
		size += fo.Size
	}
	return size
}

// Module is a machine module
type Module struct {
	Name      string
	Globals   []*ir.GlobalVar
	Functions []*Function
	Origin    *ir.Module
}
