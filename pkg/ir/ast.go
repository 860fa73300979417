// Package ir defines the finished, optimized intermediate representation
// consumed by the back end. Front ends and the mid-level optimizer produce
// these structures; the back end only reads them.
package ir

import "fmt"

// Linkage describes symbol visibility across compilation units
type Linkage int

const (
	LinkLocal    Linkage = iota // visible only inside this unit
	LinkImported                // declared here, defined elsewhere
	LinkExported                // defined here, visible to the linker
)

func (l Linkage) String() string {
	switch l {
	case LinkLocal:
		return "local"
	case LinkImported:
		return "imported"
	case LinkExported:
		return "exported"
	}
	return fmt.Sprintf("linkage(%d)", int(l))
}

// InstKind enumerates the IR instruction kinds. The machine IR reuses this
// numbering for its common opcode range, so the order is part of the ABI
// between the two levels.
type InstKind int

const (
	Alloca InstKind = iota
	Copy
	Load
	Store
	Call
	Branch
	CondBranch
	Return
	ZExt
	SExt
	Trunc
	Bitcast
	Neg
	Compl
	Add
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem
	Shl
	Sar
	Shr
	And
	Or
	Xor
	Eq
	Ne
	Lt
	Le
	Gt
	Ge

	NumInstKinds
)

var instKindNames = [NumInstKinds]string{
	Alloca:     "alloca",
	Copy:       "copy",
	Load:       "load",
	Store:      "store",
	Call:       "call",
	Branch:     "branch",
	CondBranch: "condbranch",
	Return:     "return",
	ZExt:       "zext",
	SExt:       "sext",
	Trunc:      "trunc",
	Bitcast:    "bitcast",
	Neg:        "neg",
	Compl:      "compl",
	Add:        "add",
	Sub:        "sub",
	Mul:        "mul",
	SDiv:       "sdiv",
	UDiv:       "udiv",
	SRem:       "srem",
	URem:       "urem",
	Shl:        "shl",
	Sar:        "sar",
	Shr:        "shr",
	And:        "and",
	Or:         "or",
	Xor:        "xor",
	Eq:         "eq",
	Ne:         "ne",
	Lt:         "lt",
	Le:         "le",
	Gt:         "gt",
	Ge:         "ge",
}

func (k InstKind) String() string {
	if k >= 0 && k < NumInstKinds {
		return instKindNames[k]
	}
	return fmt.Sprintf("inst(%d)", int(k))
}

// ParseInstKind looks up an instruction kind by its textual name
func ParseInstKind(s string) (InstKind, bool) {
	for k, name := range instKindNames {
		if name == s {
			return InstKind(k), true
		}
	}
	return 0, false
}

// IsComparison reports whether the kind produces a boolean from two values
func (k InstKind) IsComparison() bool {
	return k >= Eq && k <= Ge
}

// HasValue reports whether instructions of this kind define a value that
// later instructions may reference through a register.
func (k InstKind) HasValue() bool {
	switch k {
	case Store, Branch, CondBranch, Return:
		return false
	}
	return true
}

// --- Operands ---

// Operand is anything an instruction can consume
type Operand interface {
	implOperand()
}

// Immediate is an integer constant operand
type Immediate int64

// ExternalName names a symbol not described by this module
type ExternalName string

func (*Instruction) implOperand() {}
func (*GlobalVar) implOperand()   {}
func (*Function) implOperand()    {}
func (*Block) implOperand()       {}
func (Immediate) implOperand()    {}
func (ExternalName) implOperand() {}

// --- Initializer values ---

// ValueKind discriminates global initializers
type ValueKind int

const (
	KindArrayConstant ValueKind = iota
	KindIntegerConstant
)

func (k ValueKind) String() string {
	switch k {
	case KindArrayConstant:
		return "array constant"
	case KindIntegerConstant:
		return "integer constant"
	}
	return fmt.Sprintf("value(%d)", int(k))
}

// Value is a constant global initializer
type Value interface {
	Kind() ValueKind
}

// ArrayConstant is a constant byte array
type ArrayConstant struct {
	Bytes []byte
}

// IntegerConstant is a constant scalar
type IntegerConstant struct {
	Value int64
	Type  Type
}

func (ArrayConstant) Kind() ValueKind   { return KindArrayConstant }
func (IntegerConstant) Kind() ValueKind { return KindIntegerConstant }

// --- Module structure ---

// GlobalVar is a module-level variable
type GlobalVar struct {
	Name string
	Type Type
	Init Value // nil when uninitialized
}

// Instruction is a single IR instruction
type Instruction struct {
	Kind     InstKind
	Name     string    // textual id, used for diagnostics only
	Type     Type      // type of the defined value
	Operands []Operand // ordered per kind

	// AllocatedType is the type reserved on the stack by an alloca
	AllocatedType Type

	// Register is the machine register the upstream allocator assigned
	// to this instruction's value. Zero means none.
	Register uint32

	Block *Block
}

// Block is a basic block
type Block struct {
	Name         string
	Instructions []*Instruction
	Function     *Function
}

// Function is an IR function. Imported functions have no blocks.
type Function struct {
	Name    string
	Linkage Linkage
	Blocks  []*Block
}

// Module is a complete compilation unit
type Module struct {
	Name      string // source file name
	Globals   []*GlobalVar
	Functions []*Function
}

// NewFunction creates a function and registers it with the module
func (m *Module) NewFunction(name string, linkage Linkage) *Function {
	f := &Function{Name: name, Linkage: linkage}
	m.Functions = append(m.Functions, f)
	return f
}

// NewGlobal creates a global variable and registers it with the module
func (m *Module) NewGlobal(name string, typ Type, init Value) *GlobalVar {
	g := &GlobalVar{Name: name, Type: typ, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// NewBlock appends a new basic block to the function
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: name, Function: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Append adds an instruction to the end of the block
func (b *Block) Append(inst *Instruction) *Instruction {
	inst.Block = b
	b.Instructions = append(b.Instructions, inst)
	return inst
}

// Locals returns the function's stack allocations in declaration order
func (f *Function) Locals() []*Instruction {
	var locals []*Instruction
	for _, b := range f.Blocks {
		for _, inst := range b.Instructions {
			if inst.Kind == Alloca {
				locals = append(locals, inst)
			}
		}
	}
	return locals
}

// Function looks up a function by name
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global looks up a global variable by name
func (m *Module) Global(name string) *GlobalVar {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}
