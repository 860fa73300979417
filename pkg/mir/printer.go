package mir

import (
	"fmt"
	"io"
	"strings"
)

// MnemonicFunc names an opcode. Returning "" falls back to CommonMnemonic.
type MnemonicFunc func(Opcode) string

// Printer renders MIR as a human-readable trace
type Printer struct {
	w        io.Writer
	mnemonic MnemonicFunc

	// RegisterName, when set, renders register operands
	RegisterName func(Register) string
}

// NewPrinter creates a MIR printer. mnemonic may be nil.
func NewPrinter(w io.Writer, mnemonic MnemonicFunc) *Printer {
	return &Printer{w: w, mnemonic: mnemonic}
}

func (p *Printer) opcodeName(op Opcode) string {
	if p.mnemonic != nil {
		if s := p.mnemonic(op); s != "" {
			return s
		}
	}
	if s := CommonMnemonic(op); s != "" {
		return s
	}
	return fmt.Sprintf("op%#x", uint32(op))
}

// PrintModule prints every function
func (p *Printer) PrintModule(m *Module) {
	for i, f := range m.Functions {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(f)
	}
}

// PrintFunction prints a function header, its frame and its blocks
func (p *Printer) PrintFunction(f *Function) {
	fmt.Fprintf(p.w, "%s (%s)", f.Name, f.Linkage)
	if len(f.FrameObjects) > 0 {
		fmt.Fprint(p.w, " frame [")
		for i, fo := range f.FrameObjects {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%d@%d", fo.Size, fo.Offset)
		}
		fmt.Fprint(p.w, "]")
	}
	fmt.Fprintln(p.w)
	for _, b := range f.Blocks {
		p.PrintBlock(b)
	}
}

// PrintBlock prints a block label and its instructions
func (p *Printer) PrintBlock(b *Block) {
	name := b.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(p.w, "  %s:\n", name)
	for _, inst := range b.Instructions {
		fmt.Fprint(p.w, "    ")
		p.PrintInstruction(inst)
	}
}

// PrintInstruction prints one instruction on one line
func (p *Printer) PrintInstruction(inst *Instruction) {
	fmt.Fprintf(p.w, "#%d %s", inst.ID, p.opcodeName(inst.Opcode))
	for n, op := range inst.Operands() {
		if n == 0 {
			fmt.Fprint(p.w, " ")
		} else {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, p.operandString(op))
	}
	if inst.Reg != 0 {
		fmt.Fprintf(p.w, " -> %s", p.operandString(Register{ID: inst.Reg, Size: inst.RegSize}))
	}
	if inst.Lowered != nil {
		fmt.Fprintf(p.w, " (lowered to #%d)", inst.Lowered.ID)
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) operandString(op Operand) string {
	switch o := op.(type) {
	case Register:
		if p.RegisterName != nil {
			return p.RegisterName(o)
		}
		return fmt.Sprintf("r%d.%d", o.ID, o.Size)
	case Immediate:
		return fmt.Sprintf("%d", int64(o))
	case Name:
		return string(o)
	case BlockRef:
		if o.Block == nil || o.Block.Name == "" {
			return "block(<anonymous>)"
		}
		return fmt.Sprintf("block(%s)", o.Block.Name)
	case FunctionRef:
		return fmt.Sprintf("function(%s)", o.Function.Name)
	case GlobalRef:
		return fmt.Sprintf("global(%s)", o.Global.Name)
	case Local:
		return fmt.Sprintf("local(%d)", int(o))
	}
	return fmt.Sprintf("<%v>", op)
}

// FormatInstruction renders one instruction trace line without the
// trailing newline
func FormatInstruction(inst *Instruction, mnemonic MnemonicFunc, regName func(Register) string) string {
	var sb strings.Builder
	p := NewPrinter(&sb, mnemonic)
	p.RegisterName = regName
	p.PrintInstruction(inst)
	return strings.TrimSuffix(sb.String(), "\n")
}
