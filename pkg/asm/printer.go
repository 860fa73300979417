package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

const indent = "    "

// Printer outputs x86-64 assembly in GNU as syntax, using either AT&T or
// Intel operand conventions
type Printer struct {
	w       io.Writer
	dialect Dialect
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer, dialect Dialect) *Printer {
	return &Printer{w: w, dialect: dialect}
}

// PrintProgram outputs an entire program
func (p *Printer) PrintProgram(prog *Program) error {
	if !p.dialect.Valid() {
		return mir.Errorf("unsupported assembly dialect %d", int(p.dialect))
	}

	fmt.Fprintf(p.w, "%s.file \"%s\"\n", indent, prog.File)
	if p.dialect == Intel {
		fmt.Fprintf(p.w, "%s.intel_syntax noprefix\n", indent)
	}

	if len(prog.Globals) > 0 {
		fmt.Fprintf(p.w, "%s.data\n", indent)
		for _, g := range prog.Globals {
			p.printGlobal(g)
		}
	}

	if len(prog.Functions) > 0 {
		fmt.Fprintf(p.w, "%s.text\n", indent)
		for _, f := range prog.Functions {
			p.printFunction(f)
		}
	}

	fmt.Fprintf(p.w, "%s.section .note.GNU-stack\n", indent)
	return nil
}

func (p *Printer) printGlobal(g GlobVar) {
	fmt.Fprintf(p.w, "%s:\n", g.Name)
	if len(g.Init) > 0 {
		bs := make([]string, len(g.Init))
		for i, b := range g.Init {
			bs[i] = fmt.Sprintf("0x%x", b)
		}
		fmt.Fprintf(p.w, "%s.byte %s\n", indent, strings.Join(bs, ","))
	} else if g.Size > 0 {
		fmt.Fprintf(p.w, "%s.zero %d\n", indent, g.Size)
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) printFunction(f Function) {
	switch f.Linkage {
	case Extern:
		fmt.Fprintf(p.w, "%s.extern %s\n", indent, f.Name)
		return
	case Global:
		fmt.Fprintf(p.w, "%s.globl %s\n", indent, f.Name)
	}
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, inst := range f.Code {
		p.printInstruction(inst)
	}
}

// mnemonic returns the dialect spelling of op
func (p *Printer) mnemonic(op mir.Opcode) string {
	if s, ok := Mnemonic(op, p.dialect); ok {
		return s
	}
	return fmt.Sprintf("op%#x", uint32(op))
}

// reg renders a register operand
func (p *Printer) reg(r Reg) string {
	name, ok := r.ID.Name(r.Size)
	if !ok {
		name = fmt.Sprintf("?%d.%d", r.ID, r.Size)
	}
	if p.dialect == ATT {
		return "%" + name
	}
	return name
}

// mem renders a memory operand
func (p *Printer) mem(m Mem) string {
	base := m.Base.String()
	if p.dialect == ATT {
		switch {
		case m.Symbol != "" && m.Offset != 0:
			return fmt.Sprintf("%s%+d(%%%s)", m.Symbol, m.Offset, base)
		case m.Symbol != "":
			return fmt.Sprintf("%s(%%%s)", m.Symbol, base)
		case m.Offset == 0:
			return fmt.Sprintf("(%%%s)", base)
		}
		return fmt.Sprintf("%d(%%%s)", m.Offset, base)
	}

	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(base)
	if m.Symbol != "" {
		sb.WriteString(" + ")
		sb.WriteString(m.Symbol)
	}
	switch {
	case m.Offset > 0:
		fmt.Fprintf(&sb, " + %d", m.Offset)
	case m.Offset < 0:
		fmt.Fprintf(&sb, " - %d", -m.Offset)
	}
	sb.WriteString("]")
	return sb.String()
}

func (p *Printer) imm(v int64) string {
	if p.dialect == ATT {
		return fmt.Sprintf("$%d", v)
	}
	return fmt.Sprintf("%d", v)
}

// sizeSuffix returns the AT&T width suffix for size bits
func sizeSuffix(size int) string {
	switch size {
	case 8:
		return "b"
	case 16:
		return "w"
	case 32:
		return "l"
	}
	return "q"
}

// sizePtr returns the Intel memory width keyword for size bits
func sizePtr(size int) string {
	switch size {
	case 8:
		return "byte ptr"
	case 16:
		return "word ptr"
	case 32:
		return "dword ptr"
	}
	return "qword ptr"
}

// line writes one instruction with operands in source, destination order.
// Intel syntax reverses them.
func (p *Printer) line(mnemonic string, src, dst string) {
	if p.dialect == ATT {
		fmt.Fprintf(p.w, "%s%s %s, %s\n", indent, mnemonic, src, dst)
	} else {
		fmt.Fprintf(p.w, "%s%s %s, %s\n", indent, mnemonic, dst, src)
	}
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	case LabelDef:
		fmt.Fprintf(p.w, "%s:\n", i.Name)

	case ImmReg:
		p.line(p.mnemonic(i.Op), p.imm(i.Imm), p.reg(i.Dst))
	case ImmMem:
		if p.dialect == ATT {
			p.line(p.mnemonic(i.Op)+sizeSuffix(i.Size), p.imm(i.Imm), p.mem(i.Dst))
		} else {
			p.line(p.mnemonic(i.Op), p.imm(i.Imm), sizePtr(i.Size)+" "+p.mem(i.Dst))
		}
	case RegReg:
		p.line(p.mnemonic(i.Op), p.reg(i.Src), p.reg(i.Dst))
	case RegMem:
		p.line(p.mnemonic(i.Op), p.reg(i.Src), p.mem(i.Dst))
	case MemReg:
		p.line(p.mnemonic(i.Op), p.mem(i.Src), p.reg(i.Dst))

	case RegOp:
		fmt.Fprintf(p.w, "%s%s %s\n", indent, p.mnemonic(i.Op), p.reg(i.Reg))
	case Shift:
		p.line(p.mnemonic(i.Op), p.reg(Reg{ID: RCX, Size: 8}), p.reg(i.Reg))
	case IndirectBranch:
		if p.dialect == ATT {
			fmt.Fprintf(p.w, "%s%s *%s\n", indent, p.mnemonic(i.Op), p.reg(i.Reg))
		} else {
			fmt.Fprintf(p.w, "%s%s %s\n", indent, p.mnemonic(i.Op), p.reg(i.Reg))
		}
	case Direct:
		fmt.Fprintf(p.w, "%s%s %s\n", indent, p.mnemonic(i.Op), i.Target)
	case Jcc:
		fmt.Fprintf(p.w, "%s%s%s %s\n", indent, p.mnemonic(OpJcc), i.Cond, i.Target)
	case SetCC:
		fmt.Fprintf(p.w, "%s%s%s %s\n", indent, p.mnemonic(OpSetcc), i.Cond, p.reg(i.Dst))

	case Extend:
		p.printExtend(i)
	case Bare:
		fmt.Fprintf(p.w, "%s%s\n", indent, p.mnemonic(i.Op))
	}
}

// printExtend outputs movsx/movzx. AT&T spells the source and destination
// widths as suffixes; Intel uses movsxd for the 32 to 64 bit sign
// extension.
func (p *Printer) printExtend(i Extend) {
	mnemonic := p.mnemonic(i.Op)
	if p.dialect == ATT {
		mnemonic += sizeSuffix(i.Src.Size) + sizeSuffix(i.Dst.Size)
	} else if i.Op == OpMovsx && i.Src.Size == 32 {
		mnemonic = "movsxd"
	}
	p.line(mnemonic, p.reg(i.Src), p.reg(i.Dst))
}
