package mir

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/LensPlaysGames/Intercept/pkg/ir"
)

func TestPrintFunction(t *testing.T) {
	g := &ir.GlobalVar{Name: "counter", Type: ir.I64}
	callee := NewFunction("puts", ir.LinkImported)

	f := NewFunction("main", ir.LinkExported)
	f.AddFrameObject(8, nil)
	f.AssignFrameOffsets()
	entry := f.NewBlock("entry")
	anon := f.NewBlock("")

	store := entry.Append(f.NewInstruction(CommonOpcode(ir.Store)))
	store.AddOperand(Imm(5))
	store.AddOperand(Local(0))

	call := entry.Append(f.NewInstruction(CommonOpcode(ir.Call)))
	call.AddOperand(FunctionRef{Function: callee})
	call.AddOperand(GlobalRef{Global: g})
	call.AddOperand(Name("ext"))
	call.Reg, call.RegSize = 1, 32

	br := entry.Append(f.NewInstruction(CommonOpcode(ir.Branch)))
	br.AddOperand(BlockRef{Block: anon})
	arch := entry.Append(f.NewInstruction(ArchStart + 7))
	br.Lowered = arch

	ret := anon.Append(f.NewInstruction(CommonOpcode(ir.Return)))
	ret.AddOperand(Reg(1, 32))

	var buf bytes.Buffer
	NewPrinter(&buf, nil).PrintFunction(f)

	want := `main (exported) frame [8@-8]
  entry:
    #1 store 5, local(0)
    #2 call function(puts), global(counter), ext -> r1.32
    #3 branch block(<anonymous>) (lowered to #4)
    #4 op0x427
  <anonymous>:
    #5 return r1.32
`
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrinterMnemonicAndRegisterHooks(t *testing.T) {
	f := NewFunction("f", ir.LinkLocal)
	inst := f.NewInstruction(ArchStart)
	inst.AddOperand(Reg(0, 64))
	inst.AddOperand(Reg(3, 16))

	mnemonic := func(op Opcode) string {
		if op == ArchStart {
			return "mov"
		}
		return ""
	}
	regName := func(r Register) string { return fmt.Sprintf("R%d_%d", r.ID, r.Size) }

	got := FormatInstruction(inst, mnemonic, regName)
	if got != "#1 mov R0_64, R3_16" {
		t.Errorf("FormatInstruction = %q", got)
	}

	// Common opcodes fall back to their IR names
	add := f.NewInstruction(CommonOpcode(ir.Add))
	if got := FormatInstruction(add, mnemonic, nil); got != "#2 add" {
		t.Errorf("fallback = %q", got)
	}
}

func TestPrintModuleSeparatesFunctions(t *testing.T) {
	m := &Module{Functions: []*Function{
		NewFunction("a", ir.LinkLocal),
		NewFunction("b", ir.LinkImported),
	}}
	var buf bytes.Buffer
	NewPrinter(&buf, nil).PrintModule(m)
	if buf.String() != "a (local)\n\nb (imported)\n" {
		t.Errorf("got %q", buf.String())
	}
}
