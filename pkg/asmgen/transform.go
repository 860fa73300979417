// Package asmgen transforms selected MIR to x86-64 assembly.
// This is the final compilation phase: every architecture instruction is
// matched against the pattern table and rendered into an asm template,
// and each function gets its frame setup and teardown.
package asmgen

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// Options configures emission
type Options struct {
	Machine asm.MachineDescription
	Logger  *slog.Logger // nil means slog.Default()
}

// TransformModule transforms a selected MIR module to assembly
func TransformModule(m *mir.Module, opts Options) (*asm.Program, error) {
	if opts.Machine.ReturnRegister == asm.NoRegister {
		opts.Machine = asm.DefaultMachine()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	result := &asm.Program{
		File:      m.Name,
		Globals:   make([]asm.GlobVar, 0, len(m.Globals)),
		Functions: make([]asm.Function, 0, len(m.Functions)),
	}

	for _, g := range m.Globals {
		gv, err := transformGlobal(g)
		if err != nil {
			return nil, err
		}
		result.Globals = append(result.Globals, gv)
	}

	// Block labels are unique across the whole module
	labels := asm.NewLabeler()
	for _, f := range m.Functions {
		ctx := &genContext{fn: f, machine: opts.Machine, labels: labels, logger: opts.Logger}
		af, err := ctx.transformFunction()
		if err != nil {
			return nil, err
		}
		result.Functions = append(result.Functions, *af)
	}
	return result, nil
}

func transformGlobal(g *ir.GlobalVar) (asm.GlobVar, error) {
	gv := asm.GlobVar{Name: asm.Symbol(g.Name), Size: g.Type.Bytes()}
	switch v := g.Init.(type) {
	case nil:
	case ir.ArrayConstant:
		gv.Init = v.Bytes
		gv.Size = int64(len(v.Bytes))
	default:
		return asm.GlobVar{}, mir.Errorf("global %s: unsupported initializer kind %s", g.Name, v.Kind())
	}
	return gv, nil
}

// genContext holds state during code generation for one function
type genContext struct {
	fn      *mir.Function
	machine asm.MachineDescription
	labels  *asm.Labeler
	logger  *slog.Logger
	out     *asm.Function
}

func linkage(l ir.Linkage) asm.Linkage {
	switch l {
	case ir.LinkImported:
		return asm.Extern
	case ir.LinkExported:
		return asm.Global
	}
	return asm.Local
}

// transformFunction transforms a single MIR function to assembly
func (ctx *genContext) transformFunction() (*asm.Function, error) {
	ctx.out = asm.NewFunction(asm.Symbol(ctx.fn.Name), linkage(ctx.fn.Linkage))
	if ctx.out.Linkage == asm.Extern {
		return ctx.out, nil
	}

	ctx.prologue()
	for _, b := range ctx.fn.Blocks {
		lbl, err := ctx.blockLabel(nil, b)
		if err != nil {
			return nil, err
		}
		ctx.out.AppendLabel(lbl)
		for _, inst := range b.Instructions {
			if err := ctx.translateInstruction(inst); err != nil {
				return nil, err
			}
		}
	}
	return ctx.out, nil
}

// prologue sets up the frame pointer and reserves the frame
func (ctx *genContext) prologue() {
	rbp := asm.Reg{ID: asm.RBP, Size: asm.FullWidth}
	rsp := asm.Reg{ID: asm.RSP, Size: asm.FullWidth}
	ctx.out.Append(
		asm.RegOp{Op: asm.OpPush, Reg: rbp},
		asm.RegReg{Op: asm.OpMov, Src: rsp, Dst: rbp},
	)
	if size := ctx.fn.FrameSize(); size > 0 {
		ctx.out.Append(asm.ImmReg{Op: asm.OpSub, Imm: size, Dst: rsp})
	}
}

// epilogue restores the caller's stack and frame pointers
func (ctx *genContext) epilogue() {
	rbp := asm.Reg{ID: asm.RBP, Size: asm.FullWidth}
	rsp := asm.Reg{ID: asm.RSP, Size: asm.FullWidth}
	ctx.out.Append(
		asm.RegReg{Op: asm.OpMov, Src: rbp, Dst: rsp},
		asm.RegOp{Op: asm.OpPop, Reg: rbp},
	)
}

// translateInstruction translates a MIR instruction to assembly. Generic
// instructions are represented by their expansion and emit nothing
// themselves.
func (ctx *genContext) translateInstruction(inst *mir.Instruction) error {
	if inst.Opcode.IsCommon() {
		if inst.Lowered != nil || inst.Opcode.Kind() == ir.Alloca {
			return nil
		}
		return ctx.unhandled(inst, "instruction was not selected")
	}

	emit, ok := lookup(inst)
	if !ok {
		return ctx.unhandled(inst, "no pattern for %s with operands %v",
			asm.OpcodeMnemonic(inst.Opcode), inst.Signature())
	}
	code, err := emit(ctx, inst)
	if err != nil {
		return err
	}

	switch inst.Opcode {
	case asm.OpRet:
		ctx.epilogue()
	case asm.OpCall:
		return ctx.sequenceCall(inst, code)
	}
	ctx.out.Append(code...)
	return nil
}

// sequenceCall moves a call's result out of the return register. The
// return register is saved around the call when the result belongs
// elsewhere.
func (ctx *genContext) sequenceCall(inst *mir.Instruction, call []asm.Instruction) error {
	ret := uint32(ctx.machine.ReturnRegister)
	if inst.Reg == 0 || inst.Reg == ret {
		ctx.out.Append(call...)
		return nil
	}

	dst, err := ctx.reg(inst, mir.Reg(inst.Reg, inst.RegSize))
	if err != nil {
		return err
	}
	saved := asm.Reg{ID: ctx.machine.ReturnRegister, Size: asm.FullWidth}
	result := asm.Reg{ID: ctx.machine.ReturnRegister, Size: dst.Size}
	ctx.out.Append(asm.RegOp{Op: asm.OpPush, Reg: saved})
	ctx.out.Append(call...)
	ctx.out.Append(
		asm.RegReg{Op: asm.OpMov, Src: result, Dst: dst},
		asm.RegOp{Op: asm.OpPop, Reg: saved},
	)
	return nil
}

// unhandled builds an internal compiler error for inst
func (ctx *genContext) unhandled(inst *mir.Instruction, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return mir.Unhandled(inst, asm.OpcodeMnemonic, asm.TraceRegisterName, "%s: %s", ctx.fn.Name, msg)
}

// reg converts a register operand, checking it has a name at its width.
// One-bit registers are addressed as bytes; a zero width is a lowering
// bug recovered by assuming the full width.
func (ctx *genContext) reg(inst *mir.Instruction, op mir.Operand) (asm.Reg, error) {
	r, ok := op.(mir.Register)
	if !ok {
		return asm.Reg{}, ctx.unhandled(inst, "expected a register, got %s", op.Kind())
	}
	size := int(r.Size)
	switch size {
	case 0:
		ctx.logger.Warn("zero sized register, assuming 64-bit",
			"function", ctx.fn.Name,
			"instruction", mir.FormatInstruction(inst, asm.OpcodeMnemonic, asm.TraceRegisterName))
		size = asm.FullWidth
	case 1:
		size = 8
	}
	id := asm.RegisterID(r.ID)
	if _, ok := id.Name(size); !ok {
		return asm.Reg{}, ctx.unhandled(inst, "register %d has no %d-bit form", r.ID, size)
	}
	return asm.Reg{ID: id, Size: size}, nil
}

// blockLabel returns the label of b. inst is the referring instruction,
// nil for the block's own definition.
func (ctx *genContext) blockLabel(inst *mir.Instruction, b *mir.Block) (asm.Label, error) {
	lbl, err := ctx.labels.Block(b, b.Name)
	if err == nil {
		return lbl, nil
	}
	if inst == nil {
		return "", mir.Errorf("%s: %v", ctx.fn.Name, err)
	}
	return "", ctx.unhandled(inst, "%v", err)
}

// immediate returns the value of an immediate operand of an instruction
// accessing bits wide data. Only a move into a 64-bit register takes a
// full 64-bit immediate; other 64-bit forms sign-extend a 32-bit field.
func (ctx *genContext) immediate(inst *mir.Instruction, op mir.Operand, bits int, wide bool) (int64, error) {
	v := int64(op.(mir.Immediate))
	var ok bool
	switch {
	case bits >= 64 && wide:
		ok = true
	case bits >= 64:
		ok = v >= math.MinInt32 && v <= math.MaxInt32
	default:
		ok = v >= -(int64(1)<<(bits-1)) && v < int64(1)<<bits
	}
	if !ok {
		return 0, ctx.unhandled(inst, "immediate %d does not fit a %d-bit operand", v, bits)
	}
	return v, nil
}

// local converts a frame object reference to its frame-pointer slot
func (ctx *genContext) local(inst *mir.Instruction, l mir.Local) (asm.Mem, error) {
	if int(l) < 0 || int(l) >= len(ctx.fn.FrameObjects) {
		return asm.Mem{}, ctx.unhandled(inst, "local %d out of range for %d frame objects", int(l), len(ctx.fn.FrameObjects))
	}
	return asm.Mem{Base: asm.RBP, Offset: ctx.fn.FrameObjects[l].Offset}, nil
}

// indirect converts a (base register, offset) pair to a memory operand
func (ctx *genContext) indirect(inst *mir.Instruction, base, offset mir.Operand) (asm.Mem, error) {
	r, ok := base.(mir.Register)
	if !ok || !asm.RegisterID(r.ID).Valid() {
		return asm.Mem{}, ctx.unhandled(inst, "invalid base register")
	}
	return asm.Mem{Base: asm.RegisterID(r.ID), Offset: int64(offset.(mir.Immediate))}, nil
}
