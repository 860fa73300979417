package asmgen

import (
	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// patternKey identifies an addressing template: an opcode together with
// the exact kinds of its operands, in order.
type patternKey struct {
	op    mir.Opcode
	kinds string
}

func key(op mir.Opcode, kinds ...mir.OperandKind) patternKey {
	b := make([]byte, len(kinds))
	for i, k := range kinds {
		b[i] = byte(k)
	}
	return patternKey{op: op, kinds: string(b)}
}

// emitter renders one matched instruction
type emitter func(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error)

// patterns is the complete selection table. A signature missing here is
// an internal compiler error.
var patterns = map[patternKey]emitter{}

func init() {
	// Move
	patterns[key(asm.OpMov, mir.KindImmediate, mir.KindRegister)] = emitImmReg
	patterns[key(asm.OpMov, mir.KindImmediate, mir.KindLocal)] = emitImmLocal
	patterns[key(asm.OpMov, mir.KindImmediate, mir.KindGlobal)] = emitImmGlobal
	patterns[key(asm.OpMov, mir.KindRegister, mir.KindRegister)] = emitMove
	patterns[key(asm.OpMov, mir.KindRegister, mir.KindLocal)] = emitRegLocal
	patterns[key(asm.OpMov, mir.KindLocal, mir.KindRegister)] = emitLocalReg
	patterns[key(asm.OpMov, mir.KindRegister, mir.KindGlobal)] = emitRegGlobal
	patterns[key(asm.OpMov, mir.KindGlobal, mir.KindRegister)] = emitGlobalReg
	patterns[key(asm.OpMov, mir.KindImmediate, mir.KindRegister, mir.KindImmediate)] = emitImmIndirect
	patterns[key(asm.OpMov, mir.KindRegister, mir.KindRegister, mir.KindImmediate)] = emitRegIndirect
	patterns[key(asm.OpMov, mir.KindRegister, mir.KindImmediate, mir.KindRegister)] = emitIndirectReg

	// Two-operand arithmetic and flag setting
	for _, op := range []mir.Opcode{
		asm.OpAdd, asm.OpSub, asm.OpImul,
		asm.OpAnd, asm.OpOr, asm.OpXor,
		asm.OpCmp, asm.OpTest,
	} {
		patterns[key(op, mir.KindImmediate, mir.KindRegister)] = emitImmReg
		patterns[key(op, mir.KindRegister, mir.KindRegister)] = emitRegReg
	}

	// Address computation
	patterns[key(asm.OpLea, mir.KindLocal, mir.KindRegister)] = emitLocalReg
	patterns[key(asm.OpLea, mir.KindGlobal, mir.KindRegister)] = emitGlobalReg

	// Control transfer
	for _, op := range []mir.Opcode{asm.OpCall, asm.OpJmp} {
		patterns[key(op, mir.KindName)] = emitDirect
		patterns[key(op, mir.KindBlock)] = emitDirect
		patterns[key(op, mir.KindFunction)] = emitDirect
		patterns[key(op, mir.KindRegister)] = emitIndirectBranch
	}
	patterns[key(asm.OpJcc, mir.KindBlock)] = emitJcc

	// Single register
	for _, op := range []mir.Opcode{asm.OpShl, asm.OpSar, asm.OpShr} {
		patterns[key(op, mir.KindRegister)] = emitShift
	}
	for _, op := range []mir.Opcode{
		asm.OpPush, asm.OpPop, asm.OpNeg, asm.OpNot, asm.OpDiv, asm.OpIdiv,
	} {
		patterns[key(op, mir.KindRegister)] = emitRegOp
	}
	patterns[key(asm.OpSetcc, mir.KindRegister)] = emitSetcc

	// Extension
	patterns[key(asm.OpMovsx, mir.KindRegister, mir.KindRegister)] = emitExtend
	patterns[key(asm.OpMovzx, mir.KindRegister, mir.KindRegister)] = emitExtend

	// No operands
	for _, op := range []mir.Opcode{asm.OpRet, asm.OpCwd, asm.OpCdq, asm.OpCqo} {
		patterns[key(op)] = emitBare
	}
}

// lookup finds the template for an instruction
func lookup(inst *mir.Instruction) (emitter, bool) {
	e, ok := patterns[key(inst.Opcode, inst.Signature()...)]
	return e, ok
}

// --- Emitters ---

func emitImmReg(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	dst, err := ctx.reg(inst, inst.Operand(1))
	if err != nil {
		return nil, err
	}
	v, err := ctx.immediate(inst, inst.Operand(0), dst.Size, inst.Opcode == asm.OpMov)
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.ImmReg{Op: inst.Opcode, Imm: v, Dst: dst}}, nil
}

func emitRegReg(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.reg(inst, inst.Operand(1))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.RegReg{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

// emitMove is a register to register move; moving a register onto itself
// emits nothing.
func emitMove(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	out, err := emitRegReg(ctx, inst)
	if err != nil {
		return nil, err
	}
	if rr := out[0].(asm.RegReg); rr.Src == rr.Dst {
		return nil, nil
	}
	return out, nil
}

func emitImmLocal(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	l := inst.Operand(1).(mir.Local)
	dst, err := ctx.local(inst, l)
	if err != nil {
		return nil, err
	}
	size := width(inst, int(ctx.fn.FrameObjects[l].Size*8))
	v, err := ctx.immediate(inst, inst.Operand(0), size, false)
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.ImmMem{Op: inst.Opcode, Imm: v, Dst: dst, Size: size}}, nil
}

func emitImmGlobal(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	g := inst.Operand(1).(mir.GlobalRef)
	size := width(inst, int(g.Global.Type.Bits()))
	v, err := ctx.immediate(inst, inst.Operand(0), size, false)
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.ImmMem{Op: inst.Opcode, Imm: v, Dst: globalMem(g), Size: size}}, nil
}

func emitImmIndirect(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	dst, err := ctx.indirect(inst, inst.Operand(1), inst.Operand(2))
	if err != nil {
		return nil, err
	}
	size := width(inst, asm.FullWidth)
	v, err := ctx.immediate(inst, inst.Operand(0), size, false)
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.ImmMem{Op: inst.Opcode, Imm: v, Dst: dst, Size: size}}, nil
}

func emitRegLocal(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.local(inst, inst.Operand(1).(mir.Local))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.RegMem{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitLocalReg(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.local(inst, inst.Operand(0).(mir.Local))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.reg(inst, inst.Operand(1))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.MemReg{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitRegGlobal(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	dst := globalMem(inst.Operand(1).(mir.GlobalRef))
	return []asm.Instruction{asm.RegMem{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitGlobalReg(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src := globalMem(inst.Operand(0).(mir.GlobalRef))
	dst, err := ctx.reg(inst, inst.Operand(1))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.MemReg{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitRegIndirect(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.indirect(inst, inst.Operand(1), inst.Operand(2))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.RegMem{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitIndirectReg(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.indirect(inst, inst.Operand(0), inst.Operand(1))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.reg(inst, inst.Operand(2))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.MemReg{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitDirect(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	var target asm.Label
	switch t := inst.Operand(0).(type) {
	case mir.Name:
		target = asm.Label(asm.Symbol(string(t)))
	case mir.FunctionRef:
		target = asm.Label(asm.Symbol(t.Function.Name))
	case mir.BlockRef:
		lbl, err := ctx.blockLabel(inst, t.Block)
		if err != nil {
			return nil, err
		}
		target = lbl
	}
	return []asm.Instruction{asm.Direct{Op: inst.Opcode, Target: target}}, nil
}

func emitIndirectBranch(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	r, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.IndirectBranch{Op: inst.Opcode, Reg: r}}, nil
}

func emitJcc(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	p, ok := inst.Arch.(*asm.Payload)
	if !ok {
		return nil, ctx.unhandled(inst, "conditional jump without a condition")
	}
	target, err := ctx.blockLabel(inst, inst.Operand(0).(mir.BlockRef).Block)
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.Jcc{Cond: p.Cond, Target: target}}, nil
}

func emitSetcc(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	p, ok := inst.Arch.(*asm.Payload)
	if !ok {
		return nil, ctx.unhandled(inst, "setcc without a condition")
	}
	dst, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.SetCC{Cond: p.Cond, Dst: dst}}, nil
}

func emitShift(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	r, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.Shift{Op: inst.Opcode, Reg: r}}, nil
}

func emitRegOp(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	r, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.RegOp{Op: inst.Opcode, Reg: r}}, nil
}

func emitExtend(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	src, err := ctx.reg(inst, inst.Operand(0))
	if err != nil {
		return nil, err
	}
	dst, err := ctx.reg(inst, inst.Operand(1))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{asm.Extend{Op: inst.Opcode, Src: src, Dst: dst}}, nil
}

func emitBare(ctx *genContext, inst *mir.Instruction) ([]asm.Instruction, error) {
	return []asm.Instruction{asm.Bare{Op: inst.Opcode}}, nil
}

// --- Operand helpers ---

func globalMem(g mir.GlobalRef) asm.Mem {
	return asm.Mem{Base: asm.RIP, Symbol: asm.Symbol(g.Global.Name)}
}

// width returns the memory access width recorded by selection, or
// fallback bits rounded to a width the target can address
func width(inst *mir.Instruction, fallback int) int {
	if p, ok := inst.Arch.(*asm.Payload); ok && p.Width != 0 {
		return p.Width
	}
	switch fallback {
	case 8, 16, 32, 64:
		return fallback
	}
	return asm.FullWidth
}
