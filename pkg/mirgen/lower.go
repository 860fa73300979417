// Package mirgen lowers a finished IR module to MIR.
// The lowering is shape-preserving: one machine function per IR function,
// one block per IR block and one instruction per IR instruction, each
// carrying the common opcode of its IR kind. Stack allocations become the
// function's frame objects.
package mirgen

import (
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// TranslateModule lowers an IR module to MIR
func TranslateModule(m *ir.Module) (*mir.Module, error) {
	ctx := &context{
		functions: make(map[*ir.Function]*mir.Function),
		blocks:    make(map[*ir.Block]*mir.Block),
	}
	result := &mir.Module{
		Name:    m.Name,
		Globals: m.Globals,
		Origin:  m,
	}

	// Skeletons first so calls and branches can refer forward
	for _, f := range m.Functions {
		mf := mir.NewFunction(f.Name, f.Linkage)
		mf.Origin = f
		ctx.functions[f] = mf
		for _, b := range f.Blocks {
			mb := mf.NewBlock(b.Name)
			mb.Origin = b
			ctx.blocks[b] = mb
		}
		result.Functions = append(result.Functions, mf)
	}

	for _, f := range m.Functions {
		if err := ctx.translateFunction(f); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type context struct {
	functions map[*ir.Function]*mir.Function
	blocks    map[*ir.Block]*mir.Block
}

// funcContext holds per-function lowering state
type funcContext struct {
	*context
	fn     *mir.Function
	locals map[*ir.Instruction]mir.Local
}

func (ctx *context) translateFunction(f *ir.Function) error {
	fc := &funcContext{
		context: ctx,
		fn:      ctx.functions[f],
		locals:  make(map[*ir.Instruction]mir.Local),
	}

	// Frame objects in declaration order
	for _, alloca := range f.Locals() {
		fc.locals[alloca] = fc.fn.AddFrameObject(alloca.AllocatedType.Bytes(), alloca)
	}
	fc.fn.AssignFrameOffsets()

	for _, b := range f.Blocks {
		mb := ctx.blocks[b]
		for _, inst := range b.Instructions {
			mi, err := fc.translateInstruction(inst)
			if err != nil {
				return err
			}
			mb.Append(mi)
		}
	}
	return nil
}

func (fc *funcContext) translateInstruction(inst *ir.Instruction) (*mir.Instruction, error) {
	mi := fc.fn.NewInstruction(mir.CommonOpcode(inst.Kind))
	mi.Origin = inst

	if inst.Kind.HasValue() && inst.Kind != ir.Alloca && inst.Register != 0 {
		mi.Reg = inst.Register
		mi.RegSize = uint16(inst.Type.Bits())
	}

	for n, op := range inst.Operands {
		mop, err := fc.translateOperand(op)
		if err != nil {
			return nil, mir.Unhandled(mi, nil, nil, "%s operand %d: %v", inst.Kind, n, err)
		}
		mi.AddOperand(mop)
	}
	return mi, nil
}

func (fc *funcContext) translateOperand(op ir.Operand) (mir.Operand, error) {
	switch o := op.(type) {
	case *ir.Instruction:
		if o.Kind == ir.Alloca {
			local, ok := fc.locals[o]
			if !ok {
				return nil, errForeignLocal
			}
			return local, nil
		}
		if o.Register == 0 {
			return nil, errNoRegister
		}
		return mir.Reg(o.Register, uint16(o.Type.Bits())), nil
	case ir.Immediate:
		return mir.Imm(int64(o)), nil
	case *ir.GlobalVar:
		return mir.GlobalRef{Global: o}, nil
	case *ir.Function:
		return mir.FunctionRef{Function: fc.functions[o]}, nil
	case *ir.Block:
		mb, ok := fc.blocks[o]
		if !ok || mb.Function != fc.fn {
			return nil, errForeignBlock
		}
		return mir.BlockRef{Block: mb}, nil
	case ir.ExternalName:
		return mir.Name(o), nil
	}
	return nil, errUnknownOperand
}
