// Package isel implements the instruction selection pass: generic MIR -> x86-64 MIR.
// Every common-opcode instruction is expanded into a short sequence of
// x86-64 opcodes appended right after it in the same block. The generic
// instruction stays where it is and points at its expansion through
// Lowered. Register sizes are normalized along the way.
package isel

import (
	"fmt"
	"log/slog"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// Options configures instruction selection
type Options struct {
	Machine asm.MachineDescription
	Logger  *slog.Logger // nil means slog.Default()
}

// SelectModule runs instruction selection over every function of m
func SelectModule(m *mir.Module, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Machine.ReturnRegister == asm.NoRegister {
		opts.Machine = asm.DefaultMachine()
	}
	if !opts.Machine.ReturnRegister.Valid() {
		return mir.Errorf("invalid return register %d", uint32(opts.Machine.ReturnRegister))
	}

	for _, f := range m.Functions {
		if err := SelectFunction(f, opts); err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
	}
	return nil
}

// SelectFunction runs instruction selection over one function
func SelectFunction(f *mir.Function, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Machine.ReturnRegister == asm.NoRegister {
		opts.Machine = asm.DefaultMachine()
	}

	for _, b := range f.Blocks {
		out := make([]*mir.Instruction, 0, 2*len(b.Instructions))
		for _, inst := range b.Instructions {
			out = append(out, inst)
			if !inst.Opcode.IsCommon() || inst.Lowered != nil {
				continue
			}
			s := &selector{fn: f, gen: inst, machine: opts.Machine, logger: opts.Logger}
			s.normalize()
			if err := s.expand(); err != nil {
				return err
			}
			if len(s.out) > 0 {
				inst.Lowered = s.out[0]
			}
			out = append(out, s.out...)
		}
		b.Instructions = out
	}
	return nil
}

// selector holds the state for expanding one generic instruction
type selector struct {
	fn      *mir.Function
	gen     *mir.Instruction
	machine asm.MachineDescription
	logger  *slog.Logger
	out     []*mir.Instruction
}

// emit appends an x86-64 instruction to the expansion
func (s *selector) emit(op mir.Opcode, operands ...mir.Operand) *mir.Instruction {
	inst := s.fn.NewInstruction(op)
	inst.Origin = s.gen.Origin
	inst.Block = s.gen.Block
	for _, o := range operands {
		inst.AddOperand(o)
	}
	s.out = append(s.out, inst)
	return inst
}

// fail reports an instruction selection cannot handle
func (s *selector) fail(format string, args ...any) error {
	return mir.Unhandled(s.gen, asm.OpcodeMnemonic, asm.TraceRegisterName, format, args...)
}

// normalize rewrites register sizes the target cannot address. One-bit
// values live in byte registers; a missing size is a lowering bug that is
// recovered by assuming the full width.
func (s *selector) normalize() {
	for n, op := range s.gen.Operands() {
		if r, ok := op.(mir.Register); ok {
			s.gen.SetOperand(n, mir.Reg(r.ID, s.normalizeSize(r.Size)))
		}
	}
	if s.gen.Reg != 0 {
		s.gen.RegSize = s.normalizeSize(s.gen.RegSize)
	}
}

func (s *selector) normalizeSize(size uint16) uint16 {
	switch size {
	case 0:
		s.logger.Warn("zero sized register, assuming 64-bit",
			"function", s.fn.Name,
			"instruction", mir.FormatInstruction(s.gen, asm.OpcodeMnemonic, asm.TraceRegisterName))
		return asm.FullWidth
	case 1:
		return 8
	}
	return size
}

// result returns the instruction's destination register
func (s *selector) result() (mir.Register, error) {
	if s.gen.Reg == 0 {
		return mir.Register{}, s.fail("%s has no result register", s.gen.Opcode.Kind())
	}
	return mir.Reg(s.gen.Reg, s.gen.RegSize), nil
}

// operands checks the operand count and returns the operands
func (s *selector) operands(n int) ([]mir.Operand, error) {
	if s.gen.NumOperands() != n {
		return nil, s.fail("%s expects %d operands, got %d", s.gen.Opcode.Kind(), n, s.gen.NumOperands())
	}
	return s.gen.Operands(), nil
}

// phys builds a physical register operand
func phys(id asm.RegisterID, size uint16) mir.Register {
	return mir.Reg(uint32(id), size)
}

// resize returns a value operand at a new width. Immediates are unchanged.
func resize(op mir.Operand, size uint16) mir.Operand {
	if r, ok := op.(mir.Register); ok {
		return mir.Reg(r.ID, size)
	}
	return op
}

// isValue reports whether op can be used as an arithmetic source
func isValue(op mir.Operand) bool {
	k := op.Kind()
	return k == mir.KindRegister || k == mir.KindImmediate
}

// inRegister reports whether op is a register with the given id
func inRegister(op mir.Operand, id uint32) bool {
	r, ok := op.(mir.Register)
	return ok && r.ID == id
}

func (s *selector) expand() error {
	switch k := s.gen.Opcode.Kind(); k {
	case ir.Alloca:
		return nil
	case ir.Copy, ir.Bitcast, ir.Trunc:
		return s.selectCopy()
	case ir.ZExt, ir.SExt:
		return s.selectExtend(k == ir.SExt)
	case ir.Load:
		return s.selectLoad()
	case ir.Store:
		return s.selectStore()
	case ir.Add, ir.Sub, ir.Mul, ir.And, ir.Or, ir.Xor:
		return s.selectBinary(k)
	case ir.Shl, ir.Sar, ir.Shr:
		return s.selectShift(k)
	case ir.Neg, ir.Compl:
		return s.selectUnary(k)
	case ir.SDiv, ir.SRem, ir.UDiv, ir.URem:
		return s.selectDivide(k)
	case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		return s.selectCompare(k)
	case ir.Branch:
		return s.selectBranch()
	case ir.CondBranch:
		return s.selectCondBranch()
	case ir.Call:
		return s.selectCall()
	case ir.Return:
		return s.selectReturn()
	default:
		return s.fail("no selection for %s", k)
	}
}
