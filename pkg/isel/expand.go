package isel

import (
	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

var binaryOps = map[ir.InstKind]mir.Opcode{
	ir.Add: asm.OpAdd,
	ir.Sub: asm.OpSub,
	ir.Mul: asm.OpImul,
	ir.And: asm.OpAnd,
	ir.Or:  asm.OpOr,
	ir.Xor: asm.OpXor,
}

var shiftOps = map[ir.InstKind]mir.Opcode{
	ir.Shl: asm.OpShl,
	ir.Sar: asm.OpSar,
	ir.Shr: asm.OpShr,
}

var conditions = map[ir.InstKind]asm.Cond{
	ir.Eq: asm.CondE,
	ir.Ne: asm.CondNE,
	ir.Lt: asm.CondL,
	ir.Le: asm.CondLE,
	ir.Gt: asm.CondG,
	ir.Ge: asm.CondGE,
}

// swapped gives the condition that holds with the operands exchanged
var swapped = map[asm.Cond]asm.Cond{
	asm.CondE:  asm.CondE,
	asm.CondNE: asm.CondNE,
	asm.CondL:  asm.CondG,
	asm.CondLE: asm.CondGE,
	asm.CondG:  asm.CondL,
	asm.CondGE: asm.CondLE,
}

// selectCopy handles copy, bitcast and trunc. Addresses of locals and
// globals are materialized with lea; register sources are read at the
// result width, which for trunc selects the low part.
func (s *selector) selectCopy() error {
	ops, err := s.operands(1)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	switch src := ops[0].(type) {
	case mir.Local, mir.GlobalRef:
		s.emit(asm.OpLea, src, phys(asm.RegisterID(res.ID), asm.FullWidth))
	case mir.Register, mir.Immediate:
		s.emit(asm.OpMov, resize(src, res.Size), res)
	default:
		return s.fail("cannot copy a %s operand", src.Kind())
	}
	return nil
}

func (s *selector) selectExtend(signed bool) error {
	ops, err := s.operands(1)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	src, ok := ops[0].(mir.Register)
	if !ok {
		if ops[0].Kind() != mir.KindImmediate {
			return s.fail("cannot extend a %s operand", ops[0].Kind())
		}
		s.emit(asm.OpMov, ops[0], res)
		return nil
	}

	switch {
	case src.Size == res.Size:
		s.emit(asm.OpMov, src, res)
	case src.Size > res.Size:
		return s.fail("extension from %d to %d bits", src.Size, res.Size)
	case !signed && src.Size == 32:
		// Writing a 32-bit register clears the upper half
		s.emit(asm.OpMov, src, mir.Reg(res.ID, 32))
	case signed:
		s.emit(asm.OpMovsx, src, res)
	default:
		s.emit(asm.OpMovzx, src, res)
	}
	return nil
}

func (s *selector) selectLoad() error {
	ops, err := s.operands(1)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	switch addr := ops[0].(type) {
	case mir.Local, mir.GlobalRef:
		s.emit(asm.OpMov, addr, res)
	case mir.Register:
		s.emit(asm.OpMov, resize(addr, asm.FullWidth), mir.Imm(0), res)
	default:
		return s.fail("cannot load through a %s operand", addr.Kind())
	}
	return nil
}

// selectStore handles store value, address
func (s *selector) selectStore() error {
	ops, err := s.operands(2)
	if err != nil {
		return err
	}
	val, addr := ops[0], ops[1]
	if !isValue(val) {
		return s.fail("cannot store a %s operand", val.Kind())
	}

	var mov *mir.Instruction
	switch a := addr.(type) {
	case mir.Local, mir.GlobalRef:
		mov = s.emit(asm.OpMov, val, a)
	case mir.Register:
		mov = s.emit(asm.OpMov, val, resize(a, asm.FullWidth), mir.Imm(0))
	default:
		return s.fail("cannot store through a %s operand", addr.Kind())
	}
	if val.Kind() == mir.KindImmediate {
		mov.Arch = &asm.Payload{Width: s.storeWidth(addr)}
	}
	return nil
}

// storeWidth decides the access width of an immediate store: the stored
// type when the IR records one, else the size of the destination object.
func (s *selector) storeWidth(addr mir.Operand) int {
	width := 0
	if o := s.gen.Origin; o != nil && o.Type.Kind != ir.TVoid {
		width = int(o.Type.Bits())
	} else {
		switch a := addr.(type) {
		case mir.Local:
			if int(a) >= 0 && int(a) < len(s.fn.FrameObjects) {
				width = int(s.fn.FrameObjects[a].Size * 8)
			}
		case mir.GlobalRef:
			width = int(a.Global.Type.Bits())
		}
	}
	switch width {
	case 8, 16, 32, 64:
		return width
	case 1:
		return 8
	}
	return asm.FullWidth
}

// selectBinary handles two-address arithmetic: res = a; res op= b
func (s *selector) selectBinary(k ir.InstKind) error {
	ops, err := s.operands(2)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	a, b := resize(ops[0], res.Size), resize(ops[1], res.Size)
	if !isValue(a) || !isValue(b) {
		return s.fail("%s of %s and %s", k, a.Kind(), b.Kind())
	}
	op := binaryOps[k]

	// Moving a into res would clobber b
	if inRegister(b, res.ID) && !inRegister(a, res.ID) {
		if k == ir.Sub {
			s.emit(asm.OpSub, a, res)
			s.emit(asm.OpNeg, res)
			return nil
		}
		a, b = b, a
	}
	s.emit(asm.OpMov, a, res)
	s.emit(op, b, res)
	return nil
}

// selectShift handles res = a shift b with the count in %cl
func (s *selector) selectShift(k ir.InstKind) error {
	ops, err := s.operands(2)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	a, b := resize(ops[0], res.Size), resize(ops[1], 8)
	if !isValue(a) || !isValue(b) {
		return s.fail("%s of %s by %s", k, a.Kind(), b.Kind())
	}
	rcx := uint32(asm.RCX)
	if res.ID == rcx {
		return s.fail("%s result in the shift count register", k)
	}

	count := phys(asm.RCX, 8)
	if inRegister(a, rcx) {
		if inRegister(b, res.ID) {
			return s.fail("%s operands conflict with the shift count register", k)
		}
		s.emit(asm.OpMov, a, res)
		s.emit(asm.OpMov, b, count)
	} else {
		s.emit(asm.OpMov, b, count)
		s.emit(asm.OpMov, a, res)
	}
	s.emit(shiftOps[k], res)
	return nil
}

func (s *selector) selectUnary(k ir.InstKind) error {
	ops, err := s.operands(1)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	a := resize(ops[0], res.Size)
	if !isValue(a) {
		return s.fail("%s of %s", k, a.Kind())
	}
	s.emit(asm.OpMov, a, res)
	if k == ir.Neg {
		s.emit(asm.OpNeg, res)
	} else {
		s.emit(asm.OpNot, res)
	}
	return nil
}

// selectDivide handles the rax:rdx division sequence. The divisor must be
// a register other than rax and rdx; immediates and divisors living there
// are staged through the result register.
func (s *selector) selectDivide(k ir.InstKind) error {
	ops, err := s.operands(2)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	size := res.Size
	a, b := resize(ops[0], size), resize(ops[1], size)
	if !isValue(a) || !isValue(b) {
		return s.fail("%s of %s by %s", k, a.Kind(), b.Kind())
	}

	var extend mir.Opcode
	switch size {
	case 16:
		extend = asm.OpCwd
	case 32:
		extend = asm.OpCdq
	case 64:
		extend = asm.OpCqo
	default:
		return s.fail("%d-bit %s", size, k)
	}

	rax, rdx := uint32(asm.RAX), uint32(asm.RDX)
	divisor := b
	staged := b.Kind() == mir.KindImmediate || inRegister(b, rax) || inRegister(b, rdx)
	if staged {
		if res.ID == rax || res.ID == rdx {
			return s.fail("%s divisor cannot be staged through %s", k, asm.TraceRegisterName(res))
		}
		divisor = res
	}

	dividend := phys(asm.RAX, size)
	switch {
	case !staged:
		s.emit(asm.OpMov, a, dividend)
	case inRegister(a, res.ID):
		if inRegister(b, rax) {
			return s.fail("%s operands conflict with rax", k)
		}
		s.emit(asm.OpMov, a, dividend)
		s.emit(asm.OpMov, b, res)
	default:
		s.emit(asm.OpMov, b, res)
		s.emit(asm.OpMov, a, dividend)
	}

	remainder := phys(asm.RDX, size)
	if k == ir.SDiv || k == ir.SRem {
		s.emit(extend)
		s.emit(asm.OpIdiv, divisor)
	} else {
		s.emit(asm.OpXor, remainder, remainder)
		s.emit(asm.OpDiv, divisor)
	}

	if k == ir.SDiv || k == ir.UDiv {
		s.emit(asm.OpMov, dividend, res)
	} else {
		s.emit(asm.OpMov, remainder, res)
	}
	return nil
}

// selectCompare handles res = a cond b as cmp b, a; setcc
func (s *selector) selectCompare(k ir.InstKind) error {
	ops, err := s.operands(2)
	if err != nil {
		return err
	}
	res, err := s.result()
	if err != nil {
		return err
	}
	a, b := ops[0], ops[1]
	if !isValue(a) || !isValue(b) {
		return s.fail("%s of %s and %s", k, a.Kind(), b.Kind())
	}
	cond := conditions[k]
	if a.Kind() == mir.KindImmediate {
		if b.Kind() == mir.KindImmediate {
			return s.fail("%s of two immediates", k)
		}
		a, b = b, a
		cond = swapped[cond]
	}

	s.emit(asm.OpCmp, b, a)
	flag := mir.Reg(res.ID, 8)
	s.emit(asm.OpSetcc, flag).Arch = &asm.Payload{Cond: cond}
	if res.Size > 8 {
		s.emit(asm.OpMovzx, flag, res)
	}
	return nil
}

func (s *selector) selectBranch() error {
	ops, err := s.operands(1)
	if err != nil {
		return err
	}
	if ops[0].Kind() != mir.KindBlock {
		return s.fail("branch to a %s operand", ops[0].Kind())
	}
	s.emit(asm.OpJmp, ops[0])
	return nil
}

// selectCondBranch handles condbranch c, then, else
func (s *selector) selectCondBranch() error {
	ops, err := s.operands(3)
	if err != nil {
		return err
	}
	c, then, els := ops[0], ops[1], ops[2]
	if then.Kind() != mir.KindBlock || els.Kind() != mir.KindBlock {
		return s.fail("conditional branch to %s and %s", then.Kind(), els.Kind())
	}

	switch v := c.(type) {
	case mir.Immediate:
		if v != 0 {
			s.emit(asm.OpJmp, then)
		} else {
			s.emit(asm.OpJmp, els)
		}
	case mir.Register:
		s.emit(asm.OpTest, v, v)
		s.emit(asm.OpJcc, then).Arch = &asm.Payload{Cond: asm.CondNE}
		s.emit(asm.OpJmp, els)
	default:
		return s.fail("branch on a %s operand", c.Kind())
	}
	return nil
}

// selectCall emits the call itself. Arguments are expected in place
// already; asmgen sequences the result into the destination register.
func (s *selector) selectCall() error {
	if s.gen.NumOperands() == 0 {
		return s.fail("call without a callee")
	}
	callee := s.gen.Operand(0)
	switch callee.Kind() {
	case mir.KindFunction, mir.KindName, mir.KindBlock:
	case mir.KindRegister:
		callee = resize(callee, asm.FullWidth)
	default:
		return s.fail("call through a %s operand", callee.Kind())
	}
	call := s.emit(asm.OpCall, callee)
	call.Reg = s.gen.Reg
	call.RegSize = s.gen.RegSize
	return nil
}

func (s *selector) selectReturn() error {
	switch s.gen.NumOperands() {
	case 0:
	case 1:
		v := s.gen.Operand(0)
		switch r := v.(type) {
		case mir.Register:
			s.emit(asm.OpMov, r, phys(s.machine.ReturnRegister, r.Size))
		case mir.Immediate:
			s.emit(asm.OpMov, r, phys(s.machine.ReturnRegister, asm.FullWidth))
		default:
			return s.fail("return of a %s operand", v.Kind())
		}
	default:
		return s.fail("return expects at most 1 operand, got %d", s.gen.NumOperands())
	}
	s.emit(asm.OpRet)
	return nil
}
