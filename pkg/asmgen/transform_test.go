package asmgen

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

func r(id asm.RegisterID, size uint16) mir.Register {
	return mir.Reg(uint32(id), size)
}

func arch(f *mir.Function, b *mir.Block, op mir.Opcode, ops ...mir.Operand) *mir.Instruction {
	inst := f.NewInstruction(op)
	for _, o := range ops {
		inst.AddOperand(o)
	}
	return b.Append(inst)
}

func module(fns ...*mir.Function) *mir.Module {
	return &mir.Module{Name: "test.ir", Functions: fns}
}

// render transforms m and returns the function bodies as AT&T lines
func render(t *testing.T, m *mir.Module) []string {
	t.Helper()
	prog, err := TransformModule(m, Options{Machine: asm.DefaultMachine()})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, asm.NewPrinter(&buf, asm.ATT).PrintProgram(prog))
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestTransformEmptyModule(t *testing.T) {
	prog, err := TransformModule(module(), Options{Machine: asm.DefaultMachine()})
	require.NoError(t, err)
	assert.Empty(t, prog.Functions)
	assert.Empty(t, prog.Globals)
	assert.Equal(t, "test.ir", prog.File)
}

func TestTransformPrologueEpilogue(t *testing.T) {
	f := mir.NewFunction("main", ir.LinkExported)
	f.AddFrameObject(8, nil)
	f.AddFrameObject(4, nil)
	f.AssignFrameOffsets()
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, mir.Imm(5), mir.Local(0))
	arch(f, b, asm.OpMov, r(asm.RAX, 32), mir.Local(1))
	arch(f, b, asm.OpRet)

	lines := render(t, module(f))
	want := []string{
		`    .file "test.ir"`,
		"    .text",
		"    .globl main",
		"main:",
		"    push %rbp",
		"    mov %rsp, %rbp",
		"    sub $12, %rsp",
		".entry:",
		"    movq $5, -8(%rbp)",
		"    mov %eax, -12(%rbp)",
		"    mov %rbp, %rsp",
		"    pop %rbp",
		"    ret",
		"    .section .note.GNU-stack",
	}
	assert.Equal(t, want, lines)
}

func TestTransformNoFrameNoSub(t *testing.T) {
	f := mir.NewFunction("leaf", ir.LinkLocal)
	b := f.NewBlock("")
	arch(f, b, asm.OpRet)

	for _, line := range render(t, module(f)) {
		assert.NotContains(t, line, "sub")
	}
}

func TestTransformSelfMove(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, r(asm.RAX, 64), r(asm.RAX, 64))
	arch(f, b, asm.OpMov, r(asm.RAX, 32), r(asm.RAX, 64))

	prog, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	require.NoError(t, err)
	code := prog.Functions[0].Code
	// push, mov rsp, label, then only the width-changing move
	require.Len(t, code, 4)
	assert.Equal(t, asm.RegReg{
		Op:  asm.OpMov,
		Src: asm.Reg{ID: asm.RAX, Size: 32},
		Dst: asm.Reg{ID: asm.RAX, Size: 64},
	}, code[3])
}

func TestTransformCallSequencing(t *testing.T) {
	tests := []struct {
		name string
		reg  asm.RegisterID
		size uint16
		want []string
	}{
		{"result elsewhere", asm.RBX, 32, []string{
			"    push %rax",
			"    call puts",
			"    mov %eax, %ebx",
			"    pop %rax",
		}},
		{"result in return register", asm.RAX, 64, []string{"    call puts"}},
		{"no result", asm.NoRegister, 0, []string{"    call puts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mir.NewFunction("f", ir.LinkLocal)
			b := f.NewBlock("entry")
			call := arch(f, b, asm.OpCall, mir.Name("puts"))
			call.Reg = uint32(tt.reg)
			call.RegSize = tt.size

			lines := render(t, module(f))
			start := -1
			for i, l := range lines {
				if l == ".entry:" {
					start = i + 1
				}
			}
			require.NotEqual(t, -1, start)
			assert.Equal(t, tt.want, lines[start:len(lines)-1])
		})
	}
}

func TestTransformUnhandledSignature(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, mir.Imm(1), mir.Imm(2))

	prog, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	assert.Nil(t, prog)
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice))
	assert.Contains(t, err.Error(), "UNHANDLED INSTRUCTION:")
	assert.Contains(t, ice.Trace, "mov 1, 2")
}

func TestTransformLocalOutOfRange(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	f.AddFrameObject(8, nil)
	f.AssignFrameOffsets()
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, mir.Local(1), r(asm.RAX, 64))

	_, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice))
	assert.Contains(t, ice.Msg, "local 1 out of range")
}

func TestTransformUnselectedGeneric(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, mir.CommonOpcode(ir.Alloca))
	add := arch(f, b, mir.CommonOpcode(ir.Add), r(asm.RAX, 64), r(asm.RBX, 64))

	_, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	require.Error(t, err)

	// Once lowered, the generic instruction is skipped
	add.Lowered = arch(f, b, asm.OpAdd, r(asm.RAX, 64), r(asm.RBX, 64))
	lines := render(t, module(f))
	assert.Contains(t, lines, "    add %rax, %rbx")
}

func TestTransformBlockLabels(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b0 := f.NewBlock("")
	b1 := f.NewBlock("loop.head")
	arch(f, b0, asm.OpJmp, mir.BlockRef{Block: b1})
	jcc := arch(f, b1, asm.OpJcc, mir.BlockRef{Block: b0})
	jcc.Arch = &asm.Payload{Cond: asm.CondLE}

	g := mir.NewFunction("g", ir.LinkLocal)
	arch(g, g.NewBlock(""), asm.OpRet)

	lines := render(t, module(f, g))
	assert.Contains(t, lines, ".__block_0:")
	assert.Contains(t, lines, ".loop_head:")
	assert.Contains(t, lines, "    jmp .loop_head")
	assert.Contains(t, lines, "    jle .__block_0")
	assert.Contains(t, lines, ".__block_1:", "anonymous labels are unique across functions")
}

func TestTransformJccWithoutCondition(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, asm.OpJcc, mir.BlockRef{Block: b})
	_, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	assert.Error(t, err)
}

func TestTransformMemoryOperands(t *testing.T) {
	counter := &ir.GlobalVar{Name: "counter", Type: ir.I32}
	f := mir.NewFunction("f", ir.LinkLocal)
	f.AddFrameObject(8, nil)
	f.AssignFrameOffsets()
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, mir.GlobalRef{Global: counter}, r(asm.RAX, 32))
	arch(f, b, asm.OpMov, mir.Imm(3), mir.GlobalRef{Global: counter})
	arch(f, b, asm.OpMov, r(asm.RBX, 64), mir.Imm(16), r(asm.RCX, 64))
	arch(f, b, asm.OpMov, r(asm.RCX, 64), r(asm.RBX, 64), mir.Imm(0))
	arch(f, b, asm.OpLea, mir.Local(0), r(asm.RDX, 64))
	arch(f, b, asm.OpCall, r(asm.RDX, 64))

	m := module(f)
	m.Globals = []*ir.GlobalVar{counter}
	lines := render(t, m)
	for _, want := range []string{
		"    mov counter(%rip), %eax",
		"    movl $3, counter(%rip)",
		"    mov 16(%rbx), %rcx",
		"    mov %rcx, (%rbx)",
		"    lea -8(%rbp), %rdx",
		"    call *%rdx",
		"counter:",
		"    .zero 4",
	} {
		assert.Contains(t, lines, want)
	}
}

func TestTransformRegisterWithoutWidth(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, asm.OpPush, r(asm.RAX, 12))
	_, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice))
	assert.Contains(t, ice.Msg, "no 12-bit form")
}

func TestTransformGlobals(t *testing.T) {
	m := module()
	m.Globals = []*ir.GlobalVar{
		{Name: "msg", Type: ir.ArrayOf(ir.I8, 2), Init: ir.ArrayConstant{Bytes: []byte("Hi")}},
		{Name: "buf", Type: ir.ArrayOf(ir.I64, 4)},
	}
	prog, err := TransformModule(m, Options{Machine: asm.DefaultMachine()})
	require.NoError(t, err)
	require.Len(t, prog.Globals, 2)
	assert.Equal(t, asm.GlobVar{Name: "msg", Size: 2, Init: []byte("Hi")}, prog.Globals[0])
	assert.Equal(t, asm.GlobVar{Name: "buf", Size: 32}, prog.Globals[1])

	m.Globals = append(m.Globals, &ir.GlobalVar{
		Name: "n", Type: ir.I64, Init: ir.IntegerConstant{Value: 1, Type: ir.I64},
	})
	_, err = TransformModule(m, Options{Machine: asm.DefaultMachine()})
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice))
	assert.Contains(t, ice.Msg, "integer constant")
}

func TestTransformExternFunction(t *testing.T) {
	f := mir.NewFunction("puts", ir.LinkImported)
	prog, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine()})
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	assert.Equal(t, asm.Extern, prog.Functions[0].Linkage)
	assert.Empty(t, prog.Functions[0].Code)
}

func TestPatternTableCoversSelection(t *testing.T) {
	// Every opcode selection produces has at least one template
	for op := asm.OpMov; op < asm.OpCqo+1; op++ {
		found := false
		for k := range patterns {
			if k.op == op {
				found = true
				break
			}
		}
		assert.True(t, found, "no pattern for %s", asm.OpcodeMnemonic(op))
	}
}

func TestTransformImmediateRange(t *testing.T) {
	const big = 1 << 40
	counter := &ir.GlobalVar{Name: "counter", Type: ir.I64}
	tests := []struct {
		name    string
		build   func(f *mir.Function, b *mir.Block)
		wantErr bool
	}{
		{"wide move into a register", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpMov, mir.Imm(big), r(asm.RAX, 64))
		}, false},
		{"wide add into a register", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpAdd, mir.Imm(big), r(asm.RAX, 64))
		}, true},
		{"negative add into a register", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpAdd, mir.Imm(-5), r(asm.RAX, 64))
		}, false},
		{"unsigned 32-bit add into a 64-bit register", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpAdd, mir.Imm(0xffffffff), r(asm.RAX, 64))
		}, true},
		{"wide store to a local", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpMov, mir.Imm(big), mir.Local(0))
		}, true},
		{"wide store to a global", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpMov, mir.Imm(big), mir.GlobalRef{Global: counter})
		}, true},
		{"unsigned 32-bit store through a pointer", func(f *mir.Function, b *mir.Block) {
			st := arch(f, b, asm.OpMov, mir.Imm(0xffffffff), r(asm.RBX, 64), mir.Imm(0))
			st.Arch = &asm.Payload{Width: 32}
		}, false},
		{"byte register overflow", func(f *mir.Function, b *mir.Block) {
			arch(f, b, asm.OpMov, mir.Imm(300), r(asm.RAX, 8))
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mir.NewFunction("f", ir.LinkLocal)
			f.AddFrameObject(8, nil)
			f.AssignFrameOffsets()
			tt.build(f, f.NewBlock("entry"))
			m := module(f)
			m.Globals = []*ir.GlobalVar{counter}

			_, err := TransformModule(m, Options{Machine: asm.DefaultMachine()})
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var ice *mir.InternalError
			require.True(t, errors.As(err, &ice), "got %v", err)
			assert.Contains(t, ice.Msg, "does not fit")
		})
	}

	f := mir.NewFunction("f", ir.LinkLocal)
	arch(f, f.NewBlock("entry"), asm.OpMov, mir.Imm(big), r(asm.RAX, 64))
	assert.Contains(t, render(t, module(f)), "    mov $1099511627776, %rax")
}

func TestTransformDuplicateBlockNames(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	arch(f, f.NewBlock("entry"), asm.OpRet)
	g := mir.NewFunction("g", ir.LinkLocal)
	arch(g, g.NewBlock("entry"), asm.OpRet)

	_, err := TransformModule(module(f, g), Options{Machine: asm.DefaultMachine()})
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice), "got %v", err)
	assert.Contains(t, err.Error(), "g:")
	assert.Contains(t, ice.Msg, "already defined")
}

func TestTransformDottedNameCollision(t *testing.T) {
	f := mir.NewFunction("f", ir.LinkLocal)
	b0 := f.NewBlock("loop.1")
	b1 := f.NewBlock("")
	arch(f, b0, asm.OpRet)
	arch(f, b1, asm.OpRet)
	g := mir.NewFunction("g", ir.LinkLocal)
	other := g.NewBlock("loop_1")
	arch(g, g.NewBlock(""), asm.OpJmp, mir.BlockRef{Block: other})
	arch(g, other, asm.OpRet)

	_, err := TransformModule(module(f, g), Options{Machine: asm.DefaultMachine()})
	var ice *mir.InternalError
	require.True(t, errors.As(err, &ice), "got %v", err)
	assert.Contains(t, ice.Msg, ".loop_1")
}

func TestTransformNormalizesRegisterSizes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	f := mir.NewFunction("f", ir.LinkLocal)
	b := f.NewBlock("entry")
	arch(f, b, asm.OpMov, r(asm.RAX, 0), r(asm.RBX, 0))
	arch(f, b, asm.OpMov, r(asm.RAX, 1), r(asm.RBX, 1))

	prog, err := TransformModule(module(f), Options{Machine: asm.DefaultMachine(), Logger: logger})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, asm.NewPrinter(&out, asm.ATT).PrintProgram(prog))
	lines := strings.Split(out.String(), "\n")
	assert.Contains(t, lines, "    mov %rax, %rbx")
	assert.Contains(t, lines, "    mov %al, %bl")
	assert.Contains(t, buf.String(), "zero sized register")
	assert.Equal(t, 2, strings.Count(buf.String(), "zero sized register"), "one warning per operand")
}
