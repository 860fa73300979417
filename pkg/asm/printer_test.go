package asm

import (
	"bytes"
	"strings"
	"testing"
)

func printOne(d Dialect, inst Instruction) string {
	var buf bytes.Buffer
	p := NewPrinter(&buf, d)
	p.printInstruction(inst)
	return buf.String()
}

func TestPrintMoves(t *testing.T) {
	rax := Reg{ID: RAX, Size: 64}
	rbx := Reg{ID: RBX, Size: 64}
	tests := []struct {
		name  string
		inst  Instruction
		att   string
		intel string
	}{
		{"imm to reg", ImmReg{Op: OpMov, Imm: 5, Dst: rax},
			"    mov $5, %rax\n", "    mov rax, 5\n"},
		{"negative imm", ImmReg{Op: OpMov, Imm: -1, Dst: Reg{ID: RCX, Size: 32}},
			"    mov $-1, %ecx\n", "    mov ecx, -1\n"},
		{"reg to reg", RegReg{Op: OpMov, Src: rax, Dst: rbx},
			"    mov %rax, %rbx\n", "    mov rbx, rax\n"},
		{"reg to local", RegMem{Op: OpMov, Src: rax, Dst: Mem{Base: RBP, Offset: -8}},
			"    mov %rax, -8(%rbp)\n", "    mov [rbp - 8], rax\n"},
		{"local to reg", MemReg{Op: OpMov, Src: Mem{Base: RBP, Offset: -16}, Dst: rbx},
			"    mov -16(%rbp), %rbx\n", "    mov rbx, [rbp - 16]\n"},
		{"through pointer", MemReg{Op: OpMov, Src: Mem{Base: RAX}, Dst: rbx},
			"    mov (%rax), %rbx\n", "    mov rbx, [rax]\n"},
		{"global to reg", MemReg{Op: OpMov, Src: Mem{Base: RIP, Symbol: "counter"}, Dst: rax},
			"    mov counter(%rip), %rax\n", "    mov rax, [rip + counter]\n"},
		{"lea local", MemReg{Op: OpLea, Src: Mem{Base: RBP, Offset: -4}, Dst: rax},
			"    lea -4(%rbp), %rax\n", "    lea rax, [rbp - 4]\n"},
		{"imm to local 32", ImmMem{Op: OpMov, Imm: 7, Dst: Mem{Base: RBP, Offset: -4}, Size: 32},
			"    movl $7, -4(%rbp)\n", "    mov dword ptr [rbp - 4], 7\n"},
		{"imm to local 8", ImmMem{Op: OpMov, Imm: 1, Dst: Mem{Base: RBP, Offset: -1}, Size: 8},
			"    movb $1, -1(%rbp)\n", "    mov byte ptr [rbp - 1], 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := printOne(ATT, tt.inst); got != tt.att {
				t.Errorf("att: got %q, want %q", got, tt.att)
			}
			if got := printOne(Intel, tt.inst); got != tt.intel {
				t.Errorf("intel: got %q, want %q", got, tt.intel)
			}
		})
	}
}

func TestPrintControlFlow(t *testing.T) {
	tests := []struct {
		name  string
		inst  Instruction
		att   string
		intel string
	}{
		{"call", Direct{Op: OpCall, Target: "puts"}, "    call puts\n", "    call puts\n"},
		{"jmp", Direct{Op: OpJmp, Target: ".loop"}, "    jmp .loop\n", "    jmp .loop\n"},
		{"indirect call", IndirectBranch{Op: OpCall, Reg: Reg{ID: RAX, Size: 64}},
			"    call *%rax\n", "    call rax\n"},
		{"jne", Jcc{Cond: CondNE, Target: ".then"}, "    jne .then\n", "    jne .then\n"},
		{"setl", SetCC{Cond: CondL, Dst: Reg{ID: RAX, Size: 8}}, "    setl %al\n", "    setl al\n"},
		{"ret", Bare{Op: OpRet}, "    ret\n", "    ret\n"},
		{"label", LabelDef{Name: ".entry"}, ".entry:\n", ".entry:\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := printOne(ATT, tt.inst); got != tt.att {
				t.Errorf("att: got %q, want %q", got, tt.att)
			}
			if got := printOne(Intel, tt.inst); got != tt.intel {
				t.Errorf("intel: got %q, want %q", got, tt.intel)
			}
		})
	}
}

func TestPrintDialectSpellings(t *testing.T) {
	tests := []struct {
		name  string
		inst  Instruction
		att   string
		intel string
	}{
		{"cqo", Bare{Op: OpCqo}, "    cqto\n", "    cqo\n"},
		{"cdq", Bare{Op: OpCdq}, "    cltd\n", "    cdq\n"},
		{"cwd", Bare{Op: OpCwd}, "    cwtd\n", "    cwd\n"},
		{"movzx", Extend{Op: OpMovzx, Src: Reg{ID: RAX, Size: 8}, Dst: Reg{ID: RBX, Size: 64}},
			"    movzbq %al, %rbx\n", "    movzx rbx, al\n"},
		{"movsx 16", Extend{Op: OpMovsx, Src: Reg{ID: RCX, Size: 16}, Dst: Reg{ID: RDX, Size: 32}},
			"    movswl %cx, %edx\n", "    movsx edx, cx\n"},
		{"movsx 32", Extend{Op: OpMovsx, Src: Reg{ID: RAX, Size: 32}, Dst: Reg{ID: RAX, Size: 64}},
			"    movslq %eax, %rax\n", "    movsxd rax, eax\n"},
		{"shift", Shift{Op: OpShl, Reg: Reg{ID: RAX, Size: 64}},
			"    shl %cl, %rax\n", "    shl rax, cl\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := printOne(ATT, tt.inst); got != tt.att {
				t.Errorf("att: got %q, want %q", got, tt.att)
			}
			if got := printOne(Intel, tt.inst); got != tt.intel {
				t.Errorf("intel: got %q, want %q", got, tt.intel)
			}
		})
	}
}

func TestPrintProgram(t *testing.T) {
	fn := NewFunction("main", Global)
	fn.Append(
		RegOp{Op: OpPush, Reg: Reg{ID: RBP, Size: 64}},
		Bare{Op: OpRet},
	)
	prog := &Program{
		File: "test.ir",
		Globals: []GlobVar{
			{Name: "msg", Size: 2, Init: []byte{0x48, 0xff}},
			{Name: "buf", Size: 16},
		},
		Functions: []Function{
			{Name: "puts", Linkage: Extern},
			*fn,
		},
	}

	var buf bytes.Buffer
	if err := NewPrinter(&buf, ATT).PrintProgram(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := strings.Join([]string{
		`    .file "test.ir"`,
		"    .data",
		"msg:",
		"    .byte 0x48,0xff",
		"",
		"buf:",
		"    .zero 16",
		"",
		"    .text",
		"    .extern puts",
		"    .globl main",
		"main:",
		"    push %rbp",
		"    ret",
		"    .section .note.GNU-stack",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintProgramIntelHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewPrinter(&buf, Intel).PrintProgram(&Program{File: "empty"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "    .file \"empty\"\n    .intel_syntax noprefix\n    .section .note.GNU-stack\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrintProgramBadDialect(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, Dialect(9)).PrintProgram(&Program{})
	if err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
