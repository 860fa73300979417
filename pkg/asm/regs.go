package asm

import (
	"fmt"
	"strings"

	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// RegisterID identifies an x86-64 general purpose register. MIR register
// operands carry these values in their ID field.
type RegisterID uint32

const (
	NoRegister RegisterID = iota
	RAX
	RBX
	RCX
	RDX
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RSI
	RDI
	RBP
	RSP
	RIP

	numRegisters
)

// FullWidth is the machine's native register width in bits
const FullWidth = 64

type regNames struct {
	q, d, w, b string
}

var registerNames = [numRegisters]regNames{
	RAX: {"rax", "eax", "ax", "al"},
	RBX: {"rbx", "ebx", "bx", "bl"},
	RCX: {"rcx", "ecx", "cx", "cl"},
	RDX: {"rdx", "edx", "dx", "dl"},
	R8:  {"r8", "r8d", "r8w", "r8b"},
	R9:  {"r9", "r9d", "r9w", "r9b"},
	R10: {"r10", "r10d", "r10w", "r10b"},
	R11: {"r11", "r11d", "r11w", "r11b"},
	R12: {"r12", "r12d", "r12w", "r12b"},
	R13: {"r13", "r13d", "r13w", "r13b"},
	R14: {"r14", "r14d", "r14w", "r14b"},
	R15: {"r15", "r15d", "r15w", "r15b"},
	RSI: {"rsi", "esi", "si", "sil"},
	RDI: {"rdi", "edi", "di", "dil"},
	RBP: {"rbp", "ebp", "bp", "bpl"},
	RSP: {"rsp", "esp", "sp", "spl"},
	RIP: {"rip", "eip", "ip", ""},
}

// Valid reports whether id names a real register
func (id RegisterID) Valid() bool {
	return id > NoRegister && id < numRegisters
}

// Name returns the register's name at the given width in bits
func (id RegisterID) Name(size int) (string, bool) {
	if !id.Valid() {
		return "", false
	}
	n := registerNames[id]
	var s string
	switch size {
	case 64:
		s = n.q
	case 32:
		s = n.d
	case 16:
		s = n.w
	case 8:
		s = n.b
	}
	return s, s != ""
}

func (id RegisterID) String() string {
	if s, ok := id.Name(64); ok {
		return s
	}
	return fmt.Sprintf("reg(%d)", uint32(id))
}

// ParseRegister resolves a register name of any width to its id
func ParseRegister(name string) (RegisterID, bool) {
	name = strings.TrimPrefix(strings.ToLower(name), "%")
	for id := RAX; id < numRegisters; id++ {
		n := registerNames[id]
		if name == n.q || name == n.d || name == n.w || (n.b != "" && name == n.b) {
			return id, true
		}
	}
	return NoRegister, false
}

// ResolveRegister adapts ParseRegister to the IR decoder
func ResolveRegister(name string) (uint32, bool) {
	id, ok := ParseRegister(name)
	return uint32(id), ok
}

// TraceRegisterName renders a MIR register for diagnostics
func TraceRegisterName(r mir.Register) string {
	if s, ok := RegisterID(r.ID).Name(int(r.Size)); ok {
		return "%" + s
	}
	return fmt.Sprintf("%%r%d.%d", r.ID, r.Size)
}

// MachineDescription carries the target facts the back end depends on
type MachineDescription struct {
	ReturnRegister RegisterID
}

// DefaultMachine describes x86-64 with the System V return register
func DefaultMachine() MachineDescription {
	return MachineDescription{ReturnRegister: RAX}
}
