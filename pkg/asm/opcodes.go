package asm

import (
	"fmt"

	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

// Dialect selects the textual assembly syntax
type Dialect int

const (
	ATT Dialect = iota
	Intel
)

func (d Dialect) String() string {
	switch d {
	case ATT:
		return "att"
	case Intel:
		return "intel"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// Valid reports whether d is a supported dialect
func (d Dialect) Valid() bool {
	return d == ATT || d == Intel
}

// ParseDialect parses a dialect name
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "att", "gnu", "at&t":
		return ATT, nil
	case "intel":
		return Intel, nil
	}
	return 0, fmt.Errorf("unknown assembly dialect %q", s)
}

// x86-64 opcodes, in the architecture-private MIR range
const (
	OpMov mir.Opcode = mir.ArchStart + iota
	OpAdd
	OpSub
	OpImul
	OpDiv
	OpIdiv
	OpShl
	OpSar
	OpShr
	OpAnd
	OpOr
	OpXor
	OpNot
	OpNeg
	OpPush
	OpPop
	OpCmp
	OpTest
	OpCall
	OpJmp
	OpJcc
	OpSetcc
	OpRet
	OpMovsx
	OpMovzx
	OpLea
	OpCwd
	OpCdq
	OpCqo

	opEnd
)

// NumOpcodes is the number of x86-64 opcodes
const NumOpcodes = int(opEnd - mir.ArchStart)

var mnemonics = [NumOpcodes]string{
	OpMov - mir.ArchStart:   "mov",
	OpAdd - mir.ArchStart:   "add",
	OpSub - mir.ArchStart:   "sub",
	OpImul - mir.ArchStart:  "imul",
	OpDiv - mir.ArchStart:   "div",
	OpIdiv - mir.ArchStart:  "idiv",
	OpShl - mir.ArchStart:   "shl",
	OpSar - mir.ArchStart:   "sar",
	OpShr - mir.ArchStart:   "shr",
	OpAnd - mir.ArchStart:   "and",
	OpOr - mir.ArchStart:    "or",
	OpXor - mir.ArchStart:   "xor",
	OpNot - mir.ArchStart:   "not",
	OpNeg - mir.ArchStart:   "neg",
	OpPush - mir.ArchStart:  "push",
	OpPop - mir.ArchStart:   "pop",
	OpCmp - mir.ArchStart:   "cmp",
	OpTest - mir.ArchStart:  "test",
	OpCall - mir.ArchStart:  "call",
	OpJmp - mir.ArchStart:   "jmp",
	OpJcc - mir.ArchStart:   "j",
	OpSetcc - mir.ArchStart: "set",
	OpRet - mir.ArchStart:   "ret",
	OpLea - mir.ArchStart:   "lea",
}

// Sign and zero extension conversions are spelled differently per dialect.
// AT&T extension moves take width suffixes appended by the printer.
var dialectMnemonics = map[mir.Opcode][2]string{
	OpCwd:   {"cwtd", "cwd"},
	OpCdq:   {"cltd", "cdq"},
	OpCqo:   {"cqto", "cqo"},
	OpMovsx: {"movs", "movsx"},
	OpMovzx: {"movz", "movzx"},
}

// IsArch reports whether op is an x86-64 opcode
func IsArch(op mir.Opcode) bool {
	return op >= mir.ArchStart && op < opEnd
}

// Mnemonic returns the dialect spelling of op. Common opcodes use their
// shared name in every dialect.
func Mnemonic(op mir.Opcode, d Dialect) (string, bool) {
	if op.IsCommon() {
		return mir.CommonMnemonic(op), true
	}
	if !IsArch(op) || !d.Valid() {
		return "", false
	}
	if pair, ok := dialectMnemonics[op]; ok {
		return pair[d], true
	}
	s := mnemonics[op-mir.ArchStart]
	return s, s != ""
}

// DialectDependent reports whether op is spelled differently per dialect
func DialectDependent(op mir.Opcode) bool {
	_, ok := dialectMnemonics[op]
	return ok
}

// OpcodeMnemonic names op for MIR traces
func OpcodeMnemonic(op mir.Opcode) string {
	s, _ := Mnemonic(op, Intel)
	return s
}

// Cond is a condition code for jcc and setcc
type Cond int

const (
	CondE Cond = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
)

var condSuffixes = [...]string{"e", "ne", "l", "le", "g", "ge"}

func (c Cond) String() string {
	if c >= 0 && int(c) < len(condSuffixes) {
		return condSuffixes[c]
	}
	return "?"
}

// Payload is the x86-64 architecture payload of a MIR instruction
type Payload struct {
	Cond Cond

	// Width is the access width in bits of an immediate-to-memory move.
	// Zero means the full register width.
	Width int
}

// CloneArch implements mir.ArchPayload
func (p *Payload) CloneArch() mir.ArchPayload {
	c := *p
	return &c
}
