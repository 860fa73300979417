package mir

import "fmt"

// InternalError is an internal compiler error: a lowering or selection
// table is incomplete. Callers must abort the compilation.
type InternalError struct {
	Msg   string
	Inst  *Instruction // may be nil
	Trace string       // mnemonic-aware rendering of Inst
}

func (e *InternalError) Error() string {
	if e.Trace == "" {
		return "internal compiler error: " + e.Msg
	}
	return fmt.Sprintf("internal compiler error: %s\n\nUNHANDLED INSTRUCTION:\n%s", e.Msg, e.Trace)
}

// Unhandled builds an InternalError carrying a trace of inst
func Unhandled(inst *Instruction, mnemonic MnemonicFunc, regName func(Register) string, format string, args ...any) *InternalError {
	e := &InternalError{Msg: fmt.Sprintf(format, args...), Inst: inst}
	if inst != nil {
		e.Trace = FormatInstruction(inst, mnemonic, regName)
	}
	return e
}

// Errorf builds an InternalError with no instruction attached
func Errorf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
