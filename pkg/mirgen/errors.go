package mirgen

import "errors"

var (
	errForeignLocal   = errors.New("stack allocation belongs to another function")
	errForeignBlock   = errors.New("block belongs to another function")
	errNoRegister     = errors.New("value has no register assignment")
	errUnknownOperand = errors.New("unknown operand kind")
)
