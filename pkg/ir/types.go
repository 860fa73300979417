package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind classifies IR types
type TypeKind int

const (
	TVoid TypeKind = iota
	TInt
	TPtr
	TArray
)

// Type is an IR value type. The zero value is void.
type Type struct {
	Kind  TypeKind
	Width int   // integer width, TInt only
	Len   int64 // element count, TArray only
	Elem  *Type // element type, TArray only
}

// Common types
var (
	Void = Type{Kind: TVoid}
	I1   = Int(1)
	I8   = Int(8)
	I16  = Int(16)
	I32  = Int(32)
	I64  = Int(64)
	Ptr  = Type{Kind: TPtr}
)

// Int returns an integer type of the given width
func Int(bits int) Type {
	return Type{Kind: TInt, Width: bits}
}

// ArrayOf returns an array type
func ArrayOf(elem Type, n int64) Type {
	return Type{Kind: TArray, Len: n, Elem: &elem}
}

// Bits returns the size of the type in bits
func (t Type) Bits() int64 {
	switch t.Kind {
	case TInt:
		return int64(t.Width)
	case TPtr:
		return 64
	case TArray:
		return t.Len * t.Elem.Bytes() * 8
	}
	return 0
}

// Bytes returns the storage size of the type in bytes
func (t Type) Bytes() int64 {
	return (t.Bits() + 7) / 8
}

func (t Type) String() string {
	switch t.Kind {
	case TInt:
		return fmt.Sprintf("i%d", t.Width)
	case TPtr:
		return "ptr"
	case TArray:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	}
	return "void"
}

// ParseType parses the textual type syntax: void, ptr, iN, [N x T]
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "void":
		return Void, nil
	case s == "ptr":
		return Ptr, nil
	case strings.HasPrefix(s, "i"):
		bits, err := strconv.Atoi(s[1:])
		if err != nil || bits <= 0 {
			return Void, fmt.Errorf("invalid integer type %q", s)
		}
		return Int(bits), nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := s[1 : len(s)-1]
		n, elem, ok := strings.Cut(inner, " x ")
		if !ok {
			return Void, fmt.Errorf("invalid array type %q", s)
		}
		count, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil || count < 0 {
			return Void, fmt.Errorf("invalid array length in %q", s)
		}
		et, err := ParseType(elem)
		if err != nil {
			return Void, err
		}
		return ArrayOf(et, count), nil
	}
	return Void, fmt.Errorf("unknown type %q", s)
}
