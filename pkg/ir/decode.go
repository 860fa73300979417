package ir

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// RegisterResolver maps a register name from the textual form to the
// target's register id. It reports false for unknown names.
type RegisterResolver func(name string) (uint32, bool)

// Textual module form. Example:
//
//	name: hello.int
//	globals:
//	  - {name: msg, type: "[2 x i8]", bytes: [0x48, 0x69]}
//	functions:
//	  - name: main
//	    linkage: exported
//	    blocks:
//	      - name: entry
//	        instructions:
//	          - {id: x, op: alloca, alloc: i64}
//	          - {op: store, args: [{imm: 5}, {ref: x}]}
//	          - {id: v, op: load, type: i64, reg: rax, args: [{ref: x}]}
//	          - {op: return, args: [{ref: v}]}
type moduleDoc struct {
	Name      string        `yaml:"name"`
	Globals   []globalDoc   `yaml:"globals"`
	Functions []functionDoc `yaml:"functions"`
}

type globalDoc struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Bytes  []int   `yaml:"bytes"`
	String *string `yaml:"string"`
	Int    *int64  `yaml:"int"`
}

type functionDoc struct {
	Name    string     `yaml:"name"`
	Linkage string     `yaml:"linkage"`
	Blocks  []blockDoc `yaml:"blocks"`
}

type blockDoc struct {
	Name         string    `yaml:"name"`
	Instructions []instDoc `yaml:"instructions"`
}

type instDoc struct {
	ID    string   `yaml:"id"`
	Op    string   `yaml:"op"`
	Type  string   `yaml:"type"`
	Alloc string   `yaml:"alloc"`
	Reg   string   `yaml:"reg"`
	Args  []argDoc `yaml:"args"`
}

type argDoc struct {
	Ref      *string `yaml:"ref"`
	Imm      *int64  `yaml:"imm"`
	Global   *string `yaml:"global"`
	Function *string `yaml:"function"`
	Block    *string `yaml:"block"`
	Name     *string `yaml:"name"`
}

// ErrMalformed wraps every decoding failure caused by the input text
var ErrMalformed = errors.New("malformed IR module")

// ReadFile reads and decodes a textual IR module
func ReadFile(filename string, resolve RegisterResolver) (*Module, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data, resolve)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if m.Name == "" {
		m.Name = filename
	}
	return m, nil
}

// Decode parses a textual IR module
func Decode(data []byte, resolve RegisterResolver) (*Module, error) {
	var doc moduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d := &decoder{resolve: resolve, mod: &Module{Name: doc.Name}}
	if err := d.decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d.mod, nil
}

type decoder struct {
	resolve RegisterResolver
	mod     *Module
}

func (d *decoder) decode(doc *moduleDoc) error {
	for _, g := range doc.Globals {
		if err := d.decodeGlobal(g); err != nil {
			return err
		}
	}

	// Create every function and block first so that calls and branches
	// may refer forward.
	blocks := make([]map[string]*Block, len(doc.Functions))
	for i, fd := range doc.Functions {
		if fd.Name == "" {
			return fmt.Errorf("function %d has no name", i)
		}
		if d.mod.Function(fd.Name) != nil {
			return fmt.Errorf("duplicate function %q", fd.Name)
		}
		linkage, err := parseLinkage(fd.Linkage)
		if err != nil {
			return fmt.Errorf("function %q: %v", fd.Name, err)
		}
		fn := d.mod.NewFunction(fd.Name, linkage)
		blocks[i] = make(map[string]*Block)
		for _, bd := range fd.Blocks {
			b := fn.NewBlock(bd.Name)
			if bd.Name != "" {
				if _, dup := blocks[i][bd.Name]; dup {
					return fmt.Errorf("function %q: duplicate block %q", fd.Name, bd.Name)
				}
				blocks[i][bd.Name] = b
			}
		}
	}

	for i, fd := range doc.Functions {
		if err := d.decodeBody(d.mod.Functions[i], fd, blocks[i]); err != nil {
			return fmt.Errorf("function %q: %v", fd.Name, err)
		}
	}
	return nil
}

func (d *decoder) decodeGlobal(g globalDoc) error {
	if g.Name == "" {
		return errors.New("global without a name")
	}
	if d.mod.Global(g.Name) != nil {
		return fmt.Errorf("duplicate global %q", g.Name)
	}
	typ, err := ParseType(g.Type)
	if err != nil {
		return fmt.Errorf("global %q: %v", g.Name, err)
	}

	var init Value
	switch {
	case g.String != nil:
		init = ArrayConstant{Bytes: []byte(*g.String)}
	case g.Bytes != nil:
		bs := make([]byte, len(g.Bytes))
		for i, b := range g.Bytes {
			if b < -128 || b > 255 {
				return fmt.Errorf("global %q: byte %d out of range: %d", g.Name, i, b)
			}
			bs[i] = byte(b)
		}
		init = ArrayConstant{Bytes: bs}
	case g.Int != nil:
		init = IntegerConstant{Value: *g.Int, Type: typ}
	}
	if ac, ok := init.(ArrayConstant); ok && typ.Kind == TVoid {
		typ = ArrayOf(I8, int64(len(ac.Bytes)))
	}
	d.mod.NewGlobal(g.Name, typ, init)
	return nil
}

func (d *decoder) decodeBody(fn *Function, fd functionDoc, blocks map[string]*Block) error {
	if fn.Linkage == LinkImported && len(fd.Blocks) > 0 {
		return errors.New("imported function must not have a body")
	}

	values := make(map[string]*Instruction)
	type pending struct {
		inst *Instruction
		doc  instDoc
	}
	var work []pending

	for bi, bd := range fd.Blocks {
		b := fn.Blocks[bi]
		for ii, id := range bd.Instructions {
			kind, ok := ParseInstKind(id.Op)
			if !ok {
				return fmt.Errorf("block %d instruction %d: unknown op %q", bi, ii, id.Op)
			}
			inst := &Instruction{Kind: kind, Name: id.ID}
			var err error
			if inst.Type, err = ParseType(id.Type); err != nil {
				return fmt.Errorf("instruction %q: %v", id.ID, err)
			}
			if kind == Alloca {
				if inst.AllocatedType, err = ParseType(id.Alloc); err != nil {
					return fmt.Errorf("instruction %q: %v", id.ID, err)
				}
				if inst.AllocatedType.Bytes() == 0 {
					return fmt.Errorf("instruction %q: alloca of zero-sized type", id.ID)
				}
				inst.Type = Ptr
			}
			if id.Reg != "" {
				if inst.Register, err = d.register(id.Reg); err != nil {
					return fmt.Errorf("instruction %q: %v", id.ID, err)
				}
			}
			if id.ID != "" {
				if _, dup := values[id.ID]; dup {
					return fmt.Errorf("duplicate value id %q", id.ID)
				}
				values[id.ID] = inst
			}
			b.Append(inst)
			work = append(work, pending{inst, id})
		}
	}

	for _, w := range work {
		for ai, a := range w.doc.Args {
			op, err := d.operand(a, values, blocks)
			if err != nil {
				return fmt.Errorf("%s %q argument %d: %v", w.inst.Kind, w.doc.ID, ai, err)
			}
			w.inst.Operands = append(w.inst.Operands, op)
		}
	}
	return nil
}

func (d *decoder) operand(a argDoc, values map[string]*Instruction, blocks map[string]*Block) (Operand, error) {
	set := 0
	for _, p := range []*string{a.Ref, a.Global, a.Function, a.Block, a.Name} {
		if p != nil {
			set++
		}
	}
	if a.Imm != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("expected exactly one operand field, got %d", set)
	}

	switch {
	case a.Imm != nil:
		return Immediate(*a.Imm), nil
	case a.Ref != nil:
		v, ok := values[*a.Ref]
		if !ok {
			return nil, fmt.Errorf("undefined value %q", *a.Ref)
		}
		return v, nil
	case a.Global != nil:
		g := d.mod.Global(*a.Global)
		if g == nil {
			return nil, fmt.Errorf("undefined global %q", *a.Global)
		}
		return g, nil
	case a.Function != nil:
		f := d.mod.Function(*a.Function)
		if f == nil {
			return nil, fmt.Errorf("undefined function %q", *a.Function)
		}
		return f, nil
	case a.Block != nil:
		b, ok := blocks[*a.Block]
		if !ok {
			return nil, fmt.Errorf("undefined block %q", *a.Block)
		}
		return b, nil
	}
	return ExternalName(*a.Name), nil
}

func (d *decoder) register(name string) (uint32, error) {
	if d.resolve != nil {
		if id, ok := d.resolve(name); ok {
			return id, nil
		}
	}
	id, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return uint32(id), nil
}

func parseLinkage(s string) (Linkage, error) {
	switch s {
	case "", "local":
		return LinkLocal, nil
	case "imported", "extern":
		return LinkImported, nil
	case "exported", "global":
		return LinkExported, nil
	}
	return 0, fmt.Errorf("unknown linkage %q", s)
}
