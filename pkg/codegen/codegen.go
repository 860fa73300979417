// Package codegen drives the back end: IR -> MIR -> selection -> assembly text.
package codegen

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/asmgen"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/isel"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
	"github.com/LensPlaysGames/Intercept/pkg/mirgen"
)

// Options configures a compilation
type Options struct {
	Dialect asm.Dialect
	Machine asm.MachineDescription
	Logger  *slog.Logger // nil means slog.Default()

	// AfterLower and AfterSelect, when set, observe the MIR between
	// phases. They must not modify it.
	AfterLower  func(*mir.Module)
	AfterSelect func(*mir.Module)
}

// Compile translates an IR module to assembly text. The text is fully
// assembled in memory, so a failing compilation produces no output.
func Compile(m *ir.Module, opts Options) ([]byte, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Dialect.Valid() {
		return nil, mir.Errorf("unknown assembly dialect %d", int(opts.Dialect))
	}
	if opts.Machine.ReturnRegister == asm.NoRegister {
		opts.Machine = asm.DefaultMachine()
	}

	mm, err := mirgen.TranslateModule(m)
	if err != nil {
		return nil, fmt.Errorf("lowering: %w", err)
	}
	logger.Debug("lowered module", "module", m.Name, "functions", len(mm.Functions))
	if opts.AfterLower != nil {
		opts.AfterLower(mm)
	}

	if err := isel.SelectModule(mm, isel.Options{Machine: opts.Machine, Logger: logger}); err != nil {
		return nil, fmt.Errorf("instruction selection: %w", err)
	}
	logger.Debug("selected instructions", "module", m.Name)
	if opts.AfterSelect != nil {
		opts.AfterSelect(mm)
	}

	prog, err := asmgen.TransformModule(mm, asmgen.Options{Machine: opts.Machine, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("emission: %w", err)
	}

	var buf bytes.Buffer
	if err := asm.NewPrinter(&buf, opts.Dialect).PrintProgram(prog); err != nil {
		return nil, err
	}
	logger.Debug("emitted assembly", "module", m.Name, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// WriteOutput writes the assembly to path; "-" means stdout. A short
// write is an error.
func WriteOutput(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		n, err := stdout.Write(data)
		if err != nil {
			return err
		}
		if n != len(data) {
			return io.ErrShortWrite
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// OutputFilename returns the default output path for an input file:
// input.yaml -> input.s
func OutputFilename(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".s"
}

// PrintMIR dumps a MIR module with x86-64 mnemonics and register names
func PrintMIR(w io.Writer, m *mir.Module) {
	p := mir.NewPrinter(w, asm.OpcodeMnemonic)
	p.RegisterName = asm.TraceRegisterName
	p.PrintModule(m)
}
