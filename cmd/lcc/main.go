package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
	"github.com/LensPlaysGames/Intercept/pkg/codegen"
	"github.com/LensPlaysGames/Intercept/pkg/config"
	"github.com/LensPlaysGames/Intercept/pkg/ir"
	"github.com/LensPlaysGames/Intercept/pkg/mir"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dIR  bool
	dMIR bool
	dSel bool
	dAsm bool
)

// Code generation options
var (
	outputPath     string
	dialectName    string
	returnRegister string
	configPath     string
	verbose        bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the debug flags that also accept a single dash
var debugFlagNames = []string{"dir", "dmir", "dsel", "dasm"}

// normalizeFlags converts single-dash debug flags like -dmir to --dmir
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lcc [file]",
		Short: "lcc compiles register-allocated IR modules to x86-64 assembly",
		Long: `lcc is the x86-64 back end of the Intercept compiler. It reads a
register-allocated IR module in YAML form and writes GNU assembler
text in AT&T or Intel syntax.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if err := compile(cmd, args[0], out, errOut); err != nil {
				fmt.Fprintf(errOut, "lcc: %v\n", err)
				return err
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump the input IR")
	rootCmd.Flags().BoolVar(&dMIR, "dmir", false, "Dump MIR after lowering")
	rootCmd.Flags().BoolVar(&dSel, "dsel", false, "Dump MIR after instruction selection")
	rootCmd.Flags().BoolVar(&dAsm, "dasm", false, "Also print the assembly to stdout")

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default <input>.s, - for stdout)")
	rootCmd.Flags().StringVar(&dialectName, "dialect", "att", "Assembly dialect: att or intel")
	rootCmd.Flags().StringVar(&returnRegister, "return-register", "rax", "Register holding return values")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Configuration file (.cue, .yaml)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each compilation phase")

	return rootCmd
}

// loadConfig merges the configuration file with the command line. Flags
// given explicitly win.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("dialect") {
		cfg.Dialect = dialectName
	}
	if flags.Changed("return-register") {
		cfg.ReturnRegister = returnRegister
	}
	if flags.Changed("output") {
		cfg.Output = outputPath
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func compile(cmd *cobra.Command, filename string, out, errOut io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dialect, err := cfg.AsmDialect()
	if err != nil {
		return err
	}
	machine, err := cfg.MachineDescription()
	if err != nil {
		return err
	}

	m, err := ir.ReadFile(filename, asm.ResolveRegister)
	if err != nil {
		return err
	}
	if dIR {
		dumpIR(out, m)
	}

	opts := codegen.Options{
		Dialect: dialect,
		Machine: machine,
		Logger:  newLogger(errOut),
	}
	if dMIR {
		opts.AfterLower = func(mm *mir.Module) {
			fmt.Fprintln(out, "; MIR after lowering")
			codegen.PrintMIR(out, mm)
		}
	}
	if dSel {
		opts.AfterSelect = func(mm *mir.Module) {
			fmt.Fprintln(out, "; MIR after instruction selection")
			codegen.PrintMIR(out, mm)
		}
	}

	text, err := codegen.Compile(m, opts)
	if err != nil {
		return err
	}

	dest := cfg.Output
	if dest == "" {
		dest = codegen.OutputFilename(filename)
	}
	if err := codegen.WriteOutput(dest, text, out); err != nil {
		return err
	}
	if dAsm && dest != "-" {
		return codegen.WriteOutput("-", text, out)
	}
	return nil
}

// dumpIR prints a summary of the input module
func dumpIR(w io.Writer, m *ir.Module) {
	fmt.Fprintf(w, "module %s\n", m.Name)
	for _, g := range m.Globals {
		value := "zero"
		if g.Init != nil {
			value = g.Init.Kind().String()
		}
		fmt.Fprintf(w, "  global %s: %s = %s\n", g.Name, g.Type, value)
	}
	for _, f := range m.Functions {
		insts := 0
		for _, b := range f.Blocks {
			insts += len(b.Instructions)
		}
		fmt.Fprintf(w, "  function %s (%s): %d blocks, %d instructions\n",
			f.Name, f.Linkage, len(f.Blocks), insts)
		for _, b := range f.Blocks {
			name := b.Name
			if name == "" {
				name = "<anonymous>"
			}
			fmt.Fprintf(w, "    %s:\n", name)
			for _, inst := range b.Instructions {
				fmt.Fprintf(w, "      %s", inst.Kind)
				if inst.Name != "" {
					fmt.Fprintf(w, " %%%s", inst.Name)
				}
				if inst.Type.Kind != ir.TVoid {
					fmt.Fprintf(w, " : %s", inst.Type)
				}
				fmt.Fprintln(w)
			}
		}
	}
}
