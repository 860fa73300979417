// Package config loads compiler settings from CUE or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/LensPlaysGames/Intercept/pkg/asm"
)

// Config holds the settings the command line can also provide
type Config struct {
	Dialect        string `json:"dialect" yaml:"dialect"`
	ReturnRegister string `json:"return_register" yaml:"return_register"`
	Output         string `json:"output" yaml:"output"`
}

// schema constrains CUE configuration files. The definition is closed, so
// unknown fields are rejected.
const schema = `
#Config: {
	dialect?:         "att" | "gnu" | "at&t" | "intel"
	return_register?: =~"^%?[a-z0-9]+$"
	output?:          string
}
`

// Default returns the built-in settings
func Default() Config {
	return Config{
		Dialect:        "att",
		ReturnRegister: "rax",
	}
}

// Load reads a configuration file. Values it leaves out keep their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		err = decodeCUE(path, data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return err
	}
	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return unified.Decode(cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that every setting names something the back end knows
func (c Config) Validate() error {
	if _, err := c.AsmDialect(); err != nil {
		return err
	}
	if _, err := c.MachineDescription(); err != nil {
		return err
	}
	return nil
}

// AsmDialect resolves the dialect name
func (c Config) AsmDialect() (asm.Dialect, error) {
	return asm.ParseDialect(c.Dialect)
}

// MachineDescription resolves the target description
func (c Config) MachineDescription() (asm.MachineDescription, error) {
	id, ok := asm.ParseRegister(c.ReturnRegister)
	if !ok || id == asm.RIP || id == asm.RSP || id == asm.RBP {
		return asm.MachineDescription{}, fmt.Errorf("invalid return register %q", c.ReturnRegister)
	}
	return asm.MachineDescription{ReturnRegister: id}, nil
}
