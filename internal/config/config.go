// Package config provides configuration loading for bininfo.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"bininfo/internal/disasm"
	"bininfo/internal/hexdump"
)

// EnvConfig overrides the default config file location.
const EnvConfig = "BININFO_CONFIG"

// EnvNoColor disables colored output regardless of the file setting.
const EnvNoColor = "BININFO_NO_COLOR"

// Config represents configuration for the bininfo tool.
type Config struct {
	Debug       bool   `yaml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	NoColor     bool   `yaml:"no_color" json:"no_color" jsonschema:"title=No Color,description=Disable colored output"`
	Syntax      string `yaml:"syntax" json:"syntax" jsonschema:"title=Syntax,description=Disassembly operand syntax,enum=intel,enum=gnu,default=intel"`
	LegacyASCII bool   `yaml:"legacy_ascii" json:"legacy_ascii" jsonschema:"title=Legacy ASCII,description=Treat bytes 32..127 as printable in hex dumps instead of 32..126"`
	Symbolize   bool   `yaml:"symbolize" json:"symbolize" jsonschema:"title=Symbolize,description=Name branch and call targets using the symbol tables"`
	BytesPerRow int    `yaml:"bytes_per_row" json:"bytes_per_row" jsonschema:"title=Bytes Per Row,description=Hex dump row width (only 16 is supported),enum=16,default=16"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-" json:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Syntax:      disasm.Intel.String(),
		BytesPerRow: hexdump.BytesPerRow,
	}
}

// DefaultPath returns <user config dir>/bininfo/config.yaml, or "" when the
// user config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bininfo", "config.yaml")
}

// Load reads the configuration. An explicit path must exist. Without one,
// BININFO_CONFIG and then DefaultPath are tried; a missing default file
// yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfig); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			cfg.Path = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if os.Getenv(EnvNoColor) != "" {
		cfg.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks values that cannot be expressed in the YAML types.
func (c *Config) Validate() error {
	if _, err := disasm.ParseSyntax(c.Syntax); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.BytesPerRow != 0 && c.BytesPerRow != hexdump.BytesPerRow {
		return fmt.Errorf("invalid config: bytes_per_row must be %d, got %d", hexdump.BytesPerRow, c.BytesPerRow)
	}
	return nil
}

// DisasmSyntax returns the parsed syntax setting.
func (c *Config) DisasmSyntax() disasm.Syntax {
	s, _ := disasm.ParseSyntax(c.Syntax)
	return s
}

// HexdumpOptions returns the hex dump rendering options.
func (c *Config) HexdumpOptions() hexdump.Options {
	return hexdump.Options{Legacy: c.LegacyASCII}
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Schema returns the JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
