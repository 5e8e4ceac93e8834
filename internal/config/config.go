// Package config handles chunktool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalid reports a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid config")

// Config holds all tool settings.
type Config struct {
	Codec   CodecConfig   `yaml:"codec"`
	Dump    DumpConfig    `yaml:"dump"`
	Verify  VerifyConfig  `yaml:"verify"`
	Logging LoggingConfig `yaml:"logging"`
}

// CodecConfig holds model encoding settings.
type CodecConfig struct {
	PaletteSize int `yaml:"palette_size"` // bones per mesh subset
}

// DumpConfig holds catalog dump settings.
type DumpConfig struct {
	Format      string `yaml:"format"`      // cbor or yaml
	Compression string `yaml:"compression"` // none, lz4 or zstd
}

// VerifyConfig holds round-trip verification settings.
type VerifyConfig struct {
	Strict   bool `yaml:"strict"`    // compare padding bytes too
	Assemble bool `yaml:"assemble"`  // also decode models and animations
	MaxDiffs int  `yaml:"max_diffs"` // differing ranges listed per file
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Dump formats and compressions accepted by Validate.
var (
	DumpFormats      = []string{"cbor", "yaml"}
	DumpCompressions = []string{"none", "lz4", "zstd"}
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Codec: CodecConfig{
			PaletteSize: 12,
		},
		Dump: DumpConfig{
			Format:      "cbor",
			Compression: "zstd",
		},
		Verify: VerifyConfig{
			Assemble: true,
			MaxDiffs: 8,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Codec.PaletteSize < 1 || c.Codec.PaletteSize > 0xFFFF {
		return fmt.Errorf("%w: codec.palette_size %d", ErrInvalid, c.Codec.PaletteSize)
	}
	if !slices.Contains(DumpFormats, c.Dump.Format) {
		return fmt.Errorf("%w: dump.format %q, want one of %v", ErrInvalid, c.Dump.Format, DumpFormats)
	}
	if !slices.Contains(DumpCompressions, c.Dump.Compression) {
		return fmt.Errorf("%w: dump.compression %q, want one of %v", ErrInvalid, c.Dump.Compression, DumpCompressions)
	}
	if c.Verify.MaxDiffs < 0 {
		return fmt.Errorf("%w: verify.max_diffs %d", ErrInvalid, c.Verify.MaxDiffs)
	}
	return nil
}
