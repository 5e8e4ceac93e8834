package config

import "github.com/spf13/pflag"

// Flags holds command-line overrides. Zero values leave the config untouched.
type Flags struct {
	Config      string
	Debug       bool
	LogFile     string
	PaletteSize int
	DumpFormat  string
	Compress    string
	Strict      bool
}

// Register adds the flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Config, "config", "c", "", "path to config file")
	fs.BoolVarP(&f.Debug, "debug", "d", false, "enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "also write logs to this file")
	fs.IntVar(&f.PaletteSize, "palette-size", 0, "bones per mesh subset when encoding models")
	fs.StringVar(&f.DumpFormat, "dump-format", "", "catalog dump format (cbor, yaml)")
	fs.StringVar(&f.Compress, "compress", "", "catalog dump compression (none, lz4, zstd)")
	fs.BoolVar(&f.Strict, "strict", false, "compare padding bytes during verify")
}

// apply applies flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.PaletteSize > 0 {
		cfg.Codec.PaletteSize = f.PaletteSize
	}
	if f.DumpFormat != "" {
		cfg.Dump.Format = f.DumpFormat
	}
	if f.Compress != "" {
		cfg.Dump.Compression = f.Compress
	}
	if f.Strict {
		cfg.Verify.Strict = true
	}
}
