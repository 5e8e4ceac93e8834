package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Codec.PaletteSize != 12 {
		t.Errorf("expected palette size 12, got %d", cfg.Codec.PaletteSize)
	}
	if cfg.Dump.Format != "cbor" {
		t.Errorf("expected dump format cbor, got %s", cfg.Dump.Format)
	}
	if cfg.Dump.Compression != "zstd" {
		t.Errorf("expected zstd compression, got %s", cfg.Dump.Compression)
	}
	if cfg.Verify.Strict {
		t.Error("expected strict verify to be off by default")
	}
	if !cfg.Verify.Assemble {
		t.Error("expected assemble to be on by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "chunktool.yaml")
	yamlContent := `
codec:
  palette_size: 30

dump:
  format: yaml
  compression: lz4

verify:
  strict: true
  max_diffs: 2

logging:
  level: "debug"
  log_file: "chunktool.log"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Codec.PaletteSize != 30 {
		t.Errorf("expected palette size 30, got %d", cfg.Codec.PaletteSize)
	}
	if cfg.Dump.Format != "yaml" || cfg.Dump.Compression != "lz4" {
		t.Errorf("expected yaml/lz4 dump, got %s/%s", cfg.Dump.Format, cfg.Dump.Compression)
	}
	if !cfg.Verify.Strict || cfg.Verify.MaxDiffs != 2 {
		t.Errorf("verify = %+v", cfg.Verify)
	}
	if !cfg.Verify.Assemble {
		t.Error("assemble default lost while merging the file")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "chunktool.log" {
		t.Errorf("expected log file 'chunktool.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":      "codec:\n  palette_size: not a number\n  invalid syntax here\n",
		"unknown key": "codec:\n  palette: 12\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "invalid.yaml")
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if err := loadFromFile(Default(), configPath); err == nil {
				t.Error("expected error loading invalid YAML, got nil")
			}
		})
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("empty file changed the config: %+v", cfg)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if err := loadFromFile(Default(), "/nonexistent/path/chunktool.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", tmpDir)
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "chunktool.yaml")
	if err := os.WriteFile(configPath, []byte("codec:\n  palette_size: 8\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path == "" {
		t.Error("expected to find chunktool.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "no flags",
			verify: func(t *testing.T, cfg *Config) {
				if *cfg != *Default() {
					t.Errorf("config changed without flags: %+v", cfg)
				}
			},
		},
		{
			name: "debug flag",
			args: []string{"-d"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "palette size",
			args: []string{"--palette-size=40"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Codec.PaletteSize != 40 {
					t.Errorf("expected palette size 40, got %d", cfg.Codec.PaletteSize)
				}
			},
		},
		{
			name: "dump flags",
			args: []string{"--dump-format", "yaml", "--compress", "none"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Dump.Format != "yaml" || cfg.Dump.Compression != "none" {
					t.Errorf("dump = %+v", cfg.Dump)
				}
			},
		},
		{
			name: "strict and log file",
			args: []string{"--strict", "--log-file", "/tmp/x.log"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Verify.Strict || cfg.Logging.LogFile != "/tmp/x.log" {
					t.Errorf("config = %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flags Flags
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags.Register(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}
			cfg := Default()
			flags.apply(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "chunktool.yaml")
	yamlContent := `
codec:
  palette_size: 16
dump:
  format: yaml
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(&Flags{Config: configPath, PaletteSize: 24})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	// Palette size comes from the flag, not the file.
	if cfg.Codec.PaletteSize != 24 {
		t.Errorf("expected palette size 24 from flag, got %d", cfg.Codec.PaletteSize)
	}
	if cfg.Dump.Format != "yaml" {
		t.Errorf("expected dump format yaml from file, got %s", cfg.Dump.Format)
	}
	if cfg.Dump.Compression != "zstd" {
		t.Errorf("expected default compression, got %s", cfg.Dump.Compression)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "chunktool.yaml")
	if err := os.WriteFile(configPath, []byte("dump:\n  compression: gzip\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(&Flags{Config: configPath}); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
	if _, err := Load(&Flags{Config: "/nonexistent/chunktool.yaml"}); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero palette", func(c *Config) { c.Codec.PaletteSize = 0 }, false},
		{"huge palette", func(c *Config) { c.Codec.PaletteSize = 1 << 20 }, false},
		{"json dump", func(c *Config) { c.Dump.Format = "json" }, false},
		{"gzip dump", func(c *Config) { c.Dump.Compression = "gzip" }, false},
		{"negative diffs", func(c *Config) { c.Verify.MaxDiffs = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Codec.PaletteSize = 20
	cfg.Dump.Format = "yaml"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("reloaded %+v, saved %+v", loaded, cfg)
	}
}
