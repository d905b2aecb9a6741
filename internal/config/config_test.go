package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpscan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Scan.MaxFileSizeMB != 10 {
		t.Errorf("MaxFileSizeMB = %d, want 10", cfg.Scan.MaxFileSizeMB)
	}
	if cfg.Output.Format != FormatTerminal {
		t.Errorf("Output.Format = %q, want terminal", cfg.Output.Format)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging = %+v, want json/stderr", cfg.Logging)
	}
	if !cfg.Scan.GitignoreEnabled() {
		t.Error("gitignore should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
version: 1
scan:
  max_file_size_mb: 5
  workers: 4
  exclude_patterns: ["test_fixtures"]
detectors:
  semantic: false
output:
  format: json
suppressions: rules.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Scan.MaxFileSizeMB != 5 || cfg.Scan.Workers != 4 {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.Detectors.Enabled("semantic") {
		t.Error("semantic should be disabled")
	}
	if !cfg.Detectors.Enabled("secrets") {
		t.Error("unset detector should default to enabled")
	}
	if !filepath.IsAbs(cfg.Suppressions) || !strings.HasSuffix(cfg.Suppressions, "rules.yaml") {
		t.Errorf("Suppressions = %q, want resolved absolute path", cfg.Suppressions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "scan: [")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }},
		{"bad logging format", func(c *Config) { c.Logging.Format = "logfmt" }},
		{"bad logging output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"file output without path", func(c *Config) { c.Logging.Output = OutputFile; c.Logging.File = "" }},
		{"negative workers", func(c *Config) { c.Scan.Workers = -1 }},
		{"bad proxy listen", func(c *Config) { c.Proxy.Listen = "no-port" }},
		{"bad block_on", func(c *Config) { c.Proxy.BlockOn = "severe" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDetectorEnabledUnknownName(t *testing.T) {
	if (DetectorsConfig{}).Enabled("nonexistent") {
		t.Error("unknown detector name should not be enabled")
	}
}
