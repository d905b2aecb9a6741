// Package config handles loading, validating, and defaulting mcpscan
// configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Output format constants.
const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
	FormatSARIF    = "sarif"
)

// Logging defaults.
const (
	DefaultLogFormat = "json"
	DefaultLogOutput = "stderr"
	OutputFile       = "file"
	OutputBoth       = "both"
)

// Detector name constants, in execution order.
var DetectorNames = []string{
	"secrets",
	"tool_poisoning",
	"prompt_injection",
	"code_vulns",
	"semantic",
}

// ScanConfig bounds file discovery and the worker pool.
type ScanConfig struct {
	MaxFileSizeMB    int      `yaml:"max_file_size_mb"`
	RespectGitignore *bool    `yaml:"respect_gitignore"` // nil = true
	FollowSymlinks   bool     `yaml:"follow_symlinks"`
	MaxDepth         int      `yaml:"max_depth"` // 0 = unlimited
	ExcludePatterns  []string `yaml:"exclude_patterns"`
	Workers          int      `yaml:"workers"` // 0 = NumCPU
}

// DetectorsConfig toggles individual engines. Nil means enabled.
type DetectorsConfig struct {
	Secrets         *bool `yaml:"secrets"`
	ToolPoisoning   *bool `yaml:"tool_poisoning"`
	PromptInjection *bool `yaml:"prompt_injection"`
	CodeVulns       *bool `yaml:"code_vulns"`
	Semantic        *bool `yaml:"semantic"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	Format string `yaml:"format"` // terminal, json, sarif
	File   string `yaml:"file"`   // empty = stdout
	Color  *bool  `yaml:"color"`  // nil = auto (tty)
}

// ProxyConfig configures the MCP intercept proxy.
type ProxyConfig struct {
	Listen      string `yaml:"listen"`
	Upstream    string `yaml:"upstream"`
	AdminListen string `yaml:"admin_listen"` // metrics + health; empty disables
	BlockOn     string `yaml:"block_on"`     // minimum severity that blocks; empty = log only
}

// LoggingConfig controls audit log output.
type LoggingConfig struct {
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stderr, file, both
	File   string `yaml:"file"`
}

// Config is the top-level mcpscan configuration.
type Config struct {
	Version      int             `yaml:"version"`
	Scan         ScanConfig      `yaml:"scan"`
	Detectors    DetectorsConfig `yaml:"detectors"`
	Output       OutputConfig    `yaml:"output"`
	Suppressions string          `yaml:"suppressions"` // path to rules file
	Proxy        ProxyConfig     `yaml:"proxy"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// Defaults returns a configuration with every field at its default.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from caller
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	// Resolve a relative suppressions path against the config file directory.
	if cfg.Suppressions != "" && !filepath.IsAbs(cfg.Suppressions) {
		cfg.Suppressions = filepath.Join(filepath.Dir(path), cfg.Suppressions)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Scan.MaxFileSizeMB == 0 {
		c.Scan.MaxFileSizeMB = 10
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatTerminal
	}
	if c.Proxy.Listen == "" {
		c.Proxy.Listen = "127.0.0.1:9180"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
}

// Validate checks semantic constraints. Call after ApplyDefaults.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatTerminal, FormatJSON, FormatSARIF:
		// valid
	default:
		return fmt.Errorf("invalid output format %q: must be terminal, json, or sarif", c.Output.Format)
	}

	switch c.Logging.Format {
	case DefaultLogFormat, "text":
		// valid
	default:
		return fmt.Errorf("invalid logging format %q: must be json or text", c.Logging.Format)
	}

	switch c.Logging.Output {
	case DefaultLogOutput, OutputFile, OutputBoth:
		// valid
	default:
		return fmt.Errorf("invalid logging output %q: must be stderr, file, or both", c.Logging.Output)
	}
	if (c.Logging.Output == OutputFile || c.Logging.Output == OutputBoth) && c.Logging.File == "" {
		return fmt.Errorf("logging.file is required when output is %q", c.Logging.Output)
	}

	if c.Scan.MaxFileSizeMB < 0 {
		return fmt.Errorf("scan.max_file_size_mb must be positive, got %d", c.Scan.MaxFileSizeMB)
	}
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers)
	}
	if c.Scan.MaxDepth < 0 {
		return fmt.Errorf("scan.max_depth must not be negative, got %d", c.Scan.MaxDepth)
	}

	if _, _, err := net.SplitHostPort(c.Proxy.Listen); err != nil {
		return fmt.Errorf("invalid proxy.listen %q: %w", c.Proxy.Listen, err)
	}
	if c.Proxy.AdminListen != "" {
		if _, _, err := net.SplitHostPort(c.Proxy.AdminListen); err != nil {
			return fmt.Errorf("invalid proxy.admin_listen %q: %w", c.Proxy.AdminListen, err)
		}
	}
	if c.Proxy.BlockOn != "" {
		switch c.Proxy.BlockOn {
		case "low", "medium", "high", "critical":
			// valid
		default:
			return fmt.Errorf("invalid proxy.block_on %q: must be low, medium, high, or critical", c.Proxy.BlockOn)
		}
	}

	return nil
}

// RespectGitignore resolves the tri-state flag; nil means true.
func (s ScanConfig) GitignoreEnabled() bool {
	return s.RespectGitignore == nil || *s.RespectGitignore
}

// Enabled resolves a detector toggle by name; nil means enabled.
func (d DetectorsConfig) Enabled(name string) bool {
	var flag *bool
	switch name {
	case "secrets":
		flag = d.Secrets
	case "tool_poisoning":
		flag = d.ToolPoisoning
	case "prompt_injection":
		flag = d.PromptInjection
	case "code_vulns":
		flag = d.CodeVulns
	case "semantic":
		flag = d.Semantic
	default:
		return false
	}
	return flag == nil || *flag
}
