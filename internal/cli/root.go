// Package cli implements the mcpscan command-line interface using cobra.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// Build metadata, set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// ExitError carries a process exit code through the cobra error path.
// Findings at or above --fail-on exit 1; operational failures exit 2.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string { return e.Msg }

// Execute runs the root command.
func Execute() error {
	finding.Version = Version
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcpscan",
		Short: "Security scanner for MCP servers and AI tool code",
		Long: `mcpscan finds vulnerabilities in MCP server code and tool definitions:
hardcoded secrets, command and SQL injection, tool description poisoning,
prompt injection payloads, and tainted data flows.

Quick start:
  mcpscan scan ./my-mcp-server
  mcpscan scan --output sarif --file results.sarif ./src
  mcpscan proxy --upstream http://localhost:3000
  mcpscan rules`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		scanCmd(),
		rulesCmd(),
		proxyCmd(),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("mcpscan version %s\n", Version)
			cmd.Printf("  build date: %s\n", BuildDate)
			cmd.Printf("  git commit: %s\n", GitCommit)
			cmd.Printf("  go version: %s\n", GoVersion)
		},
	}
}

// severityFlag parses a --severity / --fail-on value.
func severityFlag(value, flagName string) (finding.Severity, error) {
	sev, err := finding.ParseSeverity(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: must be low, medium, high, or critical", flagName, value)
	}
	return sev, nil
}
