package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/mcpscan/internal/audit"
	"github.com/luckyPipewrench/mcpscan/internal/config"
	"github.com/luckyPipewrench/mcpscan/internal/detect"
	"github.com/luckyPipewrench/mcpscan/internal/discover"
	"github.com/luckyPipewrench/mcpscan/internal/finding"
	"github.com/luckyPipewrench/mcpscan/internal/output"
	"github.com/luckyPipewrench/mcpscan/internal/scan"
	"github.com/luckyPipewrench/mcpscan/internal/semantic"
	"github.com/luckyPipewrench/mcpscan/internal/suppress"
)

type scanFlags struct {
	configPath   string
	format       string
	outFile      string
	noColor      bool
	minSeverity  string
	failOn       string
	exclude      []string
	workers      int
	suppressions string
	verbose      bool
}

func scanCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan a file or directory for security issues",
		Long: `Scan runs every enabled detector over the target and reports findings.

Exit codes:
  0  no findings at or above the --fail-on severity
  1  findings at or above the --fail-on severity
  2  the scan itself failed (bad target, bad config)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to mcpscan.yaml")
	cmd.Flags().StringVarP(&flags.format, "output", "o", "", "output format: terminal, json, sarif")
	cmd.Flags().StringVar(&flags.outFile, "file", "", "write output to file instead of stdout")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable color in terminal output")
	cmd.Flags().StringVar(&flags.minSeverity, "severity", "", "only report findings at or above this severity")
	cmd.Flags().StringVar(&flags.failOn, "fail-on", "high", "exit 1 when findings at or above this severity remain")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "skip files whose path contains this substring (repeatable)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker pool size (default: number of CPUs)")
	cmd.Flags().StringVar(&flags.suppressions, "suppressions", "", "path to suppression rules file")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func runScan(cmd *cobra.Command, flags *scanFlags, target string) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	applyScanFlags(cfg, flags, cmd)

	failOn, err := severityFlag(flags.failOn, "fail-on")
	if err != nil {
		return err
	}
	var minSeverity finding.Severity
	filterMin := flags.minSeverity != ""
	if filterMin {
		if minSeverity, err = severityFlag(flags.minSeverity, "severity"); err != nil {
			return err
		}
	}

	log := newLogger(flags.verbose)

	auditLog, err := newAuditLogger(cfg)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = auditLog.Close() }()

	detectors := buildDetectors(cfg.Detectors)
	if len(detectors) == 0 {
		return scan.ErrNoDetectors
	}

	lister := discover.NewLister()
	lister.MaxFileSize = int64(cfg.Scan.MaxFileSizeMB) << 20
	lister.RespectGitignore = cfg.Scan.GitignoreEnabled()
	lister.FollowSymlinks = cfg.Scan.FollowSymlinks
	lister.MaxDepth = cfg.Scan.MaxDepth
	lister.ExcludeGlobs = cfg.Scan.ExcludePatterns

	orch, err := scan.New(detectors,
		scan.WithLister(lister),
		scan.WithWorkers(cfg.Scan.Workers),
		scan.WithExcludePatterns(cfg.Scan.ExcludePatterns),
		scan.WithLogger(log),
	)
	if err != nil {
		return err
	}

	result, err := orch.Scan(target)
	if err != nil {
		return err
	}

	// Suppression runs before the severity filter so accepted findings
	// never count toward the exit code.
	if cfg.Suppressions != "" {
		mgr, err := suppress.Load(cfg.Suppressions)
		if err != nil {
			return err
		}
		mgr.OnSuppress(auditLog.LogSuppressed)
		kept, removed := mgr.Filter(result.Findings)
		if len(removed) > 0 {
			log.Debug().Int("suppressed", len(removed)).Msg("findings suppressed")
		}
		result.Findings = kept
		result.Summary = finding.Summarize(kept)
	}
	if filterMin {
		result.FilterBySeverity(minSeverity)
	}

	auditLog.LogScanComplete(result)

	renderer, err := output.New(cfg.Output.Format, output.Options{
		Color: colorEnabled(cfg, flags),
	})
	if err != nil {
		return err
	}
	if err := output.Write(renderer, result, cfg.Output.File); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if n := result.Summary.CountAtOrAbove(failOn); n > 0 {
		return &ExitError{
			Code: 1,
			Msg:  fmt.Sprintf("%d findings at or above %s severity", n, failOn),
		}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// applyScanFlags overlays explicitly set flags onto the file config.
func applyScanFlags(cfg *config.Config, flags *scanFlags, cmd *cobra.Command) {
	if flags.format != "" {
		cfg.Output.Format = flags.format
	}
	if flags.outFile != "" {
		cfg.Output.File = flags.outFile
	}
	if flags.suppressions != "" {
		cfg.Suppressions = flags.suppressions
	}
	if cmd.Flags().Changed("workers") {
		cfg.Scan.Workers = flags.workers
	}
	if len(flags.exclude) > 0 {
		cfg.Scan.ExcludePatterns = append(cfg.Scan.ExcludePatterns, flags.exclude...)
	}
}

func colorEnabled(cfg *config.Config, flags *scanFlags) bool {
	if flags.noColor {
		return false
	}
	if cfg.Output.Color != nil {
		return *cfg.Output.Color
	}
	// Auto: color only when writing a terminal report to a tty.
	if cfg.Output.Format != config.FormatTerminal || cfg.Output.File != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// buildDetectors instantiates the enabled engines in their fixed order.
func buildDetectors(dc config.DetectorsConfig) []detect.Detector {
	var detectors []detect.Detector
	for _, name := range config.DetectorNames {
		if !dc.Enabled(name) {
			continue
		}
		switch name {
		case "secrets":
			detectors = append(detectors, detect.NewSecretsDetector())
		case "tool_poisoning":
			detectors = append(detectors, detect.NewToolPoisoningDetector())
		case "prompt_injection":
			detectors = append(detectors, detect.NewPromptInjectionDetector())
		case "code_vulns":
			detectors = append(detectors, detect.NewCodeVulnsDetector())
		case "semantic":
			detectors = append(detectors, semantic.New())
		}
	}
	return detectors
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func newAuditLogger(cfg *config.Config) (*audit.Logger, error) {
	// Audit logging only goes somewhere explicit: a file when configured,
	// otherwise nowhere. Stderr is reserved for the operational logger.
	if cfg.Logging.Output == config.OutputFile || cfg.Logging.Output == config.OutputBoth {
		return audit.New(cfg.Logging.Format, config.OutputFile, cfg.Logging.File)
	}
	return audit.NewNop(), nil
}
