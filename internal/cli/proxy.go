package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/mcpscan/internal/audit"
	"github.com/luckyPipewrench/mcpscan/internal/config"
	"github.com/luckyPipewrench/mcpscan/internal/metrics"
	"github.com/luckyPipewrench/mcpscan/internal/proxy"
)

type proxyFlags struct {
	configPath string
	listen     string
	upstream   string
	admin      string
	blockOn    string
	verbose    bool
}

func proxyCmd() *cobra.Command {
	flags := &proxyFlags{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the MCP intercept proxy",
		Long: `Proxy sits between an agent and an MCP server and scans tool-call
code in flight. Findings are logged; with --block-on set, requests whose
findings reach that severity are rejected with 403 instead of forwarded.

The config file is watched for changes and reloaded live (also on SIGHUP).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProxy(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to mcpscan.yaml")
	cmd.Flags().StringVar(&flags.listen, "listen", "", "proxy listen address")
	cmd.Flags().StringVar(&flags.upstream, "upstream", "", "upstream MCP server URL")
	cmd.Flags().StringVar(&flags.admin, "admin", "", "admin listen address for /metrics and /healthz")
	cmd.Flags().StringVar(&flags.blockOn, "block-on", "", "block requests with findings at or above this severity")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func runProxy(cmd *cobra.Command, flags *proxyFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.listen != "" {
		cfg.Proxy.Listen = flags.listen
	}
	if flags.upstream != "" {
		cfg.Proxy.Upstream = flags.upstream
	}
	if flags.admin != "" {
		cfg.Proxy.AdminListen = flags.admin
	}
	if flags.blockOn != "" {
		cfg.Proxy.BlockOn = flags.blockOn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(flags.verbose)

	auditLog, err := audit.New(cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer func() { _ = auditLog.Close() }()

	m := metrics.New()
	p, err := proxy.New(cfg, buildDetectors(cfg.Detectors), auditLog, m, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var changes <-chan *config.Config
	if flags.configPath != "" {
		r := config.NewReloader(flags.configPath)
		defer r.Close()
		go func() {
			if err := r.Start(ctx); err != nil {
				log.Error().Err(err).Msg("config reloader stopped")
			}
		}()
		changes = r.Changes()
	}

	return p.Run(ctx, changes)
}
