package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/mcpscan/internal/config"
	"github.com/luckyPipewrench/mcpscan/internal/suppress"
)

func rulesCmd() *cobra.Command {
	var configPath, suppressionsPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List detection engines and active suppression rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if suppressionsPath != "" {
				cfg.Suppressions = suppressionsPath
			}
			return runRules(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to mcpscan.yaml")
	cmd.Flags().StringVar(&suppressionsPath, "suppressions", "", "path to suppression rules file")
	return cmd
}

func runRules(cmd *cobra.Command, cfg *config.Config) error {
	cmd.Println("Detection engines:")
	names := append([]string(nil), config.DetectorNames...)
	sort.Strings(names)
	for _, name := range names {
		state := "enabled"
		if !cfg.Detectors.Enabled(name) {
			state = "disabled"
		}
		cmd.Printf("  %-18s %s\n", name, state)
	}

	if cfg.Suppressions == "" {
		cmd.Println("\nNo suppression file configured.")
		return nil
	}

	mgr, err := suppress.Load(cfg.Suppressions)
	if err != nil {
		return fmt.Errorf("loading suppressions: %w", err)
	}
	stats := mgr.Stats()
	cmd.Printf("\nSuppression rules (%s): %d total, %d active, %d expired\n",
		cfg.Suppressions, stats.Total, stats.Active, stats.Expired)
	return nil
}
