package main

import (
	"fmt"

	"github.com/ferro-labs/ferroinfer"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ferroinfer.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := ferroinfer.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			model := cfg.Model.ID
			if cfg.Model.Path != "" {
				model = cfg.Model.Path + " (local)"
			}
			fmt.Fprintf(out, "  Model:       %s\n", model)
			fmt.Fprintf(out, "  Cache:       %d entries\n", cfg.Cache.Capacity)
			workers := "one per CPU"
			if cfg.Inference.Workers > 0 {
				workers = fmt.Sprint(cfg.Inference.Workers)
			}
			fmt.Fprintf(out, "  Workers:     %s\n", workers)
			fmt.Fprintf(out, "  Listen:      %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			driver := cfg.RequestLog.Driver
			if driver == "" {
				driver = "disabled"
			}
			fmt.Fprintf(out, "  Request log: %s\n", driver)
			return nil
		},
	}
}
