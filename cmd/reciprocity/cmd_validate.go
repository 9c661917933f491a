package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/reciprocity/internal/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration or sweep file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("sweep"); path != "" {
				sweep, err := config.LoadSweep(path)
				if err != nil {
					return err
				}
				cfgs, err := sweep.Expand()
				if err != nil {
					return err
				}
				for _, c := range cfgs {
					fmt.Fprintf(out, "ok  %s (%s, %d agents)\n", c.Name, c.Reproduce, c.NumAgents)
				}
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(out, "ok  %s (%s, %d agents)\n", cfg.Name, cfg.Reproduce, cfg.NumAgents)
			return nil
		},
	}
	cmd.Flags().String("sweep", "", "validate a sweep file instead of --config")
	return cmd
}
