package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate configuration",
	}
	cmd.AddCommand(configInitCmd(), configShowCmd(), configValidateCmd(), configCheckCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Write(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check references, priorities and database files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			report := config.Validate(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Providers:          %d enabled / %d total\n", report.EnabledProviders, report.TotalProviders)
			fmt.Fprintf(out, "Matching Rules:     %d\n", report.MatchingRules)
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "WARN:  %s\n", w)
			}
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "ERROR: %s\n", issue)
			}
			if !report.Valid() {
				return fmt.Errorf("configuration has %d issue(s)", len(report.Issues))
			}
			fmt.Fprintln(out, "Configuration is valid")
			return nil
		},
	}
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Build every provider and rule, reporting providers that fail to open",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.Build(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, st := range app.Backends() {
				switch {
				case !st.Enabled:
					fmt.Fprintf(out, "SKIP  %s (disabled)\n", st.Name)
				case !st.Available:
					failed++
					fmt.Fprintf(out, "FAIL  %s: %s\n", st.Name, st.Error)
				default:
					fmt.Fprintf(out, "OK    %s\n", st.Name)
				}
			}
			for _, w := range app.Engine.Warnings() {
				fmt.Fprintf(out, "WARN  %s\n", w)
			}
			if failed > 0 {
				return fmt.Errorf("%d enabled provider(s) unavailable", failed)
			}
			return nil
		},
	}
}
