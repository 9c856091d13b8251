// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/config"
	"georesolve/pkg/logging"
)

const version = "1.0.0"

var (
	configFile string
	envFile    string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "georesolve",
		Short:         "Resolve IP addresses to geographic records",
		Long:          "georesolve routes IP lookups across local geolocation databases using priority-ordered matching rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $GEOIP_CONFIG_FILE or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		lookupCmd(),
		bulkCmd(),
		providersCmd(),
		configCmd(),
		cacheCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initializes logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{Path: configFile, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	settings := cfg.LoggingSettings()
	if logLevel != "" {
		settings.Level = logLevel
	}
	logging.Init(settings)
	return cfg, nil
}

// loadApp loads the configuration and wires the resolver
func loadApp() (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cfg)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "georesolve version %s\n", version)
		},
	}
}
