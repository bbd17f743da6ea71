package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"examforge/gatekeeper/pkg/cli"
	"examforge/gatekeeper/pkg/config"
)

var (
	// Global flags
	cfgFile      string
	envFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper - rate limiting and AI token budgets",
	Long: `Gatekeeper enforces fixed-window rate limits and daily AI token budgets
backed by a shared counter store (SQLite, PostgreSQL, MySQL or Redis).

It runs as an HTTP sidecar and provides:
  - Named rate limit policies with penalty blocks
  - Per-identity daily token budgets
  - Two-phase token reservations with settlement`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(cli.FormatText), "output format (text, json)")
}

// loadConfig loads the .env file, the config file and environment overrides.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, cli.NewConfigError(envFile, err)
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}

func formatter() (cli.Formatter, error) {
	return cli.NewFormatter(cli.OutputFormat(outputFormat))
}
