/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modsvc",
	Short: "Comic moderation and presence service",
	Long: `modsvc runs the comic moderation workflow, conduct reports,
moderator administration and realtime presence for the comics platform.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file (overrides CONFIG_FILE)")
}

// loadConfig reads configuration and installs the process logger. The
// returned func flushes and closes the log file.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, func(), error) {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, closer, err := logging.Setup(logging.FromConfig(cfg.Log))
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, logger, func() { _ = closer.Close() }, nil
}

func configFromFlags(cmd *cobra.Command) (config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("CONFIG_FILE", path); err != nil {
			return config.Config{}, err
		}
	}
	return config.LoadConfig(), nil
}
