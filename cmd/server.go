/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inkwell-comics/modsvc/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the moderation service",
	Long: `Starts the moderation service. Stale online accounts are reset before
the listener accepts connections. Usage:

	modsvc server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, closeLog, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to start server", "err", err)
			os.Exit(1)
		}
		if err := srv.Run(ctx); err != nil {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
