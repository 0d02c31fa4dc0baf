/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/inkwell-comics/modsvc/internal/db"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/spf13/cobra"
)

// sweepCmd resets accounts left Online by a previous process.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reset stale online presence to offline",
	Long: `Marks every account persisted as online as offline. Banned accounts
are left untouched. The server runs the same sweep on startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := presence.Sweep(cmd.Context(), store.NewUserRepository(conn), logger)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d accounts\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
