/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/db"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/internal/storage"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log maintenance",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries to object storage as JSON lines",
	Long: `Exports the audit entries created inside [--from, --to) to the configured
object store. Without flags the previous calendar month is exported.

	modsvc audit export --from 2026-09-01 --to 2026-10-01
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := exportWindow(cmd, time.Now().UTC())
		if err != nil {
			return err
		}

		cfg, logger, closeLog, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx := cmd.Context()
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		archive, err := openArchive(cmd, cfg.Storage)
		if err != nil {
			return err
		}

		overwrite, _ := cmd.Flags().GetBool("overwrite")
		exporter := services.NewAuditExportService(store.NewAuditLogRepository(conn), archive, logger)
		key, n, err := exporter.Export(ctx, from, to, overwrite)
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				return fmt.Errorf("%s/%s exists, pass --overwrite to replace it", archive.Bucket(), key)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s/%s\n", n, archive.Bucket(), key)
		return nil
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit exports in object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		archive, err := openArchive(cmd, cfg.Storage)
		if err != nil {
			return err
		}

		exports, err := services.NewAuditExportService(nil, archive, logger).Exports(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, obj := range exports {
			fmt.Fprintf(out, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditExportCmd, auditListCmd)

	auditExportCmd.Flags().String("from", "", "window start (RFC3339 or YYYY-MM-DD)")
	auditExportCmd.Flags().String("to", "", "window end, exclusive (RFC3339 or YYYY-MM-DD)")
	auditExportCmd.Flags().Bool("overwrite", false, "replace an existing export for the same window")
}

func openArchive(cmd *cobra.Command, cfg config.StorageConfig) (*storage.Archive, error) {
	backend, err := storage.NewObjectStorage(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	archive := storage.NewArchive(backend)
	if err := archive.EnsureBucket(cmd.Context()); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", archive.Bucket(), err)
	}
	return archive, nil
}

func exportWindow(cmd *cobra.Command, now time.Time) (time.Time, time.Time, error) {
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from, to := thisMonth.AddDate(0, -1, 0), thisMonth

	if raw, _ := cmd.Flags().GetString("from"); raw != "" {
		parsed, err := parseTimeFlag(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		from = parsed
	}
	if raw, _ := cmd.Flags().GetString("to"); raw != "" {
		parsed, err := parseTimeFlag(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		to = parsed
	}
	return from, to, nil
}

func parseTimeFlag(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
