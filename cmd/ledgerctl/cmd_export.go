package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javajoker/imi-ownership/internal/services"
)

var exportFlags struct {
	at string
}

var exportCmd = &cobra.Command{
	Use:   "export <asset-id>...",
	Short: "Write ownership snapshots for the payout job",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.at, "at", "", "RFC3339 instant (default now)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	at, err := parseInstant(exportFlags.at)
	if err != nil {
		return err
	}
	env, closeDB, err := openLedger()
	if err != nil {
		return err
	}
	defer closeDB()

	exporter, err := services.NewExportService(env.store, env.cfg)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		result, err := exporter.ExportOwnershipSnapshot(cmd.Context(), id, at)
		if err != nil {
			return fmt.Errorf("export %s: %w", id, err)
		}
		rows = append(rows, []string{id.String(), fmt.Sprint(len(result.Snapshot.Owners)), fmt.Sprint(result.Size), result.Location})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Asset", "Owners", "Bytes", "Location"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}

