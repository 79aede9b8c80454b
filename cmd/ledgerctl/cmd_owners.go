package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var ownersFlags struct {
	at string
}

var ownersCmd = &cobra.Command{
	Use:   "owners <asset-id>",
	Short: "List the owners of an asset at an instant",
	Args:  cobra.ExactArgs(1),
	RunE:  runOwners,
}

func init() {
	ownersCmd.Flags().StringVar(&ownersFlags.at, "at", "", "RFC3339 instant (default now)")
}

func runOwners(cmd *cobra.Command, args []string) error {
	assetID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid asset id %q: %w", args[0], err)
	}
	at, err := parseInstant(ownersFlags.at)
	if err != nil {
		return err
	}
	env, closeDB, err := openLedger()
	if err != nil {
		return err
	}
	defer closeDB()

	owners, err := env.ownership.GetOwners(cmd.Context(), assetID, at)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(owners)+1)
	total := 0
	for _, o := range owners {
		total += o.ShareBps
		rows = append(rows, []string{
			o.CreatorID.String(),
			string(o.OwnershipType),
			strconv.Itoa(o.ShareBps),
			o.StartDate.Format(time.RFC3339),
			string(o.DisputeStatus),
		})
	}
	rows = append(rows, []string{"total", "", strconv.Itoa(total), "", ""})

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Creator", "Type", "Share Bps", "Since", "Dispute"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func parseInstant(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid instant %q: %w", raw, err)
	}
	return &t, nil
}
