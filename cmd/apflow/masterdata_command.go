package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newMasterdataCommand(ctx *commandContext) *cobra.Command {
	masterdataCmd := &cobra.Command{
		Use:   "masterdata",
		Short: "Load vendor, purchase order, and approval rule records",
	}

	masterdataCmd.AddCommand(newMasterdataLoadCommand(ctx, "vendors", "/api/v1/masterdata/vendors",
		"Load vendor master records from JSON files"))
	masterdataCmd.AddCommand(newMasterdataLoadCommand(ctx, "purchase-orders", "/api/v1/masterdata/purchase-orders",
		"Load purchase orders from JSON files"))
	masterdataCmd.AddCommand(newMasterdataLoadCommand(ctx, "approval-rules", "/api/v1/masterdata/approval-rules",
		"Load company approval rules from JSON files"))

	return masterdataCmd
}

// newMasterdataLoadCommand accepts files holding either a single record or an
// array of records and upserts each one.
func newMasterdataLoadCommand(ctx *commandContext, name, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <file.json> [file.json ...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, file := range args {
				records, err := readRecords(file)
				if err != nil {
					return err
				}
				for _, record := range records {
					if err := client.put(cmd.Context(), path, record, nil); err != nil {
						return fmt.Errorf("load %s from %s: %w", name, file, err)
					}
				}
				fmt.Fprintf(out, "Loaded %d %s from %s\n", len(records), name, file)
			}
			return nil
		},
	}
}

func readRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []json.RawMessage{single}, nil
}
