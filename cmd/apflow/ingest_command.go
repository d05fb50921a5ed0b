package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apflow/internal/invoice"
	"apflow/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json> [file.json ...]",
		Short: "Submit captured invoice documents for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				var raw invoice.RawDocument
				if err := json.Unmarshal(data, &raw); err != nil {
					return fmt.Errorf("parse %s: %w", path, err)
				}

				var result struct {
					Invoice *invoice.Invoice `json:"invoice"`
					Task    *store.Task      `json:"task"`
				}
				if err := client.post(cmd.Context(), "/api/v1/invoices", raw, &result); err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Fprintf(out, "Ingested %s as invoice %s (task %s)\n",
					path, result.Invoice.ID, result.Task.ID)
			}
			return nil
		},
	}
}
