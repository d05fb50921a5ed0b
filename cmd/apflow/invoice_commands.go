package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"apflow/internal/api"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			query := url.Values{}
			if status != "" {
				query.Set("status", status)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			var result struct {
				Invoices []*invoice.Invoice `json:"invoices"`
			}
			if err := client.get(cmd.Context(), "/api/v1/invoices", query, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Invoices) == 0 {
				fmt.Fprintln(out, "No invoices found")
				return nil
			}

			rows := make([][]string, 0, len(result.Invoices))
			for _, inv := range result.Invoices {
				rows = append(rows, []string{
					inv.ID,
					inv.Header.InvoiceRef,
					inv.Header.VendorNumber,
					fmt.Sprintf("%.2f %s", inv.Header.Amount, inv.Header.Currency),
					string(inv.Status),
					inv.UpdatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Ref", "Vendor", "Amount", "Status", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by invoice status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of invoices to list")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Show an invoice and its workflow log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var view api.InvoiceView
			if err := client.get(cmd.Context(), "/api/v1/invoices/"+url.PathEscape(args[0]), nil, &view); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			inv := view.Invoice
			fmt.Fprintf(out, "Invoice %s  [%s]\n", inv.ID, inv.Status)
			fmt.Fprintf(out, "  ref:      %s\n", inv.Header.InvoiceRef)
			fmt.Fprintf(out, "  date:     %s\n", inv.Header.InvoiceDate)
			fmt.Fprintf(out, "  vendor:   %s\n", inv.Header.VendorNumber)
			fmt.Fprintf(out, "  amount:   %.2f %s\n", inv.Header.Amount, inv.Header.Currency)
			if inv.HasPO() {
				fmt.Fprintf(out, "  po:       %s\n", inv.Header.PONumber)
			}
			if len(inv.Items) > 0 {
				fmt.Fprintf(out, "  items:    %d (total %.2f)\n", len(inv.Items), inv.ItemTotal())
			}

			if len(view.Log) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(view.Log))
			for _, entry := range view.Log {
				rows = append(rows, []string{
					strconv.FormatInt(entry.ID, 10),
					string(entry.Kind),
					entry.Agent,
					transitionLabel(entry),
					entry.Actor,
					entry.Reason,
					entry.CreatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Kind", "Agent", "Transition", "Actor", "Reason", "At"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func transitionLabel(entry *store.LogEntry) string {
	if entry.ToStatus == "" {
		return ""
	}
	label := fmt.Sprintf("%s -> %s", entry.FromStatus, entry.ToStatus)
	if entry.FromStatus == "" {
		label = string(entry.ToStatus)
	}
	if !entry.Allowed {
		label += " (disallowed)"
	}
	return label
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <invoice-id>",
		Short: "Queue an invoice for another pipeline pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var result struct {
				Task *store.Task `json:"task"`
			}
			path := "/api/v1/invoices/" + url.PathEscape(args[0]) + "/reprocess"
			if err := client.post(cmd.Context(), path, nil, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s for invoice %s\n", result.Task.ID, args[0])
			return nil
		},
	}
}
