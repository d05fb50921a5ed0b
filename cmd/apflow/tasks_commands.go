package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"apflow/internal/store"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and resolve workflow tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTaskActionCommand(ctx, "approve", "Approve the invoice behind a human task"))
	tasksCmd.AddCommand(newTaskActionCommand(ctx, "reject", "Reject the invoice behind a human task"))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var invoiceID string
	var status string
	var taskType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			query := url.Values{}
			if invoiceID != "" {
				query.Set("invoice_id", invoiceID)
			}
			if status != "" {
				query.Set("status", status)
			}
			if taskType != "" {
				query.Set("type", taskType)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			var result struct {
				Tasks []*store.Task `json:"tasks"`
			}
			if err := client.get(cmd.Context(), "/api/v1/tasks", query, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks found")
				return nil
			}

			rows := make([][]string, 0, len(result.Tasks))
			for _, task := range result.Tasks {
				rows = append(rows, []string{
					task.ID,
					string(task.Type),
					task.InvoiceID,
					string(task.Status),
					task.ErrorMessage,
					task.CreatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Type", "Invoice", "Status", "Error", "Created"},
				rows,
				nil,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&invoiceID, "invoice", "", "Filter by invoice ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by task status")
	cmd.Flags().StringVar(&taskType, "type", "", "Filter by task type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to list")
	return cmd
}

func newTaskActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	var actor string
	var notes string

	cmd := &cobra.Command{
		Use:   action + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			body := map[string]string{
				"action": action,
				"actor":  actor,
				"notes":  notes,
			}
			var result struct {
				Task *store.Task `json:"task"`
			}
			path := "/api/v1/tasks/" + url.PathEscape(args[0]) + "/action"
			if err := client.post(cmd.Context(), path, body, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s resolved: %s invoice %s\n",
				result.Task.ID, action, result.Task.InvoiceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Name recorded as the deciding actor")
	cmd.Flags().StringVar(&notes, "notes", "", "Resolution notes recorded in the workflow log")
	return cmd
}
