package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"apflow/internal/api"
	"apflow/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and invoice status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var result struct {
				Daemon daemon.Status `json:"daemon"`
				Counts api.Status    `json:"counts"`
			}
			if err := client.get(cmd.Context(), "/api/status", nil, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := isatty.IsTerminal(os.Stdout.Fd())

			fmt.Fprintln(out, "Daemon")
			fmt.Fprintln(out, renderStatusLine("running", boolKind(result.Daemon.Running), "", colorize))
			fmt.Fprintln(out, renderStatusLine("workflow", boolKind(result.Daemon.WorkflowRunning), "", colorize))
			if result.Daemon.APIAddress != "" {
				fmt.Fprintln(out, renderStatusLine("api", statusInfo, result.Daemon.APIAddress, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("database", statusInfo, result.Daemon.DatabasePath, colorize))

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Tasks")
			for _, key := range sortedKeys(result.Counts.Tasks) {
				fmt.Fprintln(out, renderStatusLine(string(key), statusInfo,
					fmt.Sprintf("%d", result.Counts.Tasks[key]), colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Invoices")
			for _, key := range sortedKeys(result.Counts.Invoices) {
				fmt.Fprintln(out, renderStatusLine(string(key), statusInfo,
					fmt.Sprintf("%d", result.Counts.Invoices[key]), colorize))
			}
			return nil
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is reachable and healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.get(cmd.Context(), "/health", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
