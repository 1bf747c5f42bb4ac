package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/orate/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent synthesis jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := scope.DataPath("history.db")
		if err != nil {
			return fmt.Errorf("locate data directory: %w", err)
		}

		store, err := history.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(rows) == 0 {
			fmt.Fprintln(out, "No jobs recorded yet.")
			return nil
		}

		failedStyle := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D84A4A", Dark: "#FF6B6B"})
		for _, r := range rows {
			status := r.Status
			if r.Status == history.StatusFailed {
				status = failedStyle.Render(status)
			}
			fmt.Fprintf(out, "%-12s  %-8s  %-20s  %-10s  %s\n",
				humanize.Time(r.FinishedAt),
				status,
				runewidth.Truncate(r.Input, 20, "…"),
				humanize.Bytes(uint64(r.Bytes)),
				r.OutputPath,
			)
			if r.Error != "" {
				fmt.Fprintf(out, "              %s\n", runewidth.Truncate(r.Error, 70, "…"))
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum jobs to list")
}
