package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paddock-labs/tracker-cli/internal/runlog"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	Long:  "Displays the run log: one line per stage execution with row counts, quality counters, and errors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRunEnv(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.RunLog.Recent(ctx, statusLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			zap.L().Info("no runs recorded yet, start with 'tracker-cli run'")
			return nil
		}

		formatRunEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum stage executions to show")
	rootCmd.AddCommand(statusCmd)
}

// formatRunEntries writes a tabular representation of run-log entries to w.
func formatRunEntries(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tSTAGE\tSTATUS\tSTARTED\tDURATION\tIN\tOUT\tQUALITY\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t-----\t------\t-------\t--------\t--\t---\t-------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.FinishedAt != nil {
			dur = e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}

		quality := ""
		if c := e.Counters; c != nil {
			quality = fmt.Sprintf("dup=%d neg=%d miss=%d noname=%d",
				c.DuplicatesDropped, c.NegativePointsFound, c.MissingPoints, c.MissingConstructorName)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.ID,
			shortRunID(e.RunID),
			e.Stage,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsIn,
			e.RowsOut,
			quality,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// shortRunID keeps the first uuid block; the full id is in the database.
func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
