package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	var dbPath string
	var errorsOnly bool

	cmd := &cobra.Command{
		Use:   "results <run_id>",
		Short: "Show the status records consumed during a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			st, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", id)
			}
			entries, err := st.ListResults(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("list results: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "  State:   %s\n", run.State)
			fmt.Fprintf(out, "  Config:  %s\n", run.ConfigPath)
			fmt.Fprintf(out, "  Started: %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "  Elapsed: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:   %s\n", run.Error)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "%-12s  %-8s  %-14s  %-16s  %s\n", "TIME", "STATUS", "PROCESS", "RUNNER", "MESSAGE")
			shown := 0
			for _, e := range entries {
				rec := e.Record
				if errorsOnly && rec.Error == "" {
					continue
				}
				msg := rec.Message
				if rec.Error != "" {
					msg += ": " + rec.Error
				}
				fmt.Fprintf(out, "%-12s  %-8s  %-14s  %-16s  %s\n",
					e.RecordedAt.Local().Format("15:04:05.000"), rec.Status, rec.Process, rec.Runner, msg)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, "(no status records)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath(), "Run journal path (or ARC_DB env)")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Only show records that carry an error")

	return cmd
}
