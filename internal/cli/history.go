package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/arc/internal/store"
	"github.com/me/arc/pkg/model"
	"github.com/spf13/cobra"
)

// openStore opens the journal at path, creating its directory and schema
// on first use.
func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return st, nil
}

func newHistoryCmd() *cobra.Command {
	var dbPath, state string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, State: model.RunState(state)}
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-44s  %-10s  %7s  %7s  %-16s  %s\n", "ID", "STATE", "WORKERS", "SAMPLES", "JOBS", "STARTED")
			fmt.Fprintf(out, "%-44s  %-10s  %7s  %7s  %-16s  %s\n", "--", "-----", "-------", "-------", "----", "-------")
			for _, r := range runs {
				jobs := fmt.Sprintf("%d ok/%d fatal", r.Tally.OK, r.Tally.Fatal)
				fmt.Fprintf(out, "%-44s  %-10s  %7d  %7d  %-16s  %s\n",
					r.ID, r.State, r.Workers, r.Samples, jobs, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}

			if len(runs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath(), "Run journal path (or ARC_DB env)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&state, "state", "", "Only show runs in this state (RUNNING, COMPLETED, FAILED, CANCELLED)")

	return cmd
}
