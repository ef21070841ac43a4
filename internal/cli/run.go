package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/me/arc/internal/config"
	"github.com/me/arc/internal/metrics"
	"github.com/me/arc/internal/queue"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/internal/server"
	"github.com/me/arc/internal/stages"
	"github.com/me/arc/internal/store"
	"github.com/me/arc/internal/supervisor"
	"github.com/me/arc/pkg/model"
	"github.com/spf13/cobra"
)

type runOptions struct {
	workers    int
	dbPath     string
	statusAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run the pipeline for every sample in a run file",
		Long: `Loads the run file, seeds one mapper job per sample and runs the worker
pool until every queue is drained. A fatal job error terminates all workers
and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				if opts.workers < 1 {
					return fmt.Errorf("--workers must be at least 1")
				}
				cfg.Workers = opts.workers
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Worker pool size (overrides the run file)")
	cmd.Flags().StringVar(&opts.dbPath, "db", defaultDBPath(), `Run journal path (or ARC_DB env, "" disables the journal)`)
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "Serve the status API on this address while running")

	return cmd
}

func runPipeline(ctx context.Context, out io.Writer, cfg config.RunConfig, opts runOptions) error {
	var st store.Store
	if opts.dbPath != "" {
		sqlite, err := openStore(ctx, opts.dbPath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		st = sqlite
	}

	samples := cfg.SampleParams()
	run := &model.Run{
		ID:         "run_" + uuid.New().String(),
		State:      model.RunStateRunning,
		ConfigPath: cfg.Path,
		Workers:    cfg.Workers,
		Samples:    len(samples),
		StartedAt:  time.Now().UTC(),
	}
	log := logger.With("run_id", run.ID)
	if st != nil {
		if err := st.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
	}

	pair := queue.NewPair(cfg.Workers)
	if err := pair.Universals.Publish(cfg.Universals()); err != nil {
		return err
	}
	reg := runner.NewRegistry(logger)
	stages.Register(reg)

	m := metrics.New()
	supOpts := []supervisor.Option{supervisor.WithMetrics(m)}
	if st != nil {
		supOpts = append(supOpts, supervisor.WithRecorder(run.ID, st))
	}
	sup := supervisor.New(pair, reg, cfg.SupervisorConfig(), logger, supOpts...)

	if opts.statusAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		srv := server.New(config.ServerConfig{Addr: opts.statusAddr}, st, logger,
			server.WithStatus(run.ID, sup), server.WithMetrics(m))
		go func() {
			if err := srv.ListenAndServe(srvCtx); err != nil {
				log.Error("status server stopped", "error", err)
			}
		}()
	}

	for _, p := range samples {
		sup.Seed(stages.MapperJob(p))
	}
	log.Info("run started", "samples", len(samples), "workers", cfg.Workers, "config", cfg.Path)

	tally, runErr := sup.Run(ctx)

	run.Tally = tally
	run.State = sup.Snapshot().State
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if st != nil {
		if err := st.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("journal run result", "error", err)
		}
	}

	fmt.Fprintf(out, "Run %s %s\n", run.ID, run.State)
	fmt.Fprintf(out, "  Jobs:    %d ok, %d rerun, %d timeout, %d fatal\n", tally.OK, tally.Rerun, tally.Timeout, tally.Fatal)
	fmt.Fprintf(out, "  Workers: %d idle reports, %d retired\n", tally.Empty, tally.Retired)
	for _, p := range samples {
		fmt.Fprintf(out, "  Sample %s: %s\n", p.Sample, p.FinishedDir)
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", run.ID, runErr)
	}
	return nil
}
