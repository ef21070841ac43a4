// Package worker implements the long-lived loop that pulls one envelope at a
// time from the shared job queue, executes it and reports a status record.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/me/arc/internal/logging"
	"github.com/me/arc/internal/queue"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

// Config holds worker configuration.
type Config struct {
	Slot int
	Name string

	// PollInterval is the delay between empty polls until IdlePolls
	// consecutive empty polls have been seen; IdleBackoff is used after that.
	PollInterval time.Duration
	IdlePolls    int
	IdleBackoff  time.Duration

	// RetireAfter asks the supervisor for a replacement once this many jobs
	// ended in RERUN or TIMEOUT. Zero disables retirement.
	RetireAfter int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		IdlePolls:    3,
		IdleBackoff:  5 * time.Second,
	}
}

// NameFor returns the worker identity for a slot. Replacements started after
// a retirement carry the generation as a suffix.
func NameFor(slot, generation int) string {
	if generation == 0 {
		return fmt.Sprintf("worker-%d", slot)
	}
	return fmt.Sprintf("worker-%d.%d", slot, generation)
}

// FaultError is returned by Run when a job fails in a way the status
// protocol does not cover: an unclassified error or a panic.
type FaultError struct {
	Worker  string
	Slot    int
	Runner  model.RunnerKind
	Message string
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("worker %s (slot %d): %s job %q: %v", e.Worker, e.Slot, e.Runner, e.Message, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Worker executes envelopes from the shared job queue.
type Worker struct {
	cfg      Config
	pair     *queue.Pair
	registry *runner.Registry
	logger   *slog.Logger

	failures int // jobs that ended in RERUN or TIMEOUT
}

// New creates a Worker bound to cfg.Slot.
func New(cfg Config, pair *queue.Pair, reg *runner.Registry, logger *slog.Logger) *Worker {
	if cfg.Name == "" {
		cfg.Name = NameFor(cfg.Slot, 0)
	}
	if cfg.IdlePolls <= 0 {
		cfg.IdlePolls = 1
	}
	return &Worker{
		cfg:      cfg,
		pair:     pair,
		registry: reg,
		logger:   logging.ForWorker(logger, cfg.Name, cfg.Slot),
	}
}

// Name returns the worker identity used in status records.
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Slot returns the slot index the worker is bound to.
func (w *Worker) Slot() int {
	return w.cfg.Slot
}

// Run polls the job queue until ctx is cancelled. It returns nil on
// cancellation and a *FaultError when a job breaks the runner contract.
// An in-flight job is abandoned on cancellation and not reported.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("worker started")

	delay := w.cfg.PollInterval
	empties := 0
	for {
		if !sleep(ctx, delay) {
			w.logger.Debug("worker stopping (context cancelled)")
			return nil
		}

		env, err := w.pair.Jobs.PopNowait()
		if errors.Is(err, queue.ErrEmpty) {
			empties++
			w.reportEmpty()
			delay = w.idleDelay(empties)
			continue
		}

		// Drain bursts without delay.
		empties = 0
		delay = 0

		park, err := w.process(ctx, env)
		if err != nil {
			return err
		}
		if park {
			// FATAL or RETIRE was reported: take no more work and wait for
			// the supervisor to terminate this worker.
			<-ctx.Done()
			w.logger.Debug("worker stopping (terminated by supervisor)")
			return nil
		}
	}
}

// process executes one envelope and reports its status.
// It returns park=true when the worker must stop pulling jobs.
func (w *Worker) process(ctx context.Context, env model.Envelope) (park bool, err error) {
	// Mark busy before executing so the supervisor never mistakes an
	// in-flight job for idleness.
	w.pair.Flags.SetBusy(w.cfg.Slot)

	log := w.logger.With("runner", env.Runner)
	log.Debug("processing", "message", env.Message)

	rec := model.StatusRecord{
		Process: w.cfg.Name,
		Slot:    w.cfg.Slot,
		Runner:  env.Runner,
		Message: env.Message,
	}

	run, err := w.registry.Get(env.Runner)
	if err != nil {
		log.Error("cannot dispatch job", "message", env.Message, "error", err)
		rec.Status = model.StatusFatal
		rec.Error = err.Error()
		w.pair.Report(rec)
		return true, nil
	}

	start := time.Now()
	execErr := w.execute(ctx, run, env, log)
	if ctx.Err() != nil {
		log.Info("job abandoned (worker terminated)", "message", env.Message)
		return false, nil
	}

	status, ok := runner.StatusOf(execErr)
	if !ok {
		log.Error("unhandled job failure", "message", env.Message, "error", execErr)
		return false, &FaultError{
			Worker:  w.cfg.Name,
			Slot:    w.cfg.Slot,
			Runner:  env.Runner,
			Message: env.Message,
			Err:     execErr,
		}
	}

	rec.Status = status
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	elapsed := time.Since(start).Round(time.Millisecond)

	switch status {
	case model.StatusOK:
		log.Debug("job completed", "message", env.Message, "duration", elapsed)
	case model.StatusRerun:
		log.Warn("job needs to be rerun", "message", env.Message, "error", execErr)
	case model.StatusTimeout:
		log.Warn("job timed out", "message", env.Message, "duration", elapsed, "error", execErr)
	case model.StatusFatal:
		log.Error("fatal job error", "message", env.Message, "error", execErr)
	}
	w.pair.Report(rec)

	switch status {
	case model.StatusFatal:
		return true, nil
	case model.StatusRerun, model.StatusTimeout:
		w.failures++
		if w.cfg.RetireAfter > 0 && w.failures >= w.cfg.RetireAfter {
			log.Info("worker requesting retirement", "failures", w.failures)
			w.pair.Report(model.StatusRecord{
				Status:  model.StatusRetire,
				Process: w.cfg.Name,
				Slot:    w.cfg.Slot,
			})
			return true, nil
		}
	}
	return false, nil
}

// execute runs the job, converting a panic into an error that carries the stack.
func (w *Worker) execute(ctx context.Context, run runner.Runner, env model.Envelope, log *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return run.Execute(ctx, runner.NewJob(env, w.pair, log))
}

// reportEmpty pushes one EMPTY record per idle transition.
func (w *Worker) reportEmpty() {
	if w.pair.Flags.Done(w.cfg.Slot) {
		return
	}
	w.logger.Debug("the queue is empty")
	w.pair.Report(model.StatusRecord{
		Status:  model.StatusEmpty,
		Process: w.cfg.Name,
		Slot:    w.cfg.Slot,
	})
	w.pair.Flags.SetDone(w.cfg.Slot)
}

func (w *Worker) idleDelay(empties int) time.Duration {
	if empties < w.cfg.IdlePolls {
		return w.cfg.PollInterval
	}
	return w.cfg.IdleBackoff
}

// sleep waits for d or until ctx is done. It returns false if ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
