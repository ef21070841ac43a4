// Package supervisor owns the worker pool of a run: it seeds the job queue,
// starts one worker per slot, drains the result queue and decides when the
// run is over.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/arc/internal/metrics"
	"github.com/me/arc/internal/queue"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/internal/worker"
	"github.com/me/arc/pkg/model"
)

var (
	// ErrFatal is wrapped by the error Run returns after a FATAL record.
	ErrFatal = errors.New("fatal job error")

	// ErrWorkerFault is wrapped by the error Run returns when a worker
	// crashed on an unclassified error or a panic.
	ErrWorkerFault = errors.New("worker fault")
)

// Config holds supervisor configuration.
type Config struct {
	Workers int

	// PollInterval is the delay between result polls while work is pending.
	PollInterval time.Duration

	// IdleBackoff separates the two global-done checks that end a run.
	IdleBackoff time.Duration

	// ShutdownTimeout bounds how long termination waits for a worker to exit.
	ShutdownTimeout time.Duration

	// Worker is the template for every worker; Slot and Name are filled in.
	Worker worker.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		PollInterval:    100 * time.Millisecond,
		IdleBackoff:     5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Worker:          worker.DefaultConfig(),
	}
}

// Recorder journals consumed status records.
type Recorder interface {
	RecordResult(ctx context.Context, runID string, rec model.StatusRecord) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRecorder journals every consumed status record under runID.
func WithRecorder(runID string, r Recorder) Option {
	return func(s *Supervisor) {
		s.runID = runID
		s.recorder = r
	}
}

// WithMetrics updates c while the run progresses.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Supervisor) {
		s.metrics = c
	}
}

// WorkerInfo describes one slot in a Snapshot.
type WorkerInfo struct {
	Slot       int    `json:"slot"`
	Name       string `json:"name"`
	Generation int    `json:"generation"`
	Idle       bool   `json:"idle"`
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	State         model.RunState `json:"state,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	Workers       []WorkerInfo   `json:"workers"`
	JobsQueued    int            `json:"jobs_queued"`
	ResultsQueued int            `json:"results_queued"`
	Respawns      int            `json:"respawns"`
	Tally         model.Tally    `json:"tally"`
}

type slot struct {
	name       string
	generation int
	cancel     context.CancelFunc
	done       chan struct{}
}

type crash struct {
	slot int
	name string
	err  error
}

// Supervisor runs a pool of workers against one queue pair.
type Supervisor struct {
	pair     *queue.Pair
	registry *runner.Registry
	cfg      Config
	base     *slog.Logger
	logger   *slog.Logger

	runID    string
	recorder Recorder
	metrics  *metrics.Collector

	crashes chan crash

	mu        sync.Mutex
	slots     []*slot
	tally     model.Tally
	respawns  int
	state     model.RunState
	startedAt time.Time
}

// New creates a supervisor for cfg.Workers workers sharing pair.
func New(pair *queue.Pair, reg *runner.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		pair:     pair,
		registry: reg,
		cfg:      cfg,
		base:     logger,
		logger:   logger.With("component", "supervisor"),
		crashes:  make(chan crash, max(cfg.Workers, 1)),
		slots:    make([]*slot, cfg.Workers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed places the initial envelopes on the job queue.
func (s *Supervisor) Seed(envs ...model.Envelope) {
	for _, env := range envs {
		s.pair.Submit(env)
	}
	s.logger.Info("seeded job queue", "jobs", len(envs))
}

// Run starts the pool and drains results until the run completes, a job
// reports FATAL, a worker crashes or ctx is cancelled. Every worker is
// terminated before Run returns.
func (s *Supervisor) Run(ctx context.Context) (model.Tally, error) {
	if s.cfg.Workers < 1 {
		return model.Tally{}, fmt.Errorf("supervisor: need at least one worker, got %d", s.cfg.Workers)
	}
	if s.cfg.Workers != s.pair.Flags.Len() {
		return model.Tally{}, fmt.Errorf("supervisor: %d workers but %d slot flags", s.cfg.Workers, s.pair.Flags.Len())
	}

	s.mu.Lock()
	if s.state != "" {
		s.mu.Unlock()
		return model.Tally{}, errors.New("supervisor: already started")
	}
	s.state = model.RunStateRunning
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("starting workers", "workers", s.cfg.Workers, "jobs", s.pair.Jobs.Len())
	s.metrics.SetPool(s.cfg.Workers)
	for i := range s.cfg.Workers {
		s.spawn(poolCtx, i, 0)
	}

	err := s.loop(ctx, poolCtx)
	s.stopAll()

	tally := s.Tally()
	state := model.RunStateCompleted
	switch {
	case err == nil:
		s.logger.Info("run finished",
			"ok", tally.OK, "rerun", tally.Rerun, "timeout", tally.Timeout, "retired", tally.Retired)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state = model.RunStateCancelled
		s.logger.Warn("run cancelled", "error", err)
	default:
		state = model.RunStateFailed
		s.logger.Error("run failed", "error", err)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.updateGauges()
	return tally, err
}

func (s *Supervisor) loop(ctx, poolCtx context.Context) error {
	confirmed := false // global-done held on the previous check
	var delay time.Duration
	for {
		if !sleep(ctx, delay) {
			return ctx.Err()
		}

		select {
		case c := <-s.crashes:
			return fmt.Errorf("%w: %s (slot %d): %w", ErrWorkerFault, c.name, c.slot, c.err)
		default:
		}
		s.updateGauges()

		rec, err := s.pair.Results.PopNowait()
		if err == nil {
			confirmed = false
			delay = 0
			if err := s.handle(ctx, poolCtx, rec); err != nil {
				return err
			}
			continue
		}

		if !s.globalDone() {
			confirmed = false
			delay = s.cfg.PollInterval
			continue
		}
		if confirmed {
			s.logger.Info("all queues empty and all workers idle")
			return nil
		}
		s.logger.Debug("run looks complete, confirming", "after", s.cfg.IdleBackoff)
		confirmed = true
		delay = s.cfg.IdleBackoff
	}
}

// handle applies one status record.
func (s *Supervisor) handle(ctx, poolCtx context.Context, rec model.StatusRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("supervisor: unknown status %d from %s", int(rec.Status), rec.Process)
	}

	s.mu.Lock()
	s.tally.Add(rec.Status)
	s.mu.Unlock()
	s.metrics.ObserveResult(rec.Status)
	s.record(ctx, rec)

	log := s.logger.With("worker", rec.Process, "slot", rec.Slot)
	switch rec.Status {
	case model.StatusOK:
		log.Debug("job finished", "runner", rec.Runner, "message", rec.Message)
	case model.StatusRerun:
		log.Info("job requested rerun", "runner", rec.Runner, "message", rec.Message, "error", rec.Error)
	case model.StatusTimeout:
		log.Info("job timed out", "runner", rec.Runner, "message", rec.Message, "error", rec.Error)
	case model.StatusEmpty:
		log.Debug("worker idle")
	case model.StatusFatal:
		return fmt.Errorf("%w: %s reported %q: %s", ErrFatal, rec.Process, rec.Message, rec.Error)
	case model.StatusRetire:
		s.respawn(poolCtx, rec)
	}
	return nil
}

func (s *Supervisor) record(ctx context.Context, rec model.StatusRecord) {
	if s.recorder == nil {
		return
	}
	// The journal is best effort; a failing write never stops the run.
	if err := s.recorder.RecordResult(context.WithoutCancel(ctx), s.runID, rec); err != nil {
		s.logger.Warn("journal status record", "run_id", s.runID, "error", err)
	}
}

// respawn replaces the worker that asked to retire.
func (s *Supervisor) respawn(poolCtx context.Context, rec model.StatusRecord) {
	s.mu.Lock()
	var old *slot
	if rec.Slot >= 0 && rec.Slot < len(s.slots) {
		old = s.slots[rec.Slot]
	}
	s.mu.Unlock()
	if old == nil || old.name != rec.Process {
		s.logger.Warn("ignoring retirement from unknown worker", "worker", rec.Process, "slot", rec.Slot)
		return
	}

	s.logger.Info("retiring worker", "worker", old.name, "slot", rec.Slot)
	s.terminate(old)

	// The replacement starts busy so the run cannot look finished before it polls.
	s.pair.Flags.SetBusy(rec.Slot)
	s.spawn(poolCtx, rec.Slot, old.generation+1)

	s.mu.Lock()
	s.respawns++
	s.mu.Unlock()
	s.metrics.ObserveRespawn()
}

func (s *Supervisor) spawn(ctx context.Context, idx, generation int) {
	cfg := s.cfg.Worker
	cfg.Slot = idx
	cfg.Name = worker.NameFor(idx, generation)
	w := worker.New(cfg, s.pair, s.registry, s.base)

	wctx, cancel := context.WithCancel(ctx)
	sl := &slot{
		name:       cfg.Name,
		generation: generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.slots[idx] = sl
	s.mu.Unlock()

	go func() {
		defer close(sl.done)
		if err := w.Run(wctx); err != nil {
			select {
			case s.crashes <- crash{slot: idx, name: cfg.Name, err: err}:
			default:
			}
		}
	}()
	s.logger.Debug("worker started", "worker", cfg.Name, "slot", idx)
}

// terminate cancels one worker and waits for it within the shutdown window.
func (s *Supervisor) terminate(sl *slot) {
	sl.cancel()
	t := time.NewTimer(s.cfg.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-sl.done:
	case <-t.C:
		s.logger.Warn("worker did not exit within shutdown window, abandoning", "worker", sl.name)
	}
}

// stopAll cancels every worker, then waits for all of them within one
// shared shutdown window.
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl != nil {
			slots = append(slots, sl)
		}
	}
	s.mu.Unlock()

	for _, sl := range slots {
		sl.cancel()
	}
	deadline := time.NewTimer(s.cfg.ShutdownTimeout)
	defer deadline.Stop()
	for _, sl := range slots {
		select {
		case <-sl.done:
		case <-deadline.C:
			s.logger.Warn("workers did not exit within shutdown window, abandoning")
			return
		}
	}
	s.logger.Debug("all workers stopped")
}

// globalDone reports whether every worker is idle and both queues are empty.
func (s *Supervisor) globalDone() bool {
	return s.pair.Flags.AllDone() && s.pair.Jobs.Empty() && s.pair.Results.Empty()
}

func (s *Supervisor) updateGauges() {
	idle := 0
	for _, done := range s.pair.Flags.Snapshot() {
		if done {
			idle++
		}
	}
	s.metrics.SetQueues(s.pair.Jobs.Len(), s.pair.Results.Len(), idle)
}

// Tally returns the status counts consumed so far.
func (s *Supervisor) Tally() model.Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally
}

// Snapshot returns the current state of the run.
func (s *Supervisor) Snapshot() Snapshot {
	flags := s.pair.Flags.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:         s.state,
		StartedAt:     s.startedAt,
		Workers:       make([]WorkerInfo, len(s.slots)),
		JobsQueued:    s.pair.Jobs.Len(),
		ResultsQueued: s.pair.Results.Len(),
		Respawns:      s.respawns,
		Tally:         s.tally,
	}
	for i, sl := range s.slots {
		info := WorkerInfo{Slot: i, Idle: i < len(flags) && flags[i]}
		if sl != nil {
			info.Name = sl.name
			info.Generation = sl.generation
		}
		snap.Workers[i] = info
	}
	return snap
}

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
