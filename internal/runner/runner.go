package runner

import (
	"context"
	"log/slog"

	"github.com/me/arc/internal/queue"
	"github.com/me/arc/pkg/model"
)

// Runner is one pipeline stage that workers can execute.
//
// Execute returns nil on normal completion, or an error built with Rerun,
// Fatal or Timeout to select the reported status. Any other error is a
// contract violation and ends the executing worker.
type Runner interface {
	// Kind returns the runner kind this implementation serves.
	Kind() model.RunnerKind

	// Execute runs one job. Follow-on work is placed on the job queue with job.Submit.
	Execute(ctx context.Context, job *Job) error
}

// Job is the per-execution context handed to a Runner.
type Job struct {
	// Params is owned by this execution; the runner may modify it freely.
	Params *model.Params

	// Message is the human-readable envelope message.
	Message string

	// Universals is the read-only run configuration.
	Universals *queue.Universals

	// Submit places a new envelope on the job queue.
	Submit func(model.Envelope)

	Logger *slog.Logger
}

// NewJob builds a Job for env that submits follow-on work to pair.
func NewJob(env model.Envelope, pair *queue.Pair, logger *slog.Logger) *Job {
	return &Job{
		Params:     env.Params.Clone(),
		Message:    env.Message,
		Universals: pair.Universals,
		Submit:     pair.Submit,
		Logger:     logger,
	}
}
