// Package runner defines the contract between the scheduler and the pipeline
// stages it executes, the outcome errors that select a job's status and a
// registry mapping runner kinds to implementations.
package runner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/arc/pkg/model"
)

// Registry maps RunnerKind values to their Runner implementations.
// Registration happens at startup before workers start, so no mutex is needed.
type Registry struct {
	runners map[model.RunnerKind]Runner
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		runners: make(map[model.RunnerKind]Runner),
		logger:  logger.With("component", "runner-registry"),
	}
}

// Register adds a Runner to the registry, keyed by its Kind().
func (r *Registry) Register(run Runner) {
	k := run.Kind()
	r.runners[k] = run
	r.logger.Debug("runner registered", "kind", k)
}

// Get returns the Runner for the given kind or an error if none is registered.
func (r *Registry) Get(k model.RunnerKind) (Runner, error) {
	run, ok := r.runners[k]
	if !ok {
		return nil, fmt.Errorf("no runner registered for kind %q", k)
	}
	return run, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []model.RunnerKind {
	out := make([]model.RunnerKind, 0, len(r.runners))
	for k := range r.runners {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
