package stages

import (
	"context"
	"time"

	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

// AssemblyChecker polls the target directories of one sample for sentinels.
// While targets are outstanding it re-submits itself after the checker
// delay; once all are finished it submits the Finisher.
type AssemblyChecker struct{}

func (*AssemblyChecker) Kind() model.RunnerKind { return model.RunnerAssemblyChecker }

func (c *AssemblyChecker) Execute(ctx context.Context, job *runner.Job) error {
	p := job.Params
	if p.Targets == nil {
		p.Targets = model.NewTargetMap()
	}

	for _, dir := range p.Targets.Pending() {
		done, err := sentinelExists(dir)
		if err != nil {
			return runner.Fatalf("check target %s: %w", dir, err)
		}
		if done {
			p.Targets.Mark(dir)
		}
	}

	log := job.Logger.With("sample", p.Sample)
	if p.Targets.Complete() {
		log.Info("all assemblies finished", "targets", len(p.Targets))
		job.Submit(finisherJob(p))
		return nil
	}

	log.Debug("assemblies outstanding",
		"finished", p.Targets.Completed(), "targets", len(p.Targets))

	delay := job.Universals.Duration(model.UniversalCheckerDelay, DefaultCheckerDelay)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	job.Submit(checkerJob(p))
	return nil
}
