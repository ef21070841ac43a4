package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

func TestSentinel(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := ReadSentinel(dir); ok || err != nil {
		t.Fatalf("ReadSentinel on empty dir = (%v, %v)", ok, err)
	}
	if err := WriteSentinel(dir, SentinelKilled); err != nil {
		t.Fatalf("WriteSentinel: %v", err)
	}
	token, ok, err := ReadSentinel(dir)
	if err != nil || !ok || token != SentinelKilled {
		t.Errorf("ReadSentinel = (%q, %v, %v)", token, ok, err)
	}
	if err := WriteSentinel(filepath.Join(dir, "missing"), SentinelComplete); err == nil {
		t.Error("WriteSentinel into a missing directory succeeded")
	}
}

// Three targets, two sentinels: the checker waits out checker_delay and
// re-submits itself with the updated map; once the third sentinel appears
// it submits the Finisher.
func TestAssemblyChecker_Converges(t *testing.T) {
	root := t.TempDir()
	t1, t2, t3 := filepath.Join(root, "t1"), filepath.Join(root, "t2"), filepath.Join(root, "t3")
	for _, d := range []string{t1, t2, t3} {
		os.MkdirAll(d, 0755)
	}
	WriteSentinel(t1, SentinelComplete)
	WriteSentinel(t2, SentinelFailed)

	p := &model.Params{Sample: "s1", Targets: model.NewTargetMap(t1, t2, t3)}
	const delay = 60 * time.Millisecond
	universals := map[string]any{model.UniversalCheckerDelay: delay}

	checker := &AssemblyChecker{}
	job, pair := newJob(t, checkerJob(p), universals)
	start := time.Now()
	if err := checker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("re-submitted after %v, want at least checker_delay %v", elapsed, delay)
	}

	envs := submitted(pair)
	if len(envs) != 1 || envs[0].Runner != model.RunnerAssemblyChecker {
		t.Fatalf("submitted %+v, want one assembly_checker", envs)
	}
	got := envs[0].Params.Targets
	if !got[t1] || !got[t2] || got[t3] {
		t.Errorf("targets = %v, want t1,t2 true and t3 false", got)
	}
	if p.Targets[t1] {
		t.Error("checker mutated the caller's target map")
	}

	WriteSentinel(t3, SentinelKilled)
	job, pair = newJob(t, envs[0], universals)
	if err := checker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	envs = submitted(pair)
	if len(envs) != 1 || envs[0].Runner != model.RunnerFinisher {
		t.Fatalf("submitted %+v, want one finisher", envs)
	}
	if !envs[0].Params.Targets.Complete() {
		t.Errorf("finisher targets = %v, want all true", envs[0].Params.Targets)
	}
}

func TestAssemblyChecker_ConvergedIsImmediate(t *testing.T) {
	root := t.TempDir()
	p := &model.Params{Sample: "s1", Targets: model.NewTargetMap(filepath.Join(root, "t1"))}
	p.Targets.Mark(filepath.Join(root, "t1"))

	// A long delay proves the converged path never waits.
	job, pair := newJob(t, checkerJob(p), map[string]any{model.UniversalCheckerDelay: time.Hour})

	for i := 0; i < 2; i++ {
		start := time.Now()
		if err := (&AssemblyChecker{}).Execute(context.Background(), job); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("converged checker waited")
		}
		envs := submitted(pair)
		if len(envs) != 1 || envs[0].Runner != model.RunnerFinisher {
			t.Fatalf("run %d submitted %+v, want one finisher", i, envs)
		}
	}
}

func TestAssemblyChecker_EmptyMapFinishes(t *testing.T) {
	job, pair := newJob(t, checkerJob(&model.Params{Sample: "s1", Targets: model.NewTargetMap()}), nil)
	if err := (&AssemblyChecker{}).Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	envs := submitted(pair)
	if len(envs) != 1 || envs[0].Runner != model.RunnerFinisher {
		t.Fatalf("submitted %+v, want one finisher", envs)
	}
}

func TestAssemblyChecker_CancelDuringDelay(t *testing.T) {
	root := t.TempDir()
	p := &model.Params{Sample: "s1", Targets: model.NewTargetMap(filepath.Join(root, "t1"))}
	job, pair := newJob(t, checkerJob(p), map[string]any{model.UniversalCheckerDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := (&AssemblyChecker{}).Execute(ctx, job)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute = %v, want context deadline", err)
	}
	if n := pair.Jobs.Len(); n != 0 {
		t.Errorf("cancelled checker submitted %d envelopes", n)
	}
}

func TestAssemblyChecker_StatErrorIsFatal(t *testing.T) {
	root := t.TempDir()
	notDir := filepath.Join(root, "plain-file")
	writeFile(t, notDir, "x")

	p := &model.Params{Sample: "s1", Targets: model.NewTargetMap(notDir)}
	job, _ := newJob(t, checkerJob(p), nil)
	err := (&AssemblyChecker{}).Execute(context.Background(), job)
	if status, ok := runner.StatusOf(err); !ok || status != model.StatusFatal {
		t.Fatalf("Execute = %v, want FATAL", err)
	}
}
