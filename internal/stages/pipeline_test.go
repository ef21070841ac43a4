package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/arc/internal/queue"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/internal/supervisor"
	"github.com/me/arc/internal/worker"
	"github.com/me/arc/pkg/model"
)

// runPool pushes the samples through a real three-worker pool with fake
// tools and returns the final tally.
func runPool(t *testing.T, samples ...*model.Params) model.Tally {
	t.Helper()
	installTools(t, map[string]string{
		"bowtie2":       fakeBowtie2,
		"bowtie2-build": fakeBowtie2Build,
		"spades.py":     fakeSpades,
	})

	pair := queue.NewPair(3)
	if err := pair.Universals.Publish(map[string]any{
		model.UniversalThreads:      1,
		model.UniversalCheckerDelay: 10 * time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}
	reg := runner.NewRegistry(newTestLogger())
	Register(reg)

	cfg := supervisor.Config{
		Workers:         3,
		PollInterval:    time.Millisecond,
		IdleBackoff:     20 * time.Millisecond,
		ShutdownTimeout: time.Second,
		Worker: worker.Config{
			PollInterval: time.Millisecond,
			IdlePolls:    3,
			IdleBackoff:  5 * time.Millisecond,
		},
	}
	sup := supervisor.New(pair, reg, cfg, newTestLogger())
	for _, p := range samples {
		sup.Seed(MapperJob(p))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	tally, err := sup.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Fatal != 0 || tally.Rerun != 0 || tally.Timeout != 0 {
		t.Errorf("tally = %+v", tally)
	}
	return tally
}

// TestPipeline runs mapper → assemblers → checker → finisher for two samples.
func TestPipeline(t *testing.T) {
	var samples []*model.Params
	for _, name := range []string{"s1", "s2"} {
		p := mapperParams(t)
		p.Sample = name
		samples = append(samples, p)
	}
	tally := runPool(t, samples...)

	// Per sample: 1 mapper, 2 assemblers, at least 1 checker, 1 finisher.
	if tally.OK < 10 {
		t.Errorf("OK = %d, want at least 10", tally.OK)
	}

	for _, p := range samples {
		contigs, err := os.ReadFile(filepath.Join(p.FinishedDir, p.Sample+"_contigs.fasta"))
		if err != nil {
			t.Fatalf("sample %s: %v", p.Sample, err)
		}
		for _, want := range []string{">" + p.Sample + ":gene1:NODE_1_length_10", ">" + p.Sample + ":gene2:NODE_2_length_4"} {
			if !strings.Contains(string(contigs), want) {
				t.Errorf("sample %s contigs missing %q:\n%s", p.Sample, want, contigs)
			}
		}
		summary, err := os.ReadFile(filepath.Join(p.FinishedDir, p.Sample+"_summary.tsv"))
		if err != nil {
			t.Fatalf("sample %s summary: %v", p.Sample, err)
		}
		if n := strings.Count(string(summary), SentinelComplete); n != 2 {
			t.Errorf("sample %s summary has %d complete targets, want 2:\n%s", p.Sample, n, summary)
		}
	}
}

// With two cycles the first finisher maps the reads again against the
// contigs it collected, and only the second writes the finished output.
func TestPipeline_TwoCycles(t *testing.T) {
	p := mapperParams(t)
	p.NumCycles = 2
	tally := runPool(t, p)

	// Two rounds of 1 mapper, 2 assemblers, at least 1 checker, 1 finisher.
	if tally.OK < 10 {
		t.Errorf("OK = %d, want at least 10", tally.OK)
	}

	ref, err := os.ReadFile(filepath.Join(p.WorkingDir, "I001_contigs.fasta"))
	if err != nil {
		t.Fatalf("first iteration contigs: %v", err)
	}
	if !strings.Contains(string(ref), ">gene1_:_NODE_1_length_10\n") {
		t.Errorf("first iteration contigs:\n%s", ref)
	}
	if _, err := os.Stat(filepath.Join(p.WorkingDir, "I002", "mapping_dict.tsv")); err != nil {
		t.Errorf("second iteration did not map: %v", err)
	}

	contigs, err := os.ReadFile(filepath.Join(p.FinishedDir, "s1_contigs.fasta"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{">s1:gene1:NODE_1_length_10", ">s1:gene2:NODE_2_length_4"} {
		if !strings.Contains(string(contigs), want) {
			t.Errorf("contigs missing %q:\n%s", want, contigs)
		}
	}
}
