package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/arc/pkg/model"
)

const sampleConfig = `
workers: 4
mapper: blat
assembler: newbler
format: fasta
reference: ref/targets.fasta
workdir: work
finished_dir: /data/finished
fastmap: true
urt: true
numcycles: 3
assembly_timeout: 45m
assembly_attempts: 3
threads: 8
checker_delay: 2
retire_after: 50
poll_interval: 250ms
idle_backoff: 3s
shutdown_timeout: 20s
samples:
  s2:
    se: reads/s2.fasta
  s1:
    pe1: reads/s1_1.fasta
    pe2: reads/s1_2.fasta
    working_dir: /scratch/s1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arc.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 || cfg.Mapper != "blat" || cfg.Assembler != "newbler" || cfg.Format != "fasta" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Reference != filepath.Join(dir, "ref/targets.fasta") {
		t.Errorf("reference = %q, want resolved against config dir", cfg.Reference)
	}
	if cfg.FinishedDir != "/data/finished" {
		t.Errorf("finished_dir = %q, absolute path must be kept", cfg.FinishedDir)
	}
	if cfg.AssemblyTimeout.Std() != 45*time.Minute {
		t.Errorf("assembly_timeout = %v", cfg.AssemblyTimeout.Std())
	}
	if cfg.CheckerDelay.Std() != 2*time.Second {
		t.Errorf("checker_delay = %v, want bare number read as seconds", cfg.CheckerDelay.Std())
	}
	if cfg.Path != path {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "reference: ref.fa\nsamples:\n  s1:\n    se: r.fq\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultRunConfig()
	if cfg.Workers != def.Workers || cfg.Mapper != "bowtie2" || cfg.Assembler != "spades" || cfg.Format != "fastq" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.CheckerDelay != def.CheckerDelay || cfg.AssemblyAttempts != 2 {
		t.Errorf("checker_delay = %v, attempts = %d", cfg.CheckerDelay.Std(), cfg.AssemblyAttempts)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
	if _, err := Load(writeConfig(t, "workers: [1, 2]\n")); err == nil {
		t.Error("malformed YAML accepted")
	}
	if _, err := Load(writeConfig(t, "checker_delay: soon\n")); err == nil {
		t.Error("bad duration accepted")
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Workers = 0
	cfg.Mapper = "bwa"
	cfg.Format = "bam"
	cfg.Threads = 0
	cfg.CheckerDelay = Duration(-time.Second)
	cfg.Samples = map[string]Sample{
		"half": {PE1: "r1.fq"},
		"none": {},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"workers must be at least 1",
		"mapper must be bowtie2 or blat",
		"format must be fasta or fastq",
		"reference is required",
		"threads must be at least 1",
		"checker_delay must not be negative",
		"sample half: pe1 and pe2 must be given together",
		"sample none: no reads",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_NoSamples(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Reference = "ref.fa"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "at least one sample") {
		t.Errorf("Validate = %v", err)
	}
}

func TestSampleParams(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	params := cfg.SampleParams()
	if len(params) != 2 {
		t.Fatalf("len = %d, want 2", len(params))
	}
	s1, s2 := params[0], params[1]
	if s1.Sample != "s1" || s2.Sample != "s2" {
		t.Fatalf("order = %s, %s", s1.Sample, s2.Sample)
	}
	if s1.WorkingDir != "/scratch/s1" {
		t.Errorf("s1 working dir = %q", s1.WorkingDir)
	}
	if s2.WorkingDir != filepath.Join(cfg.WorkDir, "working_s2") {
		t.Errorf("s2 working dir = %q", s2.WorkingDir)
	}
	if s2.FinishedDir != "/data/finished/finished_s2" {
		t.Errorf("s2 finished dir = %q", s2.FinishedDir)
	}
	if !s1.HasPairedReads() || s2.SE == "" || s2.HasPairedReads() {
		t.Errorf("reads: s1=%+v s2=%+v", s1, s2)
	}
	if s1.Iteration != 1 || s1.NumCycles != 3 || s1.MaxAttempts != 3 || s1.AssemblyTimeout != 45*time.Minute {
		t.Errorf("s1 params = %+v", s1)
	}
	if !s1.FastMap || !s1.URT || s1.Verbose {
		t.Errorf("s1 flags = %+v", s1)
	}
}

func TestUniversals(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	u := cfg.Universals()
	if u[model.UniversalThreads] != 8 {
		t.Errorf("threads = %v", u[model.UniversalThreads])
	}
	if u[model.UniversalCheckerDelay] != 2*time.Second {
		t.Errorf("checker_delay = %v", u[model.UniversalCheckerDelay])
	}
	if u[model.UniversalMapper] != "blat" || u[model.UniversalFormat] != "fasta" {
		t.Errorf("universals = %v", u)
	}
}

func TestSupervisorConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	sc := cfg.SupervisorConfig()
	if sc.Workers != 4 || sc.IdleBackoff != 3*time.Second || sc.ShutdownTimeout != 20*time.Second {
		t.Errorf("supervisor config = %+v", sc)
	}
	if sc.Worker.PollInterval != 250*time.Millisecond || sc.Worker.RetireAfter != 50 {
		t.Errorf("worker config = %+v", sc.Worker)
	}
	if sc.Worker.IdlePolls != 3 {
		t.Errorf("IdlePolls = %d, want default 3", sc.Worker.IdlePolls)
	}
}
