package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/arc/internal/supervisor"
	"github.com/me/arc/internal/worker"
	"github.com/me/arc/pkg/model"
)

// ServerConfig holds configuration for the status server.
type ServerConfig struct {
	Addr string // Listen address (default ":8080")
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr: ":8080",
	}
}

// Duration is a time.Duration that reads from YAML as either a Go
// duration string ("90s", "2h") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string or seconds", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Sample lists the read files of one sample. Directories default to
// <workdir>/working_<name> and <finished_dir>/finished_<name>.
type Sample struct {
	PE1         string `yaml:"pe1,omitempty"`
	PE2         string `yaml:"pe2,omitempty"`
	SE          string `yaml:"se,omitempty"`
	WorkingDir  string `yaml:"working_dir,omitempty"`
	FinishedDir string `yaml:"finished_dir,omitempty"`
}

// RunConfig is the YAML run file passed to `arc run`.
type RunConfig struct {
	Workers int `yaml:"workers"`

	Mapper      string `yaml:"mapper"`
	Assembler   string `yaml:"assembler"`
	Format      string `yaml:"format"`
	Reference   string `yaml:"reference"`
	WorkDir     string `yaml:"workdir"`
	FinishedDir string `yaml:"finished_dir"`

	Verbose         bool `yaml:"verbose"`
	FastMap         bool `yaml:"fastmap"`
	MapAgainstReads bool `yaml:"map_against_reads"`
	URT             bool `yaml:"urt"`

	NumCycles        int      `yaml:"numcycles"`
	AssemblyTimeout  Duration `yaml:"assembly_timeout"`
	AssemblyAttempts int      `yaml:"assembly_attempts"`
	Threads          int      `yaml:"threads"`
	CheckerDelay     Duration `yaml:"checker_delay"`

	RetireAfter     int      `yaml:"retire_after"`
	PollInterval    Duration `yaml:"poll_interval"`
	IdleBackoff     Duration `yaml:"idle_backoff"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Samples map[string]Sample `yaml:"samples"`

	// Path is the file the config was loaded from; empty for defaults.
	Path string `yaml:"-"`
}

// DefaultRunConfig returns sensible defaults.
func DefaultRunConfig() RunConfig {
	sup := supervisor.DefaultConfig()
	return RunConfig{
		Workers:          1,
		Mapper:           "bowtie2",
		Assembler:        "spades",
		Format:           "fastq",
		WorkDir:          ".",
		FinishedDir:      ".",
		NumCycles:        1,
		AssemblyTimeout:  Duration(10 * time.Minute),
		AssemblyAttempts: 2,
		Threads:          1,
		CheckerDelay:     Duration(5 * time.Second),
		PollInterval:     Duration(sup.Worker.PollInterval),
		IdleBackoff:      Duration(sup.IdleBackoff),
		ShutdownTimeout:  Duration(sup.ShutdownTimeout),
	}
}

// Load reads a run file, applies it on top of the defaults and validates it.
// Relative paths resolve against the directory of the file.
func Load(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return cfg, fmt.Errorf("config directory: %w", err)
	}
	cfg.resolve(base)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *RunConfig) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Reference = abs(c.Reference)
	c.WorkDir = abs(c.WorkDir)
	c.FinishedDir = abs(c.FinishedDir)
	for name, s := range c.Samples {
		s.PE1, s.PE2, s.SE = abs(s.PE1), abs(s.PE2), abs(s.SE)
		s.WorkingDir, s.FinishedDir = abs(s.WorkingDir), abs(s.FinishedDir)
		c.Samples[name] = s
	}
}

// Validate reports every problem in the config at once.
func (c RunConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Workers < 1 {
		add("workers must be at least 1, got %d", c.Workers)
	}
	switch c.Mapper {
	case "bowtie2", "blat":
	default:
		add("mapper must be bowtie2 or blat, got %q", c.Mapper)
	}
	switch c.Assembler {
	case "spades", "newbler":
	default:
		add("assembler must be spades or newbler, got %q", c.Assembler)
	}
	switch c.Format {
	case "fasta", "fastq":
	default:
		add("format must be fasta or fastq, got %q", c.Format)
	}
	if c.Reference == "" {
		add("reference is required")
	}
	if c.NumCycles < 1 {
		add("numcycles must be at least 1, got %d", c.NumCycles)
	}
	if c.AssemblyAttempts < 1 {
		add("assembly_attempts must be at least 1, got %d", c.AssemblyAttempts)
	}
	if c.Threads < 1 {
		add("threads must be at least 1, got %d", c.Threads)
	}
	if c.RetireAfter < 0 {
		add("retire_after must not be negative, got %d", c.RetireAfter)
	}
	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"assembly_timeout", c.AssemblyTimeout},
		{"checker_delay", c.CheckerDelay},
		{"poll_interval", c.PollInterval},
		{"idle_backoff", c.IdleBackoff},
		{"shutdown_timeout", c.ShutdownTimeout},
	} {
		if d.val < 0 {
			add("%s must not be negative", d.name)
		}
	}

	if len(c.Samples) == 0 {
		add("at least one sample is required")
	}
	for _, name := range c.SampleNames() {
		s := c.Samples[name]
		paired := s.PE1 != "" && s.PE2 != ""
		if (s.PE1 == "") != (s.PE2 == "") {
			add("sample %s: pe1 and pe2 must be given together", name)
		}
		if !paired && s.SE == "" {
			add("sample %s: no reads (need pe1+pe2 or se)", name)
		}
	}
	return errors.Join(errs...)
}

// SampleNames returns the sample names in sorted order.
func (c RunConfig) SampleNames() []string {
	names := make([]string, 0, len(c.Samples))
	for name := range c.Samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SampleParams builds the initial mapper params of every sample, sorted by name.
func (c RunConfig) SampleParams() []*model.Params {
	var out []*model.Params
	for _, name := range c.SampleNames() {
		s := c.Samples[name]
		wd := s.WorkingDir
		if wd == "" {
			wd = filepath.Join(c.WorkDir, "working_"+name)
		}
		fd := s.FinishedDir
		if fd == "" {
			fd = filepath.Join(c.FinishedDir, "finished_"+name)
		}
		out = append(out, &model.Params{
			Sample:          name,
			WorkingDir:      wd,
			FinishedDir:     fd,
			Reference:       c.Reference,
			PE1:             s.PE1,
			PE2:             s.PE2,
			SE:              s.SE,
			Format:          c.Format,
			Mapper:          c.Mapper,
			Assembler:       c.Assembler,
			Verbose:         c.Verbose,
			FastMap:         c.FastMap,
			MapAgainstReads: c.MapAgainstReads,
			URT:             c.URT,
			Iteration:       1,
			NumCycles:       c.NumCycles,
			AssemblyTimeout: c.AssemblyTimeout.Std(),
			MaxAttempts:     c.AssemblyAttempts,
		})
	}
	return out
}

// Universals returns the run-wide values published before workers start.
func (c RunConfig) Universals() map[string]any {
	return map[string]any{
		model.UniversalThreads:         c.Threads,
		model.UniversalCheckerDelay:    c.CheckerDelay.Std(),
		model.UniversalWorkDir:         c.WorkDir,
		model.UniversalFinishedDir:     c.FinishedDir,
		model.UniversalFormat:          c.Format,
		model.UniversalMapper:          c.Mapper,
		model.UniversalAssembler:       c.Assembler,
		model.UniversalAssemblyTimeout: c.AssemblyTimeout.Std(),
	}
}

// WorkerConfig projects the worker timing knobs.
func (c RunConfig) WorkerConfig() worker.Config {
	w := worker.DefaultConfig()
	w.PollInterval = c.PollInterval.Std()
	w.IdleBackoff = c.IdleBackoff.Std()
	w.RetireAfter = c.RetireAfter
	return w
}

// SupervisorConfig projects the pool size and supervisor timing knobs.
func (c RunConfig) SupervisorConfig() supervisor.Config {
	s := supervisor.DefaultConfig()
	s.Workers = c.Workers
	s.PollInterval = c.PollInterval.Std()
	s.IdleBackoff = c.IdleBackoff.Std()
	s.ShutdownTimeout = c.ShutdownTimeout.Std()
	s.Worker = c.WorkerConfig()
	return s
}
