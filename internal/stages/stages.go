// Package stages implements the pipeline runners: Mapper, Assembler,
// AssemblyChecker and Finisher.
//
// Stages hand state to one another only through envelopes on the job queue
// and sentinel files in the target directories.
package stages

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

// SentinelName is the file whose presence marks a target as finished.
const SentinelName = "finished"

// Sentinel tokens written into SentinelName.
const (
	SentinelComplete        = "assembly_complete"
	SentinelFailed          = "assembly_failed"
	SentinelKilled          = "assembly_killed"
	SentinelMapAgainstReads = "map_against_reads"
)

// DefaultCheckerDelay is used when the checker_delay universal is unset.
const DefaultCheckerDelay = 5 * time.Second

// Register adds every stage runner to reg.
func Register(reg *runner.Registry) {
	reg.Register(&Mapper{})
	reg.Register(&Assembler{})
	reg.Register(&AssemblyChecker{})
	reg.Register(&Finisher{})
}

// MapperJob builds the seed envelope for one sample.
func MapperJob(p *model.Params) model.Envelope {
	return model.NewEnvelope(model.RunnerMapper, p, "Starting mapper for sample %s", p.Sample)
}

func assemblerJob(p *model.Params) model.Envelope {
	return model.NewEnvelope(model.RunnerAssembler, p,
		"Starting assembly for sample %s target %s (attempt %d)", p.Sample, p.Target, p.Attempt+1)
}

func checkerJob(p *model.Params) model.Envelope {
	return model.NewEnvelope(model.RunnerAssemblyChecker, p,
		"Checking assemblies for sample %s: %d of %d targets finished", p.Sample, p.Targets.Completed(), len(p.Targets))
}

func finisherJob(p *model.Params) model.Envelope {
	return model.NewEnvelope(model.RunnerFinisher, p, "Starting finisher for sample %s", p.Sample)
}

// WriteSentinel marks dir as finished with token.
func WriteSentinel(dir, token string) error {
	if err := os.WriteFile(filepath.Join(dir, SentinelName), []byte(token), 0644); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	return nil
}

// ReadSentinel returns the token in dir's sentinel. ok is false when the
// sentinel does not exist yet.
func ReadSentinel(dir string) (token string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, SentinelName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read sentinel: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// sentinelExists reports whether dir has a sentinel. Errors other than
// not-exist are returned.
func sentinelExists(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, SentinelName))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// requireFiles fails FATAL unless every named path is set and exists.
func requireFiles(files ...string) error {
	for i := 0; i+1 < len(files); i += 2 {
		what, path := files[i], files[i+1]
		if path == "" {
			return runner.Fatalf("missing %s", what)
		}
		if _, err := os.Stat(path); err != nil {
			return runner.Fatalf("%s %s: %w", what, path, err)
		}
	}
	return nil
}

// toolLog returns the log file for tool output, or "" to discard it.
func toolLog(verbose bool, dir, name string) string {
	if !verbose {
		return ""
	}
	return filepath.Join(dir, name)
}
