package stages

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/me/arc/internal/runner"
	"github.com/me/arc/internal/toolexec"
	"github.com/me/arc/pkg/model"
)

// Assembler assembles the reads of one target and always leaves a sentinel
// behind unless it asks for a retry.
type Assembler struct{}

func (*Assembler) Kind() model.RunnerKind { return model.RunnerAssembler }

func (a *Assembler) Execute(ctx context.Context, job *runner.Job) error {
	p := job.Params
	if p.Assembler == "" {
		return runner.Fatalf("assembler not defined in params")
	}
	if p.TargetDir == "" {
		return runner.Fatalf("assembler: missing target_dir")
	}
	pe := p.AssemblyPE1 != "" && p.AssemblyPE2 != ""
	if !pe && p.AssemblySE == "" {
		return runner.Fatalf("assembler: target %s has no reads to assemble", p.Target)
	}
	if pe {
		if err := requireFiles("assembly PE1", p.AssemblyPE1, "assembly PE2", p.AssemblyPE2); err != nil {
			return err
		}
	}
	if p.AssemblySE != "" {
		if err := requireFiles("assembly SE", p.AssemblySE); err != nil {
			return err
		}
	}

	log := job.Logger.With("sample", p.Sample, "target", p.Target, "assembler", p.Assembler)

	if p.MapAgainstReads && p.Iteration == 1 {
		log.Info("mapping against reads, skipping assembly")
		return sentinel(p.TargetDir, SentinelMapAgainstReads)
	}

	var cmds []toolexec.Command
	switch p.Assembler {
	case "newbler":
		cmds = newblerCommands(p, job.Universals.Int(model.UniversalThreads, 1))
	case "spades":
		cmds = spadesCommands(p, job.Universals.Int(model.UniversalThreads, 1))
	default:
		return runner.Fatalf("assembler %q isn't recognized", p.Assembler)
	}

	log.Info("running assembly", "attempt", p.Attempt+1)
	var elapsed, cpu time.Duration
	for _, cmd := range cmds {
		res, err := toolexec.Run(ctx, cmd, log)
		if res != nil {
			elapsed += res.Duration
			cpu += res.Usage.CPU()
		}
		if err == nil {
			continue
		}

		var exitErr *toolexec.ExitError
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, exec.ErrNotFound):
			return runner.Fatal(err)
		case errors.Is(err, toolexec.ErrTimeout):
			log.Warn("assembly killed", "timeout", p.AssemblyTimeout)
			if serr := sentinel(p.TargetDir, SentinelKilled); serr != nil {
				return serr
			}
			return runner.Timeout(err)
		case errors.As(err, &exitErr):
			if p.Attempt+1 < p.MaxAttempts {
				retry := p.Clone()
				retry.Attempt++
				job.Submit(assemblerJob(retry))
				log.Warn("assembly failed, retrying", "attempt", p.Attempt+1, "max_attempts", p.MaxAttempts, "error", err)
				return runner.Rerun(err)
			}
			log.Warn("assembly failed", "attempt", p.Attempt+1, "error", err)
			return sentinel(p.TargetDir, SentinelFailed)
		default:
			return runner.Fatal(err)
		}
	}

	log.Info("assembly finished", "iteration", p.Iteration,
		"seconds", int(elapsed.Seconds()), "cpu_seconds", int(cpu.Seconds()))
	return sentinel(p.TargetDir, SentinelComplete)
}

// sentinel writes token and turns a failure into FATAL.
func sentinel(dir, token string) error {
	if err := WriteSentinel(dir, token); err != nil {
		return runner.Fatal(err)
	}
	return nil
}

func newblerCommands(p *model.Params, threads int) []toolexec.Command {
	project := filepath.Join(p.TargetDir, "assembly")
	logPath := toolLog(p.Verbose, p.TargetDir, "assembly.log")
	cmd := func(args ...string) toolexec.Command {
		return toolexec.Command{Args: args, Dir: p.TargetDir, LogPath: logPath}
	}

	cmds := []toolexec.Command{cmd("newAssembly", "-force", project)}
	if p.AssemblyPE1 != "" && p.AssemblyPE2 != "" {
		cmds = append(cmds, cmd("addRun", project, p.AssemblyPE1), cmd("addRun", project, p.AssemblyPE2))
	}
	if p.AssemblySE != "" {
		cmds = append(cmds, cmd("addRun", project, p.AssemblySE))
	}

	args := []string{"runProject", "-nobig", "-cpu", strconv.Itoa(threads)}
	if p.URT && p.Iteration < p.NumCycles {
		args = append(args, "-urt")
	}
	run := cmd(append(args, project)...)
	run.Timeout = p.AssemblyTimeout
	return append(cmds, run)
}

func spadesCommands(p *model.Params, threads int) []toolexec.Command {
	args := []string{"spades.py", "-t", strconv.Itoa(threads)}
	if p.Format == "fasta" {
		args = append(args, "--only-assembler")
	}
	if p.AssemblyPE1 != "" && p.AssemblyPE2 != "" {
		args = append(args, "-1", p.AssemblyPE1, "-2", p.AssemblyPE2)
	}
	if p.AssemblySE != "" {
		args = append(args, "-s", p.AssemblySE)
	}
	args = append(args, "-o", filepath.Join(p.TargetDir, "assembly"))
	return []toolexec.Command{{
		Args:    args,
		Dir:     p.TargetDir,
		LogPath: toolLog(p.Verbose, p.TargetDir, "assembly.log"),
		Timeout: p.AssemblyTimeout,
	}}
}
