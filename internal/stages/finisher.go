package stages

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/arc/internal/mapping"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

// Finisher collects the contigs of every target of a sample.
//
// While iterations remain it writes them to I<NNN>_contigs.fasta in the
// working directory and seeds a Mapper for the next iteration with that
// file as the reference. On the last iteration, or when an iteration
// yields nothing to map against, it writes
// <finished_dir>/<sample>_contigs.fasta and a per-target summary.
type Finisher struct{}

func (*Finisher) Kind() model.RunnerKind { return model.RunnerFinisher }

func (f *Finisher) Execute(ctx context.Context, job *runner.Job) error {
	p := job.Params
	if p.Sample == "" || p.FinishedDir == "" {
		return runner.Fatalf("finisher: missing sample or finished_dir")
	}
	if p.Targets == nil {
		return runner.Fatalf("finisher: sample %s has no target map", p.Sample)
	}

	if p.Iteration < p.NumCycles {
		c, err := collect(ctx, p, false)
		if err != nil {
			return err
		}
		if c.contigs > 0 {
			next := nextIteration(p, c.contigsPath)
			job.Submit(MapperJob(next))
			job.Logger.Info("iteration finished", "sample", p.Sample, "iteration", p.Iteration,
				"contigs", c.contigs, "next_reference", c.contigsPath)
			return nil
		}
		job.Logger.Warn("iteration produced no contigs, finishing early",
			"sample", p.Sample, "iteration", p.Iteration)
	}

	c, err := collect(ctx, p, true)
	if err != nil {
		return err
	}
	job.Logger.Info("sample finished", "sample", p.Sample, "iteration", p.Iteration,
		"targets", len(p.Targets), "contigs", c.contigs, "output", c.contigsPath)
	return nil
}

// nextIteration derives the Mapper params for the iteration after p. The
// reads stay the sample's own; the reference becomes the collected contigs.
func nextIteration(p *model.Params, reference string) *model.Params {
	n := p.Clone()
	n.Iteration = p.Iteration + 1
	n.Reference = reference
	n.WorkingDir = filepath.Join(iterationRoot(p), iterationName(n.Iteration))
	n.MappingDict = ""
	n.Target, n.TargetDir = "", ""
	n.AssemblyPE1, n.AssemblyPE2, n.AssemblySE = "", "", ""
	n.Attempt = 0
	n.Targets = nil
	n.TargetNames = nil
	return n
}

// iterationRoot is the sample working directory. Iterations after the first
// run in subdirectories of it so their target directories start clean.
func iterationRoot(p *model.Params) string {
	if p.Iteration > 1 {
		return filepath.Dir(p.WorkingDir)
	}
	return p.WorkingDir
}

func iterationName(i int) string {
	return fmt.Sprintf("I%03d", i)
}

type collected struct {
	contigsPath string
	contigs     int
}

// collect writes the contigs and the summary of one iteration. Final output
// goes to FinishedDir with >sample:target:name headers; intermediate output
// stays in WorkingDir with target_:_name headers.
func collect(ctx context.Context, p *model.Params, final bool) (collected, error) {
	dir, prefix := p.WorkingDir, iterationName(p.Iteration)+"_"
	if final {
		dir, prefix = p.FinishedDir, p.Sample+"_"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return collected{}, runner.Fatalf("create output directory for sample %s: %w", p.Sample, err)
	}

	c := collected{contigsPath: filepath.Join(dir, prefix+"contigs.fasta")}
	out, err := os.Create(c.contigsPath)
	if err != nil {
		return collected{}, runner.Fatal(err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	header := func(target, name string) string {
		if final {
			return fmt.Sprintf("%s:%s:%s", p.Sample, target, name)
		}
		if strings.Contains(name, mapping.TargetSeparator) {
			return name
		}
		return target + mapping.TargetSeparator + name
	}

	var previous map[string][]sequence
	var summary strings.Builder
	summary.WriteString("target\ttarget_dir\tstatus\tcontigs\n")

	for _, tdir := range p.Targets.Dirs() {
		if err := ctx.Err(); err != nil {
			return collected{}, err
		}
		target := p.TargetName(tdir)
		token, ok, err := ReadSentinel(tdir)
		if err != nil {
			return collected{}, runner.Fatal(err)
		}
		if !ok {
			token = "missing"
		}

		n := 0
		switch {
		case token == SentinelComplete:
			n, err = copyContigs(w, contigsFile(p.Assembler, tdir), func(name string) string {
				return header(target, name)
			})
		case token == SentinelMapAgainstReads:
			n, err = copyReads(w, tdir, readExt(p.Format), func(name string) string {
				return header(target, name)
			})
		case !final:
			// Keep what the current reference knew about a target whose
			// assembly did not complete.
			if previous == nil {
				previous, err = referenceByTarget(p.Reference)
				if err != nil {
					return collected{}, runner.Fatalf("read reference for sample %s: %w", p.Sample, err)
				}
			}
			for _, s := range previous[target] {
				writeFASTA(w, header(target, s.name), s.seq)
				n++
			}
		}
		if err != nil {
			return collected{}, runner.Fatalf("collect contigs for target %s: %w", target, err)
		}
		c.contigs += n
		fmt.Fprintf(&summary, "%s\t%s\t%s\t%d\n", target, tdir, token, n)
	}

	if err := w.Flush(); err != nil {
		return collected{}, runner.Fatal(err)
	}
	if err := out.Close(); err != nil {
		return collected{}, runner.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, prefix+"summary.tsv"), []byte(summary.String()), 0644); err != nil {
		return collected{}, runner.Fatal(err)
	}
	return c, nil
}

func contigsFile(assembler, dir string) string {
	if assembler == "newbler" {
		return filepath.Join(dir, "assembly", "454AllContigs.fna")
	}
	return filepath.Join(dir, "assembly", "contigs.fasta")
}

// copyContigs appends the FASTA records of path to w with each header
// replaced by rename(contig name). A missing contigs file yields zero contigs.
func copyContigs(w *bufio.Writer, path string, rename func(string) string) (int, error) {
	in, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer in.Close()

	n := 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			contig := strings.Fields(line[1:])
			name := fmt.Sprintf("contig%d", n+1)
			if len(contig) > 0 {
				name = contig[0]
			}
			fmt.Fprintf(w, ">%s\n", rename(name))
			n++
			continue
		}
		w.WriteString(line)
		w.WriteByte('\n')
	}
	return n, sc.Err()
}

// copyReads writes the reads split into a target directory as FASTA
// contigs, used for targets that mapped against reads instead of
// assembling.
func copyReads(w *bufio.Writer, dir, ext string, rename func(string) string) (int, error) {
	n := 0
	for _, name := range []string{"PE1.", "PE2.", "SE."} {
		err := mapping.EachSequence(filepath.Join(dir, name+ext), func(read, seq string) error {
			writeFASTA(w, rename(read), seq)
			n++
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

type sequence struct {
	name, seq string
}

func referenceByTarget(path string) (map[string][]sequence, error) {
	out := make(map[string][]sequence)
	err := mapping.EachSequence(path, func(name, seq string) error {
		t := mapping.TargetOf(name)
		out[t] = append(out[t], sequence{name: name, seq: seq})
		return nil
	})
	return out, err
}

func writeFASTA(w *bufio.Writer, header, seq string) {
	w.WriteByte('>')
	w.WriteString(header)
	w.WriteByte('\n')
	w.WriteString(seq)
	w.WriteByte('\n')
}
