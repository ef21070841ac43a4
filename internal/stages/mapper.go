package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/me/arc/internal/mapping"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/internal/toolexec"
	"github.com/me/arc/pkg/model"
)

// Mapper aligns a sample's reads against the reference, splits the mapped
// reads into one directory per target and fans out the assemblies.
// Every failure is FATAL.
type Mapper struct{}

func (*Mapper) Kind() model.RunnerKind { return model.RunnerMapper }

func (m *Mapper) Execute(ctx context.Context, job *runner.Job) error {
	p := job.Params
	if p.Sample == "" || p.WorkingDir == "" {
		return runner.Fatalf("mapper: missing sample or working_dir")
	}
	if err := requireFiles("reference", p.Reference); err != nil {
		return err
	}
	switch {
	case p.HasPairedReads():
		if err := requireFiles("PE1", p.PE1, "PE2", p.PE2); err != nil {
			return err
		}
	case p.SE == "":
		return runner.Fatalf("mapper: sample %s has neither a PE pair nor SE reads", p.Sample)
	}
	if p.SE != "" {
		if err := requireFiles("SE", p.SE); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(p.WorkingDir, 0755); err != nil {
		return runner.Fatalf("create working directory for sample %s: %w", p.Sample, err)
	}

	log := job.Logger.With("sample", p.Sample, "mapper", p.Mapper)
	log.Info("running mapper")

	var (
		rm  mapping.ReadMap
		err error
	)
	switch p.Mapper {
	case "bowtie2":
		rm, err = m.runBowtie2(ctx, job)
	case "blat":
		rm, err = m.runBlat(ctx, job)
	default:
		return runner.Fatalf("mapper %q isn't recognized", p.Mapper)
	}
	if err != nil {
		return runner.Fatalf("mapper for sample %s: %w", p.Sample, err)
	}

	dictPath := filepath.Join(p.WorkingDir, "mapping_dict.tsv")
	if err := mapping.WriteDictFile(dictPath, rm); err != nil {
		return runner.Fatal(err)
	}
	p.MappingDict = dictPath

	targets := rm.Targets()
	layout := mapping.NewLayout(p.WorkingDir, targets)
	if err := layout.Create(); err != nil {
		return runner.Fatal(err)
	}
	ext := readExt(p.Format)
	splitter := mapping.NewSplitter(rm, layout)
	for _, in := range []struct{ src, name string }{
		{p.PE1, "PE1." + ext},
		{p.PE2, "PE2." + ext},
		{p.SE, "SE." + ext},
	} {
		if in.src == "" || (in.name != "SE."+ext && !p.HasPairedReads()) {
			continue
		}
		n, err := splitter.Split(in.src, in.name)
		if err != nil {
			return runner.Fatal(err)
		}
		log.Debug("split reads", "file", in.name, "records", n)
	}

	p.TargetNames = layout.Names()
	p.Targets = model.NewTargetMap()
	for _, t := range targets {
		dir := layout.Dir(t)
		p.Targets[dir] = false

		a := p.Clone()
		a.Target = t
		a.TargetDir = dir
		a.Attempt = 0
		a.Targets = nil
		a.TargetNames = nil
		if p.HasPairedReads() {
			a.AssemblyPE1 = filepath.Join(dir, "PE1."+ext)
			a.AssemblyPE2 = filepath.Join(dir, "PE2."+ext)
		}
		if p.SE != "" {
			a.AssemblySE = filepath.Join(dir, "SE."+ext)
		}
		job.Submit(assemblerJob(a))
	}
	job.Submit(checkerJob(p))

	log.Info("mapping finished", "targets", len(targets))
	return nil
}

func (m *Mapper) runBowtie2(ctx context.Context, job *runner.Job) (mapping.ReadMap, error) {
	p := job.Params
	idxDir := filepath.Join(p.WorkingDir, "idx")
	if err := os.MkdirAll(idxDir, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	defer os.RemoveAll(idxDir)

	logPath := toolLog(p.Verbose, p.WorkingDir, "mapping_log.txt")
	base := filepath.Join(idxDir, "idx")
	if _, err := toolexec.Run(ctx, toolexec.Command{
		Args:    []string{"bowtie2-build", "-f", p.Reference, base},
		Dir:     p.WorkingDir,
		LogPath: logPath,
	}, job.Logger); err != nil {
		return nil, fmt.Errorf("build bowtie2 index: %w", err)
	}

	samPath := filepath.Join(p.WorkingDir, "mapping.sam")
	args := []string{"bowtie2", "--local", "-p", strconv.Itoa(job.Universals.Int(model.UniversalThreads, 1)), "-x", base}
	if p.Format == "fasta" {
		args = append(args, "-f")
	}
	if p.HasPairedReads() {
		args = append(args, "-1", p.PE1, "-2", p.PE2)
	}
	if p.SE != "" {
		args = append(args, "-U", p.SE)
	}
	args = append(args, "-S", samPath)
	if _, err := toolexec.Run(ctx, toolexec.Command{Args: args, Dir: p.WorkingDir, LogPath: logPath}, job.Logger); err != nil {
		return nil, fmt.Errorf("bowtie2 mapping: %w", err)
	}
	defer os.Remove(samPath)

	f, err := os.Open(samPath)
	if err != nil {
		return nil, fmt.Errorf("open sam: %w", err)
	}
	defer f.Close()
	return mapping.ParseSAM(f)
}

func (m *Mapper) runBlat(ctx context.Context, job *runner.Job) (mapping.ReadMap, error) {
	p := job.Params
	var reads []string
	if p.HasPairedReads() {
		reads = append(reads, p.PE1, p.PE2)
	}
	if p.SE != "" {
		reads = append(reads, p.SE)
	}
	readsList := filepath.Join(p.WorkingDir, "reads.txt")
	if err := os.WriteFile(readsList, []byte(strings.Join(reads, "\n")+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write reads list: %w", err)
	}
	defer os.Remove(readsList)

	pslPath := filepath.Join(p.WorkingDir, "mapping.psl")
	args := []string{"blat", p.Reference, readsList}
	if p.Format == "fastq" {
		args = append(args, "-fastq")
	}
	if p.FastMap {
		args = append(args, "-fastMap")
	}
	args = append(args, pslPath)
	if _, err := toolexec.Run(ctx, toolexec.Command{
		Args:    args,
		Dir:     p.WorkingDir,
		LogPath: toolLog(p.Verbose, p.WorkingDir, "mapping_log.txt"),
	}, job.Logger); err != nil {
		return nil, fmt.Errorf("blat mapping: %w", err)
	}
	defer os.Remove(pslPath)

	f, err := os.Open(pslPath)
	if err != nil {
		return nil, fmt.Errorf("open psl: %w", err)
	}
	defer f.Close()
	return mapping.ParsePSL(f)
}

func readExt(format string) string {
	if format == "fasta" {
		return "fasta"
	}
	return "fastq"
}
