package model

import (
	"sort"
	"time"
)

// Params carries all state passed between pipeline stages.
// Each stage validates the fields it needs; follow-on work is built from a Clone.
type Params struct {
	Sample      string `json:"sample"`
	WorkingDir  string `json:"working_dir"`
	FinishedDir string `json:"finished_dir"`
	Reference   string `json:"reference,omitempty"`

	// Read files for the sample. Either PE1 and PE2, or SE, or all three.
	PE1 string `json:"pe1,omitempty"`
	PE2 string `json:"pe2,omitempty"`
	SE  string `json:"se,omitempty"`

	Format    string `json:"format"`    // "fasta" or "fastq"
	Mapper    string `json:"mapper"`    // "bowtie2" or "blat"
	Assembler string `json:"assembler"` // "newbler" or "spades"

	Verbose         bool `json:"verbose,omitempty"`
	FastMap         bool `json:"fastmap,omitempty"`
	MapAgainstReads bool `json:"map_against_reads,omitempty"`
	URT             bool `json:"urt,omitempty"`

	Iteration       int           `json:"iteration"`
	NumCycles       int           `json:"numcycles"`
	AssemblyTimeout time.Duration `json:"assembly_timeout,omitempty"`
	Attempt         int           `json:"attempt,omitempty"`
	MaxAttempts     int           `json:"max_attempts,omitempty"`

	// Set by the mapper.
	MappingDict string `json:"mapping_dict,omitempty"`

	// Per-target fields, set on assembler envelopes.
	Target      string `json:"target,omitempty"`
	TargetDir   string `json:"target_dir,omitempty"`
	AssemblyPE1 string `json:"assembly_pe1,omitempty"`
	AssemblyPE2 string `json:"assembly_pe2,omitempty"`
	AssemblySE  string `json:"assembly_se,omitempty"`

	// Targets tracks assembly completion per target directory.
	Targets TargetMap `json:"targets,omitempty"`
	// TargetNames maps a target directory to its reference target name.
	TargetNames map[string]string `json:"target_names,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	if p == nil {
		return &Params{}
	}
	c := *p
	c.Targets = p.Targets.Clone()
	if p.TargetNames != nil {
		c.TargetNames = make(map[string]string, len(p.TargetNames))
		for k, v := range p.TargetNames {
			c.TargetNames[k] = v
		}
	}
	return &c
}

// HasPairedReads returns true if both mates of a paired-end library are set.
func (p *Params) HasPairedReads() bool {
	return p.PE1 != "" && p.PE2 != ""
}

// TargetName returns the reference target name for dir, or dir itself when unknown.
func (p *Params) TargetName(dir string) string {
	if name, ok := p.TargetNames[dir]; ok && name != "" {
		return name
	}
	return dir
}

// TargetMap maps a target directory to whether its assembly has finished.
type TargetMap map[string]bool

// NewTargetMap returns a map with every dir marked unfinished.
func NewTargetMap(dirs ...string) TargetMap {
	m := make(TargetMap, len(dirs))
	for _, d := range dirs {
		m[d] = false
	}
	return m
}

// Clone returns an independent copy of m.
func (m TargetMap) Clone() TargetMap {
	if m == nil {
		return nil
	}
	c := make(TargetMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Mark records dir as finished. A finished target never reverts.
func (m TargetMap) Mark(dir string) {
	m[dir] = true
}

// Completed returns the number of finished targets.
func (m TargetMap) Completed() int {
	n := 0
	for _, done := range m {
		if done {
			n++
		}
	}
	return n
}

// Complete reports whether every target has finished.
func (m TargetMap) Complete() bool {
	return m.Completed() == len(m)
}

// Pending returns the unfinished target directories in sorted order.
func (m TargetMap) Pending() []string {
	var out []string
	for dir, done := range m {
		if !done {
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

// Dirs returns all target directories in sorted order.
func (m TargetMap) Dirs() []string {
	out := make([]string, 0, len(m))
	for dir := range m {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}
