// Package mapping turns aligner output into a target→reads dictionary and
// splits read files into per-target directories.
package mapping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// ReadMap maps a target name to the set of read ids that mapped to it.
type ReadMap map[string]map[string]struct{}

// Add records that read mapped to target. Mate suffixes are ignored.
func (m ReadMap) Add(target, read string) {
	reads, ok := m[target]
	if !ok {
		reads = make(map[string]struct{})
		m[target] = reads
	}
	reads[ReadID(read)] = struct{}{}
}

// Targets returns the target names in sorted order.
func (m ReadMap) Targets() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Reads returns the reads of target in sorted order.
func (m ReadMap) Reads(target string) []string {
	out := make([]string, 0, len(m[target]))
	for r := range m[target] {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Has reports whether read mapped to target.
func (m ReadMap) Has(target, read string) bool {
	_, ok := m[target][ReadID(read)]
	return ok
}

// ByRead inverts the map: read id → targets it mapped to (sorted).
func (m ReadMap) ByRead() map[string][]string {
	out := make(map[string][]string)
	for _, t := range m.Targets() {
		for r := range m[t] {
			out[r] = append(out[r], t)
		}
	}
	return out
}

// TargetSeparator joins a target name and a contig name in the references
// built between iterations, so hits on any contig count toward the target.
const TargetSeparator = "_:_"

// TargetOf returns the target a reference sequence belongs to.
func TargetOf(name string) string {
	if i := strings.Index(name, TargetSeparator); i >= 0 {
		return name[:i]
	}
	return name
}

// ReadID normalizes a read name: it drops a leading '@' or '>', anything
// after the first whitespace, and a trailing /1 or /2 mate suffix.
func ReadID(name string) string {
	name = strings.TrimLeft(name, "@>")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	if strings.HasSuffix(name, "/1") || strings.HasSuffix(name, "/2") {
		name = name[:len(name)-2]
	}
	return name
}

// WriteDict writes m in the interchange format, one line per target:
// target<TAB>read1,read2,...
func WriteDict(w io.Writer, m ReadMap) error {
	bw := bufio.NewWriter(w)
	for _, t := range m.Targets() {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", t, strings.Join(m.Reads(t), ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadDict parses the interchange format written by WriteDict.
func ReadDict(r io.Reader) (ReadMap, error) {
	m := make(ReadMap)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		target, reads, ok := strings.Cut(text, "\t")
		if !ok || target == "" {
			return nil, fmt.Errorf("mapping dict line %d: expected target<TAB>reads", line)
		}
		if _, exists := m[target]; !exists {
			m[target] = make(map[string]struct{})
		}
		for _, read := range strings.Split(reads, ",") {
			if read != "" {
				m.Add(target, read)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mapping dict: %w", err)
	}
	return m, nil
}

// WriteDictFile writes m to path.
func WriteDictFile(path string, m ReadMap) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mapping dict: %w", err)
	}
	if err := WriteDict(f, m); err != nil {
		f.Close()
		return fmt.Errorf("write mapping dict: %w", err)
	}
	return f.Close()
}

// ReadDictFile reads a mapping dictionary from path.
func ReadDictFile(path string) (ReadMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping dict: %w", err)
	}
	defer f.Close()
	return ReadDict(f)
}
