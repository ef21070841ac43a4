package mapping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Layout assigns every target a directory t__NNNNNN under Root.
type Layout struct {
	Root string

	dirs  map[string]string // target -> dir
	names map[string]string // dir -> target
}

// NewLayout numbers targets in the given order.
func NewLayout(root string, targets []string) *Layout {
	l := &Layout{
		Root:  root,
		dirs:  make(map[string]string, len(targets)),
		names: make(map[string]string, len(targets)),
	}
	for i, t := range targets {
		dir := filepath.Join(root, fmt.Sprintf("t__%06d", i))
		l.dirs[t] = dir
		l.names[dir] = t
	}
	return l
}

// Dir returns the directory of target, or "" if target is unknown.
func (l *Layout) Dir(target string) string {
	return l.dirs[target]
}

// Names returns a copy of the dir → target name table.
func (l *Layout) Names() map[string]string {
	out := make(map[string]string, len(l.names))
	for d, t := range l.names {
		out[d] = t
	}
	return out
}

// Create makes every target directory.
func (l *Layout) Create() error {
	for _, dir := range l.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create target directory: %w", err)
		}
	}
	return nil
}

// defaultFlushAt is the per-target buffer size that triggers a write.
const defaultFlushAt = 256 * 1024

// Splitter copies reads into the directories of the targets they mapped to.
// Output is buffered per target and appended in chunks so the number of
// open files stays at one regardless of the target count.
type Splitter struct {
	byRead  map[string][]string
	layout  *Layout
	flushAt int
}

// NewSplitter creates a splitter for m laid out by layout.
func NewSplitter(m ReadMap, layout *Layout) *Splitter {
	return &Splitter{
		byRead:  m.ByRead(),
		layout:  layout,
		flushAt: defaultFlushAt,
	}
}

// Split reads FASTA or FASTQ records from src and writes each mapped record
// to <target dir>/<name> for every target it mapped to. Every target gets
// the file, empty if none of its reads are in src. It returns the number of
// records written.
func (s *Splitter) Split(src, name string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open reads: %w", err)
	}
	defer in.Close()

	for _, dir := range s.layout.dirs {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			return 0, fmt.Errorf("create %s: %w", name, err)
		}
	}

	buffers := make(map[string]*bytes.Buffer)
	flush := func(dir string, buf *bytes.Buffer) error {
		if buf.Len() == 0 {
			return nil
		}
		if err := appendFile(filepath.Join(dir, name), buf.Bytes()); err != nil {
			return err
		}
		buf.Reset()
		return nil
	}

	written := 0
	err = readRecords(in, func(header string, record []byte) error {
		for _, target := range s.byRead[ReadID(header)] {
			dir := s.layout.Dir(target)
			if dir == "" {
				continue
			}
			buf, ok := buffers[dir]
			if !ok {
				buf = new(bytes.Buffer)
				buffers[dir] = buf
			}
			buf.Write(record)
			written++
			if buf.Len() >= s.flushAt {
				if err := flush(dir, buf); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("split %s: %w", filepath.Base(src), err)
	}
	for dir, buf := range buffers {
		if err := flush(dir, buf); err != nil {
			return written, fmt.Errorf("split %s: %w", filepath.Base(src), err)
		}
	}
	return written, nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readRecords calls fn for every FASTA or FASTQ record in r with the header
// line and the raw record bytes, newline-terminated. The format is detected
// from the first non-empty line.
func readRecords(r io.Reader, fn func(header string, record []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		record []byte
		header string
		fastq  bool
		lines  int // lines consumed of the current FASTQ record
		seen   bool
	)
	emit := func() error {
		if header == "" {
			return nil
		}
		err := fn(header, record)
		record = record[:0]
		header = ""
		return err
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !seen {
			if line == "" {
				continue
			}
			switch line[0] {
			case '@':
				fastq = true
			case '>':
			default:
				return fmt.Errorf("unrecognized read format: line starts with %q", line[0])
			}
			seen = true
		}

		if fastq {
			if lines == 0 {
				if line == "" {
					continue
				}
				if line[0] != '@' {
					return fmt.Errorf("malformed fastq record: header %q", line)
				}
				header = line
			}
			record = append(record, line...)
			record = append(record, '\n')
			lines++
			if lines == 4 {
				lines = 0
				if err := emit(); err != nil {
					return err
				}
			}
			continue
		}

		if strings.HasPrefix(line, ">") {
			if err := emit(); err != nil {
				return err
			}
			header = line
		}
		if line == "" {
			continue
		}
		record = append(record, line...)
		record = append(record, '\n')
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if fastq && lines != 0 {
		return fmt.Errorf("truncated fastq record %q", header)
	}
	return emit()
}

// EachSequence calls fn with the name and the sequence of every FASTA or
// FASTQ record in the file at path. The name is the header up to the first
// whitespace, without its '>' or '@'.
func EachSequence(path string, fn func(name, seq string) error) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	return readRecords(in, func(header string, record []byte) error {
		name := strings.TrimLeft(header, "@>")
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			name = name[:i]
		}
		lines := strings.Split(strings.TrimSuffix(string(record), "\n"), "\n")
		var seq string
		if header[0] == '@' {
			if len(lines) > 1 {
				seq = lines[1]
			}
		} else {
			seq = strings.Join(lines[1:], "")
		}
		return fn(name, seq)
	})
}
