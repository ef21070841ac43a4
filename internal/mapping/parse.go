package mapping

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLine bounds a single line of aligner output or read data.
const maxLine = 16 * 1024 * 1024

// ParseSAM builds a ReadMap from SAM alignments. Header lines and unmapped
// reads (RNAME "*") are skipped. Hits are keyed by TargetOf(RNAME).
func ParseSAM(r io.Reader) (ReadMap, error) {
	m := make(ReadMap)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || text[0] == '@' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("sam line %d: expected at least 3 fields, got %d", line, len(fields))
		}
		if fields[2] == "*" {
			continue
		}
		m.Add(TargetOf(fields[2]), fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sam: %w", err)
	}
	return m, nil
}

// ParsePSL builds a ReadMap from blat PSL output. The 5-line psLayout
// header is skipped when present; qName is column 10 and tName column 14.
func ParsePSL(r io.Reader) (ReadMap, error) {
	m := make(ReadMap)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	header := false
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if line == 1 && strings.HasPrefix(text, "psLayout") {
			header = true
		}
		if header && line <= 5 {
			continue
		}
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 14 {
			return nil, fmt.Errorf("psl line %d: expected at least 14 fields, got %d", line, len(fields))
		}
		m.Add(TargetOf(fields[13]), fields[9])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read psl: %w", err)
	}
	return m, nil
}
