package stages

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/me/arc/internal/queue"
	"github.com/me/arc/internal/runner"
	"github.com/me/arc/pkg/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newJob builds a job for env whose follow-on work lands on the returned pair.
func newJob(t *testing.T, env model.Envelope, universals map[string]any) (*runner.Job, *queue.Pair) {
	t.Helper()
	pair := queue.NewPair(1)
	if universals != nil {
		if err := pair.Universals.Publish(universals); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	return runner.NewJob(env, pair, newTestLogger()), pair
}

// submitted pops every envelope placed on pair's job queue.
func submitted(pair *queue.Pair) []model.Envelope {
	var out []model.Envelope
	for {
		env, err := pair.Jobs.PopNowait()
		if err != nil {
			return out
		}
		out = append(out, env)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// installTools writes executable shell scripts into a fresh directory and
// puts it first on PATH for the duration of the test.
func installTools(t *testing.T, scripts map[string]string) {
	t.Helper()
	bin := t.TempDir()
	for name, body := range scripts {
		path := filepath.Join(bin, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// fakeSpades writes two contigs into the -o directory. FAKE_SPADES=fail
// exits 1 and FAKE_SPADES=hang never finishes.
const fakeSpades = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
case "$FAKE_SPADES" in
  fail) echo "spades failed" >&2; exit 1 ;;
  hang) exec sleep 30 ;;
esac
mkdir -p "$out"
printf '>NODE_1_length_10\nACGTACGTAC\n>NODE_2_length_4\nGGGG\n' > "$out/contigs.fasta"
`

// fakeBowtie2 maps read1 to gene1 and read2 to gene2 in the -S output.
const fakeBowtie2 = `sam=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-S" ]; then sam="$2"; fi
  shift
done
printf '@HD\tVN:1.0\n' > "$sam"
printf 'read1\t0\tgene1\t1\t42\t4M\t*\t0\t0\tACGT\tIIII\n' >> "$sam"
printf 'read2\t0\tgene2\t1\t42\t4M\t*\t0\t0\tGGGG\tIIII\n' >> "$sam"
printf 'read3\t4\t*\t0\t0\t*\t*\t0\t0\tTTTT\tIIII\n' >> "$sam"
`

// fakeBowtie2Build creates the index files next to the basename.
const fakeBowtie2Build = `for a; do base="$a"; done
touch "$base.1.bt2"
`

// fakeBlat writes a header-less PSL mapping read1 to gene1.
const fakeBlat = `for a; do out="$a"; done
printf '4\t0\t0\t0\t0\t0\t0\t0\t+\tread1\t4\t0\t4\tgene1\t100\t0\t4\t1\t4,\t0,\t0,\n' > "$out"
`

const pairedFastq1 = "@read1/1\nACGT\n+\nIIII\n@read2/1\nGGGG\n+\nIIII\n@read3/1\nTTTT\n+\nIIII\n"
const pairedFastq2 = "@read1/2\nTGCA\n+\nIIII\n@read2/2\nCCCC\n+\nIIII\n@read3/2\nAAAA\n+\nIIII\n"
