// Package toolexec runs the external bioinformatics tools used by the stage
// runners (bowtie2, blat, newbler, spades) as subprocesses.
package toolexec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout is wrapped by Run when a command exceeds its time budget.
var ErrTimeout = errors.New("time budget exceeded")

// Command describes one tool invocation.
type Command struct {
	// Args is the program followed by its arguments.
	Args []string

	// Dir is the working directory; empty means the current directory.
	Dir string

	// LogPath receives stdout and stderr, appended. Empty discards output.
	LogPath string

	// Timeout bounds the run. Zero means no limit beyond the caller's context.
	Timeout time.Duration

	// Env is appended to the inherited environment.
	Env []string
}

// String returns the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result holds the outcome of a finished command.
type Result struct {
	ExitCode  int
	StartTime time.Time
	Duration  time.Duration
	Usage     Usage
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
