package toolexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Run executes cmd and waits for it. Terminating ctx or exceeding
// cmd.Timeout kills the whole process group.
//
// Errors: a missing binary wraps exec.ErrNotFound, a timeout wraps
// ErrTimeout, a non-zero exit is an *ExitError, and cancellation of ctx
// wraps ctx.Err().
func Run(ctx context.Context, cmd Command, logger *slog.Logger) (*Result, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}
	if _, err := exec.LookPath(cmd.Args[0]); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Args[0], err)
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	// Tools fork helpers (spades.py, runProject); kill the whole group.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
	c.WaitDelay = 5 * time.Second

	if cmd.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cmd.LogPath), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		logFile, err := os.OpenFile(cmd.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open tool log %s: %w", cmd.LogPath, err)
		}
		defer logFile.Close()
		c.Stdout = logFile
		c.Stderr = logFile
	}

	logger.Debug("running tool", "command", cmd.String(), "dir", cmd.Dir, "timeout", cmd.Timeout)
	startTime := time.Now()
	err := c.Run()
	res := &Result{
		ExitCode:  -1,
		StartTime: startTime,
		Duration:  time.Since(startTime),
		Usage:     usageOf(c.ProcessState),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		logger.Debug("tool finished", "command", cmd.Args[0], "duration", res.Duration.Round(time.Millisecond),
			"cpu", res.Usage.CPU().Round(time.Millisecond), "max_rss_kb", res.Usage.MaxRSSKB)
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", cmd.Args[0], ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%s: %w after %s", cmd.Args[0], ErrTimeout, cmd.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Command: cmd.String(), ExitCode: exitErr.ExitCode(), Err: err}
	}
	return res, fmt.Errorf("%s: %w", cmd.Args[0], err)
}
