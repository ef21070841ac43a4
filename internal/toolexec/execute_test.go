package toolexec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Success(t *testing.T) {
	res, err := Run(context.Background(), Command{Args: []string{"true"}}, newTestLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	if res.StartTime.IsZero() {
		t.Error("StartTime not set")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	_, err := Run(context.Background(), Command{Args: []string{"sh", "-c", "exit 3"}}, newTestLogger())
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run error = %v, want *ExitError", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Error(), "sh -c exit 3") {
		t.Errorf("Error() = %q", exitErr.Error())
	}
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := Run(context.Background(), Command{Args: []string{"arc-no-such-tool"}}, newTestLogger())
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("Run error = %v, want exec.ErrNotFound", err)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	if _, err := Run(context.Background(), Command{}, newTestLogger()); err == nil {
		t.Fatal("Run accepted an empty command")
	}
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Command{
		Args:    []string{"sh", "-c", "sleep 10 & wait"},
		Timeout: 100 * time.Millisecond,
	}, newTestLogger())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v to take effect", elapsed)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, Command{Args: []string{"sleep", "10"}, Timeout: time.Minute}, newTestLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation reported as timeout")
	}
}

func TestRun_LogCapture(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "mapping_log.txt")

	for i := 0; i < 2; i++ {
		_, err := Run(context.Background(), Command{
			Args:    []string{"sh", "-c", "echo out; echo err >&2; pwd"},
			Dir:     dir,
			LogPath: logPath,
		}, newTestLogger())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "out\n"); got != 2 {
		t.Errorf("log has %d stdout lines, want 2 (appended):\n%s", got, data)
	}
	if !strings.Contains(string(data), "err\n") {
		t.Errorf("stderr not captured:\n%s", data)
	}
	if !strings.Contains(string(data), dir) {
		t.Errorf("command did not run in Dir:\n%s", data)
	}
}

func TestRun_Env(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "env.txt")
	_, err := Run(context.Background(), Command{
		Args:    []string{"sh", "-c", "echo $ARC_TEST_VALUE"},
		Env:     []string{"ARC_TEST_VALUE=spades"},
		LogPath: logPath,
	}, newTestLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(logPath)
	if strings.TrimSpace(string(data)) != "spades" {
		t.Errorf("env not passed, got %q", data)
	}
}

func TestRun_Usage(t *testing.T) {
	res, err := Run(context.Background(), Command{
		Args: []string{"sh", "-c", "i=0; while [ $i -lt 20000 ]; do i=$((i+1)); done"},
	}, newTestLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	u := res.Usage
	if u.MaxRSSKB <= 0 {
		t.Errorf("MaxRSSKB = %d, want > 0", u.MaxRSSKB)
	}
	if u.CPU() != u.UserTime+u.SystemTime || u.CPU() <= 0 {
		t.Errorf("CPU = %v (user %v, sys %v)", u.CPU(), u.UserTime, u.SystemTime)
	}

	if got := usageOf(nil); got != (Usage{}) {
		t.Errorf("usageOf(nil) = %+v", got)
	}
}
