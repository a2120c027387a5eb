package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return filepath.Base(c.Path) + " " + strings.Join(c.Args, " ")
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external binaries. Tests swap in a fake that writes
// the files a real binary would have produced.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec. Cancelling the context sends
// SIGINT first so yt-dlp and ffmpeg can remove their partial files.
type ExecRunner struct {
	WaitDelay time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 5 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s exited with code %d", filepath.Base(c.Path), res.ExitCode)
	}

	return res, fmt.Errorf("failed to start %s: %w", filepath.Base(c.Path), err)
}

// lastLine returns the last non-empty line of process output, which is
// where yt-dlp and ffmpeg put their error message.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func reason(res Result, err error) string {
	if l := lastLine(res.Stderr); l != "" {
		return l
	}
	return err.Error()
}
