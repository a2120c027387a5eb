package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// fakeRunner records commands and runs a per-test script instead of a
// real binary.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	run   func(ctx context.Context, cmd Command) (Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.run == nil {
		return Result{}, nil
	}
	return f.run(ctx, cmd)
}

func (f *fakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func writeFile(path, body string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

var errExit1 = errors.New("exited with code 1")
