package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/logger"
)

// FFmpeg cuts artifacts with a stream copy. At most maxConcurrent trims
// run at once across all jobs sharing the value.
type FFmpeg struct {
	path   string
	runner Runner
	sem    *semaphore.Weighted
	log    *logger.Logger
}

func NewFFmpeg(path string, maxConcurrent int, runner Runner, log *logger.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FFmpeg{
		path:   path,
		runner: runner,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		log:    log,
	}
}

// Trim writes the window of src to a new file next to it and removes
// src. On failure src is left in place and no partial output remains.
func (f *FFmpeg) Trim(ctx context.Context, src string, w domain.Window) (string, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	dst := filepath.Join(filepath.Dir(src), uuid.NewString()+filepath.Ext(src))
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-ss", w.StartClock(),
		"-to", w.EndClock(),
		"-c", "copy",
		dst,
	}

	res, err := f.runner.Run(ctx, Command{Path: f.path, Args: args, Dir: filepath.Dir(src)})
	if err != nil {
		_ = os.Remove(dst)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &domain.TrimError{Reason: reason(res, err), Err: err}
	}

	st, err := os.Stat(dst)
	if err != nil {
		return "", &domain.TrimError{Reason: "no output produced", Err: err}
	}
	if st.Size() == 0 {
		_ = os.Remove(dst)
		return "", &domain.TrimError{Reason: fmt.Sprintf("empty output for window %s-%s", w.StartClock(), w.EndClock())}
	}

	if err := os.Remove(src); err != nil {
		_ = os.Remove(dst)
		return "", &domain.TrimError{Reason: "removing untrimmed source", Err: err}
	}

	f.log.Debug("[ffmpeg] trimmed %s to %s (%s-%s)", filepath.Base(src), filepath.Base(dst), w.StartClock(), w.EndClock())
	return dst, nil
}
