package media

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/tubefetch/internal/domain"
)

func ffmpegWrites(body string) *fakeRunner {
	return &fakeRunner{run: func(ctx context.Context, cmd Command) (Result, error) {
		return Result{}, writeFile(cmd.Args[len(cmd.Args)-1], body)
	}}
}

func TestTrimReplacesSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "abc.mp4")
	require.NoError(t, writeFile(src, "full"))

	r := ffmpegWrites("cut")
	f := NewFFmpeg("/bin/ffmpeg", 1, r, nil)

	out, err := f.Trim(context.Background(), src, domain.Window{Start: 10 * time.Second, End: 40 * time.Second})
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	assert.FileExists(t, out)
	assert.Equal(t, filepath.Dir(src), filepath.Dir(out))
	assert.Equal(t, ".mp4", filepath.Ext(out))

	args := r.Calls()[0].Args
	assert.Equal(t, "00:00:10", argValue(args, "-ss"))
	assert.Equal(t, "00:00:40", argValue(args, "-to"))
	assert.Equal(t, "copy", argValue(args, "-c"))
}

func TestTrimFailureKeepsSourceAndRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc.mp4")
	require.NoError(t, writeFile(src, "full"))

	r := &fakeRunner{run: func(ctx context.Context, cmd Command) (Result, error) {
		_ = writeFile(cmd.Args[len(cmd.Args)-1], "partial")
		return Result{Stderr: []byte("Invalid data found when processing input")}, errExit1
	}}

	_, err := NewFFmpeg("ffmpeg", 1, r, nil).Trim(context.Background(), src, domain.Window{End: time.Second})
	var te *domain.TrimError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Invalid data found when processing input", te.Reason)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc.mp4", entries[0].Name())
}

func TestTrimEmptyOutput(t *testing.T) {
	src := filepath.Join(t.TempDir(), "abc.mp3")
	require.NoError(t, writeFile(src, "full"))

	_, err := NewFFmpeg("ffmpeg", 1, ffmpegWrites(""), nil).Trim(context.Background(), src, domain.Window{End: time.Second})
	var te *domain.TrimError
	assert.ErrorAs(t, err, &te)
	assert.FileExists(t, src)
}

func TestTrimConcurrencyIsBounded(t *testing.T) {
	dir := t.TempDir()
	var running, peak atomic.Int32
	r := &fakeRunner{run: func(ctx context.Context, cmd Command) (Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return Result{}, writeFile(cmd.Args[len(cmd.Args)-1], "cut")
	}}
	f := NewFFmpeg("ffmpeg", 2, r, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		src := filepath.Join(dir, string(rune('a'+i))+".mp4")
		require.NoError(t, writeFile(src, "full"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Trim(context.Background(), src, domain.Window{End: time.Second})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
