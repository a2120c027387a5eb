package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/config"
)

type stubExtractor struct {
	calls  int
	result *domain.ProbeResult
	errs   []error
}

func (s *stubExtractor) Probe(ctx context.Context, url string) (*domain.ProbeResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

// stubFetcher writes n files into the work dir the way yt-dlp would.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	n     int
	ext   string
	errs  []error
	block bool

	// duration of every fabricated entry, 300s when zero
	duration int64
}

func (s *stubFetcher) Fetch(ctx context.Context, spec domain.FetchSpec) ([]domain.FetchedArtifact, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	duration := s.duration
	if duration == 0 {
		duration = 300
	}

	var out []domain.FetchedArtifact
	for i := 0; i < s.n; i++ {
		id := fmt.Sprintf("vid%02d", i)
		path := filepath.Join(spec.WorkDir, id+"."+s.ext)
		if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, domain.FetchedArtifact{
			SourceID: id,
			RawPath:  path,
			Info:     domain.EntryInfo{SourceID: id, Title: "Title " + id, DurationSeconds: duration},
		})
	}
	return out, nil
}

type stubTrimmer struct {
	inputs []string
	err    error
}

func (s *stubTrimmer) Trim(ctx context.Context, path string, w domain.Window) (string, error) {
	s.inputs = append(s.inputs, path)
	if s.err != nil {
		return "", s.err
	}
	out := filepath.Join(filepath.Dir(path), "trimmed-"+filepath.Base(path))
	if err := os.WriteFile(out, []byte("cut"), 0o644); err != nil {
		return "", err
	}
	return out, os.Remove(path)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Download: config.DownloadConfig{OutDir: t.TempDir(), PlaylistLimit: 10},
		Limits:   config.LimitsConfig{MaxDuration: 18000, MaxSize: 3221225472},
		Retry:    config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, ex Extractor, fe Fetcher, tr Trimmer) *Orchestrator {
	o, err := NewOrchestrator(cfg, nil, ex, fe, tr)
	require.NoError(t, err)
	return o
}

func singleProbe(duration int64) *domain.ProbeResult {
	return &domain.ProbeResult{DurationSeconds: duration, EntryCount: 1, Entries: []domain.EntryInfo{{SourceID: "vid00"}}}
}

func playlistProbe(n int) *domain.ProbeResult {
	p := &domain.ProbeResult{EntryCount: n}
	for i := 0; i < n; i++ {
		p.Entries = append(p.Entries, domain.EntryInfo{SourceID: fmt.Sprintf("vid%02d", i)})
	}
	return p
}

var mp4Request = domain.DownloadRequest{URL: "https://youtube.com/watch?v=abc12345678", Format: domain.FormatMP4, Quality: domain.Quality720p}

func outDirFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRunSingleVideo(t *testing.T) {
	cfg := testConfig(t)
	fe := &stubFetcher{n: 1, ext: "mp4"}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(213)}, fe, &stubTrimmer{})

	var stages []domain.Stage
	outcomes, err := o.Run(context.Background(), "job-1", mp4Request, func(s domain.Stage) { stages = append(stages, s) })
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	assert.Equal(t, ".mp4", filepath.Ext(out.ArtifactReference))
	assert.Equal(t, out.Metadata.ID+".mp4", filepath.Base(out.ArtifactReference))
	assert.FileExists(t, out.ArtifactReference)
	assert.Equal(t, "5m0s", out.Metadata.Duration)
	assert.Equal(t, "1970-01-01", out.Metadata.PublishedDate)

	assert.Equal(t, []domain.Stage{
		domain.StageProbing, domain.StageValidating, domain.StageFetching, domain.StageAssembling, domain.StageDone,
	}, stages)
	assert.NoDirExists(t, filepath.Join(cfg.Download.OutDir, ".work", "job-1"))
}

func TestRunSixHundredSecondVideo(t *testing.T) {
	cfg := testConfig(t)
	fe := &stubFetcher{n: 1, ext: "mp4", duration: 600}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(600)}, fe, &stubTrimmer{})

	var last domain.Stage
	outcomes, err := o.Run(context.Background(), "job-1", mp4Request, func(s domain.Stage) { last = s })
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "10m0s", outcomes[0].Metadata.Duration)
	assert.Equal(t, domain.StageDone, last)
}

func TestRunZeroDurationReachesFetch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Limits.MaxDuration = 1
	fe := &stubFetcher{n: 1, ext: "mp4"}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(0)}, fe, nil)

	outcomes, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, 1, fe.calls)
}

func TestRunEmptyProbeFails(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.ProbeResult
	}{
		{"no entries", &domain.ProbeResult{}},
		{"nil result", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			fe := &stubFetcher{n: 1, ext: "mp4"}
			o := newTestOrchestrator(t, cfg, &stubExtractor{result: tt.result}, fe, nil)

			var last domain.Stage
			_, err := o.Run(context.Background(), "job-1", mp4Request, func(s domain.Stage) { last = s })

			var ee *domain.ExtractionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "no entries found", ee.Reason)
			assert.Zero(t, fe.calls)
			assert.Equal(t, domain.StageFailed, last)
			assert.Empty(t, outDirFiles(t, cfg.Download.OutDir))
		})
	}
}

func TestRunDurationExceededSkipsFetch(t *testing.T) {
	cfg := testConfig(t)
	fe := &stubFetcher{n: 1, ext: "mp4"}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(20000)}, fe, &stubTrimmer{})

	_, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	require.ErrorIs(t, err, domain.ErrDurationExceeded)

	var lv *domain.LimitViolation
	require.ErrorAs(t, err, &lv)
	assert.Equal(t, int64(20000), lv.Got)
	assert.Equal(t, int64(18000), lv.Max)
	assert.Zero(t, fe.calls)
	assert.Empty(t, outDirFiles(t, cfg.Download.OutDir))
}

func TestRunSizeExceeded(t *testing.T) {
	cfg := testConfig(t)
	probe := singleProbe(60)
	probe.SizeBytes = cfg.Limits.MaxSize + 1
	fe := &stubFetcher{n: 1, ext: "mp4"}

	_, err := newTestOrchestrator(t, cfg, &stubExtractor{result: probe}, fe, nil).Run(context.Background(), "job-1", mp4Request, nil)
	assert.ErrorIs(t, err, domain.ErrSizeExceeded)
	assert.Zero(t, fe.calls)
}

func TestRunAudioAcceptsAnyQuality(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(60)}, &stubFetcher{n: 1, ext: "mp3"}, nil)

	req := domain.DownloadRequest{URL: mp4Request.URL, Format: domain.FormatMP3, Quality: "not-a-quality"}
	outcomes, err := o.Run(context.Background(), "job-1", req, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, ".mp3", filepath.Ext(outcomes[0].ArtifactReference))
}

func TestRunInvalidQualityFailsBeforeProbe(t *testing.T) {
	ex := &stubExtractor{result: singleProbe(60)}
	o := newTestOrchestrator(t, testConfig(t), ex, &stubFetcher{}, nil)

	req := mp4Request
	req.Quality = "999p"
	_, err := o.Run(context.Background(), "job-1", req, nil)

	var iq *domain.InvalidQualityError
	require.ErrorAs(t, err, &iq)
	assert.Zero(t, ex.calls)
}

func TestRunTrimsEveryArtifact(t *testing.T) {
	cfg := testConfig(t)
	tr := &stubTrimmer{}
	probe := playlistProbe(3)
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: probe}, &stubFetcher{n: 3, ext: "webm"}, tr)

	req := domain.DownloadRequest{URL: mp4Request.URL, Format: domain.FormatWebM, Quality: domain.Quality480p, StartTime: "00:00:10", EndTime: "00:00:40"}
	outcomes, err := o.Run(context.Background(), "job-1", req, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	require.Len(t, tr.inputs, 3)

	for _, raw := range tr.inputs {
		assert.NoFileExists(t, raw)
	}
	for _, out := range outcomes {
		data, err := os.ReadFile(out.ArtifactReference)
		require.NoError(t, err)
		assert.Equal(t, "cut", string(data))
		assert.Equal(t, "0m30s", out.Metadata.Duration)
	}
}

func TestRunTrimFailureLeavesNoArtifacts(t *testing.T) {
	cfg := testConfig(t)
	tr := &stubTrimmer{err: &domain.TrimError{Reason: "bad window"}}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(60)}, &stubFetcher{n: 2, ext: "mp4"}, tr)

	req := mp4Request
	req.StartTime, req.EndTime = "00:00:01", "00:00:02"
	_, err := o.Run(context.Background(), "job-1", req, nil)

	var te *domain.TrimError
	require.ErrorAs(t, err, &te)
	assert.Empty(t, outDirFiles(t, cfg.Download.OutDir))
	assert.NoDirExists(t, filepath.Join(cfg.Download.OutDir, ".work", "job-1"))
}

func TestRunCapsPlaylistInOrder(t *testing.T) {
	cfg := testConfig(t)
	probe := playlistProbe(15)
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: probe}, &stubFetcher{n: 15, ext: "mp4"}, nil)

	outcomes, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 10)
	for i, out := range outcomes {
		assert.Equal(t, fmt.Sprintf("Title vid%02d", i), out.Metadata.Title)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	cfg := testConfig(t)
	ex := &stubExtractor{result: singleProbe(60), errs: []error{&domain.ExtractionError{Reason: "HTTP Error 503", Transient: true}}}
	fe := &stubFetcher{n: 1, ext: "mp4", errs: []error{&domain.FetchError{Reason: "timed out", Transient: true}}}
	o := newTestOrchestrator(t, cfg, ex, fe, nil)

	outcomes, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, 2, ex.calls)
	assert.Equal(t, 2, fe.calls)
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	ex := &stubExtractor{errs: []error{&domain.ExtractionError{Reason: "Private video"}}}
	o := newTestOrchestrator(t, testConfig(t), ex, &stubFetcher{}, nil)

	_, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	var ee *domain.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ex.calls)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	transient := &domain.FetchError{Reason: "HTTP Error 429", Transient: true}
	fe := &stubFetcher{n: 1, ext: "mp4", errs: []error{transient, transient, transient, transient}}
	o := newTestOrchestrator(t, testConfig(t), &stubExtractor{result: singleProbe(60)}, fe, nil)

	_, err := o.Run(context.Background(), "job-1", mp4Request, nil)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fe.calls)
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	fe := &stubFetcher{block: true}
	o := newTestOrchestrator(t, cfg, &stubExtractor{result: singleProbe(60)}, fe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var last domain.Stage
	_, err := o.Run(ctx, "job-1", mp4Request, func(s domain.Stage) { last = s })
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, domain.StageFailed, last)
	assert.Empty(t, outDirFiles(t, cfg.Download.OutDir))
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second}
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 4*time.Second, p.delay(3))
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("permanent")
	err := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}.Do(context.Background(), nopLog(), "op", nil, func(ctx context.Context) error {
		calls++
		return perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}
