package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/tubefetch/internal/api/controllers"
	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/auth"
	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/gate"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
)

type fakeGate struct {
	sub   *gate.Submission
	err   error
	users []string
}

func (g *fakeGate) Submit(_ context.Context, userID string, _ domain.DownloadRequest) (*gate.Submission, error) {
	g.users = append(g.users, userID)
	return g.sub, g.err
}

type recordCall struct {
	jobID, userID, url string
	n                  int
}

type fakeStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	history  map[string][]domain.HistoryEntry
	recorded []recordCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*domain.Job{}, history: map[string][]domain.HistoryEntry{}}
}

func (s *fakeStore) CountDownloads(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, nil
}
func (s *fakeStore) CreateJob(context.Context, *domain.Job) error { return nil }
func (s *fakeStore) UpdateJobStage(context.Context, string, domain.Stage) error {
	return nil
}
func (s *fakeStore) FinishJob(context.Context, string, []domain.DownloadOutcome, *domain.Failure) error {
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) RecordOutcomes(_ context.Context, jobID, userID, url string, outcomes []domain.DownloadOutcome, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		if job.Recorded {
			return false, nil
		}
		job.Recorded = true
	}
	s.recorded = append(s.recorded, recordCall{jobID: jobID, userID: userID, url: url, n: len(outcomes)})
	return true, nil
}

func (s *fakeStore) ListHistory(_ context.Context, userID string, _ int) ([]domain.HistoryEntry, error) {
	return s.history[userID], nil
}

func (s *fakeStore) Close() error { return nil }

func outcome(id string) domain.DownloadOutcome {
	return domain.DownloadOutcome{
		ArtifactReference: "/downloads/" + id + ".mp4",
		Metadata:          domain.VideoMetadata{ID: id, Title: "Title " + id, Duration: "10m0s", Views: 5, PublishedDate: "2024-01-02"},
	}
}

func newServer(t *testing.T, g *fakeGate, s *fakeStore, secret string) *echo.Echo {
	t.Helper()
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: secret, Issuer: "tubefetch", TokenTTL: time.Hour}}

	a := app.NewContext(cfg, logger.NewNop())
	a.Gate = g
	a.Store = s
	if secret != "" {
		v, err := auth.NewVerifier(cfg.Auth)
		require.NoError(t, err)
		a.Verifier = v
	}

	e := echo.New()
	RegisterRoutes(e, a)
	return e
}

func do(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, user string) string {
	t.Helper()
	iss, err := auth.NewIssuer(config.AuthConfig{JWTSecret: "s3cret", Issuer: "tubefetch", TokenTTL: time.Hour})
	require.NoError(t, err)
	tok, err := iss.Issue(user)
	require.NoError(t, err)
	return tok
}

const body = `{"url":"https://www.youtube.com/watch?v=abc12345678","format":"mp4","quality":"720p"}`

func TestHealth(t *testing.T) {
	e := newServer(t, &fakeGate{}, newFakeStore(), "")
	rec := do(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDownloadSuccessRecordsHistory(t *testing.T) {
	g := &fakeGate{sub: &gate.Submission{JobID: "job-1", Outcomes: []domain.DownloadOutcome{outcome("a")}}}
	s := newFakeStore()
	e := newServer(t, g, s, "s3cret")

	rec := do(e, http.MethodPost, "/download", body, token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp controllers.DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	require.Len(t, resp.DownloadedVideos, 1)
	assert.Equal(t, "Success", resp.DownloadedVideos[0].Status)
	assert.Equal(t, "10m0s", resp.DownloadedVideos[0].Duration)
	assert.Equal(t, "/downloads/a.mp4", resp.DownloadedVideos[0].Filepath)

	assert.Equal(t, []string{"alice"}, g.users)
	require.Len(t, s.recorded, 1)
	assert.Equal(t, recordCall{jobID: "job-1", userID: "alice", url: "https://www.youtube.com/watch?v=abc12345678", n: 1}, s.recorded[0])
}

func TestDownloadRequiresToken(t *testing.T) {
	e := newServer(t, &fakeGate{}, newFakeStore(), "s3cret")

	rec := do(e, http.MethodPost, "/download", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/download", body, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDownloadWithoutAuthUsesLocalUser(t *testing.T) {
	g := &fakeGate{sub: &gate.Submission{JobID: "job-1", Outcomes: []domain.DownloadOutcome{outcome("a")}}}
	e := newServer(t, g, newFakeStore(), "")

	rec := do(e, http.MethodPost, "/download", body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{LocalUser}, g.users)
}

func TestDownloadErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		got    int64
		max    int64
	}{
		{"quota", &domain.QuotaExceededError{Used: 100, Limit: 100}, http.StatusForbidden, "quota_exceeded", 100, 100},
		{"duration", &domain.LimitViolation{Kind: domain.LimitDuration, Got: 20000, Max: 18000}, http.StatusBadRequest, "duration_exceeded", 20000, 18000},
		{"size", &domain.LimitViolation{Kind: domain.LimitSize, Got: 4, Max: 3}, http.StatusBadRequest, "size_exceeded", 4, 3},
		{"quality", &domain.InvalidQualityError{Quality: "999p"}, http.StatusBadRequest, "invalid_quality", 0, 0},
		{"extraction", &domain.ExtractionError{Reason: "private video"}, http.StatusInternalServerError, "extraction_error", 0, 0},
		{"dispatch", &domain.DispatchError{Reason: "redis down"}, http.StatusServiceUnavailable, "dispatch_error", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStore()
			e := newServer(t, &fakeGate{err: tt.err}, s, "")

			rec := do(e, http.MethodPost, "/download", body, "")
			assert.Equal(t, tt.status, rec.Code)

			var resp controllers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.got, resp.Got)
			assert.Equal(t, tt.max, resp.Max)
			assert.Empty(t, s.recorded)
		})
	}
}

func TestDownloadTimeoutAccepted(t *testing.T) {
	e := newServer(t, &fakeGate{err: &domain.GateTimeoutError{JobID: "job-9", After: time.Hour}}, newFakeStore(), "")

	rec := do(e, http.MethodPost, "/download", body, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp controllers.AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-9", resp.JobID)
	assert.Equal(t, "/jobs/job-9", resp.StatusURL)
}

func TestJobStatusRecordsOnce(t *testing.T) {
	s := newFakeStore()
	s.jobs["job-1"] = &domain.Job{
		ID:       "job-1",
		UserID:   "alice",
		Request:  domain.DownloadRequest{URL: "https://youtu.be/abc12345678"},
		Status:   domain.StatusCompleted,
		Stage:    domain.StageDone,
		Outcomes: []domain.DownloadOutcome{outcome("a"), outcome("b")},
	}
	e := newServer(t, &fakeGate{}, s, "s3cret")
	tok := token(t, "alice")

	for range 2 {
		rec := do(e, http.MethodGet, "/jobs/job-1", "", tok)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp controllers.JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.StatusCompleted, resp.Status)
		assert.Len(t, resp.DownloadedVideos, 2)
	}
	require.Len(t, s.recorded, 1)
	assert.Equal(t, 2, s.recorded[0].n)
}

func TestJobStatusHiddenFromOtherUsers(t *testing.T) {
	s := newFakeStore()
	s.jobs["job-1"] = &domain.Job{ID: "job-1", UserID: "alice", Status: domain.StatusRunning, Stage: domain.StageFetching}
	e := newServer(t, &fakeGate{}, s, "s3cret")

	rec := do(e, http.MethodGet, "/jobs/job-1", "", token(t, "bob"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/jobs/missing", "", token(t, "alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobStatusFailed(t *testing.T) {
	s := newFakeStore()
	s.jobs["job-2"] = &domain.Job{
		ID:      "job-2",
		UserID:  LocalUser,
		Status:  domain.StatusFailed,
		Stage:   domain.StageFailed,
		Failure: &domain.Failure{Code: domain.CodeSize, Got: 4, Max: 3},
	}
	e := newServer(t, &fakeGate{}, s, "")

	rec := do(e, http.MethodGet, "/jobs/job-2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp controllers.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "size_exceeded", resp.Error.Code)
	assert.Empty(t, s.recorded)
}

func TestHistory(t *testing.T) {
	s := newFakeStore()
	s.history["alice"] = []domain.HistoryEntry{{JobID: "job-1", URL: "u", Status: "Success", VideoID: "a"}}
	e := newServer(t, &fakeGate{}, s, "s3cret")

	rec := do(e, http.MethodGet, "/history", "", token(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	rec = do(e, http.MethodGet, "/history", "", token(t, "bob"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/history?limit=abc", "", token(t, "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("alice"))
	assert.True(t, rl.allow("alice"))
	assert.False(t, rl.allow("alice"))
	assert.True(t, rl.allow("bob"))

	now = now.Add(30 * time.Second)
	assert.True(t, rl.allow("alice"))
}

func TestRateLimitMiddleware(t *testing.T) {
	g := &fakeGate{sub: &gate.Submission{JobID: "job-1", Outcomes: []domain.DownloadOutcome{outcome("a")}}}
	cfg := &config.Config{API: config.APIConfig{RequestsPerMinute: 1}}
	a := app.NewContext(cfg, logger.NewNop())
	a.Gate = g
	a.Store = newFakeStore()
	e := echo.New()
	RegisterRoutes(e, a)

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/download", body, "").Code)
	rec := do(e, http.MethodPost, "/download", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
