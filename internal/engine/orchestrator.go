package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/metrics"
	"github.com/datallboy/tubefetch/internal/policy"
	"github.com/datallboy/tubefetch/internal/storage"
)

type Extractor interface {
	Probe(ctx context.Context, url string) (*domain.ProbeResult, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, spec domain.FetchSpec) ([]domain.FetchedArtifact, error)
}

type Trimmer interface {
	Trim(ctx context.Context, path string, w domain.Window) (string, error)
}

// Observer is told about every stage a run enters.
type Observer func(stage domain.Stage)

// Orchestrator runs one download request through probe, limit check,
// fetch, optional trim and assembly into final artifacts.
type Orchestrator struct {
	extractor     Extractor
	fetcher       Fetcher
	trimmer       Trimmer
	artifacts     *storage.Artifacts
	limits        policy.Limits
	retry         RetryPolicy
	playlistLimit int
	log           *logger.Logger
	newID         func() string
}

func NewOrchestrator(cfg *config.Config, log *logger.Logger, ex Extractor, fe Fetcher, tr Trimmer) (*Orchestrator, error) {
	artifacts, err := storage.New(cfg.Download.OutDir)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Orchestrator{
		extractor: ex,
		fetcher:   fe,
		trimmer:   tr,
		artifacts: artifacts,
		limits: policy.Limits{
			MaxDurationSeconds: cfg.Limits.MaxDuration,
			MaxSizeBytes:       cfg.Limits.MaxSize,
		},
		retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
		},
		playlistLimit: cfg.Download.PlaylistLimit,
		log:           log,
		newID:         uuid.NewString,
	}, nil
}

// Run executes the pipeline for jobID. Either every outcome is returned
// or none: on error no final artifact from this run is left behind and
// the work dir is always removed.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req domain.DownloadRequest, observe Observer) ([]domain.DownloadOutcome, error) {
	if observe == nil {
		observe = func(domain.Stage) {}
	}
	log := o.log.With("job", jobID)

	outcomes, err := o.run(ctx, log, jobID, req, observe)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		observe(domain.StageFailed)
		log.Error("Download failed: %v", err)
		return nil, err
	}

	observe(domain.StageDone)
	log.Info("Download complete: %d artifact(s)", len(outcomes))
	return outcomes, nil
}

func (o *Orchestrator) run(ctx context.Context, log *logger.Logger, jobID string, req domain.DownloadRequest, observe Observer) ([]domain.DownloadOutcome, error) {
	req.Normalize()
	if _, err := domain.ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	window, trim, err := req.Window()
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuality(req.Format, req.Quality); err != nil {
		return nil, err
	}

	ws, err := o.artifacts.Workspace(jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Failed to remove work dir %s: %v", ws.Dir, err)
		}
	}()

	// Probing
	var probe *domain.ProbeResult
	err = o.stage(ctx, log, domain.StageProbing, observe, func() error {
		return o.retry.Do(ctx, log, "probe", nil, func(ctx context.Context) error {
			var err error
			probe, err = o.extractor.Probe(ctx, req.URL)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if probe == nil || len(probe.Entries) == 0 {
		return nil, &domain.ExtractionError{Reason: "no entries found"}
	}

	// Validating
	err = o.stage(ctx, log, domain.StageValidating, observe, func() error {
		return o.limits.Check(probe.DurationSeconds, probe.SizeBytes)
	})
	if err != nil {
		return nil, err
	}

	// Fetching
	var fetched []domain.FetchedArtifact
	err = o.stage(ctx, log, domain.StageFetching, observe, func() error {
		return o.retry.Do(ctx, log, "fetch", ws.Reset, func(ctx context.Context) error {
			var err error
			fetched, err = o.fetcher.Fetch(ctx, domain.FetchSpec{
				URL:     req.URL,
				Format:  req.Format,
				Quality: req.Quality,
				WorkDir: ws.Dir,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, &domain.FetchError{Reason: "no media downloaded"}
	}
	if o.playlistLimit > 0 && len(fetched) > o.playlistLimit {
		fetched = fetched[:o.playlistLimit]
	}

	// Trimming
	if trim {
		err = o.stage(ctx, log, domain.StageTrimming, observe, func() error {
			for i := range fetched {
				if err := ctx.Err(); err != nil {
					return err
				}
				out, err := o.trimmer.Trim(ctx, fetched[i].RawPath, window)
				if err != nil {
					return err
				}
				fetched[i].RawPath = out
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Assembling
	var outcomes []domain.DownloadOutcome
	err = o.stage(ctx, log, domain.StageAssembling, observe, func() error {
		var err error
		outcomes, err = o.assemble(req.Format, fetched, window, trim)
		return err
	})
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

// stage checks for cancellation, reports the stage and times fn.
func (o *Orchestrator) stage(ctx context.Context, log *logger.Logger, stage domain.Stage, observe Observer, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	observe(stage)
	log.Debug("Entering stage %s", stage)

	start := time.Now()
	err := fn()
	metrics.RecordStage(string(stage), time.Since(start).Seconds())
	return err
}

// assemble moves every artifact to its final name. If any move fails
// the ones already promoted are removed again.
func (o *Orchestrator) assemble(format domain.Format, fetched []domain.FetchedArtifact, window domain.Window, trimmed bool) ([]domain.DownloadOutcome, error) {
	outcomes := make([]domain.DownloadOutcome, 0, len(fetched))
	promoted := make([]string, 0, len(fetched))

	for _, a := range fetched {
		id := o.newID()
		final := o.artifacts.FinalPath(id, format.Extension())

		if err := storage.Promote(a.RawPath, final); err != nil {
			for _, p := range promoted {
				_ = os.Remove(p)
			}
			return nil, fmt.Errorf("failed to finalize %s: %w", a.SourceID, err)
		}
		promoted = append(promoted, final)

		duration := a.Info.DurationSeconds
		if trimmed {
			clip := int64(window.Length() / time.Second)
			if duration <= 0 || clip < duration {
				duration = clip
			}
		}

		outcomes = append(outcomes, domain.DownloadOutcome{
			ArtifactReference: final,
			Metadata:          domain.NewVideoMetadata(id, a.Info, duration),
		})
	}
	return outcomes, nil
}
