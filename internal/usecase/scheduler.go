package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"NewsDigest/internal/markdown"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
)

const defaultLookback = 24 * time.Hour

// RunOptions narrows a single digest run. Zero values fall back to the marker and the clock.
type RunOptions struct {
	Since      time.Time
	Until      time.Time
	OutputFile string
}

// DigestJob resolves the window of a run, executes the pipeline and advances the marker.
type DigestJob struct {
	pipeline  *Pipeline
	marker    ports.RunMarker
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

// NewDigestJob builds a job; marker may be nil when runs should not be remembered.
func NewDigestJob(pipeline *Pipeline, marker ports.RunMarker, outputDir string, logger *zap.Logger) *DigestJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestJob{
		pipeline:  pipeline,
		marker:    marker,
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute runs one digest and returns the path it wrote to.
func (j *DigestJob) Execute(ctx context.Context, opts RunOptions) (string, error) {
	window, err := j.window(opts)
	if err != nil {
		return "", err
	}

	output := opts.OutputFile
	if output == "" {
		output = filepath.Join(j.outputDir, markdown.FileName(window.Since, window.Until))
	}

	runID := uuid.NewString()
	logger := j.logger.With(zap.String("run_id", runID))
	logger.Info("executing digest job", zap.Time("since", window.Since), zap.Time("until", window.Until))

	if err := j.pipeline.Run(ctx, window, output); err != nil {
		return "", fmt.Errorf("digest run %s: %w", runID, err)
	}

	if j.marker != nil {
		if err := j.marker.Write(window.Until); err != nil {
			return output, err
		}
	}
	return output, nil
}

func (j *DigestJob) window(opts RunOptions) (scanner.Window, error) {
	until := opts.Until
	if until.IsZero() {
		until = j.now()
	}

	since := opts.Since
	if since.IsZero() {
		since = until.Add(-defaultLookback)
		if j.marker != nil {
			last, ok, err := j.marker.Read()
			if err != nil {
				return scanner.Window{}, err
			}
			if ok {
				since = last
			}
		}
	}
	return scanner.NewWindow(since, until)
}

// Scheduler wires the cron driver with the digest job.
type Scheduler struct {
	driver ports.Scheduler
	job    *DigestJob
	logger *zap.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, job *DigestJob, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{driver: driver, job: job, logger: logger}
}

// Start registers the digest job; every trigger covers the time since the previous success.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.job == nil {
		return nil
	}

	job := func(trigger time.Time) {
		output, err := s.job.Execute(ctx, RunOptions{Until: trigger})
		if err != nil {
			s.logger.Error("scheduled digest failed", zap.Time("trigger", trigger), zap.Error(err))
			return
		}
		s.logger.Info("scheduled digest written", zap.String("output", output))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
