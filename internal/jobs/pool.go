package jobs

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/clauseguard/clauseguard/internal/logging"
	"github.com/clauseguard/clauseguard/internal/models"
)

// Runner performs the actual analysis for one job.
type Runner func(ctx context.Context, job *models.JobRecord) (*models.AnalysisResult, error)

// Pool runs submitted jobs with bounded concurrency. Submission never
// blocks the caller; workers queue on the semaphore.
type Pool struct {
	registry Registry
	run      Runner
	sem      *semaphore.Weighted
	logger   *logging.Logger
}

// NewPool builds a pool allowing maxWorkers concurrent analyses.
func NewPool(registry Registry, run Runner, maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		registry: registry,
		run:      run,
		sem:      semaphore.NewWeighted(int64(maxWorkers)),
		logger:   logging.With("component", "job_pool"),
	}
}

// Submit registers the job and schedules it. The returned error covers
// registration only; execution outcomes land in the registry.
func (p *Pool) Submit(ctx context.Context, job *models.JobRecord) error {
	job.Status = models.JobProcessing
	job.Progress = 0
	if err := p.registry.Create(ctx, job); err != nil {
		return err
	}

	go p.execute(context.WithoutCancel(ctx), job)
	return nil
}

func (p *Pool) execute(ctx context.Context, job *models.JobRecord) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.fail(ctx, job.AnalysisID, "worker pool shut down")
		return
	}
	defer p.sem.Release(1)

	p.logger.Info("job started", "analysis_id", job.AnalysisID, "filename", job.Filename)
	if err := p.registry.SetProgress(ctx, job.AnalysisID, 10); err != nil {
		p.logger.Error("progress update failed", "analysis_id", job.AnalysisID, "error", err)
	}

	data, err := p.run(ctx, job)
	if err != nil {
		p.logger.Error("job failed", "analysis_id", job.AnalysisID, "error", err)
		p.fail(ctx, job.AnalysisID, err.Error())
		return
	}

	if err := p.registry.Complete(ctx, job.AnalysisID, data); err != nil {
		p.logger.Error("completion update failed", "analysis_id", job.AnalysisID, "error", err)
		return
	}
	p.logger.Info("job completed", "analysis_id", job.AnalysisID)
}

func (p *Pool) fail(ctx context.Context, analysisID, message string) {
	if err := p.registry.Fail(ctx, analysisID, message); err != nil {
		p.logger.Error("failure update failed", "analysis_id", analysisID, "error", err)
	}
}
