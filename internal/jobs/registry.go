// Package jobs tracks background analyses: a registry of job records plus a
// bounded worker pool that runs them.
package jobs

import (
	"context"
	"sync"

	"github.com/clauseguard/clauseguard/internal/config"
	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/models"
)

// Registry stores job records. Records move processing -> completed or
// processing -> failed exactly once; progress never decreases.
type Registry interface {
	Create(ctx context.Context, job *models.JobRecord) error
	Get(ctx context.Context, analysisID string) (*models.JobRecord, error)
	SetProgress(ctx context.Context, analysisID string, progress int) error
	Complete(ctx context.Context, analysisID string, data *models.AnalysisResult) error
	Fail(ctx context.Context, analysisID, message string) error
}

// NewRegistry builds the configured backend.
func NewRegistry(cfg config.JobsConfig) (Registry, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRegistry(), nil
	case "redis":
		return NewRedisRegistry(cfg.RedisAddr)
	default:
		return nil, errors.ConfigErrorf("unknown jobs backend %q", cfg.Backend)
	}
}

// MemoryRegistry is the single-process default.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*models.JobRecord
}

// NewMemoryRegistry builds an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*models.JobRecord)}
}

func (r *MemoryRegistry) Create(_ context.Context, job *models.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.AnalysisID]; exists {
		return errors.ValidationErrorf("job %s already exists", job.AnalysisID)
	}
	clone := *job
	r.jobs[job.AnalysisID] = &clone
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, analysisID string) (*models.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[analysisID]
	if !ok {
		return nil, errors.ValidationErrorf("job %s not found", analysisID)
	}
	clone := *job
	return &clone, nil
}

func (r *MemoryRegistry) SetProgress(_ context.Context, analysisID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[analysisID]
	if !ok {
		return errors.ValidationErrorf("job %s not found", analysisID)
	}
	return advance(job, progress)
}

func (r *MemoryRegistry) Complete(_ context.Context, analysisID string, data *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[analysisID]
	if !ok {
		return errors.ValidationErrorf("job %s not found", analysisID)
	}
	return finish(job, models.JobCompleted, data, "")
}

func (r *MemoryRegistry) Fail(_ context.Context, analysisID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[analysisID]
	if !ok {
		return errors.ValidationErrorf("job %s not found", analysisID)
	}
	return finish(job, models.JobFailed, nil, message)
}

// advance applies a monotonic progress update to a live job.
func advance(job *models.JobRecord, progress int) error {
	if job.Status != models.JobProcessing {
		return errors.ValidationErrorf("job %s already %s", job.AnalysisID, job.Status)
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	return nil
}

// finish applies the single terminal transition.
func finish(job *models.JobRecord, status string, data *models.AnalysisResult, message string) error {
	if job.Status != models.JobProcessing {
		return errors.ValidationErrorf("job %s already %s", job.AnalysisID, job.Status)
	}
	job.Status = status
	job.Data = data
	job.Error = message
	if status == models.JobCompleted {
		job.Progress = 100
	}
	return nil
}
