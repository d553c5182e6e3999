package jobs

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseguard/clauseguard/internal/models"
)

func newJob(id string) *models.JobRecord {
	return &models.JobRecord{
		AnalysisID: id,
		Status:     models.JobProcessing,
		Filename:   "contract.pdf",
		FilePath:   "./uploads/" + id + ".pdf",
	}
}

// registryContract exercises the invariants every backend must hold.
func registryContract(t *testing.T, r Registry) {
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newJob("job-1")))
	assert.Error(t, r.Create(ctx, newJob("job-1")), "duplicate ids rejected")

	_, err := r.Get(ctx, "missing")
	assert.Error(t, err)

	require.NoError(t, r.SetProgress(ctx, "job-1", 10))
	require.NoError(t, r.SetProgress(ctx, "job-1", 5), "stale update accepted but ignored")
	job, err := r.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, job.Progress, "progress is monotonic")

	result := &models.AnalysisResult{Document: models.DocumentSummary{Filename: "contract.pdf"}}
	require.NoError(t, r.Complete(ctx, "job-1", result))

	job, err = r.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Data)
	assert.Equal(t, "contract.pdf", job.Data.Document.Filename)

	assert.Error(t, r.Fail(ctx, "job-1", "too late"), "terminal state is final")
	assert.Error(t, r.SetProgress(ctx, "job-1", 50))

	require.NoError(t, r.Create(ctx, newJob("job-2")))
	require.NoError(t, r.Fail(ctx, "job-2", "extraction failed"))
	job, err = r.Get(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, "extraction failed", job.Error)
	assert.Error(t, r.Complete(ctx, "job-2", result))
}

func TestMemoryRegistry(t *testing.T) {
	registryContract(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	srv := miniredis.RunT(t)
	r, err := NewRedisRegistry(srv.Addr())
	require.NoError(t, err)
	defer r.Close()

	registryContract(t, r)
}

func TestMemoryRegistryReturnsCopies(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newJob("job-1")))

	job, err := r.Get(ctx, "job-1")
	require.NoError(t, err)
	job.Progress = 99

	again, err := r.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Progress, "caller mutations must not leak into the registry")
}

func TestPoolRunsJobToCompletion(t *testing.T) {
	r := NewMemoryRegistry()
	done := make(chan struct{})
	pool := NewPool(r, func(_ context.Context, job *models.JobRecord) (*models.AnalysisResult, error) {
		defer close(done)
		return &models.AnalysisResult{Document: models.DocumentSummary{Filename: job.Filename}}, nil
	}, 2)

	require.NoError(t, pool.Submit(context.Background(), newJob("job-1")))
	waitFor(t, done)

	job := eventually(t, r, "job-1", models.JobCompleted)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Data)
}

func TestPoolRecordsFailure(t *testing.T) {
	r := NewMemoryRegistry()
	done := make(chan struct{})
	pool := NewPool(r, func(context.Context, *models.JobRecord) (*models.AnalysisResult, error) {
		defer close(done)
		return nil, stderrors.New("model quota exhausted")
	}, 1)

	require.NoError(t, pool.Submit(context.Background(), newJob("job-1")))
	waitFor(t, done)

	job := eventually(t, r, "job-1", models.JobFailed)
	assert.Contains(t, job.Error, "model quota exhausted")
	assert.Nil(t, job.Data)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	r := NewMemoryRegistry()

	var mu sync.Mutex
	running, peak := 0, 0
	release := make(chan struct{})

	pool := NewPool(r, func(context.Context, *models.JobRecord) (*models.AnalysisResult, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return &models.AnalysisResult{}, nil
	}, 2)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, pool.Submit(ctx, newJob(id)))
	}
	time.Sleep(100 * time.Millisecond)
	close(release)

	for _, id := range []string{"a", "b", "c", "d"} {
		eventually(t, r, id, models.JobCompleted)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.Positive(t, peak)
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
	}
}

func eventually(t *testing.T, r Registry, id, status string) *models.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Get(context.Background(), id)
		require.NoError(t, err)
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, status)
	return nil
}
