package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clauseguard/clauseguard/internal/errors"
	"github.com/clauseguard/clauseguard/internal/models"
)

const (
	jobKeyPrefix = "clauseguard:job:"
	jobTTL       = 24 * time.Hour
)

// RedisRegistry shares job state across processes. Each job is owned by a
// single worker, so updates are plain read-modify-write.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects to the given address.
func NewRedisRegistry(addr string) (*RedisRegistry, error) {
	if addr == "" {
		return nil, errors.ConfigError("jobs backend is redis but redis_addr is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.NetworkError(err, "redis ping failed")
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Create(ctx context.Context, job *models.JobRecord) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.StorageError(err, "failed to encode job")
	}
	ok, err := r.client.SetNX(ctx, jobKeyPrefix+job.AnalysisID, payload, jobTTL).Result()
	if err != nil {
		return errors.StorageError(err, "failed to create job")
	}
	if !ok {
		return errors.ValidationErrorf("job %s already exists", job.AnalysisID)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, analysisID string) (*models.JobRecord, error) {
	payload, err := r.client.Get(ctx, jobKeyPrefix+analysisID).Bytes()
	if err == redis.Nil {
		return nil, errors.ValidationErrorf("job %s not found", analysisID)
	}
	if err != nil {
		return nil, errors.StorageError(err, "failed to read job")
	}
	var job models.JobRecord
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, errors.StorageError(err, "failed to decode job")
	}
	return &job, nil
}

func (r *RedisRegistry) SetProgress(ctx context.Context, analysisID string, progress int) error {
	return r.update(ctx, analysisID, func(job *models.JobRecord) error {
		return advance(job, progress)
	})
}

func (r *RedisRegistry) Complete(ctx context.Context, analysisID string, data *models.AnalysisResult) error {
	return r.update(ctx, analysisID, func(job *models.JobRecord) error {
		return finish(job, models.JobCompleted, data, "")
	})
}

func (r *RedisRegistry) Fail(ctx context.Context, analysisID, message string) error {
	return r.update(ctx, analysisID, func(job *models.JobRecord) error {
		return finish(job, models.JobFailed, nil, message)
	})
}

func (r *RedisRegistry) update(ctx context.Context, analysisID string, mutate func(*models.JobRecord) error) error {
	job, err := r.Get(ctx, analysisID)
	if err != nil {
		return err
	}
	if err := mutate(job); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.StorageError(err, "failed to encode job")
	}
	if err := r.client.Set(ctx, jobKeyPrefix+analysisID, payload, jobTTL).Err(); err != nil {
		return errors.StorageError(err, "failed to write job")
	}
	return nil
}

// Close releases the redis connection.
func (r *RedisRegistry) Close() error { return r.client.Close() }
