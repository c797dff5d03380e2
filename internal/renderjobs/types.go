package renderjobs

import (
	"context"
	"time"
)

// RenderJob tracks one rendered artifact for as long as it is downloadable.
type RenderJob struct {
	ID            string    `json:"id"`
	ArtifactPath  string    `json:"-"`
	CompositionID string    `json:"composition_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	FileSize      int64     `json:"file_size"`
}

// SecondsRemaining is the whole number of seconds until expiry, never negative.
func (j *RenderJob) SecondsRemaining(now time.Time) int64 {
	remaining := j.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

func (j *RenderJob) expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// Summary is the list view of a job.
type Summary struct {
	ID               string    `json:"id"`
	CompositionID    string    `json:"composition_id"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	FileSize         int64     `json:"file_size"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

type CreateRequest struct {
	ArtifactPath  string
	CompositionID string
	FileSize      int64
	// TTL <= 0 selects the store's default.
	TTL time.Duration
}

// Persister keeps job records across restarts.
type Persister interface {
	LoadRenderJobs(ctx context.Context) ([]*RenderJob, error)
	UpsertRenderJob(ctx context.Context, job *RenderJob) error
	DeleteRenderJob(ctx context.Context, id string) error
}

func cloneJob(job *RenderJob) *RenderJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
