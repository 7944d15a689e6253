// Package retention implements the scheduled raw-click deletion job
// (spec.md §4.8). Grounded on the teacher's cursor/limit pagination idiom
// in internal/repository/link.go's ListLinks, adapted into a delete-only
// loop bounded by batch size instead of a page cursor.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/clickplane/core/internal/metrics"
)

// DefaultBatchSize is the number of rows removed per DELETE statement.
const DefaultBatchSize = 5000

// DefaultHorizon is how long a raw click survives before it is eligible
// for deletion. Pro workspaces get a longer logical horizon served
// entirely from rollups (spec.md §4.8); the raw log itself has one
// physical horizon regardless of plan.
const DefaultHorizon = 30 * 24 * time.Hour

// Repository is the persistence surface the retention job needs.
type Repository interface {
	DeleteRawClicksBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Job runs the bounded-batch raw click deletion loop.
type Job struct {
	repo      Repository
	logger    *slog.Logger
	metrics   metrics.Recorder
	batchSize int
	horizon   time.Duration
}

// New builds a Job with the default batch size and horizon.
func New(repo Repository, logger *slog.Logger, recorder metrics.Recorder) *Job {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Job{
		repo:      repo,
		logger:    logger.With("component", "retention"),
		metrics:   recorder,
		batchSize: DefaultBatchSize,
		horizon:   DefaultHorizon,
	}
}

// SetBatchSize overrides the default batch size.
func (j *Job) SetBatchSize(size int) {
	if size > 0 {
		j.batchSize = size
	}
}

// SetHorizon overrides the default retention horizon.
func (j *Job) SetHorizon(horizon time.Duration) {
	if horizon > 0 {
		j.horizon = horizon
	}
}

// RunOnce deletes raw clicks older than the horizon in bounded batches,
// looping until a batch removes fewer rows than the batch size
// (spec.md §4.8). Rollups are never touched.
func (j *Job) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.horizon)
	total := 0

	for {
		n, err := j.repo.DeleteRawClicksBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			return err
		}
		total += n
		if n > 0 {
			j.metrics.IncRetentionDeleted(n)
		}
		if n < j.batchSize {
			break
		}
	}

	j.logger.Info("retention pass complete", "deleted", total, "cutoff", cutoff)
	return nil
}
