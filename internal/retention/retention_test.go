package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeRepository struct {
	deletions []int
	cutoffs   []time.Time
	callCount int
	err       error
}

func (f *fakeRepository) DeleteRawClicksBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	if f.callCount >= len(f.deletions) {
		return 0, nil
	}
	n := f.deletions[f.callCount]
	f.callCount++
	if n > limit {
		n = limit
	}
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_LoopsUntilShortBatch(t *testing.T) {
	repo := &fakeRepository{deletions: []int{100, 100, 40}}
	job := New(repo, testLogger(), nil)
	job.SetBatchSize(100)

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if repo.callCount != 3 {
		t.Errorf("expected 3 delete calls, got %d", repo.callCount)
	}
}

func TestRunOnce_StopsImmediatelyWhenNothingToDelete(t *testing.T) {
	repo := &fakeRepository{deletions: []int{0}}
	job := New(repo, testLogger(), nil)
	job.SetBatchSize(100)

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if repo.callCount != 1 {
		t.Errorf("expected 1 delete call, got %d", repo.callCount)
	}
}

func TestRunOnce_PropagatesError(t *testing.T) {
	wantErr := errors.New("delete failed")
	repo := &fakeRepository{err: wantErr}
	job := New(repo, testLogger(), nil)

	err := job.RunOnce(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("RunOnce error = %v, want %v", err, wantErr)
	}
}

func TestRunOnce_UsesConfiguredHorizon(t *testing.T) {
	repo := &fakeRepository{deletions: []int{0}}
	job := New(repo, testLogger(), nil)
	job.SetHorizon(7 * 24 * time.Hour)

	before := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	after := time.Now().UTC().Add(-7 * 24 * time.Hour)

	if len(repo.cutoffs) != 1 {
		t.Fatalf("expected 1 cutoff recorded, got %d", len(repo.cutoffs))
	}
	cutoff := repo.cutoffs[0]
	if cutoff.Before(before.Add(-time.Second)) || cutoff.After(after.Add(time.Second)) {
		t.Errorf("cutoff %v not within expected 7-day horizon window [%v, %v]", cutoff, before, after)
	}
}

func TestSetBatchSize_IgnoresNonPositive(t *testing.T) {
	repo := &fakeRepository{deletions: []int{0}}
	job := New(repo, testLogger(), nil)
	job.SetBatchSize(0)
	if job.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want default %d", job.batchSize, DefaultBatchSize)
	}
	job.SetBatchSize(-5)
	if job.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want default %d after negative set", job.batchSize, DefaultBatchSize)
	}
}
