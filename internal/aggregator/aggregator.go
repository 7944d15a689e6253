// Package aggregator implements the scheduled high-water-mark job that
// folds raw clicks into the five daily rollup tables (spec.md §4.7).
// Grounded on the teacher's internal/repository/click_event.go
// upsert-with-additive-merge pattern, generalized from a single
// recalculate-then-upsert daily stat to five concurrently maintained
// rollup dimensions executed as one atomic batch.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/clickplane/core/internal/enrich"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/model"
)

// DefaultBatchSize caps how many raw clicks a single aggregation pass
// reads, per spec.md §4.7 step 2.
const DefaultBatchSize = 1000

// Repository is the persistence surface the aggregator needs.
type Repository interface {
	HighWaterMark(ctx context.Context) (model.AggregationState, error)
	RawClicksSince(ctx context.Context, since time.Time, limit int) ([]*model.RawClick, error)
	ApplyAggregationBatch(ctx context.Context, batch Increments, newHighWaterMark time.Time) error
}

// Increments holds one aggregation pass's additive deltas, keyed exactly
// as spec.md §3 describes (workspace-day, link-day, workspace-day-referrer,
// workspace-day-country, workspace-day-device).
type Increments struct {
	Workspace map[workspaceDayKey]int64
	Link      map[linkDayKey]int64
	Referrer  map[referrerDayKey]int64
	Country   map[countryDayKey]int64
	Device    map[deviceDayKey]int64
}

type workspaceDayKey struct {
	WorkspaceID string
	Date        string
}

type linkDayKey struct {
	LinkID string
	Date   string
}

type referrerDayKey struct {
	WorkspaceID  string
	Date         string
	ReferrerHost string
}

type countryDayKey struct {
	WorkspaceID string
	Date        string
	Country     string
}

type deviceDayKey struct {
	WorkspaceID string
	Date        string
	DeviceClass string
}

func newIncrements() Increments {
	return Increments{
		Workspace: make(map[workspaceDayKey]int64),
		Link:      make(map[linkDayKey]int64),
		Referrer:  make(map[referrerDayKey]int64),
		Country:   make(map[countryDayKey]int64),
		Device:    make(map[deviceDayKey]int64),
	}
}

// group folds a batch of raw clicks into the five increment maps. The
// UTC date is the first 10 characters of the click's ISO timestamp, per
// spec.md §4.7 step 4. Referrer normalization happens here, at
// aggregation time, not at enrichment (spec.md §4.4).
func group(clicks []*model.RawClick) Increments {
	inc := newIncrements()

	for _, c := range clicks {
		date := c.Timestamp.UTC().Format("2006-01-02")
		referrerHost := enrich.NormalizeReferrer(c.Referrer)

		inc.Workspace[workspaceDayKey{c.WorkspaceID, date}]++
		inc.Link[linkDayKey{c.LinkID, date}]++
		inc.Referrer[referrerDayKey{c.WorkspaceID, date, referrerHost}]++
		inc.Country[countryDayKey{c.WorkspaceID, date, c.Country}]++
		inc.Device[deviceDayKey{c.WorkspaceID, date, string(c.DeviceClass)}]++
	}

	return inc
}

// Aggregator runs scheduled aggregation passes.
type Aggregator struct {
	repo      Repository
	logger    *slog.Logger
	metrics   metrics.Recorder
	batchSize int
}

// New builds an Aggregator with the default batch size.
func New(repo Repository, logger *slog.Logger, recorder metrics.Recorder) *Aggregator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Aggregator{
		repo:      repo,
		logger:    logger.With("component", "aggregator"),
		metrics:   recorder,
		batchSize: DefaultBatchSize,
	}
}

// SetBatchSize overrides the default batch size.
func (a *Aggregator) SetBatchSize(size int) {
	if size > 0 {
		a.batchSize = size
	}
}

// RunOnce performs one full catch-up: it repeats batch processing until a
// batch returns fewer than the configured batch size (spec.md §4.7 step 7).
func (a *Aggregator) RunOnce(ctx context.Context) error {
	for {
		n, err := a.runBatch(ctx)
		if err != nil {
			a.metrics.IncAggregationRun("failed")
			return err
		}
		if n < a.batchSize {
			return nil
		}
	}
}

func (a *Aggregator) runBatch(ctx context.Context) (int, error) {
	start := time.Now()

	state, err := a.repo.HighWaterMark(ctx)
	if err != nil {
		return 0, err
	}

	clicks, err := a.repo.RawClicksSince(ctx, state.LastProcessedTS, a.batchSize)
	if err != nil {
		return 0, err
	}
	if len(clicks) == 0 {
		return 0, nil
	}

	inc := group(clicks)
	newHWM := clicks[len(clicks)-1].Timestamp
	for _, c := range clicks {
		if c.Timestamp.After(newHWM) {
			newHWM = c.Timestamp
		}
	}

	if err := a.repo.ApplyAggregationBatch(ctx, inc, newHWM); err != nil {
		return 0, err
	}

	a.logger.Info("aggregation batch applied", "clicks", len(clicks), "new_high_water_mark", newHWM)
	a.metrics.IncAggregationRun("success")
	a.metrics.ObserveAggregationBatchSize(len(clicks))
	a.metrics.ObserveAggregationDuration(time.Since(start))

	return len(clicks), nil
}
