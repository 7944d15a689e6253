package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clickplane/core/internal/model"
)

type fakeRepository struct {
	state          model.AggregationState
	pages          [][]*model.RawClick
	pageIndex      int
	appliedBatches []Increments
	appliedHWMs    []time.Time
	applyErr       error
}

func (f *fakeRepository) HighWaterMark(_ context.Context) (model.AggregationState, error) {
	return f.state, nil
}

func (f *fakeRepository) RawClicksSince(_ context.Context, _ time.Time, _ int) ([]*model.RawClick, error) {
	if f.pageIndex >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.pageIndex]
	f.pageIndex++
	return page, nil
}

func (f *fakeRepository) ApplyAggregationBatch(_ context.Context, batch Increments, newHWM time.Time) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.appliedBatches = append(f.appliedBatches, batch)
	f.appliedHWMs = append(f.appliedHWMs, newHWM)
	f.state.LastProcessedTS = newHWM
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func click(workspaceID, linkID, country, device string, ts time.Time, referrer string) *model.RawClick {
	return &model.RawClick{
		ClickID:     workspaceID + linkID + ts.String(),
		Timestamp:   ts,
		WorkspaceID: workspaceID,
		LinkID:      linkID,
		Country:     country,
		DeviceClass: model.DeviceClass(device),
		Referrer:    referrer,
	}
}

func TestGroup_CountsAcrossAllFiveDimensions(t *testing.T) {
	day := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	clicks := []*model.RawClick{
		click("ws-1", "link-1", "US", "desktop", day, "https://google.com/search?q=x"),
		click("ws-1", "link-1", "US", "desktop", day, "https://google.com/other"),
		click("ws-1", "link-2", "CA", "mobile", day, ""),
	}

	inc := group(clicks)

	if got := inc.Workspace[workspaceDayKey{"ws-1", "2026-08-03"}]; got != 3 {
		t.Errorf("workspace count = %d, want 3", got)
	}
	if got := inc.Link[linkDayKey{"link-1", "2026-08-03"}]; got != 2 {
		t.Errorf("link-1 count = %d, want 2", got)
	}
	if got := inc.Link[linkDayKey{"link-2", "2026-08-03"}]; got != 1 {
		t.Errorf("link-2 count = %d, want 1", got)
	}
	if got := inc.Country[countryDayKey{"ws-1", "2026-08-03", "US"}]; got != 2 {
		t.Errorf("US count = %d, want 2", got)
	}
	if got := inc.Device[deviceDayKey{"ws-1", "2026-08-03", "mobile"}]; got != 1 {
		t.Errorf("mobile count = %d, want 1", got)
	}
	if len(inc.Referrer) != 2 {
		t.Errorf("distinct referrer buckets = %d, want 2 (normalized google.com + empty)", len(inc.Referrer))
	}
}

func TestGroup_NormalizesReferrerHost(t *testing.T) {
	day := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	clicks := []*model.RawClick{
		click("ws-1", "link-1", "US", "desktop", day, "https://google.com/search?q=a"),
		click("ws-1", "link-1", "US", "desktop", day, "https://google.com/search?q=b"),
	}

	inc := group(clicks)

	var total int64
	for _, v := range inc.Referrer {
		total += v
	}
	if total != 2 {
		t.Errorf("total referrer count = %d, want 2", total)
	}
	if len(inc.Referrer) != 1 {
		t.Errorf("expected referrer paths to collapse into one host bucket, got %d buckets", len(inc.Referrer))
	}
}

func TestRunOnce_LoopsUntilShortBatch(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	fullPage := make([]*model.RawClick, DefaultBatchSize)
	for i := range fullPage {
		fullPage[i] = click("ws-1", "link-1", "US", "desktop", day.Add(time.Duration(i)*time.Second), "")
	}
	shortPage := []*model.RawClick{click("ws-1", "link-1", "US", "desktop", day.Add(time.Hour), "")}

	repo := &fakeRepository{pages: [][]*model.RawClick{fullPage, shortPage}}
	agg := New(repo, testLogger(), nil)

	if err := agg.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(repo.appliedBatches) != 2 {
		t.Fatalf("expected 2 applied batches (full then short), got %d", len(repo.appliedBatches))
	}
}

func TestRunOnce_StopsWhenNoClicks(t *testing.T) {
	repo := &fakeRepository{pages: [][]*model.RawClick{{}}}
	agg := New(repo, testLogger(), nil)

	if err := agg.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(repo.appliedBatches) != 0 {
		t.Errorf("expected no applied batches, got %d", len(repo.appliedBatches))
	}
}

func TestRunOnce_PropagatesApplyError(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	page := []*model.RawClick{click("ws-1", "link-1", "US", "desktop", day, "")}
	wantErr := errors.New("apply failed")
	repo := &fakeRepository{pages: [][]*model.RawClick{page}, applyErr: wantErr}
	agg := New(repo, testLogger(), nil)

	err := agg.RunOnce(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("RunOnce error = %v, want %v", err, wantErr)
	}
}

func TestRunBatch_AdvancesHighWaterMarkToLatestClick(t *testing.T) {
	base := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	clicks := []*model.RawClick{
		click("ws-1", "link-1", "US", "desktop", base.Add(2*time.Hour), ""),
		click("ws-1", "link-1", "US", "desktop", base.Add(1*time.Hour), ""),
		click("ws-1", "link-1", "US", "desktop", base.Add(3*time.Hour), ""),
	}
	repo := &fakeRepository{pages: [][]*model.RawClick{clicks}}
	agg := New(repo, testLogger(), nil)

	if _, err := agg.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}

	want := base.Add(3 * time.Hour)
	if !repo.appliedHWMs[0].Equal(want) {
		t.Errorf("high water mark = %v, want %v", repo.appliedHWMs[0], want)
	}
}
