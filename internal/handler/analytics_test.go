package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clickplane/core/internal/auth"
	"github.com/clickplane/core/internal/model"
	"github.com/clickplane/core/internal/repository"
)

type fakeAnalyticsRepository struct {
	total int64
	daily []repository.WorkspaceDailyPoint
	links []repository.LinkTotal
	err   error
}

func (f *fakeAnalyticsRepository) WorkspaceOverview(_ context.Context, _ string, _, _ time.Time) (int64, []repository.WorkspaceDailyPoint, error) {
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.total, f.daily, nil
}

func (f *fakeAnalyticsRepository) TopLinks(_ context.Context, _ string, _, _ time.Time, _ int) ([]repository.LinkTotal, error) {
	return f.links, f.err
}

func (f *fakeAnalyticsRepository) TopReferrers(_ context.Context, _ string, _, _ time.Time, _ int) ([]repository.ReferrerTotal, error) {
	return nil, f.err
}

func (f *fakeAnalyticsRepository) TopCountries(_ context.Context, _ string, _, _ time.Time, _ int) ([]repository.CountryTotal, error) {
	return nil, f.err
}

func (f *fakeAnalyticsRepository) DeviceBreakdown(_ context.Context, _ string, _, _ time.Time) ([]repository.DeviceTotal, error) {
	return nil, f.err
}

type fakePlanReader struct {
	workspace *model.Workspace
	err       error
}

func (f *fakePlanReader) Get(_ context.Context, _ string) (*model.Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.workspace, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedRequest(method, target, workspaceID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := auth.ContextWithAuth(req.Context(), &model.AuthContext{WorkspaceID: workspaceID, Scopes: []string{model.ScopeRead}})
	return req.WithContext(ctx)
}

func TestAnalyticsOverview_ReturnsEnvelope(t *testing.T) {
	repo := &fakeAnalyticsRepository{total: 42, daily: []repository.WorkspaceDailyPoint{{Date: "2026-08-01", TotalClicks: 10}}}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview?range=7d", "ws-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data struct {
			Total int64 `json:"total_clicks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Data.Total != 42 {
		t.Errorf("total = %d, want 42", body.Data.Total)
	}
}

func TestAnalyticsOverview_RejectsInvalidRangeToken(t *testing.T) {
	repo := &fakeAnalyticsRepository{}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview?range=bogus", "ws-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyticsOverview_FreePlanRejectsAllRange(t *testing.T) {
	repo := &fakeAnalyticsRepository{}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview?range=all", "ws-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (Free plan range ceiling exceeded)", rec.Code)
	}
}

func TestAnalyticsOverview_ProPlanAllowsAllRange(t *testing.T) {
	repo := &fakeAnalyticsRepository{total: 1}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-2", Plan: model.PlanPro}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview?range=all", "ws-2")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for Pro plan with all range", rec.Code)
	}
}

func TestAnalyticsOverview_DefaultsTo7Days(t *testing.T) {
	repo := &fakeAnalyticsRepository{total: 5}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview", "ws-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Meta struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	from, _ := time.Parse("2006-01-02", body.Meta.From)
	to, _ := time.Parse("2006-01-02", body.Meta.To)
	gotSpan := to.Sub(from)
	wantSpan := 7 * 24 * time.Hour
	if gotSpan < wantSpan-24*time.Hour || gotSpan > wantSpan+24*time.Hour {
		t.Errorf("default range span = %v, want ~7d", gotSpan)
	}
}

func TestAnalyticsLinks_ReturnsListEnvelope(t *testing.T) {
	repo := &fakeAnalyticsRepository{links: []repository.LinkTotal{{LinkID: "link-1", TotalClicks: 9}}}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/links?range=7d", "ws-1")
	rec := httptest.NewRecorder()
	h.Links(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Data.Total != 1 {
		t.Errorf("total = %d, want 1", body.Data.Total)
	}
}

func TestAnalyticsOverview_RepositoryErrorReturns500(t *testing.T) {
	repo := &fakeAnalyticsRepository{err: context.DeadlineExceeded}
	plans := &fakePlanReader{workspace: &model.Workspace{ID: "ws-1", Plan: model.PlanFree}}
	h := NewAnalyticsHandler(repo, plans, testLogger())

	req := authedRequest(http.MethodGet, "/api/v1/analytics/overview?range=7d", "ws-1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
