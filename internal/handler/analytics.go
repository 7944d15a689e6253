package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/clickplane/core/internal/apierr"
	"github.com/clickplane/core/internal/auth"
	"github.com/clickplane/core/internal/model"
	"github.com/clickplane/core/internal/repository"
)

// AnalyticsRepository is the rollup read surface the Analytics Read API
// needs. All methods read exclusively from rollup tables (spec.md §4.10) —
// never the raw click log, never the counter.
type AnalyticsRepository interface {
	WorkspaceOverview(ctx context.Context, workspaceID string, from, to time.Time) (int64, []repository.WorkspaceDailyPoint, error)
	TopLinks(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]repository.LinkTotal, error)
	TopReferrers(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]repository.ReferrerTotal, error)
	TopCountries(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]repository.CountryTotal, error)
	DeviceBreakdown(ctx context.Context, workspaceID string, from, to time.Time) ([]repository.DeviceTotal, error)
}

// PlanReader resolves a workspace's current plan, to enforce the
// plan-based range ceiling (spec.md §4.10) without hitting Postgres on
// every request.
type PlanReader interface {
	Get(ctx context.Context, workspaceID string) (*model.Workspace, error)
}

const (
	topLinksLimit     = 100
	topReferrersLimit = 50
	topCountriesLimit = 50

	freeRangeCeiling = 30 * 24 * time.Hour
	proRangeCeiling  = 24 * 30 * 24 * time.Hour // 24 months, 30-day months
)

// AnalyticsHandler serves the authenticated rollup-backed read API.
// Grounded on the teacher's internal/handler/analytics.go range-parsing
// and envelope-building shape, rewired to read the five rollup tables
// instead of daily_link_stats and to enforce a plan-based range ceiling.
type AnalyticsHandler struct {
	repo   AnalyticsRepository
	plans  PlanReader
	logger *slog.Logger
}

// NewAnalyticsHandler builds an AnalyticsHandler.
func NewAnalyticsHandler(repo AnalyticsRepository, plans PlanReader, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		repo:   repo,
		plans:  plans,
		logger: logger.With("component", "handler.analytics"),
	}
}

// Overview handles GET /api/v1/analytics/overview.
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.resolveRange(w, r)
	if !ok {
		return
	}
	workspaceID := auth.WorkspaceIDFromContext(r.Context())

	total, daily, err := h.repo.WorkspaceOverview(r.Context(), workspaceID, from, to)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}

	apierr.WriteDataWithMeta(w, map[string]any{
		"total_clicks": total,
		"daily_trend":  daily,
	}, rangeMeta(from, to))
}

// Links handles GET /api/v1/analytics/links.
func (h *AnalyticsHandler) Links(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.resolveRange(w, r)
	if !ok {
		return
	}
	workspaceID := auth.WorkspaceIDFromContext(r.Context())

	links, err := h.repo.TopLinks(r.Context(), workspaceID, from, to, topLinksLimit)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}

	apierr.WriteDataWithMeta(w, map[string]any{
		"total": len(links),
		"list":  links,
	}, rangeMeta(from, to))
}

// Referrers handles GET /api/v1/analytics/referrers.
func (h *AnalyticsHandler) Referrers(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.resolveRange(w, r)
	if !ok {
		return
	}
	workspaceID := auth.WorkspaceIDFromContext(r.Context())

	referrers, err := h.repo.TopReferrers(r.Context(), workspaceID, from, to, topReferrersLimit)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}

	apierr.WriteDataWithMeta(w, map[string]any{
		"total": len(referrers),
		"list":  referrers,
	}, rangeMeta(from, to))
}

// Countries handles GET /api/v1/analytics/countries.
func (h *AnalyticsHandler) Countries(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.resolveRange(w, r)
	if !ok {
		return
	}
	workspaceID := auth.WorkspaceIDFromContext(r.Context())

	countries, err := h.repo.TopCountries(r.Context(), workspaceID, from, to, topCountriesLimit)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}

	apierr.WriteDataWithMeta(w, map[string]any{
		"total": len(countries),
		"list":  countries,
	}, rangeMeta(from, to))
}

// Devices handles GET /api/v1/analytics/devices.
func (h *AnalyticsHandler) Devices(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.resolveRange(w, r)
	if !ok {
		return
	}
	workspaceID := auth.WorkspaceIDFromContext(r.Context())

	devices, err := h.repo.DeviceBreakdown(r.Context(), workspaceID, from, to)
	if err != nil {
		h.writeInternalError(w, err)
		return
	}

	apierr.WriteDataWithMeta(w, map[string]any{
		"total": len(devices),
		"list":  devices,
	}, rangeMeta(from, to))
}

// resolveRange parses the `range` query token and enforces the caller's
// plan-based ceiling. On failure it writes the error response itself and
// returns ok=false.
func (h *AnalyticsHandler) resolveRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	to = time.Now().UTC()
	token := r.URL.Query().Get("range")
	if token == "" {
		token = "7d"
	}

	var span time.Duration
	switch token {
	case "7d":
		span = 7 * 24 * time.Hour
	case "30d":
		span = 30 * 24 * time.Hour
	case "90d":
		span = 90 * 24 * time.Hour
	case "all":
		span = proRangeCeiling
	default:
		apierr.Write(w, apierr.New(apierr.CodeValidation, "range must be one of 7d, 30d, 90d, all"))
		return time.Time{}, time.Time{}, false
	}

	workspaceID := auth.WorkspaceIDFromContext(r.Context())
	ws, err := h.plans.Get(r.Context(), workspaceID)
	if err != nil {
		h.writeInternalError(w, err)
		return time.Time{}, time.Time{}, false
	}

	ceiling := freeRangeCeiling
	if ws.IsPro() {
		ceiling = proRangeCeiling
	}
	if span > ceiling {
		apierr.Write(w, apierr.New(apierr.CodeValidation, "requested range exceeds the plan's range ceiling"))
		return time.Time{}, time.Time{}, false
	}

	return to.Add(-span), to, true
}

func (h *AnalyticsHandler) writeInternalError(w http.ResponseWriter, err error) {
	h.logger.Error("analytics query failed", "error", err)
	apierr.Write(w, apierr.New(apierr.CodeInternal, "failed to fetch analytics"))
}

func rangeMeta(from, to time.Time) map[string]any {
	return map[string]any{
		"from": from.Format("2006-01-02"),
		"to":   to.Format("2006-01-02"),
	}
}
