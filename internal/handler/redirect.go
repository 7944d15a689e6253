package handler

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/clickplane/core/internal/catalog"
	"github.com/clickplane/core/internal/counter"
	"github.com/clickplane/core/internal/detached"
	"github.com/clickplane/core/internal/enrich"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/model"
	"github.com/clickplane/core/internal/resolver"
)

// ClickPublisher enqueues an enriched click for the Click Log Writer to
// persist. Errors are logged and swallowed by the caller — enqueue
// failures never affect the already-committed redirect response.
type ClickPublisher interface {
	Publish(ctx context.Context, click *model.RawClick) error
}

// RedirectHandler resolves (hostname, slug) pairs to a destination and,
// after the 302 response is fully committed, runs the detached enrich →
// count → enqueue sequence. Grounded on the teacher's
// internal/handler/redirect.go control flow, generalized from a single
// click-counter increment to the full detached sequence of spec.md §4.5.
type RedirectHandler struct {
	resolverReader resolver.CatalogReader
	plans          *catalog.PlanCache
	counter        *counter.Counter
	publisher      ClickPublisher
	pool           *detached.Pool
	cfg            RedirectConfig
	logger         *slog.Logger
	metrics        metrics.Recorder
}

// RedirectConfig holds the workspace-counter caps the handler needs to
// make a Free-vs-Pro decision without importing internal/config directly.
type RedirectConfig struct {
	FreeMonthlyCap int64
}

// NewRedirectHandler builds a RedirectHandler.
func NewRedirectHandler(
	resolverReader resolver.CatalogReader,
	plans *catalog.PlanCache,
	ctr *counter.Counter,
	publisher ClickPublisher,
	pool *detached.Pool,
	cfg RedirectConfig,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *RedirectHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RedirectHandler{
		resolverReader: resolverReader,
		plans:          plans,
		counter:        ctr,
		publisher:      publisher,
		pool:           pool,
		cfg:            cfg,
		logger:         logger.With("component", "handler.redirect"),
		metrics:        recorder,
	}
}

// Redirect handles GET /{slug} on any verified hostname.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	slug := chi.URLParam(r, "slug")
	hostname := r.Host

	result, err := resolver.Resolve(r.Context(), h.resolverReader, hostname, slug)
	h.metrics.ObserveRedirectDuration(time.Since(start))

	if err != nil {
		// Any catalog I/O failure maps to 404: a 404 is strictly less
		// harmful than a 5xx on a short link (spec.md §4.2).
		h.logger.Error("resolve failed", "hostname", hostname, "slug", slug, "error", err)
		h.writeNotFound(w)
		return
	}
	if result.Outcome != resolver.OutcomeResolved {
		h.writeNotFound(w)
		return
	}

	// Respond before anything else proceeds. The response is fully
	// committed here; nothing past this point can influence it.
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, result.Link.Destination, http.StatusFound)

	h.runDetached(result.Link, r, start)
}

func (h *RedirectHandler) runDetached(link *model.Link, r *http.Request, clickedAt time.Time) {
	referer := r.Header.Get("Referer")
	userAgent := r.Header.Get("User-Agent")
	ip := clientIP(r)
	edgeRequestID := r.Header.Get("X-Request-Id")
	slug := chi.URLParam(r, "slug")
	domain := r.Host

	h.pool.Submit(func(ctx context.Context) {
		if enrich.IsBot(userAgent) {
			return
		}

		ws, err := h.plans.Get(ctx, link.WorkspaceID)
		if err != nil {
			h.logger.Warn("plan lookup failed, dropping click", "workspace_id", link.WorkspaceID, "error", err)
			return
		}

		uniquePart := enrich.UniquePart(edgeRequestID, userAgent)
		clickID := enrich.ClickID(link.ID, clickedAt.UnixMilli(), uniquePart)

		admitted, err := h.applyCounter(ctx, ws, clickedAt)
		if err != nil {
			h.logger.Warn("counter update failed, dropping click", "workspace_id", link.WorkspaceID, "error", err)
			return
		}
		if !admitted {
			return
		}

		click := &model.RawClick{
			ClickID:      clickID,
			InsertedULID: newULID(),
			Timestamp:    clickedAt.UTC(),
			WorkspaceID:  link.WorkspaceID,
			LinkID:       link.ID,
			Domain:       domain,
			Slug:         slug,
			Destination:  link.Destination,
			Referrer:     referer,
			UserAgent:    userAgent,
			IPHash:       enrich.IPHash(ip),
			DeviceClass:  model.DeviceClass(enrich.DeviceClass(userAgent)),
			BotSuspected: false,
		}

		if err := h.publisher.Publish(ctx, click); err != nil {
			h.logger.Warn("enqueue failed, click dropped", "click_id", clickID, "error", err)
		}
	})
}

// errMissingBillingPeriod guards against a Pro workspace whose billing
// period hasn't been set — a data inconsistency the counter has no
// sensible way to represent, since SetProPeriod requires concrete bounds.
var errMissingBillingPeriod = errors.New("handler: pro workspace has no billing period")

// applyCounter increments the Free or Pro counter depending on plan and
// reports whether the click was admitted (i.e. should be enqueued).
func (h *RedirectHandler) applyCounter(ctx context.Context, ws *model.Workspace, clickedAt time.Time) (bool, error) {
	if ws.IsPro() {
		if ws.CurrentPeriodStart == nil || ws.CurrentPeriodEnd == nil {
			return false, errMissingBillingPeriod
		}
		if _, err := h.counter.SetProPeriod(ctx, ws.ID, *ws.CurrentPeriodStart, *ws.CurrentPeriodEnd); err != nil {
			return false, err
		}
		if _, err := h.counter.IncrementPro(ctx, ws.ID); err != nil {
			return false, err
		}
		h.metrics.IncCounterIncrement("pro", true)
		return true, nil
	}

	_, err := h.counter.IncrementFreeIfUnderCap(ctx, ws.ID, model.MonthKey(clickedAt), h.cfg.FreeMonthlyCap)
	if errors.Is(err, counter.ErrCapExceeded) {
		h.metrics.IncCounterIncrement("free", false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	h.metrics.IncCounterIncrement("free", true)
	return true, nil
}

func (h *RedirectHandler) writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"short link not found"}}`))
}

// clientIP mirrors the teacher's middleware/ratelimit.go header precedence:
// X-Forwarded-For, then X-Real-IP, then the raw remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}

// newULID generates the raw click log's physical insertion-order id — a
// ULID, independent of the deterministic SHA-256 click-id used for
// deduplication. Gives oklog/ulid, present in the teacher's go.mod but
// never imported by its code, an actual caller.
func newULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
