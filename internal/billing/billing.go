// Package billing implements the Billing Reporter and Reconciler
// (spec.md §4.9). The Reporter settles overage for Pro workspaces whose
// billing period has closed; the Reconciler is a read-only comparison job
// that only ever logs a mismatch, grounded on the teacher's
// internal/webhook/retry.go style of small, single-purpose pure helpers
// (NextRetryDelay there, roundUpOverageUnits here).
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clickplane/core/internal/counter"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/model"
)

// reconcileWindow bounds how far back the Reconciler looks for recently
// reported periods (spec.md §4.9: "reported in the last 7 days").
const reconcileWindow = 7 * 24 * time.Hour

// roundUpOverageUnits rounds clicks-over-allotment up to the next whole
// unitSize unit. Zero or negative input yields zero units.
func roundUpOverageUnits(overageClicks, unitSize int64) int64 {
	if overageClicks <= 0 || unitSize <= 0 {
		return 0
	}
	units := overageClicks / unitSize
	if overageClicks%unitSize != 0 {
		units++
	}
	return units
}

// overageAmountCents prices a number of overage units.
func overageAmountCents(units, unitPriceCents int64) int64 {
	return units * unitPriceCents
}

// Counter is the subset of internal/counter.Counter the Reporter and
// Reconciler need: the live, never-reset-by-this-package Pro usage —
// including the counter's own stored period, so the Reconciler can compare
// it against the reported period instead of relying solely on the catalog.
type Counter interface {
	GetProUsage(ctx context.Context, workspaceID string) (counter.ProUsage, error)
}

// Repository is the persistence surface the Reporter and Reconciler need.
type Repository interface {
	ListClosedUnreportedProWorkspaces(ctx context.Context, now time.Time) ([]*model.Workspace, error)
	RecordBillingUsagePeriod(ctx context.Context, period *model.BillingUsagePeriod) error
	ListRecentBillingUsagePeriods(ctx context.Context, since time.Time) ([]*model.BillingUsagePeriod, error)
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	RecordBillingMismatch(ctx context.Context, mismatch *model.BillingMismatch) error
}

// InvoiceItemCreator is the Stripe surface the Reporter needs — narrowed to
// exactly the call it makes, so tests can fake it without a live API key.
type InvoiceItemCreator interface {
	CreateOverageInvoiceItem(ctx context.Context, workspaceID string, amountCents int64, description string) (invoiceItemRef string, err error)
}

// Reporter settles Pro overage once a billing period has closed.
type Reporter struct {
	repo              Repository
	counter           Counter
	invoices          InvoiceItemCreator
	includedAllotment int64
	overageUnitSize   int64
	overageUnitPrice  int64
	logger            *slog.Logger
	metrics           metrics.Recorder
}

// NewReporter builds a Reporter. includedAllotment is the number of
// clicks included in a Pro workspace's base plan before overage accrues;
// overageUnitSize and overageUnitPriceCents set the rounding-and-pricing
// unit (spec.md §4.9's "rounded up to the next unit of 100,000 ... 100
// units-of-smallest-currency per unit" are this design's defaults, kept
// configurable rather than hardcoded).
func NewReporter(repo Repository, counter Counter, invoices InvoiceItemCreator, includedAllotment, overageUnitSize, overageUnitPriceCents int64, logger *slog.Logger, recorder metrics.Recorder) *Reporter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Reporter{
		repo:              repo,
		counter:           counter,
		invoices:          invoices,
		includedAllotment: includedAllotment,
		overageUnitSize:   overageUnitSize,
		overageUnitPrice:  overageUnitPriceCents,
		logger:            logger.With("component", "billing.reporter"),
		metrics:           recorder,
	}
}

// RunOnce finds every Pro workspace whose current_period_end has passed
// with no recorded usage period, settles overage, and records the period
// regardless of whether overage occurred (spec.md §4.9).
func (r *Reporter) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	workspaces, err := r.repo.ListClosedUnreportedProWorkspaces(ctx, now)
	if err != nil {
		return err
	}

	for _, ws := range workspaces {
		if err := r.settle(ctx, ws, now); err != nil {
			r.logger.Error("settle overage failed", "workspace_id", ws.ID, "error", err)
			continue
		}
	}

	return nil
}

func (r *Reporter) settle(ctx context.Context, ws *model.Workspace, now time.Time) error {
	if ws.CurrentPeriodStart == nil || ws.CurrentPeriodEnd == nil {
		return fmt.Errorf("workspace %s has no billing period to settle", ws.ID)
	}

	usage, err := r.counter.GetProUsage(ctx, ws.ID)
	if err != nil {
		return err
	}
	totalClicks := usage.Tracked

	overageClicks := totalClicks - r.includedAllotment
	units := roundUpOverageUnits(overageClicks, r.overageUnitSize)
	amount := overageAmountCents(units, r.overageUnitPrice)

	period := &model.BillingUsagePeriod{
		WorkspaceID:       ws.ID,
		PeriodStart:       *ws.CurrentPeriodStart,
		PeriodEnd:         *ws.CurrentPeriodEnd,
		TotalClicks:       totalClicks,
		IncludedAllotment: r.includedAllotment,
		OverageUnits:      units,
		OverageAmount:     amount,
		ReportedAt:        now,
	}

	if units > 0 {
		ref, err := r.invoices.CreateOverageInvoiceItem(ctx, ws.ID, amount, "click overage")
		if err != nil {
			return err
		}
		period.InvoiceItemRef = ref
		r.metrics.IncBillingInvoiceCreated()
	}

	if err := r.repo.RecordBillingUsagePeriod(ctx, period); err != nil {
		return err
	}

	r.logger.Info("billing period reported", "workspace_id", ws.ID, "total_clicks", totalClicks, "overage_units", units)
	return nil
}

// Reconciler compares each recently reported usage period against the
// live counter and logs a BillingMismatch on material divergence. It
// never mutates counters or billing records.
type Reconciler struct {
	repo      Repository
	counter   Counter
	tolerance int64
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewReconciler builds a Reconciler. tolerance is the click-count
// difference the Reconciler absorbs rather than flags, to cover clicks
// arriving during report execution (spec.md §4.9).
func NewReconciler(repo Repository, counter Counter, tolerance int64, logger *slog.Logger, recorder metrics.Recorder) *Reconciler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Reconciler{
		repo:      repo,
		counter:   counter,
		tolerance: tolerance,
		logger:    logger.With("component", "billing.reconciler"),
		metrics:   recorder,
	}
}

// RunOnce checks every billing-usage-period row reported in the last 7
// days. If the workspace's current period still matches the reported
// period, it compares reported vs. live clicks and records a mismatch
// when the difference exceeds rc.tolerance (spec.md §4.9).
func (rc *Reconciler) RunOnce(ctx context.Context) error {
	since := time.Now().UTC().Add(-reconcileWindow)

	periods, err := rc.repo.ListRecentBillingUsagePeriods(ctx, since)
	if err != nil {
		return err
	}

	for _, period := range periods {
		if err := rc.reconcileOne(ctx, period); err != nil {
			rc.logger.Error("reconcile failed", "workspace_id", period.WorkspaceID, "error", err)
		}
	}

	return nil
}

func (rc *Reconciler) reconcileOne(ctx context.Context, period *model.BillingUsagePeriod) error {
	ws, err := rc.repo.GetWorkspace(ctx, period.WorkspaceID)
	if err != nil {
		return err
	}

	// The counter may have already rolled over to a new period, or the
	// workspace may have downgraded to Free (no period at all); comparing
	// against a period the workspace no longer reflects would be meaningless.
	if ws.CurrentPeriodStart == nil || ws.CurrentPeriodEnd == nil {
		return nil
	}
	if !ws.CurrentPeriodStart.Equal(period.PeriodStart) || !ws.CurrentPeriodEnd.Equal(period.PeriodEnd) {
		return nil
	}

	usage, err := rc.counter.GetProUsage(ctx, period.WorkspaceID)
	if err != nil {
		return err
	}

	// Trust the catalog's rollover check above, but also confirm the
	// counter's own stored period still matches — the two sources can
	// disagree if SetProPeriod hasn't been replayed since the catalog
	// advanced, and comparing against a period the counter doesn't believe
	// it's tracking would produce a bogus mismatch.
	if !usage.PeriodStart.Equal(period.PeriodStart) || !usage.PeriodEnd.Equal(period.PeriodEnd) {
		return nil
	}

	liveClicks := usage.Tracked
	diff := liveClicks - period.TotalClicks
	if diff < 0 {
		diff = -diff
	}
	if diff <= rc.tolerance {
		return nil
	}

	mismatch := &model.BillingMismatch{
		WorkspaceID:    period.WorkspaceID,
		PeriodStart:    period.PeriodStart,
		PeriodEnd:      period.PeriodEnd,
		ReportedClicks: period.TotalClicks,
		LiveClicks:     liveClicks,
		Diff:           diff,
		DetectedAt:     time.Now().UTC(),
	}
	if err := rc.repo.RecordBillingMismatch(ctx, mismatch); err != nil {
		return err
	}

	rc.logger.Warn("BILLING_MISMATCH", "workspace_id", period.WorkspaceID, "reported_clicks", period.TotalClicks, "live_clicks", liveClicks, "diff", diff)
	rc.metrics.IncBillingMismatch()
	return nil
}
