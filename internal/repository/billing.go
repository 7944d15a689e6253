package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clickplane/core/internal/model"
)

// GetWorkspace loads a workspace's plan and billing-period state. Mirrors
// catalog.Store.GetWorkspace — kept as a separate query here because the
// billing jobs depend on the repository package, not the read-path
// catalog package the redirect/resolver path uses.
func (r *Repository) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	const q = `
		SELECT id, plan, billing_status, current_period_start, current_period_end, created_at
		FROM workspaces
		WHERE id = $1`

	var w model.Workspace
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&w.ID, &w.Plan, &w.BillingStatus, &w.CurrentPeriodStart, &w.CurrentPeriodEnd, &w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace %s: %w", id, err)
	}
	return &w, nil
}

// ListClosedUnreportedProWorkspaces returns every Pro workspace whose
// current_period_end has passed with no matching billing_usage_periods
// row, per spec.md §4.9's Reporter selection rule.
func (r *Repository) ListClosedUnreportedProWorkspaces(ctx context.Context, now time.Time) ([]*model.Workspace, error) {
	const q = `
		SELECT w.id, w.plan, w.billing_status, w.current_period_start, w.current_period_end, w.created_at
		FROM workspaces w
		WHERE w.plan = 'pro'
		  AND w.current_period_end < $1
		  AND NOT EXISTS (
			SELECT 1 FROM billing_usage_periods b
			WHERE b.workspace_id = w.id
			  AND b.period_start = w.current_period_start
			  AND b.period_end = w.current_period_end
		  )`

	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("list closed unreported pro workspaces: %w", err)
	}
	defer rows.Close()

	var out []*model.Workspace
	for rows.Next() {
		var w model.Workspace
		if err := rows.Scan(&w.ID, &w.Plan, &w.BillingStatus, &w.CurrentPeriodStart, &w.CurrentPeriodEnd, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// RecordBillingUsagePeriod inserts the Reporter's settled usage period.
// Periods are recorded exactly once per (workspace, period) — a retried
// Reporter run for an already-recorded period is a no-op.
func (r *Repository) RecordBillingUsagePeriod(ctx context.Context, period *model.BillingUsagePeriod) error {
	const q = `
		INSERT INTO billing_usage_periods (
			workspace_id, period_start, period_end, total_clicks,
			included_allotment, overage_units, overage_amount, invoice_item_ref, reported_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workspace_id, period_start, period_end) DO NOTHING`

	_, err := r.pool.Exec(ctx, q,
		period.WorkspaceID, period.PeriodStart, period.PeriodEnd, period.TotalClicks,
		period.IncludedAllotment, period.OverageUnits, period.OverageAmount,
		nullableString(period.InvoiceItemRef), period.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("record billing usage period: %w", err)
	}
	return nil
}

// ListRecentBillingUsagePeriods returns every usage period reported since
// the given instant, for the Reconciler's 7-day lookback window.
func (r *Repository) ListRecentBillingUsagePeriods(ctx context.Context, since time.Time) ([]*model.BillingUsagePeriod, error) {
	const q = `
		SELECT workspace_id, period_start, period_end, total_clicks,
			included_allotment, overage_units, overage_amount,
			COALESCE(invoice_item_ref, ''), reported_at
		FROM billing_usage_periods
		WHERE reported_at >= $1`

	rows, err := r.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("list recent billing usage periods: %w", err)
	}
	defer rows.Close()

	var out []*model.BillingUsagePeriod
	for rows.Next() {
		var p model.BillingUsagePeriod
		if err := rows.Scan(
			&p.WorkspaceID, &p.PeriodStart, &p.PeriodEnd, &p.TotalClicks,
			&p.IncludedAllotment, &p.OverageUnits, &p.OverageAmount,
			&p.InvoiceItemRef, &p.ReportedAt,
		); err != nil {
			return nil, fmt.Errorf("scan billing usage period: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// nullableString returns nil for empty strings so an unset optional
// column is stored as SQL NULL rather than an empty string.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// RecordBillingMismatch appends a Reconciler finding. Never mutates a
// billing_usage_periods row.
func (r *Repository) RecordBillingMismatch(ctx context.Context, mismatch *model.BillingMismatch) error {
	const q = `
		INSERT INTO billing_mismatches (
			workspace_id, period_start, period_end, reported_clicks, live_clicks, diff, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, q,
		mismatch.WorkspaceID, mismatch.PeriodStart, mismatch.PeriodEnd,
		mismatch.ReportedClicks, mismatch.LiveClicks, mismatch.Diff, mismatch.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("record billing mismatch: %w", err)
	}
	return nil
}
