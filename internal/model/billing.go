package model

import "time"

// BillingUsagePeriod is the reported overage for one workspace billing
// period. It is written once by the Billing Reporter and never mutated by
// the Reconciler, which only ever appends BillingMismatch rows.
type BillingUsagePeriod struct {
	WorkspaceID       string    `json:"workspace_id"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	TotalClicks       int64     `json:"total_clicks"`
	IncludedAllotment int64     `json:"included_allotment"`
	OverageUnits      int64     `json:"overage_units"`
	OverageAmount     int64     `json:"overage_amount_cents"`
	InvoiceItemRef    string    `json:"invoice_item_ref,omitempty"`
	ReportedAt        time.Time `json:"reported_at"`
}

// BillingMismatch records a detected divergence between a reported usage
// period and a live recomputation from the rollups. It is log-only: the
// Reconciler never rewrites BillingUsagePeriod.
type BillingMismatch struct {
	WorkspaceID    string    `json:"workspace_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	ReportedClicks int64     `json:"reported_clicks"`
	LiveClicks     int64     `json:"live_clicks"`
	Diff           int64     `json:"diff"`
	DetectedAt     time.Time `json:"detected_at"`
}
