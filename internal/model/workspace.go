package model

import "time"

// Plan identifies a workspace's billing tier.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Workspace is the billing and quota boundary for a set of domains and links.
// CurrentPeriodStart/End are nil for Free-plan workspaces: a billing period
// only exists once a workspace is on Pro (spec.md §3).
type Workspace struct {
	ID                 string     `json:"id"`
	Plan               Plan       `json:"plan"`
	BillingStatus      string     `json:"billing_status"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsPro reports whether the workspace is billed on a Pro plan.
func (w *Workspace) IsPro() bool {
	return w.Plan == PlanPro
}

// MonthKey returns the UTC calendar-month key ("2026-08") used to bucket the
// Free plan's monthly click cap.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
