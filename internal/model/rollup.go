package model

import "time"

// WorkspaceDailyRollup is per-workspace, per-UTC-day total clicks.
type WorkspaceDailyRollup struct {
	WorkspaceID string    `json:"workspace_id"`
	Date        time.Time `json:"date"`
	TotalClicks int64     `json:"total_clicks"`
}

// LinkDailyRollup is per-link, per-UTC-day total clicks.
type LinkDailyRollup struct {
	LinkID      string    `json:"link_id"`
	Date        time.Time `json:"date"`
	TotalClicks int64     `json:"total_clicks"`
}

// ReferrerDailyRollup is per-workspace, per-day, per-referrer-host totals.
type ReferrerDailyRollup struct {
	WorkspaceID  string    `json:"workspace_id"`
	Date         time.Time `json:"date"`
	ReferrerHost string    `json:"referrer_host"`
	TotalClicks  int64     `json:"total_clicks"`
}

// CountryDailyRollup is per-workspace, per-day, per-country totals.
type CountryDailyRollup struct {
	WorkspaceID string    `json:"workspace_id"`
	Date        time.Time `json:"date"`
	Country     string    `json:"country"`
	TotalClicks int64     `json:"total_clicks"`
}

// DeviceDailyRollup is per-workspace, per-day, per-device-class totals.
type DeviceDailyRollup struct {
	WorkspaceID string      `json:"workspace_id"`
	Date        time.Time   `json:"date"`
	DeviceClass DeviceClass `json:"device_class"`
	TotalClicks int64       `json:"total_clicks"`
}
