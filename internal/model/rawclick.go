package model

import "time"

// DeviceClass is a coarse user-agent classification.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceBot     DeviceClass = "bot"
	DeviceUnknown DeviceClass = "unknown"
)

// RawClick is one append-only, deduplicated click record.
type RawClick struct {
	ClickID      string      `json:"click_id"`
	InsertedULID string      `json:"-"`
	Timestamp    time.Time   `json:"ts"`
	WorkspaceID  string      `json:"workspace_id"`
	LinkID       string      `json:"link_id"`
	Domain       string      `json:"domain"`
	Slug         string      `json:"slug"`
	Destination  string      `json:"destination"`
	Referrer     string      `json:"referrer"`
	ReferrerHost string      `json:"referrer_host"`
	UserAgent    string      `json:"user_agent"`
	IPHash       string      `json:"ip_hash"`
	Country      string      `json:"country"`
	Region       string      `json:"region"`
	City         string      `json:"city"`
	DeviceClass  DeviceClass `json:"device_class"`
	BotSuspected bool        `json:"bot_suspected"`
}

// AggregationState is the singleton high-water-mark row driving the
// aggregator's incremental catch-up reads.
type AggregationState struct {
	LastProcessedTS time.Time `json:"last_processed_ts"`
}
