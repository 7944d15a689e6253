package repository

import (
	"context"
	"fmt"
	"time"
)

// WorkspaceDailyPoint is one day's total within a workspace overview's
// trend, per spec.md §4.10's "overview" endpoint.
type WorkspaceDailyPoint struct {
	Date        string `json:"date"`
	TotalClicks int64  `json:"total_clicks"`
}

// LinkTotal is one link's click sum for the "links" breakdown.
type LinkTotal struct {
	LinkID      string `json:"link_id"`
	Slug        string `json:"slug"`
	Destination string `json:"destination"`
	TotalClicks int64  `json:"total_clicks"`
}

// ReferrerTotal is one referrer host's click sum.
type ReferrerTotal struct {
	ReferrerHost string `json:"referrer_host"`
	TotalClicks  int64  `json:"total_clicks"`
}

// CountryTotal is one country's click sum.
type CountryTotal struct {
	Country     string `json:"country"`
	TotalClicks int64  `json:"total_clicks"`
}

// DeviceTotal is one device class's click sum.
type DeviceTotal struct {
	DeviceClass string `json:"device_class"`
	TotalClicks int64  `json:"total_clicks"`
}

// WorkspaceOverview sums workspace-day rollups within [from, to] and
// separately returns the last-30-days daily trend, per spec.md §4.10.
func (r *Repository) WorkspaceOverview(ctx context.Context, workspaceID string, from, to time.Time) (int64, []WorkspaceDailyPoint, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_clicks), 0)
		FROM rollup_workspace_daily
		WHERE workspace_id = $1 AND date >= $2 AND date <= $3
	`, workspaceID, from, to).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("sum workspace overview: %w", err)
	}

	trendFrom := to.AddDate(0, 0, -30)
	rows, err := r.pool.Query(ctx, `
		SELECT date, total_clicks
		FROM rollup_workspace_daily
		WHERE workspace_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, workspaceID, trendFrom, to)
	if err != nil {
		return 0, nil, fmt.Errorf("query workspace trend: %w", err)
	}
	defer rows.Close()

	var trend []WorkspaceDailyPoint
	for rows.Next() {
		var p WorkspaceDailyPoint
		var date time.Time
		if err := rows.Scan(&date, &p.TotalClicks); err != nil {
			return 0, nil, fmt.Errorf("scan workspace trend point: %w", err)
		}
		p.Date = date.Format("2006-01-02")
		trend = append(trend, p)
	}
	return total, trend, rows.Err()
}

// TopLinks returns the top limit links by total clicks within range,
// joined with the link catalog for slug and destination.
func (r *Repository) TopLinks(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]LinkTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.slug, l.destination, SUM(rl.total_clicks) AS clicks
		FROM rollup_link_daily rl
		JOIN links l ON l.id = rl.link_id
		WHERE l.workspace_id = $1 AND rl.date >= $2 AND rl.date <= $3
		GROUP BY l.id, l.slug, l.destination
		ORDER BY clicks DESC
		LIMIT $4
	`, workspaceID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top links: %w", err)
	}
	defer rows.Close()

	var out []LinkTotal
	for rows.Next() {
		var t LinkTotal
		if err := rows.Scan(&t.LinkID, &t.Slug, &t.Destination, &t.TotalClicks); err != nil {
			return nil, fmt.Errorf("scan link total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TopReferrers returns the top limit referrer hosts by total clicks.
func (r *Repository) TopReferrers(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]ReferrerTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT referrer_host, SUM(total_clicks) AS clicks
		FROM rollup_referrer_daily
		WHERE workspace_id = $1 AND date >= $2 AND date <= $3
		GROUP BY referrer_host
		ORDER BY clicks DESC
		LIMIT $4
	`, workspaceID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top referrers: %w", err)
	}
	defer rows.Close()

	var out []ReferrerTotal
	for rows.Next() {
		var t ReferrerTotal
		if err := rows.Scan(&t.ReferrerHost, &t.TotalClicks); err != nil {
			return nil, fmt.Errorf("scan referrer total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TopCountries returns the top limit countries by total clicks.
func (r *Repository) TopCountries(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]CountryTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT country, SUM(total_clicks) AS clicks
		FROM rollup_country_daily
		WHERE workspace_id = $1 AND date >= $2 AND date <= $3
		GROUP BY country
		ORDER BY clicks DESC
		LIMIT $4
	`, workspaceID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top countries: %w", err)
	}
	defer rows.Close()

	var out []CountryTotal
	for rows.Next() {
		var t CountryTotal
		if err := rows.Scan(&t.Country, &t.TotalClicks); err != nil {
			return nil, fmt.Errorf("scan country total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeviceBreakdown returns the full (small-cardinality) device-class
// breakdown by total clicks.
func (r *Repository) DeviceBreakdown(ctx context.Context, workspaceID string, from, to time.Time) ([]DeviceTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_class, SUM(total_clicks) AS clicks
		FROM rollup_device_daily
		WHERE workspace_id = $1 AND date >= $2 AND date <= $3
		GROUP BY device_class
		ORDER BY clicks DESC
	`, workspaceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query device breakdown: %w", err)
	}
	defer rows.Close()

	var out []DeviceTotal
	for rows.Next() {
		var t DeviceTotal
		if err := rows.Scan(&t.DeviceClass, &t.TotalClicks); err != nil {
			return nil, fmt.Errorf("scan device total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
