package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clickplane/core/internal/aggregator"
)

// ApplyAggregationBatch executes every rollup upsert and the high-water-mark
// update inside a single transaction, so they commit together-or-not-at-all
// per spec.md §4.7's idempotency requirement — a crash before commit leaves
// the high-water mark unchanged and the same raw clicks get re-aggregated,
// which additive upserts make safe to repeat.
func (r *Repository) ApplyAggregationBatch(ctx context.Context, batch aggregator.Increments, newHighWaterMark time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin aggregation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pgBatch := &pgx.Batch{}

	for k, count := range batch.Workspace {
		pgBatch.Queue(`
			INSERT INTO rollup_workspace_daily (workspace_id, date, total_clicks)
			VALUES ($1, $2, $3)
			ON CONFLICT (workspace_id, date) DO UPDATE
				SET total_clicks = rollup_workspace_daily.total_clicks + EXCLUDED.total_clicks
		`, k.WorkspaceID, k.Date, count)
	}
	for k, count := range batch.Link {
		pgBatch.Queue(`
			INSERT INTO rollup_link_daily (link_id, date, total_clicks)
			VALUES ($1, $2, $3)
			ON CONFLICT (link_id, date) DO UPDATE
				SET total_clicks = rollup_link_daily.total_clicks + EXCLUDED.total_clicks
		`, k.LinkID, k.Date, count)
	}
	for k, count := range batch.Referrer {
		pgBatch.Queue(`
			INSERT INTO rollup_referrer_daily (workspace_id, date, referrer_host, total_clicks)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (workspace_id, date, referrer_host) DO UPDATE
				SET total_clicks = rollup_referrer_daily.total_clicks + EXCLUDED.total_clicks
		`, k.WorkspaceID, k.Date, k.ReferrerHost, count)
	}
	for k, count := range batch.Country {
		pgBatch.Queue(`
			INSERT INTO rollup_country_daily (workspace_id, date, country, total_clicks)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (workspace_id, date, country) DO UPDATE
				SET total_clicks = rollup_country_daily.total_clicks + EXCLUDED.total_clicks
		`, k.WorkspaceID, k.Date, k.Country, count)
	}
	for k, count := range batch.Device {
		pgBatch.Queue(`
			INSERT INTO rollup_device_daily (workspace_id, date, device_class, total_clicks)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (workspace_id, date, device_class) DO UPDATE
				SET total_clicks = rollup_device_daily.total_clicks + EXCLUDED.total_clicks
		`, k.WorkspaceID, k.Date, k.DeviceClass, count)
	}

	pgBatch.Queue(`
		INSERT INTO aggregation_state (id, last_processed_ts) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_processed_ts = EXCLUDED.last_processed_ts
	`, newHighWaterMark)

	results := tx.SendBatch(ctx, pgBatch)
	total := len(batch.Workspace) + len(batch.Link) + len(batch.Referrer) + len(batch.Country) + len(batch.Device) + 1
	for i := 0; i < total; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("aggregation batch exec %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close aggregation batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit aggregation tx: %w", err)
	}
	return nil
}
