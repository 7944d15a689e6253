package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clickplane/core/internal/model"
)

// BulkInsertRawClicks inserts clicks in a single batch with
// insert-on-conflict-do-nothing semantics keyed by click_id, so that
// redelivery of an already-persisted click (spec.md §4.6) is a no-op
// rather than an error.
func (r *Repository) BulkInsertRawClicks(ctx context.Context, clicks []*model.RawClick) error {
	if len(clicks) == 0 {
		return nil
	}

	const query = `
		INSERT INTO raw_clicks (
			click_id, ts, workspace_id, link_id, domain, slug, destination,
			referrer, user_agent, ip_hash, country, region, city, device_class,
			bot_suspected, inserted_ulid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (click_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range clicks {
		batch.Queue(query,
			c.ClickID, c.Timestamp, c.WorkspaceID, c.LinkID, c.Domain, c.Slug, c.Destination,
			c.Referrer, c.UserAgent, c.IPHash, c.Country, c.Region, c.City, c.DeviceClass,
			c.BotSuspected, c.InsertedULID,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range clicks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert raw click: %w", err)
		}
	}

	return results.Close()
}

// HighWaterMark reads the singleton aggregation-state row. If the row has
// never been written it returns the zero AggregationState; it does not
// create the row.
func (r *Repository) HighWaterMark(ctx context.Context) (model.AggregationState, error) {
	var state model.AggregationState
	err := r.pool.QueryRow(ctx, `SELECT last_processed_ts FROM aggregation_state WHERE id = 1`).Scan(&state.LastProcessedTS)
	if err == pgx.ErrNoRows {
		return model.AggregationState{}, nil
	}
	if err != nil {
		return model.AggregationState{}, fmt.Errorf("read high-water mark: %w", err)
	}
	return state, nil
}

// RawClicksSince fetches up to limit raw clicks with ts > since, ordered
// ascending by ts, per spec.md §4.7 step 2.
func (r *Repository) RawClicksSince(ctx context.Context, since time.Time, limit int) ([]*model.RawClick, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT click_id, ts, workspace_id, link_id, domain, slug, destination,
			referrer, user_agent, ip_hash, country, region, city, device_class,
			bot_suspected, inserted_ulid
		FROM raw_clicks
		WHERE ts > $1
		ORDER BY ts ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query raw clicks since: %w", err)
	}
	defer rows.Close()

	var clicks []*model.RawClick
	for rows.Next() {
		var c model.RawClick
		if err := rows.Scan(
			&c.ClickID, &c.Timestamp, &c.WorkspaceID, &c.LinkID, &c.Domain, &c.Slug, &c.Destination,
			&c.Referrer, &c.UserAgent, &c.IPHash, &c.Country, &c.Region, &c.City, &c.DeviceClass,
			&c.BotSuspected, &c.InsertedULID,
		); err != nil {
			return nil, fmt.Errorf("scan raw click: %w", err)
		}
		clicks = append(clicks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw clicks: %w", err)
	}
	return clicks, nil
}

// SetHighWaterMark upserts the singleton aggregation-state row.
func (r *Repository) SetHighWaterMark(ctx context.Context, ts time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO aggregation_state (id, last_processed_ts) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_processed_ts = EXCLUDED.last_processed_ts
	`, ts)
	if err != nil {
		return fmt.Errorf("set high-water mark: %w", err)
	}
	return nil
}

// DeleteRawClicksBefore deletes up to limit raw clicks older than cutoff,
// returning the number of rows removed, for the bounded-batch retention
// loop of spec.md §4.8. Deletion targets a subquery of ids so the DELETE
// itself stays bounded regardless of table size.
func (r *Repository) DeleteRawClicksBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM raw_clicks
		WHERE click_id IN (
			SELECT click_id FROM raw_clicks WHERE ts < $1 LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete raw clicks before: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
