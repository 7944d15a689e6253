// Package clicklog implements the Click Log Writer: a Redis Streams
// publisher feeding enriched clicks onto a queue, and the consumer that
// drains it into the raw click log with insert-on-conflict-do-nothing
// idempotency (spec.md §4.6). Grounded on the teacher's
// internal/analytics/publisher.go and worker.go.
package clicklog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/model"
)

const (
	// StreamKey is the Redis stream carrying enriched clicks.
	StreamKey = "stream:clicks"

	// DeadLetterStreamKey holds poison messages that failed to parse.
	DeadLetterStreamKey = "stream:clicks:dlq"

	// MaxStreamLen is the approximate cap on the live stream's length.
	MaxStreamLen = 100000

	// PublishTimeout bounds how long a detached publish may block.
	PublishTimeout = 100 * time.Millisecond
)

// clickWire is the on-the-wire shape of a raw click queue message. Field
// names are kept short to match the teacher's ClickEventPayload style.
type clickWire struct {
	ClickID      string `json:"cid"`
	ULID         string `json:"ulid"`
	TS           int64  `json:"ts"`
	WorkspaceID  string `json:"wid"`
	LinkID       string `json:"lid"`
	Domain       string `json:"dom"`
	Slug         string `json:"slug"`
	Destination  string `json:"dest"`
	Referrer     string `json:"ref,omitempty"`
	UserAgent    string `json:"ua,omitempty"`
	IPHash       string `json:"iph"`
	Country      string `json:"co,omitempty"`
	Region       string `json:"rg,omitempty"`
	City         string `json:"ci,omitempty"`
	DeviceClass  string `json:"dc"`
	BotSuspected bool   `json:"bot"`
}

func toWire(c *model.RawClick) clickWire {
	return clickWire{
		ClickID:      c.ClickID,
		ULID:         c.InsertedULID,
		TS:           c.Timestamp.UnixMilli(),
		WorkspaceID:  c.WorkspaceID,
		LinkID:       c.LinkID,
		Domain:       c.Domain,
		Slug:         c.Slug,
		Destination:  c.Destination,
		Referrer:     c.Referrer,
		UserAgent:    c.UserAgent,
		IPHash:       c.IPHash,
		Country:      c.Country,
		Region:       c.Region,
		City:         c.City,
		DeviceClass:  string(c.DeviceClass),
		BotSuspected: c.BotSuspected,
	}
}

func fromWire(w clickWire) *model.RawClick {
	return &model.RawClick{
		ClickID:      w.ClickID,
		InsertedULID: w.ULID,
		Timestamp:    time.UnixMilli(w.TS).UTC(),
		WorkspaceID:  w.WorkspaceID,
		LinkID:       w.LinkID,
		Domain:       w.Domain,
		Slug:         w.Slug,
		Destination:  w.Destination,
		Referrer:     w.Referrer,
		UserAgent:    w.UserAgent,
		IPHash:       w.IPHash,
		Country:      w.Country,
		Region:       w.Region,
		City:         w.City,
		DeviceClass:  model.DeviceClass(w.DeviceClass),
		BotSuspected: w.BotSuspected,
	}
}

// Publisher enqueues enriched clicks onto the Redis stream. It implements
// handler.ClickPublisher.
type Publisher struct {
	redis     *redis.Client
	streamKey string
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewPublisher builds a Publisher. streamKey overrides StreamKey when
// non-empty, so deployments can point the publisher at config.Config's
// CLICK_QUEUE_STREAM.
func NewPublisher(client *redis.Client, streamKey string, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if streamKey == "" {
		streamKey = StreamKey
	}
	return &Publisher{
		redis:     client,
		streamKey: streamKey,
		logger:    logger.With("component", "clicklog.publisher"),
		metrics:   recorder,
	}
}

// Publish adds click to the stream. The caller (the redirect handler's
// detached pool) already bounds this with its own deadline; Publish adds
// a short ceiling of its own so a stalled Redis connection cannot pin a
// detached-pool worker indefinitely.
func (p *Publisher) Publish(ctx context.Context, click *model.RawClick) error {
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	data, err := json.Marshal(toWire(click))
	if err != nil {
		return fmt.Errorf("marshal click: %w", err)
	}

	_, err = p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"payload": string(data)},
	}).Result()
	if err != nil {
		p.metrics.IncAnalyticsEventPublished("dropped")
		return fmt.Errorf("xadd: %w", err)
	}

	p.metrics.IncAnalyticsEventPublished("success")
	return nil
}
