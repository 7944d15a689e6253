package clicklog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickplane/core/internal/enrich"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group draining the click stream.
	ConsumerGroup = "clicklog_workers"

	DefaultBatchSize       = 500
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second
)

// Repository is the persistence surface the worker needs.
type Repository interface {
	BulkInsertRawClicks(ctx context.Context, clicks []*model.RawClick) error
}

// Worker drains the click stream and persists raw clicks. Grounded on the
// teacher's internal/analytics/worker.go consumer-group loop, generalized
// from a single BulkInsert+UpdateDailyStats step to the raw_clicks-only
// insert-or-ignore target of spec.md §4.6 (aggregation is a separate,
// independently scheduled job here, not folded into the consumer).
type Worker struct {
	redis   *redis.Client
	repo    Repository
	logger  *slog.Logger
	metrics metrics.Recorder

	streamKey       string
	consumerGroup   string
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker builds a Worker. streamKey and group override StreamKey and
// ConsumerGroup when non-empty, so deployments can point the worker at
// config.Config's CLICK_QUEUE_STREAM / CLICK_QUEUE_CONSUMER_GROUP.
func NewWorker(client *redis.Client, repo Repository, streamKey, group string, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if streamKey == "" {
		streamKey = StreamKey
	}
	if group == "" {
		group = ConsumerGroup
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "clicklog.worker", "consumer_id", consumerID),
		metrics:         recorder,
		streamKey:       streamKey,
		consumerGroup:   group,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled or Shutdown
// is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("click log worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("click log worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("click log worker stopping")
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, letting any in-flight batch finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	claimed, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	messages := claimed
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	clicks, messageIDs := w.parseMessages(ctx, messages)
	if len(clicks) == 0 {
		return w.ackMessages(ctx, messageIDs)
	}

	if err := w.processBatchWithRetry(ctx, clicks); err != nil {
		w.logger.Error("batch insert failed after retries", "batch_size", len(clicks), "error", err)
		// Leave unacked: redelivery is safe, insert is idempotent on click_id.
		return err
	}

	return w.ackMessages(ctx, messageIDs)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   w.streamKey,
		Group:    w.consumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, w.streamKey).Result()
	if err != nil && err != redis.Nil {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == w.consumerGroup {
			w.metrics.SetAnalyticsQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    w.consumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{w.streamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// parseMessages converts Redis messages into raw clicks. A message that
// fails to parse is a permanent poison message (spec.md §4.6): it is
// dead-lettered and excluded from the batch rather than blocking it.
// Device class and bot flag are re-derived here per spec.md §4.6 so the
// persisted row does not trust the wire payload's copy of those fields.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.RawClick, []string) {
	clicks := make([]*model.RawClick, 0, len(messages))
	messageIDs := make([]string, 0, len(messages))

	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)

		payload, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetterMessage(ctx, msg, "invalid_format", "payload field missing or not a string")
			continue
		}

		var wire clickWire
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			w.deadLetterMessage(ctx, msg, "unmarshal_error", err.Error())
			continue
		}
		if wire.ClickID == "" || wire.WorkspaceID == "" || wire.LinkID == "" {
			w.deadLetterMessage(ctx, msg, "validation_error", "missing click_id, workspace_id, or link_id")
			continue
		}

		click := fromWire(wire)
		click.BotSuspected = enrich.IsBot(click.UserAgent)
		click.DeviceClass = model.DeviceClass(enrich.DeviceClass(click.UserAgent))
		// Referrer stays raw here; normalization into referrer_host happens
		// in the aggregator (spec.md §4.4), not the consumer.

		clicks = append(clicks, click)
	}

	return clicks, messageIDs
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message", "message_id", msg.ID, "reason", reason, "detail", detail)

	_, err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  w.streamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		w.logger.Error("failed to write to dead-letter queue", "message_id", msg.ID, "error", err)
	}

	w.metrics.IncAnalyticsEventProcessed("dead_lettered")
}

func (w *Worker) processBatchWithRetry(ctx context.Context, clicks []*model.RawClick) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err := w.processBatch(ctx, clicks); err != nil {
			lastErr = err
			backoff := time.Duration(1<<attempt) * time.Second
			w.logger.Warn("batch insert failed, retrying", "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return nil
	}

	for range clicks {
		w.metrics.IncAnalyticsEventProcessed("failed")
	}
	return lastErr
}

func (w *Worker) processBatch(ctx context.Context, clicks []*model.RawClick) error {
	start := time.Now()

	if err := w.repo.BulkInsertRawClicks(ctx, clicks); err != nil {
		return fmt.Errorf("bulk insert raw clicks: %w", err)
	}

	w.logger.Info("batch persisted", "clicks", len(clicks), "duration_ms", float64(time.Since(start).Microseconds())/1000)
	w.metrics.ObserveAnalyticsBatchSize(len(clicks))
	w.metrics.ObserveAnalyticsBatchDuration(time.Since(start))
	for _, c := range clicks {
		w.metrics.IncAnalyticsEventProcessed("success")
		w.metrics.ObserveAnalyticsIngestLag(time.Since(c.Timestamp))
	}
	return nil
}

func (w *Worker) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if _, err := w.redis.XAck(ctx, w.streamKey, w.consumerGroup, messageIDs...).Result(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking read timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" || err.Error() == "BUSYGROUP")
}
