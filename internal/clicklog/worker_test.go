//go:build integration

package clicklog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickplane/core/internal/model"
)

// fakeRepository is an in-memory stand-in for the worker's persistence
// surface, recording every batch it's handed.
type fakeRepository struct {
	mu     sync.Mutex
	clicks []*model.RawClick
	fail   bool
}

func (f *fakeRepository) BulkInsertRawClicks(_ context.Context, clicks []*model.RawClick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.clicks = append(f.clicks, clicks...)
	return nil
}

func (f *fakeRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clicks)
}

func TestWorker_ProcessOnce_PersistsValidMessage(t *testing.T) {
	ctx, client := newTestRedis(t)
	streamKey := "stream:clicks:worker-test"
	group := "worker-test-group"
	repo := &fakeRepository{}
	w := NewWorker(client, repo, streamKey, group, testLogger(), "consumer-1", nil)

	pub := NewPublisher(client, streamKey, testLogger(), nil)
	click := &model.RawClick{
		ClickID:     "click-w1",
		Timestamp:   time.Now().UTC(),
		WorkspaceID: "ws-1",
		LinkID:      "link-1",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		IPHash:      "hashw1",
		DeviceClass: model.DeviceDesktop,
	}
	if err := pub.Publish(ctx, click); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := w.ensureConsumerGroup(ctx); err != nil {
		t.Fatalf("ensureConsumerGroup failed: %v", err)
	}
	if err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}

	if repo.count() != 1 {
		t.Fatalf("expected 1 persisted click, got %d", repo.count())
	}
}

func TestWorker_ParseMessages_DeadLettersPoisonMessage(t *testing.T) {
	ctx, client := newTestRedis(t)
	streamKey := "stream:clicks:poison-test"
	group := "poison-test-group"
	repo := &fakeRepository{}
	w := NewWorker(client, repo, streamKey, group, testLogger(), "consumer-1", nil)

	// Publish a message missing the payload field entirely.
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		ID:     "*",
		Values: map[string]interface{}{"not_payload": "oops"},
	}).Err(); err != nil {
		t.Fatalf("xadd malformed message: %v", err)
	}

	if err := w.ensureConsumerGroup(ctx); err != nil {
		t.Fatalf("ensureConsumerGroup failed: %v", err)
	}
	if err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}

	if repo.count() != 0 {
		t.Fatalf("expected 0 persisted clicks for poison message, got %d", repo.count())
	}

	dlq, err := client.XRange(ctx, DeadLetterStreamKey, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange dlq failed: %v", err)
	}
	if len(dlq) != 1 {
		t.Fatalf("expected 1 dead-lettered message, got %d", len(dlq))
	}
	if dlq[0].Values["reason"] != "invalid_format" {
		t.Errorf("reason = %v, want invalid_format", dlq[0].Values["reason"])
	}
}

func TestWorker_RunAndShutdown(t *testing.T) {
	ctx, client := newTestRedis(t)
	streamKey := "stream:clicks:run-test"
	group := "run-test-group"
	repo := &fakeRepository{}
	w := NewWorker(client, repo, streamKey, group, testLogger(), "consumer-1", nil)
	w.SetBlockTimeout(200 * time.Millisecond)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(runCtx) }()

	time.Sleep(50 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Shutdown")
	}
}
