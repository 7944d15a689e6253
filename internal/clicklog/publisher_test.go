//go:build integration

package clicklog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clickplane/core/internal/model"
)

func newTestRedis(t *testing.T) (context.Context, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	_ = client.FlushDB(ctx).Err()

	return ctx, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_Publish(t *testing.T) {
	ctx, client := newTestRedis(t)
	streamKey := "stream:clicks:test"
	pub := NewPublisher(client, streamKey, testLogger(), nil)

	click := &model.RawClick{
		ClickID:      "click-1",
		Timestamp:    time.Now().UTC(),
		WorkspaceID:  "ws-1",
		LinkID:       "link-1",
		Domain:       "short.test",
		Slug:         "abc",
		Destination:  "https://example.com/abc",
		IPHash:       "hash1",
		DeviceClass:  model.DeviceDesktop,
	}

	if err := pub.Publish(ctx, click); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entries, err := client.XRange(ctx, streamKey, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	payload, ok := entries[0].Values["payload"].(string)
	if !ok {
		t.Fatalf("payload field missing or wrong type")
	}

	var wire clickWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if wire.ClickID != click.ClickID {
		t.Errorf("ClickID = %q, want %q", wire.ClickID, click.ClickID)
	}
	if wire.WorkspaceID != click.WorkspaceID {
		t.Errorf("WorkspaceID = %q, want %q", wire.WorkspaceID, click.WorkspaceID)
	}
}

func TestPublisher_DefaultsToPackageStreamKey(t *testing.T) {
	ctx, client := newTestRedis(t)
	pub := NewPublisher(client, "", testLogger(), nil)

	click := &model.RawClick{
		ClickID:     "click-2",
		Timestamp:   time.Now().UTC(),
		WorkspaceID: "ws-1",
		LinkID:      "link-1",
		IPHash:      "hash2",
		DeviceClass: model.DeviceDesktop,
	}

	if err := pub.Publish(ctx, click); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entries, err := client.XRange(ctx, StreamKey, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry on default stream key, got %d", len(entries))
	}
}

func TestToWireFromWire_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Round(time.Millisecond)
	click := &model.RawClick{
		ClickID:      "click-3",
		InsertedULID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Timestamp:    now,
		WorkspaceID:  "ws-1",
		LinkID:       "link-1",
		Domain:       "short.test",
		Slug:         "abc",
		Destination:  "https://example.com/abc",
		Referrer:     "https://google.com/search",
		UserAgent:    "Mozilla/5.0",
		IPHash:       "hash3",
		Country:      "US",
		Region:       "CA",
		City:         "San Francisco",
		DeviceClass:  model.DeviceMobile,
		BotSuspected: false,
	}

	roundTripped := fromWire(toWire(click))

	if roundTripped.ClickID != click.ClickID {
		t.Errorf("ClickID mismatch: got %q, want %q", roundTripped.ClickID, click.ClickID)
	}
	if !roundTripped.Timestamp.Equal(click.Timestamp) {
		t.Errorf("Timestamp mismatch: got %v, want %v", roundTripped.Timestamp, click.Timestamp)
	}
	if roundTripped.DeviceClass != click.DeviceClass {
		t.Errorf("DeviceClass mismatch: got %q, want %q", roundTripped.DeviceClass, click.DeviceClass)
	}
}
