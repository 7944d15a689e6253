package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clickplane/core/internal/model"
)

// WorkspaceReader is the subset of Store the plan cache needs, so it can be
// unit tested against a fake.
type WorkspaceReader interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
}

type cacheEntry struct {
	workspace *model.Workspace
	expiresAt time.Time
}

// PlanCache is a short-TTL, in-process cache of workspace plan state, so
// the hot redirect path does not hit Postgres for a plan lookup on every
// request. Entries expire after ttl and, in development, can additionally
// be invalidated by editing a local overrides file.
type PlanCache struct {
	reader WorkspaceReader
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewPlanCache builds a PlanCache backed by reader with the given TTL.
func NewPlanCache(reader WorkspaceReader, ttl time.Duration, logger *slog.Logger) *PlanCache {
	return &PlanCache{
		reader:  reader,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the workspace's current plan state, serving from cache when
// the entry has not expired.
func (c *PlanCache) Get(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	c.mu.RLock()
	entry, ok := c.entries[workspaceID]
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.workspace, nil
	}

	ws, err := c.reader.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[workspaceID] = cacheEntry{workspace: ws, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return ws, nil
}

// Invalidate drops a single workspace's cached entry.
func (c *PlanCache) Invalidate(workspaceID string) {
	c.mu.Lock()
	delete(c.entries, workspaceID)
	c.mu.Unlock()
}

// planOverride is the shape of a dev-only overrides file: a map of
// workspace id to plan. The plan value is parsed but not applied; only the
// workspace ids matter, since reloading the file drops their cached entries
// so the next Get re-reads the catalog.
type planOverride struct {
	Plan string `json:"plan"`
}

// WatchOverridesFile watches path for writes and invalidates every
// workspace named in the file whenever it changes. Intended for
// development and integration tests only; production deployments should
// leave PlanOverridesFile unset. Returns immediately if path is empty.
func (c *PlanCache) WatchOverridesFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				c.reloadOverrides(path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("plan overrides watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

func (c *PlanCache) reloadOverrides(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("read plan overrides file failed", slog.String("error", err.Error()))
		return
	}

	var overrides map[string]planOverride
	if err := json.Unmarshal(data, &overrides); err != nil {
		c.logger.Warn("parse plan overrides file failed", slog.String("error", err.Error()))
		return
	}

	for workspaceID := range overrides {
		c.Invalidate(workspaceID)
	}
	c.logger.Info("plan overrides reloaded", slog.Int("workspaces", len(overrides)))
}
