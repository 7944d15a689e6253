package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/clickplane/core/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// resetSchema applies a migration's down then up SQL files, giving tests a
// clean copy of one table group without tearing down the whole database.
func resetSchema(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", migration+".down.sql")
	upPath := filepath.Join(root, "migrations", migration+".up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read %s down migration: %w", migration, err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply %s down migration: %w", migration, err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read %s up migration: %w", migration, err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply %s up migration: %w", migration, err)
	}

	return nil
}

// ResetWorkspacesSchema drops and recreates the workspaces table for tests.
func ResetWorkspacesSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000001_workspaces")
}

// ResetDomainsLinksSchema drops and recreates the domains and links tables
// for tests. Links reference domains, so the two reset together.
func ResetDomainsLinksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_domains_links")
}

// ResetRawClicksSchema drops and recreates the raw_clicks and
// aggregation_state tables for tests.
func ResetRawClicksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000003_raw_clicks")
}

// ResetRollupsSchema drops and recreates all five rollup tables for tests.
func ResetRollupsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000004_rollups")
}

// ResetBillingSchema drops and recreates the billing_usage_periods and
// billing_mismatches tables for tests.
func ResetBillingSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000005_billing")
}

// ResetAPIKeysSchema drops and recreates the api_keys table for tests.
func ResetAPIKeysSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000006_api_keys")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestWorkspace creates a test workspace on the Free plan with sensible
// defaults. Free workspaces carry no billing period (spec.md §3).
func NewTestWorkspace(t testing.TB, id string) *model.Workspace {
	t.Helper()
	now := time.Now().UTC()
	return &model.Workspace{
		ID:            id,
		Plan:          model.PlanFree,
		BillingStatus: "active",
		CreatedAt:     now,
	}
}

// NewTestProWorkspace creates a test workspace on the Pro plan with a
// billing period spanning the given bounds.
func NewTestProWorkspace(t testing.TB, id string, periodStart, periodEnd time.Time) *model.Workspace {
	t.Helper()
	ws := NewTestWorkspace(t, id)
	ws.Plan = model.PlanPro
	ws.CurrentPeriodStart = &periodStart
	ws.CurrentPeriodEnd = &periodEnd
	return ws
}

// NewTestDomain creates a test domain owned by the given workspace. Pass an
// empty workspaceID to create the shared default domain.
func NewTestDomain(t testing.TB, hostname, workspaceID string) *model.Domain {
	t.Helper()
	d := &model.Domain{
		ID:        UniqueID("domain"),
		Hostname:  hostname,
		Status:    model.DomainStatusVerified,
		CreatedAt: time.Now().UTC(),
	}
	if workspaceID != "" {
		d.WorkspaceID = &workspaceID
	}
	return d
}

// NewTestLink creates a test link with sensible defaults.
func NewTestLink(t testing.TB, workspaceID, domainID, slug string) *model.Link {
	t.Helper()
	now := time.Now().UTC()
	return &model.Link{
		ID:          UniqueID("link"),
		WorkspaceID: workspaceID,
		DomainID:    domainID,
		Slug:        slug,
		Destination: "https://example.com/" + slug,
		Enabled:     true,
		CreatedAt:   now,
	}
}

// NewTestDeletedLink creates a test link that has been soft-deleted.
func NewTestDeletedLink(t testing.TB, workspaceID, domainID, slug string) *model.Link {
	t.Helper()
	link := NewTestLink(t, workspaceID, domainID, slug)
	deletedAt := time.Now().UTC()
	link.DeletedAt = &deletedAt
	return link
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, workspaceID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:            UniqueID("key"),
		WorkspaceID:   workspaceID,
		KeyHash:       fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix:     "pk_test_",
		Scopes:        []string{model.ScopeRead},
		RateLimitTier: model.TierFree,
		Name:          "Test Key",
		CreatedAt:     now,
	}
}

// NewTestAPIKeyWithScopes creates a test API key with specific scopes.
func NewTestAPIKeyWithScopes(t testing.TB, workspaceID string, scopes []string) *model.APIKey {
	t.Helper()
	key := NewTestAPIKey(t, workspaceID)
	key.Scopes = scopes
	return key
}

// NewTestRawClick creates a test raw click for the given link.
func NewTestRawClick(t testing.TB, workspaceID, linkID string) *model.RawClick {
	t.Helper()
	now := time.Now().UTC()
	return &model.RawClick{
		ClickID:      UniqueID("click"),
		InsertedULID: UniqueID("ulid"),
		Timestamp:    now,
		WorkspaceID:  workspaceID,
		LinkID:       linkID,
		Domain:       "short.test",
		Slug:         "abc123",
		Destination:  "https://example.com/abc123",
		UserAgent:    "Mozilla/5.0",
		IPHash:       fmt.Sprintf("iphash-%d", now.UnixNano()),
		Country:      "US",
		DeviceClass:  model.DeviceDesktop,
	}
}

// UniqueShortCode generates a unique short code for tests.
func UniqueShortCode(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
