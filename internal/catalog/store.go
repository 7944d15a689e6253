// Package catalog provides read access to workspaces, domains, and links —
// the relational truth the Resolver and Redirect Handler consult on every
// request.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clickplane/core/internal/model"
)

// ErrNotFound is returned when a domain, link, or workspace lookup misses.
// It is the same sentinel resolver.ErrNotFound wraps, so callers across
// package boundaries can use a single errors.Is check.
var ErrNotFound = model.ErrNotFound

// Store is a pgx-backed read path over the catalog tables.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool as a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ResolveDomain looks up a domain by hostname.
func (s *Store) ResolveDomain(ctx context.Context, hostname string) (*model.Domain, error) {
	const q = `
		SELECT id, workspace_id, hostname, status, created_at
		FROM domains
		WHERE hostname = $1`

	var d model.Domain
	err := s.pool.QueryRow(ctx, q, hostname).Scan(
		&d.ID, &d.WorkspaceID, &d.Hostname, &d.Status, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve domain %q: %w", hostname, err)
	}
	return &d, nil
}

// ResolveLink looks up a link by domain and slug. DeletedAt rows never
// match: the WHERE clause filters them at the source.
func (s *Store) ResolveLink(ctx context.Context, domainID, slug string) (*model.Link, error) {
	const q = `
		SELECT id, workspace_id, domain_id, slug, destination, enabled, deleted_at, created_at
		FROM links
		WHERE domain_id = $1 AND slug = $2 AND deleted_at IS NULL`

	var l model.Link
	err := s.pool.QueryRow(ctx, q, domainID, slug).Scan(
		&l.ID, &l.WorkspaceID, &l.DomainID, &l.Slug, &l.Destination,
		&l.Enabled, &l.DeletedAt, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve link %s/%s: %w", domainID, slug, err)
	}
	return &l, nil
}

// GetWorkspace loads a workspace's plan and billing-period state.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	const q = `
		SELECT id, plan, billing_status, current_period_start, current_period_end, created_at
		FROM workspaces
		WHERE id = $1`

	var w model.Workspace
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&w.ID, &w.Plan, &w.BillingStatus, &w.CurrentPeriodStart, &w.CurrentPeriodEnd, &w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get workspace %s: %w", id, err)
	}
	return &w, nil
}
