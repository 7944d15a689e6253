// Package resolver implements the pure domain→slug resolution algorithm
// the redirect handler calls on every request. It performs no I/O itself;
// callers supply a CatalogReader so the algorithm is testable without a
// database.
package resolver

import (
	"context"
	"errors"

	"github.com/clickplane/core/internal/model"
)

// Outcome classifies why resolution did or did not produce a redirect
// target, distinguishing the reasons a caller must treat identically as
// "not found" from genuine infrastructure failures.
type Outcome int

const (
	// OutcomeResolved means Link holds a usable redirect target.
	OutcomeResolved Outcome = iota
	// OutcomeNotFound means no active link exists for this host+path;
	// the caller must respond 404 regardless of the underlying reason
	// (unknown domain, unknown slug, disabled link, or soft-deleted link).
	OutcomeNotFound
)

// CatalogReader is the read-only catalog surface the resolver depends on.
type CatalogReader interface {
	ResolveDomain(ctx context.Context, hostname string) (*model.Domain, error)
	ResolveLink(ctx context.Context, domainID, slug string) (*model.Link, error)
}

// ErrNotFound is the sentinel CatalogReader implementations (e.g.
// catalog.Store) return when a lookup misses.
var ErrNotFound = model.ErrNotFound

// Result is the outcome of a resolution attempt.
type Result struct {
	Outcome Outcome
	Link    *model.Link
}

// Resolve looks up the domain for hostname, then the link for slug under
// that domain, and returns OutcomeResolved only if both lookups succeed
// and the link's computed status is active. Every other case — unknown
// domain, disabled domain, unknown slug, disabled link, soft-deleted link
// — collapses to OutcomeNotFound, by design: the caller must not leak
// which of these applies.
func Resolve(ctx context.Context, reader CatalogReader, hostname, slug string) (Result, error) {
	domain, err := reader.ResolveDomain(ctx, hostname)
	if isNotFound(err) {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !domain.IsActive() {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	link, err := reader.ResolveLink(ctx, domain.ID, slug)
	if isNotFound(err) {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !link.IsActive() {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	return Result{Outcome: OutcomeResolved, Link: link}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
