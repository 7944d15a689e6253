package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/clickplane/core/internal/model"
)

type fakeCatalog struct {
	domains map[string]*model.Domain
	links   map[string]*model.Link // key: domainID+"/"+slug
}

func (f *fakeCatalog) ResolveDomain(_ context.Context, hostname string) (*model.Domain, error) {
	d, ok := f.domains[hostname]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeCatalog) ResolveLink(_ context.Context, domainID, slug string) (*model.Link, error) {
	l, ok := f.links[domainID+"/"+slug]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func newFixture() *fakeCatalog {
	return &fakeCatalog{
		domains: map[string]*model.Domain{
			"go.example.com":      {ID: "dom-1", Status: model.DomainStatusVerified},
			"pending.example.com": {ID: "dom-2", Status: model.DomainStatusPending},
			"failed.example.com":  {ID: "dom-3", Status: model.DomainStatusFailed},
		},
		links: map[string]*model.Link{
			"dom-1/active":   {ID: "link-1", Slug: "active", Enabled: true},
			"dom-1/disabled": {ID: "link-2", Slug: "disabled", Enabled: false},
		},
	}
}

func TestResolve_ActiveLink(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "go.example.com", "active")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeResolved {
		t.Fatalf("Outcome = %v, want OutcomeResolved", res.Outcome)
	}
	if res.Link.ID != "link-1" {
		t.Errorf("Link.ID = %s, want link-1", res.Link.ID)
	}
}

func TestResolve_UnknownDomain(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "nope.example.com", "active")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %v, want OutcomeNotFound", res.Outcome)
	}
}

func TestResolve_PendingDomain(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "pending.example.com", "anything")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %v, want OutcomeNotFound", res.Outcome)
	}
}

func TestResolve_FailedDomain(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "failed.example.com", "anything")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %v, want OutcomeNotFound", res.Outcome)
	}
}

func TestResolve_UnknownSlug(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "go.example.com", "missing")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %v, want OutcomeNotFound", res.Outcome)
	}
}

func TestResolve_DisabledLink(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), newFixture(), "go.example.com", "disabled")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Errorf("Outcome = %v, want OutcomeNotFound", res.Outcome)
	}
}

type erroringCatalog struct{ err error }

func (e *erroringCatalog) ResolveDomain(_ context.Context, _ string) (*model.Domain, error) {
	return nil, e.err
}

func (e *erroringCatalog) ResolveLink(_ context.Context, _, _ string) (*model.Link, error) {
	return nil, e.err
}

func TestResolve_PropagatesInfrastructureError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	_, err := Resolve(context.Background(), &erroringCatalog{err: wantErr}, "go.example.com", "active")
	if !errors.Is(err, wantErr) {
		t.Errorf("Resolve() error = %v, want %v", err, wantErr)
	}
}
