// Package model defines domain entities for the click data plane.
package model

import (
	"time"
)

// LinkStatus represents the computed status of a link.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusDisabled LinkStatus = "disabled"
	LinkStatusDeleted  LinkStatus = "deleted"
)

// Link represents a shortened URL entity: a (domain, slug) pair that
// resolves to a destination URL.
type Link struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	DomainID    string     `json:"domain_id"`
	Slug        string     `json:"slug"`
	Destination string     `json:"destination"`
	Enabled     bool       `json:"enabled"`
	DeletedAt   *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Status computes the current status of the link.
func (l *Link) Status() LinkStatus {
	if l.DeletedAt != nil {
		return LinkStatusDeleted
	}
	if !l.Enabled {
		return LinkStatusDisabled
	}
	return LinkStatusActive
}

// IsActive returns true if the link can be used for redirects.
func (l *Link) IsActive() bool {
	return l.Status() == LinkStatusActive
}
