package model

import "time"

// DomainStatus represents a domain's position in the verification
// lifecycle: every domain starts pending, then moves to verified (DNS/TLS
// ownership confirmed) or failed. Only verified domains participate in
// resolution.
type DomainStatus string

const (
	DomainStatusPending  DomainStatus = "pending"
	DomainStatusVerified DomainStatus = "verified"
	DomainStatusFailed   DomainStatus = "failed"
)

// Domain is a hostname links resolve under. WorkspaceID is nil for the
// shared default domain serving every workspace's short links.
type Domain struct {
	ID          string       `json:"id"`
	WorkspaceID *string      `json:"workspace_id,omitempty"`
	Hostname    string       `json:"hostname"`
	Status      DomainStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsActive reports whether the domain accepts redirect traffic.
func (d *Domain) IsActive() bool {
	return d.Status == DomainStatusVerified
}
