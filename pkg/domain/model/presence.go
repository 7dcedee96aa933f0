package model

import (
	"time"

	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// UserID is the stable provider-side identifier used as the cache key.
// For agents with a UC-platform cross-reference this is their directory
// object ID; otherwise the team-chat or helpdesk ID is used.
type UserID string

// String returns the string representation of the user ID
func (id UserID) String() string {
	return string(id)
}

// PresenceRecord is the last-known canonical presence of one agent. Records
// are created on first sighting and mutated in place afterward; they are
// never deleted during normal operation (an agent goes Offline instead).
// Bulk clearing happens only through the administrative reset.
type PresenceRecord struct {
	ID            UserID           `json:"id"`
	DisplayName   string           `json:"displayName"`
	Email         string           `json:"email"`
	Status        types.Status     `json:"status"`
	Provenance    types.Provenance `json:"provenance"`
	LastUpdatedAt time.Time        `json:"lastUpdated"`

	// RawStatus keeps the last raw upstream value for diagnostics
	RawStatus string `json:"rawStatus,omitempty"`
	// LastError annotates the most recent per-user fetch failure, if any
	LastError string `json:"lastError,omitempty"`
}

// Clone returns a copy so snapshot readers never share mutable state
func (r *PresenceRecord) Clone() *PresenceRecord {
	clone := *r
	return &clone
}

// RawPresence is the uniform per-user result shape produced by every
// provider fetcher, before merging into the cache.
type RawPresence struct {
	ID          UserID
	DisplayName string
	Email       string
	Provider    string
	RawStatus   string
	Status      types.Status
	ObservedAt  time.Time

	// Err annotates a per-user fetch failure; such results carry
	// Status Offline and never abort the batch they belong to.
	Err string
}

// PresenceMetadata tracks the freshness of the cache as a whole
type PresenceMetadata struct {
	LastFullRefresh    time.Time // last successful full fetch
	LastRefreshAttempt time.Time // last full fetch attempt, success or not
	LastUpdate         time.Time // last mutation of any kind, webhook included
	RecordCount        int       // records at last successful full fetch
}
