package memory

import (
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
)

// Repository is the in-memory implementation of interfaces.Repository.
// All state is process-local and lost on restart; the presence cache is
// repopulated by the startup fetch.
type Repository struct {
	presence *presenceStore
	audit    *auditStore
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		presence: newPresenceStore(),
		audit:    newAuditStore(),
	}
}

// Presence returns the presence store
func (r *Repository) Presence() interfaces.PresenceStore {
	return r.presence
}

// TokenAudit returns the token refresh audit store
func (r *Repository) TokenAudit() interfaces.TokenAuditStore {
	return r.audit
}

// Close releases nothing for the memory backend
func (r *Repository) Close() error {
	return nil
}
