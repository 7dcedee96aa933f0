package interfaces

import (
	"context"

	"github.com/secmon-lab/briareus/pkg/domain/model"
)

// Repository defines the interface for in-process state. The presence cache
// has no persistence and no cross-process sharing; it is rebuilt from
// scratch on restart, so the only implementation is the memory one.
type Repository interface {
	Presence() PresenceStore
	TokenAudit() TokenAuditStore

	Close() error
}

// PresenceStore is the keyed store behind the presence cache. Mutation
// ordering across multiple keys is owned by the cache service; the store
// only guarantees per-call consistency.
type PresenceStore interface {
	Get(ctx context.Context, id model.UserID) (*model.PresenceRecord, error)
	Put(ctx context.Context, record *model.PresenceRecord) error
	List(ctx context.Context) ([]*model.PresenceRecord, error)
	Count(ctx context.Context) (int, error)

	// Clear removes every record. Used only by the administrative reset
	// and the full-reset fetch mode.
	Clear(ctx context.Context) error

	GetMetadata(ctx context.Context) (*model.PresenceMetadata, error)
	SaveMetadata(ctx context.Context, meta *model.PresenceMetadata) error
}

// TokenAuditStore is the append-only in-memory list of successful token
// refreshes, kept for observability.
type TokenAuditStore interface {
	Append(ctx context.Context, event *model.TokenRefreshEvent) error
	List(ctx context.Context) ([]*model.TokenRefreshEvent, error)
}
