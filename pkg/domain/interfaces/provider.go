package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// TokenSource hands out live upstream credentials. Implementations must
// never return a token within its safety buffer of expiry.
type TokenSource interface {
	GetToken(ctx context.Context, scope types.TokenScope) (*model.AccessToken, error)
}

// PresenceProvider fetches raw presence for a set of known agents.
//
// Contract:
//   - a single agent's failure degrades that one result to Offline with an
//     error annotation and never aborts the overall fetch
//   - the call errors only on token acquisition failure or a total upstream
//     outage (zero successful batches and a transport failure first)
type PresenceProvider interface {
	// Name identifies the provider in provenance logs ("graph", "slack")
	Name() string
	FetchPresence(ctx context.Context, agents []*model.Agent) ([]*model.RawPresence, error)
}

// SubscriptionClient manages webhook subscriptions on the upstream
// notification service.
type SubscriptionClient interface {
	CreateSubscription(ctx context.Context, notificationURL string, ttl time.Duration) (*model.Subscription, error)
	RenewSubscription(ctx context.Context, id string, ttl time.Duration) (time.Time, error)
	DeleteSubscription(ctx context.Context, id string) error
}
