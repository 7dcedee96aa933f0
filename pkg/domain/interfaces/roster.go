package interfaces

import (
	"context"

	"github.com/secmon-lab/briareus/pkg/domain/model"
)

// RosterSource is the external directory of known agents (the helpdesk's
// user directory filtered to active agents with provider cross-references).
type RosterSource interface {
	// ActiveAgents returns the allow-listed agents the proxy exposes
	// presence for
	ActiveAgents(ctx context.Context) ([]*model.Agent, error)

	// FindByProviderID resolves a provider-side user ID seen in a webhook
	// event to a roster entry. Returns types.ErrNotFound on a miss.
	FindByProviderID(ctx context.Context, id model.UserID) (*model.Agent, error)
}
