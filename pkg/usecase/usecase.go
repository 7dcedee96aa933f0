package usecase

import (
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/service/token"
)

// UseCases wires the services behind the HTTP surface
type UseCases struct {
	aggregator *presence.Aggregator
	cache      *presence.Cache
	roster     interfaces.RosterSource
	repo       interfaces.Repository
	tokens     *token.Manager
	normalizer *types.Normalizer
}

// Option is a functional option for UseCases
type Option func(*UseCases)

// WithTokenManager attaches the token manager, enabling the delegated
// login endpoints and the token audit view
func WithTokenManager(tokens *token.Manager) Option {
	return func(uc *UseCases) {
		uc.tokens = tokens
	}
}

// WithNormalizer overrides the status normalizer used for webhook payloads
func WithNormalizer(n *types.Normalizer) Option {
	return func(uc *UseCases) {
		uc.normalizer = n
	}
}

// New creates the use case layer over an aggregator, a roster source and
// the repository
func New(aggregator *presence.Aggregator, roster interfaces.RosterSource, repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		aggregator: aggregator,
		cache:      aggregator.Cache(),
		roster:     roster,
		repo:       repo,
		normalizer: types.DefaultNormalizer(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// TokenManager exposes the token manager for the auth endpoints. Nil when
// no delegated credential is configured.
func (uc *UseCases) TokenManager() *token.Manager {
	return uc.tokens
}
