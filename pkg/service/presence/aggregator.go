package presence

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/errutil"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

// Aggregator performs the full fetch: roster, every provider, conflict
// resolution, and the cache upsert.
type Aggregator struct {
	roster    interfaces.RosterSource
	providers []interfaces.PresenceProvider
	cache     *Cache
}

// NewAggregator creates an aggregator over the given providers
func NewAggregator(roster interfaces.RosterSource, cache *Cache, providers ...interfaces.PresenceProvider) *Aggregator {
	return &Aggregator{
		roster:    roster,
		providers: providers,
		cache:     cache,
	}
}

// Cache returns the cache this aggregator writes to
func (a *Aggregator) Cache() *Cache {
	return a.cache
}

// coveredBy reports whether the agent carries a cross-reference the named
// provider resolves
func coveredBy(agent *model.Agent, provider string) bool {
	switch provider {
	case "graph":
		return agent.GraphID != ""
	case "slack":
		return agent.SlackID != ""
	}
	return false
}

// RefreshAll fetches presence for the whole roster and lands it in the
// cache. One provider failing (token expiry, outage) degrades its agents to
// Offline and does not affect the other providers. Returns the number of
// records written.
func (a *Aggregator) RefreshAll(ctx context.Context, mode UpdateMode, provenance types.Provenance) (int, error) {
	agents, err := a.roster.ActiveAgents(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to load roster")
	}
	if len(agents) == 0 {
		logging.From(ctx).Warn("roster is empty, nothing to refresh")
		return 0, nil
	}

	merged := make(map[model.UserID]*model.RawPresence, len(agents))
	var providerErrs []string
	failed := make(map[string]string)

	for _, provider := range a.providers {
		results, err := provider.FetchPresence(ctx, agents)
		if err != nil {
			errutil.Log(ctx, err, "provider fetch failed, its agents degrade to offline")
			providerErrs = append(providerErrs, provider.Name()+": "+err.Error())
			failed[provider.Name()] = provider.Name() + ": " + err.Error()
			continue
		}
		for _, result := range results {
			if result == nil {
				continue
			}
			merged[result.ID] = pickPreferred(merged[result.ID], result)
		}
	}

	if len(a.providers) > 0 && len(providerErrs) == len(a.providers) {
		return 0, goerr.Wrap(types.ErrUpstreamOutage, "every presence provider failed",
			goerr.V("providers", providerErrs))
	}

	// Agents no source answered for still get a record: Offline, marked as
	// fallback so the degradation is visible downstream
	now := time.Now()
	for _, agent := range agents {
		key := agent.Key()
		if _, ok := merged[key]; ok {
			continue
		}
		// Blame a provider error only when a failed provider actually
		// covers this agent; a gap with every provider healthy is just
		// missing coverage
		note := "no presence source answered"
		for name, msg := range failed {
			if coveredBy(agent, name) {
				note = msg
				break
			}
		}
		merged[key] = &model.RawPresence{
			ID:          key,
			DisplayName: agent.DisplayName,
			Email:       agent.Email,
			Status:      types.StatusOffline,
			ObservedAt:  now,
			Err:         note,
		}
	}

	records := make([]*model.RawPresence, 0, len(merged))
	for _, record := range merged {
		records = append(records, record)
	}

	if err := a.cache.UpsertFromFetch(ctx, records, mode, provenance); err != nil {
		return 0, goerr.Wrap(err, "failed to upsert fetched presence")
	}

	logging.From(ctx).Info("presence refresh completed",
		"agents", len(agents),
		"records", len(records),
		"provenance", provenance,
		"provider_errors", len(providerErrs),
	)

	return len(records), nil
}
