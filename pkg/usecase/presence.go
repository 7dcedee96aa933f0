package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/utils/errutil"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

// StatusReport is the result of a presence query: the visible records plus
// how the data was obtained.
type StatusReport struct {
	Agents      []*model.PresenceRecord
	Cached      bool
	Source      string
	LastUpdated time.Time
	Total       int
}

// GetAgentStatuses serves the read path. A healthy cache answers directly;
// a stale or empty one triggers a synchronous refresh first. When that
// fallback refresh fails, previously cached records are still served
// rather than dropped.
func (uc *UseCases) GetAgentStatuses(ctx context.Context) (*StatusReport, error) {
	source := "cache"
	cached := true

	if !uc.cache.Healthy(ctx) {
		logging.From(ctx).Info("presence cache unhealthy, refreshing synchronously",
			"last_updated", uc.cache.LastUpdated(ctx),
			"records", uc.cache.Count(ctx),
		)

		cached = false
		if _, err := uc.aggregator.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled); err != nil {
			if uc.cache.Count(ctx) == 0 {
				return nil, goerr.Wrap(err, "presence unavailable: refresh failed with empty cache")
			}
			errutil.Log(ctx, err, "fallback refresh failed, serving stale cache")
			source = "stale-cache"
		} else {
			source = "fallback-fetch"
		}
	}

	records, err := uc.cache.Snapshot(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to snapshot presence cache")
	}

	return &StatusReport{
		Agents:      records,
		Cached:      cached,
		Source:      source,
		LastUpdated: uc.cache.LastUpdated(ctx),
		Total:       len(records),
	}, nil
}

// ForceRefresh runs an immediate full fetch, merging into the existing
// cache
func (uc *UseCases) ForceRefresh(ctx context.Context) (*StatusReport, error) {
	if _, err := uc.aggregator.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled); err != nil {
		return nil, goerr.Wrap(err, "forced refresh failed")
	}

	records, err := uc.cache.Snapshot(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to snapshot presence cache")
	}

	return &StatusReport{
		Agents:      records,
		Cached:      false,
		Source:      "forced-refresh",
		LastUpdated: uc.cache.LastUpdated(ctx),
		Total:       len(records),
	}, nil
}

// ResetAndInitialize drops every cached record and rebuilds from a fresh
// full fetch
func (uc *UseCases) ResetAndInitialize(ctx context.Context) (int, error) {
	count, err := uc.aggregator.RefreshAll(ctx, presence.ModeReset, types.ProvenanceStartup)
	if err != nil {
		return 0, goerr.Wrap(err, "reset-and-initialize failed")
	}

	logging.From(ctx).Info("presence cache reset and rebuilt", "records", count)
	return count, nil
}

// Initialize primes the cache at startup. A failure is logged but not
// fatal: the polling worker and the read path's fallback refresh recover
// later.
func (uc *UseCases) Initialize(ctx context.Context) error {
	count, err := uc.aggregator.RefreshAll(ctx, presence.ModeReset, types.ProvenanceStartup)
	if err != nil {
		return goerr.Wrap(err, "startup presence fetch failed")
	}

	logging.From(ctx).Info("presence cache initialized", "records", count)
	return nil
}

// TokenAudit lists the recorded token refresh events
func (uc *UseCases) TokenAudit(ctx context.Context) ([]*model.TokenRefreshEvent, error) {
	return uc.repo.TokenAudit().List(ctx)
}

// HealthStatus summarizes cache liveness for the health endpoint
type HealthStatus struct {
	CacheHealthy bool
	Records      int
	LastUpdated  time.Time
}

// Health reports current cache freshness without touching any upstream
func (uc *UseCases) Health(ctx context.Context) *HealthStatus {
	return &HealthStatus{
		CacheHealthy: uc.cache.Healthy(ctx),
		Records:      uc.cache.Count(ctx),
		LastUpdated:  uc.cache.LastUpdated(ctx),
	}
}
