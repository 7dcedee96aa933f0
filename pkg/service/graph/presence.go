package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// FetchPresence retrieves presence for every agent with a UC-platform
// cross-reference. Requests run concurrently inside a fixed-size batch and
// sequentially across batches, with a short pause between batches.
//
// A single agent's failure degrades that result to Offline with an error
// annotation. The call itself fails only when no token could be obtained,
// or when zero requests succeeded and the very first one failed at the
// transport level (total outage).
func (c *Client) FetchPresence(ctx context.Context, agents []*model.Agent) ([]*model.RawPresence, error) {
	targets := make([]*model.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent.GraphID != "" {
			targets = append(targets, agent)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	// Fail fast on token problems before issuing any presence request
	if _, err := c.tokens.GetToken(ctx, types.ScopeGraphPresence); err != nil {
		return nil, err
	}

	results := make([]*model.RawPresence, len(targets))
	var successCount atomic.Int64
	var errMu sync.Mutex
	var firstErr error

	for start := 0; start < len(targets); start += c.batchSize {
		end := min(start+c.batchSize, len(targets))

		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			eg.Go(func() error {
				result, err := c.fetchOne(egCtx, targets[i])
				if err != nil {
					if start == 0 {
						errMu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						errMu.Unlock()
					}
					logging.From(ctx).Warn("presence lookup failed, degrading to offline",
						"provider", c.Name(),
						"user_id", targets[i].GraphID,
						"error", err.Error(),
					)
					result = c.offlineResult(targets[i], err)
				} else {
					successCount.Add(1)
				}
				results[i] = result
				return nil
			})
		}
		// Workers never return errors; Wait only joins the batch
		_ = eg.Wait()

		if end < len(targets) {
			select {
			case <-time.After(c.batchDelay):
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "presence fetch cancelled")
			}
		}
	}

	if successCount.Load() == 0 && firstErr != nil {
		return nil, goerr.Wrap(types.ErrUpstreamOutage, "no presence request succeeded",
			goerr.V(types.ProviderKey, c.Name()),
			goerr.V("first_error", firstErr.Error()),
		)
	}

	return results, nil
}

func (c *Client) fetchOne(ctx context.Context, agent *model.Agent) (*model.RawPresence, error) {
	var resp presenceResponse
	url := fmt.Sprintf("%s/users/%s/presence", c.baseURL, agent.GraphID)
	if err := c.do(ctx, types.ScopeGraphPresence, "GET", url, nil, &resp); err != nil {
		return nil, err
	}

	raw := resp.rawStatus()
	return &model.RawPresence{
		ID:          agent.Key(),
		DisplayName: agent.DisplayName,
		Email:       agent.Email,
		Provider:    c.Name(),
		RawStatus:   raw,
		Status:      c.normalizer.Normalize(raw),
		ObservedAt:  time.Now(),
	}, nil
}

// offlineResult synthesizes the degraded record for a failed lookup
func (c *Client) offlineResult(agent *model.Agent, err error) *model.RawPresence {
	return &model.RawPresence{
		ID:          agent.Key(),
		DisplayName: agent.DisplayName,
		Email:       agent.Email,
		Provider:    c.Name(),
		Status:      types.StatusOffline,
		ObservedAt:  time.Now(),
		Err:         err.Error(),
	}
}
