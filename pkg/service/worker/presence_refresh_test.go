package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/repository/memory"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/service/worker"
)

type countingRoster struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRoster) ActiveAgents(ctx context.Context) ([]*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return []*model.Agent{
		{HelpdeskID: "1", GraphID: "u1", DisplayName: "Alice", Active: true},
	}, nil
}

func (r *countingRoster) FindByProviderID(ctx context.Context, id model.UserID) (*model.Agent, error) {
	return nil, goerr.Wrap(types.ErrNotFound, "not implemented")
}

func (r *countingRoster) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type staticProvider struct{}

func (p *staticProvider) Name() string { return "graph" }

func (p *staticProvider) FetchPresence(ctx context.Context, agents []*model.Agent) ([]*model.RawPresence, error) {
	results := make([]*model.RawPresence, len(agents))
	for i, agent := range agents {
		results[i] = &model.RawPresence{
			ID:          agent.Key(),
			DisplayName: agent.DisplayName,
			RawStatus:   "Available",
			Status:      types.StatusAvailable,
			ObservedAt:  time.Now(),
		}
	}
	return results, nil
}

func TestPresenceRefreshWorker(t *testing.T) {
	ctx := context.Background()

	roster := &countingRoster{}
	repo := memory.New()
	cache := presence.NewCache(repo.Presence())
	agg := presence.NewAggregator(roster, cache, &staticProvider{})

	w := worker.NewPresenceRefreshWorker(agg, 30*time.Millisecond)
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for roster.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	gt.Bool(t, roster.callCount() >= 2).True()

	record, ok := cache.Lookup(ctx, "u1")
	gt.Bool(t, ok).True()
	gt.Value(t, record.Status).Equal(types.StatusAvailable)
	gt.Value(t, record.Provenance).Equal(types.ProvenancePolled)

	// Stop is idempotent in effect: no further polls after it returns
	after := roster.callCount()
	time.Sleep(100 * time.Millisecond)
	gt.Number(t, roster.callCount()).Equal(after)
}
