package presence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/presence"
)

type fakeRoster struct {
	agents []*model.Agent
	err    error
}

func (r *fakeRoster) ActiveAgents(ctx context.Context) ([]*model.Agent, error) {
	return r.agents, r.err
}

func (r *fakeRoster) FindByProviderID(ctx context.Context, id model.UserID) (*model.Agent, error) {
	for _, agent := range r.agents {
		if agent.Key() == id {
			return agent, nil
		}
	}
	return nil, goerr.Wrap(types.ErrNotFound, "unknown provider ID")
}

type fakeProvider struct {
	name    string
	results []*model.RawPresence
	err     error
	calls   int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) FetchPresence(ctx context.Context, agents []*model.Agent) ([]*model.RawPresence, error) {
	p.calls++
	return p.results, p.err
}

func testAgents() []*model.Agent {
	return []*model.Agent{
		{HelpdeskID: "1", GraphID: "u1", DisplayName: "Alice", Email: "alice@example.com", Active: true},
		{HelpdeskID: "2", GraphID: "u2", DisplayName: "Bob", Email: "bob@example.com", Active: true},
	}
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()

	t.Run("merges provider results into the cache", func(t *testing.T) {
		cache := newTestCache(t)
		agg := presence.NewAggregator(&fakeRoster{agents: testAgents()}, cache, &fakeProvider{
			name: "graph",
			results: []*model.RawPresence{
				fetched("u1", "Alice", "alice@example.com", "Available", types.StatusAvailable),
				fetched("u2", "Bob", "bob@example.com", "DoNotDisturb", types.StatusDoNotDisturb),
			},
		})

		count, err := agg.RefreshAll(ctx, presence.ModeReset, types.ProvenanceStartup)
		gt.NoError(t, err).Required()
		gt.Number(t, count).Equal(2)

		u1, ok := cache.Lookup(ctx, "u1")
		gt.Bool(t, ok).True()
		gt.Value(t, u1.Status).Equal(types.StatusAvailable)
		gt.Value(t, u1.Provenance).Equal(types.ProvenanceStartup)
	})

	t.Run("conflicting providers resolve by precedence", func(t *testing.T) {
		cache := newTestCache(t)
		now := time.Now()
		agg := presence.NewAggregator(&fakeRoster{agents: testAgents()}, cache,
			&fakeProvider{
				name: "graph",
				results: []*model.RawPresence{
					{ID: "u1", DisplayName: "Alice", Status: types.StatusBusy, ObservedAt: now.Add(time.Second)},
				},
			},
			&fakeProvider{
				name: "slack",
				results: []*model.RawPresence{
					{ID: "u1", DisplayName: "Alice", Status: types.StatusAvailable, ObservedAt: now},
				},
			},
		)

		_, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.NoError(t, err).Required()

		u1, ok := cache.Lookup(ctx, "u1")
		gt.Bool(t, ok).True()
		gt.Value(t, u1.Status).Equal(types.StatusAvailable)
	})

	t.Run("one failing provider degrades only its agents", func(t *testing.T) {
		cache := newTestCache(t)
		agg := presence.NewAggregator(&fakeRoster{agents: testAgents()}, cache,
			&fakeProvider{name: "graph", err: goerr.New("token expired")},
			&fakeProvider{
				name: "slack",
				results: []*model.RawPresence{
					fetched("u1", "Alice", "alice@example.com", "active", types.StatusAvailable),
				},
			},
		)

		count, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.NoError(t, err).Required()
		gt.Number(t, count).Equal(2)

		u1, ok := cache.Lookup(ctx, "u1")
		gt.Bool(t, ok).True()
		gt.Value(t, u1.Status).Equal(types.StatusAvailable)

		// u2 had no answer from any source: Offline with the failure noted
		u2, ok := cache.Lookup(ctx, "u2")
		gt.Bool(t, ok).True()
		gt.Value(t, u2.Status).Equal(types.StatusOffline)
		gt.Value(t, u2.Provenance).Equal(types.ProvenanceFallback)
		gt.String(t, u2.LastError).Contains("token expired")
	})

	t.Run("coverage gaps with healthy providers get a neutral note", func(t *testing.T) {
		cache := newTestCache(t)
		agg := presence.NewAggregator(&fakeRoster{agents: testAgents()}, cache, &fakeProvider{
			name: "graph",
			results: []*model.RawPresence{
				fetched("u1", "Alice", "alice@example.com", "Available", types.StatusAvailable),
			},
		})

		count, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.NoError(t, err).Required()
		gt.Number(t, count).Equal(2)

		// u2 was simply not in the response; no provider failed, so there
		// is no error to blame
		u2, ok := cache.Lookup(ctx, "u2")
		gt.Bool(t, ok).True()
		gt.Value(t, u2.Status).Equal(types.StatusOffline)
		gt.String(t, u2.LastError).Equal("no presence source answered")
	})

	t.Run("a failed provider is blamed only for agents it covers", func(t *testing.T) {
		cache := newTestCache(t)
		agents := []*model.Agent{
			{HelpdeskID: "1", GraphID: "u1", DisplayName: "Alice", Active: true},
			{HelpdeskID: "3", SlackID: "s3", DisplayName: "Cara", Active: true},
		}
		agg := presence.NewAggregator(&fakeRoster{agents: agents}, cache,
			&fakeProvider{name: "graph", err: goerr.New("token expired")},
			&fakeProvider{name: "slack"},
		)

		count, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.NoError(t, err).Required()
		gt.Number(t, count).Equal(2)

		// u1 is a Graph agent: the Graph failure explains the gap
		u1, ok := cache.Lookup(ctx, "u1")
		gt.Bool(t, ok).True()
		gt.String(t, u1.LastError).Contains("token expired")

		// Cara is Slack-only and Slack answered fine; her gap is coverage,
		// not the Graph outage
		s3, ok := cache.Lookup(ctx, "s3")
		gt.Bool(t, ok).True()
		gt.String(t, s3.LastError).Equal("no presence source answered")
	})

	t.Run("all providers failing is an outage", func(t *testing.T) {
		cache := newTestCache(t)
		agg := presence.NewAggregator(&fakeRoster{agents: testAgents()}, cache,
			&fakeProvider{name: "graph", err: goerr.New("down")},
			&fakeProvider{name: "slack", err: goerr.New("down")},
		)

		_, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, types.ErrUpstreamOutage)).True()
		gt.Number(t, cache.Count(ctx)).Equal(0)
	})

	t.Run("roster failure aborts the refresh", func(t *testing.T) {
		cache := newTestCache(t)
		agg := presence.NewAggregator(&fakeRoster{err: goerr.New("helpdesk 503")}, cache,
			&fakeProvider{name: "graph"})

		_, err := agg.RefreshAll(ctx, presence.ModeMerge, types.ProvenancePolled)
		gt.Error(t, err)
	})
}
