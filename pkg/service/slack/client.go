package slack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

const (
	// Presence is a per-user lookup on this platform too, so the same
	// batch discipline as the UC provider applies.
	defaultBatchSize  = 3
	defaultBatchDelay = 250 * time.Millisecond
)

// Client fetches team-chat presence through the bot-token API
type Client struct {
	api        *slack.Client
	normalizer *types.Normalizer
	apiURL     string

	batchSize  int
	batchDelay time.Duration
}

// Option is a functional option for the client
type Option func(*Client)

// WithBatching overrides batch size and inter-batch delay
func WithBatching(size int, delay time.Duration) Option {
	return func(c *Client) {
		c.batchSize = size
		c.batchDelay = delay
	}
}

// WithAPIURL points the client at a different API endpoint (tests)
func WithAPIURL(url string) Option {
	return func(c *Client) {
		c.apiURL = url
	}
}

// New creates a team-chat presence client with the provided bot token
func New(token string, normalizer *types.Normalizer, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, goerr.New("bot token is required")
	}
	if normalizer == nil {
		normalizer = types.NewNormalizer(nil)
	}

	c := &Client{
		normalizer: normalizer,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

// Name identifies this provider in provenance logs
func (c *Client) Name() string {
	return "slack"
}

// FetchPresence retrieves presence for every agent with a team-chat member
// ID. Same degradation contract as the UC provider: per-user failures become
// Offline results, the call errors only on a total outage.
func (c *Client) FetchPresence(ctx context.Context, agents []*model.Agent) ([]*model.RawPresence, error) {
	targets := make([]*model.Agent, 0, len(agents))
	for _, agent := range agents {
		if agent.SlackID != "" {
			targets = append(targets, agent)
		}
	}
	if len(targets) == 0 {
		return nil, nil
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
						"user_id", targets[i].SlackID,
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
	presence, err := c.api.GetUserPresenceContext(ctx, agent.SlackID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user presence",
			goerr.V(types.UserIDKey, agent.SlackID))
	}

	raw := presence.Presence
	if presence.Presence == "active" && presence.ManualAway {
		raw = "away"
	}

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
