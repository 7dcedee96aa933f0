package helpdesk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/safe"
)

// DefaultRosterTTL bounds how long a roster snapshot is reused before the
// directory is asked again. Webhook identity resolution hits this cache.
const DefaultRosterTTL = 5 * time.Minute

// Client reads the helpdesk's user directory, the proxy's roster source
type Client struct {
	baseURL    string
	apiKey     string `masq:"secret"`
	httpClient *http.Client

	mu        sync.Mutex
	rosterTTL time.Duration
	cached    []*model.Agent
	cachedAt  time.Time
}

// Option is a functional option for the client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRosterTTL overrides the roster cache TTL
func WithRosterTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.rosterTTL = ttl
	}
}

// New creates a helpdesk directory client
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("helpdesk base URL is required")
	}
	if apiKey == "" {
		return nil, goerr.New("helpdesk API key is required")
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		rosterTTL:  DefaultRosterTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// agentEntry is the helpdesk directory record shape
type agentEntry struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Active       bool   `json:"active"`
	CustomFields struct {
		DirectoryObjectID string `json:"directory_object_id"`
		ChatMemberID      string `json:"chat_member_id"`
	} `json:"custom_fields"`
}

type agentsResponse struct {
	Agents []agentEntry `json:"agents"`
}

// ActiveAgents returns active agents that carry at least one provider
// cross-reference. Results are cached for the roster TTL.
func (c *Client) ActiveAgents(ctx context.Context) ([]*model.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < c.rosterTTL {
		return cloneAgents(c.cached), nil
	}

	agents, err := c.fetchAgents(ctx)
	if err != nil {
		// Serve the stale roster rather than failing callers outright
		if c.cached != nil {
			return cloneAgents(c.cached), nil
		}
		return nil, err
	}

	c.cached = agents
	c.cachedAt = time.Now()
	return cloneAgents(agents), nil
}

// FindByProviderID resolves a provider-side user ID to a roster entry
func (c *Client) FindByProviderID(ctx context.Context, id model.UserID) (*model.Agent, error) {
	agents, err := c.ActiveAgents(ctx)
	if err != nil {
		return nil, err
	}

	for _, agent := range agents {
		if agent.GraphID == id || model.UserID(agent.SlackID) == id {
			return agent, nil
		}
	}

	return nil, goerr.Wrap(types.ErrNotFound, "no roster entry for provider ID",
		goerr.V(types.UserIDKey, id))
}

func (c *Client) fetchAgents(ctx context.Context) ([]*model.Agent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/agents?active=true", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create roster request")
	}
	req.SetBasicAuth(c.apiKey, "X")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch roster")
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read roster response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("helpdesk returned an error",
			goerr.V(types.StatusKey, resp.StatusCode),
			goerr.V(types.BodyKey, string(body)),
		)
	}

	var parsed agentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to parse roster response")
	}

	agents := make([]*model.Agent, 0, len(parsed.Agents))
	for _, entry := range parsed.Agents {
		if !entry.Active {
			continue
		}

		agent := &model.Agent{
			HelpdeskID:  formatID(entry.ID),
			GraphID:     model.UserID(entry.CustomFields.DirectoryObjectID),
			SlackID:     entry.CustomFields.ChatMemberID,
			DisplayName: joinName(entry.FirstName, entry.LastName),
			Email:       entry.Email,
			Active:      entry.Active,
		}
		if !agent.HasProviderRef() {
			continue
		}
		agents = append(agents, agent)
	}

	return agents, nil
}

func cloneAgents(agents []*model.Agent) []*model.Agent {
	clones := make([]*model.Agent, len(agents))
	for i, agent := range agents {
		clone := *agent
		clones[i] = &clone
	}
	return clones
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
