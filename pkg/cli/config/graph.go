package config

import (
	"fmt"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/graph"
	"github.com/secmon-lab/briareus/pkg/service/token"
	"github.com/urfave/cli/v3"
)

// Graph configures the Microsoft Graph presence provider and its
// application credential
type Graph struct {
	tenantID     string
	clientID     string
	clientSecret string
	baseURL      string
}

func (x *Graph) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "graph-tenant-id",
			Usage:       "Microsoft Entra tenant ID",
			Category:    "Graph",
			Destination: &x.tenantID,
			Sources:     cli.EnvVars("BRIAREUS_GRAPH_TENANT_ID"),
		},
		&cli.StringFlag{
			Name:        "graph-client-id",
			Usage:       "Graph application (client) ID",
			Category:    "Graph",
			Destination: &x.clientID,
			Sources:     cli.EnvVars("BRIAREUS_GRAPH_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:        "graph-client-secret",
			Usage:       "Graph client secret",
			Category:    "Graph",
			Destination: &x.clientSecret,
			Sources:     cli.EnvVars("BRIAREUS_GRAPH_CLIENT_SECRET"),
		},
		&cli.StringFlag{
			Name:        "graph-base-url",
			Usage:       "Graph API base URL (override for testing)",
			Category:    "Graph",
			Value:       graph.DefaultBaseURL,
			Destination: &x.baseURL,
			Sources:     cli.EnvVars("BRIAREUS_GRAPH_BASE_URL"),
		},
	}
}

func (x Graph) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tenant-id", x.tenantID),
		slog.Int("client-secret.len", len(x.clientSecret)),
		slog.String("base-url", x.baseURL),
	)
}

// IsConfigured reports whether the Graph provider should be wired at all
func (x *Graph) IsConfigured() bool {
	return x.tenantID != "" || x.clientID != "" || x.clientSecret != ""
}

func (x *Graph) tokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", x.tenantID)
}

// Configure registers the application credentials and builds the Graph
// client. Both the presence and the notification scopes share one
// client-credentials registration against the tenant's token endpoint.
func (x *Graph) Configure(tokens *token.Manager, normalizer *types.Normalizer) (*graph.Client, error) {
	if x.tenantID == "" || x.clientID == "" || x.clientSecret == "" {
		return nil, goerr.New("Graph configuration requires --graph-tenant-id, --graph-client-id and --graph-client-secret")
	}

	for _, scope := range []types.TokenScope{types.ScopeGraphPresence, types.ScopeGraphNotifications} {
		cred := &token.Credential{
			Scope:        scope,
			TokenURL:     x.tokenURL(),
			ClientID:     x.clientID,
			ClientSecret: x.clientSecret,
			GrantScope:   "https://graph.microsoft.com/.default",
		}
		if err := tokens.Register(cred); err != nil {
			return nil, goerr.Wrap(err, "failed to register Graph credential", goerr.V(types.ScopeKey, scope))
		}
	}

	client, err := graph.New(tokens, normalizer, graph.WithBaseURL(x.baseURL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Graph client")
	}
	return client, nil
}
