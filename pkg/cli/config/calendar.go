package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/token"
	"github.com/urfave/cli/v3"
)

// Calendar configures the user-delegated calendar credential. The first
// token is obtained interactively through /api/auth/login; afterwards the
// refresh token keeps the scope alive unattended.
type Calendar struct {
	clientID     string
	clientSecret string
	authURL      string
	tokenURL     string
	jwksURL      string
	redirectURI  string
	grantScope   string
}

func (x *Calendar) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "calendar-client-id",
			Usage:       "Delegated calendar application (client) ID",
			Category:    "Calendar",
			Destination: &x.clientID,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:        "calendar-client-secret",
			Usage:       "Delegated calendar client secret",
			Category:    "Calendar",
			Destination: &x.clientSecret,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_CLIENT_SECRET"),
		},
		&cli.StringFlag{
			Name:        "calendar-auth-url",
			Usage:       "Authorization endpoint for the delegated flow",
			Category:    "Calendar",
			Destination: &x.authURL,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_AUTH_URL"),
		},
		&cli.StringFlag{
			Name:        "calendar-token-url",
			Usage:       "Token endpoint for the delegated flow",
			Category:    "Calendar",
			Destination: &x.tokenURL,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_TOKEN_URL"),
		},
		&cli.StringFlag{
			Name:        "calendar-jwks-url",
			Usage:       "JWKS endpoint for ID token verification",
			Category:    "Calendar",
			Destination: &x.jwksURL,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_JWKS_URL"),
		},
		&cli.StringFlag{
			Name:        "calendar-redirect-uri",
			Usage:       "OAuth redirect URI registered for the delegated app",
			Category:    "Calendar",
			Destination: &x.redirectURI,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_REDIRECT_URI"),
		},
		&cli.StringFlag{
			Name:        "calendar-scope",
			Usage:       "OAuth scopes requested in the delegated flow",
			Category:    "Calendar",
			Value:       "openid email offline_access calendars.read",
			Destination: &x.grantScope,
			Sources:     cli.EnvVars("BRIAREUS_CALENDAR_SCOPE"),
		},
	}
}

func (x Calendar) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client-id", x.clientID),
		slog.Int("client-secret.len", len(x.clientSecret)),
		slog.String("token-url", x.tokenURL),
	)
}

// IsConfigured reports whether the delegated calendar credential should
// be registered
func (x *Calendar) IsConfigured() bool {
	return x.clientID != "" || x.clientSecret != ""
}

// Configure registers the delegated credential with the token manager
func (x *Calendar) Configure(tokens *token.Manager) error {
	if x.clientID == "" || x.clientSecret == "" || x.authURL == "" || x.tokenURL == "" || x.redirectURI == "" {
		return goerr.New("Calendar configuration requires --calendar-client-id, --calendar-client-secret, --calendar-auth-url, --calendar-token-url and --calendar-redirect-uri")
	}

	cred := &token.Credential{
		Scope:        types.ScopeCalendarDelegated,
		TokenURL:     x.tokenURL,
		ClientID:     x.clientID,
		ClientSecret: x.clientSecret,
		GrantScope:   x.grantScope,
		Delegated:    true,
		AuthURL:      x.authURL,
		JWKSURL:      x.jwksURL,
		RedirectURI:  x.redirectURI,
	}
	if err := tokens.Register(cred); err != nil {
		return goerr.Wrap(err, "failed to register calendar credential")
	}
	return nil
}
