package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/service/helpdesk"
	"github.com/urfave/cli/v3"
)

// Helpdesk configures the roster source and the email allow-list applied
// to query responses
type Helpdesk struct {
	baseURL      string
	apiKey       string
	rosterTTL    time.Duration
	emailDomains []string
}

func (x *Helpdesk) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "helpdesk-url",
			Usage:       "Helpdesk base URL (e.g. https://example.freshdesk.com)",
			Category:    "Helpdesk",
			Destination: &x.baseURL,
			Sources:     cli.EnvVars("BRIAREUS_HELPDESK_URL"),
		},
		&cli.StringFlag{
			Name:        "helpdesk-api-key",
			Usage:       "Helpdesk API key",
			Category:    "Helpdesk",
			Destination: &x.apiKey,
			Sources:     cli.EnvVars("BRIAREUS_HELPDESK_API_KEY"),
		},
		&cli.DurationFlag{
			Name:        "helpdesk-roster-ttl",
			Usage:       "How long the agent roster is cached",
			Category:    "Helpdesk",
			Value:       helpdesk.DefaultRosterTTL,
			Destination: &x.rosterTTL,
			Sources:     cli.EnvVars("BRIAREUS_HELPDESK_ROSTER_TTL"),
		},
		&cli.StringSliceFlag{
			Name:        "email-domains",
			Usage:       "Email domains allowed in query responses (empty allows all)",
			Category:    "Helpdesk",
			Destination: &x.emailDomains,
			Sources:     cli.EnvVars("BRIAREUS_EMAIL_DOMAINS"),
		},
	}
}

func (x Helpdesk) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base-url", x.baseURL),
		slog.Int("api-key.len", len(x.apiKey)),
		slog.Any("email-domains", x.emailDomains),
	)
}

// EmailDomains returns the allow-list for query responses
func (x *Helpdesk) EmailDomains() []string {
	return x.emailDomains
}

// Configure builds the roster client
func (x *Helpdesk) Configure() (*helpdesk.Client, error) {
	client, err := helpdesk.New(x.baseURL, x.apiKey, helpdesk.WithRosterTTL(x.rosterTTL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create helpdesk client")
	}
	return client, nil
}
