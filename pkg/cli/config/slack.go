package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

// Slack configures the Slack presence provider
type Slack struct {
	botToken string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for presence lookups)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("BRIAREUS_SLACK_BOT_TOKEN"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
	)
}

// IsConfigured reports whether the Slack provider should be wired
func (x *Slack) IsConfigured() bool {
	return x.botToken != ""
}

// Configure builds the Slack presence client
func (x *Slack) Configure(normalizer *types.Normalizer) (*slack.Client, error) {
	client, err := slack.New(x.botToken, normalizer)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Slack client")
	}
	return client, nil
}
