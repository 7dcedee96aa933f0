package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/secmon-lab/briareus/pkg/cli/config"
	httpctrl "github.com/secmon-lab/briareus/pkg/controller/http"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/repository/memory"
	"github.com/secmon-lab/briareus/pkg/service/presence"
	"github.com/secmon-lab/briareus/pkg/service/subscription"
	"github.com/secmon-lab/briareus/pkg/service/token"
	"github.com/secmon-lab/briareus/pkg/service/worker"
	"github.com/secmon-lab/briareus/pkg/usecase"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var baseURL string
	var refreshInterval time.Duration
	var subscriptionTTL time.Duration
	var graphCfg config.Graph
	var slackCfg config.Slack
	var helpdeskCfg config.Helpdesk
	var calendarCfg config.Calendar
	var mappingCfg config.Mapping

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("BRIAREUS_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Externally reachable base URL, used as the webhook notification target (e.g. https://your-domain.com)",
			Sources:     cli.EnvVars("BRIAREUS_BASE_URL"),
			Destination: &baseURL,
		},
		&cli.DurationFlag{
			Name:        "refresh-interval",
			Usage:       "Interval of the background presence poll",
			Value:       worker.DefaultRefreshInterval,
			Sources:     cli.EnvVars("BRIAREUS_REFRESH_INTERVAL"),
			Destination: &refreshInterval,
		},
		&cli.DurationFlag{
			Name:        "subscription-ttl",
			Usage:       "Requested lifetime of the webhook subscription",
			Value:       subscription.DefaultTTL,
			Sources:     cli.EnvVars("BRIAREUS_SUBSCRIPTION_TTL"),
			Destination: &subscriptionTTL,
		},
	}

	flags = append(flags, graphCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, helpdeskCfg.Flags()...)
	flags = append(flags, calendarCfg.Flags()...)
	flags = append(flags, mappingCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			normalizer, err := mappingCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load status mapping")
			}

			repo := memory.New()
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			tokens := token.New(repo.TokenAudit())

			roster, err := helpdeskCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure helpdesk roster")
			}

			var providers []interfaces.PresenceProvider
			var subClient interfaces.SubscriptionClient

			if graphCfg.IsConfigured() {
				graphClient, err := graphCfg.Configure(tokens, normalizer)
				if err != nil {
					return goerr.Wrap(err, "failed to configure Graph provider")
				}
				providers = append(providers, graphClient)
				subClient = graphClient
				logging.Default().Info("Graph presence provider enabled")
			}

			if slackCfg.IsConfigured() {
				slackClient, err := slackCfg.Configure(normalizer)
				if err != nil {
					return goerr.Wrap(err, "failed to configure Slack provider")
				}
				providers = append(providers, slackClient)
				logging.Default().Info("Slack presence provider enabled")
			}

			if len(providers) == 0 {
				return goerr.New("no presence provider configured: set Graph or Slack credentials")
			}

			if calendarCfg.IsConfigured() {
				if err := calendarCfg.Configure(tokens); err != nil {
					return goerr.Wrap(err, "failed to configure calendar credential")
				}
				logging.Default().Info("delegated calendar credential enabled")
			}

			cache := presence.NewCache(repo.Presence(),
				presence.WithEmailDomains(helpdeskCfg.EmailDomains()))
			aggregator := presence.NewAggregator(roster, cache, providers...)

			uc := usecase.New(aggregator, roster, repo,
				usecase.WithTokenManager(tokens),
				usecase.WithNormalizer(normalizer),
			)

			// Prime the cache before serving. A failure here is not fatal:
			// the polling worker and the query path's fallback refresh
			// recover once the upstreams come back.
			if err := uc.Initialize(ctx); err != nil {
				logging.Default().Warn("startup presence fetch failed, serving with empty cache",
					"error", err.Error())
			}

			refreshWorker := worker.NewPresenceRefreshWorker(aggregator, refreshInterval)
			refreshWorker.Start(ctx)

			// The manager is created before the HTTP surface so the webhook
			// ingress can verify the client state of inbound notifications;
			// registration itself waits until the server can answer the
			// validation handshake.
			var subMgr *subscription.Manager
			var serverOpts []httpctrl.Options
			if subClient != nil && baseURL != "" {
				subMgr, err = subscription.New(subClient, baseURL+"/notifications",
					subscription.WithTTL(subscriptionTTL))
				if err != nil {
					return goerr.Wrap(err, "failed to create subscription manager")
				}
				serverOpts = append(serverOpts, httpctrl.WithClientStateVerifier(subMgr.VerifyClientState))
			}

			httpHandler, err := httpctrl.New(uc, serverOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			if subMgr != nil {
				go func() {
					if err := subMgr.Start(ctx); err != nil {
						logging.Default().Warn("webhook subscription failed, relying on polling only",
							"error", err.Error())
					}
				}()
			} else {
				logging.Default().Info("webhook subscription disabled, relying on polling",
					"base_url", baseURL)
			}

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop background work before draining the server
				refreshWorker.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if subMgr != nil {
					subMgr.Stop(shutdownCtx)
				}

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
