package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/briareus/pkg/usecase"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

type Server struct {
	router      *chi.Mux
	uc          *usecase.UseCases
	verifyState func(string) bool
}

type Options func(*Server)

// WithClientStateVerifier installs origin verification for webhook
// notifications. When set, batch entries must carry a client state the
// verifier accepts; everything else is dropped (still acknowledged 200).
func WithClientStateVerifier(verify func(string) bool) Options {
	return func(s *Server) {
		s.verifyState = verify
	}
}

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	// Presence query surface
	r.Get("/agent-status", agentStatusHandler(uc))
	r.Post("/agent-status/refresh", forceRefreshHandler(uc))
	r.Get("/reset-and-initialize", resetHandler(uc))

	// Webhook ingress. Both paths accept the same payloads; /notifications
	// is what the subscription registers, /webhook/presence is kept for
	// senders configured against the older path. GET serves the
	// validation handshake some senders perform before POSTing.
	webhook := newWebhookHandler(uc, s.verifyState)
	r.Post("/notifications", webhook.ServeHTTP)
	r.Post("/webhook/presence", webhook.ServeHTTP)
	r.Get("/webhook/presence", webhook.ServeHTTP)

	r.Get("/health", healthHandler(uc))
	r.Get("/api/debug/token-audit", tokenAuditHandler(uc))

	// Delegated login endpoints, only when a token manager is wired
	if uc.TokenManager() != nil {
		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/login", authLoginHandler(uc))
			r.Get("/callback", authCallbackHandler(uc))
		})
	}

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
