package token_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/repository/memory"
	"github.com/secmon-lab/briareus/pkg/service/token"
)

type tokenEndpoint struct {
	mu        sync.Mutex
	calls     int64
	lastForm  map[string]string
	respond   func(w http.ResponseWriter, r *http.Request)
	serverURL string
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()

	ep := &tokenEndpoint{}
	ep.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, r.ParseForm())
		atomic.AddInt64(&ep.calls, 1)

		ep.mu.Lock()
		ep.lastForm = map[string]string{}
		for k := range r.PostForm {
			ep.lastForm[k] = r.PostForm.Get(k)
		}
		ep.mu.Unlock()

		ep.respond(w, r)
	}))
	t.Cleanup(srv.Close)

	ep.serverURL = srv.URL
	return ep
}

func (ep *tokenEndpoint) callCount() int64 {
	return atomic.LoadInt64(&ep.calls)
}

func (ep *tokenEndpoint) form(key string) string {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.lastForm[key]
}

func TestGetTokenClientCredentials(t *testing.T) {
	ctx := context.Background()
	ep := newTokenEndpoint(t)

	repo := memory.New()
	mgr := token.New(repo.TokenAudit())
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeGraphPresence,
		TokenURL:     ep.serverURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		GrantScope:   "https://graph.microsoft.com/.default",
	})).Required()

	t.Run("first call exchanges credentials", func(t *testing.T) {
		tk, err := mgr.GetToken(ctx, types.ScopeGraphPresence)
		gt.NoError(t, err).Required()
		gt.String(t, tk.Value).Equal("token-1")
		gt.Number(t, ep.callCount()).Equal(1)

		gt.String(t, ep.form("grant_type")).Equal("client_credentials")
		gt.String(t, ep.form("client_id")).Equal("client-1")
		gt.String(t, ep.form("scope")).Equal("https://graph.microsoft.com/.default")
	})

	t.Run("second call serves from cache", func(t *testing.T) {
		tk, err := mgr.GetToken(ctx, types.ScopeGraphPresence)
		gt.NoError(t, err).Required()
		gt.String(t, tk.Value).Equal("token-1")
		gt.Number(t, ep.callCount()).Equal(1)
	})

	t.Run("refreshes are audited", func(t *testing.T) {
		events, err := repo.TokenAudit().List(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, events).Length(1)
		gt.Value(t, events[0].Scope).Equal(types.ScopeGraphPresence)
	})
}

func TestGetTokenSafetyBuffer(t *testing.T) {
	ctx := context.Background()
	ep := newTokenEndpoint(t)

	// The endpoint grants 10-minute tokens
	ep.respond = func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "short-lived",
			"expires_in":   600,
		}))
	}

	now := time.Now()
	clock := now
	var clockMu sync.Mutex

	mgr := token.New(nil, token.WithNow(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}))
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeGraphPresence,
		TokenURL:     ep.serverURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	})).Required()

	_, err := mgr.GetToken(ctx, types.ScopeGraphPresence)
	gt.NoError(t, err).Required()
	gt.Number(t, ep.callCount()).Equal(1)

	// 4 minutes left: inside the 5-minute buffer, must re-exchange
	clockMu.Lock()
	clock = now.Add(6 * time.Minute)
	clockMu.Unlock()

	_, err = mgr.GetToken(ctx, types.ScopeGraphPresence)
	gt.NoError(t, err).Required()
	gt.Number(t, ep.callCount()).Equal(2)
}

func TestGetTokenSingleExchangeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	ep := newTokenEndpoint(t)

	// Slow the exchange down so all goroutines pile up on it
	ep.respond = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "shared",
			"expires_in":   3600,
		}))
	}

	mgr := token.New(nil)
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeGraphPresence,
		TokenURL:     ep.serverURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	})).Required()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var tokens []*model.AccessToken
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := mgr.GetToken(ctx, types.ScopeGraphPresence)
			gt.NoError(t, err)
			gt.String(t, tk.Value).Equal("shared")
			mu.Lock()
			tokens = append(tokens, tk)
			mu.Unlock()
		}()
	}
	wg.Wait()

	gt.Number(t, ep.callCount()).Equal(1)

	// Waiters of the shared exchange must each get their own copy: mutating
	// one caller's token never leaks into another's
	gt.Array(t, tokens).Length(10)
	tokens[0].Value = "scribbled"
	for _, tk := range tokens[1:] {
		gt.String(t, tk.Value).Equal("shared")
	}
}

func TestGetTokenRejection(t *testing.T) {
	ctx := context.Background()
	ep := newTokenEndpoint(t)

	ep.respond = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_client",
			"error_description": "client secret expired",
		}))
	}

	mgr := token.New(nil)
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeGraphPresence,
		TokenURL:     ep.serverURL,
		ClientID:     "client-1",
		ClientSecret: "expired",
	})).Required()

	_, err := mgr.GetToken(ctx, types.ScopeGraphPresence)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, types.ErrTokenAcquisition)).True()
}

func TestGetTokenUnregisteredScope(t *testing.T) {
	mgr := token.New(nil)
	_, err := mgr.GetToken(context.Background(), types.ScopeGraphNotifications)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, types.ErrTokenAcquisition)).True()
}

func TestDelegatedRefresh(t *testing.T) {
	ctx := context.Background()
	ep := newTokenEndpoint(t)

	grants := make(chan string, 10)
	ep.respond = func(w http.ResponseWriter, r *http.Request) {
		grants <- r.PostForm.Get("grant_type")

		resp := map[string]any{
			"access_token": "delegated-1",
			"expires_in":   600,
		}
		if r.PostForm.Get("grant_type") == "authorization_code" {
			resp["refresh_token"] = "refresh-1"
		}
		gt.NoError(t, json.NewEncoder(w).Encode(resp))
	}

	now := time.Now()
	clock := now
	var clockMu sync.Mutex

	mgr := token.New(nil, token.WithNow(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}))
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeCalendarDelegated,
		TokenURL:     ep.serverURL,
		AuthURL:      ep.serverURL + "/authorize",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://proxy.example.com/api/auth/callback",
		Delegated:    true,
	})).Required()

	t.Run("refresh before login reports unauthenticated", func(t *testing.T) {
		_, err := mgr.GetToken(ctx, types.ScopeCalendarDelegated)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, types.ErrUnauthenticated)).True()
	})

	t.Run("login stores the refresh token", func(t *testing.T) {
		_, err := mgr.CompleteLogin(ctx, types.ScopeCalendarDelegated, "auth-code-1")
		gt.NoError(t, err).Required()
		gt.String(t, <-grants).Equal("authorization_code")
		gt.Bool(t, mgr.IsAuthenticated(types.ScopeCalendarDelegated)).True()
	})

	t.Run("expiry triggers the refresh-token grant", func(t *testing.T) {
		clockMu.Lock()
		clock = now.Add(10 * time.Minute)
		clockMu.Unlock()

		tk, err := mgr.GetToken(ctx, types.ScopeCalendarDelegated)
		gt.NoError(t, err).Required()
		gt.String(t, tk.Value).Equal("delegated-1")
		gt.String(t, <-grants).Equal("refresh_token")

		// The provider did not rotate the refresh token; the old one
		// must survive for the next renewal
		gt.Bool(t, mgr.IsAuthenticated(types.ScopeCalendarDelegated)).True()
	})
}

func TestBeginLogin(t *testing.T) {
	mgr := token.New(nil)
	gt.NoError(t, mgr.Register(&token.Credential{
		Scope:        types.ScopeCalendarDelegated,
		TokenURL:     "https://login.example.com/token",
		AuthURL:      "https://login.example.com/authorize",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		GrantScope:   "calendars.read offline_access",
		RedirectURI:  "https://proxy.example.com/api/auth/callback",
		Delegated:    true,
	})).Required()

	u, err := mgr.BeginLogin(types.ScopeCalendarDelegated, "state-123")
	gt.NoError(t, err).Required()
	gt.String(t, u).Contains("https://login.example.com/authorize?")
	gt.String(t, u).Contains("client_id=client-1")
	gt.String(t, u).Contains("state=state-123")

	_, err = mgr.BeginLogin(types.ScopeGraphPresence, "state-123")
	gt.Error(t, err)
}
