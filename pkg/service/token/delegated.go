package token

import (
	"context"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// Operator is the identity decoded from a delegated login's ID token
type Operator struct {
	Sub   string
	Email string
	Name  string
}

// BeginLogin returns the provider authorization URL for a delegated scope
func (m *Manager) BeginLogin(scope types.TokenScope, state string) (string, error) {
	m.mu.RLock()
	cred, ok := m.creds[scope]
	m.mu.RUnlock()

	if !ok || !cred.Delegated {
		return "", goerr.New("scope is not registered for delegated login",
			goerr.V(types.ScopeKey, scope))
	}

	params := url.Values{}
	params.Set("client_id", cred.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", cred.RedirectURI)
	if cred.GrantScope != "" {
		params.Set("scope", cred.GrantScope)
	}
	params.Set("state", state)

	return cred.AuthURL + "?" + params.Encode(), nil
}

// CompleteLogin exchanges the authorization code, stores the access and
// refresh tokens for the scope, and returns the operator identity decoded
// from the ID token.
func (m *Manager) CompleteLogin(ctx context.Context, scope types.TokenScope, code string) (*Operator, error) {
	m.mu.RLock()
	cred, ok := m.creds[scope]
	m.mu.RUnlock()

	if !ok || !cred.Delegated {
		return nil, goerr.New("scope is not registered for delegated login",
			goerr.V(types.ScopeKey, scope))
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", cred.RedirectURI)

	resp, err := m.postForm(ctx, cred.TokenURL, form)
	if err != nil {
		return nil, goerr.Wrap(types.ErrTokenAcquisition, "authorization code exchange failed",
			goerr.V(types.ScopeKey, scope), goerr.V("cause", err.Error()))
	}

	token, err := m.tokenFromResponse(cred, resp, "")
	if err != nil {
		return nil, err
	}
	m.store(ctx, token)

	if resp.IDToken == "" {
		return &Operator{}, nil
	}
	return m.decodeIDToken(ctx, cred, resp.IDToken)
}

// IsAuthenticated reports whether a delegated scope holds a refresh token,
// i.e. whether GetToken can renew it without user interaction
func (m *Manager) IsAuthenticated(scope types.TokenScope) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[scope]
	return ok && token.RefreshToken != ""
}

// refreshDelegated exchanges the stored refresh token. A rejected refresh
// token means the proxy is unauthenticated for that scope and the end user
// must go through the interactive login again.
func (m *Manager) refreshDelegated(ctx context.Context, cred *Credential, previous *model.AccessToken) (*model.AccessToken, error) {
	if previous == nil || previous.RefreshToken == "" {
		return nil, goerr.Wrap(types.ErrUnauthenticated, "no refresh token stored",
			goerr.V(types.ScopeKey, cred.Scope))
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	form.Set("refresh_token", previous.RefreshToken)

	resp, err := m.postForm(ctx, cred.TokenURL, form)
	if err != nil {
		// Drop the dead refresh token so the next call reports
		// unauthenticated instead of retrying a revoked credential
		m.mu.Lock()
		delete(m.tokens, cred.Scope)
		m.mu.Unlock()

		return nil, goerr.Wrap(types.ErrUnauthenticated, "refresh token exchange failed",
			goerr.V(types.ScopeKey, cred.Scope), goerr.V("cause", err.Error()))
	}

	return m.tokenFromResponse(cred, resp, previous.RefreshToken)
}

// decodeIDToken verifies the ID token against the provider's JWKS and
// extracts the operator identity. Verification is skipped when no JWKS URL
// is configured (test environments).
func (m *Manager) decodeIDToken(ctx context.Context, cred *Credential, idToken string) (*Operator, error) {
	parseOpts := []jwt.ParseOption{jwt.WithAcceptableSkew(10 * time.Second)}
	if cred.JWKSURL != "" {
		keySet, err := jwk.Fetch(ctx, cred.JWKSURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch provider JWKS",
				goerr.V("jwks_url", cred.JWKSURL))
		}
		parseOpts = append(parseOpts,
			jwt.WithKeySet(keySet),
			jwt.WithValidate(true),
			jwt.WithAudience(cred.ClientID),
		)
	} else {
		parseOpts = append(parseOpts, jwt.WithVerify(false), jwt.WithValidate(false))
	}

	parsed, err := jwt.Parse([]byte(idToken), parseOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse or verify ID token")
	}

	op := &Operator{Sub: parsed.Subject()}
	if v, ok := parsed.Get("email"); ok {
		if s, ok := v.(string); ok {
			op.Email = s
		}
	}
	if v, ok := parsed.Get("name"); ok {
		if s, ok := v.(string); ok {
			op.Name = s
		}
	}

	return op, nil
}
