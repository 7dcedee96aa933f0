package token

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
	"github.com/secmon-lab/briareus/pkg/utils/safe"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyBuffer is the margin before a token's real expiry at which
// it is treated as already expired, so it never expires mid-request.
const DefaultSafetyBuffer = 5 * time.Minute

// Credential holds the registration of one (provider, scope) pair
type Credential struct {
	Scope        types.TokenScope
	TokenURL     string
	ClientID     string
	ClientSecret string `masq:"secret"`

	// GrantScope is the value of the "scope" form field sent to the token
	// endpoint (e.g. "https://graph.microsoft.com/.default")
	GrantScope string

	// Delegated marks a user-delegated (authorization-code) scope, which
	// renews via the refresh-token grant instead of client credentials
	Delegated bool

	// AuthURL and JWKSURL are used only for delegated scopes
	AuthURL     string
	JWKSURL     string
	RedirectURI string
}

// Manager acquires and caches upstream tokens, one live token per scope.
// Concurrent callers asking for the same expiring scope share a single
// upstream exchange.
type Manager struct {
	mu     sync.RWMutex
	creds  map[types.TokenScope]*Credential
	tokens map[types.TokenScope]*model.AccessToken

	group        singleflight.Group
	httpClient   *http.Client
	audit        interfaces.TokenAuditStore
	safetyBuffer time.Duration
	now          func() time.Time
}

// Option is a functional option for the manager
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for token exchanges
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithSafetyBuffer overrides the expiry safety buffer
func WithSafetyBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.safetyBuffer = d
	}
}

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a token manager. Successful refreshes are appended to the
// audit store when one is provided.
func New(audit interfaces.TokenAuditStore, opts ...Option) *Manager {
	m := &Manager{
		creds:        make(map[types.TokenScope]*Credential),
		tokens:       make(map[types.TokenScope]*model.AccessToken),
		httpClient:   http.DefaultClient,
		audit:        audit,
		safetyBuffer: DefaultSafetyBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds the credential for a scope
func (m *Manager) Register(cred *Credential) error {
	if cred == nil {
		return goerr.New("credential is nil")
	}
	if err := cred.Scope.Validate(); err != nil {
		return goerr.Wrap(err, "invalid credential scope")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Scope] = cred
	return nil
}

// GetToken returns a live token for the scope. A cached token outside the
// safety buffer is returned without a network call; otherwise exactly one
// exchange runs no matter how many callers arrive concurrently.
func (m *Manager) GetToken(ctx context.Context, scope types.TokenScope) (*model.AccessToken, error) {
	if cached := m.cachedToken(scope); cached != nil {
		return cached, nil
	}

	result, err, _ := m.group.Do(scope.String(), func() (any, error) {
		// A concurrent caller may have refreshed while this one waited
		if cached := m.cachedToken(scope); cached != nil {
			return cached, nil
		}
		return m.acquire(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	// Every waiter of a shared exchange receives the same result value;
	// clone so no caller can mutate another's token
	return result.(*model.AccessToken).Clone(), nil
}

// cachedToken returns a copy of the cached token when it is outside the
// safety buffer, nil otherwise
func (m *Manager) cachedToken(scope types.TokenScope) *model.AccessToken {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[scope]
	if !ok || token.ExpiresWithin(m.now(), m.safetyBuffer) {
		return nil
	}
	return token.Clone()
}

func (m *Manager) acquire(ctx context.Context, scope types.TokenScope) (*model.AccessToken, error) {
	m.mu.RLock()
	cred, ok := m.creds[scope]
	previous := m.tokens[scope]
	m.mu.RUnlock()

	if !ok {
		return nil, goerr.Wrap(types.ErrTokenAcquisition, "no credential registered for scope",
			goerr.V(types.ScopeKey, scope))
	}

	var token *model.AccessToken
	var err error
	if cred.Delegated {
		token, err = m.refreshDelegated(ctx, cred, previous)
	} else {
		token, err = m.clientCredentials(ctx, cred)
	}
	if err != nil {
		return nil, err
	}

	m.store(ctx, token)
	return token.Clone(), nil
}

// store caches the token and appends an audit entry
func (m *Manager) store(ctx context.Context, token *model.AccessToken) {
	m.mu.Lock()
	m.tokens[token.Scope] = token
	m.mu.Unlock()

	if m.audit != nil {
		event := &model.TokenRefreshEvent{
			Scope:       token.Scope,
			RefreshedAt: m.now(),
			ExpiresAt:   token.ExpiresAt,
		}
		if err := m.audit.Append(ctx, event); err != nil {
			logging.From(ctx).Warn("failed to append token audit entry",
				"scope", token.Scope, "error", err.Error())
		}
	}
}

// clientCredentials performs the client-credentials grant
func (m *Manager) clientCredentials(ctx context.Context, cred *Credential) (*model.AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	if cred.GrantScope != "" {
		form.Set("scope", cred.GrantScope)
	}

	resp, err := m.postForm(ctx, cred.TokenURL, form)
	if err != nil {
		return nil, goerr.Wrap(types.ErrTokenAcquisition, "client credentials exchange failed",
			goerr.V(types.ScopeKey, cred.Scope), goerr.V("cause", err.Error()))
	}

	return m.tokenFromResponse(cred, resp, "")
}

// tokenResponse is the OAuth2 token endpoint response shape
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// postForm POSTs the form and decodes the token response. A non-2xx status
// or an error body is returned as an error carrying status code and body.
func (m *Manager) postForm(ctx context.Context, tokenURL string, form url.Values) (*tokenResponse, error) {
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(encoded))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = int64(len(encoded))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call token endpoint")
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token response",
			goerr.V(types.StatusKey, resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		return nil, goerr.New("token endpoint rejected the request",
			goerr.V(types.StatusKey, resp.StatusCode),
			goerr.V(types.BodyKey, string(body)),
			goerr.V("oauth_error", tr.Error),
		)
	}

	if tr.AccessToken == "" {
		return nil, goerr.New("token response has no access token",
			goerr.V(types.StatusKey, resp.StatusCode))
	}

	return &tr, nil
}

// tokenFromResponse builds the cached token. previousRefresh is kept when
// the provider did not rotate the refresh token.
func (m *Manager) tokenFromResponse(cred *Credential, resp *tokenResponse, previousRefresh string) (*model.AccessToken, error) {
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	refresh := resp.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	token := &model.AccessToken{
		Scope:        cred.Scope,
		Value:        resp.AccessToken,
		ExpiresAt:    m.now().Add(time.Duration(expiresIn) * time.Second),
		RefreshToken: refresh,
	}
	if err := token.Validate(); err != nil {
		return nil, goerr.Wrap(err, "token endpoint returned an unusable token")
	}
	return token, nil
}
