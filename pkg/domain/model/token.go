package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// AccessToken is a live upstream credential. Owned exclusively by the token
// manager; callers receive copies and must not retain them beyond a request.
type AccessToken struct {
	Scope     types.TokenScope
	Value     string `masq:"secret"`
	ExpiresAt time.Time

	// RefreshToken is set only for user-delegated scopes. A successful
	// refresh keeps the previous value when the provider does not issue a
	// new one.
	RefreshToken string `masq:"secret"`
}

// Validate checks if the token is usable
func (t *AccessToken) Validate() error {
	if err := t.Scope.Validate(); err != nil {
		return err
	}
	if t.Value == "" {
		return goerr.New("token value is empty", goerr.V(types.ScopeKey, t.Scope))
	}
	if t.ExpiresAt.IsZero() {
		return goerr.New("token expiry is not set", goerr.V(types.ScopeKey, t.Scope))
	}
	return nil
}

// ExpiresWithin reports whether the token expires within d of now. Tokens
// inside the safety buffer are treated as already expired so they are never
// used mid-request.
func (t *AccessToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(d))
}

// Clone returns a copy safe to hand out to callers
func (t *AccessToken) Clone() *AccessToken {
	clone := *t
	return &clone
}

// TokenRefreshEvent is one entry of the in-memory refresh audit list
type TokenRefreshEvent struct {
	Scope       types.TokenScope `json:"scope"`
	RefreshedAt time.Time        `json:"refreshedAt"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}
