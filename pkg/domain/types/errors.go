package types

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for the error taxonomy. Wrap with goerr.Wrap so callers
// can match with errors.Is while keeping upstream context values.
var (
	// ErrTokenAcquisition: credential exchange against a token endpoint
	// failed. Aborts the fetch for that provider only.
	ErrTokenAcquisition = goerr.New("token acquisition failed")

	// ErrUnauthenticated: a delegated refresh token was rejected; the end
	// user must go through the interactive login flow again.
	ErrUnauthenticated = goerr.New("delegated authentication required")

	// ErrSubscription: webhook subscription creation or renewal failed.
	// Never surfaced to end users; triggers the recreate-after-backoff policy.
	ErrSubscription = goerr.New("subscription operation failed")

	// ErrMalformedWebhookEntry: a single webhook payload entry could not be
	// parsed. Skipped and logged; the request still returns 200.
	ErrMalformedWebhookEntry = goerr.New("malformed webhook entry")

	// ErrUpstreamOutage: a presence fetch produced zero successful batches
	// with a transport failure at the first call.
	ErrUpstreamOutage = goerr.New("total upstream outage")

	// ErrNotFound is returned by stores when a key does not exist
	ErrNotFound = goerr.New("not found")
)

// Context keys for error values
const (
	ScopeKey    = "scope"
	UserIDKey   = "user_id"
	ProviderKey = "provider"
	StatusKey   = "status_code"
	BodyKey     = "body"
)
