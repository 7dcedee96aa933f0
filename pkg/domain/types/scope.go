package types

import "github.com/m-mizutani/goerr/v2"

// TokenScope identifies which upstream capability a cached token grants.
// One live token is held per scope.
type TokenScope string

const (
	// ScopeGraphPresence grants read access to the UC platform's presence API
	ScopeGraphPresence TokenScope = "graph:presence"
	// ScopeGraphNotifications grants subscription management on the UC platform
	ScopeGraphNotifications TokenScope = "graph:notifications"
	// ScopeCalendarDelegated grants user-delegated calendar access, acquired
	// through the interactive authorization-code flow
	ScopeCalendarDelegated TokenScope = "calendar:delegated"
)

// Validate checks if the token scope is non-empty
func (s TokenScope) Validate() error {
	if s == "" {
		return goerr.New("token scope is empty")
	}
	return nil
}

// String returns the string representation of the token scope
func (s TokenScope) String() string {
	return string(s)
}
