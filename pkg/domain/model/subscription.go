package model

import "time"

// Subscription is a live webhook subscription with the upstream
// notification service. At most one is active per logical feed.
type Subscription struct {
	ID              string // assigned by the upstream
	Resource        string
	ChangeType      string
	NotificationURL string
	ExpiresAt       time.Time

	// ClientState is echoed back in notifications to prove origin
	ClientState string `masq:"secret"`
}

// SubscriptionState is the renewal state machine position
type SubscriptionState string

const (
	SubscriptionUninitialized   SubscriptionState = "uninitialized"
	SubscriptionActive          SubscriptionState = "active"
	SubscriptionRenewing        SubscriptionState = "renewing"
	SubscriptionRecreatePending SubscriptionState = "recreate_pending"
)

// String returns the string representation of the subscription state
func (s SubscriptionState) String() string {
	return string(s)
}
