package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// presenceResource is the logical feed this proxy subscribes to
const presenceResource = "/communications/presences"

// CreateSubscription registers a presence-change webhook subscription
// pointing at notificationURL, valid for ttl.
func (c *Client) CreateSubscription(ctx context.Context, notificationURL string, ttl time.Duration) (*model.Subscription, error) {
	payload := subscriptionRequest{
		ChangeType:         "updated",
		NotificationURL:    notificationURL,
		Resource:           presenceResource,
		ExpirationDateTime: time.Now().Add(ttl).UTC().Format(time.RFC3339),
		ClientState:        uuid.NewString(),
	}

	var resp subscriptionResponse
	url := c.baseURL + "/subscriptions"
	if err := c.do(ctx, types.ScopeGraphNotifications, "POST", url, payload, &resp); err != nil {
		return nil, goerr.Wrap(types.ErrSubscription, "failed to create subscription",
			goerr.V("notification_url", notificationURL), goerr.V("cause", err.Error()))
	}

	expiry, err := resp.expiry()
	if err != nil {
		return nil, goerr.Wrap(types.ErrSubscription, "subscription has an unparsable expiry",
			goerr.V("expiry", resp.ExpirationDateTime))
	}

	return &model.Subscription{
		ID:              resp.ID,
		Resource:        resp.Resource,
		ChangeType:      resp.ChangeType,
		NotificationURL: resp.NotificationURL,
		ExpiresAt:       expiry,
		ClientState:     payload.ClientState,
	}, nil
}

// RenewSubscription extends an existing subscription by ttl and returns the
// new expiry.
func (c *Client) RenewSubscription(ctx context.Context, id string, ttl time.Duration) (time.Time, error) {
	payload := subscriptionRequest{
		ExpirationDateTime: time.Now().Add(ttl).UTC().Format(time.RFC3339),
	}

	var resp subscriptionResponse
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, id)
	if err := c.do(ctx, types.ScopeGraphNotifications, "PATCH", url, payload, &resp); err != nil {
		return time.Time{}, goerr.Wrap(types.ErrSubscription, "failed to renew subscription",
			goerr.V("subscription_id", id), goerr.V("cause", err.Error()))
	}

	expiry, err := resp.expiry()
	if err != nil {
		return time.Time{}, goerr.Wrap(types.ErrSubscription, "renewed subscription has an unparsable expiry",
			goerr.V("expiry", resp.ExpirationDateTime))
	}
	return expiry, nil
}

// DeleteSubscription tears down a subscription on the upstream
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/subscriptions/%s", c.baseURL, id)
	if err := c.do(ctx, types.ScopeGraphNotifications, "DELETE", url, nil, nil); err != nil {
		return goerr.Wrap(types.ErrSubscription, "failed to delete subscription",
			goerr.V("subscription_id", id), goerr.V("cause", err.Error()))
	}
	return nil
}
