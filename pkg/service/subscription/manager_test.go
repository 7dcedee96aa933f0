package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/service/subscription"
)

type fakeSubClient struct {
	mu       sync.Mutex
	creates  int
	renews   int
	deletes  []string
	renewErr error
	ttl      time.Duration
}

func (c *fakeSubClient) CreateSubscription(ctx context.Context, notificationURL string, ttl time.Duration) (*model.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates++
	c.ttl = ttl
	id := "sub-" + time.Now().Format("150405.000000000")
	return &model.Subscription{
		ID:              id,
		Resource:        "/communications/presences",
		ChangeType:      "updated",
		NotificationURL: notificationURL,
		ExpiresAt:       time.Now().Add(ttl),
		ClientState:     "state-" + id,
	}, nil
}

func (c *fakeSubClient) RenewSubscription(ctx context.Context, id string, ttl time.Duration) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renews++
	if c.renewErr != nil {
		return time.Time{}, c.renewErr
	}
	return time.Now().Add(ttl), nil
}

func (c *fakeSubClient) DeleteSubscription(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, id)
	return nil
}

func (c *fakeSubClient) counts() (creates, renews, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates, c.renews, len(c.deletes)
}

func TestRenewalDelay(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lead := 5 * time.Minute
	floor := 30 * time.Second

	t.Run("normal expiry renews lead before it", func(t *testing.T) {
		expiry := now.Add(time.Hour)
		gt.Value(t, subscription.RenewalDelay(now, expiry, lead, floor)).Equal(55 * time.Minute)
	})

	t.Run("imminent expiry is clamped to the floor", func(t *testing.T) {
		expiry := now.Add(2 * time.Minute)
		gt.Value(t, subscription.RenewalDelay(now, expiry, lead, floor)).Equal(floor)
	})

	t.Run("past expiry is clamped to the floor", func(t *testing.T) {
		expiry := now.Add(-time.Minute)
		gt.Value(t, subscription.RenewalDelay(now, expiry, lead, floor)).Equal(floor)
	})
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("start creates and activates", func(t *testing.T) {
		client := &fakeSubClient{}
		mgr, err := subscription.New(client, "https://proxy.example.com/notifications")
		gt.NoError(t, err).Required()
		defer mgr.Stop(ctx)

		gt.Value(t, mgr.State()).Equal(model.SubscriptionUninitialized)
		gt.NoError(t, mgr.Start(ctx)).Required()
		gt.Value(t, mgr.State()).Equal(model.SubscriptionActive)

		sub := mgr.Current()
		gt.Value(t, sub).NotNil()
		gt.String(t, sub.NotificationURL).Equal("https://proxy.example.com/notifications")
	})

	t.Run("renewal keeps the subscription active", func(t *testing.T) {
		client := &fakeSubClient{}
		mgr, err := subscription.New(client, "https://proxy.example.com/notifications",
			subscription.WithTTL(time.Second),
			subscription.WithTimings(900*time.Millisecond, 20*time.Millisecond, 20*time.Millisecond),
		)
		gt.NoError(t, err).Required()
		defer mgr.Stop(ctx)

		gt.NoError(t, mgr.Start(ctx)).Required()

		// TTL 1s with 900ms lead arms the timer at ~100ms
		time.Sleep(300 * time.Millisecond)

		_, renews, _ := client.counts()
		gt.Bool(t, renews >= 1).True()
		gt.Value(t, mgr.State()).Equal(model.SubscriptionActive)
	})

	t.Run("renewal failure re-creates after backoff", func(t *testing.T) {
		client := &fakeSubClient{renewErr: goerr.New("subscription gone")}
		mgr, err := subscription.New(client, "https://proxy.example.com/notifications",
			subscription.WithTTL(time.Second),
			subscription.WithTimings(900*time.Millisecond, 20*time.Millisecond, 20*time.Millisecond),
		)
		gt.NoError(t, err).Required()
		defer mgr.Stop(ctx)

		gt.NoError(t, mgr.Start(ctx)).Required()
		firstID := mgr.Current().ID

		// timer (~100ms) → failed renew → backoff (20ms) → re-create
		time.Sleep(400 * time.Millisecond)

		creates, renews, deletes := client.counts()
		gt.Bool(t, renews >= 1).True()
		gt.Bool(t, creates >= 2).True()
		// the stale registration is deleted before the new create
		gt.Bool(t, deletes >= 1).True()
		gt.Value(t, mgr.State()).Equal(model.SubscriptionActive)
		gt.Value(t, mgr.Current().ID).NotEqual(firstID)
	})

	t.Run("client state verifies only against the live subscription", func(t *testing.T) {
		client := &fakeSubClient{}
		mgr, err := subscription.New(client, "https://proxy.example.com/notifications")
		gt.NoError(t, err).Required()

		// nothing to verify against before the subscription exists
		gt.Bool(t, mgr.VerifyClientState("anything")).False()

		gt.NoError(t, mgr.Start(ctx)).Required()
		state := mgr.Current().ClientState
		gt.Bool(t, mgr.VerifyClientState(state)).True()
		gt.Bool(t, mgr.VerifyClientState("forged")).False()
		gt.Bool(t, mgr.VerifyClientState("")).False()

		mgr.Stop(ctx)
		gt.Bool(t, mgr.VerifyClientState(state)).False()
	})

	t.Run("stop tears down and deletes upstream", func(t *testing.T) {
		client := &fakeSubClient{}
		mgr, err := subscription.New(client, "https://proxy.example.com/notifications")
		gt.NoError(t, err).Required()

		gt.NoError(t, mgr.Start(ctx)).Required()
		mgr.Stop(ctx)

		gt.Value(t, mgr.State()).Equal(model.SubscriptionUninitialized)
		gt.Value(t, mgr.Current()).Nil()

		_, _, deletes := client.counts()
		gt.Number(t, deletes).Equal(1)
	})
}
