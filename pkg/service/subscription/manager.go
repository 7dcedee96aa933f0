package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/utils/logging"
)

const (
	// DefaultTTL is the requested subscription lifetime
	DefaultTTL = time.Hour

	// renewLead is how long before expiry the renewal fires
	renewLead = 5 * time.Minute
	// minRenewDelay is the floor for the renewal timer
	minRenewDelay = 30 * time.Second
	// recreateBackoff is the wait before a full re-create after a failed
	// renewal. Renewal of a possibly-deleted subscription is never retried,
	// to avoid an infinite renew loop.
	recreateBackoff = 30 * time.Second
)

// Manager keeps exactly one webhook subscription alive against the
// upstream notification service. It owns the renewal timer; Stop cancels
// the timer and abandons any in-flight renewal.
//
// States: Uninitialized → Active → (Renewing → Active | RecreatePending →
// Active). Explicit teardown returns to Uninitialized.
type Manager struct {
	client          interfaces.SubscriptionClient
	notificationURL string
	ttl             time.Duration

	mu      sync.Mutex
	state   model.SubscriptionState
	sub     *model.Subscription
	timer   *time.Timer
	stopped bool

	now     func() time.Time
	lead    time.Duration
	floor   time.Duration
	backoff time.Duration
}

// Option is a functional option for the manager
type Option func(*Manager)

// WithTTL overrides the requested subscription lifetime
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTimings overrides the renewal lead, timer floor and recreate backoff
// (tests)
func WithTimings(lead, floor, backoff time.Duration) Option {
	return func(m *Manager) {
		m.lead = lead
		m.floor = floor
		m.backoff = backoff
	}
}

// New creates a subscription manager. The subscription itself is not
// created until Start.
func New(client interfaces.SubscriptionClient, notificationURL string, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, goerr.New("subscription client is required")
	}
	if notificationURL == "" {
		return nil, goerr.New("notification URL is required")
	}

	m := &Manager{
		client:          client,
		notificationURL: notificationURL,
		ttl:             DefaultTTL,
		state:           model.SubscriptionUninitialized,
		now:             time.Now,
		lead:            renewLead,
		floor:           minRenewDelay,
		backoff:         recreateBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start creates the subscription and arms the renewal timer
func (m *Manager) Start(ctx context.Context) error {
	return m.create(ctx)
}

// State returns the current state machine position
func (m *Manager) State() model.SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the active subscription, or nil
func (m *Manager) Current() *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return nil
	}
	clone := *m.sub
	return &clone
}

// VerifyClientState reports whether the presented client state matches the
// live subscription. The webhook ingress uses this to drop notifications
// that do not originate from the subscription this manager created.
func (m *Manager) VerifyClientState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil && state != "" && state == m.sub.ClientState
}

// create registers a new subscription. An existing one is deleted first,
// best-effort: the upstream may already have dropped it.
func (m *Manager) create(ctx context.Context) error {
	m.mu.Lock()
	old := m.sub
	m.mu.Unlock()

	if old != nil {
		if err := m.client.DeleteSubscription(ctx, old.ID); err != nil {
			logging.From(ctx).Warn("failed to delete stale subscription, continuing",
				"subscription_id", old.ID, "error", err.Error())
		}
	}

	sub, err := m.client.CreateSubscription(ctx, m.notificationURL, m.ttl)
	if err != nil {
		m.mu.Lock()
		m.sub = nil
		m.state = model.SubscriptionUninitialized
		m.mu.Unlock()
		return goerr.Wrap(err, "subscription create failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.sub = sub
	m.state = model.SubscriptionActive
	m.scheduleRenewalLocked(ctx, sub.ExpiresAt)

	logging.From(ctx).Info("subscription active",
		"subscription_id", sub.ID,
		"expires_at", sub.ExpiresAt,
	)
	return nil
}

// scheduleRenewalLocked arms the one-shot renewal timer for
// max(expiry - lead - now, floor). Callers hold m.mu.
func (m *Manager) scheduleRenewalLocked(ctx context.Context, expiry time.Time) {
	if m.timer != nil {
		m.timer.Stop()
	}

	delay := renewalDelay(m.now(), expiry, m.lead, m.floor)
	logger := logging.From(ctx)
	m.timer = time.AfterFunc(delay, func() {
		m.renew(logging.With(context.Background(), logger))
	})

	logger.Debug("renewal scheduled", "delay", delay.String(), "expiry", expiry)
}

// renewalDelay computes the timer delay for a subscription expiring at
// expiry: lead before expiry, but never sooner than the floor from now.
func renewalDelay(now, expiry time.Time, lead, floor time.Duration) time.Duration {
	delay := expiry.Sub(now) - lead
	if delay < floor {
		delay = floor
	}
	return delay
}

// renew extends the current subscription. On failure the manager does not
// retry the renewal; it schedules a full re-create after the backoff, in
// case the upstream already deleted the subscription.
func (m *Manager) renew(ctx context.Context) {
	m.mu.Lock()
	if m.stopped || m.sub == nil {
		m.mu.Unlock()
		return
	}
	id := m.sub.ID
	m.state = model.SubscriptionRenewing
	m.mu.Unlock()

	expiry, err := m.client.RenewSubscription(ctx, id, m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	if err != nil {
		logging.From(ctx).Warn("subscription renewal failed, scheduling re-create",
			"subscription_id", id,
			"backoff", m.backoff.String(),
			"error", err.Error(),
		)
		m.state = model.SubscriptionRecreatePending
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = time.AfterFunc(m.backoff, func() {
			m.recreate(ctx)
		})
		return
	}

	m.sub.ExpiresAt = expiry
	m.state = model.SubscriptionActive
	m.scheduleRenewalLocked(ctx, expiry)

	logging.From(ctx).Info("subscription renewed",
		"subscription_id", id, "expires_at", expiry)
}

// recreate runs the deferred full create after a failed renewal
func (m *Manager) recreate(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.create(ctx); err != nil {
		logging.From(ctx).Error("subscription re-create failed, retrying after backoff",
			"backoff", m.backoff.String(),
			"error", err.Error(),
		)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopped {
			return
		}
		m.state = model.SubscriptionRecreatePending
		if m.timer != nil {
			m.timer.Stop()
		}
		m.timer = time.AfterFunc(m.backoff, func() {
			m.recreate(ctx)
		})
	}
}

// Stop tears the subscription down: the timer is cleared, any in-flight
// renewal is abandoned, and the upstream registration is deleted
// best-effort.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	sub := m.sub
	m.sub = nil
	m.state = model.SubscriptionUninitialized
	m.mu.Unlock()

	if sub != nil {
		if err := m.client.DeleteSubscription(ctx, sub.ID); err != nil {
			logging.From(ctx).Warn("failed to delete subscription on shutdown",
				"subscription_id", sub.ID, "error", err.Error())
		}
	}

	logging.From(ctx).Info("subscription manager stopped")
}
