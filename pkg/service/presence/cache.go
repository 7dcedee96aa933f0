package presence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/briareus/pkg/domain/interfaces"
	"github.com/secmon-lab/briareus/pkg/domain/model"
	"github.com/secmon-lab/briareus/pkg/domain/types"
)

// DefaultHealthWindow is how stale the cache may get before the query path
// forces a synchronous refresh.
const DefaultHealthWindow = 10 * time.Minute

// UpdateMode selects how a bulk fetch lands in the cache
type UpdateMode int

const (
	// ModeMerge replaces records by key but keeps identities absent from
	// the batch (incremental top-up)
	ModeMerge UpdateMode = iota
	// ModeReset clears everything first (startup, administrative reset)
	ModeReset
)

// Update is a single-key mutation, typically from a webhook event
type Update struct {
	ID          model.UserID
	RawStatus   string
	Status      types.Status
	DisplayName string
	Email       string
	Provenance  types.Provenance
}

// Cache owns the presence records and all merge semantics. It is
// constructed once at process start and injected into its consumers; all
// multi-step mutations serialize on its own mutex, on top of the store's
// per-call locking.
type Cache struct {
	store interfaces.PresenceStore

	mu           sync.Mutex
	healthWindow time.Duration
	emailDomains []string
	now          func() time.Time
}

// Option is a functional option for the cache
type Option func(*Cache)

// WithHealthWindow overrides the staleness threshold
func WithHealthWindow(d time.Duration) Option {
	return func(c *Cache) {
		c.healthWindow = d
	}
}

// WithEmailDomains sets the tenant allow-list used by Snapshot. Records
// whose email falls outside these domains are never exposed.
func WithEmailDomains(domains []string) Option {
	return func(c *Cache) {
		lowered := make([]string, len(domains))
		for i, d := range domains {
			lowered[i] = strings.ToLower(strings.TrimPrefix(d, "@"))
		}
		c.emailDomains = lowered
	}
}

// WithNow overrides the clock
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a presence cache over the store
func NewCache(store interfaces.PresenceStore, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		healthWindow: DefaultHealthWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpsertFromFetch lands a bulk fetch result. Each record replaces the prior
// entry for its key (polled data is authoritative at refresh time) while
// preserving identity attributes the batch did not supply. Records
// synthesized for agents no source answered for carry fallback provenance.
func (c *Cache) UpsertFromFetch(ctx context.Context, records []*model.RawPresence, mode UpdateMode, provenance types.Provenance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == ModeReset {
		if err := c.store.Clear(ctx); err != nil {
			return goerr.Wrap(err, "failed to clear presence store")
		}
	}

	now := c.now()
	for _, record := range records {
		if record == nil || record.ID == "" {
			continue
		}

		prov := provenance
		if record.Err != "" && record.RawStatus == "" {
			prov = types.ProvenanceFallback
		}

		merged := c.mergeLocked(ctx, record.ID, Update{
			ID:          record.ID,
			RawStatus:   record.RawStatus,
			Status:      record.Status,
			DisplayName: record.DisplayName,
			Email:       record.Email,
			Provenance:  prov,
		}, record.Err, now)
		if err := c.store.Put(ctx, merged); err != nil {
			return goerr.Wrap(err, "failed to store presence record",
				goerr.V(types.UserIDKey, record.ID))
		}
	}

	count, err := c.store.Count(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to count presence records")
	}

	meta, err := c.store.GetMetadata(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load presence metadata")
	}
	meta.LastFullRefresh = now
	meta.LastRefreshAttempt = now
	meta.LastUpdate = now
	meta.RecordCount = count
	if err := c.store.SaveMetadata(ctx, meta); err != nil {
		return goerr.Wrap(err, "failed to save presence metadata")
	}

	return nil
}

// ApplyUpdate is the single-key update path used by webhook events. Only
// the named record is read and written; the update merges into the prior
// record so fields the event did not carry survive.
func (c *Cache) ApplyUpdate(ctx context.Context, upd Update) error {
	if upd.ID == "" {
		return goerr.Wrap(types.ErrMalformedWebhookEntry, "update has no identity")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	merged := c.mergeLocked(ctx, upd.ID, upd, "", now)
	if err := c.store.Put(ctx, merged); err != nil {
		return goerr.Wrap(err, "failed to store presence record",
			goerr.V(types.UserIDKey, upd.ID))
	}

	meta, err := c.store.GetMetadata(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load presence metadata")
	}
	meta.LastUpdate = now
	if err := c.store.SaveMetadata(ctx, meta); err != nil {
		return goerr.Wrap(err, "failed to save presence metadata")
	}

	return nil
}

// mergeLocked folds an update into the prior record for the key, creating
// a minimal record on first sighting. Callers hold c.mu.
func (c *Cache) mergeLocked(ctx context.Context, id model.UserID, upd Update, errNote string, now time.Time) *model.PresenceRecord {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		// first sighting of this identity
		record = &model.PresenceRecord{ID: id}
	}

	record.Status = upd.Status
	record.Provenance = upd.Provenance
	record.LastUpdatedAt = now
	record.RawStatus = upd.RawStatus
	record.LastError = errNote
	if upd.DisplayName != "" {
		record.DisplayName = upd.DisplayName
	}
	if upd.Email != "" {
		record.Email = upd.Email
	}

	return record
}

// Lookup returns the record for the key, if any
func (c *Cache) Lookup(ctx context.Context, id model.UserID) (*model.PresenceRecord, bool) {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return record, true
}

// Snapshot returns a stable, sorted copy of the cache filtered to known
// identities: placeholder records with no display name are excluded, and
// so is any identity outside the tenant email-domain allow-list.
func (c *Cache) Snapshot(ctx context.Context) ([]*model.PresenceRecord, error) {
	records, err := c.store.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list presence records")
	}

	known := make([]*model.PresenceRecord, 0, len(records))
	for _, record := range records {
		if record.DisplayName == "" {
			continue
		}
		if !c.domainAllowed(record.Email) {
			continue
		}
		known = append(known, record)
	}

	sort.Slice(known, func(i, j int) bool {
		if known[i].DisplayName != known[j].DisplayName {
			return known[i].DisplayName < known[j].DisplayName
		}
		return known[i].ID < known[j].ID
	})

	return known, nil
}

func (c *Cache) domainAllowed(email string) bool {
	if len(c.emailDomains) == 0 {
		return true
	}
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	domain = strings.ToLower(domain)
	for _, allowed := range c.emailDomains {
		if domain == allowed {
			return true
		}
	}
	return false
}

// Healthy reports whether the cache can be served as-is: non-empty and
// updated within the health window. An unhealthy cache triggers a
// synchronous refresh in the query path.
func (c *Cache) Healthy(ctx context.Context) bool {
	count, err := c.store.Count(ctx)
	if err != nil || count == 0 {
		return false
	}

	meta, err := c.store.GetMetadata(ctx)
	if err != nil {
		return false
	}

	return c.now().Sub(meta.LastUpdate) < c.healthWindow
}

// LastUpdated returns the time of the most recent mutation
func (c *Cache) LastUpdated(ctx context.Context) time.Time {
	meta, err := c.store.GetMetadata(ctx)
	if err != nil {
		return time.Time{}
	}
	return meta.LastUpdate
}

// Count returns the number of records, placeholders included
func (c *Cache) Count(ctx context.Context) int {
	count, err := c.store.Count(ctx)
	if err != nil {
		return 0
	}
	return count
}

// Clear empties the cache. Administrative reset only.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear presence store")
	}
	return c.store.SaveMetadata(ctx, &model.PresenceMetadata{})
}
