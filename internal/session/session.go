// Package session owns the locally-identified participant: create-or-fetch
// on startup, cache-through reads, and status mutation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"nightwatch/presence/internal/cache"
	"nightwatch/presence/internal/db"
)

// DefaultTTL is how long a resolved participant stays cached before the next
// Initialize goes back to the store.
const DefaultTTL = 2 * time.Minute

// Store is the slice of the remote store the session manager needs.
type Store interface {
	GetParticipantByLabel(ctx context.Context, label string) (*db.Participant, error)
	CreateParticipant(ctx context.Context, label string, now time.Time) (*db.Participant, error)
	UpdateParticipantStatus(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*db.Participant, error)
}

type Manager struct {
	store Store
	cache *cache.Cache[db.Participant]
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	label   string
	current *db.Participant
}

func NewManager(store Store, c *cache.Cache[db.Participant], ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, cache: c, ttl: ttl, now: time.Now}
}

func cacheKey(label string) string {
	return "participant:" + label
}

// Initialize resolves the participant for deviceLabel: cached value when
// fresh, otherwise fetch-and-touch, otherwise create.
func (m *Manager) Initialize(ctx context.Context, deviceLabel string) (*db.Participant, error) {
	if cached, ok := m.cache.Get(cacheKey(deviceLabel)); ok {
		m.setCurrent(deviceLabel, cached)
		return &cached, nil
	}

	now := m.now()
	p, err := m.store.GetParticipantByLabel(ctx, deviceLabel)
	if err == nil {
		p, err = m.store.UpdateParticipantStatus(ctx, p.ID, true, now)
		if err != nil {
			return nil, err
		}
	} else if errors.Is(err, db.ErrNotFound) {
		p, err = m.store.CreateParticipant(ctx, deviceLabel, now)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	m.cache.Set(cacheKey(deviceLabel), *p, m.ttl)
	m.setCurrent(deviceLabel, *p)
	return p, nil
}

// Refresh drops the cache entry for the current label and re-resolves.
// No-op when no participant was ever initialized.
func (m *Manager) Refresh(ctx context.Context) (*db.Participant, error) {
	m.mu.Lock()
	label := m.label
	m.mu.Unlock()
	if label == "" {
		return nil, nil
	}
	m.cache.Remove(cacheKey(label))
	return m.Initialize(ctx, label)
}

// UpdateStatus persists online and last-seen for the current participant and
// refreshes its cache entry. No-op when unresolved.
func (m *Manager) UpdateStatus(ctx context.Context, online bool) error {
	m.mu.Lock()
	current := m.current
	label := m.label
	m.mu.Unlock()
	if current == nil {
		return nil
	}
	p, err := m.store.UpdateParticipantStatus(ctx, current.ID, online, m.now())
	if err != nil {
		return err
	}
	m.cache.Set(cacheKey(label), *p, m.ttl)
	m.setCurrent(label, *p)
	return nil
}

// Current returns a copy of the resolved participant, or nil.
func (m *Manager) Current() *db.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	clone := *m.current
	return &clone
}

// ApplyRemote folds a change-stream update for the local participant into
// the cache. Only a strictly newer payload replaces cached state; anything
// else, including the equal-timestamp snapshots redelivered on penalty
// events, invalidates instead so the next read goes to the store. Re-setting
// a snapshot would reset the entry's age and could keep stale state fresh
// forever when the matching participant update was missed.
func (m *Manager) ApplyRemote(p db.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != p.ID {
		return
	}
	if !p.UpdatedAt.After(m.current.UpdatedAt) {
		m.cache.Remove(cacheKey(m.label))
		return
	}
	m.current = &p
	m.cache.Set(cacheKey(m.label), p, m.ttl)
}

func (m *Manager) setCurrent(label string, p db.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.label = label
	m.current = &p
}
