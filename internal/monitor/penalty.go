package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"nightwatch/presence/internal/db"
)

// Penalizer runs the idempotent penalty protocol. Each participant gets its
// own critical section so concurrent tick sources (probe timer, window
// recheck, HTTP reduction) cannot interleave their read-then-write steps;
// the store applies record insert and counter increment in one transaction
// and its partial unique index covers other processes.
type Penalizer struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewPenalizer(store Store) *Penalizer {
	return &Penalizer{
		store: store,
		now:   time.Now,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (p *Penalizer) lockFor(id uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	return lock
}

// Apply records today's penalty for the participant unless one is already
// active. Returns true only when this call created the record; the store
// increments the participant's counter atomically with that insert.
func (p *Penalizer) Apply(ctx context.Context, participantID uuid.UUID, day time.Time) (bool, error) {
	lock := p.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	_, err := p.store.FindActivePenalty(ctx, participantID, day)
	if err == nil {
		return false, nil // already penalized today
	}
	if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	_, created, err := p.store.ApplyPenalty(ctx, participantID, day)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil // another client won the insert
	}
	penaltiesAppliedTotal.Inc()
	return true, nil
}

// Reduce resolves the participant's most recent active penalty and
// decrements the counter. A participant with a zero counter is a no-op and
// no record is selected.
func (p *Penalizer) Reduce(ctx context.Context, participantID, reducer uuid.UUID) (*db.PenaltyRecord, error) {
	lock := p.lockFor(participantID)
	lock.Lock()
	defer lock.Unlock()

	participant, err := p.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant.PenaltyCount <= 0 {
		return nil, nil
	}
	record, _, err := p.store.ReducePenalty(ctx, participantID, reducer, p.now())
	if err != nil {
		return nil, err
	}
	return record, nil
}
