package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"nightwatch/presence/internal/db"
)

// fakeStore is an in-memory monitor.Store that mimics the remote store's
// conditional-write semantics, including the active-penalty uniqueness rule.
type fakeStore struct {
	mu           sync.Mutex
	participants map[uuid.UUID]*db.Participant
	penalties    []*db.PenaltyRecord
	pings        []db.ActivityPing

	readErr      error
	statusWrites []bool // online flags, in write order
	reduceCalls  int
	clock        time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[uuid.UUID]*db.Participant),
		clock:        time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addParticipant(label string) *db.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &db.Participant{
		ID:          uuid.New(),
		DeviceLabel: label,
		Online:      false,
		LastSeenAt:  f.clock,
		CreatedAt:   f.clock,
		UpdatedAt:   f.clock,
	}
	f.participants[p.ID] = p
	return p
}

func (f *fakeStore) tickClock() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) GetParticipant(_ context.Context, id uuid.UUID) (*db.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	p, ok := f.participants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakeStore) UpdateParticipantStatus(_ context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*db.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	p.Online = online
	p.LastSeenAt = lastSeen
	p.UpdatedAt = lastSeen
	f.statusWrites = append(f.statusWrites, online)
	clone := *p
	return &clone, nil
}

func (f *fakeStore) RecordPing(_ context.Context, participantID uuid.UUID, at time.Time, latency time.Duration, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, db.ActivityPing{
		ID:            uuid.New(),
		ParticipantID: participantID,
		PingedAt:      at,
		Latency:       latency,
		Online:        online,
	})
	return nil
}

func (f *fakeStore) FindActivePenalty(_ context.Context, participantID uuid.UUID, day time.Time) (*db.PenaltyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.activePenaltyLocked(participantID, day); p != nil {
		clone := *p
		return &clone, nil
	}
	return nil, db.ErrNotFound
}

// ApplyPenalty mirrors the real store: the record insert and the counter
// increment happen together or not at all.
func (f *fakeStore) ApplyPenalty(_ context.Context, participantID uuid.UUID, day time.Time) (*db.PenaltyRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activePenaltyLocked(participantID, day) != nil {
		return nil, false, nil
	}
	participant, ok := f.participants[participantID]
	if !ok {
		return nil, false, db.ErrNotFound
	}
	p := &db.PenaltyRecord{
		ID:            uuid.New(),
		ParticipantID: participantID,
		PenaltyDate:   db.DateOf(day),
		CreatedAt:     f.tickClock(),
	}
	f.penalties = append(f.penalties, p)
	participant.PenaltyCount++
	clone := *p
	return &clone, true, nil
}

func (f *fakeStore) ReducePenalty(_ context.Context, participantID, reducer uuid.UUID, at time.Time) (*db.PenaltyRecord, *db.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reduceCalls++
	var latest *db.PenaltyRecord
	for _, p := range f.penalties {
		if p.ParticipantID != participantID || p.ReducedBy != nil {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil, db.ErrNotFound
	}
	latest.ReducedBy = &reducer
	reducedAt := at
	latest.ReducedAt = &reducedAt
	participant := f.participants[participantID]
	participant.PenaltyCount--
	if participant.PenaltyCount < 0 {
		participant.PenaltyCount = 0
	}
	recordClone := *latest
	participantClone := *participant
	return &recordClone, &participantClone, nil
}

func (f *fakeStore) activePenaltyLocked(participantID uuid.UUID, day time.Time) *db.PenaltyRecord {
	date := db.DateOf(day)
	for _, p := range f.penalties {
		if p.ParticipantID == participantID && p.ReducedBy == nil && p.PenaltyDate.Equal(date) {
			return p
		}
	}
	return nil
}

func (f *fakeStore) activeCount(participantID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.penalties {
		if p.ParticipantID == participantID && p.ReducedBy == nil {
			count++
		}
	}
	return count
}

func (f *fakeStore) penaltyCount(participantID uuid.UUID) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[participantID].PenaltyCount
}

func TestApplyIsIdempotentForTheDay(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant("DeviceA")
	penalizer := NewPenalizer(store)
	day := time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		created, err := penalizer.Apply(context.Background(), p.ID, day)
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if created != (i == 0) {
			t.Fatalf("apply %d: expected created=%v got %v", i, i == 0, created)
		}
	}

	if got := store.activeCount(p.ID); got != 1 {
		t.Fatalf("expected exactly one active penalty, got %d", got)
	}
	if got := store.penaltyCount(p.ID); got != 1 {
		t.Fatalf("expected penalty_count 1, got %d", got)
	}
}

func TestApplySkipsWhenAnotherClientWonTheInsert(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant("DeviceA")
	day := time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)

	// another device already applied today's penalty
	if _, created, err := store.ApplyPenalty(context.Background(), p.ID, day); err != nil || !created {
		t.Fatalf("seed penalty: created=%v err=%v", created, err)
	}

	penalizer := NewPenalizer(store)
	created, err := penalizer.Apply(context.Background(), p.ID, day)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if created {
		t.Fatalf("expected no-op when the day is already penalized")
	}
	if got := store.penaltyCount(p.ID); got != 1 {
		t.Fatalf("expected penalty_count to stay 1, got %d", got)
	}
}

func TestApplyCreatesSeparateRecordsPerDay(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant("DeviceA")
	penalizer := NewPenalizer(store)

	day1 := time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	for _, day := range []time.Time{day1, day2} {
		if created, err := penalizer.Apply(context.Background(), p.ID, day); err != nil || !created {
			t.Fatalf("day %v: created=%v err=%v", day, created, err)
		}
	}
	if got := store.activeCount(p.ID); got != 2 {
		t.Fatalf("expected two active penalties, got %d", got)
	}
	if got := store.penaltyCount(p.ID); got != 2 {
		t.Fatalf("expected penalty_count 2, got %d", got)
	}
}

func TestReduceIsNoopAtZeroCount(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant("DeviceA")
	penalizer := NewPenalizer(store)

	record, err := penalizer.Reduce(context.Background(), p.ID, uuid.New())
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for zero counter")
	}
	if store.reduceCalls != 0 {
		t.Fatalf("expected no store reduction to be attempted, got %d", store.reduceCalls)
	}
}

func TestReduceResolvesMostRecentAndDecrements(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant("DeviceA")
	penalizer := NewPenalizer(store)
	reducer := store.addParticipant("DeviceB")

	day1 := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	if _, err := penalizer.Apply(context.Background(), p.ID, day1); err != nil {
		t.Fatalf("apply day1: %v", err)
	}
	if _, err := penalizer.Apply(context.Background(), p.ID, day2); err != nil {
		t.Fatalf("apply day2: %v", err)
	}

	record, err := penalizer.Reduce(context.Background(), p.ID, reducer.ID)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if record == nil || !record.PenaltyDate.Equal(db.DateOf(day2)) {
		t.Fatalf("expected most recent penalty to be resolved, got %+v", record)
	}
	if record.ReducedBy == nil || *record.ReducedBy != reducer.ID {
		t.Fatalf("expected reducer %s recorded, got %+v", reducer.ID, record.ReducedBy)
	}
	if got := store.penaltyCount(p.ID); got != 1 {
		t.Fatalf("expected penalty_count 1 after reduction, got %d", got)
	}

	if _, err := penalizer.Reduce(context.Background(), p.ID, reducer.ID); err != nil {
		t.Fatalf("second reduce: %v", err)
	}
	if got := store.penaltyCount(p.ID); got != 0 {
		t.Fatalf("expected penalty_count 0, got %d", got)
	}
	record, err = penalizer.Reduce(context.Background(), p.ID, reducer.ID)
	if err != nil || record != nil {
		t.Fatalf("expected floor at zero, got record=%+v err=%v", record, err)
	}
}
