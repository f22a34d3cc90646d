package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"nightwatch/presence/internal/db"
)

// Handlers receive dispatched change events. Any handler may be nil.
type Handlers struct {
	// LocalParticipantChanged fires when the locally-resolved participant's
	// row changed remotely, or with a cloned snapshot after any penalty event.
	LocalParticipantChanged func(db.Participant)
	// RosterChanged fires on any participant insert/update and on any penalty
	// event; consumers re-fetch the roster themselves.
	RosterChanged func()
	// VerseChanged fires on any verse-submission event; consumers re-derive
	// submitted-today status.
	VerseChanged func()
}

// Listener subscribes to the three change channels on behalf of one resolved
// participant. The subscription is an owned resource: Start tears down any
// prior subscription before creating the new one, so re-resolving the local
// identity never produces duplicate delivery. Missed events while
// disconnected are not replayed.
type Listener struct {
	client   *redis.Client
	handlers Handlers

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	local  *db.Participant
}

func NewListener(client *redis.Client, handlers Handlers) *Listener {
	return &Listener{client: client, handlers: handlers}
}

// Start (re)subscribes for the given local participant. Safe to call again
// whenever the resolved identity changes.
func (l *Listener) Start(ctx context.Context, local db.Participant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()

	pubsub := l.client.Subscribe(ctx,
		Channel(db.TableParticipants), Channel(db.TableVerses), Channel(db.TablePenalties))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.pubsub = pubsub
	l.cancel = cancel
	l.local = &local

	go l.run(runCtx, pubsub.Channel())
	return nil
}

func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()
	l.local = nil
}

func (l *Listener) teardownLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.pubsub != nil {
		_ = l.pubsub.Close()
		l.pubsub = nil
	}
}

func (l *Listener) run(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("change event decode failed on %s: %v", msg.Channel, err)
				continue
			}
			l.dispatch(event)
		}
	}
}

func (l *Listener) dispatch(event Event) {
	switch event.Table {
	case db.TableParticipants:
		l.dispatchParticipant(event)
	case db.TableVerses:
		if l.handlers.VerseChanged != nil {
			l.handlers.VerseChanged()
		}
	case db.TablePenalties:
		l.dispatchPenalty()
	default:
		log.Printf("change event for unknown table %q dropped", event.Table)
	}
}

// dispatchParticipant always marks the roster stale; the roster callback
// carries no payload, so a record that fails to decode still invalidates.
func (l *Listener) dispatchParticipant(event Event) {
	var p db.Participant
	if err := json.Unmarshal(event.NewValue, &p); err != nil {
		log.Printf("participant event decode failed: %v", err)
	} else if event.Operation == db.OpUpdate {
		if local := l.localID(); local == p.ID && l.handlers.LocalParticipantChanged != nil {
			l.setLocal(p)
			l.handlers.LocalParticipantChanged(p)
		}
	}
	if l.handlers.RosterChanged != nil {
		l.handlers.RosterChanged()
	}
}

// dispatchPenalty marks the roster stale and, when a local participant is
// resolved, re-delivers a copy of its last known record so dependents treat
// it as stale even without a fresh read.
func (l *Listener) dispatchPenalty() {
	if l.handlers.RosterChanged != nil {
		l.handlers.RosterChanged()
	}
	l.mu.Lock()
	var snapshot *db.Participant
	if l.local != nil {
		clone := *l.local
		snapshot = &clone
	}
	l.mu.Unlock()
	if snapshot != nil && l.handlers.LocalParticipantChanged != nil {
		l.handlers.LocalParticipantChanged(*snapshot)
	}
}

func (l *Listener) localID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.local == nil {
		return uuid.Nil
	}
	return l.local.ID
}

func (l *Listener) setLocal(p db.Participant) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.local != nil && l.local.ID == p.ID {
		l.local = &p
	}
}
