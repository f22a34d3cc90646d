package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"nightwatch/presence/internal/db"
)

type recorded struct {
	locals  []db.Participant
	rosters int
	verses  int
}

func newDispatchListener(t *testing.T, local *db.Participant) (*Listener, *recorded) {
	t.Helper()
	rec := &recorded{}
	l := NewListener(nil, Handlers{
		LocalParticipantChanged: func(p db.Participant) { rec.locals = append(rec.locals, p) },
		RosterChanged:           func() { rec.rosters++ },
		VerseChanged:            func() { rec.verses++ },
	})
	l.local = local
	return l, rec
}

func participantEvent(t *testing.T, op string, p db.Participant) Event {
	t.Helper()
	payload, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal participant: %v", err)
	}
	return Event{Table: db.TableParticipants, Operation: op, NewValue: payload}
}

func TestDispatchLocalParticipantUpdate(t *testing.T) {
	local := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceA"}
	l, rec := newDispatchListener(t, &local)

	changed := local
	changed.PenaltyCount = 2
	changed.UpdatedAt = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.dispatch(participantEvent(t, db.OpUpdate, changed))

	if len(rec.locals) != 1 || rec.locals[0].PenaltyCount != 2 {
		t.Fatalf("expected local change delivery with new record, got %+v", rec.locals)
	}
	if rec.rosters != 1 {
		t.Fatalf("expected roster change, got %d", rec.rosters)
	}
}

func TestDispatchOtherParticipantUpdateOnlyTouchesRoster(t *testing.T) {
	local := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceA"}
	l, rec := newDispatchListener(t, &local)

	other := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceB"}
	l.dispatch(participantEvent(t, db.OpUpdate, other))

	if len(rec.locals) != 0 {
		t.Fatalf("expected no local delivery for other participants, got %+v", rec.locals)
	}
	if rec.rosters != 1 {
		t.Fatalf("expected roster change, got %d", rec.rosters)
	}
}

func TestDispatchParticipantInsertIsNeverLocal(t *testing.T) {
	local := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceA"}
	l, rec := newDispatchListener(t, &local)

	l.dispatch(participantEvent(t, db.OpInsert, local))

	if len(rec.locals) != 0 {
		t.Fatalf("expected inserts not to fire the local handler, got %+v", rec.locals)
	}
	if rec.rosters != 1 {
		t.Fatalf("expected roster change, got %d", rec.rosters)
	}
}

func TestDispatchParticipantDecodeFailureStillMarksRoster(t *testing.T) {
	local := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceA"}
	l, rec := newDispatchListener(t, &local)

	l.dispatch(Event{Table: db.TableParticipants, Operation: db.OpUpdate, NewValue: []byte(`not json`)})

	if rec.rosters != 1 {
		t.Fatalf("expected a roster change despite the broken payload, got %d", rec.rosters)
	}
	if len(rec.locals) != 0 {
		t.Fatalf("expected no local delivery for an undecodable record, got %+v", rec.locals)
	}
}

func TestDispatchVerseEvent(t *testing.T) {
	l, rec := newDispatchListener(t, nil)
	l.dispatch(Event{Table: db.TableVerses, Operation: db.OpInsert, NewValue: []byte(`{}`)})
	if rec.verses != 1 || rec.rosters != 0 {
		t.Fatalf("expected only the verse handler, got verses=%d rosters=%d", rec.verses, rec.rosters)
	}
}

func TestDispatchPenaltyRedeliversLocalSnapshot(t *testing.T) {
	local := db.Participant{ID: uuid.New(), DeviceLabel: "DeviceA", PenaltyCount: 1}
	l, rec := newDispatchListener(t, &local)

	l.dispatch(Event{Table: db.TablePenalties, Operation: db.OpInsert, NewValue: []byte(`{}`)})

	if rec.rosters != 1 {
		t.Fatalf("expected roster change, got %d", rec.rosters)
	}
	if len(rec.locals) != 1 || rec.locals[0].ID != local.ID {
		t.Fatalf("expected a cloned local snapshot, got %+v", rec.locals)
	}
}

func TestDispatchPenaltyWithoutLocalSkipsSnapshot(t *testing.T) {
	l, rec := newDispatchListener(t, nil)
	l.dispatch(Event{Table: db.TablePenalties, Operation: db.OpInsert, NewValue: []byte(`{}`)})
	if rec.rosters != 1 || len(rec.locals) != 0 {
		t.Fatalf("expected roster-only delivery, got rosters=%d locals=%d", rec.rosters, len(rec.locals))
	}
}

func TestDispatchUnknownTableIsDropped(t *testing.T) {
	l, rec := newDispatchListener(t, nil)
	l.dispatch(Event{Table: "pings", Operation: db.OpInsert})
	if rec.rosters != 0 && rec.verses != 0 {
		t.Fatalf("expected unknown table to be dropped")
	}
}
