package db

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a monitored device identity. Rows are created on first
// contact from a device and never deleted in normal operation.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	DeviceLabel  string    `json:"device_label"`
	PenaltyCount int32     `json:"penalty_count"`
	Online       bool      `json:"online"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VerseSubmission is one participant's verse for a calendar day. The intended
// one-per-day rule is backed by a unique index on (participant_id,
// submitted_on).
type VerseSubmission struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Content       string    `json:"content"`
	SubmittedOn   time.Time `json:"submitted_on"`
	Weekday       string    `json:"weekday"`
	CreatedAt     time.Time `json:"created_at"`
}

// PenaltyRecord tracks one quiet-hours violation. A record with a nil
// ReducedBy is active; at most one active record may exist per participant
// and penalty date (partial unique index).
type PenaltyRecord struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	PenaltyDate   time.Time  `json:"penalty_date"`
	ReducedBy     *uuid.UUID `json:"reduced_by"`
	ReducedAt     *time.Time `json:"reduced_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Active reports whether the penalty has not been reduced yet.
func (p PenaltyRecord) Active() bool {
	return p.ReducedBy == nil
}

// ActivityPing is an append-only audit row written for failed or slow probes.
type ActivityPing struct {
	ID            uuid.UUID     `json:"id"`
	ParticipantID uuid.UUID     `json:"participant_id"`
	PingedAt      time.Time     `json:"pinged_at"`
	Latency       time.Duration `json:"latency_ms"`
	Online        bool          `json:"online"`
}

// DateOf truncates t to its calendar date, keeping the location's day.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
