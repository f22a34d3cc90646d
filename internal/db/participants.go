package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const participantColumns = "id, device_label, penalty_count, online, last_seen_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParticipant(row rowScanner) (*Participant, error) {
	var p Participant
	err := row.Scan(&p.ID, &p.DeviceLabel, &p.PenaltyCount, &p.Online, &p.LastSeenAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error) {
	row := s.Pool.QueryRow(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE id = $1", id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapErr("get participant", err)
	}
	return p, nil
}

func (s *Store) GetParticipantByLabel(ctx context.Context, label string) (*Participant, error) {
	row := s.Pool.QueryRow(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE device_label = $1", label)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapErr("get participant by label", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]Participant, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT "+participantColumns+" FROM participants ORDER BY device_label")
	if err != nil {
		return nil, wrapErr("list participants", err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, wrapErr("list participants", err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list participants", err)
	}
	return participants, nil
}

// CreateParticipant registers a device on first contact: online, seen now,
// zero penalties.
func (s *Store) CreateParticipant(ctx context.Context, label string, now time.Time) (*Participant, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO participants (device_label, penalty_count, online, last_seen_at, created_at, updated_at)
		 VALUES ($1, 0, true, $2, $2, $2)
		 RETURNING `+participantColumns, label, now.UTC())
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapErr("create participant", err)
	}
	s.publish(ctx, TableParticipants, OpInsert, p)
	return p, nil
}

// UpdateParticipantStatus persists the online flag and last-seen timestamp
// without touching other fields. The write is idempotent, so callers issue it
// unconditionally on every probe.
func (s *Store) UpdateParticipantStatus(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*Participant, error) {
	row := s.Pool.QueryRow(ctx,
		`UPDATE participants SET online = $2, last_seen_at = $3, updated_at = $3
		 WHERE id = $1
		 RETURNING `+participantColumns, id, online, lastSeen.UTC())
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapErr("update participant status", err)
	}
	s.publish(ctx, TableParticipants, OpUpdate, p)
	return p, nil
}
