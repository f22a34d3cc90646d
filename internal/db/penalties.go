package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const penaltyColumns = "id, participant_id, penalty_date, reduced_by, reduced_at, created_at"

func scanPenalty(row rowScanner) (*PenaltyRecord, error) {
	var p PenaltyRecord
	err := row.Scan(&p.ID, &p.ParticipantID, &p.PenaltyDate, &p.ReducedBy, &p.ReducedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindActivePenalty returns the unreduced penalty for the given day, or
// ErrNotFound.
func (s *Store) FindActivePenalty(ctx context.Context, participantID uuid.UUID, day time.Time) (*PenaltyRecord, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+penaltyColumns+` FROM penalties
		 WHERE participant_id = $1 AND penalty_date = $2 AND reduced_by IS NULL`,
		participantID, DateOf(day))
	p, err := scanPenalty(row)
	if err != nil {
		return nil, wrapErr("find active penalty", err)
	}
	return p, nil
}

// ApplyPenalty inserts an active penalty for the given day unless one
// already exists, and increments the participant's counter in the same
// transaction. The partial unique index makes the insert safe across
// processes: exactly one writer observes created=true for a given
// (participant, day), and only that writer's transaction bumps the counter.
// A crash can therefore never strand a penalty record without its increment.
func (s *Store) ApplyPenalty(ctx context.Context, participantID uuid.UUID, day time.Time) (*PenaltyRecord, bool, error) {
	var record *PenaltyRecord
	var participant *Participant
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO penalties (participant_id, penalty_date, created_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (participant_id, penalty_date) WHERE reduced_by IS NULL DO NOTHING
			 RETURNING `+penaltyColumns,
			participantID, DateOf(day))
		p, err := scanPenalty(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // another client won the insert
		}
		if err != nil {
			return err
		}
		record = p
		row = tx.QueryRow(ctx,
			`UPDATE participants SET penalty_count = penalty_count + 1, updated_at = now()
			 WHERE id = $1
			 RETURNING `+participantColumns, participantID)
		participant, err = scanParticipant(row)
		return err
	})
	if err != nil {
		return nil, false, wrapErr("apply penalty", err)
	}
	if record == nil {
		return nil, false, nil
	}
	s.publish(ctx, TablePenalties, OpInsert, record)
	s.publish(ctx, TableParticipants, OpUpdate, participant)
	return record, true, nil
}

// ReducePenalty resolves the most recently created active penalty and
// decrements the participant's counter in one transaction, flooring at zero.
// ErrNotFound when no active penalty exists; the counter is left untouched in
// that case.
func (s *Store) ReducePenalty(ctx context.Context, participantID, reducer uuid.UUID, at time.Time) (*PenaltyRecord, *Participant, error) {
	var record *PenaltyRecord
	var participant *Participant
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE penalties SET reduced_by = $2, reduced_at = $3
			 WHERE id = (
			     SELECT id FROM penalties
			     WHERE participant_id = $1 AND reduced_by IS NULL
			     ORDER BY created_at DESC
			     LIMIT 1
			 )
			 RETURNING `+penaltyColumns,
			participantID, reducer, at.UTC())
		p, err := scanPenalty(row)
		if err != nil {
			return err
		}
		record = p
		row = tx.QueryRow(ctx,
			`UPDATE participants SET penalty_count = GREATEST(penalty_count - 1, 0), updated_at = now()
			 WHERE id = $1
			 RETURNING `+participantColumns, participantID)
		participant, err = scanParticipant(row)
		return err
	})
	if err != nil {
		return nil, nil, wrapErr("reduce penalty", err)
	}
	s.publish(ctx, TablePenalties, OpUpdate, record)
	s.publish(ctx, TableParticipants, OpUpdate, participant)
	return record, participant, nil
}

func (s *Store) ListPenalties(ctx context.Context, participantID uuid.UUID) ([]PenaltyRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+penaltyColumns+` FROM penalties
		 WHERE participant_id = $1
		 ORDER BY created_at DESC`, participantID)
	if err != nil {
		return nil, wrapErr("list penalties", err)
	}
	defer rows.Close()

	var penalties []PenaltyRecord
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, wrapErr("list penalties", err)
		}
		penalties = append(penalties, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list penalties", err)
	}
	return penalties, nil
}
