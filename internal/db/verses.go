package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const verseColumns = "id, participant_id, content, submitted_on, weekday, created_at"

func scanVerse(row rowScanner) (*VerseSubmission, error) {
	var v VerseSubmission
	err := row.Scan(&v.ID, &v.ParticipantID, &v.Content, &v.SubmittedOn, &v.Weekday, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVerse submits a verse for the given day unless the participant
// already has one; the second writer in a race observes created=false.
func (s *Store) CreateVerse(ctx context.Context, participantID uuid.UUID, content, weekday string, day time.Time) (*VerseSubmission, bool, error) {
	row := s.Pool.QueryRow(ctx,
		`INSERT INTO verse_submissions (participant_id, content, submitted_on, weekday, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (participant_id, submitted_on) DO NOTHING
		 RETURNING `+verseColumns,
		participantID, content, DateOf(day), weekday)
	v, err := scanVerse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("create verse", err)
	}
	s.publish(ctx, TableVerses, OpInsert, v)
	return v, true, nil
}

// GetVerseForDate returns the participant's verse for the given day, or
// ErrNotFound.
func (s *Store) GetVerseForDate(ctx context.Context, participantID uuid.UUID, day time.Time) (*VerseSubmission, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+verseColumns+` FROM verse_submissions
		 WHERE participant_id = $1 AND submitted_on = $2`,
		participantID, DateOf(day))
	v, err := scanVerse(row)
	if err != nil {
		return nil, wrapErr("get verse for date", err)
	}
	return v, nil
}

func (s *Store) ListVersesOn(ctx context.Context, day time.Time) ([]VerseSubmission, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+verseColumns+` FROM verse_submissions
		 WHERE submitted_on = $1
		 ORDER BY created_at`, DateOf(day))
	if err != nil {
		return nil, wrapErr("list verses", err)
	}
	defer rows.Close()

	var verses []VerseSubmission
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			return nil, wrapErr("list verses", err)
		}
		verses = append(verses, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list verses", err)
	}
	return verses, nil
}
