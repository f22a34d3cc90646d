package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordPing appends an audit row for a failed or slow probe. Pings are
// write-only from this service's point of view and carry no change channel.
func (s *Store) RecordPing(ctx context.Context, participantID uuid.UUID, at time.Time, latency time.Duration, online bool) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO activity_pings (participant_id, pinged_at, latency_ms, online)
		 VALUES ($1, $2, $3, $4)`,
		participantID, at.UTC(), latency.Milliseconds(), online)
	if err != nil {
		return wrapErr("record ping", err)
	}
	return nil
}
