package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// LedgerResult describes the outcome of a ledger write.
type LedgerResult int

// Ledger outcomes.
const (
	// ListenRecorded means a new record was created or a skip was
	// upgraded to a full listen.
	ListenRecorded LedgerResult = iota

	// ListenAlreadyRecorded means an equivalent or stronger record
	// already existed; replayed history and pagination overlap land here.
	ListenAlreadyRecorded
)

// recordFullListen writes a non-skipped listen for (playlist, track,
// user). An existing skip is upgraded in place; an existing full listen
// makes this a no-op.
func (s *Service) recordFullListen(ctx context.Context, playlistID uuid.UUID, trackID, userID string, playedAt time.Time, durationMs int) (LedgerResult, error) {
	existing, err := s.listens.Get(ctx, playlistID, trackID, userID)
	if errors.Is(err, db.ErrNotFound) {
		insertErr := s.listens.Insert(ctx, &db.Listen{
			PlaylistID: playlistID,
			TrackID:    trackID,
			UserID:     userID,
			ListenedAt: playedAt,
			DurationMs: durationMs,
			Skipped:    false,
		})
		if insertErr != nil {
			return ListenAlreadyRecorded, fmt.Errorf("recording listen: %w", insertErr)
		}
		return ListenRecorded, nil
	}
	if err != nil {
		return ListenAlreadyRecorded, fmt.Errorf("loading listen: %w", err)
	}

	if existing.Skipped {
		if err := s.listens.MarkFull(ctx, playlistID, trackID, userID, playedAt, durationMs); err != nil {
			return ListenAlreadyRecorded, fmt.Errorf("upgrading listen: %w", err)
		}
		return ListenRecorded, nil
	}
	return ListenAlreadyRecorded, nil
}

// recordSkip writes a skipped listen only when no record exists yet; a
// skip never overwrites a prior full listen (or a prior skip).
func (s *Service) recordSkip(ctx context.Context, playlistID uuid.UUID, trackID, userID string, observedAt time.Time, heardMs int) (LedgerResult, error) {
	_, err := s.listens.Get(ctx, playlistID, trackID, userID)
	if err == nil {
		return ListenAlreadyRecorded, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return ListenAlreadyRecorded, fmt.Errorf("loading listen: %w", err)
	}

	insertErr := s.listens.Insert(ctx, &db.Listen{
		PlaylistID: playlistID,
		TrackID:    trackID,
		UserID:     userID,
		ListenedAt: observedAt,
		DurationMs: heardMs,
		Skipped:    true,
	})
	if insertErr != nil {
		return ListenAlreadyRecorded, fmt.Errorf("recording skip: %w", insertErr)
	}
	return ListenRecorded, nil
}
