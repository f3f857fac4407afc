package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// setAutoReaction applies an automatic reaction derived from listening
// behavior without clobbering anything stronger. The lattice is
// manual > auto-like > auto-dislike > none:
//
//   - no existing reaction: insert as automatic
//   - existing manual reaction: never changed
//   - existing auto dislike, new value like: upgrade (a skip redeemed by
//     a later full listen)
//   - existing auto like: never downgraded by a dislike signal
func (s *Service) setAutoReaction(ctx context.Context, playlistID uuid.UUID, trackID, userID string, value db.ReactionValue) error {
	existing, err := s.reactions.Get(ctx, playlistID, trackID, userID)
	if errors.Is(err, db.ErrNotFound) {
		insertErr := s.reactions.Insert(ctx, &db.Reaction{
			PlaylistID: playlistID,
			TrackID:    trackID,
			UserID:     userID,
			Value:      value,
			IsAuto:     true,
		})
		if insertErr != nil {
			return fmt.Errorf("inserting auto reaction: %w", insertErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading reaction: %w", err)
	}

	if !existing.IsAuto {
		return nil
	}
	if existing.Value == db.ReactionDislike && value == db.ReactionLike {
		if err := s.reactions.UpdateAutoValue(ctx, playlistID, trackID, userID, db.ReactionLike); err != nil {
			return fmt.Errorf("upgrading auto reaction: %w", err)
		}
	}
	return nil
}
