package engine

import (
	"context"
	"fmt"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// requiredMembers returns the playlist members that must engage with a
// track before it completes: everyone except the track's adder.
func (s *Service) requiredMembers(ctx context.Context, track *db.ActiveTrack) ([]string, error) {
	members, err := s.playlists.Members(ctx, track.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("loading members: %w", err)
	}
	required := make([]string, 0, len(members))
	for _, m := range members {
		if m != track.AddedBy {
			required = append(required, m)
		}
	}
	return required, nil
}

// evaluateCompletion checks whether every required member has engaged
// with a track and applies the playlist's removal-delay policy. A
// non-skipped listen or any reaction counts as engagement. A track whose
// required-member set is empty can never complete this way.
func (s *Service) evaluateCompletion(ctx context.Context, playlist *db.Playlist, track *db.ActiveTrack, m *CycleMetrics) error {
	if track.RemovedAt != nil {
		return nil
	}

	required, err := s.requiredMembers(ctx, track)
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return nil
	}

	listens, err := s.listens.ForTrack(ctx, track.PlaylistID, track.SpotifyTrackID)
	if err != nil {
		return fmt.Errorf("loading listens: %w", err)
	}
	reactions, err := s.reactions.ForTrack(ctx, track.PlaylistID, track.SpotifyTrackID)
	if err != nil {
		return fmt.Errorf("loading reactions: %w", err)
	}

	engaged := make(map[string]bool, len(listens)+len(reactions))
	for _, l := range listens {
		if !l.Skipped {
			engaged[l.UserID] = true
		}
	}
	// Reactions are an alternate engagement signal, even without a listen.
	for _, re := range reactions {
		engaged[re.UserID] = true
	}

	for _, userID := range required {
		if !engaged[userID] {
			return nil
		}
	}

	if playlist.RemovalDelay == db.DelayImmediate {
		return s.removeAndArchive(ctx, playlist, track, m)
	}

	if track.CompletedAt == nil {
		now := s.now()
		if err := s.tracks.MarkCompleted(ctx, track.ID, now); err != nil {
			return err
		}
		track.CompletedAt = &now
		m.TracksCompleted++
		s.logger.Info("track completed by group",
			"playlist", playlist.Name, "track", track.SpotifyTrackID, "delay", playlist.RemovalDelay)
	}
	return nil
}
