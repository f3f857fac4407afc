package engine

import (
	"context"
	"fmt"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// removeAndArchive removes a track from the Spotify playlist, marks it
// removed locally, and copies it into the archive collection when the
// playlist's archive threshold is satisfied.
//
// Platform call failures are logged but do not stop the database state
// from advancing: the local ledger is the source of truth and the audit
// reconciler eventually converges the platform copy.
func (s *Service) removeAndArchive(ctx context.Context, playlist *db.Playlist, track *db.ActiveTrack, m *CycleMetrics) error {
	if track.RemovedAt != nil {
		return nil
	}

	if err := s.platform.RemoveFromPlaylist(ctx, playlist.OwnerID, playlist.SpotifyID, []string{track.URI}); err != nil {
		s.logger.Warn("platform removal failed, advancing local state anyway",
			"playlist", playlist.Name, "track", track.SpotifyTrackID, "err", err)
	}

	now := s.now()
	if err := s.tracks.MarkRemoved(ctx, track.ID, now); err != nil {
		return fmt.Errorf("marking track removed: %w", err)
	}
	track.RemovedAt = &now
	m.TracksRemoved++

	if playlist.ArchiveThreshold == db.ArchiveNone || playlist.ArchivePlaylistID == nil {
		return nil
	}

	required, err := s.requiredMembers(ctx, track)
	if err != nil {
		return err
	}
	reactions, err := s.reactions.ForTrack(ctx, track.PlaylistID, track.SpotifyTrackID)
	if err != nil {
		return fmt.Errorf("loading reactions: %w", err)
	}
	if !shouldArchive(playlist.ArchiveThreshold, reactions, required) {
		return nil
	}

	if err := s.platform.AddToPlaylist(ctx, playlist.OwnerID, *playlist.ArchivePlaylistID, []string{track.URI}); err != nil {
		s.logger.Warn("archive add failed, advancing local state anyway",
			"playlist", playlist.Name, "track", track.SpotifyTrackID, "err", err)
	}
	archivedAt := s.now()
	if err := s.tracks.MarkArchived(ctx, track.ID, archivedAt); err != nil {
		return fmt.Errorf("marking track archived: %w", err)
	}
	track.ArchivedAt = &archivedAt
	return nil
}
