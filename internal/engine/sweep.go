package engine

import (
	"context"
	"time"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// sweepExpiry force-removes tracks that outlived the playlist's maximum
// age. Only tracks at least one non-adder member has listened to or
// skipped are eligible; the repository query enforces that guard.
func (s *Service) sweepExpiry(ctx context.Context, playlists []db.Playlist, m *CycleMetrics) {
	for i := range playlists {
		playlist := &playlists[i]
		if playlist.MaxTrackAgeDays <= 0 {
			continue
		}
		cutoff := s.now().Add(-time.Duration(playlist.MaxTrackAgeDays) * 24 * time.Hour)
		candidates, err := s.tracks.ExpiryCandidates(ctx, playlist.ID, cutoff)
		if err != nil {
			s.logger.Warn("expiry sweep failed", "playlist", playlist.Name, "err", err)
			m.Errors++
			continue
		}
		for j := range candidates {
			track := &candidates[j]
			if err := s.removeAndArchive(ctx, playlist, track, m); err != nil {
				s.logger.Warn("expiring track failed", "playlist", playlist.Name, "track", track.SpotifyTrackID, "err", err)
				m.Errors++
				continue
			}
			m.TracksExpired++
			s.logger.Info("track expired by age",
				"playlist", playlist.Name, "track", track.SpotifyTrackID, "age_days", playlist.MaxTrackAgeDays)
		}
	}
}

// sweepDelayed removes tracks whose removal delay has elapsed since the
// group completed them.
func (s *Service) sweepDelayed(ctx context.Context, cache playlistCache, m *CycleMetrics) {
	due, err := s.tracks.CompletedUnremoved(ctx)
	if err != nil {
		s.logger.Warn("delayed-removal sweep failed", "err", err)
		m.Errors++
		return
	}
	now := s.now()
	for i := range due {
		track := &due[i]
		playlist, err := s.playlist(ctx, cache, track.PlaylistID)
		if err != nil {
			s.logger.Warn("loading playlist for delayed removal failed", "track", track.SpotifyTrackID, "err", err)
			m.Errors++
			continue
		}
		if now.Sub(*track.CompletedAt) < playlist.RemovalDelay.Duration() {
			continue
		}
		if err := s.removeAndArchive(ctx, playlist, track, m); err != nil {
			s.logger.Warn("delayed removal failed", "playlist", playlist.Name, "track", track.SpotifyTrackID, "err", err)
			m.Errors++
		}
	}
}
