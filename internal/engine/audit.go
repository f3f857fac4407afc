package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// auditPlaylists reconciles Spotify's live playlist contents against
// internal bookkeeping. Tracks added directly on Spotify (bypassing the
// app) are adopted when their adder is a known member with headroom
// under the per-user cap, and batch-removed otherwise.
func (s *Service) auditPlaylists(ctx context.Context, playlists []db.Playlist, m *CycleMetrics) error {
	m.AuditRan = true
	for i := range playlists {
		if err := s.auditPlaylist(ctx, &playlists[i], m); err != nil {
			if errors.Is(err, ErrRateLimited) {
				return err
			}
			s.logger.Warn("playlist audit failed", "playlist", playlists[i].Name, "err", err)
			m.Errors++
		}
	}
	return nil
}

func (s *Service) auditPlaylist(ctx context.Context, playlist *db.Playlist, m *CycleMetrics) error {
	items, err := s.platform.PlaylistItems(ctx, playlist.OwnerID, playlist.SpotifyID)
	if err != nil {
		return fmt.Errorf("fetching playlist items: %w", err)
	}

	active, err := s.tracks.ActiveForPlaylist(ctx, playlist.ID)
	if err != nil {
		return fmt.Errorf("loading active tracks: %w", err)
	}
	known := make(map[string]bool, len(active))
	for _, t := range active {
		known[t.SpotifyTrackID] = true
	}

	members, err := s.playlists.Members(ctx, playlist.ID)
	if err != nil {
		return fmt.Errorf("loading members: %w", err)
	}
	memberSet := make(map[string]bool, len(members))
	for _, id := range members {
		memberSet[id] = true
	}

	var counts map[string]int
	if playlist.MaxTracksPerUser != nil {
		counts, err = s.tracks.CountActiveByUser(ctx, playlist.ID)
		if err != nil {
			return fmt.Errorf("counting tracks per user: %w", err)
		}
	}

	var removeURIs []string
	for _, item := range items {
		if known[item.TrackID] {
			continue
		}

		authorized := memberSet[item.AddedBy]
		if authorized {
			// Membership implies the account row exists, but the platform
			// user may have been deleted from the app since.
			exists, err := s.users.Exists(ctx, item.AddedBy)
			if err != nil {
				return fmt.Errorf("checking adder account: %w", err)
			}
			authorized = exists
		}
		if !authorized {
			removeURIs = append(removeURIs, item.URI)
			m.AuditRemovals++
			s.logger.Info("removing unauthorized addition",
				"playlist", playlist.Name, "track", item.TrackID, "added_by", item.AddedBy)
			continue
		}

		if playlist.MaxTracksPerUser != nil && counts[item.AddedBy] >= *playlist.MaxTracksPerUser {
			removeURIs = append(removeURIs, item.URI)
			m.AuditRemovals++
			s.notifyCapExceeded(ctx, playlist, item.AddedBy)
			continue
		}

		addedAt := item.AddedAt
		if addedAt.IsZero() {
			addedAt = s.now()
		}
		err = s.tracks.Insert(ctx, &db.ActiveTrack{
			ID:             uuid.New(),
			PlaylistID:     playlist.ID,
			SpotifyTrackID: item.TrackID,
			URI:            item.URI,
			AddedBy:        item.AddedBy,
			AddedAt:        addedAt,
		})
		if err != nil {
			return fmt.Errorf("adopting external addition: %w", err)
		}
		known[item.TrackID] = true
		if counts != nil {
			counts[item.AddedBy]++
		}
		m.TracksAdopted++
		s.logger.Info("adopted external addition",
			"playlist", playlist.Name, "track", item.TrackID, "added_by", item.AddedBy)
	}

	if len(removeURIs) > 0 {
		if err := s.platform.RemoveFromPlaylist(ctx, playlist.OwnerID, playlist.SpotifyID, removeURIs); err != nil {
			return fmt.Errorf("removing audited items: %w", err)
		}
	}
	return nil
}

func (s *Service) notifyCapExceeded(ctx context.Context, playlist *db.Playlist, userID string) {
	msg := fmt.Sprintf("Your track was removed from %q: you are at the per-member track limit.", playlist.Name)
	if err := s.notifier.Notify(ctx, userID, msg); err != nil {
		s.logger.Warn("cap-exceeded notification failed", "user", userID, "err", err)
	}
}
