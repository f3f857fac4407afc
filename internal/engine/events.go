package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// playlistCache memoizes playlist lookups within one poll cycle.
type playlistCache map[uuid.UUID]*db.Playlist

func (s *Service) playlist(ctx context.Context, cache playlistCache, id uuid.UUID) (*db.Playlist, error) {
	if p, ok := cache[id]; ok {
		return p, nil
	}
	p, err := s.playlists.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading playlist %s: %w", id, err)
	}
	cache[id] = p
	return p, nil
}

// pollUser runs one user's turn of a poll cycle: fetch new plays, detect
// a skip against the stored snapshot, feed the ledger, and refresh the
// snapshot and poll cursor. Current playback is only fetched when a
// snapshot exists or new plays were observed, to conserve API budget.
func (s *Service) pollUser(ctx context.Context, userID string, cache playlistCache, m *CycleMetrics) error {
	since, err := s.cursors.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading poll cursor: %w", err)
	}

	plays, err := s.platform.RecentlyPlayed(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("fetching recent plays: %w", err)
	}

	snapshot, err := s.snapshots.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		snapshot = nil
	} else if err != nil {
		return fmt.Errorf("loading playback snapshot: %w", err)
	}

	var playback *Playback
	if snapshot != nil || len(plays) > 0 {
		playback, err = s.platform.CurrentPlayback(ctx, userID)
		if err != nil {
			return fmt.Errorf("fetching current playback: %w", err)
		}
	}

	// Skip detection compares the previous snapshot against what was
	// just observed, so it runs before the snapshot is overwritten.
	if skip := DetectSkip(snapshot, plays, playback); skip != nil {
		if err := s.processSkip(ctx, userID, skip, cache, m); err != nil {
			return err
		}
	}

	// Oldest first, so the cursor and upgrade logic see plays in order.
	sort.Slice(plays, func(i, j int) bool { return plays[i].PlayedAt.Before(plays[j].PlayedAt) })

	var watermark time.Time
	for _, play := range plays {
		if err := s.processPlay(ctx, userID, play, cache, m); err != nil {
			return err
		}
		if play.PlayedAt.After(watermark) {
			watermark = play.PlayedAt
		}
	}
	if !watermark.IsZero() {
		if err := s.cursors.Put(ctx, userID, watermark); err != nil {
			return fmt.Errorf("advancing poll cursor: %w", err)
		}
	}

	if playback != nil && playback.Playing && playback.TrackID != "" {
		err := s.snapshots.Put(ctx, &db.PlaybackSnapshot{
			UserID:     userID,
			TrackID:    playback.TrackID,
			ProgressMs: playback.ProgressMs,
			DurationMs: playback.DurationMs,
			CapturedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("storing playback snapshot: %w", err)
		}
	}
	return nil
}

// processPlay sequences the steps for one observed play: ledger first,
// then the automatic reaction, then completion evaluation. The order is
// fixed here so callers cannot get it wrong.
func (s *Service) processPlay(ctx context.Context, userID string, play Play, cache playlistCache, m *CycleMetrics) error {
	tracks, err := s.tracks.ActiveByTrackForUser(ctx, play.TrackID, userID)
	if err != nil {
		return fmt.Errorf("resolving play to active tracks: %w", err)
	}
	for i := range tracks {
		track := &tracks[i]

		result, err := s.recordFullListen(ctx, track.PlaylistID, play.TrackID, userID, play.PlayedAt, play.DurationMs)
		if err != nil {
			return err
		}
		if result == ListenRecorded {
			m.PlaysProcessed++
		}

		if err := s.setAutoReaction(ctx, track.PlaylistID, play.TrackID, userID, db.ReactionLike); err != nil {
			return err
		}

		playlist, err := s.playlist(ctx, cache, track.PlaylistID)
		if err != nil {
			return err
		}
		if err := s.evaluateCompletion(ctx, playlist, track, m); err != nil {
			return err
		}
	}
	return nil
}

// processSkip records a skip against every active track the skipped
// Spotify track maps to for this user, assigns the automatic dislike
// where the playlist has it enabled, and re-evaluates completion (the
// dislike itself counts as engagement).
func (s *Service) processSkip(ctx context.Context, userID string, skip *SkipEvent, cache playlistCache, m *CycleMetrics) error {
	tracks, err := s.tracks.ActiveByTrackForUser(ctx, skip.TrackID, userID)
	if err != nil {
		return fmt.Errorf("resolving skip to active tracks: %w", err)
	}
	for i := range tracks {
		track := &tracks[i]

		result, err := s.recordSkip(ctx, track.PlaylistID, skip.TrackID, userID, s.now(), skip.ProgressMs)
		if err != nil {
			return err
		}
		if result == ListenRecorded {
			m.SkipsDetected++
		}

		playlist, err := s.playlist(ctx, cache, track.PlaylistID)
		if err != nil {
			return err
		}
		if playlist.AutoDislike {
			if err := s.setAutoReaction(ctx, track.PlaylistID, skip.TrackID, userID, db.ReactionDislike); err != nil {
				return err
			}
		}
		if err := s.evaluateCompletion(ctx, playlist, track, m); err != nil {
			return err
		}
	}
	return nil
}
