package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActiveTrackRepository handles active track database operations.
type ActiveTrackRepository struct {
	pool *pgxpool.Pool
}

const activeTrackColumns = `
	id, playlist_id, spotify_track_id, uri, added_by, added_at,
	completed_at, removed_at, archived_at
`

func scanActiveTrack(row pgx.Row) (*ActiveTrack, error) {
	var t ActiveTrack
	err := row.Scan(
		&t.ID,
		&t.PlaylistID,
		&t.SpotifyTrackID,
		&t.URI,
		&t.AddedBy,
		&t.AddedAt,
		&t.CompletedAt,
		&t.RemovedAt,
		&t.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ActiveTrackRepository) queryTracks(ctx context.Context, query string, args ...any) ([]ActiveTrack, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []ActiveTrack
	for rows.Next() {
		t, err := scanActiveTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning active track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

// Insert creates a new active track. A concurrent insert of the same
// (playlist, track) pair is a benign no-op.
func (r *ActiveTrackRepository) Insert(ctx context.Context, track *ActiveTrack) error {
	query := `
		INSERT INTO active_tracks (id, playlist_id, spotify_track_id, uri, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (playlist_id, spotify_track_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		track.ID,
		track.PlaylistID,
		track.SpotifyTrackID,
		track.URI,
		track.AddedBy,
		track.AddedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("inserting active track: %w", err)
	}
	return nil
}

// ActiveForPlaylist retrieves all unremoved tracks in a playlist.
func (r *ActiveTrackRepository) ActiveForPlaylist(ctx context.Context, playlistID uuid.UUID) ([]ActiveTrack, error) {
	query := `
		SELECT ` + activeTrackColumns + `
		FROM active_tracks
		WHERE playlist_id = $1 AND removed_at IS NULL
		ORDER BY added_at
	`
	tracks, err := r.queryTracks(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying active tracks: %w", err)
	}
	return tracks, nil
}

// ActiveByTrackForUser retrieves unremoved active tracks matching a
// Spotify track ID across all playlists the user is a member of. This is
// how an observed play or skip is resolved to ledger rows.
func (r *ActiveTrackRepository) ActiveByTrackForUser(ctx context.Context, spotifyTrackID, userID string) ([]ActiveTrack, error) {
	query := `
		SELECT t.id, t.playlist_id, t.spotify_track_id, t.uri, t.added_by, t.added_at,
		       t.completed_at, t.removed_at, t.archived_at
		FROM active_tracks t
		JOIN playlist_members m ON m.playlist_id = t.playlist_id
		WHERE t.spotify_track_id = $1 AND m.user_id = $2 AND t.removed_at IS NULL
		ORDER BY t.added_at
	`
	tracks, err := r.queryTracks(ctx, query, spotifyTrackID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying active tracks for user: %w", err)
	}
	return tracks, nil
}

// ExpiryCandidates retrieves unremoved tracks in a playlist older than the
// cutoff that at least one non-adder member has listened to or skipped.
// Tracks nobody has even looked at are not expired.
func (r *ActiveTrackRepository) ExpiryCandidates(ctx context.Context, playlistID uuid.UUID, cutoff time.Time) ([]ActiveTrack, error) {
	query := `
		SELECT ` + activeTrackColumns + `
		FROM active_tracks t
		WHERE t.playlist_id = $1
		  AND t.removed_at IS NULL
		  AND t.added_at < $2
		  AND EXISTS (
			SELECT 1 FROM listens l
			WHERE l.playlist_id = t.playlist_id
			  AND l.track_id = t.spotify_track_id
			  AND l.user_id <> t.added_by
		  )
		ORDER BY t.added_at
	`
	tracks, err := r.queryTracks(ctx, query, playlistID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying expiry candidates: %w", err)
	}
	return tracks, nil
}

// CompletedUnremoved retrieves all tracks whose completion has been
// recorded but whose removal delay has not fired yet.
func (r *ActiveTrackRepository) CompletedUnremoved(ctx context.Context) ([]ActiveTrack, error) {
	query := `
		SELECT ` + activeTrackColumns + `
		FROM active_tracks
		WHERE completed_at IS NOT NULL AND removed_at IS NULL
		ORDER BY completed_at
	`
	tracks, err := r.queryTracks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying completed tracks: %w", err)
	}
	return tracks, nil
}

// CountActiveByUser counts unremoved tracks per adder in a playlist.
func (r *ActiveTrackRepository) CountActiveByUser(ctx context.Context, playlistID uuid.UUID) (map[string]int, error) {
	query := `
		SELECT added_by, COUNT(*)
		FROM active_tracks
		WHERE playlist_id = $1 AND removed_at IS NULL
		GROUP BY added_by
	`
	rows, err := r.pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("counting active tracks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("scanning track count: %w", err)
		}
		counts[userID] = n
	}
	return counts, rows.Err()
}

// MarkCompleted sets completed_at once. Already-completed and removed
// tracks are left untouched.
func (r *ActiveTrackRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE active_tracks
		SET completed_at = $2
		WHERE id = $1 AND completed_at IS NULL AND removed_at IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("marking track completed: %w", err)
	}
	return nil
}

// MarkRemoved sets removed_at once. A track is never un-removed.
func (r *ActiveTrackRepository) MarkRemoved(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE active_tracks
		SET removed_at = $2
		WHERE id = $1 AND removed_at IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("marking track removed: %w", err)
	}
	return nil
}

// MarkArchived sets archived_at once.
func (r *ActiveTrackRepository) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE active_tracks
		SET archived_at = $2
		WHERE id = $1 AND archived_at IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("marking track archived: %w", err)
	}
	return nil
}
