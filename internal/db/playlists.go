package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository handles playlist and membership database operations.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

const playlistColumns = `
	id, spotify_id, owner_id, name, removal_delay, max_track_age_days,
	max_tracks_per_user, archive_threshold, archive_playlist_id, auto_dislike, created_at
`

func scanPlaylist(row pgx.Row) (*Playlist, error) {
	var p Playlist
	err := row.Scan(
		&p.ID,
		&p.SpotifyID,
		&p.OwnerID,
		&p.Name,
		&p.RemovalDelay,
		&p.MaxTrackAgeDays,
		&p.MaxTracksPerUser,
		&p.ArchiveThreshold,
		&p.ArchivePlaylistID,
		&p.AutoDislike,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get retrieves a playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id uuid.UUID) (*Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = $1`
	p, err := scanPlaylist(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying playlist: %w", err)
	}
	return p, nil
}

// WithActiveTracks retrieves all playlists that currently hold at least
// one unremoved track, ordered by creation time for stable poll order.
func (r *PlaylistRepository) WithActiveTracks(ctx context.Context) ([]Playlist, error) {
	query := `
		SELECT ` + playlistColumns + `
		FROM playlists p
		WHERE EXISTS (
			SELECT 1 FROM active_tracks t
			WHERE t.playlist_id = p.id AND t.removed_at IS NULL
		)
		ORDER BY p.created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying playlists with active tracks: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, *p)
	}
	return playlists, rows.Err()
}

// Members retrieves the user IDs of all members of a playlist.
func (r *PlaylistRepository) Members(ctx context.Context, playlistID uuid.UUID) ([]string, error) {
	query := `
		SELECT user_id FROM playlist_members
		WHERE playlist_id = $1
		ORDER BY user_id
	`
	rows, err := r.pool.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}
