package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListenRepository handles listen ledger database operations. The engine
// owns the upgrade semantics; this layer only guarantees the uniqueness
// invariant and idempotent inserts.
type ListenRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the listen record for a (playlist, track, user) key.
func (r *ListenRepository) Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*Listen, error) {
	query := `
		SELECT playlist_id, track_id, user_id, listened_at, duration_ms, skipped
		FROM listens
		WHERE playlist_id = $1 AND track_id = $2 AND user_id = $3
	`
	var l Listen
	err := r.pool.QueryRow(ctx, query, playlistID, trackID, userID).Scan(
		&l.PlaylistID,
		&l.TrackID,
		&l.UserID,
		&l.ListenedAt,
		&l.DurationMs,
		&l.Skipped,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying listen: %w", err)
	}
	return &l, nil
}

// Insert creates a listen record. A concurrent insert of the same key is
// a benign no-op; the existing row wins.
func (r *ListenRepository) Insert(ctx context.Context, listen *Listen) error {
	query := `
		INSERT INTO listens (playlist_id, track_id, user_id, listened_at, duration_ms, skipped)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (playlist_id, track_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		listen.PlaylistID,
		listen.TrackID,
		listen.UserID,
		listen.ListenedAt,
		listen.DurationMs,
		listen.Skipped,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("inserting listen: %w", err)
	}
	return nil
}

// MarkFull upgrades a skipped record to a full listen in place. Rows that
// already record a full listen are left untouched; a listen is never
// downgraded back to a skip.
func (r *ListenRepository) MarkFull(ctx context.Context, playlistID uuid.UUID, trackID, userID string, listenedAt time.Time, durationMs int) error {
	query := `
		UPDATE listens
		SET skipped = FALSE, listened_at = $4, duration_ms = $5
		WHERE playlist_id = $1 AND track_id = $2 AND user_id = $3 AND skipped
	`
	if _, err := r.pool.Exec(ctx, query, playlistID, trackID, userID, listenedAt, durationMs); err != nil {
		return fmt.Errorf("upgrading listen: %w", err)
	}
	return nil
}

// ForTrack retrieves all listen records for a track in a playlist.
func (r *ListenRepository) ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]Listen, error) {
	query := `
		SELECT playlist_id, track_id, user_id, listened_at, duration_ms, skipped
		FROM listens
		WHERE playlist_id = $1 AND track_id = $2
		ORDER BY user_id
	`
	rows, err := r.pool.Query(ctx, query, playlistID, trackID)
	if err != nil {
		return nil, fmt.Errorf("querying listens: %w", err)
	}
	defer rows.Close()

	var listens []Listen
	for rows.Next() {
		var l Listen
		if err := rows.Scan(
			&l.PlaylistID,
			&l.TrackID,
			&l.UserID,
			&l.ListenedAt,
			&l.DurationMs,
			&l.Skipped,
		); err != nil {
			return nil, fmt.Errorf("scanning listen: %w", err)
		}
		listens = append(listens, l)
	}
	return listens, rows.Err()
}
