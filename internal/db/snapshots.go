package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository handles playback snapshot database operations.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the last playback snapshot for a user.
func (r *SnapshotRepository) Get(ctx context.Context, userID string) (*PlaybackSnapshot, error) {
	query := `
		SELECT user_id, track_id, progress_ms, duration_ms, captured_at
		FROM playback_snapshots
		WHERE user_id = $1
	`
	var s PlaybackSnapshot
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.TrackID,
		&s.ProgressMs,
		&s.DurationMs,
		&s.CapturedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return &s, nil
}

// Put overwrites the playback snapshot for a user.
func (r *SnapshotRepository) Put(ctx context.Context, snapshot *PlaybackSnapshot) error {
	query := `
		INSERT INTO playback_snapshots (user_id, track_id, progress_ms, duration_ms, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			track_id = EXCLUDED.track_id,
			progress_ms = EXCLUDED.progress_ms,
			duration_ms = EXCLUDED.duration_ms,
			captured_at = EXCLUDED.captured_at
	`
	_, err := r.pool.Exec(ctx, query,
		snapshot.UserID,
		snapshot.TrackID,
		snapshot.ProgressMs,
		snapshot.DurationMs,
		snapshot.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}
	return nil
}

// CursorRepository handles poll cursor database operations.
type CursorRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the poll watermark for a user. The zero time is returned
// for users who have never been polled.
func (r *CursorRepository) Get(ctx context.Context, userID string) (time.Time, error) {
	query := `SELECT last_played_at FROM poll_cursors WHERE user_id = $1`
	var t time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying poll cursor: %w", err)
	}
	return t, nil
}

// Put advances the poll watermark for a user.
func (r *CursorRepository) Put(ctx context.Context, userID string, lastPlayedAt time.Time) error {
	query := `
		INSERT INTO poll_cursors (user_id, last_played_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_played_at = EXCLUDED.last_played_at
	`
	if _, err := r.pool.Exec(ctx, query, userID, lastPlayedAt); err != nil {
		return fmt.Errorf("upserting poll cursor: %w", err)
	}
	return nil
}
