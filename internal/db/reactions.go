package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReactionRepository handles reaction database operations. The
// manual-over-automatic lattice is enforced by the engine; the WHERE
// clauses here are the backstop that keeps manual rows immutable even
// under races.
type ReactionRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the reaction for a (playlist, track, user) key.
func (r *ReactionRepository) Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*Reaction, error) {
	query := `
		SELECT playlist_id, track_id, user_id, value, is_auto, created_at, updated_at
		FROM reactions
		WHERE playlist_id = $1 AND track_id = $2 AND user_id = $3
	`
	var re Reaction
	err := r.pool.QueryRow(ctx, query, playlistID, trackID, userID).Scan(
		&re.PlaylistID,
		&re.TrackID,
		&re.UserID,
		&re.Value,
		&re.IsAuto,
		&re.CreatedAt,
		&re.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reaction: %w", err)
	}
	return &re, nil
}

// Insert creates a reaction. A concurrent insert of the same key is a
// benign no-op; the existing row wins.
func (r *ReactionRepository) Insert(ctx context.Context, reaction *Reaction) error {
	query := `
		INSERT INTO reactions (playlist_id, track_id, user_id, value, is_auto, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (playlist_id, track_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		reaction.PlaylistID,
		reaction.TrackID,
		reaction.UserID,
		reaction.Value,
		reaction.IsAuto,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("inserting reaction: %w", err)
	}
	return nil
}

// UpdateAutoValue changes the value of an automatic reaction. Manual rows
// are never matched.
func (r *ReactionRepository) UpdateAutoValue(ctx context.Context, playlistID uuid.UUID, trackID, userID string, value ReactionValue) error {
	query := `
		UPDATE reactions
		SET value = $4, updated_at = NOW()
		WHERE playlist_id = $1 AND track_id = $2 AND user_id = $3 AND is_auto
	`
	if _, err := r.pool.Exec(ctx, query, playlistID, trackID, userID, value); err != nil {
		return fmt.Errorf("updating auto reaction: %w", err)
	}
	return nil
}

// ForTrack retrieves all reactions for a track in a playlist.
func (r *ReactionRepository) ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]Reaction, error) {
	query := `
		SELECT playlist_id, track_id, user_id, value, is_auto, created_at, updated_at
		FROM reactions
		WHERE playlist_id = $1 AND track_id = $2
		ORDER BY user_id
	`
	rows, err := r.pool.Query(ctx, query, playlistID, trackID)
	if err != nil {
		return nil, fmt.Errorf("querying reactions: %w", err)
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var re Reaction
		if err := rows.Scan(
			&re.PlaylistID,
			&re.TrackID,
			&re.UserID,
			&re.Value,
			&re.IsAuto,
			&re.CreatedAt,
			&re.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}
