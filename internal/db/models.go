package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify account linked to the app. The token columns
// power headless API access during polling.
type User struct {
	ID           string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
}

// RemovalDelay is how long a track stays in a playlist after every
// required member has engaged with it.
type RemovalDelay string

// Removal delay tiers.
const (
	DelayImmediate RemovalDelay = "immediate"
	DelayOneHour   RemovalDelay = "1h"
	DelayHalfDay   RemovalDelay = "12h"
	DelayOneDay    RemovalDelay = "24h"
	DelayThreeDays RemovalDelay = "3d"
	DelayOneWeek   RemovalDelay = "1w"
	DelayOneMonth  RemovalDelay = "1m"
)

// Duration maps a delay tier to its fixed duration. A month is 30 days.
// Unknown tiers behave as immediate.
func (d RemovalDelay) Duration() time.Duration {
	switch d {
	case DelayOneHour:
		return time.Hour
	case DelayHalfDay:
		return 12 * time.Hour
	case DelayOneDay:
		return 24 * time.Hour
	case DelayThreeDays:
		return 3 * 24 * time.Hour
	case DelayOneWeek:
		return 7 * 24 * time.Hour
	case DelayOneMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// ArchiveThreshold is the reaction-based rule deciding whether a removed
// track is copied into the playlist's archive collection.
type ArchiveThreshold string

// Archive thresholds.
const (
	ArchiveNone             ArchiveThreshold = "none"
	ArchiveNoDislikes       ArchiveThreshold = "no_dislikes"
	ArchiveAtLeastOneLike   ArchiveThreshold = "at_least_one_like"
	ArchiveUniversallyLiked ArchiveThreshold = "universally_liked"
)

// Playlist represents a managed Spotify playlist together with its
// lifecycle policy. The policy columns are owned by playlist configuration
// and read-only from the polling engine's perspective.
type Playlist struct {
	ID                uuid.UUID
	SpotifyID         string
	OwnerID           string // user whose credentials manage the playlist
	Name              string
	RemovalDelay      RemovalDelay
	MaxTrackAgeDays   int
	MaxTracksPerUser  *int // nullable - no cap when nil
	ArchiveThreshold  ArchiveThreshold
	ArchivePlaylistID *string // nullable - Spotify ID of the archive collection
	AutoDislike       bool    // create automatic dislikes on detected skips
	CreatedAt         time.Time
}

// ActiveTrack represents a track currently live in a shared playlist.
// A track is never un-removed once RemovedAt is set.
type ActiveTrack struct {
	ID             uuid.UUID
	PlaylistID     uuid.UUID
	SpotifyTrackID string
	URI            string
	AddedBy        string
	AddedAt        time.Time
	CompletedAt    *time.Time // nullable
	RemovedAt      *time.Time // nullable
	ArchivedAt     *time.Time // nullable
}

// Listen records that a member listened to (or skipped) a track. At most
// one row exists per (playlist, track, user); a skip may be upgraded to a
// full listen in place, never the reverse.
type Listen struct {
	PlaylistID uuid.UUID
	TrackID    string
	UserID     string
	ListenedAt time.Time
	DurationMs int
	Skipped    bool
}

// ReactionValue is a member's reaction to a track.
type ReactionValue string

// Reaction values.
const (
	ReactionLike    ReactionValue = "like"
	ReactionDislike ReactionValue = "dislike"
)

// Reaction represents a member's like or dislike of a track. Automatic
// reactions are inferred from listening behavior; manual ones are never
// touched by the engine.
type Reaction struct {
	PlaylistID uuid.UUID
	TrackID    string
	UserID     string
	Value      ReactionValue
	IsAuto     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PlaybackSnapshot is the last playback state observed for a user, used
// only to infer skips on the next poll. One row per user, overwritten
// exclusively by that user's own poll turn.
type PlaybackSnapshot struct {
	UserID     string
	TrackID    string
	ProgressMs int
	DurationMs int
	CapturedAt time.Time
}
