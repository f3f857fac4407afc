// Package engine implements the engagement polling and track-lifecycle
// engine: it observes each member's listening activity on Spotify, keeps
// the per-track listen ledger and automatic reactions up to date, decides
// when a shared track has been consumed by the whole group, and drives
// removal, expiry, archival, and reconciliation against Spotify's own
// copy of the playlist.
package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// Platform errors the engine reacts to. The concrete platform client
// wraps its transport errors with these sentinels.
var (
	// ErrRateLimited signals a shared API cooldown; the remainder of the
	// poll cycle is skipped rather than retried.
	ErrRateLimited = errors.New("platform rate limited")

	// ErrTokenInvalid signals a permanently invalid user token; only that
	// user's poll turn fails.
	ErrTokenInvalid = errors.New("user token permanently invalid")
)

// Play is one entry of a user's recently-played history.
type Play struct {
	TrackID    string
	URI        string
	DurationMs int
	PlayedAt   time.Time
}

// Playback is a user's current playback state.
type Playback struct {
	TrackID    string
	ProgressMs int
	DurationMs int
	Playing    bool
}

// PlaylistItem is one entry of Spotify's live copy of a playlist.
type PlaylistItem struct {
	TrackID string
	URI     string
	AddedBy string
	AddedAt time.Time
}

// Platform is the streaming-platform surface the engine consumes. All
// calls are made with the credentials of the given user; mutating calls
// use the playlist owner's credentials.
type Platform interface {
	RecentlyPlayed(ctx context.Context, userID string, after time.Time) ([]Play, error)
	CurrentPlayback(ctx context.Context, userID string) (*Playback, error)
	PlaylistItems(ctx context.Context, ownerID, playlistID string) ([]PlaylistItem, error)
	AddToPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error
	RemoveFromPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error
	RateLimited() bool
}

// Notifier delivers fire-and-forget messages to users. Failures are
// non-fatal to lifecycle logic.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// TrackStore persists active tracks.
type TrackStore interface {
	Insert(ctx context.Context, track *db.ActiveTrack) error
	ActiveForPlaylist(ctx context.Context, playlistID uuid.UUID) ([]db.ActiveTrack, error)
	ActiveByTrackForUser(ctx context.Context, spotifyTrackID, userID string) ([]db.ActiveTrack, error)
	ExpiryCandidates(ctx context.Context, playlistID uuid.UUID, cutoff time.Time) ([]db.ActiveTrack, error)
	CompletedUnremoved(ctx context.Context) ([]db.ActiveTrack, error)
	CountActiveByUser(ctx context.Context, playlistID uuid.UUID) (map[string]int, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRemoved(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ListenStore persists the listen ledger.
type ListenStore interface {
	Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Listen, error)
	Insert(ctx context.Context, listen *db.Listen) error
	MarkFull(ctx context.Context, playlistID uuid.UUID, trackID, userID string, listenedAt time.Time, durationMs int) error
	ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Listen, error)
}

// ReactionStore persists reactions.
type ReactionStore interface {
	Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Reaction, error)
	Insert(ctx context.Context, reaction *db.Reaction) error
	UpdateAutoValue(ctx context.Context, playlistID uuid.UUID, trackID, userID string, value db.ReactionValue) error
	ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Reaction, error)
}

// PlaylistStore reads playlists and memberships.
type PlaylistStore interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Playlist, error)
	WithActiveTracks(ctx context.Context) ([]db.Playlist, error)
	Members(ctx context.Context, playlistID uuid.UUID) ([]string, error)
}

// UserStore reads user accounts.
type UserStore interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// SnapshotStore persists per-user playback snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, userID string) (*db.PlaybackSnapshot, error)
	Put(ctx context.Context, snapshot *db.PlaybackSnapshot) error
}

// CursorStore persists per-user poll watermarks.
type CursorStore interface {
	Get(ctx context.Context, userID string) (time.Time, error)
	Put(ctx context.Context, userID string, lastPlayedAt time.Time) error
}

// Deps bundles everything the engine operates on.
type Deps struct {
	Tracks    TrackStore
	Listens   ListenStore
	Reactions ReactionStore
	Playlists PlaylistStore
	Users     UserStore
	Snapshots SnapshotStore
	Cursors   CursorStore
	Platform  Platform
	Notifier  Notifier
}

// Service holds the lifecycle logic shared by the poll cycle, the
// sweepers, and the audit reconciler.
type Service struct {
	tracks    TrackStore
	listens   ListenStore
	reactions ReactionStore
	playlists PlaylistStore
	users     UserStore
	snapshots SnapshotStore
	cursors   CursorStore
	platform  Platform
	notifier  Notifier
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the lifecycle service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		tracks:    deps.Tracks,
		listens:   deps.Listens,
		reactions: deps.Reactions,
		playlists: deps.Playlists,
		users:     deps.Users,
		snapshots: deps.Snapshots,
		cursors:   deps.Cursors,
		platform:  deps.Platform,
		notifier:  deps.Notifier,
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
