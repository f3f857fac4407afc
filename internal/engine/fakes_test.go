package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// fakeStore is an in-memory implementation of every store interface the
// engine consumes, mirroring the repository semantics (idempotent
// inserts, guarded updates).
type fakeStore struct {
	playlists map[uuid.UUID]*db.Playlist
	members   map[uuid.UUID][]string
	users     map[string]bool
	tracks    map[uuid.UUID]*db.ActiveTrack
	listens   map[string]*db.Listen
	reactions map[string]*db.Reaction
	snapshots map[string]*db.PlaybackSnapshot
	cursors   map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		playlists: make(map[uuid.UUID]*db.Playlist),
		members:   make(map[uuid.UUID][]string),
		users:     make(map[string]bool),
		tracks:    make(map[uuid.UUID]*db.ActiveTrack),
		listens:   make(map[string]*db.Listen),
		reactions: make(map[string]*db.Reaction),
		snapshots: make(map[string]*db.PlaybackSnapshot),
		cursors:   make(map[string]time.Time),
	}
}

func ledgerKey(playlistID uuid.UUID, trackID, userID string) string {
	return fmt.Sprintf("%s|%s|%s", playlistID, trackID, userID)
}

// PlaylistStore

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*db.Playlist, error) {
	if p, ok := f.playlists[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) WithActiveTracks(ctx context.Context) ([]db.Playlist, error) {
	var out []db.Playlist
	for id, p := range f.playlists {
		for _, t := range f.tracks {
			if t.PlaylistID == id && t.RemovedAt == nil {
				out = append(out, *p)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Members(ctx context.Context, playlistID uuid.UUID) ([]string, error) {
	return append([]string(nil), f.members[playlistID]...), nil
}

// UserStore

func (f *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	return f.users[id], nil
}

// TrackStore

func (f *fakeStore) Insert(ctx context.Context, track *db.ActiveTrack) error {
	for _, t := range f.tracks {
		if t.PlaylistID == track.PlaylistID && t.SpotifyTrackID == track.SpotifyTrackID {
			return nil
		}
	}
	copied := *track
	f.tracks[track.ID] = &copied
	return nil
}

func (f *fakeStore) ActiveForPlaylist(ctx context.Context, playlistID uuid.UUID) ([]db.ActiveTrack, error) {
	var out []db.ActiveTrack
	for _, t := range f.tracks {
		if t.PlaylistID == playlistID && t.RemovedAt == nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveByTrackForUser(ctx context.Context, spotifyTrackID, userID string) ([]db.ActiveTrack, error) {
	var out []db.ActiveTrack
	for _, t := range f.tracks {
		if t.SpotifyTrackID != spotifyTrackID || t.RemovedAt != nil {
			continue
		}
		for _, m := range f.members[t.PlaylistID] {
			if m == userID {
				out = append(out, *t)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ExpiryCandidates(ctx context.Context, playlistID uuid.UUID, cutoff time.Time) ([]db.ActiveTrack, error) {
	var out []db.ActiveTrack
	for _, t := range f.tracks {
		if t.PlaylistID != playlistID || t.RemovedAt != nil || !t.AddedAt.Before(cutoff) {
			continue
		}
		for _, l := range f.listens {
			if l.PlaylistID == playlistID && l.TrackID == t.SpotifyTrackID && l.UserID != t.AddedBy {
				out = append(out, *t)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CompletedUnremoved(ctx context.Context) ([]db.ActiveTrack, error) {
	var out []db.ActiveTrack
	for _, t := range f.tracks {
		if t.CompletedAt != nil && t.RemovedAt == nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) CountActiveByUser(ctx context.Context, playlistID uuid.UUID) (map[string]int, error) {
	counts := make(map[string]int)
	for _, t := range f.tracks {
		if t.PlaylistID == playlistID && t.RemovedAt == nil {
			counts[t.AddedBy]++
		}
	}
	return counts, nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := f.tracks[id]; ok && t.CompletedAt == nil && t.RemovedAt == nil {
		t.CompletedAt = &at
	}
	return nil
}

func (f *fakeStore) MarkRemoved(ctx context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := f.tracks[id]; ok && t.RemovedAt == nil {
		t.RemovedAt = &at
	}
	return nil
}

func (f *fakeStore) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := f.tracks[id]; ok && t.ArchivedAt == nil {
		t.ArchivedAt = &at
	}
	return nil
}

// ListenStore

func (f *fakeStore) GetListen(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Listen, error) {
	if l, ok := f.listens[ledgerKey(playlistID, trackID, userID)]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) InsertListen(ctx context.Context, listen *db.Listen) error {
	key := ledgerKey(listen.PlaylistID, listen.TrackID, listen.UserID)
	if _, ok := f.listens[key]; ok {
		return nil
	}
	copied := *listen
	f.listens[key] = &copied
	return nil
}

func (f *fakeStore) MarkFull(ctx context.Context, playlistID uuid.UUID, trackID, userID string, listenedAt time.Time, durationMs int) error {
	if l, ok := f.listens[ledgerKey(playlistID, trackID, userID)]; ok && l.Skipped {
		l.Skipped = false
		l.ListenedAt = listenedAt
		l.DurationMs = durationMs
	}
	return nil
}

func (f *fakeStore) ListensForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Listen, error) {
	var out []db.Listen
	for _, l := range f.listens {
		if l.PlaylistID == playlistID && l.TrackID == trackID {
			out = append(out, *l)
		}
	}
	return out, nil
}

// ReactionStore

func (f *fakeStore) GetReaction(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Reaction, error) {
	if re, ok := f.reactions[ledgerKey(playlistID, trackID, userID)]; ok {
		copied := *re
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) InsertReaction(ctx context.Context, reaction *db.Reaction) error {
	key := ledgerKey(reaction.PlaylistID, reaction.TrackID, reaction.UserID)
	if _, ok := f.reactions[key]; ok {
		return nil
	}
	copied := *reaction
	f.reactions[key] = &copied
	return nil
}

func (f *fakeStore) UpdateAutoValue(ctx context.Context, playlistID uuid.UUID, trackID, userID string, value db.ReactionValue) error {
	if re, ok := f.reactions[ledgerKey(playlistID, trackID, userID)]; ok && re.IsAuto {
		re.Value = value
	}
	return nil
}

func (f *fakeStore) ReactionsForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Reaction, error) {
	var out []db.Reaction
	for _, re := range f.reactions {
		if re.PlaylistID == playlistID && re.TrackID == trackID {
			out = append(out, *re)
		}
	}
	return out, nil
}

// SnapshotStore

func (f *fakeStore) GetSnapshot(ctx context.Context, userID string) (*db.PlaybackSnapshot, error) {
	if s, ok := f.snapshots[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) PutSnapshot(ctx context.Context, snapshot *db.PlaybackSnapshot) error {
	copied := *snapshot
	f.snapshots[snapshot.UserID] = &copied
	return nil
}

// CursorStore

func (f *fakeStore) GetCursor(ctx context.Context, userID string) (time.Time, error) {
	return f.cursors[userID], nil
}

func (f *fakeStore) PutCursor(ctx context.Context, userID string, lastPlayedAt time.Time) error {
	f.cursors[userID] = lastPlayedAt
	return nil
}

// Narrow adapters so one fakeStore serves every interface despite the
// overlapping method names across stores.
type fakeListens struct{ *fakeStore }

func (f fakeListens) Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Listen, error) {
	return f.GetListen(ctx, playlistID, trackID, userID)
}

func (f fakeListens) Insert(ctx context.Context, listen *db.Listen) error {
	return f.InsertListen(ctx, listen)
}

func (f fakeListens) ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Listen, error) {
	return f.ListensForTrack(ctx, playlistID, trackID)
}

type fakeReactions struct{ *fakeStore }

func (f fakeReactions) Get(ctx context.Context, playlistID uuid.UUID, trackID, userID string) (*db.Reaction, error) {
	return f.GetReaction(ctx, playlistID, trackID, userID)
}

func (f fakeReactions) Insert(ctx context.Context, reaction *db.Reaction) error {
	return f.InsertReaction(ctx, reaction)
}

func (f fakeReactions) ForTrack(ctx context.Context, playlistID uuid.UUID, trackID string) ([]db.Reaction, error) {
	return f.ReactionsForTrack(ctx, playlistID, trackID)
}

type fakeSnapshots struct{ *fakeStore }

func (f fakeSnapshots) Get(ctx context.Context, userID string) (*db.PlaybackSnapshot, error) {
	return f.GetSnapshot(ctx, userID)
}

func (f fakeSnapshots) Put(ctx context.Context, snapshot *db.PlaybackSnapshot) error {
	return f.PutSnapshot(ctx, snapshot)
}

type fakeCursors struct{ *fakeStore }

func (f fakeCursors) Get(ctx context.Context, userID string) (time.Time, error) {
	return f.GetCursor(ctx, userID)
}

func (f fakeCursors) Put(ctx context.Context, userID string, lastPlayedAt time.Time) error {
	return f.PutCursor(ctx, userID, lastPlayedAt)
}

// fakePlatform is a scriptable Platform implementation recording every
// mutating call.
type fakePlatform struct {
	mu          sync.Mutex
	plays       map[string][]Play
	playsErr    map[string]error
	playback    map[string]*Playback
	items       map[string][]PlaylistItem
	rateLimited bool
	removed     []mutation
	added       []mutation

	// blockPlays, when set, makes RecentlyPlayed announce itself on
	// started and wait for release. Used by the overlap-guard test.
	blockPlays bool
	started    chan struct{}
	release    chan struct{}
}

type mutation struct {
	owner    string
	playlist string
	uris     []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		plays:    make(map[string][]Play),
		playsErr: make(map[string]error),
		playback: make(map[string]*Playback),
		items:    make(map[string][]PlaylistItem),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (p *fakePlatform) RecentlyPlayed(ctx context.Context, userID string, after time.Time) ([]Play, error) {
	p.mu.Lock()
	block := p.blockPlays
	err := p.playsErr[userID]
	plays := append([]Play(nil), p.plays[userID]...)
	p.mu.Unlock()

	if block {
		p.started <- struct{}{}
		<-p.release
	}
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			p.setRateLimited(true)
		}
		return nil, err
	}
	var out []Play
	for _, play := range plays {
		if after.IsZero() || play.PlayedAt.After(after) {
			out = append(out, play)
		}
	}
	return out, nil
}

func (p *fakePlatform) CurrentPlayback(ctx context.Context, userID string) (*Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pb, ok := p.playback[userID]; ok {
		copied := *pb
		return &copied, nil
	}
	return nil, nil
}

func (p *fakePlatform) PlaylistItems(ctx context.Context, ownerID, playlistID string) ([]PlaylistItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlaylistItem(nil), p.items[playlistID]...), nil
}

func (p *fakePlatform) AddToPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, mutation{owner: ownerID, playlist: playlistID, uris: append([]string(nil), uris...)})
	return nil
}

func (p *fakePlatform) RemoveFromPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, mutation{owner: ownerID, playlist: playlistID, uris: append([]string(nil), uris...)})
	return nil
}

func (p *fakePlatform) RateLimited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateLimited
}

func (p *fakePlatform) setRateLimited(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateLimited = v
}

func (p *fakePlatform) removedURIs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.removed {
		out = append(out, m.uris...)
	}
	return out
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (n *fakeNotifier) Notify(ctx context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

// fixture wires a Service to fakes with a controllable clock.
type fixture struct {
	store    *fakeStore
	platform *fakePlatform
	notifier *fakeNotifier
	now      time.Time
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		platform: newFakePlatform(),
		notifier: newFakeNotifier(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(Deps{
		Tracks:    f.store,
		Listens:   fakeListens{f.store},
		Reactions: fakeReactions{f.store},
		Playlists: f.store,
		Users:     f.store,
		Snapshots: fakeSnapshots{f.store},
		Cursors:   fakeCursors{f.store},
		Platform:  f.platform,
		Notifier:  f.notifier,
	}, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

type playlistOpts struct {
	delay       db.RemovalDelay
	maxAgeDays  int
	maxPerUser  *int
	archive     db.ArchiveThreshold
	archiveID   *string
	autoDislike bool
}

func (f *fixture) addPlaylist(spotifyID, owner string, opts playlistOpts, members ...string) *db.Playlist {
	if opts.delay == "" {
		opts.delay = db.DelayImmediate
	}
	if opts.archive == "" {
		opts.archive = db.ArchiveNone
	}
	p := &db.Playlist{
		ID:                uuid.New(),
		SpotifyID:         spotifyID,
		OwnerID:           owner,
		Name:              "playlist " + spotifyID,
		RemovalDelay:      opts.delay,
		MaxTrackAgeDays:   opts.maxAgeDays,
		MaxTracksPerUser:  opts.maxPerUser,
		ArchiveThreshold:  opts.archive,
		ArchivePlaylistID: opts.archiveID,
		AutoDislike:       opts.autoDislike,
		CreatedAt:         f.now,
	}
	f.store.playlists[p.ID] = p
	f.store.members[p.ID] = members
	for _, m := range members {
		f.store.users[m] = true
	}
	return p
}

func (f *fixture) addTrack(playlist *db.Playlist, spotifyTrackID, addedBy string) *db.ActiveTrack {
	t := &db.ActiveTrack{
		ID:             uuid.New(),
		PlaylistID:     playlist.ID,
		SpotifyTrackID: spotifyTrackID,
		URI:            "spotify:track:" + spotifyTrackID,
		AddedBy:        addedBy,
		AddedAt:        f.now,
	}
	f.store.tracks[t.ID] = t
	return t
}

func (f *fixture) addManualReaction(playlist *db.Playlist, trackID, userID string, value db.ReactionValue) {
	key := ledgerKey(playlist.ID, trackID, userID)
	f.store.reactions[key] = &db.Reaction{
		PlaylistID: playlist.ID,
		TrackID:    trackID,
		UserID:     userID,
		Value:      value,
		IsAuto:     false,
	}
}
