package engine

import (
	"context"
	"testing"
	"time"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

func TestCompletionImmediateRemoval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	playlist := f.addPlaylist("sp-1", "user-1", playlistOpts{delay: db.DelayImmediate},
		"user-1", "user-2", "user-3")
	track := f.addTrack(playlist, "track-a", "user-1")

	// user-2 listens in full; user-3 only reacts. Both count as engagement.
	if _, err := f.svc.recordFullListen(ctx, playlist.ID, "track-a", "user-2", f.now, 200_000); err != nil {
		t.Fatalf("recordFullListen() error = %v", err)
	}
	f.addManualReaction(playlist, "track-a", "user-3", db.ReactionLike)

	var m CycleMetrics
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}

	stored := f.store.tracks[track.ID]
	if stored.RemovedAt == nil {
		t.Fatal("track not removed after full group engagement")
	}
	if m.TracksRemoved != 1 {
		t.Errorf("TracksRemoved = %d, want 1", m.TracksRemoved)
	}
	removed := f.platform.removedURIs()
	if len(removed) != 1 || removed[0] != track.URI {
		t.Errorf("platform removals = %v, want [%s]", removed, track.URI)
	}
}

func TestCompletionWaitsForEveryRequiredMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	playlist := f.addPlaylist("sp-1", "user-1", playlistOpts{delay: db.DelayImmediate},
		"user-1", "user-2", "user-3")
	track := f.addTrack(playlist, "track-a", "user-1")

	if _, err := f.svc.recordFullListen(ctx, playlist.ID, "track-a", "user-2", f.now, 200_000); err != nil {
		t.Fatalf("recordFullListen() error = %v", err)
	}

	var m CycleMetrics
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}

	if f.store.tracks[track.ID].RemovedAt != nil {
		t.Error("track removed while user-3 had not engaged")
	}
}

func TestCompletionIgnoresSkippedListens(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	playlist := f.addPlaylist("sp-1", "user-1", playlistOpts{delay: db.DelayImmediate},
		"user-1", "user-2")
	track := f.addTrack(playlist, "track-a", "user-1")

	// A skipped listen alone is not engagement.
	if _, err := f.svc.recordSkip(ctx, playlist.ID, "track-a", "user-2", f.now, 10_000); err != nil {
		t.Fatalf("recordSkip() error = %v", err)
	}

	var m CycleMetrics
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}
	if f.store.tracks[track.ID].RemovedAt != nil {
		t.Error("track removed on a skipped listen alone")
	}
}

func TestCompletionNeverFiresWithoutRequiredMembers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	// The adder is the only member, so the required set is empty.
	playlist := f.addPlaylist("sp-1", "user-1", playlistOpts{delay: db.DelayImmediate}, "user-1")
	track := f.addTrack(playlist, "track-a", "user-1")

	if _, err := f.svc.recordFullListen(ctx, playlist.ID, "track-a", "user-1", f.now, 200_000); err != nil {
		t.Fatalf("recordFullListen() error = %v", err)
	}

	var m CycleMetrics
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}
	stored := f.store.tracks[track.ID]
	if stored.CompletedAt != nil || stored.RemovedAt != nil {
		t.Error("single-member track completed or was removed")
	}
}

func TestCompletionWithDelayMarksCompletedOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	playlist := f.addPlaylist("sp-1", "user-1", playlistOpts{delay: db.DelayOneHour},
		"user-1", "user-2")
	track := f.addTrack(playlist, "track-a", "user-1")

	if _, err := f.svc.recordFullListen(ctx, playlist.ID, "track-a", "user-2", f.now, 200_000); err != nil {
		t.Fatalf("recordFullListen() error = %v", err)
	}

	var m CycleMetrics
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}

	stored := f.store.tracks[track.ID]
	if stored.CompletedAt == nil {
		t.Fatal("track not marked completed")
	}
	if stored.RemovedAt != nil {
		t.Error("delayed track removed immediately")
	}
	if m.TracksCompleted != 1 {
		t.Errorf("TracksCompleted = %d, want 1", m.TracksCompleted)
	}
	completedAt := *stored.CompletedAt

	// Re-evaluating does not bump the counter or move the timestamp.
	f.advance(10 * time.Minute)
	track = stored
	if err := f.svc.evaluateCompletion(ctx, playlist, track, &m); err != nil {
		t.Fatalf("evaluateCompletion() error = %v", err)
	}
	if m.TracksCompleted != 1 {
		t.Errorf("TracksCompleted after re-evaluation = %d, want 1", m.TracksCompleted)
	}
	if !f.store.tracks[track.ID].CompletedAt.Equal(completedAt) {
		t.Error("completion timestamp moved on re-evaluation")
	}
}
