package engine

import "github.com/justestif/go-spotify-group-queue/internal/db"

// skipThreshold is the fraction of a track that must have been heard for
// an abandoned track to still count as listened to rather than skipped.
const skipThreshold = 0.5

// SkipEvent reports that the track from a user's previous playback
// snapshot was abandoned before the halfway mark.
type SkipEvent struct {
	TrackID    string
	ProgressMs int
	DurationMs int
}

// DetectSkip compares a user's previous playback snapshot against freshly
// observed state. The snapshot's track is classified as skipped when the
// user is now playing a different track, the snapshot's track never made
// it into the recently-played history, and less than half of it had been
// heard. A zero or unknown duration never classifies as a skip.
//
// The heuristic is known to be approximate: very short tracks, or a
// recently-played window that evicted the entry between polls, can
// produce false positives. That behavior is accepted as is.
//
// At most one skip event is produced per user per poll.
func DetectSkip(snapshot *db.PlaybackSnapshot, plays []Play, playback *Playback) *SkipEvent {
	if snapshot == nil || playback == nil {
		return nil
	}
	if playback.TrackID == "" || playback.TrackID == snapshot.TrackID {
		return nil
	}
	for _, p := range plays {
		if p.TrackID == snapshot.TrackID {
			// The track finished normally and shows up in history.
			return nil
		}
	}
	if snapshot.DurationMs <= 0 {
		return nil
	}
	if float64(snapshot.ProgressMs)/float64(snapshot.DurationMs) >= skipThreshold {
		return nil
	}
	return &SkipEvent{
		TrackID:    snapshot.TrackID,
		ProgressMs: snapshot.ProgressMs,
		DurationMs: snapshot.DurationMs,
	}
}
