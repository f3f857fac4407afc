package engine

import "time"

// CycleMetrics aggregates what happened during one poll cycle.
type CycleMetrics struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Playlists       int           `json:"playlists"`
	UsersPolled     int           `json:"users_polled"`
	UsersSkipped    int           `json:"users_skipped"`
	PlaysProcessed  int           `json:"plays_processed"`
	SkipsDetected   int           `json:"skips_detected"`
	TracksCompleted int           `json:"tracks_completed"`
	TracksRemoved   int           `json:"tracks_removed"`
	TracksExpired   int           `json:"tracks_expired"`
	TracksAdopted   int           `json:"tracks_adopted"`
	AuditRemovals   int           `json:"audit_removals"`
	AuditRan        bool          `json:"audit_ran"`
	Errors          int           `json:"errors"`
}
