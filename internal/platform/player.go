package platform

import (
	"context"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-group-queue/internal/engine"
)

const recentlyPlayedLimit = 50

// RecentlyPlayed fetches a user's plays newer than the given watermark.
// A zero watermark fetches the full recently-played window.
func (c *Client) RecentlyPlayed(ctx context.Context, userID string, after time.Time) ([]engine.Play, error) {
	var items []spotify.RecentlyPlayedItem
	err := c.do(ctx, userID, func(client *spotify.Client) error {
		opts := spotify.RecentlyPlayedOptions{Limit: recentlyPlayedLimit}
		if !after.IsZero() {
			opts.AfterEpochMs = after.UnixMilli()
		}
		var err error
		items, err = client.PlayerRecentlyPlayedOpt(ctx, &opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	plays := make([]engine.Play, 0, len(items))
	for _, item := range items {
		// The after cursor is millisecond-exclusive on Spotify's side,
		// but replays are harmless: the ledger is idempotent.
		plays = append(plays, engine.Play{
			TrackID:    item.Track.ID.String(),
			URI:        string(item.Track.URI),
			DurationMs: int(item.Track.Duration),
			PlayedAt:   item.PlayedAt,
		})
	}
	return plays, nil
}

// CurrentPlayback fetches the user's current playback state. Nil is
// returned when nothing is playing.
func (c *Client) CurrentPlayback(ctx context.Context, userID string) (*engine.Playback, error) {
	var playing *spotify.CurrentlyPlaying
	err := c.do(ctx, userID, func(client *spotify.Client) error {
		var err error
		playing, err = client.PlayerCurrentlyPlaying(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if playing == nil || playing.Item == nil {
		return nil, nil
	}
	return &engine.Playback{
		TrackID:    playing.Item.ID.String(),
		ProgressMs: int(playing.Progress),
		DurationMs: int(playing.Item.Duration),
		Playing:    playing.Playing,
	}, nil
}
