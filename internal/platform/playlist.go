package platform

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-group-queue/internal/engine"
)

// maxTracksPerRequest is Spotify's cap on tracks per playlist mutation.
const maxTracksPerRequest = 100

// PlaylistItems fetches the live contents of a playlist using the
// owner's credentials, following pagination.
func (c *Client) PlaylistItems(ctx context.Context, ownerID, playlistID string) ([]engine.PlaylistItem, error) {
	var items []engine.PlaylistItem
	err := c.do(ctx, ownerID, func(client *spotify.Client) error {
		page, err := client.GetPlaylistItems(ctx, spotify.ID(playlistID))
		if err != nil {
			return err
		}
		for {
			for _, item := range page.Items {
				if item.Track.Track == nil {
					// Episodes and local files are not managed tracks.
					continue
				}
				track := item.Track.Track
				addedAt, _ := time.Parse(time.RFC3339, item.AddedAt)
				items = append(items, engine.PlaylistItem{
					TrackID: track.ID.String(),
					URI:     string(track.URI),
					AddedBy: item.AddedBy.ID,
					AddedAt: addedAt,
				})
			}
			err = client.NextPage(ctx, page)
			if errors.Is(err, spotify.ErrNoMorePages) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// AddToPlaylist adds track URIs to a playlist as its owner, batching in
// chunks of 100.
func (c *Client) AddToPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error {
	return c.mutatePlaylist(ctx, ownerID, playlistID, uris,
		func(client *spotify.Client, id spotify.ID, batch []spotify.ID) error {
			_, err := client.AddTracksToPlaylist(ctx, id, batch...)
			return err
		})
}

// RemoveFromPlaylist removes track URIs from a playlist as its owner,
// batching in chunks of 100.
func (c *Client) RemoveFromPlaylist(ctx context.Context, ownerID, playlistID string, uris []string) error {
	return c.mutatePlaylist(ctx, ownerID, playlistID, uris,
		func(client *spotify.Client, id spotify.ID, batch []spotify.ID) error {
			_, err := client.RemoveTracksFromPlaylist(ctx, id, batch...)
			return err
		})
}

func (c *Client) mutatePlaylist(ctx context.Context, ownerID, playlistID string, uris []string, mutate func(*spotify.Client, spotify.ID, []spotify.ID) error) error {
	if len(uris) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(uris))
	for i, uri := range uris {
		ids[i] = trackIDFromURI(uri)
	}

	return c.do(ctx, ownerID, func(client *spotify.Client) error {
		for i := 0; i < len(ids); i += maxTracksPerRequest {
			end := min(i+maxTracksPerRequest, len(ids))
			if err := mutate(client, spotify.ID(playlistID), ids[i:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

// trackIDFromURI extracts the track ID from a spotify:track:<id> URI.
// Bare IDs pass through unchanged.
func trackIDFromURI(uri string) spotify.ID {
	if idx := strings.LastIndex(uri, ":"); idx >= 0 {
		return spotify.ID(uri[idx+1:])
	}
	return spotify.ID(uri)
}
