package platform

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-group-queue/internal/engine"
)

// Sentinel errors, re-exported from the engine so callers can match with
// errors.Is regardless of which side of the interface they hold.
var (
	ErrRateLimited  = engine.ErrRateLimited
	ErrTokenInvalid = engine.ErrTokenInvalid
)

// defaultCooldown is used when Spotify responds 429 without a usable
// Retry-After hint.
const defaultCooldown = 30 * time.Second

// classify maps transport errors onto the engine's taxonomy. A 429 arms
// the shared cooldown as a side effect; invalid or revoked credentials
// become ErrTokenInvalid. Everything else stays a transient error.
func (c *Client) classify(err error) error {
	var spotifyErr spotify.Error
	if errors.As(err, &spotifyErr) {
		switch spotifyErr.Status {
		case http.StatusTooManyRequests:
			c.setCooldown(defaultCooldown)
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// invalid_grant means the refresh token itself is dead; the user
		// has to reauthorize through the app.
		if retrieveErr.ErrorCode == "invalid_grant" ||
			retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	return err
}
