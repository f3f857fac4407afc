// Package platform wraps the Spotify Web API for the polling engine:
// per-user authenticated clients with deduplicated token refresh, a
// process-wide rate-limit cooldown, request pacing, and bounded retries.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond

	// requestsPerSecond paces outbound API calls below Spotify's burst
	// tolerance; the inter-user delay in the poller sits on top of this.
	requestsPerSecond = 10
)

// TokenStore loads and persists per-user OAuth tokens.
type TokenStore interface {
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
}

// Client is a Spotify API wrapper shared by all poll-cycle work. It is
// safe for concurrent use; the token refresh path is the one place true
// concurrency is expected and is deduplicated per user.
type Client struct {
	auth    *spotifyauth.Authenticator
	tokens  TokenStore
	limiter *rate.Limiter
	logger  *log.Logger

	flight singleflight.Group

	mu            sync.Mutex
	clients       map[string]*spotify.Client
	cooldownUntil time.Time
}

// New creates a platform client. The authenticator carries the Spotify
// app credentials; user tokens come from the token store.
func New(auth *spotifyauth.Authenticator, tokens TokenStore, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		auth:    auth,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
		clients: make(map[string]*spotify.Client),
	}
}

// RateLimited reports whether the shared cooldown is active.
func (c *Client) RateLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.cooldownUntil)
}

// setCooldown arms the shared cooldown; all outbound calls consult it
// before firing.
func (c *Client) setCooldown(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
		c.logger.Warn("rate limited, cooling down", "until", until.Format(time.RFC3339))
	}
}

// clientFor returns an authenticated client for the user, building one
// on first use. Concurrent callers for the same user's credentials await
// a single in-flight build rather than issuing redundant refresh calls.
func (c *Client) clientFor(ctx context.Context, userID string) (*spotify.Client, error) {
	c.mu.Lock()
	if client, ok := c.clients[userID]; ok {
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(userID, func() (any, error) {
		stored, err := c.tokens.GetToken(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading token: %w", err)
		}

		// The oauth2 transport refreshes lazily; force it now so an
		// expired refresh token surfaces here, and persist the rotation.
		client := spotify.New(c.auth.Client(context.Background(), stored))
		fresh, err := client.Token()
		if err != nil {
			return nil, c.classify(err)
		}
		if fresh.AccessToken != stored.AccessToken {
			if err := c.tokens.SaveToken(ctx, userID, fresh); err != nil {
				c.logger.Warn("persisting refreshed token failed", "user", userID, "err", err)
			}
		}

		c.mu.Lock()
		c.clients[userID] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*spotify.Client), nil
}

// invalidate drops a user's cached client, forcing a fresh token load on
// the next call.
func (c *Client) invalidate(userID string) {
	c.mu.Lock()
	delete(c.clients, userID)
	c.mu.Unlock()
}

// do runs one API call as the given user with the shared gate, pacing,
// and a bounded retry loop for transient failures.
func (c *Client) do(ctx context.Context, userID string, fn func(client *spotify.Client) error) error {
	if c.RateLimited() {
		return ErrRateLimited
	}

	client, err := c.clientFor(ctx, userID)
	if err != nil {
		return err
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn(client)
		if err == nil {
			return nil
		}
		err = c.classify(err)
		if errors.Is(err, ErrRateLimited) {
			return err
		}
		if errors.Is(err, ErrTokenInvalid) {
			c.invalidate(userID)
			return err
		}
		lastErr = err
	}
	return lastErr
}
