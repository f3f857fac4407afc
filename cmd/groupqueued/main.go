// Command groupqueued runs the group-queue engagement polling engine: a
// background loop that watches each member's Spotify listening activity
// and drives shared-playlist track lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/go-spotify-group-queue/internal/config"
	"github.com/justestif/go-spotify-group-queue/internal/db"
	"github.com/justestif/go-spotify-group-queue/internal/engine"
	"github.com/justestif/go-spotify-group-queue/internal/notify"
	"github.com/justestif/go-spotify-group-queue/internal/platform"
	"github.com/justestif/go-spotify-group-queue/internal/status"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.Spotify.ClientID),
		spotifyauth.WithClientSecret(cfg.Spotify.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadRecentlyPlayed,
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		),
	)

	spotifyClient := platform.New(auth, database.Users(), logger.With("component", "platform"))
	notifier := notify.New(cfg.Notify.NtfyTopic, logger.With("component", "notify"))

	svc := engine.New(engine.Deps{
		Tracks:    database.Tracks(),
		Listens:   database.Listens(),
		Reactions: database.Reactions(),
		Playlists: database.Playlists(),
		Users:     database.Users(),
		Snapshots: database.Snapshots(),
		Cursors:   database.Cursors(),
		Platform:  spotifyClient,
		Notifier:  notifier,
	}, engine.WithLogger(logger.With("component", "engine")))

	poller := engine.NewPoller(svc,
		engine.WithInterval(cfg.Poller.Interval()),
		engine.WithAuditEvery(cfg.Poller.AuditEvery),
		engine.WithPollerLogger(logger.With("component", "poller")),
	)

	statusServer := status.NewServer(cfg.Status.Addr, poller, spotifyClient)
	go func() {
		logger.Info("status server listening", "addr", cfg.Status.Addr)
		if err := statusServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "err", err)
		}
	}()

	poller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown failed", "err", err)
	}
	return nil
}
