package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-group-queue/internal/db"
)

// Poller defaults.
const (
	DefaultInterval   = 30 * time.Second
	DefaultAuditEvery = 2

	// Inter-user pacing: the per-cycle API budget is spread across the
	// users being polled, clamped to keep small groups polite and large
	// groups moving.
	paceBudget = 15 * time.Second
	paceFloor  = 300 * time.Millisecond
	paceCeil   = 2 * time.Second
)

// PollerStatus is a point-in-time view of the poll loop, exposed by the
// status endpoint.
type PollerStatus struct {
	Cycles    int           `json:"cycles"`
	Running   bool          `json:"cycle_in_progress"`
	LastCycle *CycleMetrics `json:"last_cycle,omitempty"`
}

// Poller drives the timer loop around the lifecycle service. Cycles
// never overlap: a tick that fires while a cycle is still running is
// dropped.
type Poller struct {
	svc        *Service
	interval   time.Duration
	auditEvery int
	logger     *log.Logger
	sleep      func(ctx context.Context, d time.Duration)

	mu      sync.Mutex
	running bool
	cycles  int
	last    *CycleMetrics
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the tick interval between cycles.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithAuditEvery sets the audit cadence: the reconciler runs on every
// Nth cycle. Zero disables auditing.
func WithAuditEvery(n int) PollerOption {
	return func(p *Poller) {
		p.auditEvery = n
	}
}

// WithSleep overrides the pacing sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration)) PollerOption {
	return func(p *Poller) {
		p.sleep = fn
	}
}

// WithPollerLogger sets the poller logger.
func WithPollerLogger(logger *log.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// NewPoller creates a poller around the lifecycle service.
func NewPoller(svc *Service, opts ...PollerOption) *Poller {
	p := &Poller{
		svc:        svc,
		interval:   DefaultInterval,
		auditEvery: DefaultAuditEvery,
		logger:     svc.logger,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// pace computes the inter-user delay for a cycle polling n users:
// clamp(300ms, 2000ms, 15s/n).
func pace(n int) time.Duration {
	if n <= 0 {
		return paceCeil
	}
	d := paceBudget / time.Duration(n)
	if d < paceFloor {
		return paceFloor
	}
	if d > paceCeil {
		return paceCeil
	}
	return d
}

// Run ticks cycles until the context is canceled. An in-progress cycle
// always runs to completion; cancellation takes effect between cycles.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval, "audit_every", p.auditEvery)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First cycle fires immediately rather than one interval in.
	p.TryCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			if _, ran := p.TryCycle(ctx); !ran {
				p.logger.Warn("previous cycle still running, tick dropped")
			}
		}
	}
}

// Status returns a snapshot of the poll loop.
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := PollerStatus{Cycles: p.cycles, Running: p.running}
	if p.last != nil {
		last := *p.last
		status.LastCycle = &last
	}
	return status
}

// TryCycle runs one poll cycle unless a cycle is already in progress, in
// which case it reports false without doing any work.
func (p *Poller) TryCycle(ctx context.Context) (CycleMetrics, bool) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return CycleMetrics{}, false
	}
	p.running = true
	p.cycles++
	cycle := p.cycles
	p.mu.Unlock()

	m := p.runCycle(ctx, cycle)

	p.mu.Lock()
	p.running = false
	p.last = &m
	p.mu.Unlock()
	return m, true
}

// runCycle executes one full cycle: collect targets, poll users
// sequentially with pacing, sweep expiry and delayed removals, and on
// every Nth cycle reconcile against Spotify's copy of each playlist.
func (p *Poller) runCycle(ctx context.Context, cycle int) CycleMetrics {
	s := p.svc
	m := CycleMetrics{StartedAt: s.now()}
	defer func() {
		m.Duration = s.now().Sub(m.StartedAt)
		p.logger.Info("cycle done",
			"cycle", cycle,
			"users_polled", m.UsersPolled,
			"users_skipped", m.UsersSkipped,
			"plays", m.PlaysProcessed,
			"skips", m.SkipsDetected,
			"completed", m.TracksCompleted,
			"removed", m.TracksRemoved,
			"errors", m.Errors,
		)
	}()

	playlists, err := s.playlists.WithActiveTracks(ctx)
	if err != nil {
		p.logger.Error("collecting poll targets failed", "err", err)
		m.Errors++
		return m
	}
	m.Playlists = len(playlists)
	if len(playlists) == 0 {
		return m
	}

	cache := make(playlistCache, len(playlists))
	users, err := p.collectUsers(ctx, playlists, cache)
	if err != nil {
		p.logger.Error("collecting poll users failed", "err", err)
		m.Errors++
		return m
	}

	delay := pace(len(users))
	for i, userID := range users {
		if s.platform.RateLimited() {
			m.UsersSkipped += len(users) - i
			p.logger.Warn("rate limited, skipping rest of cycle", "skipped_users", len(users)-i)
			break
		}
		if err := s.pollUser(ctx, userID, cache, &m); err != nil {
			if s.platform.RateLimited() {
				m.UsersSkipped += len(users) - i
				p.logger.Warn("rate limited, skipping rest of cycle", "skipped_users", len(users)-i)
				break
			}
			p.logger.Warn("user poll failed", "user", userID, "err", err)
			m.Errors++
			continue
		}
		m.UsersPolled++
		if i < len(users)-1 {
			p.sleep(ctx, delay)
		}
	}

	s.sweepExpiry(ctx, playlists, &m)
	s.sweepDelayed(ctx, cache, &m)

	if p.auditEvery > 0 && cycle%p.auditEvery == 0 {
		if err := s.auditPlaylists(ctx, playlists, &m); err != nil {
			p.logger.Warn("audit aborted", "err", err)
			m.Errors++
		}
	}
	return m
}

// collectUsers derives the deduplicated, stably ordered set of users to
// poll: every member of every playlist that has active tracks.
func (p *Poller) collectUsers(ctx context.Context, playlists []db.Playlist, cache playlistCache) ([]string, error) {
	seen := make(map[string]bool)
	var users []string
	for i := range playlists {
		playlist := playlists[i]
		cache[playlist.ID] = &playlists[i]
		members, err := p.svc.playlists.Members(ctx, playlist.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}
	sort.Strings(users)
	return users, nil
}
