package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
)

// Scheduler arranges for Manager.Expire to be called at the session's expiry.
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, sessionID string, at time.Time) error
}

// Manager creates and tracks reservation sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	inv       inventory.Inventory
	ttl       time.Duration
	now       func() time.Time
	scheduler Scheduler
	log       logger.Logger
	metrics   *metrics.Metrics
	onExpire  func(flightID, sessionID string)
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option { return func(m *Manager) { m.ttl = ttl } }

// WithClock replaces time.Now. Tests use it to move past the TTL.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithScheduler(s Scheduler) Option { return func(m *Manager) { m.scheduler = s } }

func WithLogger(l logger.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithExpiryListener registers fn to be called whenever a session expires.
// fn runs under the session lock and must not block.
func WithExpiryListener(fn func(flightID, sessionID string)) Option {
	return func(m *Manager) { m.onExpire = fn }
}

func NewManager(inv inventory.Inventory, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		inv:      inv,
		ttl:      DefaultTTL,
		now:      time.Now,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetScheduler installs the expiry scheduler after construction, once the
// scheduling backend (which itself needs the manager) exists.
func (m *Manager) SetScheduler(s Scheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
}

// Create starts a session for passengers travelers on flightID.
func (m *Manager) Create(ctx context.Context, flightID string, passengers int) (*Session, error) {
	if passengers < 1 {
		return nil, errs.Newf(errs.ErrInvalidRequest, "passenger count must be at least 1, got %d", passengers)
	}
	if _, err := m.inv.Seats(ctx, flightID); err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		id:         uuid.New().String(),
		flightID:   flightID,
		passengers: passengers,
		state:      StateActive,
		createdAt:  now,
		expiresAt:  now.Add(m.ttl),
		inv:        m.inv,
		now:        m.now,
		log:        m.log,
		metrics:    m.metrics,
		onExpire:   m.onExpire,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	scheduler := m.scheduler
	m.mu.Unlock()

	if scheduler != nil {
		if err := scheduler.ScheduleExpiry(ctx, s.id, s.expiresAt); err != nil {
			// lazy expiry and the sweeper still cover this session
			m.log.Warn("Failed to schedule session expiry", "sessionID", s.id, "error", err)
		}
	}

	m.log.Info("Session created", "sessionID", s.id, "flightID", flightID, "passengers", passengers)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "session %s not found", id)
	}
	return s, nil
}

// Expire expires a session by id. Unknown or already closed sessions are ignored.
func (m *Manager) Expire(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return nil
	}
	return s.Expire(ctx)
}

// Sweep expires every overdue session and forgets closed ones older than one
// TTL. It returns the number of sessions it expired.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	now := m.now()
	expired := 0
	var stale []string
	for _, s := range all {
		before := s.State()
		snap := s.Snapshot(ctx)
		if before == StateActive && snap.State == StateExpired {
			expired++
		}
		if snap.State != StateActive && now.Sub(snap.ExpiresAt) >= m.ttl {
			stale = append(stale, snap.ID)
		}
	}

	if len(stale) > 0 {
		m.mu.Lock()
		for _, id := range stale {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	return expired
}

// RunSweeper calls Sweep every interval until ctx is done. It is the expiry
// path when no Scheduler is configured.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.log.Debug("Swept sessions", "expired", n)
			}
		}
	}
}
