// Package reservation binds a traveler's seat holds to one short-lived session.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
)

// DefaultTTL is how long a session may hold seats.
const DefaultTTL = 15 * time.Minute

type State string

const (
	StateActive    State = "active"
	StateSkipped   State = "skipped"
	StateHandedOff State = "handed_off"
	StateExpired   State = "expired"
)

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID         string    `json:"id"`
	FlightID   string    `json:"flightId"`
	Passengers int       `json:"passengers"`
	Held       []string  `json:"held"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Session holds up to Passengers seats for one traveler interaction.
// All operations on a session are serialized.
type Session struct {
	mu sync.Mutex

	id         string
	flightID   string
	passengers int
	held       []string
	state      State
	createdAt  time.Time
	expiresAt  time.Time

	inv      inventory.Inventory
	now      func() time.Time
	log      logger.Logger
	metrics  *metrics.Metrics
	onExpire func(flightID, sessionID string)
}

func (s *Session) ID() string { return s.id }

func (s *Session) FlightID() string { return s.flightID }

// State returns the session state without applying lazy expiry.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectSeat toggles code: a seat already held is released, otherwise it is
// held if the session has room. A single-passenger session replaces its seat.
func (s *Session) SelectSeat(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(ctx); err != nil {
		return err
	}

	if i := s.indexOf(code); i >= 0 {
		if err := s.inv.Release(ctx, s.flightID, code); err != nil {
			return fmt.Errorf("failed to release seat %s: %w", code, err)
		}
		s.held = append(s.held[:i], s.held[i+1:]...)
		s.metrics.SeatHold("released")
		return nil
	}

	if s.passengers == 1 && len(s.held) == 1 {
		prev := s.held[0]
		if err := s.hold(ctx, code); err != nil {
			return err
		}
		if err := s.inv.Release(ctx, s.flightID, prev); err != nil {
			s.log.Warn("Failed to release replaced seat", "sessionID", s.id, "seat", prev, "error", err)
		}
		s.held[0] = code
		return nil
	}

	if len(s.held) >= s.passengers {
		s.metrics.SeatHold("capacity")
		return errs.ErrCapacityExceeded
	}

	if err := s.hold(ctx, code); err != nil {
		return err
	}
	s.held = append(s.held, code)
	return nil
}

// hold re-checks availability and then holds the seat. Any seat that is not
// available, disabled ones included, is reported as unavailable. The inventory
// hold is itself a compare-and-swap, so losing a race after the check still
// fails cleanly.
func (s *Session) hold(ctx context.Context, code string) error {
	available, err := s.inv.Availability(ctx, s.flightID, code)
	if err != nil {
		return err
	}
	if !available {
		s.metrics.SeatHold("conflict")
		return errs.ErrSeatUnavailable
	}

	if err := s.inv.Hold(ctx, s.flightID, code, s.id); err != nil {
		if errors.Is(err, errs.ErrSeatUnavailable) {
			s.metrics.SeatHold("conflict")
		}
		return err
	}
	s.metrics.SeatHold("held")
	return nil
}

// Skip releases every held seat and closes the session. Seats for the
// booking get assigned later.
func (s *Session) Skip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(ctx); err != nil {
		return err
	}
	err := s.releaseAll(ctx)
	s.state = StateSkipped
	return err
}

// Expire releases every held seat and makes the session terminal. Calling
// it on a session that is already closed is a no-op.
func (s *Session) Expire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}
	return s.expireLocked(ctx)
}

// Handoff closes the session and returns the held seats, which now belong
// to the booking. The seats stay selected.
func (s *Session) Handoff(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(ctx); err != nil {
		return nil, err
	}
	if len(s.held) == 0 {
		return nil, errs.Newf(errs.ErrInvalidRequest, "session %s holds no seats", s.id)
	}
	seats := append([]string(nil), s.held...)
	s.state = StateHandedOff
	return seats, nil
}

// Held returns the held seat codes in selection order.
func (s *Session) Held() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.held...)
}

// Snapshot returns a copy of the session, expiring it first if its TTL has passed.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive && s.overdue() {
		_ = s.expireLocked(ctx)
	}
	return Snapshot{
		ID:         s.id,
		FlightID:   s.flightID,
		Passengers: s.passengers,
		Held:       append([]string{}, s.held...),
		State:      s.state,
		CreatedAt:  s.createdAt,
		ExpiresAt:  s.expiresAt,
	}
}

// checkLive expires the session lazily and rejects operations on closed sessions.
func (s *Session) checkLive(ctx context.Context) error {
	switch s.state {
	case StateExpired:
		return errs.ErrSessionExpired
	case StateSkipped, StateHandedOff:
		return errs.Newf(errs.ErrSessionExpired, "session %s is %s, please restart search", s.id, s.state)
	}
	if s.overdue() {
		if err := s.expireLocked(ctx); err != nil {
			s.log.Error("Failed to release seats on expiry", "sessionID", s.id, "error", err)
		}
		return errs.ErrSessionExpired
	}
	return nil
}

func (s *Session) overdue() bool {
	return !s.now().Before(s.expiresAt)
}

func (s *Session) expireLocked(ctx context.Context) error {
	err := s.releaseAll(ctx)
	s.state = StateExpired
	s.metrics.SessionExpired()
	s.log.Info("Session expired", "sessionID", s.id, "flightID", s.flightID)
	if s.onExpire != nil {
		s.onExpire(s.flightID, s.id)
	}
	return err
}

func (s *Session) releaseAll(ctx context.Context) error {
	var failed []error
	for _, code := range s.held {
		if err := s.inv.Release(ctx, s.flightID, code); err != nil {
			failed = append(failed, fmt.Errorf("failed to release seat %s: %w", code, err))
		}
	}
	s.held = nil
	return errors.Join(failed...)
}

func (s *Session) indexOf(code string) int {
	for i, c := range s.held {
		if c == code {
			return i
		}
	}
	return -1
}
