package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// Memory keeps seat state in process. Each flight's seat map has its own lock.
type Memory struct {
	mu        sync.RWMutex
	flights   map[string]*flightSeats
	publisher Publisher
}

type flightSeats struct {
	mu    sync.Mutex
	seats map[string]*models.Seat // code -> seat
}

var _ Inventory = (*Memory)(nil)

// NewMemory creates an empty in-memory inventory. A nil publisher is allowed.
func NewMemory(publisher Publisher) *Memory {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Memory{
		flights:   make(map[string]*flightSeats),
		publisher: publisher,
	}
}

func (m *Memory) flight(flightID string) (*flightSeats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flights[flightID]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "flight %s not found", flightID)
	}
	return f, nil
}

// mutate runs fn on a seat under the flight lock and publishes the resulting
// state when fn reports a change.
func (m *Memory) mutate(flightID, code string, fn func(seat *models.Seat) (bool, error)) error {
	f, err := m.flight(flightID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	seat, ok := f.seats[code]
	if !ok {
		f.mu.Unlock()
		return errs.Newf(errs.ErrNotFound, "seat %s not found on flight %s", code, flightID)
	}
	changed, err := fn(seat)
	event := models.SeatEvent{FlightID: flightID, Code: code, Status: seat.Status, HeldBy: seat.HeldBy}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if changed {
		m.publisher.PublishSeatEvent(event)
	}
	return nil
}

func (m *Memory) Availability(ctx context.Context, flightID, code string) (bool, error) {
	seat, err := m.Seat(ctx, flightID, code)
	if err != nil {
		return false, err
	}
	return seat.Status == models.SeatStatusAvailable, nil
}

func (m *Memory) Hold(ctx context.Context, flightID, code, holder string) error {
	return m.mutate(flightID, code, func(seat *models.Seat) (bool, error) {
		switch {
		case seat.Status.Disabled():
			return false, errs.Newf(errs.ErrSeatDisabled, "seat %s is %s", code, seat.Status)
		case seat.Status == models.SeatStatusSelected && seat.HeldBy == holder:
			return false, nil
		case seat.Status != models.SeatStatusAvailable:
			return false, errs.ErrSeatUnavailable
		}
		seat.Status = models.SeatStatusSelected
		seat.HeldBy = holder
		return true, nil
	})
}

func (m *Memory) Release(ctx context.Context, flightID, code string) error {
	return m.mutate(flightID, code, func(seat *models.Seat) (bool, error) {
		switch seat.Status {
		case models.SeatStatusMaintenance:
			return false, errs.Newf(errs.ErrSeatDisabled, "seat %s is under maintenance, operator override required", code)
		case models.SeatStatusAvailable:
			return false, nil
		}
		seat.Status = models.SeatStatusAvailable
		seat.HeldBy = ""
		return true, nil
	})
}

func (m *Memory) Commit(ctx context.Context, flightID, code, holder string) error {
	return m.mutate(flightID, code, func(seat *models.Seat) (bool, error) {
		if seat.HeldBy != holder {
			return false, errs.Newf(errs.ErrSeatUnavailable, "seat %s is not held by %s", code, holder)
		}
		switch seat.Status {
		case models.SeatStatusBooked:
			return false, nil
		case models.SeatStatusSelected:
			seat.Status = models.SeatStatusBooked
			return true, nil
		}
		return false, errs.Newf(errs.ErrSeatUnavailable, "seat %s is %s", code, seat.Status)
	})
}

func (m *Memory) Restore(ctx context.Context, flightID, code string, status models.SeatStatus, holder string) error {
	return m.mutate(flightID, code, func(seat *models.Seat) (bool, error) {
		if seat.Status == models.SeatStatusMaintenance {
			return false, errs.Newf(errs.ErrSeatDisabled, "seat %s is under maintenance", code)
		}
		changed := seat.Status != status || seat.HeldBy != holder
		seat.Status = status
		seat.HeldBy = holder
		return changed, nil
	})
}

func (m *Memory) SetMaintenance(ctx context.Context, flightID, code string, on bool) error {
	return m.mutate(flightID, code, func(seat *models.Seat) (bool, error) {
		if on {
			if seat.Status == models.SeatStatusMaintenance {
				return false, nil
			}
			if seat.Status != models.SeatStatusAvailable {
				return false, errs.Newf(errs.ErrSeatUnavailable, "seat %s is %s", code, seat.Status)
			}
			seat.Status = models.SeatStatusMaintenance
			return true, nil
		}
		if seat.Status != models.SeatStatusMaintenance {
			return false, nil
		}
		seat.Status = models.SeatStatusAvailable
		return true, nil
	})
}

func (m *Memory) Seat(ctx context.Context, flightID, code string) (*models.Seat, error) {
	f, err := m.flight(flightID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[code]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "seat %s not found on flight %s", code, flightID)
	}
	cp := *seat
	return &cp, nil
}

func (m *Memory) Seats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	f, err := m.flight(flightID)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	out := make([]*models.Seat, 0, len(f.seats))
	for _, seat := range f.seats {
		cp := *seat
		out = append(out, &cp)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// AddSeats registers seats at aircraft assignment time. Existing seats are left untouched.
func (m *Memory) AddSeats(ctx context.Context, seats []models.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range seats {
		f, ok := m.flights[s.FlightID]
		if !ok {
			f = &flightSeats{seats: make(map[string]*models.Seat)}
			m.flights[s.FlightID] = f
		}
		f.mu.Lock()
		if _, exists := f.seats[s.Code]; !exists {
			seat := s
			if seat.Status == "" {
				seat.Status = models.SeatStatusAvailable
			}
			f.seats[s.Code] = &seat
		}
		f.mu.Unlock()
	}
	return nil
}
