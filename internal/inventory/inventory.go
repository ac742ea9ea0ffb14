// Package inventory owns per-seat state for each flight's cabin map.
//
// Only Available <-> Selected is driven by travelers (through a reservation
// session). Selected -> Booked and the release of seats tied to a payment are
// side effects of payment ledger transitions.
package inventory

import (
	"context"

	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// Inventory is the single source of truth for seat state.
type Inventory interface {
	// Availability re-checks a seat at the moment of selection.
	Availability(ctx context.Context, flightID, code string) (bool, error)
	// Hold moves an available seat to selected for holder. It is a
	// compare-and-swap: of two callers that both saw the seat available,
	// exactly one succeeds.
	Hold(ctx context.Context, flightID, code, holder string) error
	// Release makes a seat available. Idempotent; refused for maintenance seats.
	Release(ctx context.Context, flightID, code string) error
	// Commit moves a seat selected by holder to booked.
	Commit(ctx context.Context, flightID, code, holder string) error
	// Restore forces a seat back to a previous state. Compensation only.
	Restore(ctx context.Context, flightID, code string, status models.SeatStatus, holder string) error

	Seat(ctx context.Context, flightID, code string) (*models.Seat, error)
	Seats(ctx context.Context, flightID string) ([]*models.Seat, error)
	AddSeats(ctx context.Context, seats []models.Seat) error
	// SetMaintenance is the operator override for taking a seat out of service.
	SetMaintenance(ctx context.Context, flightID, code string, on bool) error
}

// Publisher receives every seat state change so all viewers of a flight see it.
type Publisher interface {
	PublishSeatEvent(event models.SeatEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishSeatEvent(models.SeatEvent) {}
