package ledger

import (
	"context"
	"fmt"

	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// compensations undo applied seat changes, most recent first.
type compensations []func(context.Context) error

func (c compensations) run(ctx context.Context, log logger.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			log.Error("Seat compensation failed", "error", err)
		}
	}
}

// applySeats performs the seat side effect of a transition for every seat of
// the booking. If any seat fails, the seats already changed are put back and
// the error is returned.
func (l *Ledger) applySeats(ctx context.Context, booking *models.Booking, kind seatEffect) (compensations, error) {
	var comp compensations
	if kind == seatsUnaffected {
		return comp, nil
	}

	flight, holder := booking.FlightID, booking.HolderID
	for _, code := range booking.Seats {
		seat, err := l.inv.Seat(ctx, flight, code)
		if err != nil {
			comp.run(ctx, l.log)
			return nil, err
		}
		prevStatus, prevHolder := seat.Status, seat.HeldBy

		switch kind {
		case seatsBook:
			if seat.Status == models.SeatStatusBooked && seat.HeldBy == holder {
				continue
			}
			if seat.Status != models.SeatStatusSelected || seat.HeldBy != holder {
				if err := l.inv.Hold(ctx, flight, code, holder); err != nil {
					comp.run(ctx, l.log)
					return nil, fmt.Errorf("seat %s: %w", code, err)
				}
				comp = append(comp, l.restore(flight, code, prevStatus, prevHolder))
			}
			if err := l.inv.Commit(ctx, flight, code, holder); err != nil {
				comp.run(ctx, l.log)
				return nil, fmt.Errorf("seat %s: %w", code, err)
			}
			comp = append(comp, l.restore(flight, code, models.SeatStatusSelected, holder))

		case seatsRelease:
			// a seat someone else holds now is not ours to release
			if seat.HeldBy != holder || seat.Status == models.SeatStatusAvailable {
				continue
			}
			if err := l.inv.Release(ctx, flight, code); err != nil {
				comp.run(ctx, l.log)
				return nil, fmt.Errorf("seat %s: %w", code, err)
			}
			comp = append(comp, l.restore(flight, code, prevStatus, prevHolder))

		case seatsRehold:
			if seat.Status == models.SeatStatusSelected && seat.HeldBy == holder {
				continue
			}
			if err := l.inv.Hold(ctx, flight, code, holder); err != nil {
				comp.run(ctx, l.log)
				return nil, fmt.Errorf("seat %s: %w", code, err)
			}
			comp = append(comp, l.restore(flight, code, prevStatus, prevHolder))
		}
	}
	return comp, nil
}

func (l *Ledger) restore(flight, code string, status models.SeatStatus, holder string) func(context.Context) error {
	return func(ctx context.Context) error {
		if status == models.SeatStatusAvailable {
			return l.inv.Release(ctx, flight, code)
		}
		return l.inv.Restore(ctx, flight, code, status, holder)
	}
}
