package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// Inventory keeps seat state in Postgres. Every state change is a single
// conditional UPDATE, so the row itself is the compare-and-swap.
type Inventory struct {
	pool      *pgxpool.Pool
	publisher inventory.Publisher
}

var _ inventory.Inventory = (*Inventory)(nil)

// NewInventory creates a Postgres inventory. A nil publisher is allowed.
func NewInventory(pool *pgxpool.Pool, publisher inventory.Publisher) *Inventory {
	return &Inventory{pool: pool, publisher: publisher}
}

const seatColumns = `flight_id, code, class, price, exit_row, status, held_by`

func scanSeat(row pgx.Row) (*models.Seat, error) {
	var s models.Seat
	if err := row.Scan(&s.FlightID, &s.Code, &s.Class, &s.Price, &s.ExitRow, &s.Status, &s.HeldBy); err != nil {
		return nil, err
	}
	return &s, nil
}

func (i *Inventory) publish(flightID, code string, status models.SeatStatus, holder string) {
	if i.publisher == nil {
		return
	}
	i.publisher.PublishSeatEvent(models.SeatEvent{FlightID: flightID, Code: code, Status: status, HeldBy: holder})
}

func (i *Inventory) Seat(ctx context.Context, flightID, code string) (*models.Seat, error) {
	s, err := scanSeat(i.pool.QueryRow(ctx, `
		SELECT `+seatColumns+`
		FROM seats
		WHERE flight_id = $1 AND code = $2
	`, flightID, code))
	if err != nil {
		return nil, notFound(err, "seat %s not found on flight %s", code, flightID)
	}
	return s, nil
}

func (i *Inventory) Seats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	rows, err := i.pool.Query(ctx, `
		SELECT `+seatColumns+`
		FROM seats
		WHERE flight_id = $1
		ORDER BY code
	`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	defer rows.Close()

	var seats []*models.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seats: %w", err)
	}
	if len(seats) == 0 {
		return nil, errs.Newf(errs.ErrNotFound, "flight %s not found", flightID)
	}
	return seats, nil
}

func (i *Inventory) Availability(ctx context.Context, flightID, code string) (bool, error) {
	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return false, err
	}
	return s.Status == models.SeatStatusAvailable, nil
}

func (i *Inventory) Hold(ctx context.Context, flightID, code, holder string) error {
	result, err := i.pool.Exec(ctx, `
		UPDATE seats
		SET status = 'selected', held_by = $3, updated_at = NOW()
		WHERE flight_id = $1 AND code = $2 AND status = 'available'
	`, flightID, code, holder)
	if err != nil {
		return fmt.Errorf("failed to hold seat: %w", err)
	}
	if result.RowsAffected() == 1 {
		i.publish(flightID, code, models.SeatStatusSelected, holder)
		return nil
	}

	// Lost the race or the seat was never available; explain which.
	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return err
	}
	switch {
	case s.Status.Disabled():
		return errs.Newf(errs.ErrSeatDisabled, "seat %s is %s", code, s.Status)
	case s.Status == models.SeatStatusSelected && s.HeldBy == holder:
		return nil
	}
	return errs.ErrSeatUnavailable
}

func (i *Inventory) Release(ctx context.Context, flightID, code string) error {
	result, err := i.pool.Exec(ctx, `
		UPDATE seats
		SET status = 'available', held_by = '', updated_at = NOW()
		WHERE flight_id = $1 AND code = $2 AND status IN ('selected', 'booked')
	`, flightID, code)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if result.RowsAffected() == 1 {
		i.publish(flightID, code, models.SeatStatusAvailable, "")
		return nil
	}

	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return err
	}
	if s.Status == models.SeatStatusMaintenance {
		return errs.Newf(errs.ErrSeatDisabled, "seat %s is under maintenance, operator override required", code)
	}
	return nil
}

func (i *Inventory) Commit(ctx context.Context, flightID, code, holder string) error {
	result, err := i.pool.Exec(ctx, `
		UPDATE seats
		SET status = 'booked', updated_at = NOW()
		WHERE flight_id = $1 AND code = $2 AND status = 'selected' AND held_by = $3
	`, flightID, code, holder)
	if err != nil {
		return fmt.Errorf("failed to commit seat: %w", err)
	}
	if result.RowsAffected() == 1 {
		i.publish(flightID, code, models.SeatStatusBooked, holder)
		return nil
	}

	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return err
	}
	if s.HeldBy != holder {
		return errs.Newf(errs.ErrSeatUnavailable, "seat %s is not held by %s", code, holder)
	}
	if s.Status == models.SeatStatusBooked {
		return nil
	}
	return errs.Newf(errs.ErrSeatUnavailable, "seat %s is %s", code, s.Status)
}

func (i *Inventory) Restore(ctx context.Context, flightID, code string, status models.SeatStatus, holder string) error {
	result, err := i.pool.Exec(ctx, `
		UPDATE seats
		SET status = $3, held_by = $4, updated_at = NOW()
		WHERE flight_id = $1 AND code = $2 AND status <> 'maintenance'
		  AND (status <> $3 OR held_by <> $4)
	`, flightID, code, status, holder)
	if err != nil {
		return fmt.Errorf("failed to restore seat: %w", err)
	}
	if result.RowsAffected() == 1 {
		i.publish(flightID, code, status, holder)
		return nil
	}

	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return err
	}
	if s.Status == models.SeatStatusMaintenance {
		return errs.Newf(errs.ErrSeatDisabled, "seat %s is under maintenance", code)
	}
	return nil
}

func (i *Inventory) SetMaintenance(ctx context.Context, flightID, code string, on bool) error {
	from, to := models.SeatStatusAvailable, models.SeatStatusMaintenance
	if !on {
		from, to = to, from
	}
	result, err := i.pool.Exec(ctx, `
		UPDATE seats
		SET status = $4, updated_at = NOW()
		WHERE flight_id = $1 AND code = $2 AND status = $3
	`, flightID, code, from, to)
	if err != nil {
		return fmt.Errorf("failed to set maintenance: %w", err)
	}
	if result.RowsAffected() == 1 {
		i.publish(flightID, code, to, "")
		return nil
	}

	s, err := i.Seat(ctx, flightID, code)
	if err != nil {
		return err
	}
	if on && s.Status != models.SeatStatusMaintenance {
		return errs.Newf(errs.ErrSeatUnavailable, "seat %s is %s", code, s.Status)
	}
	return nil
}

// AddSeats inserts the cabin map in one transaction. Existing seats are left untouched.
func (i *Inventory) AddSeats(ctx context.Context, seats []models.Seat) error {
	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range seats {
		status := s.Status
		if status == "" {
			status = models.SeatStatusAvailable
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO seats (flight_id, code, class, price, exit_row, status, held_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (flight_id, code) DO NOTHING
		`, s.FlightID, s.Code, s.Class, s.Price, s.ExitRow, status, s.HeldBy)
		if err != nil {
			return fmt.Errorf("failed to add seat %s: %w", s.Code, err)
		}
	}

	return tx.Commit(ctx)
}
