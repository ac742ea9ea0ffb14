package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// LedgerStore persists bookings, payments and booking history in Postgres.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const paymentColumns = `id, booking_id, amount, currency, status, fraud, refund_amount, refund_date, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p            models.Payment
		refundAmount *float64
		refundDate   *time.Time
	)
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Status, &p.Fraud,
		&refundAmount, &refundDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refundAmount != nil && refundDate != nil {
		p.Refund = &models.RefundRecord{Amount: *refundAmount, Date: *refundDate}
	}
	return &p, nil
}

// CreateBooking inserts the booking, its payment and the first history line in one transaction.
func (s *LedgerStore) CreateBooking(ctx context.Context, booking *models.Booking, payment *models.Payment, history string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, flight_id, holder_id, seats, status, customer_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, booking.ID, booking.FlightID, booking.HolderID, booking.Seats, booking.Status,
		booking.CustomerEmail, booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, amount, currency, status, fraud, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.BookingID, payment.Amount, payment.Currency, payment.Status,
		payment.Fraud, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if err := insertHistory(ctx, tx, booking.ID, history, booking.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *LedgerStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment %s not found", id)
	}
	return p, nil
}

func (s *LedgerStore) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID))
	if err != nil {
		return nil, notFound(err, "no payment for booking %s", bookingID)
	}
	return p, nil
}

func (s *LedgerStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := s.pool.QueryRow(ctx, `
		SELECT id, flight_id, holder_id, seats, status, customer_email, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(&b.ID, &b.FlightID, &b.HolderID, &b.Seats, &b.Status, &b.CustomerEmail, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "booking %s not found", id)
	}
	return &b, nil
}

func (s *LedgerStore) ListPayments(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ApplyTransition updates the payment only if it still has status u.From,
// then the booking and history in the same transaction.
func (s *LedgerStore) ApplyTransition(ctx context.Context, u ledger.Update) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var refundAmount *float64
	var refundDate *time.Time
	if u.Refund != nil {
		refundAmount, refundDate = &u.Refund.Amount, &u.Refund.Date
	}

	result, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $3,
		    fraud = fraud OR $4,
		    refund_amount = COALESCE($5, refund_amount),
		    refund_date = COALESCE($6, refund_date),
		    updated_at = $7
		WHERE id = $1 AND status = $2
	`, u.PaymentID, u.From, u.To, u.Fraud, refundAmount, refundDate, u.At)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, u.PaymentID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check payment: %w", err)
		}
		if !exists {
			return errs.Newf(errs.ErrNotFound, "payment %s not found", u.PaymentID)
		}
		return ledger.ErrStaleStatus
	}

	if u.BookingStatus != "" {
		result, err := tx.Exec(ctx, `
			UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1
		`, u.BookingID, u.BookingStatus, u.At)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if result.RowsAffected() == 0 {
			return errs.Newf(errs.ErrNotFound, "booking %s not found", u.BookingID)
		}
	}

	if err := insertHistory(ctx, tx, u.BookingID, u.History, u.At); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *LedgerStore) AppendHistory(ctx context.Context, bookingID, entry string, at time.Time) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, bookingID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	if !exists {
		return errs.Newf(errs.ErrNotFound, "booking %s not found", bookingID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO booking_history (booking_id, entry, created_at) VALUES ($1, $2, $3)
	`, bookingID, entry, at)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *LedgerStore) History(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	if _, err := s.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT booking_id, entry, created_at
		FROM booking_history
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.BookingID, &h.Entry, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, bookingID, entry string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_history (booking_id, entry, created_at) VALUES ($1, $2, $3)
	`, bookingID, entry, at)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}
