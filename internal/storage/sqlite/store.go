// Package sqlite provides a SQLite-backed payment ledger store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

//go:embed schema.sql
var schema string

// Store persists bookings, payments and booking history in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const paymentColumns = `id, booking_id, amount, currency, status, fraud, refund_amount, refund_date, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                    models.Payment
		fraud                int
		refundAmount         sql.NullFloat64
		refundDate           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Status, &fraud,
		&refundAmount, &refundDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Fraud = fraud != 0
	if refundAmount.Valid && refundDate.Valid {
		p.Refund = &models.RefundRecord{Amount: refundAmount.Float64, Date: fromMillis(refundDate.Int64)}
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Newf(errs.ErrNotFound, format, args...)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking, payment *models.Payment, history string) error {
	seats, err := json.Marshal(booking.Seats)
	if err != nil {
		return fmt.Errorf("encode seats: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (id, flight_id, holder_id, seats, status, customer_email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.FlightID, booking.HolderID, string(seats), string(booking.Status),
		booking.CustomerEmail, toMillis(booking.CreatedAt), toMillis(booking.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, booking_id, amount, currency, status, fraud, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.BookingID, payment.Amount, payment.Currency, string(payment.Status),
		boolToInt(payment.Fraud), toMillis(payment.CreatedAt), toMillis(payment.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := insertHistory(ctx, tx, booking.ID, history, booking.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := scanPayment(s.sqlDB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "payment %s not found", id)
	}
	return p, nil
}

func (s *Store) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	p, err := scanPayment(s.sqlDB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID))
	if err != nil {
		return nil, notFound(err, "no payment for booking %s", bookingID)
	}
	return p, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var (
		b                    models.Booking
		seats                string
		createdAt, updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, flight_id, holder_id, seats, status, customer_email, created_at, updated_at
		 FROM bookings WHERE id = ?`, id,
	).Scan(&b.ID, &b.FlightID, &b.HolderID, &seats, &b.Status, &b.CustomerEmail, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err, "booking %s not found", id)
	}
	if err := json.Unmarshal([]byte(seats), &b.Seats); err != nil {
		return nil, fmt.Errorf("decode seats: %w", err)
	}
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAt)
	return &b, nil
}

func (s *Store) ListPayments(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) ApplyTransition(ctx context.Context, u ledger.Update) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var refundAmount sql.NullFloat64
	var refundDate sql.NullInt64
	if u.Refund != nil {
		refundAmount = sql.NullFloat64{Float64: u.Refund.Amount, Valid: true}
		refundDate = sql.NullInt64{Int64: toMillis(u.Refund.Date), Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET status = ?,
		     fraud = MAX(fraud, ?),
		     refund_amount = COALESCE(?, refund_amount),
		     refund_date = COALESCE(?, refund_date),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(u.To), boolToInt(u.Fraud), refundAmount, refundDate, toMillis(u.At),
		u.PaymentID, string(u.From),
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if affected == 0 {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM payments WHERE id = ?`, u.PaymentID).Scan(&n); err != nil {
			return fmt.Errorf("check payment: %w", err)
		}
		if n == 0 {
			return errs.Newf(errs.ErrNotFound, "payment %s not found", u.PaymentID)
		}
		return ledger.ErrStaleStatus
	}

	if u.BookingStatus != "" {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
			string(u.BookingStatus), toMillis(u.At), u.BookingID,
		)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return errs.Newf(errs.ErrNotFound, "booking %s not found", u.BookingID)
		}
	}

	if err := insertHistory(ctx, tx, u.BookingID, u.History, u.At); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendHistory(ctx context.Context, bookingID, entry string, at time.Time) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM bookings WHERE id = ?`, bookingID).Scan(&n); err != nil {
		return fmt.Errorf("check booking: %w", err)
	}
	if n == 0 {
		return errs.Newf(errs.ErrNotFound, "booking %s not found", bookingID)
	}
	if err := insertHistory(ctx, tx, bookingID, entry, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) History(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	if _, err := s.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT booking_id, entry, created_at FROM booking_history WHERE booking_id = ? ORDER BY id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryEntry
	for rows.Next() {
		var (
			h  models.HistoryEntry
			at int64
		)
		if err := rows.Scan(&h.BookingID, &h.Entry, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.CreatedAt = fromMillis(at)
		history = append(history, h)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, bookingID, entry string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO booking_history (booking_id, entry, created_at) VALUES (?, ?, ?)`,
		bookingID, entry, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}
