package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// ErrStaleStatus is returned by a Store when the payment no longer has the
// status a transition was planned from.
var ErrStaleStatus = errors.New("payment status changed concurrently")

// Update is one transition as the store must persist it: the payment status
// write, the booking status write and the audit line, all or nothing.
type Update struct {
	PaymentID     string
	From          models.PaymentStatus
	To            models.PaymentStatus
	Fraud         bool
	Refund        *models.RefundRecord
	BookingID     string
	BookingStatus models.BookingStatus
	History       string
	At            time.Time
}

// Store persists bookings, payments and the append-only booking history.
type Store interface {
	// CreateBooking inserts a booking, its pending payment and the first history line.
	CreateBooking(ctx context.Context, booking *models.Booking, payment *models.Payment, history string) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// ListPayments returns payments in the given status, oldest first.
	ListPayments(ctx context.Context, status models.PaymentStatus) ([]*models.Payment, error)
	// ApplyTransition writes u atomically. It returns ErrStaleStatus when the
	// stored status is not u.From.
	ApplyTransition(ctx context.Context, u Update) error
	AppendHistory(ctx context.Context, bookingID, entry string, at time.Time) error
	History(ctx context.Context, bookingID string) ([]models.HistoryEntry, error)
}
