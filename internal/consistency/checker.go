// Package consistency audits bookings against their payments. It never writes.
package consistency

import (
	"context"

	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

type Verdict string

const (
	Consistent   Verdict = "consistent"
	Inconsistent Verdict = "inconsistent"
)

// Source is the read side the checker needs. *ledger.Ledger satisfies it.
type Source interface {
	Booking(ctx context.Context, id string) (*models.Booking, error)
	PaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
}

// Report is a verdict together with the statuses it was based on.
type Report struct {
	BookingID     string               `json:"bookingId"`
	Verdict       Verdict              `json:"verdict"`
	BookingStatus models.BookingStatus `json:"bookingStatus"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
}

type Checker struct {
	source  Source
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewChecker(source Source, log logger.Logger, m *metrics.Metrics) *Checker {
	return &Checker{source: source, log: log, metrics: m}
}

// Check returns Inconsistent when a verified or completed payment sits next
// to a booking that is neither paid nor confirmed. An Inconsistent verdict is
// an alert for operators, not an error. Errors are only returned when the
// booking or payment cannot be read.
func (c *Checker) Check(ctx context.Context, bookingID string) (Verdict, error) {
	r, err := c.Report(ctx, bookingID)
	if err != nil {
		return "", err
	}
	return r.Verdict, nil
}

func (c *Checker) Report(ctx context.Context, bookingID string) (*Report, error) {
	booking, err := c.source.Booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	payment, err := c.source.PaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	r := &Report{
		BookingID:     bookingID,
		Verdict:       Evaluate(booking.Status, payment.Status),
		BookingStatus: booking.Status,
		PaymentStatus: payment.Status,
	}
	if r.Verdict == Inconsistent {
		c.metrics.ConsistencyAlert()
		c.log.Warn("Booking inconsistent with payment",
			"bookingID", bookingID,
			"paymentID", payment.ID,
			"bookingStatus", booking.Status,
			"paymentStatus", payment.Status,
		)
	}
	return r, nil
}

// Evaluate applies the consistency rule to a pair of statuses.
func Evaluate(booking models.BookingStatus, payment models.PaymentStatus) Verdict {
	settled := payment == models.PaymentStatusVerified || payment == models.PaymentStatusCompleted
	if !settled {
		return Consistent
	}
	if booking == models.BookingStatusPaid || booking == models.BookingStatusConfirmed {
		return Consistent
	}
	return Inconsistent
}
