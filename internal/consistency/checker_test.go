package consistency

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

type fakeSource struct {
	booking *models.Booking
	payment *models.Payment
}

func (f *fakeSource) Booking(ctx context.Context, id string) (*models.Booking, error) {
	if f.booking == nil || f.booking.ID != id {
		return nil, errs.ErrNotFound
	}
	cp := *f.booking
	return &cp, nil
}

func (f *fakeSource) PaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	if f.payment == nil || f.payment.BookingID != bookingID {
		return nil, errs.ErrNotFound
	}
	cp := *f.payment
	return &cp, nil
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		booking models.BookingStatus
		payment models.PaymentStatus
		want    Verdict
	}{
		{models.BookingStatusConfirmed, models.PaymentStatusVerified, Consistent},
		{models.BookingStatusPaid, models.PaymentStatusVerified, Consistent},
		{models.BookingStatusPaid, models.PaymentStatusCompleted, Consistent},
		{models.BookingStatusPending, models.PaymentStatusVerified, Inconsistent},
		{models.BookingStatusRefunded, models.PaymentStatusVerified, Inconsistent},
		{models.BookingStatusCancelled, models.PaymentStatusCompleted, Inconsistent},
		{models.BookingStatusPending, models.PaymentStatusPending, Consistent},
		{models.BookingStatusConfirmed, models.PaymentStatusFailed, Consistent},
		{models.BookingStatusRefunded, models.PaymentStatusRefunded, Consistent},
	}

	for _, tt := range tests {
		t.Run(string(tt.booking)+"/"+string(tt.payment), func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.booking, tt.payment))
		})
	}
}

func TestCheck_FlagsAndCounts(t *testing.T) {
	src := &fakeSource{
		booking: &models.Booking{ID: "b1", Status: models.BookingStatusPending},
		payment: &models.Payment{ID: "p1", BookingID: "b1", Status: models.PaymentStatusVerified},
	}
	m := metrics.NewMetrics()
	c := NewChecker(src, logger.NewNop(), m)

	verdict, err := c.Check(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, Inconsistent, verdict)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencyAlerts))

	// read-only: the source is untouched
	assert.Equal(t, models.BookingStatusPending, src.booking.Status)
	assert.Equal(t, models.PaymentStatusVerified, src.payment.Status)

	src.booking.Status = models.BookingStatusConfirmed
	report, err := c.Report(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, &Report{
		BookingID:     "b1",
		Verdict:       Consistent,
		BookingStatus: models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusVerified,
	}, report)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencyAlerts))
}

func TestCheck_MissingRecords(t *testing.T) {
	c := NewChecker(&fakeSource{}, logger.NewNop(), nil)
	_, err := c.Check(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
