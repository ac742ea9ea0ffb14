package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/consistency"
	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/gateway/mocks"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/refund"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
)

func setupService(t *testing.T) (*Service, *mocks.MockGateway) {
	t.Helper()
	log := logger.NewNop()
	inv := inventory.NewMemory(nil)
	sessions := reservation.NewManager(inv)
	l := ledger.New(ledger.NewMemoryStore(), inv)
	gw := &mocks.MockGateway{}

	svc := NewBookingService(Deps{
		Inventory: inv,
		Sessions:  sessions,
		Ledger:    l,
		Checkout:  checkout.NewService(sessions, inv, l, gw, time.Minute, log),
		Checker:   consistency.NewChecker(l, log, nil),
		Refunds:   refund.NewProcessor(l, gw, refund.DefaultPolicy(), log, nil),
	})
	require.NoError(t, svc.SeedDemoFlights(context.Background(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	return svc, gw
}

func TestService_Catalog(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	flights := svc.GetFlights(ctx)
	require.Len(t, flights, 3)
	assert.Equal(t, "FL003", flights[0].ID, "sorted by departure")

	_, err := svc.GetFlight(ctx, "FL999")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	seats, err := svc.GetSeats(ctx, "FL001")
	require.NoError(t, err)
	assert.Len(t, seats, 120)

	require.NoError(t, svc.SetSeatMaintenance(ctx, "FL001", "5C", true))
	seats, err = svc.GetSeats(ctx, "FL001")
	require.NoError(t, err)
	for _, s := range seats {
		if s.Code == "5C" {
			assert.Equal(t, models.SeatStatusMaintenance, s.Status)
		}
	}
}

func TestService_BookThenRefund(t *testing.T) {
	svc, gw := setupService(t)
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "FL002", 2)
	require.NoError(t, err)
	_, err = svc.SelectSeat(ctx, snap.ID, "1A")
	require.NoError(t, err)
	snap, err = svc.SelectSeat(ctx, snap.ID, "10B")
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "10B"}, snap.Held)

	gw.On("Charge", mock.Anything, mock.Anything, 600.0).Return(nil).Once()
	receipt, err := svc.Checkout(ctx, checkout.Request{SessionID: snap.ID, CustomerEmail: "t@example.com"})
	require.NoError(t, err)
	bookingID := receipt.Booking.ID

	report, err := svc.CheckConsistency(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, consistency.Consistent, report.Verdict)

	req := models.RefundRequest{
		ID: "r1", BookingID: bookingID, CustomerEmail: "t@example.com",
		TicketType: models.TicketTypeFlex, TicketStatus: models.TicketStatusIssued,
		PaidAmount: 600, RequestedAmount: 600,
	}
	quote, err := svc.QuoteRefund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 600.0, quote)

	gw.On("Refund", mock.Anything, bookingID, 600.0).Return(nil).Once()
	result, err := svc.ApproveRefund(ctx, req, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, refund.OutcomeRefunded, result.Outcome)

	_, err = svc.TransitionPayment(ctx, receipt.Payment.ID, models.PaymentStatusPending, "agent-7")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	history, err := svc.GetHistory(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, "Refunded by agent-7", history[len(history)-1].Entry)
	gw.AssertExpectations(t)
}

func TestService_SkipReleasesSeats(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "FL001", 1)
	require.NoError(t, err)
	_, err = svc.SelectSeat(ctx, snap.ID, "7D")
	require.NoError(t, err)

	snap, err = svc.SkipSession(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StateSkipped, snap.State)
	assert.Empty(t, snap.Held)

	_, err = svc.SelectSeat(ctx, snap.ID, "7E")
	assert.ErrorIs(t, err, errs.ErrSessionExpired)

	_, err = svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
