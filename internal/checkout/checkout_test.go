package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/gateway/mocks"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
)

const testFlight = "FL400"

type testEnv struct {
	now      time.Time
	svc      *Service
	sessions *reservation.Manager
	inv      *inventory.Memory
	ledger   *ledger.Ledger
	gateway  *mocks.MockGateway
}

func setupCheckout(t *testing.T) *testEnv {
	t.Helper()
	inv := inventory.NewMemory(nil)
	layout := inventory.CabinLayout{Rows: 4, Columns: []string{"A", "B"}, BusinessRows: 1, EconomyPrice: 100, BusinessPrice: 400}
	require.NoError(t, inv.AddSeats(context.Background(), inventory.SeatMap(testFlight, layout)))

	env := &testEnv{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.sessions = reservation.NewManager(inv, reservation.WithClock(clock))
	env.ledger = ledger.New(ledger.NewMemoryStore(), inv, ledger.WithClock(clock))
	env.gateway = &mocks.MockGateway{}
	env.inv = inv
	env.svc = NewService(env.sessions, inv, env.ledger, env.gateway, time.Minute, logger.NewNop())
	env.svc.now = clock
	return env
}

func (e *testEnv) sessionWith(t *testing.T, seats ...string) *reservation.Session {
	t.Helper()
	s, err := e.sessions.Create(context.Background(), testFlight, len(seats))
	require.NoError(t, err)
	for _, code := range seats {
		require.NoError(t, s.SelectSeat(context.Background(), code))
	}
	return s
}

func (e *testEnv) seatStatus(t *testing.T, code string) models.SeatStatus {
	t.Helper()
	seat, err := e.inv.Seat(context.Background(), testFlight, code)
	require.NoError(t, err)
	return seat.Status
}

func TestSubmit_ChargesAndBooks(t *testing.T) {
	env := setupCheckout(t)
	s := env.sessionWith(t, "1A", "3B")
	env.gateway.On("Charge", mock.Anything, mock.Anything, 500.0).Return(nil).Once()

	receipt, err := env.svc.Submit(context.Background(), Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, receipt.Outcome)
	assert.Equal(t, models.PaymentStatusVerified, receipt.Payment.Status)
	assert.Equal(t, "USD", receipt.Payment.Currency)
	assert.Equal(t, models.BookingStatusConfirmed, receipt.Booking.Status)
	assert.Equal(t, s.ID(), receipt.Booking.HolderID)
	assert.Equal(t, reservation.StateHandedOff, s.State())

	assert.Equal(t, models.SeatStatusBooked, env.seatStatus(t, "1A"))
	assert.Equal(t, models.SeatStatusBooked, env.seatStatus(t, "3B"))
	env.gateway.AssertExpectations(t)
}

func TestSubmit_GatewayFailureLeavesPendingThenRetry(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	s := env.sessionWith(t, "2A")

	env.gateway.On("Charge", mock.Anything, mock.Anything, 100.0).Return(errs.Newf(errs.ErrGateway, "charge declined by provider")).Once()

	receipt, err := env.svc.Submit(ctx, Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGateway)
	require.NotNil(t, receipt)
	assert.Equal(t, models.PaymentStatusPending, receipt.Payment.Status)
	assert.Equal(t, models.SeatStatusSelected, env.seatStatus(t, "2A"))

	env.gateway.On("Charge", mock.Anything, mock.Anything, 100.0).Return(nil).Once()
	receipt, err = env.svc.Retry(ctx, receipt.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusVerified, receipt.Payment.Status)
	assert.Equal(t, models.SeatStatusBooked, env.seatStatus(t, "2A"))
}

func TestSubmit_Rejections(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, Request{SessionID: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	_, err = env.svc.Submit(ctx, Request{SessionID: "missing", CustomerEmail: "t@example.com"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	empty, err := env.sessions.Create(ctx, testFlight, 1)
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, Request{SessionID: empty.ID(), CustomerEmail: "t@example.com"})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	env.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_DoubleSubmitIsNoop(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	s := env.sessionWith(t, "4A")

	release := make(chan time.Time)
	env.gateway.On("Charge", mock.Anything, mock.Anything, 100.0).WaitUntil(release).Return(nil).Once()

	var (
		wg    sync.WaitGroup
		first *Receipt
		err   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, err = env.svc.Submit(ctx, Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
	}()

	assert.Eventually(t, func() bool {
		return env.svc.guard.InFlight("checkout:" + s.ID())
	}, time.Second, 5*time.Millisecond)

	second, secondErr := env.svc.Submit(ctx, Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
	require.NoError(t, secondErr)
	assert.Equal(t, OutcomeInFlight, second.Outcome)

	close(release)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, first.Outcome)
	env.gateway.AssertNumberOfCalls(t, "Charge", 1)
}

// submitBlocked starts a Submit whose gateway charge waits on the returned
// channel and returns the pending payment once the charge is in progress.
func (e *testEnv) submitBlocked(t *testing.T, seat string) (*models.Payment, chan time.Time, <-chan submitResult) {
	t.Helper()
	ctx := context.Background()
	s := e.sessionWith(t, seat)

	gate := make(chan time.Time)
	e.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything).WaitUntil(gate).Return(nil).Once()

	done := make(chan submitResult, 1)
	go func() {
		receipt, err := e.svc.Submit(ctx, Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
		done <- submitResult{receipt: receipt, err: err}
	}()

	var payment *models.Payment
	require.Eventually(t, func() bool {
		pending, err := e.ledger.PendingPayments(ctx)
		if err != nil || len(pending) != 1 {
			return false
		}
		payment = pending[0]
		return e.svc.guard.InFlight(paymentKey(payment.ID))
	}, time.Second, 5*time.Millisecond)
	return payment, gate, done
}

type submitResult struct {
	receipt *Receipt
	err     error
}

func TestRetry_WhileSubmitChargingIsNoop(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	payment, gate, done := env.submitBlocked(t, "1B")

	receipt, err := env.svc.Retry(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInFlight, receipt.Outcome)

	close(gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, OutcomePaid, res.receipt.Outcome)
	env.gateway.AssertNumberOfCalls(t, "Charge", 1)
	assert.Equal(t, models.SeatStatusBooked, env.seatStatus(t, "1B"))
}

func TestExpirePayment_WaitsForChargeInFlight(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	payment, gate, done := env.submitBlocked(t, "2B")

	err := env.svc.ExpirePayment(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrChargeInFlight)

	close(gate)
	res := <-done
	require.NoError(t, res.err)

	p, err := env.ledger.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusVerified, p.Status)
}

func TestSubmit_PaymentFailedDuringChargeIsReversed(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	payment, gate, done := env.submitBlocked(t, "3B")
	env.gateway.On("Refund", mock.Anything, payment.BookingID, payment.Amount).Return(nil).Once()

	// the timeout lands while the gateway is still charging
	_, err := env.ledger.Transition(ctx, payment.ID, models.PaymentStatusFailed, ActorTimeout)
	require.NoError(t, err)
	require.NoError(t, env.inv.Hold(ctx, testFlight, "3B", "another-session"))

	close(gate)
	res := <-done
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, errs.ErrPaymentChanged)

	p, err := env.ledger.Payment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)

	seat, err := env.inv.Seat(ctx, testFlight, "3B")
	require.NoError(t, err)
	assert.Equal(t, models.SeatStatusSelected, seat.Status)
	assert.Equal(t, "another-session", seat.HeldBy)

	history, err := env.ledger.History(ctx, payment.BookingID)
	require.NoError(t, err)
	entries := make([]string, len(history))
	for i, h := range history {
		entries[i] = h.Entry
	}
	assert.Equal(t, []string{
		"Created by t@example.com",
		"Failed by " + ActorTimeout,
		"Charge reversed by " + ActorGateway,
	}, entries)
	env.gateway.AssertExpectations(t)
}

func TestExpirePayment(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()
	s := env.sessionWith(t, "3A")

	env.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything).Return(errs.ErrGateway).Once()
	receipt, err := env.svc.Submit(ctx, Request{SessionID: s.ID(), CustomerEmail: "t@example.com"})
	require.Error(t, err)

	require.NoError(t, env.svc.ExpirePayment(ctx, receipt.Payment.ID))
	p, err := env.ledger.Payment(ctx, receipt.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, models.SeatStatusAvailable, env.seatStatus(t, "3A"))

	// already failed: nothing to do
	require.NoError(t, env.svc.ExpirePayment(ctx, receipt.Payment.ID))

	history, err := env.ledger.History(ctx, receipt.Payment.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "Failed by "+ActorTimeout, history[len(history)-1].Entry)
}

func TestSweep_FailsOnlyOverduePayments(t *testing.T) {
	env := setupCheckout(t)
	ctx := context.Background()

	env.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything).Return(errs.ErrGateway)
	old, _ := env.svc.Submit(ctx, Request{SessionID: env.sessionWith(t, "2B").ID(), CustomerEmail: "t@example.com"})
	env.now = env.now.Add(45 * time.Second)
	fresh, _ := env.svc.Submit(ctx, Request{SessionID: env.sessionWith(t, "3B").ID(), CustomerEmail: "t@example.com"})
	env.now = env.now.Add(30 * time.Second)

	n, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := env.ledger.Payment(ctx, old.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)

	p, err = env.ledger.Payment(ctx, fresh.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
}
