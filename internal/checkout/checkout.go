// Package checkout turns a reservation session into a paid booking.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/gateway"
	"github.com/cx-tal-miterani/flight-reservation/internal/idempotency"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
	"github.com/cx-tal-miterani/flight-reservation/internal/telemetry"
)

// DefaultPaymentTimeout is how long a payment may stay pending before it is failed.
const DefaultPaymentTimeout = 10 * time.Minute

// Actors recorded in the booking history for automated transitions.
const (
	ActorGateway = "payment-gateway"
	ActorTimeout = "payment-timeout"
)

// PaymentScheduler arranges for ExpirePayment to run when a pending payment times out.
type PaymentScheduler interface {
	SchedulePaymentTimeout(ctx context.Context, paymentID string, at time.Time) error
}

type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeInFlight Outcome = "in_flight"
)

type Request struct {
	SessionID     string `json:"sessionId"`
	CustomerEmail string `json:"customerEmail"`
	Currency      string `json:"currency"`
}

type Receipt struct {
	Outcome Outcome         `json:"outcome"`
	Payment *models.Payment `json:"payment,omitempty"`
	Booking *models.Booking `json:"booking,omitempty"`
}

type Service struct {
	sessions  *reservation.Manager
	inv       inventory.Inventory
	ledger    *ledger.Ledger
	gateway   gateway.Gateway
	guard     *idempotency.Guard
	scheduler PaymentScheduler
	timeout   time.Duration
	log       logger.Logger
	now       func() time.Time
}

func NewService(sessions *reservation.Manager, inv inventory.Inventory, l *ledger.Ledger, gw gateway.Gateway, timeout time.Duration, log logger.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultPaymentTimeout
	}
	return &Service{
		sessions: sessions,
		inv:      inv,
		ledger:   l,
		gateway:  gw,
		guard:    idempotency.NewGuard(),
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// SetScheduler installs the payment timeout scheduler.
func (s *Service) SetScheduler(p PaymentScheduler) {
	s.scheduler = p
}

// Submit hands the session's seats to a new pending booking and charges the
// customer. On a gateway failure the payment stays pending and the error
// carries GATEWAY_ERROR; Retry charges it again. A second Submit for a session
// that is still being submitted does nothing, and every charge of one payment
// shares a guard key with Retry.
func (s *Service) Submit(ctx context.Context, req Request) (*Receipt, error) {
	if req.CustomerEmail == "" {
		return nil, errs.Newf(errs.ErrInvalidRequest, "customer email is required")
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	release, ok := s.guard.TryAcquire("checkout:" + req.SessionID)
	if !ok {
		return &Receipt{Outcome: OutcomeInFlight}, nil
	}
	defer release()

	ctx, span := telemetry.Tracer().Start(ctx, "checkout.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	seats, err := sess.Handoff(ctx)
	if err != nil {
		return nil, err
	}

	amount, err := s.price(ctx, sess.FlightID(), seats)
	if err != nil {
		s.releaseSeats(ctx, sess.FlightID(), seats)
		return nil, err
	}

	payment, booking, err := s.ledger.Create(ctx, ledger.NewBooking{
		FlightID:      sess.FlightID(),
		HolderID:      sess.ID(),
		Seats:         seats,
		CustomerEmail: req.CustomerEmail,
		Amount:        amount,
		Currency:      req.Currency,
	}, req.CustomerEmail)
	if err != nil {
		s.releaseSeats(ctx, sess.FlightID(), seats)
		return nil, err
	}

	releasePayment, ok := s.guard.TryAcquire(paymentKey(payment.ID))
	if !ok {
		return &Receipt{Outcome: OutcomeInFlight, Payment: payment, Booking: booking}, nil
	}
	defer releasePayment()

	if s.scheduler != nil {
		if err := s.scheduler.SchedulePaymentTimeout(ctx, payment.ID, s.now().Add(s.timeout)); err != nil {
			s.log.Warn("Failed to schedule payment timeout", "paymentID", payment.ID, "error", err)
		}
	}

	receipt, err := s.charge(ctx, payment, booking)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return receipt, err
}

// Retry charges a pending or failed payment again. A failed payment is first
// reopened, which re-holds its seats.
func (s *Service) Retry(ctx context.Context, paymentID string) (*Receipt, error) {
	release, ok := s.guard.TryAcquire(paymentKey(paymentID))
	if !ok {
		return &Receipt{Outcome: OutcomeInFlight}, nil
	}
	defer release()

	payment, err := s.ledger.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusFailed {
		if payment, err = s.ledger.Transition(ctx, paymentID, models.PaymentStatusPending, ActorGateway); err != nil {
			return nil, err
		}
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, errs.Newf(errs.ErrInvalidTransition, "payment %s is %s and cannot be charged", paymentID, payment.Status)
	}

	booking, err := s.ledger.Booking(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	return s.charge(ctx, payment, booking)
}

// charge must run under the payment's guard key.
func (s *Service) charge(ctx context.Context, payment *models.Payment, booking *models.Booking) (*Receipt, error) {
	if err := s.gateway.Charge(ctx, booking.ID, payment.Amount); err != nil {
		s.log.Warn("Charge failed, payment left pending", "paymentID", payment.ID, "error", err)
		if errs.CodeOf(err) != errs.CodeGatewayError {
			err = errs.Wrap(errs.ErrGateway, err)
		}
		return &Receipt{Payment: payment, Booking: booking}, err
	}

	verified, err := s.ledger.Transition(ctx, payment.ID, models.PaymentStatusVerified, ActorGateway,
		ledger.WithExpectedFrom(models.PaymentStatusPending))
	if err != nil {
		s.reverseCharge(ctx, payment, booking)
		if errors.Is(err, errs.ErrPaymentChanged) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to verify charged payment: %w", err)
	}
	booking, err = s.ledger.Booking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	return &Receipt{Outcome: OutcomePaid, Payment: verified, Booking: booking}, nil
}

// reverseCharge returns money taken for a payment the ledger would not verify,
// for example one that timed out while the gateway call was running.
func (s *Service) reverseCharge(ctx context.Context, payment *models.Payment, booking *models.Booking) {
	entry := "Charge reversed by " + ActorGateway
	if err := s.gateway.Refund(ctx, booking.ID, payment.Amount); err != nil {
		s.log.Error("Failed to reverse charge for unverified payment", "paymentID", payment.ID, "bookingID", booking.ID, "amount", payment.Amount, "error", err)
		entry = "Charge reversal failed by " + ActorGateway
	} else {
		s.log.Warn("Reversed charge for unverified payment", "paymentID", payment.ID, "bookingID", booking.ID, "amount", payment.Amount)
	}
	if err := s.ledger.AppendHistory(ctx, booking.ID, entry); err != nil {
		s.log.Error("Failed to record charge reversal", "bookingID", booking.ID, "error", err)
	}
}

func paymentKey(paymentID string) string {
	return "checkout:payment:" + paymentID
}

// ErrChargeInFlight is returned by ExpirePayment while the payment is being
// charged; the timeout should be tried again later.
var ErrChargeInFlight = errors.New("payment charge in flight")

// ExpirePayment fails a payment that is still pending. Payments that moved
// on in the meantime are left alone.
func (s *Service) ExpirePayment(ctx context.Context, paymentID string) error {
	if s.guard.InFlight(paymentKey(paymentID)) {
		return ErrChargeInFlight
	}
	payment, err := s.ledger.Payment(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil
	}
	_, err = s.ledger.Transition(ctx, paymentID, models.PaymentStatusFailed, ActorTimeout,
		ledger.WithReason("payment timed out"),
		ledger.WithExpectedFrom(models.PaymentStatusPending))
	if errors.Is(err, errs.ErrInvalidTransition) || errors.Is(err, errs.ErrPaymentChanged) {
		return nil
	}
	return err
}

// Sweep fails pending payments older than the timeout and returns how many it failed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	pending, err := s.ledger.PendingPayments(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.timeout)
	failed := 0
	for _, p := range pending {
		if p.CreatedAt.After(cutoff) {
			break
		}
		if err := s.ExpirePayment(ctx, p.ID); err != nil {
			if errors.Is(err, ErrChargeInFlight) {
				s.log.Debug("Payment is being charged, expiring it on a later sweep", "paymentID", p.ID)
				continue
			}
			s.log.Error("Failed to expire payment", "paymentID", p.ID, "error", err)
			continue
		}
		failed++
	}
	return failed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("Payment sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) price(ctx context.Context, flightID string, seats []string) (float64, error) {
	var total float64
	for _, code := range seats {
		seat, err := s.inv.Seat(ctx, flightID, code)
		if err != nil {
			return 0, err
		}
		total += seat.Price
	}
	return total, nil
}

func (s *Service) releaseSeats(ctx context.Context, flightID string, seats []string) {
	for _, code := range seats {
		if err := s.inv.Release(ctx, flightID, code); err != nil {
			s.log.Error("Failed to release seat after checkout error", "flightID", flightID, "seat", code, "error", err)
		}
	}
}
