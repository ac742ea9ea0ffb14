// Package ledger owns payment status. Transition is the only code path that
// changes it, and each transition carries its seat side effects with it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/notify"
	"github.com/cx-tal-miterani/flight-reservation/internal/telemetry"
)

type Ledger struct {
	store    Store
	inv      inventory.Inventory
	notifier notify.Notifier
	log      logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	locks    *keyedMutex
}

type Option func(*Ledger)

func WithNotifier(n notify.Notifier) Option { return func(l *Ledger) { l.notifier = n } }

func WithLogger(log logger.Logger) Option { return func(l *Ledger) { l.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(store Store, inv inventory.Inventory, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		inv:   inv,
		log:   logger.NewNop(),
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.notifier == nil {
		l.notifier = notify.NewLogNotifier(l.log)
	}
	return l
}

// NewBooking is what a session hands off when the traveler submits payment.
type NewBooking struct {
	FlightID      string
	HolderID      string
	Seats         []string
	CustomerEmail string
	Amount        float64
	Currency      string
}

// Create opens a pending booking and its pending payment.
func (l *Ledger) Create(ctx context.Context, in NewBooking, actor string) (*models.Payment, *models.Booking, error) {
	if math.IsNaN(in.Amount) || in.Amount < 0 {
		return nil, nil, errs.Newf(errs.ErrInvalidAmount, "payment amount must be a non-negative number")
	}

	now := l.now()
	booking := &models.Booking{
		ID:            uuid.New().String(),
		FlightID:      in.FlightID,
		HolderID:      in.HolderID,
		Seats:         append([]string(nil), in.Seats...),
		Status:        models.BookingStatusPending,
		CustomerEmail: in.CustomerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payment := &models.Payment{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.store.CreateBooking(ctx, booking, payment, "Created by "+actor); err != nil {
		return nil, nil, fmt.Errorf("failed to create booking: %w", err)
	}

	l.log.Info("Booking created", "bookingID", booking.ID, "paymentID", payment.ID, "seats", booking.Seats, "amount", in.Amount)
	return payment, booking, nil
}

type transitionParams struct {
	refundAmount *float64
	reason       string
	expectedFrom models.PaymentStatus
}

type TransitionOption func(*transitionParams)

// WithRefundAmount sets the refund record amount of a Verified -> Refunded
// transition. Without it the full payment amount is recorded.
func WithRefundAmount(amount float64) TransitionOption {
	return func(p *transitionParams) { p.refundAmount = &amount }
}

// WithReason attaches a reason to the customer notification.
func WithReason(reason string) TransitionOption {
	return func(p *transitionParams) { p.reason = reason }
}

// WithExpectedFrom makes the transition fail with PaymentChanged unless the
// payment is still in status when its lock is taken.
func WithExpectedFrom(status models.PaymentStatus) TransitionOption {
	return func(p *transitionParams) { p.expectedFrom = status }
}

// Transition moves a payment to target on behalf of actor. Illegal edges fail
// with InvalidTransition and change nothing. On a legal edge the seat side
// effects are applied first and compensated if persisting the new status fails,
// so a Verified payment is never seen next to an Available seat.
func (l *Ledger) Transition(ctx context.Context, paymentID string, target models.PaymentStatus, actor string, opts ...TransitionOption) (*models.Payment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ledger.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", paymentID),
		attribute.String("payment.target", string(target)),
	)

	unlock := l.locks.Lock(paymentID)
	defer unlock()

	start := time.Now()
	payment, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	from := payment.Status
	record := func(result string) {
		l.metrics.Transition(string(from), string(target), result, time.Since(start).Seconds())
	}

	var p transitionParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.expectedFrom != "" && from != p.expectedFrom {
		record("changed")
		return nil, errs.Newf(errs.ErrPaymentChanged, "payment %s is %s, expected %s", paymentID, from, p.expectedFrom)
	}

	if _, known := models.ParsePaymentStatus(string(target)); !known {
		record("invalid")
		return nil, errs.Newf(errs.ErrInvalidTransition, "unknown payment status %q", target)
	}
	if isNoop(from, target) {
		record("noop")
		return payment, nil
	}
	if err := ValidateTransition(from, target); err != nil {
		record("invalid")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking, err := l.store.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}

	eff := effects[[2]models.PaymentStatus{from, target}]
	if eff.warn {
		l.log.Warn("Force-verifying failed payment", "paymentID", paymentID, "bookingID", booking.ID, "actor", actor)
	}

	comp, err := l.applySeats(ctx, booking, eff.seats)
	if err != nil {
		record("seat_conflict")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := l.now()
	update := Update{
		PaymentID:     paymentID,
		From:          from,
		To:            target,
		Fraud:         eff.fraud,
		BookingID:     booking.ID,
		BookingStatus: eff.booking,
		History:       fmt.Sprintf("%s by %s", actions[target], actor),
		At:            now,
	}
	if eff.refund {
		amount := payment.Amount
		if p.refundAmount != nil {
			amount = *p.refundAmount
		}
		update.Refund = &models.RefundRecord{Amount: amount, Date: now}
	}

	if err := l.store.ApplyTransition(ctx, update); err != nil {
		comp.run(ctx, l.log)
		record("store_error")
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrStaleStatus) {
			return nil, errs.Newf(errs.ErrInvalidTransition, "payment %s changed while transitioning from %s", paymentID, from)
		}
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}
	record("ok")

	l.log.Info("Payment transitioned", "paymentID", paymentID, "bookingID", booking.ID, "from", from, "to", target, "actor", actor)

	payment.Status = target
	payment.UpdatedAt = now
	if eff.fraud {
		payment.Fraud = true
	}
	if update.Refund != nil {
		payment.Refund = update.Refund
	}

	l.notify(ctx, booking, payment, p.reason)
	return payment, nil
}

func (l *Ledger) notify(ctx context.Context, booking *models.Booking, payment *models.Payment, reason string) {
	n := models.Notification{
		BookingID: booking.ID,
		Amount:    payment.Amount,
		Date:      payment.UpdatedAt,
		Status:    string(payment.Status),
		Reason:    reason,
	}
	if payment.Refund != nil && payment.Status == models.PaymentStatusRefunded {
		n.Amount = payment.Refund.Amount
	}
	if err := l.notifier.Notify(ctx, booking.CustomerEmail, n); err != nil {
		l.log.Warn("Failed to send notification", "bookingID", booking.ID, "error", err)
	}
}

// AppendHistory adds an audit line outside of a status change, such as a
// rejected refund.
func (l *Ledger) AppendHistory(ctx context.Context, bookingID, entry string) error {
	return l.store.AppendHistory(ctx, bookingID, entry, l.now())
}

// Notify hands a notification for bookingID to the notifier.
func (l *Ledger) Notify(ctx context.Context, recipient string, n models.Notification) {
	if err := l.notifier.Notify(ctx, recipient, n); err != nil {
		l.log.Warn("Failed to send notification", "bookingID", n.BookingID, "error", err)
	}
}

func (l *Ledger) Payment(ctx context.Context, id string) (*models.Payment, error) {
	return l.store.GetPayment(ctx, id)
}

func (l *Ledger) PaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	return l.store.GetPaymentByBooking(ctx, bookingID)
}

func (l *Ledger) Booking(ctx context.Context, id string) (*models.Booking, error) {
	return l.store.GetBooking(ctx, id)
}

func (l *Ledger) History(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	return l.store.History(ctx, bookingID)
}

// PendingPayments lists payments still awaiting confirmation, oldest first.
func (l *Ledger) PendingPayments(ctx context.Context) ([]*models.Payment, error) {
	return l.store.ListPayments(ctx, models.PaymentStatusPending)
}
