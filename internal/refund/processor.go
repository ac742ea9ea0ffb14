package refund

import (
	"context"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/gateway"
	"github.com/cx-tal-miterani/flight-reservation/internal/idempotency"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/metrics"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/telemetry"
)

type Outcome string

const (
	OutcomeRefunded Outcome = "refunded"
	// OutcomeInFlight means the same request is already being approved and
	// this call did nothing.
	OutcomeInFlight Outcome = "in_flight"
)

// Result of an approval.
type Result struct {
	Outcome Outcome         `json:"outcome"`
	Amount  float64         `json:"amount"`
	Payment *models.Payment `json:"payment,omitempty"`
}

// Ledger is the part of the payment ledger a refund needs.
type Ledger interface {
	PaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
	Transition(ctx context.Context, paymentID string, target models.PaymentStatus, actor string, opts ...ledger.TransitionOption) (*models.Payment, error)
	AppendHistory(ctx context.Context, bookingID, entry string) error
	Notify(ctx context.Context, recipient string, n models.Notification)
}

type Processor struct {
	ledger  Ledger
	gateway gateway.Gateway
	policy  Policy
	guard   *idempotency.Guard
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewProcessor(l Ledger, gw gateway.Gateway, policy Policy, log logger.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		ledger:  l,
		gateway: gw,
		policy:  policy,
		guard:   idempotency.NewGuard(),
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Validate applies the request checks in order, without any I/O.
func (p *Processor) Validate(req models.RefundRequest) error {
	amount := req.RequestedAmount
	if math.IsNaN(amount) || amount < 0 {
		return errs.ErrInvalidAmount
	}
	if amount > req.PaidAmount {
		return errs.Newf(errs.ErrExceedsPaid, "refund amount %.2f exceeds paid amount %.2f", amount, req.PaidAmount)
	}
	if req.TicketStatus == models.TicketStatusFlown {
		return errs.ErrTicketAlreadyUsed
	}
	if limit := p.policy.Quote(req); amount > limit {
		return errs.Newf(errs.ErrNonRefundable, "%s fare allows at most %.2f to be refunded", req.TicketType, limit)
	}
	return nil
}

// Approve returns money for req and moves the payment to refunded. A gateway
// failure leaves the ledger untouched so the same request can be approved
// again. A second Approve for a request already in flight returns
// OutcomeInFlight without calling the gateway.
func (p *Processor) Approve(ctx context.Context, req models.RefundRequest, agent string) (*Result, error) {
	if err := p.Validate(req); err != nil {
		p.metrics.Refund(string(errs.CodeOf(err)))
		return nil, err
	}

	release, ok := p.guard.TryAcquire(guardKey(req))
	if !ok {
		p.metrics.Refund(string(OutcomeInFlight))
		p.log.Info("Refund already in flight", "bookingID", req.BookingID, "requestID", req.ID)
		return &Result{Outcome: OutcomeInFlight}, nil
	}
	defer release()

	ctx, span := telemetry.Tracer().Start(ctx, "refund.Approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", req.BookingID),
		attribute.Float64("refund.amount", req.RequestedAmount),
	)

	payment, err := p.ledger.PaymentByBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if req.RequestedAmount > payment.Amount {
		return nil, errs.Newf(errs.ErrExceedsPaid, "refund amount %.2f exceeds paid amount %.2f", req.RequestedAmount, payment.Amount)
	}
	if err := ledger.ValidateTransition(payment.Status, models.PaymentStatusRefunded); err != nil {
		return nil, err
	}

	if err := p.gateway.Refund(ctx, req.BookingID, req.RequestedAmount); err != nil {
		p.metrics.Refund(string(errs.CodeGatewayError))
		span.SetStatus(codes.Error, err.Error())
		p.log.Warn("Refund gateway call failed", "bookingID", req.BookingID, "error", err)
		if errs.CodeOf(err) == errs.CodeGatewayError {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrGateway, err)
	}

	updated, err := p.ledger.Transition(ctx, payment.ID, models.PaymentStatusRefunded, agent,
		ledger.WithRefundAmount(req.RequestedAmount))
	if err != nil {
		// funds already moved; this needs an operator
		p.log.Error("Refund sent but ledger not updated", "bookingID", req.BookingID, "paymentID", payment.ID, "amount", req.RequestedAmount, "error", err)
		span.SetStatus(codes.Error, err.Error())
		if herr := p.ledger.AppendHistory(ctx, req.BookingID, "Refund sent, ledger update failed by "+agent); herr != nil {
			p.log.Error("Failed to record unreconciled refund", "bookingID", req.BookingID, "error", herr)
		}
		p.metrics.Refund("unreconciled")
		return nil, err
	}

	p.metrics.Refund(string(OutcomeRefunded))
	p.log.Info("Refund approved", "bookingID", req.BookingID, "amount", req.RequestedAmount, "agent", agent)
	return &Result{Outcome: OutcomeRefunded, Amount: req.RequestedAmount, Payment: updated}, nil
}

// Reject records the rejection in the booking history and tells the customer why.
func (p *Processor) Reject(ctx context.Context, req models.RefundRequest, reason, agent string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errs.ErrReasonRequired
	}

	if err := p.ledger.AppendHistory(ctx, req.BookingID, "Refund rejected by "+agent); err != nil {
		return err
	}
	p.ledger.Notify(ctx, req.CustomerEmail, models.Notification{
		BookingID: req.BookingID,
		Amount:    req.RequestedAmount,
		Date:      p.now(),
		Status:    "rejected",
		Reason:    reason,
	})

	p.metrics.Refund("rejected")
	p.log.Info("Refund rejected", "bookingID", req.BookingID, "agent", agent, "reason", reason)
	return nil
}

// Quote exposes the policy maximum for req.
func (p *Processor) Quote(req models.RefundRequest) float64 {
	return p.policy.Quote(req)
}

// guardKey is per booking, so two different requests for the same booking
// cannot both reach the gateway.
func guardKey(req models.RefundRequest) string {
	return "refund:" + req.BookingID
}
