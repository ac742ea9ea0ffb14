package ledger

import (
	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// AllowedTransitions is the only authority on which status changes are legal.
// Completed -> Verified is listed but applied as a no-op re-confirmation.
var AllowedTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending: {
		models.PaymentStatusVerified,
		models.PaymentStatusFailed,
	},
	models.PaymentStatusVerified: {
		models.PaymentStatusRefunded,
		models.PaymentStatusCompleted,
	},
	models.PaymentStatusFailed: {
		models.PaymentStatusPending,
		models.PaymentStatusVerified, // force-verify
	},
	models.PaymentStatusCompleted: {
		models.PaymentStatusFailed, // fraud / chargeback
		models.PaymentStatusVerified,
	},
	models.PaymentStatusRefunded: {}, // terminal
}

// CanTransition checks if a transition from one status to another is allowed.
func CanTransition(from, to models.PaymentStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransition error naming both statuses
// if the transition is not allowed.
func ValidateTransition(from, to models.PaymentStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	if from == models.PaymentStatusRefunded {
		return errs.Newf(errs.ErrInvalidTransition,
			"cannot transition payment from %s to %s: cannot reopen a refunded booking", from, to)
	}
	return errs.Newf(errs.ErrInvalidTransition, "cannot transition payment from %s to %s", from, to)
}

// isNoop reports edges that are accepted without changing anything.
func isNoop(from, to models.PaymentStatus) bool {
	return from == models.PaymentStatusCompleted && to == models.PaymentStatusVerified
}

type seatEffect int

const (
	seatsUnaffected seatEffect = iota
	seatsBook
	seatsRelease
	seatsRehold
)

// effect is what a legal edge does besides changing the payment status.
type effect struct {
	seats   seatEffect
	booking models.BookingStatus
	fraud   bool
	refund  bool
	warn    bool
}

var effects = map[[2]models.PaymentStatus]effect{
	{models.PaymentStatusPending, models.PaymentStatusVerified}:   {seats: seatsBook, booking: models.BookingStatusConfirmed},
	{models.PaymentStatusPending, models.PaymentStatusFailed}:     {seats: seatsRelease, booking: models.BookingStatusCancelled},
	{models.PaymentStatusVerified, models.PaymentStatusRefunded}:  {booking: models.BookingStatusRefunded, refund: true},
	{models.PaymentStatusVerified, models.PaymentStatusCompleted}: {booking: models.BookingStatusConfirmed},
	{models.PaymentStatusFailed, models.PaymentStatusPending}:     {seats: seatsRehold, booking: models.BookingStatusPending},
	{models.PaymentStatusFailed, models.PaymentStatusVerified}:    {seats: seatsBook, booking: models.BookingStatusConfirmed, warn: true},
	{models.PaymentStatusCompleted, models.PaymentStatusFailed}:   {booking: models.BookingStatusCancelled, fraud: true},
}

var actions = map[models.PaymentStatus]string{
	models.PaymentStatusPending:   "Pending",
	models.PaymentStatusVerified:  "Verified",
	models.PaymentStatusFailed:    "Failed",
	models.PaymentStatusRefunded:  "Refunded",
	models.PaymentStatusCompleted: "Completed",
}
