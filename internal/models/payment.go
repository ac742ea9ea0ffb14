package models

import "time"

// Payment is a single payment ledger entry
type Payment struct {
	ID        string        `json:"id"`
	BookingID string        `json:"bookingId"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Status    PaymentStatus `json:"status"`
	Fraud     bool          `json:"fraud"`
	Refund    *RefundRecord `json:"refund,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// PaymentStatuses lists every ledger status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusVerified,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusCompleted,
}

// ParsePaymentStatus returns the status named by s and whether it is known.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	for _, st := range PaymentStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// RefundRecord is attached to a payment once money was returned
type RefundRecord struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

// Notification is the payload handed to the external notifier
type Notification struct {
	BookingID string    `json:"bookingId"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
