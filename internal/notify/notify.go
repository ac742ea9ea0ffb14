// Package notify delivers booking and payment notifications to customers.
// Delivery is fire-and-forget from the caller's point of view.
package notify

import (
	"context"

	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, recipient string, n models.Notification) error
}

// LogNotifier only logs notifications. Used when no broker is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient string, msg models.Notification) error {
	n.log.Info("Notification",
		"recipient", recipient,
		"bookingID", msg.BookingID,
		"amount", msg.Amount,
		"status", msg.Status,
		"reason", msg.Reason,
	)
	return nil
}
