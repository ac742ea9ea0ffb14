package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
)

// SessionExpirer is implemented by reservation.Manager.
type SessionExpirer interface {
	Expire(ctx context.Context, sessionID string) error
}

// PaymentExpirer is implemented by checkout.Service.
type PaymentExpirer interface {
	ExpirePayment(ctx context.Context, paymentID string) error
}

// Activities is the struct-based activity set the expiry workflows call.
type Activities struct {
	sessions SessionExpirer
	payments PaymentExpirer
}

func NewActivities(sessions SessionExpirer, payments PaymentExpirer) *Activities {
	return &Activities{sessions: sessions, payments: payments}
}

// ExpireSession releases every hold of a session that is still active.
// Sessions that were handed off or already closed are left alone.
func (a *Activities) ExpireSession(ctx context.Context, sessionID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Expiring session", "sessionID", sessionID)

	if err := a.sessions.Expire(ctx, sessionID); err != nil {
		logger.Error("Failed to expire session", "sessionID", sessionID, "error", err)
		return err
	}
	return nil
}

// ExpirePayment fails a payment that is still pending after its timeout.
func (a *Activities) ExpirePayment(ctx context.Context, paymentID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Expiring payment", "paymentID", paymentID)

	if err := a.payments.ExpirePayment(ctx, paymentID); err != nil {
		logger.Error("Failed to expire payment", "paymentID", paymentID, "error", err)
		return err
	}
	return nil
}
