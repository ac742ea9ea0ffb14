package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// Activity names, as registered from activities.Activities.
	ExpireSessionActivity = "ExpireSession"
	ExpirePaymentActivity = "ExpirePayment"
)

// ExpiryInput names the session or payment to expire and when.
type ExpiryInput struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

var expiryActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	},
}

// SessionExpiryWorkflow sleeps until a reservation session's TTL runs out
// and then expires it, releasing any seats it still holds.
func SessionExpiryWorkflow(ctx workflow.Context, input ExpiryInput) error {
	return expireAt(ctx, ExpireSessionActivity, input)
}

// PaymentTimeoutWorkflow fails a payment that is still pending at its deadline.
func PaymentTimeoutWorkflow(ctx workflow.Context, input ExpiryInput) error {
	return expireAt(ctx, ExpirePaymentActivity, input)
}

func expireAt(ctx workflow.Context, activityName string, input ExpiryInput) error {
	logger := workflow.GetLogger(ctx)

	if wait := input.At.Sub(workflow.Now(ctx)); wait > 0 {
		logger.Info("Waiting for expiry", "id", input.ID, "wait", wait)
		if err := workflow.Sleep(ctx, wait); err != nil {
			// cancelled: the session or payment finished first
			return nil
		}
	}

	ctx = workflow.WithActivityOptions(ctx, expiryActivityOptions)
	if err := workflow.ExecuteActivity(ctx, activityName, input.ID).Get(ctx, nil); err != nil {
		logger.Error("Expiry activity failed", "activity", activityName, "id", input.ID, "error", err)
		return err
	}
	logger.Info("Expired", "activity", activityName, "id", input.ID)
	return nil
}
