// Package temporal wires the expiry workflows into the reservation core:
// a Scheduler that starts them and a worker that runs them.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
	"github.com/cx-tal-miterani/flight-reservation/internal/temporal/activities"
	"github.com/cx-tal-miterani/flight-reservation/internal/temporal/workflows"
)

// DefaultTaskQueue is the queue the embedded worker polls.
const DefaultTaskQueue = "flight-reservation-queue"

// WorkflowStarter is the part of client.Client the Scheduler uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Scheduler starts one durable timer workflow per session or payment.
type Scheduler struct {
	client    WorkflowStarter
	taskQueue string
}

var (
	_ reservation.Scheduler     = (*Scheduler)(nil)
	_ checkout.PaymentScheduler = (*Scheduler)(nil)
)

func NewScheduler(c WorkflowStarter, taskQueue string) *Scheduler {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Scheduler{client: c, taskQueue: taskQueue}
}

func (s *Scheduler) ScheduleExpiry(ctx context.Context, sessionID string, at time.Time) error {
	return s.start(ctx, "session-expiry-"+sessionID, workflows.SessionExpiryWorkflow, workflows.ExpiryInput{ID: sessionID, At: at})
}

func (s *Scheduler) SchedulePaymentTimeout(ctx context.Context, paymentID string, at time.Time) error {
	return s.start(ctx, "payment-timeout-"+paymentID, workflows.PaymentTimeoutWorkflow, workflows.ExpiryInput{ID: paymentID, At: at})
}

func (s *Scheduler) start(ctx context.Context, id string, wf interface{}, input workflows.ExpiryInput) error {
	opts := client.StartWorkflowOptions{ID: id, TaskQueue: s.taskQueue}
	if _, err := s.client.ExecuteWorkflow(ctx, opts, wf, input); err != nil {
		return fmt.Errorf("failed to start workflow %s: %w", id, err)
	}
	return nil
}

// NewWorker creates a worker with the expiry workflows and their activities registered.
func NewWorker(c client.Client, taskQueue string, acts *activities.Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SessionExpiryWorkflow)
	w.RegisterWorkflow(workflows.PaymentTimeoutWorkflow)
	w.RegisterActivity(acts)
	return w
}
