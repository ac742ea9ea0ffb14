// Package gateway moves money through an external payment provider.
package gateway

import (
	"context"
	"math/rand"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
)

// Gateway is fail-fast: it never retries. Every failure carries the
// GATEWAY_ERROR code and leaves the decision to retry with the caller.
type Gateway interface {
	Charge(ctx context.Context, bookingID string, amount float64) error
	Refund(ctx context.Context, bookingID string, amount float64) error
}

// DefaultDeclineRate mirrors the provider's observed decline rate.
const DefaultDeclineRate = 0.15

// Simulated stands in for a real provider, declining a fraction of calls.
type Simulated struct {
	declineRate float64
	latency     time.Duration
	log         logger.Logger
}

func NewSimulated(declineRate float64, latency time.Duration, log logger.Logger) *Simulated {
	return &Simulated{declineRate: declineRate, latency: latency, log: log}
}

func (g *Simulated) Charge(ctx context.Context, bookingID string, amount float64) error {
	return g.call(ctx, "charge", bookingID, amount)
}

func (g *Simulated) Refund(ctx context.Context, bookingID string, amount float64) error {
	return g.call(ctx, "refund", bookingID, amount)
}

func (g *Simulated) call(ctx context.Context, op, bookingID string, amount float64) error {
	g.log.Info("Gateway call", "op", op, "bookingID", bookingID, "amount", amount)

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.ErrGateway, ctx.Err())
		case <-timer.C:
		}
	}

	if rand.Float64() < g.declineRate {
		g.log.Warn("Gateway declined (simulated)", "op", op, "bookingID", bookingID)
		return errs.Newf(errs.ErrGateway, "%s declined by provider", op)
	}
	return nil
}
