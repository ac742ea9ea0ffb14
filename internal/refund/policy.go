// Package refund decides how much of a fare may be returned and drives the
// payment through its refund.
package refund

import "github.com/cx-tal-miterani/flight-reservation/internal/models"

// Policy holds the fare-class refund rules.
type Policy struct {
	// StandardPercent of the paid amount is refundable on Standard fares.
	StandardPercent float64
}

func DefaultPolicy() Policy {
	return Policy{StandardPercent: 80}
}

// Quote returns the largest amount that may be refunded for req.
// Flex fares are fully refundable, Standard fares up to the policy
// percentage and Promo fares only their tax, unless the operator cancelled
// the flight, in which case the full paid amount is refundable.
func (p Policy) Quote(req models.RefundRequest) float64 {
	if req.OperatorCancelled {
		return req.PaidAmount
	}
	switch req.TicketType {
	case models.TicketTypeFlex:
		return req.PaidAmount
	case models.TicketTypeStandard:
		return req.PaidAmount * p.StandardPercent / 100
	case models.TicketTypePromo:
		return min(req.TaxAmount, req.PaidAmount)
	}
	return 0
}
