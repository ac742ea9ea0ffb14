package models

// TicketType is the fare policy a ticket was sold under
type TicketType string

const (
	TicketTypeFlex     TicketType = "flex"
	TicketTypeStandard TicketType = "standard"
	TicketTypePromo    TicketType = "promo"
)

type TicketStatus string

const (
	TicketStatusIssued TicketStatus = "issued"
	TicketStatusFlown  TicketStatus = "flown"
)

// RefundRequest is an agent-facing request to return money for a booking
type RefundRequest struct {
	ID                string       `json:"id"`
	BookingID         string       `json:"bookingId"`
	CustomerEmail     string       `json:"customerEmail"`
	TicketType        TicketType   `json:"ticketType"`
	TicketStatus      TicketStatus `json:"ticketStatus"`
	PaidAmount        float64      `json:"paidAmount"`
	TaxAmount         float64      `json:"taxAmount"`
	RequestedAmount   float64      `json:"requestedAmount"`
	OperatorCancelled bool         `json:"operatorCancelled"`
}
