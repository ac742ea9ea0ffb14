package models

// Seat represents a seat in a flight's cabin map
type Seat struct {
	Code     string     `json:"code"`
	FlightID string     `json:"flightId"`
	Class    FareClass  `json:"class"`
	Price    float64    `json:"price"`
	ExitRow  bool       `json:"exitRow"`
	Status   SeatStatus `json:"status"`
	HeldBy   string     `json:"heldBy,omitempty"`
}

type FareClass string

const (
	FareClassEconomy  FareClass = "economy"
	FareClassBusiness FareClass = "business"
)

type SeatStatus string

const (
	SeatStatusAvailable   SeatStatus = "available"
	SeatStatusSelected    SeatStatus = "selected"
	SeatStatusBooked      SeatStatus = "booked"
	SeatStatusMaintenance SeatStatus = "maintenance"
)

// Disabled reports whether travelers may never click the seat.
func (s SeatStatus) Disabled() bool {
	return s == SeatStatusBooked || s == SeatStatusMaintenance
}

// SeatEvent is published whenever a seat changes state.
type SeatEvent struct {
	FlightID string     `json:"flightId"`
	Code     string     `json:"code"`
	Status   SeatStatus `json:"status"`
	HeldBy   string     `json:"heldBy,omitempty"`
}
