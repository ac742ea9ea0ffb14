package models

import "time"

// Booking is the aggregate a payment belongs to
type Booking struct {
	ID            string        `json:"id"`
	FlightID      string        `json:"flightId"`
	HolderID      string        `json:"holderId"` // session that held the seats
	Seats         []string      `json:"seats"`
	Status        BookingStatus `json:"status"`
	CustomerEmail string        `json:"customerEmail"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusRefunded  BookingStatus = "refunded"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// HistoryEntry is one append-only audit line for a booking
type HistoryEntry struct {
	BookingID string    `json:"bookingId"`
	Entry     string    `json:"entry"`
	CreatedAt time.Time `json:"createdAt"`
}
