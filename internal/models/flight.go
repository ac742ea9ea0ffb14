package models

import "time"

// Flight is a scheduled flight whose cabin map is held in the seat inventory
type Flight struct {
	ID            string    `json:"id"`
	FlightNumber  string    `json:"flightNumber"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
}
