package service

import (
	"context"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// DemoFlights returns the sample schedule the server starts with.
func DemoFlights(now time.Time) []*models.Flight {
	return []*models.Flight{
		{
			ID:            "FL001",
			FlightNumber:  "AA123",
			Origin:        "New York (JFK)",
			Destination:   "Los Angeles (LAX)",
			DepartureTime: now.Add(24 * time.Hour),
			ArrivalTime:   now.Add(30 * time.Hour),
		},
		{
			ID:            "FL002",
			FlightNumber:  "UA456",
			Origin:        "Chicago (ORD)",
			Destination:   "Miami (MIA)",
			DepartureTime: now.Add(48 * time.Hour),
			ArrivalTime:   now.Add(52 * time.Hour),
		},
		{
			ID:            "FL003",
			FlightNumber:  "DL789",
			Origin:        "San Francisco (SFO)",
			Destination:   "Seattle (SEA)",
			DepartureTime: now.Add(12 * time.Hour),
			ArrivalTime:   now.Add(14 * time.Hour),
		},
	}
}

// SeedDemoFlights lists the demo flights with the default cabin layout.
func (s *Service) SeedDemoFlights(ctx context.Context, now time.Time) error {
	for _, f := range DemoFlights(now) {
		if err := s.AddFlight(ctx, f, inventory.DefaultLayout); err != nil {
			return err
		}
	}
	return nil
}
