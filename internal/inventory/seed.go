package inventory

import (
	"fmt"

	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// CabinLayout describes a simple cabin: the first BusinessRows rows are
// business class, ExitRows are flagged, everything else is economy.
type CabinLayout struct {
	Rows          int
	Columns       []string
	BusinessRows  int
	ExitRows      []int
	EconomyPrice  float64
	BusinessPrice float64
}

// DefaultLayout is used when seeding demo flights.
var DefaultLayout = CabinLayout{
	Rows:          20,
	Columns:       []string{"A", "B", "C", "D", "E", "F"},
	BusinessRows:  3,
	ExitRows:      []int{12, 13},
	EconomyPrice:  150,
	BusinessPrice: 450,
}

// SeatMap builds the seats of a flight's cabin, all available, coded "12A".
func SeatMap(flightID string, layout CabinLayout) []models.Seat {
	exit := make(map[int]bool, len(layout.ExitRows))
	for _, r := range layout.ExitRows {
		exit[r] = true
	}

	seats := make([]models.Seat, 0, layout.Rows*len(layout.Columns))
	for row := 1; row <= layout.Rows; row++ {
		class, price := models.FareClassEconomy, layout.EconomyPrice
		if row <= layout.BusinessRows {
			class, price = models.FareClassBusiness, layout.BusinessPrice
		}
		for _, col := range layout.Columns {
			seats = append(seats, models.Seat{
				Code:     fmt.Sprintf("%d%s", row, col),
				FlightID: flightID,
				Class:    class,
				Price:    price,
				ExitRow:  exit[row],
				Status:   models.SeatStatusAvailable,
			})
		}
	}
	return seats
}
