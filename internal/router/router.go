package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/flight-reservation/internal/handlers"
)

// SetupRouter creates and configures the HTTP router. ws serves the seat map
// websocket and metrics the Prometheus scrape endpoint; either may be nil.
func SetupRouter(h *handlers.Handler, ws http.HandlerFunc, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// CORS middleware
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Flights and seat map
	api.HandleFunc("/flights", h.GetFlights).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{flightId}", h.GetFlight).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{flightId}/seats", h.GetFlightSeats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{flightId}/seats/{code}/maintenance", h.SetSeatMaintenance).Methods(http.MethodPut, http.MethodOptions)
	if ws != nil {
		api.HandleFunc("/flights/{flightId}/ws", ws).Methods(http.MethodGet)
	}

	// Reservation sessions
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/seats", h.SelectSeat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/skip", h.SkipSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/checkout", h.Checkout).Methods(http.MethodPost, http.MethodOptions)

	// Payment ledger
	api.HandleFunc("/payments/{id}", h.GetPayment).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/payments/{id}/retry", h.RetryPayment).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/payments/{id}/transition", h.TransitionPayment).Methods(http.MethodPost, http.MethodOptions)

	// Bookings
	api.HandleFunc("/bookings/{id}", h.GetBooking).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/bookings/{id}/history", h.GetHistory).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/bookings/{id}/consistency", h.CheckConsistency).Methods(http.MethodGet, http.MethodOptions)

	// Refunds
	api.HandleFunc("/refunds/quote", h.QuoteRefund).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/refunds/approve", h.ApproveRefund).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/refunds/reject", h.RejectRefund).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
