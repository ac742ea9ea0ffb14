package service

import (
	"context"
	"sort"
	"sync"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/consistency"
	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/ledger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/refund"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
)

// BookingService defines the booking service interface
type BookingService interface {
	GetFlights(ctx context.Context) []*models.Flight
	GetFlight(ctx context.Context, flightID string) (*models.Flight, error)
	GetSeats(ctx context.Context, flightID string) ([]*models.Seat, error)
	SetSeatMaintenance(ctx context.Context, flightID, code string, on bool) error

	CreateSession(ctx context.Context, flightID string, passengers int) (*reservation.Snapshot, error)
	GetSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error)
	SelectSeat(ctx context.Context, sessionID, code string) (*reservation.Snapshot, error)
	SkipSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error)

	Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error)
	RetryPayment(ctx context.Context, paymentID string) (*checkout.Receipt, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, paymentID string, status models.PaymentStatus, actor string) (*models.Payment, error)

	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	GetHistory(ctx context.Context, bookingID string) ([]models.HistoryEntry, error)
	CheckConsistency(ctx context.Context, bookingID string) (*consistency.Report, error)

	QuoteRefund(ctx context.Context, req models.RefundRequest) (float64, error)
	ApproveRefund(ctx context.Context, req models.RefundRequest, agent string) (*refund.Result, error)
	RejectRefund(ctx context.Context, req models.RefundRequest, reason, agent string) error
}

// Deps are the core components the service fronts.
type Deps struct {
	Inventory inventory.Inventory
	Sessions  *reservation.Manager
	Ledger    *ledger.Ledger
	Checkout  *checkout.Service
	Checker   *consistency.Checker
	Refunds   *refund.Processor
}

// Service implements BookingService over the reservation core
type Service struct {
	deps Deps

	mu      sync.RWMutex
	flights map[string]*models.Flight
}

// NewBookingService creates a new BookingService with an empty flight catalog.
func NewBookingService(deps Deps) *Service {
	return &Service{
		deps:    deps,
		flights: make(map[string]*models.Flight),
	}
}

// AddFlight lists a flight and registers its cabin map in the inventory.
func (s *Service) AddFlight(ctx context.Context, flight *models.Flight, layout inventory.CabinLayout) error {
	if err := s.deps.Inventory.AddSeats(ctx, inventory.SeatMap(flight.ID, layout)); err != nil {
		return err
	}
	s.mu.Lock()
	s.flights[flight.ID] = flight
	s.mu.Unlock()
	return nil
}

func (s *Service) GetFlights(ctx context.Context) []*models.Flight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flights := make([]*models.Flight, 0, len(s.flights))
	for _, f := range s.flights {
		flights = append(flights, f)
	}
	sort.Slice(flights, func(i, j int) bool { return flights[i].DepartureTime.Before(flights[j].DepartureTime) })
	return flights
}

func (s *Service) GetFlight(ctx context.Context, flightID string) (*models.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flight, ok := s.flights[flightID]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "flight %s not found", flightID)
	}
	return flight, nil
}

func (s *Service) GetSeats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	return s.deps.Inventory.Seats(ctx, flightID)
}

func (s *Service) SetSeatMaintenance(ctx context.Context, flightID, code string, on bool) error {
	return s.deps.Inventory.SetMaintenance(ctx, flightID, code, on)
}

func (s *Service) CreateSession(ctx context.Context, flightID string, passengers int) (*reservation.Snapshot, error) {
	sess, err := s.deps.Sessions.Create(ctx, flightID, passengers)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot(ctx)
	return &snap, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot(ctx)
	return &snap, nil
}

func (s *Service) SelectSeat(ctx context.Context, sessionID, code string) (*reservation.Snapshot, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SelectSeat(ctx, code); err != nil {
		return nil, err
	}
	snap := sess.Snapshot(ctx)
	return &snap, nil
}

func (s *Service) SkipSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Skip(ctx); err != nil {
		return nil, err
	}
	snap := sess.Snapshot(ctx)
	return &snap, nil
}

func (s *Service) Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error) {
	return s.deps.Checkout.Submit(ctx, req)
}

func (s *Service) RetryPayment(ctx context.Context, paymentID string) (*checkout.Receipt, error) {
	return s.deps.Checkout.Retry(ctx, paymentID)
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.deps.Ledger.Payment(ctx, paymentID)
}

func (s *Service) TransitionPayment(ctx context.Context, paymentID string, status models.PaymentStatus, actor string) (*models.Payment, error) {
	return s.deps.Ledger.Transition(ctx, paymentID, status, actor)
}

func (s *Service) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.deps.Ledger.Booking(ctx, bookingID)
}

func (s *Service) GetHistory(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	return s.deps.Ledger.History(ctx, bookingID)
}

func (s *Service) CheckConsistency(ctx context.Context, bookingID string) (*consistency.Report, error) {
	return s.deps.Checker.Report(ctx, bookingID)
}

// QuoteRefund validates the request and returns the most the fare policy allows.
func (s *Service) QuoteRefund(ctx context.Context, req models.RefundRequest) (float64, error) {
	if err := s.deps.Refunds.Validate(req); err != nil {
		return 0, err
	}
	return s.deps.Refunds.Quote(req), nil
}

func (s *Service) ApproveRefund(ctx context.Context, req models.RefundRequest, agent string) (*refund.Result, error) {
	return s.deps.Refunds.Approve(ctx, req, agent)
}

func (s *Service) RejectRefund(ctx context.Context, req models.RefundRequest, reason, agent string) error {
	return s.deps.Refunds.Reject(ctx, req, reason, agent)
}
