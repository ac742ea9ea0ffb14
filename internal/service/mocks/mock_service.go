package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/consistency"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/refund"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
)

// MockBookingService is a mock implementation of service.BookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) GetFlights(ctx context.Context) []*models.Flight {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*models.Flight)
}

func (m *MockBookingService) GetFlight(ctx context.Context, flightID string) (*models.Flight, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Flight), args.Error(1)
}

func (m *MockBookingService) GetSeats(ctx context.Context, flightID string) ([]*models.Seat, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Seat), args.Error(1)
}

func (m *MockBookingService) SetSeatMaintenance(ctx context.Context, flightID, code string, on bool) error {
	args := m.Called(ctx, flightID, code, on)
	return args.Error(0)
}

func (m *MockBookingService) CreateSession(ctx context.Context, flightID string, passengers int) (*reservation.Snapshot, error) {
	args := m.Called(ctx, flightID, passengers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Snapshot), args.Error(1)
}

func (m *MockBookingService) GetSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Snapshot), args.Error(1)
}

func (m *MockBookingService) SelectSeat(ctx context.Context, sessionID, code string) (*reservation.Snapshot, error) {
	args := m.Called(ctx, sessionID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Snapshot), args.Error(1)
}

func (m *MockBookingService) SkipSession(ctx context.Context, sessionID string) (*reservation.Snapshot, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Snapshot), args.Error(1)
}

func (m *MockBookingService) Checkout(ctx context.Context, req checkout.Request) (*checkout.Receipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Receipt), args.Error(1)
}

func (m *MockBookingService) RetryPayment(ctx context.Context, paymentID string) (*checkout.Receipt, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Receipt), args.Error(1)
}

func (m *MockBookingService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockBookingService) TransitionPayment(ctx context.Context, paymentID string, status models.PaymentStatus, actor string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, status, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) GetHistory(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}

func (m *MockBookingService) CheckConsistency(ctx context.Context, bookingID string) (*consistency.Report, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consistency.Report), args.Error(1)
}

func (m *MockBookingService) QuoteRefund(ctx context.Context, req models.RefundRequest) (float64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockBookingService) ApproveRefund(ctx context.Context, req models.RefundRequest, agent string) (*refund.Result, error) {
	args := m.Called(ctx, req, agent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refund.Result), args.Error(1)
}

func (m *MockBookingService) RejectRefund(ctx context.Context, req models.RefundRequest, reason, agent string) error {
	args := m.Called(ctx, req, reason, agent)
	return args.Error(0)
}
