package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, bookingID string, amount float64) error {
	args := m.Called(ctx, bookingID, amount)
	return args.Error(0)
}

func (m *MockGateway) Refund(ctx context.Context, bookingID string, amount float64) error {
	args := m.Called(ctx, bookingID, amount)
	return args.Error(0)
}
