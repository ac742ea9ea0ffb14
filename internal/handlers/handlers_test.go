package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/consistency"
	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/refund"
	"github.com/cx-tal-miterani/flight-reservation/internal/reservation"
	"github.com/cx-tal-miterani/flight-reservation/internal/service/mocks"
)

func setupTestRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/flights", h.GetFlights).Methods(http.MethodGet)
	api.HandleFunc("/flights/{flightId}", h.GetFlight).Methods(http.MethodGet)
	api.HandleFunc("/flights/{flightId}/seats", h.GetFlightSeats).Methods(http.MethodGet)
	api.HandleFunc("/flights/{flightId}/seats/{code}/maintenance", h.SetSeatMaintenance).Methods(http.MethodPut)
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/seats", h.SelectSeat).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/skip", h.SkipSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/checkout", h.Checkout).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/retry", h.RetryPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/transition", h.TransitionPayment).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/consistency", h.CheckConsistency).Methods(http.MethodGet)
	api.HandleFunc("/refunds/approve", h.ApproveRefund).Methods(http.MethodPost)
	api.HandleFunc("/refunds/reject", h.RejectRefund).Methods(http.MethodPost)
	return r
}

func setup() (*mocks.MockBookingService, *mux.Router) {
	mockService := new(mocks.MockBookingService)
	return mockService, setupTestRouter(NewHandler(mockService, logger.NewNop()))
}

func do(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.ErrInvalidTransition, http.StatusBadRequest},
		{errs.ErrCapacityExceeded, http.StatusBadRequest},
		{errs.ErrSeatUnavailable, http.StatusConflict},
		{errs.ErrSessionExpired, http.StatusConflict},
		{errs.ErrNonRefundable, http.StatusUnprocessableEntity},
		{errs.ErrGateway, http.StatusBadGateway},
		{errs.ErrNotFound, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestHandler_GetFlightSeats(t *testing.T) {
	tests := []struct {
		name           string
		flightID       string
		mockReturn     []*models.Seat
		mockError      error
		expectedStatus int
	}{
		{
			name:     "seat map",
			flightID: "FL001",
			mockReturn: []*models.Seat{
				{Code: "1A", FlightID: "FL001", Status: models.SeatStatusAvailable, Price: 450},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown flight",
			flightID:       "FL999",
			mockError:      errs.Newf(errs.ErrNotFound, "flight FL999 not found"),
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			mockService.On("GetSeats", mock.Anything, tt.flightID).Return(tt.mockReturn, tt.mockError)

			rec := do(router, http.MethodGet, "/api/flights/"+tt.flightID+"/seats", nil)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_SetSeatMaintenance(t *testing.T) {
	mockService, router := setup()
	mockService.On("SetSeatMaintenance", mock.Anything, "FL001", "4C", true).Return(nil).Once()

	rec := do(router, http.MethodPut, "/api/flights/FL001/seats/4C/maintenance", maintenanceRequest{On: true})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	mockService.AssertExpectations(t)
}

func TestHandler_CreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		mockReturn     *reservation.Snapshot
		mockError      error
		expectedStatus int
		expectedCode   errs.Code
		shouldCallMock bool
	}{
		{
			name:           "valid session",
			requestBody:    createSessionRequest{FlightID: "FL001", Passengers: 2},
			mockReturn:     &reservation.Snapshot{ID: "s1", FlightID: "FL001", Passengers: 2, State: reservation.StateActive},
			expectedStatus: http.StatusCreated,
			shouldCallMock: true,
		},
		{
			name:           "missing flight id",
			requestBody:    createSessionRequest{Passengers: 1},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   errs.CodeInvalidRequest,
		},
		{
			name:           "malformed body",
			requestBody:    "{",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   errs.CodeInvalidRequest,
		},
		{
			name:           "zero passengers",
			requestBody:    createSessionRequest{FlightID: "FL001"},
			mockError:      errs.Newf(errs.ErrInvalidRequest, "passenger count must be at least 1, got 0"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   errs.CodeInvalidRequest,
			shouldCallMock: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			if tt.shouldCallMock {
				req := tt.requestBody.(createSessionRequest)
				mockService.On("CreateSession", mock.Anything, req.FlightID, req.Passengers).Return(tt.mockReturn, tt.mockError)
			}

			rec := do(router, http.MethodPost, "/api/sessions", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rec).Code)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_SelectSeat(t *testing.T) {
	tests := []struct {
		name           string
		seat           string
		mockError      error
		expectedStatus int
		expectedCode   errs.Code
	}{
		{name: "held", seat: "12a", expectedStatus: http.StatusOK},
		{name: "recently taken", seat: "12A", mockError: errs.ErrSeatUnavailable, expectedStatus: http.StatusConflict, expectedCode: errs.CodeSeatUnavailable},
		{name: "capacity", seat: "12A", mockError: errs.ErrCapacityExceeded, expectedStatus: http.StatusBadRequest, expectedCode: errs.CodeCapacityExceeded},
		{name: "expired", seat: "12A", mockError: errs.ErrSessionExpired, expectedStatus: http.StatusConflict, expectedCode: errs.CodeSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			var snap *reservation.Snapshot
			if tt.mockError == nil {
				snap = &reservation.Snapshot{ID: "s1", Held: []string{"12A"}, State: reservation.StateActive}
			}
			mockService.On("SelectSeat", mock.Anything, "s1", "12A").Return(snap, tt.mockError)

			rec := do(router, http.MethodPost, "/api/sessions/s1/seats", selectSeatRequest{Seat: tt.seat})

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rec).Code)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_SelectSeat_RequiresSeat(t *testing.T) {
	mockService, router := setup()

	rec := do(router, http.MethodPost, "/api/sessions/s1/seats", selectSeatRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "SelectSeat", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Checkout(t *testing.T) {
	pending := &checkout.Receipt{Payment: &models.Payment{ID: "p1", Status: models.PaymentStatusPending}}
	paid := &checkout.Receipt{Outcome: checkout.OutcomePaid, Payment: &models.Payment{ID: "p1", Status: models.PaymentStatusVerified}}

	tests := []struct {
		name           string
		mockReturn     *checkout.Receipt
		mockError      error
		expectedStatus int
	}{
		{name: "paid", mockReturn: paid, expectedStatus: http.StatusCreated},
		{name: "in flight", mockReturn: &checkout.Receipt{Outcome: checkout.OutcomeInFlight}, expectedStatus: http.StatusAccepted},
		{name: "declined", mockReturn: pending, mockError: errs.Wrap(errs.ErrGateway, assert.AnError), expectedStatus: http.StatusBadGateway},
		{name: "expired session", mockError: errs.ErrSessionExpired, expectedStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			want := checkout.Request{SessionID: "s1", CustomerEmail: "t@example.com", Currency: "EUR"}
			mockService.On("Checkout", mock.Anything, want).Return(tt.mockReturn, tt.mockError)

			rec := do(router, http.MethodPost, "/api/sessions/s1/checkout", checkout.Request{CustomerEmail: "t@example.com", Currency: "EUR"})

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_CheckoutDeclinedCarriesReceipt(t *testing.T) {
	mockService, router := setup()
	pending := &checkout.Receipt{Payment: &models.Payment{ID: "p1", Status: models.PaymentStatusPending}}
	mockService.On("Checkout", mock.Anything, mock.Anything).Return(pending, errs.Wrap(errs.ErrGateway, assert.AnError))

	rec := do(router, http.MethodPost, "/api/sessions/s1/checkout", checkout.Request{CustomerEmail: "t@example.com"})

	var resp receiptError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, errs.CodeGatewayError, resp.Code)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, "p1", resp.Receipt.Payment.ID)
}

func TestHandler_RetryPayment(t *testing.T) {
	mockService, router := setup()
	mockService.On("RetryPayment", mock.Anything, "p1").
		Return(&checkout.Receipt{Outcome: checkout.OutcomePaid}, nil).Once()

	rec := do(router, http.MethodPost, "/api/payments/p1/retry", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	mockService.AssertExpectations(t)
}

func TestHandler_TransitionPayment(t *testing.T) {
	tests := []struct {
		name           string
		body           transitionRequest
		mockError      error
		expectedStatus int
		shouldCallMock bool
	}{
		{
			name:           "legal edge",
			body:           transitionRequest{Status: models.PaymentStatusCompleted, Actor: "ops"},
			expectedStatus: http.StatusOK,
			shouldCallMock: true,
		},
		{
			name:           "reopen refunded",
			body:           transitionRequest{Status: models.PaymentStatusPending, Actor: "ops"},
			mockError:      errs.Newf(errs.ErrInvalidTransition, "cannot transition payment from refunded to pending: cannot reopen a refunded booking"),
			expectedStatus: http.StatusBadRequest,
			shouldCallMock: true,
		},
		{
			name:           "missing actor",
			body:           transitionRequest{Status: models.PaymentStatusCompleted},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			if tt.shouldCallMock {
				var payment *models.Payment
				if tt.mockError == nil {
					payment = &models.Payment{ID: "p1", Status: tt.body.Status}
				}
				mockService.On("TransitionPayment", mock.Anything, "p1", tt.body.Status, tt.body.Actor).Return(payment, tt.mockError)
			}

			rec := do(router, http.MethodPost, "/api/payments/p1/transition", tt.body)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_Bookings(t *testing.T) {
	mockService, router := setup()
	mockService.On("GetHistory", mock.Anything, "b1").Return([]models.HistoryEntry{{BookingID: "b1", Entry: "Created by t@example.com"}}, nil)
	mockService.On("CheckConsistency", mock.Anything, "b1").Return(&consistency.Report{BookingID: "b1", Verdict: consistency.Inconsistent}, nil)

	rec := do(router, http.MethodGet, "/api/bookings/b1/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/api/bookings/b1/consistency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report consistency.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, consistency.Inconsistent, report.Verdict)
}

func TestHandler_ApproveRefund(t *testing.T) {
	req := models.RefundRequest{BookingID: "b1", TicketType: models.TicketTypePromo, PaidAmount: 200, TaxAmount: 40, RequestedAmount: 100}

	tests := []struct {
		name           string
		agent          string
		mockReturn     *refund.Result
		mockError      error
		expectedStatus int
		shouldCallMock bool
	}{
		{name: "approved", agent: "agent-1", mockReturn: &refund.Result{Outcome: refund.OutcomeRefunded, Amount: 40}, expectedStatus: http.StatusOK, shouldCallMock: true},
		{name: "policy", agent: "agent-1", mockError: errs.ErrNonRefundable, expectedStatus: http.StatusUnprocessableEntity, shouldCallMock: true},
		{name: "gateway", agent: "agent-1", mockError: errs.ErrGateway, expectedStatus: http.StatusBadGateway, shouldCallMock: true},
		{name: "missing agent", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := setup()
			if tt.shouldCallMock {
				mockService.On("ApproveRefund", mock.Anything, req, tt.agent).Return(tt.mockReturn, tt.mockError)
			}

			rec := do(router, http.MethodPost, "/api/refunds/approve", refundDecision{RefundRequest: req, Agent: tt.agent})

			assert.Equal(t, tt.expectedStatus, rec.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestHandler_RejectRefund(t *testing.T) {
	mockService, router := setup()
	req := models.RefundRequest{BookingID: "b1", CustomerEmail: "t@example.com"}
	mockService.On("RejectRefund", mock.Anything, req, "", "agent-1").Return(errs.ErrReasonRequired).Once()
	mockService.On("RejectRefund", mock.Anything, req, "fare rules", "agent-1").Return(nil).Once()

	rec := do(router, http.MethodPost, "/api/refunds/reject", refundDecision{RefundRequest: req, Agent: "agent-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errs.CodeReasonRequired, decodeError(t, rec).Code)

	rec = do(router, http.MethodPost, "/api/refunds/reject", refundDecision{RefundRequest: req, Agent: "agent-1", Reason: "fare rules"})
	assert.Equal(t, http.StatusOK, rec.Code)
	mockService.AssertExpectations(t)
}
