package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/flight-reservation/internal/checkout"
	"github.com/cx-tal-miterani/flight-reservation/internal/errs"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
	"github.com/cx-tal-miterani/flight-reservation/internal/service"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
	log            logger.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(bookingService service.BookingService, log logger.Logger) *Handler {
	return &Handler{
		bookingService: bookingService,
		log:            log,
	}
}

type errorResponse struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code,omitempty"`
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "status", status, "error", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: errs.CodeOf(err)})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindPolicy:
		return http.StatusUnprocessableEntity
	case errs.KindExternal:
		return http.StatusBadGateway
	case errs.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Newf(errs.ErrInvalidRequest, "invalid request body")
	}
	return nil
}

// GetFlights handles GET /api/flights
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.bookingService.GetFlights(r.Context()))
}

// GetFlight handles GET /api/flights/{flightId}
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	flight, err := h.bookingService.GetFlight(r.Context(), mux.Vars(r)["flightId"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flight)
}

// GetFlightSeats handles GET /api/flights/{flightId}/seats
func (h *Handler) GetFlightSeats(w http.ResponseWriter, r *http.Request) {
	seats, err := h.bookingService.GetSeats(r.Context(), mux.Vars(r)["flightId"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, seats)
}

type maintenanceRequest struct {
	On bool `json:"on"`
}

// SetSeatMaintenance handles PUT /api/flights/{flightId}/seats/{code}/maintenance
func (h *Handler) SetSeatMaintenance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req maintenanceRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.bookingService.SetSeatMaintenance(r.Context(), vars["flightId"], vars["code"], req.On); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createSessionRequest struct {
	FlightID   string `json:"flightId"`
	Passengers int    `json:"passengers"`
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.FlightID == "" {
		h.respondError(w, errs.Newf(errs.ErrInvalidRequest, "flight id is required"))
		return
	}

	snap, err := h.bookingService.CreateSession(r.Context(), req.FlightID, req.Passengers)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.bookingService.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type selectSeatRequest struct {
	Seat string `json:"seat"`
}

// SelectSeat handles POST /api/sessions/{id}/seats
func (h *Handler) SelectSeat(w http.ResponseWriter, r *http.Request) {
	var req selectSeatRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Seat == "" {
		h.respondError(w, errs.Newf(errs.ErrInvalidRequest, "seat is required"))
		return
	}

	snap, err := h.bookingService.SelectSeat(r.Context(), mux.Vars(r)["id"], strings.ToUpper(req.Seat))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// SkipSession handles POST /api/sessions/{id}/skip
func (h *Handler) SkipSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.bookingService.SkipSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Checkout handles POST /api/sessions/{id}/checkout. A declined charge still
// returns the pending payment alongside the error so the client can retry it.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	req.SessionID = mux.Vars(r)["id"]

	receipt, err := h.bookingService.Checkout(r.Context(), req)
	h.respondReceipt(w, receipt, err)
}

// RetryPayment handles POST /api/payments/{id}/retry
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.bookingService.RetryPayment(r.Context(), mux.Vars(r)["id"])
	h.respondReceipt(w, receipt, err)
}

type receiptError struct {
	errorResponse
	Receipt *checkout.Receipt `json:"receipt,omitempty"`
}

func (h *Handler) respondReceipt(w http.ResponseWriter, receipt *checkout.Receipt, err error) {
	switch {
	case err != nil && receipt != nil:
		respondJSON(w, statusFor(err), receiptError{
			errorResponse: errorResponse{Error: err.Error(), Code: errs.CodeOf(err)},
			Receipt:       receipt,
		})
	case err != nil:
		h.respondError(w, err)
	case receipt.Outcome == checkout.OutcomeInFlight:
		respondJSON(w, http.StatusAccepted, receipt)
	default:
		respondJSON(w, http.StatusCreated, receipt)
	}
}

// GetPayment handles GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.bookingService.GetPayment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

type transitionRequest struct {
	Status models.PaymentStatus `json:"status"`
	Actor  string               `json:"actor"`
}

// TransitionPayment handles POST /api/payments/{id}/transition
func (h *Handler) TransitionPayment(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Actor == "" {
		h.respondError(w, errs.Newf(errs.ErrInvalidRequest, "actor is required"))
		return
	}

	payment, err := h.bookingService.TransitionPayment(r.Context(), mux.Vars(r)["id"], req.Status, req.Actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookingService.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// GetHistory handles GET /api/bookings/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.bookingService.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// CheckConsistency handles GET /api/bookings/{id}/consistency
func (h *Handler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.bookingService.CheckConsistency(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type refundDecision struct {
	models.RefundRequest
	Agent  string `json:"agent"`
	Reason string `json:"reason,omitempty"`
}

func decodeRefund(r *http.Request) (*refundDecision, error) {
	var req refundDecision
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.BookingID == "" {
		return nil, errs.Newf(errs.ErrInvalidRequest, "booking id is required")
	}
	return &req, nil
}

// QuoteRefund handles POST /api/refunds/quote
func (h *Handler) QuoteRefund(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefund(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	limit, err := h.bookingService.QuoteRefund(r.Context(), req.RefundRequest)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"maxRefund": limit})
}

// ApproveRefund handles POST /api/refunds/approve
func (h *Handler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefund(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.Agent == "" {
		h.respondError(w, errs.Newf(errs.ErrInvalidRequest, "agent is required"))
		return
	}

	result, err := h.bookingService.ApproveRefund(r.Context(), req.RefundRequest, req.Agent)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RejectRefund handles POST /api/refunds/reject
func (h *Handler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRefund(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.Agent == "" {
		h.respondError(w, errs.Newf(errs.ErrInvalidRequest, "agent is required"))
		return
	}

	if err := h.bookingService.RejectRefund(r.Context(), req.RefundRequest, req.Reason, req.Agent); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
