// Package errs defines the typed errors returned across the reservation core.
//
// Every rejection carries a stable Code that callers (HTTP handlers, tests)
// can assert on without matching message text.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable reason code.
type Code string

const (
	CodeSeatUnavailable   Code = "SEAT_UNAVAILABLE"
	CodeSeatDisabled      Code = "SEAT_DISABLED"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeExceedsPaid       Code = "EXCEEDS_PAID"
	CodeTicketAlreadyUsed Code = "TICKET_ALREADY_USED"
	CodeNonRefundable     Code = "NON_REFUNDABLE"
	CodeGatewayError      Code = "GATEWAY_ERROR"
	CodeReasonRequired    Code = "REASON_REQUIRED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodePaymentChanged    Code = "PAYMENT_CHANGED"
)

// Kind groups codes by how a caller should react.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external"
	KindPolicy     Kind = "policy"
	KindNotFound   Kind = "not_found"
)

// Error is a typed rejection with a stable code.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target carries the same code, so detailed errors built
// with Newf still match the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrSeatUnavailable   = &Error{Code: CodeSeatUnavailable, Kind: KindConflict, Message: "seat recently taken"}
	ErrSeatDisabled      = &Error{Code: CodeSeatDisabled, Kind: KindValidation, Message: "seat is not selectable"}
	ErrCapacityExceeded  = &Error{Code: CodeCapacityExceeded, Kind: KindValidation, Message: "all passengers have seats"}
	ErrSessionExpired    = &Error{Code: CodeSessionExpired, Kind: KindConflict, Message: "session expired, please restart search"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Kind: KindValidation, Message: "invalid payment status transition"}
	ErrInvalidAmount     = &Error{Code: CodeInvalidAmount, Kind: KindValidation, Message: "refund amount must be a non-negative number"}
	ErrExceedsPaid       = &Error{Code: CodeExceedsPaid, Kind: KindPolicy, Message: "refund amount exceeds paid amount"}
	ErrTicketAlreadyUsed = &Error{Code: CodeTicketAlreadyUsed, Kind: KindPolicy, Message: "ticket already used"}
	ErrNonRefundable     = &Error{Code: CodeNonRefundable, Kind: KindPolicy, Message: "fare is not refundable for this amount"}
	ErrGateway           = &Error{Code: CodeGatewayError, Kind: KindExternal, Message: "payment gateway error"}
	ErrReasonRequired    = &Error{Code: CodeReasonRequired, Kind: KindValidation, Message: "rejection reason is required"}
	ErrNotFound          = &Error{Code: CodeNotFound, Kind: KindNotFound, Message: "not found"}
	ErrInvalidRequest    = &Error{Code: CodeInvalidRequest, Kind: KindValidation, Message: "invalid request"}
	ErrPaymentChanged    = &Error{Code: CodePaymentChanged, Kind: KindConflict, Message: "payment status changed"}
)

// Newf returns an error with the code and kind of base and a detailed message.
func Newf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a copy of base.
func Wrap(base *Error, cause error) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: base.Message, cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
