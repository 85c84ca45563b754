package models

import (
	"errors"
	"fmt"
)

// Stable error codes returned to callers for branching.
const (
	CodeInventoryNotFound       = "INVENTORY_NOT_FOUND"
	CodeInsufficientCapacity    = "INSUFFICIENT_CAPACITY"
	CodeDateInPast              = "DATE_IN_PAST"
	CodeInvalidCapacity         = "INVALID_CAPACITY"
	CodeReservationExpired      = "RESERVATION_EXPIRED"
	CodeReservationConflict     = "RESERVATION_CONFLICT"
	CodeBulkUpdateLimitExceeded = "BULK_UPDATE_LIMIT_EXCEEDED"
	CodeSeasonalPricingConflict = "SEASONAL_PRICING_CONFLICT"
	CodeReservationNotFound     = "RESERVATION_NOT_FOUND"
	CodeSlotUnavailable         = "SLOT_UNAVAILABLE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeInternal                = "INTERNAL_ERROR"
)

// Error is an engine error carrying a stable code. Two errors match under
// errors.Is when their codes are equal, so callers can compare against the
// sentinels below even when the message is more specific.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds a coded error with a formatted message.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInventoryNotFound       = &Error{Code: CodeInventoryNotFound, Message: "inventory not found"}
	ErrInsufficientCapacity    = &Error{Code: CodeInsufficientCapacity, Message: "insufficient capacity"}
	ErrDateInPast              = &Error{Code: CodeDateInPast, Message: "date is in the past"}
	ErrInvalidCapacity         = &Error{Code: CodeInvalidCapacity, Message: "invalid capacity"}
	ErrReservationExpired      = &Error{Code: CodeReservationExpired, Message: "reservation has expired"}
	ErrReservationConflict     = &Error{Code: CodeReservationConflict, Message: "reservation conflict"}
	ErrBulkUpdateLimitExceeded = &Error{Code: CodeBulkUpdateLimitExceeded, Message: "bulk update limit exceeded"}
	ErrSeasonalPricingConflict = &Error{Code: CodeSeasonalPricingConflict, Message: "seasonal pricing conflict"}
	ErrReservationNotFound     = &Error{Code: CodeReservationNotFound, Message: "reservation not found"}
	ErrSlotUnavailable         = &Error{Code: CodeSlotUnavailable, Message: "slot is not available"}
	ErrValidation              = &Error{Code: CodeValidation, Message: "validation failed"}
)

// ErrorCode extracts the stable code of err, or INTERNAL_ERROR.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsConflict checks if the error is a capacity or state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrReservationConflict) ||
		errors.Is(err, ErrSeasonalPricingConflict) ||
		errors.Is(err, ErrSlotUnavailable)
}

// IsValidation checks if the error rejects the input itself
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDateInPast) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrBulkUpdateLimitExceeded)
}

// IsBusiness reports whether err is any coded engine error, as opposed to
// an infrastructure failure.
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
