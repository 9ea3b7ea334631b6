package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record does not exist or does
// not belong to the event it was requested for.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when a ticket type is not published for sale.
var ErrUnavailable = errors.New("ticket type is not available for booking")

// ValidationError is a user-correctable failure: bad coupon scope, capacity
// exceeded, illegal state transition and the like. Handlers surface its
// message directly to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
