package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrUserNotFound  = errors.New("user not found")
)

// StatusError rejects a lifecycle request that is invalid for the order's
// current state or input. Err, when set, is the underlying cause.
type StatusError struct {
	Msg string
	Err error
}

func NewStatusError(format string, args ...any) *StatusError {
	return &StatusError{Msg: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *StatusError) Unwrap() error { return e.Err }
