package conditions

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the message of an *Error is what
// callers surface to users.
var (
	ErrValidation           = errors.New("validation failed")
	ErrMalformedCondition   = errors.New("malformed condition")
	ErrMalformedFulfillment = errors.New("malformed fulfillment")
	ErrUnknownType          = errors.New("unknown condition type")
	ErrUnfulfilled          = errors.New("condition is not fulfilled")
	ErrCostExceeded         = errors.New("condition cost exceeds limit")
	ErrUnsupportedType      = errors.New("condition requires unsupported type")
)

// Error is a typed engine failure.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(ErrValidation, format, args...)
}
