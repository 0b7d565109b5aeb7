package txclient

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by Client is an *Error whose Kind is one
// of these, so callers branch with errors.Is and never look at HTTP details.
var (
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
	ErrOutOfStock          = errors.New("out of stock")
	ErrAddFailed           = errors.New("add to cart failed")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrCheckoutFailed      = errors.New("checkout failed")
	ErrUnknownSession      = errors.New("unknown session")
	ErrResetFailed         = errors.New("reset failed")
	ErrRequestTimeout      = errors.New("request timeout")
)

// Error is a normalized boundary failure.
type Error struct {
	Kind    error
	Op      string
	Status  int    // HTTP status, 0 when no response arrived
	Message string // operator-facing text
	Payload string // response body as received
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Message != "" && e.Message != e.Kind.Error() {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind; a timed-out call also matches ErrRequestTimeout.
func (e *Error) Is(target error) bool {
	return target == e.Kind || (e.Timeout && target == ErrRequestTimeout)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the operator-facing text for err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var txErr *Error
	if errors.As(err, &txErr) && txErr.Message != "" {
		return txErr.Message
	}
	return fallback
}
