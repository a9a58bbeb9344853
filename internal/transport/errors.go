package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure surfaced by the transport and gateway.
type Kind string

const (
	KindNetwork    Kind = "NETWORK"
	KindHTTP       Kind = "HTTP"
	KindMalformed  Kind = "MALFORMED"
	KindValidation Kind = "VALIDATION"
)

var (
	ErrNetwork    = errors.New("network failure")
	ErrHTTP       = errors.New("http failure")
	ErrMalformed  = errors.New("malformed response")
	ErrValidation = errors.New("validation failure")
)

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	case KindValidation:
		return "validation: " + e.Message
	default:
		return strings.ToLower(string(e.Kind)) + ": " + e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// Validationf builds a client-side precondition failure.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func malformed(err error, format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts a transport error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Describe returns the user-facing message and status code for err. Non-transport
// errors are reported verbatim with no code.
func Describe(err error) (string, int) {
	if err == nil {
		return "", 0
	}
	if te, ok := AsError(err); ok {
		return te.Message, te.Status
	}
	return err.Error(), 0
}
