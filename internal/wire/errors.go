package wire

import (
	"errors"
	"fmt"
)

var (
	ErrFrameHeaderIncomplete  = errors.New("etch: frame header incomplete")
	ErrInvalidFrameStart      = errors.New("etch: invalid frame start byte")
	ErrFramePayloadIncomplete = errors.New("etch: frame payload shorter than declared length")
	ErrMalformedPayload       = errors.New("etch: frame payload is not valid JSON")
	ErrMalformedRequestShape  = errors.New("etch: malformed request")
	ErrResponseTooLarge       = errors.New("etch: payload exceeds frame length limit")
)

// RequestShapeError is returned when the payload is valid JSON
// but not a well-formed request object.
type RequestShapeError struct {
	Reason string
}

func NewRequestShapeError(format string, args ...any) error {
	return &RequestShapeError{Reason: fmt.Sprintf(format, args...)}
}

func (e *RequestShapeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedRequestShape.Error(), e.Reason)
}

func (e *RequestShapeError) Is(target error) bool {
	return target == ErrMalformedRequestShape
}

// IsFramingError reports whether the stream position is unknown after err,
// so the connection cannot be reused.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameHeaderIncomplete) ||
		errors.Is(err, ErrInvalidFrameStart) ||
		errors.Is(err, ErrFramePayloadIncomplete)
}
