package iiif

import (
	"errors"
	"fmt"
)

// Error kinds, one per request component. Every *ParamError unwraps to one of
// these so callers can branch with errors.Is.
var (
	ErrRegion   = errors.New("invalid region")
	ErrSize     = errors.New("invalid size")
	ErrRotation = errors.New("invalid rotation")
	ErrQuality  = errors.New("invalid quality")
	ErrFormat   = errors.New("invalid format")
	ErrURI      = errors.New("invalid iiif uri")
)

// ParamError reports a rejected request component together with the raw
// input that caused it.
type ParamError struct {
	Kind   error
	Input  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Kind, e.Input)
	}
	return fmt.Sprintf("%v: %q: %s", e.Kind, e.Input, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return e.Kind
}

// NewError builds a *ParamError of the given kind.
func NewError(kind error, input, reason string) *ParamError {
	return &ParamError{Kind: kind, Input: input, Reason: reason}
}

// IsRequestError reports whether err was caused by a malformed or
// unsatisfiable request rather than by the source image or the codec.
func IsRequestError(err error) bool {
	for _, kind := range []error{ErrRegion, ErrSize, ErrRotation, ErrQuality, ErrFormat, ErrURI} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
