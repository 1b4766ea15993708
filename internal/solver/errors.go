// File: internal/solver/errors.go
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

// Failure is a solver error carrying its taxonomy kind. Solvers wrap every
// failure they surface in one so the dispatcher can map outcomes to retry
// policy without string matching.
type Failure struct {
	Kind schemas.ErrorKind
	Msg  string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Err)
	}
	return f.Msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Failf creates a failure of the given kind.
func Failf(kind schemas.ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapFail wraps an underlying error with a kind and message.
func WrapFail(kind schemas.ErrorKind, err error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind from any error. Context expiry maps to
// timeout, gateway sentinels map to their dedicated kinds, and anything
// unclassified is treated as transient so the attempt loop keeps trying.
func KindOf(err error) schemas.ErrorKind {
	if err == nil {
		return schemas.ErrKindNone
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return schemas.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return schemas.ErrKindTimeout
	case errors.Is(err, recognition.ErrRateLimited):
		return schemas.ErrKindRateLimited
	case errors.Is(err, recognition.ErrNoBackend):
		return schemas.ErrKindRecognitionUnavailable
	}
	return schemas.ErrKindTransient
}

// terminal reports whether a failure kind must stop the attempt loop instead
// of consuming another attempt.
func terminal(kind schemas.ErrorKind) bool {
	switch kind {
	case schemas.ErrKindRateLimited,
		schemas.ErrKindRecognitionUnavailable,
		schemas.ErrKindTimeout:
		return true
	}
	return false
}
