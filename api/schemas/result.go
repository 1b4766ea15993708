// File: api/schemas/result.go
package schemas

import "time"

// ErrorKind classifies a resolution failure so callers can choose a retry or
// backoff policy without string matching.
type ErrorKind string

const (
	// ErrKindNone marks a successful or empty outcome.
	ErrKindNone ErrorKind = ""
	// ErrKindUnderstanding: the challenge intent could not be parsed
	// (e.g. no recognizable target category). Terminal for the attempt.
	ErrKindUnderstanding ErrorKind = "understanding"
	// ErrKindRecognitionUnavailable: no recognition backend could serve the
	// request. Terminal for the whole resolution.
	ErrKindRecognitionUnavailable ErrorKind = "recognition-unavailable"
	// ErrKindRateLimited: the provider is explicitly throttling. Terminal;
	// callers should back off over a longer horizon than in-process retry.
	ErrKindRateLimited ErrorKind = "rate-limited"
	// ErrKindTransient: wrong answer, refreshed tiles, misheard audio.
	// Retried up to the attempt budget.
	ErrKindTransient ErrorKind = "transient"
	// ErrKindTimeout: a wall-clock ceiling was exceeded.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindInternal: an uncaught solver error captured at the dispatcher
	// boundary.
	ErrKindInternal ErrorKind = "internal"
)

// Result is the structured outcome of one resolution call. Success=true
// implies the originating challenge's success marker was observed on the page
// after solving; solver-internal completion alone never sets it.
type Result struct {
	Success     bool           `json:"success"`
	Method      string         `json:"method,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
	Rounds      int            `json:"rounds,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   ErrorKind      `json:"errorKind,omitempty"`
	Message     string         `json:"message,omitempty"`
	Elapsed     time.Duration  `json:"elapsedMs,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// Failed reports whether the result carries an error of the given kind.
func (r Result) Failed(kind ErrorKind) bool {
	return !r.Success && r.ErrorKind == kind
}
