// File: api/schemas/options.go
package schemas

import "time"

// Default budgets applied by Options.Normalize.
const (
	DefaultMaxAttempts         = 3
	DefaultMaxRounds           = 5
	DefaultTimeout             = 90 * time.Second
	DefaultConfidenceThreshold = 0.3
)

// Options tunes a single resolution call. The zero value is valid; unset
// fields fall back to the defaults above.
type Options struct {
	// MaxAttempts bounds full attempts per solver (instructions read through
	// verification).
	MaxAttempts int
	// MaxRounds bounds classify-click-refresh passes inside one tile-grid
	// attempt.
	MaxRounds int
	// Timeout is the wall-clock ceiling for each solver, measured from its
	// own entry.
	Timeout time.Duration
	// ConfidenceThreshold is the minimum classifier confidence for a tile to
	// count as a match.
	ConfidenceThreshold float64
	// PreferLocal puts the local model ahead of cloud backends in the
	// recognition fallback order.
	PreferLocal bool
	// PreferredModality selects which recaptcha-family solver runs first;
	// the other runs once as fallback.
	PreferredModality Modality
	// OnProgress receives one event per state transition. May be nil.
	OnProgress ProgressSink
}

// Normalize fills unset fields with defaults and returns the receiver by
// value so callers can chain it.
func (o Options) Normalize() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.PreferredModality == "" {
		o.PreferredModality = ModalityImage
	}
	return o
}

// Emit forwards a progress event to the configured sink, if any.
func (o Options) Emit(state, detail string) {
	if o.OnProgress != nil {
		o.OnProgress.Progress(ProgressEvent{State: state, Detail: detail})
	}
}
