// File: internal/solver/solver.go

// Package solver contains the per-challenge-type state machines and the
// dispatcher that routes detections to them. Solvers perform every page
// interaction through the behavioral simulator and every perception call
// through the recognition gateway; they own no transport or model code.
package solver

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

// Gateway is the perception surface solvers depend on. The production
// implementation is *recognition.Gateway; tests substitute fakes.
type Gateway interface {
	Classify(ctx context.Context, image []byte, category string) (schemas.RecognitionResult, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Recognize(ctx context.Context, imagePath string, profile recognition.OCRProfile) (string, error)
}

// Human is the movement surface solvers drive. *humanoid.Humanoid satisfies
// it; tests substitute a recorder that succeeds instantly.
type Human interface {
	SeedPosition(ctx context.Context, viewportW, viewportH float64) error
	MoveTo(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64) error
	ClickInBox(ctx context.Context, box schemas.ElementGeometry, fx, fy float64) error
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
	Wander(ctx context.Context, viewportW, viewportH float64) error
	ScrollBy(ctx context.Context, deltaY float64) error
}

// Env bundles everything a solver needs for one resolution call.
type Env struct {
	Page    browser.Page
	Human   Human
	Gateway Gateway
	Scratch *Scratch
	Logger  *zap.Logger
	Opts    schemas.Options
}

// Emit forwards a progress event through the options sink.
func (e *Env) Emit(state, detail string) { e.Opts.Emit(state, detail) }

// Stats reports how much work a solver did, independent of outcome.
type Stats struct {
	Attempts    int
	Rounds      int
	Diagnostics map[string]any
}

// Solver is one challenge-type state machine. Solve returns nil on internal
// completion; the dispatcher independently re-verifies against the page
// before reporting success to the caller.
type Solver interface {
	Name() string
	Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error)
}
