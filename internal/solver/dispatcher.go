// File: internal/solver/dispatcher.go
package solver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Dispatcher routes a detected challenge to its solver and owns the
// cross-cutting rules no solver should: budgets, the single modality
// fallback hop, the panic boundary, scratch lifetime, and external success
// re-verification.
type Dispatcher struct {
	logger   *zap.Logger
	detector Checker

	tileGrid   Solver
	audio      Solver
	behavioral Solver
	textOCR    Solver
}

// NewDispatcher wires the standard solver set.
func NewDispatcher(logger *zap.Logger, detector Checker) *Dispatcher {
	return &Dispatcher{
		logger:     logger.Named("dispatcher"),
		detector:   detector,
		tileGrid:   NewTileGridSolver(),
		audio:      NewAudioSolver(),
		behavioral: NewBehavioralSolver(detector),
		textOCR:    NewTextOCRSolver(),
	}
}

// Solve inspects the page and resolves the highest-ranked challenge on it.
// A page with no challenge is a success by definition and touches nothing.
func (d *Dispatcher) Solve(ctx context.Context, env *Env) schemas.Result {
	start := time.Now()
	env.Opts = env.Opts.Normalize()

	if env.Scratch == nil {
		scratch, err := NewScratch("", env.Logger)
		if err != nil {
			return d.failResult(start, "", nil, err)
		}
		env.Scratch = scratch
		defer scratch.Cleanup()
	}

	env.Emit("detecting", "")
	detections, err := d.detector.Detect(ctx, env.Page)
	if err != nil {
		return d.failResult(start, "", nil, WrapFail(schemas.ErrKindInternal, err, "detection failed"))
	}
	if len(detections) == 0 {
		env.Emit("done", "no challenge detected")
		return schemas.Result{
			Success: true,
			Method:  "none",
			Message: "no challenge detected",
			Elapsed: time.Since(start),
		}
	}

	top := detections[0]
	d.logger.Info("resolving challenge",
		zap.String("type", string(top.Type)),
		zap.String("confidence", string(top.Confidence)))

	stats, method, err := d.route(ctx, env, top)
	if err != nil {
		return d.failResult(start, method, &stats, err)
	}

	// A solver's own completion signal is never trusted: success means the
	// page itself stopped showing the challenge.
	if verr := d.reVerify(ctx, env, top); verr != nil {
		return d.failResult(start, method, &stats, verr)
	}

	env.Emit("done", "challenge resolved")
	return schemas.Result{
		Success:     true,
		Method:      method,
		Attempts:    stats.Attempts,
		Rounds:      stats.Rounds,
		Elapsed:     time.Since(start),
		Diagnostics: stats.Diagnostics,
	}
}

// route picks the solver chain for a detection. The recaptcha family gets a
// single cross-modality fallback hop; everything else maps to exactly one
// solver.
func (d *Dispatcher) route(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, string, error) {
	switch det.Type {
	case schemas.ChallengeRecaptcha:
		primary, secondary := d.tileGrid, d.audio
		if env.Opts.PreferredModality == schemas.ModalityAudio {
			primary, secondary = d.audio, d.tileGrid
		}
		stats, err := d.runSolver(ctx, env, primary, det)
		if err == nil {
			return stats, primary.Name(), nil
		}
		if !hopAllowed(KindOf(err)) {
			return stats, primary.Name(), err
		}

		env.Emit("modality-fallback", fmt.Sprintf("%s failed, trying %s", primary.Name(), secondary.Name()))
		d.logger.Info("falling back to other modality",
			zap.String("from", primary.Name()), zap.String("to", secondary.Name()), zap.Error(err))
		fbStats, fbErr := d.runSolver(ctx, env, secondary, det)
		fbStats.Attempts += stats.Attempts
		fbStats.Rounds += stats.Rounds
		mergeStrategyLog(&fbStats, stats)
		return fbStats, secondary.Name(), fbErr

	case schemas.ChallengeHCaptcha:
		stats, err := d.runSolver(ctx, env, d.tileGrid, det)
		return stats, d.tileGrid.Name(), err

	case schemas.ChallengeInterstitial, schemas.ChallengeGenericText:
		stats, err := d.runSolver(ctx, env, d.behavioral, det)
		return stats, d.behavioral.Name(), err

	case schemas.ChallengeImageText:
		stats, err := d.runSolver(ctx, env, d.textOCR, det)
		return stats, d.textOCR.Name(), err
	}

	return Stats{}, "", Failf(schemas.ErrKindUnderstanding, "no strategy for challenge type %q", det.Type)
}

// hopAllowed gates the modality fallback: throttling applies to the client,
// not the modality, so hopping would only dig the hole deeper.
func hopAllowed(kind schemas.ErrorKind) bool {
	return kind != schemas.ErrKindRateLimited
}

// mergeStrategyLog prepends the primary leg's strategy records so the final
// diagnostics show both legs of a modality fallback in order.
func mergeStrategyLog(dst *Stats, src Stats) {
	prior, _ := src.Diagnostics["strategies"].([]schemas.SolveAttempt)
	if len(prior) == 0 {
		return
	}
	if dst.Diagnostics == nil {
		dst.Diagnostics = make(map[string]any)
	}
	current, _ := dst.Diagnostics["strategies"].([]schemas.SolveAttempt)
	dst.Diagnostics["strategies"] = append(prior, current...)
}

// runSolver executes one solver under its own wall-clock ceiling and the
// panic boundary. Solver panics become internal failures instead of taking
// down the caller's process.
func (d *Dispatcher) runSolver(ctx context.Context, env *Env, s Solver, det schemas.ChallengeDetection) (stats Stats, err error) {
	solveCtx, cancel := context.WithTimeout(ctx, env.Opts.Timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("solver panicked",
				zap.String("solver", s.Name()), zap.Any("panic", r), zap.Stack("stack"))
			err = Failf(schemas.ErrKindInternal, "solver %s panicked: %v", s.Name(), r)
		}
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
		}
		if stats.Diagnostics == nil {
			stats.Diagnostics = make(map[string]any)
		}
		log, _ := stats.Diagnostics["strategies"].([]schemas.SolveAttempt)
		stats.Diagnostics["strategies"] = append(log, schemas.SolveAttempt{
			AttemptIndex: stats.Attempts,
			Strategy:     s.Name(),
			StartedAt:    started,
			Outcome:      outcome,
		})
	}()

	stats, err = s.Solve(solveCtx, env, det)
	if err != nil && solveCtx.Err() != nil && ctx.Err() == nil {
		err = WrapFail(schemas.ErrKindTimeout, err, "solver %s exceeded its %s ceiling", s.Name(), env.Opts.Timeout)
	}
	return stats, err
}

// reVerify confirms the challenge is actually gone from the page.
func (d *Dispatcher) reVerify(ctx context.Context, env *Env, det schemas.ChallengeDetection) error {
	env.Emit("re-verifying", "")
	hits, err := d.detector.Detect(ctx, env.Page)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "post-solve verification failed")
	}
	for _, h := range hits {
		if h.Type == det.Type {
			return Failf(schemas.ErrKindTransient,
				"solver completed but the %s challenge is still present", det.Type)
		}
	}
	return nil
}

func (d *Dispatcher) failResult(start time.Time, method string, stats *Stats, err error) schemas.Result {
	res := schemas.Result{
		Success:   false,
		Method:    method,
		Error:     err.Error(),
		ErrorKind: KindOf(err),
		Elapsed:   time.Since(start),
	}
	if stats != nil {
		res.Attempts = stats.Attempts
		res.Rounds = stats.Rounds
		res.Diagnostics = stats.Diagnostics
	}
	return res
}

// The narrow entry points below run a single solver without routing, for
// callers that already know what they are looking at. The budgets, panic
// boundary and re-verification rules still apply.

func (d *Dispatcher) SolveTileGrid(ctx context.Context, env *Env, det schemas.ChallengeDetection) schemas.Result {
	return d.solveDirect(ctx, env, d.tileGrid, det)
}

func (d *Dispatcher) SolveAudio(ctx context.Context, env *Env, det schemas.ChallengeDetection) schemas.Result {
	return d.solveDirect(ctx, env, d.audio, det)
}

func (d *Dispatcher) SolveBehavioral(ctx context.Context, env *Env, det schemas.ChallengeDetection) schemas.Result {
	return d.solveDirect(ctx, env, d.behavioral, det)
}

func (d *Dispatcher) SolveTextOCR(ctx context.Context, env *Env, det schemas.ChallengeDetection) schemas.Result {
	return d.solveDirect(ctx, env, d.textOCR, det)
}

func (d *Dispatcher) solveDirect(ctx context.Context, env *Env, s Solver, det schemas.ChallengeDetection) schemas.Result {
	start := time.Now()
	env.Opts = env.Opts.Normalize()

	if env.Scratch == nil {
		scratch, err := NewScratch("", env.Logger)
		if err != nil {
			return d.failResult(start, s.Name(), nil, err)
		}
		env.Scratch = scratch
		defer scratch.Cleanup()
	}

	stats, err := d.runSolver(ctx, env, s, det)
	if err != nil {
		return d.failResult(start, s.Name(), &stats, err)
	}
	if verr := d.reVerify(ctx, env, det); verr != nil {
		return d.failResult(start, s.Name(), &stats, verr)
	}
	return schemas.Result{
		Success:     true,
		Method:      s.Name(),
		Attempts:    stats.Attempts,
		Rounds:      stats.Rounds,
		Elapsed:     time.Since(start),
		Diagnostics: stats.Diagnostics,
	}
}
