// File: internal/browser/humanoid/humanoid.go

// Package humanoid produces human-plausible pointer, scroll and timing
// sequences for the challenge solvers. It is not a solver itself: it only
// shapes HOW actions reach the page, never WHAT gets clicked.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// maxVelocity caps cursor speed at a physiological limit (pixels/second).
const maxVelocity = 6000.0

// Executor is the minimal sink the simulator drives. The chromedp page
// satisfies it in production; tests use a recording fake.
type Executor interface {
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Humanoid holds the motor state for one simulated user on one page.
type Humanoid struct {
	// mu protects all mutable state below; every public method locks it for
	// its full duration, which also serializes event dispatch.
	mu            sync.Mutex
	baseConfig    Config
	dynamicConfig Config
	logger        *zap.Logger
	executor      Executor

	currentPos   Vector2D
	buttonState  schemas.MouseButton
	fatigueLevel float64
	rng          *rand.Rand
	noiseX       *perlin.Perlin
	noiseY       *perlin.Perlin
}

// New creates a simulator bound to an executor.
func New(config Config, logger *zap.Logger, executor Executor) *Humanoid {
	config.normalize()

	seed := time.Now().UnixNano()
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}

	// Standard perlin parameters; X and Y get decorrelated seeds.
	const alpha, beta, n = 2.0, 2.0, int32(3)

	return &Humanoid{
		baseConfig:    config,
		dynamicConfig: config,
		logger:        logger.Named("humanoid"),
		executor:      executor,
		buttonState:   schemas.ButtonNone,
		rng:           rng,
		noiseX:        perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:        perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// NewSeeded builds a deterministic instance for tests.
func NewSeeded(executor Executor, seed int64) *Humanoid {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	h := New(cfg, zap.NewNop(), executor)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)
	return h
}

// Position returns the cursor's current coordinates.
func (h *Humanoid) Position() (x, y float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos.X, h.currentPos.Y
}

// SeedPosition places the cursor somewhere plausible inside the viewport
// before the first movement (center biased, never a corner).
func (h *Humanoid) SeedPosition(ctx context.Context, viewportW, viewportH float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewportW <= 0 || viewportH <= 0 {
		viewportW, viewportH = 1280, 800
	}
	x := clamp(viewportW/2+h.rng.NormFloat64()*viewportW/8, 1, viewportW-1)
	y := clamp(viewportH/2+h.rng.NormFloat64()*viewportH/8, 1, viewportH-1)
	h.currentPos = Vector2D{X: x, Y: y}

	return h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type: schemas.MouseMove, X: x, Y: y, Button: schemas.ButtonNone,
	})
}

// MoveTo eases the cursor to the target coordinates along a simulated
// trajectory, ending with a short verification pause.
func (h *Humanoid) MoveTo(ctx context.Context, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveTo(ctx, Vector2D{X: x, Y: y})
}

func (h *Humanoid) moveTo(ctx context.Context, target Vector2D) error {
	start := h.currentPos
	dist := start.Dist(target)
	if dist < 1.5 {
		return nil
	}

	h.updateFatigue(dist / 1000.0)

	if _, err := h.simulateTrajectory(ctx, start, target); err != nil {
		return err
	}

	if dist > 20.0 {
		pause := h.terminalFittsPause(dist)
		h.recoverFatigue(pause)
		if err := h.hesitate(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// Click moves to (x, y) and performs a full press-hold-release cycle with
// click noise, hold tremor and fatigue accounting.
func (h *Humanoid) Click(ctx context.Context, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveTo(ctx, Vector2D{X: x, Y: y}); err != nil {
		return err
	}
	if err := h.cognitivePause(ctx, 60, 25); err != nil {
		return err
	}

	pressPos := h.applyClickNoise(h.currentPos)
	if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type: schemas.MousePress, X: pressPos.X, Y: pressPos.Y,
		Button: schemas.ButtonLeft, Buttons: 1, ClickCount: 1,
	}); err != nil {
		return err
	}
	h.currentPos = pressPos
	h.buttonState = schemas.ButtonLeft

	// Tremor while the button is held; cleanup with a detached context if
	// the hold is interrupted so the button never stays virtually pressed.
	if err := h.hesitate(ctx, h.clickHoldDuration()); err != nil {
		h.logger.Warn("click hold interrupted, releasing mouse", zap.Error(err))
		_ = h.releaseMouse(context.WithoutCancel(ctx))
		return err
	}

	h.currentPos = h.applyClickNoise(h.currentPos)
	if err := h.releaseMouse(ctx); err != nil {
		return err
	}

	h.updateFatigue(0.1)
	return nil
}

// ClickInBox clicks at a fractional offset inside a bounding box. fx/fy in
// [0,1] pick the aim point; small gaussian spread keeps repeated clicks from
// landing on the identical pixel.
func (h *Humanoid) ClickInBox(ctx context.Context, box schemas.ElementGeometry, fx, fy float64) error {
	if box.Width <= 0 || box.Height <= 0 {
		return h.Click(ctx, box.X, box.Y)
	}
	h.mu.Lock()
	x := box.X + box.Width*fx + h.rng.NormFloat64()*box.Width*0.04
	y := box.Y + box.Height*fy + h.rng.NormFloat64()*box.Height*0.04
	h.mu.Unlock()

	x = clamp(x, box.X+1, box.X+box.Width-1)
	y = clamp(y, box.Y+1, box.Y+box.Height-1)
	return h.Click(ctx, x, y)
}

func (h *Humanoid) releaseMouse(ctx context.Context) error {
	if h.buttonState != schemas.ButtonLeft {
		return nil
	}
	err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type: schemas.MouseRelease, X: h.currentPos.X, Y: h.currentPos.Y,
		Button: schemas.ButtonLeft, Buttons: 0, ClickCount: 1,
	})
	if err != nil {
		h.logger.Error("failed to dispatch mouse release, clearing state anyway", zap.Error(err))
	}
	h.buttonState = schemas.ButtonNone
	return err
}

func (h *Humanoid) buttonsBitfield() int64 {
	switch h.buttonState {
	case schemas.ButtonLeft:
		return 1
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
