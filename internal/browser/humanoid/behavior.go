// File: internal/browser/humanoid/behavior.go
package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// CognitivePause idles for a gaussian-distributed duration scaled by fatigue.
// The cursor drifts during the pause; humans rarely hold perfectly still.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cognitivePause(ctx, meanMs, stdDevMs)
}

func (h *Humanoid) cognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	fatigueFactor := 1.0 + h.fatigueLevel
	duration := time.Duration(fatigueFactor*(meanMs+h.rng.NormFloat64()*stdDevMs)) * time.Millisecond
	if duration <= 0 {
		return nil
	}
	h.recoverFatigue(duration)

	if duration > 20*time.Millisecond {
		return h.hesitate(ctx, duration)
	}
	return h.executor.Sleep(ctx, duration)
}

// hesitate keeps the cursor idling with smooth perlin drift for the given
// duration, maintaining the current button state. Assumes the lock is held.
func (h *Humanoid) hesitate(ctx context.Context, duration time.Duration) error {
	startPos := h.currentPos
	buttons := h.buttonsBitfield()
	startTime := time.Now()

	driftAmplitude := h.dynamicConfig.PerlinAmplitude * 1.5
	const driftFrequency = 0.5
	const updateInterval = 20 * time.Millisecond

	for time.Since(startTime) < duration {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := time.Since(startTime).Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(t*driftFrequency) * driftAmplitude,
			Y: h.noiseY.Noise1D(t*driftFrequency) * driftAmplitude,
		}
		pos := h.applyGaussianNoise(startPos.Add(drift))

		if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type: schemas.MouseMove, X: pos.X, Y: pos.Y,
			Button: schemas.ButtonNone, Buttons: buttons,
		}); err != nil {
			return err
		}
		h.currentPos = pos

		sleep := updateInterval
		if remaining := duration - time.Since(startTime); remaining < sleep {
			sleep = remaining
		}
		if sleep <= 0 {
			break
		}
		if err := h.executor.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
	return nil
}

// Wander performs a short burst of aimless movement, scrolling and idle
// pauses inside the viewport. The behavioral solver uses it to warm passive
// risk scoring before and between polls.
func (h *Humanoid) Wander(ctx context.Context, viewportW, viewportH float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewportW <= 0 || viewportH <= 0 {
		viewportW, viewportH = 1280, 800
	}

	moves := 2 + h.rng.Intn(3)
	for i := 0; i < moves; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		target := Vector2D{
			X: clamp(viewportW*0.15+h.rng.Float64()*viewportW*0.7, 1, viewportW-1),
			Y: clamp(viewportH*0.15+h.rng.Float64()*viewportH*0.7, 1, viewportH-1),
		}
		if err := h.moveTo(ctx, target); err != nil {
			return err
		}
		if err := h.cognitivePause(ctx, 350, 150); err != nil {
			return err
		}
	}

	// A reading-style scroll down and partially back up.
	if h.rng.Float64() < 0.7 {
		if err := h.scrollBy(ctx, 120+h.rng.Float64()*400); err != nil {
			return err
		}
		if h.rng.Float64() < 0.4 {
			if err := h.scrollBy(ctx, -(40 + h.rng.Float64()*120)); err != nil {
				return err
			}
		}
	}
	return nil
}

// scrollBy dispatches wheel events in uneven bursts until the total delta is
// consumed. Assumes the lock is held.
func (h *Humanoid) scrollBy(ctx context.Context, totalDeltaY float64) error {
	remaining := totalDeltaY
	direction := 1.0
	if totalDeltaY < 0 {
		direction = -1.0
	}

	for math.Abs(remaining) > 10 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		step := (50 + h.rng.Float64()*130) * direction
		if math.Abs(step) > math.Abs(remaining) {
			step = remaining
		}

		if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type: schemas.MouseWheel, X: h.currentPos.X, Y: h.currentPos.Y,
			Button: schemas.ButtonNone, DeltaY: step,
		}); err != nil {
			return err
		}
		remaining -= step

		pause := time.Duration(50+h.rng.Intn(160)) * time.Millisecond
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// ScrollBy is the locking wrapper around scrollBy.
func (h *Humanoid) ScrollBy(ctx context.Context, deltaY float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scrollBy(ctx, deltaY)
}

// applyGaussianNoise adds high-frequency tremor. Assumes the lock is held.
func (h *Humanoid) applyGaussianNoise(point Vector2D) Vector2D {
	strength := h.dynamicConfig.GaussianStrength * (0.5 + h.rng.Float64())
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*strength,
		Y: point.Y + h.rng.NormFloat64()*strength,
	}
}

// applyClickNoise models the involuntary displacement when muscles tense for
// a press, biased downward. Assumes the lock is held.
func (h *Humanoid) applyClickNoise(point Vector2D) Vector2D {
	strength := h.dynamicConfig.ClickNoise * (0.5 + h.rng.Float64())
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*strength*0.5,
		Y: point.Y + math.Abs(h.rng.NormFloat64()*strength),
	}
}

// applyFatigueEffects rederives the dynamic config from the fatigue level.
// Assumes the lock is held.
func (h *Humanoid) applyFatigueEffects() {
	factor := 1.0 + h.fatigueLevel
	h.dynamicConfig.GaussianStrength = h.baseConfig.GaussianStrength * factor
	h.dynamicConfig.PerlinAmplitude = h.baseConfig.PerlinAmplitude * factor
	h.dynamicConfig.FittsA = h.baseConfig.FittsA * factor
	h.dynamicConfig.ClickNoise = h.baseConfig.ClickNoise * factor
	h.dynamicConfig.Omega = h.baseConfig.Omega * (1.0 - h.fatigueLevel*0.3)
	h.dynamicConfig.Zeta = h.baseConfig.Zeta * (1.0 - h.fatigueLevel*0.1)
}

func (h *Humanoid) updateFatigue(intensity float64) {
	h.fatigueLevel = math.Min(1.0, h.fatigueLevel+h.baseConfig.FatigueIncreaseRate*intensity)
	h.applyFatigueEffects()
}

func (h *Humanoid) recoverFatigue(duration time.Duration) {
	h.fatigueLevel = math.Max(0.0, h.fatigueLevel-h.baseConfig.FatigueRecoveryRate*duration.Seconds())
	h.applyFatigueEffects()
}
