// File: internal/browser/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

const (
	// timeStep is the physics granularity (5ms, 200Hz).
	timeStep = 5 * time.Millisecond
	// maxSimulationTime bounds a single movement if the spring never settles.
	maxSimulationTime = 10 * time.Second
)

// simulateTrajectory moves the cursor with a spring-damped model overlaid
// with perlin drift and gaussian tremor. The velocity profile this produces
// is eased, never linear, and includes occasional mid-flight corrections.
// Assumes the caller holds the lock.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) (Vector2D, error) {
	pos := start
	velocity := Vector2D{}
	elapsed := time.Duration(0)

	omega := h.dynamicConfig.Omega
	zeta := h.dynamicConfig.Zeta
	perlinMagnitude := h.dynamicConfig.PerlinAmplitude
	const perlinFrequency = 0.8

	buttons := h.buttonsBitfield()
	rng := h.rng

	currentTarget := end
	correcting := false
	initialDist := start.Dist(end)
	startTime := time.Now()

	for elapsed < maxSimulationTime {
		if ctx.Err() != nil {
			return velocity, ctx.Err()
		}

		distToTarget := pos.Dist(currentTarget)
		speed := velocity.Mag()

		if distToTarget < 1.0 && speed < 50.0 {
			if currentTarget == end {
				break
			}
			// Submovement settled; refocus on the real target.
			currentTarget = end
			correcting = false
			continue
		}

		// Occasionally adjust mid-flight when arrival is imminent but the
		// cursor is still off target, the way a real hand re-aims.
		if !correcting && initialDist > 60.0 {
			ttc := distToTarget / math.Max(1.0, speed)
			if ttc < 0.1 && distToTarget > 15.0 && rng.Float64() < 0.3 {
				correcting = true
				adjust := 0.8 + rng.Float64()*0.4
				currentTarget = pos.Add(end.Sub(pos).Mul(adjust))
			}
		}

		// Spring toward the target, damped against current velocity.
		springForce := currentTarget.Sub(pos).Mul(omega * omega)
		dampingForce := velocity.Mul(-2.0 * zeta * omega)
		acceleration := springForce.Add(dampingForce)

		dt := timeStep.Seconds()
		velocity = velocity.Add(acceleration.Mul(dt))
		if velocity.Mag() > maxVelocity {
			velocity = velocity.Normalize().Mul(maxVelocity)
		}
		pos = pos.Add(velocity.Mul(dt))

		// Low-frequency drift plus high-frequency tremor.
		t := time.Since(startTime).Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(t*perlinFrequency) * perlinMagnitude,
			Y: h.noiseY.Noise1D(t*perlinFrequency) * perlinMagnitude,
		}
		perturbed := h.applyGaussianNoise(pos.Add(drift))

		if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
			Type: schemas.MouseMove, X: perturbed.X, Y: perturbed.Y,
			Button: schemas.ButtonNone, Buttons: buttons,
		}); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("failed to dispatch mouse move", zap.Error(err))
			}
			return velocity, err
		}

		h.currentPos = perturbed
		elapsed += timeStep

		// Jitter the sleep slightly to avoid perfect periodicity.
		sleep := timeStep + time.Duration(rng.Intn(3)-1)*time.Millisecond
		if sleep > 0 {
			if err := h.executor.Sleep(ctx, sleep); err != nil {
				return velocity, err
			}
		}
	}

	if elapsed >= maxSimulationTime {
		h.logger.Warn("movement simulation hit time ceiling",
			zap.Float64("distance", initialDist))
	}
	return velocity, nil
}

// terminalFittsPause is the verification time after a movement, from Fitts's
// law with +/-15% jitter. Assumes the lock is held.
func (h *Humanoid) terminalFittsPause(distance float64) time.Duration {
	const targetWidth = 20.0
	id := math.Log2(1.0 + distance/targetWidth)
	mt := h.dynamicConfig.FittsA + h.dynamicConfig.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt) * time.Millisecond
}

// clickHoldDuration samples how long the button stays pressed, skewed toward
// quick clicks and lengthened by fatigue. Assumes the lock is held.
func (h *Humanoid) clickHoldDuration() time.Duration {
	minMs := float64(h.baseConfig.ClickHoldMinMs)
	maxMs := float64(h.baseConfig.ClickHoldMaxMs)

	mean := (minMs + maxMs) / 2.0 * 0.9
	stdDev := (maxMs - minMs) / 5.0
	ms := clamp(mean+h.rng.NormFloat64()*stdDev, minMs, maxMs)
	ms *= 1.0 + h.fatigueLevel*0.25

	return time.Duration(ms) * time.Millisecond
}
