// File: internal/solver/behavioral.go
package solver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
)

// Checker re-inspects a page for challenges. The production implementation
// is the detector; tests script its answers.
type Checker interface {
	Detect(ctx context.Context, page browser.Page) ([]schemas.ChallengeDetection, error)
}

// interactiveWidgets are clickable elements some managed challenges expose.
// Clicking one once can shortcut an otherwise passive wait.
var interactiveWidgets = []string{
	".cf-turnstile",
	".ctp-checkbox-label",
	`#challenge-stage input[type="checkbox"]`,
}

// BehavioralSolver handles interstitials and low-confidence text matches
// where there is nothing to answer: the tenant's risk engine watches the
// session, so the solver produces plausible activity and polls for the
// challenge to clear itself. Success is judged solely by the challenge
// disappearing; there is no internal completion signal to trust.
type BehavioralSolver struct {
	checker Checker
}

func NewBehavioralSolver(checker Checker) *BehavioralSolver {
	return &BehavioralSolver{checker: checker}
}

func (s *BehavioralSolver) Name() string { return "behavioral" }

func (s *BehavioralSolver) Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error) {
	var stats Stats
	stats.Attempts = 1
	log := env.Logger.Named("behavioral")

	w, h := s.viewport(ctx, env.Page)
	if err := env.Human.SeedPosition(ctx, w, h); err != nil {
		return stats, WrapFail(schemas.ErrKindTransient, err, "seeding cursor")
	}

	clickedWidget := false
	for {
		stats.Rounds++
		env.Emit("polling", fmt.Sprintf("behavioral poll %d", stats.Rounds))

		// Activity comes first: the risk engine should see a live session
		// before the page is inspected or anything gets clicked.
		if err := env.Human.Wander(ctx, w, h); err != nil {
			return stats, s.mapWaitErr(ctx, err)
		}

		cleared, err := s.cleared(ctx, env, det)
		if err != nil {
			return stats, err
		}
		if cleared {
			log.Info("challenge cleared", zap.Int("polls", stats.Rounds))
			return stats, nil
		}

		if !clickedWidget {
			if clicked, err := s.clickWidget(ctx, env, log); err != nil {
				return stats, err
			} else if clicked {
				clickedWidget = true
			}
		}

		// Jittered poll interval; a fixed cadence is itself a signal.
		pause := 1500*time.Millisecond + time.Duration(rand.Int63n(1500))*time.Millisecond
		if err := env.Page.WaitFor(ctx, pause); err != nil {
			return stats, s.mapWaitErr(ctx, err)
		}
	}
}

// cleared reports whether the originating challenge type is gone from the
// page. Other detections do not count: a new, different challenge appearing
// is the dispatcher's problem.
func (s *BehavioralSolver) cleared(ctx context.Context, env *Env, det schemas.ChallengeDetection) (bool, error) {
	hits, err := s.checker.Detect(ctx, env.Page)
	if err != nil {
		return false, WrapFail(schemas.ErrKindTransient, err, "re-inspecting page")
	}
	for _, h := range hits {
		if h.Type == det.Type {
			return false, nil
		}
	}
	return true, nil
}

// clickWidget clicks the first interactive widget it finds, off center the
// way a human aims at a checkbox label. At most one click per resolution;
// repeated clicking toggles some widgets back off.
func (s *BehavioralSolver) clickWidget(ctx context.Context, env *Env, log *zap.Logger) (bool, error) {
	for _, sel := range interactiveWidgets {
		el, err := env.Page.Find(ctx, sel)
		if err != nil {
			continue
		}
		if el.Box.Width <= 0 || el.Box.Height <= 0 {
			continue
		}
		log.Debug("clicking interactive widget", zap.String("selector", sel))
		env.Emit("engaging", "clicking challenge widget")
		fx := 0.3 + rand.Float64()*0.25
		fy := 0.4 + rand.Float64()*0.2
		if err := env.Human.ClickInBox(ctx, el.Box, fx, fy); err != nil {
			return false, s.mapWaitErr(ctx, err)
		}
		return true, nil
	}
	return false, nil
}

func (s *BehavioralSolver) viewport(ctx context.Context, page browser.Page) (float64, float64) {
	var vp struct {
		W float64 `json:"w"`
		H float64 `json:"h"`
	}
	if err := page.Evaluate(ctx, `({w: window.innerWidth, h: window.innerHeight})`, &vp); err != nil || vp.W <= 0 || vp.H <= 0 {
		return 1280, 800
	}
	return vp.W, vp.H
}

// mapWaitErr turns context expiry into the timeout failure the taxonomy
// expects; everything else passes through.
func (s *BehavioralSolver) mapWaitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return WrapFail(schemas.ErrKindTimeout, err, "behavioral wait exceeded its ceiling")
	}
	return WrapFail(schemas.ErrKindTransient, err, "behavioral activity failed")
}
