// File: internal/solver/tilegrid.go
package solver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

// gridProfile carries the provider-specific selectors for one widget family.
// The state machine itself is provider-agnostic.
type gridProfile struct {
	name           string
	anchorFrame    string
	checkbox       string
	checkedMarker  string
	challengeFrame string
	instructions   string
	tiles          string
	tileImages     string
	selectedClass  string
	selectedAttr   string
	verify         string
	reload         string
	errorText      string
	rateLimitText  string
}

var recaptchaGrid = gridProfile{
	name:           "recaptcha",
	anchorFrame:    `iframe[src*="recaptcha"][src*="anchor"]`,
	checkbox:       "#recaptcha-anchor",
	checkedMarker:  `#recaptcha-anchor[aria-checked="true"]`,
	challengeFrame: `iframe[src*="recaptcha"][src*="bframe"]`,
	instructions:   ".rc-imageselect-desc-wrapper, .rc-imageselect-desc, .rc-imageselect-desc-no-canonical",
	tiles:          "td.rc-imageselect-tile",
	tileImages:     "td.rc-imageselect-tile img",
	selectedClass:  "rc-imageselect-tileselected",
	verify:         "#recaptcha-verify-button",
	reload:         "#recaptcha-reload-button",
	errorText:      ".rc-imageselect-incorrect-response, .rc-imageselect-error-select-more, .rc-imageselect-error-dynamic-more",
	rateLimitText:  ".rc-doscaptcha-header",
}

var hcaptchaGrid = gridProfile{
	name:           "hcaptcha",
	anchorFrame:    `iframe[src*="hcaptcha.com"][src*="checkbox"]`,
	checkbox:       "#checkbox",
	checkedMarker:  `#checkbox[aria-checked="true"]`,
	challengeFrame: `iframe[src*="hcaptcha.com"][src*="challenge"]`,
	instructions:   ".prompt-text",
	tiles:          ".task-image",
	tileImages:     ".task-image .image",
	selectedAttr:   "aria-pressed",
	verify:         ".button-submit",
	reload:         ".refresh.button",
	errorText:      ".display-error",
	rateLimitText:  ".rate-limited",
}

// dynamicGridRe detects instructions that promise replacement tiles after
// each click ("click verify once there are none left").
var dynamicGridRe = regexp.MustCompile(`(?i)(none left|no more|new images will appear|until there are none)`)

// errNoTiles marks a challenge frame that rendered without a tile grid.
// Reloading such a widget yields the same empty frame, so the attempt loop
// gives up on it instead of retrying.
var errNoTiles = errors.New("no tiles found")

// Poll ceilings, vars so tests can shrink them.
var (
	challengeFrameTimeout = 6 * time.Second
	gridRefreshTimeout    = 4 * time.Second
)

// TileGridSolver drives image-grid challenges: read the instruction, classify
// every unselected tile, click the matches, wait out any tile replacement,
// and submit. One attempt spans up to Opts.MaxRounds of those passes.
type TileGridSolver struct{}

func NewTileGridSolver() *TileGridSolver { return &TileGridSolver{} }

func (s *TileGridSolver) Name() string { return "image-classification" }

func profileFor(t schemas.ChallengeType) (gridProfile, error) {
	switch t {
	case schemas.ChallengeRecaptcha:
		return recaptchaGrid, nil
	case schemas.ChallengeHCaptcha:
		return hcaptchaGrid, nil
	}
	return gridProfile{}, fmt.Errorf("no grid profile for challenge type %q", t)
}

func (s *TileGridSolver) Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error) {
	var stats Stats
	profile, err := profileFor(det.Type)
	if err != nil {
		return stats, WrapFail(schemas.ErrKindUnderstanding, err, "unsupported grid challenge")
	}
	log := env.Logger.Named("tilegrid").With(zap.String("provider", profile.name))

	if err := s.engageCheckbox(ctx, env, profile, log); err != nil {
		return stats, err
	}

	frame, err := s.awaitChallengeFrame(ctx, env, profile)
	if err != nil {
		// A checkbox that turns green without a grid is the best outcome.
		if s.checkboxPassed(ctx, env, profile) {
			log.Info("challenge passed at the checkbox, no grid presented")
			return stats, nil
		}
		return stats, err
	}

	for attempt := 1; attempt <= env.Opts.MaxAttempts; attempt++ {
		stats.Attempts = attempt
		env.Emit("attempt", fmt.Sprintf("%s attempt %d/%d", profile.name, attempt, env.Opts.MaxAttempts))

		attemptErr := s.runAttempt(ctx, env, frame, profile, &stats, log)
		if attemptErr == nil {
			return stats, nil
		}
		kind := KindOf(attemptErr)
		log.Warn("grid attempt failed",
			zap.Int("attempt", attempt), zap.String("kind", string(kind)), zap.Error(attemptErr))
		if terminal(kind) || errors.Is(attemptErr, errNoTiles) {
			return stats, attemptErr
		}
		if attempt == env.Opts.MaxAttempts {
			return stats, attemptErr
		}

		// Fresh grid for the next attempt.
		if el, ferr := frame.Find(ctx, profile.reload); ferr == nil {
			if cerr := env.Human.ClickInBox(ctx, el.Box, 0.5, 0.5); cerr != nil {
				return stats, cerr
			}
			if werr := env.Page.WaitFor(ctx, 1200*time.Millisecond); werr != nil {
				return stats, werr
			}
		}
	}
	return stats, Failf(schemas.ErrKindTransient, "attempt budget exhausted")
}

// engageCheckbox clicks the widget checkbox inside its anchor frame. Widgets
// rendered without one (invisible/pre-expanded variants) are tolerated.
func (s *TileGridSolver) engageCheckbox(ctx context.Context, env *Env, profile gridProfile, log *zap.Logger) error {
	anchor, err := env.Page.Frame(ctx, profile.anchorFrame)
	if err != nil {
		log.Debug("no anchor frame, assuming pre-expanded challenge", zap.Error(err))
		return nil
	}
	box, err := anchor.Find(ctx, profile.checkbox)
	if err != nil {
		log.Debug("no checkbox in anchor frame", zap.Error(err))
		return nil
	}
	env.Emit("engaging", "clicking widget checkbox")
	if err := env.Human.ClickInBox(ctx, box.Box, 0.45, 0.5); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "clicking checkbox")
	}
	return env.Page.WaitFor(ctx, 1500*time.Millisecond)
}

// awaitChallengeFrame polls for the grid frame for a few seconds.
func (s *TileGridSolver) awaitChallengeFrame(ctx context.Context, env *Env, profile gridProfile) (browser.Page, error) {
	deadline := time.Now().Add(challengeFrameTimeout)
	for {
		frame, err := env.Page.Frame(ctx, profile.challengeFrame)
		if err == nil {
			return frame, nil
		}
		if time.Now().After(deadline) {
			return nil, Failf(schemas.ErrKindTransient, "challenge frame never appeared")
		}
		if err := env.Page.WaitFor(ctx, 500*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

func (s *TileGridSolver) checkboxPassed(ctx context.Context, env *Env, profile gridProfile) bool {
	anchor, err := env.Page.Frame(ctx, profile.anchorFrame)
	if err != nil {
		return false
	}
	els, err := anchor.FindAll(ctx, profile.checkedMarker)
	return err == nil && len(els) > 0
}

// runAttempt executes the round loop for one grid instance.
func (s *TileGridSolver) runAttempt(ctx context.Context, env *Env, frame browser.Page, profile gridProfile, stats *Stats, log *zap.Logger) error {
	for round := 1; round <= env.Opts.MaxRounds; round++ {
		stats.Rounds++

		env.Emit("reading-instructions", "")
		category, dynamic, err := s.readInstructions(ctx, frame, profile)
		if err != nil {
			return err
		}
		log.Debug("instructions parsed",
			zap.String("category", category), zap.Bool("dynamic", dynamic), zap.Int("round", round))

		tiles, err := frame.FindAll(ctx, profile.tiles)
		if err != nil {
			return WrapFail(schemas.ErrKindTransient, err, "querying tiles")
		}
		if len(tiles) == 0 {
			return WrapFail(schemas.ErrKindUnderstanding, errNoTiles, "grid rendered empty")
		}

		env.Emit("classifying", fmt.Sprintf("%d tiles, category %q", len(tiles), category))
		classifications, err := s.classifyTiles(ctx, env, frame, profile, tiles, category, log)
		if err != nil {
			return err
		}
		matches := matchIndices(classifications, env.Opts.ConfidenceThreshold)
		log.Info("tiles classified", zap.Int("round", round),
			zap.Int("tiles", len(tiles)), zap.Ints("matches", matches))

		rec := schemas.Round{RoundIndex: round, TilesSeen: len(tiles), TilesClicked: len(matches)}

		if len(matches) == 0 {
			// Nothing matched: either a legitimately empty grid or a dynamic
			// grid that ran dry. Submit and let the provider judge.
			s.recordRound(stats, rec, classifications)
			return s.verify(ctx, env, frame, profile)
		}

		env.Emit("clicking", fmt.Sprintf("%d matching tiles", len(matches)))
		if err := s.clickTiles(ctx, env, tiles, matches); err != nil {
			s.recordRound(stats, rec, classifications)
			return err
		}

		if !dynamic {
			s.recordRound(stats, rec, classifications)
			return s.verify(ctx, env, frame, profile)
		}
		changed, err := s.awaitRefresh(ctx, env, frame, profile, matches)
		if err != nil {
			s.recordRound(stats, rec, classifications)
			return err
		}
		rec.TilesChangedAfter = changed
		s.recordRound(stats, rec, classifications)
		log.Debug("dynamic grid refreshed",
			zap.Int("clicked", len(matches)), zap.Int("changed", changed))
	}

	// Round budget spent on a dynamic grid; submit whatever state remains.
	return s.verify(ctx, env, frame, profile)
}

// readInstructions extracts the target category from the prompt text.
func (s *TileGridSolver) readInstructions(ctx context.Context, frame browser.Page, profile gridProfile) (string, bool, error) {
	el, err := frame.Find(ctx, profile.instructions)
	if err != nil {
		return "", false, WrapFail(schemas.ErrKindUnderstanding, err, "no instruction text found")
	}
	category, ok := recognition.FindCategory(el.Text)
	if !ok {
		// Prompts outside the lexicon still name their target after a
		// connective ("with", "containing", "select").
		category, ok = recognition.HeuristicCategory(el.Text)
	}
	if !ok {
		return "", false, Failf(schemas.ErrKindUnderstanding,
			"no recognizable category in instructions %q", truncateText(el.Text, 120))
	}
	return category, dynamicGridRe.MatchString(el.Text), nil
}

// classifyTiles screenshots and classifies every unselected tile. A single
// tile failing perception is skipped, not fatal; backend exhaustion and
// throttling abort the attempt.
func (s *TileGridSolver) classifyTiles(ctx context.Context, env *Env, frame browser.Page, profile gridProfile, tiles []*browser.Element, category string, log *zap.Logger) ([]schemas.TileClassification, error) {
	var results []schemas.TileClassification
	for i, tile := range tiles {
		if s.tileSelected(tile, profile) {
			continue
		}
		img, err := frame.Screenshot(ctx, tile.Selector)
		if err != nil {
			log.Debug("tile screenshot failed, skipping", zap.Int("tile", i), zap.Error(err))
			continue
		}
		res, err := env.Gateway.Classify(ctx, img, category)
		if err != nil {
			kind := KindOf(err)
			if kind == schemas.ErrKindRateLimited || kind == schemas.ErrKindRecognitionUnavailable || ctx.Err() != nil {
				return nil, err
			}
			log.Debug("tile classification failed, skipping", zap.Int("tile", i), zap.Error(err))
			continue
		}
		results = append(results, schemas.TileClassification{
			TileIndex:  i,
			Category:   category,
			Match:      res.Match,
			Confidence: res.Confidence,
			Backend:    res.Backend,
		})
	}
	return results, nil
}

// matchIndices reduces a round's classifications to the tiles worth clicking.
func matchIndices(classifications []schemas.TileClassification, threshold float64) []int {
	var matches []int
	for _, c := range classifications {
		if c.Match && c.Confidence >= threshold {
			matches = append(matches, c.TileIndex)
		}
	}
	sort.Ints(matches)
	return matches
}

// recordRound files the round's outcome into the attempt diagnostics. The
// classification snapshot is per-round; only the latest is kept.
func (s *TileGridSolver) recordRound(stats *Stats, rec schemas.Round, classifications []schemas.TileClassification) {
	if stats.Diagnostics == nil {
		stats.Diagnostics = make(map[string]any)
	}
	rounds, _ := stats.Diagnostics["rounds"].([]schemas.Round)
	stats.Diagnostics["rounds"] = append(rounds, rec)
	stats.Diagnostics["classifications"] = classifications
}

func (s *TileGridSolver) tileSelected(tile *browser.Element, profile gridProfile) bool {
	if profile.selectedClass != "" && tile.HasClass(profile.selectedClass) {
		return true
	}
	if profile.selectedAttr != "" && tile.Attr(profile.selectedAttr) == "true" {
		return true
	}
	return false
}

// clickTiles clicks the matched tiles in ascending index order with short
// pauses between, the cadence of someone scanning the grid left to right.
func (s *TileGridSolver) clickTiles(ctx context.Context, env *Env, tiles []*browser.Element, matches []int) error {
	for _, idx := range matches {
		if idx < 0 || idx >= len(tiles) {
			continue
		}
		if err := env.Human.ClickInBox(ctx, tiles[idx].Box, 0.5, 0.5); err != nil {
			return WrapFail(schemas.ErrKindTransient, err, "clicking tile %d", idx)
		}
		if err := env.Human.CognitivePause(ctx, 300, 120); err != nil {
			return err
		}
	}
	return nil
}

// awaitRefresh waits for clicked tiles of a dynamic grid to be replaced,
// bounded by a short deadline, and returns how many actually changed. The
// count heuristic is approximate: providers fade replacements in, so a
// missing change often just means we looked too early, which the next
// round's reclassification absorbs.
func (s *TileGridSolver) awaitRefresh(ctx context.Context, env *Env, frame browser.Page, profile gridProfile, clicked []int) (int, error) {
	before, err := s.tileFingerprints(ctx, frame, profile)
	if err != nil {
		return 0, nil
	}

	env.Emit("awaiting-refresh", fmt.Sprintf("waiting for %d tiles to change", len(clicked)))
	deadline := time.Now().Add(gridRefreshTimeout)
	changed := 0
	for {
		if err := env.Page.WaitFor(ctx, 500*time.Millisecond); err != nil {
			return changed, err
		}
		after, err := s.tileFingerprints(ctx, frame, profile)
		if err == nil {
			changed = 0
			for _, idx := range clicked {
				if idx >= len(before) || idx >= len(after) || before[idx] != after[idx] {
					changed++
				}
			}
			if changed >= len(clicked) {
				return changed, nil
			}
		}
		if time.Now().After(deadline) {
			return changed, nil
		}
	}
}

// tileFingerprints captures a per-tile identity (image source or style) for
// change detection across a refresh.
func (s *TileGridSolver) tileFingerprints(ctx context.Context, frame browser.Page, profile gridProfile) ([]string, error) {
	els, err := frame.FindAll(ctx, profile.tileImages)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(els))
	for i, el := range els {
		if src := el.Attr("src"); src != "" {
			out[i] = src
			continue
		}
		out[i] = el.Attr("style")
	}
	return out, nil
}

// verify submits the grid and inspects the immediate reaction. Absence of a
// rejection is treated as internal completion; the dispatcher still
// re-verifies against the page before reporting success.
func (s *TileGridSolver) verify(ctx context.Context, env *Env, frame browser.Page, profile gridProfile) error {
	env.Emit("verifying", "submitting grid")
	btn, err := frame.Find(ctx, profile.verify)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "verify button not found")
	}
	if err := env.Human.ClickInBox(ctx, btn.Box, 0.5, 0.5); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "clicking verify")
	}
	if err := env.Page.WaitFor(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	if els, ferr := frame.FindAll(ctx, profile.rateLimitText); ferr == nil && len(els) > 0 {
		return Failf(schemas.ErrKindRateLimited, "provider is throttling this client")
	}
	if els, ferr := frame.FindAll(ctx, profile.errorText); ferr == nil && len(els) > 0 {
		return Failf(schemas.ErrKindTransient, "provider rejected the answer")
	}
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
