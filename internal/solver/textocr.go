// File: internal/solver/textocr.go
package solver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

// mathExprRe matches a two-operand arithmetic challenge ("12 x 4", "7+3=").
var mathExprRe = regexp.MustCompile(`^(\d+)\s*([+\-x×*])\s*(\d+)\s*=?\s*$`)

// mathHintRe spots math-ish content that failed to parse cleanly.
var mathHintRe = regexp.MustCompile(`\d\s*[+\-x×*=]`)

var answerFieldSelectors = []string{
	`input[id*="captcha"]`,
	`input[name*="captcha"]`,
	`input[type="text"]`,
}

var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
}

// TextOCRSolver answers distorted-text and arithmetic image challenges. It
// captures the image, runs several OCR parameter profiles over a cleaned
// copy, picks the strongest candidate (or evaluates the arithmetic), and
// types the answer into the adjacent field.
type TextOCRSolver struct{}

func NewTextOCRSolver() *TextOCRSolver { return &TextOCRSolver{} }

func (s *TextOCRSolver) Name() string { return "text-ocr" }

func (s *TextOCRSolver) Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error) {
	var stats Stats
	log := env.Logger.Named("textocr")

	for attempt := 1; attempt <= env.Opts.MaxAttempts; attempt++ {
		stats.Attempts = attempt
		env.Emit("attempt", fmt.Sprintf("ocr attempt %d/%d", attempt, env.Opts.MaxAttempts))

		attemptErr := s.runAttempt(ctx, env, det, attempt, &stats, log)
		if attemptErr == nil {
			return stats, nil
		}
		kind := KindOf(attemptErr)
		log.Warn("ocr attempt failed",
			zap.Int("attempt", attempt), zap.String("kind", string(kind)), zap.Error(attemptErr))
		if terminal(kind) || kind == schemas.ErrKindUnderstanding || attempt == env.Opts.MaxAttempts {
			return stats, attemptErr
		}
	}
	return stats, Failf(schemas.ErrKindTransient, "attempt budget exhausted")
}

func (s *TextOCRSolver) runAttempt(ctx context.Context, env *Env, det schemas.ChallengeDetection, attempt int, stats *Stats, log *zap.Logger) error {
	stats.Rounds++

	img, err := env.Page.Screenshot(ctx, det.Locator)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "capturing challenge image")
	}

	// Preprocessing is best effort: a cleanup failure falls back to the raw
	// capture rather than losing the attempt.
	processed, perr := recognition.Preprocess(img)
	if perr != nil {
		log.Debug("preprocess failed, using raw capture", zap.Error(perr))
		processed = img
	}
	imagePath, err := env.Scratch.WriteFile(fmt.Sprintf("text-%d.png", attempt), processed)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "staging challenge image")
	}

	env.Emit("recognizing", "running ocr profiles")
	answer, diag, err := s.readAnswer(ctx, env, imagePath)
	if err != nil {
		return err
	}
	if stats.Diagnostics == nil {
		stats.Diagnostics = make(map[string]any)
	}
	for k, v := range diag {
		stats.Diagnostics[k] = v
	}
	log.Info("ocr answer selected", zap.String("answer", answer))

	env.Emit("submitting", "")
	if err := s.submit(ctx, env, answer); err != nil {
		return err
	}
	if err := env.Page.WaitFor(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	// The image disappearing is the only completion signal this challenge
	// shape offers.
	remaining, ferr := env.Page.FindAll(ctx, det.Locator)
	if ferr == nil && len(remaining) > 0 {
		return Failf(schemas.ErrKindTransient, "challenge image still present after submit")
	}
	return nil
}

// readAnswer runs every OCR profile and reduces the candidates to one
// answer. Arithmetic wins outright; otherwise the longest plausible
// candidate does, with cross-profile agreement noted as confidence.
func (s *TextOCRSolver) readAnswer(ctx context.Context, env *Env, imagePath string) (string, map[string]any, error) {
	var candidates []string
	var lastErr error
	for _, profile := range recognition.DefaultProfiles() {
		text, err := env.Gateway.Recognize(ctx, imagePath, profile)
		if err != nil {
			lastErr = err
			kind := KindOf(err)
			if kind == schemas.ErrKindRecognitionUnavailable || kind == schemas.ErrKindRateLimited || ctx.Err() != nil {
				return "", nil, err
			}
			continue
		}
		candidates = append(candidates, text)
	}
	if len(candidates) == 0 {
		if lastErr != nil {
			return "", nil, WrapFail(schemas.ErrKindTransient, lastErr, "every ocr profile failed")
		}
		return "", nil, Failf(schemas.ErrKindTransient, "no ocr output")
	}

	// Arithmetic challenges expect the evaluated result, not the expression.
	sawMathHint := false
	for _, c := range candidates {
		compact := strings.TrimSpace(c)
		if m := mathExprRe.FindStringSubmatch(compact); m != nil {
			result, err := evalMath(m[1], m[2], m[3])
			if err != nil {
				return "", nil, WrapFail(schemas.ErrKindUnderstanding, err, "unparseable arithmetic %q", compact)
			}
			expression := fmt.Sprintf("%s %s %s = %s", m[1], m[2], m[3], result)
			return result, map[string]any{"ocrMode": "math", "expression": expression}, nil
		}
		if mathHintRe.MatchString(compact) {
			sawMathHint = true
		}
	}

	// Truncation is the dominant OCR failure on distorted text, so the longest
	// normalized candidate wins; agreement across profiles only raises the
	// reported confidence.
	seen := make(map[string]int)
	for _, c := range candidates {
		if norm := normalizeText(c); len(norm) >= 4 {
			seen[norm]++
		}
	}
	best := ""
	for norm, count := range seen {
		if len(norm) > len(best) || (len(norm) == len(best) && count > seen[best]) {
			best = norm
		}
	}
	if best == "" {
		if sawMathHint {
			return "", nil, Failf(schemas.ErrKindUnderstanding, "arithmetic challenge did not parse")
		}
		return "", nil, Failf(schemas.ErrKindTransient, "no ocr candidate long enough to trust")
	}

	confidence := "low"
	if seen[best] >= 2 {
		confidence = "medium"
	}
	diag := map[string]any{
		"ocrMode":       "text",
		"ocrConfidence": confidence,
		"alternatives":  alternativesOf(seen, best),
	}
	return best, diag, nil
}

func (s *TextOCRSolver) submit(ctx context.Context, env *Env, answer string) error {
	// Type against the resolved element, not the search pattern: the broad
	// patterns can match any text input on the host page.
	var field string
	for _, sel := range answerFieldSelectors {
		el, err := env.Page.Find(ctx, sel)
		if err != nil {
			continue
		}
		if field = el.Selector; field == "" {
			field = sel
		}
		break
	}
	if field == "" {
		return Failf(schemas.ErrKindUnderstanding, "no answer field near the challenge image")
	}
	if err := env.Page.Type(ctx, field, answer); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "typing answer")
	}
	if err := env.Human.CognitivePause(ctx, 350, 120); err != nil {
		return err
	}

	for _, sel := range submitSelectors {
		el, err := env.Page.Find(ctx, sel)
		if err != nil {
			continue
		}
		if err := env.Human.ClickInBox(ctx, el.Box, 0.5, 0.5); err != nil {
			return WrapFail(schemas.ErrKindTransient, err, "clicking submit")
		}
		return nil
	}
	// No explicit submit control; a newline in the field triggers the form.
	if err := env.Page.Type(ctx, field, "\n"); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "submitting via enter")
	}
	return nil
}

// normalizeText strips everything but letters and digits.
func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func alternativesOf(seen map[string]int, best string) []string {
	var out []string
	for norm := range seen {
		if norm != best {
			out = append(out, norm)
		}
	}
	return out
}

func evalMath(lhs, op, rhs string) (string, error) {
	a, err := strconv.Atoi(lhs)
	if err != nil {
		return "", err
	}
	b, err := strconv.Atoi(rhs)
	if err != nil {
		return "", err
	}
	switch op {
	case "+":
		return strconv.Itoa(a + b), nil
	case "-":
		return strconv.Itoa(a - b), nil
	case "x", "×", "*":
		return strconv.Itoa(a * b), nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}
