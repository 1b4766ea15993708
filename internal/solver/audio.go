// File: internal/solver/audio.go
package solver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
)

// audioSelectors are the recaptcha audio-variant controls. The audio path is
// recaptcha-only; hcaptcha retired its audio option.
var audioSelectors = struct {
	switchButton string
	source       string
	downloadLink string
	response     string
	verify       string
	reload       string
	errorText    string
	rateLimit    string
}{
	switchButton: "#recaptcha-audio-button",
	source:       "audio#audio-source",
	downloadLink: ".rc-audiochallenge-tdownload-link",
	response:     "#audio-response",
	verify:       "#recaptcha-verify-button",
	reload:       "#recaptcha-reload-button",
	errorText:    ".rc-audiochallenge-error-message",
	rateLimit:    ".rc-doscaptcha-header",
}

// AudioSolver solves the spoken-digit variant: switch the widget to audio,
// download the clip, transcribe it, canonicalize the transcript and submit.
type AudioSolver struct {
	// client fetches the audio asset; it follows redirects, which the
	// providers use to hand out short-lived asset URLs.
	client *http.Client
}

func NewAudioSolver() *AudioSolver {
	return &AudioSolver{client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *AudioSolver) Name() string { return "audio-transcription" }

func (s *AudioSolver) Solve(ctx context.Context, env *Env, det schemas.ChallengeDetection) (Stats, error) {
	var stats Stats
	if det.Type != schemas.ChallengeRecaptcha {
		return stats, Failf(schemas.ErrKindUnderstanding,
			"audio modality not offered for challenge type %q", det.Type)
	}
	log := env.Logger.Named("audio")

	frame, err := env.Page.Frame(ctx, recaptchaGrid.challengeFrame)
	if err != nil {
		return stats, WrapFail(schemas.ErrKindTransient, err, "challenge frame not present")
	}

	if err := s.switchToAudio(ctx, env, frame); err != nil {
		return stats, err
	}

	for attempt := 1; attempt <= env.Opts.MaxAttempts; attempt++ {
		stats.Attempts = attempt
		env.Emit("attempt", fmt.Sprintf("audio attempt %d/%d", attempt, env.Opts.MaxAttempts))

		attemptErr := s.runAttempt(ctx, env, frame, attempt, log)
		if attemptErr == nil {
			return stats, nil
		}
		kind := KindOf(attemptErr)
		log.Warn("audio attempt failed",
			zap.Int("attempt", attempt), zap.String("kind", string(kind)), zap.Error(attemptErr))
		if terminal(kind) || attempt == env.Opts.MaxAttempts {
			return stats, attemptErr
		}

		if el, ferr := frame.Find(ctx, audioSelectors.reload); ferr == nil {
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

func (s *AudioSolver) switchToAudio(ctx context.Context, env *Env, frame browser.Page) error {
	// Already on the audio variant when the response field is present.
	if _, err := frame.Find(ctx, audioSelectors.response); err == nil {
		return nil
	}
	btn, err := frame.Find(ctx, audioSelectors.switchButton)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "audio switch button not found")
	}
	env.Emit("switching-modality", "selecting audio variant")
	if err := env.Human.ClickInBox(ctx, btn.Box, 0.5, 0.5); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "clicking audio switch")
	}
	if err := env.Page.WaitFor(ctx, 1500*time.Millisecond); err != nil {
		return err
	}
	return s.checkRateLimit(ctx, frame)
}

// checkRateLimit detects the provider's abuse interstitial, which replaces
// the audio challenge entirely and makes further attempts pointless.
func (s *AudioSolver) checkRateLimit(ctx context.Context, frame browser.Page) error {
	if els, err := frame.FindAll(ctx, audioSelectors.rateLimit); err == nil && len(els) > 0 {
		return Failf(schemas.ErrKindRateLimited, "provider blocked the audio variant for this client")
	}
	return nil
}

func (s *AudioSolver) runAttempt(ctx context.Context, env *Env, frame browser.Page, attempt int, log *zap.Logger) error {
	if err := s.checkRateLimit(ctx, frame); err != nil {
		return err
	}

	audioURL, err := s.audioURL(ctx, frame)
	if err != nil {
		return err
	}
	env.Emit("fetching-audio", "")
	audioPath, err := s.fetchAudio(ctx, env, audioURL, attempt)
	if err != nil {
		return err
	}

	env.Emit("transcribing", "")
	raw, err := env.Gateway.Transcribe(ctx, audioPath)
	if err != nil {
		return err
	}
	answer := CleanTranscript(raw)
	if answer == "" {
		return Failf(schemas.ErrKindTransient, "transcript empty after cleanup (raw %q)", truncateText(raw, 80))
	}
	log.Info("transcript ready", zap.String("answer", answer))

	env.Emit("submitting", "")
	if err := frame.Type(ctx, audioSelectors.response, answer); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "typing audio answer")
	}
	if err := env.Human.CognitivePause(ctx, 400, 150); err != nil {
		return err
	}

	btn, err := frame.Find(ctx, audioSelectors.verify)
	if err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "verify button not found")
	}
	if err := env.Human.ClickInBox(ctx, btn.Box, 0.5, 0.5); err != nil {
		return WrapFail(schemas.ErrKindTransient, err, "clicking verify")
	}
	if err := env.Page.WaitFor(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	if err := s.checkRateLimit(ctx, frame); err != nil {
		return err
	}
	if els, ferr := frame.FindAll(ctx, audioSelectors.errorText); ferr == nil && len(els) > 0 {
		return Failf(schemas.ErrKindTransient, "provider rejected the transcript")
	}
	return nil
}

func (s *AudioSolver) audioURL(ctx context.Context, frame browser.Page) (string, error) {
	if el, err := frame.Find(ctx, audioSelectors.source); err == nil {
		if src := el.Attr("src"); src != "" {
			return src, nil
		}
	}
	if el, err := frame.Find(ctx, audioSelectors.downloadLink); err == nil {
		if href := el.Attr("href"); href != "" {
			return href, nil
		}
	}
	return "", Failf(schemas.ErrKindTransient, "no audio source on the challenge")
}

// fetchAudio downloads the clip into the scratch directory.
func (s *AudioSolver) fetchAudio(ctx context.Context, env *Env, url string, attempt int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", WrapFail(schemas.ErrKindTransient, err, "building audio request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", WrapFail(schemas.ErrKindTransient, err, "downloading audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", Failf(schemas.ErrKindRateLimited, "audio asset endpoint throttled the download")
	}
	if resp.StatusCode != http.StatusOK {
		return "", Failf(schemas.ErrKindTransient, "audio download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", WrapFail(schemas.ErrKindTransient, err, "reading audio body")
	}
	return env.Scratch.WriteFile(fmt.Sprintf("challenge-%d.mp3", attempt), data)
}

// digitWords maps spoken number words to digits. "oh" is the spoken zero.
var digitWords = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// fillerWords are transcription artifacts that carry no answer content.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "the": true, "a": true, "an": true,
	"please": true, "is": true, "and": true,
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)

// fillerPhrases are spans the transcription backends commonly wrap around the
// answer. Stripped whole, before single-word cleanup.
var fillerPhrases = []string{
	"please type", "the numbers are", "what you hear", "type the following",
}

// CleanTranscript canonicalizes a raw speech transcript into the string the
// challenge expects: spoken digits collapse to numerals ("seven three oh"
// becomes "730"), filler phrases and words are dropped, everything
// non-alphanumeric is stripped, and the remainder is upper-cased. The raw
// transcript is never submitted.
func CleanTranscript(raw string) string {
	lower := strings.ToLower(raw)
	lower = nonAlnumRe.ReplaceAllString(lower, " ")
	lower = strings.Join(strings.Fields(lower), " ")
	for _, phrase := range fillerPhrases {
		lower = strings.ReplaceAll(lower, phrase, " ")
	}

	var b strings.Builder
	for _, word := range strings.Fields(lower) {
		if fillerWords[word] {
			continue
		}
		if d, ok := digitWords[word]; ok {
			b.WriteString(d)
			continue
		}
		b.WriteString(word)
	}
	return strings.ToUpper(b.String())
}
