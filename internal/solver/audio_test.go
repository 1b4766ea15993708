// File: internal/solver/audio_test.go
package solver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
)

func TestCleanTranscript(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"spoken digits collapse", "Seven three oh.", "730"},
		{"mixed digit words and numerals", "seven 3 oh", "730"},
		{"fillers stripped from digits", "um, seven three oh please", "730"},
		{"filler phrase stripped", "Please type the numbers are seven three oh", "730"},
		{"word answer upper-cased", "Morning taxi ride", "MORNINGTAXIRIDE"},
		{"punctuation stripped", "seven, three... oh!", "730"},
		{"empty after cleanup", "um, uh, the", ""},
		{"zero variants", "zero oh o", "000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanTranscript(tc.raw))
		})
	}
}

// newAudioChallengePage builds a page with an audio-variant recaptcha frame
// already expanded, its clip served by the given URL.
func newAudioChallengePage(audioURL string) (*fakePage, *fakePage) {
	page := newFakePage()
	challenge := newFakePage()
	page.frames[recaptchaGrid.challengeFrame] = challenge

	challenge.addElement(audioSelectors.response, &browser.Element{})
	challenge.addElement(audioSelectors.source, &browser.Element{
		Attributes: map[string]string{"src": audioURL},
	})
	challenge.addElement(audioSelectors.verify, &browser.Element{
		Box: schemas.ElementGeometry{X: boxVerify, Width: 120, Height: 40},
	})
	challenge.addElement(audioSelectors.reload, &browser.Element{
		Box: schemas.ElementGeometry{X: boxReload, Width: 30, Height: 30},
	})
	return page, challenge
}

func TestAudioSolverHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	page, _ := newAudioChallengePage(srv.URL)
	gw := &fakeGateway{
		transcribeFn: func(audioPath string) (string, error) {
			return "seven three oh", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)

	det := schemas.ChallengeDetection{Type: schemas.ChallengeRecaptcha, Confidence: schemas.ConfidenceHigh}
	stats, err := NewAudioSolver().Solve(context.Background(), env, det)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Attempts)

	challenge := page.frames[recaptchaGrid.challengeFrame]
	assert.Equal(t, []string{"730"}, challenge.typedInto(audioSelectors.response))
}

func TestAudioSolverRateLimitAbortsAfterOneAttempt(t *testing.T) {
	page, challenge := newAudioChallengePage("http://unused.invalid/clip")
	challenge.addElement(audioSelectors.rateLimit, &browser.Element{
		Text: "Try again later",
	})

	env, _ := newTestEnv(t, page, &fakeGateway{})
	env.Opts.MaxAttempts = 3

	det := schemas.ChallengeDetection{Type: schemas.ChallengeRecaptcha}
	stats, err := NewAudioSolver().Solve(context.Background(), env, det)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindRateLimited, KindOf(err))
	assert.Equal(t, 1, stats.Attempts, "rate limiting must not burn the remaining attempts")
}

func TestAudioSolverRetriesOnRejectedTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	page, challenge := newAudioChallengePage(srv.URL)
	challenge.addElement(audioSelectors.errorText, &browser.Element{
		Text: "Multiple correct solutions required",
	})

	gw := &fakeGateway{
		transcribeFn: func(audioPath string) (string, error) { return "four two", nil },
	}
	env, _ := newTestEnv(t, page, gw)
	env.Opts.MaxAttempts = 2

	det := schemas.ChallengeDetection{Type: schemas.ChallengeRecaptcha}
	stats, err := NewAudioSolver().Solve(context.Background(), env, det)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindTransient, KindOf(err))
	assert.Equal(t, 2, stats.Attempts)
}

func TestAudioSolverRejectsNonRecaptcha(t *testing.T) {
	env, _ := newTestEnv(t, newFakePage(), &fakeGateway{})

	det := schemas.ChallengeDetection{Type: schemas.ChallengeHCaptcha}
	_, err := NewAudioSolver().Solve(context.Background(), env, det)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindUnderstanding, KindOf(err))
}
