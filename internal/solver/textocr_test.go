// File: internal/solver/textocr_test.go
package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
)

const captchaImgSel = `img[src*="captcha"]`

// newImageTextPage builds a page carrying a captcha image, an answer field
// and a submit button. The image is "gone" after submit only if the test
// removes it.
func newImageTextPage() *fakePage {
	page := newFakePage()
	page.addElement(`input[id*="captcha"]`, &browser.Element{Selector: "#captcha-answer"})
	page.addElement(`button[type="submit"]`, &browser.Element{
		Box: schemas.ElementGeometry{X: boxVerify, Width: 80, Height: 30},
	})
	return page
}

func imageTextDetection() schemas.ChallengeDetection {
	return schemas.ChallengeDetection{
		Type:       schemas.ChallengeImageText,
		Confidence: schemas.ConfidenceMedium,
		Locator:    captchaImgSel,
	}
}

func TestTextOCRSolvesArithmetic(t *testing.T) {
	page := newImageTextPage()
	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			if profile.Name == "math" {
				return "12 x 4 =", nil
			}
			return "IZxA", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)

	stats, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Attempts)
	assert.Equal(t, []string{"48"}, page.typedInto("#captcha-answer"))
	assert.Equal(t, "12 x 4 = 48", stats.Diagnostics["expression"])
}

func TestTextOCRArithmeticOperators(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"7+3", "10"},
		{"9 - 4", "5"},
		{"12 x 4", "48"},
		{"6×7", "42"},
		{"5*5=", "25"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			page := newImageTextPage()
			gw := &fakeGateway{
				recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
					return tc.expr, nil
				},
			}
			env, _ := newTestEnv(t, page, gw)

			_, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, page.typedInto("#captcha-answer"))
		})
	}
}

func TestTextOCRPicksLongestCandidate(t *testing.T) {
	page := newImageTextPage()
	answers := map[string]string{
		"line":  "XK4F9",
		"word":  "XK4F9",
		"block": "XK4F9Q",
		"math":  "449",
	}
	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			return answers[profile.Name], nil
		},
	}
	env, _ := newTestEnv(t, page, gw)

	stats, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.NoError(t, err)
	assert.Equal(t, []string{"XK4F9Q"}, page.typedInto("#captcha-answer"))
	assert.Equal(t, "low", stats.Diagnostics["ocrConfidence"], "a single profile produced the winner")
	assert.Contains(t, stats.Diagnostics["alternatives"], "XK4F9")
}

func TestTextOCRAgreementRaisesConfidence(t *testing.T) {
	page := newImageTextPage()
	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			return "XK4F9", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)

	stats, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.NoError(t, err)
	assert.Equal(t, "medium", stats.Diagnostics["ocrConfidence"])
}

func TestTextOCRUnparseableArithmeticIsTerminal(t *testing.T) {
	page := newImageTextPage()
	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			// Math-shaped noise that never parses, and too short to trust as
			// a text answer.
			return "2 + =", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)
	env.Opts.MaxAttempts = 3

	stats, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindUnderstanding, KindOf(err))
	assert.Equal(t, 1, stats.Attempts, "understanding failures must not be retried")
}

func TestTextOCRRetriesWhenImagePersists(t *testing.T) {
	page := newImageTextPage()
	// The challenge image never goes away, so every submit is a miss.
	page.addElement(captchaImgSel, &browser.Element{})

	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			return "WRONGANSWER", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)
	env.Opts.MaxAttempts = 2

	stats, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindTransient, KindOf(err))
	assert.Equal(t, 2, stats.Attempts)
}

func TestTextOCRRequiresAnswerField(t *testing.T) {
	page := newFakePage() // no input anywhere
	gw := &fakeGateway{
		recognizeFn: func(imagePath string, profile recognition.OCRProfile) (string, error) {
			return "SOMETEXT", nil
		},
	}
	env, _ := newTestEnv(t, page, gw)

	_, err := NewTextOCRSolver().Solve(context.Background(), env, imageTextDetection())
	require.Error(t, err)
	assert.Equal(t, schemas.ErrKindUnderstanding, KindOf(err))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Xk4f9", normalizeText(" Xk4-f9! \n"))
	assert.Equal(t, "", normalizeText("?!--"))
}
