// File: internal/detect/detector_test.go
package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
)

// staticPage serves a fixed title and document; the detector needs nothing
// else from the driver.
type staticPage struct {
	title string
	html  string
}

func (p *staticPage) Title(ctx context.Context) (string, error) { return p.title, nil }
func (p *staticPage) URL(ctx context.Context) (string, error)   { return "https://example.test/", nil }
func (p *staticPage) HTML(ctx context.Context) (string, error)  { return p.html, nil }
func (p *staticPage) Find(ctx context.Context, selector string) (*browser.Element, error) {
	return nil, errors.New("not supported")
}
func (p *staticPage) FindAll(ctx context.Context, selector string) ([]*browser.Element, error) {
	return nil, nil
}
func (p *staticPage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	return nil, errors.New("not supported")
}
func (p *staticPage) Click(ctx context.Context, x, y float64) error { return nil }
func (p *staticPage) Type(ctx context.Context, selector, text string) error {
	return nil
}
func (p *staticPage) Evaluate(ctx context.Context, expr string, out any) error {
	return errors.New("not supported")
}
func (p *staticPage) Frame(ctx context.Context, selector string) (browser.Page, error) {
	return nil, errors.New("not supported")
}
func (p *staticPage) WaitFor(ctx context.Context, d time.Duration) error { return ctx.Err() }

func detectOn(t *testing.T, title, html string) []schemas.ChallengeDetection {
	t.Helper()
	d := New(zaptest.NewLogger(t))
	hits, err := d.Detect(context.Background(), &staticPage{title: title, html: html})
	require.NoError(t, err)
	return hits
}

func TestDetectCleanPage(t *testing.T) {
	hits := detectOn(t, "Welcome", `<html><body><h1>Store</h1></body></html>`)
	assert.Empty(t, hits)
}

func TestDetectInterstitialTitleOutranksEverything(t *testing.T) {
	html := `<html><body>
		<iframe src="https://www.google.com/recaptcha/api2/anchor?k=x"></iframe>
	</body></html>`
	hits := detectOn(t, "Just a moment...", html)

	require.NotEmpty(t, hits)
	assert.Equal(t, schemas.ChallengeInterstitial, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceHigh, hits[0].Confidence)
}

func TestDetectRecaptchaFrame(t *testing.T) {
	html := `<html><body>
		<iframe src="https://www.google.com/recaptcha/api2/anchor?k=sitekey"></iframe>
	</body></html>`
	hits := detectOn(t, "Login", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeRecaptcha, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceHigh, hits[0].Confidence)
	assert.Contains(t, hits[0].Locator, "recaptcha")
}

func TestDetectHCaptchaWidgetContainer(t *testing.T) {
	html := `<html><body>
		<div class="h-captcha" data-sitekey="10000000-ffff-ffff-ffff-000000000001"></div>
	</body></html>`
	hits := detectOn(t, "Login", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeHCaptcha, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceHigh, hits[0].Confidence)
}

func TestDetectContainerWithoutSitekeyIsMedium(t *testing.T) {
	html := `<html><body><div class="g-recaptcha"></div></body></html>`
	hits := detectOn(t, "Login", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeRecaptcha, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceMedium, hits[0].Confidence)
}

func TestDetectImageTextChallenge(t *testing.T) {
	html := `<html><body>
		<img src="/captcha.php?id=9" alt="">
		<input type="text" name="captcha_answer">
	</body></html>`
	hits := detectOn(t, "Register", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeImageText, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceMedium, hits[0].Confidence)
}

func TestDetectFreeTextFallbackIsLowConfidence(t *testing.T) {
	html := `<html><body><p>Please verify you are human to continue.</p></body></html>`
	hits := detectOn(t, "Access", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeGenericText, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceLow, hits[0].Confidence)
}

func TestDetectOrdersByConfidenceWithStableTiebreak(t *testing.T) {
	html := `<html><body>
		<div class="cf-turnstile"></div>
		<iframe src="https://js.hcaptcha.com/1/api.js?frame=checkbox"></iframe>
		<p>verify you are human</p>
	</body></html>`
	hits := detectOn(t, "Login", html)

	require.Len(t, hits, 3)
	assert.Equal(t, schemas.ChallengeHCaptcha, hits[0].Type)
	assert.Equal(t, schemas.ChallengeInterstitial, hits[1].Type)
	assert.Equal(t, schemas.ChallengeGenericText, hits[2].Type)
}

func TestDetectDedupesPerType(t *testing.T) {
	// Frame hit (high) and container hit (medium) for the same family must
	// collapse into the single strongest detection.
	html := `<html><body>
		<div class="g-recaptcha" data-sitekey="k"></div>
		<iframe src="https://www.google.com/recaptcha/api2/anchor?k=k"></iframe>
	</body></html>`
	hits := detectOn(t, "Login", html)

	require.Len(t, hits, 1)
	assert.Equal(t, schemas.ChallengeRecaptcha, hits[0].Type)
	assert.Equal(t, schemas.ConfidenceHigh, hits[0].Confidence)
}

func TestDetectIsIdempotent(t *testing.T) {
	html := `<html><body>
		<iframe src="https://www.google.com/recaptcha/api2/anchor?k=k"></iframe>
		<p>select all images with crosswalks</p>
	</body></html>`
	page := &staticPage{title: "Login", html: html}
	d := New(zaptest.NewLogger(t))

	first, err := d.Detect(context.Background(), page)
	require.NoError(t, err)
	second, err := d.Detect(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
