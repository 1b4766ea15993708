// File: internal/detect/detector.go

// Package detect inspects a loaded page for known challenge widgets. The
// scan is read-only: it parses a DOM snapshot and never focuses, scrolls or
// otherwise perturbs the page, so repeated scans of a stable page agree.
package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/browser"
)

// titleSignatures are interstitial page titles; a match outranks everything
// else because the whole page is the challenge.
var titleSignatures = []string{
	"just a moment",
	"checking your browser",
	"attention required",
	"verifying you are human",
	"one more step",
	"ddos protection by",
}

// frameSignatures map embedded-frame URL substrings to challenge families.
var frameSignatures = []struct {
	substr string
	kind   schemas.ChallengeType
}{
	{"google.com/recaptcha/api2", schemas.ChallengeRecaptcha},
	{"recaptcha.net/recaptcha", schemas.ChallengeRecaptcha},
	{"hcaptcha.com", schemas.ChallengeHCaptcha},
	{"challenges.cloudflare.com/turnstile", schemas.ChallengeInterstitial},
	{"cdn-cgi/challenge-platform", schemas.ChallengeInterstitial},
}

// domSignatures are widget container selectors. Frames outrank these because
// a container div can be present while the widget never rendered.
var domSignatures = []struct {
	selector   string
	kind       schemas.ChallengeType
	confidence schemas.DetectionConfidence
}{
	{".g-recaptcha[data-sitekey]", schemas.ChallengeRecaptcha, schemas.ConfidenceHigh},
	{".g-recaptcha", schemas.ChallengeRecaptcha, schemas.ConfidenceMedium},
	{".h-captcha[data-sitekey]", schemas.ChallengeHCaptcha, schemas.ConfidenceHigh},
	{".h-captcha", schemas.ChallengeHCaptcha, schemas.ConfidenceMedium},
	{".cf-turnstile", schemas.ChallengeInterstitial, schemas.ConfidenceMedium},
	{"#cf-challenge-running", schemas.ChallengeInterstitial, schemas.ConfidenceHigh},
}

// textSignatures trigger the low-confidence free-text fallback.
var textSignatures = []string{
	"verify you are human",
	"i'm not a robot",
	"select all images",
	"type the characters you see",
	"confirm you are not a robot",
	"unusual traffic from your computer",
}

// typePriority breaks ties among detections of equal confidence. Lower is
// earlier: an interstitial owns the whole page and must be cleared before any
// widget on it is reachable, then structured widgets, then free-text guesses.
var typePriority = map[schemas.ChallengeType]int{
	schemas.ChallengeInterstitial: 0,
	schemas.ChallengeRecaptcha:    1,
	schemas.ChallengeHCaptcha:     2,
	schemas.ChallengeImageText:    3,
	schemas.ChallengeGenericText:  4,
}

// Detector scans pages for challenges.
type Detector struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("detector")}
}

// Detect returns detections ordered by descending confidence, one per
// challenge type. An empty slice means the page shows no known challenge.
func (d *Detector) Detect(ctx context.Context, page browser.Page) ([]schemas.ChallengeDetection, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page title: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	var hits []schemas.ChallengeDetection
	hits = append(hits, d.scanTitle(title)...)
	hits = append(hits, d.scanFrames(doc)...)
	hits = append(hits, d.scanWidgets(doc)...)
	hits = append(hits, d.scanImageText(doc)...)
	hits = append(hits, d.scanFreeText(doc)...)

	hits = dedupe(hits)
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Confidence.Rank() != hits[j].Confidence.Rank() {
			return hits[i].Confidence.Rank() > hits[j].Confidence.Rank()
		}
		return typePriority[hits[i].Type] < typePriority[hits[j].Type]
	})

	for _, h := range hits {
		d.logger.Debug("challenge detected",
			zap.String("type", string(h.Type)),
			zap.String("confidence", string(h.Confidence)),
			zap.String("locator", h.Locator))
	}
	return hits, nil
}

func (d *Detector) scanTitle(title string) []schemas.ChallengeDetection {
	lower := strings.ToLower(title)
	for _, sig := range titleSignatures {
		if strings.Contains(lower, sig) {
			return []schemas.ChallengeDetection{{
				Type:       schemas.ChallengeInterstitial,
				Confidence: schemas.ConfidenceHigh,
				Locator:    "body",
			}}
		}
	}
	return nil
}

func (d *Detector) scanFrames(doc *goquery.Document) []schemas.ChallengeDetection {
	var hits []schemas.ChallengeDetection
	doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		lower := strings.ToLower(src)
		for _, sig := range frameSignatures {
			if strings.Contains(lower, sig.substr) {
				hits = append(hits, schemas.ChallengeDetection{
					Type:       sig.kind,
					Confidence: schemas.ConfidenceHigh,
					Locator:    fmt.Sprintf(`iframe[src*="%s"]`, sig.substr),
				})
				return
			}
		}
	})
	return hits
}

func (d *Detector) scanWidgets(doc *goquery.Document) []schemas.ChallengeDetection {
	var hits []schemas.ChallengeDetection
	for _, sig := range domSignatures {
		if doc.Find(sig.selector).Length() > 0 {
			hits = append(hits, schemas.ChallengeDetection{
				Type:       sig.kind,
				Confidence: sig.confidence,
				Locator:    sig.selector,
			})
		}
	}
	return hits
}

// scanImageText looks for the classic homegrown captcha shape: an image named
// like a captcha next to a free text input.
func (d *Detector) scanImageText(doc *goquery.Document) []schemas.ChallengeDetection {
	var hits []schemas.ChallengeDetection
	for _, sel := range []string{
		`img[src*="captcha"]`,
		`img[id*="captcha"]`,
		`img[class*="captcha"]`,
	} {
		if doc.Find(sel).Length() == 0 {
			continue
		}
		if doc.Find(`input[type="text"]`).Length() == 0 {
			continue
		}
		hits = append(hits, schemas.ChallengeDetection{
			Type:       schemas.ChallengeImageText,
			Confidence: schemas.ConfidenceMedium,
			Locator:    sel,
		})
		break
	}
	return hits
}

func (d *Detector) scanFreeText(doc *goquery.Document) []schemas.ChallengeDetection {
	body := strings.ToLower(doc.Find("body").Text())
	for _, sig := range textSignatures {
		if strings.Contains(body, sig) {
			return []schemas.ChallengeDetection{{
				Type:       schemas.ChallengeGenericText,
				Confidence: schemas.ConfidenceLow,
				Locator:    "body",
			}}
		}
	}
	return nil
}

// dedupe keeps the highest-confidence detection per challenge type.
func dedupe(hits []schemas.ChallengeDetection) []schemas.ChallengeDetection {
	best := make(map[schemas.ChallengeType]schemas.ChallengeDetection)
	var order []schemas.ChallengeType
	for _, h := range hits {
		cur, seen := best[h.Type]
		if !seen {
			best[h.Type] = h
			order = append(order, h.Type)
			continue
		}
		if h.Confidence.Rank() > cur.Confidence.Rank() {
			best[h.Type] = h
		}
	}
	out := make([]schemas.ChallengeDetection, 0, len(order))
	for _, t := range order {
		out = append(out, best[t])
	}
	return out
}
