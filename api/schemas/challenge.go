// File: api/schemas/challenge.go
package schemas

import "time"

// ChallengeType identifies a known challenge family. The set is closed:
// the dispatcher routes on these values and refuses anything else.
type ChallengeType string

const (
	// ChallengeRecaptcha covers the checkbox/image-grid widget family with an
	// audio alternative modality.
	ChallengeRecaptcha ChallengeType = "recaptcha"
	// ChallengeHCaptcha is the image-grid-only widget family.
	ChallengeHCaptcha ChallengeType = "hcaptcha"
	// ChallengeInterstitial is a full-page "checking your browser" managed
	// challenge that usually resolves passively.
	ChallengeInterstitial ChallengeType = "interstitial"
	// ChallengeImageText is a distorted-text or arithmetic image with a free
	// text answer field.
	ChallengeImageText ChallengeType = "image-text"
	// ChallengeGenericText is a low-confidence match on verification prose
	// with no recognized structural widget.
	ChallengeGenericText ChallengeType = "generic-text"
)

// Modality names the sensory channel of a challenge variant within one family.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// DetectionConfidence ranks how certain the detector is about a match.
type DetectionConfidence string

const (
	ConfidenceHigh   DetectionConfidence = "high"
	ConfidenceMedium DetectionConfidence = "medium"
	ConfidenceLow    DetectionConfidence = "low"
)

// rank orders confidences for sorting; higher sorts first.
func (c DetectionConfidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// ChallengeDetection is one ranked hit from a page inspection. Locator is an
// opaque handle (a selector for the widget or its hosting frame) that the
// matched solver knows how to interpret. Detections are produced fresh per
// inspection and never persisted across pages.
type ChallengeDetection struct {
	Type       ChallengeType       `json:"type"`
	Confidence DetectionConfidence `json:"confidence"`
	Locator    string              `json:"locator"`
}

// RecognitionResult is the uniform output of the recognition gateway
// regardless of which backend served the request.
type RecognitionResult struct {
	Match      bool    `json:"match"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence"`
	Backend    string  `json:"backend"`
}

// TileClassification records the gateway's verdict for a single grid tile.
// Recomputed every round because the provider may swap tile images.
type TileClassification struct {
	TileIndex  int     `json:"tileIndex"`
	Category   string  `json:"category"`
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Backend    string  `json:"backend"`
}

// Round bounds one pass of tile analysis-and-click within a solve attempt.
type Round struct {
	RoundIndex        int `json:"roundIndex"`
	TilesSeen         int `json:"tilesSeen"`
	TilesClicked      int `json:"tilesClicked"`
	TilesChangedAfter int `json:"tilesChangedAfterClick"`
}

// SolveAttempt is one invocation of a solver's top-level loop. Immutable once
// its Outcome is set.
type SolveAttempt struct {
	AttemptIndex int            `json:"attemptIndex"`
	Strategy     string         `json:"strategy"`
	StartedAt    time.Time      `json:"startedAt"`
	Outcome      string         `json:"outcome"`
	Diagnostics  map[string]any `json:"diagnostics,omitempty"`
}

// ProgressEvent is emitted at every solver state transition. Purely
// observational; correctness never depends on a sink being attached.
type ProgressEvent struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// ProgressSink receives progress events. Implementations must be cheap and
// non-blocking; the solvers call them inline.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(ev ProgressEvent)

func (f ProgressFunc) Progress(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}
