// File: internal/recognition/cloudvision.go
package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
)

// ErrRateLimited is returned when a hosted backend answers 429. The solvers
// treat it as a signal to stop hammering, not to retry.
var ErrRateLimited = errors.New("backend rate limited")

// CloudVision asks an OpenAI-compatible vision endpoint a strict yes/no
// question about one image.
type CloudVision struct {
	cfg    config.CloudVisionConfig
	logger *zap.Logger
	client *http.Client
}

func NewCloudVision(cfg config.CloudVisionConfig, logger *zap.Logger) *CloudVision {
	return &CloudVision{
		cfg:    cfg,
		logger: logger.Named("cloud_vision"),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *CloudVision) Name() string { return "cloud-vision" }

func (c *CloudVision) Ready() error {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		return fmt.Errorf("%w: endpoint or api key not configured", ErrUnavailable)
	}
	return nil
}

// Classify sends the image with a constrained prompt and maps the model's
// one-word answer to a verdict. Anything other than a clean yes/no is scored
// as a low-confidence negative rather than an error, so the dispatcher does
// not burn a fallback hop on model chattiness.
func (c *CloudVision) Classify(ctx context.Context, img []byte, category string) (schemas.RecognitionResult, error) {
	prompt := fmt.Sprintf(
		"Does this image contain a %s? Answer with exactly one word: yes or no.", category)

	payload := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": 5,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{
						"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					}},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("encoding vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.Endpoint, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return schemas.RecognitionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("reading vision response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return schemas.RecognitionResult{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return schemas.RecognitionResult{}, fmt.Errorf("vision endpoint returned %d: %s",
			resp.StatusCode, truncate(string(raw), 200))
	}

	answer := gjson.GetBytes(raw, "choices.0.message.content").String()
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".,!\"'"))

	switch {
	case strings.HasPrefix(normalized, "yes"):
		return schemas.RecognitionResult{Match: true, Confidence: 0.92}, nil
	case strings.HasPrefix(normalized, "no"):
		return schemas.RecognitionResult{Match: false, Confidence: 0.92}, nil
	default:
		c.logger.Debug("ambiguous vision answer", zap.String("answer", truncate(answer, 80)))
		return schemas.RecognitionResult{Match: false, Confidence: 0.4}, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
