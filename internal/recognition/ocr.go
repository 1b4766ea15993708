// File: internal/recognition/ocr.go
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/internal/config"
)

// OCRProfile is one parameter set for an OCR pass. Distorted challenge text
// rarely yields to a single configuration, so callers run several profiles
// and pick among the candidates.
type OCRProfile struct {
	Name string
	// PSM is the tesseract page segmentation mode.
	PSM int
	// Whitelist restricts the character set; empty means unrestricted.
	Whitelist string
}

// DefaultProfiles covers the usual challenge shapes: a single line of mixed
// text, a lone word, a text block, and an arithmetic expression.
func DefaultProfiles() []OCRProfile {
	const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	return []OCRProfile{
		{Name: "line", PSM: 7, Whitelist: alnum},
		{Name: "word", PSM: 8, Whitelist: alnum},
		{Name: "block", PSM: 6},
		{Name: "math", PSM: 7, Whitelist: "0123456789+-x*×="},
	}
}

// OCRBackend shells out to the tesseract CLI.
type OCRBackend struct {
	cfg    config.OCRConfig
	logger *zap.Logger
}

func NewOCRBackend(cfg config.OCRConfig, logger *zap.Logger) *OCRBackend {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	return &OCRBackend{cfg: cfg, logger: logger.Named("ocr")}
}

func (o *OCRBackend) Name() string { return "tesseract" }

func (o *OCRBackend) Ready() error {
	if _, err := exec.LookPath(o.cfg.Binary); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Recognize runs one OCR pass under the given profile and returns trimmed
// text. An empty result is an error so the fallback chain keeps moving.
func (o *OCRBackend) Recognize(ctx context.Context, imagePath string, profile OCRProfile) (string, error) {
	runCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	args := []string{imagePath, "stdout", "--psm", strconv.Itoa(profile.PSM)}
	if profile.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+profile.Whitelist)
	}

	cmd := exec.CommandContext(runCtx, o.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr pass %q failed: %w (stderr: %s)",
			profile.Name, err, truncate(strings.TrimSpace(stderr.String()), 200))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("ocr pass %q produced no text", profile.Name)
	}
	o.logger.Debug("ocr pass complete",
		zap.String("profile", profile.Name), zap.String("text", truncate(text, 60)))
	return text, nil
}
