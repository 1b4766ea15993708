// File: internal/recognition/speech.go
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/internal/config"
)

// SpeechBackend shells out to a whisper.cpp style transcriber. Running the
// model in-process is not worth the cgo surface for a once-per-round call.
type SpeechBackend struct {
	cfg    config.SpeechConfig
	logger *zap.Logger
}

func NewSpeechBackend(cfg config.SpeechConfig, logger *zap.Logger) *SpeechBackend {
	return &SpeechBackend{cfg: cfg, logger: logger.Named("speech")}
}

func (s *SpeechBackend) Name() string { return "speech-cli" }

func (s *SpeechBackend) Ready() error {
	if s.cfg.Binary == "" {
		return fmt.Errorf("%w: no speech binary configured", ErrUnavailable)
	}
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s.cfg.Model != "" {
		if _, err := os.Stat(s.cfg.Model); err != nil {
			return fmt.Errorf("%w: speech model: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Transcribe runs the CLI against the audio file and returns raw stdout
// text. Cleanup and canonicalization belong to the caller.
func (s *SpeechBackend) Transcribe(ctx context.Context, audioPath string) (string, error) {
	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	args := []string{"-f", audioPath, "-nt"}
	if s.cfg.Model != "" {
		args = append([]string{"-m", s.cfg.Model}, args...)
	}
	if s.cfg.Language != "" {
		args = append(args, "-l", s.cfg.Language)
	}

	cmd := exec.CommandContext(runCtx, s.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("running transcriber",
		zap.String("binary", s.cfg.Binary), zap.String("audio", audioPath))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcriber failed: %w (stderr: %s)",
			err, truncate(strings.TrimSpace(stderr.String()), 200))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("transcriber produced no output for %s", audioPath)
	}
	return text, nil
}
