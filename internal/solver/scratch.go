// File: internal/solver/scratch.go
package solver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scratch is a per-resolution working directory for downloaded assets
// (audio files, captured text images). It is created once per solve call and
// removed unconditionally when the call finishes, success or not.
type Scratch struct {
	dir    string
	logger *zap.Logger
}

// NewScratch creates the directory under baseDir (os.TempDir when empty).
func NewScratch(baseDir string, logger *zap.Logger) (*Scratch, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "gatecrash-"+uuid.New().String()[:8])
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	return &Scratch{dir: dir, logger: logger.Named("scratch")}, nil
}

// Dir returns the scratch root.
func (s *Scratch) Dir() string { return s.dir }

// Path joins a file name onto the scratch root.
func (s *Scratch) Path(name string) string { return filepath.Join(s.dir, name) }

// WriteFile stores data under name and returns the absolute path.
func (s *Scratch) WriteFile(name string, data []byte) (string, error) {
	p := s.Path(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("writing scratch file %s: %w", name, err)
	}
	return p, nil
}

// Cleanup removes the whole directory. Errors are logged, not returned;
// nothing actionable remains at this point.
func (s *Scratch) Cleanup() {
	if s == nil || s.dir == "" {
		return
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Warn("failed to remove scratch dir",
			zap.String("dir", s.dir), zap.Error(err))
	}
}
