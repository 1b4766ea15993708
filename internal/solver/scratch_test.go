// File: internal/solver/scratch_test.go
package solver

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScratchLifecycle(t *testing.T) {
	base := t.TempDir()
	s, err := NewScratch(base, zaptest.NewLogger(t))
	require.NoError(t, err)

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	p, err := s.WriteFile("clip.mp3", []byte("audio"))
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	s.Cleanup()
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestScratchCleanupIsIdempotent(t *testing.T) {
	s, err := NewScratch(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Cleanup()
	s.Cleanup()

	var nilScratch *Scratch
	nilScratch.Cleanup()
}
