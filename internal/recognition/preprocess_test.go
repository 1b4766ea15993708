// File: internal/recognition/preprocess_test.go
package recognition

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticText draws dark "text" rows on a light noisy background.
func syntheticText(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 60, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 60; x++ {
			v := uint8(200)
			if (x+y)%7 == 0 {
				v = 180 // mild background noise
			}
			if y >= 12 && y <= 17 && x >= 5 && x <= 54 {
				v = 40 // the text band
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessProducesBinaryPNG(t *testing.T) {
	out, err := Preprocess(syntheticText(t))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	gray, ok := decoded.(*image.Gray)
	require.True(t, ok)
	for _, v := range gray.Pix {
		assert.True(t, v == 0 || v == 255, "binarized output must be pure black/white, got %d", v)
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestOtsuThresholdSeparatesBimodalImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		if i%2 == 0 {
			img.Pix[i] = 30
		} else {
			img.Pix[i] = 220
		}
	}
	threshold := otsuThreshold(img)
	assert.Greater(t, threshold, uint8(30))
	assert.Less(t, threshold, uint8(220))
}

func TestStretchContrastExpandsRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []uint8{100, 120, 140, 160})
	stretchContrast(img)
	assert.Equal(t, uint8(0), img.Pix[0])
	assert.Equal(t, uint8(255), img.Pix[3])
}

func TestDeskewKeepsAlignedImage(t *testing.T) {
	// Deskew on an already-straight image must not make things worse: the
	// projection score of the result is at least that of the input.
	src, _, err := image.Decode(bytes.NewReader(syntheticText(t)))
	require.NoError(t, err)
	gray := toGray(src)
	binarize(gray, otsuThreshold(gray))

	before := projectionScore(gray)
	after := projectionScore(deskew(gray))
	assert.GreaterOrEqual(t, after, before*0.99)
}
