// File: internal/recognition/preprocess.go
package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Preprocess cleans a distorted text image for OCR: grayscale, contrast
// stretch, median denoise, Otsu binarization and a small deskew. Input is any
// registered image format; output is PNG.
func Preprocess(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding text image: %w", err)
	}

	gray := toGray(src)
	stretchContrast(gray)
	gray = medianFilter(gray)
	binarize(gray, otsuThreshold(gray))
	gray = deskew(gray)

	var out bytes.Buffer
	if err := png.Encode(&out, gray); err != nil {
		return nil, fmt.Errorf("encoding preprocessed image: %w", err)
	}
	return out.Bytes(), nil
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// stretchContrast remaps the observed intensity range onto [0, 255].
func stretchContrast(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range img.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return
	}
	scale := 255.0 / float64(hi-lo)
	for i, v := range img.Pix {
		img.Pix[i] = uint8(float64(v-lo) * scale)
	}
}

// medianFilter applies a 3x3 median, which kills salt-and-pepper noise
// without smearing glyph edges the way a box blur would.
func medianFilter(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	window := make([]uint8, 0, 9)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					window = append(window, img.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// otsuThreshold finds the split minimizing intra-class intensity variance.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var sumB, wB float64
	var maxVar float64
	// The variance is flat between the two modes; the midpoint of that
	// plateau separates them, its first index sits on the lower mode.
	lo, hi := 0, 0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		switch {
		case between > maxVar:
			maxVar = between
			lo, hi = t, t
		case between == maxVar && maxVar > 0:
			hi = t
		}
	}
	return uint8((lo + hi) / 2)
}

func binarize(img *image.Gray, threshold uint8) {
	for i, v := range img.Pix {
		if v > threshold {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}

// deskew searches small rotations for the one with the sharpest horizontal
// projection profile, which is where text lines align with pixel rows.
func deskew(img *image.Gray) *image.Gray {
	bestAngle := 0.0
	bestScore := projectionScore(img)

	for angle := -5.0; angle <= 5.0; angle += 0.5 {
		if angle == 0 {
			continue
		}
		candidate := rotate(img, angle)
		if score := projectionScore(candidate); score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	if bestAngle == 0 {
		return img
	}
	return rotate(img, bestAngle)
}

// projectionScore is the variance of per-row dark-pixel counts. Aligned text
// concentrates ink in few rows, which maximizes the variance.
func projectionScore(img *image.Gray) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if h == 0 {
		return 0
	}
	rows := make([]float64, h)
	var mean float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(x, y).Y < 128 {
				rows[y]++
			}
		}
		mean += rows[y]
	}
	mean /= float64(h)

	var variance float64
	for _, r := range rows {
		variance += (r - mean) * (r - mean)
	}
	return variance / float64(h)
}

// rotate spins the image around its center, filling exposed corners white.
func rotate(img *image.Gray, degrees float64) *image.Gray {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	out := image.NewGray(b)
	for i := range out.Pix {
		out.Pix[i] = 255
	}

	rad := degrees * math.Pi / 180.0
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := w/2, h/2

	// Affine rotation around the image center.
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	xdraw.BiLinear.Transform(out, m, img, b, xdraw.Over, nil)
	return out
}
