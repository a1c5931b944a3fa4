// Package phashtest generates deterministic images for fingerprint tests.
package phashtest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"testing"
)

// Smooth returns a size x size image built from random low-frequency cosine
// components, so its DCT fingerprint is well separated from the median and
// stable under lossy re-encoding.
func Smooth(seed int64, size int) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	var amp [8][8]float64
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			if u == 0 && v == 0 {
				continue
			}
			amp[u][v] = r.NormFloat64() * 8
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	n := float64(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			val := 128.0
			for u := 0; u < 8; u++ {
				cu := math.Cos(math.Pi * float64(u) * (float64(x) + 0.5) / n)
				for v := 0; v < 8; v++ {
					val += amp[u][v] * cu * math.Cos(math.Pi*float64(v)*(float64(y)+0.5)/n)
				}
			}
			g := clamp(val)
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

// Invert returns the photographic negative of img.
func Invert(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i] = 255 - img.Pix[i]
		out.Pix[i+1] = 255 - img.Pix[i+1]
		out.Pix[i+2] = 255 - img.Pix[i+2]
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// PNG encodes img losslessly.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes img at the given quality.
func JPEG(t testing.TB, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}
