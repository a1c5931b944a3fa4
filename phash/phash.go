// Package phash computes and compares perceptual image fingerprints.
//
// Fingerprints are DCT perceptual hashes of BitLength bits. At rest they are
// lowercase hexadecimal strings; any whole number of nibbles parses, so
// hashes produced with other hash sizes can still be read and compared
// against each other, but only fingerprints of equal length are comparable.
package phash

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/bits"
	"strings"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
)

// BitLength is the size of fingerprints produced by Compute (8x8 DCT).
const BitLength = 64

// MaxPixels bounds the decoded size of an input image.
const MaxPixels = 64 << 20

var (
	ErrDecode             = errors.New("phash: image could not be decoded")
	ErrParse              = errors.New("phash: malformed fingerprint")
	ErrInvalidFingerprint = errors.New("phash: fingerprints are not comparable")
)

// Fingerprint is a fixed-length bit vector. The zero value is empty.
type Fingerprint struct {
	bits []byte // big-endian, left-padded to whole bytes
	n    int
}

// Len returns the bit length.
func (f Fingerprint) Len() int { return f.n }

// IsZero reports whether f holds no bits.
func (f Fingerprint) IsZero() bool { return f.n == 0 }

// String renders f as lowercase hex, one character per nibble.
func (f Fingerprint) String() string {
	s := hex.EncodeToString(f.bits)
	if f.n%8 == 4 {
		s = s[1:]
	}
	return s
}

// FromUint64 wraps a 64-bit hash value.
func FromUint64(v uint64) Fingerprint {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return Fingerprint{bits: b, n: BitLength}
}

// Parse reads a hex fingerprint as stored by String.
func Parse(s string) (Fingerprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Fingerprint{}, fmt.Errorf("%w: empty", ErrParse)
	}
	n := 4 * len(s)
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return Fingerprint{bits: b, n: n}, nil
}

// Compute decodes data and returns its perceptual hash.
func Compute(data []byte) (Fingerprint, error) {
	if len(data) == 0 {
		return Fingerprint{}, fmt.Errorf("%w: no data", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return Fingerprint{}, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ComputeImage(img)
}

// ComputeImage hashes an already decoded image.
func ComputeImage(img image.Image) (Fingerprint, error) {
	if img == nil || img.Bounds().Empty() {
		return Fingerprint{}, fmt.Errorf("%w: empty image", ErrDecode)
	}
	h, err := goimagehash.PerceptionHash(toRGBA(img))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromUint64(h.GetHash()), nil
}

// toRGBA normalises palette, gray, YCbCr and CMYK inputs to one color model
// before hashing.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// HammingDistance counts differing bits between a and b.
func HammingDistance(a, b Fingerprint) (int, error) {
	if a.IsZero() || b.IsZero() {
		return 0, fmt.Errorf("%w: empty fingerprint", ErrInvalidFingerprint)
	}
	if a.n != b.n {
		return 0, fmt.Errorf("%w: %d bits vs %d bits", ErrInvalidFingerprint, a.n, b.n)
	}
	d := 0
	for i := range a.bits {
		d += bits.OnesCount8(a.bits[i] ^ b.bits[i])
	}
	return d, nil
}

// Similarity maps a distance to [0, 1]. A non-positive bitLength means the
// length is unknown and BitLength is assumed.
func Similarity(distance, bitLength int) float64 {
	if bitLength <= 0 {
		bitLength = BitLength
	}
	if distance < 0 {
		distance = 0
	}
	return math.Max(0, 1-float64(distance)/float64(bitLength))
}

// Compare parses a stored fingerprint and scores it against q.
func Compare(q Fingerprint, stored string) (float64, error) {
	fp, err := Parse(stored)
	if err != nil {
		return 0, err
	}
	d, err := HammingDistance(q, fp)
	if err != nil {
		return 0, err
	}
	return Similarity(d, q.Len()), nil
}
