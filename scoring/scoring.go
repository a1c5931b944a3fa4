// Package scoring holds the text relevance heuristic and the blend of text
// and image scores. The weights are part of the externally visible ranking.
package scoring

import (
	"math"
	"strings"

	"github.com/WongZhiYun/Lost-Found/models"
)

const (
	TitleWeight       = 0.6
	DescriptionWeight = 0.4
	LocationWeight    = 0.2
	MaxScore          = 1.0

	// DefaultAlpha is the image weight used when the caller gives none.
	DefaultAlpha = 0.6
)

// TextScore sums the weights of the fields containing q, case-insensitively,
// capped at MaxScore. A blank query scores 0.
func TextScore(r models.Report, q string) float64 {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return 0
	}
	score := 0.0
	if contains(r.Title, q) {
		score += TitleWeight
	}
	if contains(r.Description, q) {
		score += DescriptionWeight
	}
	if contains(r.Location, q) {
		score += LocationWeight
	}
	return math.Min(score, MaxScore)
}

func contains(field, lowerQ string) bool {
	return field != "" && strings.Contains(strings.ToLower(field), lowerQ)
}

// ClampAlpha forces alpha into [0, 1]. NaN becomes DefaultAlpha.
func ClampAlpha(alpha float64) float64 {
	switch {
	case math.IsNaN(alpha):
		return DefaultAlpha
	case alpha < 0:
		return 0
	case alpha > 1:
		return 1
	}
	return alpha
}

// Combine blends the two scores: alpha weights the image score.
func Combine(textScore, imageScore, alpha float64) float64 {
	alpha = ClampAlpha(alpha)
	return alpha*imageScore + (1-alpha)*textScore
}
