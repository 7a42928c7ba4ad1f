// Package catalog derives stream attributes from provider listings.
package catalog

import (
	"strings"
	"unicode"

	"github.com/voyagen/guidevault/internal/models"
)

var tierTokens = map[string]models.QualityTier{
	"4k":    models.Quality4K,
	"uhd":   models.Quality4K,
	"2160p": models.Quality4K,
	"fhd":   models.QualityFHD,
	"1080p": models.QualityFHD,
	"1080i": models.QualityFHD,
	"hd":    models.QualityHD,
	"720p":  models.QualityHD,
	"sd":    models.QualitySD,
	"576p":  models.QualitySD,
	"480p":  models.QualitySD,
}

var tierOrder = []models.QualityTier{models.Quality4K, models.QualityFHD, models.QualityHD, models.QualitySD}

// DetectQualities returns the quality tiers named in a stream name, highest
// first. Tokens are matched whole and case-insensitively, so "FHD" does not
// also imply "HD". A name without any tier token is SD.
func DetectQualities(name string) []models.QualityTier {
	found := make(map[models.QualityTier]bool, 2)
	for _, tok := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if tier, ok := tierTokens[tok]; ok {
			found[tier] = true
		}
	}
	if len(found) == 0 {
		return []models.QualityTier{models.QualitySD}
	}
	out := make([]models.QualityTier, 0, len(found))
	for _, t := range tierOrder {
		if found[t] {
			out = append(out, t)
		}
	}
	return out
}
