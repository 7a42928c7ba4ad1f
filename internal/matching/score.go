// Package matching ranks catalog streams against free-text channel names.
//
// Scores live in [0,1]. A name containing the whole query scores at least
// 0.9, and so does a name one typo away from it. Everything else is scored
// by Jaro-Winkler similarity and token overlap and capped at fuzzyCeiling.
package matching

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/voyagen/guidevault/internal/models"
)

const (
	// NearExact is the minimum score of a name that contains the query.
	NearExact    = 0.9
	fuzzyCeiling = 0.85
	// typoBand is the width of the score range above NearExact given to
	// typos; it stays below an exact match on the normalized keys (0.95).
	typoBand = 0.04

	DefaultLimit    = 50
	MaxLimit        = 500
	DefaultMinScore = 0.3
)

// Score returns how well name matches query.
func Score(query, name string) float64 {
	q, n := Fold(query), Fold(name)
	if q == "" || n == "" {
		return 0
	}
	if q == n {
		return 1
	}
	if strings.Contains(n, q) {
		return containment(q, n)
	}

	nq, nn := NormalizeName(query), NormalizeName(name)
	if nq != "" && nn != "" {
		if nq == nn {
			return 0.95
		}
		if strings.Contains(nn, nq) {
			return containment(nq, nn)
		}
	} else {
		nq, nn = q, n
	}

	if sim, ok := nearMiss(q, n); ok {
		return NearExact + typoBand*sim
	}
	if sim, ok := nearMiss(nq, nn); ok {
		return NearExact + typoBand*sim
	}

	s := max(jaroWinkler(nq, nn), tokenOverlap(q, n))
	return s * fuzzyCeiling
}

// containment scores a substring hit between NearExact and 1 by how much of
// the name the query covers.
func containment(q, n string) float64 {
	cover := float64(utf8.RuneCountInString(q)) / float64(utf8.RuneCountInString(n))
	return NearExact + (1-NearExact)*cover
}

// tokenOverlap is the fraction of query tokens that start some name token.
func tokenOverlap(q, n string) float64 {
	qt, nt := strings.Fields(q), strings.Fields(n)
	if len(qt) == 0 {
		return 0
	}
	hit := 0
	for _, a := range qt {
		for _, b := range nt {
			if strings.HasPrefix(b, a) {
				hit++
				break
			}
		}
	}
	return float64(hit) / float64(len(qt))
}

// Options bounds a search.
type Options struct {
	Limit    int
	MinScore float64
}

// Search scores every stream against query and returns the hits ordered by
// score descending, then shorter name, then name. A blank query returns nil
// without scoring anything.
func Search(query string, streams []models.CatalogStream, opts Options) []models.ScoredStream {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	hits := make([]models.ScoredStream, 0, 16)
	for _, s := range streams {
		score := Score(query, s.Name)
		if score <= 0 || score < opts.MinScore {
			continue
		}
		hits = append(hits, models.ScoredStream{CatalogStream: s, FuzzyScore: score})
	}
	Sort(hits)
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

// Sort orders hits by score descending; ties go to the shorter name, then
// to the lexicographically smaller name, then to the lower id.
func Sort(hits []models.ScoredStream) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FuzzyScore != b.FuzzyScore {
			return a.FuzzyScore > b.FuzzyScore
		}
		la, lb := utf8.RuneCountInString(a.Name), utf8.RuneCountInString(b.Name)
		if la != lb {
			return la < lb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
