package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/guidevault/internal/models"
)

func streams(names ...string) []models.CatalogStream {
	out := make([]models.CatalogStream, len(names))
	for i, n := range names {
		out[i] = models.CatalogStream{ID: int64(i + 1), Name: n}
	}
	return out
}

func TestScoreRange(t *testing.T) {
	pairs := [][2]string{
		{"espn", "ESPN"},
		{"espn", "ESPN 2 HD"},
		{"bbc one", "BBC-One"},
		{"sky sports", "Sky Sport Main Event"},
		{"cnn", "Discovery"},
		{"Ünïcode", "unicode tv"},
		{"x", ""},
	}
	for _, p := range pairs {
		s := Score(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0, p)
		assert.LessOrEqual(t, s, 1.0, p)
	}
}

func TestNearExactScoresHigh(t *testing.T) {
	assert.Equal(t, 1.0, Score("ESPN", "espn"))
	assert.Equal(t, 1.0, Score("  bbc   one ", "BBC One"))
	assert.GreaterOrEqual(t, Score("espn", "ESPN HD"), NearExact)
	assert.GreaterOrEqual(t, Score("bbc one", "BBC-One"), NearExact)
	assert.GreaterOrEqual(t, Score("BBC One", "UK: BBC ONE FHD"), NearExact)
}

func TestTyposScoreNearExact(t *testing.T) {
	tests := []struct {
		query, name string
	}{
		{"Discovery Chanel", "Discovery Channel"},
		{"ESPN", "ESPM"},
		{"National Geographic", "National Geografic"},
		{"Cartoon Network", "Cartoon Netwrk"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := Score(tt.query, tt.name)
			assert.GreaterOrEqual(t, s, NearExact)
			assert.Less(t, s, 0.95, "a typo stays below a normalized exact match")
		})
	}

	assert.Greater(t, Score("espn", "ESPN HD"), Score("espn", "ESPM"), "containment still ranks first")
	assert.Less(t, Score("ESPN 2", "ESPN 3"), NearExact, "different numbers are different channels")
	assert.Less(t, Score("CNN", "CBN"), NearExact, "too short for a typo")
	assert.Less(t, Score("Sky Sports", "Sky Cinema"), NearExact)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("abc"), []rune("abc")))
	assert.Equal(t, 1, levenshtein([]rune("chanel"), []rune("channel")))
	assert.Equal(t, 3, levenshtein([]rune("kitten"), []rune("sitting")))
	assert.Equal(t, 4, levenshtein([]rune(""), []rune("espn")))
}

func TestContainmentOutranksFuzzy(t *testing.T) {
	sub := Score("sky", "Sky Cinema Premiere")
	fuzzy := Score("sky", "Skai TV")
	assert.Greater(t, sub, fuzzy)
	assert.LessOrEqual(t, fuzzy, fuzzyCeiling)
}

func TestSearchBlankQuery(t *testing.T) {
	assert.Nil(t, Search("", streams("ESPN"), Options{}))
	assert.Nil(t, Search("   \t", streams("ESPN"), Options{}))
}

func TestSearchOrdering(t *testing.T) {
	got := Search("espn", streams("ESPN 2", "ESPN News HD", "ESPN", "Fox Sports", "ESPN 1"), Options{MinScore: DefaultMinScore})
	require.GreaterOrEqual(t, len(got), 4)

	names := make([]string, 0, len(got))
	for _, h := range got {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"ESPN", "ESPN 1", "ESPN 2", "ESPN News HD"}, names[:4])
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].FuzzyScore, got[i].FuzzyScore)
	}
}

func TestSortTieBreaks(t *testing.T) {
	hits := []models.ScoredStream{
		{CatalogStream: models.CatalogStream{ID: 3, Name: "Bravo"}, FuzzyScore: 0.5},
		{CatalogStream: models.CatalogStream{ID: 2, Name: "Alpha"}, FuzzyScore: 0.5},
		{CatalogStream: models.CatalogStream{ID: 1, Name: "Zed"}, FuzzyScore: 0.5},
		{CatalogStream: models.CatalogStream{ID: 4, Name: "Alpha"}, FuzzyScore: 0.7},
	}
	Sort(hits)
	var ids []int64
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []int64{4, 1, 2, 3}, ids)
}

func TestSearchLimitAndMinScore(t *testing.T) {
	all := streams("News 1", "News 2", "News 3", "Weather")
	got := Search("news", all, Options{Limit: 2})
	assert.Len(t, got, 2)

	got = Search("news", all, Options{MinScore: 0.95})
	for _, h := range got {
		assert.GreaterOrEqual(t, h.FuzzyScore, 0.95)
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "bbcone", NormalizeName("BBC One HD"))
	assert.Equal(t, "bbcone", NormalizeName("bbc-one"))
	assert.Equal(t, "discovery", NormalizeName("Discovery Channel (US)"))
	assert.Equal(t, "", NormalizeName("  "))
	assert.Equal(t, "espn 2 hd", Fold("ESPN-2 [HD]"))
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 0.961, jaroWinkler("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.84, jaroWinkler("dwayne", "duane"), 0.001)
	assert.Equal(t, 1.0, jaroWinkler("same", "same"))
	assert.Equal(t, 0.0, jaroWinkler("", "abc"))
}
