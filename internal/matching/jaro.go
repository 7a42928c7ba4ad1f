package matching

// jaroWinkler returns the Jaro-Winkler similarity of a and b (0.0-1.0).
func jaroWinkler(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	jaro := jaroSimilarity(s1, s2)

	// Common prefix up to 4 characters.
	prefix := 0
	maxPrefix := min(4, len(s1), len(s2))
	for i := 0; i < maxPrefix; i++ {
		if s1[i] != s2[i] {
			break
		}
		prefix++
	}
	const p = 0.1 // standard Winkler prefix scale
	return jaro + float64(prefix)*p*(1-jaro)
}

func jaroSimilarity(s1, s2 []rune) float64 {
	if string(s1) == string(s2) {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	matchDist := max(len(s1), len(s2))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	s1Matched := make([]bool, len(s1))
	s2Matched := make([]bool, len(s2))
	matches := 0
	for i := range s1 {
		start := max(0, i-matchDist)
		end := min(len(s2), i+matchDist+1)
		for j := start; j < end; j++ {
			if s2Matched[j] || s1[i] != s2[j] {
				continue
			}
			s1Matched[i] = true
			s2Matched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range s1 {
		if !s1Matched[i] {
			continue
		}
		for k < len(s2) && !s2Matched[k] {
			k++
		}
		if k < len(s2) && s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(s1)) + m/float64(len(s2)) + (m-t)/m) / 3
}

const (
	minTypoLen      = 4    // shortest name a single edit may count as a typo on
	minDoubleTypo   = 12   // shortest name two edits may count as typos on
	typoJaroWinkler = 0.95 // similarity that counts as a typo on names of minDoubleTypo+
)

// nearMiss reports whether a and b differ only by a typo and returns their
// Jaro-Winkler similarity. Names whose digits differ never qualify, so
// "ESPN 2" is not a typo of "ESPN 3".
func nearMiss(a, b string) (float64, bool) {
	if a == "" || b == "" || digits(a) != digits(b) {
		return 0, false
	}
	s1, s2 := []rune(a), []rune(b)
	short := min(len(s1), len(s2))
	if short < minTypoLen {
		return 0, false
	}
	sim := jaroWinkler(a, b)
	d := levenshtein(s1, s2)
	switch {
	case d <= 1:
		return sim, true
	case d <= 2 && short >= minDoubleTypo:
		return sim, true
	case sim >= typoJaroWinkler && short >= minDoubleTypo:
		return sim, true
	}
	return 0, false
}

func digits(s string) string {
	out := make([]rune, 0, 4)
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return string(out)
}

// levenshtein returns the edit distance between s1 and s2.
func levenshtein(s1, s2 []rune) int {
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}
