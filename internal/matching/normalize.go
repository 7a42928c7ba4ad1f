package matching

import (
	"strings"
	"unicode"
)

var noiseTokens = map[string]struct{}{
	"hd": {}, "uhd": {}, "fhd": {}, "sd": {}, "4k": {}, "1080p": {}, "720p": {}, "hevc": {},
	"us": {}, "usa": {}, "uk": {}, "ca": {}, "canada": {},
	"hq": {}, "vip": {}, "backup": {}, "raw": {}, "live": {},
}

// Fold lowercases s, turns punctuation into spaces and collapses whitespace.
func Fold(s string) string {
	return strings.Join(tokens(s), " ")
}

// NormalizeName reduces a channel or stream name to a compact key for
// matching: lowercase letters and digits only, with quality, region and
// "channel" noise removed ("BBC One HD" and "bbc-one" both become "bbcone").
func NormalizeName(s string) string {
	toks := tokens(s)
	out := toks[:0]
	for _, t := range toks {
		if _, drop := noiseTokens[t]; drop {
			continue
		}
		out = append(out, t)
	}
	return strings.ReplaceAll(strings.Join(out, ""), "channel", "")
}

func tokens(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}
