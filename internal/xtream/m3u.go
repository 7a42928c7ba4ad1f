package xtream

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/fetcher"
)

var (
	reTvgName   = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reTvgID     = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgLogo   = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup     = regexp.MustCompile(`group-title="([^"]*)"`)
	reCommaName = regexp.MustCompile(`,([^\n\r\t]*)$`)
)

var errNoName = errors.New("no name in EXTINF")

// PlaylistFetcher downloads a playlist.
type PlaylistFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// FetchPlaylist downloads an M3U playlist and parses its live entries.
func FetchPlaylist(ctx context.Context, f PlaylistFetcher, rawURL string) ([]LiveStream, error) {
	res, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	streams, err := ParseM3U(bytes.NewReader(res.Body))
	if err != nil {
		return nil, apperr.Parse("m3u playlist", err)
	}
	return streams, nil
}

// ParseM3U reads an M3U playlist and returns its live entries. VOD entries
// (.mp4, .mkv) and entries without a usable name are skipped. The stream id
// is the URL's file name without extension; URLs without one fall back to a
// hash of the URL so ids stay stable across scans.
func ParseM3U(r io.Reader) ([]LiveStream, error) {
	var out []LiveStream
	scanner := bufio.NewScanner(r)
	// Some playlists carry very long EXTINF lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var extinf string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "#EXTINF"):
			// A previous EXTINF without URL is dropped.
			extinf = line
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			if extinf == "" {
				continue
			}
			entry := extinf
			extinf = ""
			if isVOD(line) {
				continue
			}
			name, err := nameFromEXTINF(entry)
			if err != nil {
				continue
			}
			group := matchFirst(reGroup, entry)
			out = append(out, LiveStream{
				StreamID:     streamIDFromURL(line),
				Name:         name,
				Icon:         matchFirst(reTvgLogo, entry),
				CategoryID:   group,
				CategoryName: group,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// nameFromEXTINF prefers tvg-name, then the title after the comma, then tvg-id.
func nameFromEXTINF(extinf string) (string, error) {
	for _, n := range []string{matchFirst(reTvgName, extinf), matchFirst(reCommaName, extinf), matchFirst(reTvgID, extinf)} {
		if n != "" {
			return n, nil
		}
	}
	return "", errNoName
}

func isVOD(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".mkv")
}

func streamIDFromURL(u string) string {
	clean := u
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	base := path.Base(clean)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base != "" && base != "." && base != "/" && !strings.Contains(base, ":") {
		return base
	}
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:6])
}
