// Package xmltv resolves, decompresses and parses XMLTV guide documents.
//
// Parsing is all-or-nothing: a syntax error or an unparseable timestamp
// anywhere in the document fails the whole parse.
package xmltv

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
	"golang.org/x/net/html/charset"
)

// Document is a parsed guide.
type Document struct {
	Channels []models.ChannelDraft
	Programs []models.ProgramDraft
	// Unresolved counts programmes whose channel attribute matched no channel.
	Unresolved int
}

type xmlText struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type xmlChannel struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
	Icons        []struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type xmlProgramme struct {
	Start       string    `xml:"start,attr"`
	Stop        string    `xml:"stop,attr"`
	Channel     string    `xml:"channel,attr"`
	Titles      []xmlText `xml:"title"`
	Descs       []xmlText `xml:"desc"`
	Categories  []xmlText `xml:"category"`
	EpisodeNums []struct {
		System string `xml:"system,attr"`
		Value  string `xml:",chardata"`
	} `xml:"episode-num"`
}

// Parse parses an XMLTV document held in memory.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses an XMLTV document. Channels with an empty id are
// skipped; programmes pointing at an unknown channel are dropped and
// counted in Unresolved.
func ParseReader(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		doc      Document
		seenRoot bool
		depth    int
		known    = make(map[string]bool)
		pending  []models.ProgramDraft
		openStop []int // indexes into pending whose stop was absent
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Parse("malformed xmltv", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if !seenRoot {
				if el.Name.Local != "tv" {
					return nil, apperr.Parse("malformed xmltv", fmt.Errorf("root element is <%s>, want <tv>", el.Name.Local))
				}
				seenRoot = true
				depth = 1
				continue
			}
			if depth != 1 {
				depth++
				continue
			}
			switch el.Name.Local {
			case "channel":
				var raw xmlChannel
				if err := dec.DecodeElement(&raw, &el); err != nil {
					return nil, apperr.Parse("malformed <channel>", err)
				}
				ch, ok := channelDraft(raw)
				if !ok || known[ch.ChannelID] {
					continue
				}
				known[ch.ChannelID] = true
				doc.Channels = append(doc.Channels, ch)
			case "programme":
				var raw xmlProgramme
				if err := dec.DecodeElement(&raw, &el); err != nil {
					return nil, apperr.Parse("malformed <programme>", err)
				}
				p, hasStop, err := programDraft(raw)
				if err != nil {
					return nil, apperr.Parse("programme on "+raw.Channel, err)
				}
				if !hasStop {
					openStop = append(openStop, len(pending))
				}
				pending = append(pending, p)
			default:
				if err := dec.Skip(); err != nil {
					return nil, apperr.Parse("malformed xmltv", err)
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	if !seenRoot {
		return nil, apperr.Parse("malformed xmltv", errors.New("no <tv> element"))
	}

	fillMissingStops(pending, openStop)
	for _, p := range pending {
		if !known[p.ChannelID] {
			doc.Unresolved++
			continue
		}
		doc.Programs = append(doc.Programs, p)
	}
	return &doc, nil
}

func channelDraft(raw xmlChannel) (models.ChannelDraft, bool) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return models.ChannelDraft{}, false
	}
	ch := models.ChannelDraft{ChannelID: id, DisplayName: firstText(raw.DisplayNames)}
	if ch.DisplayName == "" {
		ch.DisplayName = id
	}
	for _, ic := range raw.Icons {
		if src := strings.TrimSpace(ic.Src); src != "" {
			ch.Icon = &src
			break
		}
	}
	return ch, true
}

func programDraft(raw xmlProgramme) (models.ProgramDraft, bool, error) {
	start, err := ParseTime(raw.Start)
	if err != nil {
		return models.ProgramDraft{}, false, fmt.Errorf("start: %w", err)
	}
	p := models.ProgramDraft{
		ChannelID:   strings.TrimSpace(raw.Channel),
		Title:       firstText(raw.Titles),
		Description: optional(firstText(raw.Descs)),
		Category:    optional(firstText(raw.Categories)),
		StartTime:   start,
		EndTime:     start,
	}
	var episode string
	for _, en := range raw.EpisodeNums {
		v := strings.TrimSpace(en.Value)
		if v == "" {
			continue
		}
		if episode == "" || en.System == "onscreen" {
			episode = v
		}
		if en.System == "onscreen" {
			break
		}
	}
	p.EpisodeInfo = optional(episode)

	if strings.TrimSpace(raw.Stop) == "" {
		return p, false, nil
	}
	stop, err := ParseTime(raw.Stop)
	if err != nil {
		return models.ProgramDraft{}, false, fmt.Errorf("stop: %w", err)
	}
	p.EndTime = stop
	return p, true, nil
}

// fillMissingStops ends a programme without a stop time at the start of the
// next programme on the same channel.
func fillMissingStops(progs []models.ProgramDraft, open []int) {
	if len(open) == 0 {
		return
	}
	starts := make(map[string][]int64)
	for _, p := range progs {
		starts[p.ChannelID] = append(starts[p.ChannelID], p.StartTime.Unix())
	}
	for _, s := range starts {
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	}
	for _, i := range open {
		p := &progs[i]
		s := starts[p.ChannelID]
		at := sort.Search(len(s), func(k int) bool { return s[k] > p.StartTime.Unix() })
		if at < len(s) {
			p.EndTime = time.Unix(s[at], 0).UTC()
		}
	}
}

func firstText(items []xmlText) string {
	for _, it := range items {
		if v := strings.TrimSpace(it.Value); v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
