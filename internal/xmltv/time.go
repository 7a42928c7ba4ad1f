package xmltv

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts seen in the wild. The first is the XMLTV standard;
// timestamps without an offset are taken as UTC.
var timeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405 -07:00",
	"20060102150405-0700",
	"20060102150405 MST",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

// ParseTime parses an XMLTV timestamp and returns it in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTime renders t in the XMLTV layout with a +0000 offset.
func FormatTime(t time.Time) string {
	return t.UTC().Format("20060102150405 -0700")
}
