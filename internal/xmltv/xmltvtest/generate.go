// Package xmltvtest builds synthetic XMLTV documents for tests.
package xmltvtest

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"time"
)

// Base is the start of the first generated programme.
var Base = time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

// Generate returns a document with the given number of channels, each with
// programsPerChannel hourly programmes starting at Base. Channel ids carry
// the prefix so two documents can differ.
func Generate(prefix string, channels, programsPerChannel int) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<tv generator-info-name="xmltvtest">` + "\n")
	for c := 0; c < channels; c++ {
		fmt.Fprintf(&b, `  <channel id="%s%d.example"><display-name>%s Channel %d</display-name><icon src="http://img.example/%d.png"/></channel>`+"\n", prefix, c, prefix, c, c)
	}
	for c := 0; c < channels; c++ {
		for p := 0; p < programsPerChannel; p++ {
			start := Base.Add(time.Duration(p) * time.Hour)
			stop := start.Add(time.Hour)
			fmt.Fprintf(&b, `  <programme start="%s" stop="%s" channel="%s%d.example"><title>Show %d</title><desc>Episode %d of show</desc><category>News</category></programme>`+"\n",
				start.Format("20060102150405 -0700"), stop.Format("20060102150405 -0700"), prefix, c, p, p)
		}
	}
	b.WriteString("</tv>\n")
	return b.Bytes()
}

// Gzip compresses data.
func Gzip(data []byte) []byte {
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return b.Bytes()
}
