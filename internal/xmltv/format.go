package xmltv

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
)

// maxInflated bounds a decompressed document.
const maxInflated = 1 << 30

var gzipMagic = []byte{0x1f, 0x8b}

// Resolve returns FormatXML or FormatXMLGz. Explicit declarations are
// trusted; FormatAuto (and anything unknown) sniffs the gzip magic bytes.
func Resolve(declared models.SourceFormat, data []byte) models.SourceFormat {
	switch declared {
	case models.FormatXML, models.FormatXMLGz:
		return declared
	}
	if bytes.HasPrefix(data, gzipMagic) {
		return models.FormatXMLGz
	}
	return models.FormatXML
}

// Decode resolves the format of data and returns the plain XML document.
// Compressed payloads are fully inflated before returning.
func Decode(declared models.SourceFormat, data []byte) ([]byte, models.SourceFormat, error) {
	format := Resolve(declared, data)
	if format == models.FormatXML {
		return data, format, nil
	}
	if !bytes.HasPrefix(data, gzipMagic) && looksLikeXML(data) {
		// Declared gzip but already inflated by a Content-Encoding: gzip
		// transport.
		return data, models.FormatXML, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, format, apperr.Parse("decompress gzip", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return nil, format, apperr.Parse("decompress gzip", err)
	}
	if len(out) > maxInflated {
		return nil, format, apperr.Parse("decompress gzip", fmt.Errorf("document exceeds %d bytes", maxInflated))
	}
	return out, format, nil
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// looksLikeXML reports whether data starts with markup after an optional
// byte order mark and whitespace.
func looksLikeXML(data []byte) bool {
	data = bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	return len(data) > 0 && data[0] == '<'
}
