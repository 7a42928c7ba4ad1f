package models

// SourceFormat is the declared payload format of an EPG source.
type SourceFormat string

const (
	FormatXML   SourceFormat = "xml"
	FormatXMLGz SourceFormat = "xml_gz"
	FormatAuto  SourceFormat = "auto"
)

// Valid reports whether f is one of the known formats.
func (f SourceFormat) Valid() bool {
	switch f {
	case FormatXML, FormatXMLGz, FormatAuto:
		return true
	}
	return false
}

// QualityTier is a coarse resolution class inferred from a stream name.
type QualityTier string

const (
	Quality4K  QualityTier = "4K"
	QualityFHD QualityTier = "FHD"
	QualityHD  QualityTier = "HD"
	QualitySD  QualityTier = "SD"
)

// LinkStatus is the lifecycle state of a catalog stream.
type LinkStatus string

const (
	StatusOrphan   LinkStatus = "orphan"
	StatusLinked   LinkStatus = "linked"
	StatusPromoted LinkStatus = "promoted"
)

// Valid reports whether s is one of the known statuses.
func (s LinkStatus) Valid() bool {
	switch s {
	case StatusOrphan, StatusLinked, StatusPromoted:
		return true
	}
	return false
}

// DeriveLinkStatus computes a stream's status. promoted reports whether the
// stream serves a synthetic channel; mappingCount counts all its mappings.
// A promoted stream whose synthetic channel is gone reads as orphan or
// linked again.
func DeriveLinkStatus(promoted bool, mappingCount int) LinkStatus {
	switch {
	case promoted && mappingCount > 0:
		return StatusPromoted
	case mappingCount > 0:
		return StatusLinked
	default:
		return StatusOrphan
	}
}

// Provider account kinds.
const (
	AccountXtream = "xtream"
	AccountM3U    = "m3u"
)
