package blocky

import (
	"bytes"
	"strconv"
	"strings"
)

// Marker grammar.
const (
	OpenPrefix  = "{:."
	ClosePrefix = "{:/."
	Suffix      = "}"

	// MarkerClass is added to every generated wrapper.
	MarkerClass = "blocky-block"

	// LevelClassPrefix is followed by the nesting level of wrappers opened
	// inside another wrapper.
	LevelClassPrefix = "block-level-"

	// CloseMarkup ends a wrapper.
	CloseMarkup = "</div>"
)

// minMarkerLen is the length of the shortest close marker, "{:/.}". Anything
// shorter is plain text, even an empty-named open marker.
const minMarkerLen = len(ClosePrefix) + len(Suffix)

// markerLead is shared by both marker prefixes.
const markerLead = "{:"

// MarkerKind classifies a text payload.
type MarkerKind uint8

// MarkerKind constants.
const (
	Plain MarkerKind = iota
	Open
	Close
)

func (k MarkerKind) String() string {
	switch k {
	case Plain:
		return "Plain"
	case Open:
		return "Open"
	case Close:
		return "Close"
	default:
		return "InvalidMarker" + strconv.Itoa(int(k))
	}
}

// Marker is the classification of a text payload, along with the class name
// extracted from it for Open and Close markers.
type Marker struct {
	Kind  MarkerKind
	Class string
}

// Classify matches a whole text payload against the marker grammar. The class
// name is not validated in any way.
func Classify(text string) Marker {
	if len(text) < minMarkerLen || !strings.HasSuffix(text, Suffix) {
		return Marker{}
	}
	end := len(text) - len(Suffix)
	if strings.HasPrefix(text, OpenPrefix) {
		return Marker{Open, text[len(OpenPrefix):end]}
	}
	if strings.HasPrefix(text, ClosePrefix) {
		return Marker{Close, text[len(ClosePrefix):end]}
	}
	return Marker{}
}

// OpenMarkup returns the wrapper element for a block of the given class,
// opened at the given nesting level (1 for a top-level block).
func OpenMarkup(class string, level int) string {
	var sb strings.Builder
	sb.Grow(len(class) + 48)
	sb.WriteString(`<div class="`)
	sb.WriteString(class)
	sb.WriteByte(' ')
	sb.WriteString(MarkerClass)
	if level > 1 {
		sb.WriteByte(' ')
		sb.WriteString(LevelClassPrefix)
		sb.WriteString(strconv.Itoa(level - 1))
	}
	sb.WriteString(`">`)
	return sb.String()
}

// mayContainMarkers returns false only if src has no possible marker text.
func mayContainMarkers(src []byte) bool {
	return bytes.Contains(src, []byte(markerLead))
}
