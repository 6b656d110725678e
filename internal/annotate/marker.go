package annotate

import (
	"fmt"
	"strings"

	"github.com/daleel-app/daleel/internal/refstore"
)

// Marker is one inline reference marker in an annotated document.
//
// The wire syntax is [[<kind>:<key>|<label>]] where kind is "quran" or
// "hadith", key is the canonical reference key ("2:255", "bukhari:1:1") and
// label is the literal transcript text shown to the reader. The syntax is a
// compatibility contract with viewer and export collaborators and must
// round-trip losslessly, so labels containing "]]" cannot be represented.
type Marker struct {
	Kind  refstore.Kind
	Key   string
	Label string
}

// String renders the marker in wire syntax.
func (m Marker) String() string {
	return fmt.Sprintf("[[%s:%s|%s]]", m.Kind, m.Key, m.Label)
}

// Valid reports whether the marker can be rendered and parsed back
// losslessly.
func (m Marker) Valid() bool {
	if !m.Kind.Valid() || m.Key == "" {
		return false
	}
	if strings.Contains(m.Key, "|") || strings.Contains(m.Key, "]]") {
		return false
	}
	return !strings.Contains(m.Label, "]]")
}

// ParsedMarker is a marker located in a document by [ParseMarkers].
type ParsedMarker struct {
	Marker Marker

	// Start and End are byte offsets of the full marker (including the
	// surrounding brackets) within the parsed text.
	Start int
	End   int
}

// ParseMarkers scans text for well-formed reference markers. Malformed
// bracket sequences are skipped, not errors: annotated documents may contain
// literal "[[" in the transcript itself.
func ParseMarkers(text string) []ParsedMarker {
	var out []ParsedMarker
	pos := 0
	for {
		open := strings.Index(text[pos:], "[[")
		if open < 0 {
			return out
		}
		open += pos

		close := strings.Index(text[open+2:], "]]")
		if close < 0 {
			return out
		}
		close += open + 2

		body := text[open+2 : close]
		m, ok := parseBody(body)
		if !ok {
			// Not a marker; resume after the opening brackets so overlapping
			// candidates are still considered.
			pos = open + 2
			continue
		}
		out = append(out, ParsedMarker{Marker: m, Start: open, End: close + 2})
		pos = close + 2
	}
}

// parseBody splits "kind:key|label" and validates the parts.
func parseBody(body string) (Marker, bool) {
	kindAndKey, label, ok := strings.Cut(body, "|")
	if !ok {
		return Marker{}, false
	}
	kind, key, ok := strings.Cut(kindAndKey, ":")
	if !ok || key == "" {
		return Marker{}, false
	}
	m := Marker{Kind: refstore.Kind(kind), Key: key, Label: label}
	if !m.Kind.Valid() {
		return Marker{}, false
	}
	return m, true
}
