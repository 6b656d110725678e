package annotate_test

import (
	"testing"

	"github.com/daleel-app/daleel/internal/annotate"
	"github.com/daleel-app/daleel/internal/refstore"
)

func TestMarker_String(t *testing.T) {
	t.Parallel()

	m := annotate.Marker{Kind: refstore.KindQuran, Key: "2:255", Label: "اية الكرسي"}
	if got := m.String(); got != "[[quran:2:255|اية الكرسي]]" {
		t.Errorf("String()=%q", got)
	}
}

func TestMarker_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		m    annotate.Marker
		want bool
	}{
		{"quran", annotate.Marker{Kind: refstore.KindQuran, Key: "2:255", Label: "x"}, true},
		{"hadith multi-part key", annotate.Marker{Kind: refstore.KindHadith, Key: "bukhari:1:1", Label: "x"}, true},
		{"empty label", annotate.Marker{Kind: refstore.KindQuran, Key: "2:255"}, true},
		{"bad kind", annotate.Marker{Kind: "bible", Key: "1:1", Label: "x"}, false},
		{"empty key", annotate.Marker{Kind: refstore.KindQuran, Label: "x"}, false},
		{"pipe in key", annotate.Marker{Kind: refstore.KindQuran, Key: "2|255", Label: "x"}, false},
		{"close brackets in key", annotate.Marker{Kind: refstore.KindQuran, Key: "2]]5", Label: "x"}, false},
		{"close brackets in label", annotate.Marker{Kind: refstore.KindQuran, Key: "2:255", Label: "a]]b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.m.Valid(); got != tt.want {
				t.Errorf("Valid()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMarkers_RoundTrip(t *testing.T) {
	t.Parallel()

	markers := []annotate.Marker{
		{Kind: refstore.KindQuran, Key: "2:255", Label: "الله لا اله الا هو"},
		{Kind: refstore.KindHadith, Key: "bukhari:1:1", Label: "انما الاعمال بالنيات"},
	}
	text := "intro " + markers[0].String() + " middle " + markers[1].String() + " outro"

	parsed := annotate.ParseMarkers(text)
	if len(parsed) != len(markers) {
		t.Fatalf("parsed %d markers, want %d", len(parsed), len(markers))
	}
	for i, p := range parsed {
		if p.Marker != markers[i] {
			t.Errorf("parsed[%d]=%+v, want %+v", i, p.Marker, markers[i])
		}
		if got := text[p.Start:p.End]; got != markers[i].String() {
			t.Errorf("span [%d,%d)=%q, want %q", p.Start, p.End, got, markers[i].String())
		}
	}
}

func TestParseMarkers_MultiPartKey(t *testing.T) {
	t.Parallel()

	parsed := annotate.ParseMarkers("[[hadith:muslim:8:3|text]]")
	if len(parsed) != 1 {
		t.Fatalf("parsed %d markers, want 1", len(parsed))
	}
	if parsed[0].Marker.Key != "muslim:8:3" {
		t.Errorf("Key=%q, want colon-containing key intact", parsed[0].Marker.Key)
	}
}

func TestParseMarkers_SkipsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{"plain text", "no markers here", 0},
		{"literal double bracket", "array[[0]] access", 0},
		{"missing pipe", "[[quran:2:255]]", 0},
		{"missing key", "[[quran:|label]]", 0},
		{"unknown kind", "[[torah:1:1|label]]", 0},
		{"unterminated", "[[quran:2:255|label", 0},
		{"valid after junk", "[[junk]] then [[quran:2:255|ok]]", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := annotate.ParseMarkers(tt.in); len(got) != tt.want {
				t.Errorf("ParseMarkers(%q) found %d markers, want %d: %+v", tt.in, len(got), tt.want, got)
			}
		})
	}
}
