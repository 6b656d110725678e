// Package annotate converts verified matches into a rewritten document with
// embedded reference markers.
//
// Placement never trusts the detector's offsets. Each accepted match is
// re-located by searching for its literal text in the working buffer; the
// advisory offsets only determine processing order (descending, so edits at
// the back of the document cannot invalidate searches at the front). The
// rewrite is a pure function of the accepted match set and the original
// text.
package annotate

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/daleel-app/daleel/internal/match"
	"github.com/daleel-app/daleel/internal/refstore"
)

// DefaultThreshold is the reference acceptance threshold: matches below it
// are never annotated.
const DefaultThreshold = 0.5

// Annotation is one placed marker, with offsets resolved against the final
// annotated document.
type Annotation struct {
	Kind  refstore.Kind
	Key   string
	Label string

	// Confidence is the match confidence that passed the acceptance gate.
	Confidence float64

	// Start and End are rune offsets of the full marker (brackets included)
	// in the final document.
	Start int
	End   int

	// Adjudicated reports whether the match went through the generative
	// tie-break pass.
	Adjudicated bool
}

// Stats summarises one annotation pass.
type Stats struct {
	// TotalMatches is the number of verified matches handed to Annotate.
	TotalMatches int

	// QuranPlaced and HadithPlaced count successfully placed markers per
	// corpus.
	QuranPlaced  int
	HadithPlaced int

	// LowConfidenceSkipped counts matches rejected by the confidence gate,
	// including no-match results (confidence 0).
	LowConfidenceSkipped int

	// Unplaced counts accepted matches whose literal text could not be found
	// in the working buffer, or whose label could not be represented in
	// marker syntax.
	Unplaced int
}

// Result is the output of [Annotate].
type Result struct {
	// Text is the annotated document.
	Text string

	// Annotations lists placed markers in placement order (back of the
	// document first).
	Annotations []Annotation

	Stats Stats
}

// Annotate applies the accepted subset of matches to original and returns
// the rewritten document.
//
// Matches are gated by threshold: an Annotation is never created with
// confidence below it. Accepted matches are processed in descending advisory
// start offset (ties in reverse detection order) and each literal is bound to
// its first occurrence in the working buffer at the time of its search.
// Duplicate quotations of the same text therefore bind to the leftmost
// remaining occurrence; occurrences beyond the number of accepted matches
// stay unannotated.
func Annotate(original string, matches []match.Match, threshold float64) Result {
	res := Result{Text: original}
	res.Stats.TotalMatches = len(matches)

	var accepted []match.Match
	for _, m := range matches {
		if m.Entry == nil || m.Confidence < threshold {
			res.Stats.LowConfidenceSkipped++
			continue
		}
		accepted = append(accepted, m)
	}

	// Reverse first so ties in advisory offset process in reverse detection
	// order under the stable sort.
	for i, j := 0, len(accepted)-1; i < j; i, j = i+1, j-1 {
		accepted[i], accepted[j] = accepted[j], accepted[i]
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Candidate.Start > accepted[j].Candidate.Start
	})

	for _, m := range accepted {
		marker := Marker{Kind: m.Entry.Kind, Key: m.Entry.Key, Label: m.Candidate.Literal}
		if !marker.Valid() {
			res.Stats.Unplaced++
			continue
		}

		start, end := foldIndex(res.Text, m.Candidate.Literal)
		if start < 0 {
			res.Stats.Unplaced++
			continue
		}

		rendered := marker.String()
		runeStart := utf8.RuneCountInString(res.Text[:start])
		markerRunes := utf8.RuneCountInString(rendered)
		delta := markerRunes - utf8.RuneCountInString(res.Text[start:end])

		// Every previously placed marker sits at or after this edit point, so
		// shift its recorded offsets by the length change.
		for i := range res.Annotations {
			if res.Annotations[i].Start >= runeStart {
				res.Annotations[i].Start += delta
				res.Annotations[i].End += delta
			}
		}

		res.Text = res.Text[:start] + rendered + res.Text[end:]
		res.Annotations = append(res.Annotations, Annotation{
			Kind:        m.Entry.Kind,
			Key:         m.Entry.Key,
			Label:       m.Candidate.Literal,
			Confidence:  m.Confidence,
			Start:       runeStart,
			End:         runeStart + markerRunes,
			Adjudicated: m.Adjudicated,
		})

		switch m.Entry.Kind {
		case refstore.KindQuran:
			res.Stats.QuranPlaced++
		case refstore.KindHadith:
			res.Stats.HadithPlaced++
		}
	}

	return res
}

// foldIndex locates the first occurrence of substr in s, preferring an exact
// match and falling back to a case-insensitive (Unicode fold) scan over rune
// windows. Returns the byte span of the occurrence, or (-1, -1).
//
// The fold fallback matters for Latin transliteration: detectors often
// normalise capitalisation ("allahu" vs "Allahu") while the transcript keeps
// the original casing. Arabic script is unaffected by folding.
func foldIndex(s, substr string) (int, int) {
	if substr == "" {
		return -1, -1
	}
	if i := strings.Index(s, substr); i >= 0 {
		return i, i + len(substr)
	}

	n := utf8.RuneCountInString(substr)
	starts := runeStarts(s)
	for i := 0; i+n <= len(starts); i++ {
		lo := starts[i]
		hi := len(s)
		if i+n < len(starts) {
			hi = starts[i+n]
		}
		if strings.EqualFold(s[lo:hi], substr) {
			return lo, hi
		}
	}
	return -1, -1
}

// runeStarts returns the byte index of every rune in s.
func runeStarts(s string) []int {
	starts := make([]int, 0, len(s))
	for i := range s {
		starts = append(starts, i)
	}
	return starts
}
