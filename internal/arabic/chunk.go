package arabic

import (
	"regexp"
	"unicode/utf8"
)

// Segment is one chunk of a transcript produced by [Chunk].
//
// Text is an exact slice of the original document, including any paragraph
// separators consumed along the way, so concatenating the Text of all
// segments in order reproduces the input byte-for-byte. Offset is the
// character (rune) offset of the segment's first character in the original
// document; the orchestrator uses it to rebase the detector's advisory
// offsets from chunk-relative to document-relative.
type Segment struct {
	Text   string
	Offset int
	Index  int
}

// paragraphSep matches a blank-line paragraph boundary: a newline, optional
// horizontal whitespace, then one or more further newlines (with any
// interleaved whitespace folded into the separator).
var paragraphSep = regexp.MustCompile(`\n[ \t\r]*\n[\s]*`)

// sentenceEnd matches a sentence terminator followed by whitespace. Arabic
// question mark and full stop are included alongside the Latin set. The
// trailing whitespace stays with the preceding sentence so slices remain
// contiguous.
var sentenceEnd = regexp.MustCompile(`[.!?؟۔…]["'»)]*\s+`)

// Chunk splits text into segments of at most maxChars characters, preferring
// paragraph boundaries and falling back to sentence boundaries for oversized
// paragraphs. A single sentence longer than maxChars is emitted whole as its
// own segment; sentences are never split.
//
// maxChars values below 1 are treated as unbounded (one segment).
// The function is pure and restartable: no state survives between calls.
func Chunk(text string, maxChars int) []Segment {
	if text == "" {
		return nil
	}
	if maxChars < 1 {
		return []Segment{{Text: text, Offset: 0, Index: 0}}
	}

	// Cut the document into units that are exact contiguous slices: each
	// paragraph carries its trailing separator.
	units := splitKeepingSeparators(text, paragraphSep)

	var out []Segment
	runeOffset := 0
	var current []string
	currentRunes := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := ""
		for _, u := range current {
			joined += u
		}
		out = append(out, Segment{Text: joined, Offset: runeOffset, Index: len(out)})
		runeOffset += currentRunes
		current = nil
		currentRunes = 0
	}

	add := func(unit string) {
		n := utf8.RuneCountInString(unit)
		if currentRunes > 0 && currentRunes+n > maxChars {
			flush()
		}
		current = append(current, unit)
		currentRunes += n
	}

	for _, para := range units {
		if utf8.RuneCountInString(para) <= maxChars {
			add(para)
			continue
		}
		// Oversized paragraph: descend to sentence units. Each sentence is a
		// contiguous slice of the paragraph, so the reconstruction invariant
		// is preserved.
		for _, sent := range splitKeepingSeparators(para, sentenceEnd) {
			add(sent)
		}
	}
	flush()

	return out
}

// splitKeepingSeparators cuts s at the end of every match of sep, keeping the
// matched separator attached to the preceding piece. The returned slices
// concatenate back to s exactly.
func splitKeepingSeparators(s string, sep *regexp.Regexp) []string {
	locs := sep.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}

	var parts []string
	prev := 0
	for _, loc := range locs {
		parts = append(parts, s[prev:loc[1]])
		prev = loc[1]
	}
	if prev < len(s) {
		parts = append(parts, s[prev:])
	}
	return parts
}
