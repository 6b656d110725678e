// Package arabic provides the text-normalization utilities the reference
// detection pipeline depends on: Arabic script canonicalization, fuzzy string
// similarity, and paragraph/sentence-aware chunking.
//
// Spoken-lecture transcripts quote scripture in inconsistent renderings
// (fully vocalised Arabic, bare rasm, or Latin transliteration), so every
// comparison in the pipeline goes through [NormalizeScript] first. The
// normalization is deterministic and idempotent: applying it twice yields the
// same result as applying it once.
//
// All functions are safe for concurrent use; the package holds no state.
package arabic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// letterFold maps Arabic letter variants to their canonical form. Hamza-bearing
// alif forms collapse to bare alif, ta-marbuta to ha, alif-maksura to ya, and
// hamza-bearing waw/ya to the bare letter. Quoted text and corpus text must go
// through the same fold so that orthographic variation never defeats a match.
var letterFold = map[rune]rune{
	'آ': 'ا', // alif madda → alif
	'أ': 'ا', // alif hamza above → alif
	'إ': 'ا', // alif hamza below → alif
	'ٱ': 'ا', // alif wasla → alif
	'ة': 'ه', // ta-marbuta → ha
	'ى': 'ي', // alif-maksura → ya
	'ؤ': 'و', // waw hamza → waw
	'ئ': 'ي', // ya hamza → ya
}

// isTashkeel reports whether r is an Arabic diacritical or Quranic annotation
// mark that carries no letter identity. Covers the harakat block (fathatan
// through wavy hamza, U+064B–U+065F), the superscript alef (U+0670), the
// Quranic annotation signs (U+06D6–U+06ED), and the honorific signs
// (U+0610–U+061A).
func isTashkeel(r rune) bool {
	switch {
	case r >= 0x064B && r <= 0x065F: // harakat, sukun, shadda, hamza marks
		return true
	case r == 0x0670: // superscript alef
		return true
	case r >= 0x06D6 && r <= 0x06ED: // Quranic annotation signs
		return true
	case r >= 0x0610 && r <= 0x061A: // honorific and small high signs
		return true
	}
	return false
}

// NormalizeScript canonicalizes Arabic text for comparison: diacritical marks
// are stripped, letter variants are folded to canonical forms, the tatweel
// elongation character is removed, and runs of whitespace collapse to a single
// space. Latin text passes through untouched apart from the whitespace
// collapse, so the function is total over mixed-script transcripts.
func NormalizeScript(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isTashkeel(r) || r == 0x0640 { // tatweel
			continue
		}
		if folded, ok := letterFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// FuzzySimilarity returns a similarity score in [0, 1] between a and b after
// both are canonicalized with [NormalizeScript]. Equal normalized strings
// (including two empty strings) score 1.0; otherwise the score is
// 1 - distance/max(len) using character-level Levenshtein distance.
//
// The function is symmetric: FuzzySimilarity(a, b) == FuzzySimilarity(b, a).
func FuzzySimilarity(a, b string) float64 {
	na := NormalizeScript(a)
	nb := NormalizeScript(b)

	if na == nb {
		return 1.0
	}

	la := len([]rune(na))
	lb := len([]rune(nb))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}

	dist := matchr.Levenshtein(na, nb)
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
