package annotate_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/daleel-app/daleel/internal/annotate"
	"github.com/daleel-app/daleel/internal/detect"
	"github.com/daleel-app/daleel/internal/match"
	"github.com/daleel-app/daleel/internal/refstore"
)

// verified builds an accepted match for a literal found at the advisory start
// offset.
func verified(kind refstore.Kind, key, literal string, start int, confidence float64) match.Match {
	return match.Match{
		Candidate: detect.Candidate{
			Kind:    kind,
			Literal: literal,
			Start:   start,
			End:     start + len([]rune(literal)),
		},
		Entry: &refstore.Entry{
			Kind:  kind,
			Key:   key,
			Label: "label for " + key,
		},
		Confidence: confidence,
	}
}

func TestAnnotate_SingleQuranReference(t *testing.T) {
	t.Parallel()

	original := "The sheikh then recited Allahu la ilaha illa huwa and paused."
	m := verified(refstore.KindQuran, "2:255", "Allahu la ilaha illa huwa", 24, 0.8)

	res := annotate.Annotate(original, []match.Match{m}, annotate.DefaultThreshold)

	want := "The sheikh then recited [[quran:2:255|Allahu la ilaha illa huwa]] and paused."
	if res.Text != want {
		t.Errorf("annotated text:\ngot  %q\nwant %q", res.Text, want)
	}
	if len(res.Annotations) != 1 {
		t.Fatalf("got %d annotations, want 1", len(res.Annotations))
	}
	a := res.Annotations[0]
	if a.Kind != refstore.KindQuran || a.Key != "2:255" || a.Confidence != 0.8 {
		t.Errorf("annotation=%+v", a)
	}
	if res.Stats.QuranPlaced != 1 || res.Stats.TotalMatches != 1 {
		t.Errorf("stats=%+v", res.Stats)
	}
}

func TestAnnotate_ConfidenceGate(t *testing.T) {
	t.Parallel()

	original := "some text with a quotation inside it"
	below := verified(refstore.KindQuran, "2:255", "quotation", 17, 0.49)
	noEntry := match.Match{
		Candidate:  detect.Candidate{Kind: refstore.KindQuran, Literal: "text"},
		Confidence: 0,
	}

	res := annotate.Annotate(original, []match.Match{below, noEntry}, annotate.DefaultThreshold)

	if res.Text != original {
		t.Errorf("text modified despite gate: %q", res.Text)
	}
	if len(res.Annotations) != 0 {
		t.Errorf("got %d annotations, want 0", len(res.Annotations))
	}
	if res.Stats.LowConfidenceSkipped != 2 {
		t.Errorf("LowConfidenceSkipped=%d, want 2", res.Stats.LowConfidenceSkipped)
	}
}

func TestAnnotate_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	original := "quotation here"
	at := verified(refstore.KindQuran, "2:255", "quotation", 0, 0.5)

	res := annotate.Annotate(original, []match.Match{at}, annotate.DefaultThreshold)
	if len(res.Annotations) != 1 {
		t.Errorf("match at exactly the threshold was skipped: %+v", res.Stats)
	}
}

func TestAnnotate_DuplicateLiteralBindsLeftmostFirst(t *testing.T) {
	t.Parallel()

	// The same quotation appears twice; two accepted matches annotate both
	// occurrences. Each search binds the leftmost remaining occurrence, and
	// processing runs in descending advisory order, so the match with the
	// higher advisory offset claims the earlier occurrence.
	original := "قال سبحان الله ثم كررها فقال سبحان الله مرة اخرى"
	first := verified(refstore.KindQuran, "q:1", "سبحان الله", 4, 0.9)
	second := verified(refstore.KindHadith, "h:1", "سبحان الله", 29, 0.9)

	res := annotate.Annotate(original, []match.Match{first, second}, annotate.DefaultThreshold)

	if got := strings.Count(res.Text, "[["); got != 2 {
		t.Fatalf("placed %d markers, want 2: %q", got, res.Text)
	}
	hPos := strings.Index(res.Text, "[[hadith:h:1|")
	qPos := strings.Index(res.Text, "[[quran:q:1|")
	if hPos < 0 || qPos < 0 || hPos > qPos {
		t.Errorf("marker order wrong: hadith at %d, quran at %d in %q", hPos, qPos, res.Text)
	}
}

func TestAnnotate_MoreOccurrencesThanMatches(t *testing.T) {
	t.Parallel()

	original := "phrase one phrase two phrase"
	m := verified(refstore.KindQuran, "q:1", "phrase", 0, 0.9)

	res := annotate.Annotate(original, []match.Match{m}, annotate.DefaultThreshold)

	if got := strings.Count(res.Text, "[["); got != 1 {
		t.Errorf("placed %d markers for one match, want 1: %q", got, res.Text)
	}
	if !strings.HasPrefix(res.Text, "[[quran:q:1|phrase]]") {
		t.Errorf("marker not bound to leftmost occurrence: %q", res.Text)
	}
}

func TestAnnotate_OrderingInvariance(t *testing.T) {
	t.Parallel()

	original := "alpha text beta text gamma text delta"
	matches := []match.Match{
		verified(refstore.KindQuran, "q:1", "alpha", 0, 0.9),
		verified(refstore.KindHadith, "h:1", "beta", 11, 0.9),
		verified(refstore.KindQuran, "q:2", "gamma", 22, 0.9),
		verified(refstore.KindHadith, "h:2", "delta", 33, 0.9),
	}

	want := annotate.Annotate(original, matches, annotate.DefaultThreshold).Text

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]match.Match, len(matches))
		copy(shuffled, matches)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := annotate.Annotate(original, shuffled, annotate.DefaultThreshold).Text
		if got != want {
			t.Fatalf("output depends on input order:\ngot  %q\nwant %q", got, want)
		}
	}
}

func TestAnnotate_LiteralNotFoundCountsUnplaced(t *testing.T) {
	t.Parallel()

	original := "nothing matching here"
	m := verified(refstore.KindQuran, "q:1", "absent quotation", 0, 0.9)

	res := annotate.Annotate(original, []match.Match{m}, annotate.DefaultThreshold)
	if res.Text != original {
		t.Errorf("text changed for an unfindable literal: %q", res.Text)
	}
	if res.Stats.Unplaced != 1 {
		t.Errorf("Unplaced=%d, want 1", res.Stats.Unplaced)
	}
}

func TestAnnotate_UnrepresentableLabelCountsUnplaced(t *testing.T) {
	t.Parallel()

	original := "weird ]] literal inside"
	m := verified(refstore.KindQuran, "q:1", "weird ]] literal", 0, 0.9)

	res := annotate.Annotate(original, []match.Match{m}, annotate.DefaultThreshold)
	if res.Text != original {
		t.Errorf("text changed for an unrepresentable label: %q", res.Text)
	}
	if res.Stats.Unplaced != 1 {
		t.Errorf("Unplaced=%d, want 1", res.Stats.Unplaced)
	}
}

func TestAnnotate_CaseInsensitiveFallback(t *testing.T) {
	t.Parallel()

	original := "he said Subhan Allah quietly"
	m := verified(refstore.KindHadith, "h:1", "subhan allah", 8, 0.9)

	res := annotate.Annotate(original, []match.Match{m}, annotate.DefaultThreshold)
	want := "he said [[hadith:h:1|subhan allah]] quietly"
	if res.Text != want {
		t.Errorf("fold placement:\ngot  %q\nwant %q", res.Text, want)
	}
}

func TestAnnotate_OffsetsPointAtMarkersInFinalText(t *testing.T) {
	t.Parallel()

	original := "اية اولى هنا ثم حديث شريف هناك"
	matches := []match.Match{
		verified(refstore.KindQuran, "2:255", "اية اولى", 0, 0.9),
		verified(refstore.KindHadith, "bukhari:1:1", "حديث شريف", 16, 0.9),
	}

	res := annotate.Annotate(original, matches, annotate.DefaultThreshold)
	runes := []rune(res.Text)
	for _, a := range res.Annotations {
		if a.Start < 0 || a.End > len(runes) || a.Start >= a.End {
			t.Fatalf("annotation span out of range: %+v (text %d runes)", a, len(runes))
		}
		span := string(runes[a.Start:a.End])
		if !strings.HasPrefix(span, "[[") || !strings.HasSuffix(span, "]]") {
			t.Errorf("span %q at [%d,%d) is not a marker", span, a.Start, a.End)
		}
		if !strings.Contains(span, a.Key) {
			t.Errorf("span %q does not contain key %q", span, a.Key)
		}
	}
}

func TestAnnotate_MixedKindsCountedSeparately(t *testing.T) {
	t.Parallel()

	original := "verse text and tradition text"
	matches := []match.Match{
		verified(refstore.KindQuran, "q:1", "verse text", 0, 0.9),
		verified(refstore.KindHadith, "h:1", "tradition text", 15, 0.9),
	}

	res := annotate.Annotate(original, matches, annotate.DefaultThreshold)
	if res.Stats.QuranPlaced != 1 || res.Stats.HadithPlaced != 1 {
		t.Errorf("stats=%+v, want one placed per kind", res.Stats)
	}
}

func TestAnnotate_EmptyMatchSet(t *testing.T) {
	t.Parallel()

	original := "untouched"
	res := annotate.Annotate(original, nil, annotate.DefaultThreshold)
	if res.Text != original || len(res.Annotations) != 0 {
		t.Errorf("got %+v, want identity result", res)
	}
}
