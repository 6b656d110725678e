package arabic_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/daleel-app/daleel/internal/arabic"
)

func reassemble(segs []arabic.Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func TestChunk_Reconstruction(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"single paragraph only",
		"para one.\n\npara two.\n\npara three.",
		"trailing separator.\n\n",
		"first sentence. second sentence! third sentence? رابع؟ خامس۔ done",
		"قال تعالى في سورة البقرة.\n\n  \nوقال رسول الله صلى الله عليه وسلم.",
		strings.Repeat("a very long sentence without a terminator ", 50),
	}
	for _, in := range inputs {
		for _, maxChars := range []int{0, 1, 10, 40, 1000} {
			segs := arabic.Chunk(in, maxChars)
			if got := reassemble(segs); got != in {
				t.Errorf("Chunk(%.30q..., %d) does not reconstruct input:\ngot  %q\nwant %q",
					in, maxChars, got, in)
			}
		}
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	t.Parallel()

	if segs := arabic.Chunk("", 100); segs != nil {
		t.Errorf("Chunk(\"\")=%v, want nil", segs)
	}
}

func TestChunk_UnboundedIsSingleSegment(t *testing.T) {
	t.Parallel()

	text := "one.\n\ntwo.\n\nthree."
	segs := arabic.Chunk(text, 0)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].Text != text || segs[0].Offset != 0 {
		t.Errorf("segment=%+v, want full text at offset 0", segs[0])
	}
}

func TestChunk_PrefersParagraphBoundaries(t *testing.T) {
	t.Parallel()

	text := "first paragraph here.\n\nsecond paragraph here."
	segs := arabic.Chunk(text, 25)
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if !strings.HasPrefix(segs[0].Text, "first paragraph") {
		t.Errorf("segs[0]=%q, want first paragraph", segs[0].Text)
	}
	if !strings.HasPrefix(segs[1].Text, "second paragraph") {
		t.Errorf("segs[1]=%q, want second paragraph", segs[1].Text)
	}
}

func TestChunk_FallsBackToSentences(t *testing.T) {
	t.Parallel()

	// One oversized paragraph of three sentences.
	text := "sentence number one. sentence number two. sentence number three."
	segs := arabic.Chunk(text, 25)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want sentence-level split: %+v", len(segs), segs)
	}
	for _, s := range segs {
		// No sentence is ever split mid-way: each segment boundary falls
		// after a terminator (or at end of input).
		trimmed := strings.TrimRight(s.Text, " ")
		if !strings.HasSuffix(trimmed, ".") {
			t.Errorf("segment %q does not end at a sentence boundary", s.Text)
		}
	}
}

func TestChunk_OversizedSentenceEmittedWhole(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 30) + "end."
	segs := arabic.Chunk(long, 10)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1 (sentences are never split)", len(segs))
	}
}

func TestChunk_OffsetsAreRuneOffsets(t *testing.T) {
	t.Parallel()

	text := "آية أولى.\n\nآية ثانية."
	segs := arabic.Chunk(text, 12)
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}

	runesSeen := 0
	for i, s := range segs {
		if s.Offset != runesSeen {
			t.Errorf("segs[%d].Offset=%d, want %d", i, s.Offset, runesSeen)
		}
		if s.Index != i {
			t.Errorf("segs[%d].Index=%d, want %d", i, s.Index, i)
		}
		runesSeen += utf8.RuneCountInString(s.Text)
	}
}

func TestChunk_ArabicSentenceTerminators(t *testing.T) {
	t.Parallel()

	text := "هل هذا سؤال؟ نعم هذا جواب۔ وهذه خاتمة."
	segs := arabic.Chunk(text, 15)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want Arabic terminators to split: %+v", len(segs), segs)
	}
	if got := reassemble(segs); got != text {
		t.Errorf("reconstruction failed: %q != %q", got, text)
	}
}
