package text

import (
	"errors"
	"strings"
	"testing"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// TestSplitShortTextReturnsSingleTrimmedSegment checks the round-trip path.
func TestSplitShortTextReturnsSingleTrimmedSegment(t *testing.T) {
	segments, err := Split("  Hello, this is a test.  ", 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	if segments[0].Content != "Hello, this is a test." {
		t.Fatalf("content = %q", segments[0].Content)
	}
	if segments[0].Index != 0 {
		t.Fatalf("index = %d, want 0", segments[0].Index)
	}
}

// TestSplitRejectsMaxLengthOutOfRange checks the configured bounds.
func TestSplitRejectsMaxLengthOutOfRange(t *testing.T) {
	for _, maxLength := range []int{0, 999, 10001} {
		_, err := Split("hello", maxLength)
		if err == nil {
			t.Fatalf("Split(maxLength=%d) expected error", maxLength)
		}

		var cerr *domain.ConvertError
		if !errors.As(err, &cerr) || cerr.Kind != domain.ErrInput {
			t.Fatalf("maxLength=%d error = %v, want input kind", maxLength, err)
		}
	}
}

// TestSplitPrefersSentenceBoundary checks backward terminator search.
func TestSplitPrefersSentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("word ", 30) + "done. "
	var b strings.Builder
	for b.Len() < 3000 {
		b.WriteString(sentence)
	}
	input := b.String()

	segments, err := Split(input, 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("segments = %d, want at least 2", len(segments))
	}
	for _, seg := range segments[:len(segments)-1] {
		if !strings.HasSuffix(seg.Content, "done.") {
			t.Fatalf("segment %d does not end at sentence boundary: %q", seg.Index, tail(seg.Content))
		}
	}
}

// TestSplitHonorsTerminatorAtWindowEdge checks that a sentence terminator
// sitting exactly 500 runes before the boundary is still preferred over the
// whitespace fallback.
func TestSplitHonorsTerminatorAtWindowEdge(t *testing.T) {
	// Terminator at index 500, which is boundary-500 for maxLength 1000.
	// The only other whitespace in the window is mid-phrase at index 700.
	input := strings.Repeat("a", 500) + ". " +
		strings.Repeat("b", 198) + " " +
		strings.Repeat("c", 299) +
		strings.Repeat("d", 600)

	segments, err := Split(input, 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	want := strings.Repeat("a", 500) + "."
	if segments[0].Content != want {
		t.Fatalf("first cut at %d runes, want sentence end at 501: %q",
			len([]rune(segments[0].Content)), tail(segments[0].Content))
	}
}

// TestSplitFallsBackToWhitespace checks the whitespace cut when no
// terminator appears inside the search window.
func TestSplitFallsBackToWhitespace(t *testing.T) {
	input := strings.TrimSpace(strings.Repeat("word ", 500))

	segments, err := Split(input, 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for _, seg := range segments {
		if len([]rune(seg.Content)) > 1000 {
			t.Fatalf("segment %d exceeds max length: %d", seg.Index, len(seg.Content))
		}
		if strings.HasPrefix(seg.Content, "ord") || strings.HasSuffix(seg.Content, "wor") {
			t.Fatalf("segment %d split mid-word: %q", seg.Index, tail(seg.Content))
		}
	}
}

// TestSplitForcedCutWithoutWhitespace checks the mid-token degradation.
func TestSplitForcedCutWithoutWhitespace(t *testing.T) {
	input := strings.Repeat("a", 2500)

	segments, err := Split(input, 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}
	for i, wantLen := range []int{1000, 1000, 500} {
		if got := len(segments[i].Content); got != wantLen {
			t.Fatalf("segment %d length = %d, want %d", i, got, wantLen)
		}
	}
}

// TestSplitCoverageReconstructsInput checks no gaps and no overlaps.
func TestSplitCoverageReconstructsInput(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	input := strings.TrimSpace(strings.Repeat(sentence, 300))

	segments, err := Split(input, 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		if seg.Index != i {
			t.Fatalf("segment %d has index %d", i, seg.Index)
		}
		parts = append(parts, seg.Content)
	}

	if got := strings.Join(parts, " "); got != input {
		t.Fatalf("joined segments do not reconstruct input (len %d vs %d)", len(got), len(input))
	}
}

// TestSplitWhitespaceOnlyInputYieldsNoSegments checks empty filtering.
func TestSplitWhitespaceOnlyInputYieldsNoSegments(t *testing.T) {
	segments, err := Split("   \n\t  ", 1000)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("segments = %d, want 0", len(segments))
	}
}

// tail returns the last few characters for failure messages.
func tail(s string) string {
	if len(s) <= 40 {
		return s
	}
	return "..." + s[len(s)-40:]
}
