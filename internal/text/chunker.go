package text

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// DefaultMaxLength is the default upper bound for one segment.
const DefaultMaxLength = 5000

// boundarySearchWindow bounds the backward scan for a sentence terminator.
const boundarySearchWindow = 500

// Segment is one bounded slice of input text, synthesized independently.
// Segments are totally ordered by Index and cover the input with no gaps.
type Segment struct {
	Index   int
	Content string
}

// Split cuts text into ordered segments no longer than maxLength runes,
// preferring sentence boundaries, then whitespace, then a forced cut.
func Split(text string, maxLength int) ([]Segment, error) {
	if maxLength < domain.MinChunkLength || maxLength > domain.MaxChunkLength {
		return nil, domain.NewError(domain.ErrInput, "split",
			fmt.Sprintf("max chunk length %d is outside [%d, %d]", maxLength, domain.MinChunkLength, domain.MaxChunkLength), nil)
	}

	runes := []rune(text)
	segments := make([]Segment, 0, len(runes)/maxLength+1)
	appendSegment := func(content string) {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return
		}
		segments = append(segments, Segment{Index: len(segments), Content: trimmed})
	}

	pos := 0
	for pos < len(runes) {
		remaining := len(runes) - pos
		if remaining <= maxLength {
			appendSegment(string(runes[pos:]))
			break
		}

		boundary := pos + maxLength
		cut := findCut(runes, pos, boundary)
		appendSegment(string(runes[pos:cut]))
		pos = cut
		// Skip boundary whitespace so a window never collapses to nothing.
		for pos < len(runes) && unicode.IsSpace(runes[pos]) {
			pos++
		}
	}

	return segments, nil
}

// findCut picks the cut position inside (pos, boundary]: the last sentence
// terminator followed by whitespace within the search window, else the last
// whitespace in the window, else exactly the boundary (forced mid-token cut).
func findCut(runes []rune, pos, boundary int) int {
	// The window covers the last boundarySearchWindow runes before the
	// boundary, inclusive of its far edge.
	limit := boundary - boundarySearchWindow
	if limit <= pos {
		limit = pos + 1
	}
	for i := boundary - 1; i >= limit; i-- {
		if isSentenceTerminator(runes[i]) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}

	for i := boundary - 1; i > pos; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return boundary
}

// isSentenceTerminator reports whether r ends a sentence.
func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
