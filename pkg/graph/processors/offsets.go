package processors

import "strings"

// locatedPiece is one substring of container along with its absolute
// (relative to container) half-open offset range.
type locatedPiece struct {
	Text  string
	Start int
	End   int
}

// locateSequential finds each of pieces inside container in order,
// searching forward from the end of the previous match. jdkato/prose
// tokenizes and sentence-splits without returning offsets, so every
// adapter in this package that consumes prose needs to re-derive them;
// this is the one place that happens. Pieces that can't be found (rare:
// prose occasionally normalizes quotes/whitespace) are skipped rather
// than mis-positioned.
func locateSequential(container string, pieces []string) []locatedPiece {
	out := make([]locatedPiece, 0, len(pieces))
	cursor := 0
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		idx := strings.Index(container[cursor:], piece)
		if idx < 0 {
			// Fall back to a whitespace-trimmed search before giving up,
			// since prose sometimes retokenizes whitespace runs.
			trimmed := strings.TrimSpace(piece)
			if trimmed == "" {
				continue
			}
			idx = strings.Index(container[cursor:], trimmed)
			if idx < 0 {
				continue
			}
			piece = trimmed
		}
		start := cursor + idx
		end := start + len(piece)
		out = append(out, locatedPiece{Text: piece, Start: start, End: end})
		cursor = end
	}
	return out
}
