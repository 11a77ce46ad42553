package graph

import "github.com/pkg/errors"

// Fatal error kinds (spec.md §7). Compare with errors.Is; the pipeline
// wraps the underlying cause with errors.Wrap so the chain survives.
var (
	// ErrParserUnavailable means the external parser (C2) did not
	// return. The caller must retry or abandon the document.
	ErrParserUnavailable = errors.New("parser unavailable")

	// ErrMalformedInput means the text could not be segmented or its
	// offsets collided; unreachable with valid UTF-8 input.
	ErrMalformedInput = errors.New("malformed input")

	// ErrRegistryConflict is recoverable: the identity registry saw a
	// write-write race. Callers should retry with a fresh snapshot.
	ErrRegistryConflict = errors.New("identity registry write conflict")
)

// DropReason explains, for diagnostics only, why a candidate relation
// never made it into the final result. Neither GuardViolation nor
// LowConfidence are ever returned as errors (spec.md §7): they are
// internal and only affect Stats.
type DropReason string

const (
	DropGuardViolation DropReason = "guard_violation"
	DropLowConfidence  DropReason = "low_confidence"
)

// Stats accumulates diagnostic counters for one Extract() call. It is not
// part of ExtractionResult; callers that want it can request it via
// ExtractWithStats.
type Stats struct {
	EntitiesHarvested   int
	EntitiesFiltered    int
	RelationsCandidates int
	RelationsDropped    map[DropReason]int
	RelationsFinal      int
}

// NewStats allocates an empty Stats with its drop map ready.
func NewStats() *Stats {
	return &Stats{RelationsDropped: make(map[DropReason]int)}
}

// Drop counts one silently dropped relation under reason.
func (s *Stats) Drop(reason DropReason, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.RelationsDropped[reason] += n
}
