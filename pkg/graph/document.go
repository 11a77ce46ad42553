package graph

import (
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Document is the immutable source text the pipeline operates over
// (spec.md §3). Every downstream Span/Evidence offset is absolute within
// Text; a deictic-rewritten derivative (C6) is never exported and never
// shifts these offsets.
type Document struct {
	ID   string
	Text string
}

// NewDocument validates text is valid UTF-8 with reconcilable offsets
// and wraps it as a Document. Per spec.md §4.1, MalformedInput is
// unreachable for valid UTF-8; this still guards against a nil/invalid
// construction path reaching the pipeline with an unusable document.
func NewDocument(id, text string) (*Document, error) {
	if !utf8.ValidString(text) {
		return nil, errors.Wrap(ErrMalformedInput, "document text is not valid UTF-8")
	}
	return &Document{ID: id, Text: text}, nil
}

// Slice returns text[start:end], validating the range lies inside the
// document (spec.md invariant 3: spans reference document offsets).
func (d *Document) Slice(start, end int) (string, error) {
	if start < 0 || end > len(d.Text) || start > end {
		return "", errors.Wrapf(ErrMalformedInput, "span [%d:%d) outside document of length %d", start, end, len(d.Text))
	}
	return d.Text[start:end], nil
}
