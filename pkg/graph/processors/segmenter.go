package processors

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
)

// blankLineRun splits paragraphs on one or more blank lines, tolerating
// trailing whitespace on the "blank" line.
var blankLineRun = regexp.MustCompile(`\n[ \t]*\n+`)

// Segmenter implements C1: it splits document text into an ordered,
// non-overlapping sequence of Segments with absolute offsets.
type Segmenter struct {
	logger *logrus.Entry
}

// NewSegmenter creates a C1 segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{logger: logrus.WithField("component", "C1")}
}

// Segment splits docText into paragraphs (blank-line runs) and, within
// each paragraph, into sentences via prose's sentence tokenizer (which
// already respects abbreviations and quotation, spec.md §4.1). Offsets
// are absolute within docText.
func (s *Segmenter) Segment(docID, docText string) ([]graph.Segment, error) {
	var segments []graph.Segment

	paraStart := 0
	paragraphIndex := 0
	locs := blankLineRun.FindAllStringIndex(docText, -1)
	boundaries := make([]int, 0, len(locs)+1)
	for _, loc := range locs {
		boundaries = append(boundaries, loc[0], loc[1])
	}
	boundaries = append(boundaries, len(docText))

	for i := 0; i < len(boundaries); i += 2 {
		paraEnd := boundaries[i]
		paraText := docText[paraStart:paraEnd]
		if strings.TrimSpace(paraText) == "" {
			if i+1 < len(boundaries) {
				paraStart = boundaries[i+1]
			} else {
				paraStart = paraEnd
			}
			continue
		}

		sentSegments, err := s.segmentParagraph(docID, paragraphIndex, paraStart, paraText)
		if err != nil {
			return nil, err
		}
		segments = append(segments, sentSegments...)
		paragraphIndex++

		if i+1 < len(boundaries) {
			paraStart = boundaries[i+1]
		} else {
			paraStart = paraEnd
		}
	}

	s.logger.WithField("segment_count", len(segments)).Debug("segmentation complete")
	return segments, nil
}

func (s *Segmenter) segmentParagraph(docID string, paragraphIndex, paraOffset int, paraText string) ([]graph.Segment, error) {
	doc, err := prose.NewDocument(paraText, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return nil, errors.Wrapf(graph.ErrMalformedInput, "paragraph %d: %v", paragraphIndex, err)
	}

	sentTexts := make([]string, 0)
	for _, sent := range doc.Sentences() {
		if strings.TrimSpace(sent.Text) == "" {
			continue
		}
		sentTexts = append(sentTexts, sent.Text)
	}
	located := locateSequential(paraText, sentTexts)

	segments := make([]graph.Segment, 0, len(located))
	for i, loc := range located {
		segments = append(segments, graph.Segment{
			DocID:              docID,
			ParagraphIndex:     paragraphIndex,
			SentenceIndexInPar: i,
			Start:              paraOffset + loc.Start,
			End:                paraOffset + loc.End,
			Text:               loc.Text,
		})
	}
	return segments, nil
}
