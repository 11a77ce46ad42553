package processors

import (
	"context"
	"strings"

	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
)

// Parser is the C2 contract (spec.md §4.2, §6): given a string, return
// parsed sentences whose token offsets are absolute within that string.
// The syntactic parser itself is explicitly out of scope (spec.md §1);
// this interface is what lets a real spaCy/UD-style service sit behind
// the pipeline instead of ProseParser.
type Parser interface {
	Parse(ctx context.Context, text string) ([]graph.ParsedSentence, error)
}

// ProseParser is the default Parser, built on jdkato/prose/v2 (the same
// library the teacher's NLP processor used for tokenization, POS tagging
// and NER). prose does not produce a dependency parse, so ProseParser
// synthesizes UD-style head_index/dep_label edges from POS-tag adjacency
// — a deterministic, good-enough stand-in documented in DESIGN.md.
type ProseParser struct {
	logger *logrus.Entry
}

// NewProseParser creates the default parser adapter.
func NewProseParser() *ProseParser {
	return &ProseParser{logger: logrus.WithField("component", "C2")}
}

// Parse implements Parser.
func (p *ProseParser) Parse(ctx context.Context, text string) ([]graph.ParsedSentence, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(graph.ErrParserUnavailable, ctx.Err().Error())
	default:
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, errors.Wrap(graph.ErrParserUnavailable, err.Error())
	}

	sentTexts := make([]string, 0)
	for _, sent := range doc.Sentences() {
		if strings.TrimSpace(sent.Text) != "" {
			sentTexts = append(sentTexts, sent.Text)
		}
	}
	locatedSents := locateSequential(text, sentTexts)

	entities := doc.Entities()

	out := make([]graph.ParsedSentence, 0, len(locatedSents))
	for _, locSent := range locatedSents {
		sentDoc, err := prose.NewDocument(locSent.Text)
		if err != nil {
			p.logger.WithError(err).Warn("failed to re-tokenize sentence, skipping")
			continue
		}
		proseTokens := sentDoc.Tokens()
		tokTexts := make([]string, len(proseTokens))
		for i, t := range proseTokens {
			tokTexts[i] = t.Text
		}
		locatedToks := locateSequential(locSent.Text, tokTexts)

		tokens := make([]graph.Token, 0, len(locatedToks))
		for i, loc := range locatedToks {
			pt := proseTokens[i]
			tokens = append(tokens, graph.Token{
				Index: i,
				Text:  loc.Text,
				Lemma: heuristicLemma(loc.Text, pt.Tag),
				POS:   pt.Tag,
				Start: locSent.Start + loc.Start,
				End:   locSent.Start + loc.End,
			})
		}

		tagEntityTypes(tokens, entities, locSent.Start)
		assignDependencies(tokens)

		out = append(out, graph.ParsedSentence{
			Text:   locSent.Text,
			Start:  locSent.Start,
			End:    locSent.End,
			Tokens: tokens,
		})
	}

	return out, nil
}

// tagEntityTypes fills Token.EntType for tokens overlapping a prose NER
// span. prose's entities come with GPE/PERSON/ORG labels and no offsets,
// so this re-derives overlap using the already-located absolute sentence
// offsets and a best-effort text search of the entity string within the
// sentence window containing sentOffset.
func tagEntityTypes(tokens []graph.Token, entities []prose.Entity, sentOffset int) {
	if len(tokens) == 0 {
		return
	}
	for _, ent := range entities {
		label := mapProseLabel(ent.Label)
		if label == "" {
			continue
		}
		for i := range tokens {
			if tokens[i].Text == "" {
				continue
			}
			if strings.Contains(ent.Text, tokens[i].Text) && tokens[i].Start >= sentOffset {
				if tokens[i].EntType == "" {
					tokens[i].EntType = label
				}
			}
		}
	}
}

func mapProseLabel(label string) string {
	switch strings.ToUpper(label) {
	case "PERSON":
		return string(graph.EntityPerson)
	case "ORG":
		return string(graph.EntityOrg)
	case "GPE", "LOC", "FACILITY":
		return string(graph.EntityPlace)
	default:
		return ""
	}
}

// heuristicLemma is a minimal suffix-stripping lemmatizer. prose/v2 does
// not ship a lemmatizer; full morphological analysis is out of scope, so
// this only strips the common inflections C7's trigger matching needs to
// see (spec.md §9 "dynamic descriptor dictionaries" are keyed on lemma).
func heuristicLemma(text, tag string) string {
	lower := strings.ToLower(text)
	if !strings.HasPrefix(tag, "VB") && !strings.HasPrefix(tag, "NN") {
		return lower
	}
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 4:
		return lower[:len(lower)-3] + "y"
	case strings.HasSuffix(lower, "ied") && len(lower) > 4:
		return lower[:len(lower)-3] + "y"
	case strings.HasSuffix(lower, "ing") && len(lower) > 5:
		return strings.TrimSuffix(lower, "ing")
	case strings.HasSuffix(lower, "ed") && len(lower) > 4:
		return strings.TrimSuffix(lower, "ed")
	case strings.HasSuffix(lower, "es") && len(lower) > 4:
		return strings.TrimSuffix(lower, "es")
	case strings.HasSuffix(lower, "s") && len(lower) > 3 && !strings.HasSuffix(lower, "ss"):
		return strings.TrimSuffix(lower, "s")
	default:
		return lower
	}
}
