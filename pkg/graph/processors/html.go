package processors

import (
	"bytes"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/narrative-kg/extract/pkg/graph"
)

// HTMLIngester turns HTML content into a plain-text Document the
// pipeline can segment. Script/style subtrees are discarded, then the
// body is converted to markdown: its blank-line-separated blocks are
// exactly the paragraph boundaries the segmenter wants.
type HTMLIngester struct{}

// NewHTMLIngester creates an HTML ingestion adapter.
func NewHTMLIngester() *HTMLIngester {
	return &HTMLIngester{}
}

// Ingest extracts readable text from content and wraps it as a Document.
func (p *HTMLIngester) Ingest(docID string, content []byte) (*graph.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "parse HTML content")
	}

	doc.Find("script, style, noscript").Remove()

	bodyHTML, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(bodyHTML) == "" {
		bodyHTML = string(content)
	}

	if md, err := htmltomarkdown.ConvertString(bodyHTML); err == nil && strings.TrimSpace(md) != "" {
		return graph.NewDocument(docID, stripMarkdownMarkers(md))
	}

	// Conversion failed: fall back to block-level text extraction.
	var blocks []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		if text := strings.TrimSpace(doc.Find("body").Text()); text != "" {
			blocks = append(blocks, text)
		}
	}

	return graph.NewDocument(docID, strings.Join(blocks, "\n\n"))
}

// stripMarkdownMarkers removes the inline markup the converter emits so
// the NER sees prose, keeping the blank-line paragraph structure.
func stripMarkdownMarkers(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		line = strings.TrimLeft(line, "#> ")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "*", "")
		line = strings.ReplaceAll(line, "_", "")
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// SupportedTypes returns the MIME types this ingester accepts.
func (p *HTMLIngester) SupportedTypes() []string {
	return []string{"text/html"}
}
