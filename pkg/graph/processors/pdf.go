package processors

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"

	"github.com/narrative-kg/extract/pkg/graph"
)

// PDFIngester turns PDF content into a plain-text Document, one
// paragraph break per page.
type PDFIngester struct{}

// NewPDFIngester creates a PDF ingestion adapter.
func NewPDFIngester() *PDFIngester {
	return &PDFIngester{}
}

// Ingest extracts plain text from content and wraps it as a Document.
// Unreadable pages are skipped rather than failing the whole document.
func (p *PDFIngester) Ingest(docID string, content []byte) (*graph.Document, error) {
	reader := bytes.NewReader(content)

	r, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return nil, errors.Wrap(err, "open PDF content")
	}

	var pages []string
	totalPage := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return graph.NewDocument(docID, strings.Join(pages, "\n\n"))
}

// SupportedTypes returns the MIME types this ingester accepts.
func (p *PDFIngester) SupportedTypes() []string {
	return []string{"application/pdf"}
}
