package scanning

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFText reads embedded PDF text layers in pure Go
type PDFText struct{}

// NewPDFText creates a TextLayerReader for PDFs
func NewPDFText() *PDFText {
	return &PDFText{}
}

// TextLayer returns the plain text of every page. Pages without a text layer
// yield an empty string so indexes stay aligned with page numbers.
func (p *PDFText) TextLayer(ctx context.Context, data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", ErrEmptyResult)
	}
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("reading pdf text layer: %v: %w", r, ErrEmptyResult)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w: %w", ErrEmptyResult, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading page %d text: %w: %w", i, ErrEmptyResult, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PageCount returns the number of pages, or an error when the file cannot be opened
func (p *PDFText) PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("opening pdf: %w", err)
	}
	return r.NumPage(), nil
}
