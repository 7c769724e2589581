package receipt

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/gen2brain/go-fitz"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// PageUnit is one page of a document, either the original bytes of a single
// image or a rendered page held in scratch storage
type PageUnit struct {
	Index       int
	ContentType string

	data    []byte
	path    string
	storage Storage
}

// Bytes returns the page image
func (p PageUnit) Bytes() ([]byte, error) {
	if p.data != nil {
		return p.data, nil
	}
	data, err := p.storage.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("loading page %d: %w", p.Index, err)
	}
	return data, nil
}

// Release deletes a rendered page from scratch storage once it has been
// extracted. Pass-through images hold nothing to release.
func (p PageUnit) Release() error {
	if p.path == "" || p.storage == nil {
		return nil
	}
	if err := p.storage.Delete(p.path); err != nil {
		return fmt.Errorf("releasing page %d: %w", p.Index, err)
	}
	return nil
}

// Pages is the rendered form of a document. Close releases scratch storage.
type Pages struct {
	Units []PageUnit

	scratch *LocalStorage
}

// Close removes any rendered page files
func (p *Pages) Close() error {
	if p == nil || p.scratch == nil {
		return nil
	}
	err := p.scratch.RemoveAll()
	p.scratch = nil
	return err
}

// Renderer turns a document into page images
type Renderer interface {
	Render(ctx context.Context, doc SourceDocument, data []byte) (*Pages, error)
}

// FitzRenderer rasterizes PDFs with MuPDF and passes images through once
// their header decodes
type FitzRenderer struct {
	DPI        int
	MaxPages   int
	ScratchDir string
}

// NewFitzRenderer creates a renderer from the pipeline configuration
func NewFitzRenderer(cfg Config) *FitzRenderer {
	return &FitzRenderer{DPI: cfg.DPI, MaxPages: cfg.MaxPages, ScratchDir: cfg.ScratchDir}
}

// Render returns the ordered pages of doc. Failures to decode are wrapped in ErrRender.
func (r *FitzRenderer) Render(ctx context.Context, doc SourceDocument, data []byte) (*Pages, error) {
	if !doc.IsPDF() {
		if err := scanning.CheckImage(data, doc.MediaType); err != nil {
			return nil, fmt.Errorf("reading %s: %w: %w", doc.ID, ErrRender, err)
		}
		return &Pages{Units: []PageUnit{{Index: 0, ContentType: doc.MediaType, data: data}}}, nil
	}

	fdoc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w: %w", doc.ID, ErrRender, err)
	}
	defer fdoc.Close()

	n := fdoc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%s has no pages: %w", doc.ID, ErrRender)
	}
	if r.MaxPages > 0 && n > r.MaxPages {
		slog.Warn("Truncating document", "document", doc.ID, "pages", n, "max_pages", r.MaxPages)
		n = r.MaxPages
	}

	scratch, err := NewScratchStorage(r.ScratchDir, "receipt-ledger-pages-*")
	if err != nil {
		return nil, err
	}
	pages := &Pages{Units: make([]PageUnit, 0, n), scratch: scratch}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			pages.Close()
			return nil, err
		}
		img, err := fdoc.ImageDPI(i, float64(r.DPI))
		if err != nil {
			pages.Close()
			return nil, fmt.Errorf("rendering %s page %d: %w: %w", doc.ID, i, ErrRender, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			pages.Close()
			return nil, fmt.Errorf("encoding %s page %d: %w", doc.ID, i, err)
		}
		name, err := scratch.Save(fmt.Sprintf("page-%04d.png", i), buf.Bytes())
		if err != nil {
			pages.Close()
			return nil, err
		}
		pages.Units = append(pages.Units, PageUnit{Index: i, ContentType: "image/png", path: name, storage: scratch})
	}

	slog.Debug("Rendered document", "document", doc.ID, "pages", n, "dpi", r.DPI)
	return pages, nil
}
