package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// Backends are the extraction capabilities available to a pipeline. Any of them may be nil.
type Backends struct {
	TextLayer scanning.TextLayerReader
	OCR       scanning.Recognizer
	Vision    scanning.Describer
	// Prompt overrides scanning.ReceiptPrompt for vision calls
	Prompt string
}

// PageOutcome is what one page produced
type PageOutcome struct {
	Index int
	Units []RawUnit
	Err   error
}

// DocumentOutcome is what one document produced. Err is set when the
// document failed before any page could be attempted.
type DocumentOutcome struct {
	Pages    []PageOutcome
	Attempts []Attempt
	Err      error
}

// Pipeline selects and runs extraction strategies for documents
type Pipeline struct {
	cfg      Config
	native   *nativeTextStrategy
	raster   []pageStrategy
	renderer Renderer
	sem      *semaphore.Weighted
}

// NewPipeline builds the strategy chain from the configured preference order,
// keeping only strategies whose backend is present
func NewPipeline(cfg Config, backends Backends, renderer Renderer) *Pipeline {
	p := &Pipeline{cfg: cfg, renderer: renderer}

	if cfg.NativeText && backends.TextLayer != nil {
		p.native = &nativeTextStrategy{reader: backends.TextLayer, pages: cfg.NativePages, minChars: cfg.MinNativeChars}
	}

	prompt := backends.Prompt
	if prompt == "" {
		prompt = scanning.ReceiptPrompt
	}
	for _, s := range cfg.RasterOrder {
		switch {
		case s == StrategyVision && backends.Vision != nil:
			p.raster = append(p.raster, visionStrategy{describer: backends.Vision, prompt: prompt})
		case s == StrategyOCR && backends.OCR != nil:
			p.raster = append(p.raster, ocrStrategy{recognizer: backends.OCR})
		}
	}

	n := int64(cfg.BackendConcurrency)
	if n < 1 {
		n = 1
	}
	p.sem = semaphore.NewWeighted(n)
	return p
}

// Strategies returns the raster chain in the order it is tried
func (p *Pipeline) Strategies() []Strategy {
	names := make([]Strategy, 0, len(p.raster))
	for _, s := range p.raster {
		names = append(names, s.Name())
	}
	return names
}

// Process runs one document through native text and, failing that, the raster chain
func (p *Pipeline) Process(ctx context.Context, doc SourceDocument) DocumentOutcome {
	var out DocumentOutcome

	data, err := doc.Bytes()
	if err != nil {
		out.Err = err
		return out
	}

	var nativeErr error
	if doc.IsPDF() && p.native != nil {
		start := time.Now()
		unit, err := p.native.Extract(ctx, data)
		attempt := Attempt{DocumentID: doc.ID, Strategy: StrategyNative, Page: -1, Duration: time.Since(start)}
		if err == nil {
			attempt.Units = 1
			out.Attempts = append(out.Attempts, attempt)
			out.Pages = []PageOutcome{{Index: 0, Units: []RawUnit{unit}}}
			return out
		}
		nativeErr = newExtractionError(StrategyNative, -1, err)
		attempt.Kind, attempt.Message = KindOf(nativeErr), err.Error()
		out.Attempts = append(out.Attempts, attempt)
		slog.Debug("Native text not usable", "document", doc.ID, "error", err)
	}

	if len(p.raster) == 0 {
		if nativeErr != nil {
			out.Err = nativeErr
		} else {
			out.Err = fmt.Errorf("%s: %w", doc.ID, ErrNoStrategy)
		}
		return out
	}
	if err := ctx.Err(); err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrCancelled, err)
		return out
	}

	pages, err := p.renderer.Render(ctx, doc, data)
	if err != nil {
		out.Err = err
		return out
	}
	defer func() {
		if err := pages.Close(); err != nil {
			slog.Warn("Failed to release rendered pages", "document", doc.ID, "error", err)
		}
	}()

	out.Pages = make([]PageOutcome, len(pages.Units))
	attempts := make([][]Attempt, len(pages.Units))
	var g errgroup.Group
	for i, page := range pages.Units {
		g.Go(func() error {
			units, pageAttempts, err := p.extractPage(ctx, doc.ID, page)
			if rerr := page.Release(); rerr != nil {
				slog.Warn("Failed to release page", "document", doc.ID, "page", page.Index, "error", rerr)
			}
			out.Pages[i] = PageOutcome{Index: page.Index, Units: units, Err: err}
			attempts[i] = pageAttempts
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range attempts {
		out.Attempts = append(out.Attempts, a...)
	}
	return out
}

// extractPage walks the raster chain until a strategy yields a parsed result.
// An unparsed vision response is kept and used only if nothing later succeeds.
func (p *Pipeline) extractPage(ctx context.Context, documentID string, page PageUnit) ([]RawUnit, []Attempt, error) {
	var (
		attempts []Attempt
		fallback RawUnit
		lastErr  error
	)
	degraded := -1

	for _, s := range p.raster {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrCancelled, err)
			break
		}

		start := time.Now()
		unit, err := p.call(ctx, s, page)
		attempt := Attempt{DocumentID: documentID, Strategy: s.Name(), Page: page.Index, Duration: time.Since(start)}
		if err == nil {
			attempt.Units = len(Split(unit))
			attempts = append(attempts, attempt)
			return []RawUnit{unit}, attempts, nil
		}

		xerr := newExtractionError(s.Name(), page.Index, err)
		attempt.Kind, attempt.Message = xerr.Kind, err.Error()
		attempts = append(attempts, attempt)
		lastErr = xerr

		if unit.Kind == UnitUnparsed && degraded < 0 {
			degraded, fallback = len(attempts)-1, unit
		}

		slog.Warn("Extraction strategy failed",
			"document", documentID,
			"page", page.Index,
			"strategy", s.Name(),
			"kind", xerr.Kind,
			"error", err,
		)
		if !xerr.Kind.advances() {
			break
		}
	}

	if degraded >= 0 {
		attempts[degraded].Degraded = true
		attempts[degraded].Units = 1
		return []RawUnit{fallback}, attempts, nil
	}
	return nil, attempts, lastErr
}

// call runs one backend call. New calls stop once ctx is cancelled, but a call
// that already holds a slot runs to completion or its own timeout.
func (p *Pipeline) call(ctx context.Context, s pageStrategy, page PageUnit) (RawUnit, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return RawUnit{}, fmt.Errorf("waiting for a backend slot: %w: %w", ErrCancelled, err)
	}
	defer p.sem.Release(1)

	callCtx := context.WithoutCancel(ctx)
	if p.cfg.BackendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.cfg.BackendTimeout)
		defer cancel()
	}

	unit, err := s.Extract(callCtx, page)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, scanning.ErrTimeout) {
		err = fmt.Errorf("%w after %s: %w", scanning.ErrTimeout, p.cfg.BackendTimeout, err)
	}
	return unit, err
}
