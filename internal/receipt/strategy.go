package receipt

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// pageStrategy extracts a raw unit from one page image
type pageStrategy interface {
	Name() Strategy
	Extract(ctx context.Context, page PageUnit) (RawUnit, error)
}

// ocrStrategy returns recognized lines as a single text unit. OCR output is
// never split into several receipts.
type ocrStrategy struct {
	recognizer scanning.Recognizer
}

func (s ocrStrategy) Name() Strategy { return StrategyOCR }

func (s ocrStrategy) Extract(ctx context.Context, page PageUnit) (RawUnit, error) {
	data, err := page.Bytes()
	if err != nil {
		return RawUnit{}, err
	}
	text, err := s.recognizer.Recognize(ctx, data, page.ContentType)
	if err != nil {
		return RawUnit{}, err
	}
	if strings.TrimSpace(text) == "" {
		return RawUnit{}, fmt.Errorf("recognizer returned no text: %w", scanning.ErrEmptyResult)
	}
	return TextUnit(text), nil
}

// visionStrategy asks a vision model for structured JSON
type visionStrategy struct {
	describer scanning.Describer
	prompt    string
}

func (s visionStrategy) Name() Strategy { return StrategyVision }

// Extract returns a Record or RecordList unit. A response that does not parse
// comes back as an Unparsed unit together with the error.
func (s visionStrategy) Extract(ctx context.Context, page PageUnit) (RawUnit, error) {
	data, err := page.Bytes()
	if err != nil {
		return RawUnit{}, err
	}
	resp, err := s.describer.Describe(ctx, data, page.ContentType, s.prompt)
	if err != nil {
		return RawUnit{}, err
	}
	if strings.TrimSpace(resp) == "" {
		return RawUnit{}, fmt.Errorf("describer returned no text: %w", scanning.ErrEmptyResult)
	}
	unit, err := parseVisionResponse(resp)
	if err != nil {
		return unit, err
	}
	if unit.Kind == UnitRecordList && len(unit.Records) == 0 {
		return RawUnit{}, fmt.Errorf("no receipts found on page: %w", scanning.ErrEmptyResult)
	}
	return unit, nil
}

// nativeTextStrategy reads a PDF's embedded text layer
type nativeTextStrategy struct {
	reader   scanning.TextLayerReader
	pages    string
	minChars int
}

// Extract returns one text unit when the text layer is long enough to trust
func (s nativeTextStrategy) Extract(ctx context.Context, data []byte) (RawUnit, error) {
	pages, err := s.reader.TextLayer(ctx, data)
	if err != nil {
		return RawUnit{}, err
	}
	if len(pages) == 0 {
		return RawUnit{}, fmt.Errorf("document has no text layer: %w", scanning.ErrEmptyResult)
	}
	if s.pages == NativePagesFirst {
		pages = pages[:1]
	}
	text := strings.Join(pages, "\f")
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n <= s.minChars {
		return RawUnit{}, fmt.Errorf("text layer has %d characters, need more than %d: %w", n, s.minChars, scanning.ErrEmptyResult)
	}
	return TextUnit(text), nil
}
