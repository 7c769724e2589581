package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

var _ = Describe("Pipeline", func() {
	var (
		cfg       Config
		textLayer *mockTextLayer
		ocr       *mockRecognizer
		vision    *mockDescriber
		renderer  *mockRenderer
		backends  Backends
		pdf       SourceDocument
		photo     SourceDocument
	)

	longText := strings.Repeat("Invoice line with enough text. ", 4)

	BeforeEach(func() {
		cfg = DefaultConfig()
		cfg.BackendTimeout = time.Second
		textLayer = &mockTextLayer{pages: []string{longText}}
		ocr = &mockRecognizer{recognize: func(ctx context.Context, data []byte) (string, error) {
			return "Shop\nTotal 1.00", nil
		}}
		vision = &mockDescriber{describe: sellerEcho}
		renderer = &mockRenderer{pages: 2}
		backends = Backends{TextLayer: textLayer, OCR: ocr, Vision: vision}
		pdf = SourceDocument{ID: "a.pdf", MediaType: "application/pdf", PageCount: 2, data: []byte("%PDF-1.4")}
		photo = SourceDocument{ID: "b.jpg", MediaType: "image/jpeg", PageCount: 1, data: []byte("jpeg")}
	})

	Describe("NewPipeline", func() {
		It("keeps the configured order", func() {
			Expect(NewPipeline(cfg, backends, renderer).Strategies()).To(Equal([]Strategy{StrategyVision, StrategyOCR}))
			cfg.RasterOrder = []Strategy{StrategyOCR, StrategyVision}
			Expect(NewPipeline(cfg, backends, renderer).Strategies()).To(Equal([]Strategy{StrategyOCR, StrategyVision}))
		})

		It("drops strategies without a backend", func() {
			backends.Vision = nil
			Expect(NewPipeline(cfg, backends, renderer).Strategies()).To(Equal([]Strategy{StrategyOCR}))
		})
	})

	Describe("native text", func() {
		It("uses a long enough text layer without rendering", func() {
			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(out.Err).NotTo(HaveOccurred())
			Expect(out.Pages).To(HaveLen(1))
			Expect(out.Pages[0].Units).To(Equal([]RawUnit{TextUnit(longText)}))
			Expect(out.Attempts).To(HaveLen(1))
			Expect(out.Attempts[0].Strategy).To(Equal(StrategyNative))
			Expect(out.Attempts[0].OK()).To(BeTrue())
			Expect(renderer.calls.Load()).To(BeZero())
			Expect(vision.calls.Load()).To(BeZero())
		})

		It("falls through to rasterization when the text is too short", func() {
			textLayer.pages = []string{"Total 5"}

			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(out.Err).NotTo(HaveOccurred())
			Expect(renderer.calls.Load()).To(Equal(int32(1)))
			Expect(out.Pages).To(HaveLen(2))
			Expect(out.Attempts[0].Strategy).To(Equal(StrategyNative))
			Expect(out.Attempts[0].Kind).To(Equal(KindEmptyResult))
		})

		It("logs a malformed pdf's text layer as an empty result", func() {
			backends.TextLayer = scanning.NewPDFText()

			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(out.Err).NotTo(HaveOccurred())
			Expect(out.Attempts[0].Strategy).To(Equal(StrategyNative))
			Expect(out.Attempts[0].Kind).To(Equal(KindEmptyResult))
			Expect(renderer.calls.Load()).To(Equal(int32(1)))
		})

		It("reads only the first page when configured to", func() {
			textLayer.pages = []string{longText, "second page"}
			cfg.NativePages = NativePagesFirst

			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(out.Pages[0].Units[0].Text).To(Equal(longText))
		})

		It("joins every page with a form feed by default", func() {
			textLayer.pages = []string{longText, "second page"}

			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(out.Pages[0].Units[0].Text).To(Equal(longText + "\f" + "second page"))
		})

		It("is not attempted for images", func() {
			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), photo)

			Expect(out.Err).NotTo(HaveOccurred())
			Expect(textLayer.calls.Load()).To(BeZero())
			Expect(out.Pages).To(HaveLen(1))
		})

		It("is skipped when disabled", func() {
			cfg.NativeText = false

			NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

			Expect(textLayer.calls.Load()).To(BeZero())
			Expect(renderer.calls.Load()).To(Equal(int32(1)))
		})
	})

	Describe("corrupt images", func() {
		BeforeEach(func() {
			cfg.RasterOrder = []Strategy{StrategyOCR, StrategyVision}
			photo.data = []byte("not a jpeg at all")
		})

		It("fails the document with a render error before any backend call", func() {
			cfg.ScratchDir = GinkgoT().TempDir()

			out := NewPipeline(cfg, backends, NewFitzRenderer(cfg)).Process(context.Background(), photo)

			Expect(out.Err).To(MatchError(ErrRender))
			Expect(KindOf(out.Err)).To(Equal(KindRender))
			Expect(ocr.calls.Load()).To(BeZero())
			Expect(vision.calls.Load()).To(BeZero())
		})

		It("reports a backend decode failure as a render error and stops the chain", func() {
			ocr.recognize = func(ctx context.Context, data []byte) (string, error) {
				return "", fmt.Errorf("converting image to PNG: %w", scanning.ErrUndecodable)
			}

			out := NewPipeline(cfg, backends, renderer).Process(context.Background(), photo)

			Expect(out.Pages).To(HaveLen(1))
			Expect(KindOf(out.Pages[0].Err)).To(Equal(KindRender))
			Expect(out.Attempts).To(HaveLen(1))
			Expect(out.Attempts[0].Kind).To(Equal(KindRender))
			Expect(vision.calls.Load()).To(BeZero())
		})
	})

	Describe("raster chain", func() {
		It("returns pages in order", func() {
			renderer.pages = 3

			out := NewPipeline(cfg, Backends{Vision: vision}, renderer).Process(context.Background(), pdf)

			Expect(out.Pages).To(HaveLen(3))
			for i, page := range out.Pages {
				Expect(page.Index).To(Equal(i))
				Expect(page.Err).NotTo(HaveOccurred())
				Expect(Normalize(page.Units[0]).SellerName.Value).To(Equal([]string{"page-0", "page-1", "page-2"}[i]))
			}
		})

		It("stops on errors that do not advance the chain", func() {
			vision.describe = func(ctx context.Context, data []byte) (string, error) {
				return "", errors.New("boom")
			}

			out := NewPipeline(cfg, Backends{Vision: vision, OCR: ocr}, renderer).Process(context.Background(), photo)

			Expect(out.Pages[0].Err).To(HaveOccurred())
			Expect(KindOf(out.Pages[0].Err)).To(Equal(KindInternal))
			Expect(ocr.calls.Load()).To(BeZero())
		})

		It("times out slow backends and moves on", func() {
			cfg.BackendTimeout = 20 * time.Millisecond
			vision.describe = func(ctx context.Context, data []byte) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}

			out := NewPipeline(cfg, Backends{Vision: vision, OCR: ocr}, renderer).Process(context.Background(), photo)

			Expect(out.Pages[0].Err).NotTo(HaveOccurred())
			Expect(out.Pages[0].Units).To(Equal([]RawUnit{TextUnit("Shop\nTotal 1.00")}))
			Expect(out.Attempts).To(HaveLen(2))
			Expect(out.Attempts[0].Kind).To(Equal(KindTimeout))
			Expect(out.Attempts[1].OK()).To(BeTrue())
		})

		It("treats an empty receipt list as an empty result", func() {
			vision.describe = func(ctx context.Context, data []byte) (string, error) {
				return "[]", nil
			}

			out := NewPipeline(cfg, Backends{Vision: vision, OCR: ocr}, renderer).Process(context.Background(), photo)

			Expect(out.Attempts[0].Kind).To(Equal(KindEmptyResult))
			Expect(ocr.calls.Load()).To(Equal(int32(1)))
		})

		It("treats blank OCR output as an empty result", func() {
			ocr.recognize = func(ctx context.Context, data []byte) (string, error) {
				return " \n ", nil
			}

			out := NewPipeline(cfg, Backends{OCR: ocr}, renderer).Process(context.Background(), photo)

			Expect(errors.Is(out.Pages[0].Err, scanning.ErrEmptyResult)).To(BeTrue())
			Expect(KindOf(out.Pages[0].Err)).To(Equal(KindEmptyResult))
		})
	})

	Describe("without a usable strategy", func() {
		It("returns ErrNoStrategy", func() {
			cfg.NativeText = false

			out := NewPipeline(cfg, Backends{}, renderer).Process(context.Background(), photo)

			Expect(out.Err).To(MatchError(ErrNoStrategy))
			Expect(renderer.calls.Load()).To(BeZero())
		})

		It("returns the native error when native text was tried", func() {
			textLayer.pages = []string{"short"}

			out := NewPipeline(cfg, Backends{TextLayer: textLayer}, renderer).Process(context.Background(), pdf)

			Expect(KindOf(out.Err)).To(Equal(KindEmptyResult))
			Expect(renderer.calls.Load()).To(BeZero())
		})
	})

	It("does not render once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out := NewPipeline(cfg, backends, renderer).Process(ctx, photo)

		Expect(out.Err).To(MatchError(ErrCancelled))
		Expect(renderer.calls.Load()).To(BeZero())
	})

	It("reports render failures", func() {
		renderer.err = ErrRender
		textLayer.pages = nil

		out := NewPipeline(cfg, backends, renderer).Process(context.Background(), pdf)

		Expect(KindOf(out.Err)).To(Equal(KindRender))
	})
})
