package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// IDGenerator generates unique IDs for batches
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs batches of documents through the pipeline and keeps their results
type Service struct {
	cfg         Config
	pipeline    *Pipeline
	db          DB
	counter     PageCounter
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// db may be nil, in which case batches are not persisted.
func NewService(cfg Config, pipeline *Pipeline, db DB, counter PageCounter) *Service {
	return NewServiceWithDeps(cfg, pipeline, db, counter, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(cfg Config, pipeline *Pipeline, db DB, counter PageCounter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		cfg:         cfg,
		pipeline:    pipeline,
		db:          db,
		counter:     counter,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessDirectory discovers the documents under dir and runs them as one batch
func (s *Service) ProcessDirectory(ctx context.Context, dir string) (*BatchResult, error) {
	docs, err := Discover(dir, s.counter)
	if err != nil {
		return nil, err
	}
	return s.RunBatch(ctx, docs)
}

// ProcessUploads runs uploaded files as one batch, in upload order
func (s *Service) ProcessUploads(ctx context.Context, uploads []Upload) (*BatchResult, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	docs, err := UploadDocuments(uploads, s.counter)
	if err != nil {
		return nil, err
	}
	return s.RunBatch(ctx, docs)
}

// RunBatch processes docs with bounded parallelism. Cancelling ctx stops new
// documents; those are reported as cancelled failures and the partial result
// is returned. Only a duplicate provenance aborts the batch with an error.
func (s *Service) RunBatch(ctx context.Context, docs []SourceDocument) (*BatchResult, error) {
	id := s.idGenerator.Generate()
	agg := NewAggregator(id, s.timeSource.Now(), docs)

	slog.Info("Starting batch",
		"batch_id", id,
		"documents", len(docs),
		"strategies", s.pipeline.Strategies(),
	)

	limit := s.cfg.DocumentConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, doc := range docs {
		if err := gctx.Err(); err != nil {
			agg.Fail(doc.ID, fmt.Errorf("%w: %w", ErrCancelled, err))
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				agg.Fail(doc.ID, fmt.Errorf("%w: %w", ErrCancelled, err))
				return nil
			}
			return s.processDocument(gctx, agg, doc)
		})
	}
	waitErr := g.Wait()

	result := agg.Result(s.timeSource.Now())
	result.Cancelled = ctx.Err() != nil

	if waitErr != nil {
		slog.Error("Batch aborted", "batch_id", id, "error", waitErr)
		return result, fmt.Errorf("batch %s aborted: %w", id, waitErr)
	}

	slog.Info("Batch finished",
		"batch_id", id,
		"records", len(result.Records),
		"failures", len(result.Failures),
		"page_failures", len(result.PageFailures),
		"cancelled", result.Cancelled,
		"elapsed_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	)

	if s.db != nil {
		if err := s.db.SaveBatch(result); err != nil {
			return result, fmt.Errorf("saving batch: %w", err)
		}
	}
	return result, nil
}

func (s *Service) processDocument(ctx context.Context, agg *Aggregator, doc SourceDocument) error {
	outcome := s.pipeline.Process(ctx, doc)
	agg.Attempt(outcome.Attempts...)

	if outcome.Err != nil {
		slog.Error("Failed to process document",
			"document", doc.ID,
			"kind", KindOf(outcome.Err),
			"error", outcome.Err,
		)
		agg.Fail(doc.ID, outcome.Err)
		return nil
	}

	produced := 0
	for _, page := range outcome.Pages {
		receipt := 0
		for _, unit := range page.Units {
			for _, raw := range Split(unit) {
				if err := agg.Record(Normalize(raw), doc.ID, page.Index, receipt); err != nil {
					return err
				}
				receipt++
			}
		}
		produced += receipt
	}

	if produced == 0 {
		err := pageErrors(outcome)
		slog.Error("Document produced no records", "document", doc.ID, "kind", KindOf(err), "error", err)
		agg.Fail(doc.ID, err)
		return nil
	}
	for _, page := range outcome.Pages {
		if page.Err != nil {
			agg.PageFailed(doc.ID, page.Index, page.Err)
		}
	}
	slog.Info("Processed document", "document", doc.ID, "pages", len(outcome.Pages), "records", produced)
	return nil
}

func pageErrors(outcome DocumentOutcome) error {
	var errs []error
	for _, p := range outcome.Pages {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	if len(errs) == 0 {
		return fmt.Errorf("no receipts found: %w", scanning.ErrEmptyResult)
	}
	return errors.Join(errs...)
}

// GetBatch retrieves a stored batch by ID
func (s *Service) GetBatch(id string) (*BatchResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("no batch store configured")
	}
	batch, err := s.db.GetBatch(id)
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns summaries of stored batches, newest first
func (s *Service) ListBatches() ([]*BatchSummary, error) {
	if s.db == nil {
		return []*BatchSummary{}, nil
	}
	batches, err := s.db.ListBatches()
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a stored batch
func (s *Service) DeleteBatch(id string) error {
	if s.db == nil {
		return fmt.Errorf("no batch store configured")
	}
	if err := s.db.DeleteBatch(id); err != nil {
		return fmt.Errorf("deleting batch: %w", err)
	}
	return nil
}

// ExportBatch writes a stored batch as an XLSX workbook
func (s *Service) ExportBatch(id string, w io.Writer) error {
	batch, err := s.GetBatch(id)
	if err != nil {
		return err
	}
	return WriteXLSX(w, batch)
}
