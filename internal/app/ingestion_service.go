package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatpdf/internal/ai"
	"chatpdf/internal/model"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/rag"
	"chatpdf/internal/repository"
)

const (
	StepMarkProcessing  = "mark-processing"
	StepProcessAndStore = "process-and-store"
	StepMarkFailed      = "mark-failed"
)

// StepRunner executes the named steps of one job. Implementations may skip a
// step that already completed for the same job id.
type StepRunner interface {
	Run(ctx context.Context, jobID, step string, fn func(context.Context) error) error
	Reset(ctx context.Context, jobID string) error
}

type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]pdfextract.Page, error)
}

type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type IngestionService struct {
	documents *repository.DocumentRepository
	chunks    *repository.ChunkRepository
	blobs     BlobReader
	extractor PageExtractor
	splitter  *rag.Splitter
	embedder  ChunkEmbedder
	steps     StepRunner
	logger    *slog.Logger
}

func NewIngestionService(
	documents *repository.DocumentRepository,
	chunks *repository.ChunkRepository,
	blobs BlobReader,
	extractor PageExtractor,
	splitter *rag.Splitter,
	embedder ChunkEmbedder,
	steps StepRunner,
	logger *slog.Logger,
) *IngestionService {
	if steps == nil {
		steps = DirectSteps{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		documents: documents,
		chunks:    chunks,
		blobs:     blobs,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		steps:     steps,
		logger:    logger,
	}
}

// Process indexes the stored PDF of job.DocumentID. The outcome is returned
// alongside any error so the caller sees the state the document was left in.
// A failure inside the heavy step marks the document failed and is returned
// for the caller's retry policy.
func (s *IngestionService) Process(ctx context.Context, job model.IngestJob) (*model.IngestOutcome, error) {
	job.DocumentID = strings.TrimSpace(job.DocumentID)
	job.StorageKey = strings.TrimSpace(job.StorageKey)
	if job.DocumentID == "" || job.StorageKey == "" {
		return nil, invalidInput("ingest job needs document_id and storage_key")
	}
	if job.JobID == "" {
		job.JobID = job.DocumentID
	}
	log := s.logger.With("document_id", job.DocumentID, "job_id", job.JobID)

	doc, err := s.documents.GetByID(ctx, job.DocumentID)
	if err != nil {
		return nil, classify(err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	switch doc.Status {
	case model.StatusCompleted:
		log.Info("document already indexed, skipping")
		return s.outcome(ctx, doc)
	case model.StatusPending:
		return &model.IngestOutcome{DocumentID: doc.ID, Status: doc.Status},
			fmt.Errorf("%w: document %s has no uploaded bytes", ErrInvalidTransition, doc.ID)
	}

	err = s.steps.Run(ctx, job.JobID, StepMarkProcessing, func(ctx context.Context) error {
		return s.documents.MarkProcessing(ctx, job.DocumentID)
	})
	if err != nil {
		return &model.IngestOutcome{DocumentID: doc.ID, Status: doc.Status}, classify(err)
	}
	log.Info("ingestion step completed", "step", StepMarkProcessing)

	var (
		result storedResult
		ran    bool
	)
	err = s.steps.Run(ctx, job.JobID, StepProcessAndStore, func(ctx context.Context) error {
		ran = true
		r, err := s.processAndStore(ctx, job)
		result = r
		return err
	})
	if err != nil {
		return s.fail(ctx, log, job, err)
	}
	if !ran {
		doc, err := s.documents.GetByID(ctx, job.DocumentID)
		if err != nil {
			return nil, classify(err)
		}
		if doc == nil {
			return nil, ErrDocumentNotFound
		}
		return s.outcome(ctx, doc)
	}
	log.Info("ingestion step completed", "step", StepProcessAndStore, "total_pages", result.pages, "total_chunks", result.chunks)
	return &model.IngestOutcome{
		DocumentID:  job.DocumentID,
		Status:      model.StatusCompleted,
		TotalPages:  result.pages,
		TotalChunks: result.chunks,
	}, nil
}

type storedResult struct {
	pages  int
	chunks int
}

func (s *IngestionService) processAndStore(ctx context.Context, job model.IngestJob) (storedResult, error) {
	data, err := s.blobs.Get(ctx, job.StorageKey)
	if err != nil {
		return storedResult{}, fmt.Errorf("download pdf failed: %w", err)
	}

	extracted, err := s.extractor.ExtractPages(data)
	if err != nil {
		return storedResult{}, fmt.Errorf("extract pdf text failed: %w", err)
	}
	pages := make([]rag.Page, len(extracted))
	for i, p := range extracted {
		pages[i] = rag.Page{Number: p.Number, Text: p.Text}
	}

	inputs, err := s.splitter.Split(ctx, pages)
	if err != nil {
		return storedResult{}, fmt.Errorf("split pdf text failed: %w", err)
	}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Text
	}
	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return storedResult{}, fmt.Errorf("embed chunks failed: %w", err)
		}
	}
	if len(vectors) != len(inputs) {
		return storedResult{}, fmt.Errorf("embed chunks failed: got %d vectors for %d chunks", len(vectors), len(inputs))
	}

	rows := make([]model.Chunk, len(inputs))
	for i, in := range inputs {
		rows[i] = model.Chunk{
			DocumentID: job.DocumentID,
			ChunkIndex: in.Index,
			ChunkText:  in.Text,
			PageNumber: in.PageNumber,
			Embedding:  vectors[i],
		}
	}
	if err := s.documents.CompleteIngestion(ctx, job.DocumentID, len(extracted), rows); err != nil {
		return storedResult{}, fmt.Errorf("store chunks failed: %w", err)
	}
	return storedResult{pages: len(extracted), chunks: len(rows)}, nil
}

// fail records the error on the document and clears the step journal so a
// retry starts from the first step.
func (s *IngestionService) fail(ctx context.Context, log *slog.Logger, job model.IngestJob, cause error) (*model.IngestOutcome, error) {
	if errors.Is(cause, repository.ErrStatusConflict) {
		// another attempt moved the document on; leave its state alone
		log.Warn("document changed state during ingestion", "error", cause)
		if doc, err := s.documents.GetByID(ctx, job.DocumentID); err == nil && doc != nil {
			if out, err := s.outcome(ctx, doc); err == nil {
				return out, classify(cause)
			}
		}
		return nil, classify(cause)
	}

	message := cause.Error()
	log.Error("ingestion failed", "step", StepProcessAndStore, "error", cause)

	// the failure must be recorded even when the caller has given up
	writeCtx := context.WithoutCancel(ctx)
	err := s.steps.Run(writeCtx, job.JobID, StepMarkFailed, func(ctx context.Context) error {
		return s.documents.MarkFailed(ctx, job.DocumentID, message)
	})
	if err != nil {
		log.Error("mark document failed", "step", StepMarkFailed, "error", err)
	}
	if err := s.steps.Reset(writeCtx, job.JobID); err != nil {
		log.Warn("reset step journal failed", "error", err)
	}

	outcome := &model.IngestOutcome{DocumentID: job.DocumentID, Status: model.StatusFailed, ErrorMessage: message}
	switch {
	case errors.Is(cause, ai.ErrProvider), errors.Is(cause, ai.ErrDimensionMismatch):
		return outcome, classify(cause)
	default:
		return outcome, fmt.Errorf("ingest document %s failed: %w", job.DocumentID, cause)
	}
}

func (s *IngestionService) outcome(ctx context.Context, doc *model.Document) (*model.IngestOutcome, error) {
	n, err := s.chunks.CountByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, classify(err)
	}
	out := &model.IngestOutcome{DocumentID: doc.ID, Status: doc.Status, TotalChunks: int(n)}
	if doc.TotalPages != nil {
		out.TotalPages = *doc.TotalPages
	}
	if doc.ErrorMessage != nil {
		out.ErrorMessage = *doc.ErrorMessage
	}
	return out, nil
}

// DirectSteps runs every step as it comes, without a journal.
type DirectSteps struct{}

func (DirectSteps) Run(ctx context.Context, _ string, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func (DirectSteps) Reset(context.Context, string) error { return nil }
