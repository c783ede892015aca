package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatpdf/internal/model"
	"chatpdf/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	downloadURLTTL   = time.Hour
	pdfContentType   = "application/pdf"
)

var pdfMagic = []byte("%PDF-")

type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type JobPublisher interface {
	PublishIngest(ctx context.Context, job model.IngestJob) error
}

type DocumentServiceConfig struct {
	MaxFileSize int64
	UploadURL   string
}

type DocumentService struct {
	documents    *repository.DocumentRepository
	storage      ObjectStorage
	publisher    JobPublisher
	historyCache HistoryCache
	cfg          DocumentServiceConfig
	logger       *slog.Logger
}

func NewDocumentService(
	documents *repository.DocumentRepository,
	storage ObjectStorage,
	publisher JobPublisher,
	historyCache HistoryCache,
	cfg DocumentServiceConfig,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		documents:    documents,
		storage:      storage,
		publisher:    publisher,
		historyCache: historyCache,
		cfg:          cfg,
		logger:       logger,
	}
}

type InitUploadResult struct {
	DocumentID string `json:"pdf_id"`
	UploadURL  string `json:"upload_url"`
	StorageKey string `json:"storage_key"`
}

type DocumentList struct {
	Items []model.Document `json:"items"`
	Total int64            `json:"total"`
}

// InitUpload reserves a pending document that a resumable upload will fill.
func (s *DocumentService) InitUpload(ctx context.Context, filename string, size int64) (*InitUploadResult, error) {
	filename, err := s.validateUpload(filename, size)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	doc := &model.Document{
		ID:         id,
		Filename:   filename,
		StorageKey: model.StorageKeyFor(id),
		FileSize:   size,
		Status:     model.StatusPending,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, classify(err)
	}
	return &InitUploadResult{DocumentID: doc.ID, UploadURL: s.cfg.UploadURL, StorageKey: doc.StorageKey}, nil
}

// UploadDirect stores the bytes, records the document as uploaded and
// queues it for ingestion.
func (s *DocumentService) UploadDirect(ctx context.Context, filename string, data []byte) (*model.Document, error) {
	filename, err := s.validateUpload(filename, int64(len(data)))
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, invalidInput("file content is not a PDF")
	}

	id := uuid.NewString()
	doc := &model.Document{
		ID:         id,
		Filename:   filename,
		StorageKey: model.StorageKeyFor(id),
		FileSize:   int64(len(data)),
		Status:     model.StatusUploaded,
	}
	if err := s.storage.Put(ctx, doc.StorageKey, data, pdfContentType); err != nil {
		return nil, classify(err)
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.removeBlob(ctx, doc.ID, doc.StorageKey)
		return nil, classify(err)
	}
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CompleteUpload is called once the resumable upload server has stored the
// bytes. An empty storageKey keeps the key reserved at init.
func (s *DocumentService) CompleteUpload(ctx context.Context, documentID, storageKey string) (*model.Document, error) {
	documentID = strings.TrimSpace(documentID)
	storageKey = strings.TrimSpace(storageKey)
	if documentID == "" {
		return nil, invalidInput("pdf_id is required")
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, classify(err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if storageKey == "" {
		storageKey = doc.StorageKey
	}
	if storageKey == "" {
		return nil, invalidInput("storage_key is required")
	}

	if err := s.documents.MarkUploaded(ctx, doc.ID, storageKey); err != nil {
		return nil, classify(err)
	}
	doc.Status = model.StatusUploaded
	doc.StorageKey = storageKey
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("upload completed", "document_id", doc.ID, "storage_key", storageKey)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, skip, limit int) (*DocumentList, error) {
	if skip < 0 {
		return nil, invalidInput("skip must not be negative")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	items, total, err := s.documents.List(ctx, skip, limit)
	if err != nil {
		return nil, classify(err)
	}
	return &DocumentList{Items: items, Total: total}, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidInput("pdf_id is required")
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the document with its chunks and messages. The stored bytes
// are removed afterwards on a best-effort basis.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.documents.DeleteCascade(ctx, doc.ID)
	if err != nil {
		return classify(err)
	}
	if !deleted {
		return ErrDocumentNotFound
	}
	if s.historyCache != nil {
		_ = s.historyCache.Purge(ctx, doc.ID)
	}
	if doc.StorageKey != "" && doc.Status != model.StatusPending {
		s.removeBlob(ctx, doc.ID, doc.StorageKey)
	}
	s.logger.Info("document deleted", "document_id", doc.ID)
	return nil
}

// DownloadURL returns a time-limited link to the stored PDF.
func (s *DocumentService) DownloadURL(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.Status == model.StatusPending {
		return "", invalidInput("document %s has not been uploaded", doc.ID)
	}
	url, err := s.storage.PresignedGetURL(ctx, doc.StorageKey, downloadURLTTL)
	if err != nil {
		return "", classify(err)
	}
	return url, nil
}

func (s *DocumentService) validateUpload(filename string, size int64) (string, error) {
	filename = strings.TrimSpace(filepath.Base(filename))
	if filename == "" || filename == "." || filename == "/" {
		return "", invalidInput("filename is required")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", invalidInput("only PDF files are allowed")
	}
	if size <= 0 {
		return "", invalidInput("file is empty")
	}
	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return "", invalidInput("file exceeds the %d byte limit", s.cfg.MaxFileSize)
	}
	return filename, nil
}

func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	if s.publisher == nil {
		return ErrEnqueue
	}
	job := model.IngestJob{JobID: uuid.NewString(), DocumentID: doc.ID, StorageKey: doc.StorageKey}
	if err := s.publisher.PublishIngest(ctx, job); err != nil {
		s.logger.Error("publish ingest job failed", "document_id", doc.ID, "error", err)
		return ErrEnqueue
	}
	return nil
}

// removeBlob logs failures instead of returning them.
func (s *DocumentService) removeBlob(ctx context.Context, documentID, key string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("delete stored pdf failed", "document_id", documentID, "storage_key", key, "error", err)
	}
}
