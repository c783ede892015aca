package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/model"
	"chatpdf/internal/transport/http/response"
)

type DocumentService interface {
	InitUpload(ctx context.Context, filename string, size int64) (*app.InitUploadResult, error)
	UploadDirect(ctx context.Context, filename string, data []byte) (*model.Document, error)
	CompleteUpload(ctx context.Context, documentID, storageKey string) (*model.Document, error)
	List(ctx context.Context, skip, limit int) (*app.DocumentList, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	DownloadURL(ctx context.Context, id string) (string, error)
}

type DocumentHandler struct {
	documents   DocumentService
	maxFileSize int64
}

type InitUploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	FileSize int64  `json:"file_size" binding:"required"`
}

type StatusResponse struct {
	DocumentID   string               `json:"pdf_id"`
	Filename     string               `json:"filename"`
	Status       model.DocumentStatus `json:"status"`
	FileSize     int64                `json:"file_size"`
	TotalPages   *int                 `json:"total_pages"`
	ErrorMessage *string              `json:"error_message"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func NewDocumentHandler(documents DocumentService, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxFileSize: maxFileSize}
}

func (h *DocumentHandler) InitUpload(c *gin.Context) {
	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.documents.InitUpload(c.Request.Context(), req.Filename, req.FileSize)
	if err != nil {
		writeError(c, err, "init upload failed")
		return
	}
	response.OK(c, result)
}

// Upload accepts a multipart form with the PDF in "file".
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxFileSize > 0 && file.Size > h.maxFileSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds the "+strconv.FormatInt(h.maxFileSize, 10)+" byte limit")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc, err := h.documents.UploadDirect(c.Request.Context(), file.Filename, data)
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}
	response.OK(c, toStatus(doc))
}

func (h *DocumentHandler) List(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid skip")
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
		return
	}

	list, err := h.documents.List(c.Request.Context(), skip, limit)
	if err != nil {
		writeError(c, err, "list documents failed")
		return
	}
	items := make([]StatusResponse, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, toStatus(&list.Items[i]))
	}
	response.OK(c, gin.H{"pdfs": items, "total": list.Total})
}

// Get also serves the status route; both report the same fields.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "get document failed")
		return
	}
	response.OK(c, toStatus(doc))
}

func (h *DocumentHandler) Download(c *gin.Context) {
	url, err := h.documents.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "create download url failed")
		return
	}
	response.OK(c, gin.H{"pdf_id": c.Param("id"), "url": url})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"pdf_id": id, "message": "PDF and all related data deleted successfully"})
}

func toStatus(doc *model.Document) StatusResponse {
	return StatusResponse{
		DocumentID:   doc.ID,
		Filename:     doc.Filename,
		Status:       doc.Status,
		FileSize:     doc.FileSize,
		TotalPages:   doc.TotalPages,
		ErrorMessage: doc.ErrorMessage,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
