package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/transport/http/response"
)

// uploadHook is the post-finish hook body of the resumable upload server.
// The flat document_id/storage_key form is accepted for direct callers.
type uploadHook struct {
	Type  string `json:"Type"`
	Event struct {
		Upload struct {
			ID       string            `json:"ID"`
			MetaData map[string]string `json:"MetaData"`
			Storage  map[string]any    `json:"Storage"`
		} `json:"Upload"`
	} `json:"Event"`

	DocumentID string `json:"document_id"`
	StorageKey string `json:"storage_key"`
}

type WebhookHandler struct {
	documents DocumentService
}

func NewWebhookHandler(documents DocumentService) *WebhookHandler {
	return &WebhookHandler{documents: documents}
}

func (h *WebhookHandler) UploadComplete(c *gin.Context) {
	var hook uploadHook
	if err := c.ShouldBindJSON(&hook); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	documentID, storageKey, ok := hook.target()
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing pdf_id in upload metadata")
		return
	}

	doc, err := h.documents.CompleteUpload(c.Request.Context(), documentID, storageKey)
	if err != nil {
		writeError(c, err, "complete upload failed")
		return
	}
	response.OK(c, gin.H{"status": "ok", "pdf_id": doc.ID, "storage_key": doc.StorageKey, "message": "Upload completed"})
}

func (h uploadHook) target() (documentID, storageKey string, ok bool) {
	if h.DocumentID != "" {
		return h.DocumentID, h.StorageKey, true
	}

	upload := h.Event.Upload
	documentID = strings.TrimSpace(upload.MetaData["pdf_id"])
	if documentID == "" || upload.ID == "" {
		return "", "", false
	}
	if key, _ := upload.Storage["Key"].(string); key != "" {
		return documentID, key, true
	}
	// s3 store ids look like "<object>+<multipart id>"
	storageKey, _, _ = strings.Cut(upload.ID, "+")
	return documentID, storageKey, true
}
