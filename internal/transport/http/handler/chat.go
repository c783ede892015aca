package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/rag"
	"chatpdf/internal/transport/http/response"
)

type ChatService interface {
	Ask(ctx context.Context, input app.QueryInput) (*app.QueryResult, error)
	StreamAsk(ctx context.Context, input app.QueryInput, onChunk func(string) error) (*app.QueryResult, error)
	GetHistory(ctx context.Context, documentID string, limit, offset int) (*app.HistoryPage, error)
}

type ChatHandler struct {
	chatService ChatService
}

// QueryRequest omits chat_history (or sends null) to use the stored
// conversation; an explicit array, even empty, replaces it.
type QueryRequest struct {
	DocumentID          string            `json:"pdf_id" binding:"required"`
	Message             string            `json:"message" binding:"required"`
	ChatHistory         []rag.HistoryTurn `json:"chat_history"`
	TopK                int               `json:"top_k"`
	SimilarityThreshold *float64          `json:"similarity_threshold"`
}

func (r QueryRequest) input() app.QueryInput {
	return app.QueryInput{
		DocumentID: r.DocumentID,
		Message:    r.Message,
		History:    r.ChatHistory,
		TopK:       r.TopK,
		Floor:      r.SimilarityThreshold,
	}
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err, "chat query failed")
		return
	}
	response.OK(c, result)
}

// Stream answers over server-sent events. Requests rejected before the
// question is recorded get the normal JSON envelope; once it is recorded any
// failure ends the stream with an error event.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	send := func(payload any) error {
		start()
		if err := writeEvent(c, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := h.chatService.StreamAsk(c.Request.Context(), req.input(), func(chunk string) error {
		return send(gin.H{"chunk": chunk})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		var failed *app.AnswerFailedError
		if !started && !errors.As(err, &failed) {
			writeError(c, err, "chat stream failed")
			return
		}
		_ = send(gin.H{"error": streamErrorMessage(err)})
		return
	}

	_ = send(gin.H{"done": true, "message_id": result.MessageID, "retrieved_chunks": result.RetrievedChunks})
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", app.DefaultHistoryLimit)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid offset")
		return
	}

	page, err := h.chatService.GetHistory(c.Request.Context(), c.Param("pdf_id"), limit, offset)
	if err != nil {
		writeError(c, err, "get history failed")
		return
	}
	response.OK(c, page)
}

func writeEvent(c *gin.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	_, err = c.Writer.Write(buf)
	return err
}

func streamErrorMessage(err error) string {
	if errors.Is(err, app.ErrProvider) {
		return "language model provider failed"
	}
	return "chat stream failed"
}
