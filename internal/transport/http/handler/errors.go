package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/transport/http/response"
)

// writeError maps service errors onto the response envelope. fallback is
// shown for errors that should not leak their details.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
	case errors.Is(err, app.ErrProvider):
		response.Error(c, http.StatusBadGateway, response.CodeProvider, "language model provider failed")
	case errors.Is(err, app.ErrEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
