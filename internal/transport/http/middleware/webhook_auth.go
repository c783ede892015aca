package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/pkg/jwtutil"
	"chatpdf/internal/transport/http/response"
)

// WebhookAuth requires a bearer token for the upload webhook subject. An
// empty secret leaves the route open.
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		if _, err := jwtutil.ParseToken(secret, token, jwtutil.SubjectUploadWebhook); err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}
