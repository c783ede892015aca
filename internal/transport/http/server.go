package http

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chatpdf/internal/bootstrap"
	"chatpdf/internal/transport/http/handler"
	"chatpdf/internal/transport/http/middleware"
)

type Routes struct {
	Documents     *handler.DocumentHandler
	Webhook       *handler.WebhookHandler
	Chat          *handler.ChatHandler
	Health        *handler.HealthHandler
	WebhookSecret string
	CORSOrigins   []string
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	checks := make(map[string]handler.HealthCheck)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}

	return NewEngine(Routes{
		Documents:     handler.NewDocumentHandler(app.Documents, app.Config.Upload.MaxFileSize),
		Webhook:       handler.NewWebhookHandler(app.Documents),
		Chat:          handler.NewChatHandler(app.Chat),
		Health:        handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks),
		WebhookSecret: app.Config.Webhook.Secret,
		CORSOrigins:   app.Config.App.CORSOrigins,
	})
}

// NewEngine registers every route on a fresh gin engine.
func NewEngine(r Routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(r.CORSOrigins)))

	router.GET("/healthz", r.Health.Check)

	v1 := router.Group("/api/v1")
	v1.GET("/health", r.Health.Check)

	pdf := v1.Group("/pdf")
	pdf.POST("/init-upload", r.Documents.InitUpload)
	pdf.POST("/upload", r.Documents.Upload)
	pdf.POST("/upload-complete", middleware.WebhookAuth(r.WebhookSecret), r.Webhook.UploadComplete)
	pdf.GET("/list", r.Documents.List)
	pdf.GET("/:id", r.Documents.Get)
	pdf.GET("/:id/status", r.Documents.Get)
	pdf.GET("/:id/download", r.Documents.Download)
	pdf.DELETE("/:id", r.Documents.Delete)

	chat := v1.Group("/chat")
	chat.POST("/query", r.Chat.Query)
	chat.POST("/stream", r.Chat.Stream)
	chat.GET("/history/:pdf_id", r.Chat.GetHistory)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
