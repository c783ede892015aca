package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/app"
	"chatpdf/internal/model"
)

type fakeDocuments struct {
	docs      map[string]*model.Document
	err       error
	completed [][2]string
	uploaded  []string
}

func newFakeDocuments() *fakeDocuments {
	pages := 3
	return &fakeDocuments{docs: map[string]*model.Document{
		"doc-1": {
			ID: "doc-1", Filename: "paper.pdf", StorageKey: "pdfs/doc-1.pdf", FileSize: 2048,
			TotalPages: &pages, Status: model.StatusCompleted,
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), UpdatedAt: time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC),
		},
	}}
}

func (f *fakeDocuments) InitUpload(_ context.Context, filename string, size int64) (*app.InitUploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &app.InitUploadResult{DocumentID: "doc-new", UploadURL: "http://tusd/files/", StorageKey: "pdfs/doc-new.pdf"}, nil
}

func (f *fakeDocuments) UploadDirect(_ context.Context, filename string, data []byte) (*model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, filename+":"+string(data))
	return &model.Document{ID: "doc-up", Filename: filename, FileSize: int64(len(data)), Status: model.StatusUploaded}, nil
}

func (f *fakeDocuments) CompleteUpload(_ context.Context, documentID, storageKey string) (*model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.completed = append(f.completed, [2]string{documentID, storageKey})
	return &model.Document{ID: documentID, StorageKey: storageKey, Status: model.StatusUploaded}, nil
}

func (f *fakeDocuments) List(_ context.Context, skip, limit int) (*app.DocumentList, error) {
	if f.err != nil {
		return nil, f.err
	}
	items := make([]model.Document, 0, len(f.docs))
	for _, d := range f.docs {
		items = append(items, *d)
	}
	return &app.DocumentList{Items: items, Total: int64(len(items))}, nil
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, app.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return app.ErrDocumentNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocuments) DownloadURL(_ context.Context, id string) (string, error) {
	if _, ok := f.docs[id]; !ok {
		return "", app.ErrDocumentNotFound
	}
	return "https://storage.test/" + id, nil
}

// fakeChat streams fragments. With err set, failAfter < 0 rejects the request
// up front and failAfter >= 0 fails before that fragment, after the question
// counts as recorded.
type fakeChat struct {
	fragments []string
	failAfter int
	err       error
	last      app.QueryInput
	history   *app.HistoryPage
	limit     int
	offset    int
}

func (f *fakeChat) Ask(_ context.Context, input app.QueryInput) (*app.QueryResult, error) {
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return &app.QueryResult{Response: strings.Join(f.fragments, ""), MessageID: 7}, nil
}

func (f *fakeChat) StreamAsk(_ context.Context, input app.QueryInput, onChunk func(string) error) (*app.QueryResult, error) {
	f.last = input
	if f.err != nil && f.failAfter < 0 {
		return nil, f.err
	}
	if f.err != nil && f.failAfter >= len(f.fragments) {
		return nil, &app.AnswerFailedError{Err: f.err}
	}
	for i, fragment := range f.fragments {
		if f.err != nil && i == f.failAfter {
			return nil, &app.AnswerFailedError{Err: f.err}
		}
		if err := onChunk(fragment); err != nil {
			return nil, err
		}
	}
	return &app.QueryResult{Response: strings.Join(f.fragments, ""), MessageID: 7}, nil
}

func (f *fakeChat) GetHistory(_ context.Context, documentID string, limit, offset int) (*app.HistoryPage, error) {
	f.limit, f.offset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	if f.history != nil {
		return f.history, nil
	}
	return &app.HistoryPage{DocumentID: documentID, Messages: []model.ChatMessage{}}, nil
}

func newTestRouter(documents DocumentService, chat ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d := NewDocumentHandler(documents, 1024)
	w := NewWebhookHandler(documents)
	c := NewChatHandler(chat)
	r.POST("/pdf/init-upload", d.InitUpload)
	r.POST("/pdf/upload", d.Upload)
	r.POST("/pdf/upload-complete", w.UploadComplete)
	r.GET("/pdf/list", d.List)
	r.GET("/pdf/:id", d.Get)
	r.GET("/pdf/:id/download", d.Download)
	r.DELETE("/pdf/:id", d.Delete)
	r.POST("/chat/query", c.Query)
	r.POST("/chat/stream", c.Stream)
	r.GET("/chat/history/:pdf_id", c.GetHistory)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return env
}
