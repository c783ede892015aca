package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatpdf/internal/ai"
	"chatpdf/internal/model"
	"chatpdf/internal/rag"
	"chatpdf/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type ChunkRetriever interface {
	Search(ctx context.Context, documentID, query string, opts rag.SearchOptions) ([]rag.RetrievedChunk, error)
}

type ResponseGenerator interface {
	Generate(ctx context.Context, messages []ai.ChatMessage) (string, error)
	Stream(ctx context.Context, messages []ai.ChatMessage) (<-chan ai.StreamEvent, error)
}

// HistoryCache holds the first history page of each document. Load misses
// and Store declines while a write is in flight for that document.
type HistoryCache interface {
	Load(ctx context.Context, documentID string) ([]model.ChatMessage, bool, error)
	Store(ctx context.Context, documentID string, messages []model.ChatMessage) (bool, error)
	Invalidate(ctx context.Context, documentID string) error
	Purge(ctx context.Context, documentID string) error
}

type ChatService struct {
	documents    *repository.DocumentRepository
	messages     *repository.ChatMessageRepository
	retriever    ChunkRetriever
	generator    ResponseGenerator
	prompt       rag.PromptBuilder
	historyCache HistoryCache
	logger       *slog.Logger
}

func NewChatService(
	documents *repository.DocumentRepository,
	messages *repository.ChatMessageRepository,
	retriever ChunkRetriever,
	generator ResponseGenerator,
	prompt rag.PromptBuilder,
	historyCache HistoryCache,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		documents:    documents,
		messages:     messages,
		retriever:    retriever,
		generator:    generator,
		prompt:       prompt,
		historyCache: historyCache,
		logger:       logger,
	}
}

// QueryInput is one question about a document. A nil History loads the most
// recent stored messages; a non-nil one, even empty, is used as given.
type QueryInput struct {
	DocumentID string
	Message    string
	History    []rag.HistoryTurn
	TopK       int
	Floor      *float64
}

type QueryResult struct {
	Response        string               `json:"response"`
	MessageID       uint                 `json:"message_id"`
	RetrievedChunks []rag.RetrievedChunk `json:"retrieved_chunks"`
}

type HistoryPage struct {
	DocumentID string              `json:"pdf_id"`
	Messages   []model.ChatMessage `json:"messages"`
	Total      int                 `json:"total"`
}

type preparedQuery struct {
	input    QueryInput
	chunks   []rag.RetrievedChunk
	messages []ai.ChatMessage
}

// Ask retrieves context, generates a full answer and then records the
// question and the answer with the chunks that were shown to the model.
func (s *ChatService) Ask(ctx context.Context, input QueryInput) (*QueryResult, error) {
	q, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, q.messages)
	if err != nil {
		return nil, classify(err)
	}

	s.invalidateHistory(ctx, q.input.DocumentID)
	if err := s.saveQuestion(ctx, q.input.DocumentID, q.input.Message); err != nil {
		return nil, err
	}
	assistant, err := s.saveAssistant(ctx, q, answer)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Response: answer, MessageID: assistant.ID, RetrievedChunks: q.chunks}, nil
}

// StreamAsk records the question before generation starts and forwards each
// fragment to onChunk. The answer is stored only when the provider finished
// the stream. When generation fails or ctx is cancelled first, the question
// stays recorded without an answer and the error is an *AnswerFailedError.
func (s *ChatService) StreamAsk(ctx context.Context, input QueryInput, onChunk func(string) error) (*QueryResult, error) {
	q, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	s.invalidateHistory(ctx, q.input.DocumentID)
	if err := s.saveQuestion(ctx, q.input.DocumentID, q.input.Message); err != nil {
		return nil, err
	}

	result, err := s.streamAnswer(ctx, q, onChunk)
	if err != nil {
		return nil, &AnswerFailedError{Err: err}
	}
	return result, nil
}

func (s *ChatService) streamAnswer(ctx context.Context, q *preparedQuery, onChunk func(string) error) (*QueryResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := s.generator.Stream(streamCtx, q.messages)
	if err != nil {
		return nil, classify(err)
	}

	var full strings.Builder
	for ev := range events {
		switch ev.Type {
		case ai.StreamToken:
			full.WriteString(ev.Content)
			if err := onChunk(ev.Content); err != nil {
				return nil, fmt.Errorf("deliver stream chunk failed: %w", err)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		case ai.StreamDone:
			// completion was reached, so the answer is kept even if the caller is gone
			assistant, err := s.saveAssistant(context.WithoutCancel(ctx), q, full.String())
			if err != nil {
				return nil, err
			}
			return &QueryResult{Response: full.String(), MessageID: assistant.ID, RetrievedChunks: q.chunks}, nil
		case ai.StreamError:
			s.logger.Warn("generation stream failed", "document_id", q.input.DocumentID, "error", ev.Err)
			return nil, classify(ev.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: generation stream ended without completion", ErrProvider)
}

// GetHistory returns up to limit messages in chronological order, ending
// offset messages before the newest. Unknown documents have no history.
func (s *ChatService) GetHistory(ctx context.Context, documentID string, limit, offset int) (*HistoryPage, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, invalidInput("pdf_id is required")
	}
	if offset < 0 {
		return nil, invalidInput("offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	if offset > 0 {
		messages, err := s.messages.ListPage(ctx, documentID, offset, limit)
		if err != nil {
			return nil, classify(err)
		}
		return &HistoryPage{DocumentID: documentID, Messages: messages, Total: len(messages)}, nil
	}

	if s.historyCache != nil {
		if cached, hit, err := s.historyCache.Load(ctx, documentID); err == nil && hit {
			messages := trimMessages(cached, limit)
			return &HistoryPage{DocumentID: documentID, Messages: messages, Total: len(messages)}, nil
		}
	}

	// the cache holds the widest page so any limit can be served from it
	messages, err := s.messages.ListRecent(ctx, documentID, MaxHistoryLimit)
	if err != nil {
		return nil, classify(err)
	}
	if s.historyCache != nil {
		_, _ = s.historyCache.Store(ctx, documentID, messages)
	}
	messages = trimMessages(messages, limit)
	return &HistoryPage{DocumentID: documentID, Messages: messages, Total: len(messages)}, nil
}

func (s *ChatService) prepare(ctx context.Context, input QueryInput) (*preparedQuery, error) {
	input.DocumentID = strings.TrimSpace(input.DocumentID)
	input.Message = strings.TrimSpace(input.Message)
	if input.DocumentID == "" {
		return nil, invalidInput("pdf_id is required")
	}
	if input.Message == "" {
		return nil, invalidInput("message is empty")
	}

	doc, err := s.documents.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, classify(err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	history := input.History
	if history == nil {
		history, err = s.recentHistory(ctx, input.DocumentID)
		if err != nil {
			return nil, err
		}
	}

	chunks, err := s.retriever.Search(ctx, input.DocumentID, input.Message, rag.SearchOptions{TopK: input.TopK, Floor: input.Floor})
	if err != nil {
		return nil, classify(err)
	}
	s.logger.Info("retrieved chunks for query", "document_id", input.DocumentID, "count", len(chunks))

	return &preparedQuery{
		input:    input,
		chunks:   chunks,
		messages: s.prompt.Build(input.Message, chunks, history),
	}, nil
}

func (s *ChatService) recentHistory(ctx context.Context, documentID string) ([]rag.HistoryTurn, error) {
	if s.prompt.MaxHistory <= 0 {
		return nil, nil
	}
	stored, err := s.messages.ListRecent(ctx, documentID, s.prompt.MaxHistory)
	if err != nil {
		return nil, classify(err)
	}
	turns := make([]rag.HistoryTurn, len(stored))
	for i, m := range stored {
		turns[i] = rag.HistoryTurn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

func (s *ChatService) saveAssistant(ctx context.Context, q *preparedQuery, content string) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		DocumentID:        q.input.DocumentID,
		Role:              model.RoleAssistant,
		Content:           content,
		RetrievedChunkIDs: rag.IDs(q.chunks),
	}
	s.invalidateHistory(ctx, q.input.DocumentID)
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

func (s *ChatService) saveQuestion(ctx context.Context, documentID, content string) error {
	msg := &model.ChatMessage{DocumentID: documentID, Role: model.RoleUser, Content: content}
	if err := s.messages.Create(ctx, msg); err != nil {
		return classify(err)
	}
	return nil
}

// invalidateHistory marks the cached page stale before a write lands.
func (s *ChatService) invalidateHistory(ctx context.Context, documentID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(ctx, documentID); err != nil {
		s.logger.Warn("invalidate history cache failed", "document_id", documentID, "error", err)
	}
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
