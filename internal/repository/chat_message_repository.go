package repository

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"chatpdf/internal/model"
)

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create chat message failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest limit messages of a document, oldest first.
func (r *ChatMessageRepository) ListRecent(ctx context.Context, documentID string, limit int) ([]model.ChatMessage, error) {
	return r.ListPage(ctx, documentID, 0, limit)
}

// ListPage returns up to limit messages in chronological order, ending offset
// messages before the newest one.
func (r *ChatMessageRepository) ListPage(ctx context.Context, documentID string, offset, limit int) ([]model.ChatMessage, error) {
	messages := []model.ChatMessage{}
	if limit <= 0 {
		return messages, nil
	}
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *ChatMessageRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("document_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count chat messages failed: %w", err)
	}
	return n, nil
}
