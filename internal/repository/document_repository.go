package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatpdf/internal/model"
)

// ErrStatusConflict means the document was not in a state that allows the update.
var ErrStatusConflict = errors.New("document status conflict")

const chunkInsertBatch = 100

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// List returns documents newest first together with the total count.
func (r *DocumentRepository) List(ctx context.Context, offset, limit int) ([]model.Document, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents failed: %w", err)
	}

	var list []model.Document
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list documents failed: %w", err)
	}
	return list, total, nil
}

// UpdateStatus moves the document to status when its current status is one of from.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, from []model.DocumentStatus, to model.DocumentStatus) error {
	return r.updateWhenStatus(ctx, id, from, map[string]interface{}{"status": to})
}

// MarkUploaded records where the bytes landed and moves a pending document to uploaded.
func (r *DocumentRepository) MarkUploaded(ctx context.Context, id, storageKey string) error {
	return r.updateWhenStatus(ctx, id,
		[]model.DocumentStatus{model.StatusPending, model.StatusUploaded},
		map[string]interface{}{"status": model.StatusUploaded, "storage_key": storageKey},
	)
}

// MarkProcessing enters the processing state and clears any earlier failure message.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateWhenStatus(ctx, id,
		[]model.DocumentStatus{model.StatusUploaded, model.StatusProcessing, model.StatusFailed},
		map[string]interface{}{"status": model.StatusProcessing, "error_message": nil},
	)
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.updateWhenStatus(ctx, id,
		[]model.DocumentStatus{model.StatusProcessing},
		map[string]interface{}{"status": model.StatusFailed, "error_message": message},
	)
}

func (r *DocumentRepository) updateWhenStatus(ctx context.Context, id string, from []model.DocumentStatus, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("update document status failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// CompleteIngestion replaces the document's chunks and marks it completed in
// one transaction. The document row is locked so concurrent attempts serialise.
func (r *DocumentRepository) CompleteIngestion(ctx context.Context, id string, totalPages int, chunks []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id = ?", id)
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var doc model.Document
		if err := query.First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStatusConflict
			}
			return fmt.Errorf("lock document failed: %w", err)
		}
		if doc.Status != model.StatusProcessing {
			return ErrStatusConflict
		}

		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete previous chunks failed: %w", err)
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
				return fmt.Errorf("create chunks failed: %w", err)
			}
		}
		if err := tx.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":        model.StatusCompleted,
			"total_pages":   totalPages,
			"error_message": nil,
		}).Error; err != nil {
			return fmt.Errorf("mark document completed failed: %w", err)
		}
		return nil
	})
}

// DeleteCascade removes the document with its chunks and messages. It reports
// false when no document had that id.
func (r *DocumentRepository) DeleteCascade(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks failed: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete chat messages failed: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&model.Document{})
		if result.Error != nil {
			return fmt.Errorf("delete document failed: %w", result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
