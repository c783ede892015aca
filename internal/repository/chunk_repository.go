package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"chatpdf/internal/model"
	"chatpdf/internal/pkg/vecmath"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) ListByDocumentID(ctx context.Context, documentID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}

// NearestChunks returns up to limit chunks of the document ordered by
// ascending cosine distance to query, ties broken by chunk index.
func (r *ChunkRepository) NearestChunks(ctx context.Context, documentID string, query []float32, limit int) ([]model.ScoredChunk, error) {
	if limit <= 0 {
		return []model.ScoredChunk{}, nil
	}
	if r.db.Dialector.Name() == "postgres" {
		return r.nearestPGVector(ctx, documentID, query, limit)
	}
	return r.nearestInProcess(ctx, documentID, query, limit)
}

func (r *ChunkRepository) nearestPGVector(ctx context.Context, documentID string, query []float32, limit int) ([]model.ScoredChunk, error) {
	rows := []model.ScoredChunk{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, document_id, chunk_index, chunk_text, page_number, embedding <=> ? AS distance
		FROM chunks
		WHERE document_id = ?
		ORDER BY distance ASC, chunk_index ASC
		LIMIT ?`,
		pgvector.NewVector(query), documentID, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return rows, nil
}

func (r *ChunkRepository) nearestInProcess(ctx context.Context, documentID string, query []float32, limit int) ([]model.ScoredChunk, error) {
	chunks, err := r.ListByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	scored := make([]model.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = model.ScoredChunk{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.ChunkText,
			PageNumber: c.PageNumber,
			Distance:   vecmath.CosineDistance(query, c.Embedding),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
