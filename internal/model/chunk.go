package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chunk stores a text window of a document and its embedding for retrieval.
type Chunk struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string    `gorm:"size:36;not null;uniqueIndex:idx_chunks_document_index,priority:1" json:"document_id"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:2" json:"chunk_index"`
	ChunkText  string    `gorm:"type:text;not null" json:"chunk_text"`
	PageNumber *int      `json:"page_number"`
	Embedding  Vector    `gorm:"size:1536;not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Chunk) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ScoredChunk is a search candidate with its cosine distance to the query.
type ScoredChunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	ChunkText  string
	PageNumber *int
	Distance   float64
}
