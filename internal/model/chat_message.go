package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	DocumentID        string    `gorm:"size:36;not null;index" json:"pdf_id"`
	Role              string    `gorm:"size:16;not null" json:"role"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	RetrievedChunkIDs []string  `gorm:"serializer:json;type:text" json:"retrieved_chunk_ids,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
