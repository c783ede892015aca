package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Filename     string         `gorm:"size:255;not null" json:"filename"`
	StorageKey   string         `gorm:"size:500;not null" json:"storage_key"`
	FileSize     int64          `gorm:"not null" json:"file_size"`
	TotalPages   *int           `json:"total_pages"`
	Status       DocumentStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Chunks   []Chunk       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Messages []ChatMessage `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// StorageKeyFor is the object key used for a document's bytes.
func StorageKeyFor(documentID string) string {
	return "pdfs/" + documentID + ".pdf"
}
